package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/theapemachine/engram/pkg/entity"
	"github.com/theapemachine/engram/pkg/errors"
)

func intPtr(value int) *int { return &value }

func TestIndex_ValidateConstraints(t *testing.T) {
	index := NewIndex()
	rel := edge("rel-1", "a", "b", entity.DependsOn)
	assert.NoError(t, index.ValidateConstraints(rel))
}

func TestIndex_ValidateConstraints_InvalidRelationship(t *testing.T) {
	index := NewIndex()
	rel := edge("rel-1", "a", "b", entity.DependsOn)
	rel.Agent = ""

	assert.ErrorIs(t, index.ValidateConstraints(rel), errors.ErrValidation)
}

func TestIndex_ValidateConstraints_MaxOutbound(t *testing.T) {
	index := NewIndex()
	index.Add(edge("rel-1", "a", "b", entity.DependsOn))
	index.Add(edge("rel-2", "a", "c", entity.DependsOn))

	rel := edge("rel-3", "a", "d", entity.DependsOn)
	rel.Constraints.MaxOutbound = intPtr(2)

	err := index.ValidateConstraints(rel)
	assert.ErrorIs(t, err, errors.ErrValidation)
	assert.Contains(t, err.Error(), "outbound")
}

func TestIndex_ValidateConstraints_MaxInbound(t *testing.T) {
	index := NewIndex()
	index.Add(edge("rel-1", "a", "c", entity.DependsOn))
	index.Add(edge("rel-2", "b", "c", entity.DependsOn))

	rel := edge("rel-3", "d", "c", entity.DependsOn)
	rel.Constraints.MaxInbound = intPtr(2)

	err := index.ValidateConstraints(rel)
	assert.ErrorIs(t, err, errors.ErrValidation)
	assert.Contains(t, err.Error(), "inbound")
}

func TestIndex_ValidateConstraints_UpdateDoesNotCountItself(t *testing.T) {
	index := NewIndex()
	index.Add(edge("rel-1", "a", "b", entity.DependsOn))

	// Updating the indexed edge with a limit of one must still pass.
	update := edge("rel-1", "a", "b", entity.DependsOn)
	update.Constraints.MaxOutbound = intPtr(1)
	update.Constraints.MaxInbound = intPtr(1)

	assert.NoError(t, index.ValidateConstraints(update))
}

func TestIndex_ValidateConstraints_EndpointTypes(t *testing.T) {
	index := NewIndex()

	rel := edge("rel-1", "a", "b", entity.DependsOn)
	rel.Constraints.SourceTypes = []string{entity.TypeTask}
	rel.Constraints.TargetTypes = []string{entity.TypeTask, entity.TypeADR}
	assert.NoError(t, index.ValidateConstraints(rel))

	wrongSource := edge("rel-2", "a", "b", entity.DependsOn)
	wrongSource.SourceType = entity.TypeSession
	wrongSource.Constraints.SourceTypes = []string{entity.TypeTask}

	err := index.ValidateConstraints(wrongSource)
	assert.ErrorIs(t, err, errors.ErrValidation)
	assert.Contains(t, err.Error(), "source type")

	wrongTarget := edge("rel-3", "a", "b", entity.DependsOn)
	wrongTarget.Constraints.TargetTypes = []string{entity.TypeKnowledge}

	err = index.ValidateConstraints(wrongTarget)
	assert.ErrorIs(t, err, errors.ErrValidation)
	assert.Contains(t, err.Error(), "target type")
}

func TestIndex_ValidateConstraints_CycleForbidden(t *testing.T) {
	index := NewIndex()
	index.Add(edge("rel-1", "a", "b", entity.DependsOn))
	index.Add(edge("rel-2", "b", "c", entity.DependsOn))

	closing := edge("rel-3", "c", "a", entity.DependsOn)
	closing.Constraints.AllowCycles = false

	err := index.ValidateConstraints(closing)
	assert.ErrorIs(t, err, errors.ErrValidation)
	assert.Contains(t, err.Error(), "cycle")
}

func TestIndex_ValidateConstraints_CycleAllowedByDefault(t *testing.T) {
	index := NewIndex()
	index.Add(edge("rel-1", "a", "b", entity.DependsOn))
	index.Add(edge("rel-2", "b", "c", entity.DependsOn))

	assert.NoError(t, index.ValidateConstraints(edge("rel-3", "c", "a", entity.DependsOn)))
}

func TestIndex_ValidateConstraints_NoCycleNoError(t *testing.T) {
	index := NewIndex()
	index.Add(edge("rel-1", "a", "b", entity.DependsOn))

	branch := edge("rel-2", "a", "c", entity.DependsOn)
	branch.Constraints.AllowCycles = false

	assert.NoError(t, index.ValidateConstraints(branch))
}
