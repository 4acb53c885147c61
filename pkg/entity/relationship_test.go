package entity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/theapemachine/engram/pkg/errors"
)

func TestNewRelationship(t *testing.T) {
	rel := NewRelationship("a", TypeTask, "b", TypeContext, DependsOn, "alice")
	assert.NotEmpty(t, rel.ID)
	assert.Equal(t, "a", rel.SourceID)
	assert.Equal(t, TypeTask, rel.SourceType)
	assert.Equal(t, "b", rel.TargetID)
	assert.Equal(t, TypeContext, rel.TargetType)
	assert.Equal(t, DependsOn, rel.RelationshipType)
	assert.Equal(t, Unidirectional, rel.Direction)
	assert.Equal(t, StrengthMedium, rel.Strength.Level)
	assert.Equal(t, "alice", rel.Agent)
	assert.True(t, rel.Active)
	assert.True(t, rel.Constraints.AllowCycles)
	assert.NotZero(t, rel.Created)
	assert.Equal(t, rel.Created, rel.Updated)
}

func TestRelationship_Builders(t *testing.T) {
	rel := NewRelationship("a", TypeTask, "b", TypeTask, References, "alice").
		WithDirection(Bidirectional).
		WithStrength(CriticalStrength()).
		WithDescription("shared design doc").
		WithMetadata("origin", "import")

	assert.Equal(t, Bidirectional, rel.Direction)
	assert.Equal(t, StrengthCritical, rel.Strength.Level)
	assert.Equal(t, "shared design doc", rel.Description)
	assert.Equal(t, "import", rel.Metadata["origin"])
}

func TestStrength_Weight(t *testing.T) {
	assert.Equal(t, 0.25, WeakStrength().Weight())
	assert.Equal(t, 0.5, MediumStrength().Weight())
	assert.Equal(t, 0.75, StrongStrength().Weight())
	assert.Equal(t, 1.0, CriticalStrength().Weight())
	assert.Equal(t, 0.6, CustomStrength(0.6).Weight())
}

func TestCustomStrength_Clamped(t *testing.T) {
	assert.Equal(t, 0.0, CustomStrength(-2.5).Weight())
	assert.Equal(t, 1.0, CustomStrength(7.9).Weight())
}

func TestStrength_Weight_UnknownLevel(t *testing.T) {
	// A zero or unrecognized level falls back to the medium weight.
	assert.Equal(t, 0.5, Strength{}.Weight())
	assert.Equal(t, 0.5, Strength{Level: "mystery"}.Weight())
}

func TestRelationship_AllowsTraversal(t *testing.T) {
	rel := NewRelationship("a", TypeTask, "b", TypeTask, DependsOn, "alice")

	// Unidirectional: source to target only.
	assert.True(t, rel.AllowsTraversal("a", "b"))
	assert.False(t, rel.AllowsTraversal("b", "a"))

	// Bidirectional: both ways.
	rel.WithDirection(Bidirectional)
	assert.True(t, rel.AllowsTraversal("a", "b"))
	assert.True(t, rel.AllowsTraversal("b", "a"))

	// Inverse: target to source only.
	rel.WithDirection(Inverse)
	assert.False(t, rel.AllowsTraversal("a", "b"))
	assert.True(t, rel.AllowsTraversal("b", "a"))

	// Unrelated endpoints never traverse.
	assert.False(t, rel.AllowsTraversal("a", "c"))
	assert.False(t, rel.AllowsTraversal("c", "b"))
}

func TestRelationship_Other(t *testing.T) {
	rel := NewRelationship("a", TypeTask, "b", TypeTask, DependsOn, "alice")

	other, ok := rel.Other("a")
	assert.True(t, ok)
	assert.Equal(t, "b", other)

	other, ok = rel.Other("b")
	assert.True(t, ok)
	assert.Equal(t, "a", other)

	_, ok = rel.Other("c")
	assert.False(t, ok)
}

func TestRelationship_Validate(t *testing.T) {
	rel := NewRelationship("a", TypeTask, "b", TypeContext, DependsOn, "alice")
	assert.NoError(t, rel.Validate())
}

func TestRelationship_Validate_SelfReference(t *testing.T) {
	rel := NewRelationship("a", TypeTask, "a", TypeTask, DependsOn, "alice")
	err := rel.Validate()
	assert.ErrorIs(t, err, errors.ErrValidation)
	assert.Contains(t, err.Error(), "itself")
}

func TestRelationship_Validate_MissingFields(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Relationship)
	}{
		{"empty source", func(rel *Relationship) { rel.SourceID = "" }},
		{"empty target", func(rel *Relationship) { rel.TargetID = "" }},
		{"empty type", func(rel *Relationship) { rel.RelationshipType = "" }},
		{"empty agent", func(rel *Relationship) { rel.Agent = "" }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rel := NewRelationship("a", TypeTask, "b", TypeContext, DependsOn, "alice")
			tc.mutate(rel)
			assert.ErrorIs(t, rel.Validate(), errors.ErrValidation)
		})
	}
}

func TestRelationship_EntityInterface(t *testing.T) {
	rel := NewRelationship("a", TypeTask, "b", TypeContext, Fulfills, "alice")

	var e Entity = rel
	assert.Equal(t, rel.ID, e.EntityID())
	assert.Equal(t, TypeRelationship, e.EntityType())
	assert.Equal(t, "alice", e.EntityAgent())
	assert.Equal(t, rel.Updated, e.EntityTimestamp())
}

func TestRelationship_Touch(t *testing.T) {
	rel := NewRelationship("a", TypeTask, "b", TypeContext, DependsOn, "alice")
	before := rel.Updated
	rel.Touch()
	assert.True(t, !rel.Updated.Before(before))
}

func TestRelationshipFilter_Matches(t *testing.T) {
	rel := NewRelationship("a", TypeTask, "b", TypeContext, DependsOn, "alice").
		WithStrength(StrongStrength())

	assert.True(t, (&RelationshipFilter{}).Matches(rel))
	assert.True(t, (&RelationshipFilter{SourceID: "a"}).Matches(rel))
	assert.True(t, (&RelationshipFilter{TargetID: "b"}).Matches(rel))
	assert.True(t, (&RelationshipFilter{RelationshipType: DependsOn}).Matches(rel))
	assert.True(t, (&RelationshipFilter{Agent: "alice"}).Matches(rel))
	assert.True(t, (&RelationshipFilter{MinStrength: 0.5}).Matches(rel))

	assert.False(t, (&RelationshipFilter{SourceID: "x"}).Matches(rel))
	assert.False(t, (&RelationshipFilter{TargetType: TypeTask}).Matches(rel))
	assert.False(t, (&RelationshipFilter{Agent: "bob"}).Matches(rel))
	assert.False(t, (&RelationshipFilter{MinStrength: 0.9}).Matches(rel))
}

func TestRelationshipFilter_ActiveOnly(t *testing.T) {
	rel := NewRelationship("a", TypeTask, "b", TypeContext, DependsOn, "alice")
	rel.Active = false

	assert.True(t, (&RelationshipFilter{}).Matches(rel))
	assert.False(t, (&RelationshipFilter{ActiveOnly: true}).Matches(rel))
}

func TestCustomRelationshipType(t *testing.T) {
	custom := CustomRelationshipType("mentors")
	rel := NewRelationship("a", TypeTask, "b", TypeTask, custom, "alice")
	assert.Equal(t, RelationshipType("mentors"), rel.RelationshipType)
	assert.NoError(t, rel.Validate())
}
