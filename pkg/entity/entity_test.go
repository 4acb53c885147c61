package entity

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/theapemachine/engram/pkg/errors"
)

func TestKnown(t *testing.T) {
	assert.True(t, Known(TypeTask))
	assert.True(t, Known(TypeContext))
	assert.True(t, Known(TypeRelationship))
	assert.False(t, Known("banana"))
	assert.False(t, Known(""))
}

func TestKnownTypes(t *testing.T) {
	types := KnownTypes()
	assert.Len(t, types, 11)
	assert.Equal(t, TypeTask, types[0])
	assert.Equal(t, TypeRelationship, types[len(types)-1])
}

func TestPipelineOrder(t *testing.T) {
	assert.Equal(t, []string{
		TypeTask, TypeContext, TypeReasoning, TypeKnowledge, TypeSession,
		TypeCompliance, TypeRule, TypeStandard, TypeADR, TypeWorkflow,
	}, PipelineOrder)
}

func TestNewGenericEntity(t *testing.T) {
	entity := NewGenericEntity("task-1", TypeTask, "alice", json.RawMessage(`{"title":"Test"}`))
	assert.Equal(t, "task-1", entity.ID)
	assert.Equal(t, TypeTask, entity.EntityType)
	assert.Equal(t, "alice", entity.Agent)
	assert.NotZero(t, entity.Timestamp)
	assert.JSONEq(t, `{"title":"Test"}`, string(entity.Data))
}

func TestGenericEntity_UnmarshalJSON(t *testing.T) {
	raw := `{
		"id": "task-1",
		"entity_type": "task",
		"agent": "alice",
		"timestamp": "2024-01-15T10:30:00Z",
		"data": {"title": "Test"}
	}`

	var entity GenericEntity
	assert.NoError(t, json.Unmarshal([]byte(raw), &entity))
	assert.Equal(t, "task-1", entity.ID)
	assert.Equal(t, "task", entity.EntityType)
	assert.Equal(t, "alice", entity.Agent)
	assert.Equal(t, 2024, entity.Timestamp.Year())
	assert.JSONEq(t, `{"title":"Test"}`, string(entity.Data))
}

func TestGenericEntity_UnmarshalJSON_LegacyTypeKey(t *testing.T) {
	// Records written by older versions carry "type" instead of "entity_type".
	raw := `{
		"id": "task-1",
		"type": "task",
		"agent": "alice",
		"timestamp": "2024-01-15T10:30:00Z",
		"data": {}
	}`

	var entity GenericEntity
	assert.NoError(t, json.Unmarshal([]byte(raw), &entity))
	assert.Equal(t, "task", entity.EntityType)
}

func TestGenericEntity_UnmarshalJSON_EntityTypeWins(t *testing.T) {
	// When both keys are present the canonical one wins.
	raw := `{
		"id": "task-1",
		"entity_type": "task",
		"type": "context",
		"agent": "alice",
		"timestamp": "2024-01-15T10:30:00Z",
		"data": {}
	}`

	var entity GenericEntity
	assert.NoError(t, json.Unmarshal([]byte(raw), &entity))
	assert.Equal(t, "task", entity.EntityType)
}

func TestGenericEntity_MarshalJSON(t *testing.T) {
	entity := NewGenericEntity("task-1", TypeTask, "alice", json.RawMessage(`{"title":"Test"}`))
	entity.Timestamp = time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)

	buf, err := json.Marshal(entity)
	assert.NoError(t, err)
	assert.Contains(t, string(buf), `"entity_type":"task"`)
	assert.Contains(t, string(buf), `"2024-01-15T10:30:00Z"`)
	assert.NotContains(t, string(buf), `"type":`)
}

func TestGenericEntity_Validate(t *testing.T) {
	entity := NewGenericEntity("task-1", TypeTask, "alice", json.RawMessage(`{}`))
	assert.NoError(t, entity.Validate())
}

func TestGenericEntity_Validate_MissingFields(t *testing.T) {
	cases := []struct {
		name   string
		entity *GenericEntity
	}{
		{"empty id", NewGenericEntity("", TypeTask, "alice", json.RawMessage(`{}`))},
		{"empty type", NewGenericEntity("task-1", "", "alice", json.RawMessage(`{}`))},
		{"empty agent", NewGenericEntity("task-1", TypeTask, "", json.RawMessage(`{}`))},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.entity.Validate()
			assert.Error(t, err)
			assert.ErrorIs(t, err, errors.ErrValidation)
		})
	}
}

func TestGenericEntity_Validate_ZeroTimestamp(t *testing.T) {
	entity := NewGenericEntity("task-1", TypeTask, "alice", json.RawMessage(`{}`))
	entity.Timestamp = time.Time{}
	assert.ErrorIs(t, entity.Validate(), errors.ErrValidation)
}

func TestGenericEntity_Clone(t *testing.T) {
	entity := NewGenericEntity("task-1", TypeTask, "alice", json.RawMessage(`{"title":"Test"}`))
	clone := entity.Clone()

	assert.Equal(t, entity.ID, clone.ID)
	assert.Equal(t, entity.EntityType, clone.EntityType)
	assert.JSONEq(t, string(entity.Data), string(clone.Data))

	// Mutating the clone's payload must not touch the original.
	clone.Data[2] = 'x'
	assert.JSONEq(t, `{"title":"Test"}`, string(entity.Data))
}

func TestGenericEntity_DecodeData(t *testing.T) {
	entity := NewGenericEntity("task-1", TypeTask, "alice", json.RawMessage(`{"title":"Test","done":true}`))

	var payload struct {
		Title string `json:"title"`
		Done  bool   `json:"done"`
	}
	assert.NoError(t, entity.DecodeData(&payload))
	assert.Equal(t, "Test", payload.Title)
	assert.True(t, payload.Done)
}

func TestGenericEntity_DecodeData_Invalid(t *testing.T) {
	entity := NewGenericEntity("task-1", TypeTask, "alice", json.RawMessage(`{not json`))

	var payload map[string]any
	err := entity.DecodeData(&payload)
	assert.ErrorIs(t, err, errors.ErrDeserialization)
}

func TestToGeneric(t *testing.T) {
	rel := NewRelationship("a", TypeTask, "b", TypeContext, DependsOn, "alice")

	entity, err := ToGeneric(rel)
	assert.NoError(t, err)
	assert.Equal(t, rel.ID, entity.ID)
	assert.Equal(t, TypeRelationship, entity.EntityType)
	assert.Equal(t, "alice", entity.Agent)

	var decoded Relationship
	assert.NoError(t, entity.DecodeData(&decoded))
	assert.Equal(t, rel.SourceID, decoded.SourceID)
	assert.Equal(t, rel.TargetID, decoded.TargetID)
}

func TestToGeneric_Invalid(t *testing.T) {
	rel := NewRelationship("a", TypeTask, "b", TypeContext, DependsOn, "alice")
	rel.Agent = ""

	_, err := ToGeneric(rel)
	assert.ErrorIs(t, err, errors.ErrValidation)
}
