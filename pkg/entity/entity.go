package entity

import (
	"encoding/json"
	"time"

	v "github.com/cohesivestack/valgo"
	"github.com/theapemachine/engram/pkg/errors"
)

// Entity type discriminators understood by the schema-aware layers. The store
// itself is open-world: it persists any non-empty entity_type.
const (
	TypeTask         = "task"
	TypeContext      = "context"
	TypeReasoning    = "reasoning"
	TypeKnowledge    = "knowledge"
	TypeSession      = "session"
	TypeCompliance   = "compliance"
	TypeRule         = "rule"
	TypeStandard     = "standard"
	TypeADR          = "adr"
	TypeWorkflow     = "workflow"
	TypeRelationship = "relationship"
)

// PipelineOrder is the fixed order the sync engine walks entity types in.
// Relationship entities are reconciled implicitly through their owning agents
// and are not part of the pipeline.
var PipelineOrder = []string{
	TypeTask,
	TypeContext,
	TypeReasoning,
	TypeKnowledge,
	TypeSession,
	TypeCompliance,
	TypeRule,
	TypeStandard,
	TypeADR,
	TypeWorkflow,
}

var knownTypes = func() map[string]struct{} {
	m := make(map[string]struct{}, len(PipelineOrder)+1)
	for _, t := range PipelineOrder {
		m[t] = struct{}{}
	}
	m[TypeRelationship] = struct{}{}
	return m
}()

// Known reports whether entityType is one of the registered discriminators.
func Known(entityType string) bool {
	_, ok := knownTypes[entityType]
	return ok
}

// KnownTypes returns every registered discriminator, pipeline order first,
// relationship last. Index rebuilds scan these.
func KnownTypes() []string {
	out := make([]string, 0, len(PipelineOrder)+1)
	out = append(out, PipelineOrder...)
	out = append(out, TypeRelationship)
	return out
}

/*
GenericEntity is the canonical envelope for every persisted record. The
payload stays opaque at this layer; typed records convert through ToGeneric
and DecodeData at the boundary so the store never needs per-type knowledge.
*/
type GenericEntity struct {
	ID         string          `json:"id"`
	EntityType string          `json:"entity_type"`
	Agent      string          `json:"agent"`
	Timestamp  time.Time       `json:"timestamp"`
	Data       json.RawMessage `json:"data"`
}

// NewGenericEntity stamps a fresh envelope with the current time.
func NewGenericEntity(id, entityType, agent string, data json.RawMessage) *GenericEntity {
	return &GenericEntity{
		ID:         id,
		EntityType: entityType,
		Agent:      agent,
		Timestamp:  time.Now().UTC(),
		Data:       data,
	}
}

// UnmarshalJSON also accepts the legacy "type" key for the discriminator.
func (entity *GenericEntity) UnmarshalJSON(data []byte) error {
	type alias GenericEntity

	aux := struct {
		*alias
		LegacyType string `json:"type"`
	}{alias: (*alias)(entity)}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	if entity.EntityType == "" {
		entity.EntityType = aux.LegacyType
	}

	return nil
}

func (entity *GenericEntity) Validate() error {
	val := v.Is(v.String(entity.ID, "id").Not().Blank()).
		Is(v.String(entity.EntityType, "entity_type").Not().Blank()).
		Is(v.String(entity.Agent, "agent").Not().Blank())

	if !val.Valid() {
		return errors.ErrValidation.WithMessagef("invalid entity: %v", val.Error())
	}

	if entity.Timestamp.IsZero() {
		return errors.ErrValidation.WithMessagef(
			"entity %s has no timestamp", entity.ID,
		)
	}

	return nil
}

// Clone returns a deep copy; merge folds mutate payloads and must not alias
// the stored bytes.
func (entity *GenericEntity) Clone() *GenericEntity {
	clone := *entity
	clone.Data = append(json.RawMessage(nil), entity.Data...)
	return &clone
}

// DecodeData unmarshals the payload into out.
func (entity *GenericEntity) DecodeData(out any) error {
	if err := json.Unmarshal(entity.Data, out); err != nil {
		return errors.ErrDeserialization.WithMessagef(
			"failed to decode %s payload: %v", entity.EntityType, err,
		)
	}

	return nil
}

/*
Entity is implemented by typed records that can round-trip through the
generic envelope.
*/
type Entity interface {
	EntityID() string
	EntityType() string
	EntityAgent() string
	EntityTimestamp() time.Time
	Validate() error
}

// ToGeneric converts a typed record into the envelope the store persists.
func ToGeneric(e Entity) (*GenericEntity, error) {
	if err := e.Validate(); err != nil {
		return nil, err
	}

	data, err := json.Marshal(e)

	if err != nil {
		return nil, errors.ErrSerialization.WithMessagef(
			"failed to serialize %s %s: %v", e.EntityType(), e.EntityID(), err,
		)
	}

	return &GenericEntity{
		ID:         e.EntityID(),
		EntityType: e.EntityType(),
		Agent:      e.EntityAgent(),
		Timestamp:  e.EntityTimestamp(),
		Data:       data,
	}, nil
}
