package entity

import (
	"time"

	v "github.com/cohesivestack/valgo"
	"github.com/google/uuid"
	"github.com/theapemachine/engram/pkg/errors"
)

/*
RelationshipType names the semantic of an edge. The well-known set below
covers the schema-aware layers; any other non-empty value is treated as a
custom type.
*/
type RelationshipType string

const (
	DependsOn      RelationshipType = "depends_on"
	Contains       RelationshipType = "contains"
	References     RelationshipType = "references"
	Fulfills       RelationshipType = "fulfills"
	Implements     RelationshipType = "implements"
	Supersedes     RelationshipType = "supersedes"
	AssociatedWith RelationshipType = "associated_with"
	Influences     RelationshipType = "influences"
)

// CustomRelationshipType wraps a caller-defined edge semantic.
func CustomRelationshipType(name string) RelationshipType {
	return RelationshipType(name)
}

/*
Direction controls which way an edge may be traversed. Unidirectional edges
run source to target, inverse edges target to source, bidirectional both.
*/
type Direction string

const (
	Unidirectional Direction = "unidirectional"
	Bidirectional  Direction = "bidirectional"
	Inverse        Direction = "inverse"
)

// StrengthLevel is the named tier of a relationship strength.
type StrengthLevel string

const (
	StrengthWeak     StrengthLevel = "weak"
	StrengthMedium   StrengthLevel = "medium"
	StrengthStrong   StrengthLevel = "strong"
	StrengthCritical StrengthLevel = "critical"
	StrengthCustom   StrengthLevel = "custom"
)

/*
Strength grades how tightly two entities are coupled. Named tiers map to
fixed weights; custom carries its own value, clamped to [0, 1].
*/
type Strength struct {
	Level StrengthLevel `json:"level"`
	Value float64       `json:"value,omitempty"`
}

func WeakStrength() Strength     { return Strength{Level: StrengthWeak} }
func MediumStrength() Strength   { return Strength{Level: StrengthMedium} }
func StrongStrength() Strength   { return Strength{Level: StrengthStrong} }
func CriticalStrength() Strength { return Strength{Level: StrengthCritical} }

// CustomStrength clamps value into [0, 1].
func CustomStrength(value float64) Strength {
	if value < 0 {
		value = 0
	}
	if value > 1 {
		value = 1
	}
	return Strength{Level: StrengthCustom, Value: value}
}

// Weight returns the numeric weight used by traversal cost functions.
func (strength Strength) Weight() float64 {
	switch strength.Level {
	case StrengthWeak:
		return 0.25
	case StrengthMedium:
		return 0.5
	case StrengthStrong:
		return 0.75
	case StrengthCritical:
		return 1.0
	case StrengthCustom:
		if strength.Value < 0 {
			return 0
		}
		if strength.Value > 1 {
			return 1
		}
		return strength.Value
	}
	return 0.5
}

/*
Constraints bound what the graph accepts when a relationship is created.
They govern creation only; traversal safety never depends on them.
*/
type Constraints struct {
	MaxOutbound *int     `json:"max_outbound,omitempty"`
	MaxInbound  *int     `json:"max_inbound,omitempty"`
	AllowCycles bool     `json:"allow_cycles"`
	SourceTypes []string `json:"source_types,omitempty"`
	TargetTypes []string `json:"target_types,omitempty"`
}

func DefaultConstraints() Constraints {
	return Constraints{AllowCycles: true}
}

/*
Relationship is a typed, directed, weighted edge between two stored entities.
It persists through the generic envelope under entity_type "relationship".
*/
type Relationship struct {
	ID               string            `json:"id"`
	SourceID         string            `json:"source_id"`
	SourceType       string            `json:"source_type"`
	TargetID         string            `json:"target_id"`
	TargetType       string            `json:"target_type"`
	RelationshipType RelationshipType  `json:"relationship_type"`
	Direction        Direction         `json:"direction"`
	Strength         Strength          `json:"strength"`
	Description      string            `json:"description,omitempty"`
	Agent            string            `json:"agent"`
	Created          time.Time         `json:"created"`
	Updated          time.Time         `json:"updated"`
	Active           bool              `json:"active"`
	Constraints      Constraints       `json:"constraints"`
	Metadata         map[string]string `json:"metadata,omitempty"`
}

func NewRelationship(
	sourceID, sourceType, targetID, targetType string,
	relationshipType RelationshipType, agent string,
) *Relationship {
	now := time.Now().UTC()

	return &Relationship{
		ID:               uuid.New().String(),
		SourceID:         sourceID,
		SourceType:       sourceType,
		TargetID:         targetID,
		TargetType:       targetType,
		RelationshipType: relationshipType,
		Direction:        Unidirectional,
		Strength:         MediumStrength(),
		Agent:            agent,
		Created:          now,
		Updated:          now,
		Active:           true,
		Constraints:      DefaultConstraints(),
	}
}

func (rel *Relationship) WithDirection(direction Direction) *Relationship {
	rel.Direction = direction
	return rel
}

func (rel *Relationship) WithStrength(strength Strength) *Relationship {
	rel.Strength = strength
	return rel
}

func (rel *Relationship) WithConstraints(constraints Constraints) *Relationship {
	rel.Constraints = constraints
	return rel
}

func (rel *Relationship) WithMetadata(key, value string) *Relationship {
	if rel.Metadata == nil {
		rel.Metadata = make(map[string]string)
	}
	rel.Metadata[key] = value
	return rel
}

func (rel *Relationship) WithDescription(description string) *Relationship {
	rel.Description = description
	return rel
}

// Touch bumps the modification timestamp before a write.
func (rel *Relationship) Touch() {
	rel.Updated = time.Now().UTC()
}

/*
AllowsTraversal reports whether this edge may be walked from one entity to
the other, honoring the direction field.
*/
func (rel *Relationship) AllowsTraversal(from, to string) bool {
	switch rel.Direction {
	case Unidirectional:
		return from == rel.SourceID && to == rel.TargetID
	case Bidirectional:
		return (from == rel.SourceID && to == rel.TargetID) ||
			(from == rel.TargetID && to == rel.SourceID)
	case Inverse:
		return from == rel.TargetID && to == rel.SourceID
	}
	return false
}

// Other returns the far endpoint relative to id, and whether id is an
// endpoint at all.
func (rel *Relationship) Other(id string) (string, bool) {
	switch id {
	case rel.SourceID:
		return rel.TargetID, true
	case rel.TargetID:
		return rel.SourceID, true
	}
	return "", false
}

func (rel *Relationship) Validate() error {
	val := v.Is(v.String(rel.ID, "id").Not().Blank()).
		Is(v.String(rel.SourceID, "source_id").Not().Blank()).
		Is(v.String(rel.SourceType, "source_type").Not().Blank()).
		Is(v.String(rel.TargetID, "target_id").Not().Blank()).
		Is(v.String(rel.TargetType, "target_type").Not().Blank()).
		Is(v.String(string(rel.RelationshipType), "relationship_type").Not().Blank()).
		Is(v.String(rel.Agent, "agent").Not().Blank())

	if !val.Valid() {
		return errors.ErrValidation.WithMessagef("invalid relationship: %v", val.Error())
	}

	if rel.SourceID == rel.TargetID {
		return errors.ErrValidation.WithMessagef(
			"relationship %s links entity %s to itself", rel.ID, rel.SourceID,
		)
	}

	if weight := rel.Strength.Weight(); weight < 0 || weight > 1 {
		return errors.ErrValidation.WithMessagef(
			"relationship %s strength %f out of range", rel.ID, weight,
		)
	}

	return nil
}

// Entity interface, so relationships flow through the generic envelope.

func (rel *Relationship) EntityID() string    { return rel.ID }
func (rel *Relationship) EntityType() string  { return TypeRelationship }
func (rel *Relationship) EntityAgent() string { return rel.Agent }

func (rel *Relationship) EntityTimestamp() time.Time { return rel.Updated }

/*
RelationshipFilter selects a subset of edges. Zero-valued fields match
everything.
*/
type RelationshipFilter struct {
	SourceID         string
	TargetID         string
	SourceType       string
	TargetType       string
	RelationshipType RelationshipType
	Agent            string
	ActiveOnly       bool
	MinStrength      float64
}

func (filter *RelationshipFilter) Matches(rel *Relationship) bool {
	if filter.SourceID != "" && rel.SourceID != filter.SourceID {
		return false
	}
	if filter.TargetID != "" && rel.TargetID != filter.TargetID {
		return false
	}
	if filter.SourceType != "" && rel.SourceType != filter.SourceType {
		return false
	}
	if filter.TargetType != "" && rel.TargetType != filter.TargetType {
		return false
	}
	if filter.RelationshipType != "" && rel.RelationshipType != filter.RelationshipType {
		return false
	}
	if filter.Agent != "" && rel.Agent != filter.Agent {
		return false
	}
	if filter.ActiveOnly && !rel.Active {
		return false
	}
	if filter.MinStrength > 0 && rel.Strength.Weight() < filter.MinStrength {
		return false
	}
	return true
}
