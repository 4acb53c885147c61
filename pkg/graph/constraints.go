package graph

import (
	"github.com/theapemachine/engram/pkg/entity"
	"github.com/theapemachine/engram/pkg/errors"
)

/*
ValidateConstraints checks whether a relationship may be stored given the
current graph. Endpoint type lists restrict when non-empty. Degree limits
count existing edges only, so updating an already-indexed relationship never
trips its own limit. Cycle detection runs a reverse reachability search and
only applies when the edge forbids cycles.
*/
func (index *Index) ValidateConstraints(rel *entity.Relationship) error {
	if err := rel.Validate(); err != nil {
		return err
	}

	if !typeAllowed(rel.Constraints.SourceTypes, rel.SourceType) {
		return errors.ErrValidation.WithMessagef(
			"source type %s not allowed for this relationship", rel.SourceType,
		)
	}

	if !typeAllowed(rel.Constraints.TargetTypes, rel.TargetType) {
		return errors.ErrValidation.WithMessagef(
			"target type %s not allowed for this relationship", rel.TargetType,
		)
	}

	index.mutex.RLock()
	defer index.mutex.RUnlock()

	outboundCount := countExcluding(index.outbound[rel.SourceID], rel.ID)
	inboundCount := countExcluding(index.inbound[rel.TargetID], rel.ID)

	if max := rel.Constraints.MaxOutbound; max != nil && outboundCount >= *max {
		return errors.ErrValidation.WithMessagef(
			"maximum outbound relationships (%d) exceeded for entity %s",
			*max, rel.SourceID,
		)
	}

	if max := rel.Constraints.MaxInbound; max != nil && inboundCount >= *max {
		return errors.ErrValidation.WithMessagef(
			"maximum inbound relationships (%d) exceeded for entity %s",
			*max, rel.TargetID,
		)
	}

	if !rel.Constraints.AllowCycles && index.wouldCreateCycleLocked(rel) {
		return errors.ErrValidation.WithMessagef(
			"relationship from %s to %s would create a cycle",
			rel.SourceID, rel.TargetID,
		)
	}

	return nil
}

// wouldCreateCycleLocked reports whether the target can already reach the
// source, which means adding source to target closes a loop. A self edge is
// a loop on its own.
func (index *Index) wouldCreateCycleLocked(rel *entity.Relationship) bool {
	if rel.SourceID == rel.TargetID {
		return true
	}
	return len(index.bfsPathsLocked(rel.TargetID, rel.SourceID, 0)) > 0
}

// typeAllowed treats an empty list as no restriction.
func typeAllowed(types []string, entityType string) bool {
	if len(types) == 0 {
		return true
	}
	for i := 0; i < len(types); i++ {
		if types[i] == entityType {
			return true
		}
	}
	return false
}

func countExcluding(ids []string, exclude string) int {
	count := 0
	for _, id := range ids {
		if id != exclude {
			count++
		}
	}
	return count
}
