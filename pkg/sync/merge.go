package sync

import (
	"strings"

	"github.com/charmbracelet/log"
	"github.com/theapemachine/engram/pkg/entity"
	"github.com/theapemachine/engram/pkg/errors"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

/*
Merge collapses records from multiple agents into one per id using the
given strategy. Input order decides ties; output keeps first-seen id order
so repeated runs over the same scan are stable.
*/
func Merge(entities []*entity.GenericEntity, strategy Strategy) ([]*entity.GenericEntity, []Conflict, error) {
	if err := strategy.Validate(); err != nil {
		return nil, nil, err
	}

	switch strategy.Kind {
	case LatestWins:
		return mergeLatestWins(entities), nil, nil
	case IntelligentMerge:
		merged, err := mergeIntelligent(entities)
		return merged, nil, err
	case PriorityWins:
		return mergePriorityWins(entities, strategy.PriorityAgent), nil, nil
	case MergeWithConflictResolution:
		merged, conflicts := mergeWithConflictDetection(entities)
		return merged, conflicts, nil
	}

	return nil, nil, errors.ErrValidation.WithMessagef("unknown merge strategy %q", strategy.Kind)
}

func mergeLatestWins(entities []*entity.GenericEntity) []*entity.GenericEntity {
	order := make([]string, 0, len(entities))
	winners := make(map[string]*entity.GenericEntity, len(entities))

	for _, candidate := range entities {
		existing, ok := winners[candidate.ID]
		if !ok {
			order = append(order, candidate.ID)
			winners[candidate.ID] = candidate
			continue
		}

		if candidate.Timestamp.After(existing.Timestamp) {
			winners[candidate.ID] = candidate
		}
	}

	return collect(order, winners)
}

// mergeIntelligent is LatestWins with field carry-forward: whichever of the
// pair is older donates values for fields the newer one lost. The fold is
// insensitive to encounter order apart from timestamp ties, which keep the
// first-seen record as the base.
func mergeIntelligent(entities []*entity.GenericEntity) ([]*entity.GenericEntity, error) {
	order := make([]string, 0, len(entities))
	winners := make(map[string]*entity.GenericEntity, len(entities))

	for _, candidate := range entities {
		existing, ok := winners[candidate.ID]
		if !ok {
			order = append(order, candidate.ID)
			winners[candidate.ID] = candidate
			continue
		}

		older, newer := candidate, existing
		if candidate.Timestamp.After(existing.Timestamp) {
			older, newer = existing, candidate
		}

		merged, err := carryForward(older, newer)
		if err != nil {
			return nil, err
		}

		winners[candidate.ID] = merged
	}

	return collect(order, winners), nil
}

func mergePriorityWins(entities []*entity.GenericEntity, priorityAgent string) []*entity.GenericEntity {
	order := make([]string, 0, len(entities))
	winners := make(map[string]*entity.GenericEntity, len(entities))

	for _, candidate := range entities {
		existing, ok := winners[candidate.ID]
		if !ok {
			order = append(order, candidate.ID)
			winners[candidate.ID] = candidate
			continue
		}

		if candidate.Agent == priorityAgent {
			winners[candidate.ID] = candidate
		} else if existing.Agent != priorityAgent && candidate.Timestamp.After(existing.Timestamp) {
			winners[candidate.ID] = candidate
		}
	}

	return collect(order, winners)
}

// mergeWithConflictDetection resolves by LatestWins but flags concurrent
// different-agent edits as conflicts before discarding the loser.
func mergeWithConflictDetection(entities []*entity.GenericEntity) ([]*entity.GenericEntity, []Conflict) {
	order := make([]string, 0, len(entities))
	winners := make(map[string]*entity.GenericEntity, len(entities))
	conflicts := make([]Conflict, 0)

	for _, candidate := range entities {
		existing, ok := winners[candidate.ID]
		if !ok {
			order = append(order, candidate.ID)
			winners[candidate.ID] = candidate
			continue
		}

		if hasConflict(existing, candidate) {
			winner, loser := existing, candidate
			if candidate.Timestamp.After(existing.Timestamp) {
				winner, loser = candidate, existing
			}

			log.Warn("conflicting changes from different agents",
				"id", candidate.ID,
				"type", candidate.EntityType,
				"winner", winner.Agent,
				"loser", loser.Agent)

			conflicts = append(conflicts, Conflict{
				EntityID:   candidate.ID,
				EntityType: candidate.EntityType,
				Strategy:   Strategy{Kind: LatestWins},
				Winner:     winner.Agent,
				Loser:      loser.Agent,
				Details:    analyzeConflict(existing, candidate),
			})

			winners[candidate.ID] = winner
			continue
		}

		if candidate.Timestamp.After(existing.Timestamp) {
			winners[candidate.ID] = candidate
		}
	}

	return collect(order, winners), conflicts
}

/*
carryForward fills fields the newer payload lost (null, empty string,
empty array, or missing entirely) with the older payload's values. The
result keeps the newer record's identity, agent and timestamp. Non-object
payloads pass through untouched.
*/
func carryForward(older, newer *entity.GenericEntity) (*entity.GenericEntity, error) {
	merged := newer.Clone()

	olderPayload := gjson.ParseBytes(older.Data)
	newerPayload := gjson.ParseBytes(newer.Data)

	if !olderPayload.IsObject() || !newerPayload.IsObject() {
		return merged, nil
	}

	olderFields := olderPayload.Map()
	newerFields := newerPayload.Map()
	data := []byte(merged.Data)

	var err error

	for _, key := range sortedKeys(olderFields) {
		newerValue, ok := newerFields[key]
		if ok && !emptyValue(newerValue) {
			continue
		}

		data, err = sjson.SetRawBytes(data, escapePath(key), []byte(olderFields[key].Raw))
		if err != nil {
			return nil, errors.ErrSerialization.WithMessagef(
				"failed to merge field %s of %s: %v", key, newer.ID, err,
			)
		}
	}

	merged.Data = data
	return merged, nil
}

// emptyValue matches the field states carry-forward treats as lost.
func emptyValue(value gjson.Result) bool {
	switch {
	case value.Type == gjson.Null:
		return true
	case value.Type == gjson.String && value.Str == "":
		return true
	case value.IsArray() && len(value.Array()) == 0:
		return true
	}

	return false
}

var pathEscaper = strings.NewReplacer(
	`\`, `\\`,
	`.`, `\.`,
	`*`, `\*`,
	`?`, `\?`,
)

// escapePath quotes path syntax inside a literal field name.
func escapePath(key string) string {
	return pathEscaper.Replace(key)
}

func collect(order []string, winners map[string]*entity.GenericEntity) []*entity.GenericEntity {
	out := make([]*entity.GenericEntity, 0, len(order))
	for _, id := range order {
		out = append(out, winners[id])
	}

	return out
}
