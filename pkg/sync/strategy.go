package sync

import (
	"strings"

	"github.com/theapemachine/engram/pkg/errors"
)

// StrategyKind discriminates the closed set of merge strategies.
type StrategyKind string

const (
	LatestWins                  StrategyKind = "latest_wins"
	IntelligentMerge            StrategyKind = "intelligent_merge"
	PriorityWins                StrategyKind = "priority_wins"
	MergeWithConflictResolution StrategyKind = "merge_with_conflict_resolution"
)

/*
Strategy selects how records written by different agents collapse into one
per id. PriorityWins carries the agent whose records always take
precedence; the other kinds need no parameters.
*/
type Strategy struct {
	Kind          StrategyKind `json:"kind"`
	PriorityAgent string       `json:"priority_agent,omitempty"`
}

/*
ParseStrategy resolves a strategy name in snake_case or kebab-case, plus
the parameterized priority_wins:<agent> form. The agent part keeps its
case; only the strategy name is case-insensitive.
*/
func ParseStrategy(s string) (Strategy, error) {
	name, param, hasParam := strings.Cut(strings.TrimSpace(s), ":")
	name = strings.ReplaceAll(strings.ToLower(name), "-", "_")

	if !hasParam {
		switch name {
		case "latest_wins":
			return Strategy{Kind: LatestWins}, nil
		case "intelligent_merge":
			return Strategy{Kind: IntelligentMerge}, nil
		case "merge_with_conflict_resolution":
			return Strategy{Kind: MergeWithConflictResolution}, nil
		}
	} else if name == "priority_wins" {
		agent := strings.TrimSpace(param)
		if agent == "" {
			return Strategy{}, errors.ErrValidation.WithMessagef(
				"priority agent required for priority_wins strategy",
			)
		}
		return Strategy{Kind: PriorityWins, PriorityAgent: agent}, nil
	}

	return Strategy{}, errors.ErrValidation.WithMessagef(
		"unknown merge strategy %q, valid options: latest_wins, intelligent_merge, merge_with_conflict_resolution, priority_wins:<agent>",
		s,
	)
}

func (strategy Strategy) String() string {
	if strategy.Kind == PriorityWins {
		return string(PriorityWins) + ":" + strategy.PriorityAgent
	}
	return string(strategy.Kind)
}

func (strategy Strategy) Validate() error {
	switch strategy.Kind {
	case LatestWins, IntelligentMerge, MergeWithConflictResolution:
		return nil
	case PriorityWins:
		if strategy.PriorityAgent == "" {
			return errors.ErrValidation.WithMessagef(
				"priority agent required for priority_wins strategy",
			)
		}
		return nil
	}

	return errors.ErrValidation.WithMessagef("unknown merge strategy %q", strategy.Kind)
}
