package sync

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/theapemachine/engram/pkg/entity"
	"github.com/theapemachine/engram/pkg/stores"
)

/*
Engine reconciles entities written independently by multiple agents into
one record per id. It depends only on the storage contract, so any backend
(or a test double) can sit underneath.
*/
type Engine struct {
	storage stores.Storage
	types   []string
}

// NewEngine builds an engine that walks the default pipeline order.
func NewEngine(storage stores.Storage) *Engine {
	return &Engine{
		storage: storage,
		types:   entity.PipelineOrder,
	}
}

// WithTypes overrides the pipeline, e.g. to sync a single entity type.
func (engine *Engine) WithTypes(types ...string) *Engine {
	engine.types = types
	return engine
}

/*
Result summarizes one sync pass.
*/
type Result struct {
	EntitiesSynced int        `json:"entities_synced"`
	MergedEntities int        `json:"merged_entities"`
	Conflicts      []Conflict `json:"conflicts_resolved"`
	Errors         []string   `json:"errors"`
	Timestamp      time.Time  `json:"timestamp"`
	SyncedAgents   []string   `json:"synced_agents"`
	DurationMS     int64      `json:"duration_ms"`
}

/*
Sync pulls every agent's records type by type in pipeline order, merges
them with the strategy, and writes the reconciled records back. A failure
on one entity type is recorded in the result and the pipeline moves on;
nothing rolls back. Dry runs compute the full merge and write nothing.
Fewer than two agents is a trivial success.
*/
func (engine *Engine) Sync(ctx context.Context, agents []string, strategy Strategy, dryRun bool) (*Result, error) {
	start := time.Now()

	result := &Result{
		Conflicts:    make([]Conflict, 0),
		Errors:       make([]string, 0),
		Timestamp:    start.UTC(),
		SyncedAgents: agents,
	}

	if err := strategy.Validate(); err != nil {
		return nil, err
	}

	if len(agents) < 2 {
		log.Info("nothing to synchronize", "agents", len(agents))
		return result, nil
	}

	log.Info("starting synchronization",
		"agents", agents, "strategy", strategy.String(), "dry_run", dryRun)

	for _, entityType := range engine.types {
		synced, merged, conflicts, err := engine.syncEntityType(ctx, entityType, agents, strategy, dryRun)
		if err != nil {
			log.Error("entity type sync failed", "type", entityType, "error", err)
			result.Errors = append(result.Errors, fmt.Sprintf("Failed to sync %s: %v", entityType, err))
			continue
		}

		result.EntitiesSynced += synced
		result.MergedEntities += merged
		result.Conflicts = append(result.Conflicts, conflicts...)

		if synced > 0 {
			log.Info("entity type synchronized",
				"type", entityType, "synced", synced, "merged", merged)
		}
	}

	if !dryRun && result.EntitiesSynced > 0 {
		if err := engine.storage.Synchronize(ctx); err != nil {
			return nil, err
		}
	}

	result.DurationMS = time.Since(start).Milliseconds()

	log.Info("synchronization complete",
		"synced", result.EntitiesSynced,
		"merged", result.MergedEntities,
		"conflicts", len(result.Conflicts),
		"errors", len(result.Errors),
		"duration", time.Since(start))

	return result, nil
}

func (engine *Engine) syncEntityType(
	ctx context.Context, entityType string, agents []string, strategy Strategy, dryRun bool,
) (int, int, []Conflict, error) {
	all := make([]*entity.GenericEntity, 0)

	for _, agent := range agents {
		records, err := engine.storage.QueryByAgent(ctx, agent, entityType)
		if err != nil {
			return 0, 0, nil, err
		}
		all = append(all, records...)
	}

	if len(all) == 0 {
		return 0, 0, nil, nil
	}

	before := len(all)

	merged, conflicts, err := Merge(all, strategy)
	if err != nil {
		return 0, 0, nil, err
	}

	if !dryRun {
		for _, e := range merged {
			if err := engine.storage.Store(ctx, e); err != nil {
				return 0, 0, nil, err
			}
		}
	}

	return len(merged), before - len(merged), conflicts, nil
}
