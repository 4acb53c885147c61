package gitrefs

import (
	"context"

	"github.com/charmbracelet/log"
	"github.com/theapemachine/engram/pkg/entity"
	"github.com/theapemachine/engram/pkg/graph"
)

// Relationships exposes the in-memory graph index layered over the refs.
func (store *Store) Relationships() *graph.Index {
	return store.index
}

// StoreRelationship validates the edge against the current graph, stamps
// it, and persists it as a regular relationship entity.
func (store *Store) StoreRelationship(ctx context.Context, rel *entity.Relationship) error {
	if err := store.index.ValidateConstraints(rel); err != nil {
		return err
	}

	rel.Touch()

	generic, err := entity.ToGeneric(rel)
	if err != nil {
		return err
	}

	return store.Store(ctx, generic)
}

func (store *Store) GetRelationship(ctx context.Context, id string) (*entity.Relationship, error) {
	generic, err := store.Get(ctx, id, entity.TypeRelationship)
	if err != nil || generic == nil {
		return nil, err
	}

	rel := &entity.Relationship{}
	if err := generic.DecodeData(rel); err != nil {
		return nil, err
	}

	return rel, nil
}

func (store *Store) QueryRelationships(ctx context.Context, filter *entity.RelationshipFilter) ([]*entity.Relationship, error) {
	return store.index.Query(filter), nil
}

func (store *Store) DeleteRelationship(ctx context.Context, id string) error {
	return store.Delete(ctx, id, entity.TypeRelationship)
}

/*
RebuildRelationshipIndex rescans every relationship ref and reconstructs
the index from scratch. Open runs this once so a fresh process sees the
graph a previous one persisted; it is also the recovery path when the
index is suspected stale.
*/
func (store *Store) RebuildRelationshipIndex(ctx context.Context) error {
	generics, err := store.GetAll(ctx, entity.TypeRelationship)
	if err != nil {
		return err
	}

	rels := make([]*entity.Relationship, 0, len(generics))

	for _, generic := range generics {
		rel := &entity.Relationship{}
		if err := generic.DecodeData(rel); err != nil {
			log.Warn("skipping unreadable relationship", "id", generic.ID, "error", err)
			continue
		}
		rels = append(rels, rel)
	}

	store.index.Rebuild(rels)
	return nil
}

func (store *Store) FindPaths(ctx context.Context, sourceID, targetID string, algorithm graph.Algorithm, maxDepth int) ([]graph.Path, error) {
	return store.index.FindPaths(sourceID, targetID, algorithm, maxDepth), nil
}

func (store *Store) ConnectedEntities(ctx context.Context, entityID string, algorithm graph.Algorithm, maxDepth int) ([]string, error) {
	return store.index.Connected(entityID, algorithm, maxDepth), nil
}

func (store *Store) RelationshipStats(ctx context.Context) (*graph.Stats, error) {
	return store.index.Stats(), nil
}
