package memstore

import (
	"context"

	"github.com/charmbracelet/log"
	"github.com/theapemachine/engram/pkg/entity"
	"github.com/theapemachine/engram/pkg/graph"
)

// Relationships exposes the graph index for read access.
func (store *Store) Relationships() *graph.Index {
	return store.index
}

/*
StoreRelationship validates constraints against the current graph, stamps
the edge, and persists it through the entity envelope. The index update
happens inside Store, so the edge is queryable the moment the write lands.
*/
func (store *Store) StoreRelationship(ctx context.Context, rel *entity.Relationship) error {
	if err := store.index.ValidateConstraints(rel); err != nil {
		return err
	}

	rel.Touch()

	e, err := entity.ToGeneric(rel)
	if err != nil {
		return err
	}

	return store.Store(ctx, e)
}

// GetRelationship returns nil without error when the id is absent.
func (store *Store) GetRelationship(ctx context.Context, id string) (*entity.Relationship, error) {
	e, err := store.Get(ctx, id, entity.TypeRelationship)
	if err != nil || e == nil {
		return nil, err
	}

	rel := &entity.Relationship{}
	if err := e.DecodeData(rel); err != nil {
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
RebuildRelationshipIndex rescans every stored relationship envelope and
replaces the index wholesale. Records that no longer decode are skipped
with a warning rather than failing the rebuild.
*/
func (store *Store) RebuildRelationshipIndex(ctx context.Context) error {
	envelopes, err := store.GetAll(ctx, entity.TypeRelationship)
	if err != nil {
		return err
	}

	rels := make([]*entity.Relationship, 0, len(envelopes))

	for _, e := range envelopes {
		rel := &entity.Relationship{}
		if err := e.DecodeData(rel); err != nil {
			log.Warn("skipping unreadable relationship", "id", e.ID, "error", err)
			continue
		}
		rels = append(rels, rel)
	}

	store.index.Rebuild(rels)
	return nil
}

func (store *Store) FindPaths(ctx context.Context, source, target string, algorithm graph.Algorithm, maxDepth int) ([]graph.Path, error) {
	return store.index.FindPaths(source, target, algorithm, maxDepth), nil
}

func (store *Store) ConnectedEntities(ctx context.Context, id string, algorithm graph.Algorithm, maxDepth int) ([]string, error) {
	return store.index.Connected(id, algorithm, maxDepth), nil
}

func (store *Store) RelationshipStats(ctx context.Context) (*graph.Stats, error) {
	return store.index.Stats(), nil
}
