package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/theapemachine/engram/pkg/entity"
	"github.com/theapemachine/engram/pkg/errors"
	"github.com/theapemachine/engram/pkg/graph"
	"github.com/theapemachine/engram/pkg/query"
	"github.com/theapemachine/engram/pkg/stores"
)

/*
Store is the map-backed backend, used for tests, dry runs and ephemeral
agent sessions. It keeps the same journal and relationship index semantics
as the git backend so callers can swap one for the other. Branch operations
accept silently; the only branch is "main".
*/
type Store struct {
	mutex    sync.RWMutex
	entities map[string]*entity.GenericEntity
	index    *graph.Index
	agent    string
	journal  []stores.Commit
	lastSync *time.Time
}

func NewStore(agent string) *Store {
	return &Store{
		entities: make(map[string]*entity.GenericEntity),
		index:    graph.NewIndex(),
		agent:    agent,
	}
}

func key(entityType, id string) string {
	return entityType + "/" + id
}

// Store writes create-or-replace; overwrite is the update path. Storing a
// relationship envelope patches the graph index in the same call.
func (store *Store) Store(ctx context.Context, e *entity.GenericEntity) error {
	if err := e.Validate(); err != nil {
		return err
	}

	var rel *entity.Relationship
	if e.EntityType == entity.TypeRelationship {
		rel = &entity.Relationship{}
		if err := e.DecodeData(rel); err != nil {
			return err
		}
	}

	store.mutex.Lock()
	store.entities[key(e.EntityType, e.ID)] = e.Clone()
	store.journalLocked("Store " + e.EntityType + " " + e.ID)
	store.mutex.Unlock()

	if rel != nil {
		store.index.Add(rel)
	}

	return nil
}

// Get returns nil without error when the id is absent.
func (store *Store) Get(ctx context.Context, id, entityType string) (*entity.GenericEntity, error) {
	store.mutex.RLock()
	defer store.mutex.RUnlock()

	e, ok := store.entities[key(entityType, id)]
	if !ok {
		return nil, nil
	}

	return e.Clone(), nil
}

func (store *Store) Delete(ctx context.Context, id, entityType string) error {
	store.mutex.Lock()
	defer store.mutex.Unlock()

	if _, ok := store.entities[key(entityType, id)]; !ok {
		return errors.ErrEntityNotFound.WithMessagef(
			"entity %s of type %s not found", id, entityType,
		)
	}

	if entityType == entity.TypeRelationship {
		store.index.Remove(id)
	}

	delete(store.entities, key(entityType, id))
	store.journalLocked("Delete " + entityType + " " + id)

	return nil
}

func (store *Store) ListIDs(ctx context.Context, entityType string) ([]string, error) {
	store.mutex.RLock()
	defer store.mutex.RUnlock()

	ids := make([]string, 0)
	for _, e := range store.entities {
		if e.EntityType == entityType {
			ids = append(ids, e.ID)
		}
	}

	sort.Strings(ids)
	return ids, nil
}

func (store *Store) GetAll(ctx context.Context, entityType string) ([]*entity.GenericEntity, error) {
	store.mutex.RLock()
	defer store.mutex.RUnlock()

	return store.scanLocked(func(e *entity.GenericEntity) bool {
		return e.EntityType == entityType
	}), nil
}

func (store *Store) BulkStore(ctx context.Context, entities []*entity.GenericEntity) (int, error) {
	for i, e := range entities {
		if err := store.Store(ctx, e); err != nil {
			return i, err
		}
	}
	return len(entities), nil
}

func (store *Store) Query(ctx context.Context, filter *query.Filter) (*query.Result, error) {
	store.mutex.RLock()
	snapshot := store.scanLocked(nil)
	store.mutex.RUnlock()

	return query.Apply(snapshot, filter), nil
}

func (store *Store) QueryByAgent(ctx context.Context, agent, entityType string) ([]*entity.GenericEntity, error) {
	store.mutex.RLock()
	defer store.mutex.RUnlock()

	return store.scanLocked(func(e *entity.GenericEntity) bool {
		if e.Agent != agent {
			return false
		}
		return entityType == "" || e.EntityType == entityType
	}), nil
}

func (store *Store) QueryByType(ctx context.Context, entityType string) ([]*entity.GenericEntity, error) {
	return store.GetAll(ctx, entityType)
}

func (store *Store) QueryByTimeRange(ctx context.Context, start, end time.Time) ([]*entity.GenericEntity, error) {
	store.mutex.RLock()
	defer store.mutex.RUnlock()

	return store.scanLocked(func(e *entity.GenericEntity) bool {
		return !e.Timestamp.Before(start) && !e.Timestamp.After(end)
	}), nil
}

func (store *Store) TextSearch(ctx context.Context, text string, entityTypes []string, limit int) ([]*entity.GenericEntity, error) {
	if limit <= 0 {
		limit = -1
	}

	result, err := store.Query(ctx, &query.Filter{
		EntityTypes: entityTypes,
		TextSearch:  text,
		Limit:       limit,
	})
	if err != nil {
		return nil, err
	}

	return result.Entities, nil
}

func (store *Store) Count(ctx context.Context, entityType string) (int, error) {
	store.mutex.RLock()
	defer store.mutex.RUnlock()

	count := 0
	for _, e := range store.entities {
		if entityType == "" || e.EntityType == entityType {
			count++
		}
	}

	return count, nil
}

func (store *Store) Stats(ctx context.Context) (*stores.Stats, error) {
	store.mutex.RLock()
	defer store.mutex.RUnlock()

	stats := &stores.Stats{
		EntitiesByType:  make(map[string]int),
		EntitiesByAgent: make(map[string]int),
		LastSync:        store.lastSync,
	}

	for _, e := range store.entities {
		stats.TotalEntities++
		stats.EntitiesByType[e.EntityType]++
		stats.EntitiesByAgent[e.Agent]++
		stats.TotalSizeBytes += int64(len(e.Data))
	}

	return stats, nil
}

// Synchronize has nothing to flush; it only marks the sync time.
func (store *Store) Synchronize(ctx context.Context) error {
	store.mutex.Lock()
	defer store.mutex.Unlock()

	now := time.Now().UTC()
	store.lastSync = &now

	return nil
}

func (store *Store) CurrentBranch(ctx context.Context) (string, error) {
	return "main", nil
}

func (store *Store) CreateBranch(ctx context.Context, name string) error {
	return nil
}

func (store *Store) SwitchBranch(ctx context.Context, name string) error {
	return nil
}

// History returns journal records newest first. A non-positive limit means
// everything.
func (store *Store) History(ctx context.Context, limit int) ([]stores.Commit, error) {
	store.mutex.RLock()
	defer store.mutex.RUnlock()

	commits := make([]stores.Commit, 0, len(store.journal))
	for i := len(store.journal) - 1; i >= 0; i-- {
		if limit > 0 && len(commits) >= limit {
			break
		}
		commits = append(commits, store.journal[i])
	}

	return commits, nil
}

func (store *Store) Agent() string {
	store.mutex.RLock()
	defer store.mutex.RUnlock()

	return store.agent
}

func (store *Store) SetAgent(agent string) {
	store.mutex.Lock()
	defer store.mutex.Unlock()

	store.agent = agent
}

func (store *Store) Close() error {
	return nil
}

// scanLocked snapshots matching entities ordered by type then id, so query
// results stay stable across calls.
func (store *Store) scanLocked(match func(*entity.GenericEntity) bool) []*entity.GenericEntity {
	keys := make([]string, 0, len(store.entities))
	for k, e := range store.entities {
		if match == nil || match(e) {
			keys = append(keys, k)
		}
	}

	sort.Strings(keys)

	out := make([]*entity.GenericEntity, 0, len(keys))
	for _, k := range keys {
		out = append(out, store.entities[k].Clone())
	}

	return out
}

func (store *Store) journalLocked(message string) {
	commit := stores.Commit{
		ID:        "commit-" + uuid.New().String(),
		Author:    store.agent,
		Message:   message,
		Timestamp: time.Now().UTC(),
	}

	if len(store.journal) > 0 {
		commit.Parents = []string{store.journal[len(store.journal)-1].ID}
	}

	store.journal = append(store.journal, commit)
}
