package stores

import (
	"context"
	"time"

	"github.com/theapemachine/engram/pkg/entity"
	"github.com/theapemachine/engram/pkg/graph"
	"github.com/theapemachine/engram/pkg/query"
)

/*
Storage is the contract every entity backend satisfies. Operations are
synchronous and serialize through the backend's own lock; callers needing
concurrency run the store behind their own goroutine boundary. Get returns
nil without error when the id is absent, since callers decide whether
absence is exceptional. Delete on a missing id is ErrEntityNotFound in
every backend.
*/
type Storage interface {
	Store(ctx context.Context, e *entity.GenericEntity) error
	Get(ctx context.Context, id, entityType string) (*entity.GenericEntity, error)
	Delete(ctx context.Context, id, entityType string) error
	ListIDs(ctx context.Context, entityType string) ([]string, error)
	GetAll(ctx context.Context, entityType string) ([]*entity.GenericEntity, error)

	// BulkStore writes sequentially and returns how many entities landed
	// before the first failure; the batch is not atomic.
	BulkStore(ctx context.Context, entities []*entity.GenericEntity) (int, error)

	Query(ctx context.Context, filter *query.Filter) (*query.Result, error)
	QueryByAgent(ctx context.Context, agent, entityType string) ([]*entity.GenericEntity, error)
	QueryByType(ctx context.Context, entityType string) ([]*entity.GenericEntity, error)
	QueryByTimeRange(ctx context.Context, start, end time.Time) ([]*entity.GenericEntity, error)
	TextSearch(ctx context.Context, text string, entityTypes []string, limit int) ([]*entity.GenericEntity, error)
	Count(ctx context.Context, entityType string) (int, error)
	Stats(ctx context.Context) (*Stats, error)

	RelationshipStorage

	// Synchronize flushes pending state and records a journal commit.
	Synchronize(ctx context.Context) error
	CurrentBranch(ctx context.Context) (string, error)
	CreateBranch(ctx context.Context, name string) error
	SwitchBranch(ctx context.Context, name string) error
	History(ctx context.Context, limit int) ([]Commit, error)

	Agent() string
	SetAgent(agent string)
	Close() error
}

/*
RelationshipStorage covers the graph surface of a backend. Relationship
writes go through the entity envelope and keep the in-memory index in step;
the index lock is always taken after the store lock.
*/
type RelationshipStorage interface {
	Relationships() *graph.Index
	StoreRelationship(ctx context.Context, rel *entity.Relationship) error
	GetRelationship(ctx context.Context, id string) (*entity.Relationship, error)
	QueryRelationships(ctx context.Context, filter *entity.RelationshipFilter) ([]*entity.Relationship, error)
	DeleteRelationship(ctx context.Context, id string) error
	RebuildRelationshipIndex(ctx context.Context) error
	FindPaths(ctx context.Context, source, target string, algorithm graph.Algorithm, maxDepth int) ([]graph.Path, error)
	ConnectedEntities(ctx context.Context, id string, algorithm graph.Algorithm, maxDepth int) ([]string, error)
	RelationshipStats(ctx context.Context) (*graph.Stats, error)
}

// Stats describes what a backend currently holds.
type Stats struct {
	TotalEntities   int            `json:"total_entities"`
	EntitiesByType  map[string]int `json:"entities_by_type"`
	EntitiesByAgent map[string]int `json:"entities_by_agent"`
	TotalSizeBytes  int64          `json:"total_size_bytes"`
	LastSync        *time.Time     `json:"last_sync,omitempty"`
}

// Commit is one journal record: who changed what, and which records came
// before it.
type Commit struct {
	ID        string    `json:"id"`
	Author    string    `json:"author"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
	Parents   []string  `json:"parents"`
}
