package gitrefs

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/theapemachine/engram/pkg/entity"
	"github.com/theapemachine/engram/pkg/errors"
	"github.com/theapemachine/engram/pkg/graph"
	"github.com/theapemachine/engram/pkg/query"
	"github.com/theapemachine/engram/pkg/stores"
)

// DefaultNamespace is the ref prefix entities live under, which keeps them
// invisible to branch tooling while still replicating with the repository.
const DefaultNamespace = "refs/engram"

/*
Store keeps entities as git blobs with one mutable ref per record, named
<namespace>/<entity_type>/<id>. The blob is the current value; every value
ever written stays in the object database, so history is free and identical
payloads deduplicate. All repository access serializes through one mutex;
the relationship index carries its own lock and is always taken second.
*/
type Store struct {
	mutex     sync.Mutex
	repo      *git.Repository
	namespace string
	agent     string
	index     *graph.Index
	lastSync  *time.Time
}

// Option adjusts a Store before it touches the repository.
type Option func(*Store)

// WithNamespace overrides the ref prefix, e.g. to run several logical
// databases inside one repository.
func WithNamespace(namespace string) Option {
	return func(store *Store) {
		store.namespace = strings.TrimSuffix(namespace, "/")
	}
}

// New wraps an already-opened repository. The index starts cold; call
// RebuildRelationshipIndex or use Open, which warms it.
func New(repo *git.Repository, agent string, options ...Option) *Store {
	store := &Store{
		repo:      repo,
		namespace: DefaultNamespace,
		agent:     agent,
		index:     graph.NewIndex(),
	}

	for i := 0; i < len(options); i++ {
		options[i](store)
	}

	return store
}

/*
Open opens the repository at basePath, initializing a fresh one (with main
as the default branch) when none exists, and rebuilds the relationship
index from stored edges. Options apply before the rebuild, so a custom
namespace is scanned, not the default one.
*/
func Open(basePath, agent string, options ...Option) (*Store, error) {
	repo, err := git.PlainOpen(basePath)

	if err == git.ErrRepositoryNotExists {
		repo, err = git.PlainInit(basePath, false)
		if err == nil {
			err = repo.Storer.SetReference(plumbing.NewSymbolicReference(
				plumbing.HEAD, plumbing.NewBranchReferenceName("main"),
			))
		}
	}

	if err != nil {
		return nil, errors.ErrRepositoryNotFound.WithMessagef(
			"failed to open repository at %s: %v", basePath, err,
		)
	}

	store := New(repo, agent, options...)

	if err := store.RebuildRelationshipIndex(context.Background()); err != nil {
		log.Warn("relationship index rebuild failed on open", "error", err)
	}

	return store, nil
}

func (store *Store) refName(entityType, id string) plumbing.ReferenceName {
	return plumbing.ReferenceName(store.namespace + "/" + entityType + "/" + id)
}

func (store *Store) typePrefix(entityType string) string {
	return store.namespace + "/" + entityType + "/"
}

// Store serializes the envelope to a blob and repoints the entity's ref at
// it. Overwrite is the update path. Relationship envelopes patch the graph
// index in the same call.
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

	data, err := json.MarshalIndent(e, "", "  ")
	if err != nil {
		return errors.ErrSerialization.WithMessagef(
			"failed to serialize %s %s: %v", e.EntityType, e.ID, err,
		)
	}

	store.mutex.Lock()
	err = func() error {
		hash, err := store.writeBlobLocked(data)
		if err != nil {
			return err
		}
		return store.moveRefLocked(store.refName(e.EntityType, e.ID), hash)
	}()
	store.mutex.Unlock()

	if err != nil {
		return err
	}

	if rel != nil {
		store.index.Add(rel)
	}

	return nil
}

// Get resolves the entity's ref and decodes the blob behind it. A missing
// ref returns nil without error.
func (store *Store) Get(ctx context.Context, id, entityType string) (*entity.GenericEntity, error) {
	store.mutex.Lock()
	defer store.mutex.Unlock()

	return store.getLocked(id, entityType)
}

func (store *Store) getLocked(id, entityType string) (*entity.GenericEntity, error) {
	ref, err := store.repo.Reference(store.refName(entityType, id), false)

	if err == plumbing.ErrReferenceNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, errors.ErrGitOperation.WithMessagef(
			"failed to resolve ref for %s %s: %v", entityType, id, err,
		)
	}

	data, err := store.readBlobLocked(ref.Hash())
	if err != nil {
		return nil, err
	}

	e := &entity.GenericEntity{}
	if err := json.Unmarshal(data, e); err != nil {
		return nil, errors.ErrDeserialization.WithMessagef(
			"failed to decode %s %s: %v", entityType, id, err,
		)
	}

	return e, nil
}

// Delete removes the entity's ref. The blob stays in the object database.
func (store *Store) Delete(ctx context.Context, id, entityType string) error {
	store.mutex.Lock()
	defer store.mutex.Unlock()

	name := store.refName(entityType, id)

	if _, err := store.repo.Reference(name, false); err != nil {
		if err == plumbing.ErrReferenceNotFound {
			return errors.ErrEntityNotFound.WithMessagef(
				"entity %s of type %s not found", id, entityType,
			)
		}
		return errors.ErrGitOperation.WithMessagef(
			"failed to resolve ref for %s %s: %v", entityType, id, err,
		)
	}

	if entityType == entity.TypeRelationship {
		store.index.Remove(id)
	}

	if err := store.repo.Storer.RemoveReference(name); err != nil {
		return errors.ErrGitOperation.WithMessagef(
			"failed to delete ref for %s %s: %v", entityType, id, err,
		)
	}

	return nil
}

// ListIDs enumerates the refs under the type's namespace prefix. The ref
// listing is the only index the store keeps.
func (store *Store) ListIDs(ctx context.Context, entityType string) ([]string, error) {
	store.mutex.Lock()
	defer store.mutex.Unlock()

	return store.listIDsLocked(entityType)
}

func (store *Store) listIDsLocked(entityType string) ([]string, error) {
	iter, err := store.repo.References()
	if err != nil {
		return nil, errors.ErrGitOperation.WithMessagef("failed to list references: %v", err)
	}

	prefix := store.typePrefix(entityType)
	ids := make([]string, 0)

	err = iter.ForEach(func(ref *plumbing.Reference) error {
		name := ref.Name().String()
		if strings.HasPrefix(name, prefix) {
			ids = append(ids, strings.TrimPrefix(name, prefix))
		}
		return nil
	})
	if err != nil {
		return nil, errors.ErrGitOperation.WithMessagef("failed to iterate references: %v", err)
	}

	sort.Strings(ids)
	return ids, nil
}

// GetAll resolves every id of a type. Records that fail to decode are
// skipped with a warning so one corrupt blob cannot hide the rest.
func (store *Store) GetAll(ctx context.Context, entityType string) ([]*entity.GenericEntity, error) {
	store.mutex.Lock()
	defer store.mutex.Unlock()

	return store.getAllLocked(entityType)
}

func (store *Store) getAllLocked(entityType string) ([]*entity.GenericEntity, error) {
	ids, err := store.listIDsLocked(entityType)
	if err != nil {
		return nil, err
	}

	out := make([]*entity.GenericEntity, 0, len(ids))

	for _, id := range ids {
		e, err := store.getLocked(id, entityType)
		if err != nil {
			log.Warn("skipping unreadable entity", "type", entityType, "id", id, "error", err)
			continue
		}
		if e != nil {
			out = append(out, e)
		}
	}

	return out, nil
}

func (store *Store) BulkStore(ctx context.Context, entities []*entity.GenericEntity) (int, error) {
	for i, e := range entities {
		if err := store.Store(ctx, e); err != nil {
			return i, err
		}
	}
	return len(entities), nil
}

// Query concatenates full scans of the requested types (every known type
// when unspecified) and runs them through the query engine.
func (store *Store) Query(ctx context.Context, filter *query.Filter) (*query.Result, error) {
	entityTypes := entity.KnownTypes()
	if filter != nil && len(filter.EntityTypes) > 0 {
		entityTypes = filter.EntityTypes
	}

	store.mutex.Lock()
	snapshot := make([]*entity.GenericEntity, 0)
	for _, entityType := range entityTypes {
		batch, err := store.getAllLocked(entityType)
		if err != nil {
			store.mutex.Unlock()
			return nil, err
		}
		snapshot = append(snapshot, batch...)
	}
	store.mutex.Unlock()

	return query.Apply(snapshot, filter), nil
}

func (store *Store) QueryByAgent(ctx context.Context, agent, entityType string) ([]*entity.GenericEntity, error) {
	filter := &query.Filter{Agent: agent, Limit: -1, SortOrder: query.OrderAsc}
	if entityType != "" {
		filter.EntityTypes = []string{entityType}
	}

	result, err := store.Query(ctx, filter)
	if err != nil {
		return nil, err
	}

	return result.Entities, nil
}

func (store *Store) QueryByType(ctx context.Context, entityType string) ([]*entity.GenericEntity, error) {
	return store.GetAll(ctx, entityType)
}

func (store *Store) QueryByTimeRange(ctx context.Context, start, end time.Time) ([]*entity.GenericEntity, error) {
	result, err := store.Query(ctx, &query.Filter{
		TimeRange: &query.TimeRange{Start: start, End: end},
		Limit:     -1,
		SortOrder: query.OrderAsc,
	})
	if err != nil {
		return nil, err
	}

	return result.Entities, nil
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
	if entityType != "" {
		ids, err := store.ListIDs(ctx, entityType)
		if err != nil {
			return 0, err
		}
		return len(ids), nil
	}

	total := 0
	for _, entityType := range entity.KnownTypes() {
		ids, err := store.ListIDs(ctx, entityType)
		if err != nil {
			return 0, err
		}
		total += len(ids)
	}

	return total, nil
}

func (store *Store) Stats(ctx context.Context) (*stores.Stats, error) {
	stats := &stores.Stats{
		EntitiesByType:  make(map[string]int),
		EntitiesByAgent: make(map[string]int),
	}

	store.mutex.Lock()
	defer store.mutex.Unlock()

	for _, entityType := range entity.KnownTypes() {
		batch, err := store.getAllLocked(entityType)
		if err != nil {
			return nil, err
		}

		for _, e := range batch {
			stats.TotalEntities++
			stats.EntitiesByType[e.EntityType]++
			stats.EntitiesByAgent[e.Agent]++
			stats.TotalSizeBytes += int64(len(e.Data))
		}
	}

	stats.LastSync = store.lastSync
	return stats, nil
}

/*
Synchronize writes a journal commit: an empty tree whose parent is the
current branch head, authored by the current agent, advancing the branch.
Entity refs never move here; the commit log only records that a sync pass
happened and when.
*/
func (store *Store) Synchronize(ctx context.Context) error {
	store.mutex.Lock()
	defer store.mutex.Unlock()

	branchRef := plumbing.NewBranchReferenceName(store.currentBranchLocked())

	var parents []plumbing.Hash
	if head, err := store.repo.Reference(branchRef, false); err == nil {
		parents = append(parents, head.Hash())
	}

	treeObj := store.repo.Storer.NewEncodedObject()
	if err := (&object.Tree{}).Encode(treeObj); err != nil {
		return errors.ErrGitOperation.WithMessagef("failed to encode tree: %v", err)
	}
	treeHash, err := store.repo.Storer.SetEncodedObject(treeObj)
	if err != nil {
		return errors.ErrGitOperation.WithMessagef("failed to write tree: %v", err)
	}

	signature := object.Signature{
		Name:  store.agent,
		Email: store.agent + "@engram.local",
		When:  time.Now().UTC(),
	}

	commit := &object.Commit{
		Author:       signature,
		Committer:    signature,
		Message:      fmt.Sprintf("Synchronize entities for %s", store.agent),
		TreeHash:     treeHash,
		ParentHashes: parents,
	}

	commitObj := store.repo.Storer.NewEncodedObject()
	if err := commit.Encode(commitObj); err != nil {
		return errors.ErrGitOperation.WithMessagef("failed to encode commit: %v", err)
	}
	commitHash, err := store.repo.Storer.SetEncodedObject(commitObj)
	if err != nil {
		return errors.ErrGitOperation.WithMessagef("failed to write commit: %v", err)
	}

	if err := store.moveRefLocked(branchRef, commitHash); err != nil {
		return err
	}

	now := time.Now().UTC()
	store.lastSync = &now

	return nil
}

func (store *Store) CurrentBranch(ctx context.Context) (string, error) {
	store.mutex.Lock()
	defer store.mutex.Unlock()

	return store.currentBranchLocked(), nil
}

func (store *Store) currentBranchLocked() string {
	head, err := store.repo.Storer.Reference(plumbing.HEAD)
	if err != nil || head.Type() != plumbing.SymbolicReference {
		return "main"
	}

	return head.Target().Short()
}

// CreateBranch points a new branch at the current branch head. The current
// branch must have at least one journal commit to branch from.
func (store *Store) CreateBranch(ctx context.Context, name string) error {
	store.mutex.Lock()
	defer store.mutex.Unlock()

	branchRef := plumbing.NewBranchReferenceName(name)

	if _, err := store.repo.Reference(branchRef, false); err == nil {
		return errors.ErrValidation.WithMessagef("branch %s already exists", name)
	}

	currentRef := plumbing.NewBranchReferenceName(store.currentBranchLocked())
	head, err := store.repo.Reference(currentRef, false)
	if err != nil {
		return errors.ErrGitOperation.WithMessagef(
			"cannot branch from %s: no commits yet", currentRef.Short(),
		)
	}

	if err := store.repo.Storer.SetReference(plumbing.NewHashReference(branchRef, head.Hash())); err != nil {
		return errors.ErrGitOperation.WithMessagef("failed to create branch %s: %v", name, err)
	}

	return nil
}

func (store *Store) SwitchBranch(ctx context.Context, name string) error {
	store.mutex.Lock()
	defer store.mutex.Unlock()

	branchRef := plumbing.NewBranchReferenceName(name)

	if _, err := store.repo.Reference(branchRef, false); err != nil {
		return errors.ErrNotFound.WithMessagef("branch %s not found", name)
	}

	err := store.repo.Storer.SetReference(plumbing.NewSymbolicReference(plumbing.HEAD, branchRef))
	if err != nil {
		return errors.ErrGitOperation.WithMessagef("failed to switch to branch %s: %v", name, err)
	}

	return nil
}

// History walks the current branch's commit log, newest first, following
// first parents. A non-positive limit returns everything.
func (store *Store) History(ctx context.Context, limit int) ([]stores.Commit, error) {
	store.mutex.Lock()
	defer store.mutex.Unlock()

	branchRef := plumbing.NewBranchReferenceName(store.currentBranchLocked())

	head, err := store.repo.Reference(branchRef, false)
	if err != nil {
		return []stores.Commit{}, nil
	}

	commits := make([]stores.Commit, 0)

	for hash := head.Hash(); !hash.IsZero(); {
		if limit > 0 && len(commits) >= limit {
			break
		}

		commit, err := store.repo.CommitObject(hash)
		if err != nil {
			return nil, errors.ErrGitOperation.WithMessagef(
				"failed to read commit %s: %v", hash, err,
			)
		}

		parents := make([]string, 0, len(commit.ParentHashes))
		for _, parent := range commit.ParentHashes {
			parents = append(parents, parent.String())
		}

		commits = append(commits, stores.Commit{
			ID:        hash.String(),
			Author:    commit.Author.Name,
			Message:   strings.TrimSpace(commit.Message),
			Timestamp: commit.Author.When.UTC(),
			Parents:   parents,
		})

		if len(commit.ParentHashes) == 0 {
			break
		}
		hash = commit.ParentHashes[0]
	}

	return commits, nil
}

func (store *Store) Agent() string {
	store.mutex.Lock()
	defer store.mutex.Unlock()

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

func (store *Store) writeBlobLocked(data []byte) (plumbing.Hash, error) {
	obj := store.repo.Storer.NewEncodedObject()
	obj.SetType(plumbing.BlobObject)

	writer, err := obj.Writer()
	if err != nil {
		return plumbing.ZeroHash, errors.ErrGitOperation.WithMessagef(
			"failed to open blob writer: %v", err,
		)
	}

	if _, err := writer.Write(data); err != nil {
		writer.Close()
		return plumbing.ZeroHash, errors.ErrGitOperation.WithMessagef(
			"failed to write blob: %v", err,
		)
	}

	if err := writer.Close(); err != nil {
		return plumbing.ZeroHash, errors.ErrGitOperation.WithMessagef(
			"failed to finalize blob: %v", err,
		)
	}

	hash, err := store.repo.Storer.SetEncodedObject(obj)
	if err != nil {
		return plumbing.ZeroHash, errors.ErrGitOperation.WithMessagef(
			"failed to store blob: %v", err,
		)
	}

	return hash, nil
}

func (store *Store) readBlobLocked(hash plumbing.Hash) ([]byte, error) {
	blob, err := store.repo.BlobObject(hash)
	if err != nil {
		// A resolvable ref pointing at a missing blob means the ref layer
		// is out of step with the object database.
		return nil, errors.ErrInvalidState.WithMessagef(
			"ref points at missing blob %s: %v", hash, err,
		).WithData(hash.String())
	}

	reader, err := blob.Reader()
	if err != nil {
		return nil, errors.ErrGitOperation.WithMessagef(
			"failed to open blob %s: %v", hash, err,
		)
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, errors.ErrGitOperation.WithMessagef(
			"failed to read blob %s: %v", hash, err,
		)
	}

	return data, nil
}

/*
moveRefLocked repoints a ref with a compare-and-set against the value read
at the top of the attempt, retrying with backoff when another writer races
us. The last writer wins either way; the retry only keeps the store from
failing spuriously mid-race.
*/
func (store *Store) moveRefLocked(name plumbing.ReferenceName, hash plumbing.Hash) error {
	return errors.RetryWithBackoff(errors.DefaultRetryConfig(), func() error {
		old, err := store.repo.Reference(name, false)
		if err != nil && err != plumbing.ErrReferenceNotFound {
			return errors.ErrGitOperation.WithMessagef(
				"failed to read ref %s: %v", name, err,
			)
		}
		if err == plumbing.ErrReferenceNotFound {
			old = nil
		}

		updated := plumbing.NewHashReference(name, hash)
		if err := store.repo.Storer.CheckAndSetReference(updated, old); err != nil {
			return errors.ErrGitOperation.WithMessagef(
				"failed to move ref %s: %v", name, err,
			)
		}

		return nil
	})
}
