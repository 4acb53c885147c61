package graph

import (
	"sort"
	"sync"

	"github.com/theapemachine/engram/pkg/entity"
)

/*
Index is the in-memory adjacency view over stored relationships. It answers
graph-shaped questions without rescanning relationship objects, and carries
its own lock, independent from any store lock. Callers that hold a store
lock and need the index must acquire the store lock first.
*/
type Index struct {
	mutex         sync.RWMutex
	relationships map[string]*entity.Relationship
	outbound      map[string][]string
	inbound       map[string][]string
	byType        map[entity.RelationshipType][]string
	bidirectional map[string]struct{}
}

func NewIndex() *Index {
	return &Index{
		relationships: make(map[string]*entity.Relationship),
		outbound:      make(map[string][]string),
		inbound:       make(map[string][]string),
		byType:        make(map[entity.RelationshipType][]string),
		bidirectional: make(map[string]struct{}),
	}
}

// Add indexes a relationship. Adding an id that is already present replaces
// the previous edge, so updates never leave stale adjacency entries.
func (index *Index) Add(rel *entity.Relationship) {
	index.mutex.Lock()
	defer index.mutex.Unlock()

	if _, exists := index.relationships[rel.ID]; exists {
		index.removeLocked(rel.ID)
	}

	index.relationships[rel.ID] = rel
	index.outbound[rel.SourceID] = append(index.outbound[rel.SourceID], rel.ID)
	index.inbound[rel.TargetID] = append(index.inbound[rel.TargetID], rel.ID)
	index.byType[rel.RelationshipType] = append(index.byType[rel.RelationshipType], rel.ID)

	if rel.Direction == entity.Bidirectional {
		index.bidirectional[rel.ID] = struct{}{}
	}
}

// Remove drops a relationship from the index. It reports whether the id was
// present.
func (index *Index) Remove(id string) bool {
	index.mutex.Lock()
	defer index.mutex.Unlock()

	if _, exists := index.relationships[id]; !exists {
		return false
	}

	index.removeLocked(id)
	return true
}

func (index *Index) removeLocked(id string) {
	rel := index.relationships[id]

	index.outbound[rel.SourceID] = without(index.outbound[rel.SourceID], id)
	index.inbound[rel.TargetID] = without(index.inbound[rel.TargetID], id)
	index.byType[rel.RelationshipType] = without(index.byType[rel.RelationshipType], id)

	delete(index.bidirectional, id)
	delete(index.relationships, id)
}

func without(ids []string, id string) []string {
	out := ids[:0]
	for _, candidate := range ids {
		if candidate != id {
			out = append(out, candidate)
		}
	}
	return out
}

func (index *Index) Get(id string) (*entity.Relationship, bool) {
	index.mutex.RLock()
	defer index.mutex.RUnlock()

	rel, ok := index.relationships[id]
	return rel, ok
}

func (index *Index) Len() int {
	index.mutex.RLock()
	defer index.mutex.RUnlock()

	return len(index.relationships)
}

// Outbound returns the relationships whose source is entityID, in the order
// they were added.
func (index *Index) Outbound(entityID string) []*entity.Relationship {
	index.mutex.RLock()
	defer index.mutex.RUnlock()

	return index.resolveLocked(index.outbound[entityID])
}

// Inbound returns the relationships whose target is entityID.
func (index *Index) Inbound(entityID string) []*entity.Relationship {
	index.mutex.RLock()
	defer index.mutex.RUnlock()

	return index.resolveLocked(index.inbound[entityID])
}

// ForEntity returns every relationship touching entityID in either role,
// deduplicated and ordered by id.
func (index *Index) ForEntity(entityID string) []*entity.Relationship {
	index.mutex.RLock()
	defer index.mutex.RUnlock()

	seen := make(map[string]struct{})
	ids := make([]string, 0)

	for _, id := range index.outbound[entityID] {
		if _, ok := seen[id]; !ok {
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
	}
	for _, id := range index.inbound[entityID] {
		if _, ok := seen[id]; !ok {
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
	}

	sort.Strings(ids)
	return index.resolveLocked(ids)
}

func (index *Index) ByType(relType entity.RelationshipType) []*entity.Relationship {
	index.mutex.RLock()
	defer index.mutex.RUnlock()

	return index.resolveLocked(index.byType[relType])
}

func (index *Index) IsBidirectional(id string) bool {
	index.mutex.RLock()
	defer index.mutex.RUnlock()

	_, ok := index.bidirectional[id]
	return ok
}

func (index *Index) resolveLocked(ids []string) []*entity.Relationship {
	rels := make([]*entity.Relationship, 0, len(ids))
	for _, id := range ids {
		if rel, ok := index.relationships[id]; ok {
			rels = append(rels, rel)
		}
	}
	return rels
}

// Query returns relationships matching the filter, ordered by creation time
// then id so results are stable across calls.
func (index *Index) Query(filter *entity.RelationshipFilter) []*entity.Relationship {
	index.mutex.RLock()
	defer index.mutex.RUnlock()

	rels := make([]*entity.Relationship, 0)
	for _, rel := range index.relationships {
		if filter == nil || filter.Matches(rel) {
			rels = append(rels, rel)
		}
	}

	sort.Slice(rels, func(i, j int) bool {
		if rels[i].Created.Equal(rels[j].Created) {
			return rels[i].ID < rels[j].ID
		}
		return rels[i].Created.Before(rels[j].Created)
	})

	return rels
}

func (index *Index) Clear() {
	index.mutex.Lock()
	defer index.mutex.Unlock()

	index.relationships = make(map[string]*entity.Relationship)
	index.outbound = make(map[string][]string)
	index.inbound = make(map[string][]string)
	index.byType = make(map[entity.RelationshipType][]string)
	index.bidirectional = make(map[string]struct{})
}

/*
Rebuild replaces the index contents from a full scan of stored
relationships. Adjacency lists are sorted afterwards so the result is
identical regardless of scan order.
*/
func (index *Index) Rebuild(rels []*entity.Relationship) {
	index.mutex.Lock()
	defer index.mutex.Unlock()

	index.relationships = make(map[string]*entity.Relationship, len(rels))
	index.outbound = make(map[string][]string)
	index.inbound = make(map[string][]string)
	index.byType = make(map[entity.RelationshipType][]string)
	index.bidirectional = make(map[string]struct{})

	for _, rel := range rels {
		if _, exists := index.relationships[rel.ID]; exists {
			index.removeLocked(rel.ID)
		}

		index.relationships[rel.ID] = rel
		index.outbound[rel.SourceID] = append(index.outbound[rel.SourceID], rel.ID)
		index.inbound[rel.TargetID] = append(index.inbound[rel.TargetID], rel.ID)
		index.byType[rel.RelationshipType] = append(index.byType[rel.RelationshipType], rel.ID)

		if rel.Direction == entity.Bidirectional {
			index.bidirectional[rel.ID] = struct{}{}
		}
	}

	for _, ids := range index.outbound {
		sort.Strings(ids)
	}
	for _, ids := range index.inbound {
		sort.Strings(ids)
	}
	for _, ids := range index.byType {
		sort.Strings(ids)
	}
}

/*
Stats summarizes the shape of the relationship graph. Connection counts
treat every edge as touching both endpoints regardless of direction.
*/
type Stats struct {
	TotalRelationships  int                             `json:"total_relationships"`
	RelationshipsByType map[entity.RelationshipType]int `json:"relationships_by_type"`
	BidirectionalCount  int                             `json:"bidirectional_count"`
	AverageConnections  float64                         `json:"avg_connections_per_entity"`
	MostConnectedEntity string                          `json:"most_connected_entity,omitempty"`
	MostConnectedCount  int                             `json:"most_connected_count,omitempty"`
	Density             float64                         `json:"density"`
}

func (index *Index) Stats() *Stats {
	index.mutex.RLock()
	defer index.mutex.RUnlock()

	stats := &Stats{
		TotalRelationships:  len(index.relationships),
		RelationshipsByType: make(map[entity.RelationshipType]int),
		BidirectionalCount:  len(index.bidirectional),
	}

	connections := make(map[string]int)

	for _, rel := range index.relationships {
		stats.RelationshipsByType[rel.RelationshipType]++
		connections[rel.SourceID]++
		connections[rel.TargetID]++
	}

	entityCount := len(connections)

	if entityCount > 0 {
		total := 0
		for _, count := range connections {
			total += count
		}
		stats.AverageConnections = float64(total) / float64(entityCount)
	}

	for entityID, count := range connections {
		if count > stats.MostConnectedCount ||
			(count == stats.MostConnectedCount && entityID < stats.MostConnectedEntity) {
			stats.MostConnectedEntity = entityID
			stats.MostConnectedCount = count
		}
	}

	maxPossible := 1
	if entityCount > 1 {
		maxPossible = entityCount * (entityCount - 1)
	}
	stats.Density = float64(stats.TotalRelationships) / float64(maxPossible)

	return stats
}
