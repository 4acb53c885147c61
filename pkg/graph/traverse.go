package graph

import (
	"container/heap"
	"sort"

	"github.com/theapemachine/engram/pkg/entity"
	"github.com/theapemachine/engram/pkg/errors"
)

// Algorithm selects the traversal strategy for path finding.
type Algorithm string

const (
	BreadthFirst Algorithm = "breadth_first"
	DepthFirst   Algorithm = "depth_first"
	Dijkstra     Algorithm = "dijkstra"
)

// ParseAlgorithm maps user-facing names onto an Algorithm.
func ParseAlgorithm(name string) (Algorithm, error) {
	switch name {
	case "breadth_first", "bfs", "":
		return BreadthFirst, nil
	case "depth_first", "dfs":
		return DepthFirst, nil
	case "dijkstra", "weighted":
		return Dijkstra, nil
	}

	return "", errors.ErrValidation.WithMessagef("unknown traversal algorithm: %s", name)
}

/*
Path is one route through the graph. Entities holds the node ids from source
to target inclusive, Relationships the edge ids walked between them. For
breadth-first and depth-first results TotalWeight is the hop count; for
Dijkstra it is the summed edge cost, where each edge costs the inverse of
its strength weight so stronger links are cheaper.
*/
type Path struct {
	Entities      []string `json:"entities"`
	Relationships []string `json:"relationships"`
	TotalWeight   float64  `json:"total_weight"`
}

// hop is one legal move out of a node: active edge, direction respected.
type hop struct {
	next string
	rel  *entity.Relationship
}

func (index *Index) hopsFromLocked(entityID string) []hop {
	hops := make([]hop, 0)

	for _, id := range index.outbound[entityID] {
		rel := index.relationships[id]
		if rel.Active && rel.AllowsTraversal(entityID, rel.TargetID) {
			hops = append(hops, hop{next: rel.TargetID, rel: rel})
		}
	}

	for _, id := range index.inbound[entityID] {
		rel := index.relationships[id]
		if rel.Active && rel.AllowsTraversal(entityID, rel.SourceID) {
			hops = append(hops, hop{next: rel.SourceID, rel: rel})
		}
	}

	return hops
}

/*
FindPaths returns paths from source to target under the chosen algorithm.
Breadth-first returns every fewest-hop path, depth-first the first path in
adjacency order, Dijkstra the minimum-cost path. maxDepth caps hop count
when positive. Results are ordered by total weight, then discovery order.
*/
func (index *Index) FindPaths(source, target string, algorithm Algorithm, maxDepth int) []Path {
	index.mutex.RLock()
	defer index.mutex.RUnlock()

	var paths []Path

	switch algorithm {
	case DepthFirst:
		paths = index.dfsPathLocked(source, target, maxDepth)
	case Dijkstra:
		paths = index.dijkstraPathLocked(source, target, maxDepth)
	default:
		paths = index.bfsPathsLocked(source, target, maxDepth)
	}

	sort.SliceStable(paths, func(i, j int) bool {
		return paths[i].TotalWeight < paths[j].TotalWeight
	})

	return paths
}

// ShortestPath is the weighted minimum-cost path, or false when target is
// unreachable.
func (index *Index) ShortestPath(source, target string) (Path, bool) {
	paths := index.FindPaths(source, target, Dijkstra, 0)
	if len(paths) == 0 {
		return Path{}, false
	}
	return paths[0], true
}

/*
Connected lists every entity reachable from start, including start itself,
in visit order. Dijkstra degrades to breadth-first here since reachability
does not depend on weights.
*/
func (index *Index) Connected(start string, algorithm Algorithm, maxDepth int) []string {
	index.mutex.RLock()
	defer index.mutex.RUnlock()

	if algorithm == DepthFirst {
		return index.dfsVisitLocked(start, maxDepth)
	}

	return index.bfsVisitLocked(start, maxDepth)
}

type arrival struct {
	prev string
	rel  string
}

func (index *Index) bfsPathsLocked(source, target string, maxDepth int) []Path {
	if source == target {
		return nil
	}

	depth := map[string]int{source: 0}
	parents := make(map[string][]arrival)
	queue := []string{source}
	found := -1

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		currentDepth := depth[current]

		// Once the target's layer is complete no deeper node can start
		// another minimal path.
		if found >= 0 && currentDepth+1 > found {
			break
		}
		if maxDepth > 0 && currentDepth >= maxDepth {
			continue
		}

		for _, h := range index.hopsFromLocked(current) {
			nextDepth, seen := depth[h.next]

			if !seen {
				depth[h.next] = currentDepth + 1
				parents[h.next] = []arrival{{prev: current, rel: h.rel.ID}}
				if h.next == target {
					found = currentDepth + 1
				}
				queue = append(queue, h.next)
			} else if nextDepth == currentDepth+1 {
				parents[h.next] = append(parents[h.next], arrival{prev: current, rel: h.rel.ID})
			}
		}
	}

	if found < 0 {
		return nil
	}

	var paths []Path

	var walk func(node string, entities, rels []string)
	walk = func(node string, entities, rels []string) {
		if node == source {
			full := append([]string{source}, entities...)
			paths = append(paths, Path{
				Entities:      full,
				Relationships: append([]string(nil), rels...),
				TotalWeight:   float64(found),
			})
			return
		}
		for _, parent := range parents[node] {
			walk(
				parent.prev,
				append([]string{node}, entities...),
				append([]string{parent.rel}, rels...),
			)
		}
	}
	walk(target, nil, nil)

	return paths
}

func (index *Index) dfsPathLocked(source, target string, maxDepth int) []Path {
	if source == target {
		return nil
	}

	visited := make(map[string]bool)

	type step struct {
		node string
		rel  string
	}
	var chain []step

	var visit func(node, via string, depth int) bool
	visit = func(node, via string, depth int) bool {
		if visited[node] {
			return false
		}
		visited[node] = true
		chain = append(chain, step{node: node, rel: via})

		if node == target {
			return true
		}

		if maxDepth <= 0 || depth < maxDepth {
			for _, h := range index.hopsFromLocked(node) {
				if visit(h.next, h.rel.ID, depth+1) {
					return true
				}
			}
		}

		chain = chain[:len(chain)-1]
		return false
	}

	if !visit(source, "", 0) {
		return nil
	}

	entities := make([]string, 0, len(chain))
	rels := make([]string, 0, len(chain)-1)

	for i, s := range chain {
		entities = append(entities, s.node)
		if i > 0 {
			rels = append(rels, s.rel)
		}
	}

	return []Path{{
		Entities:      entities,
		Relationships: rels,
		TotalWeight:   float64(len(chain) - 1),
	}}
}

func (index *Index) dijkstraPathLocked(source, target string, maxDepth int) []Path {
	if source == target {
		return nil
	}

	dist := map[string]float64{source: 0}
	hops := map[string]int{source: 0}
	prev := make(map[string]arrival)
	settled := make(map[string]bool)

	pq := &frontier{{entity: source, cost: 0}}
	heap.Init(pq)

	for pq.Len() > 0 {
		item := heap.Pop(pq).(*frontierItem)
		current := item.entity

		if settled[current] {
			continue
		}
		settled[current] = true

		if current == target {
			break
		}

		if maxDepth > 0 && hops[current] >= maxDepth {
			continue
		}

		for _, h := range index.hopsFromLocked(current) {
			weight := h.rel.Strength.Weight()
			if weight <= 0 {
				continue
			}

			next := h.next
			candidate := dist[current] + 1/weight

			if best, seen := dist[next]; !seen || candidate < best {
				dist[next] = candidate
				hops[next] = hops[current] + 1
				prev[next] = arrival{prev: current, rel: h.rel.ID}
				heap.Push(pq, &frontierItem{entity: next, cost: candidate})
			}
		}
	}

	total, reachable := dist[target]
	if !reachable {
		return nil
	}

	entities := []string{target}
	var rels []string

	for node := target; node != source; {
		step := prev[node]
		rels = append(rels, step.rel)
		node = step.prev
		entities = append(entities, node)
	}

	for i, j := 0, len(entities)-1; i < j; i, j = i+1, j-1 {
		entities[i], entities[j] = entities[j], entities[i]
	}
	for i, j := 0, len(rels)-1; i < j; i, j = i+1, j-1 {
		rels[i], rels[j] = rels[j], rels[i]
	}

	return []Path{{Entities: entities, Relationships: rels, TotalWeight: total}}
}

func (index *Index) bfsVisitLocked(start string, maxDepth int) []string {
	type queued struct {
		node  string
		depth int
	}

	visited := map[string]bool{start: true}
	queue := []queued{{node: start}}
	order := make([]string, 0)

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		order = append(order, current.node)

		if maxDepth > 0 && current.depth >= maxDepth {
			continue
		}

		for _, h := range index.hopsFromLocked(current.node) {
			if !visited[h.next] {
				visited[h.next] = true
				queue = append(queue, queued{node: h.next, depth: current.depth + 1})
			}
		}
	}

	return order
}

func (index *Index) dfsVisitLocked(start string, maxDepth int) []string {
	visited := make(map[string]bool)
	order := make([]string, 0)

	var visit func(node string, depth int)
	visit = func(node string, depth int) {
		if visited[node] {
			return
		}
		visited[node] = true
		order = append(order, node)

		if maxDepth > 0 && depth >= maxDepth {
			return
		}

		for _, h := range index.hopsFromLocked(node) {
			visit(h.next, depth+1)
		}
	}
	visit(start, 0)

	return order
}

// frontier is the min-priority queue behind Dijkstra relaxation.
type frontierItem struct {
	entity string
	cost   float64
}

type frontier []*frontierItem

func (f frontier) Len() int { return len(f) }

func (f frontier) Less(i, j int) bool {
	if f[i].cost == f[j].cost {
		return f[i].entity < f[j].entity
	}
	return f[i].cost < f[j].cost
}

func (f frontier) Swap(i, j int) { f[i], f[j] = f[j], f[i] }

func (f *frontier) Push(x any) { *f = append(*f, x.(*frontierItem)) }

func (f *frontier) Pop() any {
	old := *f
	item := old[len(old)-1]
	*f = old[:len(old)-1]
	return item
}
