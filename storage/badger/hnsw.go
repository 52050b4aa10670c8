package badger

import (
	"math"
	"math/rand/v2"

	"github.com/viterin/vek/vek32"
)

const (
	hnswM              = 16
	hnswEfConstruction = 200
	hnswEfSearch       = 100
)

// HNSWGraph is a hierarchical navigable small-world graph over a
// snapshot's rows. Higher layers are sparse express lanes for the greedy
// descent; layer zero holds every row.
type HNSWGraph struct {
	M        int
	EfSearch int
	Entry    int32
	MaxLevel int
	Nodes    []HNSWNode
}

// HNSWNode holds one row's adjacency lists, Links[l] being its neighbors
// on layer l.
type HNSWNode struct {
	Level int32
	Links [][]uint32
}

// buildHNSW inserts every snapshot row into a fresh graph. Layer draws use
// a seeded generator so rebuilding the same rows yields the same graph.
func buildHNSW(s *Snapshot) *HNSWGraph {
	g := &HNSWGraph{
		M:        hnswM,
		EfSearch: hnswEfSearch,
		Entry:    -1,
		Nodes:    make([]HNSWNode, s.Len()),
	}

	levelFactor := 1.0 / math.Log(float64(g.M))
	rng := rand.New(rand.NewPCG(uint64(s.Len()), 0x9E3779B97F4A7C15))

	for i := 0; i < s.Len(); i++ {
		level := int(-math.Log(rng.Float64()) * levelFactor)
		g.Nodes[i] = HNSWNode{
			Level: int32(level),
			Links: make([][]uint32, level+1),
		}
		g.insert(s, i, level)
	}
	return g
}

func (g *HNSWGraph) insert(s *Snapshot, node, level int) {
	if g.Entry < 0 {
		g.Entry = int32(node)
		g.MaxLevel = level
		return
	}

	query := s.Vector(node)
	entry := int(g.Entry)

	// Greedy descent through the layers above the node's level.
	for l := g.MaxLevel; l > level; l-- {
		entry = g.greedyClosest(s, query, entry, l)
	}

	for l := min(level, g.MaxLevel); l >= 0; l-- {
		found := g.searchLayer(s, query, entry, hnswEfConstruction, l)
		neighbors := found
		if len(neighbors) > g.M {
			neighbors = neighbors[:g.M]
		}

		for _, n := range neighbors {
			g.Nodes[node].Links[l] = append(g.Nodes[node].Links[l], uint32(n.Position))
			g.Nodes[n.Position].Links[l] = append(g.Nodes[n.Position].Links[l], uint32(node))
			g.pruneLinks(s, n.Position, l)
		}
		if len(found) > 0 {
			entry = found[0].Position
		}
	}

	if level > g.MaxLevel {
		g.MaxLevel = level
		g.Entry = int32(node)
	}
}

// pruneLinks caps a node's adjacency list, keeping the closest neighbors.
// Layer zero allows twice the fan-out of the upper layers.
func (g *HNSWGraph) pruneLinks(s *Snapshot, node, level int) {
	maxLinks := g.M
	if level == 0 {
		maxLinks = 2 * g.M
	}
	links := g.Nodes[node].Links[level]
	if len(links) <= maxLinks {
		return
	}

	vec := s.Vector(node)
	heap := newRefHeap(maxLinks)
	for _, l := range links {
		heap.push(Ref{Position: int(l), Score: vek32.Dot(vec, s.Vector(int(l)))})
	}
	kept := heap.drain()
	pruned := make([]uint32, len(kept))
	for i, r := range kept {
		pruned[i] = uint32(r.Position)
	}
	g.Nodes[node].Links[level] = pruned
}

// Search descends from the top layer and runs a beam search on layer zero.
func (g *HNSWGraph) Search(s *Snapshot, query []float32, k int) []Ref {
	if g.Entry < 0 {
		return nil
	}

	entry := int(g.Entry)
	for l := g.MaxLevel; l > 0; l-- {
		entry = g.greedyClosest(s, query, entry, l)
	}

	ef := g.EfSearch
	if ef < k {
		ef = k
	}
	found := g.searchLayer(s, query, entry, ef, 0)
	if len(found) > k {
		found = found[:k]
	}
	return found
}

// greedyClosest walks a single layer toward the query until no neighbor
// improves on the current position.
func (g *HNSWGraph) greedyClosest(s *Snapshot, query []float32, entry, level int) int {
	best := entry
	bestScore := vek32.Dot(query, s.Vector(entry))
	for {
		improved := false
		for _, n := range g.Nodes[best].Links[level] {
			score := vek32.Dot(query, s.Vector(int(n)))
			if score > bestScore {
				best = int(n)
				bestScore = score
				improved = true
			}
		}
		if !improved {
			return best
		}
	}
}

// searchLayer is the ef-bounded beam search. Returns refs ordered best
// first.
func (g *HNSWGraph) searchLayer(s *Snapshot, query []float32, entry, ef, level int) []Ref {
	visited := map[int]bool{entry: true}
	entryScore := vek32.Dot(query, s.Vector(entry))

	results := newRefHeap(ef)
	results.push(Ref{Position: entry, Score: entryScore})

	candidates := []Ref{{Position: entry, Score: entryScore}}

	for len(candidates) > 0 {
		// Pop the best candidate.
		bestIdx := 0
		for i := 1; i < len(candidates); i++ {
			if candidates[i].Score > candidates[bestIdx].Score {
				bestIdx = i
			}
		}
		current := candidates[bestIdx]
		candidates[bestIdx] = candidates[len(candidates)-1]
		candidates = candidates[:len(candidates)-1]

		// The frontier can stop once its best is worse than the worst
		// kept result.
		if len(results.refs) >= ef && current.Score < results.refs[0].Score {
			break
		}

		node := &g.Nodes[current.Position]
		if level >= len(node.Links) {
			continue
		}
		for _, n := range node.Links[level] {
			pos := int(n)
			if visited[pos] {
				continue
			}
			visited[pos] = true
			score := vek32.Dot(query, s.Vector(pos))
			if len(results.refs) < ef || score > results.refs[0].Score {
				results.push(Ref{Position: pos, Score: score})
				candidates = append(candidates, Ref{Position: pos, Score: score})
			}
		}
	}

	return results.drain()
}
