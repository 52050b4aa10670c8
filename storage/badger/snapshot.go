package badger

import (
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"

	"github.com/strata-db/strata/cache"
	"github.com/strata-db/strata/core"
	"github.com/viterin/vek/vek32"
)

// Snapshot is an immutable in-memory vector index built from one full pass
// over a table. Rows written after MaxOrdinal are not in the snapshot and
// must be merged in by the caller. Snapshots are rebuilt wholesale and
// swapped atomically; they are never mutated after construction.
type Snapshot struct {
	Kind       core.IndexKind
	Dimension  int
	Partitions int
	MaxOrdinal uint64

	// IDs[i] names the record stored at Vectors[i*Dimension : (i+1)*Dimension].
	IDs     []string
	Vectors []float32

	IVF  *IVFIndex
	HNSW *HNSWGraph
}

var _ cache.Structure = (*Snapshot)(nil)

// Ref points at one row of a snapshot together with its similarity to the
// query that produced it.
type Ref struct {
	Position int
	Score    float32
}

// Len returns the number of indexed rows.
func (s *Snapshot) Len() int {
	return len(s.IDs)
}

// Vector returns the stored vector at position i without copying.
func (s *Snapshot) Vector(i int) []float32 {
	return s.Vectors[i*s.Dimension : (i+1)*s.Dimension]
}

// SizeBytes estimates resident memory so the structure cache can enforce
// its byte budget.
func (s *Snapshot) SizeBytes() int {
	size := len(s.Vectors) * 4
	for _, id := range s.IDs {
		size += len(id) + 16
	}
	if s.IVF != nil {
		size += len(s.IVF.Centroids) * 4
		for _, list := range s.IVF.Lists {
			size += len(list) * 4
		}
	}
	if s.HNSW != nil {
		for _, node := range s.HNSW.Nodes {
			for _, level := range node.Links {
				size += len(level) * 4
			}
		}
	}
	return size
}

// Search returns up to k refs ordered by descending similarity. Vectors
// are stored normalized, so similarity is a plain dot product.
func (s *Snapshot) Search(query []float32, k int) []Ref {
	if k <= 0 || s.Len() == 0 {
		return nil
	}
	switch {
	case s.HNSW != nil:
		return s.HNSW.Search(s, query, k)
	case s.IVF != nil:
		return s.IVF.Search(s, query, k)
	default:
		return s.bruteForce(query, k)
	}
}

func (s *Snapshot) bruteForce(query []float32, k int) []Ref {
	heap := newRefHeap(k)
	for i := 0; i < s.Len(); i++ {
		heap.push(Ref{Position: i, Score: vek32.Dot(query, s.Vector(i))})
	}
	return heap.drain()
}

// BuildSnapshot indexes the given rows. Vectors must already be normalized
// and are flattened into the snapshot, so the input slices are not retained.
func BuildSnapshot(kind core.IndexKind, dimension, partitions int, maxOrdinal uint64, ids []string, vectors [][]float32) (*Snapshot, error) {
	if len(ids) != len(vectors) {
		return nil, fmt.Errorf("id/vector count mismatch: %d vs %d", len(ids), len(vectors))
	}

	s := &Snapshot{
		Kind:       kind,
		Dimension:  dimension,
		Partitions: partitions,
		MaxOrdinal: maxOrdinal,
		IDs:        ids,
		Vectors:    make([]float32, 0, len(vectors)*dimension),
	}
	for _, vec := range vectors {
		s.Vectors = append(s.Vectors, vec...)
	}

	switch kind {
	case core.IndexKindHNSW:
		s.HNSW = buildHNSW(s)
	case core.IndexKindIVFFlat:
		s.IVF = buildIVF(s, partitions)
	case core.IndexKindNone:
	default:
		return nil, fmt.Errorf("unknown index kind %v", kind)
	}
	return s, nil
}

// SaveSnapshot persists a snapshot with gob via a temp file and rename, so
// a crash mid-write never leaves a truncated snapshot behind.
func SaveSnapshot(path string, s *Snapshot) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".vix-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if err := gob.NewEncoder(tmp).Encode(s); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// LoadSnapshot reads a snapshot back from disk.
func LoadSnapshot(path string) (*Snapshot, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var s Snapshot
	if err := gob.NewDecoder(f).Decode(&s); err != nil {
		return nil, fmt.Errorf("decoding snapshot %s: %w", path, err)
	}
	return &s, nil
}

// refHeap keeps the k best refs seen so far; the root is the worst kept
// entry so a better candidate can displace it in O(log k).
type refHeap struct {
	k    int
	refs []Ref
}

func newRefHeap(k int) *refHeap {
	return &refHeap{k: k, refs: make([]Ref, 0, k)}
}

func (h *refHeap) push(r Ref) {
	if len(h.refs) < h.k {
		h.refs = append(h.refs, r)
		h.up(len(h.refs) - 1)
		return
	}
	if r.Score <= h.refs[0].Score {
		return
	}
	h.refs[0] = r
	h.down(0)
}

// drain empties the heap and returns refs ordered best first.
func (h *refHeap) drain() []Ref {
	out := make([]Ref, len(h.refs))
	for i := len(h.refs) - 1; i >= 0; i-- {
		out[i] = h.refs[0]
		last := len(h.refs) - 1
		h.refs[0] = h.refs[last]
		h.refs = h.refs[:last]
		h.down(0)
	}
	return out
}

func (h *refHeap) up(i int) {
	for i > 0 {
		parent := (i - 1) / 2
		if h.refs[parent].Score <= h.refs[i].Score {
			break
		}
		h.refs[parent], h.refs[i] = h.refs[i], h.refs[parent]
		i = parent
	}
}

func (h *refHeap) down(i int) {
	for {
		left := 2*i + 1
		if left >= len(h.refs) {
			return
		}
		smallest := left
		if right := left + 1; right < len(h.refs) && h.refs[right].Score < h.refs[left].Score {
			smallest = right
		}
		if h.refs[i].Score <= h.refs[smallest].Score {
			return
		}
		h.refs[i], h.refs[smallest] = h.refs[smallest], h.refs[i]
		i = smallest
	}
}
