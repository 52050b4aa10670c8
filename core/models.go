package core

import (
	"encoding/hex"
	"fmt"
	"slices"

	"github.com/go-crypt/x/blake2b"
	"github.com/viterin/vek/vek32"
)

// IDFromContent generates a deterministic ID from text content using BLAKE2b hashing.
// Identical content always produces the same ID, which makes writes of duplicate
// content idempotent at the record level.
func IDFromContent(text string) string {
	h, _ := blake2b.New(16, nil)
	h.Write([]byte(text))
	return hex.EncodeToString(h.Sum(nil))
}

// Record is the unit of storage: a vector plus its source content and
// structured metadata. Vector length must equal the owning table's dimension.
type Record struct {
	ID       string
	Vector   []float32
	Content  string
	Metadata map[string]string
}

// MetadataKeys returns the record's metadata keys in sorted order. Row
// serialization writes metadata pairs in this order, so identical records
// marshal to identical bytes.
func (r *Record) MetadataKeys() []string {
	keys := make([]string, 0, len(r.Metadata))
	for k := range r.Metadata {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// IndexKind identifies the vector index structure built for a table.
type IndexKind int

const (
	// IndexKindNone means no vector index exists; queries fall back to a full scan.
	IndexKindNone IndexKind = iota
	// IndexKindHNSW is a hierarchical navigable small-world graph, used for
	// smaller tables.
	IndexKindHNSW
	// IndexKindIVFFlat is an inverted-file index that clusters vectors into
	// partitions, used at larger scale.
	IndexKindIVFFlat
)

func (k IndexKind) String() string {
	switch k {
	case IndexKindNone:
		return "NONE"
	case IndexKindHNSW:
		return "HNSW"
	case IndexKindIVFFlat:
		return "IVF_FLAT"
	default:
		return fmt.Sprintf("Unknown(%d)", int(k))
	}
}

// ScalarIndexKind identifies the index structure built for a metadata column.
type ScalarIndexKind int

const (
	// ScalarIndexBTree is an ordered index suited to high-cardinality columns.
	ScalarIndexBTree ScalarIndexKind = iota
	// ScalarIndexBitmap is a bitmap index suited to low-cardinality columns.
	ScalarIndexBitmap
)

func (k ScalarIndexKind) String() string {
	switch k {
	case ScalarIndexBTree:
		return "BTREE"
	case ScalarIndexBitmap:
		return "BITMAP"
	default:
		return fmt.Sprintf("Unknown(%d)", int(k))
	}
}

// TableStats reports the physical state of a table as seen by the substrate.
type TableStats struct {
	RowCount      int
	FragmentCount int
}

// RecommendationKind identifies a maintenance action suggested by health analysis.
type RecommendationKind int

const (
	// RecommendRunCompaction suggests merging fragments and pruning stale versions.
	RecommendRunCompaction RecommendationKind = iota
	// RecommendCreateIndices suggests building a vector index.
	RecommendCreateIndices
	// RecommendPartition suggests physically partitioning the table by a column.
	RecommendPartition
)

func (k RecommendationKind) String() string {
	switch k {
	case RecommendRunCompaction:
		return "RunCompaction"
	case RecommendCreateIndices:
		return "CreateIndices"
	case RecommendPartition:
		return "Partition"
	default:
		return fmt.Sprintf("Unknown(%d)", int(k))
	}
}

// Recommendation is a single suggested maintenance action. Column is set only
// for RecommendPartition.
type Recommendation struct {
	Kind   RecommendationKind
	Column string
}

// HealthReport summarizes the physical and index health of a table.
// It is derived on demand and never persisted.
type HealthReport struct {
	RowCount           int
	FragmentCount      int
	FragmentationRatio float64
	VectorIndexStatus  string
	ScalarIndexStatus  string
	Recommendations    []Recommendation
}

// SearchResult pairs a record with its relevance score.
type SearchResult struct {
	Record *Record
	Score  float32
}

// CosineSimilarity computes the cosine similarity between two equal-length vectors.
// Both the brute-force scan and every index structure rank by this metric, so
// rankings stay consistent regardless of which path served a query.
func CosineSimilarity(a, b []float32) float32 {
	return vek32.CosineSimilarity(a, b)
}

// NormalizeVector L2-normalizes v in place. Returns false for a zero vector,
// which is left unchanged.
func NormalizeVector(v []float32) bool {
	norm := vek32.Norm(v)
	if norm == 0 {
		return false
	}
	vek32.DivNumber_Inplace(v, norm)
	return true
}
