package badger

import (
	"github.com/viterin/vek/vek32"
)

const (
	kmeansMaxIterations = 25

	minProbes = 4
)

// IVFIndex is an inverted-file index: rows are clustered around Partitions
// centroids and a query only scans the lists of its closest centroids.
type IVFIndex struct {
	// Centroids holds normalized cluster centers, flattened like
	// Snapshot.Vectors.
	Centroids []float32
	// Lists[c] holds the snapshot positions assigned to centroid c.
	Lists [][]uint32
}

// buildIVF clusters the snapshot's rows with spherical k-means. Centroids
// are renormalized after every update so assignment stays a dot product.
func buildIVF(s *Snapshot, partitions int) *IVFIndex {
	n := s.Len()
	if partitions > n {
		partitions = n
	}
	dim := s.Dimension

	centroids := make([]float32, partitions*dim)
	for c := 0; c < partitions; c++ {
		// Seed from evenly spaced rows; deterministic and good enough as
		// a starting point for Lloyd's iterations.
		src := s.Vector(c * n / partitions)
		copy(centroids[c*dim:(c+1)*dim], src)
	}

	assignments := make([]int, n)
	counts := make([]int, partitions)

	for iter := 0; iter < kmeansMaxIterations; iter++ {
		changed := false
		for i := 0; i < n; i++ {
			best := nearestCentroid(centroids, dim, s.Vector(i))
			if assignments[i] != best || iter == 0 {
				assignments[i] = best
				changed = true
			}
		}
		if !changed {
			break
		}

		for i := range centroids {
			centroids[i] = 0
		}
		for i := range counts {
			counts[i] = 0
		}
		for i := 0; i < n; i++ {
			c := assignments[i]
			counts[c]++
			vek32.Add_Inplace(centroids[c*dim:(c+1)*dim], s.Vector(i))
		}
		for c := 0; c < partitions; c++ {
			if counts[c] == 0 {
				// Re-seed empty clusters from an arbitrary row so no
				// partition goes to waste.
				copy(centroids[c*dim:(c+1)*dim], s.Vector(c%n))
				continue
			}
			centroid := centroids[c*dim : (c+1)*dim]
			norm := vek32.Norm(centroid)
			if norm > 0 {
				vek32.DivNumber_Inplace(centroid, norm)
			}
		}
	}

	lists := make([][]uint32, partitions)
	for i := 0; i < n; i++ {
		c := assignments[i]
		lists[c] = append(lists[c], uint32(i))
	}

	return &IVFIndex{Centroids: centroids, Lists: lists}
}

// Search probes the closest centroid lists and ranks their rows.
func (ivf *IVFIndex) Search(s *Snapshot, query []float32, k int) []Ref {
	partitions := len(ivf.Lists)
	if partitions == 0 {
		return nil
	}
	dim := s.Dimension

	nprobe := probes(partitions)
	centroidHeap := newRefHeap(nprobe)
	for c := 0; c < partitions; c++ {
		centroidHeap.push(Ref{
			Position: c,
			Score:    vek32.Dot(query, ivf.Centroids[c*dim:(c+1)*dim]),
		})
	}

	heap := newRefHeap(k)
	for _, probe := range centroidHeap.drain() {
		for _, pos := range ivf.Lists[probe.Position] {
			heap.push(Ref{
				Position: int(pos),
				Score:    vek32.Dot(query, s.Vector(int(pos))),
			})
		}
	}
	return heap.drain()
}

func nearestCentroid(centroids []float32, dim int, vec []float32) int {
	best := 0
	bestScore := float32(-2)
	for c := 0; c < len(centroids)/dim; c++ {
		score := vek32.Dot(vec, centroids[c*dim:(c+1)*dim])
		if score > bestScore {
			bestScore = score
			best = c
		}
	}
	return best
}

// probes picks how many centroid lists a query visits. An eighth of the
// partitions balances recall against scan cost, floored so small indexes
// are still searched broadly.
func probes(partitions int) int {
	nprobe := partitions / 8
	if nprobe < minProbes {
		nprobe = minProbes
	}
	if nprobe > partitions {
		nprobe = partitions
	}
	return nprobe
}
