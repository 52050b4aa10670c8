package index

import (
	"context"
	"fmt"

	"github.com/strata-db/strata/core"
	"github.com/strata-db/strata/storage"
)

const (
	// rowsPerHealthyFragment is the fragment size a well-compacted table
	// converges to; the fragmentation ratio measures actual fragments
	// against this ideal.
	rowsPerHealthyFragment = 4096

	// compactionRatioThreshold is the fragmentation ratio above which
	// health analysis recommends compaction.
	compactionRatioThreshold = 4.0

	// partitionRecommendRows is the table size at which a partition
	// column starts paying off.
	partitionRecommendRows = 10000

	// Partition-friendly columns group rows into a handful of coarse
	// buckets: more than one value, few enough to keep partitions large.
	minPartitionCardinality = 2
	maxPartitionCardinality = 100
)

// AnalyzeTableHealth computes a point-in-time health report. Read-only;
// it takes no maintenance lock and never mutates the table.
func (m *Manager) AnalyzeTableHealth(ctx context.Context, table storage.Table) (*core.HealthReport, error) {
	stats, err := table.Stats(ctx)
	if err != nil {
		return nil, err
	}
	meta, err := table.Meta(ctx)
	if err != nil {
		return nil, err
	}

	report := &core.HealthReport{
		RowCount:           stats.RowCount,
		FragmentCount:      stats.FragmentCount,
		FragmentationRatio: fragmentationRatio(stats),
		VectorIndexStatus:  vectorIndexStatus(stats, meta),
		ScalarIndexStatus:  scalarIndexStatus(meta),
	}

	if report.FragmentationRatio > compactionRatioThreshold {
		report.Recommendations = append(report.Recommendations, core.Recommendation{
			Kind: core.RecommendRunCompaction,
		})
	}
	if stats.RowCount >= MinRowsForIndex && meta.VectorIndex.Kind == core.IndexKindNone {
		report.Recommendations = append(report.Recommendations, core.Recommendation{
			Kind: core.RecommendCreateIndices,
		})
	}
	if stats.RowCount >= partitionRecommendRows {
		column, err := m.SuggestPartitionColumn(ctx, table)
		if err != nil {
			return nil, err
		}
		if column != "" {
			report.Recommendations = append(report.Recommendations, core.Recommendation{
				Kind:   core.RecommendPartition,
				Column: column,
			})
		}
	}
	return report, nil
}

// SuggestPartitionColumn scans the table's metadata columns for a good
// physical partition key: a categorical column whose cardinality falls in
// the partition-friendly band. Ties go to the coarsest grouping. Returns
// "" when no column qualifies.
func (m *Manager) SuggestPartitionColumn(ctx context.Context, table storage.Table) (string, error) {
	columns, err := table.MetadataColumns(ctx)
	if err != nil {
		return "", err
	}

	best := ""
	bestCardinality := maxPartitionCardinality + 1
	for _, column := range columns {
		cardinality, err := table.DistinctCount(ctx, column)
		if err != nil {
			return "", err
		}
		if cardinality < minPartitionCardinality || cardinality > maxPartitionCardinality {
			continue
		}
		if cardinality < bestCardinality {
			best = column
			bestCardinality = cardinality
		}
	}
	return best, nil
}

// fragmentationRatio compares actual fragments against the ideal count
// for the table's size. A freshly compacted table sits at or near 1.
func fragmentationRatio(stats core.TableStats) float64 {
	if stats.FragmentCount == 0 {
		return 0
	}
	ideal := stats.RowCount / rowsPerHealthyFragment
	if ideal < 1 {
		ideal = 1
	}
	return float64(stats.FragmentCount) / float64(ideal)
}

func vectorIndexStatus(stats core.TableStats, meta *storage.TableMeta) string {
	idx := meta.VectorIndex
	if idx.Kind == core.IndexKindNone {
		if stats.RowCount < MinRowsForIndex {
			return "none (table below index threshold)"
		}
		return "none"
	}
	status := fmt.Sprintf("%s over %d rows", idx.Kind, idx.RowCountAtBuild)
	if uint64(stats.RowCount) >= idx.RowCountAtBuild*maintenanceGrowthFactor {
		status += ", stale"
	}
	return status
}

func scalarIndexStatus(meta *storage.TableMeta) string {
	switch n := len(meta.ScalarIndexes); n {
	case 0:
		return "none"
	case 1:
		return fmt.Sprintf("1 column (%s)", meta.ScalarIndexes[0].Column)
	default:
		return fmt.Sprintf("%d columns", n)
	}
}
