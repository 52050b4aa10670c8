package search

import (
	"testing"

	"github.com/strata-db/strata/core"
	"github.com/stretchr/testify/assert"
)

func TestNormalizeKeywords(t *testing.T) {
	got := normalizeKeywords([]string{" Go ", "go", "Rust", "", "  "})
	assert.Equal(t, []string{"go", "rust"}, got)
}

func TestTokenizeAndFilter(t *testing.T) {
	tokens := tokenizeAndFilter("The quick (brown) fox, and a dog!")
	assert.Equal(t, []string{"quick", "brown", "fox", "dog"}, tokens)
}

func TestScoreKeywords(t *testing.T) {
	record := &core.Record{
		ID:       "deploy-guide",
		Content:  "How to deploy services to production.",
		Metadata: map[string]string{"topic": "operations"},
	}

	tests := []struct {
		name     string
		keywords []string
		want     float32
	}{
		{"no hits", []string{"database"}, 0},
		{"content only", []string{"production"}, contentBoost},
		{"identifier only", []string{"guide"}, idBoost},
		{"metadata only", []string{"operations"}, metadataBoost},
		{"content and identifier", []string{"deploy"}, contentBoost + idBoost},
		{"all three", []string{"deploy", "operations"}, metadataBoost + idBoost + contentBoost},
		{"boost granted once", []string{"production", "services"}, contentBoost},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.InDelta(t, float64(tc.want), float64(scoreKeywords(record, normalizeKeywords(tc.keywords))), 1e-6)
		})
	}
}
