package search

import (
	"slices"
	"strings"

	"github.com/strata-db/strata/core"
)

// Additive keyword boosts, strongest signal first: an exact metadata hit
// beats an identifier hit beats a free-text mention.
const (
	metadataBoost float32 = 0.10
	idBoost       float32 = 0.05
	contentBoost  float32 = 0.03
)

// Stop words to skip when matching keywords against free text.
var stopWords = map[string]bool{
	"the": true, "a": true, "an": true, "be": true, "is": true, "are": true,
	"was": true, "to": true, "of": true, "and": true, "in": true, "that": true,
	"have": true, "it": true, "for": true, "not": true, "on": true, "with": true,
	"as": true, "you": true, "do": true, "at": true, "this": true, "but": true,
	"by": true, "from": true,
}

// normalizeKeywords lowercases, trims, and dedupes the requested keywords.
// The result is sorted so equal keyword sets produce equal cache keys.
func normalizeKeywords(keywords []string) []string {
	normalized := make([]string, 0, len(keywords))
	seen := make(map[string]bool, len(keywords))
	for _, kw := range keywords {
		cleaned := strings.ToLower(strings.TrimSpace(kw))
		if cleaned == "" || seen[cleaned] {
			continue
		}
		seen[cleaned] = true
		normalized = append(normalized, cleaned)
	}
	slices.Sort(normalized)
	return normalized
}

// scoreKeywords sums the keyword boosts for one record. Each boost is
// granted at most once no matter how many keywords hit it.
func scoreKeywords(record *core.Record, keywords []string) float32 {
	var score float32

	if anyKeywordMatchesMetadata(record.Metadata, keywords) {
		score += metadataBoost
	}
	if anyKeywordInIdentifier(record.ID, keywords) {
		score += idBoost
	}
	if anyKeywordInContent(record.Content, keywords) {
		score += contentBoost
	}
	return score
}

func anyKeywordMatchesMetadata(metadata map[string]string, keywords []string) bool {
	for _, value := range metadata {
		folded := strings.ToLower(value)
		for _, kw := range keywords {
			if folded == kw {
				return true
			}
		}
	}
	return false
}

func anyKeywordInIdentifier(id string, keywords []string) bool {
	folded := strings.ToLower(id)
	for _, kw := range keywords {
		if strings.Contains(folded, kw) {
			return true
		}
	}
	return false
}

func anyKeywordInContent(content string, keywords []string) bool {
	tokens := tokenizeAndFilter(content)
	tokenSet := make(map[string]bool, len(tokens))
	for _, token := range tokens {
		tokenSet[token] = true
	}
	for _, kw := range keywords {
		if tokenSet[kw] {
			return true
		}
	}
	return false
}

// tokenizeAndFilter splits text into words, lowercases, trims punctuation,
// and removes stop words.
func tokenizeAndFilter(text string) []string {
	words := strings.Fields(text)
	filtered := make([]string, 0, len(words))

	for _, word := range words {
		cleaned := strings.ToLower(strings.Trim(word, ".,!?;:'\"-()[]{}"))
		if cleaned != "" && !stopWords[cleaned] {
			filtered = append(filtered, cleaned)
		}
	}
	return filtered
}
