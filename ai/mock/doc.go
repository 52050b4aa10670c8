// Package mock provides test doubles for AI interfaces.
//
// The mock embedder produces deterministic pseudo-random vectors derived
// from the input text, so the same text always embeds to the same vector
// without any network dependency. Tests can also inject custom behavior
// through function fields and inspect call counts.
package mock
