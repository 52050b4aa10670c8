// Package reembed regenerates the vectors of every record in a table,
// typically after switching to a new embedding model.
//
// Records are processed in batches with retry and exponential backoff
// around the embedding calls, and progress is reported to a configurable
// writer. Rewritten vectors are validated against the table dimension, so
// pointing a table at a model with a different output width fails before
// anything is overwritten.
package reembed
