// Package embedding provides text embedding generation for the RAG pipeline.
//
// The Service type talks to a TEI-compatible HTTP embedding endpoint. The
// Lazy type wraps any Provider with the process-wide lifecycle the ingestion
// and retrieval paths rely on: the model is probed at most once, a failed
// probe is recorded and never retried, and embed failures degrade to a
// zero vector of the reported dimension instead of propagating.
package embedding
