package domain

import "errors"

var (
	// ErrEmptyDocument signals an ingestion request with no usable text.
	ErrEmptyDocument = errors.New("document is empty")
	// ErrNoChunks signals that chunking produced nothing to index.
	ErrNoChunks = errors.New("document produced no chunks")
	// ErrEmbeddingProviderError signals an embedding provider failure.
	ErrEmbeddingProviderError = errors.New("embedding provider error")
	// ErrModelProviderError signals a language-model provider failure.
	ErrModelProviderError = errors.New("model provider error")
	// ErrRerankProviderError signals a reranker provider failure.
	ErrRerankProviderError = errors.New("rerank provider error")
	// ErrRateLimited signals a rate limit hit on an external provider.
	ErrRateLimited = errors.New("rate limited")
	// ErrNotFound signals a missing resource.
	ErrNotFound = errors.New("not found")
)
