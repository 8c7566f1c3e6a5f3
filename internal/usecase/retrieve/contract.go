package retrieve

import (
	"context"

	"github.com/harborview-labs/insight/internal/domain"
	"github.com/harborview-labs/insight/internal/repository/corpus"
	"github.com/harborview-labs/insight/internal/transport/rerank"
)

// Searcher defines the vector-store query contract.
type Searcher interface {
	Query(ctx context.Context, vector []float32, topK int) ([]corpus.Match, error)
}

// Embedder vectorizes the hybrid query.
type Embedder interface {
	Embed(ctx context.Context, text string) (domain.EmbeddingResult, error)
}

// Reranker scores candidate texts against a context-aware query.
type Reranker interface {
	Rerank(ctx context.Context, query string, documents []string, topN int) ([]rerank.RankedResult, error)
}

// TopicExtractor supplies the conversation's key topics for hybrid query
// construction and rerank context.
type TopicExtractor interface {
	KeyTopics(ctx context.Context, history []domain.Turn) string
}
