// Package retrieve implements hybrid retrieval: context-aware query
// reformulation, nearest-neighbor vector search, and relevance reranking.
package retrieve

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/harborview-labs/insight/internal/domain"
	"github.com/harborview-labs/insight/internal/metrics"
)

const (
	// candidateCount is how many nearest neighbors vector search returns.
	candidateCount = 8
	// finalCount bounds the retrieval result.
	finalCount = 5
	// recentUserQueries feed the hybrid query.
	recentUserQueries = 3
)

// Service runs the retrieval stage of the pipeline.
type Service struct {
	embedder   Embedder
	searcher   Searcher
	reranker   Reranker
	topics     TopicExtractor
	candidates int
	final      int
	logger     *zap.Logger
}

// New creates a retrieval service with default candidate and result bounds.
func New(embedder Embedder, searcher Searcher, reranker Reranker, topics TopicExtractor, logger *zap.Logger) *Service {
	return &Service{
		embedder:   embedder,
		searcher:   searcher,
		reranker:   reranker,
		topics:     topics,
		candidates: candidateCount,
		final:      finalCount,
		logger:     logger,
	}
}

// WithBounds overrides the candidate and final result counts.
func (s *Service) WithBounds(candidates, final int) *Service {
	if candidates > 0 {
		s.candidates = candidates
	}
	if final > 0 && final <= s.candidates {
		s.final = final
	}
	return s
}

// Retrieve returns up to 5 documents relevant to the query in conversation
// context. Vector search failure yields an empty result, rerank failure
// degrades to vector-search order; neither propagates an error to the
// caller.
func (s *Service) Retrieve(ctx context.Context, query string, history []domain.Turn) []domain.RetrievedDocument {
	hybrid := s.hybridQuery(ctx, query, history)

	queryRes, err := s.embedder.Embed(ctx, hybrid)
	if err != nil {
		metrics.RetrievalsTotal.WithLabelValues("error").Inc()
		s.logger.Warn("Query embedding failed", zap.Error(err))
		return nil
	}

	matches, err := s.searcher.Query(ctx, domain.NormalizeL2(queryRes.Embedding), s.candidates)
	if err != nil {
		metrics.RetrievalsTotal.WithLabelValues("error").Inc()
		s.logger.Warn("Vector search failed", zap.Error(err))
		return nil
	}
	if len(matches) == 0 {
		metrics.RetrievalsTotal.WithLabelValues("empty").Inc()
		return nil
	}

	candidates := make([]domain.RetrievedDocument, len(matches))
	for i, m := range matches {
		candidates[i] = domain.RetrievedDocument{
			Text:         m.Text,
			Source:       m.Source,
			MainHeading:  m.MainHeading,
			InitialScore: m.Score,
		}
	}

	results := s.rerankCandidates(ctx, query, history, candidates)
	metrics.RetrievalsTotal.WithLabelValues("ok").Inc()
	return results
}

// hybridQuery widens the raw query with recent user turns and the
// conversation's key topics so retrieval sees follow-up context.
func (s *Service) hybridQuery(ctx context.Context, query string, history []domain.Turn) string {
	if len(history) == 0 {
		return query
	}

	recent := domain.LastUserContents(history, recentUserQueries)
	topics := s.topics.KeyTopics(ctx, history)

	switch {
	case len(recent) > 0 && topics != "":
		return fmt.Sprintf("%s %s %s", query, strings.Join(recent, " "), topics)
	case len(recent) > 0:
		return fmt.Sprintf("%s %s", query, strings.Join(recent, " "))
	default:
		return query
	}
}

// rerankCandidates orders candidates by cross-encoder relevance to a
// context-aware query, truncated to the final bound. Any rerank failure
// falls back to the first candidates in vector-search order.
func (s *Service) rerankCandidates(ctx context.Context, query string, history []domain.Turn, candidates []domain.RetrievedDocument) []domain.RetrievedDocument {
	rerankQuery := query
	if len(history) > 0 {
		if topics := s.topics.KeyTopics(ctx, history); topics != "" {
			rerankQuery = fmt.Sprintf("%s (In the context of: %s)", query, topics)
		}
	}

	texts := make([]string, len(candidates))
	for i, c := range candidates {
		texts[i] = c.Text
	}

	ranked, err := s.reranker.Rerank(ctx, rerankQuery, texts, len(candidates))
	if err != nil {
		metrics.RerankFallbacksTotal.Inc()
		s.logger.Warn("Rerank failed, falling back to vector-search order", zap.Error(err))
		if len(candidates) > s.final {
			candidates = candidates[:s.final]
		}
		return candidates
	}

	// Providers are not required to order results; the top-5 cut must see
	// the best scores first.
	sort.SliceStable(ranked, func(a, b int) bool {
		return ranked[a].RelevanceScore > ranked[b].RelevanceScore
	})

	results := make([]domain.RetrievedDocument, 0, s.final)
	for _, r := range ranked {
		if len(results) == s.final {
			break
		}
		if r.Index < 0 || r.Index >= len(candidates) {
			continue
		}
		doc := candidates[r.Index]
		doc.RerankScore = r.RelevanceScore
		doc.Reranked = true
		results = append(results, doc)
	}
	if len(results) == 0 {
		// An empty rerank response degrades like a failure.
		if len(candidates) > s.final {
			candidates = candidates[:s.final]
		}
		return candidates
	}
	return results
}
