package retrieve

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/harborview-labs/insight/internal/domain"
	"github.com/harborview-labs/insight/internal/repository/corpus"
	"github.com/harborview-labs/insight/internal/transport/rerank"
)

type mockEmbedder struct {
	lastText string
	err      error
}

func (m *mockEmbedder) Embed(_ context.Context, text string) (domain.EmbeddingResult, error) {
	m.lastText = text
	if m.err != nil {
		return domain.EmbeddingResult{}, m.err
	}
	return domain.EmbeddingResult{Embedding: []float32{1, 0}}, nil
}

type mockSearcher struct {
	matches []corpus.Match
	err     error
	lastK   int
}

func (m *mockSearcher) Query(_ context.Context, _ []float32, topK int) ([]corpus.Match, error) {
	m.lastK = topK
	return m.matches, m.err
}

type mockReranker struct {
	results   []rerank.RankedResult
	err       error
	lastQuery string
}

func (m *mockReranker) Rerank(_ context.Context, query string, _ []string, _ int) ([]rerank.RankedResult, error) {
	m.lastQuery = query
	return m.results, m.err
}

type mockTopics struct{ topics string }

func (m *mockTopics) KeyTopics(_ context.Context, _ []domain.Turn) string { return m.topics }

func makeMatches(n int) []corpus.Match {
	matches := make([]corpus.Match, n)
	for i := range matches {
		matches[i] = corpus.Match{
			Text:   fmt.Sprintf("candidate %d", i),
			Source: "doc.md",
			Score:  1.0 - float64(i)*0.1,
		}
	}
	return matches
}

func userTurn(content string) domain.Turn {
	return domain.Turn{IsUser: true, Content: content}
}

func newService(emb *mockEmbedder, se *mockSearcher, re *mockReranker, to *mockTopics) *Service {
	return New(emb, se, re, to, zap.NewNop())
}

func TestRetrieve_ResultBound(t *testing.T) {
	se := &mockSearcher{matches: makeMatches(8)}
	re := &mockReranker{results: []rerank.RankedResult{
		{Index: 7, RelevanceScore: 0.99},
		{Index: 0, RelevanceScore: 0.95},
		{Index: 3, RelevanceScore: 0.90},
		{Index: 1, RelevanceScore: 0.85},
		{Index: 2, RelevanceScore: 0.80},
		{Index: 4, RelevanceScore: 0.75},
	}}
	svc := newService(&mockEmbedder{}, se, re, &mockTopics{})

	docs := svc.Retrieve(context.Background(), "query", nil)
	if len(docs) != 5 {
		t.Fatalf("got %d docs, want 5", len(docs))
	}
	if se.lastK != 8 {
		t.Errorf("searched topK = %d, want 8", se.lastK)
	}
	if docs[0].Text != "candidate 7" || !docs[0].Reranked {
		t.Errorf("top doc = %+v, want reranked candidate 7", docs[0])
	}
	if docs[0].RerankScore != 0.99 {
		t.Errorf("RerankScore = %f, want 0.99", docs[0].RerankScore)
	}
}

func TestRetrieve_SortsUnorderedRerankScores(t *testing.T) {
	se := &mockSearcher{matches: makeMatches(6)}
	// Scores arrive in input-index order, not by relevance.
	re := &mockReranker{results: []rerank.RankedResult{
		{Index: 0, RelevanceScore: 0.10},
		{Index: 1, RelevanceScore: 0.95},
		{Index: 2, RelevanceScore: 0.20},
		{Index: 3, RelevanceScore: 0.90},
		{Index: 4, RelevanceScore: 0.30},
		{Index: 5, RelevanceScore: 0.85},
	}}
	svc := newService(&mockEmbedder{}, se, re, &mockTopics{})

	docs := svc.Retrieve(context.Background(), "query", nil)
	if len(docs) != 5 {
		t.Fatalf("got %d docs, want 5", len(docs))
	}

	wantScores := []float64{0.95, 0.90, 0.85, 0.30, 0.20}
	for i, d := range docs {
		if d.RerankScore != wantScores[i] {
			t.Errorf("docs[%d].RerankScore = %.2f, want %.2f (descending)", i, d.RerankScore, wantScores[i])
		}
	}
	if docs[0].Text != "candidate 1" {
		t.Errorf("top doc = %q, want the highest-scored candidate 1", docs[0].Text)
	}
	for _, d := range docs {
		if d.RerankScore == 0.10 {
			t.Error("lowest-scored candidate survived the top-5 cut")
		}
	}
}

func TestRetrieve_RerankFallbackPreservesOrder(t *testing.T) {
	se := &mockSearcher{matches: makeMatches(8)}
	re := &mockReranker{err: errors.New("rerank down")}
	svc := newService(&mockEmbedder{}, se, re, &mockTopics{})

	docs := svc.Retrieve(context.Background(), "query", nil)
	if len(docs) != 5 {
		t.Fatalf("got %d docs, want first 5 candidates", len(docs))
	}
	for i, d := range docs {
		want := fmt.Sprintf("candidate %d", i)
		if d.Text != want {
			t.Errorf("docs[%d].Text = %q, want %q (original order)", i, d.Text, want)
		}
		if d.Reranked {
			t.Errorf("docs[%d] marked reranked after fallback", i)
		}
	}
}

func TestRetrieve_EmptyCandidates(t *testing.T) {
	svc := newService(&mockEmbedder{}, &mockSearcher{}, &mockReranker{}, &mockTopics{})

	docs := svc.Retrieve(context.Background(), "query", nil)
	if docs != nil {
		t.Errorf("got %v, want nil for zero candidates", docs)
	}
}

func TestRetrieve_SearchFailureReturnsEmpty(t *testing.T) {
	se := &mockSearcher{err: errors.New("store down")}
	svc := newService(&mockEmbedder{}, se, &mockReranker{}, &mockTopics{})

	docs := svc.Retrieve(context.Background(), "query", nil)
	if docs != nil {
		t.Errorf("got %v, want nil on search failure", docs)
	}
}

func TestRetrieve_HybridQueryIncludesHistory(t *testing.T) {
	emb := &mockEmbedder{}
	se := &mockSearcher{matches: makeMatches(2)}
	re := &mockReranker{results: []rerank.RankedResult{{Index: 0, RelevanceScore: 0.9}}}
	svc := newService(emb, se, re, &mockTopics{topics: "fintech funding"})

	history := []domain.Turn{
		userTurn("Tell me about Company A"),
		{IsUser: false, Content: "Company A is a fintech startup."},
		userTurn("What was their last round?"),
	}

	svc.Retrieve(context.Background(), "And the valuation?", history)

	if !strings.Contains(emb.lastText, "And the valuation?") {
		t.Errorf("hybrid query %q missing raw query", emb.lastText)
	}
	if !strings.Contains(emb.lastText, "Tell me about Company A") ||
		!strings.Contains(emb.lastText, "What was their last round?") {
		t.Errorf("hybrid query %q missing recent user turns", emb.lastText)
	}
	if !strings.Contains(emb.lastText, "fintech funding") {
		t.Errorf("hybrid query %q missing key topics", emb.lastText)
	}
	// User turns appear in chronological order.
	if strings.Index(emb.lastText, "Tell me about Company A") > strings.Index(emb.lastText, "What was their last round?") {
		t.Errorf("hybrid query %q has user turns out of order", emb.lastText)
	}
}

func TestRetrieve_RerankQueryCarriesContext(t *testing.T) {
	se := &mockSearcher{matches: makeMatches(2)}
	re := &mockReranker{results: []rerank.RankedResult{{Index: 0, RelevanceScore: 0.9}}}
	svc := newService(&mockEmbedder{}, se, re, &mockTopics{topics: "fintech funding"})

	history := []domain.Turn{userTurn("earlier question")}
	svc.Retrieve(context.Background(), "the valuation?", history)

	want := "the valuation? (In the context of: fintech funding)"
	if re.lastQuery != want {
		t.Errorf("rerank query = %q, want %q", re.lastQuery, want)
	}
}

func TestRetrieve_NoHistoryUsesRawQuery(t *testing.T) {
	emb := &mockEmbedder{}
	se := &mockSearcher{matches: makeMatches(1)}
	re := &mockReranker{results: []rerank.RankedResult{{Index: 0, RelevanceScore: 0.9}}}
	svc := newService(emb, se, re, &mockTopics{topics: "should not appear"})

	svc.Retrieve(context.Background(), "plain query", nil)

	if emb.lastText != "plain query" {
		t.Errorf("embedded %q, want raw query", emb.lastText)
	}
	if re.lastQuery != "plain query" {
		t.Errorf("rerank query = %q, want raw query", re.lastQuery)
	}
}
