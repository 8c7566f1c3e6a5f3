package memory

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/harborview-labs/insight/internal/domain"
)

// mockEmbedder maps exact text to a fixed vector.
type mockEmbedder struct {
	vectors map[string][]float32
	err     error
}

func (m *mockEmbedder) Embed(_ context.Context, text string) (domain.EmbeddingResult, error) {
	if m.err != nil {
		return domain.EmbeddingResult{}, m.err
	}
	if vec, ok := m.vectors[text]; ok {
		return domain.EmbeddingResult{Embedding: vec}, nil
	}
	return domain.EmbeddingResult{Embedding: []float32{0, 0, 1}}, nil
}

type mockChatModel struct {
	response string
	err      error
	prompts  []string
}

func (m *mockChatModel) Complete(_ context.Context, req domain.CompletionRequest) (string, error) {
	m.prompts = append(m.prompts, req.Messages[len(req.Messages)-1].Content)
	if m.err != nil {
		return "", m.err
	}
	return m.response, nil
}

func (m *mockChatModel) Stream(_ context.Context, _ domain.CompletionRequest) (<-chan domain.StreamEvent, error) {
	return nil, errors.New("not implemented")
}

func makeHistory(n int) []domain.Turn {
	history := make([]domain.Turn, n)
	for i := range history {
		history[i] = domain.Turn{
			ID:        fmt.Sprintf("t%d", i),
			IsUser:    i%2 == 0,
			Content:   fmt.Sprintf("turn %d", i),
			Timestamp: time.Unix(int64(i), 0),
		}
	}
	return history
}

func TestSelect_ShortHistoryPassesThrough(t *testing.T) {
	m := New(&mockEmbedder{}, &mockChatModel{}, zap.NewNop())
	history := makeHistory(5)

	got := m.Select(context.Background(), "query", history)
	if len(got) != 5 {
		t.Fatalf("got %d turns, want 5", len(got))
	}
}

func TestSelect_BoundAndOrder(t *testing.T) {
	history := makeHistory(20)
	// Make turns 2 and 7 similar to the query, the rest orthogonal.
	emb := &mockEmbedder{vectors: map[string][]float32{
		"query":  {1, 0, 0},
		"turn 2": {1, 0, 0},
		"turn 7": {0.9, 0.1, 0},
	}}
	m := New(emb, &mockChatModel{}, zap.NewNop())

	got := m.Select(context.Background(), "query", history)

	if len(got) < 6 || len(got) > 10 {
		t.Fatalf("got %d turns, want between 6 and 10", len(got))
	}
	// Last 6 turns always present, in order, at the tail.
	tail := got[len(got)-6:]
	for i, turn := range tail {
		want := fmt.Sprintf("t%d", 14+i)
		if turn.ID != want {
			t.Errorf("tail[%d].ID = %s, want %s", i, turn.ID, want)
		}
	}
	// Similar earlier turns included chronologically before the tail.
	if got[0].ID != "t2" || got[1].ID != "t7" {
		t.Errorf("earlier picks = %s, %s; want t2, t7", got[0].ID, got[1].ID)
	}
}

func TestSelect_EmbedFailureFallback(t *testing.T) {
	history := makeHistory(14)
	m := New(&mockEmbedder{err: errors.New("provider down")}, &mockChatModel{}, zap.NewNop())

	got := m.Select(context.Background(), "query", history)

	// Fallback: first 2 turns plus last 6.
	if len(got) != 8 {
		t.Fatalf("got %d turns, want 8", len(got))
	}
	if got[0].ID != "t0" || got[1].ID != "t1" {
		t.Errorf("fallback head = %s, %s; want t0, t1", got[0].ID, got[1].ID)
	}
}

func TestSelect_EmbedFailureShortConversation(t *testing.T) {
	history := makeHistory(10)
	m := New(&mockEmbedder{err: errors.New("provider down")}, &mockChatModel{}, zap.NewNop())

	got := m.Select(context.Background(), "query", history)
	if len(got) != 6 {
		t.Fatalf("got %d turns, want just the last 6", len(got))
	}
}

func TestUpdate_NoOpBelowFourTurns(t *testing.T) {
	model := &mockChatModel{response: "should not be used"}
	m := New(&mockEmbedder{}, model, zap.NewNop())

	m.Update(context.Background(), "msg", makeHistory(3))
	if m.Summary() != "" {
		t.Errorf("summary = %q, want unchanged empty", m.Summary())
	}
	if len(model.prompts) != 0 {
		t.Error("model should not be called for short history")
	}
}

func TestUpdate_FreshThenMerge(t *testing.T) {
	model := &mockChatModel{response: "summary v1"}
	m := New(&mockEmbedder{}, model, zap.NewNop())

	m.Update(context.Background(), "msg", makeHistory(6))
	if m.Summary() != "summary v1" {
		t.Fatalf("summary = %q, want summary v1", m.Summary())
	}

	model.response = "summary v2"
	m.Update(context.Background(), "msg2", makeHistory(6))
	if m.Summary() != "summary v2" {
		t.Fatalf("summary = %q, want summary v2", m.Summary())
	}
	// Second prompt must carry the prior summary for continuity.
	if !strings.Contains(model.prompts[1], "summary v1") {
		t.Error("merge prompt does not include previous summary")
	}
}

func TestUpdate_FailureFallback(t *testing.T) {
	model := &mockChatModel{err: errors.New("model down")}
	m := New(&mockEmbedder{}, model, zap.NewNop())

	// History of 10 (> 8): crude fallback replaces the summary.
	m.Update(context.Background(), "msg", makeHistory(10))
	if !strings.HasPrefix(m.Summary(), "Topics discussed: ") {
		t.Errorf("summary = %q, want Topics discussed fallback", m.Summary())
	}
	if !strings.Contains(m.Summary(), " | ") {
		t.Errorf("fallback summary %q should join user turns", m.Summary())
	}
}

func TestUpdate_FailureShortHistoryKeepsSummary(t *testing.T) {
	model := &mockChatModel{response: "good summary"}
	m := New(&mockEmbedder{}, model, zap.NewNop())
	m.Update(context.Background(), "msg", makeHistory(6))

	model.err = errors.New("model down")
	m.Update(context.Background(), "msg2", makeHistory(6))
	if m.Summary() != "good summary" {
		t.Errorf("summary = %q, want prior summary kept on failure", m.Summary())
	}
}

func TestKeyTopics(t *testing.T) {
	t.Run("empty history", func(t *testing.T) {
		m := New(&mockEmbedder{}, &mockChatModel{}, zap.NewNop())
		if got := m.KeyTopics(context.Background(), nil); got != "" {
			t.Errorf("got %q, want empty", got)
		}
	})

	t.Run("short history uses last user turns", func(t *testing.T) {
		model := &mockChatModel{response: "should not be used"}
		m := New(&mockEmbedder{}, model, zap.NewNop())

		got := m.KeyTopics(context.Background(), makeHistory(4))
		if got != "turn 0 turn 2" {
			t.Errorf("got %q, want joined user turns", got)
		}
		if len(model.prompts) != 0 {
			t.Error("model should not be called for short history")
		}
	})

	t.Run("long history asks model", func(t *testing.T) {
		model := &mockChatModel{response: "- fintech funding"}
		m := New(&mockEmbedder{}, model, zap.NewNop())

		got := m.KeyTopics(context.Background(), makeHistory(8))
		if got != "- fintech funding" {
			t.Errorf("got %q, want model output", got)
		}
	})

	t.Run("model failure falls back", func(t *testing.T) {
		model := &mockChatModel{err: errors.New("model down")}
		m := New(&mockEmbedder{}, model, zap.NewNop())

		got := m.KeyTopics(context.Background(), makeHistory(8))
		if got != "turn 2 turn 4 turn 6" {
			t.Errorf("got %q, want heuristic fallback", got)
		}
	})
}
