// Package memory maintains per-session conversation memory: a rolling
// natural-language summary and relevance-based selection of prior turns.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/harborview-labs/insight/internal/domain"
)

const (
	// recentTurns are always included verbatim in selection.
	recentTurns = 6
	// maxEarlierTurns bounds how many earlier turns similarity can add.
	maxEarlierTurns = 4
	// similarityThreshold gates earlier turns into the selection.
	similarityThreshold = 0.3
)

// Manager owns one session's mutable summary. Not safe for concurrent use;
// a session's call chain is sequential by design.
type Manager struct {
	embedder domain.Embedder
	model    domain.ChatModel
	summary  string
	logger   *zap.Logger
}

// New creates a memory manager with an empty summary.
func New(embedder domain.Embedder, model domain.ChatModel, logger *zap.Logger) *Manager {
	return &Manager{
		embedder: embedder,
		model:    model,
		logger:   logger,
	}
}

// Summary returns the current rolling summary, empty until the first
// successful update.
func (m *Manager) Summary() string {
	return m.summary
}

// Select picks the turns worth including verbatim in the prompt. Short
// histories pass through unchanged. Longer ones keep the last 6 turns and
// add up to 4 earlier turns whose embedding similarity to the query clears
// the threshold, merged back into chronological order. Embedding failures
// degrade to a positional heuristic and never propagate.
func (m *Manager) Select(ctx context.Context, query string, history []domain.Turn) []domain.Turn {
	if len(history) <= recentTurns {
		return history
	}

	earlier := history[:len(history)-recentTurns]
	recent := history[len(history)-recentTurns:]

	picked, err := m.pickSimilar(ctx, query, earlier)
	if err != nil {
		m.logger.Warn("Turn similarity scoring failed, using positional fallback", zap.Error(err))
		if len(history) > 12 {
			picked = []int{0, 1}
		}
	}

	sort.Ints(picked)
	selected := make([]domain.Turn, 0, len(picked)+recentTurns)
	for _, idx := range picked {
		selected = append(selected, earlier[idx])
	}
	selected = append(selected, recent...)
	return selected
}

// pickSimilar returns indexes into earlier whose similarity to the query
// exceeds the threshold, best first, capped at maxEarlierTurns.
func (m *Manager) pickSimilar(ctx context.Context, query string, earlier []domain.Turn) ([]int, error) {
	queryRes, err := m.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	type scored struct {
		idx int
		sim float64
	}
	scores := make([]scored, 0, len(earlier))
	for i, turn := range earlier {
		res, err := m.embedder.Embed(ctx, turn.Content)
		if err != nil {
			return nil, fmt.Errorf("embed turn %d: %w", i, err)
		}
		scores = append(scores, scored{
			idx: i,
			sim: domain.CosineSimilarity(queryRes.Embedding, res.Embedding),
		})
	}

	sort.Slice(scores, func(a, b int) bool { return scores[a].sim > scores[b].sim })

	var picked []int
	for _, s := range scores {
		if len(picked) == maxEarlierTurns {
			break
		}
		if s.sim > similarityThreshold {
			picked = append(picked, s.idx)
		}
	}
	return picked, nil
}

// Update refreshes the rolling summary after an exchange. No-op for
// histories shorter than 4 turns. The model merges new information into an
// existing summary or writes a fresh one; on model failure, a crude
// "topics discussed" summary replaces it only once the conversation is
// long enough to need one.
func (m *Manager) Update(ctx context.Context, currentMessage string, history []domain.Turn) {
	if len(history) < 4 {
		return
	}

	transcript := domain.Transcript(history, 10) + "\nUser: " + currentMessage

	var prompt string
	if m.summary != "" {
		prompt = fmt.Sprintf(`Previous conversation summary:
%s

New conversation segment:
%s

Create an updated summary of the entire conversation that:
1. Integrates new information with the previous summary
2. Preserves key topics, entities, and data points from the entire conversation
3. Is organized by topic rather than chronologically
4. Focuses on information that might be referenced in follow-up questions
5. Is concise but comprehensive`, m.summary, transcript)
	} else {
		prompt = fmt.Sprintf(`Based on this conversation:
%s

Create a summary that:
1. Identifies key topics, entities, and data points discussed
2. Is organized by topic rather than chronologically
3. Focuses on information that might be referenced in follow-up questions
4. Is concise but comprehensive`, transcript)
	}

	updated, err := m.model.Complete(ctx, domain.CompletionRequest{
		Messages:    []domain.Message{{Role: domain.RoleUser, Content: prompt}},
		Temperature: 0.2,
		MaxTokens:   500,
	})
	if err != nil {
		m.logger.Warn("Summary update failed", zap.Error(err))
		if len(history) > 8 {
			m.summary = "Topics discussed: " + strings.Join(domain.LastUserContents(history, 5), " | ")
		}
		return
	}
	if updated != "" {
		m.summary = updated
	}
}

// KeyTopics distills the conversation into a short topic string for hybrid
// query construction. Short histories use the last user turns directly;
// longer ones ask the model for an extractive bullet summary, degrading to
// the same heuristic on failure.
func (m *Manager) KeyTopics(ctx context.Context, history []domain.Turn) string {
	if len(history) == 0 {
		return ""
	}

	if len(history) > 5 {
		transcript := domain.Transcript(history, 15)
		prompt := fmt.Sprintf(`Extract the key topics from this conversation as a short bullet list.
Be extractive: reuse the conversation's own wording, keep only topics, entities, and figures.

%s`, transcript)

		topics, err := m.model.Complete(ctx, domain.CompletionRequest{
			Messages:    []domain.Message{{Role: domain.RoleUser, Content: prompt}},
			Temperature: 0.1,
			MaxTokens:   200,
		})
		if err == nil && topics != "" {
			return topics
		}
		if err != nil {
			m.logger.Warn("Key topic extraction failed, using heuristic", zap.Error(err))
		}
	}

	return strings.Join(domain.LastUserContents(history, 3), " ")
}
