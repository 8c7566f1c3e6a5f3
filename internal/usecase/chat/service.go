// Package chat assembles the prompt from classifier output, conversation
// memory, and retrieved passages, then streams the model's answer.
package chat

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/harborview-labs/insight/internal/domain"
	"github.com/harborview-labs/insight/internal/metrics"
	"github.com/harborview-labs/insight/internal/usecase/classify"
)

const (
	generationTemperature = 0.7
	generationMaxTokens   = 3000

	// apologyMessage is the single event emitted when generation cannot
	// start. Failures never propagate past Generate.
	apologyMessage = "Error generating response. Please try again."

	titleMaxInputChars = 500
	titleMaxChars      = 30
	defaultTitle       = "New Chat"
)

// Retriever supplies grounding passages for the query.
type Retriever interface {
	Retrieve(ctx context.Context, query string, history []domain.Turn) []domain.RetrievedDocument
}

// Memory selects relevant prior turns and keeps the rolling summary.
type Memory interface {
	Select(ctx context.Context, query string, history []domain.Turn) []domain.Turn
	Update(ctx context.Context, currentMessage string, history []domain.Turn)
	Summary() string
}

// ClassifyFunc labels a query for prompt shaping.
type ClassifyFunc func(userMessage string, history []domain.Turn) domain.Label

// Service is one session's answer generator. Holds no mutable state of its
// own; the session's summary lives in Memory.
type Service struct {
	retriever Retriever
	memory    Memory
	model     domain.ChatModel
	classify  ClassifyFunc
	logger    *zap.Logger
}

// New creates a chat service using the default classifier.
func New(retriever Retriever, memory Memory, model domain.ChatModel, logger *zap.Logger) *Service {
	return &Service{
		retriever: retriever,
		memory:    memory,
		model:     model,
		classify:  classify.Classify,
		logger:    logger,
	}
}

// Generate answers the user message with retrieved grounding and streams
// the result. It never returns an error: generation failures surface as a
// one-event apology stream with no citations. The memory update runs after
// dispatch using the history as it stood before this turn's reply.
func (s *Service) Generate(ctx context.Context, userMessage string, history []domain.Turn) (<-chan domain.StreamEvent, []domain.RetrievedDocument) {
	docs := s.retriever.Retrieve(ctx, userMessage, history)
	label := s.classify(userMessage, history)

	messages := s.composeMessages(ctx, userMessage, history, docs, label)

	start := time.Now()
	stream, err := s.model.Stream(ctx, domain.CompletionRequest{
		Messages:    messages,
		Temperature: generationTemperature,
		MaxTokens:   generationMaxTokens,
	})
	if err != nil {
		s.logger.Warn("Generation failed to start",
			zap.String("label", string(label)), zap.Error(err))
		metrics.GenerationsTotal.WithLabelValues(string(label), "error").Inc()
		return apologyStream(), nil
	}

	s.memory.Update(ctx, userMessage, history)

	return s.observeStream(stream, label, start), docs
}

// composeMessages builds the full prompt: composed system message, optional
// memory message, selected prior turns, and the context-bearing user
// message.
func (s *Service) composeMessages(ctx context.Context, userMessage string, history []domain.Turn, docs []domain.RetrievedDocument, label domain.Label) []domain.Message {
	messages := []domain.Message{
		{Role: domain.RoleSystem, Content: systemMessage(label)},
	}

	if summary := s.memory.Summary(); summary != "" {
		messages = append(messages, domain.Message{
			Role:    domain.RoleSystem,
			Content: memoryMessage(summary),
		})
	}

	for _, turn := range s.memory.Select(ctx, userMessage, history) {
		role := domain.RoleAssistant
		if turn.IsUser {
			role = domain.RoleUser
		}
		messages = append(messages, domain.Message{Role: role, Content: turn.Content})
	}

	messages = append(messages, domain.Message{
		Role:    domain.RoleUser,
		Content: contextMessage(userMessage, docs, label),
	})
	return messages
}

// observeStream forwards events while recording duration and outcome.
func (s *Service) observeStream(in <-chan domain.StreamEvent, label domain.Label, start time.Time) <-chan domain.StreamEvent {
	out := make(chan domain.StreamEvent)
	go func() {
		defer close(out)
		for ev := range in {
			if ev.Kind == domain.EventMessageEnd {
				metrics.GenerationDuration.Observe(time.Since(start).Seconds())
				status := "ok"
				if ev.Err != nil {
					status = "error"
				}
				metrics.GenerationsTotal.WithLabelValues(string(label), status).Inc()
			}
			out <- ev
		}
	}()
	return out
}

func apologyStream() <-chan domain.StreamEvent {
	events := make(chan domain.StreamEvent, 2)
	events <- domain.StreamEvent{Kind: domain.EventContentDelta, Delta: apologyMessage}
	events <- domain.StreamEvent{Kind: domain.EventMessageEnd}
	close(events)
	return events
}

// Title produces a short conversation title from its opening message,
// falling back to a fixed default on any failure.
func (s *Service) Title(ctx context.Context, firstMessage string) string {
	snippet := firstMessage
	if r := []rune(snippet); len(r) > titleMaxInputChars {
		snippet = string(r[:titleMaxInputChars])
	}

	raw, err := s.model.Complete(ctx, domain.CompletionRequest{
		Messages: []domain.Message{{
			Role:    domain.RoleUser,
			Content: fmt.Sprintf(titlePromptTemplate, snippet),
		}},
		Temperature: 0.2,
		MaxTokens:   10,
	})
	if err != nil {
		s.logger.Warn("Title generation failed", zap.Error(err))
		return defaultTitle
	}

	title := strings.TrimSpace(strings.Trim(strings.TrimSpace(raw), `"'`))
	if title == "" {
		return defaultTitle
	}
	if r := []rune(title); len(r) > titleMaxChars {
		title = string(r[:titleMaxChars-3]) + "..."
	}
	return title
}
