package domain

import "context"

// Role identifies the author of a chat message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is a single entry in a composed prompt.
type Message struct {
	Role    Role
	Content string
}

// CompletionRequest is the input to the language-model collaborator.
type CompletionRequest struct {
	Messages    []Message
	Temperature float32
	MaxTokens   int
}

// EventKind tags StreamEvent variants. The set is closed: generator logic
// switches on it instead of probing provider-specific event shapes.
type EventKind int

const (
	// EventContentDelta carries an incremental piece of answer text.
	EventContentDelta EventKind = iota
	// EventMessageEnd terminates a stream. Err is set when the stream
	// ended abnormally after partial output.
	EventMessageEnd
)

// StreamEvent is one decoded event from a streaming chat call.
type StreamEvent struct {
	Kind  EventKind
	Delta string
	Err   error
}

// ChatModel is the language-model collaborator contract: a non-streaming
// completion call (summaries, topics, titles) and a streaming chat call
// (answer generation).
type ChatModel interface {
	Complete(ctx context.Context, req CompletionRequest) (string, error)
	Stream(ctx context.Context, req CompletionRequest) (<-chan StreamEvent, error)
}
