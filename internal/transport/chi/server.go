// Package chi implements the HTTP API: document ingestion, streaming chat,
// and index administration.
package chi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/harborview-labs/insight/internal/domain"
	"github.com/harborview-labs/insight/internal/repository/corpus"
	"github.com/harborview-labs/insight/internal/usecase/ingest"
)

// errorCode values returned in error responses.
const (
	codeBadRequest    = "bad_request"
	codeNotFound      = "not_found"
	codeRateLimited   = "rate_limited"
	codeProviderError = "provider_error"
	codeInternal      = "internal_error"
)

// errorResponse is the JSON error envelope.
type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error, msg string) bool

// Chunker splits a raw document into token-bounded chunks.
type Chunker interface {
	ChunkDocument(document string) []domain.Chunk
}

// Ingestor indexes chunks into the vector store.
type Ingestor interface {
	Index(ctx context.Context, chunks []domain.Chunk, source string, onProgress ingest.ProgressFunc) (ingest.Stats, error)
}

// IndexAdmin exposes administrative index operations.
type IndexAdmin interface {
	DescribeStats(ctx context.Context) (corpus.Stats, error)
	Purge(ctx context.Context) error
	EnsureIndex(ctx context.Context) error
}

// Pinger checks vector-store connectivity for health reporting.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server handles the HTTP API.
type Server struct {
	chunker       Chunker
	ingestor      Ingestor
	sessions      *SessionRegistry
	index         IndexAdmin
	pinger        Pinger
	embedding     domain.HealthChecker
	logger        *zap.Logger
	errorHandlers []errorHandler
}

// NewServer creates an HTTP API server. embedding may be nil when the
// provider exposes no health probe.
func NewServer(
	chunker Chunker,
	ingestor Ingestor,
	sessions *SessionRegistry,
	index IndexAdmin,
	pinger Pinger,
	embedding domain.HealthChecker,
	logger *zap.Logger,
) *Server {
	s := &Server{
		chunker:   chunker,
		ingestor:  ingestor,
		sessions:  sessions,
		index:     index,
		pinger:    pinger,
		embedding: embedding,
		logger:    logger,
	}
	s.errorHandlers = []errorHandler{
		sentinelHandler(domain.ErrEmptyDocument, http.StatusBadRequest, codeBadRequest),
		sentinelHandler(domain.ErrNoChunks, http.StatusBadRequest, codeBadRequest),
		sentinelHandler(domain.ErrNotFound, http.StatusNotFound, codeNotFound),
		sentinelHandler(domain.ErrRateLimited, http.StatusTooManyRequests, codeRateLimited),
		sentinelHandler(domain.ErrEmbeddingProviderError, http.StatusBadGateway, codeProviderError),
		sentinelHandler(domain.ErrModelProviderError, http.StatusBadGateway, codeProviderError),
		sentinelHandler(domain.ErrRerankProviderError, http.StatusBadGateway, codeProviderError),
	}
	return s
}

// Routes mounts all handlers on the given router.
func (s *Server) Routes(r chi.Router) {
	r.Get("/health", s.Health)
	r.Get("/metrics", s.Metrics)
	r.Route("/v1", func(r chi.Router) {
		r.Post("/documents", s.IngestDocument)
		r.Post("/chat", s.Chat)
		r.Post("/chat/title", s.ChatTitle)
		r.Get("/index/stats", s.IndexStats)
		r.Delete("/index", s.PurgeIndex)
	})
}

type ingestRequest struct {
	Content string `json:"content"`
	Source  string `json:"source"`
}

type ingestResponse struct {
	TotalChunks   int `json:"total_chunks"`
	TotalBatches  int `json:"total_batches"`
	IndexedChunks int `json:"indexed_chunks"`
	FailedBatches int `json:"failed_batches"`
}

// IngestDocument handles POST /v1/documents: chunk and index a document.
func (s *Server) IngestDocument(w http.ResponseWriter, r *http.Request) {
	var req ingestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if req.Content == "" {
		writeError(w, http.StatusBadRequest, codeBadRequest, domain.ErrEmptyDocument.Error())
		return
	}
	if req.Source == "" {
		req.Source = "upload"
	}

	chunks := s.chunker.ChunkDocument(req.Content)

	stats, err := s.ingestor.Index(r.Context(), chunks, req.Source, func(p ingest.Progress) {
		s.logger.Info("Indexing progress",
			zap.String("source", req.Source),
			zap.Int("batch", p.Batch),
			zap.Int("total_batches", p.TotalBatches),
			zap.Int("processed", p.Processed),
			zap.Int("total", p.Total),
		)
	})
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, ingestResponse{
		TotalChunks:   stats.TotalChunks,
		TotalBatches:  stats.TotalBatches,
		IndexedChunks: stats.IndexedChunks,
		FailedBatches: stats.FailedBatches,
	})
}

type turnDTO struct {
	ID        string    `json:"id"`
	IsUser    bool      `json:"is_user"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

type chatRequest struct {
	SessionID string    `json:"session_id"`
	Message   string    `json:"message"`
	History   []turnDTO `json:"history"`
}

// sourceDTO is one citation in the chat stream's final event.
type sourceDTO struct {
	Text        string  `json:"text"`
	Source      string  `json:"source"`
	MainHeading string  `json:"main_heading,omitempty"`
	Score       float64 `json:"score"`
}

// Chat handles POST /v1/chat: stream the generated answer as
// server-sent events. Each delta arrives as a "delta" event; the stream
// closes with an "end" event carrying the citation list.
func (s *Server) Chat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if req.Message == "" {
		writeError(w, http.StatusBadRequest, codeBadRequest, "message is required")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, codeInternal, "streaming unsupported")
		return
	}

	sessionID, session := s.sessions.Acquire(req.SessionID)
	history := turnsFromDTO(req.History)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Session-ID", sessionID)
	w.WriteHeader(http.StatusOK)

	events, docs := session.Generate(r.Context(), req.Message, history)

	for ev := range events {
		switch ev.Kind {
		case domain.EventContentDelta:
			writeSSE(w, "delta", map[string]string{"content": ev.Delta})
			flusher.Flush()
		case domain.EventMessageEnd:
			payload := map[string]any{
				"session_id": sessionID,
				"sources":    sourcesToDTO(docs),
			}
			if ev.Err != nil {
				payload["error"] = "generation interrupted"
			}
			writeSSE(w, "end", payload)
			flusher.Flush()
		}
	}
}

type titleRequest struct {
	Message string `json:"message"`
}

type titleResponse struct {
	Title string `json:"title"`
}

// ChatTitle handles POST /v1/chat/title: derive a short conversation title
// from its opening message.
func (s *Server) ChatTitle(w http.ResponseWriter, r *http.Request) {
	var req titleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if req.Message == "" {
		writeError(w, http.StatusBadRequest, codeBadRequest, "message is required")
		return
	}

	// Title generation is stateless; the session is discarded afterwards.
	id, session := s.sessions.Acquire("")
	defer s.sessions.Release(id)
	writeJSON(w, http.StatusOK, titleResponse{
		Title: session.Title(r.Context(), req.Message),
	})
}

type indexStatsResponse struct {
	IndexName   string `json:"index_name"`
	RecordCount int    `json:"record_count"`
	Dimensions  int    `json:"dimensions"`
}

// IndexStats handles GET /v1/index/stats.
func (s *Server) IndexStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.index.DescribeStats(r.Context())
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, indexStatsResponse{
		IndexName:   stats.IndexName,
		RecordCount: stats.RecordCount,
		Dimensions:  stats.Dimensions,
	})
}

// PurgeIndex handles DELETE /v1/index: drop the index, delete all records,
// and recreate an empty index.
func (s *Server) PurgeIndex(w http.ResponseWriter, r *http.Request) {
	if err := s.index.Purge(r.Context()); err != nil {
		s.handleDomainError(w, err)
		return
	}
	if err := s.index.EnsureIndex(r.Context()); err != nil {
		s.handleDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Health handles GET /health: store connectivity plus the embedding
// provider probe when one is configured.
func (s *Server) Health(w http.ResponseWriter, r *http.Request) {
	if err := s.pinger.Ping(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "degraded",
			"store":  err.Error(),
		})
		return
	}
	if s.embedding != nil {
		if err := s.embedding.HealthCheck(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status":    "degraded",
				"embedding": err.Error(),
			})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Metrics handles GET /metrics.
func (s *Server) Metrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

func turnsFromDTO(dtos []turnDTO) []domain.Turn {
	if len(dtos) == 0 {
		return nil
	}
	turns := make([]domain.Turn, len(dtos))
	for i, d := range dtos {
		turns[i] = domain.Turn{
			ID:        d.ID,
			IsUser:    d.IsUser,
			Content:   d.Content,
			Timestamp: d.Timestamp,
		}
	}
	return turns
}

func sourcesToDTO(docs []domain.RetrievedDocument) []sourceDTO {
	sources := make([]sourceDTO, len(docs))
	for i, d := range docs {
		score := d.InitialScore
		if d.Reranked {
			score = d.RerankScore
		}
		sources[i] = sourceDTO{
			Text:        d.Text,
			Source:      d.Source,
			MainHeading: d.MainHeading,
			Score:       score,
		}
	}
	return sources
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Code: code, Message: message})
}

// writeSSE emits one server-sent event with a JSON payload.
func writeSSE(w http.ResponseWriter, event string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	_, _ = w.Write([]byte("event: " + event + "\ndata: " + string(data) + "\n\n"))
}

// safeDomainMessage returns a sentinel error message for the client without exposing internals.
func safeDomainMessage(err error) string {
	sentinels := []error{
		domain.ErrEmptyDocument,
		domain.ErrNoChunks,
		domain.ErrNotFound,
		domain.ErrRateLimited,
		domain.ErrEmbeddingProviderError,
		domain.ErrModelProviderError,
		domain.ErrRerankProviderError,
	}
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return "internal error"
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
func sentinelHandler(sentinel error, status int, code string) errorHandler {
	return func(w http.ResponseWriter, err error, msg string) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, msg)
		return true
	}
}

func (s *Server) handleDomainError(w http.ResponseWriter, err error) {
	s.logger.Warn("domain error", zap.Error(err))
	msg := safeDomainMessage(err)
	for _, h := range s.errorHandlers {
		if h(w, err, msg) {
			return
		}
	}
	s.logger.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, codeInternal, "internal error")
}
