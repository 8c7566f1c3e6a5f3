// Package ingest turns document chunks into persisted vector records.
package ingest

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/harborview-labs/insight/internal/domain"
	"github.com/harborview-labs/insight/internal/metrics"
	"github.com/harborview-labs/insight/internal/repository/corpus"
)

// Stats summarizes one indexing run.
type Stats struct {
	TotalChunks   int
	TotalBatches  int
	IndexedChunks int
	FailedBatches int
}

// Service indexes chunk batches: embed, assign IDs, upsert.
type Service struct {
	embedder  Embedder
	upserter  Upserter
	batchSize int
	logger    *zap.Logger
}

// New creates an ingestion service.
func New(embedder Embedder, upserter Upserter, batchSize int, logger *zap.Logger) *Service {
	if batchSize <= 0 {
		batchSize = 100
	}
	return &Service{
		embedder:  embedder,
		upserter:  upserter,
		batchSize: batchSize,
		logger:    logger,
	}
}

// Index embeds and stores chunks in batches. A failed batch is logged and
// skipped; the run continues and the failure count lands in Stats. Record
// IDs combine a fresh run ID with the chunk's global offset, so no two
// records of a run collide. onProgress may be nil; it fires only after
// successful batches.
func (s *Service) Index(ctx context.Context, chunks []domain.Chunk, source string, onProgress ProgressFunc) (Stats, error) {
	if len(chunks) == 0 {
		return Stats{}, domain.ErrNoChunks
	}

	runID := uuid.NewString()
	total := len(chunks)
	totalBatches := (total + s.batchSize - 1) / s.batchSize

	stats := Stats{
		TotalChunks:  total,
		TotalBatches: totalBatches,
	}

	for b := 0; b < totalBatches; b++ {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		lo := b * s.batchSize
		hi := lo + s.batchSize
		if hi > total {
			hi = total
		}
		batch := chunks[lo:hi]

		if err := s.indexBatch(ctx, runID, lo, batch, source); err != nil {
			stats.FailedBatches++
			metrics.IndexBatchesTotal.WithLabelValues("failed").Inc()
			s.logger.Warn("Batch indexing failed, skipping",
				zap.Int("batch", b+1),
				zap.Int("total_batches", totalBatches),
				zap.Int("batch_size", len(batch)),
				zap.Error(err),
			)
			continue
		}

		stats.IndexedChunks += len(batch)
		metrics.IndexBatchesTotal.WithLabelValues("ok").Inc()
		metrics.IndexedChunksTotal.Add(float64(len(batch)))

		if onProgress != nil {
			onProgress(Progress{
				Batch:        b + 1,
				TotalBatches: totalBatches,
				BatchSize:    len(batch),
				Processed:    stats.IndexedChunks,
				Total:        total,
			})
		}
	}

	return stats, nil
}

func (s *Service) indexBatch(ctx context.Context, runID string, offset int, batch []domain.Chunk, source string) error {
	texts := make([]string, len(batch))
	for i, c := range batch {
		texts[i] = c.Text
	}

	embedded, err := s.embedder.BatchEmbed(ctx, texts)
	if err != nil {
		return fmt.Errorf("embed batch: %w", err)
	}
	if len(embedded.Embeddings) != len(batch) {
		return fmt.Errorf("embedder returned %d vectors for %d chunks", len(embedded.Embeddings), len(batch))
	}

	records := make([]corpus.Record, len(batch))
	for i, c := range batch {
		records[i] = corpus.Record{
			ID:          fmt.Sprintf("%s-%d", runID, offset+i),
			Embedding:   embedded.Embeddings[i],
			Text:        c.Text,
			Source:      source,
			MainHeading: c.Metadata.MainHeading,
		}
	}

	if err := s.upserter.Upsert(ctx, records); err != nil {
		return fmt.Errorf("upsert batch: %w", err)
	}
	return nil
}
