package ingest

import (
	"context"

	"github.com/harborview-labs/insight/internal/domain"
	"github.com/harborview-labs/insight/internal/repository/corpus"
)

// Embedder vectorizes chunk batches.
type Embedder interface {
	BatchEmbed(ctx context.Context, texts []string) (domain.BatchEmbeddingResult, error)
}

// Upserter defines the storage contract for vector records.
type Upserter interface {
	Upsert(ctx context.Context, records []corpus.Record) error
}

// Progress is reported after each successfully indexed batch.
type Progress struct {
	Batch        int // 1-based index of the batch just finished
	TotalBatches int
	BatchSize    int // chunks in the batch just finished
	Processed    int // chunks indexed so far
	Total        int // chunks in the whole run
}

// ProgressFunc receives ingestion progress updates.
type ProgressFunc func(Progress)
