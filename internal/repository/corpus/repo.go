// Package corpus is the vector-record repository: it owns key layout and
// index schema for the document corpus and is the only writer of persisted
// vector records.
package corpus

import (
	"context"
	"errors"
	"fmt"

	"github.com/harborview-labs/insight/internal/db"
	"github.com/harborview-labs/insight/internal/domain"
)

// store is the consumer interface for corpus persistence (ISP).
type store interface {
	db.HashStore
	db.IndexManager
	db.Searcher
}

// Record is one persisted vector record. Immutable once upserted; removed
// only by administrative purge or index reset.
type Record struct {
	ID          string
	Embedding   []float32
	Text        string
	Source      string
	MainHeading string
}

// Match is one KNN hit with its similarity score.
type Match struct {
	ID          string
	Score       float64
	Text        string
	Source      string
	MainHeading string
}

// Stats describes the current state of the corpus index.
type Stats struct {
	IndexName   string
	RecordCount int
	Dimensions  int
}

// Config holds index parameters fixed at creation time.
type Config struct {
	IndexName       string
	KeyPrefix       string
	Dimensions      int
	HNSWM           int
	HNSWEFConstruct int
}

// Repo provides upsert/query plus administrative index operations.
type Repo struct {
	store store
	cfg   Config
}

// New creates a corpus repository.
func New(s store, cfg Config) *Repo {
	return &Repo{store: s, cfg: cfg}
}

func (r *Repo) recordKey(id string) string {
	return r.cfg.KeyPrefix + "rec:" + id
}

// EnsureIndex creates the HNSW cosine index if it does not exist yet.
// The vector dimension is fixed here for the life of the index.
func (r *Repo) EnsureIndex(ctx context.Context) error {
	exists, err := r.store.IndexExists(ctx, r.cfg.IndexName)
	if err != nil {
		return fmt.Errorf("probe index: %w", err)
	}
	if exists {
		return nil
	}

	def := &db.IndexDefinition{
		Name:     r.cfg.IndexName,
		Prefixes: []string{r.cfg.KeyPrefix + "rec:"},
		Fields: []db.IndexField{
			{Name: fieldText, Type: db.IndexFieldText},
			{Name: fieldSource, Type: db.IndexFieldTag},
			{Name: fieldHeading, Type: db.IndexFieldText},
			{
				Name:              fieldVector,
				Type:              db.IndexFieldVector,
				VectorAlgo:        db.VectorHNSW,
				VectorDim:         r.cfg.Dimensions,
				VectorDistance:    db.DistanceCosine,
				VectorM:           r.cfg.HNSWM,
				VectorEFConstruct: r.cfg.HNSWEFConstruct,
			},
		},
	}
	if err := def.Validate(); err != nil {
		return fmt.Errorf("index definition: %w", err)
	}

	if err := r.store.CreateIndex(ctx, def); err != nil && !errors.Is(err, db.ErrIndexExists) {
		return fmt.Errorf("create index: %w", err)
	}
	return nil
}

// Upsert writes a batch of records in one pipelined call. The batch either
// lands whole or returns an error; the indexer decides what to do with a
// failed batch.
func (r *Repo) Upsert(ctx context.Context, records []Record) error {
	if len(records) == 0 {
		return nil
	}

	items := make([]db.HashSetItem, len(records))
	for i := range records {
		if len(records[i].Embedding) != r.cfg.Dimensions {
			return fmt.Errorf(
				"record %s: embedding has %d dimensions, index expects %d",
				records[i].ID, len(records[i].Embedding), r.cfg.Dimensions,
			)
		}
		items[i] = db.HashSetItem{
			Key:    r.recordKey(records[i].ID),
			Fields: buildHashFields(&records[i]),
		}
	}

	if err := r.store.HSetMulti(ctx, items); err != nil {
		return fmt.Errorf("upsert batch: %w", err)
	}
	return nil
}

// Query returns the topK nearest records by cosine similarity.
func (r *Repo) Query(ctx context.Context, vector []float32, topK int) ([]Match, error) {
	res, err := r.store.SearchKNN(ctx, &db.KNNQuery{
		IndexName:    r.cfg.IndexName,
		Vector:       vector,
		K:            topK,
		ReturnFields: []string{fieldText, fieldSource, fieldHeading},
	})
	if err != nil {
		return nil, fmt.Errorf("knn query: %w", err)
	}

	matches := make([]Match, 0, len(res.Entries))
	for _, e := range res.Entries {
		matches = append(matches, Match{
			ID:          trimKeyPrefix(e.Key, r.cfg.KeyPrefix+"rec:"),
			Score:       e.Score,
			Text:        e.Fields[fieldText],
			Source:      e.Fields[fieldSource],
			MainHeading: e.Fields[fieldHeading],
		})
	}
	return matches, nil
}

// DescribeStats reports record count for the corpus index.
func (r *Repo) DescribeStats(ctx context.Context) (Stats, error) {
	count, err := r.store.SearchCount(ctx, r.cfg.IndexName, "*")
	if err != nil {
		if errors.Is(err, db.ErrIndexNotFound) {
			return Stats{}, domain.ErrNotFound
		}
		return Stats{}, fmt.Errorf("count records: %w", err)
	}
	return Stats{
		IndexName:   r.cfg.IndexName,
		RecordCount: count,
		Dimensions:  r.cfg.Dimensions,
	}, nil
}

// Purge drops the index and deletes every stored record. Administrative
// operation; the pipeline itself never calls it.
func (r *Repo) Purge(ctx context.Context) error {
	if err := r.store.DropIndex(ctx, r.cfg.IndexName); err != nil && !errors.Is(err, db.ErrIndexNotFound) {
		return fmt.Errorf("drop index: %w", err)
	}

	keys, err := r.store.Scan(ctx, r.cfg.KeyPrefix+"rec:*")
	if err != nil {
		return fmt.Errorf("scan records: %w", err)
	}
	for _, key := range keys {
		if err := r.store.Del(ctx, key); err != nil {
			return fmt.Errorf("delete %s: %w", key, err)
		}
	}
	return nil
}

func trimKeyPrefix(key, prefix string) string {
	if len(key) > len(prefix) && key[:len(prefix)] == prefix {
		return key[len(prefix):]
	}
	return key
}
