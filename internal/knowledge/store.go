package knowledge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/pgvector/pgvector-go"
)

// searchTimeout bounds every backend query so a slow vector index cannot
// stall the request pipeline; callers get their own fallback policy instead.
const searchTimeout = 10 * time.Second

// InsertChunkParams carries one chunk row into the backend.
type InsertChunkParams struct {
	ID         string
	Collection string
	Content    string
	Keywords   string // space-joined lexical terms folded into the tsvector
	Embedding  pgvector.Vector
	Metadata   []byte // JSON object
	CreatedAt  time.Time
}

// SemanticSearchParams describes a nearest-neighbor query over one collection.
type SemanticSearchParams struct {
	Collection     string
	QueryEmbedding pgvector.Vector
	FilterMetadata []byte // JSON object for @> containment; nil = no filter
	Limit          int32
}

// KeywordSearchParams describes a full-text query over one collection.
type KeywordSearchParams struct {
	Collection     string
	Query          string
	FilterMetadata []byte
	Limit          int32
}

// ChunkRow is a backend result row with its raw score.
type ChunkRow struct {
	ID         string
	Collection string
	Content    string
	Keywords   string
	Metadata   []byte
	CreatedAt  time.Time
	Score      float64
}

// Querier defines the database operations the Store needs. The interface is
// defined here, by the consumer, so tests can substitute mocks; PG is the
// production implementation.
type Querier interface {
	InsertChunk(ctx context.Context, arg InsertChunkParams) error
	SemanticSearch(ctx context.Context, arg SemanticSearchParams) ([]ChunkRow, error)
	KeywordSearch(ctx context.Context, arg KeywordSearchParams) ([]ChunkRow, error)
	CountChunks(ctx context.Context, collection string) (int64, error)
}

// ErrUnknownCollection indicates a query against a collection outside the
// closed set.
var ErrUnknownCollection = errors.New("unknown collection")

// Store manages chunk collections with vector and keyword search.
//
// Store is safe for concurrent use by multiple goroutines.
type Store struct {
	queries  Querier
	embedder *Embedder
	logger   *slog.Logger
}

// New creates a Store.
func New(querier Querier, embedder *Embedder, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		queries:  querier,
		embedder: embedder,
		logger:   logger,
	}
}

// Add embeds and inserts chunks. Chunks are immutable once added; re-adding
// an existing ID is a backend-level upsert that keeps ingestion idempotent.
func (s *Store) Add(ctx context.Context, chunks []Chunk) error {
	for _, c := range chunks {
		if !c.Collection.Valid() {
			return fmt.Errorf("%w: %q", ErrUnknownCollection, c.Collection)
		}
		if c.Text == "" {
			return fmt.Errorf("chunk %q has empty text", c.ID)
		}

		vec, err := s.embedder.Embed(ctx, c.Text)
		if err != nil {
			return fmt.Errorf("embedding chunk %q: %w", c.ID, err)
		}

		metadataJSON, err := json.Marshal(c.Metadata)
		if err != nil {
			return fmt.Errorf("marshaling metadata for chunk %q: %w", c.ID, err)
		}

		createdAt := c.CreatedAt
		if createdAt.IsZero() {
			createdAt = time.Now()
		}

		err = s.queries.InsertChunk(ctx, InsertChunkParams{
			ID:         c.ID,
			Collection: string(c.Collection),
			Content:    c.Text,
			Keywords:   joinKeywords(c.Keywords),
			Embedding:  pgvector.NewVector(vec),
			Metadata:   metadataJSON,
			CreatedAt:  createdAt,
		})
		if err != nil {
			return fmt.Errorf("inserting chunk %q: %w", c.ID, err)
		}
	}

	s.logger.Debug("added chunks", "count", len(chunks))
	return nil
}

// Search performs semantic search over one collection. Scores are cosine
// similarity in [0,1], best first.
func (s *Store) Search(ctx context.Context, collection Collection, query string, opts ...SearchOption) ([]Hit, error) {
	if !collection.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownCollection, collection)
	}
	cfg := buildSearchConfig(opts)

	queryCtx, cancel := context.WithTimeout(ctx, searchTimeout)
	defer cancel()

	vec, err := s.embedder.Embed(queryCtx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	filterJSON, err := marshalFilter(cfg.filter)
	if err != nil {
		return nil, err
	}

	rows, err := s.queries.SemanticSearch(queryCtx, SemanticSearchParams{
		Collection:     string(collection),
		QueryEmbedding: pgvector.NewVector(vec),
		FilterMetadata: filterJSON,
		Limit:          int32(cfg.topK), // #nosec G115 -- validated by WithTopK
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("semantic search timeout: %w", err)
		}
		return nil, fmt.Errorf("semantic search: %w", err)
	}

	return s.rowsToHits(collection, rows), nil
}

// Keyword performs full-text search over one collection. Scores are raw
// ts_rank values; relative order is meaningful, absolute magnitude is not.
func (s *Store) Keyword(ctx context.Context, collection Collection, query string, opts ...SearchOption) ([]Hit, error) {
	if !collection.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownCollection, collection)
	}
	cfg := buildSearchConfig(opts)

	queryCtx, cancel := context.WithTimeout(ctx, searchTimeout)
	defer cancel()

	filterJSON, err := marshalFilter(cfg.filter)
	if err != nil {
		return nil, err
	}

	rows, err := s.queries.KeywordSearch(queryCtx, KeywordSearchParams{
		Collection:     string(collection),
		Query:          query,
		FilterMetadata: filterJSON,
		Limit:          int32(cfg.topK), // #nosec G115 -- validated by WithTopK
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("keyword search timeout: %w", err)
		}
		return nil, fmt.Errorf("keyword search: %w", err)
	}

	return s.rowsToHits(collection, rows), nil
}

// Count returns the number of chunks in a collection.
func (s *Store) Count(ctx context.Context, collection Collection) (int, error) {
	if !collection.Valid() {
		return 0, fmt.Errorf("%w: %q", ErrUnknownCollection, collection)
	}
	n, err := s.queries.CountChunks(ctx, string(collection))
	if err != nil {
		return 0, fmt.Errorf("counting chunks: %w", err)
	}
	return int(n), nil
}

func (s *Store) rowsToHits(collection Collection, rows []ChunkRow) []Hit {
	hits := make([]Hit, 0, len(rows))
	for _, row := range rows {
		var metadata map[string]string
		if err := json.Unmarshal(row.Metadata, &metadata); err != nil {
			s.logger.Warn("failed to parse chunk metadata", "chunk_id", row.ID, "error", err)
			metadata = make(map[string]string)
		}

		hits = append(hits, Hit{
			Chunk: Chunk{
				ID:         row.ID,
				Collection: collection,
				Text:       row.Content,
				Keywords:   splitKeywords(row.Keywords),
				Metadata:   metadata,
				CreatedAt:  row.CreatedAt,
			},
			Score: row.Score,
		})
	}
	return hits
}

func marshalFilter(filter map[string]string) ([]byte, error) {
	if len(filter) == 0 {
		return nil, nil
	}
	// Filter values are marshaled, never interpolated; the backend applies
	// them through parameterized JSONB containment.
	b, err := json.Marshal(filter)
	if err != nil {
		return nil, fmt.Errorf("marshaling filter: %w", err)
	}
	return b, nil
}
