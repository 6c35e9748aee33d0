package knowledge

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// chunkCols is the column list shared by both search queries. Similarity is
// computed per query type and aliased as score.
const chunkCols = `id, collection, content, keywords, metadata, created_at`

const insertChunkSQL = `INSERT INTO chunks (id, collection, content, keywords, embedding, metadata, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7)
	ON CONFLICT (id) DO NOTHING`

const semanticSearchSQL = `SELECT ` + chunkCols + `, 1 - (embedding <=> $2) AS score
	FROM chunks
	WHERE collection = $1 AND ($3::jsonb IS NULL OR metadata @> $3)
	ORDER BY embedding <=> $2
	LIMIT $4`

const keywordSearchSQL = `SELECT ` + chunkCols + `, ts_rank(tsv, websearch_to_tsquery('simple', $2)) AS score
	FROM chunks
	WHERE collection = $1
	  AND tsv @@ websearch_to_tsquery('simple', $2)
	  AND ($3::jsonb IS NULL OR metadata @> $3)
	ORDER BY score DESC
	LIMIT $4`

// PG implements Querier against PostgreSQL with pgvector and full-text
// search. Queries are parameterized throughout; filter JSON comes from
// json.Marshal in the Store, never from raw user input.
type PG struct {
	pool *pgxpool.Pool
}

// NewPG creates the production querier.
func NewPG(pool *pgxpool.Pool) *PG {
	return &PG{pool: pool}
}

// InsertChunk inserts one chunk row. Conflicting IDs are ignored so that
// repeated ingestion of the same content stays idempotent.
func (p *PG) InsertChunk(ctx context.Context, arg InsertChunkParams) error {
	_, err := p.pool.Exec(ctx, insertChunkSQL,
		arg.ID, arg.Collection, arg.Content, arg.Keywords, arg.Embedding, arg.Metadata, arg.CreatedAt)
	return err
}

// SemanticSearch runs a cosine nearest-neighbor query over one collection.
func (p *PG) SemanticSearch(ctx context.Context, arg SemanticSearchParams) ([]ChunkRow, error) {
	rows, err := p.pool.Query(ctx, semanticSearchSQL,
		arg.Collection, arg.QueryEmbedding, arg.FilterMetadata, arg.Limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanChunkRows(rows)
}

// KeywordSearch runs a full-text query over one collection.
func (p *PG) KeywordSearch(ctx context.Context, arg KeywordSearchParams) ([]ChunkRow, error) {
	rows, err := p.pool.Query(ctx, keywordSearchSQL,
		arg.Collection, arg.Query, arg.FilterMetadata, arg.Limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanChunkRows(rows)
}

// CountChunks counts the chunks in one collection.
func (p *PG) CountChunks(ctx context.Context, collection string) (int64, error) {
	var n int64
	err := p.pool.QueryRow(ctx, `SELECT count(*) FROM chunks WHERE collection = $1`, collection).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting chunks in %q: %w", collection, err)
	}
	return n, nil
}

type pgRows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

func scanChunkRows(rows pgRows) ([]ChunkRow, error) {
	var out []ChunkRow
	for rows.Next() {
		var r ChunkRow
		if err := rows.Scan(&r.ID, &r.Collection, &r.Content, &r.Keywords, &r.Metadata, &r.CreatedAt, &r.Score); err != nil {
			return nil, fmt.Errorf("scanning chunk row: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
