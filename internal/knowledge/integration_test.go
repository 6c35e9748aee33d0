package knowledge

import (
	"context"
	"testing"
	"time"

	"github.com/pgvector/pgvector-go"

	"github.com/okulai/okulai/internal/testutil"
)

// testEmbedding builds a 768-dim unit vector with one hot component, giving
// predictable cosine distances between distinct chunks.
func testEmbedding(hot int) pgvector.Vector {
	vec := make([]float32, 768)
	vec[hot] = 1
	return pgvector.NewVector(vec)
}

func TestPGInsertAndSearchIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	pg := NewPG(db.Pool)

	chunks := []InsertChunkParams{
		{
			ID:         "mat-turev-1",
			Collection: "curriculum",
			Content:    "Türev, bir fonksiyonun anlık değişim oranını ölçer.",
			Keywords:   "limit diferansiyel",
			Embedding:  testEmbedding(0),
			Metadata:   []byte(`{"ders": "matematik"}`),
			CreatedAt:  time.Now(),
		},
		{
			ID:         "mat-integral-1",
			Collection: "curriculum",
			Content:    "İntegral, türevin ters işlemidir.",
			Keywords:   "alan hesabı",
			Embedding:  testEmbedding(1),
			Metadata:   []byte(`{"ders": "matematik"}`),
			CreatedAt:  time.Now(),
		},
		{
			ID:         "biy-hucre-1",
			Collection: "curriculum",
			Content:    "Hücre, canlıların temel yapı birimidir.",
			Keywords:   "organel sitoplazma",
			Embedding:  testEmbedding(2),
			Metadata:   []byte(`{"ders": "biyoloji"}`),
			CreatedAt:  time.Now(),
		},
	}
	for _, c := range chunks {
		if err := pg.InsertChunk(ctx, c); err != nil {
			t.Fatalf("InsertChunk %s: %v", c.ID, err)
		}
	}

	n, err := pg.CountChunks(ctx, "curriculum")
	if err != nil {
		t.Fatalf("CountChunks: %v", err)
	}
	if n != 3 {
		t.Fatalf("CountChunks = %d, want 3", n)
	}

	t.Run("duplicate insert is ignored", func(t *testing.T) {
		dup := chunks[0]
		dup.Content = "değiştirilmiş içerik"
		if err := pg.InsertChunk(ctx, dup); err != nil {
			t.Fatalf("InsertChunk duplicate: %v", err)
		}
		n, err := pg.CountChunks(ctx, "curriculum")
		if err != nil {
			t.Fatalf("CountChunks: %v", err)
		}
		if n != 3 {
			t.Errorf("CountChunks = %d after duplicate insert, want 3", n)
		}
	})

	t.Run("semantic search orders by cosine similarity", func(t *testing.T) {
		rows, err := pg.SemanticSearch(ctx, SemanticSearchParams{
			Collection:     "curriculum",
			QueryEmbedding: testEmbedding(0),
			Limit:          2,
		})
		if err != nil {
			t.Fatalf("SemanticSearch: %v", err)
		}
		if len(rows) != 2 {
			t.Fatalf("got %d rows, want 2", len(rows))
		}
		if rows[0].ID != "mat-turev-1" {
			t.Errorf("rows[0].ID = %s, want mat-turev-1", rows[0].ID)
		}
		if rows[0].Score <= rows[1].Score {
			t.Errorf("scores not descending: %f, %f", rows[0].Score, rows[1].Score)
		}
		if rows[0].Score < 0.99 {
			t.Errorf("identical embedding score = %f, want ~1", rows[0].Score)
		}
	})

	t.Run("semantic search respects metadata filter", func(t *testing.T) {
		rows, err := pg.SemanticSearch(ctx, SemanticSearchParams{
			Collection:     "curriculum",
			QueryEmbedding: testEmbedding(0),
			FilterMetadata: []byte(`{"ders": "biyoloji"}`),
			Limit:          10,
		})
		if err != nil {
			t.Fatalf("SemanticSearch: %v", err)
		}
		if len(rows) != 1 || rows[0].ID != "biy-hucre-1" {
			t.Errorf("filtered rows = %v, want only biy-hucre-1", rowIDs(rows))
		}
	})

	t.Run("keyword search matches content terms", func(t *testing.T) {
		rows, err := pg.KeywordSearch(ctx, KeywordSearchParams{
			Collection: "curriculum",
			Query:      "hücre",
			Limit:      10,
		})
		if err != nil {
			t.Fatalf("KeywordSearch: %v", err)
		}
		if len(rows) != 1 || rows[0].ID != "biy-hucre-1" {
			t.Errorf("rows = %v, want biy-hucre-1", rowIDs(rows))
		}
	})

	t.Run("keyword search matches extra lexical terms", func(t *testing.T) {
		// "diferansiyel" appears only in the keywords column, so the match
		// proves the tsvector folds it in.
		rows, err := pg.KeywordSearch(ctx, KeywordSearchParams{
			Collection: "curriculum",
			Query:      "diferansiyel",
			Limit:      10,
		})
		if err != nil {
			t.Fatalf("KeywordSearch: %v", err)
		}
		if len(rows) != 1 || rows[0].ID != "mat-turev-1" {
			t.Errorf("rows = %v, want mat-turev-1", rowIDs(rows))
		}
	})

	t.Run("keyword search with no match is empty", func(t *testing.T) {
		rows, err := pg.KeywordSearch(ctx, KeywordSearchParams{
			Collection: "curriculum",
			Query:      "fotosentez",
			Limit:      10,
		})
		if err != nil {
			t.Fatalf("KeywordSearch: %v", err)
		}
		if len(rows) != 0 {
			t.Errorf("rows = %v, want none", rowIDs(rows))
		}
	})
}

func rowIDs(rows []ChunkRow) []string {
	out := make([]string, len(rows))
	for i, r := range rows {
		out[i] = r.ID
	}
	return out
}
