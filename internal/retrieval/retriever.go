package retrieval

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/okulai/okulai/internal/knowledge"
	"github.com/okulai/okulai/internal/log"
)

// ErrRetrievalUnavailable indicates no collection could be queried at all.
var ErrRetrievalUnavailable = errors.New("retrieval unavailable: no collection queryable")

// Candidate is one merged retrieval result. Semantic and Keyword hold the
// min-max normalized per-family scores; Combined is the weighted blend the
// final ordering uses.
type Candidate struct {
	Chunk    knowledge.Chunk
	Semantic float64
	Keyword  float64
	Combined float64
}

// Result carries the merged candidates plus degradation metadata. Partial is
// set when at least one collection was skipped because its backend failed.
type Result struct {
	Candidates []Candidate
	Partial    bool
}

// Searcher is the slice of the knowledge store the retriever needs.
type Searcher interface {
	Search(ctx context.Context, collection knowledge.Collection, query string, opts ...knowledge.SearchOption) ([]knowledge.Hit, error)
	Keyword(ctx context.Context, collection knowledge.Collection, query string, opts ...knowledge.SearchOption) ([]knowledge.Hit, error)
}

// Config tunes the hybrid merge.
type Config struct {
	Alpha             float64       // semantic weight in [0,1] (default: 0.7)
	TopK              int           // max candidates returned (default: 10)
	UseMMR            bool          // diversify the final ordering
	MMRLambda         float64       // relevance/diversity trade-off (default: 0.7)
	CollectionTimeout time.Duration // per-collection query timeout (default: 10s)
}

func (c Config) withDefaults() Config {
	if c.Alpha <= 0 || c.Alpha > 1 {
		c.Alpha = 0.7
	}
	if c.TopK <= 0 {
		c.TopK = 10
	}
	if c.MMRLambda <= 0 || c.MMRLambda > 1 {
		c.MMRLambda = 0.7
	}
	if c.CollectionTimeout <= 0 {
		c.CollectionTimeout = 10 * time.Second
	}
	return c
}

// Retriever merges semantic and keyword search across collections.
type Retriever struct {
	searcher Searcher
	cfg      Config
	logger   log.Logger
}

// New creates a hybrid retriever.
func New(searcher Searcher, cfg Config, logger log.Logger) *Retriever {
	return &Retriever{
		searcher: searcher,
		cfg:      cfg.withDefaults(),
		logger:   logger,
	}
}

// collectionHits is the raw output of one collection's two queries.
type collectionHits struct {
	collection knowledge.Collection
	semantic   []knowledge.Hit
	keyword    []knowledge.Hit
}

// Retrieve runs both query types against every named collection concurrently
// and merges the results. A failing collection is excluded and marks the
// result partial; only when every collection fails does Retrieve return
// ErrRetrievalUnavailable.
func (r *Retriever) Retrieve(ctx context.Context, query string, collections []knowledge.Collection, filters map[string]string) (*Result, error) {
	if len(collections) == 0 {
		collections = knowledge.AllCollections()
	}

	opts := make([]knowledge.SearchOption, 0, 1+len(filters))
	opts = append(opts, knowledge.WithTopK(r.cfg.TopK))
	for k, v := range filters {
		opts = append(opts, knowledge.WithFilter(k, v))
	}

	var (
		mu      sync.Mutex
		gotHits []collectionHits
		failed  int
	)

	g, gctx := errgroup.WithContext(ctx)
	for _, collection := range collections {
		g.Go(func() error {
			cctx, cancel := context.WithTimeout(gctx, r.cfg.CollectionTimeout)
			defer cancel()

			sem, semErr := r.searcher.Search(cctx, collection, query, opts...)
			kw, kwErr := r.searcher.Keyword(cctx, collection, query, opts...)

			mu.Lock()
			defer mu.Unlock()
			if semErr != nil && kwErr != nil {
				failed++
				r.logger.Warn("collection unavailable, excluding from results",
					"collection", collection,
					"semantic_error", semErr,
					"keyword_error", kwErr)
				return nil
			}
			if semErr != nil {
				r.logger.Warn("semantic search failed", "collection", collection, "error", semErr)
			}
			if kwErr != nil {
				r.logger.Warn("keyword search failed", "collection", collection, "error", kwErr)
			}
			gotHits = append(gotHits, collectionHits{collection: collection, semantic: sem, keyword: kw})
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if failed == len(collections) {
		return nil, ErrRetrievalUnavailable
	}

	candidates := mergeHits(gotHits, r.cfg.Alpha)
	sortCandidates(candidates)

	if len(candidates) > r.cfg.TopK {
		candidates = candidates[:r.cfg.TopK]
	}
	if r.cfg.UseMMR {
		candidates = applyMMR(candidates, r.cfg.MMRLambda, r.cfg.TopK)
	}

	// A collection that degraded to one working query type still counts as
	// partial from the caller's perspective only when fully excluded.
	return &Result{Candidates: candidates, Partial: failed > 0}, nil
}

// mergeHits normalizes each score family per collection, blends the two
// scores, and deduplicates by chunk ID keeping the max combined score.
func mergeHits(hits []collectionHits, alpha float64) []Candidate {
	byID := make(map[string]Candidate)

	for _, ch := range hits {
		semScores := normalizeScores(ch.semantic)
		kwScores := normalizeScores(ch.keyword)

		merged := make(map[string]Candidate)
		for i, hit := range ch.semantic {
			merged[hit.Chunk.ID] = Candidate{Chunk: hit.Chunk, Semantic: semScores[i]}
		}
		for i, hit := range ch.keyword {
			c, ok := merged[hit.Chunk.ID]
			if !ok {
				c = Candidate{Chunk: hit.Chunk}
			}
			c.Keyword = kwScores[i]
			merged[hit.Chunk.ID] = c
		}

		for id, c := range merged {
			c.Combined = alpha*c.Semantic + (1-alpha)*c.Keyword
			if prev, ok := byID[id]; !ok || c.Combined > prev.Combined {
				byID[id] = c
			}
		}
	}

	out := make([]Candidate, 0, len(byID))
	for _, c := range byID {
		out = append(out, c)
	}
	return out
}

// normalizeScores min-max scales hit scores to [0,1] over the returned set.
// A single hit, or a set with no spread, normalizes to 1.
func normalizeScores(hits []knowledge.Hit) []float64 {
	if len(hits) == 0 {
		return nil
	}
	minScore, maxScore := hits[0].Score, hits[0].Score
	for _, h := range hits[1:] {
		if h.Score < minScore {
			minScore = h.Score
		}
		if h.Score > maxScore {
			maxScore = h.Score
		}
	}

	out := make([]float64, len(hits))
	spread := maxScore - minScore
	for i, h := range hits {
		if spread == 0 {
			out[i] = 1
			continue
		}
		out[i] = (h.Score - minScore) / spread
	}
	return out
}

func sortCandidates(candidates []Candidate) {
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Combined != candidates[j].Combined {
			return candidates[i].Combined > candidates[j].Combined
		}
		if !candidates[i].Chunk.CreatedAt.Equal(candidates[j].Chunk.CreatedAt) {
			return candidates[i].Chunk.CreatedAt.After(candidates[j].Chunk.CreatedAt)
		}
		return candidates[i].Chunk.ID < candidates[j].Chunk.ID
	})
}
