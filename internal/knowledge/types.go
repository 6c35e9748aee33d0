package knowledge

import (
	"strings"
	"time"
)

// Collection names the chunk collections the system retrieves from.
type Collection string

// The closed set of collections. Ingestion and retrieval both validate
// against this set; there is no dynamic collection creation at query time.
const (
	// CollectionCurriculum holds curriculum topics (subject, grade, topic metadata).
	CollectionCurriculum Collection = "curriculum"

	// CollectionConversation holds indexed past conversation exchanges.
	CollectionConversation Collection = "conversation"

	// CollectionDocument holds fragments of uploaded documents.
	CollectionDocument Collection = "document"
)

// AllCollections returns every known collection, in stable order.
func AllCollections() []Collection {
	return []Collection{CollectionCurriculum, CollectionConversation, CollectionDocument}
}

// Valid reports whether c is one of the known collections.
func (c Collection) Valid() bool {
	switch c {
	case CollectionCurriculum, CollectionConversation, CollectionDocument:
		return true
	}
	return false
}

// Chunk is the smallest retrievable unit of content. Chunks are created once
// by ingestion and never mutated afterwards.
type Chunk struct {
	ID         string
	Collection Collection
	Text       string
	Keywords   []string          // extra lexical terms folded into the full-text index
	Metadata   map[string]string // subject, grade, topic, source, ...
	CreatedAt  time.Time
}

// Hit is a single search result with its raw score. Semantic hits carry a
// cosine similarity in [0,1]; keyword hits carry an unnormalized ts_rank.
// Normalization across a result set is the retriever's job.
type Hit struct {
	Chunk Chunk
	Score float64
}

// SearchOption configures a search using the functional options pattern.
type SearchOption func(*searchConfig)

type searchConfig struct {
	topK   int
	filter map[string]string
}

// WithTopK sets the maximum number of results to return. Default is 5.
func WithTopK(k int) SearchOption {
	return func(c *searchConfig) {
		if k > 0 {
			c.topK = k
		}
	}
}

// WithFilter restricts results to chunks whose metadata contains the given
// key/value pair. Multiple filters combine with AND.
func WithFilter(key, value string) SearchOption {
	return func(c *searchConfig) {
		if c.filter == nil {
			c.filter = make(map[string]string)
		}
		c.filter[key] = value
	}
}

func buildSearchConfig(opts []SearchOption) *searchConfig {
	cfg := &searchConfig{topK: 5}
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

func joinKeywords(keywords []string) string {
	return strings.Join(keywords, " ")
}

func splitKeywords(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Fields(s)
}
