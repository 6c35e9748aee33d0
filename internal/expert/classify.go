package expert

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"time"

	"github.com/okulai/okulai/internal/gen"
	"github.com/okulai/okulai/internal/log"
)

const classifySystemPrompt = "Sen bir soru sınıflandırma uzmanısın. Sadece JSON formatında yanıt ver."

// TagScore is one candidate subject with its classification confidence.
type TagScore struct {
	Tag        string
	Confidence float64
}

// Classification is the output of the classify step. Tags are sorted by
// descending confidence; Intent is the dominant subject tag.
type Classification struct {
	Intent string
	Tags   []TagScore
}

// Classifier maps a query to subject tags, first with an LLM pass and, when
// that fails, with lexical keyword matching over the registry.
type Classifier struct {
	registry  *Registry
	generator gen.Generator
	timeout   time.Duration
	logger    log.Logger
}

// NewClassifier creates a classifier over the given registry.
func NewClassifier(registry *Registry, generator gen.Generator, logger log.Logger) *Classifier {
	return &Classifier{
		registry:  registry,
		generator: generator,
		timeout:   6 * time.Second,
		logger:    logger,
	}
}

// Classify returns confidence-scored subject tags for the query. It never
// fails: when both the LLM pass and lexical matching produce nothing, the
// genel tag is returned with full confidence.
func (c *Classifier) Classify(ctx context.Context, query, contextText string) Classification {
	if cls, ok := c.classifyLLM(ctx, query, contextText); ok {
		return cls
	}
	if cls, ok := c.classifyLexical(query); ok {
		return cls
	}
	return Classification{
		Intent: TagGenel,
		Tags:   []TagScore{{Tag: TagGenel, Confidence: 1}},
	}
}

type llmClassification struct {
	Intent string `json:"intent"`
	Tags   []struct {
		Ders string  `json:"ders"`
		Puan float64 `json:"puan"`
	} `json:"dersler"`
}

func (c *Classifier) classifyLLM(ctx context.Context, query, contextText string) (Classification, bool) {
	cctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var b strings.Builder
	b.WriteString("Aşağıdaki öğrenci sorusunu YKS derslerine göre sınıflandır.\n\n")
	b.WriteString("Soru: " + query + "\n")
	if contextText != "" {
		b.WriteString("\nBağlam:\n" + contextText + "\n")
	}
	b.WriteString("\nGeçerli dersler: " + strings.Join(c.registry.Tags(), ", ") + "\n")
	b.WriteString(`
Şu JSON formatında yanıt ver:
{"intent": "<en baskın ders>", "dersler": [{"ders": "<ders>", "puan": <0-1>}]}`)

	resp, err := c.generator.Generate(cctx, gen.Request{
		System: classifySystemPrompt,
		Prompt: b.String(),
	})
	if err != nil {
		c.logger.Warn("classification call failed, using lexical fallback", "error", err)
		return Classification{}, false
	}

	var parsed llmClassification
	if err := json.Unmarshal([]byte(stripCodeFence(resp.Text)), &parsed); err != nil {
		c.logger.Warn("classification response unparseable", "error", err)
		return Classification{}, false
	}

	var tags []TagScore
	for _, t := range parsed.Tags {
		tag := strings.ToLower(strings.TrimSpace(t.Ders))
		if _, ok := c.registry.Lookup(tag); !ok {
			continue
		}
		if t.Puan < 0 || t.Puan > 1 {
			continue
		}
		tags = append(tags, TagScore{Tag: tag, Confidence: t.Puan})
	}
	if len(tags) == 0 {
		return Classification{}, false
	}
	sortTags(tags)

	intent := strings.ToLower(strings.TrimSpace(parsed.Intent))
	if _, ok := c.registry.Lookup(intent); !ok {
		intent = tags[0].Tag
	}
	return Classification{Intent: intent, Tags: tags}, true
}

// classifyLexical scores each subject by the fraction of its keywords found
// in the query.
func (c *Classifier) classifyLexical(query string) (Classification, bool) {
	lowered := strings.ToLower(query)

	var tags []TagScore
	for _, e := range c.registry.Experts() {
		if len(e.Keywords) == 0 {
			continue
		}
		matched := 0
		for _, kw := range e.Keywords {
			if strings.Contains(lowered, kw) {
				matched++
			}
		}
		if matched == 0 {
			continue
		}
		// One keyword is a weak signal, three or more is near certainty.
		conf := float64(matched) / 3
		if conf > 1 {
			conf = 1
		}
		tags = append(tags, TagScore{Tag: e.Tag, Confidence: conf})
	}
	if len(tags) == 0 {
		return Classification{}, false
	}
	sortTags(tags)
	return Classification{Intent: tags[0].Tag, Tags: tags}, true
}

func sortTags(tags []TagScore) {
	sort.SliceStable(tags, func(i, j int) bool {
		return tags[i].Confidence > tags[j].Confidence
	})
}

// stripCodeFence removes a markdown code fence wrapper, which models add
// around JSON despite instructions not to.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
