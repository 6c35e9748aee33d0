package retrieval

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/okulai/okulai/internal/gen"
	"github.com/okulai/okulai/internal/log"
)

const (
	difficultyBoost      = 1.1
	judgmentSnippetRunes = 200

	rerankSystemPrompt = "Sen bir arama sonucu sıralama uzmanısın."
)

// RerankConfig tunes the judgment pass and the context budget.
type RerankConfig struct {
	ContextBudget   int           // token budget for the final context (default: 4000)
	JudgmentTimeout time.Duration // LLM judgment pass timeout (default: 8s)
	WeakTopicBoost  float64       // score multiplier for weak-topic chunks (default: 1.2)
}

func (c RerankConfig) withDefaults() RerankConfig {
	if c.ContextBudget <= 0 {
		c.ContextBudget = 4000
	}
	if c.JudgmentTimeout <= 0 {
		c.JudgmentTimeout = 8 * time.Second
	}
	if c.WeakTopicBoost <= 0 {
		c.WeakTopicBoost = 1.2
	}
	return c
}

// RerankInput carries everything the rerank step personalizes on. RecentTurns
// and the profile fields are plain values so the package stays decoupled from
// session storage.
type RerankInput struct {
	Query               string
	Candidates          []Candidate
	RecentTurns         []string
	WeakTopics          []string
	PreferredDifficulty string
}

// Reranker reorders retrieval candidates with an LLM judgment pass and
// truncates them to a token budget.
type Reranker struct {
	generator gen.Generator
	cfg       RerankConfig
	logger    log.Logger
}

// NewReranker creates a reranker backed by the given generator.
func NewReranker(generator gen.Generator, cfg RerankConfig, logger log.Logger) *Reranker {
	return &Reranker{
		generator: generator,
		cfg:       cfg.withDefaults(),
		logger:    logger,
	}
}

// Rerank boosts, reorders, and truncates the candidates. The returned bool
// reports whether the judgment pass was skipped or failed and the boosted
// retrieval order was used instead. Rerank never fails the request.
func (r *Reranker) Rerank(ctx context.Context, in RerankInput) ([]Candidate, bool) {
	if len(in.Candidates) == 0 {
		return nil, false
	}

	boosted := applyBoosts(in.Candidates, in.WeakTopics, in.PreferredDifficulty, r.cfg.WeakTopicBoost)
	sortCandidates(boosted)

	ranked, fallback := r.judge(ctx, in.Query, in.RecentTurns, boosted)
	return truncateToBudget(ranked, r.cfg.ContextBudget), fallback
}

// applyBoosts returns a copy of candidates with profile-based score boosts:
// the configured multiplier for chunks touching a weak topic, 10% for chunks
// at the student's preferred difficulty.
func applyBoosts(candidates []Candidate, weakTopics []string, preferredDifficulty string, weakTopicBoost float64) []Candidate {
	out := make([]Candidate, len(candidates))
	copy(out, candidates)

	for i := range out {
		if matchesWeakTopic(out[i].Chunk.Metadata, out[i].Chunk.Text, weakTopics) {
			out[i].Combined *= weakTopicBoost
		}
		if preferredDifficulty != "" && out[i].Chunk.Metadata["difficulty"] == preferredDifficulty {
			out[i].Combined *= difficultyBoost
		}
	}
	return out
}

func matchesWeakTopic(metadata map[string]string, text string, weakTopics []string) bool {
	if len(weakTopics) == 0 {
		return false
	}
	subject := strings.ToLower(metadata["subject"])
	topic := strings.ToLower(metadata["topic"])
	lowered := strings.ToLower(text)
	for _, weak := range weakTopics {
		w := strings.ToLower(weak)
		if w == "" {
			continue
		}
		if strings.Contains(subject, w) || strings.Contains(topic, w) || strings.Contains(lowered, w) {
			return true
		}
	}
	return false
}

// judge asks the generation service for a ranking permutation. Any failure
// falls back to the order given.
func (r *Reranker) judge(ctx context.Context, query string, recentTurns []string, candidates []Candidate) ([]Candidate, bool) {
	if len(candidates) <= 1 {
		return candidates, false
	}

	jctx, cancel := context.WithTimeout(ctx, r.cfg.JudgmentTimeout)
	defer cancel()

	resp, err := r.generator.Generate(jctx, gen.Request{
		System: rerankSystemPrompt,
		Prompt: buildJudgmentPrompt(query, recentTurns, candidates),
	})
	if err != nil {
		r.logger.Warn("rerank judgment failed, using retrieval order", "error", err)
		return candidates, true
	}

	perm, ok := parseRanking(resp.Text, len(candidates))
	if !ok {
		r.logger.Warn("rerank judgment unparseable, using retrieval order", "response", resp.Text)
		return candidates, true
	}
	return reorder(candidates, perm), false
}

func buildJudgmentPrompt(query string, recentTurns []string, candidates []Candidate) string {
	var b strings.Builder
	b.WriteString("Aşağıdaki sorguya en uygun sonuçları sırala:\n\n")
	fmt.Fprintf(&b, "Sorgu: %s\n", query)

	if len(recentTurns) > 0 {
		b.WriteString("\nSon konuşma:\n")
		for _, turn := range recentTurns {
			fmt.Fprintf(&b, "- %s\n", turn)
		}
	}

	b.WriteString("\nAdaylar:\n")
	for i, c := range candidates {
		fmt.Fprintf(&b, "%d. %s\n", i+1, snippet(c.Chunk.Text, judgmentSnippetRunes))
	}

	b.WriteString("\nEn uygun sıralama (sadece numaraları virgülle ayırarak yaz):")
	return b.String()
}

func snippet(text string, maxRunes int) string {
	runes := []rune(text)
	if len(runes) <= maxRunes {
		return text
	}
	return string(runes[:maxRunes]) + "..."
}

// parseRanking extracts a 1-based index list like "3, 1, 2" from the model
// response. Out-of-range and duplicate indices are dropped; an empty result
// reports failure.
func parseRanking(response string, n int) ([]int, bool) {
	// Models sometimes wrap the list in prose; keep only the last line that
	// contains digits.
	line := response
	for _, l := range strings.Split(response, "\n") {
		if strings.ContainsAny(l, "0123456789") {
			line = l
		}
	}

	seen := make(map[int]bool, n)
	var perm []int
	for _, part := range strings.Split(line, ",") {
		idx, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			continue
		}
		idx-- // 1-based in the prompt
		if idx < 0 || idx >= n || seen[idx] {
			continue
		}
		seen[idx] = true
		perm = append(perm, idx)
	}
	return perm, len(perm) > 0
}

// reorder applies the permutation, then appends candidates the model omitted
// in their existing order.
func reorder(candidates []Candidate, perm []int) []Candidate {
	out := make([]Candidate, 0, len(candidates))
	used := make(map[int]bool, len(perm))
	for _, idx := range perm {
		out = append(out, candidates[idx])
		used[idx] = true
	}
	for i, c := range candidates {
		if !used[i] {
			out = append(out, c)
		}
	}
	return out
}

// truncateToBudget keeps candidates in rank order while the cumulative token
// estimate fits the budget. A chunk that would overflow is dropped whole so
// citations always reference complete chunks.
func truncateToBudget(candidates []Candidate, budget int) []Candidate {
	var out []Candidate
	used := 0
	for _, c := range candidates {
		cost := estimateTokens(c.Chunk.Text)
		if used+cost > budget {
			break
		}
		used += cost
		out = append(out, c)
	}
	return out
}
