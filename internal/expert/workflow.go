package expert

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/okulai/okulai/internal/gen"
	"github.com/okulai/okulai/internal/log"
)

// Node is one state of the routing workflow.
type Node int

const (
	NodeClassify Node = iota
	NodeSelectExperts
	NodeInvoke
	NodeCollaborate
	NodeFinalize
	NodeGenerationFailed
)

// String returns the node name.
func (n Node) String() string {
	switch n {
	case NodeClassify:
		return "classify"
	case NodeSelectExperts:
		return "select_experts"
	case NodeInvoke:
		return "invoke"
	case NodeCollaborate:
		return "collaborate"
	case NodeFinalize:
		return "finalize"
	case NodeGenerationFailed:
		return "generation_failed"
	default:
		return "unknown"
	}
}

// ContextChunk is one reranked context chunk handed to the experts. Experts
// cite chunks by their 1-based position.
type ContextChunk struct {
	ID   string
	Text string
}

// Turn is one entry of the conversation window.
type Turn struct {
	Role string // "student" or "system"
	Text string
}

// Input is everything one workflow run needs.
type Input struct {
	Query   string
	Context []ContextChunk
	Window  []Turn
}

// Draft is one expert's answer before synthesis.
type Draft struct {
	Expert    string
	Text      string
	Citations []string // cited chunk IDs in first-reference order
}

// Outcome is the terminal result of a workflow run.
type Outcome struct {
	Answer       string
	ExpertsUsed  []string
	Citations    []string
	Collaborated bool
	CycleAborted bool
}

// Config tunes expert selection.
type Config struct {
	ConfidenceMargin float64 // closeness for multi-expert selection (default: 0.15)
	MaxExperts       int     // fan-out cap (default: 2)
}

func (c Config) withDefaults() Config {
	if c.ConfidenceMargin <= 0 {
		c.ConfidenceMargin = 0.15
	}
	if c.MaxExperts <= 0 {
		c.MaxExperts = 2
	}
	return c
}

// Router runs the expert workflow.
type Router struct {
	registry   *Registry
	classifier *Classifier
	generator  gen.Generator
	cfg        Config
	logger     log.Logger
}

// NewRouter creates a router.
func NewRouter(registry *Registry, classifier *Classifier, generator gen.Generator, cfg Config, logger log.Logger) *Router {
	return &Router{
		registry:   registry,
		classifier: classifier,
		generator:  generator,
		cfg:        cfg.withDefaults(),
		logger:     logger,
	}
}

// workflowState is the mutable state threaded through the nodes.
type workflowState struct {
	node           Node
	classification Classification
	selected       []Expert
	visited        map[string]bool
	drafts         []Draft
	retry          bool
	cycleAborted   bool
	lastErr        error
}

// transition computes the next node from the current state. It is pure so
// the routing rules can be tested without any generation calls. A failed
// invocation round loops back to selection for replacement experts; the
// visited guard in the invoke node stops the loop once selection can only
// repeat itself.
func transition(s *workflowState) Node {
	switch s.node {
	case NodeClassify:
		return NodeSelectExperts
	case NodeSelectExperts:
		if len(s.selected) == 0 {
			return NodeFinalize
		}
		return NodeInvoke
	case NodeInvoke:
		if s.cycleAborted {
			if len(s.drafts) == 0 {
				return NodeGenerationFailed
			}
			return NodeFinalize
		}
		if s.retry {
			return NodeSelectExperts
		}
		if len(s.drafts) == 0 {
			return NodeGenerationFailed
		}
		if len(s.drafts) > 1 {
			return NodeCollaborate
		}
		return NodeFinalize
	case NodeCollaborate:
		return NodeFinalize
	default:
		return NodeFinalize
	}
}

// Run executes the workflow to a terminal node. A failed expert is replaced
// by re-running selection against the experts not yet tried, down to the
// genel fallback. It returns an error wrapping gen.ErrGenerationFailed only
// when every attempted invocation failed; otherwise the surviving drafts
// carry the answer.
func (r *Router) Run(ctx context.Context, in Input) (*Outcome, error) {
	s := &workflowState{node: NodeClassify, visited: make(map[string]bool)}

	var answer string
	var collaborated bool

	for {
		switch s.node {
		case NodeClassify:
			contextText := contextPreview(in.Context)
			s.classification = r.classifier.Classify(ctx, in.Query, contextText)

		case NodeSelectExperts:
			max := r.cfg.MaxExperts - len(s.drafts)
			s.selected = r.selectExperts(in.Query, s.classification, s.visited, max)

		case NodeInvoke:
			failed := false
			for _, e := range s.selected {
				if s.visited[e.Tag] {
					r.logger.Warn("expert already visited, aborting workflow", "expert", e.Tag)
					s.cycleAborted = true
					break
				}
				s.visited[e.Tag] = true

				draft, err := r.invoke(ctx, e, in)
				if err != nil {
					s.lastErr = err
					failed = true
					r.logger.Warn("expert invocation failed", "expert", e.Tag, "error", err)
					continue
				}
				s.drafts = append(s.drafts, draft)
			}
			s.retry = failed && len(s.drafts) < r.cfg.MaxExperts

		case NodeCollaborate:
			merged, err := r.synthesize(ctx, in.Query, s.classification.Intent, s.drafts)
			if err != nil {
				r.logger.Warn("synthesis failed, using dominant expert draft", "error", err)
				answer = dominantDraft(s.drafts, s.classification.Intent).Text
			} else {
				answer = merged
				collaborated = true
			}

		case NodeFinalize:
			if answer == "" && len(s.drafts) > 0 {
				answer = dominantDraft(s.drafts, s.classification.Intent).Text
			}
			return &Outcome{
				Answer:       answer,
				ExpertsUsed:  draftExperts(s.drafts),
				Citations:    mergeCitations(answer, in.Context, s.drafts),
				Collaborated: collaborated,
				CycleAborted: s.cycleAborted,
			}, nil

		case NodeGenerationFailed:
			return nil, fmt.Errorf("all expert invocations failed: %w (last: %w)", gen.ErrGenerationFailed, s.lastErr)
		}

		s.node = transition(s)
	}
}

// selectExperts applies the deterministic selection rule: the top tag alone
// at clear confidence, plus tags within the margin or named explicitly in
// the query, capped at max. Experts already tried are skipped so a retry
// round picks replacements. Falls back to genel when nothing else remains;
// the fallback ignores visited on purpose, letting the invoke guard detect
// that selection has started repeating itself.
func (r *Router) selectExperts(query string, cls Classification, visited map[string]bool, max int) []Expert {
	if max <= 0 {
		max = 1
	}
	if len(cls.Tags) == 0 {
		return []Expert{r.registry.Genel()}
	}

	mentioned := r.explicitMentions(query)
	top := cls.Tags[0]

	var selected []Expert
	seen := make(map[string]bool)
	for _, ts := range cls.Tags {
		if len(selected) >= max {
			break
		}
		if seen[ts.Tag] || visited[ts.Tag] {
			continue
		}
		withinMargin := top.Confidence-ts.Confidence <= r.cfg.ConfidenceMargin
		if ts.Tag != top.Tag && !withinMargin && !mentioned[ts.Tag] {
			continue
		}
		e, ok := r.registry.Lookup(ts.Tag)
		if !ok {
			continue
		}
		seen[ts.Tag] = true
		selected = append(selected, e)
	}

	if len(selected) == 0 {
		return []Expert{r.registry.Genel()}
	}
	return selected
}

// explicitMentions reports which subject tags appear verbatim in the query.
func (r *Router) explicitMentions(query string) map[string]bool {
	lowered := strings.ToLower(query)
	mentioned := make(map[string]bool)
	for _, e := range r.registry.Experts() {
		if e.Tag == TagGenel {
			continue
		}
		if strings.Contains(lowered, e.Tag) || strings.Contains(lowered, strings.ToLower(e.Name)) {
			mentioned[e.Tag] = true
		}
	}
	return mentioned
}

// invoke runs one expert call. Retries for transient failures happen inside
// the generator.
func (r *Router) invoke(ctx context.Context, e Expert, in Input) (Draft, error) {
	resp, err := r.generator.Generate(ctx, gen.Request{
		System: e.SystemPrompt,
		Prompt: buildExpertPrompt(in),
	})
	if err != nil {
		return Draft{}, fmt.Errorf("expert %s: %w", e.Tag, err)
	}
	return Draft{
		Expert:    e.Tag,
		Text:      resp.Text,
		Citations: parseCitations(resp.Text, in.Context),
	}, nil
}

func buildExpertPrompt(in Input) string {
	var b strings.Builder

	if len(in.Window) > 0 {
		b.WriteString("Son konuşma:\n")
		for _, t := range in.Window {
			label := "Öğrenci"
			if t.Role != "student" {
				label = "Asistan"
			}
			fmt.Fprintf(&b, "%s: %s\n", label, t.Text)
		}
		b.WriteString("\n")
	}

	if len(in.Context) > 0 {
		b.WriteString("Kaynaklar:\n")
		for i, c := range in.Context {
			fmt.Fprintf(&b, "[%d] %s\n", i+1, c.Text)
		}
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "Öğrencinin sorusu: %s", in.Query)
	return b.String()
}

var citationRef = regexp.MustCompile(`\[(\d+)\]`)

// parseCitations maps [n] markers in the answer to chunk IDs, in first
// reference order.
func parseCitations(text string, chunks []ContextChunk) []string {
	var out []string
	seen := make(map[string]bool)
	for _, m := range citationRef.FindAllStringSubmatch(text, -1) {
		idx, err := strconv.Atoi(m[1])
		if err != nil || idx < 1 || idx > len(chunks) {
			continue
		}
		id := chunks[idx-1].ID
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

// mergeCitations prefers the final answer's own citation markers and falls
// back to the union of draft citations in draft order.
func mergeCitations(answer string, chunks []ContextChunk, drafts []Draft) []string {
	if cited := parseCitations(answer, chunks); len(cited) > 0 {
		return cited
	}

	var out []string
	seen := make(map[string]bool)
	for _, d := range drafts {
		for _, id := range d.Citations {
			if seen[id] {
				continue
			}
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}

// dominantDraft returns the draft whose expert matches the classified
// intent, or the first draft.
func dominantDraft(drafts []Draft, intent string) Draft {
	for _, d := range drafts {
		if d.Expert == intent {
			return d
		}
	}
	return drafts[0]
}

func draftExperts(drafts []Draft) []string {
	out := make([]string, len(drafts))
	for i, d := range drafts {
		out[i] = d.Expert
	}
	return out
}

// contextPreview gives the classifier a short view of the retrieved context.
func contextPreview(chunks []ContextChunk) string {
	if len(chunks) == 0 {
		return ""
	}
	var b strings.Builder
	for i, c := range chunks {
		if i == 3 {
			break
		}
		runes := []rune(c.Text)
		if len(runes) > 120 {
			b.WriteString(string(runes[:120]))
		} else {
			b.WriteString(c.Text)
		}
		b.WriteString("\n")
	}
	return strings.TrimSpace(b.String())
}
