package retrieval

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/okulai/okulai/internal/gen"
	"github.com/okulai/okulai/internal/knowledge"
	"github.com/okulai/okulai/internal/log"
)

// scriptedGenerator returns canned responses in order, or a fixed error.
type scriptedGenerator struct {
	responses []string
	err       error
	calls     int
	prompts   []string
}

func (s *scriptedGenerator) Generate(_ context.Context, req gen.Request) (*gen.Response, error) {
	s.calls++
	s.prompts = append(s.prompts, req.Prompt)
	if s.err != nil {
		return nil, s.err
	}
	idx := s.calls - 1
	if idx >= len(s.responses) {
		idx = len(s.responses) - 1
	}
	return &gen.Response{Text: s.responses[idx]}, nil
}

func candidate(id, text string, combined float64, metadata map[string]string) Candidate {
	return Candidate{
		Chunk:    knowledge.Chunk{ID: id, Text: text, Metadata: metadata},
		Combined: combined,
	}
}

func TestRerankAppliesJudgmentPermutation(t *testing.T) {
	g := &scriptedGenerator{responses: []string{"3, 1, 2"}}
	r := NewReranker(g, RerankConfig{ContextBudget: 10000}, log.NewNop())

	got, fallback := r.Rerank(context.Background(), RerankInput{
		Query: "türev nedir",
		Candidates: []Candidate{
			candidate("a", "birinci aday", 0.9, nil),
			candidate("b", "ikinci aday", 0.8, nil),
			candidate("c", "üçüncü aday", 0.7, nil),
		},
	})
	if fallback {
		t.Fatal("unexpected fallback")
	}
	ids := []string{got[0].Chunk.ID, got[1].Chunk.ID, got[2].Chunk.ID}
	if ids[0] != "c" || ids[1] != "a" || ids[2] != "b" {
		t.Errorf("order = %v, want [c a b]", ids)
	}
}

func TestRerankFallsBackOnJudgmentError(t *testing.T) {
	g := &scriptedGenerator{err: errors.New("model down")}
	r := NewReranker(g, RerankConfig{ContextBudget: 10000}, log.NewNop())

	got, fallback := r.Rerank(context.Background(), RerankInput{
		Query: "q",
		Candidates: []Candidate{
			candidate("a", "bir", 0.9, nil),
			candidate("b", "iki", 0.8, nil),
		},
	})
	if !fallback {
		t.Fatal("expected fallback flag")
	}
	if got[0].Chunk.ID != "a" || got[1].Chunk.ID != "b" {
		t.Errorf("fallback should keep retrieval order, got %s, %s", got[0].Chunk.ID, got[1].Chunk.ID)
	}
}

func TestRerankFallsBackOnUnparseableResponse(t *testing.T) {
	g := &scriptedGenerator{responses: []string{"elbette, yardımcı olayım"}}
	r := NewReranker(g, RerankConfig{ContextBudget: 10000}, log.NewNop())

	_, fallback := r.Rerank(context.Background(), RerankInput{
		Query: "q",
		Candidates: []Candidate{
			candidate("a", "bir", 0.9, nil),
			candidate("b", "iki", 0.8, nil),
		},
	})
	if !fallback {
		t.Fatal("expected fallback flag for unparseable judgment")
	}
}

func TestRerankWeakTopicBoost(t *testing.T) {
	// Judgment returns identity so boost decides the order.
	g := &scriptedGenerator{responses: []string{"1, 2"}}
	r := NewReranker(g, RerankConfig{ContextBudget: 10000}, log.NewNop())

	got, _ := r.Rerank(context.Background(), RerankInput{
		Query: "limit sorusu",
		Candidates: []Candidate{
			candidate("gen", "genel içerik", 0.80, map[string]string{"subject": "tarih"}),
			candidate("mat", "türev konu anlatımı", 0.75, map[string]string{"subject": "matematik"}),
		},
		WeakTopics: []string{"matematik"},
	})

	// 0.75 * 1.2 = 0.90 > 0.80, so the weak-topic chunk ranks first.
	if got[0].Chunk.ID != "mat" {
		t.Errorf("weak-topic chunk should rank first, got %s", got[0].Chunk.ID)
	}
}

func TestRerankBudgetTruncation(t *testing.T) {
	long := strings.Repeat("a", 100) // 50 estimated tokens
	g := &scriptedGenerator{responses: []string{"1, 2, 3"}}
	r := NewReranker(g, RerankConfig{ContextBudget: 120}, log.NewNop())

	got, _ := r.Rerank(context.Background(), RerankInput{
		Query: "q",
		Candidates: []Candidate{
			candidate("a", long, 0.9, nil),
			candidate("b", long, 0.8, nil),
			candidate("c", long, 0.7, nil),
		},
	})

	// Two chunks fit (100 tokens); the third would overflow and is dropped
	// whole.
	if len(got) != 2 {
		t.Fatalf("got %d chunks, want 2", len(got))
	}
	total := 0
	for _, c := range got {
		total += estimateTokens(c.Chunk.Text)
	}
	if total > 120 {
		t.Errorf("context size %d exceeds budget", total)
	}
}

func TestRerankSingleCandidateSkipsJudgment(t *testing.T) {
	g := &scriptedGenerator{responses: []string{"1"}}
	r := NewReranker(g, RerankConfig{}, log.NewNop())

	got, fallback := r.Rerank(context.Background(), RerankInput{
		Query:      "q",
		Candidates: []Candidate{candidate("a", "tek aday", 0.9, nil)},
	})
	if fallback || len(got) != 1 {
		t.Fatalf("got %d candidates, fallback=%v", len(got), fallback)
	}
	if g.calls != 0 {
		t.Errorf("judgment pass ran %d times for a single candidate", g.calls)
	}
}

func TestParseRanking(t *testing.T) {
	tests := []struct {
		name string
		in   string
		n    int
		want []int
		ok   bool
	}{
		{"plain", "2, 1, 3", 3, []int{1, 0, 2}, true},
		{"prose wrapped", "Sıralama şöyle:\n3,1,2", 3, []int{2, 0, 1}, true},
		{"out of range dropped", "1, 9, 2", 3, []int{0, 1}, true},
		{"duplicates dropped", "1, 1, 2", 3, []int{0, 1}, true},
		{"no digits", "bilmiyorum", 3, nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := parseRanking(tt.in, tt.n)
			if ok != tt.ok {
				t.Fatalf("ok = %v, want %v", ok, tt.ok)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("got %v, want %v", got, tt.want)
				}
			}
		})
	}
}

func TestApplyMMRPenalizesNearDuplicates(t *testing.T) {
	cands := []Candidate{
		candidate("a", "limit türev integral konu anlatımı matematik", 1.0, nil),
		candidate("dup", "limit türev integral konu anlatımı matematik", 0.9, nil),
		candidate("other", "osmanlı devleti kuruluş dönemi tarih", 0.8, nil),
	}

	got := applyMMR(cands, 0.5, 3)
	if got[0].Chunk.ID != "a" {
		t.Fatalf("top candidate must survive, got %s", got[0].Chunk.ID)
	}
	// The duplicate's similarity penalty pushes the distinct chunk ahead.
	if got[1].Chunk.ID != "other" {
		t.Errorf("second pick = %s, want other", got[1].Chunk.ID)
	}
}
