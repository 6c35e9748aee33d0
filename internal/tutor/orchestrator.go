package tutor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/okulai/okulai/internal/expert"
	"github.com/okulai/okulai/internal/gen"
	"github.com/okulai/okulai/internal/knowledge"
	"github.com/okulai/okulai/internal/log"
	"github.com/okulai/okulai/internal/memory"
	"github.com/okulai/okulai/internal/retrieval"
)

// ErrEmptyQuery indicates the caller passed a blank query.
var ErrEmptyQuery = errors.New("empty query")

// Retriever is the retrieval stage contract.
type Retriever interface {
	Retrieve(ctx context.Context, query string, collections []knowledge.Collection, filters map[string]string) (*retrieval.Result, error)
}

// Reranker is the rerank stage contract.
type Reranker interface {
	Rerank(ctx context.Context, in retrieval.RerankInput) ([]retrieval.Candidate, bool)
}

// Router is the expert workflow contract.
type Router interface {
	Run(ctx context.Context, in expert.Input) (*expert.Outcome, error)
}

// Memory is the slice of the memory store the orchestrator mutates.
type Memory interface {
	AppendTurn(ctx context.Context, sessionID uuid.UUID, studentID, role, text string, citedChunkIDs []string) (memory.Turn, error)
	Window(ctx context.Context, sessionID uuid.UUID) ([]memory.Turn, error)
	Profile(ctx context.Context, studentID string) (memory.StudentProfile, error)
	SetActiveExpert(ctx context.Context, sessionID uuid.UUID, expertTag string) error
	CompactIfNeeded(ctx context.Context, studentID string) error
}

// Indexer feeds completed exchanges back into the conversation collection.
type Indexer interface {
	Add(ctx context.Context, chunks []knowledge.Chunk) error
}

// Orchestrator runs the query pipeline: retrieve, rerank, route, then
// memory. It is the single writer of session and profile state for a
// request, serialized per session.
type Orchestrator struct {
	retriever Retriever
	reranker  Reranker
	router    Router
	memory    Memory
	indexer   Indexer
	logger    log.Logger

	mu       sync.Mutex
	sessions map[uuid.UUID]*sync.Mutex
}

// New creates an orchestrator. indexer may be nil to disable conversation
// indexing.
func New(retriever Retriever, reranker Reranker, router Router, mem Memory, indexer Indexer, logger log.Logger) *Orchestrator {
	return &Orchestrator{
		retriever: retriever,
		reranker:  reranker,
		router:    router,
		memory:    mem,
		indexer:   indexer,
		logger:    logger,
		sessions:  make(map[uuid.UUID]*sync.Mutex),
	}
}

// sessionLock returns the per-session mutex, creating it on first use.
// Waiters on a held mutex proceed in arrival order.
func (o *Orchestrator) sessionLock(sessionID uuid.UUID) *sync.Mutex {
	o.mu.Lock()
	defer o.mu.Unlock()
	lock, ok := o.sessions[sessionID]
	if !ok {
		lock = &sync.Mutex{}
		o.sessions[sessionID] = lock
	}
	return lock
}

// HandleQuery runs one student query end to end. It returns an error only
// for caller mistakes or context cancellation; every pipeline failure
// resolves to a well-formed response, degraded when a fatal stage failed.
// Memory is written only after the pipeline fully resolves, so a cancelled
// request leaves no partial turns.
func (o *Orchestrator) HandleQuery(ctx context.Context, sessionID uuid.UUID, studentID, text string) (*Response, error) {
	if text == "" {
		return nil, ErrEmptyQuery
	}
	if studentID == "" {
		return nil, errors.New("empty student id")
	}

	lock := o.sessionLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	timing := make(map[string]time.Duration)
	var flags []string

	// Context the pipeline reads: recent turns and the student profile.
	// Both are best-effort; a fresh session or student simply has neither.
	window, err := o.memory.Window(ctx, sessionID)
	if err != nil {
		o.logger.Warn("window load failed, proceeding without history", "session_id", sessionID, "error", err)
		window = nil
	}
	profile, err := o.memory.Profile(ctx, studentID)
	if err != nil && !errors.Is(err, memory.ErrProfileNotFound) {
		o.logger.Warn("profile load failed, proceeding without profile", "student_id", studentID, "error", err)
	}

	// Retrieve.
	start := time.Now()
	result, err := o.retriever.Retrieve(ctx, text, nil, nil)
	timing["retrieve"] = time.Since(start)
	if err != nil {
		if errors.Is(err, retrieval.ErrRetrievalUnavailable) {
			o.logger.Error("retrieval unavailable", "session_id", sessionID, "error", err)
			return degradedResponse(fallbackNoKnowledge, ReasonRetrievalUnavailable, timing), nil
		}
		return nil, fmt.Errorf("retrieve: %w", err)
	}
	if result.Partial {
		flags = append(flags, FlagPartialRetrieval)
	}

	// Rerank. Failure inside degrades to retrieval order, never fails the
	// request.
	start = time.Now()
	ranked, rerankFellBack := o.reranker.Rerank(ctx, retrieval.RerankInput{
		Query:               text,
		Candidates:          result.Candidates,
		RecentTurns:         turnTexts(window),
		WeakTopics:          profile.WeakTopics,
		PreferredDifficulty: profile.PreferredDifficulty,
	})
	timing["rerank"] = time.Since(start)
	if rerankFellBack {
		flags = append(flags, FlagRerankFallback)
	}

	// Route through the expert workflow.
	start = time.Now()
	outcome, err := o.router.Run(ctx, expert.Input{
		Query:   text,
		Context: toContextChunks(ranked),
		Window:  toTurns(window),
	})
	timing["route"] = time.Since(start)
	if err != nil {
		switch {
		case errors.Is(err, gen.ErrBackpressure), errors.Is(err, gen.ErrCircuitOpen):
			o.logger.Warn("generation rejected", "session_id", sessionID, "error", err)
			return degradedResponse(fallbackBusyAnswer, ReasonBackpressure, timing), nil
		case errors.Is(err, gen.ErrGenerationFailed):
			o.logger.Error("generation exhausted", "session_id", sessionID, "error", err)
			return degradedResponse(fallbackAnswer, ReasonGenerationFailed, timing), nil
		default:
			return nil, fmt.Errorf("expert workflow: %w", err)
		}
	}
	if outcome.CycleAborted {
		flags = append(flags, FlagWorkflowCycleAborted)
	}
	if outcome.Collaborated {
		flags = append(flags, FlagCollaborated)
	}

	// Memory writes happen after the pipeline resolved, detached from the
	// request's cancellation so a disconnect cannot leave half an exchange.
	start = time.Now()
	o.recordExchange(context.WithoutCancel(ctx), sessionID, studentID, text, outcome)
	timing["memory"] = time.Since(start)

	return &Response{
		Answer:      outcome.Answer,
		Citations:   outcome.Citations,
		ExpertsUsed: outcome.ExpertsUsed,
		Flags:       flags,
		Timing:      timing,
	}, nil
}

// recordExchange appends both turns, refreshes session state, compacts when
// due, and indexes the exchange for future retrieval. Only the turn appends
// are load-bearing; the rest is best-effort.
func (o *Orchestrator) recordExchange(ctx context.Context, sessionID uuid.UUID, studentID, question string, outcome *expert.Outcome) {
	if _, err := o.memory.AppendTurn(ctx, sessionID, studentID, memory.RoleStudent, question, nil); err != nil {
		o.logger.Error("student turn append failed", "session_id", sessionID, "error", err)
		return
	}
	answerTurn, err := o.memory.AppendTurn(ctx, sessionID, studentID, memory.RoleSystem, outcome.Answer, outcome.Citations)
	if err != nil {
		o.logger.Error("answer turn append failed", "session_id", sessionID, "error", err)
		return
	}

	if len(outcome.ExpertsUsed) > 0 {
		if err := o.memory.SetActiveExpert(ctx, sessionID, outcome.ExpertsUsed[0]); err != nil {
			o.logger.Warn("active expert update failed", "session_id", sessionID, "error", err)
		}
	}
	if err := o.memory.CompactIfNeeded(ctx, studentID); err != nil {
		o.logger.Warn("compaction failed", "student_id", studentID, "error", err)
	}

	if o.indexer != nil {
		chunk := knowledge.Chunk{
			ID:         fmt.Sprintf("conv-%s-%d", sessionID, answerTurn.Seq),
			Collection: knowledge.CollectionConversation,
			Text:       fmt.Sprintf("Öğrenci: %s\nAsistan: %s", question, outcome.Answer),
			Metadata: map[string]string{
				"session_id": sessionID.String(),
				"student_id": studentID,
			},
			CreatedAt: answerTurn.CreatedAt,
		}
		if err := o.indexer.Add(ctx, []knowledge.Chunk{chunk}); err != nil {
			o.logger.Warn("conversation indexing failed", "session_id", sessionID, "error", err)
		}
	}
}

func turnTexts(turns []memory.Turn) []string {
	out := make([]string, len(turns))
	for i, t := range turns {
		out[i] = t.Text
	}
	return out
}

func toContextChunks(candidates []retrieval.Candidate) []expert.ContextChunk {
	out := make([]expert.ContextChunk, len(candidates))
	for i, c := range candidates {
		out[i] = expert.ContextChunk{ID: c.Chunk.ID, Text: c.Chunk.Text}
	}
	return out
}

func toTurns(turns []memory.Turn) []expert.Turn {
	out := make([]expert.Turn, len(turns))
	for i, t := range turns {
		out[i] = expert.Turn{Role: t.Role, Text: t.Text}
	}
	return out
}
