package tutor

import "time"

// Response flags. Flags mark recoverable degradations that did not stop the
// pipeline; Degraded marks a fatal stage that short-circuited it.
const (
	FlagPartialRetrieval     = "partial_retrieval"
	FlagRerankFallback       = "rerank_fallback"
	FlagWorkflowCycleAborted = "workflow_cycle_aborted"
	FlagCollaborated         = "collaborated"
)

// Degradation reasons carried on degraded responses.
const (
	ReasonRetrievalUnavailable = "retrieval_unavailable"
	ReasonGenerationFailed     = "generation_failed"
	ReasonBackpressure         = "backpressure"
)

// User-facing fallback strings. The system speaks Turkish to students even
// when it cannot answer.
const (
	fallbackAnswer      = "Üzgünüm, sorunuzu cevaplayamadım. Lütfen daha sonra tekrar deneyin."
	fallbackBusyAnswer  = "Şu anda çok yoğunum, lütfen birkaç saniye sonra tekrar deneyin."
	fallbackNoKnowledge = "Üzgünüm, bilgi kaynaklarıma şu anda ulaşamıyorum. Lütfen daha sonra tekrar deneyin."
)

// Response is the structured result of one query.
type Response struct {
	Answer      string
	Citations   []string
	ExpertsUsed []string
	Degraded    bool
	Reason      string
	Flags       []string
	Timing      map[string]time.Duration
}

func degradedResponse(answer, reason string, timing map[string]time.Duration) *Response {
	return &Response{
		Answer:   answer,
		Degraded: true,
		Reason:   reason,
		Timing:   timing,
	}
}
