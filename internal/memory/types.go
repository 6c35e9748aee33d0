package memory

import (
	"time"

	"github.com/google/uuid"
)

// Turn roles. The system role covers every non-student entry, including
// synthesized multi-expert answers.
const (
	RoleStudent = "student"
	RoleSystem  = "system"
)

// Turn is one entry in a session's append-only log.
type Turn struct {
	ID            int64
	SessionID     uuid.UUID
	Seq           int
	Role          string
	Text          string
	CitedChunkIDs []string
	CreatedAt     time.Time
}

// Session is one conversation.
type Session struct {
	ID           uuid.UUID
	StudentID    string
	ActiveExpert string
	CreatedAt    time.Time
	LastActiveAt time.Time
}

// StudentProfile is the durable cross-session state for one student.
// CompactedTurnID is the compaction watermark: the id of the newest turn
// already folded into LongTermSummary. Turn ids are monotonic, so the
// watermark survives evicted sessions deleting their turn rows.
type StudentProfile struct {
	StudentID           string
	WeakTopics          []string
	PreferredDifficulty string
	LongTermSummary     string
	LastDigest          string
	CompactedTurnID     int64
	UpdatedAt           time.Time
}

// ProfileUpdate is an additive profile change. WeakTopics are unioned into
// the existing set; the other fields overwrite only when non-empty.
type ProfileUpdate struct {
	WeakTopics          []string
	PreferredDifficulty string
	LongTermSummary     string
	LastDigest          string
}

// Analytics is a learning snapshot for one student.
type Analytics struct {
	StudentID    string
	WeakTopics   []string
	TurnCount    int
	SessionCount int
	LastActiveAt time.Time
}
