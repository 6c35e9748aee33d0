package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/okulai/okulai/internal/gen"
	"github.com/okulai/okulai/internal/log"
)

// InsertTurnParams carries one new turn. Seq is assigned by the database in
// arrival order.
type InsertTurnParams struct {
	SessionID     uuid.UUID
	Role          string
	Content       string
	CitedChunkIDs []string
}

// TurnRow is the database shape of a turn.
type TurnRow struct {
	ID            int64
	SessionID     uuid.UUID
	Seq           int
	Role          string
	Content       string
	CitedChunkIDs []string
	CreatedAt     time.Time
}

// SessionRow is the database shape of a session.
type SessionRow struct {
	ID           uuid.UUID
	StudentID    string
	ActiveExpert string
	CreatedAt    time.Time
	LastActiveAt time.Time
}

// ProfileRow is the database shape of a student profile.
type ProfileRow struct {
	StudentID           string
	WeakTopics          []string
	PreferredDifficulty string
	LongTermSummary     string
	LastDigest          string
	CompactedTurnID     int64
	UpdatedAt           time.Time
}

// Querier is the database access the store needs.
type Querier interface {
	UpsertSession(ctx context.Context, id uuid.UUID, studentID string) error
	GetSession(ctx context.Context, id uuid.UUID) (SessionRow, error)
	TouchSession(ctx context.Context, id uuid.UUID, activeExpert string) error
	DeleteSession(ctx context.Context, id uuid.UUID) error
	IdleSessions(ctx context.Context, cutoff time.Time) ([]SessionRow, error)
	SessionCount(ctx context.Context, studentID string) (int, error)

	InsertTurn(ctx context.Context, params InsertTurnParams) (TurnRow, error)
	RecentTurns(ctx context.Context, sessionID uuid.UUID, limit int) ([]TurnRow, error)
	StudentTurnCount(ctx context.Context, studentID string, afterID int64) (int, error)
	StudentTurns(ctx context.Context, studentID string, afterID int64, limit int) ([]TurnRow, error)

	GetProfile(ctx context.Context, studentID string) (ProfileRow, error)
	UpsertProfile(ctx context.Context, row ProfileRow) error
}

// Config tunes the window, compaction, and eviction behavior.
type Config struct {
	WindowTurns      int           // verbatim window size (default: 10)
	CompactThreshold int           // uncompacted turns before compaction (default: 30)
	IdleTimeout      time.Duration // session idle eviction cutoff (default: 2h)
	JanitorInterval  time.Duration // eviction sweep interval (default: 10m)
	SummaryTimeout   time.Duration // summarization call timeout (default: 20s)
}

func (c Config) withDefaults() Config {
	if c.WindowTurns <= 0 {
		c.WindowTurns = 10
	}
	if c.CompactThreshold <= 0 {
		c.CompactThreshold = 30
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = 2 * time.Hour
	}
	if c.JanitorInterval <= 0 {
		c.JanitorInterval = 10 * time.Minute
	}
	if c.SummaryTimeout <= 0 {
		c.SummaryTimeout = 20 * time.Second
	}
	return c
}

// Store is the conversation memory service.
type Store struct {
	queries   Querier
	generator gen.Generator
	cfg       Config
	logger    log.Logger
}

// New creates a memory store. The generator is used for compaction
// summaries only.
func New(queries Querier, generator gen.Generator, cfg Config, logger log.Logger) *Store {
	return &Store{
		queries:   queries,
		generator: generator,
		cfg:       cfg.withDefaults(),
		logger:    logger,
	}
}

// AppendTurn records one turn, creating the session on first use and
// refreshing its activity timestamp.
func (s *Store) AppendTurn(ctx context.Context, sessionID uuid.UUID, studentID, role, text string, citedChunkIDs []string) (Turn, error) {
	if role != RoleStudent && role != RoleSystem {
		return Turn{}, fmt.Errorf("invalid turn role %q", role)
	}

	if err := s.queries.UpsertSession(ctx, sessionID, studentID); err != nil {
		return Turn{}, fmt.Errorf("upsert session: %w", err)
	}

	row, err := s.queries.InsertTurn(ctx, InsertTurnParams{
		SessionID:     sessionID,
		Role:          role,
		Content:       text,
		CitedChunkIDs: citedChunkIDs,
	})
	if err != nil {
		return Turn{}, fmt.Errorf("insert turn: %w", err)
	}
	return turnFromRow(row), nil
}

// Session returns one session.
func (s *Store) Session(ctx context.Context, sessionID uuid.UUID) (Session, error) {
	row, err := s.queries.GetSession(ctx, sessionID)
	if err != nil {
		return Session{}, err
	}
	return Session{
		ID:           row.ID,
		StudentID:    row.StudentID,
		ActiveExpert: row.ActiveExpert,
		CreatedAt:    row.CreatedAt,
		LastActiveAt: row.LastActiveAt,
	}, nil
}

// SetActiveExpert records which expert answered last and refreshes the
// session's activity timestamp.
func (s *Store) SetActiveExpert(ctx context.Context, sessionID uuid.UUID, expert string) error {
	return s.queries.TouchSession(ctx, sessionID, expert)
}

// Window returns the most recent turns in chronological order, capped at the
// configured window size. A missing session yields an empty window.
func (s *Store) Window(ctx context.Context, sessionID uuid.UUID) ([]Turn, error) {
	rows, err := s.queries.RecentTurns(ctx, sessionID, s.cfg.WindowTurns)
	if err != nil {
		return nil, fmt.Errorf("load window: %w", err)
	}

	turns := make([]Turn, len(rows))
	for i, row := range rows {
		turns[i] = turnFromRow(row)
	}
	sort.Slice(turns, func(i, j int) bool { return turns[i].Seq < turns[j].Seq })
	return turns, nil
}

// Profile returns the student's profile, or ErrProfileNotFound.
func (s *Store) Profile(ctx context.Context, studentID string) (StudentProfile, error) {
	row, err := s.queries.GetProfile(ctx, studentID)
	if err != nil {
		return StudentProfile{}, err
	}
	return profileFromRow(row), nil
}

// UpdateProfile applies an additive merge: weak topics union into the
// existing set, the remaining fields overwrite only when the update carries
// a value. A missing profile is created.
func (s *Store) UpdateProfile(ctx context.Context, studentID string, update ProfileUpdate) (StudentProfile, error) {
	row, err := s.queries.GetProfile(ctx, studentID)
	if err != nil {
		if !errors.Is(err, ErrProfileNotFound) {
			return StudentProfile{}, fmt.Errorf("load profile: %w", err)
		}
		row = ProfileRow{StudentID: studentID}
	}

	row.WeakTopics = unionTopics(row.WeakTopics, update.WeakTopics)
	if update.PreferredDifficulty != "" {
		row.PreferredDifficulty = update.PreferredDifficulty
	}
	if update.LongTermSummary != "" {
		row.LongTermSummary = update.LongTermSummary
	}
	if update.LastDigest != "" {
		row.LastDigest = update.LastDigest
	}
	row.UpdatedAt = time.Now()

	if err := s.queries.UpsertProfile(ctx, row); err != nil {
		return StudentProfile{}, fmt.Errorf("save profile: %w", err)
	}
	return profileFromRow(row), nil
}

// Analytics returns a learning snapshot for the student.
func (s *Store) Analytics(ctx context.Context, studentID string) (Analytics, error) {
	turnCount, err := s.queries.StudentTurnCount(ctx, studentID, 0)
	if err != nil {
		return Analytics{}, fmt.Errorf("count turns: %w", err)
	}
	sessionCount, err := s.queries.SessionCount(ctx, studentID)
	if err != nil {
		return Analytics{}, fmt.Errorf("count sessions: %w", err)
	}

	a := Analytics{StudentID: studentID, TurnCount: turnCount, SessionCount: sessionCount}
	if row, err := s.queries.GetProfile(ctx, studentID); err == nil {
		a.WeakTopics = row.WeakTopics
		a.LastActiveAt = row.UpdatedAt
	} else if !errors.Is(err, ErrProfileNotFound) {
		return Analytics{}, fmt.Errorf("load profile: %w", err)
	}
	return a, nil
}

// unionTopics merges the two lists preserving existing order, appending new
// topics in their given order.
func unionTopics(existing, added []string) []string {
	seen := make(map[string]bool, len(existing))
	out := make([]string, 0, len(existing)+len(added))
	for _, t := range existing {
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	for _, t := range added {
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}

func turnFromRow(row TurnRow) Turn {
	return Turn{
		ID:            row.ID,
		SessionID:     row.SessionID,
		Seq:           row.Seq,
		Role:          row.Role,
		Text:          row.Content,
		CitedChunkIDs: row.CitedChunkIDs,
		CreatedAt:     row.CreatedAt,
	}
}

func profileFromRow(row ProfileRow) StudentProfile {
	return StudentProfile{
		StudentID:           row.StudentID,
		WeakTopics:          row.WeakTopics,
		PreferredDifficulty: row.PreferredDifficulty,
		LongTermSummary:     row.LongTermSummary,
		LastDigest:          row.LastDigest,
		CompactedTurnID:     row.CompactedTurnID,
		UpdatedAt:           row.UpdatedAt,
	}
}
