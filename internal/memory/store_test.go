package memory

import (
	"context"
	"fmt"
	"sort"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/okulai/okulai/internal/gen"
	"github.com/okulai/okulai/internal/log"
)

// fakeQuerier keeps everything in memory, mirroring the database contract
// closely enough for store semantics: per-session seq assignment, recent
// turns in reverse order, profile upsert.
type fakeQuerier struct {
	sessions map[uuid.UUID]SessionRow
	turns    []TurnRow
	profiles map[string]ProfileRow
	nextID   int64
}

func newFakeQuerier() *fakeQuerier {
	return &fakeQuerier{
		sessions: make(map[uuid.UUID]SessionRow),
		profiles: make(map[string]ProfileRow),
	}
}

func (f *fakeQuerier) UpsertSession(_ context.Context, id uuid.UUID, studentID string) error {
	if s, ok := f.sessions[id]; ok {
		s.LastActiveAt = time.Now()
		f.sessions[id] = s
		return nil
	}
	f.sessions[id] = SessionRow{ID: id, StudentID: studentID, CreatedAt: time.Now(), LastActiveAt: time.Now()}
	return nil
}

func (f *fakeQuerier) GetSession(_ context.Context, id uuid.UUID) (SessionRow, error) {
	s, ok := f.sessions[id]
	if !ok {
		return SessionRow{}, ErrSessionNotFound
	}
	return s, nil
}

func (f *fakeQuerier) TouchSession(_ context.Context, id uuid.UUID, activeExpert string) error {
	s, ok := f.sessions[id]
	if !ok {
		return ErrSessionNotFound
	}
	s.ActiveExpert = activeExpert
	s.LastActiveAt = time.Now()
	f.sessions[id] = s
	return nil
}

func (f *fakeQuerier) DeleteSession(_ context.Context, id uuid.UUID) error {
	delete(f.sessions, id)
	kept := f.turns[:0]
	for _, t := range f.turns {
		if t.SessionID != id {
			kept = append(kept, t)
		}
	}
	f.turns = kept
	return nil
}

func (f *fakeQuerier) IdleSessions(_ context.Context, cutoff time.Time) ([]SessionRow, error) {
	var out []SessionRow
	for _, s := range f.sessions {
		if s.LastActiveAt.Before(cutoff) {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeQuerier) SessionCount(_ context.Context, studentID string) (int, error) {
	n := 0
	for _, s := range f.sessions {
		if s.StudentID == studentID {
			n++
		}
	}
	return n, nil
}

func (f *fakeQuerier) InsertTurn(_ context.Context, params InsertTurnParams) (TurnRow, error) {
	seq := 1
	for _, t := range f.turns {
		if t.SessionID == params.SessionID && t.Seq >= seq {
			seq = t.Seq + 1
		}
	}
	f.nextID++
	row := TurnRow{
		ID:            f.nextID,
		SessionID:     params.SessionID,
		Seq:           seq,
		Role:          params.Role,
		Content:       params.Content,
		CitedChunkIDs: params.CitedChunkIDs,
		CreatedAt:     time.Now(),
	}
	f.turns = append(f.turns, row)
	return row, nil
}

func (f *fakeQuerier) RecentTurns(_ context.Context, sessionID uuid.UUID, limit int) ([]TurnRow, error) {
	var out []TurnRow
	for _, t := range f.turns {
		if t.SessionID == sessionID {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq > out[j].Seq })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeQuerier) StudentTurnCount(_ context.Context, studentID string, afterID int64) (int, error) {
	n := 0
	for _, t := range f.turns {
		if t.ID > afterID && f.sessions[t.SessionID].StudentID == studentID {
			n++
		}
	}
	return n, nil
}

func (f *fakeQuerier) StudentTurns(_ context.Context, studentID string, afterID int64, limit int) ([]TurnRow, error) {
	var all []TurnRow
	for _, t := range f.turns {
		if t.ID > afterID && f.sessions[t.SessionID].StudentID == studentID {
			all = append(all, t)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })
	if len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

func (f *fakeQuerier) GetProfile(_ context.Context, studentID string) (ProfileRow, error) {
	p, ok := f.profiles[studentID]
	if !ok {
		return ProfileRow{}, ErrProfileNotFound
	}
	return p, nil
}

func (f *fakeQuerier) UpsertProfile(_ context.Context, row ProfileRow) error {
	f.profiles[row.StudentID] = row
	return nil
}

type summaryGenerator struct {
	calls   int
	err     error
	prompts []string
}

func (s *summaryGenerator) Generate(_ context.Context, req gen.Request) (*gen.Response, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	s.prompts = append(s.prompts, req.Prompt)
	return &gen.Response{Text: fmt.Sprintf("özet %d", s.calls)}, nil
}

func newTestStore(q Querier, g gen.Generator, cfg Config) *Store {
	return New(q, g, cfg, log.NewNop())
}

func TestAppendTurnAssignsSequence(t *testing.T) {
	q := newFakeQuerier()
	s := newTestStore(q, &summaryGenerator{}, Config{})
	sessionID := uuid.New()
	ctx := context.Background()

	first, err := s.AppendTurn(ctx, sessionID, "student-1", RoleStudent, "türev nedir", nil)
	if err != nil {
		t.Fatalf("AppendTurn: %v", err)
	}
	second, err := s.AppendTurn(ctx, sessionID, "student-1", RoleSystem, "türev, değişim oranıdır", []string{"chunk-1"})
	if err != nil {
		t.Fatalf("AppendTurn: %v", err)
	}

	if first.Seq != 1 || second.Seq != 2 {
		t.Errorf("seqs = %d, %d, want 1, 2", first.Seq, second.Seq)
	}
	if len(second.CitedChunkIDs) != 1 || second.CitedChunkIDs[0] != "chunk-1" {
		t.Errorf("CitedChunkIDs = %v", second.CitedChunkIDs)
	}
}

func TestAppendTurnRejectsInvalidRole(t *testing.T) {
	s := newTestStore(newFakeQuerier(), &summaryGenerator{}, Config{})
	if _, err := s.AppendTurn(context.Background(), uuid.New(), "st", "moderator", "x", nil); err == nil {
		t.Fatal("expected error for invalid role")
	}
}

func TestWindowReturnsRecentTurnsChronologically(t *testing.T) {
	q := newFakeQuerier()
	s := newTestStore(q, &summaryGenerator{}, Config{WindowTurns: 3})
	sessionID := uuid.New()
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		if _, err := s.AppendTurn(ctx, sessionID, "st", RoleStudent, fmt.Sprintf("soru %d", i), nil); err != nil {
			t.Fatalf("AppendTurn: %v", err)
		}
	}

	window, err := s.Window(ctx, sessionID)
	if err != nil {
		t.Fatalf("Window: %v", err)
	}
	if len(window) != 3 {
		t.Fatalf("window size = %d, want 3", len(window))
	}
	for i, want := range []int{3, 4, 5} {
		if window[i].Seq != want {
			t.Errorf("window[%d].Seq = %d, want %d", i, window[i].Seq, want)
		}
	}
}

func TestUpdateProfileMergesAdditively(t *testing.T) {
	q := newFakeQuerier()
	s := newTestStore(q, &summaryGenerator{}, Config{})
	ctx := context.Background()

	p1, err := s.UpdateProfile(ctx, "st", ProfileUpdate{
		WeakTopics:          []string{"matematik", "fizik"},
		PreferredDifficulty: "medium",
	})
	if err != nil {
		t.Fatalf("UpdateProfile: %v", err)
	}
	if len(p1.WeakTopics) != 2 {
		t.Fatalf("WeakTopics = %v", p1.WeakTopics)
	}

	// Second update: overlapping topic unions, empty difficulty keeps the
	// previous value.
	p2, err := s.UpdateProfile(ctx, "st", ProfileUpdate{WeakTopics: []string{"fizik", "kimya"}})
	if err != nil {
		t.Fatalf("UpdateProfile: %v", err)
	}
	want := []string{"matematik", "fizik", "kimya"}
	if len(p2.WeakTopics) != len(want) {
		t.Fatalf("WeakTopics = %v, want %v", p2.WeakTopics, want)
	}
	for i := range want {
		if p2.WeakTopics[i] != want[i] {
			t.Errorf("WeakTopics = %v, want %v", p2.WeakTopics, want)
		}
	}
	if p2.PreferredDifficulty != "medium" {
		t.Errorf("PreferredDifficulty = %q, want medium preserved", p2.PreferredDifficulty)
	}
}

func TestAnalyticsSnapshot(t *testing.T) {
	q := newFakeQuerier()
	s := newTestStore(q, &summaryGenerator{}, Config{})
	ctx := context.Background()
	sessionID := uuid.New()

	for i := 0; i < 4; i++ {
		if _, err := s.AppendTurn(ctx, sessionID, "st", RoleStudent, "soru", nil); err != nil {
			t.Fatalf("AppendTurn: %v", err)
		}
	}
	if _, err := s.UpdateProfile(ctx, "st", ProfileUpdate{WeakTopics: []string{"tarih"}}); err != nil {
		t.Fatalf("UpdateProfile: %v", err)
	}

	a, err := s.Analytics(ctx, "st")
	if err != nil {
		t.Fatalf("Analytics: %v", err)
	}
	if a.TurnCount != 4 || a.SessionCount != 1 {
		t.Errorf("TurnCount = %d, SessionCount = %d, want 4, 1", a.TurnCount, a.SessionCount)
	}
	if len(a.WeakTopics) != 1 || a.WeakTopics[0] != "tarih" {
		t.Errorf("WeakTopics = %v", a.WeakTopics)
	}
}

func TestJanitorEvictsIdleSessionsOnly(t *testing.T) {
	q := newFakeQuerier()
	s := newTestStore(q, &summaryGenerator{}, Config{IdleTimeout: time.Hour})
	ctx := context.Background()

	idleID, activeID := uuid.New(), uuid.New()
	if _, err := s.AppendTurn(ctx, idleID, "st", RoleStudent, "eski soru", nil); err != nil {
		t.Fatalf("AppendTurn: %v", err)
	}
	if _, err := s.AppendTurn(ctx, activeID, "st", RoleStudent, "yeni soru", nil); err != nil {
		t.Fatalf("AppendTurn: %v", err)
	}
	if _, err := s.UpdateProfile(ctx, "st", ProfileUpdate{WeakTopics: []string{"fizik"}}); err != nil {
		t.Fatalf("UpdateProfile: %v", err)
	}

	// Backdate the idle session past the cutoff.
	row := q.sessions[idleID]
	row.LastActiveAt = time.Now().Add(-2 * time.Hour)
	q.sessions[idleID] = row

	NewJanitor(s, log.NewNop()).runOnce(ctx)

	if _, ok := q.sessions[idleID]; ok {
		t.Error("idle session should be evicted")
	}
	if _, ok := q.sessions[activeID]; !ok {
		t.Error("active session must survive")
	}
	if _, err := s.Profile(ctx, "st"); err != nil {
		t.Errorf("profile must survive eviction: %v", err)
	}
}

func TestJanitorRunStopsOnCancel(t *testing.T) {
	q := newFakeQuerier()
	s := newTestStore(q, &summaryGenerator{}, Config{JanitorInterval: time.Millisecond, IdleTimeout: time.Hour})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		NewJanitor(s, log.NewNop()).Run(ctx)
	}()

	time.Sleep(5 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("janitor did not stop after cancel")
	}
}
