package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const upsertSessionSQL = `INSERT INTO sessions (id, student_id)
	VALUES ($1, $2)
	ON CONFLICT (id) DO UPDATE SET last_active_at = now()`

const getSessionSQL = `SELECT id, student_id, active_expert, created_at, last_active_at
	FROM sessions WHERE id = $1`

const touchSessionSQL = `UPDATE sessions
	SET active_expert = $2, last_active_at = now()
	WHERE id = $1`

const deleteSessionSQL = `DELETE FROM sessions WHERE id = $1`

const idleSessionsSQL = `SELECT id, student_id, active_expert, created_at, last_active_at
	FROM sessions WHERE last_active_at < $1`

const sessionCountSQL = `SELECT count(*) FROM sessions WHERE student_id = $1`

// seq is assigned inside the insert so concurrent appends to different
// sessions never contend; appends to one session are serialized upstream.
const insertTurnSQL = `INSERT INTO session_turns (session_id, seq, role, content, cited_chunk_ids)
	VALUES ($1, (SELECT COALESCE(MAX(seq), 0) + 1 FROM session_turns WHERE session_id = $1), $2, $3, $4)
	RETURNING id, session_id, seq, role, content, cited_chunk_ids, created_at`

const recentTurnsSQL = `SELECT id, session_id, seq, role, content, cited_chunk_ids, created_at
	FROM session_turns
	WHERE session_id = $1
	ORDER BY seq DESC
	LIMIT $2`

// Compaction addresses turns by id, never by position: turn ids are
// monotonic, so the watermark stays correct after evicted sessions
// cascade-delete their rows.
const studentTurnCountSQL = `SELECT count(*)
	FROM session_turns t JOIN sessions s ON s.id = t.session_id
	WHERE s.student_id = $1 AND t.id > $2`

const studentTurnsSQL = `SELECT t.id, t.session_id, t.seq, t.role, t.content, t.cited_chunk_ids, t.created_at
	FROM session_turns t JOIN sessions s ON s.id = t.session_id
	WHERE s.student_id = $1 AND t.id > $2
	ORDER BY t.id
	LIMIT $3`

const getProfileSQL = `SELECT student_id, weak_topics, preferred_difficulty, long_term_summary, last_digest, compacted_turn_id, updated_at
	FROM student_profiles WHERE student_id = $1`

const upsertProfileSQL = `INSERT INTO student_profiles
	(student_id, weak_topics, preferred_difficulty, long_term_summary, last_digest, compacted_turn_id, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6, now())
	ON CONFLICT (student_id) DO UPDATE SET
		weak_topics = EXCLUDED.weak_topics,
		preferred_difficulty = EXCLUDED.preferred_difficulty,
		long_term_summary = EXCLUDED.long_term_summary,
		last_digest = EXCLUDED.last_digest,
		compacted_turn_id = EXCLUDED.compacted_turn_id,
		updated_at = now()`

// PG implements Querier against PostgreSQL.
type PG struct {
	pool *pgxpool.Pool
}

// NewPG creates the production querier.
func NewPG(pool *pgxpool.Pool) *PG {
	return &PG{pool: pool}
}

func (p *PG) UpsertSession(ctx context.Context, id uuid.UUID, studentID string) error {
	_, err := p.pool.Exec(ctx, upsertSessionSQL, id, studentID)
	return err
}

func (p *PG) GetSession(ctx context.Context, id uuid.UUID) (SessionRow, error) {
	var row SessionRow
	err := p.pool.QueryRow(ctx, getSessionSQL, id).
		Scan(&row.ID, &row.StudentID, &row.ActiveExpert, &row.CreatedAt, &row.LastActiveAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return SessionRow{}, ErrSessionNotFound
	}
	if err != nil {
		return SessionRow{}, fmt.Errorf("loading session %s: %w", id, err)
	}
	return row, nil
}

func (p *PG) TouchSession(ctx context.Context, id uuid.UUID, activeExpert string) error {
	_, err := p.pool.Exec(ctx, touchSessionSQL, id, activeExpert)
	return err
}

func (p *PG) DeleteSession(ctx context.Context, id uuid.UUID) error {
	_, err := p.pool.Exec(ctx, deleteSessionSQL, id)
	return err
}

func (p *PG) IdleSessions(ctx context.Context, cutoff time.Time) ([]SessionRow, error) {
	rows, err := p.pool.Query(ctx, idleSessionsSQL, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SessionRow
	for rows.Next() {
		var r SessionRow
		if err := rows.Scan(&r.ID, &r.StudentID, &r.ActiveExpert, &r.CreatedAt, &r.LastActiveAt); err != nil {
			return nil, fmt.Errorf("scanning session row: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (p *PG) SessionCount(ctx context.Context, studentID string) (int, error) {
	var n int
	err := p.pool.QueryRow(ctx, sessionCountSQL, studentID).Scan(&n)
	return n, err
}

func (p *PG) InsertTurn(ctx context.Context, params InsertTurnParams) (TurnRow, error) {
	cited, err := json.Marshal(citedOrEmpty(params.CitedChunkIDs))
	if err != nil {
		return TurnRow{}, fmt.Errorf("encoding cited chunks: %w", err)
	}

	row := pgTurnRow{}
	err = p.pool.QueryRow(ctx, insertTurnSQL,
		params.SessionID, params.Role, params.Content, cited).
		Scan(&row.ID, &row.SessionID, &row.Seq, &row.Role, &row.Content, &row.CitedChunkIDs, &row.CreatedAt)
	if err != nil {
		return TurnRow{}, fmt.Errorf("inserting turn: %w", err)
	}
	return row.toTurnRow()
}

func (p *PG) RecentTurns(ctx context.Context, sessionID uuid.UUID, limit int) ([]TurnRow, error) {
	rows, err := p.pool.Query(ctx, recentTurnsSQL, sessionID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTurnRows(rows)
}

func (p *PG) StudentTurnCount(ctx context.Context, studentID string, afterID int64) (int, error) {
	var n int
	err := p.pool.QueryRow(ctx, studentTurnCountSQL, studentID, afterID).Scan(&n)
	return n, err
}

func (p *PG) StudentTurns(ctx context.Context, studentID string, afterID int64, limit int) ([]TurnRow, error) {
	rows, err := p.pool.Query(ctx, studentTurnsSQL, studentID, afterID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTurnRows(rows)
}

func (p *PG) GetProfile(ctx context.Context, studentID string) (ProfileRow, error) {
	var row ProfileRow
	var topics []byte
	err := p.pool.QueryRow(ctx, getProfileSQL, studentID).
		Scan(&row.StudentID, &topics, &row.PreferredDifficulty, &row.LongTermSummary,
			&row.LastDigest, &row.CompactedTurnID, &row.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ProfileRow{}, ErrProfileNotFound
	}
	if err != nil {
		return ProfileRow{}, fmt.Errorf("loading profile %s: %w", studentID, err)
	}
	if err := json.Unmarshal(topics, &row.WeakTopics); err != nil {
		return ProfileRow{}, fmt.Errorf("decoding weak topics: %w", err)
	}
	return row, nil
}

func (p *PG) UpsertProfile(ctx context.Context, row ProfileRow) error {
	topics, err := json.Marshal(citedOrEmpty(row.WeakTopics))
	if err != nil {
		return fmt.Errorf("encoding weak topics: %w", err)
	}
	_, err = p.pool.Exec(ctx, upsertProfileSQL,
		row.StudentID, topics, row.PreferredDifficulty, row.LongTermSummary,
		row.LastDigest, row.CompactedTurnID)
	return err
}

// pgTurnRow keeps the jsonb column as raw bytes until decoding.
type pgTurnRow struct {
	ID            int64
	SessionID     uuid.UUID
	Seq           int
	Role          string
	Content       string
	CitedChunkIDs []byte
	CreatedAt     time.Time
}

func (r pgTurnRow) toTurnRow() (TurnRow, error) {
	out := TurnRow{
		ID:        r.ID,
		SessionID: r.SessionID,
		Seq:       r.Seq,
		Role:      r.Role,
		Content:   r.Content,
		CreatedAt: r.CreatedAt,
	}
	if err := json.Unmarshal(r.CitedChunkIDs, &out.CitedChunkIDs); err != nil {
		return TurnRow{}, fmt.Errorf("decoding cited chunks: %w", err)
	}
	return out, nil
}

func scanTurnRows(rows pgx.Rows) ([]TurnRow, error) {
	var out []TurnRow
	for rows.Next() {
		var r pgTurnRow
		if err := rows.Scan(&r.ID, &r.SessionID, &r.Seq, &r.Role, &r.Content, &r.CitedChunkIDs, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning turn row: %w", err)
		}
		turn, err := r.toTurnRow()
		if err != nil {
			return nil, err
		}
		out = append(out, turn)
	}
	return out, rows.Err()
}

// citedOrEmpty keeps jsonb columns as [] rather than null.
func citedOrEmpty(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return ids
}
