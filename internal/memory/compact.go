package memory

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/okulai/okulai/internal/gen"
)

const summarizeSystemPrompt = "Sen bir eğitim asistanısın. Öğrencinin geçmiş konuşmalarını, çalıştığı konuları ve zorlandığı noktaları koruyarak kısa bir özet halinde birleştirirsin."

// CompactIfNeeded folds the student's overflow turns into the profile's
// long-term summary once the uncompacted count passes the threshold. The
// most recent window stays verbatim. The CompactedTurnID watermark advances
// only after the summary is persisted, so a failed run redoes the same work
// instead of losing turns, and a repeated run after success is a no-op.
func (s *Store) CompactIfNeeded(ctx context.Context, studentID string) error {
	return s.compact(ctx, studentID, s.cfg.WindowTurns, s.cfg.CompactThreshold)
}

// CompactAll folds every uncompacted turn into the summary regardless of
// threshold or window. The janitor runs it before evicting a session, so
// the cascade delete never removes turns the summary has not absorbed.
func (s *Store) CompactAll(ctx context.Context, studentID string) error {
	return s.compact(ctx, studentID, 0, 1)
}

// compact summarizes the turns past the watermark, keeping the newest
// retain turns verbatim, and only when at least minUncompacted turns have
// accumulated. The watermark is the id of the last summarized turn, so it
// stays correct after evicted sessions cascade-delete their rows.
func (s *Store) compact(ctx context.Context, studentID string, retain, minUncompacted int) error {
	profile := ProfileRow{StudentID: studentID}
	if row, err := s.queries.GetProfile(ctx, studentID); err == nil {
		profile = row
	} else if !errors.Is(err, ErrProfileNotFound) {
		return fmt.Errorf("load profile: %w", err)
	}

	uncompacted, err := s.queries.StudentTurnCount(ctx, studentID, profile.CompactedTurnID)
	if err != nil {
		return fmt.Errorf("count turns: %w", err)
	}
	if uncompacted < minUncompacted {
		return nil
	}

	toCompact := uncompacted - retain
	if toCompact <= 0 {
		return nil
	}

	rows, err := s.queries.StudentTurns(ctx, studentID, profile.CompactedTurnID, toCompact)
	if err != nil {
		return fmt.Errorf("load turns for compaction: %w", err)
	}
	if len(rows) == 0 {
		return nil
	}

	summary, err := s.summarize(ctx, profile.LongTermSummary, rows)
	if err != nil {
		return fmt.Errorf("summarize turns: %w", err)
	}

	profile.LongTermSummary = summary
	profile.CompactedTurnID = rows[len(rows)-1].ID
	if err := s.queries.UpsertProfile(ctx, profile); err != nil {
		return fmt.Errorf("save compacted profile: %w", err)
	}

	s.logger.Info("compacted session turns",
		"student_id", studentID,
		"compacted", len(rows),
		"watermark", profile.CompactedTurnID)
	return nil
}

func (s *Store) summarize(ctx context.Context, previousSummary string, rows []TurnRow) (string, error) {
	sctx, cancel := context.WithTimeout(ctx, s.cfg.SummaryTimeout)
	defer cancel()

	var b strings.Builder
	if previousSummary != "" {
		b.WriteString("Önceki özet:\n" + previousSummary + "\n\n")
	}
	b.WriteString("Yeni konuşmalar:\n")
	for _, row := range rows {
		label := "Öğrenci"
		if row.Role != RoleStudent {
			label = "Asistan"
		}
		fmt.Fprintf(&b, "%s: %s\n", label, row.Content)
	}
	b.WriteString("\nBu konuşmaları önceki özetle birleştirip güncel bir özet yaz.")

	resp, err := s.generator.Generate(sctx, gen.Request{
		System: summarizeSystemPrompt,
		Prompt: b.String(),
	})
	if err != nil {
		return "", err
	}
	return resp.Text, nil
}
