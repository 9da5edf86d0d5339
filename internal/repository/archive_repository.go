package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/intervue/internal/model"
)

var archiveColumns = []string{
	"interview_id", "interview_type", "user_id", "outcome", "reason",
	"started_at", "ended_at", "question_number", "total_questions", "warning_count",
	"tab_switches", "copy_paste_count", "face_detection_issues",
}

var messageColumns = []string{
	"interview_id", "seq", "message_id", "role", "body", "question_id", "analysis", "sent_at",
}

// ArchiveRepository writes finished session transcripts to Postgres.
type ArchiveRepository struct {
	pool *pgxpool.Pool
}

// NewArchiveRepository creates a new ArchiveRepository.
func NewArchiveRepository(pool *pgxpool.Pool) *ArchiveRepository {
	return &ArchiveRepository{pool: pool}
}

// InsertBatch copies a batch of records in one transaction. Any failure,
// including a duplicate interview id, rolls back the whole batch.
func (r *ArchiveRepository) InsertBatch(ctx context.Context, batch []model.ArchiveRecord) error {
	archives := make([][]any, 0, len(batch))
	messages := make([][]any, 0, len(batch)*8)
	for i := range batch {
		archives = append(archives, archiveRow(&batch[i]))
		rows, err := messageRows(&batch[i])
		if err != nil {
			return err
		}
		messages = append(messages, rows...)
	}

	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.CopyFrom(ctx, pgx.Identifier{"interview_archives"}, archiveColumns, pgx.CopyFromRows(archives)); err != nil {
			return fmt.Errorf("copy archives: %w", err)
		}
		if len(messages) == 0 {
			return nil
		}
		if _, err := tx.CopyFrom(ctx, pgx.Identifier{"interview_archive_messages"}, messageColumns, pgx.CopyFromRows(messages)); err != nil {
			return fmt.Errorf("copy messages: %w", err)
		}
		return nil
	})
}

// Insert writes a single record. A record already archived is skipped.
func (r *ArchiveRepository) Insert(ctx context.Context, rec *model.ArchiveRecord) error {
	rows, err := messageRows(rec)
	if err != nil {
		return err
	}

	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx,
			`INSERT INTO interview_archives (
				interview_id, interview_type, user_id, outcome, reason,
				started_at, ended_at, question_number, total_questions, warning_count,
				tab_switches, copy_paste_count, face_detection_issues)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
			 ON CONFLICT (interview_id) DO NOTHING`,
			archiveRow(rec)...,
		)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return nil
		}

		b := &pgx.Batch{}
		for _, row := range rows {
			b.Queue(
				`INSERT INTO interview_archive_messages (
					interview_id, seq, message_id, role, body, question_id, analysis, sent_at)
				 VALUES ($1, $2, $3, $4, $5, $6, $7::jsonb, $8)`,
				row...,
			)
		}
		return tx.SendBatch(ctx, b).Close()
	})
}

// IsPermanent reports whether err is caused by the row itself (bad data or a
// constraint) so retrying it can never succeed.
func IsPermanent(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || len(pgErr.Code) < 2 {
		return false
	}
	switch pgErr.Code[:2] {
	case "22", "23":
		return true
	}
	return false
}

func archiveRow(rec *model.ArchiveRecord) []any {
	var startedAt *time.Time
	if !rec.StartedAt.IsZero() {
		t := rec.StartedAt
		startedAt = &t
	}
	return []any{
		rec.InterviewID, string(rec.InterviewType), rec.UserID, string(rec.Outcome), rec.Reason,
		startedAt, rec.EndedAt, rec.QuestionNumber, rec.TotalQuestions, rec.WarningCount,
		rec.Proctoring.TabSwitches, rec.Proctoring.CopyPasteCount, rec.Proctoring.FaceDetectionIssues,
	}
}

func messageRows(rec *model.ArchiveRecord) ([][]any, error) {
	rows := make([][]any, 0, len(rec.Messages))
	for i, m := range rec.Messages {
		var analysis any
		if m.AnswerAnalysis != nil {
			data, err := json.Marshal(m.AnswerAnalysis)
			if err != nil {
				return nil, fmt.Errorf("marshal analysis for %s: %w", rec.InterviewID, err)
			}
			analysis = string(data)
		}
		rows = append(rows, []any{
			rec.InterviewID, i, m.ID, string(m.Role), m.Text, m.QuestionID, analysis, m.Timestamp,
		})
	}
	return rows, nil
}
