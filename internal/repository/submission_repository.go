package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/exstem-attempt/internal/model"
)

// SubmissionRepository persists graded submissions.
type SubmissionRepository struct {
	pool *pgxpool.Pool
}

// NewSubmissionRepository creates a new SubmissionRepository.
func NewSubmissionRepository(pool *pgxpool.Pool) *SubmissionRepository {
	return &SubmissionRepository{pool: pool}
}

// BulkInsert writes a batch of submissions and their answers in one
// transaction. Rows already present for (tenant, exam, student) are skipped
// together with their answers.
func (r *SubmissionRepository) BulkInsert(ctx context.Context, batch []model.Submission) error {
	if len(batch) == 0 {
		return nil
	}

	n := len(batch)
	ids := make([]uuid.UUID, n)
	tenants := make([]string, n)
	examIDs := make([]uuid.UUID, n)
	students := make([]int, n)
	answered := make([]int, n)
	scores := make([]float64, n)
	maxScores := make([]float64, n)
	submittedAts := make([]time.Time, n)
	for i, s := range batch {
		ids[i] = s.ID
		tenants[i] = s.TenantID
		examIDs[i] = s.ExamID
		students[i] = s.StudentID
		answered[i] = len(s.Answers)
		scores[i] = s.Score
		maxScores[i] = s.MaxScore
		submittedAts[i] = s.SubmittedAt
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	rows, err := tx.Query(ctx, `
		INSERT INTO exam_submissions
			(id, tenant_id, exam_id, student_id, answered, score, max_score, submitted_at)
		SELECT * FROM UNNEST(
			$1::uuid[],
			$2::text[],
			$3::uuid[],
			$4::int[],
			$5::int[],
			$6::float8[],
			$7::float8[],
			$8::timestamptz[]
		)
		ON CONFLICT (tenant_id, exam_id, student_id) DO NOTHING
		RETURNING id`,
		ids, tenants, examIDs, students, answered, scores, maxScores, submittedAts)
	if err != nil {
		return fmt.Errorf("insert submissions: %w", err)
	}
	inserted, err := pgx.CollectRows(rows, pgx.RowTo[uuid.UUID])
	if err != nil {
		return fmt.Errorf("insert submissions: %w", err)
	}

	keep := make(map[uuid.UUID]bool, len(inserted))
	for _, id := range inserted {
		keep[id] = true
	}

	var answerRows [][]any
	for _, s := range batch {
		if !keep[s.ID] {
			continue
		}
		for _, a := range s.Answers {
			answerRows = append(answerRows, []any{s.ID, a.QuestionID, a.SelectedOption})
		}
	}

	if len(answerRows) > 0 {
		if _, err := tx.CopyFrom(ctx,
			pgx.Identifier{"submission_answers"},
			[]string{"submission_id", "question_id", "selected_option"},
			pgx.CopyFromRows(answerRows),
		); err != nil {
			return fmt.Errorf("copy answers: %w", err)
		}
	}

	return tx.Commit(ctx)
}

// Insert writes a single submission. Used as the fallback when a batch fails.
func (r *SubmissionRepository) Insert(ctx context.Context, s *model.Submission) error {
	return r.BulkInsert(ctx, []model.Submission{*s})
}

// ListByExam returns one page of results for an exam, newest first.
func (r *SubmissionRepository) ListByExam(ctx context.Context, tenantID string, examID uuid.UUID, limit, offset int) ([]model.SubmissionResult, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM exam_submissions WHERE tenant_id = $1 AND exam_id = $2`,
		tenantID, examID,
	).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT id, student_id, answered, score, max_score, submitted_at
	          FROM exam_submissions
	          WHERE tenant_id = $1 AND exam_id = $2
	          ORDER BY submitted_at DESC`
	args := []any{tenantID, examID}
	if limit > 0 {
		query += ` LIMIT $3 OFFSET $4`
		args = append(args, limit, offset)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var results []model.SubmissionResult
	for rows.Next() {
		var res model.SubmissionResult
		if err := rows.Scan(&res.SubmissionID, &res.StudentID, &res.Answered,
			&res.Score, &res.MaxScore, &res.SubmittedAt); err != nil {
			return nil, 0, err
		}
		results = append(results, res)
	}
	return results, total, rows.Err()
}
