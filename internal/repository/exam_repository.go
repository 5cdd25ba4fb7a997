package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/exstem-attempt/internal/model"
)

// ErrNotFound is returned when a row does not exist for the tenant.
var ErrNotFound = errors.New("not found")

// ExamRepository handles exam data access.
type ExamRepository struct {
	pool *pgxpool.Pool
}

// NewExamRepository creates a new ExamRepository.
func NewExamRepository(pool *pgxpool.Pool) *ExamRepository {
	return &ExamRepository{pool: pool}
}

const examColumns = `id, tenant_id, title, subject_name, duration_minutes,
	start_time, end_time, status, created_at, updated_at`

func scanExam(row pgx.Row, e *model.Exam) error {
	return row.Scan(&e.ID, &e.TenantID, &e.Title, &e.SubjectName, &e.DurationMinutes,
		&e.StartTime, &e.EndTime, &e.Status, &e.CreatedAt, &e.UpdatedAt)
}

// GetByID retrieves an exam of a tenant by its UUID, without questions.
func (r *ExamRepository) GetByID(ctx context.Context, tenantID string, id uuid.UUID) (*model.Exam, error) {
	e := &model.Exam{}
	err := scanExam(r.pool.QueryRow(ctx,
		`SELECT `+examColumns+` FROM exams WHERE tenant_id = $1 AND id = $2`, tenantID, id), e)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return e, nil
}

// ListOpen returns published exams of every tenant whose window has not
// closed at now. Used for cache prewarming on startup.
func (r *ExamRepository) ListOpen(ctx context.Context, now time.Time) ([]model.Exam, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+examColumns+` FROM exams
		 WHERE status = $1 AND end_time > $2
		 ORDER BY start_time`, model.ExamStatusPublished, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var exams []model.Exam
	for rows.Next() {
		var e model.Exam
		if err := scanExam(rows, &e); err != nil {
			return nil, err
		}
		exams = append(exams, e)
	}
	return exams, rows.Err()
}

// Create inserts an exam together with its questions in one transaction.
func (r *ExamRepository) Create(ctx context.Context, e *model.Exam) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx,
			`INSERT INTO exams (tenant_id, title, subject_name, duration_minutes, start_time, end_time, status)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)
			 RETURNING id, created_at, updated_at`,
			e.TenantID, e.Title, e.SubjectName, e.DurationMinutes, e.StartTime, e.EndTime, e.Status,
		).Scan(&e.ID, &e.CreatedAt, &e.UpdatedAt)
		if err != nil {
			return err
		}

		for i := range e.Questions {
			q := &e.Questions[i]
			if q.OrderNum == 0 {
				q.OrderNum = i + 1
			}
			err := tx.QueryRow(ctx,
				`INSERT INTO questions (exam_id, question_text, options, correct_option, marks, order_num)
				 VALUES ($1, $2, $3, $4, $5, $6)
				 RETURNING id`,
				e.ID, q.Text, q.Options, q.CorrectOption, q.Marks, q.OrderNum,
			).Scan(&q.ID)
			if err != nil {
				return err
			}
		}
		return nil
	})
}
