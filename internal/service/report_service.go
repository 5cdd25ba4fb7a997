package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-attempt/internal/model"
	"github.com/stemsi/exstem-attempt/internal/repository"
	"github.com/stemsi/exstem-attempt/internal/response"
	"github.com/xuri/excelize/v2"
)

// ResultStore reads persisted submissions.
type ResultStore interface {
	ListByExam(ctx context.Context, tenantID string, examID uuid.UUID, limit, offset int) ([]model.SubmissionResult, int, error)
}

// ReportService lists and exports exam results for teachers.
type ReportService struct {
	exams   ExamStore
	results ResultStore
	log     zerolog.Logger
}

// NewReportService creates a new ReportService.
func NewReportService(exams ExamStore, results ResultStore, log zerolog.Logger) *ReportService {
	return &ReportService{
		exams:   exams,
		results: results,
		log:     log.With().Str("component", "report_service").Logger(),
	}
}

// ListResults returns one page of results, newest first.
func (s *ReportService) ListResults(ctx context.Context, tenantID string, examID uuid.UUID, page, perPage int) ([]model.SubmissionResult, *response.Pagination, error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 20
	}
	if perPage > 100 {
		perPage = 100
	}

	if _, err := s.exam(ctx, tenantID, examID); err != nil {
		return nil, nil, err
	}

	results, total, err := s.results.ListByExam(ctx, tenantID, examID, perPage, (page-1)*perPage)
	if err != nil {
		return nil, nil, fmt.Errorf("list results: %w", err)
	}
	if results == nil {
		results = []model.SubmissionResult{}
	}
	return results, response.NewPagination(page, perPage, total), nil
}

const (
	sheetResults = "Hasil"
	sheetSummary = "Ringkasan"
)

var unsafeFilename = regexp.MustCompile(`[^A-Za-z0-9_-]+`)

// ExportResults writes every result of the exam as an xlsx workbook to w and
// returns a suggested file name.
func (s *ReportService) ExportResults(ctx context.Context, tenantID string, examID uuid.UUID, w io.Writer) (string, error) {
	exam, err := s.exam(ctx, tenantID, examID)
	if err != nil {
		return "", err
	}

	results, _, err := s.results.ListByExam(ctx, tenantID, examID, 0, 0)
	if err != nil {
		return "", fmt.Errorf("list results: %w", err)
	}

	f := excelize.NewFile()
	defer func() {
		if err := f.Close(); err != nil {
			s.log.Warn().Err(err).Msg("Failed to close workbook")
		}
	}()

	if err := f.SetSheetName("Sheet1", sheetResults); err != nil {
		return "", err
	}
	if err := writeResultsSheet(f, results); err != nil {
		return "", fmt.Errorf("results sheet: %w", err)
	}
	if err := writeSummarySheet(f, exam, results); err != nil {
		return "", fmt.Errorf("summary sheet: %w", err)
	}

	if err := f.Write(w); err != nil {
		return "", fmt.Errorf("write workbook: %w", err)
	}

	s.log.Info().
		Str("tenant_id", tenantID).
		Str("exam_id", examID.String()).
		Int("rows", len(results)).
		Msg("Results exported")

	name := strings.Trim(unsafeFilename.ReplaceAllString(exam.Title, "_"), "_")
	if name == "" {
		name = examID.String()
	}
	return fmt.Sprintf("hasil_%s_%s.xlsx", name, time.Now().Format("20060102")), nil
}

func (s *ReportService) exam(ctx context.Context, tenantID string, examID uuid.UUID) (*model.Exam, error) {
	exam, err := s.exams.GetByID(ctx, tenantID, examID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrExamNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get exam: %w", err)
	}
	return exam, nil
}

func writeResultsSheet(f *excelize.File, results []model.SubmissionResult) error {
	header := []any{"No", "ID Siswa", "ID Pengumpulan", "Dijawab", "Nilai", "Nilai Maks", "Persentase", "Waktu Kumpul"}
	if err := f.SetSheetRow(sheetResults, "A1", &header); err != nil {
		return err
	}

	bold, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"#DDEBF7"}},
	})
	if err != nil {
		return err
	}
	if err := f.SetCellStyle(sheetResults, "A1", "H1", bold); err != nil {
		return err
	}

	for i, r := range results {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		row := []any{
			i + 1,
			r.StudentID,
			r.SubmissionID.String(),
			r.Answered,
			r.Score,
			r.MaxScore,
			fmt.Sprintf("%.1f%%", r.Percentage()),
			r.SubmittedAt.Format("2006-01-02 15:04:05"),
		}
		if err := f.SetSheetRow(sheetResults, cell, &row); err != nil {
			return err
		}
	}

	if err := f.SetColWidth(sheetResults, "C", "C", 38); err != nil {
		return err
	}
	return f.SetColWidth(sheetResults, "H", "H", 20)
}

func writeSummarySheet(f *excelize.File, exam *model.Exam, results []model.SubmissionResult) error {
	if _, err := f.NewSheet(sheetSummary); err != nil {
		return err
	}

	var sum, best, worst float64
	for i, r := range results {
		p := r.Percentage()
		sum += p
		if i == 0 || p > best {
			best = p
		}
		if i == 0 || p < worst {
			worst = p
		}
	}
	var mean float64
	if len(results) > 0 {
		mean = sum / float64(len(results))
	}

	rows := [][]any{
		{"Ujian", exam.Title},
		{"Mata Pelajaran", exam.SubjectName},
		{"Durasi (menit)", exam.DurationMinutes},
		{"Jumlah Peserta", len(results)},
		{"Rata-rata (%)", mean},
		{"Tertinggi (%)", best},
		{"Terendah (%)", worst},
	}
	for i := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheetSummary, cell, &rows[i]); err != nil {
			return err
		}
	}
	return f.SetColWidth(sheetSummary, "A", "A", 18)
}
