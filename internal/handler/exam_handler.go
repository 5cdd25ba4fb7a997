package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-attempt/internal/middleware"
	"github.com/stemsi/exstem-attempt/internal/model"
	"github.com/stemsi/exstem-attempt/internal/response"
	"github.com/stemsi/exstem-attempt/internal/service"
	"github.com/stemsi/exstem-attempt/internal/validator"
)

// ExamHandler serves the student side of an attempt.
type ExamHandler struct {
	examService       *service.ExamService
	submissionService *service.SubmissionService
	log               zerolog.Logger
}

// NewExamHandler creates a new ExamHandler.
func NewExamHandler(examService *service.ExamService, submissionService *service.SubmissionService, log zerolog.Logger) *ExamHandler {
	return &ExamHandler{
		examService:       examService,
		submissionService: submissionService,
		log:               log.With().Str("component", "exam_handler").Logger(),
	}
}

// GetExam godoc
// GET /api/v1/exams/:id
// Returns the exam paper with the caller's remaining seconds. The first call
// starts the attempt clock.
func (h *ExamHandler) GetExam(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	examID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	paper, err := h.examService.StartAttempt(c.Request.Context(), claims.TenantID, examID, claims.UserID)
	if err != nil {
		failService(c, h.log, err)
		return
	}

	c.Header("Cache-Control", "no-store")
	response.Success(c, http.StatusOK, paper)
}

// SubmitExam godoc
// POST /api/v1/exams/submit
// Grades and accepts the answers. Repeating the call returns the first
// acknowledgment with duplicate=true.
func (h *ExamHandler) SubmitExam(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	var req model.SubmitRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}
	if req.Answers == nil {
		req.Answers = []model.AnswerEntry{}
	}

	ack, err := h.submissionService.Submit(c.Request.Context(), claims.TenantID, claims.UserID, &req)
	if err != nil {
		failService(c, h.log, err)
		return
	}

	status := http.StatusCreated
	if ack.Duplicate {
		status = http.StatusOK
	}
	response.Success(c, status, ack)
}
