package handler

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-attempt/internal/middleware"
	"github.com/stemsi/exstem-attempt/internal/model"
	"github.com/stemsi/exstem-attempt/internal/response"
	"github.com/stemsi/exstem-attempt/internal/service"
	"github.com/stemsi/exstem-attempt/internal/validator"
	ws "github.com/stemsi/exstem-attempt/internal/websocket"
)

// buildUpgrader creates a WebSocket upgrader with origin validation.
// An empty allowedOrigins permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// WSHandler streams the server-side countdown of an attempt.
type WSHandler struct {
	examService       *service.ExamService
	submissionService *service.SubmissionService
	log               zerolog.Logger
	limiter           *middleware.RateLimiter
	upgrader          websocket.Upgrader
	tick              time.Duration
}

// NewWSHandler creates a new WSHandler. Submit actions share the REST submit
// limiter; a nil limiter disables the check.
func NewWSHandler(examService *service.ExamService, submissionService *service.SubmissionService, limiter *middleware.RateLimiter, log zerolog.Logger, allowedOrigins []string) *WSHandler {
	return &WSHandler{
		examService:       examService,
		submissionService: submissionService,
		limiter:           limiter,
		log:               log.With().Str("component", "ws_handler").Logger(),
		upgrader:          buildUpgrader(allowedOrigins),
		tick:              time.Second,
	}
}

// ExamStream godoc
// WS /ws/v1/exams/:id/stream?token=&tenant=
// Pushes the remaining seconds every tick and "expired" at zero. Accepts
// "ping" and "submit" actions.
func (h *WSHandler) ExamStream(c *gin.Context) {
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

	// Rejections are sent as plain JSON before the upgrade.
	paper, err := h.examService.StartAttempt(c.Request.Context(), claims.TenantID, examID, claims.UserID)
	if err != nil {
		failService(c, h.log, err)
		return
	}
	deadline := paper.ServerTime.Add(time.Duration(*paper.RemainingSeconds) * time.Second)

	raw, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	conn := ws.NewConn(raw)
	defer conn.Close()

	wsLog := h.log.With().
		Str("tenant_id", claims.TenantID).
		Int("student_id", claims.UserID).
		Str("exam_id", examID.String()).
		Logger()
	wsLog.Info().Msg("Student connected")

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		h.countdown(ctx, conn, deadline)
	}()
	defer func() {
		cancel()
		wg.Wait()
	}()

	for {
		var msg ws.SubmitRequest
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				wsLog.Warn().Err(err).Msg("Unexpected close")
			} else {
				wsLog.Debug().Msg("Connection closed")
			}
			return
		}

		switch msg.Action {
		case ws.ActionPing:
			_ = conn.WriteTyped(ws.PongEvent{Event: ws.EventPong})
		case ws.ActionSubmit:
			if h.handleSubmit(conn, wsLog, claims, examID, msg.Answers) {
				cancel()
			}
		default:
			wsLog.Warn().Str("action", string(msg.Action)).Msg("Unknown action")
			_ = conn.WriteError(string(response.ErrInvalidPayload), "unknown action: "+string(msg.Action))
		}
	}
}

// countdown pushes the remaining seconds until the deadline, then one
// expired event.
func (h *WSHandler) countdown(ctx context.Context, conn *ws.Conn, deadline time.Time) {
	t := time.NewTicker(h.tick)
	defer t.Stop()

	for {
		now := time.Now()
		remaining := service.RemainingSeconds(deadline, now)
		if err := conn.WriteTyped(ws.RemainingEvent{
			Event:            ws.EventRemaining,
			RemainingSeconds: remaining,
			ServerTime:       now.Unix(),
		}); err != nil {
			return
		}
		if remaining == 0 {
			_ = conn.WriteTyped(ws.ExpiredEvent{Event: ws.EventExpired})
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
	}
}

// handleSubmit reports whether the attempt is now submitted.
func (h *WSHandler) handleSubmit(conn *ws.Conn, wsLog zerolog.Logger, claims *service.Claims, examID uuid.UUID, answers []model.AnswerEntry) bool {
	if answers == nil {
		answers = []model.AnswerEntry{}
	}
	req := &model.SubmitRequest{ExamID: examID, Answers: answers}
	if fields := validator.Struct(req); fields != nil {
		_ = conn.WriteError(string(response.ErrValidation), response.GetMessage(response.ErrValidation))
		return false
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if h.limiter != nil {
		allowed, _, _, err := h.limiter.Allow(ctx, claims.TenantID, claims.UserID)
		if err != nil {
			wsLog.Warn().Err(err).Msg("Rate limiter unavailable")
		} else if !allowed {
			_ = conn.WriteError(string(response.ErrRateLimitExceeded), response.GetMessage(response.ErrRateLimitExceeded))
			return false
		}
	}

	ack, err := h.submissionService.Submit(ctx, claims.TenantID, claims.UserID, req)
	if err != nil {
		status, code := classify(err)
		if status == http.StatusInternalServerError {
			wsLog.Error().Err(err).Msg("Submit failed")
		}
		_ = conn.WriteError(string(code), response.GetMessage(code))
		return false
	}

	_ = conn.WriteTyped(ws.SubmittedEvent{Event: ws.EventSubmitted, Ack: ack})
	return true
}
