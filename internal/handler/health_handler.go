package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-attempt/internal/config"
	"github.com/stemsi/exstem-attempt/internal/response"
)

// Pinger is satisfied by *pgxpool.Pool.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler reports dependency reachability and the persistence backlog.
type HealthHandler struct {
	db  Pinger
	rdb *redis.Client
	log zerolog.Logger
}

func NewHealthHandler(db Pinger, rdb *redis.Client, log zerolog.Logger) *HealthHandler {
	return &HealthHandler{
		db:  db,
		rdb: rdb,
		log: log.With().Str("component", "health_handler").Logger(),
	}
}

type healthStatus struct {
	Status           string `json:"status"`
	Database         string `json:"database"`
	Redis            string `json:"redis"`
	QueueSubmissions int64  `json:"queueSubmissions"`
	CheckedAt        int64  `json:"checkedAt"`
}

// Health godoc
// GET /health
// Responds 503 when PostgreSQL or Redis is unreachable.
func (h *HealthHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	st := healthStatus{Status: "ok", Database: "ok", Redis: "ok", CheckedAt: time.Now().Unix()}

	if h.db != nil {
		if err := h.db.Ping(ctx); err != nil {
			h.log.Warn().Err(err).Msg("PostgreSQL ping failed")
			st.Database, st.Status = "down", "degraded"
		}
	}

	// ── Redis + queue depth (pipelined) ──
	pipe := h.rdb.Pipeline()
	ping := pipe.Ping(ctx)
	depth := pipe.LLen(ctx, config.WorkerKey.PersistSubmissionsQueue)
	if _, err := pipe.Exec(ctx); err != nil || ping.Err() != nil {
		h.log.Warn().Err(err).Msg("Redis ping failed")
		st.Redis, st.Status = "down", "degraded"
	} else {
		st.QueueSubmissions = depth.Val()
	}

	status := http.StatusOK
	if st.Status != "ok" {
		status = http.StatusServiceUnavailable
	}
	response.Success(c, status, st)
}
