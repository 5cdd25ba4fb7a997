package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/exstem-attempt/internal/model"
)

// NotificationRepository stores in-app notifications.
type NotificationRepository struct {
	pool *pgxpool.Pool
}

// NewNotificationRepository creates a new NotificationRepository.
func NewNotificationRepository(pool *pgxpool.Pool) *NotificationRepository {
	return &NotificationRepository{pool: pool}
}

// Create inserts n. A notification with the same dedup key is ignored.
func (r *NotificationRepository) Create(ctx context.Context, n *model.Notification) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO notifications (tenant_id, user_id, kind, title, body, dedup_key)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (dedup_key) DO NOTHING`,
		n.TenantID, n.UserID, n.Kind, n.Title, n.Body, n.DedupKey)
	return err
}
