package model

import (
	"time"

	"github.com/google/uuid"
)

// NotificationKind enumerates notification categories.
type NotificationKind string

const (
	NotificationExamSubmitted NotificationKind = "EXAM_SUBMITTED"
)

// Notification is an in-app message addressed to one user of a tenant.
type Notification struct {
	ID        uuid.UUID        `json:"id"`
	TenantID  string           `json:"tenantId"`
	UserID    int              `json:"userId"`
	Kind      NotificationKind `json:"kind"`
	Title     string           `json:"title"`
	Body      string           `json:"body"`
	// DedupKey makes redelivered events idempotent.
	DedupKey  string           `json:"-"`
	CreatedAt time.Time        `json:"createdAt"`
}
