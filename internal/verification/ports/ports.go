// Package ports defines the collaborators the verification service consumes.
package ports

import (
	"context"
	"io"

	"vouch/internal/verification/models"
	id "vouch/pkg/domain"
	"vouch/pkg/platform/audit"
)

// RequestStore persists verification requests. CreatePending and
// UpdateTerminal are each one atomic unit with respect to concurrent callers.
type RequestStore interface {
	// CreatePending inserts a pending request unless its (owner, type) already
	// has an approved request (sentinel.ErrFinalized) or a pending one
	// (sentinel.ErrConflict).
	CreatePending(ctx context.Context, req *models.Request) error

	// FindByID returns sentinel.ErrNotFound when absent.
	FindByID(ctx context.Context, requestID id.RequestID) (*models.Request, error)

	// ListByOwner returns every request of the owner, newest first.
	ListByOwner(ctx context.Context, ownerID id.UserID) ([]*models.Request, error)

	// FindPendingFor returns sentinel.ErrNotFound when no request is pending.
	FindPendingFor(ctx context.Context, ownerID id.UserID, t models.VerificationType) (*models.Request, error)

	// FindApprovedFor returns sentinel.ErrNotFound when no request is approved.
	FindApprovedFor(ctx context.Context, ownerID id.UserID, t models.VerificationType) (*models.Request, error)

	// ListPending returns up to q.Limit pending requests after q.After in
	// (submitted_at, id) order.
	ListPending(ctx context.Context, q models.PendingQuery) ([]*models.Request, error)

	// UpdateTerminal applies review if the request is still pending and returns
	// the updated row. sentinel.ErrNotFound when absent, sentinel.ErrInvalidState
	// when it was already reviewed.
	UpdateTerminal(ctx context.Context, requestID id.RequestID, review models.Review) (*models.Request, error)
}

// DocumentStorage holds document bytes. Store returns only once the bytes are durable.
type DocumentStorage interface {
	Store(ctx context.Context, upload models.DocumentUpload) (models.StoredDocument, error)
	Open(ctx context.Context, ref string) (io.ReadCloser, error)
	Delete(ctx context.Context, ref string) error
}

// Notifier is told about status changes. It must not block the caller and
// has no way to fail the operation that triggered it.
type Notifier interface {
	StatusChanged(ctx context.Context, req *models.Request)
}

// RateLimiter bounds submissions per user.
type RateLimiter interface {
	CheckAndConsume(ctx context.Context, ownerID id.UserID) error
}

// AuditPublisher emits audit events for compliance-relevant operations.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}
