package service

import (
	"context"
	"time"

	"vouch/internal/verification/guard"
	"vouch/internal/verification/models"
	id "vouch/pkg/domain"
	dErrors "vouch/pkg/domain-errors"
	"vouch/pkg/requestcontext"
)

// PageParams selects a page of the moderation queue. Cursor is the opaque
// token from a previous page; Type optionally narrows the queue.
type PageParams struct {
	Limit  int
	Cursor string
	Type   string
}

// ListPending returns pending requests oldest first. Paging is keyset based,
// so a page token stays valid while other requests are reviewed.
func (s *Service) ListPending(ctx context.Context, caller guard.Caller, params PageParams) (page *models.PendingPage, err error) {
	ctx, finish := s.startSpan(ctx, "ListPending")
	defer func() { finish(err) }()

	if err := s.ensureAdmin(ctx, caller, "list_pending"); err != nil {
		return nil, err
	}

	after, err := models.DecodeCursor(params.Cursor)
	if err != nil {
		return nil, err
	}
	var vt models.VerificationType
	if params.Type != "" {
		if vt, err = s.registry.Parse(params.Type); err != nil {
			return nil, err
		}
	}

	limit := s.clampLimit(params.Limit)
	// One extra row tells us whether another page exists.
	rows, err := s.requests.ListPending(ctx, models.PendingQuery{Type: vt, After: after, Limit: limit + 1})
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list pending verification requests")
	}

	page = &models.PendingPage{Requests: rows}
	if len(rows) > limit {
		page.Requests = rows[:limit]
		page.NextCursor = models.CursorAfter(rows[limit-1]).Encode()
	}
	if page.Requests == nil {
		page.Requests = []*models.Request{}
	}
	return page, nil
}

// Approve moves a pending request to approved.
func (s *Service) Approve(ctx context.Context, caller guard.Caller, requestID id.RequestID, notes string) (req *models.Request, err error) {
	ctx, finish := s.startSpan(ctx, "Approve")
	defer func() { finish(err) }()

	if err := s.ensureAdmin(ctx, caller, "approve"); err != nil {
		return nil, err
	}
	return s.review(ctx, requestID, models.NewApproval(caller.ID, notes, s.now(ctx)))
}

// Reject moves a pending request to rejected. A reason is mandatory.
func (s *Service) Reject(ctx context.Context, caller guard.Caller, requestID id.RequestID, reason, notes string) (req *models.Request, err error) {
	ctx, finish := s.startSpan(ctx, "Reject")
	defer func() { finish(err) }()

	if err := s.ensureAdmin(ctx, caller, "reject"); err != nil {
		return nil, err
	}
	review, err := models.NewRejection(caller.ID, reason, notes, s.now(ctx))
	if err != nil {
		return nil, err
	}
	return s.review(ctx, requestID, review)
}

func (s *Service) ensureAdmin(ctx context.Context, caller guard.Caller, operation string) error {
	if err := guard.EnsureAdmin(caller); err != nil {
		if dErrors.HasCode(err, dErrors.CodeForbidden) {
			s.auditDenied(ctx, caller, "", operation)
		}
		return err
	}
	return nil
}

func (s *Service) clampLimit(limit int) int {
	if limit <= 0 {
		return s.pageSize
	}
	return min(limit, s.maxPageSize)
}

// now is the service clock, truncated to the precision stores keep.
func (s *Service) now(ctx context.Context) time.Time {
	return requestcontext.Now(ctx).UTC().Truncate(time.Microsecond)
}
