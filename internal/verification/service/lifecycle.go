package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"golang.org/x/sync/errgroup"

	"vouch/internal/verification/guard"
	vmetrics "vouch/internal/verification/metrics"
	"vouch/internal/verification/models"
	id "vouch/pkg/domain"
	dErrors "vouch/pkg/domain-errors"
	"vouch/pkg/platform/audit"
	"vouch/pkg/platform/sentinel"
	"vouch/pkg/requestcontext"
)

// maxParallelUploads bounds concurrent writes to document storage per submission.
const maxParallelUploads = 4

// DocumentInput is one uploaded file. Open is called at most once, from the
// goroutine that streams it to storage.
type DocumentInput struct {
	models.DocumentMeta
	Open func() (io.ReadCloser, error)
}

type SubmitInput struct {
	OwnerID   id.UserID
	Type      string
	Data      map[string]string
	UserNotes string
	Documents []DocumentInput
}

func (in SubmitInput) metas() []models.DocumentMeta {
	metas := make([]models.DocumentMeta, len(in.Documents))
	for i, d := range in.Documents {
		metas[i] = d.DocumentMeta
	}
	return metas
}

// Submit creates a pending request for the caller. Checks run in order:
// caller identity, rate limit, validation and a dedup pre-check. Documents
// are then stored and the row is inserted by an atomic check-and-insert.
// Nothing is persisted when any step fails.
func (s *Service) Submit(ctx context.Context, caller guard.Caller, in SubmitInput) (req *models.Request, err error) {
	ctx, finish := s.startSpan(ctx, "Submit")
	start := time.Now()
	defer func() {
		finish(err)
		if s.metrics != nil {
			s.metrics.ObserveSubmitDuration(time.Since(start))
			s.metrics.IncrementSubmission(s.typeLabel(in.Type), submitOutcome(err))
		}
	}()

	if err := guard.EnsureSelf(caller, in.OwnerID); err != nil {
		s.auditDenied(ctx, caller, in.OwnerID.String(), "submit")
		return nil, err
	}
	if err := s.limiter.CheckAndConsume(ctx, in.OwnerID); err != nil {
		return nil, err
	}

	vt, err := s.registry.Parse(in.Type)
	if err != nil {
		return nil, err
	}
	if err := s.validator.Validate(vt, in.Data, in.metas(), in.UserNotes); err != nil {
		return nil, err
	}
	reqs, err := s.registry.RequirementsFor(vt)
	if err != nil {
		return nil, err
	}

	// Fail fast before touching storage. The insert below re-checks atomically.
	if err := s.precheckDedup(ctx, in.OwnerID, vt); err != nil {
		return nil, err
	}

	documents, err := s.storeDocuments(ctx, in, reqs.MaxDocumentBytes)
	if err != nil {
		return nil, err
	}

	now := s.now(ctx)
	req, err = models.NewRequest(id.NewRequestID(), in.OwnerID, vt, in.Data, documents, in.UserNotes, now)
	if err != nil {
		s.discardDocuments(ctx, documents)
		return nil, err
	}

	if err := s.requests.CreatePending(ctx, req); err != nil {
		s.discardDocuments(ctx, documents)
		return nil, translateCreateError(err)
	}

	s.logAudit(ctx, audit.Event{
		UserID:   in.OwnerID,
		Subject:  req.ID.String(),
		Action:   string(audit.EventVerificationSubmitted),
		Decision: string(models.StatusPending),
		Client:   requestcontext.ClientLabel(ctx),
	},
		"verification_request_id", req.ID.String(),
		"verification_type", string(vt),
		"documents", len(documents),
	)
	s.notify(ctx, req)
	return req, nil
}

func (s *Service) precheckDedup(ctx context.Context, ownerID id.UserID, vt models.VerificationType) error {
	if _, err := s.requests.FindApprovedFor(ctx, ownerID, vt); err == nil {
		return alreadyVerified(vt)
	} else if !errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to check existing verification")
	}

	if _, err := s.requests.FindPendingFor(ctx, ownerID, vt); err == nil {
		return duplicatePending(vt)
	} else if !errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to check pending verification")
	}
	return nil
}

// storeDocuments uploads every document concurrently. It is all or nothing:
// when one upload fails, the ones that succeeded are deleted again.
func (s *Service) storeDocuments(ctx context.Context, in SubmitInput, maxBytes int64) ([]models.Document, error) {
	documents := make([]models.Document, len(in.Documents))
	stored := make([]bool, len(in.Documents))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallelUploads)
	for i, doc := range in.Documents {
		g.Go(func() error {
			content, err := doc.Open()
			if err != nil {
				return fmt.Errorf("open document %d: %w", i, err)
			}
			defer content.Close()

			result, err := s.documents.Store(gctx, models.DocumentUpload{
				DocumentMeta: doc.DocumentMeta,
				OwnerID:      in.OwnerID.String(),
				Content:      content,
				MaxBytes:     maxBytes,
			})
			if err != nil {
				return fmt.Errorf("store document %d: %w", i, err)
			}
			documents[i] = models.Document{
				StorageRef:   result.Ref,
				OriginalName: doc.OriginalName,
				MimeType:     doc.MimeType,
				SizeBytes:    result.SizeBytes,
				Digest:       result.Digest,
			}
			stored[i] = true
			if s.metrics != nil {
				s.metrics.RecordDocumentStored(result.SizeBytes)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		var partial []models.Document
		for i, ok := range stored {
			if ok {
				partial = append(partial, documents[i])
			}
		}
		s.discardDocuments(ctx, partial)
		s.logger.ErrorContext(ctx, "document storage failed", "owner_id", in.OwnerID.String(), "error", err)
		return nil, dErrors.Wrap(err, dErrors.CodeStorageFailure, "failed to store documents")
	}
	return documents, nil
}

// discardDocuments best-effort removes blobs that no request will reference.
func (s *Service) discardDocuments(ctx context.Context, documents []models.Document) {
	ctx = context.WithoutCancel(ctx)
	for _, d := range documents {
		if err := s.documents.Delete(ctx, d.StorageRef); err != nil {
			if s.metrics != nil {
				s.metrics.IncrementOrphanCleanupError()
			}
			s.logger.WarnContext(ctx, "failed to delete orphaned document", "storage_ref", d.StorageRef, "error", err)
		}
	}
}

// review runs the single pending → terminal transition. The store re-reads
// status inside the same atomic update.
func (s *Service) review(ctx context.Context, requestID id.RequestID, review models.Review) (*models.Request, error) {
	updated, err := s.requests.UpdateTerminal(ctx, requestID, review)
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return nil, dErrors.New(dErrors.CodeNotFound, "verification request not found")
	case errors.Is(err, sentinel.ErrInvalidState):
		if s.metrics != nil {
			s.metrics.IncrementReviewRaceLost()
		}
		s.logAudit(ctx, audit.Event{
			Subject:  requestID.String(),
			Action:   string(audit.EventReviewRaceLost),
			Decision: string(review.Decision),
			ActorID:  review.ReviewerID.String(),
		}, "verification_request_id", requestID.String())
		return nil, dErrors.New(dErrors.CodeAlreadyReviewed, "verification request has already been reviewed")
	case err != nil:
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to update verification request")
	}

	action := audit.EventVerificationApproved
	if review.Decision == models.StatusRejected {
		action = audit.EventVerificationRejected
	}
	s.logAudit(ctx, audit.Event{
		UserID:   updated.OwnerID,
		Subject:  updated.ID.String(),
		Action:   string(action),
		Decision: string(updated.Status),
		Reason:   updated.RejectionReason,
		ActorID:  review.ReviewerID.String(),
	},
		"verification_request_id", updated.ID.String(),
		"verification_type", string(updated.Type),
		"admin_id", review.ReviewerID.String(),
	)
	if s.metrics != nil {
		s.metrics.IncrementReview(string(updated.Status))
	}
	s.notify(ctx, updated)
	return updated, nil
}

func (s *Service) auditDenied(ctx context.Context, caller guard.Caller, subject, operation string) {
	s.logAudit(ctx, audit.Event{
		UserID:   caller.ID,
		Subject:  subject,
		Action:   string(audit.EventAccessDenied),
		Decision: "denied",
		Reason:   operation,
	}, "caller_id", caller.ID.String(), "operation", operation)
}

func translateCreateError(err error) error {
	switch {
	case errors.Is(err, sentinel.ErrFinalized):
		return dErrors.New(dErrors.CodeAlreadyVerified, "verification type is already approved")
	case errors.Is(err, sentinel.ErrConflict):
		return dErrors.New(dErrors.CodeDuplicatePending, "a verification request of this type is already pending")
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to save verification request")
	}
}

func alreadyVerified(vt models.VerificationType) error {
	return dErrors.New(dErrors.CodeAlreadyVerified, fmt.Sprintf("%s verification is already approved", vt))
}

func duplicatePending(vt models.VerificationType) error {
	return dErrors.New(dErrors.CodeDuplicatePending, fmt.Sprintf("a %s verification request is already pending", vt))
}

// typeLabel keeps metric cardinality bounded to the registered types.
func (s *Service) typeLabel(raw string) string {
	vt, err := s.registry.Parse(raw)
	if err != nil {
		return "unknown"
	}
	return string(vt)
}

func submitOutcome(err error) string {
	if err == nil {
		return vmetrics.OutcomeAccepted
	}
	switch dErrors.CodeOf(err) {
	case dErrors.CodeValidation, dErrors.CodeUnknownVerificationType:
		return vmetrics.OutcomeRejected
	case dErrors.CodeDuplicatePending:
		return vmetrics.OutcomeDuplicate
	case dErrors.CodeAlreadyVerified:
		return vmetrics.OutcomeVerified
	case dErrors.CodeRateLimitExceeded:
		return vmetrics.OutcomeLimited
	case dErrors.CodeStorageFailure:
		return vmetrics.OutcomeStorage
	default:
		return vmetrics.OutcomeError
	}
}
