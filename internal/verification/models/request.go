package models

import (
	"maps"
	"slices"
	"strings"
	"time"

	id "vouch/pkg/domain"
	dErrors "vouch/pkg/domain-errors"
)

// Document references one stored file supporting a request. Documents are
// owned by exactly one request and never shared.
type Document struct {
	StorageRef   string `json:"storage_ref"`
	OriginalName string `json:"original_name"`
	MimeType     string `json:"mime_type"`
	SizeBytes    int64  `json:"size_bytes"`
	// Digest is the hex blake2b-256 of the stored bytes.
	Digest string `json:"digest,omitempty"`
}

// Request is the aggregate root for one verification submission.
//
// Invariants:
//   - Documents is non-empty regardless of status
//   - Status starts at pending and moves at most once, to approved or rejected
//   - AdminNotes, RejectionReason, ReviewedBy and ReviewedAt are written only
//     by that single transition
//   - RejectionReason is non-empty iff Status is rejected
type Request struct {
	ID              id.RequestID      `json:"id"`
	OwnerID         id.UserID         `json:"owner_id"`
	Type            VerificationType  `json:"verification_type"`
	Status          Status            `json:"status"`
	SubmittedData   map[string]string `json:"submitted_data"`
	Documents       []Document        `json:"documents"`
	UserNotes       string            `json:"user_notes,omitempty"`
	AdminNotes      string            `json:"admin_notes,omitempty"`
	RejectionReason string            `json:"rejection_reason,omitempty"`
	ReviewedBy      *id.UserID        `json:"reviewed_by,omitempty"`
	SubmittedAt     time.Time         `json:"submitted_at"`
	ReviewedAt      *time.Time        `json:"reviewed_at,omitempty"`
}

func NewRequest(
	requestID id.RequestID,
	ownerID id.UserID,
	verificationType VerificationType,
	data map[string]string,
	documents []Document,
	userNotes string,
	now time.Time,
) (*Request, error) {
	if requestID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "request id cannot be nil")
	}
	if ownerID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "owner id cannot be nil")
	}
	if verificationType == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "verification type cannot be empty")
	}
	if len(documents) == 0 {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "a request needs at least one document")
	}
	for _, d := range documents {
		if d.StorageRef == "" {
			return nil, dErrors.New(dErrors.CodeInvariantViolation, "document storage reference cannot be empty")
		}
	}
	if data == nil {
		data = map[string]string{}
	}
	return &Request{
		ID:            requestID,
		OwnerID:       ownerID,
		Type:          verificationType,
		Status:        StatusPending,
		SubmittedData: maps.Clone(data),
		Documents:     slices.Clone(documents),
		UserNotes:     userNotes,
		SubmittedAt:   now,
	}, nil
}

func (r *Request) IsPending() bool {
	return r.Status == StatusPending
}

// CanReview reports whether the request may still take its single review.
func (r *Request) CanReview() error {
	if !r.Status.CanTransitionTo(StatusApproved) {
		return dErrors.New(dErrors.CodeAlreadyReviewed, "request has already been reviewed")
	}
	return nil
}

// ApplyReview writes the review outcome. Must only be called after CanReview
// returns nil.
func (r *Request) ApplyReview(review Review) {
	reviewer := review.ReviewerID
	at := review.At
	r.Status = review.Decision
	r.AdminNotes = review.Notes
	r.RejectionReason = review.Reason
	r.ReviewedBy = &reviewer
	r.ReviewedAt = &at
}

// Clone returns a deep copy so stores never hand out shared state.
func (r *Request) Clone() *Request {
	if r == nil {
		return nil
	}
	c := *r
	c.SubmittedData = maps.Clone(r.SubmittedData)
	c.Documents = slices.Clone(r.Documents)
	if r.ReviewedBy != nil {
		v := *r.ReviewedBy
		c.ReviewedBy = &v
	}
	if r.ReviewedAt != nil {
		v := *r.ReviewedAt
		c.ReviewedAt = &v
	}
	return &c
}

// Review is the terminal decision an admin applies to a pending request.
type Review struct {
	Decision   Status
	ReviewerID id.UserID
	Notes      string
	Reason     string
	At         time.Time
}

func NewApproval(reviewerID id.UserID, notes string, now time.Time) Review {
	return Review{
		Decision:   StatusApproved,
		ReviewerID: reviewerID,
		Notes:      strings.TrimSpace(notes),
		At:         now,
	}
}

// NewRejection requires a non-blank reason.
func NewRejection(reviewerID id.UserID, reason, notes string, now time.Time) (Review, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return Review{}, dErrors.Validation("rejection reason is required", []dErrors.FieldError{
			{Field: "reason", Message: "must not be empty"},
		})
	}
	return Review{
		Decision:   StatusRejected,
		ReviewerID: reviewerID,
		Notes:      strings.TrimSpace(notes),
		Reason:     reason,
		At:         now,
	}, nil
}
