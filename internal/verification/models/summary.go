package models

import (
	"time"

	id "vouch/pkg/domain"
)

// TypeState is the user-facing aggregate of every request for one type.
type TypeState string

const (
	StateUnverified TypeState = "unverified"
	StatePending    TypeState = "pending"
	StateApproved   TypeState = "approved"
	StateRejected   TypeState = "rejected"
)

// TypeStatus summarises one verification type for one user.
type TypeStatus struct {
	Type            VerificationType `json:"verification_type"`
	State           TypeState        `json:"state"`
	RequestID       *id.RequestID    `json:"request_id,omitempty"`
	SubmittedAt     *time.Time       `json:"submitted_at,omitempty"`
	ReviewedAt      *time.Time       `json:"reviewed_at,omitempty"`
	RejectionReason string           `json:"rejection_reason,omitempty"`
}

// Summarize folds a user's requests into one status per type, in the order of
// types. An approved request wins, then a pending one, then the latest
// rejection.
func Summarize(types []VerificationType, requests []*Request) []TypeStatus {
	byType := make(map[VerificationType][]*Request, len(types))
	for _, r := range requests {
		byType[r.Type] = append(byType[r.Type], r)
	}

	out := make([]TypeStatus, 0, len(types))
	for _, t := range types {
		out = append(out, summarizeType(t, byType[t]))
	}
	return out
}

func summarizeType(t VerificationType, requests []*Request) TypeStatus {
	var approved, pending, latestRejected *Request
	for _, r := range requests {
		switch r.Status {
		case StatusApproved:
			approved = r
		case StatusPending:
			pending = r
		case StatusRejected:
			if latestRejected == nil || r.SubmittedAt.After(latestRejected.SubmittedAt) {
				latestRejected = r
			}
		}
	}

	switch {
	case approved != nil:
		return statusFrom(t, StateApproved, approved)
	case pending != nil:
		return statusFrom(t, StatePending, pending)
	case latestRejected != nil:
		ts := statusFrom(t, StateRejected, latestRejected)
		ts.RejectionReason = latestRejected.RejectionReason
		return ts
	}
	return TypeStatus{Type: t, State: StateUnverified}
}

func statusFrom(t VerificationType, state TypeState, r *Request) TypeStatus {
	requestID := r.ID
	submittedAt := r.SubmittedAt
	ts := TypeStatus{
		Type:        t,
		State:       state,
		RequestID:   &requestID,
		SubmittedAt: &submittedAt,
	}
	if r.ReviewedAt != nil {
		reviewedAt := *r.ReviewedAt
		ts.ReviewedAt = &reviewedAt
	}
	return ts
}
