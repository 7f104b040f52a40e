// Package notify tells downstream systems when a verification request changes
// state. Delivery is fire-and-forget.
package notify

import (
	"encoding/json"
	"time"

	"vouch/internal/verification/models"
)

const EventStatusChanged = "verification.status_changed"

// StatusChangedEvent is the wire payload for every status change.
type StatusChangedEvent struct {
	Event           string    `json:"event"`
	RequestID       string    `json:"request_id"`
	OwnerID         string    `json:"owner_id"`
	Type            string    `json:"verification_type"`
	Status          string    `json:"status"`
	RejectionReason string    `json:"rejection_reason,omitempty"`
	OccurredAt      time.Time `json:"occurred_at"`
}

// NewStatusChangedEvent builds the payload. OccurredAt is the review time for
// reviewed requests and the submission time otherwise.
func NewStatusChangedEvent(req *models.Request) StatusChangedEvent {
	occurred := req.SubmittedAt
	if req.ReviewedAt != nil {
		occurred = *req.ReviewedAt
	}
	return StatusChangedEvent{
		Event:           EventStatusChanged,
		RequestID:       req.ID.String(),
		OwnerID:         req.OwnerID.String(),
		Type:            string(req.Type),
		Status:          string(req.Status),
		RejectionReason: req.RejectionReason,
		OccurredAt:      occurred.UTC(),
	}
}

func (e StatusChangedEvent) Marshal() ([]byte, error) {
	return json.Marshal(e)
}
