package audit

import (
	"context"
	"time"

	id "vouch/pkg/domain"
)

// EventCategory classifies audit events by their primary purpose so sinks can
// apply different retention.
type EventCategory string

const (
	// CategoryCompliance covers trust decisions with legal significance
	// (submissions and admin verdicts).
	CategoryCompliance EventCategory = "compliance"

	// CategorySecurity covers abuse signals such as rate-limit denials and
	// authorization failures.
	CategorySecurity EventCategory = "security"

	// CategoryOperations covers routine activity that may be sampled.
	CategoryOperations EventCategory = "operations"
)

// Event is emitted from domain logic to capture key actions. Keep it
// transport-agnostic so stores and sinks can fan out.
type Event struct {
	Category  EventCategory
	Timestamp time.Time
	// UserID is the account the event is about (the request owner).
	UserID id.UserID
	// Subject identifies the affected resource, typically a request ID.
	Subject  string
	Action   string
	Decision string
	Reason   string
	// RequestID is the HTTP correlation ID.
	RequestID string
	// ActorID is the admin who acted when different from UserID.
	ActorID string
	// Client is the parsed User-Agent label of the submitting device.
	Client string
}

type AuditEvent string

const (
	EventVerificationSubmitted AuditEvent = "verification_submitted"
	EventVerificationApproved  AuditEvent = "verification_approved"
	EventVerificationRejected  AuditEvent = "verification_rejected"
	EventReviewRaceLost        AuditEvent = "verification_review_race_lost"
	EventAccessDenied          AuditEvent = "verification_access_denied"
	EventRateLimitExceeded     AuditEvent = "submission_rate_limit_exceeded"
	EventRateLimitReset        AuditEvent = "submission_rate_limit_reset"
)

var eventCategories = map[AuditEvent]EventCategory{
	EventVerificationSubmitted: CategoryCompliance,
	EventVerificationApproved:  CategoryCompliance,
	EventVerificationRejected:  CategoryCompliance,

	EventAccessDenied:      CategorySecurity,
	EventRateLimitExceeded: CategorySecurity,
	EventRateLimitReset:    CategorySecurity,

	EventReviewRaceLost: CategoryOperations,
}

// Category returns the EventCategory for this audit event.
// Unknown events default to CategoryOperations.
func (e AuditEvent) Category() EventCategory {
	if cat, ok := eventCategories[e]; ok {
		return cat
	}
	return CategoryOperations
}

// Store persists audit events.
type Store interface {
	Append(ctx context.Context, event Event) error
	ListByUser(ctx context.Context, userID id.UserID) ([]Event, error)
}
