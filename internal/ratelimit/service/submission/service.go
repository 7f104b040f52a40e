// Package submission bounds how many verification submissions one user may
// make in a rolling window, independent of verification type.
package submission

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"vouch/internal/ratelimit/metrics"
	"vouch/internal/ratelimit/models"
	"vouch/internal/ratelimit/ports"
	id "vouch/pkg/domain"
	dErrors "vouch/pkg/domain-errors"
	"vouch/pkg/platform/audit"
	"vouch/pkg/requestcontext"
)

// Type aliases for interfaces from ports package.
type (
	BucketStore    = ports.BucketStore
	AuditPublisher = ports.AuditPublisher
)

// Policy is the per-user budget.
type Policy struct {
	Limit  int
	Window time.Duration
}

type Service struct {
	buckets        BucketStore
	policy         Policy
	auditPublisher AuditPublisher
	logger         *slog.Logger
	metrics        *metrics.Metrics
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithAuditPublisher(publisher AuditPublisher) Option {
	return func(s *Service) {
		s.auditPublisher = publisher
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func New(buckets BucketStore, policy Policy, opts ...Option) (*Service, error) {
	if buckets == nil {
		return nil, errors.New("buckets store is required")
	}
	if policy.Limit < 1 {
		return nil, fmt.Errorf("submission limit must be at least 1, got %d", policy.Limit)
	}
	if policy.Window <= 0 {
		return nil, fmt.Errorf("submission window must be positive, got %s", policy.Window)
	}

	svc := &Service{
		buckets: buckets,
		policy:  policy,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// CheckAndConsume takes one slot from the user's budget. It returns a
// rate_limit_exceeded error with a retry hint when the budget is spent;
// a denied attempt does not consume anything.
func (s *Service) CheckAndConsume(ctx context.Context, ownerID id.UserID) error {
	key := models.NewRateLimitKey(models.KeyPrefixSubmission, ownerID.String())

	result, err := s.buckets.Allow(ctx, key.String(), s.policy.Limit, s.policy.Window)
	if err != nil {
		if s.metrics != nil {
			s.metrics.IncrementStoreErrors()
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to check submission rate limit")
	}

	if result.Allowed {
		if s.metrics != nil {
			s.metrics.IncrementAllowed()
		}
		return nil
	}

	if s.metrics != nil {
		s.metrics.IncrementDenied()
	}
	retryAfter := result.RetryAfterDuration(requestcontext.Now(ctx))
	ports.LogAudit(ctx, s.logger, s.auditPublisher, audit.Event{
		UserID:   ownerID,
		Subject:  ownerID.String(),
		Action:   string(audit.EventRateLimitExceeded),
		Decision: "denied",
		Reason:   "submission budget exhausted",
	},
		"user_id", ownerID.String(),
		"limit", s.policy.Limit,
		"window_seconds", int(s.policy.Window.Seconds()),
		"retry_after_seconds", result.RetryAfter,
	)
	return dErrors.RateLimited(
		fmt.Sprintf("submission limit of %d per %s reached", s.policy.Limit, s.policy.Window),
		retryAfter,
	)
}

// Usage reports the user's current consumption without consuming.
func (s *Service) Usage(ctx context.Context, ownerID id.UserID) (*models.Usage, error) {
	key := models.NewRateLimitKey(models.KeyPrefixSubmission, ownerID.String())
	used, err := s.buckets.GetCurrentCount(ctx, key.String(), s.policy.Window)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read submission usage")
	}
	return &models.Usage{
		Limit:     s.policy.Limit,
		Used:      used,
		Remaining: max(s.policy.Limit-used, 0),
		Window:    s.policy.Window,
	}, nil
}

// Reset clears a user's budget. The caller must already be authorized as admin.
func (s *Service) Reset(ctx context.Context, ownerID, adminID id.UserID) error {
	if ownerID.IsNil() {
		return dErrors.New(dErrors.CodeBadRequest, "user id is required")
	}
	key := models.NewRateLimitKey(models.KeyPrefixSubmission, ownerID.String())
	if err := s.buckets.Reset(ctx, key.String()); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to reset submission rate limit")
	}

	if s.metrics != nil {
		s.metrics.IncrementResets()
	}
	ports.LogAudit(ctx, s.logger, s.auditPublisher, audit.Event{
		UserID:   ownerID,
		Subject:  ownerID.String(),
		Action:   string(audit.EventRateLimitReset),
		Decision: "reset",
		ActorID:  adminID.String(),
	},
		"user_id", ownerID.String(),
		"admin_id", adminID.String(),
	)
	return nil
}
