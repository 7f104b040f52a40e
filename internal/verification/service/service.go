// Package service owns the verification request lifecycle: submission with
// dedup enforcement, admin review and the owner and admin read paths.
package service

import (
	"context"
	"errors"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"vouch/internal/verification/metrics"
	"vouch/internal/verification/models"
	"vouch/internal/verification/ports"
	"vouch/internal/verification/registry"
	"vouch/internal/verification/validator"
	"vouch/pkg/platform/audit"
	"vouch/pkg/requestcontext"
)

// Type aliases for interfaces from ports package.
type (
	RequestStore    = ports.RequestStore
	DocumentStorage = ports.DocumentStorage
	RateLimiter     = ports.RateLimiter
	Notifier        = ports.Notifier
	AuditPublisher  = ports.AuditPublisher
)

const (
	DefaultPageSize = 50
	MaxPageSize     = 200
)

type Service struct {
	requests       RequestStore
	documents      DocumentStorage
	limiter        RateLimiter
	registry       *registry.Registry
	validator      *validator.Validator
	notifier       Notifier
	auditPublisher AuditPublisher
	logger         *slog.Logger
	metrics        *metrics.Metrics
	tracer         trace.Tracer
	pageSize       int
	maxPageSize    int
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

// WithNotifier sets the status change dispatcher. Without one, status
// changes are not announced.
func WithNotifier(n Notifier) Option {
	return func(s *Service) {
		s.notifier = n
	}
}

func WithTracer(t trace.Tracer) Option {
	return func(s *Service) {
		s.tracer = t
	}
}

// WithPageSize sets the default and maximum moderation queue page sizes.
// Non-positive values keep the defaults.
func WithPageSize(defaultSize, maxSize int) Option {
	return func(s *Service) {
		if defaultSize > 0 {
			s.pageSize = defaultSize
		}
		if maxSize > 0 {
			s.maxPageSize = maxSize
		}
	}
}

func New(
	requests RequestStore,
	documents DocumentStorage,
	limiter RateLimiter,
	reg *registry.Registry,
	opts ...Option,
) (*Service, error) {
	if requests == nil {
		return nil, errors.New("request store is required")
	}
	if documents == nil {
		return nil, errors.New("document storage is required")
	}
	if limiter == nil {
		return nil, errors.New("rate limiter is required")
	}
	if reg == nil {
		return nil, errors.New("verification type registry is required")
	}

	svc := &Service{
		requests:    requests,
		documents:   documents,
		limiter:     limiter,
		registry:    reg,
		validator:   validator.New(reg),
		logger:      slog.New(slog.DiscardHandler),
		tracer:      otel.Tracer("vouch/verification"),
		pageSize:    DefaultPageSize,
		maxPageSize: MaxPageSize,
	}
	for _, opt := range opts {
		opt(svc)
	}
	if svc.pageSize > svc.maxPageSize {
		svc.pageSize = svc.maxPageSize
	}
	return svc, nil
}

func (s *Service) logAudit(ctx context.Context, event audit.Event, attrs ...any) {
	requestID := requestcontext.RequestID(ctx)
	if requestID != "" {
		attrs = append(attrs, "request_id", requestID)
	}
	args := append(attrs, "event", event.Action, "log_type", "audit")
	s.logger.InfoContext(ctx, event.Action, args...)

	if s.auditPublisher == nil {
		return
	}
	event.RequestID = requestID
	event.Category = audit.AuditEvent(event.Action).Category()
	if event.Timestamp.IsZero() {
		event.Timestamp = requestcontext.Now(ctx)
	}
	if err := s.auditPublisher.Emit(ctx, event); err != nil {
		s.logger.WarnContext(ctx, "failed to emit audit event", "event", event.Action, "error", err)
	}
}

// startSpan opens a span named after the operation. The returned finish
// records err on the span before ending it.
func (s *Service) startSpan(ctx context.Context, name string) (context.Context, func(err error)) {
	ctx, span := s.tracer.Start(ctx, "verification."+name)
	return ctx, func(err error) {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}
}

func (s *Service) notify(ctx context.Context, req *models.Request) {
	if s.notifier == nil {
		return
	}
	// Dispatchers must not see the caller's cancellation or hold on to our copy.
	s.notifier.StatusChanged(context.WithoutCancel(ctx), req.Clone())
}
