package service

import (
	"context"
	"errors"
	"io"

	"vouch/internal/verification/guard"
	"vouch/internal/verification/models"
	"vouch/internal/verification/registry"
	id "vouch/pkg/domain"
	dErrors "vouch/pkg/domain-errors"
	"vouch/pkg/platform/sentinel"
)

// GetStatus aggregates the owner's requests into one state per registered type.
func (s *Service) GetStatus(ctx context.Context, caller guard.Caller, ownerID id.UserID) ([]models.TypeStatus, error) {
	if err := guard.EnsureOwnerOrAdmin(caller, ownerID); err != nil {
		return nil, err
	}
	requests, err := s.requests.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load verification requests")
	}
	return models.Summarize(s.registry.Types(), requests), nil
}

func (s *Service) GetRequirements(_ context.Context, verificationType string) (registry.Requirements, error) {
	vt, err := s.registry.Parse(verificationType)
	if err != nil {
		return registry.Requirements{}, err
	}
	return s.registry.RequirementsFor(vt)
}

func (s *Service) ListTypes(_ context.Context) []registry.Requirements {
	return s.registry.All()
}

// ListOwn returns every request the caller has submitted, newest first.
func (s *Service) ListOwn(ctx context.Context, caller guard.Caller) ([]*models.Request, error) {
	if err := guard.EnsureSelf(caller, caller.ID); err != nil {
		return nil, err
	}
	requests, err := s.requests.ListByOwner(ctx, caller.ID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load verification requests")
	}
	if requests == nil {
		requests = []*models.Request{}
	}
	return requests, nil
}

// GetOne returns a single request to its owner or to an admin.
func (s *Service) GetOne(ctx context.Context, caller guard.Caller, requestID id.RequestID) (*models.Request, error) {
	req, err := s.requests.FindByID(ctx, requestID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "verification request not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load verification request")
	}
	if err := guard.EnsureOwnerOrAdmin(caller, req.OwnerID); err != nil {
		if dErrors.HasCode(err, dErrors.CodeForbidden) {
			s.auditDenied(ctx, caller, requestID.String(), "get")
		}
		return nil, err
	}
	return req, nil
}

// GetDocument opens the index-th document of a request under the same access
// rule as GetOne. The caller closes the returned reader.
func (s *Service) GetDocument(ctx context.Context, caller guard.Caller, requestID id.RequestID, index int) (models.Document, io.ReadCloser, error) {
	req, err := s.GetOne(ctx, caller, requestID)
	if err != nil {
		return models.Document{}, nil, err
	}
	if index < 0 || index >= len(req.Documents) {
		return models.Document{}, nil, dErrors.New(dErrors.CodeNotFound, "document not found")
	}
	doc := req.Documents[index]
	content, err := s.documents.Open(ctx, doc.StorageRef)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to open stored document",
			"verification_request_id", requestID.String(),
			"storage_ref", doc.StorageRef,
			"error", err,
		)
		return models.Document{}, nil, dErrors.Wrap(err, dErrors.CodeStorageFailure, "failed to read document")
	}
	return doc, content, nil
}
