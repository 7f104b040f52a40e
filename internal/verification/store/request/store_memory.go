package request

import (
	"cmp"
	"context"
	"slices"
	"sync"

	"vouch/internal/verification/models"
	id "vouch/pkg/domain"
	"vouch/pkg/platform/sentinel"
)

// InMemory keeps requests in process memory. One mutex guards every map so
// check-and-insert and check-and-update are single critical sections.
type InMemory struct {
	mu       sync.RWMutex
	requests map[id.RequestID]*models.Request
	byOwner  map[id.UserID][]id.RequestID
}

func NewInMemory() *InMemory {
	return &InMemory{
		requests: make(map[id.RequestID]*models.Request),
		byOwner:  make(map[id.UserID][]id.RequestID),
	}
}

func (s *InMemory) CreatePending(_ context.Context, req *models.Request) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.requests[req.ID]; exists {
		return sentinel.ErrConflict
	}
	for _, rid := range s.byOwner[req.OwnerID] {
		existing := s.requests[rid]
		if existing.Type != req.Type {
			continue
		}
		if existing.Status.ClosesType() {
			return sentinel.ErrFinalized
		}
		if existing.IsPending() {
			return sentinel.ErrConflict
		}
	}

	s.requests[req.ID] = req.Clone()
	s.byOwner[req.OwnerID] = append(s.byOwner[req.OwnerID], req.ID)
	return nil
}

func (s *InMemory) FindByID(_ context.Context, requestID id.RequestID) (*models.Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.requests[requestID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return r.Clone(), nil
}

func (s *InMemory) ListByOwner(_ context.Context, ownerID id.UserID) ([]*models.Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.byOwner[ownerID]
	out := make([]*models.Request, 0, len(ids))
	for _, rid := range ids {
		out = append(out, s.requests[rid].Clone())
	}
	slices.SortFunc(out, func(a, b *models.Request) int {
		if c := b.SubmittedAt.Compare(a.SubmittedAt); c != 0 {
			return c
		}
		return cmp.Compare(b.ID.String(), a.ID.String())
	})
	return out, nil
}

func (s *InMemory) FindPendingFor(_ context.Context, ownerID id.UserID, t models.VerificationType) (*models.Request, error) {
	return s.findFor(ownerID, t, models.StatusPending)
}

func (s *InMemory) FindApprovedFor(_ context.Context, ownerID id.UserID, t models.VerificationType) (*models.Request, error) {
	return s.findFor(ownerID, t, models.StatusApproved)
}

func (s *InMemory) findFor(ownerID id.UserID, t models.VerificationType, status models.Status) (*models.Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, rid := range s.byOwner[ownerID] {
		r := s.requests[rid]
		if r.Type == t && r.Status == status {
			return r.Clone(), nil
		}
	}
	return nil, sentinel.ErrNotFound
}

func (s *InMemory) ListPending(_ context.Context, q models.PendingQuery) ([]*models.Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var pending []*models.Request
	for _, r := range s.requests {
		if !r.IsPending() {
			continue
		}
		if q.Type != "" && r.Type != q.Type {
			continue
		}
		if q.After != nil && q.After.Before(r) {
			continue
		}
		pending = append(pending, r)
	}
	slices.SortFunc(pending, func(a, b *models.Request) int {
		if c := a.SubmittedAt.Compare(b.SubmittedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID.String(), b.ID.String())
	})

	if q.Limit > 0 && len(pending) > q.Limit {
		pending = pending[:q.Limit]
	}
	out := make([]*models.Request, len(pending))
	for i, r := range pending {
		out[i] = r.Clone()
	}
	return out, nil
}

func (s *InMemory) UpdateTerminal(_ context.Context, requestID id.RequestID, review models.Review) (*models.Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.requests[requestID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	if !r.Status.CanTransitionTo(review.Decision) {
		return nil, sentinel.ErrInvalidState
	}
	r.ApplyReview(review)
	return r.Clone(), nil
}
