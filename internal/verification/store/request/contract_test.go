package request_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"vouch/internal/verification/models"
	"vouch/internal/verification/ports"
	id "vouch/pkg/domain"
	"vouch/pkg/platform/sentinel"
)

// storeContractSuite runs the same behavioural checks against every
// RequestStore implementation.
type storeContractSuite struct {
	suite.Suite
	newStore func() ports.RequestStore
	store    ports.RequestStore
	ctx      context.Context
	base     time.Time
}

func (s *storeContractSuite) SetupTest() {
	s.store = s.newStore()
	s.ctx = context.Background()
	s.base = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
}

func (s *storeContractSuite) newRequest(owner id.UserID, t models.VerificationType, offset time.Duration) *models.Request {
	r, err := models.NewRequest(id.NewRequestID(), owner, t,
		map[string]string{"full_name": "Ada Lovelace"},
		[]models.Document{{StorageRef: uuid.NewString(), OriginalName: "id.jpg", MimeType: "image/jpeg", SizeBytes: 1024, Digest: "abc"}},
		"please hurry", s.base.Add(offset))
	s.Require().NoError(err)
	return r
}

func (s *storeContractSuite) review(decision models.Status) models.Review {
	rv := models.Review{Decision: decision, ReviewerID: id.UserID(uuid.New()), Notes: "checked", At: s.base.Add(time.Hour)}
	if decision == models.StatusRejected {
		rv.Reason = "blurry photo"
	}
	return rv
}

func (s *storeContractSuite) TestCreateAndFind() {
	owner := id.UserID(uuid.New())
	req := s.newRequest(owner, models.TypeIdentity, 0)
	s.Require().NoError(s.store.CreatePending(s.ctx, req))

	got, err := s.store.FindByID(s.ctx, req.ID)
	s.Require().NoError(err)
	s.Equal(req.ID, got.ID)
	s.Equal(owner, got.OwnerID)
	s.Equal(models.StatusPending, got.Status)
	s.Equal("Ada Lovelace", got.SubmittedData["full_name"])
	s.Equal(req.Documents, got.Documents)
	s.Equal("please hurry", got.UserNotes)
	s.True(req.SubmittedAt.Equal(got.SubmittedAt))
	s.Nil(got.ReviewedBy)

	pending, err := s.store.FindPendingFor(s.ctx, owner, models.TypeIdentity)
	s.Require().NoError(err)
	s.Equal(req.ID, pending.ID)

	_, err = s.store.FindApprovedFor(s.ctx, owner, models.TypeIdentity)
	s.ErrorIs(err, sentinel.ErrNotFound)

	_, err = s.store.FindByID(s.ctx, id.NewRequestID())
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *storeContractSuite) TestDedup() {
	owner := id.UserID(uuid.New())

	s.Run("second pending for same type conflicts", func() {
		s.Require().NoError(s.store.CreatePending(s.ctx, s.newRequest(owner, models.TypeIdentity, 0)))
		err := s.store.CreatePending(s.ctx, s.newRequest(owner, models.TypeIdentity, time.Second))
		s.ErrorIs(err, sentinel.ErrConflict)
	})

	s.Run("other type is independent", func() {
		s.NoError(s.store.CreatePending(s.ctx, s.newRequest(owner, models.TypePhoto, 0)))
	})

	s.Run("other owner is independent", func() {
		s.NoError(s.store.CreatePending(s.ctx, s.newRequest(id.UserID(uuid.New()), models.TypeIdentity, 0)))
	})

	s.Run("rejection reopens the type", func() {
		current, err := s.store.FindPendingFor(s.ctx, owner, models.TypeIdentity)
		s.Require().NoError(err)
		_, err = s.store.UpdateTerminal(s.ctx, current.ID, s.review(models.StatusRejected))
		s.Require().NoError(err)

		s.NoError(s.store.CreatePending(s.ctx, s.newRequest(owner, models.TypeIdentity, time.Minute)))

		old, err := s.store.FindByID(s.ctx, current.ID)
		s.Require().NoError(err)
		s.Equal(models.StatusRejected, old.Status)
		s.Equal("blurry photo", old.RejectionReason)
	})

	s.Run("approval closes the type", func() {
		current, err := s.store.FindPendingFor(s.ctx, owner, models.TypeIdentity)
		s.Require().NoError(err)
		_, err = s.store.UpdateTerminal(s.ctx, current.ID, s.review(models.StatusApproved))
		s.Require().NoError(err)

		err = s.store.CreatePending(s.ctx, s.newRequest(owner, models.TypeIdentity, time.Hour))
		s.ErrorIs(err, sentinel.ErrFinalized)

		approved, err := s.store.FindApprovedFor(s.ctx, owner, models.TypeIdentity)
		s.Require().NoError(err)
		s.Equal(current.ID, approved.ID)
	})

	s.Run("owner history keeps every row newest first", func() {
		rows, err := s.store.ListByOwner(s.ctx, owner)
		s.Require().NoError(err)
		s.Len(rows, 3)
		for i := 1; i < len(rows); i++ {
			s.False(rows[i].SubmittedAt.After(rows[i-1].SubmittedAt))
		}
	})
}

func (s *storeContractSuite) TestUpdateTerminal() {
	owner := id.UserID(uuid.New())
	req := s.newRequest(owner, models.TypeEmployment, 0)
	s.Require().NoError(s.store.CreatePending(s.ctx, req))

	review := s.review(models.StatusApproved)
	updated, err := s.store.UpdateTerminal(s.ctx, req.ID, review)
	s.Require().NoError(err)
	s.Equal(models.StatusApproved, updated.Status)
	s.Equal(review.ReviewerID, *updated.ReviewedBy)
	s.True(review.At.Equal(*updated.ReviewedAt))
	s.Equal("checked", updated.AdminNotes)

	_, err = s.store.UpdateTerminal(s.ctx, req.ID, s.review(models.StatusRejected))
	s.ErrorIs(err, sentinel.ErrInvalidState)

	stored, err := s.store.FindByID(s.ctx, req.ID)
	s.Require().NoError(err)
	s.Equal(review.ReviewerID, *stored.ReviewedBy)
	s.Empty(stored.RejectionReason)

	_, err = s.store.UpdateTerminal(s.ctx, id.NewRequestID(), review)
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *storeContractSuite) TestListPending() {
	var all []*models.Request
	for i := range 5 {
		r := s.newRequest(id.UserID(uuid.New()), models.TypeIdentity, time.Duration(i)*time.Minute)
		s.Require().NoError(s.store.CreatePending(s.ctx, r))
		all = append(all, r)
	}
	photo := s.newRequest(id.UserID(uuid.New()), models.TypePhoto, 90*time.Second)
	s.Require().NoError(s.store.CreatePending(s.ctx, photo))

	_, err := s.store.UpdateTerminal(s.ctx, all[2].ID, s.review(models.StatusApproved))
	s.Require().NoError(err)

	s.Run("FIFO and excludes reviewed", func() {
		got, err := s.store.ListPending(s.ctx, models.PendingQuery{})
		s.Require().NoError(err)
		s.Equal([]id.RequestID{all[0].ID, all[1].ID, photo.ID, all[3].ID, all[4].ID}, ids(got))
	})

	s.Run("keyset paging is restartable", func() {
		first, err := s.store.ListPending(s.ctx, models.PendingQuery{Limit: 2})
		s.Require().NoError(err)
		s.Equal([]id.RequestID{all[0].ID, all[1].ID}, ids(first))

		cursor := models.CursorAfter(first[len(first)-1])
		second, err := s.store.ListPending(s.ctx, models.PendingQuery{After: &cursor, Limit: 2})
		s.Require().NoError(err)
		s.Equal([]id.RequestID{photo.ID, all[3].ID}, ids(second))

		again, err := s.store.ListPending(s.ctx, models.PendingQuery{After: &cursor, Limit: 2})
		s.Require().NoError(err)
		s.Equal(ids(second), ids(again))
	})

	s.Run("type filter", func() {
		got, err := s.store.ListPending(s.ctx, models.PendingQuery{Type: models.TypePhoto})
		s.Require().NoError(err)
		s.Equal([]id.RequestID{photo.ID}, ids(got))
	})

	s.Run("same timestamp ties break on id", func() {
		a := s.newRequest(id.UserID(uuid.New()), models.TypeEducation, time.Hour)
		b := s.newRequest(id.UserID(uuid.New()), models.TypeEducation, time.Hour)
		s.Require().NoError(s.store.CreatePending(s.ctx, a))
		s.Require().NoError(s.store.CreatePending(s.ctx, b))

		got, err := s.store.ListPending(s.ctx, models.PendingQuery{Type: models.TypeEducation})
		s.Require().NoError(err)
		s.Require().Len(got, 2)
		s.Less(got[0].ID.String(), got[1].ID.String())

		cursor := models.CursorAfter(got[0])
		rest, err := s.store.ListPending(s.ctx, models.PendingQuery{Type: models.TypeEducation, After: &cursor})
		s.Require().NoError(err)
		s.Equal([]id.RequestID{got[1].ID}, ids(rest))
	})
}

// TestConcurrentCreatePending: many racing submissions for one (owner, type)
// leave exactly one pending row.
func (s *storeContractSuite) TestConcurrentCreatePending() {
	owner := id.UserID(uuid.New())
	const goroutines = 20

	var wg sync.WaitGroup
	var created, conflicts atomic.Int32
	for i := range goroutines {
		wg.Go(func() {
			err := s.store.CreatePending(s.ctx, s.newRequest(owner, models.TypeIdentity, time.Duration(i)*time.Millisecond))
			switch {
			case err == nil:
				created.Add(1)
			case errors.Is(err, sentinel.ErrConflict):
				conflicts.Add(1)
			default:
				s.Failf("unexpected error", "%v", err)
			}
		})
	}
	wg.Wait()

	s.Equal(int32(1), created.Load())
	s.Equal(int32(goroutines-1), conflicts.Load())

	rows, err := s.store.ListByOwner(s.ctx, owner)
	s.Require().NoError(err)
	s.Len(rows, 1)
}

// TestConcurrentUpdateTerminal: racing reviewers, exactly one wins.
func (s *storeContractSuite) TestConcurrentUpdateTerminal() {
	req := s.newRequest(id.UserID(uuid.New()), models.TypePhoto, 0)
	s.Require().NoError(s.store.CreatePending(s.ctx, req))

	const goroutines = 10
	var wg sync.WaitGroup
	var wins, losses atomic.Int32
	var winner atomic.Value
	for i := range goroutines {
		wg.Go(func() {
			decision := models.StatusApproved
			if i%2 == 1 {
				decision = models.StatusRejected
			}
			rv := s.review(decision)
			_, err := s.store.UpdateTerminal(s.ctx, req.ID, rv)
			switch {
			case err == nil:
				wins.Add(1)
				winner.Store(rv.ReviewerID)
			case errors.Is(err, sentinel.ErrInvalidState):
				losses.Add(1)
			default:
				s.Failf("unexpected error", "%v", err)
			}
		})
	}
	wg.Wait()

	s.Equal(int32(1), wins.Load())
	s.Equal(int32(goroutines-1), losses.Load())

	stored, err := s.store.FindByID(s.ctx, req.ID)
	s.Require().NoError(err)
	s.Equal(winner.Load().(id.UserID), *stored.ReviewedBy)
}

func ids(rs []*models.Request) []id.RequestID {
	out := make([]id.RequestID, len(rs))
	for i, r := range rs {
		out[i] = r.ID
	}
	return out
}
