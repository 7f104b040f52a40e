package service

//go:generate mockgen -source=../ports/ports.go -destination=mocks/mocks.go -package=mocks

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"vouch/internal/verification/guard"
	"vouch/internal/verification/metrics"
	"vouch/internal/verification/models"
	"vouch/internal/verification/registry"
	"vouch/internal/verification/service/mocks"
	id "vouch/pkg/domain"
	dErrors "vouch/pkg/domain-errors"
	"vouch/pkg/platform/audit"
	auditmemory "vouch/pkg/platform/audit/store/memory"
	auditpublisher "vouch/pkg/platform/audit/publisher"
	"vouch/pkg/platform/sentinel"
	"vouch/pkg/requestcontext"
)

type ServiceSuite struct {
	suite.Suite
	ctrl         *gomock.Controller
	mockRequests *mocks.MockRequestStore
	mockStorage  *mocks.MockDocumentStorage
	mockLimiter  *mocks.MockRateLimiter
	mockNotifier *mocks.MockNotifier
	auditStore   *auditmemory.InMemoryStore
	metrics      *metrics.Metrics
	service      *Service

	user  guard.Caller
	admin guard.Caller
	now   time.Time
	ctx   context.Context
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.mockRequests = mocks.NewMockRequestStore(s.ctrl)
	s.mockStorage = mocks.NewMockDocumentStorage(s.ctrl)
	s.mockLimiter = mocks.NewMockRateLimiter(s.ctrl)
	s.mockNotifier = mocks.NewMockNotifier(s.ctrl)
	s.auditStore = auditmemory.NewInMemoryStore()
	s.metrics = metrics.New(prometheus.NewRegistry())

	var err error
	s.service, err = New(s.mockRequests, s.mockStorage, s.mockLimiter, registry.Default(),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithAuditPublisher(auditpublisher.NewPublisher(s.auditStore)),
		WithMetrics(s.metrics),
		WithNotifier(s.mockNotifier),
		WithPageSize(2, 3),
	)
	s.Require().NoError(err)

	s.user = guard.Caller{ID: id.UserID(uuid.New()), Role: id.RoleUser}
	s.admin = guard.Caller{ID: id.UserID(uuid.New()), Role: id.RoleAdmin}
	s.now = time.Date(2025, 3, 1, 12, 0, 0, 123456789, time.UTC)
	s.ctx = requestcontext.WithTime(context.Background(), s.now)
}

func (s *ServiceSuite) TearDownTest() {
	s.ctrl.Finish()
}

func document(name, mime string, content string) DocumentInput {
	return DocumentInput{
		DocumentMeta: models.DocumentMeta{OriginalName: name, MimeType: mime, SizeBytes: int64(len(content))},
		Open: func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader([]byte(content))), nil
		},
	}
}

func (s *ServiceSuite) photoInput(docs ...DocumentInput) SubmitInput {
	if len(docs) == 0 {
		docs = []DocumentInput{document("selfie.jpg", "image/jpeg", "jpeg-bytes")}
	}
	return SubmitInput{OwnerID: s.user.ID, Type: "photo", Documents: docs}
}

func (s *ServiceSuite) expectNoDuplicates() {
	s.mockRequests.EXPECT().FindApprovedFor(gomock.Any(), s.user.ID, models.TypePhoto).Return(nil, sentinel.ErrNotFound)
	s.mockRequests.EXPECT().FindPendingFor(gomock.Any(), s.user.ID, models.TypePhoto).Return(nil, sentinel.ErrNotFound)
}

func (s *ServiceSuite) storeAs(ref string) func(context.Context, models.DocumentUpload) (models.StoredDocument, error) {
	return func(_ context.Context, upload models.DocumentUpload) (models.StoredDocument, error) {
		n, err := io.Copy(io.Discard, upload.Content)
		if err != nil {
			return models.StoredDocument{}, err
		}
		return models.StoredDocument{Ref: ref, Digest: "d-" + ref, SizeBytes: n}, nil
	}
}

func (s *ServiceSuite) auditActions(action audit.AuditEvent) []audit.Event {
	events, err := s.auditStore.ListByAction(context.Background(), string(action))
	s.Require().NoError(err)
	return events
}

func (s *ServiceSuite) pendingRequest(owner id.UserID) *models.Request {
	req, err := models.NewRequest(id.NewRequestID(), owner, models.TypePhoto, nil,
		[]models.Document{{StorageRef: "ab/ref", OriginalName: "a.jpg", MimeType: "image/jpeg", SizeBytes: 3}},
		"", s.now)
	s.Require().NoError(err)
	return req
}

func (s *ServiceSuite) TestNew() {
	reg := registry.Default()
	s.Run("nil request store returns error", func() {
		_, err := New(nil, s.mockStorage, s.mockLimiter, reg)
		s.ErrorContains(err, "request store is required")
	})
	s.Run("nil document storage returns error", func() {
		_, err := New(s.mockRequests, nil, s.mockLimiter, reg)
		s.ErrorContains(err, "document storage is required")
	})
	s.Run("nil limiter returns error", func() {
		_, err := New(s.mockRequests, s.mockStorage, nil, reg)
		s.ErrorContains(err, "rate limiter is required")
	})
	s.Run("nil registry returns error", func() {
		_, err := New(s.mockRequests, s.mockStorage, s.mockLimiter, nil)
		s.ErrorContains(err, "registry is required")
	})
	s.Run("default page size never exceeds the maximum", func() {
		svc, err := New(s.mockRequests, s.mockStorage, s.mockLimiter, reg, WithPageSize(500, 100))
		s.Require().NoError(err)
		s.Equal(100, svc.pageSize)
	})
}

func (s *ServiceSuite) TestSubmit() {
	s.Run("creates a pending request and announces it", func() {
		s.mockLimiter.EXPECT().CheckAndConsume(gomock.Any(), s.user.ID).Return(nil)
		s.expectNoDuplicates()
		s.mockStorage.EXPECT().Store(gomock.Any(), gomock.Any()).DoAndReturn(s.storeAs("aa/one"))
		var created *models.Request
		s.mockRequests.EXPECT().CreatePending(gomock.Any(), gomock.Any()).DoAndReturn(
			func(_ context.Context, req *models.Request) error {
				created = req
				return nil
			})
		s.mockNotifier.EXPECT().StatusChanged(gomock.Any(), gomock.Any()).Do(
			func(ctx context.Context, req *models.Request) {
				s.NoError(ctx.Err())
				s.Equal(models.StatusPending, req.Status)
			})

		req, err := s.service.Submit(s.ctx, s.user, s.photoInput())
		s.Require().NoError(err)
		s.Same(created, req)
		s.Equal(models.StatusPending, req.Status)
		s.Equal(s.user.ID, req.OwnerID)
		s.Equal(s.now.Truncate(time.Microsecond), req.SubmittedAt)
		s.Require().Len(req.Documents, 1)
		s.Equal("aa/one", req.Documents[0].StorageRef)
		s.Equal("d-aa/one", req.Documents[0].Digest)
		s.EqualValues(len("jpeg-bytes"), req.Documents[0].SizeBytes)
		s.Nil(req.ReviewedBy)

		s.Len(s.auditActions(audit.EventVerificationSubmitted), 1)
		s.Equal(1.0, testutil.ToFloat64(s.metrics.Submissions.WithLabelValues("photo", metrics.OutcomeAccepted)))
	})

	s.Run("caller cannot submit for someone else", func() {
		in := s.photoInput()
		in.OwnerID = id.UserID(uuid.New())

		_, err := s.service.Submit(s.ctx, s.user, in)
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
		s.NotEmpty(s.auditActions(audit.EventAccessDenied))
	})

	s.Run("admins cannot submit on behalf of users", func() {
		_, err := s.service.Submit(s.ctx, s.admin, s.photoInput())
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	s.Run("rate limit denial stops before validation", func() {
		s.mockLimiter.EXPECT().CheckAndConsume(gomock.Any(), s.user.ID).
			Return(dErrors.RateLimited("slow down", time.Minute))

		in := s.photoInput()
		in.Type = "nonsense"
		_, err := s.service.Submit(s.ctx, s.user, in)
		s.True(dErrors.HasCode(err, dErrors.CodeRateLimitExceeded))
		s.Equal(time.Minute, dErrors.RetryAfterOf(err))
	})

	s.Run("unknown type", func() {
		s.mockLimiter.EXPECT().CheckAndConsume(gomock.Any(), s.user.ID).Return(nil)
		in := s.photoInput()
		in.Type = "passport-stamp"

		_, err := s.service.Submit(s.ctx, s.user, in)
		s.True(dErrors.HasCode(err, dErrors.CodeUnknownVerificationType))
		s.Equal(1.0, testutil.ToFloat64(s.metrics.Submissions.WithLabelValues("unknown", metrics.OutcomeRejected)))
	})

	s.Run("validation collects every violation and touches nothing", func() {
		s.mockLimiter.EXPECT().CheckAndConsume(gomock.Any(), s.user.ID).Return(nil)
		in := SubmitInput{OwnerID: s.user.ID, Type: "identity", Data: map[string]string{"full_name": "Ada"}}

		_, err := s.service.Submit(s.ctx, s.user, in)
		s.Require().True(dErrors.HasCode(err, dErrors.CodeValidation))
		var names []string
		for _, f := range dErrors.FieldsOf(err) {
			names = append(names, f.Field)
		}
		s.ElementsMatch([]string{"date_of_birth", "document_number", "documents"}, names)
	})

	s.Run("already approved type fails before storage", func() {
		s.mockLimiter.EXPECT().CheckAndConsume(gomock.Any(), s.user.ID).Return(nil)
		s.mockRequests.EXPECT().FindApprovedFor(gomock.Any(), s.user.ID, models.TypePhoto).
			Return(s.pendingRequest(s.user.ID), nil)

		_, err := s.service.Submit(s.ctx, s.user, s.photoInput())
		s.True(dErrors.HasCode(err, dErrors.CodeAlreadyVerified))
	})

	s.Run("pending request of the same type fails before storage", func() {
		s.mockLimiter.EXPECT().CheckAndConsume(gomock.Any(), s.user.ID).Return(nil)
		s.mockRequests.EXPECT().FindApprovedFor(gomock.Any(), s.user.ID, models.TypePhoto).Return(nil, sentinel.ErrNotFound)
		s.mockRequests.EXPECT().FindPendingFor(gomock.Any(), s.user.ID, models.TypePhoto).
			Return(s.pendingRequest(s.user.ID), nil)

		_, err := s.service.Submit(s.ctx, s.user, s.photoInput())
		s.True(dErrors.HasCode(err, dErrors.CodeDuplicatePending))
	})

	s.Run("dedup lookup failure is internal", func() {
		s.mockLimiter.EXPECT().CheckAndConsume(gomock.Any(), s.user.ID).Return(nil)
		s.mockRequests.EXPECT().FindApprovedFor(gomock.Any(), s.user.ID, models.TypePhoto).
			Return(nil, errors.New("connection reset"))

		_, err := s.service.Submit(s.ctx, s.user, s.photoInput())
		s.True(dErrors.HasCode(err, dErrors.CodeInternal))
	})

	s.Run("storage failure removes stored documents and inserts nothing", func() {
		s.mockLimiter.EXPECT().CheckAndConsume(gomock.Any(), s.user.ID).Return(nil)
		s.expectNoDuplicates()
		s.mockStorage.EXPECT().Store(gomock.Any(), gomock.Any()).DoAndReturn(
			func(ctx context.Context, upload models.DocumentUpload) (models.StoredDocument, error) {
				if upload.OriginalName == "broken.jpg" {
					return models.StoredDocument{}, errors.New("disk full")
				}
				return s.storeAs("aa/good")(ctx, upload)
			}).Times(2)
		s.mockStorage.EXPECT().Delete(gomock.Any(), "aa/good").Return(nil)

		_, err := s.service.Submit(s.ctx, s.user, s.photoInput(
			document("good.jpg", "image/jpeg", "ok"),
			document("broken.jpg", "image/jpeg", "nope"),
		))
		s.True(dErrors.HasCode(err, dErrors.CodeStorageFailure))
	})

	s.Run("document that cannot be opened is a storage failure", func() {
		s.mockLimiter.EXPECT().CheckAndConsume(gomock.Any(), s.user.ID).Return(nil)
		s.expectNoDuplicates()
		doc := document("gone.jpg", "image/jpeg", "x")
		doc.Open = func() (io.ReadCloser, error) { return nil, errors.New("temp file vanished") }

		_, err := s.service.Submit(s.ctx, s.user, s.photoInput(doc))
		s.True(dErrors.HasCode(err, dErrors.CodeStorageFailure))
	})

	s.Run("losing the insert race cleans up documents", func() {
		for _, tc := range []struct {
			storeErr error
			code     dErrors.Code
		}{
			{sentinel.ErrConflict, dErrors.CodeDuplicatePending},
			{sentinel.ErrFinalized, dErrors.CodeAlreadyVerified},
		} {
			s.mockLimiter.EXPECT().CheckAndConsume(gomock.Any(), s.user.ID).Return(nil)
			s.expectNoDuplicates()
			s.mockStorage.EXPECT().Store(gomock.Any(), gomock.Any()).DoAndReturn(s.storeAs("bb/raced"))
			s.mockRequests.EXPECT().CreatePending(gomock.Any(), gomock.Any()).Return(tc.storeErr)
			s.mockStorage.EXPECT().Delete(gomock.Any(), "bb/raced").Return(nil)

			_, err := s.service.Submit(s.ctx, s.user, s.photoInput())
			s.True(dErrors.HasCode(err, tc.code), "store error %v", tc.storeErr)
		}
	})

	s.Run("orphan cleanup failure is counted not surfaced", func() {
		s.mockLimiter.EXPECT().CheckAndConsume(gomock.Any(), s.user.ID).Return(nil)
		s.expectNoDuplicates()
		s.mockStorage.EXPECT().Store(gomock.Any(), gomock.Any()).DoAndReturn(s.storeAs("cc/stuck"))
		s.mockRequests.EXPECT().CreatePending(gomock.Any(), gomock.Any()).Return(sentinel.ErrConflict)
		s.mockStorage.EXPECT().Delete(gomock.Any(), "cc/stuck").Return(errors.New("permission denied"))

		_, err := s.service.Submit(s.ctx, s.user, s.photoInput())
		s.True(dErrors.HasCode(err, dErrors.CodeDuplicatePending))
		s.Equal(1.0, testutil.ToFloat64(s.metrics.OrphanCleanupErrs))
	})
}

func (s *ServiceSuite) TestReview() {
	requestID := id.NewRequestID()

	s.Run("non admin is forbidden", func() {
		_, err := s.service.Approve(s.ctx, s.user, requestID, "")
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))

		_, err = s.service.Reject(s.ctx, s.user, requestID, "blurry", "")
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	s.Run("approve writes review metadata", func() {
		pending := s.pendingRequest(s.user.ID)
		s.mockRequests.EXPECT().UpdateTerminal(gomock.Any(), pending.ID, gomock.Any()).DoAndReturn(
			func(_ context.Context, _ id.RequestID, review models.Review) (*models.Request, error) {
				s.Equal(models.StatusApproved, review.Decision)
				s.Equal(s.admin.ID, review.ReviewerID)
				s.Equal("looks good", review.Notes)
				s.Equal(s.now.Truncate(time.Microsecond), review.At)
				out := pending.Clone()
				out.ApplyReview(review)
				return out, nil
			})
		s.mockNotifier.EXPECT().StatusChanged(gomock.Any(), gomock.Any())

		req, err := s.service.Approve(s.ctx, s.admin, pending.ID, "  looks good ")
		s.Require().NoError(err)
		s.Equal(models.StatusApproved, req.Status)
		s.Require().NotNil(req.ReviewedBy)
		s.Equal(s.admin.ID, *req.ReviewedBy)
		s.Len(s.auditActions(audit.EventVerificationApproved), 1)
	})

	s.Run("reject requires a reason", func() {
		_, err := s.service.Reject(s.ctx, s.admin, requestID, "   ", "notes")
		s.Require().True(dErrors.HasCode(err, dErrors.CodeValidation))
		s.Equal("reason", dErrors.FieldsOf(err)[0].Field)
	})

	s.Run("reject stores the reason", func() {
		pending := s.pendingRequest(s.user.ID)
		s.mockRequests.EXPECT().UpdateTerminal(gomock.Any(), pending.ID, gomock.Any()).DoAndReturn(
			func(_ context.Context, _ id.RequestID, review models.Review) (*models.Request, error) {
				out := pending.Clone()
				out.ApplyReview(review)
				return out, nil
			})
		s.mockNotifier.EXPECT().StatusChanged(gomock.Any(), gomock.Any())

		req, err := s.service.Reject(s.ctx, s.admin, pending.ID, "blurry photo", "")
		s.Require().NoError(err)
		s.Equal(models.StatusRejected, req.Status)
		s.Equal("blurry photo", req.RejectionReason)
		s.Len(s.auditActions(audit.EventVerificationRejected), 1)
	})

	s.Run("unknown request is not found", func() {
		s.mockRequests.EXPECT().UpdateTerminal(gomock.Any(), requestID, gomock.Any()).Return(nil, sentinel.ErrNotFound)

		_, err := s.service.Approve(s.ctx, s.admin, requestID, "")
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("second review reports already reviewed", func() {
		s.mockRequests.EXPECT().UpdateTerminal(gomock.Any(), requestID, gomock.Any()).Return(nil, sentinel.ErrInvalidState)

		_, err := s.service.Reject(s.ctx, s.admin, requestID, "late", "")
		s.True(dErrors.HasCode(err, dErrors.CodeAlreadyReviewed))
		s.Len(s.auditActions(audit.EventReviewRaceLost), 1)
		s.Equal(1.0, testutil.ToFloat64(s.metrics.ReviewRacesLost))
	})
}

func (s *ServiceSuite) TestListPending() {
	base := s.now.Truncate(time.Microsecond)
	rows := make([]*models.Request, 3)
	for i := range rows {
		rows[i] = s.pendingRequest(id.UserID(uuid.New()))
		rows[i].SubmittedAt = base.Add(time.Duration(i) * time.Second)
	}

	s.Run("requires admin", func() {
		_, err := s.service.ListPending(s.ctx, s.user, PageParams{})
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	s.Run("fetches one extra row to build the next cursor", func() {
		s.mockRequests.EXPECT().ListPending(gomock.Any(), models.PendingQuery{Limit: 3}).Return(rows, nil)

		page, err := s.service.ListPending(s.ctx, s.admin, PageParams{})
		s.Require().NoError(err)
		s.Equal(rows[:2], page.Requests)
		s.Require().NotEmpty(page.NextCursor)

		cursor, err := models.DecodeCursor(page.NextCursor)
		s.Require().NoError(err)
		s.Equal(rows[1].ID, cursor.ID)
		s.True(rows[1].SubmittedAt.Equal(cursor.SubmittedAt))
	})

	s.Run("last page has no cursor", func() {
		after := models.CursorAfter(rows[1])
		s.mockRequests.EXPECT().ListPending(gomock.Any(), gomock.Any()).DoAndReturn(
			func(_ context.Context, q models.PendingQuery) ([]*models.Request, error) {
				s.Require().NotNil(q.After)
				s.Equal(after.ID, q.After.ID)
				s.Equal(models.TypePhoto, q.Type)
				return rows[2:], nil
			})

		page, err := s.service.ListPending(s.ctx, s.admin, PageParams{Cursor: after.Encode(), Type: "Photo"})
		s.Require().NoError(err)
		s.Len(page.Requests, 1)
		s.Empty(page.NextCursor)
	})

	s.Run("limit is clamped to the maximum", func() {
		s.mockRequests.EXPECT().ListPending(gomock.Any(), models.PendingQuery{Limit: 4}).Return(nil, nil)

		page, err := s.service.ListPending(s.ctx, s.admin, PageParams{Limit: 1000})
		s.Require().NoError(err)
		s.NotNil(page.Requests)
		s.Empty(page.Requests)
	})

	s.Run("garbage cursor is a bad request", func() {
		_, err := s.service.ListPending(s.ctx, s.admin, PageParams{Cursor: "!!not-a-cursor"})
		s.True(dErrors.HasCode(err, dErrors.CodeBadRequest))
	})

	s.Run("unknown type filter", func() {
		_, err := s.service.ListPending(s.ctx, s.admin, PageParams{Type: "astrology"})
		s.True(dErrors.HasCode(err, dErrors.CodeUnknownVerificationType))
	})
}

func (s *ServiceSuite) TestReads() {
	req := s.pendingRequest(s.user.ID)
	stranger := guard.Caller{ID: id.UserID(uuid.New()), Role: id.RoleUser}

	s.Run("GetOne checks existence before ownership", func() {
		s.mockRequests.EXPECT().FindByID(gomock.Any(), req.ID).Return(nil, sentinel.ErrNotFound)
		_, err := s.service.GetOne(s.ctx, stranger, req.ID)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("GetOne forbids strangers and allows owner and admin", func() {
		s.mockRequests.EXPECT().FindByID(gomock.Any(), req.ID).Return(req, nil).Times(3)

		_, err := s.service.GetOne(s.ctx, stranger, req.ID)
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))

		got, err := s.service.GetOne(s.ctx, s.user, req.ID)
		s.Require().NoError(err)
		s.Equal(req.ID, got.ID)

		_, err = s.service.GetOne(s.ctx, s.admin, req.ID)
		s.NoError(err)
	})

	s.Run("GetDocument streams the stored bytes", func() {
		s.mockRequests.EXPECT().FindByID(gomock.Any(), req.ID).Return(req, nil).Times(2)
		s.mockStorage.EXPECT().Open(gomock.Any(), "ab/ref").Return(io.NopCloser(bytes.NewReader([]byte("abc"))), nil)

		doc, content, err := s.service.GetDocument(s.ctx, s.user, req.ID, 0)
		s.Require().NoError(err)
		defer content.Close()
		data, err := io.ReadAll(content)
		s.Require().NoError(err)
		s.Equal("abc", string(data))
		s.Equal("image/jpeg", doc.MimeType)

		_, _, err = s.service.GetDocument(s.ctx, s.user, req.ID, 7)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("GetStatus summarizes per type", func() {
		s.mockRequests.EXPECT().ListByOwner(gomock.Any(), s.user.ID).Return([]*models.Request{req}, nil)

		statuses, err := s.service.GetStatus(s.ctx, s.user, s.user.ID)
		s.Require().NoError(err)
		s.Len(statuses, len(registry.Default().Types()))
		for _, st := range statuses {
			if st.Type == models.TypePhoto {
				s.Equal(models.StatePending, st.State)
			} else {
				s.Equal(models.StateUnverified, st.State)
			}
		}

		_, err = s.service.GetStatus(s.ctx, stranger, s.user.ID)
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	s.Run("ListOwn never returns nil", func() {
		s.mockRequests.EXPECT().ListByOwner(gomock.Any(), stranger.ID).Return(nil, nil)
		requests, err := s.service.ListOwn(s.ctx, stranger)
		s.Require().NoError(err)
		s.NotNil(requests)
	})

	s.Run("GetRequirements", func() {
		reqs, err := s.service.GetRequirements(s.ctx, "identity")
		s.Require().NoError(err)
		s.Contains(reqs.RequiredFields, "full_name")

		_, err = s.service.GetRequirements(s.ctx, "horoscope")
		s.True(dErrors.HasCode(err, dErrors.CodeUnknownVerificationType))
	})
}

func (s *ServiceSuite) TestAuditFailureDoesNotFailOperation() {
	mockAudit := mocks.NewMockAuditPublisher(s.ctrl)
	svc, err := New(s.mockRequests, s.mockStorage, s.mockLimiter, registry.Default(), WithAuditPublisher(mockAudit))
	s.Require().NoError(err)

	pending := s.pendingRequest(s.user.ID)
	s.mockRequests.EXPECT().UpdateTerminal(gomock.Any(), pending.ID, gomock.Any()).DoAndReturn(
		func(_ context.Context, _ id.RequestID, review models.Review) (*models.Request, error) {
			out := pending.Clone()
			out.ApplyReview(review)
			return out, nil
		})
	mockAudit.EXPECT().Emit(gomock.Any(), gomock.Any()).Return(errors.New("audit sink down"))

	_, err = svc.Approve(s.ctx, s.admin, pending.ID, "")
	s.NoError(err)
}
