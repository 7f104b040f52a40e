package service_test

import (
	"bytes"
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vouch/internal/ratelimit/service/submission"
	"vouch/internal/ratelimit/store/bucket"
	"vouch/internal/verification/guard"
	"vouch/internal/verification/models"
	"vouch/internal/verification/registry"
	"vouch/internal/verification/service"
	"vouch/internal/verification/storage"
	"vouch/internal/verification/store/request"
	id "vouch/pkg/domain"
	dErrors "vouch/pkg/domain-errors"
	"vouch/pkg/requestcontext"
)

const mib = 1 << 20

// harness wires the service to real in-process collaborators.
type harness struct {
	svc      *service.Service
	requests *request.InMemory
	docs     *storage.Filesystem
	user     guard.Caller
	admin    guard.Caller
	now      time.Time
}

func newHarness(t *testing.T, policy submission.Policy) *harness {
	t.Helper()
	docs, err := storage.NewFilesystem(t.TempDir())
	require.NoError(t, err)
	limiter, err := submission.New(bucket.NewInMemoryBucketStore(), policy)
	require.NoError(t, err)

	requests := request.NewInMemory()
	svc, err := service.New(requests, docs, limiter, registry.Default())
	require.NoError(t, err)

	return &harness{
		svc:      svc,
		requests: requests,
		docs:     docs,
		user:     guard.Caller{ID: id.UserID(uuid.New()), Role: id.RoleUser},
		admin:    guard.Caller{ID: id.UserID(uuid.New()), Role: id.RoleAdmin},
		now:      time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC),
	}
}

func (h *harness) ctx() context.Context {
	return requestcontext.WithTime(context.Background(), h.now)
}

func image(name string, size int) service.DocumentInput {
	content := bytes.Repeat([]byte{0xFF}, size)
	return service.DocumentInput{
		DocumentMeta: models.DocumentMeta{OriginalName: name, MimeType: "image/jpeg", SizeBytes: int64(size)},
		Open: func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(content)), nil
		},
	}
}

func identityInput(owner id.UserID, docs ...service.DocumentInput) service.SubmitInput {
	return service.SubmitInput{
		OwnerID: owner,
		Type:    "identity",
		Data: map[string]string{
			"full_name":       "Ada Lovelace",
			"date_of_birth":   "1815-12-10",
			"document_number": "X1234567",
		},
		Documents: docs,
	}
}

func (h *harness) countFor(t *testing.T, owner id.UserID, vt models.VerificationType, status models.Status) int {
	t.Helper()
	all, err := h.requests.ListByOwner(context.Background(), owner)
	require.NoError(t, err)
	n := 0
	for _, r := range all {
		if r.Type == vt && r.Status == status {
			n++
		}
	}
	return n
}

func TestVerificationLifecycle(t *testing.T) {
	h := newHarness(t, submission.Policy{Limit: 100, Window: time.Hour})

	// A 2 MB image for a fresh identity verification is accepted as pending.
	first, err := h.svc.Submit(h.ctx(), h.user, identityInput(h.user.ID, image("passport.jpg", 2*mib)))
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, first.Status)
	assert.EqualValues(t, 2*mib, first.Documents[0].SizeBytes)
	assert.Len(t, first.Documents[0].Digest, 64)

	stored, err := h.docs.Open(context.Background(), first.Documents[0].StorageRef)
	require.NoError(t, err)
	data, err := io.ReadAll(stored)
	require.NoError(t, err)
	require.NoError(t, stored.Close())
	assert.Len(t, data, 2*mib)

	// A second submission while pending is a duplicate and leaves the count unchanged.
	_, err = h.svc.Submit(h.ctx(), h.user, identityInput(h.user.ID, image("passport.jpg", 1024)))
	assert.True(t, dErrors.HasCode(err, dErrors.CodeDuplicatePending))
	assert.Equal(t, 1, h.countFor(t, h.user.ID, models.TypeIdentity, models.StatusPending))

	// Rejection records the reason and the reviewer.
	h.now = h.now.Add(time.Minute)
	rejected, err := h.svc.Reject(h.ctx(), h.admin, first.ID, "blurry photo", "")
	require.NoError(t, err)
	assert.Equal(t, models.StatusRejected, rejected.Status)
	assert.Equal(t, "blurry photo", rejected.RejectionReason)
	require.NotNil(t, rejected.ReviewedBy)
	assert.Equal(t, h.admin.ID, *rejected.ReviewedBy)
	require.NotNil(t, rejected.ReviewedAt)
	assert.True(t, h.now.Equal(*rejected.ReviewedAt))

	// Resubmission after rejection creates an independent row.
	h.now = h.now.Add(time.Minute)
	second, err := h.svc.Submit(h.ctx(), h.user, identityInput(h.user.ID, image("passport-2.jpg", 4096)))
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)

	unchanged, err := h.svc.GetOne(h.ctx(), h.user, first.ID)
	require.NoError(t, err)
	assert.Equal(t, rejected, unchanged)

	// Approval closes the type for good.
	approved, err := h.svc.Approve(h.ctx(), h.admin, second.ID, "matches")
	require.NoError(t, err)
	assert.Equal(t, models.StatusApproved, approved.Status)
	assert.Equal(t, "matches", approved.AdminNotes)

	_, err = h.svc.Submit(h.ctx(), h.user, identityInput(h.user.ID, image("passport-3.jpg", 4096)))
	assert.True(t, dErrors.HasCode(err, dErrors.CodeAlreadyVerified))

	// A reviewed request cannot be reviewed again.
	_, err = h.svc.Reject(h.ctx(), h.admin, second.ID, "changed my mind", "")
	assert.True(t, dErrors.HasCode(err, dErrors.CodeAlreadyReviewed))

	statuses, err := h.svc.GetStatus(h.ctx(), h.user, h.user.ID)
	require.NoError(t, err)
	for _, st := range statuses {
		if st.Type == models.TypeIdentity {
			assert.Equal(t, models.StateApproved, st.State)
		}
	}

	own, err := h.svc.ListOwn(h.ctx(), h.user)
	require.NoError(t, err)
	require.Len(t, own, 2)
	assert.Equal(t, second.ID, own[0].ID, "newest first")
}

func TestSubmit_DocumentRules(t *testing.T) {
	h := newHarness(t, submission.Policy{Limit: 100, Window: time.Hour})

	t.Run("zero documents", func(t *testing.T) {
		_, err := h.svc.Submit(h.ctx(), h.user, identityInput(h.user.ID))
		require.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
		assert.Equal(t, "documents", dErrors.FieldsOf(err)[0].Field)
	})

	t.Run("document above the size cap", func(t *testing.T) {
		_, err := h.svc.Submit(h.ctx(), h.user, identityInput(h.user.ID, image("huge.jpg", 11*mib)))
		require.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
		assert.Equal(t, "documents[0]", dErrors.FieldsOf(err)[0].Field)
	})

	t.Run("declared size understating the real content", func(t *testing.T) {
		doc := image("liar.jpg", 11*mib)
		doc.SizeBytes = 1024

		_, err := h.svc.Submit(h.ctx(), h.user, identityInput(h.user.ID, doc))
		assert.True(t, dErrors.HasCode(err, dErrors.CodeStorageFailure))
	})

	assert.Zero(t, h.countFor(t, h.user.ID, models.TypeIdentity, models.StatusPending))
}

func TestSubmit_RateLimitWindow(t *testing.T) {
	h := newHarness(t, submission.Policy{Limit: 3, Window: time.Hour})

	for i := range 3 {
		in := identityInput(h.user.ID)
		_, err := h.svc.Submit(h.ctx(), h.user, in)
		require.True(t, dErrors.HasCode(err, dErrors.CodeValidation), "attempt %d", i)
	}

	_, err := h.svc.Submit(h.ctx(), h.user, identityInput(h.user.ID, image("id.jpg", 512)))
	require.True(t, dErrors.HasCode(err, dErrors.CodeRateLimitExceeded))
	assert.Positive(t, dErrors.RetryAfterOf(err))

	h.now = h.now.Add(time.Hour + time.Second)
	req, err := h.svc.Submit(h.ctx(), h.user, identityInput(h.user.ID, image("id.jpg", 512)))
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, req.Status)
}

func TestGetOne_Authorization(t *testing.T) {
	h := newHarness(t, submission.Policy{Limit: 10, Window: time.Hour})
	req, err := h.svc.Submit(h.ctx(), h.user, identityInput(h.user.ID, image("id.jpg", 512)))
	require.NoError(t, err)

	stranger := guard.Caller{ID: id.UserID(uuid.New()), Role: id.RoleUser}
	_, err = h.svc.GetOne(h.ctx(), stranger, req.ID)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeForbidden))

	strangerAsAdmin := guard.Caller{ID: stranger.ID, Role: id.RoleAdmin}
	got, err := h.svc.GetOne(h.ctx(), strangerAsAdmin, req.ID)
	require.NoError(t, err)
	assert.Equal(t, req.ID, got.ID)
}

func TestConcurrentSubmissions_SinglePending(t *testing.T) {
	h := newHarness(t, submission.Policy{Limit: 1000, Window: time.Hour})

	const callers = 16
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		codes     = map[dErrors.Code]int{}
	)
	for range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.svc.Submit(h.ctx(), h.user, identityInput(h.user.ID, image("id.jpg", 2048)))
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				successes++
				return
			}
			codes[dErrors.CodeOf(err)]++
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
	assert.Equal(t, callers-1, codes[dErrors.CodeDuplicatePending])
	assert.Equal(t, 1, h.countFor(t, h.user.ID, models.TypeIdentity, models.StatusPending))
}

func TestConcurrentApprovals_SingleReview(t *testing.T) {
	h := newHarness(t, submission.Policy{Limit: 10, Window: time.Hour})
	req, err := h.svc.Submit(h.ctx(), h.user, identityInput(h.user.ID, image("id.jpg", 512)))
	require.NoError(t, err)

	admins := make([]guard.Caller, 8)
	for i := range admins {
		admins[i] = guard.Caller{ID: id.UserID(uuid.New()), Role: id.RoleAdmin}
	}

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		winners []id.UserID
		lost    int
	)
	for _, admin := range admins {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.svc.Approve(h.ctx(), admin, req.ID, "")
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				winners = append(winners, admin.ID)
				return
			}
			if dErrors.HasCode(err, dErrors.CodeAlreadyReviewed) {
				lost++
			}
		}()
	}
	wg.Wait()

	require.Len(t, winners, 1)
	assert.Equal(t, len(admins)-1, lost)

	final, err := h.svc.GetOne(h.ctx(), h.admin, req.ID)
	require.NoError(t, err)
	require.NotNil(t, final.ReviewedBy)
	assert.Equal(t, winners[0], *final.ReviewedBy)
}

func TestListPending_Paging(t *testing.T) {
	h := newHarness(t, submission.Policy{Limit: 10, Window: time.Hour})

	var submitted []id.RequestID
	for range 5 {
		owner := guard.Caller{ID: id.UserID(uuid.New()), Role: id.RoleUser}
		h.now = h.now.Add(time.Second)
		req, err := h.svc.Submit(h.ctx(), owner, identityInput(owner.ID, image("id.jpg", 256)))
		require.NoError(t, err)
		submitted = append(submitted, req.ID)
	}

	var seen []id.RequestID
	cursor := ""
	for {
		page, err := h.svc.ListPending(h.ctx(), h.admin, service.PageParams{Limit: 2, Cursor: cursor})
		require.NoError(t, err)
		for _, r := range page.Requests {
			seen = append(seen, r.ID)
		}
		if page.NextCursor == "" {
			break
		}
		cursor = page.NextCursor

		// Reviewing an already listed request must not shift later pages.
		_, err = h.svc.Approve(h.ctx(), h.admin, page.Requests[0].ID, "")
		require.NoError(t, err)
	}
	assert.Equal(t, submitted, seen)
}
