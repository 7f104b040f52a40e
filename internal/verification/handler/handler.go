package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime"
	"mime/multipart"
	"net/http"
	"slices"
	"strconv"

	"github.com/go-chi/chi/v5"

	rlmodels "vouch/internal/ratelimit/models"
	"vouch/internal/verification/guard"
	"vouch/internal/verification/models"
	"vouch/internal/verification/registry"
	"vouch/internal/verification/service"
	id "vouch/pkg/domain"
	dErrors "vouch/pkg/domain-errors"
	"vouch/pkg/platform/httputil"
	"vouch/pkg/platform/middleware/admin"
	"vouch/pkg/platform/middleware/auth"
	"vouch/pkg/requestcontext"
)

// multipartMemory is how much of a multipart body is kept in memory before
// parts spill to temp files.
const multipartMemory = 8 << 20

// Service defines the verification operations the handler exposes.
type Service interface {
	Submit(ctx context.Context, caller guard.Caller, in service.SubmitInput) (*models.Request, error)
	GetStatus(ctx context.Context, caller guard.Caller, ownerID id.UserID) ([]models.TypeStatus, error)
	GetRequirements(ctx context.Context, verificationType string) (registry.Requirements, error)
	ListTypes(ctx context.Context) []registry.Requirements
	ListOwn(ctx context.Context, caller guard.Caller) ([]*models.Request, error)
	GetOne(ctx context.Context, caller guard.Caller, requestID id.RequestID) (*models.Request, error)
	GetDocument(ctx context.Context, caller guard.Caller, requestID id.RequestID, index int) (models.Document, io.ReadCloser, error)
	ListPending(ctx context.Context, caller guard.Caller, params service.PageParams) (*models.PendingPage, error)
	Approve(ctx context.Context, caller guard.Caller, requestID id.RequestID, notes string) (*models.Request, error)
	Reject(ctx context.Context, caller guard.Caller, requestID id.RequestID, reason, notes string) (*models.Request, error)
}

// BudgetService exposes the per-user submission budget to admins.
type BudgetService interface {
	Usage(ctx context.Context, ownerID id.UserID) (*rlmodels.Usage, error)
	Reset(ctx context.Context, ownerID, adminID id.UserID) error
}

// Handler serves the verification and moderation endpoints.
type Handler struct {
	logger         *slog.Logger
	verifications  Service
	budgets        BudgetService
	jwtValidator   auth.JWTValidator
	maxUploadBytes int64
}

// New creates a new verification Handler. maxUploadBytes bounds the whole
// multipart body of a submission.
func New(
	verifications Service,
	budgets BudgetService,
	jwtValidator auth.JWTValidator,
	logger *slog.Logger,
	maxUploadBytes int64,
) *Handler {
	return &Handler{
		logger:         logger,
		verifications:  verifications,
		budgets:        budgets,
		jwtValidator:   jwtValidator,
		maxUploadBytes: maxUploadBytes,
	}
}

// Register mounts the routes on r. Every route requires a bearer token;
// /admin routes additionally require the admin role.
func (h *Handler) Register(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(auth.RequireAuth(h.jwtValidator, h.logger))

		r.Get("/verifications/status", h.handleGetStatus)
		r.Get("/verifications/types", h.handleListTypes)
		r.Get("/verifications/types/{type}/requirements", h.handleGetRequirements)
		r.Post("/verifications", h.handleSubmit)
		r.Get("/verifications", h.handleListOwn)
		r.Get("/verifications/{id}", h.handleGetOne)
		r.Get("/verifications/{id}/documents/{index}", h.handleGetDocument)

		r.Route("/admin", func(r chi.Router) {
			r.Use(admin.RequireAdmin(h.logger))
			r.Get("/verifications/pending", h.handleListPending)
			r.Post("/verifications/{id}/approve", h.handleApprove)
			r.Post("/verifications/{id}/reject", h.handleReject)
			r.Get("/ratelimit/{userID}", h.handleGetBudget)
			r.Post("/ratelimit/{userID}/reset", h.handleResetBudget)
		})
	})
}

func callerFrom(ctx context.Context) guard.Caller {
	return guard.Caller{ID: requestcontext.UserID(ctx), Role: requestcontext.Role(ctx)}
}

// handleGetStatus returns the caller's status per type. Admins may pass
// ?user_id= to look at someone else.
func (h *Handler) handleGetStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caller := callerFrom(ctx)

	ownerID := caller.ID
	if raw := r.URL.Query().Get("user_id"); raw != "" {
		parsed, err := id.ParseUserID(raw)
		if err != nil {
			httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid user_id"))
			return
		}
		ownerID = parsed
	}

	statuses, err := h.verifications.GetStatus(ctx, caller, ownerID)
	if err != nil {
		h.writeError(ctx, w, "failed to get verification status", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, statusResponse{UserID: ownerID.String(), Types: statuses})
}

func (h *Handler) handleListTypes(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, typesResponse{Types: h.verifications.ListTypes(r.Context())})
}

func (h *Handler) handleGetRequirements(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	reqs, err := h.verifications.GetRequirements(ctx, chi.URLParam(r, "type"))
	if err != nil {
		h.writeError(ctx, w, "failed to get requirements", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, reqs)
}

// handleSubmit accepts multipart/form-data with fields verification_type,
// data (a JSON object of strings), user_notes and one or more documents parts.
func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caller := callerFrom(ctx)

	if h.maxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	}
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			httputil.WriteError(w, dErrors.New(dErrors.CodePayloadTooLarge, "request body exceeds the upload limit"))
			return
		}
		h.logger.WarnContext(ctx, "invalid submission body",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "expected multipart/form-data body"))
		return
	}
	defer func() {
		_ = r.MultipartForm.RemoveAll()
	}()

	in, err := parseSubmission(r.MultipartForm)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	in.OwnerID = caller.ID

	created, err := h.verifications.Submit(ctx, caller, in)
	if err != nil {
		h.writeError(ctx, w, "failed to submit verification", err)
		return
	}
	w.Header().Set("Location", "/verifications/"+created.ID.String())
	httputil.WriteJSON(w, http.StatusCreated, toRequestResponse(created))
}

func (h *Handler) handleListOwn(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requests, err := h.verifications.ListOwn(ctx, callerFrom(ctx))
	if err != nil {
		h.writeError(ctx, w, "failed to list verifications", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, listResponse{Requests: toRequestResponses(requests)})
}

func (h *Handler) handleGetOne(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID, ok := requestIDParam(w, r)
	if !ok {
		return
	}
	req, err := h.verifications.GetOne(ctx, callerFrom(ctx), requestID)
	if err != nil {
		h.writeError(ctx, w, "failed to get verification", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toRequestResponse(req))
}

func (h *Handler) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID, ok := requestIDParam(w, r)
	if !ok {
		return
	}
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid document index"))
		return
	}

	doc, content, err := h.verifications.GetDocument(ctx, callerFrom(ctx), requestID, index)
	if err != nil {
		h.writeError(ctx, w, "failed to get document", err)
		return
	}
	defer content.Close()

	w.Header().Set("Content-Type", doc.MimeType)
	w.Header().Set("Content-Length", strconv.FormatInt(doc.SizeBytes, 10))
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": doc.OriginalName}))
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, content); err != nil {
		h.logger.WarnContext(ctx, "document download interrupted",
			"request_id", requestcontext.RequestID(ctx),
			"verification_request_id", requestID.String(),
			"error", err,
		)
	}
}

func (h *Handler) handleListPending(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()

	params := service.PageParams{Cursor: q.Get("cursor"), Type: q.Get("type")}
	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 {
			httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "limit must be a positive integer"))
			return
		}
		params.Limit = limit
	}

	page, err := h.verifications.ListPending(ctx, callerFrom(ctx), params)
	if err != nil {
		h.writeError(ctx, w, "failed to list pending verifications", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, pendingResponse{
		Requests:   toRequestResponses(page.Requests),
		NextCursor: page.NextCursor,
	})
}

func (h *Handler) handleApprove(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID, ok := requestIDParam(w, r)
	if !ok {
		return
	}
	var body approveRequest
	if !decodeOptionalJSON(w, r, &body) {
		return
	}
	sanitize(&body)

	req, err := h.verifications.Approve(ctx, callerFrom(ctx), requestID, body.Notes)
	if err != nil {
		h.writeError(ctx, w, "failed to approve verification", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toRequestResponse(req))
}

func (h *Handler) handleReject(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID, ok := requestIDParam(w, r)
	if !ok {
		return
	}
	var body rejectRequest
	if !decodeOptionalJSON(w, r, &body) {
		return
	}
	sanitize(&body)

	req, err := h.verifications.Reject(ctx, callerFrom(ctx), requestID, body.Reason, body.Notes)
	if err != nil {
		h.writeError(ctx, w, "failed to reject verification", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toRequestResponse(req))
}

func (h *Handler) handleGetBudget(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, ok := userIDParam(w, r)
	if !ok {
		return
	}
	usage, err := h.budgets.Usage(ctx, userID)
	if err != nil {
		h.writeError(ctx, w, "failed to read submission budget", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, budgetResponse{
		UserID:        userID.String(),
		Usage:         *usage,
		WindowSeconds: int(usage.Window.Seconds()),
	})
}

func (h *Handler) handleResetBudget(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, ok := userIDParam(w, r)
	if !ok {
		return
	}
	if err := h.budgets.Reset(ctx, userID, callerFrom(ctx).ID); err != nil {
		h.writeError(ctx, w, "failed to reset submission budget", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// writeError logs server-side failures and renders any error.
func (h *Handler) writeError(ctx context.Context, w http.ResponseWriter, msg string, err error) {
	if httputil.StatusFor(dErrors.CodeOf(err)) >= http.StatusInternalServerError {
		h.logger.ErrorContext(ctx, msg,
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
	}
	httputil.WriteError(w, err)
}

func requestIDParam(w http.ResponseWriter, r *http.Request) (id.RequestID, bool) {
	requestID, err := id.ParseRequestID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid verification request id"))
		return id.RequestID{}, false
	}
	return requestID, true
}

func userIDParam(w http.ResponseWriter, r *http.Request) (id.UserID, bool) {
	userID, err := id.ParseUserID(chi.URLParam(r, "userID"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid user id"))
		return id.UserID{}, false
	}
	return userID, true
}

// decodeOptionalJSON decodes a JSON body into v. An empty body leaves v untouched.
func decodeOptionalJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	err := json.NewDecoder(io.LimitReader(r.Body, 64<<10)).Decode(v)
	if err == nil || errors.Is(err, io.EOF) {
		return true
	}
	httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
	return false
}

func parseSubmission(form *multipart.Form) (service.SubmitInput, error) {
	in := service.SubmitInput{
		Type:      firstValue(form, "verification_type", "type"),
		UserNotes: firstValue(form, "user_notes", "notes"),
	}

	if raw := firstValue(form, "data"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &in.Data); err != nil {
			return in, dErrors.Validation("submission is invalid", []dErrors.FieldError{
				{Field: "data", Message: "must be a JSON object of string values"},
			})
		}
	}

	files := slices.Concat(form.File["documents"], form.File["documents[]"])
	for _, fh := range files {
		in.Documents = append(in.Documents, service.DocumentInput{
			DocumentMeta: models.DocumentMeta{
				OriginalName: sanitizeFilename(fh.Filename),
				MimeType:     fh.Header.Get("Content-Type"),
				SizeBytes:    fh.Size,
			},
			Open: func() (io.ReadCloser, error) {
				return fh.Open()
			},
		})
	}
	return in, nil
}

func firstValue(form *multipart.Form, names ...string) string {
	for _, name := range names {
		if values := form.Value[name]; len(values) > 0 {
			return values[0]
		}
	}
	return ""
}
