package handler

import (
	"fmt"
	"time"

	rlmodels "vouch/internal/ratelimit/models"
	"vouch/internal/verification/models"
	"vouch/internal/verification/registry"
)

// documentResponse hides the storage reference; clients fetch bytes through URL.
type documentResponse struct {
	Index        int    `json:"index"`
	OriginalName string `json:"original_name"`
	MimeType     string `json:"mime_type"`
	SizeBytes    int64  `json:"size_bytes"`
	Digest       string `json:"digest,omitempty"`
	URL          string `json:"url"`
}

type requestResponse struct {
	ID              string             `json:"id"`
	OwnerID         string             `json:"owner_id"`
	Type            string             `json:"verification_type"`
	Status          string             `json:"status"`
	SubmittedData   map[string]string  `json:"submitted_data"`
	Documents       []documentResponse `json:"documents"`
	UserNotes       string             `json:"user_notes,omitempty"`
	AdminNotes      string             `json:"admin_notes,omitempty"`
	RejectionReason string             `json:"rejection_reason,omitempty"`
	ReviewedBy      string             `json:"reviewed_by,omitempty"`
	SubmittedAt     time.Time          `json:"submitted_at"`
	ReviewedAt      *time.Time         `json:"reviewed_at,omitempty"`
}

type listResponse struct {
	Requests []requestResponse `json:"requests"`
}

type pendingResponse struct {
	Requests   []requestResponse `json:"requests"`
	NextCursor string            `json:"next_cursor,omitempty"`
}

type statusResponse struct {
	UserID string              `json:"user_id"`
	Types  []models.TypeStatus `json:"types"`
}

type typesResponse struct {
	Types []registry.Requirements `json:"types"`
}

type budgetResponse struct {
	UserID string `json:"user_id"`
	rlmodels.Usage
	WindowSeconds int `json:"window_seconds"`
}

func toRequestResponse(r *models.Request) requestResponse {
	resp := requestResponse{
		ID:              r.ID.String(),
		OwnerID:         r.OwnerID.String(),
		Type:            string(r.Type),
		Status:          string(r.Status),
		SubmittedData:   r.SubmittedData,
		Documents:       make([]documentResponse, len(r.Documents)),
		UserNotes:       r.UserNotes,
		AdminNotes:      r.AdminNotes,
		RejectionReason: r.RejectionReason,
		SubmittedAt:     r.SubmittedAt,
		ReviewedAt:      r.ReviewedAt,
	}
	if r.ReviewedBy != nil {
		resp.ReviewedBy = r.ReviewedBy.String()
	}
	for i, d := range r.Documents {
		resp.Documents[i] = documentResponse{
			Index:        i,
			OriginalName: d.OriginalName,
			MimeType:     d.MimeType,
			SizeBytes:    d.SizeBytes,
			Digest:       d.Digest,
			URL:          fmt.Sprintf("/verifications/%s/documents/%d", r.ID, i),
		}
	}
	return resp
}

func toRequestResponses(requests []*models.Request) []requestResponse {
	out := make([]requestResponse, 0, len(requests))
	for _, r := range requests {
		out = append(out, toRequestResponse(r))
	}
	return out
}
