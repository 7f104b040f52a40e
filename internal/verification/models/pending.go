package models

import (
	"encoding/base64"
	"strconv"
	"strings"
	"time"

	id "vouch/pkg/domain"
	dErrors "vouch/pkg/domain-errors"
)

// Cursor is the keyset position of the last request a page returned. The
// pending queue is ordered by (SubmittedAt, ID).
type Cursor struct {
	SubmittedAt time.Time
	ID          id.RequestID
}

// CursorAfter returns the position just past r.
func CursorAfter(r *Request) Cursor {
	return Cursor{SubmittedAt: r.SubmittedAt, ID: r.ID}
}

// Before reports whether r sorts at or before the cursor position.
func (c Cursor) Before(r *Request) bool {
	if !r.SubmittedAt.Equal(c.SubmittedAt) {
		return r.SubmittedAt.Before(c.SubmittedAt)
	}
	return strings.Compare(r.ID.String(), c.ID.String()) <= 0
}

// Encode renders an opaque, URL-safe page token.
func (c Cursor) Encode() string {
	raw := strconv.FormatInt(c.SubmittedAt.UnixMicro(), 10) + "|" + c.ID.String()
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

// DecodeCursor parses a token produced by Encode.
func DecodeCursor(token string) (*Cursor, error) {
	if token == "" {
		return nil, nil
	}
	invalid := dErrors.New(dErrors.CodeBadRequest, "invalid page cursor")

	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return nil, invalid
	}
	micros, requestID, ok := strings.Cut(string(raw), "|")
	if !ok {
		return nil, invalid
	}
	us, err := strconv.ParseInt(micros, 10, 64)
	if err != nil {
		return nil, invalid
	}
	rid, err := id.ParseRequestID(requestID)
	if err != nil {
		return nil, invalid
	}
	return &Cursor{SubmittedAt: time.UnixMicro(us).UTC(), ID: rid}, nil
}

// PendingQuery selects a page of the FIFO moderation queue.
type PendingQuery struct {
	// Type restricts the queue to one verification type when non-empty.
	Type  VerificationType
	After *Cursor
	Limit int
}

// PendingPage is one page of the moderation queue. NextCursor is empty on the
// last page.
type PendingPage struct {
	Requests   []*Request `json:"requests"`
	NextCursor string     `json:"next_cursor,omitempty"`
}
