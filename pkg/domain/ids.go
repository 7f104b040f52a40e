// Package domain holds identifier primitives shared across bounded contexts.
//
// IDs are distinct named types over uuid.UUID so a RequestID can never be passed
// where a UserID is expected. Construct them from external input only through the
// Parse* functions; direct conversion skips validation.
package domain

import (
	"github.com/google/uuid"

	dErrors "vouch/pkg/domain-errors"
)

// UserID identifies an account. Admins are users holding the admin role, so
// reviewer references use the same type.
type UserID uuid.UUID

// RequestID identifies a single verification request row.
type RequestID uuid.UUID

// NewRequestID allocates a fresh random request identifier.
func NewRequestID() RequestID {
	return RequestID(uuid.New())
}

// ParseUserID parses and validates a user identifier.
func ParseUserID(s string) (UserID, error) {
	u, err := parseUUID(s, "user_id")
	if err != nil {
		return UserID{}, err
	}
	return UserID(u), nil
}

// ParseRequestID parses and validates a verification request identifier.
func ParseRequestID(s string) (RequestID, error) {
	u, err := parseUUID(s, "request_id")
	if err != nil {
		return RequestID{}, err
	}
	return RequestID(u), nil
}

func parseUUID(s, field string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, field+" cannot be empty")
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "invalid "+field+" format")
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, field+" cannot be nil")
	}
	return u, nil
}

func (id UserID) String() string { return uuid.UUID(id).String() }

// IsNil reports whether the ID is the zero UUID.
func (id UserID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }

func (id RequestID) String() string { return uuid.UUID(id).String() }

// IsNil reports whether the ID is the zero UUID.
func (id RequestID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
