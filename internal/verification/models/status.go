package models

import (
	dErrors "vouch/pkg/domain-errors"
)

// VerificationType names a category of trust claim. Valid members are defined
// by the registry; the zero value is never valid.
type VerificationType string

const (
	TypeIdentity   VerificationType = "identity"
	TypePhoto      VerificationType = "photo"
	TypeEmployment VerificationType = "employment"
	TypeEducation  VerificationType = "education"
)

func (t VerificationType) String() string {
	return string(t)
}

// Status is the lifecycle state of a request.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

func ParseStatus(s string) (Status, error) {
	st := Status(s)
	if !st.IsValid() {
		return "", dErrors.New(dErrors.CodeInvalidInput, "invalid status: must be pending, approved or rejected")
	}
	return st, nil
}

func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected:
		return true
	}
	return false
}

func (s Status) String() string {
	return string(s)
}

// CanTransitionTo encodes the state machine: pending moves once, to approved
// or rejected. Nothing leaves approved or rejected.
func (s Status) CanTransitionTo(next Status) bool {
	return s == StatusPending && (next == StatusApproved || next == StatusRejected)
}

// ClosesType reports whether a request in this status blocks every future
// submission for its (owner, type).
func (s Status) ClosesType() bool {
	return s == StatusApproved
}
