// Package guard enforces who may read or act on verification requests. The
// caller is always passed explicitly; nothing here reads request context.
package guard

import (
	id "vouch/pkg/domain"
	dErrors "vouch/pkg/domain-errors"
)

// Caller is the authenticated principal behind an operation.
type Caller struct {
	ID   id.UserID
	Role id.Role
}

func (c Caller) IsAdmin() bool {
	return c.Role.IsAdmin()
}

// EnsureOwnerOrAdmin allows the resource owner or any admin.
func EnsureOwnerOrAdmin(caller Caller, ownerID id.UserID) error {
	if err := ensureAuthenticated(caller); err != nil {
		return err
	}
	if caller.ID == ownerID || caller.IsAdmin() {
		return nil
	}
	return dErrors.New(dErrors.CodeForbidden, "not allowed to access this verification request")
}

// EnsureAdmin allows admins only, regardless of ownership.
func EnsureAdmin(caller Caller) error {
	if err := ensureAuthenticated(caller); err != nil {
		return err
	}
	if !caller.IsAdmin() {
		return dErrors.New(dErrors.CodeForbidden, "admin role required")
	}
	return nil
}

// EnsureSelf allows a caller to act only on their own behalf. Admins get no
// exemption: nobody submits verification claims for someone else.
func EnsureSelf(caller Caller, ownerID id.UserID) error {
	if err := ensureAuthenticated(caller); err != nil {
		return err
	}
	if caller.ID != ownerID {
		return dErrors.New(dErrors.CodeForbidden, "cannot submit verification for another user")
	}
	return nil
}

func ensureAuthenticated(caller Caller) error {
	if caller.ID.IsNil() {
		return dErrors.New(dErrors.CodeUnauthorized, "authentication required")
	}
	return nil
}
