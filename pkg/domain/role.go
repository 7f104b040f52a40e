package domain

import dErrors "vouch/pkg/domain-errors"

// Role is the authorization role carried by a caller's credentials.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// ParseRole validates a role claim. An empty claim defaults to RoleUser so
// tokens minted without a role never gain elevated access.
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case "":
		return RoleUser, nil
	case RoleUser, RoleAdmin:
		return Role(s), nil
	}
	return "", dErrors.New(dErrors.CodeInvalidInput, "invalid role")
}

// IsAdmin reports whether the role grants moderation rights.
func (r Role) IsAdmin() bool {
	return r == RoleAdmin
}

func (r Role) String() string {
	return string(r)
}
