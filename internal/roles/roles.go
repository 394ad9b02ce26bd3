// Package roles implements the authorization predicates applied before any
// administrative mutation of user accounts, class sessions or bookings.
//
// The predicates are pure: they only look at the roles (and, for the Check
// helpers, the identifiers) of the acting and the targeted account.
package roles

import (
	"errors"
	"strings"
)

// Role identifies the privilege level of an account.
type Role string

const (
	// Client is a regular customer account.
	Client Role = "CLIENT"
	// Admin manages sessions, bookings and client accounts.
	Admin Role = "ADMIN"
	// SuperAdmin manages everything, including other administrators.
	SuperAdmin Role = "SUPERADMIN"
)

var (
	// ErrForbidden is returned when the acting role may not perform the mutation.
	ErrForbidden = errors.New("roles: forbidden")
	// ErrSelfMutation is returned when an actor targets their own role or disabled flag.
	ErrSelfMutation = errors.New("roles: actor cannot change own role or disabled state")
	// ErrUnknownRole is returned by Parse for values outside the role set.
	ErrUnknownRole = errors.New("roles: unknown role")
)

// All lists the roles ordered by privilege.
func All() []Role {
	return []Role{Client, Admin, SuperAdmin}
}

// Parse normalizes a role string.
func Parse(value string) (Role, error) {
	switch Role(strings.ToUpper(strings.TrimSpace(value))) {
	case Client:
		return Client, nil
	case Admin:
		return Admin, nil
	case SuperAdmin:
		return SuperAdmin, nil
	}
	return "", ErrUnknownRole
}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	return r.Rank() > 0
}

// Rank orders roles by privilege. Unknown roles rank 0.
func (r Role) Rank() int {
	switch r {
	case Client:
		return 1
	case Admin:
		return 2
	case SuperAdmin:
		return 3
	}
	return 0
}

// IsStaff reports whether the role may use the back office.
func (r Role) IsStaff() bool {
	return r == Admin || r == SuperAdmin
}

func (r Role) String() string {
	return string(r)
}

// CanDisableTarget reports whether actor may enable or disable an account holding target.
func CanDisableTarget(actor, target Role) bool {
	switch actor {
	case SuperAdmin:
		return true
	case Admin:
		return target == Client
	}
	return false
}

// CanSetRole reports whether actor may move an account from target to newRole.
// Administrators may only toggle between CLIENT and ADMIN.
func CanSetRole(actor, target, newRole Role) bool {
	switch actor {
	case SuperAdmin:
		return true
	case Admin:
		promote := target == Client && newRole == Admin
		demote := target == Admin && newRole == Client
		return promote || demote
	}
	return false
}

// CanEditTarget reports whether actor may edit profile fields of an account holding target.
func CanEditTarget(actor, target Role) bool {
	switch actor {
	case SuperAdmin:
		return true
	case Admin:
		return target != SuperAdmin
	}
	return false
}

// CanCreateRole reports whether actor may create a new account with newRole.
func CanCreateRole(actor, newRole Role) bool {
	switch actor {
	case SuperAdmin:
		return true
	case Admin:
		return newRole == Client || newRole == Admin
	}
	return false
}

// Subject pairs an account identifier with its role.
type Subject struct {
	ID   string
	Role Role
}

// CheckDisable applies self-protection and CanDisableTarget.
func CheckDisable(actor, target Subject) error {
	if isSelf(actor, target) {
		return ErrSelfMutation
	}
	if !CanDisableTarget(actor.Role, target.Role) {
		return ErrForbidden
	}
	return nil
}

// CheckSetRole applies self-protection and CanSetRole.
func CheckSetRole(actor, target Subject, newRole Role) error {
	if isSelf(actor, target) {
		return ErrSelfMutation
	}
	if !newRole.Valid() {
		return ErrUnknownRole
	}
	if !CanSetRole(actor.Role, target.Role, newRole) {
		return ErrForbidden
	}
	return nil
}

// CheckEdit applies CanEditTarget. Editing one's own profile fields is allowed.
func CheckEdit(actor, target Subject) error {
	if !CanEditTarget(actor.Role, target.Role) {
		return ErrForbidden
	}
	return nil
}

// CheckCreate applies CanCreateRole.
func CheckCreate(actor Subject, newRole Role) error {
	if !newRole.Valid() {
		return ErrUnknownRole
	}
	if !CanCreateRole(actor.Role, newRole) {
		return ErrForbidden
	}
	return nil
}

func isSelf(actor, target Subject) bool {
	return actor.ID != "" && actor.ID == target.ID
}
