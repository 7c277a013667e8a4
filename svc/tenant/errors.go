package tenant

import "errors"

var (
	ErrTenantNotFound       = errors.New("tenant not found")
	ErrInvitationNotFound   = errors.New("invitation not found")
	ErrMembershipNotFound   = errors.New("membership not found")
	ErrAlreadyMember        = errors.New("user is already a tenant member")
	ErrInvitationNotPending = errors.New("invitation is not pending")
)
