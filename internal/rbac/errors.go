package rbac

import "errors"

var (
	ErrNotFound       = errors.New("rbac: not found")
	ErrConflict       = errors.New("rbac: already exists")
	ErrInvalidInput   = errors.New("rbac: invalid input")
	ErrUnauthorized   = errors.New("rbac: unauthorized")
	ErrAccountBlocked = errors.New("rbac: account blocked")
	ErrSystemRole     = errors.New("rbac: system role cannot be deleted")
)
