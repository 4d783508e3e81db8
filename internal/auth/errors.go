package auth

import "errors"

// Error kinds. Every failure leaving this package wraps exactly one of
// these so the transport can map it with errors.Is.
var (
	// ErrUnauthenticated means no usable access credential (or bad login).
	ErrUnauthenticated = errors.New("unauthenticated")

	// ErrForbidden means the identity is valid but its role is not allowed.
	ErrForbidden = errors.New("forbidden")

	// ErrInvalidRefresh means the refresh credential cannot be used.
	// The client must log in again and drop its session cookies.
	ErrInvalidRefresh = errors.New("invalid refresh credential")

	// ErrRateLimited means the caller exceeded its request budget.
	ErrRateLimited = errors.New("rate limited")

	// ErrMisconfigured means the process cannot safely serve requests.
	ErrMisconfigured = errors.New("auth misconfigured")

	// ErrValidation means the request payload is malformed.
	ErrValidation = errors.New("validation failed")

	// ErrConflict means the request collides with existing state.
	ErrConflict = errors.New("conflict")
)

// Causes. These wrap a kind and are used internally and in tests; callers
// outside the package should match on the kind.
var (
	ErrInvalidCredentials = wrapKind(ErrUnauthenticated, "invalid email or password")
	ErrTokenExpired       = wrapKind(ErrUnauthenticated, "token has expired")
	ErrTokenInvalid       = wrapKind(ErrUnauthenticated, "token signature or claims invalid")
	ErrTokenMalformed     = wrapKind(ErrUnauthenticated, "token is malformed")

	ErrRefreshMalformed = wrapKind(ErrInvalidRefresh, "refresh credential is malformed")
	ErrRefreshNotFound  = wrapKind(ErrInvalidRefresh, "refresh record not found")
	ErrRefreshRevoked   = wrapKind(ErrInvalidRefresh, "refresh record revoked or expired")
	ErrRefreshMismatch  = wrapKind(ErrInvalidRefresh, "refresh secret mismatch")

	ErrEmailExists    = wrapKind(ErrConflict, "email already registered")
	ErrLastOwner      = wrapKind(ErrConflict, "workspace must keep at least one owner")
	ErrUserNotFound   = errors.New("user not found")
	ErrNoMembership   = errors.New("user has no workspace membership")
	ErrMemberNotFound = errors.New("member not found")
)

type kindError struct {
	kind error
	msg  string
}

func (e *kindError) Error() string { return e.msg }
func (e *kindError) Unwrap() error { return e.kind }

func wrapKind(kind error, msg string) error {
	return &kindError{kind: kind, msg: msg}
}
