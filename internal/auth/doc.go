// Package auth provides authentication and authorisation for AdvisorPro.
//
// It implements the session core of a multi-tenant CRM:
//   - Argon2id hashing of passwords and refresh secrets (PHC strings)
//   - HS256 access tokens embedding subject, tenant and role
//   - Server-side refresh records rotated atomically, single use
//   - A closed OWNER/AGENT/VIEWER role set checked against ANY, STAFF
//     and OWNER policies
//
// Access tokens are stateless: a role change or logout-all takes effect
// for a token only when it expires and the session is next rotated.
// Refresh rotation re-reads the membership so the new token carries the
// current role.
//
// Every error returned by this package wraps one of the kinds in
// errors.go (ErrUnauthenticated, ErrForbidden, ErrInvalidRefresh,
// ErrValidation, ErrConflict, ErrMisconfigured) so the HTTP layer can map
// it with errors.Is.
package auth
