package insurance

import "errors"

// Domain errors, checked with errors.Is(). These are business outcomes:
// callers may surface their messages verbatim. Anything else returned by
// this package is an infrastructure failure.
var (
	// ErrNotFound indicates a referenced entity (plan, policy, agent,
	// customer) does not exist.
	ErrNotFound = errors.New("not found")

	// ErrForbidden indicates the caller is authenticated but does not own
	// the policy. Ownership means the policy's customer email equals the
	// caller's account email. A missing customer record reports
	// ErrNotFound, not ErrForbidden; only an email mismatch is a denial.
	ErrForbidden = errors.New("access denied")
)
