package verify

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrInvalidEmail reports a malformed email address.
	ErrInvalidEmail = errors.New("email address is invalid")
	// ErrDisallowedDomain reports an email outside the allowed domains.
	ErrDisallowedDomain = errors.New("email domain is not an allowed student domain")
	// ErrEmailBanned reports an email on the ban list.
	ErrEmailBanned = errors.New("email address is banned")
	// ErrAlreadyVerified reports a user who already holds a live record.
	ErrAlreadyVerified = errors.New("user is already verified")
	// ErrMailDelivery reports a failed code dispatch.
	ErrMailDelivery = errors.New("verification mail could not be sent")
	// ErrNoChallenge reports a code submission with no outstanding challenge.
	ErrNoChallenge = errors.New("no verification in progress")
	// ErrWrongCode reports a code mismatch; the challenge stays live.
	ErrWrongCode = errors.New("verification code does not match")
	// ErrNotVerified reports an operation needing a record that is absent.
	ErrNotVerified = errors.New("user is not verified")
	// ErrAlreadyBanned reports a ban of an email already on the list.
	ErrAlreadyBanned = errors.New("email is already banned")
	// ErrNotFound reports a lookup that matched nothing.
	ErrNotFound = errors.New("no matching identity")
)

// Result reports a committed verification: the role bucket resolved from
// the email domain.
type Result struct {
	RoleID string
	Email  string
}

// Query selects an identity for Lookup. Filters are applied in the order
// user id, username, email; the first non-empty filter that matches wins.
type Query struct {
	UserID   string
	Username string
	Email    string
}

// View is the read-only cross-reference returned by Lookup.
type View struct {
	UserID    string
	Email     string
	ExpiresAt time.Time
	Usernames []string
}

// Unlinker is the slice of the whitelist workflow the verification cascade
// needs.
type Unlinker interface {
	UnlinkAll(ctx context.Context, userID string) ([]string, error)
}

type challenge struct {
	code     int
	email    string
	roleID   string
	issuedAt time.Time
}
