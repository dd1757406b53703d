package whitelist

import (
	"context"
	"errors"
)

var (
	// ErrVerificationRequired reports a link attempt without verification.
	ErrVerificationRequired = errors.New("email verification required")
	// ErrConfirmationRequired reports a missing responsibility confirmation.
	ErrConfirmationRequired = errors.New("responsibility confirmation required")
	// ErrInvalidUsername reports a username outside the allowed pattern.
	ErrInvalidUsername = errors.New("username is not a valid game username")
	// ErrUsernameTaken reports a username claimed by another user.
	ErrUsernameTaken = errors.New("username already whitelisted by another user")
	// ErrAlreadyLinked reports a username the caller already linked.
	ErrAlreadyLinked = errors.New("username already whitelisted")
	// ErrExternalAdd reports an allow-list add the game server rejected;
	// the store append has been rolled back.
	ErrExternalAdd = errors.New("game server rejected the whitelist add")
	// ErrNothingToRemove reports an unlink for a user with no usernames.
	ErrNothingToRemove = errors.New("no whitelisted accounts to remove")
	// ErrUsernameNotFound reports a moderation unlink of an unknown name.
	ErrUsernameNotFound = errors.New("username is not linked to anyone")
)

// AllowList is the external game-server allow-list collaborator.
type AllowList interface {
	Add(ctx context.Context, username string) error
	Remove(ctx context.Context, usernames ...string) error
}
