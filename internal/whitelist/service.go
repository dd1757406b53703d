// Package whitelist links verified users' game usernames to the external
// allow-list and keeps both sides reconciled.
package whitelist

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/leicestercs/societybot/internal/roles"
	"github.com/leicestercs/societybot/internal/store"
)

var usernamePattern = regexp.MustCompile(`^[A-Za-z0-9_]{3,16}$`)

// Service runs whitelist linking and removal.
type Service struct {
	store             *store.Store
	allowList         AllowList
	roles             roles.Manager
	verifiedRoleIDs   []string
	whitelistedRoleID string
	logger            *slog.Logger

	now func() time.Time
}

// NewService wires the workflow. verifiedRoleIDs are the role buckets that
// satisfy the verification gate; whitelistedRoleID is granted per link.
func NewService(log *slog.Logger, st *store.Store, allowList AllowList, roleManager roles.Manager, verifiedRoleIDs []string, whitelistedRoleID string) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		store:             st,
		allowList:         allowList,
		roles:             roleManager,
		verifiedRoleIDs:   verifiedRoleIDs,
		whitelistedRoleID: whitelistedRoleID,
		logger:            log.With(slog.String("service", "whitelist")),
		now:               time.Now,
	}
}

// RequestLink gates the username form: the caller must hold a verification
// role right now and have a current verification record.
func (s *Service) RequestLink(ctx context.Context, userID string) error {
	hasRole, err := s.roles.HasAnyRole(ctx, userID, s.verifiedRoleIDs...)
	if err != nil {
		return fmt.Errorf("membership check: %w", err)
	}
	if !hasRole {
		return ErrVerificationRequired
	}
	rec, ok, err := s.store.GetVerification(userID)
	if err != nil {
		return err
	}
	if !ok || rec.Expired(s.now()) {
		return ErrVerificationRequired
	}
	return nil
}

// SubmitUsername validates and links a username, adds it to the external
// allow-list, and grants the whitelisted role. A failed external add rolls
// the store append back so the store never claims a name the game server
// does not have.
func (s *Service) SubmitUsername(ctx context.Context, userID, rawUsername string, confirmed bool) error {
	if !confirmed {
		return ErrConfirmationRequired
	}
	username := strings.TrimSpace(rawUsername)
	if !usernamePattern.MatchString(username) {
		return ErrInvalidUsername
	}

	if err := s.store.AddUsername(userID, username); err != nil {
		switch {
		case errors.Is(err, store.ErrUsernameTaken):
			return ErrUsernameTaken
		case errors.Is(err, store.ErrUsernameLinked):
			return ErrAlreadyLinked
		default:
			return err
		}
	}

	if err := s.allowList.Add(ctx, username); err != nil {
		if rbErr := s.store.RemoveUsername(userID, username); rbErr != nil {
			s.logger.Error("rollback failed", slog.String("user_id", userID), slog.String("username", username), slog.Any("error", rbErr))
		}
		return fmt.Errorf("%w: %w", ErrExternalAdd, err)
	}

	if err := s.roles.Grant(ctx, userID, s.whitelistedRoleID); err != nil {
		s.logger.Warn("whitelisted role grant failed", slog.String("user_id", userID), slog.Any("error", err))
	}

	s.logger.Info("username linked", slog.String("user_id", userID), slog.String("username", username))
	return nil
}

// UnlinkAll removes every username linked to userID. The store removal is
// authoritative; role revocation and the batched external removals are
// best effort and the external side is reconciled eventually.
func (s *Service) UnlinkAll(ctx context.Context, userID string) ([]string, error) {
	removed, err := s.store.RemoveAllUsernames(userID)
	if err != nil {
		return nil, err
	}
	if len(removed) == 0 {
		return nil, ErrNothingToRemove
	}

	if err := s.roles.Revoke(ctx, userID, s.whitelistedRoleID); err != nil {
		s.logger.Warn("whitelisted role revoke failed", slog.String("user_id", userID), slog.Any("error", err))
	}

	if err := s.allowList.Remove(ctx, removed...); err != nil {
		s.logger.Warn("external removal failed, store already updated",
			slog.String("user_id", userID),
			slog.Int("usernames", len(removed)),
			slog.Any("error", err))
	}

	s.logger.Info("usernames unlinked", slog.String("user_id", userID), slog.Int("count", len(removed)))
	return removed, nil
}

// UnlinkByUsername resolves the owner of username and unlinks everything
// that owner has. Moderation path.
func (s *Service) UnlinkByUsername(ctx context.Context, username string) (string, []string, error) {
	owner, ok, err := s.store.OwnerOfUsername(strings.TrimSpace(username))
	if err != nil {
		return "", nil, err
	}
	if !ok {
		return "", nil, ErrUsernameNotFound
	}
	removed, err := s.UnlinkAll(ctx, owner)
	return owner, removed, err
}

// Usernames returns the names currently linked to userID.
func (s *Service) Usernames(userID string) ([]string, error) {
	return s.store.Usernames(userID)
}
