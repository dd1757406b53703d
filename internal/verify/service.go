// Package verify orchestrates the student-email verification workflow:
// domain validation, one-time-code challenges, record commit, unverify,
// ban enforcement, and identity lookup.
package verify

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/leicestercs/societybot/internal/mailer"
	"github.com/leicestercs/societybot/internal/roles"
	"github.com/leicestercs/societybot/internal/store"
	"github.com/leicestercs/societybot/internal/whitelist"
)

var emailPattern = regexp.MustCompile(`^[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,7}$`)

// Service runs verification attempts. Pending challenges are held in
// memory only; a restart simply makes the user retry.
type Service struct {
	store     *store.Store
	mailer    mailer.Sender
	roles     roles.Manager
	unlinker  Unlinker
	domains   map[string]string
	codeTTL   time.Duration
	recordTTL time.Duration
	logger    *slog.Logger

	mu      sync.Mutex
	pending map[string]challenge

	// overridable for tests
	now     func() time.Time
	newCode func() (int, error)
}

// NewService wires the workflow. domains maps an allowed email domain to
// the role granted for it.
func NewService(log *slog.Logger, st *store.Store, sender mailer.Sender, roleManager roles.Manager, unlinker Unlinker, domains map[string]string, codeTTL, recordTTL time.Duration) *Service {
	if log == nil {
		log = slog.Default()
	}
	normalized := make(map[string]string, len(domains))
	for domain, roleID := range domains {
		normalized[strings.ToLower(domain)] = roleID
	}
	return &Service{
		store:     st,
		mailer:    sender,
		roles:     roleManager,
		unlinker:  unlinker,
		domains:   normalized,
		codeTTL:   codeTTL,
		recordTTL: recordTTL,
		logger:    log.With(slog.String("service", "verify")),
		pending:   map[string]challenge{},
		now:       time.Now,
		newCode:   randomCode,
	}
}

// VerifiedRoleIDs returns every role a verified user may hold, one per
// domain bucket.
func (s *Service) VerifiedRoleIDs() []string {
	seen := map[string]bool{}
	var ids []string
	for _, id := range s.domains {
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	return ids
}

// SubmitEmail validates the address, issues a one-time code, and mails it.
// On success a pending challenge replaces any earlier one for the user.
func (s *Service) SubmitEmail(ctx context.Context, userID, rawEmail string) error {
	email := strings.ToLower(strings.TrimSpace(rawEmail))
	if !emailPattern.MatchString(email) {
		return ErrInvalidEmail
	}
	domain := email[strings.LastIndex(email, "@")+1:]
	roleID, ok := s.domains[domain]
	if !ok {
		return ErrDisallowedDomain
	}

	banned, err := s.store.IsBanned(email)
	if err != nil {
		return err
	}
	if banned {
		return ErrEmailBanned
	}

	if rec, ok, err := s.store.GetVerification(userID); err != nil {
		return err
	} else if ok && !rec.Expired(s.now()) {
		return ErrAlreadyVerified
	}

	code, err := s.newCode()
	if err != nil {
		return fmt.Errorf("generate code: %w", err)
	}
	if err := s.mailer.Send(ctx, email, fmt.Sprintf("%05d", code)); err != nil {
		// no challenge is retained on delivery failure
		return fmt.Errorf("%w: %w", ErrMailDelivery, err)
	}

	s.mu.Lock()
	s.pending[userID] = challenge{
		code:     code,
		email:    email,
		roleID:   roleID,
		issuedAt: s.now(),
	}
	s.mu.Unlock()

	s.logger.Info("challenge issued", slog.String("user_id", userID), slog.String("domain", domain))
	return nil
}

// SubmitCode completes an outstanding challenge. A mismatch keeps the
// challenge live for another try; a match commits the record and grants
// the resolved role.
func (s *Service) SubmitCode(ctx context.Context, userID, rawCode string) (Result, error) {
	s.mu.Lock()
	ch, ok := s.pending[userID]
	if ok && s.codeTTL > 0 && s.now().Sub(ch.issuedAt) > s.codeTTL {
		delete(s.pending, userID)
		ok = false
	}
	s.mu.Unlock()
	if !ok {
		return Result{}, ErrNoChallenge
	}

	submitted, err := strconv.Atoi(strings.TrimSpace(rawCode))
	if err != nil || submitted != ch.code {
		return Result{}, ErrWrongCode
	}

	now := s.now()
	rec := store.VerificationRecord{
		UserID:    userID,
		Email:     ch.email,
		IssuedAt:  now,
		ExpiresAt: now.Add(s.recordTTL),
	}
	if err := s.store.PutVerification(rec); err != nil {
		return Result{}, err
	}

	s.mu.Lock()
	delete(s.pending, userID)
	s.mu.Unlock()

	if err := s.roles.Grant(ctx, userID, ch.roleID); err != nil {
		// the record is committed; the grant can be retried by a moderator
		s.logger.Warn("role grant failed after commit", slog.String("user_id", userID), slog.Any("error", err))
	}

	s.logger.Info("user verified", slog.String("user_id", userID), slog.String("email", ch.email))
	return Result{RoleID: ch.roleID, Email: ch.email}, nil
}

// Unverify removes the user's record, cascades into whitelist removal, and
// revokes the verification roles. Calling it again yields ErrNotVerified.
func (s *Service) Unverify(ctx context.Context, userID string) error {
	unlock := s.store.LockUser(userID)
	defer unlock()

	deleted, err := s.store.DeleteVerification(userID)
	if err != nil {
		return err
	}
	if !deleted {
		return ErrNotVerified
	}

	if _, err := s.unlinker.UnlinkAll(ctx, userID); err != nil && !errors.Is(err, whitelist.ErrNothingToRemove) {
		s.logger.Warn("whitelist cascade failed", slog.String("user_id", userID), slog.Any("error", err))
	}

	if err := s.roles.Revoke(ctx, userID, s.VerifiedRoleIDs()...); err != nil {
		s.logger.Warn("role revoke failed", slog.String("user_id", userID), slog.Any("error", err))
	}

	s.logger.Info("user unverified", slog.String("user_id", userID))
	return nil
}

// Ban adds the email to the ban list and, when a verified user currently
// holds it, cascade-unverifies that user.
func (s *Service) Ban(ctx context.Context, rawEmail string) error {
	email := strings.ToLower(strings.TrimSpace(rawEmail))
	added, err := s.store.AddBan(email)
	if err != nil {
		return err
	}
	if !added {
		return ErrAlreadyBanned
	}

	userID, ok, err := s.store.FindByEmail(email)
	if err != nil {
		return err
	}
	if ok {
		if err := s.Unverify(ctx, userID); err != nil && !errors.Is(err, ErrNotVerified) {
			return fmt.Errorf("cascade unverify %s: %w", userID, err)
		}
	}

	s.logger.Info("email banned", slog.String("email", email))
	return nil
}

// Lookup resolves an identity by user id, username, or email, in that
// precedence, and returns the combined read-only view. A filter that
// matches nothing falls through to the next one.
func (s *Service) Lookup(_ context.Context, q Query) (View, error) {
	if userID := strings.TrimSpace(q.UserID); userID != "" {
		view, ok, err := s.viewOf(userID)
		if err != nil {
			return View{}, err
		}
		if ok {
			return view, nil
		}
	}
	if username := strings.TrimSpace(q.Username); username != "" {
		owner, ok, err := s.store.OwnerOfUsername(username)
		if err != nil {
			return View{}, err
		}
		if ok {
			view, _, err := s.viewOf(owner)
			return view, err
		}
	}
	if email := strings.TrimSpace(q.Email); email != "" {
		owner, ok, err := s.store.FindByEmail(strings.ToLower(email))
		if err != nil {
			return View{}, err
		}
		if ok {
			view, _, err := s.viewOf(owner)
			return view, err
		}
	}
	return View{}, ErrNotFound
}

// viewOf builds the cross-reference for userID. ok is false when the user
// has neither a verification record nor linked usernames.
func (s *Service) viewOf(userID string) (View, bool, error) {
	view := View{UserID: userID}
	if rec, ok, err := s.store.GetVerification(userID); err != nil {
		return View{}, false, err
	} else if ok {
		view.Email = rec.Email
		view.ExpiresAt = rec.ExpiresAt
	}
	usernames, err := s.store.Usernames(userID)
	if err != nil {
		return View{}, false, err
	}
	view.Usernames = usernames

	if view.Email == "" && len(view.Usernames) == 0 {
		return View{}, false, nil
	}
	return view, true, nil
}

func randomCode() (int, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(100000))
	if err != nil {
		return 0, err
	}
	return int(n.Int64()), nil
}
