// Package reaper expires stale verifications on a schedule and tears down
// everything that hung off them.
package reaper

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/leicestercs/societybot/internal/roles"
	"github.com/leicestercs/societybot/internal/store"
	"github.com/leicestercs/societybot/internal/whitelist"
)

// Unlinker removes every whitelist username a user holds.
type Unlinker interface {
	UnlinkAll(ctx context.Context, userID string) ([]string, error)
}

type Service struct {
	store         *store.Store
	unlinker      Unlinker
	roles         roles.Manager
	revokeRoleIDs []string
	schedule      string
	cron          *cron.Cron
	logger        *slog.Logger

	sweeping sync.Mutex
	now      func() time.Time
}

// NewService builds a reaper that revokes revokeRoleIDs from each expired
// user on top of unlinking their usernames.
func NewService(log *slog.Logger, st *store.Store, unlinker Unlinker, roleManager roles.Manager, schedule string, revokeRoleIDs []string) *Service {
	return &Service{
		store:         st,
		unlinker:      unlinker,
		roles:         roleManager,
		revokeRoleIDs: revokeRoleIDs,
		schedule:      schedule,
		cron:          cron.New(),
		logger:        log.With(slog.String("service", "reaper")),
		now:           time.Now,
	}
}

// Start registers the sweep on the configured cron schedule and starts the
// scheduler. A sweep that is still running when the next tick fires is not
// doubled up.
func (s *Service) Start() error {
	_, err := s.cron.AddFunc(s.schedule, func() {
		if err := s.Sweep(context.Background()); err != nil {
			s.logger.Error("scheduled sweep failed", slog.Any("error", err))
		}
	})
	if err != nil {
		return err
	}
	s.cron.Start()
	s.logger.Info("reaper started", slog.String("schedule", s.schedule))
	return nil
}

// Stop halts the scheduler and waits for an in-flight sweep to finish.
func (s *Service) Stop(ctx context.Context) error {
	stopped := s.cron.Stop()
	select {
	case <-stopped.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Sweep removes every expired verification record along with the user's
// whitelist entries and roles. A failure on one user is logged and does not
// stop the rest of the sweep. Calling Sweep while another sweep is running
// returns immediately.
func (s *Service) Sweep(ctx context.Context) error {
	if !s.sweeping.TryLock() {
		s.logger.Warn("sweep already in progress, skipping")
		return nil
	}
	defer s.sweeping.Unlock()

	expired, err := s.store.ListExpired(s.now())
	if err != nil {
		return err
	}
	if len(expired) == 0 {
		return nil
	}
	s.logger.Info("sweeping expired verifications", slog.Int("count", len(expired)))

	for _, userID := range expired {
		s.reap(ctx, userID)
	}
	return nil
}

func (s *Service) reap(ctx context.Context, userID string) {
	log := s.logger.With(slog.String("user_id", userID))

	// a user-initiated unverify must not interleave with the same teardown
	unlock := s.store.LockUser(userID)
	defer unlock()

	if _, err := s.store.DeleteVerification(userID); err != nil {
		log.Warn("failed to delete expired verification", slog.Any("error", err))
		return
	}

	removed, err := s.unlinker.UnlinkAll(ctx, userID)
	if err != nil && !errors.Is(err, whitelist.ErrNothingToRemove) {
		log.Warn("failed to unlink usernames", slog.Any("error", err))
	}

	if err := s.roles.Revoke(ctx, userID, s.revokeRoleIDs...); err != nil {
		log.Warn("failed to revoke roles", slog.Any("error", err))
	}

	log.Info("reaped expired verification", slog.Int("usernames_removed", len(removed)))
}
