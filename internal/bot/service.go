// Package bot exposes the society's features on Discord through slash
// commands, buttons, and modals.
package bot

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/leicestercs/societybot/internal/config"
	"github.com/leicestercs/societybot/internal/mcping"
	"github.com/leicestercs/societybot/internal/roles"
	"github.com/leicestercs/societybot/internal/verify"
	"github.com/leicestercs/societybot/internal/whitelist"
)

type Service struct {
	session   *discordgo.Session
	verify    *verify.Service
	whitelist *whitelist.Service
	roles     roles.Manager
	pinger    *mcping.Pinger
	cfg       config.DiscordConfig
	cooldowns *cooldowns
	started   time.Time
	logger    *slog.Logger
}

func NewService(log *slog.Logger, session *discordgo.Session, verifySvc *verify.Service, whitelistSvc *whitelist.Service, roleManager roles.Manager, pinger *mcping.Pinger, cfg config.DiscordConfig) *Service {
	return &Service{
		session:   session,
		verify:    verifySvc,
		whitelist: whitelistSvc,
		roles:     roleManager,
		pinger:    pinger,
		cfg:       cfg,
		cooldowns: newCooldowns(30*time.Second, 3),
		logger:    log.With(slog.String("service", "bot")),
	}
}

// Start opens the gateway session and overwrites the guild's slash commands
// with the current set.
func (s *Service) Start(ctx context.Context) error {
	s.session.Identify.Intents = discordgo.IntentsGuilds | discordgo.IntentsGuildMessages

	s.session.AddHandler(func(_ *discordgo.Session, r *discordgo.Ready) {
		s.logger.Info("gateway ready",
			slog.String("username", r.User.Username),
			slog.Int("guilds", len(r.Guilds)),
		)
	})
	s.session.AddHandler(s.onInteraction)

	if err := s.session.Open(); err != nil {
		return fmt.Errorf("open gateway session: %w", err)
	}
	s.started = time.Now()

	appID := s.session.State.User.ID
	if _, err := s.session.ApplicationCommandBulkOverwrite(appID, s.cfg.GuildID, commandDefinitions()); err != nil {
		return fmt.Errorf("register commands: %w", err)
	}
	s.logger.Info("commands registered", slog.String("guild_id", s.cfg.GuildID))
	return nil
}

// Stop closes the gateway session.
func (s *Service) Stop(_ context.Context) error {
	return s.session.Close()
}
