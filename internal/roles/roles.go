// Package roles wraps the platform's role and membership API so workflows
// depend on a narrow interface rather than a gateway session.
package roles

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/bwmarrin/discordgo"
)

// Manager grants and revokes roles and answers membership queries for one
// guild.
type Manager interface {
	Grant(ctx context.Context, userID, roleID string) error
	Revoke(ctx context.Context, userID string, roleIDs ...string) error
	HasRole(ctx context.Context, userID, roleID string) (bool, error)
	HasAnyRole(ctx context.Context, userID string, roleIDs ...string) (bool, error)
}

// DiscordManager implements Manager over a discordgo session.
type DiscordManager struct {
	session *discordgo.Session
	guildID string
	logger  *slog.Logger
}

// NewDiscordManager binds a manager to the configured guild.
func NewDiscordManager(log *slog.Logger, session *discordgo.Session, guildID string) *DiscordManager {
	if log == nil {
		log = slog.Default()
	}
	return &DiscordManager{
		session: session,
		guildID: guildID,
		logger:  log.With(slog.String("service", "roles")),
	}
}

// Grant adds roleID to the member.
func (m *DiscordManager) Grant(ctx context.Context, userID, roleID string) error {
	if err := m.session.GuildMemberRoleAdd(m.guildID, userID, roleID, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("grant role %s to %s: %w", roleID, userID, err)
	}
	m.logger.Info("role granted", slog.String("user_id", userID), slog.String("role_id", roleID))
	return nil
}

// Revoke removes each role the member actually holds. Roles the member does
// not hold are skipped silently; a member who left the guild is an error
// the caller decides how to treat.
func (m *DiscordManager) Revoke(ctx context.Context, userID string, roleIDs ...string) error {
	member, err := m.session.GuildMember(m.guildID, userID, discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("fetch member %s: %w", userID, err)
	}
	for _, roleID := range roleIDs {
		if !slices.Contains(member.Roles, roleID) {
			continue
		}
		if err := m.session.GuildMemberRoleRemove(m.guildID, userID, roleID, discordgo.WithContext(ctx)); err != nil {
			return fmt.Errorf("revoke role %s from %s: %w", roleID, userID, err)
		}
		m.logger.Info("role revoked", slog.String("user_id", userID), slog.String("role_id", roleID))
	}
	return nil
}

// HasRole reports whether the member currently holds roleID.
func (m *DiscordManager) HasRole(ctx context.Context, userID, roleID string) (bool, error) {
	return m.HasAnyRole(ctx, userID, roleID)
}

// HasAnyRole reports whether the member holds at least one of roleIDs.
func (m *DiscordManager) HasAnyRole(ctx context.Context, userID string, roleIDs ...string) (bool, error) {
	member, err := m.session.GuildMember(m.guildID, userID, discordgo.WithContext(ctx))
	if err != nil {
		return false, fmt.Errorf("fetch member %s: %w", userID, err)
	}
	for _, roleID := range roleIDs {
		if slices.Contains(member.Roles, roleID) {
			return true, nil
		}
	}
	return false, nil
}
