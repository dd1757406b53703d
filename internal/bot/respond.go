package bot

import (
	"log/slog"
	"slices"

	"github.com/bwmarrin/discordgo"
)

// reply sends an ephemeral text response to an interaction.
func (s *Service) reply(i *discordgo.InteractionCreate, content string) {
	err := s.session.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: content,
			Flags:   discordgo.MessageFlagsEphemeral,
		},
	})
	if err != nil {
		s.logger.Error("failed to respond to interaction", slog.Any("error", err))
	}
}

// replyPublic sends a response visible to the whole channel.
func (s *Service) replyPublic(i *discordgo.InteractionCreate, content string) {
	err := s.session.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{Content: content},
	})
	if err != nil {
		s.logger.Error("failed to respond to interaction", slog.Any("error", err))
	}
}

// defer acknowledges an interaction so a slow operation can follow up later.
func (s *Service) deferReply(i *discordgo.InteractionCreate) bool {
	err := s.session.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{Flags: discordgo.MessageFlagsEphemeral},
	})
	if err != nil {
		s.logger.Error("failed to defer interaction", slog.Any("error", err))
		return false
	}
	return true
}

// editReply replaces the deferred response with the final content.
func (s *Service) editReply(i *discordgo.InteractionCreate, content string) {
	_, err := s.session.InteractionResponseEdit(i.Interaction, &discordgo.WebhookEdit{
		Content: &content,
	})
	if err != nil {
		s.logger.Error("failed to edit interaction response", slog.Any("error", err))
	}
}

// requireManagement gates moderation commands on the management role.
func (s *Service) requireManagement(i *discordgo.InteractionCreate) bool {
	if slices.Contains(i.Member.Roles, s.cfg.ManagementRoleID) {
		return true
	}
	s.reply(i, ":x: You do not have permission to use this command.")
	return false
}
