package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/leicestercs/societybot/internal/whitelist"
)

const whitelistFailure = "Failed to add you to the whitelist. Please try again later.\n" +
	"You can DM a member of the committee to manually whitelist you."

// verificationGateReply maps a RequestLink failure to the user-facing text.
// Only the verification gate itself names the remedy; internal failures stay
// generic.
func verificationGateReply(err error, verifyChannelID string) string {
	if errors.Is(err, whitelist.ErrVerificationRequired) {
		return fmt.Sprintf("You must complete email verification first. Go to <#%s> or run /verify", verifyChannelID)
	}
	return "Oops! Something went wrong."
}

func (s *Service) handleWhitelist(ctx context.Context, i *discordgo.InteractionCreate) {
	if err := s.whitelist.RequestLink(ctx, i.Member.User.ID); err != nil {
		if !errors.Is(err, whitelist.ErrVerificationRequired) {
			s.logger.Error("whitelist gate check failed", slog.Any("error", err))
		}
		s.reply(i, verificationGateReply(err, s.cfg.VerifyChannelID))
		return
	}

	err := s.session.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseModal,
		Data: &discordgo.InteractionResponseData{
			CustomID: idWhitelistModal,
			Title:    "Minecraft Whitelist",
			Components: []discordgo.MessageComponent{
				discordgo.ActionsRow{Components: []discordgo.MessageComponent{
					discordgo.TextInput{
						CustomID:    inputUsername,
						Label:       "Minecraft Username",
						Style:       discordgo.TextInputShort,
						Placeholder: "⚠️ You are responsible for this account. Must follow rules.",
						Required:    true,
					},
				}},
				discordgo.ActionsRow{Components: []discordgo.MessageComponent{
					discordgo.TextInput{
						CustomID:    inputConfirmation,
						Label:       "Responsibility Confirmation",
						Style:       discordgo.TextInputShort,
						Placeholder: `Type "Yes" to confirm you understand your responsibility.`,
						Required:    true,
					},
				}},
			},
		},
	})
	if err != nil {
		s.logger.Error("failed to open whitelist modal", slog.Any("error", err))
	}
}

func (s *Service) handleUsernameSubmit(ctx context.Context, i *discordgo.InteractionCreate) {
	userID := i.Member.User.ID
	username := strings.TrimSpace(modalValue(i, inputUsername))
	confirmed := strings.EqualFold(strings.TrimSpace(modalValue(i, inputConfirmation)), "yes")

	// the gate is rechecked here since the modal can sit open for a while
	if err := s.whitelist.RequestLink(ctx, userID); err != nil {
		if !errors.Is(err, whitelist.ErrVerificationRequired) {
			s.logger.Error("whitelist gate recheck failed", slog.Any("error", err))
		}
		s.reply(i, verificationGateReply(err, s.cfg.VerifyChannelID))
		return
	}

	// the allow-list call goes out to the game panel, acknowledge first
	if !s.deferReply(i) {
		return
	}

	err := s.whitelist.SubmitUsername(ctx, userID, username, confirmed)
	switch {
	case err == nil:
		s.editReply(i, fmt.Sprintf("Successfully whitelisted `%s`!", username))
	case errors.Is(err, whitelist.ErrConfirmationRequired):
		s.editReply(i, "You didn't type `Yes` in the `Responsibility Confirmation` field.\n"+
			"You must confirm you understand your responsibility to the Minecraft account and agree to the server rules.")
	case errors.Is(err, whitelist.ErrInvalidUsername):
		s.editReply(i, whitelistFailure)
	case errors.Is(err, whitelist.ErrUsernameTaken):
		s.editReply(i, "This Minecraft account is already whitelisted.")
	case errors.Is(err, whitelist.ErrAlreadyLinked):
		s.editReply(i, "You have already linked this Minecraft account.")
	case errors.Is(err, whitelist.ErrExternalAdd):
		s.logger.Error("allow-list add failed", slog.Any("error", err))
		s.editReply(i, whitelistFailure)
	default:
		s.logger.Error("username submission failed", slog.Any("error", err))
		s.editReply(i, "Oops! Something went wrong.")
	}
}

func (s *Service) handleUnwhitelist(ctx context.Context, i *discordgo.InteractionCreate) {
	s.unlinkUser(ctx, i, i.Member.User.ID)
}

func (s *Service) handleModUnwhitelist(ctx context.Context, i *discordgo.InteractionCreate) {
	if !s.requireManagement(i) {
		return
	}

	opts := commandOptions(i)
	member := opts["member"]
	mcUsername := opts["mc-username"]

	switch {
	case member == nil && mcUsername == nil:
		s.reply(i, "You must provide either a Discord account or a Minecraft username.")
	case member != nil && mcUsername != nil:
		s.reply(i, "Please provide either a Discord account or a Minecraft username, not both.")
	case member != nil:
		s.unlinkUser(ctx, i, member.UserValue(nil).ID)
	default:
		name := strings.TrimSpace(mcUsername.StringValue())
		_, removed, err := s.whitelist.UnlinkByUsername(ctx, name)
		switch {
		case err == nil:
			s.reply(i, "Successfully removed whitelisted account(s): "+formatUsernames(removed))
		case errors.Is(err, whitelist.ErrUsernameNotFound):
			s.reply(i, fmt.Sprintf("No user found linked to Minecraft account `%s`.", name))
		default:
			s.logger.Error("mod unwhitelist failed", slog.Any("error", err))
			s.reply(i, "Oops! Something went wrong.")
		}
	}
}

func (s *Service) unlinkUser(ctx context.Context, i *discordgo.InteractionCreate, userID string) {
	removed, err := s.whitelist.UnlinkAll(ctx, userID)
	switch {
	case err == nil:
		s.reply(i, "Successfully removed whitelisted account(s): "+formatUsernames(removed))
	case errors.Is(err, whitelist.ErrNothingToRemove):
		s.reply(i, "No Minecraft accounts found to unwhitelist.")
	default:
		s.logger.Error("unwhitelist failed", slog.Any("error", err))
		s.reply(i, "Oops! Something went wrong.")
	}
}

func formatUsernames(usernames []string) string {
	quoted := make([]string, len(usernames))
	for idx, name := range usernames {
		quoted[idx] = "`" + name + "`"
	}
	return strings.Join(quoted, ", ")
}

func (s *Service) handlePrivacyPolicy(i *discordgo.InteractionCreate) {
	embed := &discordgo.MessageEmbed{
		Title: "Minecraft Whitelist Privacy Policy",
		Color: 0x57F287,
		Fields: []*discordgo.MessageEmbedField{
			{
				Name:  "Data Collected",
				Value: "We collect your Minecraft username and Discord user ID when you use our Minecraft whitelisting system.",
			},
			{
				Name: "Purpose & Usage",
				Value: "This data is used only to:\n" +
					"• Add your Minecraft username to our server whitelist.\n" +
					"• Assist in moderation if necessary (e.g. handling rule violations).",
			},
			{
				Name: "Retention & Expiry",
				Value: "Your Minecraft username and Discord user ID will be stored until your student email verification expires (1 year). " +
					"After that, this data will be removed as part of our regular cleanup process. " +
					"If you are banned from any of our services, your student email may be retained indefinitely to prevent re-registration.",
			},
			{
				Name: "Data Removal",
				Value: "You may use `/unwhitelist` at any time to remove your Minecraft username and associated data. " +
					"You may also use `/unverify` to remove your student email and its associated data.",
			},
			{
				Name: "Data Access",
				Value: "Your data is only accessible to current members of the committee and the designated data handler for security and administration purposes. " +
					"It will not be shared with third parties.",
			},
		},
		Footer: &discordgo.MessageEmbedFooter{Text: "LeicesterMC Privacy Policy"},
	}
	err := s.session.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Embeds: []*discordgo.MessageEmbed{embed},
			Flags:  discordgo.MessageFlagsEphemeral,
		},
	})
	if err != nil {
		s.logger.Error("failed to send privacy policy", slog.Any("error", err))
	}
}

func (s *Service) handleUpdateWhitelistMessage(i *discordgo.InteractionCreate) {
	if !s.requireManagement(i) {
		return
	}
	channelID := s.cfg.WhitelistChannelID
	if channelID == "" {
		s.reply(i, ":x: Channel not found.")
		return
	}

	embed := &discordgo.MessageEmbed{
		Title: "Minecraft Whitelist",
		Description: "To whitelist a Minecraft username on the server, click the start button below. " +
			"You must ensure that the player follows all of our server rules, as you will be responsible for their actions. " +
			fmt.Sprintf("Your student email must be verified to use this feature. Please see <#%s> for more information.", s.cfg.VerifyChannelID),
		Color: 0x57F287,
		Fields: []*discordgo.MessageEmbedField{
			{
				Name: "Consent",
				Value: ":warning: By completing the whitelisting process, you consent to the collection and processing " +
					"of this data as described in the privacy policy button.",
			},
		},
		Footer: &discordgo.MessageEmbedFooter{Text: "LeicesterMC Whitelist"},
	}
	_, err := s.session.ChannelMessageSendComplex(channelID, &discordgo.MessageSend{
		Embed: embed,
		Components: []discordgo.MessageComponent{
			discordgo.ActionsRow{Components: []discordgo.MessageComponent{
				discordgo.Button{Label: "Start", Style: discordgo.SuccessButton, CustomID: idWhitelistStart},
				discordgo.Button{Label: "Privacy Policy", Style: discordgo.SecondaryButton, CustomID: idPrivacyPolicy},
			}},
		},
	})
	if err != nil {
		s.logger.Error("failed to post whitelist message", slog.Any("error", err))
		s.reply(i, "Oops! Something went wrong.")
		return
	}
	s.reply(i, fmt.Sprintf("🔲 Whitelist message updated in <#%s>.", channelID))
}
