package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/leicestercs/societybot/internal/verify"
)

func (s *Service) handleLookup(ctx context.Context, i *discordgo.InteractionCreate) {
	if !s.requireManagement(i) {
		return
	}

	opts := commandOptions(i)
	query := verify.Query{}
	if opt, ok := opts["member"]; ok {
		query.UserID = opt.UserValue(nil).ID
	}
	if opt, ok := opts["mc-username"]; ok {
		query.Username = strings.TrimSpace(opt.StringValue())
	}
	if opt, ok := opts["email"]; ok {
		query.Email = strings.TrimSpace(opt.StringValue())
	}
	if query.UserID == "" && query.Username == "" && query.Email == "" {
		s.reply(i, "You must provide a Discord account, a Minecraft username, or an email address.")
		return
	}

	view, err := s.verify.Lookup(ctx, query)
	switch {
	case errors.Is(err, verify.ErrNotFound):
		s.reply(i, "No records found.")
		return
	case err != nil:
		s.logger.Error("lookup failed", slog.Any("error", err))
		s.reply(i, "Oops! Something went wrong.")
		return
	}

	email := view.Email
	if email == "" {
		email = "not verified"
	}
	usernames := "none"
	if len(view.Usernames) > 0 {
		usernames = formatUsernames(view.Usernames)
	}
	expires := "n/a"
	if !view.ExpiresAt.IsZero() {
		expires = fmt.Sprintf("<t:%d:D>", view.ExpiresAt.Unix())
	}

	embed := &discordgo.MessageEmbed{
		Title: "Member Lookup",
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Discord", Value: fmt.Sprintf("<@%s>", view.UserID), Inline: true},
			{Name: "Email", Value: email, Inline: true},
			{Name: "Verification Expires", Value: expires, Inline: true},
			{Name: "Minecraft Accounts", Value: usernames},
		},
	}
	err = s.session.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Embeds: []*discordgo.MessageEmbed{embed},
			Flags:  discordgo.MessageFlagsEphemeral,
		},
	})
	if err != nil {
		s.logger.Error("failed to send lookup result", slog.Any("error", err))
	}
}

func (s *Service) handleBan(ctx context.Context, i *discordgo.InteractionCreate) {
	if !s.requireManagement(i) {
		return
	}

	opt, ok := commandOptions(i)["email"]
	if !ok {
		s.reply(i, "You must provide an email address.")
		return
	}
	email := strings.TrimSpace(opt.StringValue())

	// tearing down the current holder can involve the game panel
	if !s.deferReply(i) {
		return
	}

	err := s.verify.Ban(ctx, email)
	switch {
	case err == nil:
		s.editReply(i, fmt.Sprintf(":hammer: `%s` is banned from verification. Any existing verification and whitelist entries were removed.", email))
	case errors.Is(err, verify.ErrAlreadyBanned):
		s.editReply(i, fmt.Sprintf("`%s` is already banned.", email))
	default:
		s.logger.Error("ban failed", slog.Any("error", err))
		s.editReply(i, "Oops! Something went wrong.")
	}
}
