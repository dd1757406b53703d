package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/leicestercs/societybot/internal/verify"
)

var welcomeMessages = []string{
	"Glad to have you here %s",
	"Welcome to the show %s",
	"%s joined. This is gonna be epic.",
	"Hey %s, great to see you!",
	"%s just landed in the server!",
	"Everyone, give a warm welcome to %s!",
	"Look who's here! %s, welcome!",
	"A wild %s appeared!",
	"%s has entered the chat. Brace yourselves!",
}

func (s *Service) handleVerify(ctx context.Context, i *discordgo.InteractionCreate) {
	held, err := s.roles.HasAnyRole(ctx, i.Member.User.ID, s.verify.VerifiedRoleIDs()...)
	if err != nil {
		s.logger.Warn("role check failed", slog.Any("error", err))
	}
	if held {
		s.reply(i, "You have already verified!")
		return
	}

	err = s.session.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseModal,
		Data: &discordgo.InteractionResponseData{
			CustomID: idEmailModal,
			Title:    "Enter Uni Email",
			Components: []discordgo.MessageComponent{
				discordgo.ActionsRow{Components: []discordgo.MessageComponent{
					discordgo.TextInput{
						CustomID:    inputEmail,
						Label:       "Email",
						Style:       discordgo.TextInputShort,
						Placeholder: "Your uni email here...",
						Required:    true,
					},
				}},
			},
		},
	})
	if err != nil {
		s.logger.Error("failed to open email modal", slog.Any("error", err))
	}
}

func (s *Service) handleEmailSubmit(ctx context.Context, i *discordgo.InteractionCreate) {
	userID := i.Member.User.ID
	if !s.cooldowns.Allow(userID) {
		s.reply(i, ":stopwatch: Slow down! Please wait before requesting another code.")
		return
	}

	// sending the email can take a while, acknowledge first
	if !s.deferReply(i) {
		return
	}

	err := s.verify.SubmitEmail(ctx, userID, modalValue(i, inputEmail))
	switch {
	case err == nil:
		components := []discordgo.MessageComponent{
			discordgo.ActionsRow{Components: []discordgo.MessageComponent{
				discordgo.Button{
					Label:    "I Have It",
					Style:    discordgo.SuccessButton,
					CustomID: idVerifyReady,
				},
			}},
		}
		content := ":thumbsup: An email has been sent to the address you entered. Please press the button when you're ready"
		_, editErr := s.session.InteractionResponseEdit(i.Interaction, &discordgo.WebhookEdit{
			Content:    &content,
			Components: &components,
		})
		if editErr != nil {
			s.logger.Error("failed to edit interaction response", slog.Any("error", editErr))
		}
	case errors.Is(err, verify.ErrInvalidEmail):
		s.editReply(i, "Oops! Please enter a valid email")
	case errors.Is(err, verify.ErrDisallowedDomain):
		s.editReply(i, "Oops! You must use your student email.")
	case errors.Is(err, verify.ErrEmailBanned):
		s.editReply(i, "Oops! This email address cannot be used for verification.")
	case errors.Is(err, verify.ErrAlreadyVerified):
		s.editReply(i, "You have already verified!")
	default:
		s.logger.Error("email submission failed", slog.Any("error", err))
		s.editReply(i, "Oops! Something went wrong.")
	}
}

func (s *Service) handleVerifyReady(i *discordgo.InteractionCreate) {
	err := s.session.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseModal,
		Data: &discordgo.InteractionResponseData{
			CustomID: idCodeModal,
			Title:    "Enter the Code",
			Components: []discordgo.MessageComponent{
				discordgo.ActionsRow{Components: []discordgo.MessageComponent{
					discordgo.TextInput{
						CustomID:    inputCode,
						Label:       "Code",
						Style:       discordgo.TextInputShort,
						Placeholder: "Enter your code here...",
						Required:    true,
					},
				}},
			},
		},
	})
	if err != nil {
		s.logger.Error("failed to open code modal", slog.Any("error", err))
	}
}

func (s *Service) handleCodeSubmit(ctx context.Context, i *discordgo.InteractionCreate) {
	userID := i.Member.User.ID

	res, err := s.verify.SubmitCode(ctx, userID, strings.TrimSpace(modalValue(i, inputCode)))
	switch {
	case err == nil:
	case errors.Is(err, verify.ErrNoChallenge):
		s.reply(i, "Oops! There is no code waiting for you. Run /verify to start again.")
		return
	case errors.Is(err, verify.ErrWrongCode):
		s.reply(i, "Oops! You entered the wrong code")
		return
	default:
		s.logger.Error("code submission failed", slog.Any("error", err))
		s.reply(i, "Oops! Something went wrong.")
		return
	}

	s.reply(i, fmt.Sprintf("You were given the <@&%s> role", res.RoleID))

	if s.cfg.GeneralChannelID != "" {
		welcome := fmt.Sprintf(welcomeMessages[rand.Intn(len(welcomeMessages))], "<@"+userID+">")
		if _, err := s.session.ChannelMessageSend(s.cfg.GeneralChannelID, welcome); err != nil {
			s.logger.Warn("failed to send welcome message", slog.Any("error", err))
		}
	}
}

func (s *Service) handleUnverify(ctx context.Context, i *discordgo.InteractionCreate) {
	err := s.verify.Unverify(ctx, i.Member.User.ID)
	switch {
	case err == nil:
		s.reply(i, ":white_check_mark: Your verification and all linked data have been removed.")
	case errors.Is(err, verify.ErrNotVerified):
		s.reply(i, "You are not verified.")
	default:
		s.logger.Error("unverify failed", slog.Any("error", err))
		s.reply(i, "Oops! Something went wrong.")
	}
}

func (s *Service) handleUpdateVerifyMessage(i *discordgo.InteractionCreate) {
	if !s.requireManagement(i) {
		return
	}
	if s.cfg.VerifyChannelID == "" {
		s.reply(i, ":x: Channel not found.")
		return
	}

	embed := &discordgo.MessageEmbed{
		Title: "Email Verification",
		Description: "To be able to talk in the server you must verify your student email address.\n" +
			"This was made necessary due to bots.\n\nThis is a simple process that only takes a few minutes.",
	}
	_, err := s.session.ChannelMessageSendComplex(s.cfg.VerifyChannelID, &discordgo.MessageSend{
		Embed: embed,
		Components: []discordgo.MessageComponent{
			discordgo.ActionsRow{Components: []discordgo.MessageComponent{
				discordgo.Button{Label: "Verify", Style: discordgo.SuccessButton, CustomID: idVerifyStart},
			}},
		},
	})
	if err != nil {
		s.logger.Error("failed to post verify message", slog.Any("error", err))
		s.reply(i, "Oops! Something went wrong.")
		return
	}
	s.reply(i, fmt.Sprintf("🔲 Verify message updated in <#%s>.", s.cfg.VerifyChannelID))
}
