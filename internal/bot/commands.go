package bot

import (
	"context"
	"log/slog"
	"time"

	"github.com/bwmarrin/discordgo"
)

// Component and modal identifiers. The button IDs are stable because the
// verify and whitelist prompt messages persist across restarts.
const (
	idVerifyStart     = "verify_start"
	idVerifyReady     = "verify_ready"
	idEmailModal      = "verify_email_modal"
	idCodeModal       = "verify_code_modal"
	idWhitelistStart  = "whitelist_start"
	idPrivacyPolicy   = "whitelist_privacy"
	idWhitelistModal  = "whitelist_modal"
	inputEmail        = "email"
	inputCode         = "code"
	inputUsername     = "username"
	inputConfirmation = "confirmation"
)

func commandDefinitions() []*discordgo.ApplicationCommand {
	return []*discordgo.ApplicationCommand{
		{Name: "verify", Description: "Verify your student email address"},
		{Name: "unverify", Description: "Remove your verification and all linked data"},
		{Name: "whitelist", Description: "Link a Minecraft account & whitelist it"},
		{Name: "unwhitelist", Description: "Remove your Minecraft accounts from the whitelist"},
		{
			Name:        "mod-unwhitelist",
			Description: "(Mod) Remove a member's Minecraft accounts from the whitelist",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionUser,
					Name:        "member",
					Description: "The member to unwhitelist",
				},
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "mc-username",
					Description: "A Minecraft username to unwhitelist by",
				},
			},
		},
		{
			Name:        "lookup",
			Description: "(Mod) Look up a member's verification and whitelist records",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionUser,
					Name:        "member",
					Description: "The member to look up",
				},
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "mc-username",
					Description: "A Minecraft username to look up by",
				},
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "email",
					Description: "An email address to look up by",
				},
			},
		},
		{
			Name:        "ban",
			Description: "(Mod) Ban an email address from verification",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "email",
					Description: "The email address to ban",
					Required:    true,
				},
			},
		},
		{Name: "mcstatus", Description: "Check the status of the Minecraft server"},
		{Name: "ping", Description: "Get the bot's response time"},
		{Name: "uptime", Description: "See how long the bot has been running"},
		{Name: "update-verify-message", Description: "(Mod) Repost the verify prompt in the verify channel"},
		{Name: "update-whitelist-message", Description: "(Mod) Repost the whitelist prompt in the verify channel"},
	}
}

func (s *Service) onInteraction(_ *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.Member == nil || i.Member.User == nil {
		// guild-only surface, ignore DMs
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	switch i.Type {
	case discordgo.InteractionApplicationCommand:
		s.dispatchCommand(ctx, i)
	case discordgo.InteractionMessageComponent:
		s.dispatchComponent(ctx, i)
	case discordgo.InteractionModalSubmit:
		s.dispatchModal(ctx, i)
	}
}

func (s *Service) dispatchCommand(ctx context.Context, i *discordgo.InteractionCreate) {
	name := i.ApplicationCommandData().Name
	log := s.logger.With(
		slog.String("command", name),
		slog.String("user_id", i.Member.User.ID),
	)

	switch name {
	case "verify":
		s.handleVerify(ctx, i)
	case "unverify":
		s.handleUnverify(ctx, i)
	case "whitelist":
		s.handleWhitelist(ctx, i)
	case "unwhitelist":
		s.handleUnwhitelist(ctx, i)
	case "mod-unwhitelist":
		s.handleModUnwhitelist(ctx, i)
	case "lookup":
		s.handleLookup(ctx, i)
	case "ban":
		s.handleBan(ctx, i)
	case "mcstatus":
		s.handleMCStatus(ctx, i)
	case "ping":
		s.handlePing(i)
	case "uptime":
		s.handleUptime(i)
	case "update-verify-message":
		s.handleUpdateVerifyMessage(i)
	case "update-whitelist-message":
		s.handleUpdateWhitelistMessage(i)
	default:
		log.Warn("unknown command")
	}
}

func (s *Service) dispatchComponent(ctx context.Context, i *discordgo.InteractionCreate) {
	switch i.MessageComponentData().CustomID {
	case idVerifyStart:
		s.handleVerify(ctx, i)
	case idVerifyReady:
		s.handleVerifyReady(i)
	case idWhitelistStart:
		s.handleWhitelist(ctx, i)
	case idPrivacyPolicy:
		s.handlePrivacyPolicy(i)
	}
}

func (s *Service) dispatchModal(ctx context.Context, i *discordgo.InteractionCreate) {
	switch i.ModalSubmitData().CustomID {
	case idEmailModal:
		s.handleEmailSubmit(ctx, i)
	case idCodeModal:
		s.handleCodeSubmit(ctx, i)
	case idWhitelistModal:
		s.handleUsernameSubmit(ctx, i)
	}
}

// commandOptions flattens the options of a slash command by name.
func commandOptions(i *discordgo.InteractionCreate) map[string]*discordgo.ApplicationCommandInteractionDataOption {
	opts := i.ApplicationCommandData().Options
	byName := make(map[string]*discordgo.ApplicationCommandInteractionDataOption, len(opts))
	for _, opt := range opts {
		byName[opt.Name] = opt
	}
	return byName
}

// modalValue extracts a text input value from a modal submission.
func modalValue(i *discordgo.InteractionCreate, customID string) string {
	for _, row := range i.ModalSubmitData().Components {
		actions, ok := row.(*discordgo.ActionsRow)
		if !ok {
			continue
		}
		for _, comp := range actions.Components {
			input, ok := comp.(*discordgo.TextInput)
			if ok && input.CustomID == customID {
				return input.Value
			}
		}
	}
	return ""
}
