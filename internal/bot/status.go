package bot

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/bwmarrin/discordgo"
)

func (s *Service) handleMCStatus(ctx context.Context, i *discordgo.InteractionCreate) {
	status := s.pinger.Ping(ctx)

	statusText := "🔴 Offline"
	color := 0xED4245
	version := status.Version
	if status.Online {
		statusText = "🟢 Online"
		color = 0x57F287
	}
	if version == "" {
		version = "Unknown"
	}

	embed := &discordgo.MessageEmbed{
		Title: "🎮 LeicesterMC Server Status",
		Color: color,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Address", Value: s.pinger.Host()},
			{Name: "Version", Value: version, Inline: true},
			{Name: "Status", Value: statusText, Inline: true},
			{Name: "Players", Value: fmt.Sprintf("%d/%d", status.PlayersOnline, status.PlayersMax), Inline: true},
		},
	}
	err := s.session.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Embeds: []*discordgo.MessageEmbed{embed},
		},
	})
	if err != nil {
		s.logger.Error("failed to send server status", slog.Any("error", err))
	}
}

func (s *Service) handlePing(i *discordgo.InteractionCreate) {
	latency := s.session.HeartbeatLatency().Round(time.Millisecond)
	s.replyPublic(i, fmt.Sprintf(":stopwatch: Ping: **%d ms**", latency.Milliseconds()))
}

func (s *Service) handleUptime(i *discordgo.InteractionCreate) {
	uptime := time.Since(s.started).Round(time.Second)
	s.replyPublic(i, fmt.Sprintf(":clock1: Up for **%s** (since <t:%d:f>)", uptime, s.started.Unix()))
}
