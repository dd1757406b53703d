// Package mcping queries a Minecraft server's status over the Server List
// Ping protocol. An unreachable or misbehaving server is reported as
// offline, never as an error.
package mcping

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"strconv"
	"time"

	"github.com/leicestercs/societybot/internal/config"
)

// Status is the outcome of a ping.
type Status struct {
	Online        bool   `json:"online"`
	Version       string `json:"version"`
	PlayersOnline int    `json:"players_online"`
	PlayersMax    int    `json:"players_max"`
}

// Pinger queries one configured server.
type Pinger struct {
	host    string
	port    uint16
	timeout time.Duration
	logger  *slog.Logger
}

// NewPinger builds a pinger from config.
func NewPinger(log *slog.Logger, cfg config.MinecraftConfig) *Pinger {
	if log == nil {
		log = slog.Default()
	}
	return &Pinger{
		host:    cfg.Host,
		port:    uint16(cfg.Port),
		timeout: cfg.Timeout.Std(),
		logger:  log.With(slog.String("service", "mcping")),
	}
}

// Host returns the configured server host.
func (p *Pinger) Host() string { return p.host }

// Ping performs the status exchange. Any failure along the way yields an
// offline Status.
func (p *Pinger) Ping(ctx context.Context) Status {
	addr := net.JoinHostPort(p.host, strconv.Itoa(int(p.port)))

	dialer := net.Dialer{Timeout: p.timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		p.logger.Debug("server unreachable", slog.String("addr", addr), slog.Any("error", err))
		return Status{}
	}
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(p.timeout))

	if err := writePacket(conn, 0, handshakePayload(p.host, p.port)); err != nil {
		p.logger.Debug("handshake failed", slog.Any("error", err))
		return Status{}
	}
	if err := writePacket(conn, 0, nil); err != nil {
		p.logger.Debug("status request failed", slog.Any("error", err))
		return Status{}
	}

	payload, err := readStatusResponse(conn)
	if err != nil {
		p.logger.Debug("status response unreadable", slog.Any("error", err))
		return Status{}
	}
	return parseStatus(payload, p.logger)
}

type statusDocument struct {
	Version struct {
		Name string `json:"name"`
	} `json:"version"`
	Players struct {
		Online int `json:"online"`
		Max    int `json:"max"`
	} `json:"players"`
}

func parseStatus(payload []byte, log *slog.Logger) Status {
	var doc statusDocument
	if err := json.Unmarshal(payload, &doc); err != nil {
		log.Debug("status json unreadable", slog.Any("error", err))
		return Status{}
	}
	return Status{
		Online:        true,
		Version:       doc.Version.Name,
		PlayersOnline: doc.Players.Online,
		PlayersMax:    doc.Players.Max,
	}
}
