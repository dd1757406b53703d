// Package mcsm talks to the MCSManager command endpoint that controls the
// game server's allow-list.
package mcsm

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/leicestercs/societybot/internal/config"
)

const commandPath = "/api/protected_instance/command"

// Client issues console commands to one MCSManager instance. Success is an
// HTTP 200; anything else is a failure.
type Client struct {
	http       *http.Client
	baseURL    string
	apiKey     string
	daemonID   string
	instanceID string
	logger     *slog.Logger
}

// NewClient builds a command client from config.
func NewClient(log *slog.Logger, cfg config.MCSManagerConfig) *Client {
	if log == nil {
		log = slog.Default()
	}
	return &Client{
		http:       &http.Client{Timeout: cfg.Timeout.Std()},
		baseURL:    strings.TrimRight(cfg.Host, "/"),
		apiKey:     cfg.APIKey,
		daemonID:   cfg.DaemonID,
		instanceID: cfg.InstanceID,
		logger:     log.With(slog.String("service", "mcsm")),
	}
}

// Add puts one username on the server allow-list.
func (c *Client) Add(ctx context.Context, username string) error {
	return c.command(ctx, "whitelist add "+username)
}

// Remove takes usernames off the allow-list, batched into a single command
// invocation.
func (c *Client) Remove(ctx context.Context, usernames ...string) error {
	if len(usernames) == 0 {
		return nil
	}
	parts := make([]string, len(usernames))
	for i, u := range usernames {
		parts[i] = "whitelist remove " + u
	}
	return c.command(ctx, strings.Join(parts, "; "))
}

func (c *Client) command(ctx context.Context, command string) error {
	params := url.Values{}
	params.Set("apikey", c.apiKey)
	params.Set("uuid", c.instanceID)
	params.Set("daemonId", c.daemonID)
	params.Set("command", command)

	endpoint := c.baseURL + commandPath + "?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, nil)
	if err != nil {
		return fmt.Errorf("build command request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("mcsmanager request: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		c.logger.Warn("command rejected", slog.Int("status", resp.StatusCode), slog.String("command", command))
		return fmt.Errorf("mcsmanager returned status %d", resp.StatusCode)
	}
	c.logger.Debug("command accepted", slog.String("command", command))
	return nil
}
