package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/leicestercs/societybot/internal/mcping"
	"github.com/leicestercs/societybot/internal/store"
	"github.com/leicestercs/societybot/internal/version"
)

// StatusHandler reports bot health, membership counts, and the game server state.
type StatusHandler struct {
	store   *store.Store
	pinger  *mcping.Pinger
	started time.Time
	logger  *slog.Logger
}

// NewStatusHandler creates a status handler.
func NewStatusHandler(log *slog.Logger, st *store.Store, pinger *mcping.Pinger) *StatusHandler {
	return &StatusHandler{
		store:   st,
		pinger:  pinger,
		started: time.Now(),
		logger:  log.With(slog.String("handler", "status")),
	}
}

// Register mounts GET /status on the Echo instance.
func (h *StatusHandler) Register(e *echo.Echo) {
	e.GET("/status", h.Status)
}

// StatusResponse is the body returned by GET /status.
type StatusResponse struct {
	Version     string        `json:"version"`
	Uptime      string        `json:"uptime"`
	Verified    int           `json:"verified"`
	Whitelisted int           `json:"whitelisted"`
	Minecraft   mcping.Status `json:"minecraft"`
}

// Status returns membership counts and the result of a live server ping.
func (h *StatusHandler) Status(c echo.Context) error {
	verified, err := h.store.CountVerified()
	if err != nil {
		h.logger.Error("count verified", slog.Any("error", err))
		return c.JSON(http.StatusInternalServerError, ErrorResponse{Message: "store unavailable"})
	}
	whitelisted, err := h.store.CountWhitelisted()
	if err != nil {
		h.logger.Error("count whitelisted", slog.Any("error", err))
		return c.JSON(http.StatusInternalServerError, ErrorResponse{Message: "store unavailable"})
	}

	return c.JSON(http.StatusOK, StatusResponse{
		Version:     version.GetInfo(),
		Uptime:      time.Since(h.started).Round(time.Second).String(),
		Verified:    verified,
		Whitelisted: whitelisted,
		Minecraft:   h.pinger.Ping(c.Request().Context()),
	})
}
