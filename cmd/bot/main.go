package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"

	"github.com/leicestercs/societybot/internal/bot"
	"github.com/leicestercs/societybot/internal/config"
	"github.com/leicestercs/societybot/internal/handlers"
	"github.com/leicestercs/societybot/internal/logger"
	"github.com/leicestercs/societybot/internal/mailer"
	"github.com/leicestercs/societybot/internal/mcping"
	"github.com/leicestercs/societybot/internal/mcsm"
	"github.com/leicestercs/societybot/internal/reaper"
	"github.com/leicestercs/societybot/internal/roles"
	"github.com/leicestercs/societybot/internal/server"
	"github.com/leicestercs/societybot/internal/store"
	"github.com/leicestercs/societybot/internal/verify"
	"github.com/leicestercs/societybot/internal/version"
	"github.com/leicestercs/societybot/internal/whitelist"
)

func provideConfig() (config.Config, error) {
	cfgPath := os.Getenv("CONFIG_PATH")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return config.Config{}, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func provideLogger(cfg config.Config) *slog.Logger {
	logger.Init(cfg.Log.Level, cfg.Log.Format)
	return logger.L
}

func provideStore(cfg config.Config) (*store.Store, error) {
	return store.Open(cfg.Data.Dir)
}

func provideSession(cfg config.Config) (*discordgo.Session, error) {
	session, err := discordgo.New("Bot " + cfg.Discord.Token)
	if err != nil {
		return nil, fmt.Errorf("create discord session: %w", err)
	}
	return session, nil
}

func provideRoleManager(log *slog.Logger, session *discordgo.Session, cfg config.Config) roles.Manager {
	return roles.NewDiscordManager(log, session, cfg.Discord.GuildID)
}

func provideMailer(log *slog.Logger, cfg config.Config) (mailer.Sender, error) {
	return mailer.NewSMTPSender(log, cfg.Mail)
}

func provideAllowList(log *slog.Logger, cfg config.Config) whitelist.AllowList {
	return mcsm.NewClient(log, cfg.MCSManager)
}

func providePinger(log *slog.Logger, cfg config.Config) *mcping.Pinger {
	return mcping.NewPinger(log, cfg.Minecraft)
}

func provideWhitelistService(log *slog.Logger, st *store.Store, allowList whitelist.AllowList, roleManager roles.Manager, cfg config.Config) *whitelist.Service {
	return whitelist.NewService(log, st, allowList, roleManager, cfg.Verify.VerifiedRoleIDs(), cfg.Discord.WhitelistedRoleID)
}

func provideVerifyService(log *slog.Logger, st *store.Store, sender mailer.Sender, roleManager roles.Manager, whitelistSvc *whitelist.Service, cfg config.Config) *verify.Service {
	return verify.NewService(log, st, sender, roleManager, whitelistSvc, cfg.Verify.Domains, cfg.Verify.CodeTTL.Std(), cfg.Verify.RecordTTL.Std())
}

func provideReaper(log *slog.Logger, st *store.Store, whitelistSvc *whitelist.Service, roleManager roles.Manager, cfg config.Config) *reaper.Service {
	revoke := append(cfg.Verify.VerifiedRoleIDs(), cfg.Discord.WhitelistedRoleID)
	return reaper.NewService(log, st, whitelistSvc, roleManager, cfg.Reaper.Schedule, revoke)
}

func provideBot(log *slog.Logger, session *discordgo.Session, verifySvc *verify.Service, whitelistSvc *whitelist.Service, roleManager roles.Manager, pinger *mcping.Pinger, cfg config.Config) *bot.Service {
	return bot.NewService(log, session, verifySvc, whitelistSvc, roleManager, pinger, cfg.Discord)
}

func main() {
	fx.New(
		fx.Provide(
			provideConfig,
			provideLogger,

			provideStore,
			provideSession,
			provideRoleManager,
			provideMailer,
			provideAllowList,
			providePinger,

			provideWhitelistService,
			provideVerifyService,
			provideReaper,
			provideBot,

			provideServerHandler(handlers.NewPingHandler),
			provideServerHandler(handlers.NewStatusHandler),

			provideServer,
		),
		fx.Invoke(
			startBot,
			startReaper,
			startServer,
		),
		fx.WithLogger(func(logger *slog.Logger) fxevent.Logger {
			return &fxevent.SlogLogger{Logger: logger.With(slog.String("component", "fx"))}
		}),
	).Run()
}

func provideServerHandler(fn any) any {
	return fx.Annotate(
		fn,
		fx.As(new(server.Handler)),
		fx.ResultTags(`group:"server_handlers"`),
	)
}

type serverParams struct {
	fx.In

	Logger         *slog.Logger
	Config         config.Config
	ServerHandlers []server.Handler `group:"server_handlers"`
}

func provideServer(params serverParams) *server.Server {
	return server.NewServer(params.Logger, params.Config.Server.Addr, params.ServerHandlers...)
}

func startBot(lc fx.Lifecycle, botService *bot.Service) {
	fmt.Printf("Starting society bot %s\n", version.GetInfo())

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return botService.Start(ctx)
		},
		OnStop: func(ctx context.Context) error {
			return botService.Stop(ctx)
		},
	})
}

func startReaper(lc fx.Lifecycle, reaperService *reaper.Service) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return reaperService.Start()
		},
		OnStop: func(ctx context.Context) error {
			return reaperService.Stop(ctx)
		},
	})
}

func startServer(lc fx.Lifecycle, logger *slog.Logger, srv *server.Server, shutdowner fx.Shutdowner) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Error("server failed", slog.Any("error", err))
					_ = shutdowner.Shutdown()
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if err := srv.Stop(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("server stop: %w", err)
			}
			return nil
		},
	})
}
