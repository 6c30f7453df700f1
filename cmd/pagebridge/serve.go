package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"

	"github.com/pagebridge/pagebridge/internal/bridge"
	"github.com/pagebridge/pagebridge/internal/cards"
	"github.com/pagebridge/pagebridge/internal/config"
	"github.com/pagebridge/pagebridge/internal/engine"
	"github.com/pagebridge/pagebridge/internal/handlers"
	"github.com/pagebridge/pagebridge/internal/handover"
	"github.com/pagebridge/pagebridge/internal/logger"
	"github.com/pagebridge/pagebridge/internal/messenger"
	"github.com/pagebridge/pagebridge/internal/server"
)

func runServe() {
	fx.New(
		fx.Provide(
			provideConfig,
			provideLogger,
			provideMessengerClient,
			provideEngineClient,
			provideDispatcher,
			provideTranslator,
			provideHandoverStore,
			provideHandoverService,
			provideRegistry,
			provideBridge,
			provideServerHandler(provideWebhookHandler),
			provideServerHandler(handlers.NewAuthorizeHandler),
			provideServerHandler(handlers.NewPingHandler),
			provideServer,
		),
		fx.Invoke(
			registerBridgeHandlers,
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

func provideConfig() (config.Config, error) {
	path := configPath
	if path == "" {
		path = os.Getenv("CONFIG_PATH")
	}
	cfg, err := config.Load(path)
	if err != nil {
		return config.Config{}, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func provideLogger(cfg config.Config) *slog.Logger {
	logger.Init(cfg.Log.Level, cfg.Log.Format)
	return logger.L
}

func provideMessengerClient(cfg config.Config, log *slog.Logger) *messenger.Client {
	return messenger.NewClient(cfg.Messenger.GraphBaseURL, cfg.Messenger.PageAccessToken, log)
}

func provideEngineClient(cfg config.Config, log *slog.Logger) *engine.Client {
	return engine.NewClient(cfg.Engine.BaseURL, cfg.Engine.Secret, log)
}

func provideDispatcher(log *slog.Logger) *messenger.Dispatcher {
	return messenger.NewDispatcher(log)
}

func provideTranslator(log *slog.Logger) *cards.Translator {
	return cards.NewTranslator(log)
}

func provideHandoverStore() *handover.MemoryStore {
	return handover.NewMemoryStore()
}

func provideHandoverService(store *handover.MemoryStore, client *messenger.Client, cfg config.Config, log *slog.Logger) *handover.Service {
	return handover.NewService(store, client, cfg.Handover.InboxAppID, log)
}

func provideRegistry(lc fx.Lifecycle, engineClient *engine.Client, client *messenger.Client, log *slog.Logger) *bridge.Registry {
	start := func(userID, userName string, handler engine.ActivityHandler) bridge.Session {
		return engineClient.StartSession(userID, userName, handler)
	}
	registry := bridge.NewRegistry(start, client, log)
	lc.Append(fx.Hook{OnStop: func(ctx context.Context) error { registry.Close(); return nil }})
	return registry
}

func provideBridge(registry *bridge.Registry, client *messenger.Client, translator *cards.Translator, ho *handover.Service, cfg config.Config, log *slog.Logger) *bridge.Bridge {
	return bridge.New(registry, client, translator, ho, cfg.Handover.EscapeKeyword, log)
}

func provideWebhookHandler(log *slog.Logger, dispatcher *messenger.Dispatcher, cfg config.Config) *handlers.WebhookHandler {
	return handlers.NewWebhookHandler(log, dispatcher, cfg.Messenger.AppSecret, cfg.Messenger.VerifyToken)
}

func registerBridgeHandlers(b *bridge.Bridge, dispatcher *messenger.Dispatcher) {
	b.RegisterHandlers(dispatcher)
}

type serverParams struct {
	fx.In
	Logger         *slog.Logger
	Config         config.Config
	ServerHandlers []server.Handler `group:"server_handlers"`
}

func provideServer(params serverParams) *server.Server {
	return server.NewServer(params.Config.Server.Addr, params.Logger, params.ServerHandlers...)
}

func startServer(lc fx.Lifecycle, logger *slog.Logger, srv *server.Server, shutdowner fx.Shutdowner, cfg config.Config) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			logger.Info("starting pagebridge",
				slog.String("addr", cfg.Server.Addr),
				slog.String("webhook_url", cfg.Server.BaseURL+"/webhook"))
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
