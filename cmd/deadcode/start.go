package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/LordAkkarin/DeadCodeBot/internal/config"
	"github.com/LordAkkarin/DeadCodeBot/internal/irc"
	"github.com/LordAkkarin/DeadCodeBot/internal/lock"
	"github.com/LordAkkarin/DeadCodeBot/internal/log"
	"github.com/LordAkkarin/DeadCodeBot/internal/metrics"
	"github.com/LordAkkarin/DeadCodeBot/internal/secret"
	"github.com/LordAkkarin/DeadCodeBot/internal/storage"
	"github.com/LordAkkarin/DeadCodeBot/internal/webhook"
)

var ircStates = []string{
	irc.Disconnected.String(),
	irc.Connecting.String(),
	irc.Connected.String(),
	irc.PostAuth.String(),
}

func runStart(args []string) int {
	fs := flag.NewFlagSet("start", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse flags: %v\n", err)
		return 1
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	log.Setup(cfg.Service.LogLevel, cfg.Service.LogFormat)
	logger := log.WithComponent("main")
	logger.Info("deadcode starting", "version", version, "config", cfg.Path)
	for _, w := range cfg.Integrity.Warnings {
		logger.Warn("config integrity", "warning", w)
	}

	pidLock, err := lock.Acquire(cfg.Service.PIDFile)
	if err != nil {
		logger.Error("failed to acquire PID lock", "path", cfg.Service.PIDFile, "error", err)
		return 1
	}
	defer pidLock.Release()

	webhookConfig, err := webhook.FromGlobalConfig(cfg)
	if err != nil {
		logger.Error("failed to configure webhooks", "error", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	secrets, closeSecrets, err := openSecretStore(ctx, cfg)
	if err != nil {
		logger.Error("failed to open shared secret store", "error", err)
		return 1
	}
	defer closeSecrets()
	if secrets != nil {
		provisioned, err := secrets.Exists(ctx)
		if err != nil {
			logger.Error("failed to read shared secret", "error", err)
			return 1
		}
		logger.Info("atlassian connect enabled",
			"secret_store", cfg.AtlassianConnect.SecretStore,
			"secret_path", cfg.AtlassianConnect.SecretPath,
			"provisioned", provisioned,
		)
	}

	var (
		registry = metrics.NewRegistry()
		m        = metrics.New(registry)
	)
	m.SetIRCState(irc.Disconnected.String(), ircStates...)

	manager := irc.New(ircConfig(cfg), log.WithComponent("irc"),
		irc.WithStateHook(func(s irc.State) { m.SetIRCState(s.String(), ircStates...) }),
	)

	server := webhook.New(webhookConfig, manager, secrets, log.WithComponent("webhook"),
		webhook.WithMetrics(m, registry),
		webhook.WithHealth(
			func() string { return manager.State().String() },
			func() bool { return manager.State().CanSend() },
		),
	)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := server.Start(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		if err := manager.Connect(gctx); err != nil {
			if gctx.Err() != nil {
				return nil
			}
			// Webhooks keep being accepted and answered with 503.
			logger.Error("irc relay unavailable", "error", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		manager.Close()
		return nil
	})

	logger.Info("deadcode running (press Ctrl+C to stop)")

	if err := g.Wait(); err != nil {
		logger.Error("component failed", "error", err)
		return 1
	}

	logger.Info("deadcode stopped")
	return 0
}

func loadConfig(configPath string) (*config.Config, error) {
	if configPath == "" {
		discovered, err := config.Discover()
		if err != nil {
			return nil, err
		}
		configPath = discovered
	}
	return config.Load(configPath)
}

func ircConfig(cfg *config.Config) irc.Config {
	return irc.Config{
		Address:          cfg.Server.Address,
		Port:             cfg.Server.Port,
		Secure:           cfg.Server.Secure,
		AcceptExpired:    cfg.Server.AcceptExpired,
		AcceptSelfSigned: cfg.Server.AcceptSelfSigned,
		UserModes:        cfg.Server.UserModes,
		Nickname:         cfg.Nickname,
		Username:         cfg.Username,
		Realname:         cfg.Realname,
		Channel:          cfg.Channel,
		NickServ: irc.NickServ{
			Enabled:  cfg.NickServ.Enabled,
			Username: cfg.NickServ.Username,
			Password: cfg.NickServ.Password,
			Command:  cfg.NickServ.Command,
		},
		RetryInterval: cfg.Server.RetryInterval,
	}
}

// openSecretStore returns nil when Atlassian Connect is disabled.
func openSecretStore(ctx context.Context, cfg *config.Config) (secret.Store, func(), error) {
	noop := func() {}
	if !cfg.AtlassianConnect.Enabled {
		return nil, noop, nil
	}

	switch cfg.AtlassianConnect.SecretStore {
	case config.SecretStoreSQLite:
		db, err := storage.OpenSQLite(ctx, cfg.AtlassianConnect.SecretPath)
		if err != nil {
			return nil, noop, err
		}
		return secret.NewSQLiteStore(db), func() { _ = db.Close() }, nil
	default:
		return secret.NewFileStore(cfg.AtlassianConnect.SecretPath), noop, nil
	}
}
