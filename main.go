package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"github.com/aheby/roombot/internal/bot"
	"github.com/aheby/roombot/internal/conf"
	"github.com/aheby/roombot/internal/module"
	"github.com/aheby/roombot/internal/store"
	"github.com/aheby/roombot/matrix"
)

func main() {
	envFile := pflag.String("env-file", "", "path to a .env file (default: ./.env)")
	modulesConfig := pflag.String("modules-config", "", "path to the modules YAML config")
	debug := pflag.Bool("debug", false, "enable debug logging")
	pflag.Parse()

	if *envFile != "" {
		if err := godotenv.Load(*envFile); err != nil {
			fmt.Fprintf(os.Stderr, "could not load env file %s: %v\n", *envFile, err)
			os.Exit(1)
		}
	} else {
		// No .env file is fine; plain environment variables still apply.
		_ = godotenv.Load()
	}

	cfg, err := conf.LoadFromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "could not load configuration: %v\n", err)
		os.Exit(1)
	}

	level := slog.LevelInfo
	if *debug || cfg.Debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	if err := run(cfg, *modulesConfig, logger); err != nil {
		logger.Error("roombot failed", "error", err)
		os.Exit(1)
	}
}

func run(cfg *conf.Config, modulesConfigPath string, logger *slog.Logger) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if modulesConfigPath == "" {
		modulesConfigPath = cfg.ModulesConfigPath
	}
	modulesCfg, err := conf.LoadModulesConfig(modulesConfigPath)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client, err := matrix.NewClient(matrix.Config{
		HomeserverURL: cfg.HomeserverURL,
		AccessToken:   cfg.AccessToken,
		UserID:        cfg.UserID,
		Logger:        logger,
	})
	if err != nil {
		return err
	}

	logger.Info("connecting", "homeserver", cfg.HomeserverURL, "user", cfg.UserID)
	userID, err := client.WhoAmI(ctx)
	if err != nil {
		return fmt.Errorf("could not verify credentials: %w", err)
	}
	logger.Info("connection successful", "user", userID)

	// A broken group store disables the highlight module but does not
	// stop the bot.
	var groups *store.Groups
	if g, err := store.Open(cfg.DatabasePath); err != nil {
		logger.Warn("could not open group database", "path", cfg.DatabasePath, "error", err)
	} else {
		groups = g
		defer groups.Close()
	}

	modules := module.Registry(modulesCfg, client, groups, logger)

	if err := client.InitialSync(ctx); err != nil {
		return err
	}
	logger.Info("available rooms", "count", len(client.Rooms()))

	b := bot.New(bot.Config{
		UserID:          client.UserID(),
		ListenRooms:     cfg.ListenRooms,
		AllowedInviters: cfg.AllowedInviters,
		Whitelist:       cfg.WhitelistedRooms,
		Blacklist:       cfg.BlacklistedRooms,
	}, client, bot.NewPipeline(modules, logger), logger)
	b.Start(ctx)

	logger.Info("listeners added, now running")
	if err := client.Listen(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("shutting down")
	return nil
}
