package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/bwmarrin/discordgo"

	"github.com/tracyhatemice/inboxcord/internal/config"
	"github.com/tracyhatemice/inboxcord/internal/console"
	"github.com/tracyhatemice/inboxcord/internal/dedup"
	"github.com/tracyhatemice/inboxcord/internal/forwarder"
	"github.com/tracyhatemice/inboxcord/internal/poller"
	"github.com/tracyhatemice/inboxcord/internal/receiver"
	"github.com/tracyhatemice/inboxcord/internal/render"
	"github.com/tracyhatemice/inboxcord/internal/sender"
)

func main() {
	configPath := flag.String("config", "", "optional YAML configuration file; environment variables take precedence")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	logger := setupLogger(cfg.LogLevel)
	logger.Info("inboxcord starting")
	cfg.LogConfig(logger)

	discord, err := discordgo.New("Bot " + cfg.Discord.Token)
	if err != nil {
		logger.Error("failed to create discord session", "error", err)
		os.Exit(1)
	}
	discord.Identify.Intents = discordgo.IntentsGuilds
	if err := discord.Open(); err != nil {
		logger.Error("failed to connect to discord", "error", err)
		os.Exit(1)
	}

	var renderer forwarder.Renderer
	if cfg.Render.Enabled {
		r := render.New(cfg.Render.RenderTimeout(), logger)
		defer r.Close()
		renderer = r
	}

	publisher := sender.New(discord, cfg.Discord.ChannelID, cfg.Filter.Keyword, cfg.Discord.EmbedColor, logger)
	fwd := forwarder.New(renderer, publisher, logger)

	dialer := receiver.NewIMAP(
		cfg.IMAP.Host, cfg.IMAP.Port,
		cfg.IMAP.Username, cfg.IMAP.Password,
		cfg.IMAP.UseTLS, cfg.IMAP.GetFolder(), logger,
	)

	ctrl := poller.New(dialer, fwd, dedup.NewTracker(), poller.Options{
		Interval: cfg.PollInterval(),
		FallbackID: func(raw receiver.RawMessage) string {
			return fmt.Sprintf("imap-uid-%d-%s", raw.UID, cfg.IMAP.Username)
		},
	}, logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	ctrl.Start()

	con := console.New(os.Stdin, os.Stdout, ctrl.TriggerOnDemandFetch, logger)
	go func() {
		if err := con.Run(ctx); err != nil {
			logger.Warn("console input closed", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down, waiting for in-flight messages...")

	// Force exit on second signal.
	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		<-sig
		logger.Warn("forced shutdown")
		os.Exit(1)
	}()

	ctrl.Stop()
	_ = os.Stdin.Close()
	ctrl.Wait()
	fwd.Wait()

	if err := discord.Close(); err != nil {
		logger.Warn("discord close failed", "error", err)
	}

	stats := fwd.Stats()
	logger.Info("inboxcord stopped",
		"forwarded", stats.Forwarded,
		"skipped", stats.Skipped,
		"failed", stats.Failed,
	)
}

func setupLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
