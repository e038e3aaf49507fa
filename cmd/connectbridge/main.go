package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"

	"git.home.luguber.info/inful/connectbridge/internal/config"
	"git.home.luguber.info/inful/connectbridge/internal/daemon"
)

var CLI struct {
	Config  string `short:"c" help:"Configuration file path" default:"connectbridge.yaml"`
	Verbose bool   `short:"v" help:"Enable verbose logging"`

	Daemon struct{} `cmd:"" default:"1" help:"Run the bridge daemon"`

	CheckConfig struct{} `cmd:"" help:"Validate the configuration file and exit"`
}

func main() {
	ctx := kong.Parse(&CLI)

	switch ctx.Command() {
	case "daemon":
		if err := runDaemon(); err != nil {
			slog.Error("bridge failed", "error", err)
			os.Exit(1)
		}
	case "check-config":
		if err := runCheckConfig(); err != nil {
			fmt.Fprintf(os.Stderr, "configuration invalid: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("configuration ok")
	}
}

func runDaemon() error {
	cfg, err := config.Load(CLI.Config)
	if err != nil {
		// Logging is not configured yet; report plainly.
		return err
	}
	config.SetupLogging(cfg.Logging, CLI.Verbose)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	d, err := daemon.New(cfg, CLI.Config)
	if err != nil {
		return fmt.Errorf("creating daemon: %w", err)
	}

	if err := d.Start(ctx); err != nil {
		return fmt.Errorf("starting daemon: %w", err)
	}

	slog.Info("bridge running, waiting for shutdown signal")
	<-ctx.Done()
	slog.Info("shutdown signal received")

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer stopCancel()
	if err := d.Stop(stopCtx); err != nil {
		return fmt.Errorf("stopping daemon: %w", err)
	}
	return nil
}

func runCheckConfig() error {
	_, err := config.Load(CLI.Config)
	return err
}
