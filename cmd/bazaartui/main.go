package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/matheus3301/bazaar/internal/chat"
	"github.com/matheus3301/bazaar/internal/config"
	"github.com/matheus3301/bazaar/internal/logging"
	"github.com/matheus3301/bazaar/internal/session"
	"github.com/matheus3301/bazaar/internal/tui"
	"github.com/matheus3301/bazaar/internal/tui/client"
	"go.uber.org/zap"
)

func main() {
	sessionFlag := flag.String("session", "", "session name (overrides config default)")
	flag.Parse()

	sessionName := session.Resolve(*sessionFlag)
	if err := session.ValidateName(sessionName); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	level := config.Default().LogLevel
	if cfg, err := config.Resolve(session.ConfigPath(), session.EnvFiles()...); err == nil {
		level = cfg.LogLevel
		if loc, err := cfg.BackendLocation(); err == nil {
			chat.SetDateLocation(loc)
		}
	}
	logger, err := logging.NewFileOnly(session.TUILogPath(sessionName), sessionName, level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	socketPath := session.SocketPath(sessionName)
	c, err := client.Ensure(sessionName, socketPath, 10*time.Second)
	if err != nil {
		logger.Error("daemon unavailable", zap.Error(err))
		fmt.Fprintf(os.Stderr, "error: daemon for session %q: %v\n", sessionName, err)
		os.Exit(1)
	}
	defer func() { _ = c.Close() }()

	logger.Info("tui started", zap.String("socket", socketPath))
	app := tui.NewApp(c, sessionName, logger)
	if err := app.Run(); err != nil {
		logger.Error("tui exited", zap.Error(err))
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
