package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"shaperd/internal/app"
	"shaperd/internal/config"
	"shaperd/internal/gateway"
	"shaperd/internal/ipc"
	"shaperd/internal/netwatch"
	"shaperd/internal/notify"
	"shaperd/internal/session"
)

func main() {
	var confDirFlag string
	var logLevelFlag string

	flag.StringVar(&confDirFlag, "conf", "", "configuration directory path (default: ~/.config/shaperd)")
	flag.StringVar(&logLevelFlag, "log-level", "info", "log level: debug, info, warn, or error")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLogLevel(logLevelFlag),
	}))

	env, err := config.LoadEnv()
	if err != nil {
		logger.Error("failed to read environment", slog.String("error", err.Error()))
		os.Exit(1)
	}

	confDir := config.ResolveConfigDir(confDirFlag, env)
	logger.Info("using configuration directory", slog.String("path", confDir))

	ctx, cancel := signalContext()
	defer cancel()

	store := config.NewStore(filepath.Join(confDir, "config.json"), logger)
	notifier := notify.New(logger, "shaperd")
	defer notifier.Close()

	runner := gateway.New(logger, gateway.Options{
		PkexecPath: env.PkexecPath,
		ShaperPath: env.ShaperPath,
		TCPath:     env.TCPath,
		Timeout:    config.DefaultGatewayCommandTimeout,
	})

	controller := session.New(logger, session.Dependencies{
		Gateway:  runner,
		Notifier: notifier,
		Store:    store,
	})

	watchdog := netwatch.New(logger, netwatch.Dependencies{
		TargetFn: func() netwatch.Target {
			auto, manual := controller.WatchTarget()
			return netwatch.Target{Auto: auto, Manual: manual}
		},
		Sink: controller,
	}, netwatch.Options{
		Interval: env.PollInterval,
	})

	commands := ipc.New(logger, controller, watchdog)

	daemon := app.NewDaemon(app.Dependencies{
		Controller: controller,
		Watchdog:   watchdog,
		Commands:   commands,
		Logger:     logger,
	})

	if err := daemon.Run(ctx); err != nil && ctx.Err() == nil {
		logger.Error("daemon terminated", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func parseLogLevel(value string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	go func() {
		defer signal.Stop(signals)
		select {
		case <-signals:
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, func() {
		cancel()
		time.Sleep(50 * time.Millisecond)
	}
}
