package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/thingswise/etcdstat/internal/agent"
	"github.com/thingswise/etcdstat/internal/config"
	"github.com/thingswise/etcdstat/internal/exit"
	"github.com/thingswise/etcdstat/internal/kv"
	"github.com/thingswise/etcdstat/internal/logging"
	"github.com/thingswise/etcdstat/internal/source"
)

func main() {
	exitCode := run()
	os.Exit(exitCode)
}

func run() int {
	cfg, exitResult := config.Parse(os.Args)
	if exitResult != nil {
		exitResult.Print()
		return exitResult.ExitCode
	}

	logger := logging.New(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})

	file, err := config.LoadINI(cfg.ConfigFile, "")
	if err != nil {
		exit.Errorf("load %s: %v", cfg.ConfigFile, err).Print()
		return exit.CodeFailure
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, err := kv.Open(ctx, cfg.URL, kv.WithDialTimeout(cfg.DialTimeout))
	if err != nil {
		exit.Errorf("open %s: %v", cfg.URL, err).Print()
		return exit.CodeFailure
	}
	defer store.Close()

	registry, err := source.Default(logger)
	if err != nil {
		exit.Errorf("init sources: %v", err).Print()
		return exit.CodeFailure
	}
	defer registry.Close()

	a, err := agent.New(cfg, file, store, registry, logger)
	if err != nil {
		exit.Errorf("%v", err).Print()
		return exit.CodeFailure
	}

	logger.Info("etcdstat", "version", config.Version, "url", cfg.URL, "config", file.Path())
	logger.Debug("template functions", "keys", registry.Keys())
	return a.Run(ctx)
}
