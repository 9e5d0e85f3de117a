package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"hwbot/internal/app"
	"hwbot/internal/config"
	logx "hwbot/pkg/logx"
)

func main() {
	var cfgPath, envPath string
	flag.StringVar(&cfgPath, "config", "./config.yaml", "path to config yaml/json (optional)")
	flag.StringVar(&envPath, "env-file", ".env", "dotenv file loaded before reading the environment")
	flag.Parse()

	boot := logx.NewConsole("INFO").With(logx.String("comp", "main"))

	if err := config.LoadDotEnv(envPath); err != nil {
		boot.Error("dotenv load failed", logx.Err(err))
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a, err := app.New(cfgPath)
	if err != nil {
		if errors.Is(err, config.ErrMissingRequired) {
			boot.Error("required credentials are missing; exiting", logx.Err(err))
		} else {
			boot.Error("startup failed", logx.Err(err))
		}
		os.Exit(1)
	}

	if err := a.Start(ctx); err != nil {
		boot.Error("start failed", logx.Err(err))
		os.Exit(1)
	}

	reason := app.StopSignal
	select {
	case <-ctx.Done():
	case <-a.Done():
		reason = app.StopFatalError
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer stopCancel()
	_ = a.Stop(stopCtx, reason)

	if reason == app.StopFatalError {
		boot.Error("stopped after fatal error", logx.Err(a.Err()))
		stopCancel()
		os.Exit(1)
	}
}
