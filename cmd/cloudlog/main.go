// Package main is the entry point for the cloud variable log server.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/onnwee/cloudlog/internal/config"
	"github.com/onnwee/cloudlog/internal/middleware"
)

func main() {
	help := flag.Bool("help", false, "display help message")
	configPath := flag.String("config", "", "path to an optional YAML config file")
	flag.Parse()

	if *help {
		fmt.Println("Cloud Variable Log Server")
		fmt.Println()
		fmt.Println("Records Scratch cloud variable changes and serves them over HTTP.")
		fmt.Println()
		fmt.Println("Usage: cloudlog [options]")
		fmt.Println()
		fmt.Println("Options:")
		flag.PrintDefaults()
		fmt.Println()
		fmt.Println("Required environment: SCRATCH_USERNAME, SCRATCH_PASSWORD, SCRATCH_PROJECT_ID")
		os.Exit(0)
	}

	cfg, errs := config.Load(*configPath)
	if len(errs) > 0 {
		logger := middleware.NewLogger(os.Getenv("ENV"))
		for _, err := range errs {
			logger.Error("invalid configuration", "error", err)
		}
		os.Exit(1)
	}

	logger := middleware.NewLogger(cfg.Env)
	slog.SetDefault(logger)

	summary := cfg.LogSummary()
	attrs := make([]any, 0, len(summary)*2)
	for k, v := range summary {
		attrs = append(attrs, k, v)
	}
	logger.Info("configuration loaded", attrs...)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(cfg, logger)
	if err != nil {
		logger.Error("failed to initialise", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	ln, err := net.Listen("tcp", ":"+strconv.Itoa(cfg.Port))
	if err != nil {
		logger.Error("failed to listen", "port", cfg.Port, "error", err)
		os.Exit(1)
	}

	if err := a.Run(ctx, ln); err != nil {
		logger.Error("server error", "error", err)
		a.Close()
		os.Exit(1)
	}
	logger.Info("server stopped")
}
