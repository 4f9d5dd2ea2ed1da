package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/user/pdfchat/internal/config"
	"github.com/user/pdfchat/internal/gateway"
	"github.com/user/pdfchat/internal/httpapi"
	"github.com/user/pdfchat/internal/telegram"
)

func init() {
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve conversations over Telegram and the HTTP API",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()
	setupLogging(cfg)

	if cfg.Telegram.Token == "" && !cfg.HTTP.Enabled {
		return errors.New("nothing to serve: set telegram.token or http.enabled")
	}

	pidPath, err := writePIDFile()
	if err != nil {
		return err
	}
	defer os.Remove(pidPath)

	gw := gateway.New(newBackend(cfg), gateway.Options{
		MaxConcurrent: int64(cfg.MaxConcurrent),
		NResults:      cfg.Backend.NResults,
		Counter:       newCounter(cfg),
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	gw.Start(ctx)
	defer gw.Stop()

	slog.Info("pdfchat started",
		"log_level", cfg.LogLevel,
		"max_concurrent", cfg.MaxConcurrent,
		"backend", cfg.Backend.BaseURL,
		"n_results", cfg.Backend.NResults,
		"pid_file", pidPath,
	)

	if cfg.Telegram.Token != "" {
		bot, err := telegram.NewBot(cfg.Telegram.Token)
		if err != nil {
			return fmt.Errorf("create telegram adapter: %w", err)
		}
		adapter := telegram.New(bot, gw)
		go adapter.Start(ctx, bot)
		slog.Info("telegram adapter started")
	} else {
		slog.Warn("telegram adapter disabled (no token)")
	}

	if cfg.HTTP.Enabled {
		startHTTP(ctx, cfg, httpapi.NewServer(gw))
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	for {
		sig := <-sigChan
		if sig == syscall.SIGHUP {
			slog.Info("received SIGHUP, restarting")
			execPath, err := os.Executable()
			if err != nil {
				slog.Error("failed to get executable path", "error", err)
				continue
			}
			os.Remove(pidPath)
			if err := syscall.Exec(execPath, os.Args, os.Environ()); err != nil {
				slog.Error("failed to re-exec", "error", err)
				if _, writeErr := writePIDFile(); writeErr != nil {
					slog.Error("failed to re-write PID file", "error", writeErr)
				}
				continue
			}
		}
		slog.Info("shutting down", "signal", sig, "active_turns", gw.Pool.Active())
		return nil
	}
}

func startHTTP(ctx context.Context, cfg *config.Config, handler http.Handler) {
	srv := &http.Server{
		Addr:              cfg.HTTP.Listen,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		slog.Info("http server started", "listen", cfg.HTTP.Listen)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("http server error", "error", err)
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()
}
