package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/user/pdfchat/internal/config"
	"github.com/user/pdfchat/internal/tokens"
	"github.com/user/pdfchat/internal/types"
	"github.com/user/pdfchat/pkg/backend"
	"github.com/user/pdfchat/pkg/backend/rest"
)

var cfgPath string

var rootCmd = &cobra.Command{
	Use:           "pdfchat",
	Short:         "Chat with an assistant and ask questions about your PDFs",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", config.DefaultPath(), "config file path")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func loadConfig() *config.Config {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	return cfg
}

func setupLogging(cfg *config.Config) {
	var level slog.Level
	switch strings.ToLower(cfg.LogLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}

func newBackend(cfg *config.Config) *rest.Client {
	return rest.New(&backend.Config{
		BaseURL:  cfg.Backend.BaseURL,
		Timeout:  cfg.BackendTimeout(),
		NResults: cfg.Backend.NResults,
	})
}

// newCounter returns nil when the tokenizer cannot be loaded; replies are
// then recorded without token counts.
func newCounter(cfg *config.Config) types.TokenCounter {
	counter, err := tokens.New(cfg.Backend.TokenizerModel)
	if err != nil {
		slog.Warn("token counting disabled", "model", cfg.Backend.TokenizerModel, "error", err)
		return nil
	}
	return counter
}
