package main

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/user/pdfchat/internal/config"
)

func init() {
	rootCmd.AddCommand(setupCmd)
}

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Interactive setup wizard",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		scanner := bufio.NewScanner(os.Stdin)

		fmt.Println("pdfchat setup")
		fmt.Println("Press Enter to accept the default value shown in brackets.")
		fmt.Println()

		promptSetting(scanner, cfg, "Backend URL", "backend.base_url", cfg.Backend.BaseURL)
		promptSetting(scanner, cfg, "Passages per document question (1-10)", "backend.n_results", strconv.Itoa(cfg.Backend.NResults))

		cfg.Telegram.Token = prompt(scanner, "Telegram bot token (optional)", cfg.Telegram.Token)

		enabled := prompt(scanner, "Enable HTTP API (y/n)", yesNo(cfg.HTTP.Enabled))
		cfg.HTTP.Enabled = strings.HasPrefix(strings.ToLower(enabled), "y")
		if cfg.HTTP.Enabled {
			promptSetting(scanner, cfg, "HTTP listen address", "http.listen", cfg.HTTP.Listen)
		}

		if err := config.Save(cfgPath, cfg); err != nil {
			return fmt.Errorf("save config: %w", err)
		}

		fmt.Println()
		fmt.Println("Configuration saved to", cfgPath)
		return nil
	},
}

// prompt displays a labeled prompt with a default value and reads user input.
// If the user enters nothing, the default is returned.
func prompt(scanner *bufio.Scanner, label, defaultVal string) string {
	if defaultVal != "" {
		fmt.Printf("%s [%s]: ", label, defaultVal)
	} else {
		fmt.Printf("%s: ", label)
	}
	if scanner.Scan() {
		input := strings.TrimSpace(scanner.Text())
		if input != "" {
			return input
		}
	}
	return defaultVal
}

// promptSetting asks for key until the answer validates, giving up after
// three attempts and keeping the current value.
func promptSetting(scanner *bufio.Scanner, cfg *config.Config, label, key, defaultVal string) {
	for range 3 {
		err := config.Set(cfg, key, prompt(scanner, label, defaultVal))
		if err == nil {
			return
		}
		fmt.Println("  ", err)
	}
}

func yesNo(b bool) string {
	if b {
		return "y"
	}
	return "n"
}
