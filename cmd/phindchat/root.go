package main

import (
	"fmt"
	"strings"

	"PhindChat/internal/config"

	"github.com/spf13/cobra"
)

// cfg is loaded from the environment before any command runs, then overridden by flags
var cfg config.Config

var rootCmd = &cobra.Command{
	Use:           "phindchat",
	Short:         "Chat with Phind and other LLM backends from the terminal",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return loadConfig(cmd)
	},
	RunE: runChat,
}

func init() {
	addConfigFlags(rootCmd)
}

func addConfigFlags(cmd *cobra.Command) {
	flags := cmd.PersistentFlags()
	flags.String("backend", "", fmt.Sprintf("LLM backend (%s)", strings.Join(config.Backends, "|")))
	flags.String("session-id", "", "Load existing session by ID")
	flags.Bool("debug", false, "Enable debug logging")
	flags.String("ollama-model", "", "Ollama model specification (format: model:version)")
}

func loadConfig(cmd *cobra.Command) error {
	cfg = config.Load()

	flags := cmd.Flags()
	if flags.Changed("backend") {
		cfg.Backend, _ = flags.GetString("backend")
	}
	if flags.Changed("session-id") {
		cfg.SessionID, _ = flags.GetString("session-id")
	}
	if flags.Changed("debug") {
		cfg.Debug, _ = flags.GetBool("debug")
	}
	if flags.Changed("ollama-model") {
		cfg.OllamaModel, _ = flags.GetString("ollama-model")
	}

	cfg.Backend = strings.ToLower(strings.TrimSpace(cfg.Backend))
	if !config.ValidBackend(cfg.Backend) {
		return fmt.Errorf("unknown backend %q (expected one of %s)", cfg.Backend, strings.Join(config.Backends, ", "))
	}
	return nil
}
