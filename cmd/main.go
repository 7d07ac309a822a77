package main

import (
	"fmt"
	"os"

	"github.com/kcolemangt/llm-gateway/config"
	"github.com/kcolemangt/llm-gateway/logging"
	"github.com/kcolemangt/llm-gateway/model"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	configPath string
	logLevel   string
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "llm-gateway",
		Short: "Multi-provider LLM gateway",
		Long:  "Authenticates chat clients, resolves vendor credentials and streams requests to OpenAI, Azure, Anthropic, Google, Baidu and other LLM APIs.",
	}
	root.SilenceUsage = true
	root.PersistentFlags().StringVar(&configPath, "config", "gateway.toml", "Path to the TOML config file (optional)")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error (default from LOG_LEVEL or info)")

	root.AddCommand(newServeCmd(), newCheckConfigCmd())
	return root
}

// setup builds the logger and loads the config. Flags override the loaded values.
func setup(cmd *cobra.Command) (*zap.Logger, *model.ServerConfig, error) {
	level := logLevel
	if level == "" {
		level = os.Getenv("LOG_LEVEL")
	}
	if level == "" {
		level = config.DefaultLogLevel
	}
	logger, err := logging.NewLogger(level)
	if err != nil {
		return nil, nil, fmt.Errorf("init logger: %w", err)
	}

	cfg, err := config.Load(configPath, logger)
	if err != nil {
		return logger, nil, fmt.Errorf("load config: %w", err)
	}
	if cmd.Flags().Changed("log-level") {
		cfg.LogLevel = logLevel
	}
	if cmd.Flags().Changed("listen-addr") {
		cfg.ListenAddr, _ = cmd.Flags().GetString("listen-addr")
	}
	if err := config.Validate(cfg); err != nil {
		return logger, nil, fmt.Errorf("invalid config: %w", err)
	}
	return logger, cfg, nil
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
