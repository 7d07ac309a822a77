package main

import (
	"fmt"

	"github.com/kcolemangt/llm-gateway/auth"
	"github.com/kcolemangt/llm-gateway/handler"
	"github.com/kcolemangt/llm-gateway/model"
	"github.com/kcolemangt/llm-gateway/utils"
	"github.com/spf13/cobra"
)

func newCheckConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check-config",
		Short: "Validate the configuration and list which providers have a server key",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, cfg, err := setup(cmd)
			if logger != nil {
				defer logger.Sync()
			}
			if err != nil {
				return err
			}

			resolver := auth.NewResolver(cfg, logger)
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "listen address: %s\n", cfg.ListenAddr)
			fmt.Fprintf(out, "access codes: %d (prefix %q)\n", len(cfg.Codes), resolver.AccessCodePrefix())
			if cfg.BaseURL != "" {
				fmt.Fprintf(out, "shared base url: %s\n", cfg.BaseURL)
			}
			for _, p := range providerSummary() {
				fmt.Fprintf(out, "%-12s %s\n", p.name, utils.KeyInfo(resolver.SystemKey(p.provider, p.path)))
			}
			return nil
		},
	}
}

type providerLine struct {
	name     string
	provider model.ModelProvider
	path     string
}

func providerSummary() []providerLine {
	lines := []providerLine{
		{"OpenAI", model.ProviderGPT, handler.PathOpenAI},
		{"Azure", model.ProviderGPT, handler.PathAzure + "/deployments"},
		{"Google", model.ProviderGeminiPro, handler.PathGoogle},
		{"Baidu", model.ProviderErnie, handler.PathBaidu},
		{"Stability", model.ProviderStability, handler.PathStability},
	}
	for _, pc := range handler.SortedProviders() {
		lines = append(lines, providerLine{pc.Name, pc.ModelProvider, pc.PathPrefix})
	}
	return lines
}
