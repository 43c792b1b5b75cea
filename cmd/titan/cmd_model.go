package main

import (
	"github.com/spf13/cobra"

	"github.com/Djtony707/TITAN/internal/apperr"
	"github.com/Djtony707/TITAN/internal/config"
)

var (
	modelProvider string
	modelName     string
	modelBaseURL  string
)

var modelCmd = &cobra.Command{
	Use:   "model",
	Short: "Show or change the configured LLM provider",
}

var modelShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the currently configured LLM provider and model",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		return printJSON(cfg.LLM)
	},
}

var modelSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Persist a new LLM provider/model to config.toml",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if modelProvider != "" {
			cfg.LLM.Provider = modelProvider
		}
		if modelName != "" {
			cfg.LLM.Model = modelName
		}
		if modelBaseURL != "" {
			cfg.LLM.BaseURL = modelBaseURL
		}
		path := cfgPath
		if path == "" {
			path = config.DefaultConfigPath()
		}
		return cfg.Save(path)
	},
}

// model list-local names a surface the spec lists but this build has no
// local-model-discovery mechanism for (no Ollama-style registry client is
// wired); it reports NotImplemented rather than guessing at a list.
var modelListLocalCmd = &cobra.Command{
	Use:   "list-local",
	Short: "List locally available models (not implemented: no local model registry is wired)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return apperr.NotImplemented("model_list_local")
	},
}

func init() {
	modelSetCmd.Flags().StringVar(&modelProvider, "provider", "", "provider name, e.g. anthropic, openai, fake")
	modelSetCmd.Flags().StringVar(&modelName, "model", "", "model identifier")
	modelSetCmd.Flags().StringVar(&modelBaseURL, "base-url", "", "override base URL for self-hosted or proxy endpoints")

	modelCmd.AddCommand(modelShowCmd, modelSetCmd, modelListLocalCmd)
}
