package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// initAnswers holds what the setup wizard asks for.
type initAnswers struct {
	BaseURL   string
	Model     string
	APIKeyEnv string
	StorePath string
	Gateway   bool
	Bind      string
	TokenEnv  string
}

func defaultAnswers() initAnswers {
	return initAnswers{
		BaseURL:   "https://api.openai.com/v1",
		Model:     "gpt-4o-mini",
		APIKeyEnv: "OPENAI_API_KEY",
		StorePath: "parsers.db",
		Gateway:   true,
		Bind:      "127.0.0.1:8080",
		TokenEnv:  "PARSERDESK_TOKEN",
	}
}

func initCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init [path]",
		Short: "Write a starter configuration file",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "parserdesk.yaml"
			if len(args) == 1 {
				path = args[0]
			}
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}

			a := defaultAnswers()
			if err := askInit(&a); err != nil {
				return err
			}
			data, err := renderConfig(a)
			if err != nil {
				return err
			}
			if dir := filepath.Dir(path); dir != "." {
				if err := os.MkdirAll(dir, 0o755); err != nil {
					return err
				}
			}
			if err := os.WriteFile(path, data, 0o600); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&force, "force", "f", false, "Overwrite an existing file")
	return cmd
}

func askInit(a *initAnswers) error {
	return huh.NewForm(
		huh.NewGroup(
			huh.NewInput().Title("Provider base URL").Value(&a.BaseURL).Validate(required("base URL")),
			huh.NewInput().Title("Model").Value(&a.Model).Validate(required("model")),
			huh.NewInput().Title("API key environment variable").Value(&a.APIKeyEnv),
		),
		huh.NewGroup(
			huh.NewInput().Title("Parser database").Description("Relative paths live in the data directory").Value(&a.StorePath),
			huh.NewConfirm().Title("Enable the HTTP gateway?").Value(&a.Gateway),
		),
		huh.NewGroup(
			huh.NewInput().Title("Listen address").Value(&a.Bind).Validate(required("listen address")),
			huh.NewInput().Title("Bearer token environment variable").Value(&a.TokenEnv),
		).WithHideFunc(func() bool { return !a.Gateway }),
	).Run()
}

// renderConfig produces the YAML configuration for a.
func renderConfig(a initAnswers) ([]byte, error) {
	if a.BaseURL == "" || a.Model == "" {
		return nil, errors.New("init: base URL and model are required")
	}

	provider := map[string]any{
		"base_url": a.BaseURL,
		"model":    a.Model,
	}
	if a.APIKeyEnv != "" {
		provider["api_key_env"] = a.APIKeyEnv
	}
	modules := map[string]any{
		"provider.openai_compatible": provider,
		"cron.scheduler":             map[string]any{},
	}
	if a.StorePath != "" {
		modules["store.sqlite"] = map[string]any{"path": a.StorePath}
	}
	if a.Gateway {
		gw := map[string]any{"bind": a.Bind}
		if a.TokenEnv != "" {
			gw["auth"] = map[string]any{"bearer_token": "${" + a.TokenEnv + ":-}"}
		}
		modules["gateway.http"] = gw
	}

	doc := struct {
		Version  string         `yaml:"version"`
		Modules  map[string]any `yaml:"modules"`
		Designer map[string]any `yaml:"designer"`
		Logging  map[string]any `yaml:"logging"`
	}{
		Version: "1",
		Modules: modules,
		Designer: map[string]any{
			"focus_mode": true,
			"autosave":   true,
		},
		Logging: map[string]any{"level": "info"},
	}
	return yaml.Marshal(doc)
}
