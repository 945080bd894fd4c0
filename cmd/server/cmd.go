package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/rhuss/runcode/pkg/config"
	"github.com/rhuss/runcode/pkg/debug"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func newRootCmd() *cobra.Command {
	var (
		configPath string
		stdio      bool
	)

	root := &cobra.Command{
		Use:           "runcode",
		Short:         "Run model-generated Python code in a remote sandbox",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			if stdio {
				return a.serveStdio(ctx)
			}
			return a.serveHTTP(ctx)
		},
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to the YAML config file")
	root.Flags().BoolVar(&stdio, "stdio", false, "serve MCP over stdin/stdout instead of HTTP")

	root.AddCommand(newConfigCmd(&configPath))
	root.SetContext(context.Background())
	return root
}

func newConfigCmd(configPath *string) *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect the effective configuration",
	}

	configCmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the merged configuration as YAML with secrets redacted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			defer enc.Close()
			return enc.Encode(redact(*cfg))
		},
	})

	configCmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Load and validate the configuration",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if _, err := config.Load(*configPath); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "configuration is valid")
			return nil
		},
	})

	return configCmd
}

// loadConfig loads the configuration and sets up logging from it.
func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	debug.Init(cfg.Logging.Debug, cfg.Logging.Level, cfg.Logging.Format)
	return cfg, nil
}

const redacted = "<redacted>"

// redact blanks out secret values so the config can be printed.
func redact(cfg config.Config) config.Config {
	if cfg.Sandbox.E2B.APIKey != "" {
		cfg.Sandbox.E2B.APIKey = redacted
	}
	if cfg.Storage.Postgres.DSN != "" {
		cfg.Storage.Postgres.DSN = redacted
	}
	keys := make([]config.APIKeyConfig, len(cfg.Auth.APIKeys))
	for i, k := range cfg.Auth.APIKeys {
		if k.Key != "" {
			k.Key = redacted
		}
		keys[i] = k
	}
	cfg.Auth.APIKeys = keys
	return cfg
}
