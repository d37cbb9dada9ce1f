// -- cmd/root.go --
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/xkilldash9x/scalpel-locator/internal/config"
	"github.com/xkilldash9x/scalpel-locator/internal/observability"
)

type contextKey string

const configKey contextKey = "config"

// envPrefix is joined to keys with "_", so locator.default_timeout reads
// SCALPEL_LOCATOR_LOCATOR_DEFAULT_TIMEOUT.
const envPrefix = "SCALPEL_LOCATOR"

var (
	cfgFile string
	// Allows mocking os.Exit in tests.
	osExit = os.Exit
)

// newRootCmd builds the command tree. Each call returns an independent tree
// so tests never share flag state.
func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "scalpel-locator",
		Short:         "Query and drive HTML documents with Playwright-style locators.",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			v := viper.New()
			config.SetDefaults(v)

			if err := initializeConfig(cmd, v); err != nil {
				return fmt.Errorf("failed to initialize configuration: %w", err)
			}

			cfg, err := config.NewConfigFromViper(v)
			if err != nil {
				observability.InitializeLogger(config.LoggerConfig{Level: "info", Format: "console", ServiceName: "scalpel-locator"})
				return fmt.Errorf("failed to load or validate config: %w", err)
			}

			observability.InitializeLogger(cfg.Logger())
			observability.GetLogger().Debug("Starting scalpel-locator",
				zap.String("version", Version),
				zap.String("config_file", v.ConfigFileUsed()))

			cmd.SetContext(context.WithValue(cmd.Context(), configKey, cfg))
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default is ./locator.yaml, then ~/.scalpel-locator.yaml)")
	rootCmd.PersistentFlags().StringP("output", "o", "", "Output format: text or json. (Overrides config/env)")
	rootCmd.PersistentFlags().Duration("timeout", 0, "Default wait timeout, e.g. 5s. (Overrides config/env)")
	rootCmd.PersistentFlags().String("test-id-attribute", "", "Attribute matched by test id queries. (Overrides config/env)")
	rootCmd.PersistentFlags().StringSlice("adapters", nil, "Framework adapters in priority order, e.g. react,vue. (Overrides config/env)")
	rootCmd.PersistentFlags().String("log-level", "", "Log level. (Overrides config/env)")
	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	rootCmd.AddCommand(newQueryCmd())
	rootCmd.AddCommand(newCompileCmd())
	rootCmd.AddCommand(newRunCmd())
	rootCmd.AddCommand(newVersionCmd())
	return rootCmd
}

// Execute runs the root command with a signal-aware context.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err := newRootCmd().ExecuteContext(ctx)
	observability.Sync()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		osExit(1)
	}
}

// flagBindings maps persistent flags onto their configuration keys.
var flagBindings = map[string]string{
	"output":            "cli.output_format",
	"timeout":           "locator.default_timeout",
	"test-id-attribute": "locator.test_id_attribute",
	"adapters":          "locator.adapters",
	"log-level":         "logger.level",
}

// initializeConfig reads the config file and environment into v and binds
// flags that were set explicitly.
func initializeConfig(cmd *cobra.Command, v *viper.Viper) error {
	path := cfgFile
	if path == "" {
		path, _ = findConfigFile()
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return fmt.Errorf("error reading config file: %w", err)
			}
		}
	}

	for flag, key := range flagBindings {
		f := cmd.Flags().Lookup(flag)
		if f == nil || !f.Changed {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return err
		}
	}
	return nil
}

// findConfigFile returns the first of ./locator.yaml and
// ~/.scalpel-locator.yaml that exists.
func findConfigFile() (string, bool) {
	candidates := []string{"locator.yaml"}
	if home, err := homedir.Dir(); err == nil {
		candidates = append(candidates, filepath.Join(home, ".scalpel-locator.yaml"))
	}
	for _, path := range candidates {
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return path, true
		}
	}
	return "", false
}

// configFromContext returns the configuration stored by the root command.
func configFromContext(ctx context.Context) (*config.Config, error) {
	cfg, ok := ctx.Value(configKey).(*config.Config)
	if !ok || cfg == nil {
		return nil, fmt.Errorf("configuration not initialized")
	}
	return cfg, nil
}
