package main

import (
	"context"
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"mcpd/internal/config"
	mylog "mcpd/internal/log"
	"mcpd/internal/server"
	"mcpd/internal/version"
)

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string
	root := &cobra.Command{
		Use:           "mcpd",
		Short:         "Local control-plane for sandboxed file access and AI helpers",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (default: first of "+fmt.Sprint(config.DefaultPaths)+")")

	root.AddCommand(
		newServeCmd(&configPath),
		newVersionCmd(),
		newEnvCmd(&configPath),
		newLsCmd(),
		newReadCmd(),
		newWriteCmd(),
		newStatsCmd(),
		newAICmd(),
	)
	return root
}

func newServeCmd(configPath *string) *cobra.Command {
	var logLevel string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			if logLevel != "" {
				cfg.LogLevel = logLevel
			}
			logger, err := mylog.New(cfg.LogLevel)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()
			return server.Run(cmd.Context(), cfg, logger)
		},
	}
	cmd.Flags().StringVar(&logLevel, "log-level", "", "debug|info|warn|error (overrides MCP_LOG_LEVEL)")
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version.String())
		},
	}
}

// newEnvCmd prints the recognised environment keys and the effective
// configuration with secrets masked.
func newEnvCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "env",
		Short: "Show known environment keys and the effective config",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			keys := append([]string(nil), config.KnownKeys...)
			for _, ep := range config.AIEndpoints {
				suffix := config.EnvSuffix(ep)
				keys = append(keys, "AI_MAX_TOKENS_"+suffix, "AI_CACHE_TTL_"+suffix)
			}
			sort.Strings(keys)
			env := make(map[string]string, len(keys))
			for _, k := range keys {
				v, ok := os.LookupEnv(k)
				switch {
				case !ok:
					continue
				case mylog.LooksSecret(v) || k == "MCP_AUTH_TOKEN" || k == "GPT_API_KEY" || k == "GEMINI_API_KEY":
					env[k] = mylog.Redact(v)
				default:
					env[k] = v
				}
			}
			out := map[string]any{
				"known_keys": keys,
				"env":        env,
				"config":     cfg.Redacted(mylog.Redact),
			}
			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			if err := enc.Encode(out); err != nil {
				return err
			}
			return enc.Close()
		},
	}
}
