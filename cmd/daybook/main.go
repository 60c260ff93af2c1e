// Package main is the entry point for the daybook CLI.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/flemzord/daybook/internal/client"
	"github.com/flemzord/daybook/internal/config"
	"github.com/flemzord/daybook/pkg/app"
)

// Set by goreleaser ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// cliContext carries the persistent flags shared by subcommands.
type cliContext struct {
	configPath string
	dataDir    string
	url        string

	cfg *config.Config
}

// configFile returns the --config path or the first existing default.
func (c *cliContext) configFile() (string, error) {
	if c.configPath != "" {
		return c.configPath, nil
	}
	return app.ResolveConfigPath()
}

// loadConfig loads and validates the configuration once per invocation.
func (c *cliContext) loadConfig() (*config.Config, error) {
	if c.cfg != nil {
		return c.cfg, nil
	}
	path, err := c.configFile()
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}
	c.cfg = cfg
	return cfg, nil
}

// client builds an admin API client from the configuration. --url
// replaces the address derived from gateway.bind.
func (c *cliContext) client() (*client.Client, error) {
	cfg, err := c.loadConfig()
	if err != nil {
		return nil, err
	}
	if c.url == "" {
		return client.FromConfig(cfg)
	}
	if !cfg.Gateway.Auth.IsConfigured() {
		return nil, client.ErrNoAuth
	}
	return client.New(client.Config{BaseURL: c.url, Auth: cfg.Gateway.Auth})
}

func rootCmd() *cobra.Command {
	cc := &cliContext{}
	root := &cobra.Command{
		Use:           "daybook",
		Short:         "Personal productivity daemon: reminders, home-screen widgets and backups",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&cc.configPath, "config", "c", "", "Path to configuration file")
	root.PersistentFlags().StringVar(&cc.dataDir, "data-dir", "", "Override the data directory")
	root.PersistentFlags().StringVar(&cc.url, "url", "", "Gateway URL for admin commands (default derived from gateway.bind)")

	root.AddCommand(
		versionCmd(),
		startCmd(cc),
		configCmd(cc),
		jobsCmd(cc),
		widgetCmd(cc),
		eventCmd(cc),
		backupCmd(cc),
		statusCmd(cc),
		serviceCmd(cc),
		mcpCmd(cc),
	)
	return root
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "daybook %s (commit: %s, built: %s)\n", version, commit, date)
		},
	}
}

func startCmd(cc *cliContext) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Run the daemon in the foreground",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return app.Run(cmd.Context(), runParams(cc))
		},
	}
}

func runParams(cc *cliContext) app.RunParams {
	return app.RunParams{
		ConfigPath: cc.configPath,
		DataDir:    cc.dataDir,
		Version:    version,
		Commit:     commit,
		Date:       date,
	}
}
