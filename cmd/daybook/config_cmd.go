package main

import (
	"crypto/rand"
	"fmt"
	"os"
	"path/filepath"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/flemzord/daybook/internal/config"
	"github.com/flemzord/daybook/internal/widget"
	"github.com/flemzord/daybook/pkg/app"
)

func configCmd(cc *cliContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
	}
	cmd.AddCommand(configCheckCmd(cc), configInitCmd(cc))
	return cmd
}

func configCheckCmd(cc *cliContext) *cobra.Command {
	return &cobra.Command{
		Use:   "check [path]",
		Short: "Validate configuration",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				cc.configPath = args[0]
			}
			cfg, err := cc.loadConfig()
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			fmt.Fprintln(w, "Configuration OK")
			fmt.Fprintf(w, "  data dir:     %s\n", app.ResolveDataDir(cc.dataDir, cfg))
			fmt.Fprintf(w, "  widget mode:  %s\n", cfg.Widget.Mode)
			fmt.Fprintf(w, "  gateway:      %s (admin API %s)\n", cfg.Gateway.Bind, onOff(cfg.Gateway.Auth.IsConfigured()))
			fmt.Fprintf(w, "  webhooks:     %d\n", len(cfg.Gateway.Webhooks))
			fmt.Fprintf(w, "  ntfy:         %s\n", onOff(cfg.Notify.Ntfy.Enabled()))
			fmt.Fprintf(w, "  telemetry:    %s\n", onOff(cfg.Telemetry.Enabled))
			return nil
		},
	}
}

func onOff(b bool) string {
	if b {
		return "enabled"
	}
	return "disabled"
}

// initAnswers holds what "config init" asks for.
type initAnswers struct {
	DataDir    string
	Bind       string
	WidgetMode string
	Timezone   string
	QuietHours string
	NtfyURL    string
	NtfyTopic  string
}

func defaultAnswers() initAnswers {
	return initAnswers{
		Bind:       config.DefaultBind,
		WidgetMode: config.DefaultWidgetMode,
	}
}

func configInitCmd(cc *cliContext) *cobra.Command {
	var (
		output string
		force  bool
		yes    bool
	)
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a starter configuration file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if output == "" {
				output = app.ConfigCandidates()[0]
			}
			if _, err := os.Stat(output); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", output)
			}

			answers := defaultAnswers()
			answers.DataDir = cc.dataDir
			if !yes {
				if err := askInit(&answers); err != nil {
					return err
				}
			}

			token := rand.Text()
			cfg := starterConfig(answers, token)
			if err := config.Validate(withDefaults(cfg)); err != nil {
				return err
			}
			if err := writeConfig(output, cfg); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\nAdmin bearer token: %s\n", output, token)
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "Where to write the file (default: the XDG config location)")
	cmd.Flags().BoolVarP(&force, "force", "f", false, "Overwrite an existing file")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Accept defaults without prompting")
	return cmd
}

func askInit(a *initAnswers) error {
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Data directory").
				Description("Leave empty for " + app.DefaultDataDir()).
				Value(&a.DataDir),
			huh.NewInput().
				Title("Gateway address").
				Value(&a.Bind),
			huh.NewSelect[string]().
				Title("Widget refresh").
				Options(
					huh.NewOption("Once a day", string(widget.ModeEveryDay)),
					huh.NewOption("Every hour", string(widget.ModeEveryHour)),
					huh.NewOption("On phone unlock (external event)", string(widget.ModeOnExternalEvent)),
				).
				Value(&a.WidgetMode),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("Time zone").
				Description("IANA name such as Europe/Paris. Empty uses the system zone.").
				Value(&a.Timezone),
			huh.NewInput().
				Title("Quiet hours").
				Description("HH:MM-HH:MM, empty to disable").
				Value(&a.QuietHours),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("ntfy server URL").
				Description("Empty to keep notifications in the log and on widgets only").
				Value(&a.NtfyURL),
			huh.NewInput().
				Title("ntfy topic").
				Value(&a.NtfyTopic),
		),
	)
	return form.Run()
}

// starterConfig builds the file content. Durations are left unset so the
// file stays readable; defaults apply at load time.
func starterConfig(a initAnswers, token string) *config.Config {
	cfg := &config.Config{
		Version: "1",
		DataDir: a.DataDir,
		Widget:  config.WidgetConfig{Mode: a.WidgetMode},
		Reminders: config.ReminderConfig{
			Timezone:   a.Timezone,
			QuietHours: a.QuietHours,
		},
		Gateway: config.GatewayConfig{
			Bind: a.Bind,
			Auth: config.AuthConfig{BearerToken: token},
		},
	}
	if a.NtfyURL != "" {
		cfg.Notify.Ntfy = config.NtfyConfig{URL: a.NtfyURL, Topic: a.NtfyTopic}
	}
	return cfg
}

func withDefaults(cfg *config.Config) *config.Config {
	cp := *cfg
	cp.ApplyDefaults()
	return &cp
}

func writeConfig(path string, cfg *config.Config) error {
	out, err := config.Marshal(cfg)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	return os.WriteFile(path, out, 0o600)
}
