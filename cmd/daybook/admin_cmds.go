package main

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/flemzord/daybook/internal/backup"
	"github.com/flemzord/daybook/internal/cron"
)

func jobsCmd(cc *cliContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Inspect and cancel scheduled jobs",
	}

	var state string
	list := &cobra.Command{
		Use:   "list",
		Short: "List jobs",
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := cc.client()
			if err != nil {
				return err
			}
			jobs, err := c.Jobs(cmd.Context())
			if err != nil {
				return err
			}
			if state != "" {
				jobs = slices.DeleteFunc(jobs, func(r cron.Record) bool { return string(r.State) != state })
			}
			if len(jobs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No jobs")
				return nil
			}
			fmt.Fprint(cmd.OutOrStdout(), renderTable(
				[]string{"Key", "Kind", "State", "Next fire", "Attempt", "Last error"},
				jobRows(jobs, time.Now()),
				4,
			))
			return nil
		},
	}
	list.Flags().StringVar(&state, "state", "", "Only show jobs in this state")

	var asJSON bool
	show := &cobra.Command{
		Use:   "show <key>",
		Short: "Show one job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := cc.client()
			if err != nil {
				return err
			}
			rec, err := c.Job(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd, rec)
			}
			fmt.Fprint(cmd.OutOrStdout(), renderTable([]string{"Field", "Value"}, jobDetail(rec)))
			return nil
		},
	}
	show.Flags().BoolVar(&asJSON, "json", false, "Print the raw record as JSON")

	cancel := &cobra.Command{
		Use:   "cancel <key>",
		Short: "Cancel a job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := cc.client()
			if err != nil {
				return err
			}
			rec, err := c.CancelJob(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Job %s is %s\n", rec.Key, rec.State)
			return nil
		},
	}

	cmd.AddCommand(list, show, cancel)
	return cmd
}

func jobRows(jobs []cron.Record, now time.Time) [][]string {
	slices.SortFunc(jobs, func(a, b cron.Record) int { return strings.Compare(string(a.Key), string(b.Key)) })
	rows := make([][]string, 0, len(jobs))
	for _, j := range jobs {
		rows = append(rows, []string{
			string(j.Key),
			string(j.Definition.Kind),
			string(j.State),
			fireIn(j, now),
			strconv.Itoa(j.Attempt),
			truncate(j.LastError, 40),
		})
	}
	return rows
}

func jobDetail(r cron.Record) [][]string {
	rows := [][]string{
		{"key", string(r.Key)},
		{"kind", string(r.Definition.Kind)},
		{"state", string(r.State)},
		{"attempt", strconv.Itoa(r.Attempt)},
		{"generation", strconv.FormatInt(r.Generation, 10)},
	}
	if r.Definition.Interval > 0 {
		rows = append(rows, []string{"interval", r.Definition.Interval.String()})
	}
	if r.Definition.Cron != "" {
		rows = append(rows, []string{"cron", r.Definition.Cron})
	}
	for _, f := range []struct {
		name string
		t    time.Time
	}{
		{"next fire", r.NextFireAt},
		{"last run", r.LastRunAt},
		{"updated", r.UpdatedAt},
	} {
		if !f.t.IsZero() {
			rows = append(rows, []string{f.name, f.t.Local().Format(time.RFC3339)})
		}
	}
	if r.LastError != "" {
		rows = append(rows, []string{"last error", r.LastError})
	}
	return rows
}

func fireIn(r cron.Record, now time.Time) string {
	if r.State != cron.StatePending || r.NextFireAt.IsZero() {
		return "-"
	}
	d := r.NextFireAt.Sub(now).Round(time.Second)
	if d <= 0 {
		return "due"
	}
	return "in " + d.String()
}

func truncate(s string, n int) string {
	if len([]rune(s)) <= n {
		return s
	}
	return string([]rune(s)[:n-1]) + "…"
}

func widgetCmd(cc *cliContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "widget",
		Short: "Control home-screen widgets",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "refresh",
			Short: "Refresh the widgets now",
			RunE: func(cmd *cobra.Command, _ []string) error {
				c, err := cc.client()
				if err != nil {
					return err
				}
				if err := c.RefreshWidgets(cmd.Context()); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Refresh queued")
				return nil
			},
		},
		&cobra.Command{
			Use:       "mode <every_day|every_hour|on_external_event>",
			Short:     "Change the widget refresh mode",
			Args:      cobra.ExactArgs(1),
			ValidArgs: []string{"every_day", "every_hour", "on_external_event"},
			RunE: func(cmd *cobra.Command, args []string) error {
				c, err := cc.client()
				if err != nil {
					return err
				}
				mode, err := c.SetWidgetMode(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Widget mode is now %s\n", mode)
				return nil
			},
		},
	)
	return cmd
}

func eventCmd(cc *cliContext) *cobra.Command {
	return &cobra.Command{
		Use:     "event [source]",
		Aliases: []string{"unlock"},
		Short:   "Report an external event such as a phone unlock",
		Args:    cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			source := "cli"
			if len(args) == 1 {
				source = args[0]
			}
			c, err := cc.client()
			if err != nil {
				return err
			}
			if err := c.ExternalEvent(cmd.Context(), source); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Event %q delivered\n", source)
			return nil
		},
	}
}

func backupCmd(cc *cliContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Database backups",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "now",
			Short: "Write a backup immediately",
			RunE: func(cmd *cobra.Command, _ []string) error {
				c, err := cc.client()
				if err != nil {
					return err
				}
				a, err := c.Backup(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s (%d bytes)\n", a.Path, a.Size)
				return nil
			},
		},
		&cobra.Command{
			Use:   "list",
			Short: "List retained backups",
			RunE: func(cmd *cobra.Command, _ []string) error {
				c, err := cc.client()
				if err != nil {
					return err
				}
				list, err := c.Backups(cmd.Context())
				if err != nil {
					return err
				}
				if len(list) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No backups")
					return nil
				}
				fmt.Fprint(cmd.OutOrStdout(), renderTable([]string{"Name", "Created", "Size"}, backupRows(list), 2))
				return nil
			},
		},
	)
	return cmd
}

func backupRows(list []backup.Artifact) [][]string {
	rows := make([][]string, 0, len(list))
	for _, a := range list {
		rows = append(rows, []string{a.Name, a.CreatedAt.Local().Format(time.DateTime), strconv.FormatInt(a.Size, 10)})
	}
	return rows
}

func statusCmd(cc *cliContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon status",
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := cc.client()
			if err != nil {
				return err
			}
			st, err := c.Status(cmd.Context())
			if err != nil {
				return err
			}
			rows := [][]string{
				{"version", st.Version},
				{"uptime", (time.Duration(st.UptimeSeconds) * time.Second).String()},
				{"widget mode", st.WidgetMode},
				{"widget subscribers", strconv.Itoa(st.WidgetSubscribers)},
			}
			states := make([]cron.State, 0, len(st.Jobs))
			for s := range st.Jobs {
				states = append(states, s)
			}
			slices.Sort(states)
			for _, s := range states {
				rows = append(rows, []string{"jobs " + string(s), strconv.Itoa(st.Jobs[s])})
			}
			fmt.Fprint(cmd.OutOrStdout(), renderTable([]string{"Field", "Value"}, rows))
			return nil
		},
	}
}
