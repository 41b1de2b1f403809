package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newStatusCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the gateway's service status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			report, err := a.gateway().Status(cmd.Context())
			if err != nil {
				return err
			}

			headline := okStyle.Render("All systems operational")
			if !report.AllOperational {
				headline = warnStyle.Render(fmt.Sprintf("%d degraded, %d down", report.DegradedCount, report.DownCount))
			}
			fmt.Fprintln(a.out, headerStyle.Render("Service Status"))
			fmt.Fprintln(a.out, headline)
			fmt.Fprintln(a.out)

			for _, s := range report.Services {
				fmt.Fprintf(a.out, "  %-22s %s  %s  %s\n",
					s.Name,
					stateStyle(s.Status).Render(s.Status),
					s.ResponseTime,
					dateStyle.Render("uptime "+s.Uptime))
			}

			if len(report.Incidents) > 0 {
				fmt.Fprintln(a.out)
				fmt.Fprintln(a.out, titleStyle.Render("Incidents"))
				for _, inc := range report.Incidents {
					fmt.Fprintf(a.out, "  %s %s (%s)\n", dateStyle.Render(inc.Date), inc.Title, inc.Status)
					if inc.Description != "" {
						fmt.Fprintf(a.out, "    %s\n", inc.Description)
					}
				}
			}

			m := report.Metrics
			fmt.Fprintln(a.out)
			fmt.Fprintln(a.out, titleStyle.Render("Metrics"))
			fmt.Fprintf(a.out, "  overall uptime  %s\n", m.OverallUptime)
			fmt.Fprintf(a.out, "  avg response    %s\n", m.AvgResponseTime)
			fmt.Fprintf(a.out, "  system uptime   %s\n", m.SystemUptime)
			fmt.Fprintf(a.out, "  memory          %s\n", m.MemoryUsage)
			fmt.Fprintf(a.out, "%s\n", dateStyle.Render("checked in "+report.CheckDuration))
			return nil
		},
	}
}

func newChangelogCommand(a *app) *cobra.Command {
	var repo string

	cmd := &cobra.Command{
		Use:   "changelog",
		Short: "Show recent commits grouped by day",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cl, err := a.gateway().Changelog(cmd.Context(), repo)
			if err != nil {
				return err
			}

			title := "Changelog"
			if cl.Repository != "" {
				title += " for " + cl.Repository
			}
			fmt.Fprintln(a.out, headerStyle.Render(title))
			fmt.Fprintf(a.out, "%s\n", countStyle.Render(fmt.Sprintf("%d commits", cl.TotalCommits)))

			for _, entry := range cl.Entries {
				fmt.Fprintln(a.out)
				fmt.Fprintln(a.out, titleStyle.Render(entry.Date))
				for _, c := range entry.Commits {
					hash := c.Hash
					if len(hash) > 7 {
						hash = hash[:7]
					}
					fmt.Fprintf(a.out, "  %s %s %s\n", idStyle.Render(hash), c.Message, dateStyle.Render(c.Author))
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&repo, "repo", "", "Repository as owner/repo (default: the gateway's configured repository)")

	return cmd
}
