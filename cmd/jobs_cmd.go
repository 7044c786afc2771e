package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/pigeon/internal/clock"
	"github.com/nextlevelbuilder/pigeon/internal/jobfile"
	"github.com/nextlevelbuilder/pigeon/internal/store"
)

func jobsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Manage scheduled message jobs",
	}
	cmd.AddCommand(jobsListCmd())
	cmd.AddCommand(jobsCreateCmd())
	cmd.AddCommand(jobsShowCmd())
	cmd.AddCommand(jobsEditCmd())
	cmd.AddCommand(jobsPauseCmd())
	cmd.AddCommand(jobsResumeCmd())
	cmd.AddCommand(jobsDeleteCmd())
	cmd.AddCommand(jobsApplyCmd())
	return cmd
}

func jobsListCmd() *cobra.Command {
	var jsonOutput bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List all jobs",
		Run: func(cmd *cobra.Command, args []string) {
			c := apiClient()
			jobs, err := c.ListJobs(context.Background())
			if err != nil {
				fail(err)
			}
			printJobs(jobs, jsonOutput, displayLocation())
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	return cmd
}

func jobsCreateCmd() *cobra.Command {
	var (
		contact   string
		message   string
		at        string
		every     string
		tolerance int
	)
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Schedule a message (one-shot, or recurring with --every)",
		Example: `  pigeon jobs create --to Alice --message "standup in 10" --at 2025-06-01T13:00:00Z --every "1 day"
  pigeon jobs create --to Bob --message "happy birthday!" --at 2025-07-02T09:00:00Z`,
		Run: func(cmd *cobra.Command, args []string) {
			anchor, err := parseAnchor(at)
			if err != nil {
				fail(err)
			}

			spec := store.JobSpec{
				Kind:        store.KindOnce,
				ContactName: contact,
				Message:     message,
				AnchorTime:  anchor,
			}
			if every != "" {
				value, unit, err := jobfile.ParseEvery(every)
				if err != nil {
					fail(err)
				}
				spec.Kind = store.KindRecurring
				spec.IntervalValue = value
				spec.IntervalUnit = unit
			}
			if cmd.Flags().Changed("tolerance") {
				spec.ToleranceMinutes = &tolerance
			}

			job, err := apiClient().CreateJob(context.Background(), spec)
			if err != nil {
				fail(err)
			}
			fmt.Printf("Scheduled %s job %s for %q", job.Kind, shortID(job.ID), job.ContactName)
			if job.NextRun != nil {
				fmt.Printf(", next run %s", formatTime(*job.NextRun, displayLocation()))
			}
			fmt.Println()
		},
	}
	cmd.Flags().StringVar(&contact, "to", "", "contact name (required)")
	cmd.Flags().StringVar(&message, "message", "", "message text (required)")
	cmd.Flags().StringVar(&at, "at", "", "first send time, RFC 3339 (required)")
	cmd.Flags().StringVar(&every, "every", "", `repeat cadence like "1 day" or "2 hours"`)
	cmd.Flags().IntVar(&tolerance, "tolerance", 0, "skip a repeat more than this many minutes late")
	cmd.MarkFlagRequired("to")
	cmd.MarkFlagRequired("message")
	cmd.MarkFlagRequired("at")
	return cmd
}

func jobsShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show [jobId]",
		Short: "Show one job as JSON",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			job, err := apiClient().GetJob(context.Background(), args[0])
			if err != nil {
				fail(err)
			}
			data, _ := json.MarshalIndent(job, "", "  ")
			fmt.Println(string(data))
		},
	}
}

func jobsEditCmd() *cobra.Command {
	var (
		contact string
		message string
		at      string
		every   string
	)
	cmd := &cobra.Command{
		Use:   "edit [jobId]",
		Short: "Edit a job; changing the time or cadence re-derives the next run",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			var patch store.JobPatch
			if cmd.Flags().Changed("to") {
				patch.ContactName = &contact
			}
			if cmd.Flags().Changed("message") {
				patch.Message = &message
			}
			if cmd.Flags().Changed("at") {
				anchor, err := parseAnchor(at)
				if err != nil {
					fail(err)
				}
				patch.AnchorTime = &anchor
			}
			if cmd.Flags().Changed("every") {
				value, unit, err := jobfile.ParseEvery(every)
				if err != nil {
					fail(err)
				}
				patch.IntervalValue = &value
				patch.IntervalUnit = &unit
			}

			job, err := apiClient().UpdateJob(context.Background(), args[0], patch)
			if err != nil {
				fail(err)
			}
			fmt.Printf("Updated job %s", shortID(job.ID))
			if job.NextRun != nil {
				fmt.Printf(", next run %s", formatTime(*job.NextRun, displayLocation()))
			}
			fmt.Println()
		},
	}
	cmd.Flags().StringVar(&contact, "to", "", "new contact name")
	cmd.Flags().StringVar(&message, "message", "", "new message text")
	cmd.Flags().StringVar(&at, "at", "", "new anchor time, RFC 3339")
	cmd.Flags().StringVar(&every, "every", "", "new repeat cadence")
	return cmd
}

func jobsPauseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pause [jobId]",
		Short: "Pause a job; its cadence is preserved",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			if err := apiClient().SetJobStatus(context.Background(), args[0], store.StatusPaused); err != nil {
				fail(err)
			}
			fmt.Printf("Paused job %s\n", shortID(args[0]))
		},
	}
}

func jobsResumeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resume [jobId]",
		Short: "Resume a paused job on its original cadence",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			if err := apiClient().SetJobStatus(context.Background(), args[0], store.StatusActive); err != nil {
				fail(err)
			}
			fmt.Printf("Resumed job %s\n", shortID(args[0]))
		},
	}
}

func jobsDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete [jobId]",
		Short: "Delete a job (past send history is kept)",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			if err := apiClient().DeleteJob(context.Background(), args[0]); err != nil {
				fail(err)
			}
			fmt.Printf("Deleted job %s\n", shortID(args[0]))
		},
	}
}

func jobsApplyCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "apply",
		Short: "Create every job declared in a YAML job file",
		Run: func(cmd *cobra.Command, args []string) {
			data, err := os.ReadFile(file)
			if err != nil {
				fail(err)
			}
			specs, err := jobfile.Parse(data)
			if err != nil {
				fail(err)
			}

			c := apiClient()
			for _, spec := range specs {
				job, err := c.CreateJob(context.Background(), spec)
				if err != nil {
					fail(fmt.Errorf("create %q job for %q: %w", spec.Kind, spec.ContactName, err))
				}
				fmt.Printf("Scheduled %s job %s for %q\n", job.Kind, shortID(job.ID), job.ContactName)
			}
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "job file (required)")
	cmd.MarkFlagRequired("file")
	return cmd
}

// --- Shared display ---

func printJobs(jobs []store.Job, jsonOutput bool, loc *time.Location) {
	if jsonOutput {
		data, _ := json.MarshalIndent(jobs, "", "  ")
		fmt.Println(string(data))
		return
	}

	if len(jobs) == 0 {
		fmt.Println("No jobs scheduled.")
		return
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "ID\tKIND\tCONTACT\tSTATUS\tCADENCE\tNEXT RUN\tLAST RUN\n")
	for _, j := range jobs {
		cadence := "-"
		if j.Kind == store.KindRecurring {
			cadence = "every " + jobfile.FormatEvery(j.IntervalValue, j.IntervalUnit)
		}

		nextRun := "-"
		if j.NextRun != nil {
			nextRun = formatTime(*j.NextRun, loc)
		}
		lastRun := "never"
		if j.LastRun != nil {
			lastRun = formatTime(*j.LastRun, loc)
		}

		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			shortID(j.ID), j.Kind, j.ContactName, j.Status, cadence, nextRun, lastRun)
	}
	tw.Flush()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func formatTime(t time.Time, loc *time.Location) string {
	return t.In(loc).Format(time.DateTime)
}

// parseAnchor accepts RFC 3339 and the minute-precision local form
// "2006-01-02 15:04" in the display timezone.
func parseAnchor(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	if t, err := time.ParseInLocation("2006-01-02 15:04", s, displayLocation()); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("cannot parse time %q (want RFC 3339 or %q)", s, "2006-01-02 15:04")
}

// displayLocation resolves the daemon's timezone setting for rendering.
// Scheduling stays in UTC; this only affects what the terminal shows.
func displayLocation() *time.Location {
	settings, err := apiClient().ListSettings(context.Background())
	if err != nil {
		return time.Local
	}
	loc, err := clock.Location(settings[store.SettingTimezone])
	if err != nil || settings[store.SettingTimezone] == "" {
		return time.Local
	}
	return loc
}
