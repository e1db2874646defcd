package cmd

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/mention-radar/internal/heartbeat"
	"github.com/JakeFAU/mention-radar/internal/job"
	"github.com/JakeFAU/mention-radar/internal/radar"
)

var errJobsFailed = errors.New("one or more jobs failed")

func newScrapeCmd(opts *rootOptions) *cobra.Command {
	names := make([]string, 0, len(radar.AllSources))
	for _, s := range radar.AllSources {
		names = append(names, string(s))
	}
	return &cobra.Command{
		Use:   "scrape <source>|all",
		Short: "Collect new posts from one upstream or all of them",
		Long: "Runs the adapter for the given source (" + strings.Join(names, ", ") + ") or, with \"all\",\n" +
			"every enabled adapter concurrently. Each run records a heartbeat.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			var want []radar.Source
			if args[0] != "all" {
				src, ok := radar.ParseSource(args[0])
				if !ok {
					return fmt.Errorf("unknown source %q (want one of %s or all)", args[0], strings.Join(names, ", "))
				}
				want = append(want, src)
			}
			jobs, err := app.ScrapeJobs(want...)
			if err != nil {
				return err
			}
			outcomes := app.Runner().RunAll(cmd.Context(), jobs)
			printOutcomes(cmd.OutOrStdout(), outcomes)
			return exitStatus(outcomes, opts.strict)
		},
	}
}

func newClassifyCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "classify",
		Short: "Classify the newest unclassified posts against active businesses",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			classify, err := app.ClassifyJob()
			if err != nil {
				return err
			}
			outcome := app.Runner().Run(cmd.Context(), classify)
			printOutcomes(cmd.OutOrStdout(), []job.Outcome{outcome})
			return exitStatus([]job.Outcome{outcome}, opts.strict)
		},
	}
}

func newHealthCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Report when each adapter and the classifier last succeeded",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			names := heartbeat.Names()
			reports, err := app.Tracker().Health(cmd.Context(), names, app.Clock().Now())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "COMPONENT\tSTATUS\tLAST SUCCESS\tPOSTS\tLAST ERROR")
			for _, r := range reports {
				last, posts, lastErr := "-", "-", ""
				if hb := r.Heartbeat; hb != nil {
					if hb.LastSuccess != nil {
						last = hb.LastSuccess.UTC().Format("2006-01-02 15:04")
					}
					posts = fmt.Sprint(hb.PostCount)
					lastErr = hb.LastError
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", r.Name, r.State.Label(), last, posts, lastErr)
			}
			_ = tw.Flush()
			healthy := heartbeat.HealthyCount(reports)
			fmt.Fprintf(out, "%d/%d healthy\n", healthy, len(reports))
			if opts.strict && healthy < len(reports) {
				return fmt.Errorf("%d components unhealthy", len(reports)-healthy)
			}
			return nil
		},
	}
}

func printOutcomes(w io.Writer, outcomes []job.Outcome) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "JOB\tRESULT\tCOUNT\tDURATION\tERROR")
	for _, o := range outcomes {
		result, errText := "ok", ""
		if !o.Success {
			result = "failed"
			errText = o.Err.Error()
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\n", o.Name, result, o.Count, o.Duration().Round(time.Millisecond), errText)
	}
	_ = tw.Flush()
}

// exitStatus reports failures to the shell only in strict mode; otherwise the heartbeat is the signal.
func exitStatus(outcomes []job.Outcome, strict bool) error {
	if job.ExitCode(outcomes, strict) != 0 {
		return errJobsFailed
	}
	return nil
}
