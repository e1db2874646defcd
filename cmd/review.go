package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/mention-radar/internal/radar"
)

func newOpportunitiesCmd() *cobra.Command {
	var filter radar.OpportunityFilter
	var status string
	cmd := &cobra.Command{
		Use:   "opportunities",
		Short: "List high-relevance verdicts, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			filter.Status = radar.AnalysisStatus(status)
			opps, err := app.Store().ListOpportunities(cmd.Context(), filter)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tREL\tURGENCY\tSTATUS\tBUSINESS\tSOURCE\tTITLE\tURL")
			for _, o := range opps {
				name := o.BusinessName
				if name == "" {
					name = "-"
				}
				fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%s\t%s\t%s\t%s\n",
					o.ID, o.RelevanceScore, o.Urgency, o.Status, name, o.Post.Source, truncate(o.Post.Title, 60), o.Post.URL)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&filter.BusinessSlug, "business", "", "only this business slug")
	cmd.Flags().StringVar(&status, "status", "", "only this status (new, reviewed, actioned, ignored)")
	cmd.Flags().IntVar(&filter.MinRelevance, "min-relevance", radar.HighPriorityRelevance, "minimum relevance score")
	cmd.Flags().IntVar(&filter.Limit, "limit", 50, "maximum rows")
	return cmd
}

func newMarkCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mark <analysis-id> <reviewed|actioned|ignored>",
		Short: "Move an opportunity through the review workflow",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			status := radar.AnalysisStatus(args[1])
			if err := app.Store().UpdateAnalysisStatus(cmd.Context(), args[0], status); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s -> %s\n", args[0], status)
			return nil
		},
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
