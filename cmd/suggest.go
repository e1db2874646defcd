package cmd

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/mention-radar/internal/consensus"
	"github.com/JakeFAU/mention-radar/internal/radar"
)

type suggestOptions struct {
	input       consensus.Input
	contextFile string
	importSlug  string
	categories  []string
	exclude     []string
}

func newSuggestCmd() *cobra.Command {
	opts := &suggestOptions{}
	cmd := &cobra.Command{
		Use:   "suggest",
		Short: "Ask several models for monitoring keywords and rank them by agreement",
		Long: "Queries every configured model concurrently, merges their proposals and marks the\n" +
			"keywords proposed by enough models as selected. With --import the selection is added\n" +
			"to an existing business.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			engine, err := app.Consensus()
			if err != nil {
				return err
			}
			if opts.contextFile != "" {
				raw, err := os.ReadFile(opts.contextFile)
				if err != nil {
					return fmt.Errorf("read context file: %w", err)
				}
				opts.input.Context = strings.TrimSpace(opts.input.Context + "\n" + string(raw))
			}

			result, err := engine.Suggest(cmd.Context(), opts.input)
			if err != nil {
				return err
			}
			session := consensus.NewSession(result, engine.PreselectThreshold())
			for _, c := range opts.categories {
				session.SelectCategory(radar.NormalizeCategory(c), true)
			}
			for _, kw := range opts.exclude {
				if session.IsSelected(kw) {
					if _, err := session.Toggle(kw); err != nil {
						return err
					}
				}
			}

			out := cmd.OutOrStdout()
			for _, m := range result.Failed() {
				fmt.Fprintf(out, "warning: %s contributed nothing: %v\n", m.Model, m.Err)
			}
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "SEL\tMODELS\tCATEGORY\tKEYWORD")
			for _, sg := range session.Suggestions() {
				mark := " "
				if session.IsSelected(sg.Keyword) {
					mark = "x"
				}
				fmt.Fprintf(tw, "[%s]\t%d (%s)\t%s\t%s\n", mark, sg.Count, strings.Join(sg.Models, ","), sg.Category, sg.Keyword)
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			fmt.Fprintf(out, "%d suggestions, %d selected\n", len(session.Suggestions()), len(session.Selected()))

			if opts.importSlug == "" {
				return nil
			}
			biz, err := app.Store().GetBusinessBySlug(cmd.Context(), opts.importSlug)
			if err != nil {
				return err
			}
			added, err := consensus.Import(cmd.Context(), app.Store(), app.IDs(), app.Clock(), biz.ID, session.Selected())
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "imported %d keywords into %s\n", added, biz.Slug)
			return nil
		},
	}
	cmd.Flags().StringVar(&opts.input.Name, "name", "", "business name (required)")
	cmd.Flags().StringVar(&opts.input.Domain, "domain", "", "business domain")
	cmd.Flags().StringVar(&opts.input.Description, "description", "", "what the business offers")
	cmd.Flags().StringVar(&opts.input.Context, "context", "", "additional context")
	cmd.Flags().StringVar(&opts.contextFile, "context-file", "", "file whose text is appended to the context")
	cmd.Flags().StringVar(&opts.importSlug, "import", "", "add the selected keywords to this business")
	cmd.Flags().StringArrayVar(&opts.categories, "select-category", nil, "also select every suggestion in this category")
	cmd.Flags().StringArrayVar(&opts.exclude, "exclude", nil, "deselect this keyword")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}
