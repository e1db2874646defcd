package cmd

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/mention-radar/internal/business"
	"github.com/JakeFAU/mention-radar/internal/radar"
	"github.com/JakeFAU/mention-radar/internal/server"
)

func businessService(app *server.App) *business.Service {
	return business.NewService(app.Store(), app.IDs(), app.Clock())
}

func newBusinessCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "business",
		Short: "Register and manage monitored businesses",
	}
	cmd.AddCommand(
		newBusinessAddCmd(),
		newBusinessListCmd(),
		newBusinessShowCmd(),
		newBusinessActiveCmd("activate", true),
		newBusinessActiveCmd("deactivate", false),
		newBusinessDeleteCmd(),
	)
	return cmd
}

func newBusinessAddCmd() *cobra.Command {
	var reg business.Registration
	var keywords []string
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Register a business; the slug is derived from its name",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			for _, raw := range keywords {
				reg.Keywords = append(reg.Keywords, parseKeywordArg(raw))
			}
			biz, err := businessService(app).Register(cmd.Context(), reg)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "registered %s (%s) with %d keywords\n", biz.Name, biz.Slug, biz.KeywordCount)
			return nil
		},
	}
	cmd.Flags().StringVar(&reg.Name, "name", "", "business name (required)")
	cmd.Flags().StringVar(&reg.Domain, "domain", "", "business domain")
	cmd.Flags().StringVar(&reg.Description, "description", "", "what the business offers")
	cmd.Flags().StringVar(&reg.Context, "context", "", "additional context for the classifier")
	cmd.Flags().StringArrayVar(&keywords, "keyword", nil, "keyword to monitor, optionally prefixed with a category (pain_point:slow sync)")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func newBusinessListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List businesses, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			list, err := app.Store().ListBusinesses(cmd.Context())
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "SLUG\tNAME\tACTIVE\tKEYWORDS\tCREATED")
			for _, b := range list {
				fmt.Fprintf(tw, "%s\t%s\t%t\t%d\t%s\n", b.Slug, b.Name, b.Active, b.KeywordCount,
					b.CreatedAt.UTC().Format("2006-01-02"))
			}
			return tw.Flush()
		},
	}
}

func newBusinessShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <slug>",
		Short: "Show a business and its keywords",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			biz, keywords, err := businessService(app).Lookup(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s (%s) active=%t\n", biz.Name, biz.Slug, biz.Active)
			if biz.Domain != "" {
				fmt.Fprintf(out, "domain: %s\n", biz.Domain)
			}
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tCATEGORY\tACTIVE\tKEYWORD")
			for _, kw := range keywords {
				fmt.Fprintf(tw, "%s\t%s\t%t\t%s\n", kw.ID, kw.Category, kw.Active, kw.Text)
			}
			return tw.Flush()
		},
	}
}

func newBusinessActiveCmd(use string, active bool) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <slug>",
		Short: strings.ToUpper(use[:1]) + use[1:] + " a business",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			if err := businessService(app).SetActive(cmd.Context(), args[0], active); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s active=%t\n", args[0], active)
			return nil
		},
	}
}

func newBusinessDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <slug>",
		Short: "Delete a business and its keywords; its opportunities become unattributed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			if err := businessService(app).Delete(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[0])
			return nil
		},
	}
}

func newKeywordCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keyword",
		Short: "Manage the keywords of a business",
	}
	cmd.AddCommand(newKeywordAddCmd(), newKeywordToggleCmd(), newKeywordDeleteCmd())
	return cmd
}

func newKeywordAddCmd() *cobra.Command {
	var category string
	cmd := &cobra.Command{
		Use:   "add <slug> <keyword>",
		Short: "Add an active keyword to a business",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			kw, err := businessService(app).AddKeyword(cmd.Context(), args[0],
				business.KeywordInput{Text: args[1], Category: category})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "added %q (%s) id=%s\n", kw.Text, kw.Category, kw.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&category, "category", string(radar.CategoryDirect), "keyword category")
	return cmd
}

func newKeywordToggleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "toggle <slug> <keyword-id>",
		Short: "Flip a keyword between active and inactive",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			_, keywords, err := businessService(app).Lookup(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			for _, kw := range keywords {
				if kw.ID != args[1] {
					continue
				}
				if err := app.Store().SetKeywordActive(cmd.Context(), kw.ID, !kw.Active); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%q active=%t\n", kw.Text, !kw.Active)
				return nil
			}
			return fmt.Errorf("keyword %s of %s: %w", args[1], args[0], radar.ErrNotFound)
		},
	}
}

func newKeywordDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <keyword-id>",
		Short: "Delete a keyword",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			if err := app.Store().DeleteKeyword(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted keyword %s\n", args[0])
			return nil
		},
	}
}

// parseKeywordArg splits "category:text" when the prefix names a known category.
func parseKeywordArg(raw string) business.KeywordInput {
	if prefix, text, ok := strings.Cut(raw, ":"); ok {
		for _, c := range radar.Categories {
			if string(c) == prefix {
				return business.KeywordInput{Text: text, Category: prefix}
			}
		}
	}
	return business.KeywordInput{Text: raw, Category: string(radar.CategoryDirect)}
}
