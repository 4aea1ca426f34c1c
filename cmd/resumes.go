package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spigell/resume-desk/internal/backend"
	"github.com/spigell/resume-desk/internal/listing"
	"github.com/spigell/resume-desk/internal/pdf"
)

var resumesCmd = &cobra.Command{
	Use:   "resumes",
	Short: "Browse, search and manage resumes",
	Run: func(cmd *cobra.Command, _ []string) {
		e := setup()

		source := &backend.ResumeSource{
			Client:     e.client,
			TemplateID: flagString(cmd, "template"),
		}

		if err := browse[backend.Resume](context.Background(), e, source, resumeView, listOptions(cmd, e.config), os.Stdout); err != nil {
			e.logger.Fatal("browsing resumes", zap.Error(err))
		}
	},
}

var resumeView = itemView[backend.Resume]{
	title: "Resumes",
	label: func(r backend.Resume) string {
		parts := []string{r.Title}
		if r.PortfolioID == "" {
			parts = append(parts, "(no portfolio)")
		}
		if r.UpdatedAt != "" {
			parts = append(parts, "updated "+r.UpdatedAt)
		}
		return strings.Join(parts, "  ")
	},
	document: pdf.ResumeDocument,
	content:  func(r backend.Resume) json.RawMessage { return r.Content },
}

func init() {
	rootCmd.AddCommand(resumesCmd)

	addListFlags(resumesCmd)
	resumesCmd.Flags().String("template", "", "show only resumes built from this template id")
}

func addListFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("search", "s", "", "initial title search")
	cmd.Flags().String("sort", "", fmt.Sprintf("sort order, one of %v", backend.SortKeys))
	cmd.Flags().IntP("page-size", "n", 0, fmt.Sprintf("items per page, one of %v", listing.PageSizes))
}

// listOptions prefers flags set on the command line over the configuration.
func listOptions(cmd *cobra.Command, config *Config) listing.Options {
	opts := listing.Options{
		PageSize: config.List.PageSize,
		SortKey:  backend.SortKey(config.List.Sort),
		Debounce: config.List.Debounce,
	}

	if cmd.Flags().Changed("sort") {
		opts.SortKey = backend.SortKey(flagString(cmd, "sort"))
	}
	if cmd.Flags().Changed("page-size") {
		if n, err := cmd.Flags().GetInt("page-size"); err == nil {
			opts.PageSize = n
		}
	}
	opts.SearchTerm = flagString(cmd, "search")

	return opts
}

func flagString(cmd *cobra.Command, name string) string {
	value, err := cmd.Flags().GetString(name)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(value)
}
