package cmd

import (
	"context"
	"encoding/json"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spigell/resume-desk/internal/backend"
	"github.com/spigell/resume-desk/internal/pdf"
)

var coverLettersCmd = &cobra.Command{
	Use:     "cover-letters",
	Aliases: []string{"letters"},
	Short:   "Browse, search and manage cover letters",
	Run: func(cmd *cobra.Command, _ []string) {
		e := setup()

		source := &backend.CoverLetterSource{
			Client:   e.client,
			ResumeID: flagString(cmd, "resume"),
		}

		if err := browse[backend.CoverLetter](context.Background(), e, source, coverLetterView, listOptions(cmd, e.config), os.Stdout); err != nil {
			e.logger.Fatal("browsing cover letters", zap.Error(err))
		}
	},
}

var coverLetterView = itemView[backend.CoverLetter]{
	title: "Cover letters",
	label: func(c backend.CoverLetter) string {
		parts := []string{c.Title}
		if c.UpdatedAt != "" {
			parts = append(parts, "updated "+c.UpdatedAt)
		}
		return strings.Join(parts, "  ")
	},
	document: pdf.CoverLetterDocument,
	content:  func(c backend.CoverLetter) json.RawMessage { return c.Content },
}

func init() {
	rootCmd.AddCommand(coverLettersCmd)

	addListFlags(coverLettersCmd)
	coverLettersCmd.Flags().String("resume", "", "show only cover letters written for this resume id")
}
