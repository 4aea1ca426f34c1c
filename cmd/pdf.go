package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spigell/resume-desk/internal/backend"
	"github.com/spigell/resume-desk/internal/pdf"
)

var pdfCmd = &cobra.Command{
	Use:       "pdf resume|cover-letter <id>",
	Short:     "Generate the PDF of a resume or cover letter and save it",
	Args:      cobra.ExactArgs(2),
	ValidArgs: []string{string(backend.KindResume), string(backend.KindCoverLetter)},
	Run: func(cmd *cobra.Command, args []string) {
		e := setup()

		path, err := fetchPdf(context.Background(), e, backend.Kind(args[0]), args[1], flagString(cmd, "out"), flagString(cmd, "name"))
		if err != nil {
			var precondition *pdf.PreconditionError
			if errors.As(err, &precondition) {
				e.logger.Fatal(precondition.Message, zap.String("hint", precondition.Remediation))
			}
			e.logger.Fatal("getting pdf", zap.String("error", backend.ErrorMessage(err, "failed to get pdf")))
		}

		fmt.Println(path)
	},
}

func init() {
	rootCmd.AddCommand(pdfCmd)

	pdfCmd.Flags().StringP("out", "o", "", "directory to save into (default is pdf.download-dir)")
	pdfCmd.Flags().String("name", "", "file name (default is the document title)")
}

func fetchPdf(ctx context.Context, e *env, kind backend.Kind, id, outDir, name string) (string, error) {
	var doc pdf.Document

	switch kind {
	case backend.KindResume:
		resume, err := e.client.GetResume(ctx, id)
		if err != nil {
			return "", err
		}
		doc = pdf.ResumeDocument(*resume)
	case backend.KindCoverLetter:
		letter, err := e.client.GetCoverLetter(ctx, id)
		if err != nil {
			return "", err
		}
		doc = pdf.CoverLetterDocument(*letter)
	default:
		return "", fmt.Errorf("unknown document kind %q, expected %s or %s", kind, backend.KindResume, backend.KindCoverLetter)
	}

	session := e.newSession(outDir)
	defer session.Close()

	e.logger.Info("generating pdf", zap.String("title", doc.Title), zap.Duration("timeout", e.config.PDF.TimeoutDuration()))

	if err := session.Retrieve(ctx, doc, pdf.Options{Timeout: e.config.PDF.TimeoutDuration()}); err != nil {
		return "", err
	}

	if name == "" {
		name = doc.Title
	}

	return session.Download(ctx, name)
}
