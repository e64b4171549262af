package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/guideline-archiver/internal/guideline"
	"github.com/JakeFAU/guideline-archiver/internal/store"
)

// storeStatus describes the record store contents.
type storeStatus struct {
	Rows         int
	WithPDF      int
	MissingFiles int
}

func newStatusCmd() *cobra.Command {
	var outputDir string
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Reports record store size and PDF coverage",
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := resolveEnv(cmd.Context())
			if err != nil {
				return err
			}
			cfg := e.cfg
			if cmd.Flags().Changed("output-dir") {
				cfg.Storage.OutputDir = outputDir
			}

			records, err := store.NewCSVStore(cfg.StorePath(), e.logger.Named("store"))
			if err != nil {
				return err
			}
			rows, err := records.Records()
			if errors.Is(err, os.ErrNotExist) {
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "no record store at %s\n", records.Path())
				return nil
			}
			if err != nil {
				return fmt.Errorf("read record store: %w", err)
			}
			writeStatus(cmd.OutOrStdout(), records.Path(), summarize(rows, fileExists))
			return nil
		},
	}
	cmd.Flags().StringVar(&outputDir, "output-dir", "", "directory holding the record store")
	return cmd
}

// summarize counts rows and PDF coverage. Local PDF paths are checked with exists;
// object-store locations are trusted.
func summarize(rows []guideline.Record, exists func(string) bool) storeStatus {
	var st storeStatus
	for _, rec := range rows {
		st.Rows++
		if rec.PDFPath == "" {
			continue
		}
		st.WithPDF++
		if !strings.Contains(rec.PDFPath, "://") && !exists(rec.PDFPath) {
			st.MissingFiles++
		}
	}
	return st
}

func writeStatus(w io.Writer, path string, st storeStatus) {
	coverage := 0.0
	if st.Rows > 0 {
		coverage = 100 * float64(st.WithPDF) / float64(st.Rows)
	}
	_, _ = fmt.Fprintf(w, "store:         %s\n", path)
	_, _ = fmt.Fprintf(w, "rows:          %d\n", st.Rows)
	_, _ = fmt.Fprintf(w, "with pdf:      %d (%.1f%%)\n", st.WithPDF, coverage)
	_, _ = fmt.Fprintf(w, "metadata only: %d\n", st.Rows-st.WithPDF)
	if st.MissingFiles > 0 {
		_, _ = fmt.Fprintf(w, "missing files: %d\n", st.MissingFiles)
	}
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
