package cmd

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/guideline-archiver/internal/guideline"
	"github.com/JakeFAU/guideline-archiver/internal/store"
)

func writeConfig(t *testing.T, outputDir string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := fmt.Sprintf("storage:\n  output_dir: %q\nlogging:\n  development: false\n  level: error\n", outputDir)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestStatusReportsCoverage(t *testing.T) {
	t.Parallel()

	out := t.TempDir()
	pdf := filepath.Join(out, "pdfs", "a.pdf")
	require.NoError(t, os.MkdirAll(filepath.Dir(pdf), 0o755))
	require.NoError(t, os.WriteFile(pdf, []byte("%PDF"), 0o600))

	s, err := store.NewCSVStore(filepath.Join(out, "Ebpnet.csv"), zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, s.Initialize())
	require.NoError(t, s.Append(guideline.Record{Title: "A", DetailURL: "/a", PDFPath: pdf}))
	require.NoError(t, s.Append(guideline.Record{Title: "B", DetailURL: "/b"}))

	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{"status", "--config", writeConfig(t, out)}, &stdout, &stderr)

	require.Equal(t, ExitOK, code, stderr.String())
	assert.Contains(t, stdout.String(), "rows:          2")
	assert.Contains(t, stdout.String(), "with pdf:      1 (50.0%)")
	assert.NotContains(t, stdout.String(), "missing files")
}

func TestStatusWithoutStore(t *testing.T) {
	t.Parallel()

	out := t.TempDir()
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{"status", "--config", writeConfig(t, out)}, &stdout, &stderr)

	require.Equal(t, ExitOK, code, stderr.String())
	assert.Contains(t, stdout.String(), "no record store")
}

func TestRunBadConfigIsFatal(t *testing.T) {
	t.Parallel()

	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{"status", "--config", filepath.Join(t.TempDir(), "nope.yaml")}, &stdout, &stderr)

	require.Equal(t, ExitFatal, code)
	assert.Contains(t, stderr.String(), "load config")
}

func TestArchiveRejectsInvalidFlags(t *testing.T) {
	t.Parallel()

	out := t.TempDir()
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{"archive", "--config", writeConfig(t, out), "--workers", "0"}, &stdout, &stderr)

	require.Equal(t, ExitFatal, code)
	assert.Contains(t, stderr.String(), "pipeline.workers")
}

func TestExitCode(t *testing.T) {
	t.Parallel()

	var stderr bytes.Buffer
	assert.Equal(t, ExitOK, exitCode(nil, &stderr))
	assert.Equal(t, ExitNothing, exitCode(fmt.Errorf("run: %w", ErrNothingToProcess), &stderr))
	assert.Empty(t, stderr.String())
	assert.Equal(t, ExitFatal, exitCode(errors.New("boom"), &stderr))
	assert.Contains(t, stderr.String(), "boom")
}

func TestSummarize(t *testing.T) {
	t.Parallel()

	rows := []guideline.Record{
		{PDFPath: "data/pdfs/present.pdf"},
		{PDFPath: "data/pdfs/gone.pdf"},
		{PDFPath: "gs://bucket/pdfs/x.pdf"},
		{},
	}
	exists := func(p string) bool { return p == "data/pdfs/present.pdf" }

	st := summarize(rows, exists)
	assert.Equal(t, storeStatus{Rows: 4, WithPDF: 3, MissingFiles: 1}, st)
}
