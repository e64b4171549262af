package store

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/guideline-archiver/internal/guideline"
)

const wantHeaderLine = "title,published_date,publisher,professions,source_label,source_type,frontend_url,pdf_path\n"

func newStore(t *testing.T) *CSVStore {
	t.Helper()
	s, err := NewCSVStore(filepath.Join(t.TempDir(), "data", "Ebpnet.csv"), zap.NewNop())
	require.NoError(t, err)
	return s
}

func TestInitializeCreatesHeader(t *testing.T) {
	t.Parallel()

	s := newStore(t)
	require.NoError(t, s.Initialize())

	raw, err := os.ReadFile(s.Path())
	require.NoError(t, err)
	require.Equal(t, wantHeaderLine, string(raw))
}

func TestInitializeIsIdempotent(t *testing.T) {
	t.Parallel()

	s := newStore(t)
	require.NoError(t, s.Initialize())
	require.NoError(t, s.Append(guideline.Record{Title: "A", DetailURL: "/nl/guideline/a"}))
	require.NoError(t, s.Initialize())

	records, err := s.Records()
	require.NoError(t, err)
	require.Len(t, records, 1)
}

func TestInitializeFailsOnUnwritableDirectory(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o600))

	s, err := NewCSVStore(filepath.Join(blocker, "Ebpnet.csv"), nil)
	require.NoError(t, err)
	require.Error(t, s.Initialize())
}

func TestLoadProcessedKeys(t *testing.T) {
	t.Parallel()

	s := newStore(t)
	require.NoError(t, s.Initialize())
	require.NoError(t, s.Append(guideline.Record{Title: "A", DetailURL: "/nl/guideline/a", PDFPath: "pdfs/a.pdf"}))
	require.NoError(t, s.Append(guideline.Record{Title: "B, with comma", DetailURL: "/nl/guideline/b"}))

	keys := s.LoadProcessedKeys()
	require.Len(t, keys, 2)
	assert.Contains(t, keys, "/nl/guideline/a")
	assert.Contains(t, keys, "/nl/guideline/b")
}

func TestLoadProcessedKeysMissingFile(t *testing.T) {
	t.Parallel()

	s := newStore(t)
	require.Empty(t, s.LoadProcessedKeys())
}

func TestLoadProcessedKeysHeaderMismatch(t *testing.T) {
	t.Parallel()

	s := newStore(t)
	require.NoError(t, os.MkdirAll(filepath.Dir(s.Path()), 0o755))
	content := "title,url\nA,/nl/guideline/a\n"
	require.NoError(t, os.WriteFile(s.Path(), []byte(content), 0o644))

	require.Empty(t, s.LoadProcessedKeys())

	_, err := s.Records()
	require.ErrorIs(t, err, ErrHeaderMismatch)
}

func TestLoadProcessedKeysSkipsTruncatedRow(t *testing.T) {
	t.Parallel()

	s := newStore(t)
	require.NoError(t, s.Initialize())
	require.NoError(t, s.Append(guideline.Record{Title: "A", DetailURL: "/nl/guideline/a"}))

	f, err := os.OpenFile(s.Path(), os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString("B,2024,pub\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	keys := s.LoadProcessedKeys()
	require.Len(t, keys, 1)
	require.Contains(t, keys, "/nl/guideline/a")
}

func TestLoadProcessedKeysRequiresExactHeader(t *testing.T) {
	t.Parallel()

	s := newStore(t)
	require.NoError(t, os.MkdirAll(filepath.Dir(s.Path()), 0o755))
	content := " title,published_date,publisher,professions,source_label,source_type,frontend_url,pdf_path\n" +
		"A,,,,,,/nl/guideline/a,\n"
	require.NoError(t, os.WriteFile(s.Path(), []byte(content), 0o644))

	require.Empty(t, s.LoadProcessedKeys())
}

func TestLoadProcessedKeysAcceptsBOM(t *testing.T) {
	t.Parallel()

	s := newStore(t)
	require.NoError(t, os.MkdirAll(filepath.Dir(s.Path()), 0o755))
	content := "\xEF\xBB\xBF" + wantHeaderLine + "A,,,,,,/nl/guideline/a,\n"
	require.NoError(t, os.WriteFile(s.Path(), []byte(content), 0o644))

	require.Contains(t, s.LoadProcessedKeys(), "/nl/guideline/a")
}

func TestLoadProcessedKeysKeepsShortRowWithKey(t *testing.T) {
	t.Parallel()

	s := newStore(t)
	require.NoError(t, s.Initialize())

	f, err := os.OpenFile(s.Path(), os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString("A,2024,pub,prof,label,type,/nl/guideline/short\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	require.Contains(t, s.LoadProcessedKeys(), "/nl/guideline/short")

	records, err := s.Records()
	require.NoError(t, err)
	require.Empty(t, records)
}

func TestLoadProcessedKeysKeepsKeyVerbatim(t *testing.T) {
	t.Parallel()

	s := newStore(t)
	require.NoError(t, s.Initialize())
	require.NoError(t, s.Append(guideline.Record{Title: "A", DetailURL: " /nl/guideline/a "}))

	keys := s.LoadProcessedKeys()
	require.Contains(t, keys, " /nl/guideline/a ")
}

func TestAppendRoundTrip(t *testing.T) {
	t.Parallel()

	s := newStore(t)
	require.NoError(t, s.Initialize())
	rec := guideline.Record{
		Title:         "Hypertensie \"quoted\"",
		PublishedDate: "2023-01-01",
		Publisher:     "Domus Medica | NHG",
		Professions:   "Huisarts, Apotheker",
		SourceLabel:   "Richtlijn",
		SourceType:    "guideline",
		DetailURL:     "/nl/guideline/h",
		PDFPath:       "",
	}
	require.NoError(t, s.Append(rec))

	records, err := s.Records()
	require.NoError(t, err)
	require.Equal(t, []guideline.Record{rec}, records)
}

func TestAppendWithoutInitializeFails(t *testing.T) {
	t.Parallel()

	s := newStore(t)
	require.Error(t, s.Append(guideline.Record{Title: "A"}))
}

func TestConcurrentAppends(t *testing.T) {
	t.Parallel()

	s := newStore(t)
	require.NoError(t, s.Initialize())

	const n = 50
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, s.Append(guideline.Record{
				Title:     strings.Repeat("t", i+1),
				DetailURL: fmt.Sprintf("/nl/guideline/%d", i),
			}))
		}(i)
	}
	wg.Wait()

	records, err := s.Records()
	require.NoError(t, err)
	require.Len(t, records, n)
	require.Len(t, s.LoadProcessedKeys(), n)
}

func TestNewCSVStoreRequiresPath(t *testing.T) {
	t.Parallel()

	_, err := NewCSVStore(" ", nil)
	require.Error(t, err)
}
