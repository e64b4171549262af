// Package store persists archived guideline records in an append-only CSV file. The
// file doubles as the processed-key index that makes repeated runs idempotent.
package store

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/JakeFAU/guideline-archiver/internal/guideline"
)

// ErrHeaderMismatch reports a store whose first row is not the expected header.
var ErrHeaderMismatch = errors.New("store header mismatch")

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// CSVStore implements guideline.Store on a single CSV file.
type CSVStore struct {
	path   string
	mu     sync.Mutex
	logger *zap.Logger
}

var _ guideline.Store = (*CSVStore)(nil)

// NewCSVStore returns a store backed by path. Nothing touches the disk until
// Initialize.
func NewCSVStore(path string, logger *zap.Logger) (*CSVStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("store path is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CSVStore{path: path, logger: logger}, nil
}

// Path returns the backing file path.
func (s *CSVStore) Path() string {
	return s.path
}

// Initialize creates the parent directory and writes the header when the file is
// missing or empty. An existing non-empty file is left untouched.
func (s *CSVStore) Initialize() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create store directory: %w", err)
	}
	if fi, err := os.Stat(s.path); err == nil && fi.Size() > 0 {
		return nil
	} else if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("stat store: %w", err)
	}

	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("create store: %w", err)
	}
	w := csv.NewWriter(f)
	if err := w.Write(guideline.Header); err != nil {
		_ = f.Close()
		return fmt.Errorf("write header: %w", err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		_ = f.Close()
		return fmt.Errorf("flush header: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close store: %w", err)
	}
	s.logger.Info("created record store", zap.String("path", s.path))
	return nil
}

// LoadProcessedKeys returns every detail URL already recorded. It never fails: a
// missing or unreadable file, or one whose header does not match, yields an empty set.
func (s *CSVStore) LoadProcessedKeys() map[string]struct{} {
	keys := make(map[string]struct{})
	err := s.scan(func(row []string) {
		if len(row) <= guideline.KeyColumn {
			return
		}
		if key := row[guideline.KeyColumn]; key != "" {
			keys[key] = struct{}{}
		}
	})
	if err != nil {
		s.logger.Warn("could not load processed keys; treating store as empty",
			zap.String("path", s.path),
			zap.Error(err),
		)
		return make(map[string]struct{})
	}
	s.logger.Info("loaded processed keys", zap.Int("count", len(keys)))
	return keys
}

// Append writes one record. The lock covers only open, write, flush and close.
func (s *CSVStore) Append(record guideline.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open store for append: %w", err)
	}
	w := csv.NewWriter(f)
	if err := w.Write(record.Row()); err != nil {
		_ = f.Close()
		return fmt.Errorf("write record: %w", err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		_ = f.Close()
		return fmt.Errorf("flush record: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close store: %w", err)
	}
	return nil
}

// Records reads every stored record in file order.
func (s *CSVStore) Records() ([]guideline.Record, error) {
	var records []guideline.Record
	err := s.scan(func(row []string) {
		rec, err := guideline.RecordFromRow(row)
		if err != nil {
			s.logger.Warn("skipping row with wrong column count", zap.Int("columns", len(row)))
			return
		}
		records = append(records, rec)
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

// scan validates the header and feeds every parseable data row to fn. Rows csv
// cannot parse are skipped; column counts are left to fn.
func (s *CSVStore) scan(fn func(row []string)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.Open(s.path)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer func() { _ = f.Close() }()

	br := bufio.NewReader(f)
	if prefix, _ := br.Peek(len(utf8BOM)); string(prefix) == string(utf8BOM) {
		_, _ = br.Discard(len(utf8BOM))
	}
	r := csv.NewReader(br)
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err != nil {
		return fmt.Errorf("read header: %w", err)
	}
	if !headerMatches(header) {
		return fmt.Errorf("%w: got %v", ErrHeaderMismatch, header)
	}

	for {
		row, err := r.Read()
		if errors.Is(err, io.EOF) {
			return nil
		}
		var parseErr *csv.ParseError
		if errors.As(err, &parseErr) {
			s.logger.Warn("skipping malformed row", zap.Int("line", parseErr.Line), zap.Error(err))
			continue
		}
		if err != nil {
			return fmt.Errorf("read row: %w", err)
		}
		fn(row)
	}
}

func headerMatches(header []string) bool {
	if len(header) != len(guideline.Header) {
		return false
	}
	for i, col := range guideline.Header {
		if header[i] != col {
			return false
		}
	}
	return true
}
