// Package archive captures the document behind a guideline detail page, either by
// printing the rendered page or by downloading the linked file.
package archive

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gosimple/slug"
	"go.uber.org/zap"

	"github.com/JakeFAU/guideline-archiver/internal/guideline"
	"github.com/JakeFAU/guideline-archiver/internal/metrics"
)

var (
	// ErrNoMarker means the page loaded but neither capture strategy applied.
	ErrNoMarker = errors.New("no content marker or download link on page")
	// ErrEmptyHref means the download link exists but has no target.
	ErrEmptyHref = errors.New("download link has an empty href")
)

// Capture strategies, also used as metric labels.
const (
	StrategyPrint    = "print"
	StrategyDownload = "download"
	StrategyFailed   = "failed"
)

const (
	pdfContentType = "application/pdf"
	// DefaultMaxSlugLength keeps generated filenames well under common path limits.
	DefaultMaxSlugLength = 80
	fallbackSlug         = "guideline"
)

// Config controls filename generation.
type Config struct {
	MaxSlugLength int
}

// Archiver implements guideline.Archiver.
type Archiver struct {
	browser guideline.Browser
	getter  guideline.Getter
	blobs   guideline.BlobStore
	ids     guideline.IDGenerator
	cfg     Config
	logger  *zap.Logger
}

var _ guideline.Archiver = (*Archiver)(nil)

// New wires an Archiver. All collaborators except logger are required.
func New(
	browser guideline.Browser,
	getter guideline.Getter,
	blobs guideline.BlobStore,
	ids guideline.IDGenerator,
	cfg Config,
	logger *zap.Logger,
) (*Archiver, error) {
	switch {
	case browser == nil:
		return nil, fmt.Errorf("browser is required")
	case getter == nil:
		return nil, fmt.Errorf("getter is required")
	case blobs == nil:
		return nil, fmt.Errorf("blob store is required")
	case ids == nil:
		return nil, fmt.Errorf("id generator is required")
	}
	if cfg.MaxSlugLength <= 0 {
		cfg.MaxSlugLength = DefaultMaxSlugLength
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Archiver{
		browser: browser,
		getter:  getter,
		blobs:   blobs,
		ids:     ids,
		cfg:     cfg,
		logger:  logger,
	}, nil
}

// Archive renders detailURL in a fresh session and stores the captured PDF. It returns
// the stored location, or "" on any failure. It never panics and never returns an
// error; failures are logged with the url and title.
func (a *Archiver) Archive(ctx context.Context, detailURL, title string) (location string) {
	start := time.Now()
	strategy := StrategyFailed
	log := a.logger.With(zap.String("url", detailURL), zap.String("title", title))

	defer func() {
		if r := recover(); r != nil {
			log.Error("archive panicked", zap.Any("panic", r))
			location = ""
			strategy = StrategyFailed
		}
		metrics.ObserveArchive(strategy, time.Since(start))
	}()

	data, used, err := a.capture(ctx, detailURL)
	if err != nil {
		log.Warn("capture failed", zap.Error(err))
		return ""
	}

	name, err := a.filename(title)
	if err != nil {
		log.Error("build filename failed", zap.Error(err))
		return ""
	}
	location, err = a.blobs.PutObject(ctx, name, pdfContentType, bytes.NewReader(data))
	if err != nil {
		log.Error("store pdf failed", zap.String("name", name), zap.Error(err))
		return ""
	}

	strategy = used
	log.Info("guideline archived",
		zap.String("strategy", used),
		zap.String("location", location),
		zap.Int("bytes", len(data)),
	)
	return location
}

// capture opens a session, waits for either marker and applies the first strategy
// whose marker is present. The session is closed on every path.
func (a *Archiver) capture(ctx context.Context, detailURL string) (data []byte, strategy string, err error) {
	session, err := a.browser.NewSession(ctx)
	if err != nil {
		return nil, "", fmt.Errorf("open session: %w", err)
	}
	defer func() {
		if closeErr := session.Close(); closeErr != nil {
			a.logger.Debug("close session", zap.String("url", detailURL), zap.Error(closeErr))
		}
	}()

	if err := session.Navigate(detailURL); err != nil {
		return nil, "", err
	}
	if err := session.WaitForDocument(); err != nil {
		return nil, "", err
	}

	hasContent, err := session.HasContent()
	if err != nil {
		return nil, "", err
	}
	if hasContent {
		data, err := session.PrintPDF()
		if err != nil {
			return nil, "", err
		}
		return data, StrategyPrint, nil
	}

	href, found, err := session.DocumentLink()
	if err != nil {
		return nil, "", err
	}
	if !found {
		return nil, "", ErrNoMarker
	}
	if strings.TrimSpace(href) == "" {
		return nil, "", ErrEmptyHref
	}
	data, err = a.getter.Get(ctx, href)
	if err != nil {
		return nil, "", fmt.Errorf("download %s: %w", href, err)
	}
	return data, StrategyDownload, nil
}

func (a *Archiver) filename(title string) (string, error) {
	suffix, err := a.ids.NewSuffix()
	if err != nil {
		return "", fmt.Errorf("generate suffix: %w", err)
	}
	return Filename(title, suffix, a.cfg.MaxSlugLength), nil
}

// Filename builds "<slug>-<suffix>.pdf". The slug is cut to maxLen characters without
// leaving a trailing separator.
func Filename(title, suffix string, maxLen int) string {
	s := slug.Make(title)
	if maxLen > 0 && len(s) > maxLen {
		s = strings.TrimRight(s[:maxLen], "-")
	}
	if s == "" {
		s = fallbackSlug
	}
	return s + "-" + slug.Make(suffix) + ".pdf"
}
