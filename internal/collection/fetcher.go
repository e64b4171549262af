// Package collection pages through the upstream guideline search endpoint.
package collection

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"

	"go.uber.org/zap"

	"github.com/JakeFAU/guideline-archiver/internal/guideline"
)

// ErrPageLimitExhausted is returned alongside the accumulated items when the upstream
// never signalled completion before the configured page ceiling.
var ErrPageLimitExhausted = errors.New("page limit exhausted before upstream signalled completion")

const (
	// DefaultPageSize is the page[limit] sent on every request.
	DefaultPageSize = 100
	// DefaultMaxPages bounds pagination when the upstream never terminates.
	DefaultMaxPages = 1000
)

// Query carries the search parameters forwarded to the upstream endpoint.
type Query struct {
	SearchTerm     string
	Professions    string
	SourceType     string
	SourceCategory string
	Publisher      string
	ActivityRef    string
	PublishedDate  string
}

// Config controls pagination.
type Config struct {
	BaseURL  string
	Query    Query
	PageSize int
	MaxPages int
}

// Fetcher implements guideline.Source over a paginated JSON endpoint.
type Fetcher struct {
	cfg    Config
	getter guideline.Getter
	logger *zap.Logger
}

var _ guideline.Source = (*Fetcher)(nil)

type page struct {
	Guidelines []guideline.Guideline `json:"guidelines"`
	Pagination struct {
		TotalPages int `json:"totalPages"`
	} `json:"pagination"`
}

// New builds a Fetcher.
func New(cfg Config, getter guideline.Getter, logger *zap.Logger) (*Fetcher, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base url is required")
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if getter == nil {
		return nil, fmt.Errorf("getter is required")
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = DefaultPageSize
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = DefaultMaxPages
	}
	if cfg.Query.PublishedDate == "" {
		cfg.Query.PublishedDate = "desc"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fetcher{cfg: cfg, getter: getter, logger: logger}, nil
}

// FetchAll walks pages from offset 1 until an empty page or the reported total page
// count. A failing page ends pagination and the items gathered so far are returned
// without an error.
func (f *Fetcher) FetchAll(ctx context.Context) ([]guideline.Guideline, error) {
	var all []guideline.Guideline
	for offset := 1; ; offset++ {
		if offset > f.cfg.MaxPages {
			f.logger.Warn("page ceiling reached",
				zap.Int("max_pages", f.cfg.MaxPages),
				zap.Int("fetched", len(all)),
			)
			return all, ErrPageLimitExhausted
		}

		f.logger.Info("fetching page", zap.Int("offset", offset), zap.Int("limit", f.cfg.PageSize))
		p, err := f.fetchPage(ctx, offset)
		if err != nil {
			f.logger.Error("page fetch failed; stopping pagination",
				zap.Int("offset", offset),
				zap.Error(err),
			)
			break
		}
		if len(p.Guidelines) == 0 {
			f.logger.Info("empty page; stopping pagination", zap.Int("offset", offset))
			break
		}
		all = append(all, p.Guidelines...)

		total := p.Pagination.TotalPages
		if total > 0 && offset >= total {
			break
		}
	}
	f.logger.Info("collection fetched", zap.Int("guidelines", len(all)))
	return all, nil
}

func (f *Fetcher) fetchPage(ctx context.Context, offset int) (page, error) {
	body, err := f.getter.Get(ctx, f.pageURL(offset))
	if err != nil {
		return page{}, fmt.Errorf("get page %d: %w", offset, err)
	}
	var p page
	if err := json.Unmarshal(body, &p); err != nil {
		return page{}, fmt.Errorf("decode page %d: %w", offset, err)
	}
	return p, nil
}

func (f *Fetcher) pageURL(offset int) string {
	u, _ := url.Parse(f.cfg.BaseURL)
	q := u.Query()
	q.Set("searchTerm", f.cfg.Query.SearchTerm)
	q.Set("professions", f.cfg.Query.Professions)
	q.Set("sourceType", f.cfg.Query.SourceType)
	q.Set("sourceCategory", f.cfg.Query.SourceCategory)
	q.Set("publisher", f.cfg.Query.Publisher)
	q.Set("page[limit]", strconv.Itoa(f.cfg.PageSize))
	q.Set("page[offset]", strconv.Itoa(offset))
	q.Set("activity_ref", f.cfg.Query.ActivityRef)
	q.Set("published_date", f.cfg.Query.PublishedDate)
	u.RawQuery = q.Encode()
	return u.String()
}
