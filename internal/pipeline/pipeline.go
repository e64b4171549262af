// Package pipeline runs one archive pass: collect the upstream collection, filter it
// down to new public guidelines, and archive each one on a bounded worker pool.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/guideline-archiver/internal/collection"
	"github.com/JakeFAU/guideline-archiver/internal/guideline"
	"github.com/JakeFAU/guideline-archiver/internal/metrics"
)

// ErrAlreadyRunning is returned when Run is called while another Run is in progress.
var ErrAlreadyRunning = errors.New("pipeline is already running")

// DefaultWorkers is the pool width used when Config.Workers is unset.
const DefaultWorkers = 5

// Outcome summarizes how a run ended.
type Outcome string

// Run outcomes.
const (
	OutcomeProcessed        Outcome = "processed"
	OutcomeNothingFetched   Outcome = "nothing_fetched"
	OutcomeNothingToProcess Outcome = "nothing_to_process"
)

// Unit outcomes, also used as metric labels.
const (
	unitArchived     = "archived"
	unitMetadataOnly = "metadata_only"
	unitAppendFailed = "append_failed"
	unitDropped      = "dropped"
)

// Config controls a Pipeline.
type Config struct {
	// SiteURL is prefixed to each relative detail URL before archiving.
	SiteURL string
	// Workers bounds the number of concurrent units.
	Workers int
	// Limit caps the number of units dispatched. Zero means no cap.
	Limit       int
	Eligibility guideline.EligibilityPolicy
}

// Summary reports what a run did.
type Summary struct {
	Outcome      Outcome
	Fetched      int
	Eligible     int
	MissingURL   int
	Skipped      int
	Duplicates   int
	Dispatched   int
	Archived     int
	MetadataOnly int
	Dropped      int
	AppendFailed int
	// Truncated is set when pagination stopped at the page ceiling.
	Truncated  bool
	StartedAt  time.Time
	FinishedAt time.Time
}

// Pipeline wires the collection source, archiver and record store together.
type Pipeline struct {
	source   guideline.Source
	archiver guideline.Archiver
	store    guideline.Store
	clock    guideline.Clock
	cfg      Config
	logger   *zap.Logger
	running  atomic.Bool
}

// New constructs a Pipeline.
func New(
	source guideline.Source,
	archiver guideline.Archiver,
	store guideline.Store,
	clock guideline.Clock,
	cfg Config,
	logger *zap.Logger,
) (*Pipeline, error) {
	switch {
	case source == nil:
		return nil, fmt.Errorf("source is required")
	case archiver == nil:
		return nil, fmt.Errorf("archiver is required")
	case store == nil:
		return nil, fmt.Errorf("store is required")
	case clock == nil:
		return nil, fmt.Errorf("clock is required")
	}
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	if cfg.Limit < 0 {
		return nil, fmt.Errorf("limit must be >= 0")
	}
	cfg.SiteURL = strings.TrimRight(cfg.SiteURL, "/")
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{
		source:   source,
		archiver: archiver,
		store:    store,
		clock:    clock,
		cfg:      cfg,
		logger:   logger,
	}, nil
}

// Run executes one pass. Only a store initialization failure or an unexpected
// collection error is returned; per-item failures are counted in the Summary.
// Cancelling ctx stops dispatch of further units while in-flight units run to
// completion.
func (p *Pipeline) Run(ctx context.Context) (Summary, error) {
	if !p.running.CompareAndSwap(false, true) {
		return Summary{}, ErrAlreadyRunning
	}
	defer p.running.Store(false)

	summary := Summary{StartedAt: p.clock.Now()}
	finish := func(outcome Outcome) Summary {
		summary.Outcome = outcome
		summary.FinishedAt = p.clock.Now()
		p.logger.Info("run finished",
			zap.String("outcome", string(outcome)),
			zap.Int("fetched", summary.Fetched),
			zap.Int("dispatched", summary.Dispatched),
			zap.Int("archived", summary.Archived),
			zap.Int("metadata_only", summary.MetadataOnly),
			zap.Int("dropped", summary.Dropped),
			zap.Int("append_failed", summary.AppendFailed),
			zap.Duration("elapsed", summary.FinishedAt.Sub(summary.StartedAt)),
		)
		return summary
	}

	// Init.
	if err := p.store.Initialize(); err != nil {
		return summary, fmt.Errorf("initialize store: %w", err)
	}
	processed := p.store.LoadProcessedKeys()

	// Collect.
	items, err := p.source.FetchAll(ctx)
	switch {
	case errors.Is(err, collection.ErrPageLimitExhausted):
		p.logger.Warn("continuing with partial collection", zap.Int("fetched", len(items)), zap.Error(err))
		summary.Truncated = true
	case err != nil:
		return summary, fmt.Errorf("fetch collection: %w", err)
	}
	summary.Fetched = len(items)
	metrics.ObserveGuidelines("fetched", len(items))
	if len(items) == 0 {
		p.logger.Warn("no guidelines fetched")
		return finish(OutcomeNothingFetched), nil
	}

	// Filter.
	eligible := guideline.FilterPublic(items, p.cfg.Eligibility)
	summary.Eligible = len(eligible)
	metrics.ObserveGuidelines("eligible", len(eligible))
	pending := p.selectPending(eligible, processed, &summary)
	if p.cfg.Limit > 0 && len(pending) > p.cfg.Limit {
		p.logger.Info("limiting dispatch", zap.Int("limit", p.cfg.Limit), zap.Int("pending", len(pending)))
		pending = pending[:p.cfg.Limit]
	}
	p.logger.Info("filtered collection",
		zap.Int("fetched", summary.Fetched),
		zap.Int("eligible", summary.Eligible),
		zap.Int("skipped", summary.Skipped),
		zap.Int("duplicates", summary.Duplicates),
		zap.Int("pending", len(pending)),
	)
	if len(pending) == 0 {
		return finish(OutcomeNothingToProcess), nil
	}

	// Dispatch.
	p.dispatch(ctx, pending, &summary)
	if summary.Dispatched == 0 {
		return finish(OutcomeNothingToProcess), nil
	}
	return finish(OutcomeProcessed), nil
}

// selectPending drops items without a detail URL, items already in the store, and
// repeats of a detail URL within this run (first occurrence wins).
func (p *Pipeline) selectPending(
	eligible []guideline.Guideline,
	processed map[string]struct{},
	summary *Summary,
) []guideline.Guideline {
	seen := make(map[string]struct{}, len(eligible))
	pending := make([]guideline.Guideline, 0, len(eligible))
	for _, g := range eligible {
		key := g.DetailURL()
		if key == "" {
			p.logger.Warn("skipping guideline without detail url", zap.String("title", g.Title()))
			summary.MissingURL++
			continue
		}
		if _, ok := processed[key]; ok {
			summary.Skipped++
			continue
		}
		if _, ok := seen[key]; ok {
			p.logger.Debug("dropping duplicate detail url", zap.String("url", key))
			summary.Duplicates++
			continue
		}
		seen[key] = struct{}{}
		pending = append(pending, g)
	}
	metrics.ObserveGuidelines("skipped", summary.Skipped)
	metrics.ObserveGuidelines("duplicate", summary.Duplicates)
	return pending
}

func (p *Pipeline) dispatch(ctx context.Context, pending []guideline.Guideline, summary *Summary) {
	// Units must not be cut short by cancellation; they are bounded by the
	// archiver's own timeouts.
	unitCtx := context.WithoutCancel(ctx)

	var (
		mu       sync.Mutex
		outcomes = map[string]int{}
	)
	record := func(outcome string) {
		metrics.ObserveUnit(outcome)
		mu.Lock()
		outcomes[outcome]++
		mu.Unlock()
	}

	g := new(errgroup.Group)
	g.SetLimit(p.cfg.Workers)
	dispatched := 0
	for _, item := range pending {
		if ctx.Err() != nil {
			p.logger.Warn("run cancelled; not dispatching remaining guidelines",
				zap.Int("remaining", len(pending)-dispatched),
			)
			break
		}
		g.Go(func() error {
			record(p.runUnit(unitCtx, item))
			return nil
		})
		dispatched++
	}
	_ = g.Wait()

	metrics.ObserveGuidelines("dispatched", dispatched)
	summary.Dispatched = dispatched
	summary.Archived = outcomes[unitArchived]
	summary.MetadataOnly = outcomes[unitMetadataOnly]
	summary.AppendFailed = outcomes[unitAppendFailed]
	summary.Dropped = outcomes[unitDropped]
}

// runUnit extracts, archives and appends one guideline. A panic anywhere in the unit
// drops the item without writing a row.
func (p *Pipeline) runUnit(ctx context.Context, item guideline.Guideline) (outcome string) {
	metrics.IncActiveWorkers()
	defer metrics.DecActiveWorkers()

	title := item.Title()
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("unit panicked; dropping guideline",
				zap.String("title", title),
				zap.Any("panic", r),
			)
			outcome = unitDropped
		}
	}()

	rec := guideline.Extract(item)
	rec.PDFPath = p.archiver.Archive(ctx, p.absoluteURL(rec.DetailURL), rec.Title)

	if err := p.store.Append(rec); err != nil {
		p.logger.Error("append record failed",
			zap.String("title", rec.Title),
			zap.String("url", rec.DetailURL),
			zap.Error(err),
		)
		return unitAppendFailed
	}
	if rec.PDFPath == "" {
		return unitMetadataOnly
	}
	return unitArchived
}

func (p *Pipeline) absoluteURL(detailURL string) string {
	if strings.HasPrefix(detailURL, "http://") || strings.HasPrefix(detailURL, "https://") {
		return detailURL
	}
	if !strings.HasPrefix(detailURL, "/") {
		detailURL = "/" + detailURL
	}
	return p.cfg.SiteURL + detailURL
}
