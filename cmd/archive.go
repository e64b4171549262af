package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"cloud.google.com/go/storage"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/guideline-archiver/internal/archive"
	"github.com/JakeFAU/guideline-archiver/internal/clock/system"
	"github.com/JakeFAU/guideline-archiver/internal/collection"
	"github.com/JakeFAU/guideline-archiver/internal/config"
	collyfetcher "github.com/JakeFAU/guideline-archiver/internal/fetcher/colly"
	"github.com/JakeFAU/guideline-archiver/internal/fetcher/headless"
	"github.com/JakeFAU/guideline-archiver/internal/guideline"
	"github.com/JakeFAU/guideline-archiver/internal/id/uuid"
	"github.com/JakeFAU/guideline-archiver/internal/metrics"
	"github.com/JakeFAU/guideline-archiver/internal/pipeline"
	"github.com/JakeFAU/guideline-archiver/internal/policy/ratelimit"
	"github.com/JakeFAU/guideline-archiver/internal/storage/gcs"
	"github.com/JakeFAU/guideline-archiver/internal/storage/local"
	"github.com/JakeFAU/guideline-archiver/internal/store"
)

type archiveFlags struct {
	outputDir   string
	workers     int
	limit       int
	baseURL     string
	siteURL     string
	metricsAddr string
}

func newArchiveCmd() *cobra.Command {
	var flags archiveFlags
	cmd := &cobra.Command{
		Use:   "archive",
		Short: "Runs one archive pass",
		Long: `Fetches the full guideline collection, filters it to public guidelines not yet
in the record store, and archives each one as a PDF on a bounded worker pool.

Exit status is 0 when at least one guideline was processed, 3 when nothing was
fetched or eligible, and 1 on a fatal error.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := resolveEnv(cmd.Context())
			if err != nil {
				return err
			}
			cfg := applyArchiveFlags(cmd, e.cfg, flags)
			if err := cfg.Validate(); err != nil {
				return err
			}
			return runArchive(cmd.Context(), cfg, e.logger)
		},
	}

	f := cmd.Flags()
	f.StringVar(&flags.outputDir, "output-dir", "", "directory for the record store and PDFs")
	f.IntVar(&flags.workers, "workers", 0, "number of guidelines archived concurrently")
	f.IntVar(&flags.limit, "limit", 0, "archive at most this many guidelines (0 = all)")
	f.StringVar(&flags.baseURL, "base-url", "", "guideline search API endpoint")
	f.StringVar(&flags.siteURL, "site-url", "", "site base prefixed to guideline detail paths")
	f.StringVar(&flags.metricsAddr, "metrics-addr", "", "listen address for /metrics and /healthz")
	return cmd
}

// applyArchiveFlags overrides config values with flags the user set explicitly.
func applyArchiveFlags(cmd *cobra.Command, cfg config.Config, flags archiveFlags) config.Config {
	f := cmd.Flags()
	if f.Changed("output-dir") {
		cfg.Storage.OutputDir = flags.outputDir
	}
	if f.Changed("workers") {
		cfg.Pipeline.Workers = flags.workers
	}
	if f.Changed("limit") {
		cfg.Pipeline.Limit = flags.limit
	}
	if f.Changed("base-url") {
		cfg.Source.BaseURL = flags.baseURL
	}
	if f.Changed("site-url") {
		cfg.Source.SiteURL = flags.siteURL
	}
	if f.Changed("metrics-addr") {
		cfg.Metrics.Addr = flags.metricsAddr
	}
	return cfg
}

func runArchive(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	metrics.Init()
	if cfg.Metrics.Addr != "" {
		srv := metrics.NewServer(cfg.Metrics.Addr)
		go func() {
			logger.Info("metrics server started", zap.String("addr", cfg.Metrics.Addr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server error", zap.Error(err))
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Warn("metrics server shutdown error", zap.Error(err))
			}
		}()
	}

	limiter := ratelimit.New(ratelimit.Config{
		DefaultRPS:   cfg.HTTP.RateLimitRPS,
		DefaultBurst: cfg.HTTP.RateLimitBurst,
	})
	getter := collyfetcher.New(collyfetcher.Config{
		UserAgent:    cfg.HTTP.UserAgent,
		Timeout:      cfg.HTTPTimeout(),
		MaxBodyBytes: cfg.HTTP.MaxBodyBytes,
	}, limiter)

	source, err := collection.New(collection.Config{
		BaseURL: cfg.Source.BaseURL,
		Query: collection.Query{
			SearchTerm:     cfg.Source.SearchTerm,
			Professions:    cfg.Source.Professions,
			SourceType:     cfg.Source.SourceType,
			SourceCategory: cfg.Source.SourceCategory,
			Publisher:      cfg.Source.Publisher,
			ActivityRef:    cfg.Source.ActivityRef,
			PublishedDate:  cfg.Source.PublishedDate,
		},
		PageSize: cfg.Source.PageSize,
		MaxPages: cfg.Source.MaxPages,
	}, getter, logger.Named("collection"))
	if err != nil {
		return fmt.Errorf("init collection fetcher: %w", err)
	}

	browser, err := headless.NewChromedp(headless.Config{
		UserAgent:         cfg.HTTP.UserAgent,
		ExecPath:          cfg.Archive.ExecPath,
		NoSandbox:         cfg.Archive.NoSandbox,
		NavigationTimeout: cfg.NavTimeout(),
		WaitTimeout:       cfg.WaitTimeout(),
		ContentSelector:   cfg.Archive.ContentSelector,
		LinkXPath:         cfg.Archive.LinkXPath,
	}, limiter)
	if err != nil {
		return fmt.Errorf("init browser: %w", err)
	}

	blobs, pdfLocation, closeBlobs, err := buildBlobStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeBlobs()

	archiver, err := archive.New(browser, getter, blobs, uuid.New(), archive.Config{
		MaxSlugLength: cfg.Archive.MaxSlugLength,
	}, logger.Named("archive"))
	if err != nil {
		return fmt.Errorf("init archiver: %w", err)
	}

	records, err := store.NewCSVStore(cfg.StorePath(), logger.Named("store"))
	if err != nil {
		return fmt.Errorf("init store: %w", err)
	}

	p, err := pipeline.New(source, archiver, records, system.New(), pipeline.Config{
		SiteURL: cfg.Source.SiteURL,
		Workers: cfg.Pipeline.Workers,
		Limit:   cfg.Pipeline.Limit,
		Eligibility: guideline.EligibilityPolicy{
			MissingLoginFlagIsPublic: cfg.Filter.MissingLoginFlagPublic,
		},
	}, logger.Named("pipeline"))
	if err != nil {
		return fmt.Errorf("init pipeline: %w", err)
	}

	summary, err := p.Run(ctx)
	if err != nil {
		return fmt.Errorf("run pipeline: %w", err)
	}

	logger.Info("archive complete",
		zap.String("results_file", records.Path()),
		zap.String("pdf_location", pdfLocation),
		zap.String("outcome", string(summary.Outcome)),
		zap.Int("archived", summary.Archived),
		zap.Int("metadata_only", summary.MetadataOnly),
	)
	if summary.Outcome != pipeline.OutcomeProcessed {
		return ErrNothingToProcess
	}
	return nil
}

// buildBlobStore returns the configured PDF store, a human-readable description of
// where PDFs land, and a cleanup func.
func buildBlobStore(ctx context.Context, cfg config.Config) (guideline.BlobStore, string, func(), error) {
	switch cfg.Storage.Backend {
	case config.BackendGCS:
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, "", nil, fmt.Errorf("init gcs client: %w", err)
		}
		blobs, err := gcs.New(client, gcs.Config{Bucket: cfg.Storage.GCSBucket, Prefix: cfg.Storage.Prefix})
		if err != nil {
			_ = client.Close()
			return nil, "", nil, fmt.Errorf("init gcs blob store: %w", err)
		}
		location := fmt.Sprintf("gs://%s/%s", cfg.Storage.GCSBucket, cfg.Storage.Prefix)
		return blobs, location, func() { _ = client.Close() }, nil
	default:
		blobs, err := local.New(local.Config{BaseDir: cfg.PDFDir()})
		if err != nil {
			return nil, "", nil, fmt.Errorf("init local blob store: %w", err)
		}
		return blobs, cfg.PDFDir(), func() {}, nil
	}
}
