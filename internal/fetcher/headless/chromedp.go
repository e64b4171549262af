// Package headless opens isolated headless-Chrome rendering sessions via chromedp.
package headless

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"

	"github.com/JakeFAU/guideline-archiver/internal/guideline"
)

// ErrWaitTimeout indicates neither document marker appeared within the wait timeout.
var ErrWaitTimeout = errors.New("timed out waiting for document markers")

// Defaults for the EBPNet detail pages.
const (
	DefaultContentSelector   = ".editorial-text"
	DefaultLinkXPath         = "//a[contains(@class, 'btn-blue') and contains(translate(., 'PDF', 'pdf'), 'pdf')]"
	DefaultWaitTimeout       = 15 * time.Second
	DefaultNavigationTimeout = 45 * time.Second
	defaultPollInterval      = 250 * time.Millisecond
)

// Limiter throttles page loads.
type Limiter interface {
	Wait(ctx context.Context, rawURL string) error
}

// Config controls the behavior of rendering sessions.
type Config struct {
	UserAgent         string
	ExecPath          string
	NoSandbox         bool
	NavigationTimeout time.Duration
	WaitTimeout       time.Duration
	ContentSelector   string
	LinkXPath         string
}

// Browser implements guideline.Browser. Every session launches its own browser
// process so no cookies or navigation state leak between archivals.
type Browser struct {
	cfg     Config
	opts    []chromedp.ExecAllocatorOption
	limiter Limiter
}

var _ guideline.Browser = (*Browser)(nil)

// NewChromedp creates a Browser. limiter may be nil.
func NewChromedp(cfg Config, limiter Limiter) (*Browser, error) {
	if cfg.NavigationTimeout < 0 || cfg.WaitTimeout < 0 {
		return nil, fmt.Errorf("timeouts must be >= 0")
	}
	if cfg.NavigationTimeout == 0 {
		cfg.NavigationTimeout = DefaultNavigationTimeout
	}
	if cfg.WaitTimeout == 0 {
		cfg.WaitTimeout = DefaultWaitTimeout
	}
	if strings.TrimSpace(cfg.ContentSelector) == "" {
		cfg.ContentSelector = DefaultContentSelector
	}
	if strings.TrimSpace(cfg.LinkXPath) == "" {
		cfg.LinkXPath = DefaultLinkXPath
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", "new"),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("enable-automation", false),
	)
	if cfg.NoSandbox {
		opts = append(opts, chromedp.NoSandbox)
	}
	if cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
	}
	if cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(cfg.UserAgent))
	}

	return &Browser{cfg: cfg, opts: opts, limiter: limiter}, nil
}

// NewSession launches a fresh browser bound to ctx. The caller must Close it.
func (b *Browser) NewSession(ctx context.Context) (guideline.Session, error) {
	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, b.opts...)
	tabCtx, tabCancel := chromedp.NewContext(allocCtx)
	if err := chromedp.Run(tabCtx); err != nil {
		tabCancel()
		allocCancel()
		return nil, fmt.Errorf("launch browser: %w", err)
	}
	return &Session{
		cfg:         b.cfg,
		limiter:     b.limiter,
		parent:      ctx,
		ctx:         tabCtx,
		tabCancel:   tabCancel,
		allocCancel: allocCancel,
	}, nil
}

// Session is a single headless browser with one tab.
type Session struct {
	cfg         Config
	limiter     Limiter
	parent      context.Context
	ctx         context.Context
	tabCancel   context.CancelFunc
	allocCancel context.CancelFunc
	closeOnce   sync.Once
	closeErr    error
}

// Navigate loads rawURL, bounded by the navigation timeout.
func (s *Session) Navigate(rawURL string) error {
	if s.limiter != nil {
		if err := s.limiter.Wait(s.parent, rawURL); err != nil {
			return err
		}
	}
	navCtx, cancel := context.WithTimeout(s.ctx, s.cfg.NavigationTimeout)
	defer cancel()

	if err := chromedp.Run(navCtx, s.networkSetupAction(), chromedp.Navigate(rawURL)); err != nil {
		return fmt.Errorf("navigate %s: %w", rawURL, err)
	}
	return nil
}

// WaitForDocument polls until the content marker or the download link exists.
func (s *Session) WaitForDocument() error {
	var found bool
	err := chromedp.Run(s.ctx, chromedp.Poll(
		anyMarkerScript(s.cfg.ContentSelector, s.cfg.LinkXPath),
		&found,
		chromedp.WithPollingTimeout(s.cfg.WaitTimeout),
		chromedp.WithPollingInterval(defaultPollInterval),
	))
	switch {
	case errors.Is(err, chromedp.ErrPollingTimeout):
		return fmt.Errorf("%w after %s", ErrWaitTimeout, s.cfg.WaitTimeout)
	case err != nil:
		return fmt.Errorf("wait for markers: %w", err)
	}
	return nil
}

// HasContent reports whether the primary-content marker is in the DOM.
func (s *Session) HasContent() (bool, error) {
	var present bool
	if err := chromedp.Run(s.ctx, chromedp.Evaluate(contentScript(s.cfg.ContentSelector), &present)); err != nil {
		return false, fmt.Errorf("probe content marker: %w", err)
	}
	return present, nil
}

type linkProbe struct {
	Found bool   `json:"found"`
	Href  string `json:"href"`
}

// DocumentLink resolves the download link's absolute target.
func (s *Session) DocumentLink() (string, bool, error) {
	var probe linkProbe
	if err := chromedp.Run(s.ctx, chromedp.Evaluate(linkScript(s.cfg.LinkXPath), &probe)); err != nil {
		return "", false, fmt.Errorf("probe download link: %w", err)
	}
	return probe.Href, probe.Found, nil
}

// PrintPDF prints the current page without background graphics and with empty
// header and footer templates.
func (s *Session) PrintPDF() ([]byte, error) {
	var buf []byte
	err := chromedp.Run(s.ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		data, _, err := page.PrintToPDF().
			WithPrintBackground(false).
			WithDisplayHeaderFooter(false).
			WithHeaderTemplate("").
			WithFooterTemplate("").
			Do(ctx)
		if err != nil {
			return err
		}
		buf = data
		return nil
	}))
	if err != nil {
		return nil, fmt.Errorf("print to pdf: %w", err)
	}
	return buf, nil
}

// Close shuts the browser down. Subsequent calls return the first result.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		if s.ctx != nil {
			if err := chromedp.Cancel(s.ctx); err != nil && !errors.Is(err, context.Canceled) {
				s.closeErr = fmt.Errorf("close browser: %w", err)
			}
		}
		if s.tabCancel != nil {
			s.tabCancel()
		}
		if s.allocCancel != nil {
			s.allocCancel()
		}
	})
	return s.closeErr
}

func (s *Session) networkSetupAction() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network domain: %w", err)
		}
		if s.cfg.UserAgent != "" {
			if err := emulation.SetUserAgentOverride(s.cfg.UserAgent).Do(ctx); err != nil {
				return fmt.Errorf("set user-agent: %w", err)
			}
		}
		return nil
	})
}

func jsString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

func contentScript(selector string) string {
	return fmt.Sprintf("document.querySelector(%s) !== null", jsString(selector))
}

func linkNodeExpr(xpath string) string {
	return fmt.Sprintf(
		"document.evaluate(%s, document, null, XPathResult.FIRST_ORDERED_NODE_TYPE, null).singleNodeValue",
		jsString(xpath),
	)
}

func anyMarkerScript(selector, xpath string) string {
	return fmt.Sprintf("(%s) || (%s) !== null", contentScript(selector), linkNodeExpr(xpath))
}

// linkScript reports the link's resolved href, or "" when its href attribute is
// missing or blank.
func linkScript(xpath string) string {
	return fmt.Sprintf(`(() => {
	const node = %s;
	if (!node) { return {found: false, href: ""}; }
	const raw = (node.getAttribute("href") || "").trim();
	return {found: true, href: raw === "" ? "" : node.href};
})()`, linkNodeExpr(xpath))
}
