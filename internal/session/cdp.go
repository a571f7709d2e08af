// internal/session/cdp.go
package session

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/dom"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"github.com/rs/zerolog/log"

	"github.com/pagebound/scrape/pkg/models"
)

// CDPOptions configures the Chrome DevTools Protocol driver.
type CDPOptions struct {
	Headless   bool
	ChromePath string
	UserAgent  string
	Proxy      string
}

// CDPDriver implements Driver over headless Chrome via chromedp. One
// shared allocator hosts all sessions; each Connect opens a fresh
// browser context (tab) against it.
type CDPDriver struct {
	allocCtx    context.Context
	allocCancel context.CancelFunc
	seq         atomic.Int64
}

// NewCDPDriver creates the driver and its shared Chrome allocator.
// The browser process itself starts lazily on the first Connect.
func NewCDPDriver(opts CDPOptions) *CDPDriver {
	chromePath := opts.ChromePath
	if chromePath == "" {
		chromePath = findChrome()
	}

	allocOpts := []chromedp.ExecAllocatorOption{
		chromedp.NoFirstRun,
		chromedp.NoDefaultBrowserCheck,
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-extensions", true),
		chromedp.Flag("disable-background-networking", true),
		chromedp.Flag("disable-breakpad", true),
		chromedp.Flag("disable-default-apps", true),
		chromedp.Flag("disable-hang-monitor", true),
		chromedp.Flag("disable-prompt-on-repost", true),
		chromedp.Flag("disable-renderer-backgrounding", true),
		chromedp.Flag("disable-sync", true),
		chromedp.Flag("mute-audio", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("window-size", "1920,1080"),
	}
	if opts.UserAgent != "" {
		allocOpts = append(allocOpts, chromedp.UserAgent(opts.UserAgent))
	}
	if chromePath != "" {
		allocOpts = append([]chromedp.ExecAllocatorOption{chromedp.ExecPath(chromePath)}, allocOpts...)
	}
	if opts.Headless {
		allocOpts = append(allocOpts, chromedp.Flag("headless", "new"))
	} else {
		allocOpts = append(allocOpts, chromedp.Flag("headless", false))
	}
	if opts.Proxy != "" {
		allocOpts = append(allocOpts, chromedp.ProxyServer(opts.Proxy))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), allocOpts...)

	return &CDPDriver{
		allocCtx:    allocCtx,
		allocCancel: allocCancel,
	}
}

// Connect opens a new browser context and warms it up on a blank page.
func (d *CDPDriver) Connect(ctx context.Context) (ProtocolSession, error) {
	browserCtx, cancel := chromedp.NewContext(d.allocCtx)

	warmCtx, warmCancel := boundContext(browserCtx, ctx)
	err := chromedp.Run(warmCtx, chromedp.Navigate("about:blank"))
	warmCancel()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to start browser context: %w", err)
	}

	id := fmt.Sprintf("cdp-%d", d.seq.Add(1))
	if c := chromedp.FromContext(browserCtx); c != nil && c.Target != nil {
		id = string(c.Target.TargetID)
	}

	log.Debug().Str("session_id", id).Msg("Browser context started")
	return &cdpSession{id: id, ctx: browserCtx, cancel: cancel}, nil
}

// Close shuts down the allocator and with it every browser context.
func (d *CDPDriver) Close() error {
	d.allocCancel()
	return nil
}

// cdpSession binds one chromedp browser context to the ProtocolSession
// surface. chromedp actions must run on a descendant of the browser
// context, so each call derives one bounded by the caller's context.
type cdpSession struct {
	id     string
	ctx    context.Context
	cancel context.CancelFunc
}

func (s *cdpSession) ID() string { return s.id }

func (s *cdpSession) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := boundContext(s.ctx, ctx)
	defer cancel()
	if err := chromedp.Run(runCtx, actions...); err != nil {
		// Report the caller's deadline, not the derived context's.
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}
	return nil
}

func (s *cdpSession) Navigate(ctx context.Context, url string) error {
	return s.run(ctx, chromedp.Navigate(url))
}

func (s *cdpSession) SetCookies(ctx context.Context, cookies []models.Cookie) error {
	return s.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		for _, c := range cookies {
			p := network.SetCookie(c.Name, c.Value).
				WithDomain(c.Domain).
				WithPath(c.Path).
				WithSecure(c.Secure).
				WithHTTPOnly(c.HTTPOnly)
			if c.Expires > 0 {
				exp := cdp.TimeSinceEpoch(time.Unix(int64(c.Expires), 0))
				p = p.WithExpires(&exp)
			}
			if err := p.Do(ctx); err != nil {
				return fmt.Errorf("failed to set cookie %q: %w", c.Name, err)
			}
		}
		return nil
	}))
}

func (s *cdpSession) Perform(ctx context.Context, step models.NavigationStep) error {
	switch step.Type {
	case models.StepClick:
		return s.run(ctx, chromedp.Click(step.Selector, chromedp.ByQuery))
	case models.StepWaitVisible:
		return s.run(ctx, chromedp.WaitVisible(step.Selector, chromedp.ByQuery))
	case models.StepScroll:
		return s.run(ctx, chromedp.Evaluate(`window.scrollBy(0, window.innerHeight)`, nil))
	case models.StepSleep:
		return s.run(ctx, chromedp.Sleep(time.Duration(step.Milliseconds)*time.Millisecond))
	case models.StepFill:
		return s.run(ctx, chromedp.SendKeys(step.Selector, step.Value, chromedp.ByQuery))
	case models.StepEval:
		return s.run(ctx, chromedp.Evaluate(step.Value, nil))
	default:
		return fmt.Errorf("unknown step type %q", step.Type)
	}
}

func (s *cdpSession) WaitReady(ctx context.Context, selector string) error {
	return s.run(ctx, chromedp.WaitReady(selector, chromedp.ByQuery))
}

func (s *cdpSession) HTML(ctx context.Context) (string, error) {
	var content string
	err := s.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		node, err := dom.GetDocument().Do(ctx)
		if err != nil {
			return err
		}
		content, err = dom.GetOuterHTML().WithNodeID(node.NodeID).Do(ctx)
		return err
	}))
	return content, err
}

func (s *cdpSession) CurrentURL(ctx context.Context) (string, error) {
	var url string
	err := s.run(ctx, chromedp.Location(&url))
	return url, err
}

// Ping is a lightweight no-op command used by the pool's health check.
func (s *cdpSession) Ping(ctx context.Context) error {
	return s.run(ctx, chromedp.Evaluate(`1`, nil))
}

func (s *cdpSession) Close() error {
	s.cancel()
	return nil
}

// boundContext derives a child of the chromedp context that follows the
// caller's deadline and cancellation.
func boundContext(base, caller context.Context) (context.Context, context.CancelFunc) {
	var runCtx context.Context
	var cancel context.CancelFunc
	if deadline, ok := caller.Deadline(); ok {
		runCtx, cancel = context.WithDeadline(base, deadline)
	} else {
		runCtx, cancel = context.WithCancel(base)
	}
	stop := context.AfterFunc(caller, cancel)
	return runCtx, func() {
		stop()
		cancel()
	}
}

// findChrome locates a Chrome/Chromium executable: CHROME_PATH first,
// then well-known install locations, then PATH.
func findChrome() string {
	if path := os.Getenv("CHROME_PATH"); path != "" {
		if isExecutable(path) {
			return path
		}
		log.Warn().Str("path", path).Msg("CHROME_PATH set but not executable")
	}

	var candidates []string
	switch runtime.GOOS {
	case "darwin":
		candidates = []string{
			"/Applications/Google Chrome.app/Contents/MacOS/Google Chrome",
			"/Applications/Chromium.app/Contents/MacOS/Chromium",
			"/Applications/Microsoft Edge.app/Contents/MacOS/Microsoft Edge",
		}
	case "windows":
		for _, base := range []string{os.Getenv("ProgramFiles"), os.Getenv("ProgramFiles(x86)"), os.Getenv("LocalAppData")} {
			if base != "" {
				candidates = append(candidates,
					base+"\\Google\\Chrome\\Application\\chrome.exe",
					base+"\\Chromium\\Application\\chrome.exe",
					base+"\\Microsoft\\Edge\\Application\\msedge.exe",
				)
			}
		}
	default:
		candidates = []string{
			"/usr/bin/google-chrome-stable",
			"/usr/bin/google-chrome",
			"/usr/bin/chromium-browser",
			"/usr/bin/chromium",
			"/snap/bin/chromium",
		}
	}

	for _, path := range candidates {
		if isExecutable(path) {
			return path
		}
	}

	for _, name := range []string{"google-chrome-stable", "google-chrome", "chromium", "chromium-browser", "chrome"} {
		if path, err := exec.LookPath(name); err == nil {
			return path
		}
	}

	log.Warn().Str("os", runtime.GOOS).Msg("Chrome not found, will use chromedp default")
	return ""
}

func isExecutable(path string) bool {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return false
	}
	if runtime.GOOS == "windows" {
		return true
	}
	return info.Mode()&0111 != 0
}
