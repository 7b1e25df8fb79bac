package scraper

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"

	"car-sniper/utils"
)

// settleDelay lets client-side rendering finish after the load event.
const settleDelay = 2 * time.Second

// BrowserFetcher renders pages in headless Chrome. It is used when the
// marketplace serves its results through JavaScript. Each Fetch opens its
// own tab on a shared browser process.
type BrowserFetcher struct {
	allocCtx    context.Context
	cancelAlloc context.CancelFunc
	browserCtx  context.Context
	cancelBrow  context.CancelFunc
	logger      *utils.Logger

	startOnce sync.Once
	startErr  error
}

// NewBrowserFetcher starts the browser allocator. chromeBin may be empty, in
// which case a binary is looked up on the usual paths.
func NewBrowserFetcher(chromeBin, userAgent string, logger *utils.Logger) *BrowserFetcher {
	if chromeBin == "" {
		chromeBin = findChromeBinary()
	}
	logger.Info("[browser] Using browser binary: %s", chromeBin)

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-setuid-sandbox", true),
		chromedp.UserAgent(userAgent),
	)
	if chromeBin != "" {
		opts = append(opts, chromedp.ExecPath(chromeBin))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(context.Background(), opts...)

	// Suppress chromedp log noise
	browserCtx, cancelBrow := chromedp.NewContext(allocCtx, chromedp.WithLogf(func(string, ...interface{}) {}))

	return &BrowserFetcher{
		allocCtx:    allocCtx,
		cancelAlloc: cancelAlloc,
		browserCtx:  browserCtx,
		cancelBrow:  cancelBrow,
		logger:      logger,
	}
}

func (b *BrowserFetcher) Fetch(ctx context.Context, url string, headers map[string]string, timeout time.Duration) (int, []byte, error) {
	// Tabs only share a process once the browser context has run.
	b.startOnce.Do(func() { b.startErr = chromedp.Run(b.browserCtx) })
	if b.startErr != nil {
		return 0, nil, fmt.Errorf("browser: start: %w", b.startErr)
	}

	tabCtx, cancelTab := chromedp.NewContext(b.browserCtx)
	defer cancelTab()

	if timeout > 0 {
		var cancel context.CancelFunc
		tabCtx, cancel = context.WithTimeout(tabCtx, timeout)
		defer cancel()
	}
	// The tab hangs off the browser context, so the caller's cancellation
	// has to be forwarded by hand.
	stop := context.AfterFunc(ctx, cancelTab)
	defer stop()

	extra := network.Headers{}
	for k, v := range headers {
		extra[k] = v
	}

	if err := chromedp.Run(tabCtx, network.Enable(), network.SetExtraHTTPHeaders(extra)); err != nil {
		return 0, nil, fmt.Errorf("browser: prepare tab: %w", err)
	}

	resp, err := chromedp.RunResponse(tabCtx, chromedp.Navigate(url))
	if err != nil {
		return 0, nil, fmt.Errorf("browser: navigate %s: %w", url, err)
	}
	status := 0
	if resp != nil {
		status = int(resp.Status)
	}

	var html string
	if err := chromedp.Run(tabCtx,
		chromedp.Sleep(settleDelay),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	); err != nil {
		return status, nil, fmt.Errorf("browser: read %s: %w", url, err)
	}

	b.logger.Debug("[browser] %s -> %d (%d bytes)", url, status, len(html))
	return status, []byte(html), nil
}

// Close shuts the browser down.
func (b *BrowserFetcher) Close() {
	b.cancelBrow()
	b.cancelAlloc()
}

// findChromeBinary locates Chrome/Chromium binary.
func findChromeBinary() string {
	if bin := os.Getenv("CHROME_BIN"); bin != "" {
		return bin
	}

	names := []string{"google-chrome-stable", "google-chrome", "chromium", "chromium-browser"}
	for _, name := range names {
		if path, err := exec.LookPath(name); err == nil {
			return path
		}
	}

	paths := []string{
		"/usr/bin/google-chrome-stable",
		"/usr/bin/google-chrome",
		"/usr/bin/chromium-browser",
		"/usr/bin/chromium",
		"/snap/bin/chromium",
		"/opt/google/chrome/google-chrome",
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}

	return ""
}
