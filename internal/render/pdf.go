package render

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
)

const (
	defaultChromeTimeout = 30 * time.Second
	paperWidthInches     = 8.27  // A4
	paperHeightInches    = 11.69 // A4
	marginInches         = 0.4
)

// Chrome renders HTML to PDF over the Chrome DevTools Protocol, implementing
// pipeline.PdfRenderer. It launches (or attaches to) one headless Chrome
// instance and reuses its allocator context across renders.
type Chrome struct {
	allocCtx    context.Context
	allocCancel context.CancelFunc
	timeout     time.Duration
	logger      *slog.Logger
}

// ChromeConfig selects between launching a local headless Chrome and
// attaching to a remote one (e.g. a browserless/chrome sidecar container).
type ChromeConfig struct {
	RemoteURL string
	Timeout   time.Duration
	Logger    *slog.Logger
}

func NewChrome(cfg ChromeConfig) *Chrome {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "pdf_renderer")

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = defaultChromeTimeout
	}

	c := &Chrome{timeout: timeout, logger: logger}

	if cfg.RemoteURL != "" {
		c.allocCtx, c.allocCancel = chromedp.NewRemoteAllocator(context.Background(), cfg.RemoteURL)
		return c
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("no-first-run", true),
		chromedp.Flag("disable-default-apps", true),
		chromedp.Flag("disable-extensions", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-background-networking", true),
	)
	c.allocCtx, c.allocCancel = chromedp.NewExecAllocator(context.Background(), opts...)
	return c
}

// RenderPDF implements pipeline.PdfRenderer.
func (c *Chrome) RenderPDF(ctx context.Context, html []byte) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	browserCtx, browserCancel := chromedp.NewContext(c.allocCtx, chromedp.WithLogf(func(format string, args ...any) {
		c.logger.Debug(fmt.Sprintf(format, args...))
	}))
	defer browserCancel()

	var pdfData []byte
	err := chromedp.Run(browserCtx,
		chromedp.Navigate("about:blank"),
		chromedp.ActionFunc(func(ctx context.Context) error {
			frameTree, err := page.GetFrameTree().Do(ctx)
			if err != nil {
				return err
			}
			return page.SetDocumentContent(frameTree.Frame.ID, string(html)).Do(ctx)
		}),
		chromedp.ActionFunc(func(ctx context.Context) error {
			data, _, err := page.PrintToPDF().
				WithPrintBackground(true).
				WithPaperWidth(paperWidthInches).
				WithPaperHeight(paperHeightInches).
				WithMarginTop(marginInches).
				WithMarginRight(marginInches).
				WithMarginBottom(marginInches).
				WithMarginLeft(marginInches).
				WithScale(1.0).
				Do(ctx)
			if err != nil {
				return err
			}
			pdfData = data
			return nil
		}),
	)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, fmt.Errorf("pdf render timed out after %v: %w", c.timeout, err)
		}
		return nil, fmt.Errorf("pdf render: %w", err)
	}
	if len(pdfData) == 0 {
		return nil, fmt.Errorf("pdf render: generated PDF is empty")
	}

	c.logger.InfoContext(ctx, "pdf rendered", "bytes", len(pdfData))
	return pdfData, nil
}

// Close releases the Chrome allocator's resources.
func (c *Chrome) Close() error {
	if c.allocCancel != nil {
		c.allocCancel()
	}
	return nil
}
