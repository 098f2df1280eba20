package export

import (
	"context"
	"fmt"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/rs/zerolog/log"
)

// A4 in inches, as PrintToPDF expects.
const (
	a4WidthInches  = 8.27
	a4HeightInches = 11.69
)

// Renderer turns a URL into a standalone PDF document.
type Renderer interface {
	Render(ctx context.Context, url string) ([]byte, error)
}

// ChromeRenderer prints pages with a headless Chrome. Every call launches its own browser and
// shuts it down before returning, so at most one browser per render is alive.
type ChromeRenderer struct {
	execPath string
}

func NewChromeRenderer(execPath string) *ChromeRenderer {
	return &ChromeRenderer{execPath: execPath}
}

func (r *ChromeRenderer) Render(ctx context.Context, url string) ([]byte, error) {
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	opts = append(opts, chromedp.NoSandbox, chromedp.Headless)
	if r.execPath != "" {
		opts = append(opts, chromedp.ExecPath(r.execPath))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	defer cancelAlloc()
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)
	defer cancelBrowser()

	log.Debug().Str("url", url).Msg("Rendering document")

	var pdf []byte
	err := chromedp.Run(browserCtx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.ActionFunc(func(ctx context.Context) error {
			buf, _, err := page.PrintToPDF().
				WithPrintBackground(true).
				WithPaperWidth(a4WidthInches).
				WithPaperHeight(a4HeightInches).
				Do(ctx)
			if err != nil {
				return err
			}
			pdf = buf
			return nil
		}),
	)

	// Close the browser now rather than on return so the next render starts clean
	if cerr := chromedp.Cancel(browserCtx); cerr != nil {
		log.Debug().Err(cerr).Msg("Browser close reported an error")
	}
	if err != nil {
		return nil, fmt.Errorf("rendering %s: %w", url, err)
	}
	return pdf, nil
}
