package render

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"time"

	"github.com/chromedp/chromedp"

	"github.com/tracyhatemice/inboxcord/internal/message"
)

// viewportHeight is only the initial height; the screenshot covers the
// full document.
const viewportHeight = 600

// Renderer turns messages into PNG snapshots with a headless browser.
type Renderer struct {
	allocCtx    context.Context
	cancelAlloc context.CancelFunc
	timeout     time.Duration
	logger      *slog.Logger
}

// New starts a browser allocator. Close releases it.
func New(timeout time.Duration, logger *slog.Logger) *Renderer {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.DisableGPU,
		chromedp.NoSandbox,
		chromedp.WindowSize(PageWidth, viewportHeight),
	)
	allocCtx, cancel := chromedp.NewExecAllocator(context.Background(), opts...)
	return &Renderer{
		allocCtx:    allocCtx,
		cancelAlloc: cancel,
		timeout:     timeout,
		logger:      logger,
	}
}

// Render produces a PNG of msg. Each call uses a fresh browser tab.
func (r *Renderer) Render(ctx context.Context, msg *message.Message) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("render %s: %w", msg.ID, err)
	}

	page, err := BuildHTML(msg)
	if err != nil {
		return nil, fmt.Errorf("build page: %w", err)
	}

	tabCtx, cancelTab := chromedp.NewContext(r.allocCtx)
	defer cancelTab()
	tabCtx, cancelTimeout := context.WithTimeout(tabCtx, r.timeout)
	defer cancelTimeout()

	// Tie the tab to the caller's context as well.
	stop := context.AfterFunc(ctx, cancelTab)
	defer stop()

	dataURL := "data:text/html;charset=utf-8;base64," + base64.StdEncoding.EncodeToString([]byte(page))

	var png []byte
	err = chromedp.Run(tabCtx,
		chromedp.EmulateViewport(PageWidth, viewportHeight),
		chromedp.Navigate(dataURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.FullScreenshot(&png, 100),
	)
	if err != nil {
		return nil, fmt.Errorf("render %s: %w", msg.ID, err)
	}

	r.logger.Debug("rendered snapshot", "msg_id", msg.ID, "bytes", len(png))
	return png, nil
}

// Close shuts the browser down.
func (r *Renderer) Close() {
	r.cancelAlloc()
}
