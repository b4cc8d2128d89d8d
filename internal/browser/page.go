// File: internal/browser/page.go
package browser

import (
	"bytes"
	"context"
	"image/png"
	"sync"

	"github.com/chromedp/cdproto/input"
	cdppage "github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/MissioAI/browserpilot/api/schemas"
	"github.com/MissioAI/browserpilot/internal/config"
)

// Page drives one Chrome tab through chromedp and implements the
// schemas.PagePrimitives capability surface. All coordinates are device
// pixels; callers perform any logical-pixel translation before calling in.
type Page struct {
	log         *zap.Logger
	ctx         context.Context
	cancel      context.CancelFunc
	cancelAlloc context.CancelFunc
	navTimeout  contextTimeout
	closeOnce   sync.Once
	closeErr    error
}

type contextTimeout = func(parent context.Context) (context.Context, context.CancelFunc)

var _ schemas.PagePrimitives = (*Page)(nil)

// NewChromeLauncher returns a LaunchFunc that starts a headless (or headful)
// Chrome, opens one page with a fixed viewport, installs the overlay's
// client-side hooks, and navigates to the configured start page. The browser's
// lifetime is the session's, not the launching request's, so the chromedp
// context is rooted in context.Background.
func NewChromeLauncher(cfg config.BrowserConfig, logger *zap.Logger) LaunchFunc {
	return func(ctx context.Context, sessionID string) (*Handle, error) {
		opts := append(chromedp.DefaultExecAllocatorOptions[:],
			chromedp.Flag("headless", cfg.Headless),
			chromedp.Flag("disable-gpu", true),
			chromedp.Flag("no-sandbox", true),
		)

		allocCtx, cancelAlloc := chromedp.NewExecAllocator(context.Background(), opts...)
		pageCtx, cancel := chromedp.NewContext(allocCtx)

		p := &Page{
			log:         logger.Named("page").With(zap.String("session_id", sessionID)),
			ctx:         pageCtx,
			cancel:      cancel,
			cancelAlloc: cancelAlloc,
			navTimeout: func(parent context.Context) (context.Context, context.CancelFunc) {
				if cfg.NavigationTimeout <= 0 {
					return context.WithCancel(parent)
				}
				return context.WithTimeout(parent, cfg.NavigationTimeout)
			},
		}

		overlay := NewOverlay(p, logger, cfg.OverlayEnabled)

		tasks := chromedp.Tasks{
			chromedp.EmulateViewport(int64(cfg.ViewportWidth), int64(cfg.ViewportHeight)),
		}
		if cfg.OverlayEnabled {
			tasks = append(tasks, overlay.installAction())
		}
		tasks = append(tasks, chromedp.Navigate(cfg.StartURL))

		runCtx, cancelRun := p.navTimeout(pageCtx)
		defer cancelRun()
		if err := chromedp.Run(runCtx, tasks); err != nil {
			// Launch failure must not leave a partially-usable handle behind.
			cancel()
			cancelAlloc()
			return nil, err
		}

		return &Handle{Page: p, Overlay: overlay}, nil
	}
}

// run executes chromedp actions on the page's own context. The caller context
// only gates entry: chromedp actions are tied to the browser's lifetime.
func (p *Page) run(ctx context.Context, actions ...chromedp.Action) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return chromedp.Run(p.ctx, actions...)
}

// Navigate loads the given URL, bounded by the configured navigation timeout.
func (p *Page) Navigate(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	runCtx, cancel := p.navTimeout(p.ctx)
	defer cancel()
	return chromedp.Run(runCtx, chromedp.Navigate(url))
}

// Screenshot captures the current viewport as PNG and probes its dimensions.
func (p *Page) Screenshot(ctx context.Context) (*schemas.Screenshot, error) {
	var buf []byte
	if err := p.run(ctx, chromedp.CaptureScreenshot(&buf)); err != nil {
		return nil, err
	}
	dims, err := png.DecodeConfig(bytes.NewReader(buf))
	if err != nil {
		return nil, err
	}
	return &schemas.Screenshot{PNG: buf, Width: dims.Width, Height: dims.Height}, nil
}

// Move dispatches a single mouse-move event to (x, y).
func (p *Page) Move(ctx context.Context, x, y float64) error {
	return p.run(ctx, chromedp.MouseEvent(input.MouseMoved, x, y))
}

// Click moves to (x, y) and presses/releases the given button. clickCount
// above one produces double (or triple) clicks.
func (p *Page) Click(ctx context.Context, x, y float64, button schemas.MouseButton, clickCount int) error {
	if clickCount < 1 {
		clickCount = 1
	}
	opts := []chromedp.MouseOption{
		chromedp.Button(string(button)),
		chromedp.ClickCount(clickCount),
	}
	return p.run(ctx,
		chromedp.MouseEvent(input.MouseMoved, x, y),
		chromedp.MouseEvent(input.MousePressed, x, y, opts...),
		chromedp.MouseEvent(input.MouseReleased, x, y, opts...),
	)
}

// Drag presses the left button at the start point, moves to the target, and
// releases there.
func (p *Page) Drag(ctx context.Context, fromX, fromY, toX, toY float64) error {
	return p.run(ctx,
		chromedp.MouseEvent(input.MouseMoved, fromX, fromY),
		chromedp.MouseEvent(input.MousePressed, fromX, fromY, chromedp.Button("left")),
		chromedp.MouseEvent(input.MouseMoved, toX, toY),
		chromedp.MouseEvent(input.MouseReleased, toX, toY, chromedp.Button("left")),
	)
}

// Type inserts the text into the focused element as composed input.
func (p *Page) Type(ctx context.Context, text string) error {
	return p.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		return input.InsertText(text).Do(ctx)
	}))
}

// KeyPress dispatches a key name or combination ("ctrl+s") as its decomposed
// low-level stroke sequence.
func (p *Page) KeyPress(ctx context.Context, name string) error {
	strokes := DecomposeKeyCombo(name)
	return p.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		for _, st := range strokes {
			if st.Kind == StrokeDown || st.Kind == StrokePress {
				if err := input.DispatchKeyEvent(input.KeyDown).WithKey(st.Key).Do(ctx); err != nil {
					return err
				}
			}
			if st.Kind == StrokeUp || st.Kind == StrokePress {
				if err := input.DispatchKeyEvent(input.KeyUp).WithKey(st.Key).Do(ctx); err != nil {
					return err
				}
			}
		}
		return nil
	}))
}

// Evaluate runs a JavaScript expression on the page, discarding the result.
// The overlay channel is its only caller.
func (p *Page) Evaluate(ctx context.Context, js string) error {
	return p.run(ctx, chromedp.Evaluate(js, nil))
}

// installScriptOnNewDocument registers a script evaluated on every new
// document, before any page script runs.
func installScriptOnNewDocument(source string) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		_, err := cdppage.AddScriptToEvaluateOnNewDocument(source).Do(ctx)
		return err
	})
}

// Close shuts the browser down. Idempotent.
func (p *Page) Close(ctx context.Context) error {
	p.closeOnce.Do(func() {
		p.closeErr = chromedp.Cancel(p.ctx)
		p.cancel()
		p.cancelAlloc()
	})
	return p.closeErr
}
