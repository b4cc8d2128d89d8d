// File: internal/browser/overlay.go
package browser

import (
	"context"
	"fmt"

	"github.com/chromedp/chromedp"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/MissioAI/browserpilot/api/schemas"
)

// scriptRunner is the slice of the page the overlay needs. Tests substitute a
// recorder here instead of a live browser.
type scriptRunner interface {
	Evaluate(ctx context.Context, js string) error
}

// overlayScript is injected into every new document before page scripts run.
// It draws a synthetic cursor dot and a step banner; all state lives under a
// single namespaced global so reloads reset it cleanly.
const overlayScript = `
(() => {
  if (window.__bpOverlay) return;
  const ns = window.__bpOverlay = { cursor: null, banner: null, hideTimer: null };

  const ensureCursor = () => {
    if (ns.cursor && document.body.contains(ns.cursor)) return ns.cursor;
    const el = document.createElement('div');
    el.style.cssText = 'position:fixed;width:14px;height:14px;border-radius:50%;' +
      'background:rgba(220,38,38,.85);border:2px solid #fff;z-index:2147483647;' +
      'pointer-events:none;transform:translate(-50%,-50%);transition:left .05s,top .05s;';
    document.body.appendChild(el);
    ns.cursor = el;
    return el;
  };

  const ensureBanner = () => {
    if (ns.banner && document.body.contains(ns.banner)) return ns.banner;
    const el = document.createElement('div');
    el.style.cssText = 'position:fixed;top:12px;left:50%;transform:translateX(-50%);' +
      'max-width:70%;padding:6px 14px;border-radius:8px;font:13px system-ui;' +
      'color:#fff;z-index:2147483647;pointer-events:none;';
    document.body.appendChild(el);
    ns.banner = el;
    return el;
  };

  ns.moveCursor = (x, y) => {
    const el = ensureCursor();
    el.style.left = x + 'px';
    el.style.top = y + 'px';
  };

  ns.showBanner = (text, color) => {
    const el = ensureBanner();
    el.textContent = text;
    el.style.background = color;
    el.style.display = 'block';
    clearTimeout(ns.hideTimer);
    ns.hideTimer = setTimeout(() => { el.style.display = 'none'; }, 4000);
  };
})();`

// Overlay renders step annotations into the live page. Every method is
// best-effort: failures are logged and swallowed so a broken page can never
// stall the agent loop.
type Overlay struct {
	runner  scriptRunner
	log     *zap.Logger
	enabled bool
}

var _ schemas.OverlayChannel = (*Overlay)(nil)

// NewOverlay wraps the page's script runner. A disabled overlay keeps the
// channel wired but turns every call into a no-op.
func NewOverlay(runner scriptRunner, logger *zap.Logger, enabled bool) *Overlay {
	return &Overlay{
		runner:  runner,
		log:     logger.Named("overlay"),
		enabled: enabled,
	}
}

// installAction registers the overlay bootstrap on every new document.
func (o *Overlay) installAction() chromedp.Action {
	return installScriptOnNewDocument(overlayScript)
}

// ShowStep announces the action about to run, moving the synthetic cursor
// when the action carries a target point (device pixels).
func (o *Overlay) ShowStep(ctx context.Context, stepType, text string, at *schemas.Point) {
	if !o.enabled {
		return
	}
	label := stepType
	if text != "" {
		label = fmt.Sprintf("%s: %s", stepType, text)
	}
	js := fmt.Sprintf("window.__bpOverlay && window.__bpOverlay.showBanner(%s, 'rgba(30,64,175,.92)')",
		jsString(label))
	if at != nil {
		js += fmt.Sprintf(";window.__bpOverlay && window.__bpOverlay.moveCursor(%g, %g)", at.X, at.Y)
	}
	o.eval(ctx, js)
}

// ShowSuccess flashes a green completion banner.
func (o *Overlay) ShowSuccess(ctx context.Context, text string) {
	if !o.enabled {
		return
	}
	o.eval(ctx, fmt.Sprintf(
		"window.__bpOverlay && window.__bpOverlay.showBanner(%s, 'rgba(22,101,52,.92)')", jsString(text)))
}

// ShowError flashes a red failure banner.
func (o *Overlay) ShowError(ctx context.Context, text string) {
	if !o.enabled {
		return
	}
	o.eval(ctx, fmt.Sprintf(
		"window.__bpOverlay && window.__bpOverlay.showBanner(%s, 'rgba(153,27,27,.92)')", jsString(text)))
}

func (o *Overlay) eval(ctx context.Context, js string) {
	if err := o.runner.Evaluate(ctx, js); err != nil {
		o.log.Debug("Overlay script failed", zap.Error(err))
	}
}

// jsString renders text as a safely quoted JavaScript string literal.
func jsString(s string) string {
	b, err := jsoniter.Marshal(s)
	if err != nil {
		return `""`
	}
	return string(b)
}

// NopOverlay is the channel used when no overlay is wired for a session.
type NopOverlay struct{}

var _ schemas.OverlayChannel = NopOverlay{}

func (NopOverlay) ShowStep(context.Context, string, string, *schemas.Point) {}
func (NopOverlay) ShowSuccess(context.Context, string)                      {}
func (NopOverlay) ShowError(context.Context, string)                        {}
