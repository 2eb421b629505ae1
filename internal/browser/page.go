// internal/browser/page.go
package browser

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/input"
	cdppage "github.com/chromedp/cdproto/page"
	cdpruntime "github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/stagehand/api/schemas"
	"github.com/xkilldash9x/stagehand/internal/recorder"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Page is one browser tab. It implements the page surfaces the detector,
// recorder, snapshot store, and replayer need. A Page is bound to a single
// goroutine's use at a time; it is not safe for concurrent calls.
type Page struct {
	ctx    context.Context
	cancel context.CancelFunc
	log    *zap.Logger

	closeOnce sync.Once
	done      func()
}

// Close releases the tab. Safe to call more than once.
func (p *Page) Close() {
	p.closeOnce.Do(func() {
		p.cancel()
		if p.done != nil {
			p.done()
		}
	})
}

// run executes chromedp actions against this page while honoring the
// caller's cancellation and deadline.
func (p *Page) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(p.ctx)
	defer cancel()
	if deadline, ok := ctx.Deadline(); ok {
		var cancelDeadline context.CancelFunc
		runCtx, cancelDeadline = context.WithDeadline(runCtx, deadline)
		defer cancelDeadline()
	}
	stop := context.AfterFunc(ctx, cancel)
	defer stop()
	if err := chromedp.Run(runCtx, actions...); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return err
	}
	return nil
}

// Evaluate runs script in the page and decodes the result into out. Results
// come back by value with promises awaited, and page-side exceptions are
// returned as errors without spamming the browser console.
func (p *Page) Evaluate(ctx context.Context, script string, out interface{}) error {
	return p.run(ctx, chromedp.Evaluate(script, out, func(ep *cdpruntime.EvaluateParams) *cdpruntime.EvaluateParams {
		return ep.WithReturnByValue(true).WithAwaitPromise(true).WithSilent(true)
	}))
}

// TargetURL normalizes a recording target: anything without a scheme is
// treated as a local file path and rewritten to a file:// URL.
func TargetURL(target string) (string, error) {
	if strings.Contains(target, "://") {
		return target, nil
	}
	abs, err := filepath.Abs(target)
	if err != nil {
		return "", fmt.Errorf("resolving target path %q: %w", target, err)
	}
	return "file://" + abs, nil
}

// Navigate loads target and waits for the document to be ready.
func (p *Page) Navigate(ctx context.Context, target string) error {
	url, err := TargetURL(target)
	if err != nil {
		return err
	}
	p.log.Info("Navigating", zap.String("url", url))
	return p.run(ctx, chromedp.Navigate(url), chromedp.WaitReady("body", chromedp.ByQuery))
}

// AddInitScript registers script to run in every new document, surviving
// reloads and navigations.
func (p *Page) AddInitScript(ctx context.Context, script string) error {
	return p.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		_, err := cdppage.AddScriptToEvaluateOnNewDocument(script).Do(ctx)
		return err
	}))
}

// -- VariableResolver --

// resolveResult is the page-side answer to a variable lookup. The value is
// JSON round-tripped in the page, so anything unserializable reports as not
// found instead of poisoning the decode.
type resolveResult struct {
	Found bool        `json:"found"`
	Value interface{} `json:"value"`
}

const resolveScriptTemplate = `(() => {
  const name = %s;
  const sanitize = (v) => {
    try { return { found: true, value: JSON.parse(JSON.stringify(v)) }; }
    catch (e) { return { found: false, value: null }; }
  };
  if (name.indexOf('.') >= 0) {
    let obj = window;
    for (const part of name.split('.')) {
      if (obj === null || obj === undefined) { return { found: false, value: null }; }
      try { obj = obj[part]; } catch (e) { return { found: false, value: null }; }
    }
    if (obj === undefined || typeof obj === 'function') { return { found: false, value: null }; }
    return sanitize(obj);
  }
  const direct = window[name];
  if (direct !== undefined && typeof direct !== 'function') {
    return sanitize(direct);
  }
  for (const key of Object.keys(window)) {
    let v;
    try { v = window[key]; } catch (e) { continue; }
    if (v && typeof v === 'object' && Object.prototype.hasOwnProperty.call(v, name)) {
      const nested = v[name];
      if (nested !== undefined && typeof nested !== 'function') { return sanitize(nested); }
    }
  }
  return { found: false, value: null };
})()`

// Resolve looks a variable up in the page: dotted names walk the path from
// the global scope, bare names check the global scope and then one level
// into every enumerable global object. Any failure is (nil, false).
func (p *Page) Resolve(ctx context.Context, name string) (interface{}, bool) {
	var res resolveResult
	script := fmt.Sprintf(resolveScriptTemplate, jsonEncode(name))
	if err := p.Evaluate(ctx, script, &res); err != nil {
		p.log.Debug("Variable resolution failed", zap.String("variable", name), zap.Error(err))
		return nil, false
	}
	if !res.Found {
		return nil, false
	}
	return res.Value, true
}

// -- DOMInspector --

func (p *Page) IsVisible(ctx context.Context, selector string) bool {
	script := fmt.Sprintf(`(() => {
  const el = document.querySelector(%s);
  if (!el) { return false; }
  const style = window.getComputedStyle(el);
  if (style.display === 'none' || style.visibility === 'hidden' || style.opacity === '0') { return false; }
  const r = el.getBoundingClientRect();
  return r.width > 0 && r.height > 0;
})()`, jsonEncode(selector))
	return p.evalBool(ctx, script)
}

// IsHidden holds for elements that are absent as well as elements that are
// merely invisible.
func (p *Page) IsHidden(ctx context.Context, selector string) bool {
	script := fmt.Sprintf(`(() => {
  const el = document.querySelector(%s);
  if (!el) { return true; }
  const style = window.getComputedStyle(el);
  if (style.display === 'none' || style.visibility === 'hidden' || style.opacity === '0') { return true; }
  const r = el.getBoundingClientRect();
  return r.width === 0 || r.height === 0;
})()`, jsonEncode(selector))
	return p.evalBool(ctx, script)
}

func (p *Page) HasClass(ctx context.Context, selector, class string) bool {
	script := fmt.Sprintf(`(() => {
  const el = document.querySelector(%s);
  return !!el && el.classList.contains(%s);
})()`, jsonEncode(selector), jsonEncode(class))
	return p.evalBool(ctx, script)
}

func (p *Page) TextContains(ctx context.Context, selector, substring string) bool {
	script := fmt.Sprintf(`(() => {
  const el = document.querySelector(%s);
  return !!el && (el.textContent || '').includes(%s);
})()`, jsonEncode(selector), jsonEncode(substring))
	return p.evalBool(ctx, script)
}

func (p *Page) evalBool(ctx context.Context, script string) bool {
	var res bool
	if err := p.Evaluate(ctx, script, &res); err != nil {
		p.log.Debug("DOM predicate failed", zap.Error(err))
		return false
	}
	return res
}

// -- markup and variable mutation --

// InnerHTML returns the markup of the first element matching selector.
func (p *Page) InnerHTML(ctx context.Context, selector string) (string, error) {
	var html string
	script := fmt.Sprintf(`(() => {
  const el = document.querySelector(%s);
  if (!el) { throw new Error('no element matches ' + %s); }
  return el.innerHTML;
})()`, jsonEncode(selector), jsonEncode(selector))
	if err := p.Evaluate(ctx, script, &html); err != nil {
		return "", fmt.Errorf("reading innerHTML of %q: %w", selector, err)
	}
	return html, nil
}

// SetInnerHTML replaces the markup of the first element matching selector.
func (p *Page) SetInnerHTML(ctx context.Context, selector, html string) error {
	script := fmt.Sprintf(`(() => {
  const el = document.querySelector(%s);
  if (!el) { throw new Error('no element matches ' + %s); }
  el.innerHTML = %s;
  return true;
})()`, jsonEncode(selector), jsonEncode(selector), jsonEncode(html))
	if err := p.Evaluate(ctx, script, nil); err != nil {
		return fmt.Errorf("writing innerHTML of %q: %w", selector, err)
	}
	return nil
}

// SetVariable injects value into the page under name. The value crosses the
// boundary as JSON and is parsed page-side; it is never spliced into script
// source. Values that cannot be JSON-encoded are carried as their string
// rendering rather than dropped.
func (p *Page) SetVariable(ctx context.Context, name string, value interface{}) error {
	payload, err := json.Marshal(value)
	if err != nil {
		payload, _ = json.Marshal(fmt.Sprintf("%v", value))
	}
	script := fmt.Sprintf(`(() => {
  const path = %s.split('.');
  let obj = window;
  for (let i = 0; i < path.length - 1; i++) {
    if (typeof obj[path[i]] !== 'object' || obj[path[i]] === null) { obj[path[i]] = {}; }
    obj = obj[path[i]];
  }
  obj[path[path.length - 1]] = JSON.parse(%s);
  return true;
})()`, jsonEncode(name), jsonEncode(string(payload)))
	if err := p.Evaluate(ctx, script, nil); err != nil {
		return fmt.Errorf("setting variable %q: %w", name, err)
	}
	return nil
}

// SetText replaces the text content of the first element matching selector.
func (p *Page) SetText(ctx context.Context, selector, text string) error {
	script := fmt.Sprintf(`(() => {
  const el = document.querySelector(%s);
  if (!el) { throw new Error('no element matches ' + %s); }
  el.textContent = %s;
  return true;
})()`, jsonEncode(selector), jsonEncode(selector), jsonEncode(text))
	if err := p.Evaluate(ctx, script, nil); err != nil {
		return fmt.Errorf("setting text of %q: %w", selector, err)
	}
	return nil
}

// -- recorder.PageConn --

// InjectCaptureScript installs the event capture script both into the
// current document and as an init script for future navigations.
func (p *Page) InjectCaptureScript(ctx context.Context, script string) error {
	if err := p.AddInitScript(ctx, script); err != nil {
		return fmt.Errorf("registering capture init script: %w", err)
	}
	if err := p.Evaluate(ctx, script, nil); err != nil {
		return fmt.Errorf("injecting capture script: %w", err)
	}
	return nil
}

// DrainEvents implements recorder.PageConn.
func (p *Page) DrainEvents(ctx context.Context) ([]schemas.Event, error) {
	var events []schemas.Event
	if err := p.Evaluate(ctx, recorder.DrainScript(), &events); err != nil {
		return nil, fmt.Errorf("draining event buffer: %w", err)
	}
	return events, nil
}

// StopRequested implements recorder.PageConn.
func (p *Page) StopRequested(ctx context.Context) (bool, error) {
	var stop bool
	if err := p.Evaluate(ctx, recorder.StopFlagScript(), &stop); err != nil {
		return false, fmt.Errorf("reading stop flag: %w", err)
	}
	return stop, nil
}

// -- replayer.Executor --

// SemanticClick resolves selector and clicks it through the browser's own
// hit-testing, which exercises the same handlers a real user would.
func (p *Page) SemanticClick(ctx context.Context, selector string) error {
	return p.run(ctx, chromedp.Click(selector, chromedp.ByQuery))
}

// ClickAt dispatches a full click sequence at raw viewport coordinates.
func (p *Page) ClickAt(ctx context.Context, x, y float64) error {
	return p.run(ctx,
		input.DispatchMouseEvent(input.MouseMoved, x, y),
		input.DispatchMouseEvent(input.MousePressed, x, y).
			WithButton(input.Left).WithClickCount(1),
		input.DispatchMouseEvent(input.MouseReleased, x, y).
			WithButton(input.Left).WithClickCount(1),
	)
}

// ScrollTo scrolls the window to an absolute position.
func (p *Page) ScrollTo(ctx context.Context, x, y float64) error {
	script := fmt.Sprintf(`window.scrollTo(%v, %v)`, x, y)
	return p.Evaluate(ctx, script, nil)
}

// MouseMove dispatches a hover movement to the coordinates.
func (p *Page) MouseMove(ctx context.Context, x, y float64) error {
	return p.run(ctx, input.DispatchMouseEvent(input.MouseMoved, x, y))
}

// namedKeys maps DOM KeyboardEvent.key values to the control runes the
// keyboard dispatcher understands. Single-character keys pass through as-is.
var namedKeys = map[string]string{
	"Enter":      kb.Enter,
	"Tab":        kb.Tab,
	"Backspace":  kb.Backspace,
	"Delete":     kb.Delete,
	"Escape":     kb.Escape,
	"ArrowUp":    kb.ArrowUp,
	"ArrowDown":  kb.ArrowDown,
	"ArrowLeft":  kb.ArrowLeft,
	"ArrowRight": kb.ArrowRight,
	"Home":       kb.Home,
	"End":        kb.End,
	"PageUp":     kb.PageUp,
	"PageDown":   kb.PageDown,
	" ":          " ",
}

// KeyPress dispatches one keypress to the focused element.
func (p *Page) KeyPress(ctx context.Context, key string) error {
	keys, ok := namedKeys[key]
	if !ok {
		if len([]rune(key)) != 1 {
			// Unmapped multi-character key names (media keys, function keys)
			// have no replayable equivalent here.
			return fmt.Errorf("unsupported key %q", key)
		}
		keys = key
	}
	return p.run(ctx, chromedp.KeyEvent(keys))
}

// clearTimersScript cancels pending timers by sweeping the handle space.
// Timer handles are small sequential integers, so a bounded sweep catches
// everything a test page realistically scheduled.
const clearTimersScript = `(() => {
  const max = setTimeout(() => {}, 0);
  for (let i = 1; i <= Math.max(99999, max); i++) {
    clearTimeout(i);
    clearInterval(i);
  }
  return true;
})()`

// ClearTimers cancels pending page timers.
func (p *Page) ClearTimers(ctx context.Context) error {
	return p.Evaluate(ctx, clearTimersScript, nil)
}

// Alive reports whether the page still answers trivial evaluation.
func (p *Page) Alive(ctx context.Context) bool {
	if p.ctx.Err() != nil {
		return false
	}
	probeCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	var one int
	return p.Evaluate(probeCtx, "1", &one) == nil
}

// jsonEncode renders v as a JSON literal safe to embed in script source.
func jsonEncode(v interface{}) string {
	b, err := json.Marshal(v)
	if err != nil {
		return "null"
	}
	return string(b)
}
