// internal/recorder/script.go
package recorder

import (
	"fmt"
	"strings"
	"text/template"

	"github.com/xkilldash9x/stagehand/internal/config"
)

// The capture script runs inside the page and buffers interaction events in
// a namespaced global. The host drains that buffer on its poll tick; nothing
// is streamed. Scroll and mouse movement are debounced in-page so the
// buffer carries settled positions instead of every intermediate sample.
//
// Ctrl+S (Cmd+S on mac) is the stop chord: it raises the stop flag and is
// swallowed, never recorded.
const captureScriptTemplate = `(() => {
  if (window.__stagehandEvents) return;
  window.__stagehandEvents = [];
  window.__stagehandStop = false;
  const start = performance.now();
  const now = () => (performance.now() - start) / 1000;
  const push = (ev) => { window.__stagehandEvents.push(ev); };

  const selectorFor = (el) => {
    if (!el || el.nodeType !== 1) { return ''; }
    if (el.id) { return '#' + el.id; }
    const tag = el.tagName.toLowerCase();
    if (el.classList && el.classList.length > 0) {
      return tag + '.' + Array.from(el.classList).join('.');
    }
    return tag;
  };

  document.addEventListener('click', (e) => {
    push({ type: 'click', selector: selectorFor(e.target),
           x: e.clientX, y: e.clientY, timestamp: now() });
  }, true);

  let scrollTimer = null;
  let lastScroll = null;
  window.addEventListener('scroll', () => {
    lastScroll = { type: 'scroll', scrollX: window.scrollX, scrollY: window.scrollY,
                   timestamp: now() };
    if (scrollTimer) { clearTimeout(scrollTimer); }
    scrollTimer = setTimeout(() => {
      scrollTimer = null;
      if (lastScroll) { push(lastScroll); lastScroll = null; }
    }, {{.ScrollDebounceMs}});
  }, true);

  let moveTimer = null;
  let lastMove = null;
  document.addEventListener('mousemove', (e) => {
    lastMove = { type: 'mousemove', x: e.clientX, y: e.clientY, timestamp: now() };
    if (moveTimer) { clearTimeout(moveTimer); }
    moveTimer = setTimeout(() => {
      moveTimer = null;
      if (lastMove) { push(lastMove); lastMove = null; }
    }, {{.MouseMoveDebounceMs}});
  }, true);

  document.addEventListener('keydown', (e) => {
    if ((e.ctrlKey || e.metaKey) && e.key.toLowerCase() === 's') {
      e.preventDefault();
      window.__stagehandStop = true;
      return;
    }
    push({ type: 'keypress', key: e.key, code: e.code, timestamp: now() });
  }, true);
})();`

// drainScript atomically hands the buffered events to the host and resets
// the buffer. Returns [] when the script was never injected, so a drain on
// a replaced document degrades to "nothing new".
const drainScript = `(() => {
  if (!window.__stagehandEvents) { return []; }
  const out = window.__stagehandEvents;
  window.__stagehandEvents = [];
  return out;
})();`

// stopFlagScript reads the in-page stop flag.
const stopFlagScript = `!!window.__stagehandStop`

var captureTmpl = template.Must(template.New("capture").Parse(captureScriptTemplate))

// RenderCaptureScript produces the in-page capture script with the
// configured debounce windows baked in.
func RenderCaptureScript(cfg config.RecorderConfig) (string, error) {
	var sb strings.Builder
	err := captureTmpl.Execute(&sb, struct {
		ScrollDebounceMs    int64
		MouseMoveDebounceMs int64
	}{
		ScrollDebounceMs:    cfg.ScrollDebounce.Milliseconds(),
		MouseMoveDebounceMs: cfg.MouseMoveDebounce.Milliseconds(),
	})
	if err != nil {
		return "", fmt.Errorf("rendering capture script: %w", err)
	}
	return sb.String(), nil
}

// DrainScript returns the script that drains and resets the event buffer.
func DrainScript() string { return drainScript }

// StopFlagScript returns the script that reads the stop flag.
func StopFlagScript() string { return stopFlagScript }
