package browser

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/playwright-community/playwright-go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/consent-probe/internal/provenance"
)

// DOM selectors the probes run against.
const (
	controlSelector  = "button, a, [role='button'], input[type='button'], input[type='submit'], div[role='button']"
	checkboxSelector = "input[type='checkbox']"
	switchSelector   = "[role='switch'], [role='checkbox']"

	challengeFrameSelector = "iframe[src*='challenges.cloudflare.com']"
)

// Bounds on how many elements a single probe will materialize. Consent UIs
// put their controls near the top of the DOM; scanning further is wasted I/O.
const (
	maxControls = 60
	maxToggles  = 30
)

// Session is an isolated context+page pair owned by exactly one trial. It
// implements Page over the Playwright driver.
type Session struct {
	id     string
	bctx   playwright.BrowserContext
	page   playwright.Page
	logger *zap.Logger

	// Active request-observation window. A single persistent listener routes
	// every request into whichever window is installed, so consecutive
	// windows never overlap or double-count.
	window atomic.Pointer[provenance.Window]

	onClose func()

	mu       sync.Mutex
	isClosed bool
}

var _ Page = (*Session)(nil)

func newSession(bctx playwright.BrowserContext, page playwright.Page, logger *zap.Logger) *Session {
	sessionID := uuid.New().String()
	s := &Session{
		id:     sessionID,
		bctx:   bctx,
		page:   page,
		logger: logger.With(zap.String("session_id", sessionID)),
	}
	page.OnRequest(func(req playwright.Request) {
		if w := s.window.Load(); w != nil {
			w.Record(req.URL())
		}
	})
	return s
}

// ID returns the session's unique id.
func (s *Session) ID() string { return s.id }

// Navigate loads url and waits for DOM-content-loaded up to timeout.
func (s *Session) Navigate(url string, timeout time.Duration) error {
	_, err := s.page.Goto(url, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
		Timeout:   playwright.Float(float64(timeout.Milliseconds())),
	})
	if err != nil {
		return fmt.Errorf("goto %s: %w", url, err)
	}
	return nil
}

// URL returns the page's current URL.
func (s *Session) URL() string {
	return s.page.URL()
}

// WaitSettle blocks for a fixed delay on the driver's clock.
func (s *Session) WaitSettle(d time.Duration) {
	s.page.WaitForTimeout(float64(d.Milliseconds()))
}

// WaitLoaded waits for DOM-content-loaded, best-effort. Single-page apps
// often never fire it again after a click, so a timeout here is not an error.
func (s *Session) WaitLoaded(timeout time.Duration) {
	err := s.page.WaitForLoadState(playwright.PageWaitForLoadStateOptions{
		State:   playwright.LoadStateDomcontentloaded,
		Timeout: playwright.Float(float64(timeout.Milliseconds())),
	})
	if err != nil {
		s.logger.Debug("wait for load state timed out", zap.Error(err))
	}
}

// BodyText returns the visible body text, truncated to 20k characters.
func (s *Session) BodyText() (string, error) {
	res, err := s.page.Evaluate(`() => (document.body?.innerText || "").slice(0, 20000)`)
	if err != nil {
		return "", fmt.Errorf("read body text: %w", err)
	}
	txt, _ := res.(string)
	return txt, nil
}

// DocumentLang returns the document element's lang attribute.
func (s *Session) DocumentLang() (string, error) {
	res, err := s.page.Evaluate(`() => document.documentElement.lang || ""`)
	if err != nil {
		return "", fmt.Errorf("read document lang: %w", err)
	}
	lang, _ := res.(string)
	return lang, nil
}

// ScriptSources returns the src of every script tag on the page.
func (s *Session) ScriptSources() ([]string, error) {
	res, err := s.page.Evaluate(`() => Array.from(document.scripts).map(s => s.src || "").filter(Boolean)`)
	if err != nil {
		return nil, fmt.Errorf("read script sources: %w", err)
	}
	raw, ok := res.([]interface{})
	if !ok {
		return nil, nil
	}
	srcs := make([]string, 0, len(raw))
	for _, v := range raw {
		if src, ok := v.(string); ok && src != "" {
			srcs = append(srcs, src)
		}
	}
	return srcs, nil
}

// Screenshot writes a full-page screenshot to path.
func (s *Session) Screenshot(path string) error {
	_, err := s.page.Screenshot(playwright.PageScreenshotOptions{
		Path:     playwright.String(path),
		FullPage: playwright.Bool(true),
	})
	if err != nil {
		return fmt.Errorf("screenshot %s: %w", path, err)
	}
	return nil
}

// Controls returns interactive-role elements in DOM order, bounded to
// maxControls.
func (s *Session) Controls() ([]Element, error) {
	loc := s.page.Locator(controlSelector)
	n, err := loc.Count()
	if err != nil {
		return nil, fmt.Errorf("count controls: %w", err)
	}
	if n > maxControls {
		n = maxControls
	}
	elems := make([]Element, 0, n)
	for i := 0; i < n; i++ {
		elems = append(elems, &controlElement{loc: loc.Nth(i)})
	}
	return elems, nil
}

// Toggles returns checkbox inputs followed by switch-role elements, each
// bounded to maxToggles.
func (s *Session) Toggles() ([]Element, error) {
	var elems []Element

	cbs := s.page.Locator(checkboxSelector)
	n, err := cbs.Count()
	if err != nil {
		return nil, fmt.Errorf("count checkboxes: %w", err)
	}
	if n > maxToggles {
		n = maxToggles
	}
	for i := 0; i < n; i++ {
		elems = append(elems, &toggleElement{loc: cbs.Nth(i)})
	}

	sws := s.page.Locator(switchSelector)
	n, err = sws.Count()
	if err != nil {
		return nil, fmt.Errorf("count switches: %w", err)
	}
	if n > maxToggles {
		n = maxToggles
	}
	for i := 0; i < n; i++ {
		elems = append(elems, &toggleElement{loc: sws.Nth(i), ariaChecked: true})
	}
	return elems, nil
}

// HasChallengeFrame reports whether a Cloudflare Turnstile iframe is present.
func (s *Session) HasChallengeFrame() (bool, error) {
	n, err := s.page.Locator(challengeFrameSelector).Count()
	if err != nil {
		return false, fmt.Errorf("count challenge frames: %w", err)
	}
	return n > 0, nil
}

// WaitChallengeCleared polls until the challenge iframe disappears or timeout
// elapses.
func (s *Session) WaitChallengeCleared(timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		n, err := s.page.Locator(challengeFrameSelector).Count()
		if err == nil && n == 0 {
			return nil
		}
		s.page.WaitForTimeout(1000)
	}
	return errors.New("challenge frame still present after wait")
}

// OpenRequestWindow seals any active window and installs a fresh one.
func (s *Session) OpenRequestWindow() *provenance.Window {
	w := provenance.NewWindow()
	if old := s.window.Swap(w); old != nil {
		old.Close()
	}
	return w
}

// CloseRequestWindow seals the active window, if any.
func (s *Session) CloseRequestWindow() {
	if old := s.window.Swap(nil); old != nil {
		old.Close()
	}
}

// Close releases the context and page. Idempotent.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.isClosed {
		s.mu.Unlock()
		return nil
	}
	s.isClosed = true
	s.mu.Unlock()

	s.CloseRequestWindow()
	err := s.bctx.Close()
	if s.onClose != nil {
		s.onClose()
	}
	if err != nil {
		return fmt.Errorf("close context: %w", err)
	}
	return nil
}

// controlElement is a button/link style control located by the probe
// selector.
type controlElement struct {
	loc playwright.Locator
}

func (e *controlElement) Visible() bool {
	vis, err := e.loc.IsVisible()
	return err == nil && vis
}

// Label prefers inner text and falls back to the value attribute, matching
// how submit inputs carry their caption.
func (e *controlElement) Label() string {
	txt, err := e.loc.InnerText(playwright.LocatorInnerTextOptions{
		Timeout: playwright.Float(1000),
	})
	if err == nil && strings.TrimSpace(txt) != "" {
		return strings.TrimSpace(txt)
	}
	val, err := e.loc.GetAttribute("value", playwright.LocatorGetAttributeOptions{
		Timeout: playwright.Float(1000),
	})
	if err != nil {
		return ""
	}
	return strings.TrimSpace(val)
}

func (e *controlElement) Click(timeout time.Duration) error {
	return e.loc.Click(playwright.LocatorClickOptions{
		Timeout: playwright.Float(float64(timeout.Milliseconds())),
		Force:   playwright.Bool(true),
	})
}

func (e *controlElement) Checked() bool {
	checked, err := e.loc.IsChecked()
	return err == nil && checked
}

func (e *controlElement) Check(timeout time.Duration) error {
	return e.loc.Check(playwright.LocatorCheckOptions{
		Timeout: playwright.Float(float64(timeout.Milliseconds())),
		Force:   playwright.Bool(true),
	})
}

// toggleLabelScript resolves a toggle's label the way a user would read it:
// aria-label, an explicit label[for], the closest label ancestor, then the
// parent element's text.
const toggleLabelScript = `(node) => {
	const e = node;
	const aria = e.getAttribute("aria-label") || "";
	const id = e.id || "";
	let lbl = "";
	if (id) {
		const lab = document.querySelector('label[for="' + CSS.escape(id) + '"]');
		if (lab) lbl = (lab.textContent || "").trim();
	}
	if (!lbl) {
		const closestLabel = e.closest("label");
		if (closestLabel) lbl = (closestLabel.textContent || "").trim();
	}
	const parentText = (e.parentElement?.textContent || "").trim();
	return (aria || lbl || parentText).slice(0, 200);
}`

// toggleElement is a checkbox input or a switch/checkbox-role element.
// ariaChecked selects the aria attribute protocol over the input checked
// property.
type toggleElement struct {
	loc         playwright.Locator
	ariaChecked bool
}

func (e *toggleElement) Visible() bool {
	vis, err := e.loc.IsVisible()
	return err == nil && vis
}

func (e *toggleElement) Label() string {
	res, err := e.loc.Evaluate(toggleLabelScript, nil)
	if err != nil {
		return ""
	}
	lbl, _ := res.(string)
	return strings.TrimSpace(lbl)
}

func (e *toggleElement) Click(timeout time.Duration) error {
	return e.loc.Click(playwright.LocatorClickOptions{
		Timeout: playwright.Float(float64(timeout.Milliseconds())),
		Force:   playwright.Bool(true),
	})
}

func (e *toggleElement) Checked() bool {
	if e.ariaChecked {
		v, err := e.loc.GetAttribute("aria-checked", playwright.LocatorGetAttributeOptions{
			Timeout: playwright.Float(1000),
		})
		return err == nil && v == "true"
	}
	checked, err := e.loc.IsChecked()
	return err == nil && checked
}

// Check turns the control on. Custom widgets often reject the native check
// action, so a plain click is the fallback.
func (e *toggleElement) Check(timeout time.Duration) error {
	if e.ariaChecked {
		return e.Click(timeout)
	}
	err := e.loc.Check(playwright.LocatorCheckOptions{
		Timeout: playwright.Float(float64(timeout.Milliseconds())),
		Force:   playwright.Bool(true),
	})
	if err != nil {
		return e.Click(timeout)
	}
	return nil
}
