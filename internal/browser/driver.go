// Package browser wraps the Playwright driver behind narrow Page and Element
// interfaces so the measurement engine can run against fakes in tests.
package browser

import (
	"time"

	"github.com/xkilldash9x/consent-probe/internal/provenance"
)

// Page is the per-trial driver surface. One Page belongs to exactly one
// trial; callers must Close it on every exit path.
type Page interface {
	// Navigate loads url, waiting for DOM-content-loaded up to timeout.
	Navigate(url string, timeout time.Duration) error
	// URL returns the page's current URL.
	URL() string
	// WaitSettle blocks for a fixed delay, letting late resources land.
	WaitSettle(d time.Duration)
	// WaitLoaded waits for DOM-content-loaded up to timeout, best-effort.
	WaitLoaded(timeout time.Duration)

	// BodyText returns the visible body text, truncated by the driver.
	BodyText() (string, error)
	// DocumentLang returns the document element's lang attribute.
	DocumentLang() (string, error)
	// ScriptSources returns the src of every script tag on the page.
	ScriptSources() ([]string, error)
	// Screenshot writes a full-page screenshot to path.
	Screenshot(path string) error

	// Controls returns interactive-role elements in DOM order, bounded.
	Controls() ([]Element, error)
	// Toggles returns checkbox and switch-role elements in DOM order, bounded.
	Toggles() ([]Element, error)

	// HasChallengeFrame reports whether a known anti-bot challenge iframe is
	// present.
	HasChallengeFrame() (bool, error)
	// WaitChallengeCleared polls until the challenge iframe disappears or
	// timeout elapses.
	WaitChallengeCleared(timeout time.Duration) error

	// OpenRequestWindow starts a fresh request-observation window. Any
	// previously open window is sealed first, so windows never overlap.
	OpenRequestWindow() *provenance.Window
	// CloseRequestWindow seals the active window, if any.
	CloseRequestWindow()

	// Close releases the session's context and page.
	Close() error
}

// Element is one interactive control on a Page.
type Element interface {
	// Visible reports visibility; query failures count as not visible.
	Visible() bool
	// Label returns the element's label text, trimmed. Empty when no label
	// could be resolved.
	Label() string
	// Click performs a forced click bounded by timeout.
	Click(timeout time.Duration) error
	// Checked reports the control's current checked or aria-checked state.
	Checked() bool
	// Check sets a checkbox control to checked, bounded by timeout.
	Check(timeout time.Duration) error
}
