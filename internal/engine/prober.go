package engine

import (
	"time"

	"github.com/xkilldash9x/consent-probe/internal/browser"
	"github.com/xkilldash9x/consent-probe/internal/classify"
)

// Probe bounds. Consent controls sit near the top of the DOM; scanning the
// whole document trades time for nothing.
const (
	defaultMaxScan = 40
	clickTimeout   = 2 * time.Second
)

type probeOutcome int

const (
	// probeNotFound: no visible element matched.
	probeNotFound probeOutcome = iota
	// probeFound: a visible element matched but was not (or could not be)
	// clicked.
	probeFound
	// probeClicked: a matching element was clicked.
	probeClicked
	// probeError: the page could not be scanned at all.
	probeError
)

// probeResult is the outcome of one element probe. The distinction between
// found and clicked matters: presence flags come from found, click-depth
// measurements only from clicked.
type probeResult struct {
	outcome probeOutcome
	text    string
	reason  string
}

func (r probeResult) found() bool   { return r.outcome == probeFound || r.outcome == probeClicked }
func (r probeResult) clicked() bool { return r.outcome == probeClicked }

// findByIntent scans interactive controls in DOM order for a visible element
// whose label matches intent, without clicking it.
func findByIntent(p browser.Page, rules *classify.RuleSet, intent classify.Intent, maxScan int) probeResult {
	return scanControls(p, maxScan, false, func(label string) bool {
		return rules.Match(intent, label)
	})
}

// clickByIntent scans like findByIntent but clicks the first matching element
// that accepts a forced, timeout-bounded click. A match that refuses the
// click does not end the scan; a later clickable match still wins.
func clickByIntent(p browser.Page, rules *classify.RuleSet, intent classify.Intent, maxScan int) probeResult {
	return scanControls(p, maxScan, true, func(label string) bool {
		return rules.Match(intent, label)
	})
}

// clickMatching is clickByIntent with an arbitrary label predicate, for the
// loose confirm fallback in the preferences flow.
func clickMatching(p browser.Page, maxScan int, match func(string) bool) probeResult {
	return scanControls(p, maxScan, true, match)
}

func scanControls(p browser.Page, maxScan int, click bool, match func(string) bool) probeResult {
	controls, err := p.Controls()
	if err != nil {
		return probeResult{outcome: probeError, reason: truncate(err.Error(), 120)}
	}
	if maxScan > 0 && len(controls) > maxScan {
		controls = controls[:maxScan]
	}

	found := probeResult{outcome: probeNotFound}
	for _, el := range controls {
		if !el.Visible() {
			continue
		}
		label := el.Label()
		if label == "" || !match(label) {
			continue
		}
		if !click {
			return probeResult{outcome: probeFound, text: label}
		}
		if err := el.Click(clickTimeout); err != nil {
			// Remember that something matched, keep scanning.
			found = probeResult{outcome: probeFound, text: label, reason: truncate(err.Error(), 120)}
			continue
		}
		return probeResult{outcome: probeClicked, text: label}
	}
	return found
}
