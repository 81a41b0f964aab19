package engine

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/xkilldash9x/consent-probe/internal/browser"
	"github.com/xkilldash9x/consent-probe/internal/classify"
)

// Interstitial gates ("enter site", age checks) sit in front of some
// candidate pages and must be dismissed before the consent banner is
// measurable.
const (
	maxInterstitialSteps = 3
	interstitialNavWait  = 8 * time.Second
	interstitialSettle   = 2 * time.Second
	panelSettle          = 1500 * time.Millisecond
)

// resolveInterstitials detects and dismisses up to maxInterstitialSteps
// stacked entry gates. Every failure inside is absorbed into notes; the trial
// proceeds whether or not the gate was cleared.
func resolveInterstitials(p browser.Page, rules *classify.RuleSet, notes *noteLog, evidenceDir string, runID int) {
	for step := 1; step <= maxInterstitialSteps; step++ {
		shotBefore := filepath.Join(evidenceDir, fmt.Sprintf("run%d_interstitial_step%d_before.png", runID, step))
		if err := p.Screenshot(shotBefore); err == nil {
			notes.add("interstitial", "step%d_before=%s", step, shotBefore)
		}

		// The cookie-word exclusion keeps a consent button from masquerading
		// as a site-entry gate.
		res := clickByIntent(p, rules, classify.IntentEnterSite, defaultMaxScan)
		if !res.clicked() {
			return
		}
		notes.add("interstitial", "clicked=%q", res.text)

		// SPAs often show no navigation event; fall back to a fixed settle.
		p.WaitLoaded(interstitialNavWait)
		p.WaitSettle(interstitialSettle)

		shotAfter := filepath.Join(evidenceDir, fmt.Sprintf("run%d_interstitial_step%d_after.png", runID, step))
		if err := p.Screenshot(shotAfter); err == nil {
			notes.add("interstitial", "step%d_after=%s", step, shotAfter)
		}

		// A still-present gate usually means its button is disabled behind a
		// confirmation checkbox. Tick a couple and retry once.
		if enterSiteTextPresent(p, rules) {
			if ticks := tickUnchecked(p, 2); ticks > 0 {
				notes.add("interstitial", "checkboxes_ticked=%d", ticks)
				retry := clickByIntent(p, rules, classify.IntentEnterSite, defaultMaxScan)
				if retry.clicked() {
					p.WaitLoaded(interstitialNavWait)
					p.WaitSettle(interstitialSettle)
				}
			}
		}

		if !enterSiteTextPresent(p, rules) {
			return
		}
	}
}

func enterSiteTextPresent(p browser.Page, rules *classify.RuleSet) bool {
	body, err := p.BodyText()
	if err != nil {
		return false
	}
	return rules.MatchText(classify.IntentEnterSite, body)
}
