package engine

import (
	"strings"
	"time"

	"github.com/xkilldash9x/consent-probe/internal/browser"
	"github.com/xkilldash9x/consent-probe/internal/classify"
)

const toggleActionTimeout = 1500 * time.Millisecond

// toggleReport summarizes the granular consent toggles visible on the page:
// which categories exist and which default to "on". SwitchedOff counts
// controls the mutating variant actually turned off.
type toggleReport struct {
	HasAnalytics       bool
	HasAds             bool
	DefaultOnAnalytics bool
	DefaultOnAds       bool
	SwitchedOff        int
}

func (t toggleReport) anyDefaultOn() bool {
	return t.DefaultOnAnalytics || t.DefaultOnAds
}

// scanToggles enumerates checkbox and switch controls, classifies each by
// label into analytics/ads (a control may match both), and records presence
// and default state. With switchOff set it additionally clicks every matched
// control found checked, turning it off. All per-element failures are
// absorbed; the report is always valid.
func scanToggles(p browser.Page, switchOff bool) (toggleReport, error) {
	var report toggleReport

	toggles, err := p.Toggles()
	if err != nil {
		return report, err
	}

	for _, el := range toggles {
		if !el.Visible() {
			continue
		}
		label := strings.ToLower(el.Label())
		if label == "" {
			continue
		}
		isAnalytics := classify.MatchToggle(classify.ToggleAnalytics, label)
		isAds := classify.MatchToggle(classify.ToggleAds, label)
		if !isAnalytics && !isAds {
			continue
		}

		checked := el.Checked()
		if isAnalytics {
			report.HasAnalytics = true
			if checked {
				report.DefaultOnAnalytics = true
			}
		}
		if isAds {
			report.HasAds = true
			if checked {
				report.DefaultOnAds = true
			}
		}

		if switchOff && checked {
			if err := el.Click(toggleActionTimeout); err == nil {
				report.SwitchedOff++
			}
		}
	}
	return report, nil
}

// tickUnchecked checks up to max unchecked visible toggle controls, used when
// an interstitial gate requires a confirmation checkbox before its button
// enables. Returns the number of controls actually ticked.
func tickUnchecked(p browser.Page, max int) int {
	toggles, err := p.Toggles()
	if err != nil {
		return 0
	}
	ticks := 0
	for _, el := range toggles {
		if ticks >= max {
			break
		}
		if !el.Visible() || el.Checked() {
			continue
		}
		if err := el.Check(toggleActionTimeout); err == nil {
			ticks++
		}
	}
	return ticks
}
