package engine

import (
	"fmt"
	"path/filepath"

	"github.com/xkilldash9x/consent-probe/internal/browser"
	"github.com/xkilldash9x/consent-probe/internal/classify"
	"github.com/xkilldash9x/consent-probe/internal/provenance"
)

// prefsResult reports the reject-via-preferences sub-flow. On success the
// post-reject observation window is already open: it was installed right
// after the confirm click so the causal "requests after rejection" claim
// holds, and the caller only settles and counts.
type prefsResult struct {
	ok           bool
	clicks       int
	details      string
	manageOpened bool
	report       toggleReport
	manageShot   string
	window       *provenance.Window
}

// rejectViaPreferences opts out through the settings panel: open manage,
// switch matched toggles off, confirm the selection without touching any
// accept-all control. Click cost = 1 (open) + toggles switched + 1 (confirm).
func rejectViaPreferences(p browser.Page, rules *classify.RuleSet, notes *noteLog, evidenceDir string, runID int) prefsResult {
	opened := clickByIntent(p, rules, classify.IntentManage, defaultMaxScan)
	if !opened.clicked() {
		return prefsResult{details: "manage_not_found"}
	}
	p.WaitSettle(panelSettle)

	res := prefsResult{manageOpened: true}

	res.manageShot = filepath.Join(evidenceDir, fmt.Sprintf("run%d_manage.png", runID))
	if err := p.Screenshot(res.manageShot); err != nil {
		notes.addErr("prefs", "manage screenshot failed", err)
		res.manageShot = ""
	}

	report, err := scanToggles(p, true)
	if err != nil {
		notes.addErr("prefs", "toggle scan failed", err)
	}
	res.report = report

	// The accept-all exclusion is load-bearing here: hitting a hidden
	// "accept all" inside the panel would record a full acceptance as a
	// rejection.
	confirm := clickByIntent(p, rules, classify.IntentConfirmPrefs, defaultMaxScan)
	if !confirm.clicked() {
		confirm = clickMatching(p, defaultMaxScan, rules.MatchLooseConfirm)
		if !confirm.clicked() {
			res.clicks = 1
			res.details = "confirm_not_found"
			return res
		}
	}

	// Open the post-reject window immediately; every request from here on is
	// attributable to the page's behavior after the opt-out.
	res.window = p.OpenRequestWindow()

	res.ok = true
	res.clicks = 1 + report.SwitchedOff + 1
	res.details = fmt.Sprintf("manage+%dtoggles+confirm", report.SwitchedOff)
	return res
}
