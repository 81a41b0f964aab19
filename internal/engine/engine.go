package engine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/consent-probe/internal/browser"
	"github.com/xkilldash9x/consent-probe/internal/candidate"
	"github.com/xkilldash9x/consent-probe/internal/classify"
	"github.com/xkilldash9x/consent-probe/internal/observation"
	"github.com/xkilldash9x/consent-probe/internal/provenance"
)

// networkWindowSettle is how long each request-observation window stays open
// before its third-party count is taken.
const networkWindowSettle = 2500 * time.Millisecond

// Trial is the unit of work: one (domain, device, run) measurement.
type Trial struct {
	Candidate candidate.Row
	Device    browser.Device
	RunID     int
}

// Key is the trial's idempotency key, matching the resume-scan format.
func (t Trial) Key() string {
	return fmt.Sprintf("%s|%s|%d", t.Candidate.Domain, t.Device.Kind, t.RunID)
}

// Config carries the engine's timing and environment knobs.
type Config struct {
	NavTimeout  time.Duration
	Settle      time.Duration
	Locale      string
	GeoCountry  string
	EvidenceDir string
}

// OpenSession creates an isolated driver session for one trial.
type OpenSession func(ctx context.Context, device browser.Device, locale string) (browser.Page, error)

// Engine runs the per-trial consent measurement protocol. It owns exactly one
// session per Run call and releases it on every exit path.
type Engine struct {
	cfg    Config
	rules  *classify.RuleSet
	open   OpenSession
	logger *zap.Logger
}

// New creates an Engine.
func New(cfg Config, rules *classify.RuleSet, open OpenSession, logger *zap.Logger) *Engine {
	return &Engine{cfg: cfg, rules: rules, open: open, logger: logger.Named("engine")}
}

// BaseObservation prefills the identity and default fields for a trial. The
// orchestrator uses it too, for script-error fallback rows, so failed trials
// carry the same identity columns as measured ones.
func BaseObservation(t Trial, locale, geo string) *observation.Observation {
	return &observation.Observation{
		Domain:      t.Candidate.Domain,
		Stratum:     t.Candidate.Stratum,
		Source:      t.Candidate.Source,
		SourceRank:  t.Candidate.SourceRank,
		RunID:       t.RunID,
		Device:      t.Device.Kind,
		Viewport:    t.Device.ViewportLabel(),
		Locale:      locale,
		GeoCountry:  geo,
		DatetimeUTC: time.Now().UTC().Format(time.RFC3339),

		Status:    observation.StatusOK,
		CMPVendor: classify.UnknownVendor,

		BannerPresent:       observation.Of(0),
		AcceptAllFirstLayer: observation.Of(0),
		RejectAllFirstLayer: observation.Of(0),
		ManageFirstLayer:    observation.Of(0),
		CloseButtonPresent:  observation.Of(0),

		HasToggleAnalytics: observation.Of(0),
		HasToggleAds:       observation.Of(0),
		DefaultOnAnalytics: observation.Of(0),
		DefaultOnAds:       observation.Of(0),

		ThirdPartyBeforeConsent: observation.Of(0),
	}
}

// Run executes the full per-trial protocol and always returns an Observation;
// failures inside probes are absorbed into notes and safe defaults.
func (e *Engine) Run(ctx context.Context, t Trial) *observation.Observation {
	obs := BaseObservation(t, e.cfg.Locale, e.cfg.GeoCountry)
	notes := &noteLog{}
	defer func() { obs.Notes = notes.String() }()

	evidenceDir := filepath.Join(e.cfg.EvidenceDir, candidate.SafeSlug(obs.Domain), t.Device.Kind)
	if err := os.MkdirAll(evidenceDir, 0o755); err != nil {
		notes.addErr("evidence", "create dir failed", err)
	}

	page, err := e.open(ctx, t.Device, e.cfg.Locale)
	if err != nil {
		obs.Status = observation.StatusError
		obs.BlockedReason = truncate(err.Error(), 200)
		return obs
	}
	defer func() {
		if err := page.Close(); err != nil {
			e.logger.Warn("session close failed", zap.String("domain", obs.Domain), zap.Error(err))
		}
	}()

	if !e.navigate(page, t, obs, notes, evidenceDir) {
		return obs
	}

	if detectChallenge(page) {
		e.logger.Info("anti-bot challenge detected, waiting",
			zap.String("domain", obs.Domain), zap.Duration("max_wait", antiBotWait))
		if err := page.WaitChallengeCleared(antiBotWait); err != nil {
			notes.add("antibot", "challenge not cleared: %s", truncate(err.Error(), 120))
		}
		obs.Status = observation.StatusBlockedByAntiBot
		obs.BlockedReason = "cloudflare_turnstile"
		return obs
	}

	// Baseline provenance window: what loads before any consent action.
	pre := page.OpenRequestWindow()
	page.WaitSettle(networkWindowSettle)
	page.CloseRequestWindow()
	siteHost := provenance.Host(page.URL())
	obs.ThirdPartyBeforeConsent = observation.Of(pre.ThirdPartyCount(siteHost))

	e.scanPage(page, obs, notes, evidenceDir, t.RunID)

	acceptRes := findByIntent(page, e.rules, classify.IntentAcceptAll, defaultMaxScan)
	rejectRes := findByIntent(page, e.rules, classify.IntentRejectAll, defaultMaxScan)
	manageRes := findByIntent(page, e.rules, classify.IntentManage, defaultMaxScan)
	closeRes := findByIntent(page, e.rules, classify.IntentClose, defaultMaxScan)
	for _, r := range []probeResult{acceptRes, rejectRes, manageRes, closeRes} {
		if r.outcome == probeError {
			notes.add("probe", "first-layer scan failed: %s", r.reason)
		}
	}
	obs.AcceptAllFirstLayer = observation.OfBool(acceptRes.found())
	obs.RejectAllFirstLayer = observation.OfBool(rejectRes.found())
	obs.ManageFirstLayer = observation.OfBool(manageRes.found())
	obs.CloseButtonPresent = observation.OfBool(closeRes.found())

	if acceptRes.found() {
		obs.ClicksAcceptAll = observation.Of(1)
	}

	// Rejection click-depth, in priority order: direct first-layer reject,
	// opt-out through preferences, or an at-least-2 estimate.
	rejectExecuted := false
	manageOpened := false
	prefsRan := false
	var post *provenance.Window

	if rejectRes.found() {
		obs.ClicksRejectAll = observation.Of(1)
	} else if manageRes.found() {
		pr := rejectViaPreferences(page, e.rules, notes, evidenceDir, t.RunID)
		prefsRan = true
		manageOpened = pr.manageOpened
		if pr.manageShot != "" {
			obs.ScreenshotManage = pr.manageShot
		}
		if pr.manageOpened {
			applyToggleReport(obs, pr.report)
		}
		if pr.ok {
			obs.ClicksRejectAll = observation.Of(pr.clicks)
			obs.StepsRejectDescription = "preferences_optout:" + pr.details
			rejectExecuted = true
			post = pr.window
		} else {
			obs.ClicksRejectAll = observation.Of(2)
			obs.StepsRejectDescription = "preferences_failed:" + pr.details
		}
	}

	// Open the manage panel for evidence and a toggle scan when the
	// preferences flow did not already do so.
	if manageRes.found() && !prefsRan {
		mo := clickByIntent(page, e.rules, classify.IntentManage, defaultMaxScan)
		if mo.clicked() {
			manageOpened = true
			page.WaitSettle(panelSettle)

			shot := filepath.Join(evidenceDir, fmt.Sprintf("run%d_manage.png", t.RunID))
			if err := page.Screenshot(shot); err != nil {
				notes.addErr("manage", "screenshot failed", err)
			} else {
				obs.ScreenshotManage = shot
			}

			report, err := scanToggles(page, false)
			if err != nil {
				notes.addErr("manage", "toggle scan failed", err)
			} else {
				applyToggleReport(obs, report)
			}
		} else {
			notes.add("manage", "open failed")
		}
	}

	// Dark patterns derivable from first-layer shape and click depth.
	if acceptRes.found() && !rejectRes.found() {
		obs.DP1 = observation.Of(1)
	}
	if obs.ClicksAcceptAll.Set && obs.ClicksRejectAll.Set {
		delta := obs.ClicksRejectAll.Val - obs.ClicksAcceptAll.Val
		obs.DeltaClicks = observation.Of(delta)
		obs.DP2 = observation.OfBool(delta >= 1)
	}

	// Execute the actual rejection if the preferences flow did not already,
	// then measure whether tracking persists.
	if !rejectExecuted {
		if rejectRes.found() {
			if r := clickByIntent(page, e.rules, classify.IntentRejectAll, defaultMaxScan); r.clicked() {
				rejectExecuted = true
			}
		} else if manageOpened {
			inner := findByIntent(page, e.rules, classify.IntentRejectAll, defaultMaxScan)
			if inner.found() {
				if r := clickByIntent(page, e.rules, classify.IntentRejectAll, defaultMaxScan); r.clicked() {
					rejectExecuted = true
				}
			} else {
				obs.StepsRejectDescription += " | no reject-all found (manual coding needed)"
			}
		}
		if rejectExecuted {
			post = page.OpenRequestWindow()
		}
	}

	if rejectExecuted {
		obs.HasRejectAllAnywhere = observation.Of(1)
		page.WaitSettle(networkWindowSettle)
		page.CloseRequestWindow()
		n := post.ThirdPartyCount(siteHost)
		obs.ThirdPartyAfterReject = observation.Of(n)
		obs.TrackingAfterRejectFlag = observation.OfBool(n > 0)
		obs.DP7 = obs.TrackingAfterRejectFlag
	} else if !rejectRes.found() && !manageOpened {
		// Definitively no rejection path anywhere we could see.
		obs.HasRejectAllAnywhere = observation.Of(0)
	}

	return obs
}

// navigate tries https then http (or the literal candidate value when it
// already carries a scheme), settling and clearing interstitials after the
// first success. Returns false when every attempt failed; obs is then a
// terminal error row.
func (e *Engine) navigate(page browser.Page, t Trial, obs *observation.Observation, notes *noteLog, evidenceDir string) bool {
	var tryURLs []string
	if strings.HasPrefix(t.Candidate.Raw, "http") {
		tryURLs = []string{t.Candidate.Raw}
	} else {
		tryURLs = []string{"https://" + t.Candidate.Domain, "http://" + t.Candidate.Domain}
	}

	lastErr := ""
	for _, u := range tryURLs {
		if err := page.Navigate(u, e.cfg.NavTimeout); err != nil {
			lastErr = truncate(err.Error(), 200)
			continue
		}
		page.WaitSettle(e.cfg.Settle)
		resolveInterstitials(page, e.rules, notes, evidenceDir, t.RunID)
		obs.FinalURL = page.URL()
		return true
	}

	obs.Status = observation.StatusError
	if lastErr == "" {
		lastErr = "navigation failed"
	}
	obs.BlockedReason = lastErr
	return false
}

// scanPage runs the passive scans: language, CMP vendor, banner-presence
// heuristic, banner screenshot.
func (e *Engine) scanPage(page browser.Page, obs *observation.Observation, notes *noteLog, evidenceDir string, runID int) {
	if lang, err := page.DocumentLang(); err == nil {
		obs.LanguageDetected = lang
	}

	if srcs, err := page.ScriptSources(); err == nil {
		obs.CMPVendor = classify.CMPVendor(srcs)
	}

	if body, err := page.BodyText(); err == nil {
		obs.BannerPresent = observation.OfBool(classify.BannerTextPresent(body))
	}

	shot := filepath.Join(evidenceDir, fmt.Sprintf("run%d_banner.png", runID))
	if err := page.Screenshot(shot); err != nil {
		notes.addErr("banner", "screenshot failed", err)
	} else {
		obs.ScreenshotBanner = shot
	}
}

func applyToggleReport(obs *observation.Observation, report toggleReport) {
	obs.HasToggleAnalytics = observation.OfBool(report.HasAnalytics)
	obs.HasToggleAds = observation.OfBool(report.HasAds)
	obs.DefaultOnAnalytics = observation.OfBool(report.DefaultOnAnalytics)
	obs.DefaultOnAds = observation.OfBool(report.DefaultOnAds)
	obs.DP3 = observation.OfBool(report.anyDefaultOn())
}
