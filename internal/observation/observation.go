// Package observation defines the per-trial measurement record and its
// append-only CSV persistence.
package observation

import "strconv"

// Trial statuses.
const (
	StatusOK               = "ok"
	StatusBlockedByAntiBot = "blocked_by_antibot"
	StatusError            = "error"
	StatusScriptError      = "script_error"
)

// OptInt is an integer column that may be absent. Absent values serialize as
// an empty field, which downstream analysis treats as "not measured" rather
// than zero.
type OptInt struct {
	Val int
	Set bool
}

// Of returns a present OptInt.
func Of(v int) OptInt {
	return OptInt{Val: v, Set: true}
}

// OfBool maps true/false to 1/0.
func OfBool(b bool) OptInt {
	if b {
		return Of(1)
	}
	return Of(0)
}

func (o OptInt) String() string {
	if !o.Set {
		return ""
	}
	return strconv.Itoa(o.Val)
}

// Observation is one output row: everything measured during a single
// (domain, device, run) trial. Field order in Fields matches Header exactly.
type Observation struct {
	Domain     string
	Stratum    string
	Source     string
	SourceRank string
	RunID      int
	Device     string
	Viewport   string
	Locale     string
	GeoCountry string
	DatetimeUTC string

	FinalURL      string
	Status        string
	BlockedReason string

	BannerPresent    OptInt
	BannerType       string
	CMPVendor        string
	LanguageDetected string

	AcceptAllFirstLayer OptInt
	RejectAllFirstLayer OptInt
	ManageFirstLayer    OptInt
	CloseButtonPresent  OptInt

	ClicksAcceptAll        OptInt
	ClicksRejectAll        OptInt
	DeltaClicks            OptInt
	StepsRejectDescription string

	HasToggleAnalytics   OptInt
	HasToggleAds         OptInt
	DefaultOnAnalytics   OptInt
	DefaultOnAds         OptInt
	HasRejectAllAnywhere OptInt

	ThirdPartyBeforeConsent OptInt
	ThirdPartyAfterReject   OptInt
	TrackingAfterRejectFlag OptInt

	DP1 OptInt
	DP2 OptInt
	DP3 OptInt
	DP4 OptInt
	DP5 OptInt
	DP6 OptInt
	DP7 OptInt
	DP8 OptInt

	ScreenshotBanner string
	ScreenshotManage string
	Notes            string
}

// Header is the fixed output column order. Changing it breaks resume against
// previously written files, so treat it as frozen.
func Header() []string {
	return []string{
		"domain", "stratum", "source", "source_rank", "run_id", "device", "viewport", "locale", "geo_country", "datetime_utc",
		"final_url", "status", "blocked_reason",
		"banner_present", "banner_type", "cms_cmp_vendor", "language_detected",
		"accept_all_first_layer", "reject_all_first_layer", "manage_first_layer", "close_button_present",
		"clicks_accept_all", "clicks_reject_all", "delta_clicks", "steps_reject_description",
		"has_toggle_analytics", "has_toggle_ads", "default_on_analytics", "default_on_ads", "has_reject_all_anywhere",
		"third_party_before_consent", "third_party_after_reject", "tracking_after_reject_flag",
		"dp1_flag", "dp2_flag", "dp3_flag", "dp4_flag", "dp5_flag", "dp6_flag", "dp7_flag", "dp8_flag",
		"screenshot_path_banner", "screenshot_path_manage", "notes",
	}
}

// Fields returns the row values in Header order.
func (o *Observation) Fields() []string {
	return []string{
		o.Domain, o.Stratum, o.Source, o.SourceRank, strconv.Itoa(o.RunID), o.Device, o.Viewport, o.Locale, o.GeoCountry, o.DatetimeUTC,
		o.FinalURL, o.Status, o.BlockedReason,
		o.BannerPresent.String(), o.BannerType, o.CMPVendor, o.LanguageDetected,
		o.AcceptAllFirstLayer.String(), o.RejectAllFirstLayer.String(), o.ManageFirstLayer.String(), o.CloseButtonPresent.String(),
		o.ClicksAcceptAll.String(), o.ClicksRejectAll.String(), o.DeltaClicks.String(), o.StepsRejectDescription,
		o.HasToggleAnalytics.String(), o.HasToggleAds.String(), o.DefaultOnAnalytics.String(), o.DefaultOnAds.String(), o.HasRejectAllAnywhere.String(),
		o.ThirdPartyBeforeConsent.String(), o.ThirdPartyAfterReject.String(), o.TrackingAfterRejectFlag.String(),
		o.DP1.String(), o.DP2.String(), o.DP3.String(), o.DP4.String(), o.DP5.String(), o.DP6.String(), o.DP7.String(), o.DP8.String(),
		o.ScreenshotBanner, o.ScreenshotManage, o.Notes,
	}
}

// Key is the idempotency key used for resume filtering.
func (o *Observation) Key() string {
	return o.Domain + "|" + o.Device + "|" + strconv.Itoa(o.RunID)
}
