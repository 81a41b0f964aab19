package classify

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMatchBasicIntents(t *testing.T) {
	rules := DefaultRules()

	testCases := []struct {
		name   string
		intent Intent
		text   string
		want   bool
	}{
		{"accept english", IntentAcceptAll, "Accept all cookies", true},
		{"accept thai", IntentAcceptAll, "ยอมรับทั้งหมด", true},
		{"reject english", IntentRejectAll, "Reject All", true},
		{"reject thai", IntentRejectAll, "ปฏิเสธทั้งหมด", true},
		{"manage english", IntentManage, "Cookie Settings", true},
		{"manage thai", IntentManage, "ตั้งค่าคุกกี้", true},
		{"close", IntentClose, "Dismiss", true},
		{"unrelated text", IntentAcceptAll, "Read our blog", false},
		{"reject is not accept", IntentAcceptAll, "Decline all", false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, rules.Match(tc.intent, tc.text))
		})
	}
}

// A settings panel frequently hides a full-acceptance button near the save
// button. Picking it while looking for "confirm my choices" would record a
// consent action that never happened, so the exclusion must win.
func TestConfirmPrefsExcludesAcceptAll(t *testing.T) {
	rules := DefaultRules()

	assert.True(t, rules.Match(IntentConfirmPrefs, "Confirm choices"))
	assert.True(t, rules.Match(IntentConfirmPrefs, "ยืนยันตัวเลือกของฉัน"))
	assert.True(t, rules.Match(IntentConfirmPrefs, "Save settings"))

	assert.False(t, rules.Match(IntentConfirmPrefs, "Accept all"))
	assert.False(t, rules.Match(IntentConfirmPrefs, "ยอมรับทั้งหมด"))
	// "ตกลง" alone is ambiguous between OK/confirm and acceptance; the
	// exclusion deliberately rejects it.
	assert.False(t, rules.Match(IntentConfirmPrefs, "ตกลง"))
}

func TestEnterSiteExclusions(t *testing.T) {
	rules := DefaultRules()

	assert.True(t, rules.Match(IntentEnterSite, "Enter site"))
	assert.True(t, rules.Match(IntentEnterSite, "เข้าสู่เว็บไซต์"))
	assert.True(t, rules.Match(IntentEnterSite, "Agree and continue"))

	// A cookie-worded button is a consent action, not a site-entry gate.
	assert.False(t, rules.Match(IntentEnterSite, "Continue and accept cookies"))
	assert.False(t, rules.Match(IntentEnterSite, "ยอมรับคุกกี้และดำเนินการต่อ"))
	// Combined accept-all wording must not be clicked as an entry gate.
	assert.False(t, rules.Match(IntentEnterSite, "Accept all & enter site"))
}

func TestMatchLooseConfirm(t *testing.T) {
	rules := DefaultRules()

	assert.True(t, rules.MatchLooseConfirm("Save"))
	assert.True(t, rules.MatchLooseConfirm("ยืนยัน"))
	assert.False(t, rules.MatchLooseConfirm("Accept all and save"))
	assert.False(t, rules.MatchLooseConfirm("Learn more"))
}

func TestMatchToggle(t *testing.T) {
	assert.True(t, MatchToggle(ToggleAnalytics, "analytics cookies"))
	assert.True(t, MatchToggle(ToggleAnalytics, "คุกกี้เพื่อการวิเคราะห์"))
	assert.True(t, MatchToggle(ToggleAds, "targeted advertising"))
	assert.True(t, MatchToggle(ToggleAds, "คุกกี้การตลาด"))
	assert.False(t, MatchToggle(ToggleAnalytics, "strictly necessary"))

	// A single label may belong to both categories.
	label := "performance and marketing"
	assert.True(t, MatchToggle(ToggleAnalytics, label))
	assert.True(t, MatchToggle(ToggleAds, label))
}

func TestBannerTextPresent(t *testing.T) {
	assert.True(t, BannerTextPresent("We use cookies to improve your experience"))
	assert.True(t, BannerTextPresent("เว็บไซต์นี้ใช้คุกกี้"))
	assert.False(t, BannerTextPresent("Welcome to our homepage"))
}

func TestChallengeTextPresent(t *testing.T) {
	assert.True(t, ChallengeTextPresent("Checking your browser - Cloudflare"))
	assert.True(t, ChallengeTextPresent("Verify you are human"))
	assert.False(t, ChallengeTextPresent("Latest news headlines"))
}

func TestCMPVendor(t *testing.T) {
	testCases := []struct {
		name    string
		scripts []string
		want    string
	}{
		{"onetrust", []string{"https://cdn.cookielaw.org/scripttemplates/otSDKStub.js"}, "OneTrust"},
		{"cookiebot", []string{"https://consent.cookiebot.com/uc.js"}, "Cookiebot"},
		{"didomi", []string{"https://sdk.privacy-center.org/didomi/loader.js"}, "Didomi"},
		{"ordered first match wins", []string{"https://x.onetrust.com/a.js", "https://consent.cookiebot.com/uc.js"}, "OneTrust"},
		{"case insensitive via lowering", []string{"https://CDN.COOKIELAW.ORG/sdk.js"}, "OneTrust"},
		{"no match", []string{"https://example.com/app.js"}, UnknownVendor},
		{"empty", nil, UnknownVendor},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, CMPVendor(tc.scripts))
		})
	}
}
