// Package classify maps free-form consent-banner UI text onto a small closed
// set of semantic intents using bilingual (Thai + English) keyword patterns.
// It is a pure text classifier: no DOM access, so the keyword sets can be
// extended or localized without touching any interaction logic.
package classify

import "regexp"

// Intent identifies the semantic role of an interactive element on a consent
// surface. The set is closed; probing code switches on it exhaustively.
type Intent int

const (
	IntentAcceptAll Intent = iota
	IntentRejectAll
	IntentManage
	IntentClose
	IntentConfirmPrefs
	IntentEnterSite
)

func (i Intent) String() string {
	switch i {
	case IntentAcceptAll:
		return "accept_all"
	case IntentRejectAll:
		return "reject_all"
	case IntentManage:
		return "manage"
	case IntentClose:
		return "close"
	case IntentConfirmPrefs:
		return "confirm_prefs"
	case IntentEnterSite:
		return "enter_site"
	}
	return "unknown"
}

// ToggleCategory classifies granular consent toggles found in a preferences
// panel. A single control may match more than one category.
type ToggleCategory int

const (
	ToggleAnalytics ToggleCategory = iota
	ToggleAds
)

var (
	acceptRe = regexp.MustCompile(`(?i)(accept all|allow all|agree|i accept|ok|yes|ยอมรับทั้งหมด|ยอมรับ|ตกลง|อนุญาตทั้งหมด|ยินยอม)`)
	rejectRe = regexp.MustCompile(`(?i)(reject all|decline all|deny all|do not accept|no thanks|ปฏิเสธทั้งหมด|ปฏิเสธ|ไม่ยอมรับ|ไม่อนุญาต|ไม่ยินยอม)`)
	manageRe = regexp.MustCompile(`(?i)(manage|settings|preferences|options|customize|more info|ตั้งค่า|จัดการ|ตัวเลือก|การตั้งค่า|ปรับแต่ง|รายละเอียดเพิ่มเติม)`)
	closeRe  = regexp.MustCompile(`(?i)(\bclose\b|dismiss|x|ปิด|ไม่ตอนนี้|ภายหลัง)`)

	enterSiteRe = regexp.MustCompile(`(?i)(เข้าเว็บไซต์|เข้าสู่เว็บไซต์|ไปยังเว็บไซต์|เข้าหน้าเว็บไซต์|ไปยังหน้าเว็บไซต์|เริ่มใช้งาน|ดำเนินการต่อ|ต่อไป|ยืนยันและไปต่อ|Enter (the )?site|Continue( to)?( site)?|Proceed|Go to site|I understand|Agree and continue)`)

	confirmPrefsRe = regexp.MustCompile(`(?i)(ยืนยันตัวเลือกของฉัน|ยืนยันตัวเลือก|บันทึก(การตั้งค่า)?|บันทึกและปิด|ตกลง|ยืนยัน|Save( settings)?|Confirm( choices)?|Accept selected|Allow selected)`)

	// looseConfirmRe is the fallback applied when the primary confirm pattern
	// finds nothing inside a preferences panel.
	looseConfirmRe = regexp.MustCompile(`(?i)(ยืนยัน|บันทึก|ตกลง|confirm|save)`)

	// acceptAllExclusionRe guards the confirm-preferences search: a hidden
	// "accept all" control inside the panel must never be mistaken for a
	// save/confirm action, or the engine would silently record a full
	// acceptance as a rejection.
	acceptAllExclusionRe = regexp.MustCompile(`(?i)(ยอมรับทั้งหมด|accept all|allow all|agree|ตกลง|ok)`)

	// enterSiteExclusionRe guards the enter-site search: nothing worded around
	// cookies, and nothing that doubles as an accept-all, counts as a plain
	// site-entry gate.
	enterSiteExclusionRe = regexp.MustCompile(`(?i)(cookie|cookies|คุกกี้|ยอมรับทั้งหมด|accept all|allow all)`)

	bannerKeywordsRe = regexp.MustCompile(`(?i)(cookie|cookies|consent|privacy|tracking|คุกกี้|ความเป็นส่วนตัว|ความยินยอม|ติดตาม|โฆษณา)`)

	toggleAnalyticsRe = regexp.MustCompile(`(?i)(analytics|statistics|measurement|performance|วิเคราะห์|สถิติ|ประสิทธิภาพ)`)
	toggleAdsRe       = regexp.MustCompile(`(?i)(ads|advertis|marketing|target|personaliz|remarket|การตลาด|โฆษณา|กำหนดเป้าหมาย|ปรับแต่ง)`)

	challengeTextRe = regexp.MustCompile(`(?i)(cloudflare|verify you are human|ตรวจสอบว่าคุณเป็นมนุษย์)`)
)

// RuleSet holds the inclusion and exclusion patterns per intent. The zero
// value is unusable; construct via DefaultRules.
type RuleSet struct {
	patterns   map[Intent]*regexp.Regexp
	exclusions map[Intent]*regexp.Regexp
}

// DefaultRules returns the bilingual rule set used by the crawler.
func DefaultRules() *RuleSet {
	return &RuleSet{
		patterns: map[Intent]*regexp.Regexp{
			IntentAcceptAll:    acceptRe,
			IntentRejectAll:    rejectRe,
			IntentManage:       manageRe,
			IntentClose:        closeRe,
			IntentConfirmPrefs: confirmPrefsRe,
			IntentEnterSite:    enterSiteRe,
		},
		exclusions: map[Intent]*regexp.Regexp{
			IntentConfirmPrefs: acceptAllExclusionRe,
			IntentEnterSite:    enterSiteExclusionRe,
		},
	}
}

// Match reports whether text carries the given intent. The exclusion pattern,
// when one exists for the intent, always wins over the inclusion pattern.
func (r *RuleSet) Match(intent Intent, text string) bool {
	re, ok := r.patterns[intent]
	if !ok || !re.MatchString(text) {
		return false
	}
	if ex, ok := r.exclusions[intent]; ok && ex.MatchString(text) {
		return false
	}
	return true
}

// MatchText reports whether the intent's inclusion pattern appears anywhere
// in text, without applying exclusions. Meant for page-body heuristics, where
// surrounding text may legitimately mention cookies.
func (r *RuleSet) MatchText(intent Intent, text string) bool {
	re, ok := r.patterns[intent]
	return ok && re.MatchString(text)
}

// MatchLooseConfirm applies the fallback confirm/save pattern, still under the
// accept-all exclusion.
func (r *RuleSet) MatchLooseConfirm(text string) bool {
	return looseConfirmRe.MatchString(text) && !acceptAllExclusionRe.MatchString(text)
}

// MatchToggle reports whether a toggle label belongs to the given category.
func MatchToggle(cat ToggleCategory, label string) bool {
	switch cat {
	case ToggleAnalytics:
		return toggleAnalyticsRe.MatchString(label)
	case ToggleAds:
		return toggleAdsRe.MatchString(label)
	}
	return false
}

// BannerTextPresent is the banner-presence heuristic: cookie/consent wording
// anywhere in the visible page text.
func BannerTextPresent(bodyText string) bool {
	return bannerKeywordsRe.MatchString(bodyText)
}

// ChallengeTextPresent reports whether the page text looks like an anti-bot
// challenge interstitial rather than real site content.
func ChallengeTextPresent(bodyText string) bool {
	return challengeTextRe.MatchString(bodyText)
}
