package classify

import (
	"regexp"
	"strings"
)

// vendorSignature pairs a consent-management-platform vendor name with the
// pattern its loader scripts match on.
type vendorSignature struct {
	name    string
	pattern *regexp.Regexp
}

// vendorSignatures is ordered: the first match wins. Keep the more specific
// vendors ahead of ones with generic substrings.
var vendorSignatures = []vendorSignature{
	{"OneTrust", regexp.MustCompile(`onetrust|cookielaw`)},
	{"Cookiebot", regexp.MustCompile(`cookiebot`)},
	{"TrustArc", regexp.MustCompile(`trustarc|truste`)},
	{"Didomi", regexp.MustCompile(`didomi`)},
	{"Quantcast", regexp.MustCompile(`quantcast`)},
	{"Osano", regexp.MustCompile(`osano`)},
	{"Sourcepoint", regexp.MustCompile(`sourcepoint`)},
	{"Iubenda", regexp.MustCompile(`iubenda`)},
	{"Complianz", regexp.MustCompile(`complianz`)},
}

// UnknownVendor is returned when no signature matches or the page could not
// be inspected at all.
const UnknownVendor = "unknown"

// CMPVendor matches the page's script source URLs against the known vendor
// signatures and returns the first vendor name that fingerprints, or
// UnknownVendor. It never fails: an empty or nil script list is simply an
// unknown vendor.
func CMPVendor(scriptSrcs []string) string {
	if len(scriptSrcs) == 0 {
		return UnknownVendor
	}
	joined := strings.ToLower(strings.Join(scriptSrcs, "\n"))
	for _, sig := range vendorSignatures {
		if sig.pattern.MatchString(joined) {
			return sig.name
		}
	}
	return UnknownVendor
}
