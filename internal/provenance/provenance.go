// Package provenance classifies observed network requests as first- or
// third-party relative to the site under measurement, using public-suffix
// aware registrable-domain comparison.
package provenance

import (
	"net/url"
	"strings"
	"sync"

	"golang.org/x/net/publicsuffix"
)

// Host extracts the lowercase hostname from a raw URL, or "" when it cannot
// be parsed.
func Host(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}

// RootDomain returns the registrable domain (eTLD+1) for a host. Use the
// Public Suffix List rather than counting dots: 'example.co.uk' and
// 'sub.example.com' both resolve correctly. Hosts the PSL cannot place
// (IP literals, single labels) fall back to the host itself.
func RootDomain(host string) string {
	d, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil || d == "" {
		return host
	}
	return d
}

// IsThirdParty reports whether reqHost belongs to a different registrable
// domain than siteHost. Subdomains of the site's own registrable domain are
// first-party. An empty host on either side is never classified third-party.
func IsThirdParty(reqHost, siteHost string) bool {
	if reqHost == "" || siteHost == "" {
		return false
	}
	return RootDomain(reqHost) != RootDomain(siteHost)
}

// Window collects the request URLs seen during one bounded observation
// interval. The engine opens a fresh Window per interval (pre-consent,
// post-reject) so counts are never cumulative across intervals; a closed
// Window silently drops late arrivals.
type Window struct {
	mu     sync.Mutex
	urls   []string
	closed bool
}

// NewWindow returns an open observation window.
func NewWindow() *Window {
	return &Window{}
}

// Record adds a request URL to the window. Safe for concurrent use with the
// driver's event callbacks.
func (w *Window) Record(rawURL string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	w.urls = append(w.urls, rawURL)
}

// Close seals the window against further recording.
func (w *Window) Close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
}

// ThirdPartyRoots returns the distinct third-party registrable domains
// contacted during the window, relative to siteHost. Distinctness is at the
// registrable-domain level: a.tracker.io and b.tracker.io count once.
func (w *Window) ThirdPartyRoots(siteHost string) map[string]struct{} {
	w.mu.Lock()
	urls := make([]string, len(w.urls))
	copy(urls, w.urls)
	w.mu.Unlock()

	roots := make(map[string]struct{})
	for _, u := range urls {
		h := Host(u)
		if h != "" && IsThirdParty(h, siteHost) {
			roots[RootDomain(h)] = struct{}{}
		}
	}
	return roots
}

// ThirdPartyCount is the size of ThirdPartyRoots.
func (w *Window) ThirdPartyCount(siteHost string) int {
	return len(w.ThirdPartyRoots(siteHost))
}
