package engine

import (
	"time"

	"github.com/xkilldash9x/consent-probe/internal/browser"
	"github.com/xkilldash9x/consent-probe/internal/classify"
)

// Trials behind an anti-bot challenge do not produce reliable measurements.
// They get a bounded chance to clear (headful operators can solve manually),
// then are flagged terminal rather than recorded with zeroed fields.
const antiBotWait = 2 * time.Minute

// detectChallenge reports whether the page is showing a known anti-bot
// challenge, by iframe signature or by challenge wording in the body text.
func detectChallenge(p browser.Page) bool {
	if present, err := p.HasChallengeFrame(); err == nil && present {
		return true
	}
	body, err := p.BodyText()
	if err != nil {
		return false
	}
	return classify.ChallengeTextPresent(body)
}
