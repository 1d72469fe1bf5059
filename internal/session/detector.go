package session

import (
	"bytes"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// DefaultMarkers are title fragments of the challenge interstitial.
var DefaultMarkers = []string{"Just a moment", "Attention Required"}

// challengeSelectors match elements that only the interstitial renders.
var challengeSelectors = []string{
	"#challenge-form",
	"#challenge-running",
	"#cf-challenge-running",
	".cf-browser-verification",
	"#cf-please-wait",
}

// Detector recognises the challenge interstitial.
type Detector struct {
	markers []string
}

// NewDetector matches titles against markers, case-insensitively. With no
// markers DefaultMarkers apply.
func NewDetector(markers ...string) Detector {
	if len(markers) == 0 {
		markers = DefaultMarkers
	}
	lowered := make([]string, 0, len(markers))
	for _, m := range markers {
		if m = strings.ToLower(strings.TrimSpace(m)); m != "" {
			lowered = append(lowered, m)
		}
	}
	return Detector{markers: lowered}
}

// IsChallengeTitle reports whether a page title belongs to the interstitial.
func (d Detector) IsChallengeTitle(title string) bool {
	t := strings.ToLower(title)
	for _, m := range d.markers {
		if strings.Contains(t, m) {
			return true
		}
	}
	return false
}

// IsChallengeDocument reports whether an HTML body is the interstitial:
// its title carries a marker or it contains a challenge form. Bodies that
// do not parse are not challenges.
func (d Detector) IsChallengeDocument(body []byte) bool {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return false
	}
	if d.IsChallengeTitle(doc.Find("title").First().Text()) {
		return true
	}
	for _, sel := range challengeSelectors {
		if doc.Find(sel).Length() > 0 {
			return true
		}
	}
	return false
}
