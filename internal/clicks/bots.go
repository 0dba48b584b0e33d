package clicks

import (
	"regexp"
	"strings"
)

// Bot traffic is rejected before a click is recorded. The Shopify crawler is
// allowed through because it follows referral links while rendering previews
// and blocking it would break link verification in the merchant admin.
var botPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bbot\b`),
	regexp.MustCompile(`(?i)crawler`),
	regexp.MustCompile(`(?i)spider`),
	regexp.MustCompile(`(?i)slurp`),
	regexp.MustCompile(`(?i)curl/`),
	regexp.MustCompile(`(?i)wget/`),
	regexp.MustCompile(`(?i)python-requests`),
	regexp.MustCompile(`(?i)go-http-client`),
	regexp.MustCompile(`(?i)headless`),
	regexp.MustCompile(`(?i)facebookexternalhit`),
	regexp.MustCompile(`(?i)preview`),
}

const platformCrawlerMarker = "shopify"

// IsBot reports whether the user agent looks like automated traffic.
func IsBot(userAgent string) bool {
	ua := strings.TrimSpace(userAgent)
	if ua == "" {
		return true
	}
	if strings.Contains(strings.ToLower(ua), platformCrawlerMarker) {
		return false
	}
	for _, pattern := range botPatterns {
		if pattern.MatchString(ua) {
			return true
		}
	}
	return false
}
