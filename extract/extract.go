// Package extract parses free-text chat messages into normalized stream
// candidates. Extraction is pure: the same message always yields the same
// candidates, and nothing here touches the network or any store.
//
// Location parsing is message-wide, not per-URL: the last "City, ST" pattern
// found in the message is attached to every candidate extracted from it. A
// message carrying two streams and two cities therefore tags both streams
// with the second city. This mirrors how field reports are actually written
// ("moving to Portland, OR: <url>") and is kept as documented behavior.
package extract

import (
	"regexp"
	"strings"
	"time"
)

// Platform identifies the streaming service a URL belongs to.
type Platform string

const (
	PlatformTwitch   Platform = "twitch"
	PlatformYouTube  Platform = "youtube"
	PlatformTikTok   Platform = "tiktok"
	PlatformKick     Platform = "kick"
	PlatformFacebook Platform = "facebook"
	PlatformUnknown  Platform = "unknown"
)

// Candidate is a single stream sighting pulled out of a message. It is
// transient: the sync pipeline consumes it and discards it.
type Candidate struct {
	URL          string
	Platform     Platform
	City         string
	State        string
	ReportedBy   string
	DiscoveredAt time.Time
}

var (
	urlPattern = regexp.MustCompile(`https?://[^\s<>"]+`)

	// Capitalized word(s) followed by a two-letter state/province code.
	// Example: "Seattle, WA" or "New York City, NY".
	locationPattern = regexp.MustCompile(`([A-Z][a-zA-Z.'-]*(?: [A-Z][a-zA-Z.'-]*)*),\s*([A-Z]{2})\b`)
)

// platformDomains maps known stream host substrings to a platform. Order
// matters: the first matching domain wins. Domains listed with
// PlatformUnknown are tracked (we admit the stream) but carry no classifier.
var platformDomains = []struct {
	domain   string
	platform Platform
}{
	{"twitch.tv", PlatformTwitch},
	{"youtube.com", PlatformYouTube},
	{"youtu.be", PlatformYouTube},
	{"tiktok.com", PlatformTikTok},
	{"kick.com", PlatformKick},
	{"facebook.com", PlatformFacebook},
	{"fb.watch", PlatformFacebook},
	{"instagram.com", PlatformUnknown},
	{"dlive.tv", PlatformUnknown},
}

// Candidates scans a raw message and returns every stream URL hosted on a
// known platform, in order of appearance. URLs on unrecognized domains are
// skipped entirely rather than classified as unknown.
func Candidates(message, reportedBy string, at time.Time) []Candidate {
	matches := urlPattern.FindAllString(message, -1)
	if len(matches) == 0 {
		return nil
	}
	city, state := Location(message)

	var out []Candidate
	seen := make(map[string]struct{})
	for _, raw := range matches {
		url := CanonicalURL(raw)
		if url == "" {
			continue
		}
		platform, ok := classify(url)
		if !ok {
			continue
		}
		// The same URL pasted twice in one message is one sighting.
		if _, dup := seen[url]; dup {
			continue
		}
		seen[url] = struct{}{}
		out = append(out, Candidate{
			URL:          url,
			Platform:     platform,
			City:         city,
			State:        state,
			ReportedBy:   reportedBy,
			DiscoveredAt: at.UTC(),
		})
	}
	return out
}

// CanonicalURL strips trailing punctuation that chat clients glue onto pasted
// links. The result is the natural key used for dedup and cross-backend
// correlation.
func CanonicalURL(raw string) string {
	return strings.TrimRight(raw, `.,!?;:)]}>'"`)
}

// Location returns the city and two-letter state code mentioned in the
// message, or empty strings when no location pattern is present. When a
// message mentions several locations the last one wins.
func Location(message string) (city, state string) {
	matches := locationPattern.FindAllStringSubmatch(message, -1)
	if len(matches) == 0 {
		return "", ""
	}
	last := matches[len(matches)-1]
	return last[1], last[2]
}

// classify maps a canonical URL to its platform by domain substring. The
// second return is false when no known domain matches.
func classify(url string) (Platform, bool) {
	lower := strings.ToLower(url)
	for _, pd := range platformDomains {
		if strings.Contains(lower, pd.domain) {
			return pd.platform, true
		}
	}
	return PlatformUnknown, false
}
