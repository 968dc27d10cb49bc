package ingest

import (
	"net/url"
	"regexp"
	"strings"
)

var (
	urlPattern     = regexp.MustCompile(`https?://[^\s<>"']+`)
	hashtagPattern = regexp.MustCompile(`#(\w+)`)
	mentionPattern = regexp.MustCompile(`@(\w+)`)
)

// ExtractDomains returns the lowercased registrable hosts of every URL in
// the text, with a leading www. stripped, deduplicated, in order of first
// appearance.
func ExtractDomains(text string) []string {
	matches := urlPattern.FindAllString(text, -1)
	if len(matches) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(matches))
	var out []string
	for _, m := range matches {
		u, err := url.Parse(strings.TrimRight(m, ".,;:!?)"))
		if err != nil || u.Hostname() == "" {
			continue
		}
		host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
		if _, dup := seen[host]; dup {
			continue
		}
		seen[host] = struct{}{}
		out = append(out, host)
	}
	return out
}

// ExtractHashtags returns lowercased hashtag bodies, deduplicated, in order
// of first appearance.
func ExtractHashtags(text string) []string {
	return extractTagged(hashtagPattern, text)
}

// ExtractMentions returns lowercased mention handles, deduplicated, in
// order of first appearance.
func ExtractMentions(text string) []string {
	return extractTagged(mentionPattern, text)
}

func extractTagged(re *regexp.Regexp, text string) []string {
	matches := re.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(matches))
	var out []string
	for _, m := range matches {
		tag := strings.ToLower(m[1])
		if _, dup := seen[tag]; dup {
			continue
		}
		seen[tag] = struct{}{}
		out = append(out, tag)
	}
	return out
}
