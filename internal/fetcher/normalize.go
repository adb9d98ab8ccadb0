package fetcher

import (
	"net/url"
	"strings"
)

// Page prefixes that point outside the article namespace.
var skippedNamespaces = []string{
	"File:",
	"Category:",
	"Template:",
	"Help:",
	"Special:",
	"Wikipedia:",
}

// NormalizeTarget turns a relative "./Target_title" href into a normalized
// article title: percent-escaping decoded, underscores replaced with spaces.
// It returns false for hrefs that are not plain article links (fragments,
// queries, non-article namespaces).
func NormalizeTarget(href string) (string, bool) {
	target, ok := strings.CutPrefix(href, "./")
	if !ok {
		return "", false
	}
	// Section links and parameterized URLs point at a location inside or
	// beyond a page, not at the page itself.
	if strings.ContainsAny(target, "#?") {
		return "", false
	}

	decoded, err := url.PathUnescape(target)
	if err != nil {
		// Malformed escaping: keep the raw form, matching what a browser
		// would have followed.
		decoded = target
	}
	for _, ns := range skippedNamespaces {
		if strings.Contains(decoded, ns) {
			return "", false
		}
	}

	decoded = strings.ReplaceAll(decoded, "_", " ")
	if decoded == "" {
		return "", false
	}
	return decoded, true
}
