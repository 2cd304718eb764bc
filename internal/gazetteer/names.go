package gazetteer

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// NormalizeQuery applies NFKC compatibility normalization and trims
// surrounding whitespace, so full-width input matches half-width data.
func NormalizeQuery(s string) string {
	return strings.TrimSpace(norm.NFKC.String(s))
}

// hasJapanese reports whether s contains kana (U+3040..U+30FF) or CJK
// ideographs (U+3400..U+9FFF).
func hasJapanese(s string) bool {
	for _, r := range s {
		if (r >= 0x3040 && r <= 0x30FF) || (r >= 0x3400 && r <= 0x9FFF) {
			return true
		}
	}
	return false
}

// PickBestLocalName chooses a Japanese display name for a row.
//
// With no alternates the primary name wins. When the query itself is Japanese,
// the first Japanese alternate containing the query is preferred. Otherwise the
// first Japanese alternate is used, falling back to the primary name.
func PickBestLocalName(name, alternates, query string) string {
	if alternates == "" {
		return name
	}
	alts := strings.Split(alternates, ",")
	if hasJapanese(query) {
		for _, alt := range alts {
			if alt != "" && strings.Contains(alt, query) && hasJapanese(alt) {
				return alt
			}
		}
	}
	for _, alt := range alts {
		if alt != "" && hasJapanese(alt) {
			return alt
		}
	}
	return name
}
