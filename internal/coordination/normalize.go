package coordination

import (
	"encoding/hex"
	"regexp"
	"strings"

	"golang.org/x/crypto/blake2b"
)

// NormalizePolicy configures text normalization before exact matching.
type NormalizePolicy struct {
	// StripVolatile removes tokens that vary between otherwise identical
	// posts: URL query strings and long digit runs (tracking ids,
	// auto-generated suffixes).
	StripVolatile bool

	// MinLength excludes normalized texts shorter than this.
	MinLength int
}

// DefaultNormalizePolicy returns the default normalization policy.
func DefaultNormalizePolicy() NormalizePolicy {
	return NormalizePolicy{
		StripVolatile: true,
		MinLength:     1,
	}
}

var (
	whitespaceRE = regexp.MustCompile(`\s+`)
	urlQueryRE   = regexp.MustCompile(`(https?://[^\s?]+)\?\S*`)
	digitRunRE   = regexp.MustCompile(`\d{6,}`)
)

// Normalize case-folds, collapses whitespace, and optionally strips volatile
// tokens. Returns "" for texts that normalize away entirely or fall below
// the minimum length; such texts are excluded from clustering.
func (p NormalizePolicy) Normalize(text string) string {
	t := strings.ToLower(strings.TrimSpace(text))
	if p.StripVolatile {
		t = urlQueryRE.ReplaceAllString(t, "$1")
		t = digitRunRE.ReplaceAllString(t, "")
	}
	t = whitespaceRE.ReplaceAllString(t, " ")
	t = strings.TrimSpace(t)
	if len(t) < p.MinLength {
		return ""
	}
	return t
}

// TextHash returns a short stable hash of normalized text, used as the
// cluster's exported text identity. Raw text never appears in exports.
func TextHash(normalized string) string {
	sum := blake2b.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:8])
}
