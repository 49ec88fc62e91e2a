// Package textnorm holds the text normalization shared by the topic mapper
// and the political-group normalizer. Verbatim HTML mixes NBSP, zero-width
// separators, and half a dozen dash variants; everything that compares text
// goes through here first.
package textnorm

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var stripMarks = transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)))

// foldSpace maps NBSP and zero-width separators to a plain space.
func foldSpace(r rune) rune {
	switch r {
	case '\u00a0', '\u2007', '\u202f', '\u200b', '\u200c', '\u200d', '\ufeff':
		return ' '
	}
	if unicode.IsSpace(r) {
		return ' '
	}
	return r
}

// foldDash maps all dash variants (U+2010..U+2015, U+2212) to ASCII hyphen.
func foldDash(r rune) rune {
	if r >= '‐' && r <= '―' {
		return '-'
	}
	if r == '−' {
		return '-'
	}
	return r
}

// foldQuote maps curly quotes to their ASCII forms.
func foldQuote(r rune) rune {
	switch r {
	case '‘', '’', '‚', 'ʼ':
		return '\''
	case '“', '”', '„':
		return '"'
	}
	return r
}

// ForMatching normalizes text for alignment: NFKD with combining marks
// stripped, lowercased, every non-alphanumeric rune replaced by a space,
// whitespace collapsed.
func ForMatching(s string) string {
	folded, _, err := transform.String(stripMarks, s)
	if err != nil {
		folded = s
	}
	folded = strings.Map(foldDash, folded)
	folded = strings.ToLower(folded)

	var b strings.Builder
	b.Grow(len(folded))
	for _, r := range folded {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		} else {
			b.WriteRune(' ')
		}
	}
	return CollapseSpaces(b.String())
}

// ForRules normalizes raw affiliation text for the rule pipeline: NFKC,
// space/dash/quote folding, whitespace collapsed. Case is preserved so that
// canonical codes like "S&D" survive intact.
func ForRules(s string) string {
	folded, _, err := transform.String(norm.NFKC, s)
	if err != nil {
		folded = s
	}
	folded = strings.Map(foldSpace, folded)
	folded = strings.Map(foldDash, folded)
	folded = strings.Map(foldQuote, folded)
	return CollapseSpaces(folded)
}

// CollapseSpaces trims and collapses runs of whitespace to single spaces.
func CollapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// Tokens returns the distinct tokens of normalized text longer than min runes.
func Tokens(normalized string, min int) map[string]struct{} {
	out := make(map[string]struct{})
	for _, tok := range strings.Fields(normalized) {
		if len([]rune(tok)) > min {
			out[tok] = struct{}{}
		}
	}
	return out
}
