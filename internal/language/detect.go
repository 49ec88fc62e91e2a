// Package language assigns one of the 24 EU language codes to speech text.
// It layers a script short-circuit, a statistical detector with chunked
// majority voting, and a trigram fallback; when nothing is confident the
// result is nil, never a silent default.
package language

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/abadojack/whatlanggo"
	"github.com/pemistahl/lingua-go"
)

// EUCodes is the set of valid two-letter uppercase results.
var EUCodes = map[string]struct{}{
	"BG": {}, "CS": {}, "DA": {}, "DE": {}, "EL": {}, "EN": {}, "ES": {}, "ET": {},
	"FI": {}, "FR": {}, "GA": {}, "HR": {}, "HU": {}, "IT": {}, "LT": {}, "LV": {},
	"MT": {}, "NL": {}, "PL": {}, "PT": {}, "RO": {}, "SK": {}, "SL": {}, "SV": {},
}

// euLanguages is every EU language lingua models. Maltese is missing from
// the library, so MT text stays NULL rather than being misattributed.
var euLanguages = []lingua.Language{
	lingua.Bulgarian, lingua.Czech, lingua.Danish, lingua.German, lingua.Greek,
	lingua.English, lingua.Spanish, lingua.Estonian, lingua.Finnish, lingua.French,
	lingua.Irish, lingua.Croatian, lingua.Hungarian, lingua.Italian, lingua.Lithuanian,
	lingua.Latvian, lingua.Dutch, lingua.Polish, lingua.Portuguese, lingua.Romanian,
	lingua.Slovak, lingua.Slovene, lingua.Swedish,
}

// fallbackWhitelist restricts the trigram detector to the EU languages it
// models. whatlang has no Maltese or Irish; Irish can only come from the
// primary detector, Maltese from neither.
var fallbackWhitelist = map[whatlanggo.Lang]bool{
	whatlanggo.Bul: true, whatlanggo.Ces: true, whatlanggo.Dan: true,
	whatlanggo.Deu: true, whatlanggo.Ell: true, whatlanggo.Eng: true,
	whatlanggo.Spa: true, whatlanggo.Est: true, whatlanggo.Fin: true,
	whatlanggo.Fra: true, whatlanggo.Hrv: true, whatlanggo.Hun: true,
	whatlanggo.Ita: true, whatlanggo.Lit: true, whatlanggo.Lav: true,
	whatlanggo.Nld: true, whatlanggo.Pol: true, whatlanggo.Por: true,
	whatlanggo.Ron: true, whatlanggo.Slv: true, whatlanggo.Swe: true,
}

// iso3to2 maps whatlang's ISO 639-3 results onto the EU two-letter set.
var iso3to2 = map[string]string{
	"bul": "BG", "ces": "CS", "dan": "DA", "deu": "DE", "ell": "EL",
	"eng": "EN", "spa": "ES", "est": "ET", "fin": "FI", "fra": "FR",
	"hrv": "HR", "hun": "HU", "ita": "IT", "lit": "LT", "lav": "LV",
	"nld": "NL", "pol": "PL", "por": "PT", "ron": "RO", "slv": "SL",
	"swe": "SV",
}

const (
	minChars         = 20
	scriptThreshold  = 0.30
	primaryThreshold = 0.60
	chunkSize        = 600
	chunkCapBytes    = 50 * 1024
	chunkVoteAccept  = 0.72
	weakPrimaryNudge = 0.70
)

// Detector resolves speech text to a language code.
type Detector struct {
	primary lingua.LanguageDetector
}

// New builds a detector restricted to the 24 EU languages.
func New() *Detector {
	return &Detector{
		primary: lingua.NewLanguageDetectorBuilder().
			FromLanguages(euLanguages...).
			Build(),
	}
}

var tagRe = regexp.MustCompile(`<[^>]*>`)

// Detect returns the two-letter uppercase code for the text, or nil when no
// stage reaches its confidence threshold.
func (d *Detector) Detect(text string) *string {
	clean := strings.TrimSpace(tagRe.ReplaceAllString(text, " "))
	clean = strings.Join(strings.Fields(clean), " ")
	if clean == "" {
		return nil
	}

	if code := scriptShortCircuit(clean); code != "" {
		return &code
	}

	primaryCode, primaryConf := d.detectPrimary(clean)

	if primaryCode != "" && primaryConf >= primaryThreshold {
		code := primaryCode
		return &code
	}

	if code := d.chunkedVote(clean); code != "" {
		return &code
	}

	fallbackCode := detectFallback(clean)

	switch {
	case fallbackCode != "" && fallbackCode == primaryCode:
		return &fallbackCode
	case (fallbackCode == "EL" || fallbackCode == "MT") && primaryConf < weakPrimaryNudge:
		// The trigram detector is trustworthy on these when the primary
		// is unsure.
		return &fallbackCode
	case primaryCode != "":
		code := primaryCode
		return &code
	case fallbackCode != "":
		return &fallbackCode
	}
	return nil
}

// scriptShortCircuit returns EL or BG when at least 30% of the
// non-whitespace runes are Greek or Cyrillic, given at least 20 of them.
func scriptShortCircuit(text string) string {
	var total, greek, cyrillic int
	for _, r := range text {
		if unicode.IsSpace(r) {
			continue
		}
		total++
		if r >= 0x0370 && r <= 0x03FF {
			greek++
		} else if r >= 0x0400 && r <= 0x04FF {
			cyrillic++
		}
	}
	if total < minChars {
		return ""
	}
	if float64(greek)/float64(total) >= scriptThreshold {
		return "EL"
	}
	if float64(cyrillic)/float64(total) >= scriptThreshold {
		return "BG"
	}
	return ""
}

func (d *Detector) detectPrimary(text string) (string, float64) {
	lang, ok := d.primary.DetectLanguageOf(text)
	if !ok {
		return "", 0
	}
	conf := d.primary.ComputeLanguageConfidence(text, lang)
	return lang.IsoCode639_1().String(), conf
}

// chunkedVote splits the text into ~600-char chunks (capped at 50 kB),
// detects each, and accepts the language with the highest average
// confidence when that average reaches 0.72.
func (d *Detector) chunkedVote(text string) string {
	if len(text) > chunkCapBytes {
		text = text[:chunkCapBytes]
	}
	runes := []rune(text)
	if len(runes) < chunkSize {
		return ""
	}

	sums := make(map[string]float64)
	counts := make(map[string]int)
	for start := 0; start < len(runes); start += chunkSize {
		end := start + chunkSize
		if end > len(runes) {
			end = len(runes)
		}
		chunk := string(runes[start:end])
		lang, ok := d.primary.DetectLanguageOf(chunk)
		if !ok {
			continue
		}
		code := lang.IsoCode639_1().String()
		sums[code] += d.primary.ComputeLanguageConfidence(chunk, lang)
		counts[code]++
	}

	best, bestAvg := "", 0.0
	for code, sum := range sums {
		avg := sum / float64(counts[code])
		if avg > bestAvg {
			best, bestAvg = code, avg
		}
	}
	if bestAvg >= chunkVoteAccept {
		return best
	}
	return ""
}

func detectFallback(text string) string {
	info := whatlanggo.DetectWithOptions(text, whatlanggo.Options{Whitelist: fallbackWhitelist})
	if !info.IsReliable() {
		return ""
	}
	return iso3to2[whatlanggo.LangToString(info.Lang)]
}
