// Package groups reduces raw affiliation strings to the canonical set of
// political groups, distinguishing groups from institutional and
// parliamentary roles.
package groups

import (
	"regexp"
	"sort"
	"strings"

	"github.com/eurowatch/eurowatch/internal/textnorm"
)

// Kind classifies what a raw affiliation string actually names.
type Kind string

const (
	KindGroup       Kind = "group"
	KindInstitution Kind = "institution"
	KindRole        Kind = "role"
	KindUnknown     Kind = "unknown"
)

// Normalization is the normalizer's output: the canonical code, the kind,
// and the name of the rule that fired.
type Normalization struct {
	Std    string
	Kind   Kind
	Reason string
}

// canonical maps the uppercase form of every canonical code to its display
// form.
var canonical = map[string]string{
	"PPE":       "PPE",
	"S&D":       "S&D",
	"ECR":       "ECR",
	"ID":        "ID",
	"VERTS/ALE": "Verts/ALE",
	"RENEW":     "Renew",
	"THE LEFT":  "The Left",
	"NI":        "NI",
	"PFE":       "PfE",
	"EFDD":      "EFDD",
	"ESN":       "ESN",
}

// synonyms maps uppercase historical and alternate names onto canonical
// codes. Extensible; keys must be uppercase.
var synonyms = map[string]string{
	"EPP":          "PPE",
	"EPP-ED":       "PPE",
	"PSE":          "S&D",
	"S-D":          "S&D",
	"SD":           "S&D",
	"ALDE":         "Renew",
	"ELDR":         "Renew",
	"ADLE":         "Renew",
	"RENEW EUROPE": "Renew",
	"GREENS/EFA":   "Verts/ALE",
	"GREENS-EFA":   "Verts/ALE",
	"GUE/NGL":      "The Left",
	"GUE-NGL":      "The Left",
	"GUE":          "The Left",
	"LA GAUCHE":    "The Left",
	"ENF":          "ID",
	"ENL":          "ID",
	"PATRIOTS":     "PfE",
	"EFD":          "EFDD",
	"UEN":          "NI",
	"IND/DEM":      "NI",
	"EDD":          "NI",
	"ITS":          "NI",
}

// writingSuffixes are the language-specific ", in writing" markers appended
// to affiliations of written statements.
var writingSuffixes = []string{
	", in writing",
	", skriftlig",
	", skriftligt",
	", per iscritto",
	", por escrito",
	", par écrit",
	", schriftlich",
	", schriftelijk",
	", písemně",
	", písomne",
	", na piśmie",
	", γραπτώς",
	", în scris",
	", raštu",
	", rakstiski",
	", kirjalikult",
	", kirjallinen",
	", írásban",
	", i scríbhinn",
	", bil-miktub",
}

// genericGroupPhrases mean "on behalf of the group" with no named group.
var genericGroupPhrases = []string{
	"on behalf of the group",
	"au nom du groupe",
	"im namen der fraktion",
	"a nome del gruppo",
	"en nombre del grupo",
	"em nome do grupo",
	"namens de fractie",
	"w imieniu grupy",
	"za skupinu",
	"în numele grupului",
}

// institutionalMarkers identify non-MEP speakers: Commission members,
// Council presidency, HR/VP, Eurogroup.
var institutionalMarkers = []string{
	"president of the commission",
	"vice-president of the commission",
	"member of the commission",
	"commissioner",
	"high representative",
	"president-in-office of the council",
	"president of the european council",
	"president of the eurogroup",
	"eurogroup president",
	"on behalf of the council",
	"on behalf of the commission",
	"european central bank",
	"court of auditors",
	"membre de la commission",
	"président de la commission",
	"mitglied der kommission",
	"membro della commissione",
	"miembro de la comisión",
	"membro da comissão",
	"président en exercice du conseil",
	"amtierender ratspräsident",
	"presidente in carica del consiglio",
}

// parliamentaryMarkers identify MEPs acting in a procedural capacity.
var parliamentaryMarkers = []string{
	"rapporteur",
	"draftsman",
	"draftsperson",
	"relatore",
	"relatrice",
	"ponente",
	"berichterstatter",
	"sprawozdawca",
	"zpravodaj",
	"spravodajca",
	"raportor",
	"chair of the committee",
	"committee on",
	"delegation",
	"blue-card",
	"blue card",
	"carte bleue",
	"author of the motion",
	"author of a motion",
	"motion for a resolution",
	"quaestor",
	"question time",
}

// longInstitutionPhrases and longRolePhrases back the >8-word fallback so
// long prose naming an institution or role is still classified.
var longInstitutionPhrases = []string{
	"european commission",
	"european council",
	"council of the european union",
	"in-office of the council",
}

var longRolePhrases = []string{
	"shadow rapporteur",
	"committee chair",
	"parliamentary question",
	"on my own report",
}

// onBehalfPatterns capture the named group from the multilingual "on behalf
// of the X group" formulas.
var onBehalfPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)on behalf of the (.+?) group`),                 // en
	regexp.MustCompile(`(?i)au nom du groupe (.+)$`),                       // fr
	regexp.MustCompile(`(?i)a nome del gruppo (.+)$`),                      // it
	regexp.MustCompile(`(?i)en nombre del grupo (.+)$`),                    // es
	regexp.MustCompile(`(?i)em nome do grupo (.+)$`),                       // pt
	regexp.MustCompile(`(?i)im namen der (.+?)-fraktion`),                  // de
	regexp.MustCompile(`(?i)im namen der fraktion (.+)$`),                  // de
	regexp.MustCompile(`(?i)namens de (.+?)-fractie`),                      // nl
	regexp.MustCompile(`(?i)för (.+?)-gruppen`),                            // sv
	regexp.MustCompile(`(?i)på (.+?)-gruppens vegne`),                      // da
	regexp.MustCompile(`(?i)for (.+?)-gruppen`),                            // da
	regexp.MustCompile(`(?i)w imieniu grupy (.+)$`),                        // pl
	regexp.MustCompile(`(?i)za skupinu (.+)$`),                             // cs/sk
	regexp.MustCompile(`(?i)în numele grupului (.+)$`),                     // ro
	regexp.MustCompile(`(?i)εξ ονόματος της ομάδας (.+)$`),                 // el
	regexp.MustCompile(`(?i)thar ceann ghrúpa (.+)$`),                      // ga
	regexp.MustCompile(`(?i)u ime (?:kluba zastupnika|kluba|grupe) (.+)$`), // hr
	regexp.MustCompile(`(?i)f'isem il-grupp (.+)$`),                        // mt
}

// codeKeys holds every canonical and synonym key, longest first, for
// whole-word containment scans.
var codeKeys = buildCodeKeys()

var parenRe = regexp.MustCompile(`\(([^)]+)\)`)

func buildCodeKeys() []string {
	keys := make([]string, 0, len(canonical)+len(synonyms))
	for k := range canonical {
		keys = append(keys, k)
	}
	for k := range synonyms {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if len(keys[i]) != len(keys[j]) {
			return len(keys[i]) > len(keys[j])
		}
		return keys[i] < keys[j]
	})
	return keys
}

// LookupCode resolves a bare code against the canonical set and the synonym
// table. The input is folded but not tokenized.
func LookupCode(s string) (string, bool) {
	u := strings.ToUpper(strings.TrimSpace(textnorm.ForRules(s)))
	u = strings.TrimSuffix(u, ".")
	if std, ok := canonical[u]; ok {
		return std, true
	}
	if std, ok := synonyms[u]; ok {
		return std, true
	}
	return "", false
}

// Normalize maps a raw affiliation string to (std, kind, reason). The rule
// pipeline is first-match-wins; every return records which rule fired.
func Normalize(raw string) Normalization {
	if strings.TrimSpace(raw) == "" {
		return Normalization{Std: "NI", Kind: KindUnknown, Reason: "empty_input"}
	}

	text := stripWritingSuffix(textnorm.ForRules(raw))
	lower := strings.ToLower(text)
	upper := strings.ToUpper(text)

	if std, ok := canonical[strings.TrimSuffix(upper, ".")]; ok {
		return Normalization{Std: std, Kind: KindGroup, Reason: "direct_canonical"}
	}

	if matchesAny(lower, genericGroupPhrases) && findCodeIn(upper) == "" {
		return Normalization{Std: "NI", Kind: KindGroup, Reason: "generic_group_phrase"}
	}

	if matchesAny(lower, institutionalMarkers) {
		return Normalization{Std: "NI", Kind: KindInstitution, Reason: "institutional_markers"}
	}

	if matchesAny(lower, parliamentaryMarkers) {
		return Normalization{Std: "NI", Kind: KindRole, Reason: "parliamentary_markers"}
	}

	if m := parenRe.FindStringSubmatch(text); m != nil {
		if std, ok := LookupCode(m[1]); ok {
			return Normalization{Std: std, Kind: KindGroup, Reason: "parentheses_extraction"}
		}
	}

	for _, re := range onBehalfPatterns {
		if m := re.FindStringSubmatch(text); m != nil {
			if std := findCodeIn(strings.ToUpper(m[1])); std != "" {
				return Normalization{Std: std, Kind: KindGroup, Reason: "on_behalf_pattern"}
			}
		}
	}

	// Long prose must not let a stray token hijack the classification.
	if len(strings.Fields(text)) > 8 {
		if matchesAny(lower, longInstitutionPhrases) {
			return Normalization{Std: "NI", Kind: KindInstitution, Reason: "long_text_institution"}
		}
		if matchesAny(lower, longRolePhrases) {
			return Normalization{Std: "NI", Kind: KindRole, Reason: "long_text_role"}
		}
		return Normalization{Std: "NI", Kind: KindUnknown, Reason: "looks_like_sentence"}
	}

	if std := findCodeIn(upper); std != "" {
		return Normalization{Std: std, Kind: KindGroup, Reason: "direct_token"}
	}

	if std, ok := synonyms[strings.TrimSuffix(upper, ".")]; ok {
		return Normalization{Std: std, Kind: KindGroup, Reason: "bare_code"}
	}

	return Normalization{Std: "NI", Kind: KindUnknown, Reason: "no_match"}
}

func stripWritingSuffix(s string) string {
	lower := strings.ToLower(s)
	for _, suffix := range writingSuffixes {
		if strings.HasSuffix(lower, suffix) {
			return strings.TrimSpace(s[:len(s)-len(suffix)])
		}
	}
	return s
}

func matchesAny(haystack string, phrases []string) bool {
	for _, p := range phrases {
		if strings.Contains(haystack, p) {
			return true
		}
	}
	return false
}

// findCodeIn scans uppercase text for a whole-word canonical or synonym
// code and returns the canonical form, or "".
func findCodeIn(upper string) string {
	for _, key := range codeKeys {
		idx := strings.Index(upper, key)
		for idx >= 0 {
			if isWordBoundary(upper, idx, len(key)) {
				if std, ok := canonical[key]; ok {
					return std
				}
				return synonyms[key]
			}
			next := strings.Index(upper[idx+1:], key)
			if next < 0 {
				break
			}
			idx += 1 + next
		}
	}
	return ""
}

func isWordBoundary(s string, start, length int) bool {
	if start > 0 && isWordChar(rune(s[start-1])) {
		return false
	}
	end := start + length
	if end < len(s) && isWordChar(rune(s[end])) {
		return false
	}
	return true
}

func isWordChar(r rune) bool {
	return (r >= 'A' && r <= 'Z') || (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9')
}
