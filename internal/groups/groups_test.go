package groups

import (
	"strings"
	"testing"
)

func TestNormalizeEmptyInput(t *testing.T) {
	for _, in := range []string{"", "   ", " "} {
		n := Normalize(in)
		if n.Std != "NI" || n.Kind != KindUnknown || n.Reason != "empty_input" {
			t.Errorf("Normalize(%q) = %+v", in, n)
		}
	}
}

func TestNormalizeDirectCanonical(t *testing.T) {
	tests := []struct {
		in  string
		std string
	}{
		{"PPE", "PPE"},
		{"S&D", "S&D"},
		{"Verts/ALE", "Verts/ALE"},
		{"The Left", "The Left"},
		{"Renew", "Renew"},
		{"renew", "Renew"},
	}
	for _, tt := range tests {
		n := Normalize(tt.in)
		if n.Std != tt.std || n.Kind != KindGroup || n.Reason != "direct_canonical" {
			t.Errorf("Normalize(%q) = %+v", tt.in, n)
		}
	}
}

func TestNormalizeSynonyms(t *testing.T) {
	tests := []struct {
		in  string
		std string
	}{
		{"EPP", "PPE"},
		{"PSE", "S&D"},
		{"ALDE", "Renew"},
		{"Greens/EFA", "Verts/ALE"},
		{"GUE/NGL", "The Left"},
		{"ENF", "ID"},
		{"UEN", "NI"},
		{"IND/DEM", "NI"},
	}
	for _, tt := range tests {
		n := Normalize(tt.in)
		if n.Std != tt.std || n.Kind != KindGroup {
			t.Errorf("Normalize(%q) = %+v, want std %q", tt.in, n, tt.std)
		}
	}
}

func TestNormalizeInstitutionalMarkers(t *testing.T) {
	tests := []string{
		"President of the Commission",
		"Member of the Commission",
		"Vice-President of the Commission / High Representative",
		"President-in-Office of the Council",
		"Membre de la Commission",
	}
	for _, in := range tests {
		n := Normalize(in)
		if n.Std != "NI" || n.Kind != KindInstitution || n.Reason != "institutional_markers" {
			t.Errorf("Normalize(%q) = %+v", in, n)
		}
	}
}

func TestNormalizeParliamentaryMarkers(t *testing.T) {
	tests := []string{
		"rapporteur",
		"Berichterstatter",
		"blue-card question",
		"author of the motion",
	}
	for _, in := range tests {
		n := Normalize(in)
		if n.Std != "NI" || n.Kind != KindRole || n.Reason != "parliamentary_markers" {
			t.Errorf("Normalize(%q) = %+v", in, n)
		}
	}
}

func TestNormalizeParenthesesExtraction(t *testing.T) {
	n := Normalize("Group of the European People's Party (EPP)")
	if n.Std != "PPE" || n.Kind != KindGroup || n.Reason != "parentheses_extraction" {
		t.Errorf("got %+v", n)
	}
}

func TestNormalizeOnBehalfPattern(t *testing.T) {
	tests := []struct {
		in  string
		std string
	}{
		{"on behalf of the PPE Group", "PPE"},
		{"on behalf of the S&D Group", "S&D"},
		{"au nom du groupe Renew", "Renew"},
		{"a nome del gruppo ECR", "ECR"},
		{"en nombre del grupo PPE", "PPE"},
		{"im Namen der PPE-Fraktion", "PPE"},
		{"w imieniu grupy ECR", "ECR"},
		{"în numele grupului S&D", "S&D"},
	}
	for _, tt := range tests {
		n := Normalize(tt.in)
		if n.Std != tt.std || n.Kind != KindGroup || n.Reason != "on_behalf_pattern" {
			t.Errorf("Normalize(%q) = %+v, want %q via on_behalf_pattern", tt.in, n, tt.std)
		}
	}
}

func TestNormalizeGenericGroupPhrase(t *testing.T) {
	n := Normalize("on behalf of the Group")
	if n.Std != "NI" || n.Kind != KindGroup || n.Reason != "generic_group_phrase" {
		t.Errorf("got %+v", n)
	}
}

func TestNormalizeLongProseDoesNotHijack(t *testing.T) {
	// 20 words including a bare canonical token; the direct-token rule
	// must not fire on long prose.
	in := "today we heard many voices and the PPE token appears here among twenty words of entirely plain ordinary prose text"
	if got := len(strings.Fields(in)); got != 20 {
		t.Fatalf("fixture must be 20 words, got %d", got)
	}
	n := Normalize(in)
	if n.Std != "NI" || n.Kind != KindUnknown || n.Reason != "looks_like_sentence" {
		t.Errorf("got %+v", n)
	}
}

func TestNormalizeDirectTokenShortText(t *testing.T) {
	n := Normalize("the PPE position")
	if n.Std != "PPE" || n.Kind != KindGroup || n.Reason != "direct_token" {
		t.Errorf("got %+v", n)
	}

	// Codes embedded in words must not match.
	n = Normalize("the president spoke")
	if n.Reason == "direct_token" {
		t.Errorf("ID matched inside a word: %+v", n)
	}
}

func TestNormalizeWritingSuffixStripped(t *testing.T) {
	n := Normalize("PPE, in writing")
	if n.Std != "PPE" || n.Reason != "direct_canonical" {
		t.Errorf("got %+v", n)
	}
	n = Normalize("S&D, por escrito")
	if n.Std != "S&D" {
		t.Errorf("got %+v", n)
	}
}

func TestNormalizeNoMatch(t *testing.T) {
	n := Normalize("Fidesz")
	if n.Std != "NI" || n.Kind != KindUnknown || n.Reason != "no_match" {
		t.Errorf("got %+v", n)
	}
}

func TestNormalizeIdempotentOnOutput(t *testing.T) {
	// Feeding the normalizer its own std output reaches a stable point.
	inputs := []string{"EPP", "on behalf of the S&D Group", "Greens/EFA", "rapporteur"}
	for _, in := range inputs {
		first := Normalize(in)
		if first.Kind != KindGroup {
			continue
		}
		second := Normalize(first.Std)
		if second.Std != first.Std {
			t.Errorf("normalize(normalize(%q)): %q -> %q", in, first.Std, second.Std)
		}
	}
}

func TestNormalizeKindDomain(t *testing.T) {
	inputs := []string{
		"", "PPE", "EPP", "rapporteur", "President of the Commission",
		"on behalf of the ECR Group", "random text", "on behalf of the Group",
		"a very long sentence that keeps going on and on about nothing in particular for quite a while now",
	}
	for _, in := range inputs {
		n := Normalize(in)
		switch n.Kind {
		case KindGroup, KindInstitution, KindRole, KindUnknown:
		default:
			t.Errorf("Normalize(%q) produced kind %q outside the domain", in, n.Kind)
		}
		if n.Kind == KindGroup && n.Reason != "generic_group_phrase" {
			if _, ok := LookupCode(n.Std); !ok {
				t.Errorf("Normalize(%q): kind=group but std %q not canonical", in, n.Std)
			}
		}
	}
}

func TestLookupCode(t *testing.T) {
	if std, ok := LookupCode("s&d"); !ok || std != "S&D" {
		t.Errorf("LookupCode(s&d) = %q, %v", std, ok)
	}
	if std, ok := LookupCode(" EPP. "); !ok || std != "PPE" {
		t.Errorf("LookupCode(EPP.) = %q, %v", std, ok)
	}
	if _, ok := LookupCode("Socialist International"); ok {
		t.Error("unexpected lookup hit")
	}
}
