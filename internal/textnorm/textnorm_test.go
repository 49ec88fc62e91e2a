package textnorm

import "testing"

func TestForMatching(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Situation in Venezuela", "situation in venezuela"},
		{"Débat général — suite", "debat general suite"},
		{"Vote final​(B9-0123/2024)", "vote final b9 0123 2024"},
		{"Köztársaság   és\tunió", "koztarsasag es unio"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := ForMatching(tt.in); got != tt.want {
			t.Errorf("ForMatching(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestForMatchingIdempotent(t *testing.T) {
	in := "11.2. Situation in Venezuela — débat (2024/2567(RSP))"
	once := ForMatching(in)
	if twice := ForMatching(once); twice != once {
		t.Errorf("not idempotent: %q vs %q", once, twice)
	}
}

func TestForRulesFoldsInvisibleSpaces(t *testing.T) {
	// NBSP, figure space, narrow NBSP, zero-width space/joiners, BOM.
	in := "on behalf of the​PPE‌‍Group\uFEFF"
	if got := ForRules(in); got != "on behalf of the PPE Group" {
		t.Errorf("ForRules = %q", got)
	}
}

func TestForRulesPreservesCase(t *testing.T) {
	got := ForRules("S&D Group—fraktion")
	if got != "S&D Group-fraktion" {
		t.Errorf("ForRules = %q", got)
	}
}

func TestForRulesFoldsQuotes(t *testing.T) {
	if got := ForRules("the “Renew” group’s view"); got != `the "Renew" group's view` {
		t.Errorf("ForRules = %q", got)
	}
}

func TestTokens(t *testing.T) {
	toks := Tokens("the situation in venezuela is grave", 3)
	for _, want := range []string{"situation", "venezuela", "grave"} {
		if _, ok := toks[want]; !ok {
			t.Errorf("missing token %q", want)
		}
	}
	if _, ok := toks["the"]; ok {
		t.Error("token shorter than cutoff retained")
	}
}
