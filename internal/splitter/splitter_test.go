package splitter

import (
	"strings"
	"testing"
)

const filler = "The committee has considered the proposal at length and supports the broad thrust of the text."

func TestMatchLineNameWithGroup(t *testing.T) {
	m := MatchLine("Silva Maria (S&D). – Mr President, this is an important debate.")
	if m.Kind != NameWithGroup {
		t.Fatalf("expected NameWithGroup, got %v", m.Kind)
	}
	if m.Speaker != "Silva Maria" {
		t.Errorf("speaker = %q", m.Speaker)
	}
	if m.Affiliation != "S&D" {
		t.Errorf("affiliation = %q", m.Affiliation)
	}
	if !strings.HasPrefix(m.Body, "Mr President") {
		t.Errorf("body = %q", m.Body)
	}
}

func TestMatchLineNameWithRole(t *testing.T) {
	m := MatchLine("Von der Leyen, President of the Commission. – Honourable Members, thank you.")
	if m.Kind != NameWithRole {
		t.Fatalf("expected NameWithRole, got %v", m.Kind)
	}
	if m.Speaker != "Von der Leyen" {
		t.Errorf("speaker = %q", m.Speaker)
	}
	if m.Role != "President of the Commission" {
		t.Errorf("role = %q", m.Role)
	}
}

func TestMatchLineNameWithGroupAndRole(t *testing.T) {
	m := MatchLine("Silva Maria (PPE), rapporteur. – Mr President, I present the report.")
	if m.Kind != NameWithGroupAndRole {
		t.Fatalf("expected NameWithGroupAndRole, got %v", m.Kind)
	}
	if m.Speaker != "Silva Maria" || m.Affiliation != "PPE" || m.Role != "rapporteur" {
		t.Errorf("got %q / %q / %q", m.Speaker, m.Affiliation, m.Role)
	}
}

func TestMatchLineTitleOnly(t *testing.T) {
	m := MatchLine("President. – The sitting is opened and the agenda adopted.")
	if m.Kind != TitleOnly {
		t.Fatalf("expected TitleOnly, got %v", m.Kind)
	}
	if m.Title != "President" {
		t.Errorf("title = %q", m.Title)
	}
}

func TestMatchLineContinuation(t *testing.T) {
	m := MatchLine("and this continues the previous speaker's argument without any header.")
	if m.Kind != Continuation {
		t.Errorf("expected Continuation, got %v", m.Kind)
	}

	// Separator absent even though the line has a period and a dash.
	m = MatchLine("The vote took place at 12.00 - results are annexed to the minutes and published.")
	if m.Kind != Continuation {
		t.Errorf("expected Continuation for plain dash, got %v", m.Kind)
	}
}

func TestSplitOrdersAndContinuations(t *testing.T) {
	text := strings.Join([]string{
		"CRE 12/03/2024 preamble line, ignored.",
		"President. – The sitting is opened. " + filler,
		"Silva Maria (S&D). – Mr President, the situation requires urgent action.",
		"We cannot look away while this continues.",
		"Kowalski, on behalf of the PPE Group. – " + filler,
	}, "\n")

	speeches := Split(text)
	if len(speeches) != 3 {
		t.Fatalf("expected 3 speeches, got %d", len(speeches))
	}

	for i, sp := range speeches {
		if sp.SpeechOrder != i+1 {
			t.Errorf("speech %d has order %d", i, sp.SpeechOrder)
		}
	}

	first := speeches[0]
	if first.SpeakerName != nil {
		t.Error("title-only speech must have nil speaker")
	}
	if first.Title == nil || *first.Title != "President" {
		t.Error("expected President title")
	}

	second := speeches[1]
	if second.SpeakerName == nil || *second.SpeakerName != "Silva Maria" {
		t.Error("expected Silva Maria speaker")
	}
	if second.PoliticalGroupRaw == nil || *second.PoliticalGroupRaw != "S&D" {
		t.Error("expected S&D raw group")
	}
	if second.PoliticalGroupStd == nil || *second.PoliticalGroupStd != "S&D" {
		t.Error("expected canonical affiliation lifted at parse time")
	}
	if second.PoliticalGroupReason == nil || *second.PoliticalGroupReason != "parentheses_extraction" {
		t.Error("expected parentheses_extraction reason for lifted affiliation")
	}
	if !strings.Contains(second.SpeechContent, "cannot look away") {
		t.Error("continuation line not joined into body")
	}

	third := speeches[2]
	if third.PoliticalGroupRaw == nil || *third.PoliticalGroupRaw != "on behalf of the PPE Group" {
		t.Errorf("raw = %v", third.PoliticalGroupRaw)
	}
}

func TestSplitDropsShortBodies(t *testing.T) {
	text := "Silva Maria (S&D). – Too short.\nKowalski (PPE). – " + filler
	speeches := Split(text)
	if len(speeches) != 1 {
		t.Fatalf("expected 1 speech, got %d", len(speeches))
	}
	if *speeches[0].SpeakerName != "Kowalski" {
		t.Error("short speech not dropped")
	}
	if speeches[0].SpeechOrder != 1 {
		t.Errorf("order must restart contiguous at 1, got %d", speeches[0].SpeechOrder)
	}
}

func TestSplitReconstructsSeparators(t *testing.T) {
	lines := []string{
		"Silva Maria (S&D). – " + filler,
		"Von der Leyen, President of the Commission. – " + filler,
	}
	speeches := Split(strings.Join(lines, "\n"))
	if len(speeches) != 2 {
		t.Fatalf("expected 2 speeches, got %d", len(speeches))
	}
	// Every ". – " of the source corresponds to one emitted speech.
	sepCount := strings.Count(strings.Join(lines, "\n"), ". – ")
	if sepCount != len(speeches) {
		t.Errorf("%d separators but %d speeches", sepCount, len(speeches))
	}
}
