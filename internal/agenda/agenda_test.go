package agenda

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/eurowatch/eurowatch/internal/database"
)

const fisheriesBody = "The reform of the common fisheries policy must protect coastal communities " +
	"while restoring fish stocks to sustainable levels. Quota allocations have to follow scientific " +
	"advice, and small scale vessels deserve fair access to the resources they have fished for generations."

const verbatimHTML = `<html><body>
<table><tr>
<td><img src="https://www.europarl.europa.eu/img/arrow_title_doc.gif"/></td>
<td>1. Opening of the sitting</td>
</tr></table>
<p>President. &ndash; The sitting is opened at nine o&rsquo;clock. I remind members that the minutes
of the previous sitting have been distributed and approved without amendment this morning.</p>
<table><tr>
<td><img src="https://www.europarl.europa.eu/img/arrow_title_doc.gif"/></td>
<td>2. Common fisheries policy reform (<a href="/doceo/document/A-9-2024-0123_EN.html">A9-0123/2024</a>)</td>
</tr></table>
<p>Jane Doe (PPE). &ndash; ` + fisheriesBody + `</p>
</body></html>`

func TestExtractTopics(t *testing.T) {
	topics, err := ExtractTopics(verbatimHTML)
	if err != nil {
		t.Fatalf("ExtractTopics: %v", err)
	}
	if len(topics) != 2 {
		t.Fatalf("got %d topics, want 2", len(topics))
	}

	if topics[0].Ordinal != "1" || topics[0].Title != "Opening of the sitting" {
		t.Errorf("topic 1 = %+v", topics[0])
	}
	if topics[0].DocID != "" {
		t.Errorf("topic 1 has unexpected doc id %q", topics[0].DocID)
	}

	if topics[1].Ordinal != "2" {
		t.Errorf("topic 2 ordinal = %q", topics[1].Ordinal)
	}
	if topics[1].Title != "Common fisheries policy reform" {
		t.Errorf("topic 2 title = %q (citation not stripped?)", topics[1].Title)
	}
	if topics[1].DocID != "A-9-2024-0123" {
		t.Errorf("topic 2 doc id = %q", topics[1].DocID)
	}
}

func TestExtractTopicsSubOrdinal(t *testing.T) {
	html := `<table><tr><td><img src="/img/arrow_title_doc.gif"/></td>
		<td>11.2. Situation in Belarus</td></tr></table>`
	topics, err := ExtractTopics(html)
	if err != nil {
		t.Fatalf("ExtractTopics: %v", err)
	}
	if len(topics) != 1 || topics[0].Ordinal != "11.2" || topics[0].Title != "Situation in Belarus" {
		t.Fatalf("got %+v", topics)
	}
}

func TestExtractTopicsDedup(t *testing.T) {
	header := `<table><tr><td><img src="/img/arrow_title_doc.gif"/></td>
		<td>3. Climate law (<a href="/doceo/document/A-9-2024-0007_EN.html">A9-0007/2024</a>)</td></tr></table>`
	topics, err := ExtractTopics(header + "<p>first part</p>" + header + "<p>resumed part</p>")
	if err != nil {
		t.Fatalf("ExtractTopics: %v", err)
	}
	if len(topics) != 1 {
		t.Fatalf("repeated header not deduplicated: %d topics", len(topics))
	}
}

func TestDecorativeMarkerDoesNotShiftSections(t *testing.T) {
	// The marker image also appears in chrome that is not an agenda header
	// (navigation strips, the table of contents). Those occurrences must not
	// push the following sections onto the wrong topic.
	html := `<html><body>
<div class="nav"><img src="/img/arrow_title_doc.gif"/> back to contents</div>
<table><tr><td><img src="/img/arrow_title_doc.gif"/></td>
<td>1. Budget debate</td></tr></table>
<p>Rapporteur. &ndash; The annual budget must fund the agreed priorities of the Union while
keeping the overall ceiling intact, and every amendment tabled here respects that ceiling.</p>
<table><tr><td><img src="/img/arrow_title_doc.gif"/></td>
<td>2. Fisheries policy</td></tr></table>
<p>Jane Doe (PPE). &ndash; ` + fisheriesBody + `</p>
</body></html>`

	topics, err := ExtractTopics(html)
	if err != nil {
		t.Fatalf("ExtractTopics: %v", err)
	}
	if len(topics) != 2 || topics[0].Title != "Budget debate" || topics[1].Title != "Fisheries policy" {
		t.Fatalf("got %+v", topics)
	}

	sections, err := parseSections(html)
	if err != nil {
		t.Fatalf("parseSections: %v", err)
	}
	budget := "the annual budget must fund the agreed priorities of the union while keeping the " +
		"overall ceiling intact and every amendment tabled here respects that ceiling"
	got, ok := assign(budget, sections)
	if !ok {
		t.Fatal("budget speech not assigned")
	}
	if got.Title != "Budget debate" {
		t.Errorf("budget speech assigned %q", got.Title)
	}

	got, ok = assign(fisheriesBody, sections)
	if !ok {
		t.Fatal("fisheries speech not assigned")
	}
	if got.Title != "Fisheries policy" {
		t.Errorf("fisheries speech assigned %q", got.Title)
	}
}

func TestExtractTopicsNoAgenda(t *testing.T) {
	topics, err := ExtractTopics("<html><body><p>no headers here</p></body></html>")
	if err != nil {
		t.Fatalf("ExtractTopics: %v", err)
	}
	if topics != nil {
		t.Fatalf("expected no topics, got %+v", topics)
	}
}

func TestAssignExactSnippet(t *testing.T) {
	sections, err := parseSections(verbatimHTML)
	if err != nil {
		t.Fatalf("parseSections: %v", err)
	}

	topic, ok := assign(fisheriesBody, sections)
	if !ok {
		t.Fatal("long verbatim speech not assigned")
	}
	if topic.Title != "Common fisheries policy reform" {
		t.Errorf("assigned %q", topic.Title)
	}
}

func TestAssignTokenCoverage(t *testing.T) {
	sections, err := parseSections(verbatimHTML)
	if err != nil {
		t.Fatalf("parseSections: %v", err)
	}

	// Shares vocabulary with the fisheries section but is not a substring.
	speech := "Sustainable quota rules for coastal vessels and fish stocks everywhere"
	topic, ok := assign(speech, sections)
	if !ok {
		t.Fatal("overlapping speech not assigned")
	}
	if topic.Title != "Common fisheries policy reform" {
		t.Errorf("assigned %q", topic.Title)
	}
}

func TestAssignBelowThreshold(t *testing.T) {
	sections, err := parseSections(verbatimHTML)
	if err != nil {
		t.Fatalf("parseSections: %v", err)
	}

	speech := "Completely unrelated vocabulary about spacecraft telemetry calibration procedures yesterday"
	if _, ok := assign(speech, sections); ok {
		t.Fatal("unrelated speech was assigned a topic")
	}
}

func TestAssignShortSpeech(t *testing.T) {
	sections, err := parseSections(verbatimHTML)
	if err != nil {
		t.Fatalf("parseSections: %v", err)
	}

	if _, ok := assign("Thank you.", sections); ok {
		t.Fatal("short speech was assigned a topic")
	}
}

func TestMapSitting(t *testing.T) {
	db := openTestDB(t)
	if err := db.StoreSittingContent("sitting-2024-03-12", "2024-03-12", verbatimHTML, false); err != nil {
		t.Fatalf("storing content: %v", err)
	}
	speaker := "Jane Doe"
	if err := db.ReplaceSpeeches("sitting-2024-03-12", []database.NewSpeech{
		{SpeechOrder: 1, SpeakerName: &speaker, SpeechContent: fisheriesBody},
		{SpeechOrder: 2, SpeechContent: "Thank you."},
	}); err != nil {
		t.Fatalf("seeding speeches: %v", err)
	}

	m := NewMapper(db)
	r, err := m.MapSitting("sitting-2024-03-12")
	if err != nil {
		t.Fatalf("MapSitting: %v", err)
	}
	if r.Assigned != 1 || r.Skipped != 1 {
		t.Errorf("unexpected result %+v", r)
	}

	speeches, _ := db.GetSpeeches("sitting-2024-03-12")
	if speeches[0].Topic == nil || *speeches[0].Topic != "Common fisheries policy reform" {
		t.Errorf("speech 1 topic = %v", speeches[0].Topic)
	}
	if speeches[1].Topic != nil {
		t.Errorf("short speech got topic %q", *speeches[1].Topic)
	}

	// Re-running assigns nothing new.
	r2, err := m.MapSitting("sitting-2024-03-12")
	if err != nil {
		t.Fatalf("MapSitting rerun: %v", err)
	}
	if r2.Assigned != 0 {
		t.Errorf("rerun assigned %d speeches", r2.Assigned)
	}
}

func TestMapSittingNoAgenda(t *testing.T) {
	db := openTestDB(t)
	content := "<html><body>" + strings.Repeat("<p>plain verbatim text without any agenda markers</p>", 5) + "</body></html>"
	if err := db.StoreSittingContent("sitting-2024-03-13", "2024-03-13", content, false); err != nil {
		t.Fatalf("storing content: %v", err)
	}

	r, err := NewMapper(db).MapSitting("sitting-2024-03-13")
	if err != nil {
		t.Fatalf("MapSitting: %v", err)
	}
	if r.NoAgenda != 1 {
		t.Errorf("unexpected result %+v", r)
	}
}

func openTestDB(t *testing.T) *database.DB {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("opening test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}
