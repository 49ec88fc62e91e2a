package fetch

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/eurowatch/eurowatch/internal/config"
	"github.com/eurowatch/eurowatch/internal/database"
)

func testConfig(baseURL string) *config.Config {
	return &config.Config{
		Europarl: config.Europarl{
			DocumentBaseURL:   baseURL,
			APIBaseURL:        baseURL,
			UserAgent:         "eurowatch-test/1.0",
			TimeoutSeconds:    5,
			PolitenessDelayMS: 1,
			DiscoveryPageSize: 2,
		},
	}
}

func openTestDB(t *testing.T) *database.DB {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func mustDate(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := time.Parse("2006-01-02", s)
	if err != nil {
		t.Fatalf("bad date %q: %v", s, err)
	}
	return d
}

func TestTermForDate(t *testing.T) {
	tests := []struct {
		date string
		term int
	}{
		{"1979-07-17", 1},
		{"1984-07-23", 1},
		{"1984-07-24", 2},
		{"2019-07-02", 9},
		{"2024-07-15", 9},
		{"2024-07-16", 10},
		{"2026-03-01", 10},
	}
	for _, tt := range tests {
		got, err := TermForDate(mustDate(t, tt.date))
		if err != nil {
			t.Errorf("TermForDate(%s): unexpected error %v", tt.date, err)
			continue
		}
		if got != tt.term {
			t.Errorf("TermForDate(%s) = %d, want %d", tt.date, got, tt.term)
		}
	}
}

func TestTermForDateBeforeFirstTerm(t *testing.T) {
	if _, err := TermForDate(mustDate(t, "1975-01-01")); err == nil {
		t.Error("expected error for pre-1979 date")
	}
}

func TestVerbatimURL(t *testing.T) {
	got, err := VerbatimURL("https://www.europarl.europa.eu", mustDate(t, "2024-03-12"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := "https://www.europarl.europa.eu/doceo/document/CRE-9-2024-03-12_EN.html"
	if got != want {
		t.Errorf("VerbatimURL = %q, want %q", got, want)
	}
}

func sittingHTML(body string) string {
	return fmt.Sprintf(`<html><head><title>CRE</title></head><body><div id="website-body">%s</div></body></html>`, body)
}

func TestFetchDateStores(t *testing.T) {
	body := strings.Repeat("Mr President, the debate on the situation is open. ", 10)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("User-Agent") != "eurowatch-test/1.0" {
			t.Error("missing user-agent header")
		}
		fmt.Fprint(w, sittingHTML(body))
	}))
	defer srv.Close()

	db := openTestDB(t)
	f := New(db, testConfig(srv.URL))

	state, err := f.FetchDate(context.Background(), mustDate(t, "2024-03-12"), false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if state != StateStored {
		t.Fatalf("expected stored, got %s", state)
	}

	s, _ := db.GetSittingByDate("2024-03-12")
	if s == nil || !s.HasContent() {
		t.Fatal("expected sitting with content")
	}
}

func TestFetchDateIdempotent(t *testing.T) {
	calls := 0
	body := strings.Repeat("The sitting resumed at 9.00 with announcements. ", 10)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		fmt.Fprint(w, sittingHTML(body))
	}))
	defer srv.Close()

	db := openTestDB(t)
	f := New(db, testConfig(srv.URL))
	date := mustDate(t, "2024-03-12")

	f.FetchDate(context.Background(), date, false)
	state, err := f.FetchDate(context.Background(), date, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if state != StateStored {
		t.Errorf("expected stored on no-op, got %s", state)
	}
	if calls != 1 {
		t.Errorf("expected 1 HTTP call, got %d", calls)
	}
}

func TestFetchDate404IsMissing(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		http.NotFound(w, r)
	}))
	defer srv.Close()

	db := openTestDB(t)
	f := New(db, testConfig(srv.URL))

	state, err := f.FetchDate(context.Background(), mustDate(t, "2024-03-13"), false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if state != StateMissing {
		t.Errorf("expected missing, got %s", state)
	}
	if calls != 1 {
		t.Errorf("404 must not be retried, got %d calls", calls)
	}
}

func TestFetchDateRetriesOn5xx(t *testing.T) {
	calls := 0
	body := strings.Repeat("Debate on the report resumed after the vote. ", 10)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			http.Error(w, "upstream error", http.StatusBadGateway)
			return
		}
		fmt.Fprint(w, sittingHTML(body))
	}))
	defer srv.Close()

	db := openTestDB(t)
	f := New(db, testConfig(srv.URL))

	state, err := f.FetchDate(context.Background(), mustDate(t, "2024-03-12"), false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if state != StateStored {
		t.Errorf("expected stored after retry, got %s", state)
	}
	if calls != 2 {
		t.Errorf("expected 2 calls, got %d", calls)
	}
}

func TestExtractTextFallbackChain(t *testing.T) {
	long := strings.Repeat("word and more text for extraction purposes here. ", 5)

	withContainer := sittingHTML(long)
	if got := ExtractText(withContainer); !strings.Contains(got, "extraction purposes") {
		t.Error("container selector missed")
	}

	paragraphsOnly := fmt.Sprintf("<html><body><div><p>%s</p><p>%s</p></div></body></html>", long, long)
	if got := ExtractText(paragraphsOnly); len(got) < 100 {
		t.Errorf("paragraph fallback produced %d chars", len(got))
	}

	if got := ExtractText("<html><body><span>short</span></body></html>"); len(got) >= 100 {
		t.Errorf("expected short extraction, got %d chars", len(got))
	}
}

func TestDiscoverDates(t *testing.T) {
	pages := []string{
		`{"data": [
			{"id": "eli/speech/1", "activity_date": "2024-03-12", "had_activity_type": "PLENARY",
			 "recorded_in_a_realization_of": [{"identifier": "CRE-9-2024-03-12", "notation_speechId": "spe-1"}]},
			{"id": "eli/speech/2", "activity_date": "2024-03-12"}
		]}`,
		`{"data": [
			{"id": "eli/speech/3", "activity_date": "2024-03-13"}
		]}`,
	}
	call := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if call >= len(pages) {
			fmt.Fprint(w, `{"data": []}`)
			return
		}
		fmt.Fprint(w, pages[call])
		call++
	}))
	defer srv.Close()

	db := openTestDB(t)
	d := NewDiscoverer(db, testConfig(srv.URL))

	dates, err := d.DiscoverDates(context.Background(), mustDate(t, "2024-03-01"), 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(dates) != 2 || dates[0] != "2024-03-12" || dates[1] != "2024-03-13" {
		t.Errorf("unexpected dates: %v", dates)
	}

	s, _ := db.GetSittingByDate("2024-03-12")
	if s == nil {
		t.Fatal("expected seeded sitting")
	}
	if s.DocumentID == nil || *s.DocumentID != "CRE-9-2024-03-12" {
		t.Error("expected document id from realization")
	}
}
