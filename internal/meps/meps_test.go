package meps

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/eurowatch/eurowatch/internal/config"
	"github.com/eurowatch/eurowatch/internal/database"
)

func openTestDB(t *testing.T) *database.DB {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("opening test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func testImporter(t *testing.T, db *database.DB, apiURL string) *Importer {
	t.Helper()
	return NewImporter(db, &config.Config{
		Europarl: config.Europarl{
			APIBaseURL:        apiURL,
			UserAgent:         "test",
			TimeoutSeconds:    5,
			DiscoveryPageSize: 2,
		},
	})
}

func TestImportCurrentPaginates(t *testing.T) {
	pages := []string{
		`{"data": [
			{"identifier": "1001", "label": "Jane Doe", "givenName": "Jane", "familyName": "Doe",
			 "api:country-of-representation": "http://publications.europa.eu/resource/authority/country/DEU",
			 "api:political-group": "PPE"},
			{"identifier": "1002", "label": "Jan Novák", "givenName": "Jan", "familyName": "Novák",
			 "api:country-of-representation": "CZE", "api:political-group": "S&D"}
		]}`,
		`{"data": [
			{"identifier": "1003", "label": "Marie Curie", "givenName": "Marie", "familyName": "Curie",
			 "api:country-of-representation": "FRA", "api:political-group": "Renew"}
		]}`,
	}
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/meps" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		page := pages[len(pages)-1]
		if calls < len(pages) {
			page = pages[calls]
		}
		calls++
		w.Header().Set("Content-Type", "application/ld+json")
		w.Write([]byte(page))
	}))
	defer srv.Close()

	db := openTestDB(t)
	im := testImporter(t, db, srv.URL)

	r, err := im.ImportCurrent(context.Background())
	if err != nil {
		t.Fatalf("ImportCurrent: %v", err)
	}
	if r.Imported != 3 {
		t.Errorf("imported %d, want 3", r.Imported)
	}
	if calls != 2 {
		t.Errorf("expected 2 pages, got %d requests", calls)
	}

	mep, err := db.GetMEP(1001)
	if err != nil || mep == nil {
		t.Fatalf("GetMEP: %v, %v", mep, err)
	}
	if mep.Country == nil || *mep.Country != "DE" {
		t.Errorf("country authority URI not reduced: %v", mep.Country)
	}
	if !mep.IsCurrent || mep.Source != "api" {
		t.Errorf("mep flags = current=%v source=%q", mep.IsCurrent, mep.Source)
	}
}

func TestImportCurrentRetiresAbsent(t *testing.T) {
	db := openTestDB(t)
	country := "IT"
	if err := db.UpsertMEP(&database.MEP{
		ID: 2001, FullName: "Gone Member", Country: &country, IsCurrent: true, Source: "api",
	}); err != nil {
		t.Fatalf("seeding former member: %v", err)
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data": [{"identifier": "1001", "label": "Jane Doe"}]}`))
	}))
	defer srv.Close()

	im := testImporter(t, db, srv.URL)
	if _, err := im.ImportCurrent(context.Background()); err != nil {
		t.Fatalf("ImportCurrent: %v", err)
	}

	gone, _ := db.GetMEP(2001)
	if gone == nil || gone.IsCurrent {
		t.Errorf("absent member still current: %+v", gone)
	}
	stay, _ := db.GetMEP(1001)
	if stay == nil || !stay.IsCurrent {
		t.Errorf("imported member not current: %+v", stay)
	}
}

func TestImportSkipsBadRecords(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls > 1 {
			w.Write([]byte(`{"data": []}`))
			return
		}
		w.Write([]byte(`{"data": [
			{"identifier": "not-a-number", "label": "Broken"},
			{"identifier": "1001", "label": "Jane Doe"}
		]}`))
	}))
	defer srv.Close()

	db := openTestDB(t)
	im := testImporter(t, db, srv.URL)

	r, err := im.ImportCurrent(context.Background())
	if err != nil {
		t.Fatalf("ImportCurrent: %v", err)
	}
	if r.Imported != 1 || r.Errors != 1 {
		t.Errorf("result = %+v, want 1 imported 1 error", r)
	}
}

func TestRelink(t *testing.T) {
	db := openTestDB(t)
	if err := db.UpsertMEP(&database.MEP{ID: 1001, FullName: "Jane Doe", IsCurrent: true, Source: "api"}); err != nil {
		t.Fatalf("seeding MEP: %v", err)
	}

	if err := db.UpsertSitting("sitting-2024-03-12", "2024-03-12", nil, nil, nil, nil); err != nil {
		t.Fatalf("seeding sitting: %v", err)
	}
	name1, name2, name3 := "Jane Doe", "Doe Jane", "Totally Unknown Speaker"
	if err := db.ReplaceSpeeches("sitting-2024-03-12", []database.NewSpeech{
		{SpeechOrder: 1, SpeakerName: &name1, SpeechContent: "first intervention, directory match"},
		{SpeechOrder: 2, SpeakerName: &name2, SpeechContent: "second intervention, reversed name"},
		{SpeechOrder: 3, SpeakerName: &name3, SpeechContent: "third intervention, nobody knows them"},
		{SpeechOrder: 4, SpeakerName: &name3, SpeechContent: "fourth intervention, same stranger again"},
	}); err != nil {
		t.Fatalf("seeding speeches: %v", err)
	}

	im := testImporter(t, db, "http://unused")
	r, err := im.Relink()
	if err != nil {
		t.Fatalf("Relink: %v", err)
	}
	if r.Linked != 4 {
		t.Errorf("linked %d, want 4", r.Linked)
	}
	if r.Historic != 1 {
		t.Errorf("historic %d, want 1 (repeat speaker reuses the id)", r.Historic)
	}

	speeches, _ := db.GetSpeeches("sitting-2024-03-12")
	if speeches[0].MEPID == nil || *speeches[0].MEPID != 1001 {
		t.Errorf("exact name link = %v", speeches[0].MEPID)
	}
	if speeches[1].MEPID == nil || *speeches[1].MEPID != 1001 {
		t.Errorf("reversed name link = %v", speeches[1].MEPID)
	}
	if speeches[2].MEPID == nil || *speeches[2].MEPID <= 1_000_000 {
		t.Errorf("historic id = %v, want > 1,000,000", speeches[2].MEPID)
	}
	if speeches[3].MEPID == nil || *speeches[3].MEPID != *speeches[2].MEPID {
		t.Errorf("repeat speaker got a different id: %v vs %v", speeches[3].MEPID, speeches[2].MEPID)
	}

	historic, _ := db.GetMEP(*speeches[2].MEPID)
	if historic == nil || historic.Source != "historic" || historic.IsCurrent {
		t.Errorf("historic MEP row = %+v", historic)
	}

	// Re-running links nothing new.
	r2, err := im.Relink()
	if err != nil {
		t.Fatalf("Relink rerun: %v", err)
	}
	if r2.Linked != 0 || r2.Historic != 0 {
		t.Errorf("rerun result = %+v", r2)
	}
}

func TestCountryCode(t *testing.T) {
	cases := map[string]string{
		"http://publications.europa.eu/resource/authority/country/DEU": "DE",
		"CZE": "CZ",
		"fr":  "FR",
		"":    "",
	}
	for in, want := range cases {
		if got := countryCode(in); got != want {
			t.Errorf("countryCode(%q) = %q, want %q", in, got, want)
		}
	}
}
