// Package meps imports the Parliament member directory and links speeches
// to their speakers.
package meps

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/eurowatch/eurowatch/internal/config"
	"github.com/eurowatch/eurowatch/internal/database"
)

// mepRecord is one entry from the ld+json member directory.
type mepRecord struct {
	Identifier     string `json:"identifier"`
	Label          string `json:"label"`
	GivenName      string `json:"givenName"`
	FamilyName     string `json:"familyName"`
	Country        string `json:"api:country-of-representation"`
	PoliticalGroup string `json:"api:political-group"`
}

type mepPage struct {
	Data []mepRecord `json:"data"`
}

// iso3to2 maps the three-letter country authority codes the directory uses
// to the two-letter codes stored on MEP rows.
var iso3to2 = map[string]string{
	"AUT": "AT", "BEL": "BE", "BGR": "BG", "HRV": "HR", "CYP": "CY",
	"CZE": "CZ", "DNK": "DK", "EST": "EE", "FIN": "FI", "FRA": "FR",
	"DEU": "DE", "GRC": "EL", "HUN": "HU", "IRL": "IE", "ITA": "IT",
	"LVA": "LV", "LTU": "LT", "LUX": "LU", "MLT": "MT", "NLD": "NL",
	"POL": "PL", "PRT": "PT", "ROU": "RO", "SVK": "SK", "SVN": "SI",
	"ESP": "ES", "SWE": "SE", "GBR": "GB",
}

// Result summarizes an import or relink run.
type Result struct {
	Imported int
	Linked   int
	Historic int
	Errors   int
}

// Importer fetches the member directory and maintains the meps table.
type Importer struct {
	db        *database.DB
	client    *http.Client
	apiBase   string
	userAgent string
	pageSize  int
	delay     time.Duration
}

// NewImporter creates an Importer from config.
func NewImporter(db *database.DB, cfg *config.Config) *Importer {
	pageSize := cfg.Europarl.DiscoveryPageSize
	if pageSize <= 0 {
		pageSize = 100
	}
	return &Importer{
		db:        db,
		client:    &http.Client{Timeout: cfg.FetchTimeout()},
		apiBase:   cfg.Europarl.APIBaseURL,
		userAgent: cfg.Europarl.UserAgent,
		pageSize:  pageSize,
		delay:     cfg.PolitenessDelay(),
	}
}

// ImportCurrent pages through the directory of current members, upserts
// every record, and marks members missing from the directory as no longer
// current. Historic MEPs are never touched.
func (im *Importer) ImportCurrent(ctx context.Context) (*Result, error) {
	r := &Result{}
	current := map[int64]struct{}{}
	now := database.NowMillis()

	for offset := 0; ; offset += im.pageSize {
		records, err := im.fetchPage(ctx, offset)
		if err != nil {
			return nil, fmt.Errorf("directory page at offset %d: %w", offset, err)
		}
		if len(records) == 0 {
			break
		}

		for _, rec := range records {
			mep, err := toMEP(rec, now)
			if err != nil {
				log.Printf("Skipping directory record %q: %v", rec.Identifier, err)
				r.Errors++
				continue
			}
			if err := im.db.UpsertMEP(mep); err != nil {
				return nil, fmt.Errorf("storing MEP %d: %w", mep.ID, err)
			}
			current[mep.ID] = struct{}{}
			r.Imported++
		}

		if len(records) < im.pageSize {
			break
		}
		time.Sleep(im.delay)
	}

	if len(current) > 0 {
		if err := im.db.MarkMEPsNotCurrent(current); err != nil {
			return nil, fmt.Errorf("retiring absent MEPs: %w", err)
		}
	}

	log.Printf("MEP import complete: %d members, %d errors", r.Imported, r.Errors)
	return r, nil
}

// Relink links speeches without an MEP to directory members by speaker
// name. Speakers matching no member become historic MEPs so every named
// speaker resolves to a stable id.
func (im *Importer) Relink() (*Result, error) {
	speeches, err := im.db.GetSpeechesWithoutMEP()
	if err != nil {
		return nil, fmt.Errorf("loading unlinked speeches: %w", err)
	}

	r := &Result{}
	resolved := map[string]int64{}
	for _, sp := range speeches {
		name := strings.TrimSpace(*sp.SpeakerName)
		if name == "" {
			continue
		}

		id, ok := resolved[name]
		if !ok {
			mep, err := im.db.FindMEPByName(name)
			if err != nil {
				return nil, fmt.Errorf("matching %q: %w", name, err)
			}
			if mep != nil {
				id = mep.ID
			} else {
				id, err = im.db.InsertHistoricMEP(name)
				if err != nil {
					return nil, fmt.Errorf("creating historic MEP %q: %w", name, err)
				}
				r.Historic++
			}
			resolved[name] = id
		}

		if err := im.db.SetSpeechMEP(sp.ID, id); err != nil {
			return nil, fmt.Errorf("linking speech %d: %w", sp.ID, err)
		}
		r.Linked++
	}

	log.Printf("Relink complete: %d speeches linked, %d historic MEPs created", r.Linked, r.Historic)
	return r, nil
}

func (im *Importer) fetchPage(ctx context.Context, offset int) ([]mepRecord, error) {
	q := url.Values{}
	q.Set("language", "en")
	q.Set("format", "application/ld+json")
	q.Set("limit", strconv.Itoa(im.pageSize))
	q.Set("offset", strconv.Itoa(offset))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, im.apiBase+"/meps?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", im.userAgent)
	req.Header.Set("Accept", "application/ld+json")

	resp, err := im.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("member directory API returned %d", resp.StatusCode)
	}

	var page mepPage
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, fmt.Errorf("decoding member directory: %w", err)
	}
	return page.Data, nil
}

func toMEP(rec mepRecord, now int64) (*database.MEP, error) {
	id, err := strconv.ParseInt(rec.Identifier, 10, 64)
	if err != nil || id <= 0 {
		return nil, fmt.Errorf("bad identifier %q", rec.Identifier)
	}
	if rec.Label == "" {
		return nil, fmt.Errorf("record %s has no label", rec.Identifier)
	}

	mep := &database.MEP{
		ID:          id,
		FullName:    rec.Label,
		IsCurrent:   true,
		Source:      "api",
		RefreshedAt: &now,
	}
	if rec.FamilyName != "" {
		mep.FamilyName = &rec.FamilyName
	}
	if rec.GivenName != "" {
		mep.GivenName = &rec.GivenName
	}
	if c := countryCode(rec.Country); c != "" {
		mep.Country = &c
	}
	if g := lastSegment(rec.PoliticalGroup); g != "" {
		mep.PoliticalGroup = &g
	}
	return mep, nil
}

// countryCode reduces an authority URI or bare code to a two-letter code.
func countryCode(v string) string {
	code := lastSegment(v)
	if two, ok := iso3to2[code]; ok {
		return two
	}
	if len(code) == 2 {
		return strings.ToUpper(code)
	}
	return code
}

func lastSegment(v string) string {
	v = strings.TrimSpace(v)
	if i := strings.LastIndex(v, "/"); i >= 0 {
		v = v[i+1:]
	}
	return v
}
