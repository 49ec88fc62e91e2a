package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"time"

	"github.com/eurowatch/eurowatch/internal/config"
	"github.com/eurowatch/eurowatch/internal/database"
)

// speechRecord is one entry from the Parliament speech-metadata API.
type speechRecord struct {
	ID              string        `json:"id"`
	ActivityDate    string        `json:"activity_date"`
	HadActivityType string        `json:"had_activity_type"`
	ActivityLabel   any           `json:"activity_label"`
	RecordedIn      []realization `json:"recorded_in_a_realization_of"`
}

type realization struct {
	Identifier       string `json:"identifier"`
	NotationSpeechID string `json:"notation_speechId"`
}

type speechPage struct {
	Data []speechRecord `json:"data"`
}

// Discoverer derives sitting dates from the Parliament speech-metadata API.
type Discoverer struct {
	db        *database.DB
	client    *http.Client
	apiBase   string
	userAgent string
	pageSize  int
	delay     time.Duration
}

// NewDiscoverer creates a Discoverer from config.
func NewDiscoverer(db *database.DB, cfg *config.Config) *Discoverer {
	pageSize := cfg.Europarl.DiscoveryPageSize
	if pageSize <= 0 {
		pageSize = 100
	}
	return &Discoverer{
		db:        db,
		client:    &http.Client{Timeout: cfg.FetchTimeout()},
		apiBase:   cfg.Europarl.APIBaseURL,
		userAgent: cfg.Europarl.UserAgent,
		pageSize:  pageSize,
		delay:     cfg.PolitenessDelay(),
	}
}

// DiscoverDates pages through recent speech records from the given date and
// returns the distinct activity dates ascending. Sitting rows are seeded
// with URI, document identifier and notation as a side effect.
func (d *Discoverer) DiscoverDates(ctx context.Context, from time.Time, maxPages int) ([]string, error) {
	seen := make(map[string]struct{})

	for page := 0; maxPages <= 0 || page < maxPages; page++ {
		records, err := d.fetchPage(ctx, from, page*d.pageSize)
		if err != nil {
			return nil, fmt.Errorf("discovery page %d: %w", page, err)
		}
		if len(records) == 0 {
			break
		}

		for _, rec := range records {
			date := rec.ActivityDate
			if len(date) > 10 {
				date = date[:10]
			}
			if date == "" {
				continue
			}

			if _, ok := seen[date]; !ok {
				seen[date] = struct{}{}
				id := rec.ID
				if id == "" {
					id = "sitting-" + date
				}
				var actType, label, docID, notation *string
				if rec.HadActivityType != "" {
					actType = &rec.HadActivityType
				}
				if s := labelString(rec.ActivityLabel); s != "" {
					label = &s
				}
				if len(rec.RecordedIn) > 0 {
					if rec.RecordedIn[0].Identifier != "" {
						docID = &rec.RecordedIn[0].Identifier
					}
					if rec.RecordedIn[0].NotationSpeechID != "" {
						notation = &rec.RecordedIn[0].NotationSpeechID
					}
				}
				if err := d.db.UpsertSitting(id, date, actType, label, docID, notation); err != nil {
					return nil, fmt.Errorf("seeding sitting %s: %w", date, err)
				}
			}
		}

		if len(records) < d.pageSize {
			break
		}
		time.Sleep(d.delay)
	}

	dates := make([]string, 0, len(seen))
	for date := range seen {
		dates = append(dates, date)
	}
	sort.Strings(dates)
	return dates, nil
}

func (d *Discoverer) fetchPage(ctx context.Context, from time.Time, offset int) ([]speechRecord, error) {
	q := url.Values{}
	q.Set("activity-date-from", from.Format("2006-01-02"))
	q.Set("search-language", "EN")
	q.Set("format", "application/ld+json")
	q.Set("offset", strconv.Itoa(offset))
	q.Set("limit", strconv.Itoa(d.pageSize))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.apiBase+"/speeches?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", d.userAgent)
	req.Header.Set("Accept", "application/ld+json")

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("speech metadata API returned %d", resp.StatusCode)
	}

	var page speechPage
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, fmt.Errorf("decoding speech metadata: %w", err)
	}
	return page.Data, nil
}

// labelString copes with activity_label being either a string or a
// language-keyed object in the ld+json payload.
func labelString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case map[string]any:
		if s, ok := t["en"].(string); ok {
			return s
		}
		for _, val := range t {
			if s, ok := val.(string); ok {
				return s
			}
		}
	}
	return ""
}
