// Package fetch retrieves verbatim CRE documents from the Parliament
// document site and stores them on sitting rows.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"

	"github.com/eurowatch/eurowatch/internal/config"
	"github.com/eurowatch/eurowatch/internal/database"
)

// ErrNoSitting marks a date the Parliament has no verbatim document for.
// A 404 from the document site is terminal; the date is never retried.
var ErrNoSitting = errors.New("no sitting for date")

// State is the per-date outcome of a fetch attempt. Stored and Missing are
// terminal; Failed allows retry in a later run.
type State int

const (
	StateUnknown State = iota
	StateAttempting
	StateStored
	StateMissing
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateAttempting:
		return "attempting"
	case StateStored:
		return "stored"
	case StateMissing:
		return "missing"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Result aggregates a multi-date fetch run.
type Result struct {
	Stored  int
	Missing int
	Failed  int
	Skipped int
}

// Fetcher downloads CRE documents with retry, politeness delay and a
// selector fallback chain for validity checking.
type Fetcher struct {
	db          *database.DB
	client      *http.Client
	baseURL     string
	userAgent   string
	delay       time.Duration
	maxAttempts int
}

// New creates a Fetcher from config.
func New(db *database.DB, cfg *config.Config) *Fetcher {
	return &Fetcher{
		db:          db,
		client:      &http.Client{Timeout: cfg.FetchTimeout()},
		baseURL:     cfg.Europarl.DocumentBaseURL,
		userAgent:   cfg.Europarl.UserAgent,
		delay:       cfg.PolitenessDelay(),
		maxAttempts: 3,
	}
}

// FetchDate retrieves and stores the verbatim document for one date.
// Fetching a date whose sitting already holds usable content is a no-op
// unless force is set.
func (f *Fetcher) FetchDate(ctx context.Context, date time.Time, force bool) (State, error) {
	dateStr := date.Format("2006-01-02")

	existing, err := f.db.GetSittingByDate(dateStr)
	if err != nil {
		return StateFailed, fmt.Errorf("checking sitting %s: %w", dateStr, err)
	}
	if existing != nil && existing.HasContent() && !force {
		return StateStored, nil
	}

	docURL, err := VerbatimURL(f.baseURL, date)
	if err != nil {
		return StateFailed, err
	}

	html, err := f.get(ctx, docURL)
	if errors.Is(err, ErrNoSitting) {
		return StateMissing, nil
	}
	if err != nil {
		return StateFailed, fmt.Errorf("fetching %s: %w", docURL, err)
	}

	text := ExtractText(html)
	if len(text) < 100 {
		// Last link in the fallback chain: the table-of-contents page.
		tocURL, tocErr := TOCURL(f.baseURL, date)
		if tocErr == nil {
			time.Sleep(f.delay)
			if tocHTML, tocErr := f.get(ctx, tocURL); tocErr == nil {
				if tocText := ExtractText(tocHTML); len(tocText) >= 100 {
					html = tocHTML
					text = tocText
				}
			}
		}
	}
	if len(text) < 100 {
		return StateFailed, fmt.Errorf("document for %s has no extractable body text", dateStr)
	}

	id := "sitting-" + dateStr
	if existing != nil {
		id = existing.ID
	}
	if err := f.db.StoreSittingContent(id, dateStr, html, force); err != nil {
		return StateFailed, fmt.Errorf("storing sitting %s: %w", dateStr, err)
	}
	return StateStored, nil
}

// FetchRange fetches every date in [from, to] inclusive.
func (f *Fetcher) FetchRange(ctx context.Context, from, to time.Time, force bool) *Result {
	r := &Result{}
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		if ctx.Err() != nil {
			return r
		}

		dateStr := d.Format("2006-01-02")
		existing, err := f.db.GetSittingByDate(dateStr)
		if err == nil && existing != nil && existing.HasContent() && !force {
			r.Skipped++
			continue
		}

		state, err := f.FetchDate(ctx, d, force)
		switch state {
		case StateStored:
			r.Stored++
			log.Printf("Stored verbatim for %s", dateStr)
		case StateMissing:
			r.Missing++
			log.Printf("No sitting on %s", dateStr)
		default:
			r.Failed++
			log.Printf("Fetch failed for %s: %v", dateStr, err)
		}
		time.Sleep(f.delay)
	}
	return r
}

// get performs one HTTP GET with exponential backoff on transport errors
// and 5xx. A 404 returns ErrNoSitting without retrying.
func (f *Fetcher) get(ctx context.Context, rawURL string) (string, error) {
	var lastErr error
	for attempt := 0; attempt < f.maxAttempts; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(1<<attempt) * time.Second
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return "", err
		}
		req.Header.Set("User-Agent", f.userAgent)

		resp, err := f.client.Do(req)
		if err != nil {
			lastErr = err
			continue
		}

		body, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusNotFound:
			return "", ErrNoSitting
		case resp.StatusCode >= 500:
			lastErr = fmt.Errorf("server returned %d", resp.StatusCode)
			continue
		case resp.StatusCode != http.StatusOK:
			return "", fmt.Errorf("unexpected status %d", resp.StatusCode)
		case readErr != nil:
			lastErr = readErr
			continue
		}
		return string(body), nil
	}
	return "", fmt.Errorf("after %d attempts: %w", f.maxAttempts, lastErr)
}

// contentSelectors are tried in order before falling back to paragraph
// joining and whole-body extraction.
var contentSelectors = []string{"#website-body", ".contents", "#content"}

// ExtractText pulls the plain body text out of a CRE document, walking the
// fallback chain: known containers, all <p> joined, readability, full body.
func ExtractText(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ""
	}

	for _, sel := range contentSelectors {
		if text := squeeze(doc.Find(sel).Text()); len(text) >= 100 {
			return text
		}
	}

	var parts []string
	doc.Find("p").Each(func(_ int, s *goquery.Selection) {
		if t := strings.TrimSpace(s.Text()); t != "" {
			parts = append(parts, t)
		}
	})
	if text := squeeze(strings.Join(parts, "\n")); len(text) >= 100 {
		return text
	}

	base, _ := url.Parse("https://www.europarl.europa.eu/")
	if article, err := readability.FromReader(strings.NewReader(html), base); err == nil {
		if text := squeeze(article.TextContent); len(text) >= 100 {
			return text
		}
	}

	return squeeze(doc.Find("body").Text())
}

// squeeze trims lines and drops blank ones, keeping line boundaries intact
// for the splitter.
func squeeze(s string) string {
	lines := strings.Split(s, "\n")
	out := lines[:0]
	for _, line := range lines {
		if t := strings.TrimSpace(line); t != "" {
			out = append(out, t)
		}
	}
	return strings.Join(out, "\n")
}
