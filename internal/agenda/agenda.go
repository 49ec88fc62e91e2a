// Package agenda parses the agenda headers out of a verbatim document and
// assigns each speech the agenda topic of the section it appears in.
package agenda

import (
	"fmt"
	"html"
	"log"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/eurowatch/eurowatch/internal/database"
	"github.com/eurowatch/eurowatch/internal/textnorm"
)

// The arrow image is the only stable marker of an agenda header across
// terms; class names and table layouts drift between sessions.
const headerMarker = "arrow_title_doc.gif"

const (
	minNormChars      = 50
	snippetLen        = 160
	coverageThreshold = 0.08
	minTokenLen       = 3
)

var snippetOffsets = []int{0, 40, 80, 120}

var (
	ordinalRe  = regexp.MustCompile(`^\s*(\d+(?:\.\d+)*)\.\s*`)
	citationRe = regexp.MustCompile(`\s*\([^()]*\)\s*$`)
	docHrefRe  = regexp.MustCompile(`/doceo/document/([A-Za-z0-9-]+)_EN\.html`)
	tagRe      = regexp.MustCompile(`<[^>]*>`)
)

// Topic is one agenda item parsed from a verbatim document.
type Topic struct {
	Ordinal string
	Title   string
	DocID   string
}

// section is the byte-span of the document between two consecutive agenda
// headers, reduced to normalized text for matching.
type section struct {
	topic  *Topic
	text   string
	tokens map[string]struct{}
}

// Result summarizes a topic-mapping run.
type Result struct {
	Sittings   int
	NoAgenda   int
	Assigned   int
	Unassigned int
	Skipped    int
}

// Mapper assigns agenda topics to parsed speeches.
type Mapper struct {
	db *database.DB
}

// NewMapper creates a topic mapper.
func NewMapper(db *database.DB) *Mapper {
	return &Mapper{db: db}
}

// MapAll maps topics for every sitting that has content and speeches.
func (m *Mapper) MapAll() (*Result, error) {
	sittings, err := m.db.GetSittingsWithContent()
	if err != nil {
		return nil, fmt.Errorf("loading sittings: %w", err)
	}

	total := &Result{}
	for _, s := range sittings {
		r, err := m.MapSitting(s.ID)
		if err != nil {
			log.Printf("Error mapping topics for %s: %v", s.ActivityDate, err)
			continue
		}
		total.Sittings += r.Sittings
		total.NoAgenda += r.NoAgenda
		total.Assigned += r.Assigned
		total.Unassigned += r.Unassigned
		total.Skipped += r.Skipped
	}

	log.Printf("Topic mapping complete: %d sittings (%d without agenda), %d assigned, %d unassigned, %d skipped",
		total.Sittings, total.NoAgenda, total.Assigned, total.Unassigned, total.Skipped)
	return total, nil
}

// MapSitting maps topics for one sitting. Speeches that already carry a
// topic are left alone, so the stage is re-runnable.
func (m *Mapper) MapSitting(sittingID string) (*Result, error) {
	sitting, err := m.db.GetSitting(sittingID)
	if err != nil {
		return nil, fmt.Errorf("loading sitting %s: %w", sittingID, err)
	}
	if sitting == nil || !sitting.HasContent() {
		return nil, fmt.Errorf("sitting %s has no content", sittingID)
	}

	r := &Result{Sittings: 1}

	sections, err := parseSections(*sitting.Content)
	if err != nil {
		return nil, fmt.Errorf("parsing agenda of %s: %w", sittingID, err)
	}
	if len(sections) == 0 {
		r.NoAgenda++
		return r, nil
	}

	speeches, err := m.db.GetSpeeches(sittingID)
	if err != nil {
		return nil, fmt.Errorf("loading speeches of %s: %w", sittingID, err)
	}

	for _, sp := range speeches {
		if sp.Topic != nil {
			continue
		}
		topic, ok := assign(sp.SpeechContent, sections)
		if !ok {
			if len(textnorm.ForMatching(sp.SpeechContent)) < minNormChars {
				r.Skipped++
			} else {
				r.Unassigned++
			}
			continue
		}
		if err := m.db.SetSpeechTopic(sp.ID, topic.Title); err != nil {
			return nil, fmt.Errorf("storing topic for speech %d: %w", sp.ID, err)
		}
		r.Assigned++
	}

	return r, nil
}

// ExtractTopics parses the deduplicated agenda items of a verbatim
// document, in document order.
func ExtractTopics(rawHTML string) ([]Topic, error) {
	sections, err := parseSections(rawHTML)
	if err != nil {
		return nil, err
	}

	var topics []Topic
	seen := map[*Topic]bool{}
	for _, sec := range sections {
		if !seen[sec.topic] {
			seen[sec.topic] = true
			topics = append(topics, *sec.topic)
		}
	}
	return topics, nil
}

// parseSections extracts the agenda headers and splits the document into
// the byte-spans between consecutive headers. Headers repeating the same
// (document, title) pair share one canonical Topic but keep their own
// spans.
func parseSections(rawHTML string) ([]section, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
	if err != nil {
		return nil, fmt.Errorf("parsing document: %w", err)
	}

	// The i-th marker image in the node tree corresponds to the i-th raw
	// occurrence of the marker filename; both walk the document in order.
	// A marker outside a real header (navigation strip, table of contents)
	// yields no topic, and its offset is discarded with it so the remaining
	// spans stay aligned.
	starts := markerOffsets(rawHTML)
	var headers []*Topic
	var headerStarts []int
	doc.Find("img[src*='" + headerMarker + "']").Each(func(i int, img *goquery.Selection) {
		if i >= len(starts) {
			return
		}
		container := img.Closest("table")
		if container.Length() == 0 {
			container = img.Parent()
		}
		if t := headerTopic(container); t != nil {
			headers = append(headers, t)
			headerStarts = append(headerStarts, starts[i])
		}
	})
	if len(headers) == 0 {
		return nil, nil
	}

	canonical := map[string]*Topic{}
	sections := make([]section, 0, len(headers))
	for i := range headers {
		end := len(rawHTML)
		if i+1 < len(headerStarts) {
			end = headerStarts[i+1]
		}

		t := headers[i]
		key := t.DocID + "|" + textnorm.ForMatching(t.Title)
		if c, ok := canonical[key]; ok {
			t = c
		} else {
			canonical[key] = t
		}

		text := normalizeHTML(rawHTML[headerStarts[i]:end])
		sections = append(sections, section{
			topic:  t,
			text:   text,
			tokens: textnorm.Tokens(text, minTokenLen),
		})
	}
	return sections, nil
}

// headerTopic reads one agenda header out of its marker's container.
func headerTopic(container *goquery.Selection) *Topic {
	text := textnorm.CollapseSpaces(container.Text())

	m := ordinalRe.FindStringSubmatch(text)
	if m == nil {
		return nil
	}
	title := citationRe.ReplaceAllString(text[len(m[0]):], "")
	title = strings.TrimSpace(title)
	if title == "" {
		return nil
	}

	t := &Topic{Ordinal: m[1], Title: title}
	container.Find("a[href]").EachWithBreak(func(_ int, a *goquery.Selection) bool {
		href, _ := a.Attr("href")
		if dm := docHrefRe.FindStringSubmatch(href); dm != nil {
			t.DocID = dm[1]
			return false
		}
		return true
	})
	return t
}

func markerOffsets(rawHTML string) []int {
	var starts []int
	for from := 0; ; {
		i := strings.Index(rawHTML[from:], headerMarker)
		if i < 0 {
			break
		}
		starts = append(starts, from+i)
		from += i + len(headerMarker)
	}
	return starts
}

// normalizeHTML reduces an HTML span to matching-normalized plain text.
func normalizeHTML(span string) string {
	return textnorm.ForMatching(html.UnescapeString(tagRe.ReplaceAllString(span, " ")))
}

// assign finds the agenda section a speech belongs to. Exact inclusion of
// a sliding snippet wins outright; otherwise the first best section by
// token coverage wins, provided coverage reaches the threshold.
func assign(speech string, sections []section) (*Topic, bool) {
	norm := textnorm.ForMatching(speech)
	runes := []rune(norm)
	if len(runes) < minNormChars {
		return nil, false
	}

	for _, off := range snippetOffsets {
		if off+snippetLen > len(runes) {
			break
		}
		snippet := string(runes[off : off+snippetLen])
		for i := range sections {
			if strings.Contains(sections[i].text, snippet) {
				return sections[i].topic, true
			}
		}
	}

	tokens := textnorm.Tokens(norm, minTokenLen)
	if len(tokens) == 0 {
		return nil, false
	}

	best := -1
	bestScore := 0.0
	for i := range sections {
		hits := 0
		for tok := range tokens {
			if _, ok := sections[i].tokens[tok]; ok {
				hits++
			}
		}
		score := float64(hits) / float64(len(tokens))
		if score > bestScore {
			bestScore = score
			best = i
		}
	}
	if best < 0 || bestScore < coverageThreshold {
		return nil, false
	}
	return sections[best].topic, true
}
