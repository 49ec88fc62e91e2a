// Package analytics precomputes the aggregations behind the dashboard so
// every request is a lookup instead of a table scan.
package analytics

import (
	"database/sql"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/eurowatch/eurowatch/internal/database"
	"github.com/eurowatch/eurowatch/internal/textnorm"
)

const (
	topGroups    = 10
	topCountries = 20
	topTopics    = 10
	topFocusRows = 10
)

// Timeseries is topic counts per period in chart form.
type Timeseries struct {
	Labels   []string  `json:"labels"`
	Datasets []Dataset `json:"datasets"`
}

// Dataset is one topic's counts, aligned with the Labels of its Timeseries.
type Dataset struct {
	Label string `json:"label"`
	Data  []int  `json:"data"`
}

// Matrix is a topic-by-key count table. Rows is indexed [topic][key].
type Matrix struct {
	Topics []string `json:"topics"`
	Keys   []string `json:"keys"`
	Rows   [][]int  `json:"rows"`
}

// LanguageCount is one language's share of speeches.
type LanguageCount struct {
	Language string `json:"language"`
	Count    int    `json:"count"`
}

// TopicCount is one macro topic's total.
type TopicCount struct {
	Topic string `json:"topic"`
	Count int    `json:"count"`
}

// FocusCount is one (topic, specific focus) pair's total.
type FocusCount struct {
	Topic string `json:"topic"`
	Focus string `json:"focus"`
	Count int    `json:"count"`
}

// Overview is the dashboard headline numbers.
type Overview struct {
	TotalSpeeches     int          `json:"totalSpeeches"`
	ClassifiedCount   int          `json:"classifiedCount"`
	ClassifiedPercent float64      `json:"classifiedPercent"`
	TopTopics         []TopicCount `json:"topTopics"`
	TopFocusPairs     []FocusCount `json:"topFocusPairs"`
}

// Data is the full precomputed cache payload.
type Data struct {
	Overview  Overview        `json:"overview"`
	Monthly   Timeseries      `json:"monthly"`
	Quarterly Timeseries      `json:"quarterly"`
	ByGroup   Matrix          `json:"byGroup"`
	ByCountry Matrix          `json:"byCountry"`
	Languages []LanguageCount `json:"languages"`

	// variants maps each display topic to the raw macro_topic spellings it
	// covers, so filters match HTML-entity and dash variants.
	variants map[string][]string
}

// Progress reports how far a warming run has come.
type Progress struct {
	Stage   string `json:"stage"`
	Percent int    `json:"percent"`
	Message string `json:"message"`
}

// Cache holds the precomputed analytics for the server process. One warmer
// at a time; readers see either the previous payload or the new one, never
// a half-built state.
type Cache struct {
	db *database.DB

	mu          sync.RWMutex
	data        *Data
	lastUpdated time.Time
	isWarming   bool
	progress    Progress
}

// NewCache creates a cold cache over the database.
func NewCache(db *database.DB) *Cache {
	return &Cache{db: db}
}

// Data returns the cached payload, or nil while cold.
func (c *Cache) Data() *Data {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.data
}

// Status returns readiness and warming progress for the status probe.
func (c *Cache) Status() (ready, warming bool, lastUpdated time.Time, progress Progress) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.data != nil, c.isWarming, c.lastUpdated, c.progress
}

// Warm rebuilds the cache from the database. Concurrent calls beyond the
// first are rejected.
func (c *Cache) Warm() error {
	c.mu.Lock()
	if c.isWarming {
		c.mu.Unlock()
		return fmt.Errorf("cache warming already in progress")
	}
	c.isWarming = true
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.isWarming = false
		c.mu.Unlock()
	}()

	data, err := Build(c.db, c.setProgress)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.data = data
	c.lastUpdated = time.Now()
	c.progress = Progress{Stage: "done", Percent: 100, Message: "cache warmed"}
	c.mu.Unlock()

	if err := c.db.SetCacheStatus(data.Overview.TotalSpeeches); err != nil {
		log.Printf("Error recording cache status: %v", err)
	}
	return nil
}

func (c *Cache) setProgress(stage string, percent int, message string) {
	c.mu.Lock()
	c.progress = Progress{Stage: stage, Percent: percent, Message: message}
	c.mu.Unlock()
}

// Languages returns language counts, optionally filtered to a topic set.
// Served from the cache when warm; cold reads fall through to the same SQL
// the warmer uses.
func (c *Cache) Languages(topics []string) ([]LanguageCount, error) {
	c.mu.RLock()
	data := c.data
	c.mu.RUnlock()

	if data != nil && len(topics) == 0 {
		return data.Languages, nil
	}

	var raw []string
	if data != nil {
		for _, t := range topics {
			raw = append(raw, data.variants[t]...)
		}
		if len(raw) == 0 {
			return nil, nil
		}
	} else {
		raw = topics
	}
	return languageCounts(c.db.Conn(), raw)
}

type progressFunc func(stage string, percent int, message string)

// Build runs every aggregation scan and assembles the cache payload.
func Build(db *database.DB, progress progressFunc) (*Data, error) {
	if progress == nil {
		progress = func(string, int, string) {}
	}
	conn := db.Conn()
	data := &Data{}

	progress("variants", 0, "collapsing topic variants")
	display, variants, err := topicVariants(conn)
	if err != nil {
		return nil, fmt.Errorf("building topic variants: %w", err)
	}
	data.variants = variants

	progress("timeseries", 15, "counting topics per period")
	monthly, quarterly, err := timeseries(conn, display)
	if err != nil {
		return nil, fmt.Errorf("building timeseries: %w", err)
	}
	data.Monthly, data.Quarterly = monthly, quarterly

	progress("groups", 45, "counting topics per group")
	data.ByGroup, err = matrixQuery(conn, display, "political_group_std", topGroups, false)
	if err != nil {
		return nil, fmt.Errorf("building group matrix: %w", err)
	}

	progress("countries", 60, "counting topics per country")
	data.ByCountry, err = matrixQuery(conn, display, "country", topCountries, true)
	if err != nil {
		return nil, fmt.Errorf("building country matrix: %w", err)
	}

	progress("languages", 75, "counting languages")
	data.Languages, err = languageCounts(conn, nil)
	if err != nil {
		return nil, fmt.Errorf("building language counts: %w", err)
	}

	progress("overview", 90, "computing overview")
	data.Overview, err = overview(conn, display)
	if err != nil {
		return nil, fmt.Errorf("building overview: %w", err)
	}

	return data, nil
}

// topicVariants maps every raw macro_topic spelling onto one display title
// per normalized form. The first spelling seen becomes the display title.
func topicVariants(conn *sql.DB) (display map[string]string, variants map[string][]string, err error) {
	rows, err := conn.Query(
		"SELECT DISTINCT macro_topic FROM individual_speeches WHERE macro_topic IS NOT NULL ORDER BY macro_topic")
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	display = map[string]string{}   // raw spelling -> display title
	variants = map[string][]string{} // display title -> raw spellings
	byNorm := map[string]string{}   // normalized -> display title
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, nil, err
		}
		norm := textnorm.ForMatching(raw)
		title, ok := byNorm[norm]
		if !ok {
			title = raw
			byNorm[norm] = title
		}
		display[raw] = title
		variants[title] = append(variants[title], raw)
	}
	return display, variants, rows.Err()
}

// timeseries computes topic-per-period counts for months and quarters in
// one scan, indexed through a topic|period hash.
func timeseries(conn *sql.DB, display map[string]string) (Timeseries, Timeseries, error) {
	rows, err := conn.Query(
		`SELECT i.macro_topic, SUBSTR(s.activity_date, 1, 7), COUNT(*)
		FROM individual_speeches i JOIN sittings s ON i.sitting_id = s.id
		WHERE i.macro_topic IS NOT NULL
		GROUP BY 1, 2`)
	if err != nil {
		return Timeseries{}, Timeseries{}, err
	}
	defer rows.Close()

	monthly := map[string]int{}
	quarterly := map[string]int{}
	monthSet := map[string]struct{}{}
	quarterSet := map[string]struct{}{}
	topicSet := map[string]struct{}{}
	for rows.Next() {
		var raw, month string
		var n int
		if err := rows.Scan(&raw, &month, &n); err != nil {
			return Timeseries{}, Timeseries{}, err
		}
		topic := display[raw]
		quarter := toQuarter(month)
		topicSet[topic] = struct{}{}
		monthSet[month] = struct{}{}
		quarterSet[quarter] = struct{}{}
		monthly[topic+"|"+month] += n
		quarterly[topic+"|"+quarter] += n
	}
	if err := rows.Err(); err != nil {
		return Timeseries{}, Timeseries{}, err
	}

	topics := sortedKeys(topicSet)
	return assemble(topics, sortedKeys(monthSet), monthly),
		assemble(topics, sortedKeys(quarterSet), quarterly), nil
}

func assemble(topics, periods []string, counts map[string]int) Timeseries {
	ts := Timeseries{Labels: periods}
	for _, topic := range topics {
		data := make([]int, len(periods))
		for i, p := range periods {
			data[i] = counts[topic+"|"+p]
		}
		ts.Datasets = append(ts.Datasets, Dataset{Label: topic, Data: data})
	}
	return ts
}

// toQuarter converts "2024-05" to "2024-Q2". Malformed periods pass through.
func toQuarter(month string) string {
	if len(month) != 7 {
		return month
	}
	switch month[5:] {
	case "01", "02", "03":
		return month[:4] + "-Q1"
	case "04", "05", "06":
		return month[:4] + "-Q2"
	case "07", "08", "09":
		return month[:4] + "-Q3"
	default:
		return month[:4] + "-Q4"
	}
}

// matrixQuery builds a topic-by-key matrix for the top-N keys by total
// speech count. With joinMEPs the key column comes from the meps table.
func matrixQuery(conn *sql.DB, display map[string]string, keyCol string, topN int, joinMEPs bool) (Matrix, error) {
	from := "FROM individual_speeches i"
	col := "i." + keyCol
	if joinMEPs {
		from += " JOIN meps m ON i.mep_id = m.id"
		col = "m." + keyCol
	}

	keys, err := topKeys(conn, from, col, topN)
	if err != nil {
		return Matrix{}, err
	}
	if len(keys) == 0 {
		return Matrix{}, nil
	}

	rows, err := conn.Query(fmt.Sprintf(
		`SELECT i.macro_topic, %s, COUNT(*) %s
		WHERE i.macro_topic IS NOT NULL AND %s IS NOT NULL
		GROUP BY 1, 2`, col, from, col))
	if err != nil {
		return Matrix{}, err
	}
	defer rows.Close()

	keyIdx := map[string]int{}
	for i, k := range keys {
		keyIdx[k] = i
	}

	counts := map[string][]int{}
	topicSet := map[string]struct{}{}
	for rows.Next() {
		var raw, key string
		var n int
		if err := rows.Scan(&raw, &key, &n); err != nil {
			return Matrix{}, err
		}
		idx, ok := keyIdx[key]
		if !ok {
			continue
		}
		topic := display[raw]
		topicSet[topic] = struct{}{}
		if counts[topic] == nil {
			counts[topic] = make([]int, len(keys))
		}
		counts[topic][idx] += n
	}
	if err := rows.Err(); err != nil {
		return Matrix{}, err
	}

	m := Matrix{Topics: sortedKeys(topicSet), Keys: keys}
	for _, topic := range m.Topics {
		m.Rows = append(m.Rows, counts[topic])
	}
	return m, nil
}

func topKeys(conn *sql.DB, from, col string, topN int) ([]string, error) {
	rows, err := conn.Query(fmt.Sprintf(
		`SELECT %s, COUNT(*) AS n %s
		WHERE %s IS NOT NULL
		GROUP BY 1 ORDER BY n DESC, 1 LIMIT %d`, col, from, col, topN))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		var n int
		if err := rows.Scan(&k, &n); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

func languageCounts(conn *sql.DB, rawTopics []string) ([]LanguageCount, error) {
	query := "SELECT language, COUNT(*) FROM individual_speeches WHERE language IS NOT NULL"
	var args []any
	if len(rawTopics) > 0 {
		query += " AND macro_topic IN (?" + strings.Repeat(",?", len(rawTopics)-1) + ")"
		for _, t := range rawTopics {
			args = append(args, t)
		}
	}
	query += " GROUP BY 1 ORDER BY 2 DESC, 1"

	rows, err := conn.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []LanguageCount
	for rows.Next() {
		var lc LanguageCount
		if err := rows.Scan(&lc.Language, &lc.Count); err != nil {
			return nil, err
		}
		out = append(out, lc)
	}
	return out, rows.Err()
}

func overview(conn *sql.DB, display map[string]string) (Overview, error) {
	var o Overview
	err := conn.QueryRow(
		`SELECT COUNT(*), COUNT(macro_topic) FROM individual_speeches`,
	).Scan(&o.TotalSpeeches, &o.ClassifiedCount)
	if err != nil {
		return o, err
	}
	if o.TotalSpeeches > 0 {
		o.ClassifiedPercent = 100 * float64(o.ClassifiedCount) / float64(o.TotalSpeeches)
	}

	topicRows, err := conn.Query(
		`SELECT macro_topic, COUNT(*) FROM individual_speeches
		WHERE macro_topic IS NOT NULL GROUP BY 1`)
	if err != nil {
		return o, err
	}
	defer topicRows.Close()

	totals := map[string]int{}
	for topicRows.Next() {
		var raw string
		var n int
		if err := topicRows.Scan(&raw, &n); err != nil {
			return o, err
		}
		totals[display[raw]] += n
	}
	if err := topicRows.Err(); err != nil {
		return o, err
	}
	for topic, n := range totals {
		o.TopTopics = append(o.TopTopics, TopicCount{Topic: topic, Count: n})
	}
	sort.Slice(o.TopTopics, func(i, j int) bool {
		if o.TopTopics[i].Count != o.TopTopics[j].Count {
			return o.TopTopics[i].Count > o.TopTopics[j].Count
		}
		return o.TopTopics[i].Topic < o.TopTopics[j].Topic
	})
	if len(o.TopTopics) > topTopics {
		o.TopTopics = o.TopTopics[:topTopics]
	}

	focusRows, err := conn.Query(fmt.Sprintf(
		`SELECT macro_topic, macro_specific_focus, COUNT(*) AS n FROM individual_speeches
		WHERE macro_topic IS NOT NULL AND macro_specific_focus IS NOT NULL
		GROUP BY 1, 2 ORDER BY n DESC, 1, 2 LIMIT %d`, topFocusRows))
	if err != nil {
		return o, err
	}
	defer focusRows.Close()

	for focusRows.Next() {
		var fc FocusCount
		var raw string
		if err := focusRows.Scan(&raw, &fc.Focus, &fc.Count); err != nil {
			return o, err
		}
		fc.Topic = display[raw]
		o.TopFocusPairs = append(o.TopFocusPairs, fc)
	}
	return o, focusRows.Err()
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
