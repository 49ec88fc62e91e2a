// Package server exposes the read-only dashboard API over the analytics
// cache, plus a CSV export of the speech table.
package server

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/eurowatch/eurowatch/internal/analytics"
	"github.com/eurowatch/eurowatch/internal/database"
)

const exportBatchSize = 5000

// Server is the HTTP server for the dashboard API.
type Server struct {
	db    *database.DB
	cache *analytics.Cache
	mux   *http.ServeMux
}

// New creates a new Server over a database and its analytics cache.
func New(db *database.DB, cache *analytics.Cache) *Server {
	s := &Server{db: db, cache: cache, mux: http.NewServeMux()}
	s.routes()
	return s
}

// Handler returns the HTTP handler for the server.
func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) routes() {
	s.mux.HandleFunc("/api/status", s.handleStatus)
	s.mux.HandleFunc("/api/overview", s.handleOverview)
	s.mux.HandleFunc("/api/timeseries", s.handleTimeseries)
	s.mux.HandleFunc("/api/groups", s.handleGroups)
	s.mux.HandleFunc("/api/countries", s.handleCountries)
	s.mux.HandleFunc("/api/languages", s.handleLanguages)
	s.mux.HandleFunc("/api/cache/refresh", s.handleRefresh)
	s.mux.HandleFunc("/api/export.csv", s.handleExport)
}

type meta struct {
	GeneratedAt  string `json:"generatedAt"`
	CacheUpdated string `json:"cacheUpdated,omitempty"`
}

type envelope struct {
	Data any  `json:"data"`
	Meta meta `json:"meta"`
}

func (s *Server) writeJSON(w http.ResponseWriter, data any) {
	m := meta{GeneratedAt: time.Now().UTC().Format(time.RFC3339)}
	if _, _, updated, _ := s.cache.Status(); !updated.IsZero() {
		m.CacheUpdated = updated.UTC().Format(time.RFC3339)
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	if err := json.NewEncoder(w).Encode(envelope{Data: data, Meta: m}); err != nil {
		log.Printf("Error encoding response: %v", err)
	}
}

func writeError(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// payload returns the cache data, falling through to a fresh build when
// the cache is cold. The fall-through runs the same SQL the warmer uses
// but does not populate the cache; the cache stays owned by its warmer.
func (s *Server) payload() (*analytics.Data, error) {
	if data := s.cache.Data(); data != nil {
		return data, nil
	}
	return analytics.Build(s.db, nil)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	ready, warming, updated, progress := s.cache.Status()

	stats, err := s.db.GetStats()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "reading database stats")
		return
	}

	status := map[string]any{
		"ready":    ready,
		"warming":  warming,
		"progress": progress,
		"stats":    stats,
	}
	if !updated.IsZero() {
		status["lastUpdated"] = updated.UTC().Format(time.RFC3339)
	}
	s.writeJSON(w, status)
}

func (s *Server) handleOverview(w http.ResponseWriter, r *http.Request) {
	data, err := s.payload()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "building overview")
		return
	}
	s.writeJSON(w, data.Overview)
}

func (s *Server) handleTimeseries(w http.ResponseWriter, r *http.Request) {
	data, err := s.payload()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "building timeseries")
		return
	}
	switch r.URL.Query().Get("interval") {
	case "", "month":
		s.writeJSON(w, data.Monthly)
	case "quarter":
		s.writeJSON(w, data.Quarterly)
	default:
		writeError(w, http.StatusBadRequest, "interval must be month or quarter")
	}
}

func (s *Server) handleGroups(w http.ResponseWriter, r *http.Request) {
	data, err := s.payload()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "building group matrix")
		return
	}
	s.writeJSON(w, data.ByGroup)
}

func (s *Server) handleCountries(w http.ResponseWriter, r *http.Request) {
	data, err := s.payload()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "building country matrix")
		return
	}
	s.writeJSON(w, data.ByCountry)
}

func (s *Server) handleLanguages(w http.ResponseWriter, r *http.Request) {
	var topics []string
	if raw := r.URL.Query().Get("topics"); raw != "" {
		for _, t := range strings.Split(raw, ",") {
			if t = strings.TrimSpace(t); t != "" {
				topics = append(topics, t)
			}
		}
	}

	counts, err := s.cache.Languages(topics)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "counting languages")
		return
	}
	s.writeJSON(w, counts)
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "POST required")
		return
	}

	go func() {
		if err := s.cache.Warm(); err != nil {
			log.Printf("Cache refresh failed: %v", err)
		}
	}()
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(envelope{Data: map[string]string{"status": "warming"}})
}

// exportColumns maps requestable field names to their SQL expressions.
var exportColumns = map[string]string{
	"id":                   "i.id",
	"sitting_date":         "s.activity_date",
	"speech_order":         "i.speech_order",
	"speaker_name":         "i.speaker_name",
	"political_group_raw":  "i.political_group_raw",
	"political_group_std":  "i.political_group_std",
	"political_group_kind": "i.political_group_kind",
	"title":                "i.title",
	"language":             "i.language",
	"topic":                "i.topic",
	"macro_topic":          "i.macro_topic",
	"macro_specific_focus": "i.macro_specific_focus",
	"mep_id":               "i.mep_id",
	"speech_content":       "i.speech_content",
}

var defaultExportFields = []string{
	"id", "sitting_date", "speech_order", "speaker_name",
	"political_group_std", "language", "topic", "macro_topic", "speech_content",
}

// ExportFields validates a comma-separated field list against the
// exportable columns. An empty list selects the default field set.
func ExportFields(raw string) ([]string, error) {
	if raw == "" {
		return defaultExportFields, nil
	}
	var fields []string
	for _, f := range strings.Split(raw, ",") {
		f = strings.TrimSpace(f)
		if _, ok := exportColumns[f]; !ok {
			return nil, fmt.Errorf("unknown field %q", f)
		}
		fields = append(fields, f)
	}
	return fields, nil
}

// ExportCSV streams the speech table as CSV in the given field order,
// reading in bounded batches so a full-corpus export never holds the
// table in memory. The output starts with a UTF-8 BOM so spreadsheet
// tools pick up the encoding.
func ExportCSV(db *database.DB, w io.Writer, fields []string) error {
	cols := make([]string, len(fields))
	for i, f := range fields {
		cols[i] = exportColumns[f]
	}

	if _, err := w.Write([]byte{0xEF, 0xBB, 0xBF}); err != nil {
		return err
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(fields); err != nil {
		return err
	}

	query := fmt.Sprintf(
		`SELECT i.id, %s FROM individual_speeches i
		JOIN sittings s ON i.sitting_id = s.id
		WHERE i.id > ? ORDER BY i.id LIMIT %d`,
		strings.Join(cols, ", "), exportBatchSize)

	lastID := int64(0)
	for {
		n, err := exportBatch(db, cw, query, &lastID, len(fields))
		if err != nil {
			return err
		}
		if n < exportBatchSize {
			break
		}
	}
	cw.Flush()
	return cw.Error()
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	fields, err := ExportFields(r.URL.Query().Get("fields"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="speeches.csv"`)
	if err := ExportCSV(s.db, w, fields); err != nil {
		log.Printf("Export aborted: %v", err)
	}
}

func exportBatch(db *database.DB, cw *csv.Writer, query string, lastID *int64, width int) (int, error) {
	rows, err := db.Conn().Query(query, *lastID)
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	n := 0
	record := make([]string, width)
	values := make([]any, width+1)
	var id int64
	values[0] = &id
	raw := make([]*string, width)
	for i := range raw {
		values[i+1] = &raw[i]
	}

	for rows.Next() {
		if err := rows.Scan(values...); err != nil {
			return n, err
		}
		for i, v := range raw {
			if v == nil {
				record[i] = ""
			} else {
				record[i] = *v
			}
		}
		if err := cw.Write(record); err != nil {
			return n, err
		}
		*lastID = id
		n++
	}
	return n, rows.Err()
}

// Serve starts the HTTP server on the given port.
func Serve(db *database.DB, cache *analytics.Cache, port int) error {
	srv := New(db, cache)
	addr := fmt.Sprintf("127.0.0.1:%d", port)
	log.Printf("Server listening on http://%s", addr)
	return http.ListenAndServe(addr, srv.Handler())
}
