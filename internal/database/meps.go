package database

import (
	"database/sql"
	"fmt"
	"strings"
)

const mepColumns = "id, full_name, family_name, given_name, country, political_group, is_current, source, refreshed_at"

// UpsertMEP inserts or refreshes an MEP from the directory import. Rows are
// never deleted; historic MEPs are retained.
func (db *DB) UpsertMEP(m *MEP) error {
	_, err := db.conn.Exec(
		`INSERT INTO meps (id, full_name, family_name, given_name, country, political_group, is_current, source, refreshed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			full_name = excluded.full_name,
			family_name = excluded.family_name,
			given_name = excluded.given_name,
			country = excluded.country,
			political_group = excluded.political_group,
			is_current = excluded.is_current,
			refreshed_at = excluded.refreshed_at`,
		m.ID, m.FullName, m.FamilyName, m.GivenName, m.Country, m.PoliticalGroup,
		boolToInt(m.IsCurrent), m.Source, m.RefreshedAt,
	)
	return err
}

// GetMEP returns an MEP by ID, or nil.
func (db *DB) GetMEP(id int64) (*MEP, error) {
	row := db.conn.QueryRow("SELECT "+mepColumns+" FROM meps WHERE id = ?", id)
	m, err := scanMEP(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return m, err
}

// FindMEPByName matches a speaker name against full_name case-insensitively,
// trying the name as-is and with its tokens reversed ("Family Given" vs
// "Given Family").
func (db *DB) FindMEPByName(name string) (*MEP, error) {
	candidates := []string{name}
	if rev := reverseTokens(name); rev != name {
		candidates = append(candidates, rev)
	}
	for _, cand := range candidates {
		row := db.conn.QueryRow(
			"SELECT "+mepColumns+" FROM meps WHERE full_name LIKE ? LIMIT 1", cand,
		)
		m, err := scanMEP(row)
		if err == sql.ErrNoRows {
			continue
		}
		if err != nil {
			return nil, err
		}
		return m, nil
	}
	return nil, nil
}

// InsertHistoricMEP allocates an ID above 1,000,000 and records a synthetic
// MEP for a speaker the directory does not know.
func (db *DB) InsertHistoricMEP(fullName string) (int64, error) {
	tx, err := db.conn.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	var maxID int64
	if err := tx.QueryRow("SELECT COALESCE(MAX(id), 0) FROM meps").Scan(&maxID); err != nil {
		return 0, fmt.Errorf("reading max mep id: %w", err)
	}
	id := maxID + 1
	if id <= 1_000_000 {
		id = 1_000_001
	}

	now := NowMillis()
	if _, err := tx.Exec(
		`INSERT INTO meps (id, full_name, is_current, source, refreshed_at)
		VALUES (?, ?, 0, 'historic', ?)`,
		id, fullName, now,
	); err != nil {
		return 0, fmt.Errorf("inserting historic mep: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return id, nil
}

// MarkMEPsNotCurrent clears is_current for API-sourced MEPs absent from the
// given ID set. Called after a full directory refresh.
func (db *DB) MarkMEPsNotCurrent(currentIDs map[int64]struct{}) error {
	rows, err := db.conn.Query("SELECT id FROM meps WHERE source = 'api' AND is_current = 1")
	if err != nil {
		return err
	}
	defer rows.Close()

	var stale []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return err
		}
		if _, ok := currentIDs[id]; !ok {
			stale = append(stale, id)
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}

	for _, id := range stale {
		if _, err := db.conn.Exec("UPDATE meps SET is_current = 0 WHERE id = ?", id); err != nil {
			return err
		}
	}
	return nil
}

func reverseTokens(name string) string {
	parts := strings.Fields(name)
	for i, j := 0, len(parts)-1; i < j; i, j = i+1, j-1 {
		parts[i], parts[j] = parts[j], parts[i]
	}
	return strings.Join(parts, " ")
}

func scanMEP(row *sql.Row) (*MEP, error) {
	var m MEP
	var current int
	if err := row.Scan(&m.ID, &m.FullName, &m.FamilyName, &m.GivenName,
		&m.Country, &m.PoliticalGroup, &current, &m.Source, &m.RefreshedAt); err != nil {
		return nil, err
	}
	m.IsCurrent = current != 0
	return &m, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
