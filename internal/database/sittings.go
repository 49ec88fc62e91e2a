package database

import "database/sql"

const sittingColumns = "id, activity_date, activity_type, label, content, document_id, notation_id, fetched_at"

// UpsertSitting inserts a sitting row or updates its metadata. Content is
// not touched here; use StoreSittingContent for that.
func (db *DB) UpsertSitting(id, activityDate string, activityType, label, documentID, notationID *string) error {
	_, err := db.conn.Exec(
		`INSERT INTO sittings (id, activity_date, activity_type, label, document_id, notation_id)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(activity_date) DO UPDATE SET
			activity_type = COALESCE(excluded.activity_type, activity_type),
			label = COALESCE(excluded.label, label),
			document_id = COALESCE(excluded.document_id, document_id),
			notation_id = COALESCE(excluded.notation_id, notation_id)`,
		id, activityDate, activityType, label, documentID, notationID,
	)
	return err
}

// StoreSittingContent writes the verbatim HTML for a date, creating the row
// if discovery never saw it. Existing usable content is only replaced when
// force is set.
func (db *DB) StoreSittingContent(id, activityDate, content string, force bool) error {
	if force {
		_, err := db.conn.Exec(
			`INSERT INTO sittings (id, activity_date, content, fetched_at) VALUES (?, ?, ?, ?)
			ON CONFLICT(activity_date) DO UPDATE SET content = excluded.content, fetched_at = excluded.fetched_at`,
			id, activityDate, content, NowMillis(),
		)
		return err
	}
	_, err := db.conn.Exec(
		`INSERT INTO sittings (id, activity_date, content, fetched_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(activity_date) DO UPDATE SET
			content = excluded.content, fetched_at = excluded.fetched_at
		WHERE sittings.content IS NULL OR LENGTH(sittings.content) < 100`,
		id, activityDate, content, NowMillis(),
	)
	return err
}

// GetSittingByDate returns the sitting for a date, or nil.
func (db *DB) GetSittingByDate(date string) (*Sitting, error) {
	row := db.conn.QueryRow(
		"SELECT "+sittingColumns+" FROM sittings WHERE activity_date = ?", date,
	)
	return scanSitting(row)
}

// GetSitting returns a sitting by primary key, or nil.
func (db *DB) GetSitting(id string) (*Sitting, error) {
	row := db.conn.QueryRow(
		"SELECT "+sittingColumns+" FROM sittings WHERE id = ?", id,
	)
	return scanSitting(row)
}

// GetSittingsWithContent returns all sittings holding a usable verbatim
// document, ordered by date ascending.
func (db *DB) GetSittingsWithContent() ([]Sitting, error) {
	rows, err := db.conn.Query(
		"SELECT " + sittingColumns + ` FROM sittings
		WHERE content IS NOT NULL AND LENGTH(content) >= 100
		ORDER BY activity_date`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanSittings(rows)
}

// GetSittingsNeedingFetch returns discovered sittings without usable
// content, oldest first.
func (db *DB) GetSittingsNeedingFetch() ([]Sitting, error) {
	rows, err := db.conn.Query(
		"SELECT " + sittingColumns + " FROM sittings WHERE content IS NULL OR LENGTH(content) < 100 ORDER BY activity_date",
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanSittings(rows)
}

// GetUnparsedSittings returns sittings with content but no speeches yet.
func (db *DB) GetUnparsedSittings() ([]Sitting, error) {
	rows, err := db.conn.Query(
		"SELECT " + sittingColumns + ` FROM sittings s
		WHERE s.content IS NOT NULL AND LENGTH(s.content) >= 100
		AND NOT EXISTS (SELECT 1 FROM individual_speeches p WHERE p.sitting_id = s.id)
		ORDER BY s.activity_date`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanSittings(rows)
}

func scanSittings(rows *sql.Rows) ([]Sitting, error) {
	var sittings []Sitting
	for rows.Next() {
		var s Sitting
		if err := rows.Scan(&s.ID, &s.ActivityDate, &s.ActivityType, &s.Label,
			&s.Content, &s.DocumentID, &s.NotationID, &s.FetchedAt); err != nil {
			return nil, err
		}
		sittings = append(sittings, s)
	}
	return sittings, rows.Err()
}

func scanSitting(row *sql.Row) (*Sitting, error) {
	var s Sitting
	err := row.Scan(&s.ID, &s.ActivityDate, &s.ActivityType, &s.Label,
		&s.Content, &s.DocumentID, &s.NotationID, &s.FetchedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}
