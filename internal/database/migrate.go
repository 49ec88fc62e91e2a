package database

import (
	"database/sql"
	"fmt"
	"log"
)

// migrate replays every migration above the database's PRAGMA user_version.
// Databases created before versioning existed carry the v1 schema with a
// zero version; those are stamped to 1 first so migration 1 never replays
// over live tables.
func migrate(conn *sql.DB) error {
	current, err := schemaVersion(conn)
	if err != nil {
		return err
	}

	if current == 0 {
		var n int
		err := conn.QueryRow(
			"SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = 'sittings'",
		).Scan(&n)
		if err != nil {
			return fmt.Errorf("probing for pre-versioning schema: %w", err)
		}
		if n > 0 {
			log.Printf("Unversioned database found, stamping schema version 1")
			if err := stampVersion(conn, 1); err != nil {
				return err
			}
			current = 1
		}
	}

	for _, m := range migrations {
		if m.Version <= current {
			continue
		}
		if err := apply(conn, m); err != nil {
			return err
		}
		current = m.Version
	}
	return nil
}

func apply(conn *sql.DB, m Migration) error {
	log.Printf("Applying schema migration %d (%s)", m.Version, m.Description)

	tx, err := conn.Begin()
	if err != nil {
		return fmt.Errorf("begin migration %d: %w", m.Version, err)
	}
	if err := m.Up(tx); err != nil {
		tx.Rollback()
		return fmt.Errorf("migration %d (%s): %w", m.Version, m.Description, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit migration %d: %w", m.Version, err)
	}

	// PRAGMA user_version cannot run inside the transaction under
	// modernc/sqlite. A crash between commit and stamp is harmless: the
	// DDL is idempotent and replays cleanly.
	return stampVersion(conn, m.Version)
}

func schemaVersion(conn *sql.DB) (int, error) {
	var v int
	if err := conn.QueryRow("PRAGMA user_version").Scan(&v); err != nil {
		return 0, fmt.Errorf("reading schema version: %w", err)
	}
	return v, nil
}

func stampVersion(conn *sql.DB, v int) error {
	if _, err := conn.Exec(fmt.Sprintf("PRAGMA user_version = %d", v)); err != nil {
		return fmt.Errorf("setting schema version %d: %w", v, err)
	}
	return nil
}
