package database

import (
	"database/sql"
	"fmt"
)

const speechColumns = `id, sitting_id, speech_order, speaker_name,
	political_group_raw, political_group_std, political_group_kind, political_group_reason,
	title, speech_content, language, topic,
	macro_topic, macro_specific_focus, macro_confidence,
	macro_classified_by, macro_classified_at, macro_classification_cost, mep_id`

// ReplaceSpeeches deletes all speeches of a sitting and inserts the new
// batch in one transaction, so a re-parse is atomic.
func (db *DB) ReplaceSpeeches(sittingID string, speeches []NewSpeech) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("begin replace: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM individual_speeches WHERE sitting_id = ?", sittingID); err != nil {
		return fmt.Errorf("clearing speeches: %w", err)
	}

	stmt, err := tx.Prepare(
		`INSERT INTO individual_speeches
		(sitting_id, speech_order, speaker_name, political_group_raw,
		 political_group_std, political_group_kind, political_group_reason,
		 title, speech_content)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()

	for _, sp := range speeches {
		if _, err := stmt.Exec(sittingID, sp.SpeechOrder, sp.SpeakerName,
			sp.PoliticalGroupRaw, sp.PoliticalGroupStd, sp.PoliticalGroupKind,
			sp.PoliticalGroupReason, sp.Title, sp.SpeechContent); err != nil {
			return fmt.Errorf("inserting speech %d: %w", sp.SpeechOrder, err)
		}
	}

	return tx.Commit()
}

// CountSpeeches returns the number of speeches stored for a sitting.
func (db *DB) CountSpeeches(sittingID string) (int, error) {
	var n int
	err := db.conn.QueryRow(
		"SELECT COUNT(*) FROM individual_speeches WHERE sitting_id = ?", sittingID,
	).Scan(&n)
	return n, err
}

// GetSpeeches returns a sitting's speeches in speech_order.
func (db *DB) GetSpeeches(sittingID string) ([]Speech, error) {
	rows, err := db.conn.Query(
		"SELECT "+speechColumns+" FROM individual_speeches WHERE sitting_id = ? ORDER BY speech_order",
		sittingID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanSpeeches(rows)
}

// GetSpeechesNeedingGroup returns speeches whose political-group columns
// have not been normalized yet, in insertion order.
func (db *DB) GetSpeechesNeedingGroup(fromID int64, limit int) ([]Speech, error) {
	return db.speechesWhere(
		"political_group_std IS NULL AND political_group_raw IS NOT NULL", fromID, limit)
}

// GetSpeechesWithGroupRaw returns every speech carrying a raw group string,
// normalized or not. Used by legacy re-normalization runs.
func (db *DB) GetSpeechesWithGroupRaw(fromID int64, limit int) ([]Speech, error) {
	return db.speechesWhere("political_group_raw IS NOT NULL", fromID, limit)
}

// GetSpeechesNeedingLanguage returns speeches without a language code.
func (db *DB) GetSpeechesNeedingLanguage(fromID int64, limit int) ([]Speech, error) {
	return db.speechesWhere("language IS NULL", fromID, limit)
}

// GetSpeechesNeedingClassification returns speeches without a macro topic.
func (db *DB) GetSpeechesNeedingClassification(fromID int64, limit int) ([]Speech, error) {
	return db.speechesWhere("macro_topic IS NULL", fromID, limit)
}

// GetTopicsNeedingClassification returns the distinct agenda topics whose
// speeches have not been classified yet.
func (db *DB) GetTopicsNeedingClassification(limit int) ([]string, error) {
	query := `SELECT DISTINCT topic FROM individual_speeches
		WHERE topic IS NOT NULL AND macro_topic IS NULL ORDER BY topic`
	var args []any
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var topics []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}
		topics = append(topics, t)
	}
	return topics, rows.Err()
}

// SetClassificationByTopic classifies every unclassified speech sharing an
// agenda topic in one statement. Returns the number of rows updated.
func (db *DB) SetClassificationByTopic(topic, macroTopic, model string, classifiedAt int64, cost float64) (int64, error) {
	res, err := db.conn.Exec(
		`UPDATE individual_speeches SET
			macro_topic = ?, macro_classified_by = ?, macro_classified_at = ?,
			macro_classification_cost = ?
		WHERE topic = ? AND macro_topic IS NULL`,
		macroTopic, model, classifiedAt, cost, topic,
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// GetSpeechesWithoutMEP returns speeches with a speaker but no MEP link.
func (db *DB) GetSpeechesWithoutMEP() ([]Speech, error) {
	return db.speechesWhere("mep_id IS NULL AND speaker_name IS NOT NULL", 0, 0)
}

func (db *DB) speechesWhere(cond string, fromID int64, limit int) ([]Speech, error) {
	query := "SELECT " + speechColumns + " FROM individual_speeches WHERE " + cond
	var args []any
	if fromID > 0 {
		query += " AND id >= ?"
		args = append(args, fromID)
	}
	query += " ORDER BY id"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanSpeeches(rows)
}

// SetSpeechGroup writes the normalized political-group columns. The raw
// column is preserved: it is only filled when it was never set, and an
// existing value is never replaced.
func (db *DB) SetSpeechGroup(speechID int64, raw, std, kind, reason string) error {
	_, err := db.conn.Exec(
		`UPDATE individual_speeches SET
			political_group_raw = COALESCE(political_group_raw, ?),
			political_group_std = ?, political_group_kind = ?, political_group_reason = ?
		WHERE id = ?`,
		raw, std, kind, reason, speechID,
	)
	return err
}

// OverwriteSpeechGroup rewrites std/kind/reason regardless of prior values.
// Migration tool for the --overwrite-legacy flag; raw stays untouched.
func (db *DB) OverwriteSpeechGroup(speechID int64, std, kind, reason string) error {
	_, err := db.conn.Exec(
		`UPDATE individual_speeches SET
			political_group_std = ?, political_group_kind = ?, political_group_reason = ?
		WHERE id = ?`,
		std, kind, reason, speechID,
	)
	return err
}

// SetSpeechLanguage writes the detected language. NULL stays NULL; the
// detector never defaults to EN.
func (db *DB) SetSpeechLanguage(speechID int64, language *string) error {
	_, err := db.conn.Exec(
		"UPDATE individual_speeches SET language = ? WHERE id = ?", language, speechID,
	)
	return err
}

// SetSpeechTopic writes the agenda topic assigned by the topic mapper.
func (db *DB) SetSpeechTopic(speechID int64, topic string) error {
	_, err := db.conn.Exec(
		"UPDATE individual_speeches SET topic = ? WHERE id = ?", topic, speechID,
	)
	return err
}

// SetSpeechClassification writes the LLM classification columns in one
// statement so a speech row is never partially classified.
func (db *DB) SetSpeechClassification(speechID int64, macroTopic string, specificFocus *string,
	confidence *float64, model string, classifiedAt int64, cost float64) error {
	_, err := db.conn.Exec(
		`UPDATE individual_speeches SET
			macro_topic = ?, macro_specific_focus = ?, macro_confidence = ?,
			macro_classified_by = ?, macro_classified_at = ?, macro_classification_cost = ?
		WHERE id = ?`,
		macroTopic, specificFocus, confidence, model, classifiedAt, cost, speechID,
	)
	return err
}

// SetSpeechMEP links a speech to an MEP.
func (db *DB) SetSpeechMEP(speechID, mepID int64) error {
	_, err := db.conn.Exec(
		"UPDATE individual_speeches SET mep_id = ? WHERE id = ?", mepID, speechID,
	)
	return err
}

func scanSpeeches(rows *sql.Rows) ([]Speech, error) {
	var speeches []Speech
	for rows.Next() {
		var p Speech
		if err := rows.Scan(&p.ID, &p.SittingID, &p.SpeechOrder, &p.SpeakerName,
			&p.PoliticalGroupRaw, &p.PoliticalGroupStd, &p.PoliticalGroupKind, &p.PoliticalGroupReason,
			&p.Title, &p.SpeechContent, &p.Language, &p.Topic,
			&p.MacroTopic, &p.MacroSpecificFocus, &p.MacroConfidence,
			&p.MacroClassifiedBy, &p.MacroClassifiedAt, &p.MacroClassificationCost, &p.MEPID); err != nil {
			return nil, err
		}
		speeches = append(speeches, p)
	}
	return speeches, rows.Err()
}
