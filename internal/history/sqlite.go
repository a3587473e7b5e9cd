package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
	_ "modernc.org/sqlite"

	"github.com/andreddluiz/shiftflow/internal/model"
)

const schema = `
CREATE TABLE IF NOT EXISTS shift_record (
	id              TEXT PRIMARY KEY,
	base_id         TEXT NOT NULL,
	shift_date      TEXT NOT NULL,
	shift_slot_id   TEXT NOT NULL,
	operator_id     TEXT NOT NULL,
	finalized_at    TEXT NOT NULL,
	available_hours REAL NOT NULL,
	produced_hours  REAL NOT NULL,
	performance     REAL NOT NULL,
	payload         BLOB NOT NULL,
	UNIQUE (base_id, shift_date, shift_slot_id)
);

CREATE TABLE IF NOT EXISTS record_collaborator (
	record_id         TEXT NOT NULL REFERENCES shift_record(id) ON DELETE CASCADE,
	collaborator_id   TEXT NOT NULL,
	collaborator_name TEXT NOT NULL,
	PRIMARY KEY (record_id, collaborator_id)
);

CREATE INDEX IF NOT EXISTS idx_record_base_date
	ON shift_record (base_id, shift_date);
`

// SQLiteStore archives finalized shifts in a local SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open history database: %w", err)
	}
	// One writer keeps modernc's file locking simple.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply history schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) QueryConflicts(ctx context.Context, key model.DraftKey, collaboratorIDs []string) (*ConflictReport, error) {
	report := &ConflictReport{}

	var recordID string
	err := s.db.QueryRowContext(ctx,
		`SELECT id FROM shift_record
		 WHERE base_id = ? AND shift_date = ? AND shift_slot_id = ?`,
		key.BaseID, key.Date, key.ShiftSlotID,
	).Scan(&recordID)
	switch {
	case err == nil:
		report.DuplicateRecordID = recordID
	case errors.Is(err, sql.ErrNoRows):
	default:
		return nil, fmt.Errorf("query duplicate record: %w", err)
	}

	for _, collaboratorID := range collaboratorIDs {
		var name string
		err := s.db.QueryRowContext(ctx,
			`SELECT rc.collaborator_name
			 FROM record_collaborator rc
			 JOIN shift_record r ON r.id = rc.record_id
			 WHERE r.base_id = ? AND r.shift_date = ?
			   AND rc.collaborator_id = ?
			   AND r.shift_slot_id != ?
			 LIMIT 1`,
			key.BaseID, key.Date, collaboratorID, key.ShiftSlotID,
		).Scan(&name)
		switch {
		case err == nil:
			report.DuplicateCollaboratorNames = append(report.DuplicateCollaboratorNames, name)
		case errors.Is(err, sql.ErrNoRows):
		default:
			return nil, fmt.Errorf("query duplicate collaborator: %w", err)
		}
	}

	return report, nil
}

func (s *SQLiteStore) Commit(ctx context.Context, rec *Record, replaceID string) error {
	payload, err := yaml.Marshal(rec.Payload)
	if err != nil {
		return fmt.Errorf("marshal record payload: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin commit: %w", err)
	}
	defer tx.Rollback()

	if replaceID != "" {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM shift_record WHERE id = ?`, replaceID); err != nil {
			return fmt.Errorf("replace record %s: %w", replaceID, err)
		}
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO shift_record
		 (id, base_id, shift_date, shift_slot_id, operator_id, finalized_at,
		  available_hours, produced_hours, performance, payload)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.BaseID, rec.Date, rec.ShiftSlotID, rec.OperatorID,
		rec.FinalizedAt.UTC().Format(time.RFC3339),
		rec.AvailableHours, rec.ProducedHours, rec.Performance, payload,
	); err != nil {
		return fmt.Errorf("insert record: %w", err)
	}

	for _, collaborator := range rec.Collaborators {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO record_collaborator
			 (record_id, collaborator_id, collaborator_name)
			 VALUES (?, ?, ?)`,
			rec.ID, collaborator.ID, collaborator.Name,
		); err != nil {
			return fmt.Errorf("insert collaborator %s: %w", collaborator.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit record: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Get(ctx context.Context, key model.DraftKey) (*Record, error) {
	rec := &Record{}
	var finalizedAt string
	var payload []byte

	err := s.db.QueryRowContext(ctx,
		`SELECT id, base_id, shift_date, shift_slot_id, operator_id,
		        finalized_at, available_hours, produced_hours, performance, payload
		 FROM shift_record
		 WHERE base_id = ? AND shift_date = ? AND shift_slot_id = ?`,
		key.BaseID, key.Date, key.ShiftSlotID,
	).Scan(&rec.ID, &rec.BaseID, &rec.Date, &rec.ShiftSlotID, &rec.OperatorID,
		&finalizedAt, &rec.AvailableHours, &rec.ProducedHours, &rec.Performance, &payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query record: %w", err)
	}

	rec.FinalizedAt, err = time.Parse(time.RFC3339, finalizedAt)
	if err != nil {
		return nil, fmt.Errorf("parse finalized_at: %w", err)
	}

	var draft model.ShiftDraft
	if err := yaml.Unmarshal(payload, &draft); err != nil {
		return nil, fmt.Errorf("unmarshal record payload: %w", err)
	}
	rec.Payload = &draft

	rows, err := s.db.QueryContext(ctx,
		`SELECT collaborator_id, collaborator_name
		 FROM record_collaborator
		 WHERE record_id = ?
		 ORDER BY collaborator_id`, rec.ID)
	if err != nil {
		return nil, fmt.Errorf("query collaborators: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var c Collaborator
		if err := rows.Scan(&c.ID, &c.Name); err != nil {
			return nil, fmt.Errorf("scan collaborator: %w", err)
		}
		rec.Collaborators = append(rec.Collaborators, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate collaborators: %w", err)
	}

	return rec, nil
}
