// Copyright 2025 The Planor Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package checkpoint

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	_ "github.com/mattn/go-sqlite3"

	"github.com/planor-ai/planor/pkg/plan"
)

const createTableSQL = `
CREATE TABLE IF NOT EXISTS checkpoints (
    id VARCHAR(255) PRIMARY KEY,
    session_id VARCHAR(255) NOT NULL,
    plan_id VARCHAR(255) NOT NULL,
    step_index INTEGER NOT NULL,
    description TEXT,
    snapshot TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_checkpoints_session ON checkpoints(session_id);
CREATE INDEX IF NOT EXISTS idx_checkpoints_plan ON checkpoints(session_id, plan_id);
`

// SQLiteStore is a durable Store backed by SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite-backed store at path.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open checkpoint database: %w", err)
	}

	if _, err := db.Exec(createTableSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize checkpoint schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Create appends a checkpoint row.
func (s *SQLiteStore) Create(ctx context.Context, cp *Checkpoint) error {
	if cp == nil {
		return fmt.Errorf("cannot store nil checkpoint")
	}
	if cp.ID == "" {
		cp.ID = uuid.New().String()
	}
	if cp.Timestamp.IsZero() {
		cp.Timestamp = time.Now()
	}

	snapshot, err := json.Marshal(cp.Snapshot)
	if err != nil {
		return fmt.Errorf("failed to serialize plan snapshot: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO checkpoints (id, session_id, plan_id, step_index, description, snapshot, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		cp.ID, cp.SessionID, cp.PlanID, cp.StepIndex, cp.Description, string(snapshot), cp.Timestamp)
	if err != nil {
		return fmt.Errorf("failed to insert checkpoint: %w", err)
	}
	return nil
}

// List returns all checkpoints for a session in creation order.
func (s *SQLiteStore) List(ctx context.Context, sessionID string) ([]*Checkpoint, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, plan_id, step_index, description, snapshot, created_at
		 FROM checkpoints WHERE session_id = ? ORDER BY created_at ASC, rowid ASC`,
		sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query checkpoints: %w", err)
	}
	defer rows.Close()

	var result []*Checkpoint
	for rows.Next() {
		cp, err := scanCheckpoint(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, cp)
	}
	return result, rows.Err()
}

// Latest returns the most recent checkpoint for a plan.
func (s *SQLiteStore) Latest(ctx context.Context, sessionID, planID string) (*Checkpoint, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, session_id, plan_id, step_index, description, snapshot, created_at
		 FROM checkpoints WHERE session_id = ? AND plan_id = ?
		 ORDER BY created_at DESC, rowid DESC LIMIT 1`,
		sessionID, planID)

	cp, err := scanCheckpoint(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return cp, err
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCheckpoint(row rowScanner) (*Checkpoint, error) {
	var cp Checkpoint
	var snapshot string

	err := row.Scan(&cp.ID, &cp.SessionID, &cp.PlanID, &cp.StepIndex,
		&cp.Description, &snapshot, &cp.Timestamp)
	if err != nil {
		return nil, err
	}

	cp.Snapshot = &plan.Plan{}
	if err := json.Unmarshal([]byte(snapshot), cp.Snapshot); err != nil {
		return nil, fmt.Errorf("failed to deserialize plan snapshot: %w", err)
	}
	return &cp, nil
}
