// Package store keeps a SQLite ledger of runs, per-label scores and
// per-label failures.
package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"mbdisease/pkg/relevance"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	run_id TEXT PRIMARY KEY,
	mode TEXT NOT NULL,
	samples INTEGER NOT NULL,
	started_at TIMESTAMP NOT NULL
);
CREATE TABLE IF NOT EXISTS label_scores (
	run_id TEXT NOT NULL,
	label TEXT NOT NULL,
	accuracy DOUBLE NOT NULL,
	support INTEGER NOT NULL,
	true_pos INTEGER NOT NULL,
	false_pos INTEGER NOT NULL,
	true_neg INTEGER NOT NULL,
	false_neg INTEGER NOT NULL,
	precision_score DOUBLE NOT NULL,
	recall_score DOUBLE NOT NULL,
	f1_score DOUBLE NOT NULL,
	cv_accuracy DOUBLE NOT NULL,
	PRIMARY KEY (run_id, label),
	FOREIGN KEY (run_id) REFERENCES runs(run_id)
);
CREATE TABLE IF NOT EXISTS label_errors (
	run_id TEXT NOT NULL,
	label TEXT NOT NULL,
	stage TEXT NOT NULL,
	message TEXT NOT NULL,
	FOREIGN KEY (run_id) REFERENCES runs(run_id)
);
`

type Store struct {
	*sql.DB
}

func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("error opening results database %s: %w", path, err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("error creating results schema: %w", err)
	}
	return &Store{db}, nil
}

// BeginRun records a new run and returns its identifier.
func (s *Store) BeginRun(mode string, samples int, startedAt time.Time) (string, error) {
	runID := uuid.NewString()
	_, err := s.Exec(`INSERT INTO runs (run_id, mode, samples, started_at) VALUES (?, ?, ?, ?)`,
		runID, mode, samples, startedAt.UTC())
	if err != nil {
		return "", fmt.Errorf("error recording run: %w", err)
	}
	return runID, nil
}

func (s *Store) RecordScores(runID string, summaries []relevance.LabelSummary) error {
	tx, err := s.Begin()
	if err != nil {
		return fmt.Errorf("error starting transaction: %w", err)
	}
	defer tx.Rollback()

	for _, summary := range summaries {
		_, err := tx.Exec(`INSERT INTO label_scores
			(run_id, label, accuracy, support, true_pos, false_pos, true_neg, false_neg, precision_score, recall_score, f1_score, cv_accuracy)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			runID, summary.Label, summary.Accuracy, summary.Support,
			summary.TruePos, summary.FalsePos, summary.TrueNeg, summary.FalseNeg,
			summary.Precision, summary.Recall, summary.F1, summary.CVAccuracy)
		if err != nil {
			return fmt.Errorf("error recording score for %s: %w", summary.Label, err)
		}
	}
	return tx.Commit()
}

func (s *Store) RecordLabelErrors(runID string, labelErrors []*relevance.LabelError) error {
	for _, e := range labelErrors {
		_, err := s.Exec(`INSERT INTO label_errors (run_id, label, stage, message) VALUES (?, ?, ?, ?)`,
			runID, e.Label, e.Stage, e.Err.Error())
		if err != nil {
			return fmt.Errorf("error recording failure of %s: %w", e.Label, err)
		}
	}
	return nil
}

// Scores returns the summaries recorded for a run, ordered by label.
func (s *Store) Scores(runID string) ([]relevance.LabelSummary, error) {
	rows, err := s.Query(`SELECT label, accuracy, support, true_pos, false_pos, true_neg, false_neg,
			precision_score, recall_score, f1_score, cv_accuracy
		FROM label_scores WHERE run_id = ? ORDER BY label`, runID)
	if err != nil {
		return nil, fmt.Errorf("error querying scores: %w", err)
	}
	defer rows.Close()

	var result []relevance.LabelSummary
	for rows.Next() {
		var s relevance.LabelSummary
		if err := rows.Scan(&s.Label, &s.Accuracy, &s.Support, &s.TruePos, &s.FalsePos, &s.TrueNeg, &s.FalseNeg,
			&s.Precision, &s.Recall, &s.F1, &s.CVAccuracy); err != nil {
			return nil, fmt.Errorf("error reading score: %w", err)
		}
		result = append(result, s)
	}
	return result, rows.Err()
}

// LabelErrors returns the failures recorded for a run as label to message.
func (s *Store) LabelErrors(runID string) (map[string]string, error) {
	rows, err := s.Query(`SELECT label, message FROM label_errors WHERE run_id = ?`, runID)
	if err != nil {
		return nil, fmt.Errorf("error querying label errors: %w", err)
	}
	defer rows.Close()

	result := map[string]string{}
	for rows.Next() {
		var label, message string
		if err := rows.Scan(&label, &message); err != nil {
			return nil, fmt.Errorf("error reading label error: %w", err)
		}
		result[label] = message
	}
	return result, rows.Err()
}
