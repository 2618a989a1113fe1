// Package checkpoint records scrape run state and per-row results in SQLite
// so an interrupted run can resume without re-scraping finished rows.
package checkpoint

import (
	"database/sql"
	"time"

	"SupplyScraper/internal/errors"
	"SupplyScraper/internal/models"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// Run states.
const (
	StateRunning   = "running"
	StateCompleted = "completed"
	StateFailed    = "failed"
)

// Run is one scraper invocation writing to one output file.
type Run struct {
	ID         string
	OutputPath string
	InputCount int
	State      string
	StartedAt  time.Time
	FinishedAt sql.NullTime
}

// Store wraps the checkpoint database connection.
type Store struct {
	DB *sql.DB
}

// InitDB opens (creating if needed) the checkpoint database at filepath.
func InitDB(filepath string) (*Store, error) {
	db, err := sql.Open("sqlite", filepath)
	if err != nil {
		return nil, errors.Wrapf(err, "open checkpoint database %s", filepath)
	}
	// One connection: SQLite allows a single writer and the pipeline is
	// sequential.
	db.SetMaxOpenConns(1)
	if err = db.Ping(); err != nil {
		db.Close()
		return nil, errors.Wrapf(err, "ping checkpoint database %s", filepath)
	}

	createRunsTableSQL := `
	CREATE TABLE IF NOT EXISTS runs (
		"id" TEXT NOT NULL PRIMARY KEY,
		"output_path" TEXT NOT NULL,
		"input_count" INTEGER NOT NULL,
		"state" TEXT NOT NULL,
		"started_at" DATETIME NOT NULL,
		"finished_at" DATETIME
	);`
	if _, err = db.Exec(createRunsTableSQL); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "create runs table")
	}

	createResultsTableSQL := `
	CREATE TABLE IF NOT EXISTS results (
		"run_id" TEXT NOT NULL REFERENCES runs(id),
		"row_index" INTEGER NOT NULL,
		"product_number" TEXT NOT NULL,
		"fields" TEXT,
		"status" TEXT NOT NULL,
		"error" TEXT,
		"scraped_at" DATETIME NOT NULL,
		PRIMARY KEY (run_id, row_index)
	);`
	if _, err = db.Exec(createResultsTableSQL); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "create results table")
	}

	return &Store{DB: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.DB.Close()
}

// StartRun registers a new running run for outputPath.
func (s *Store) StartRun(outputPath string, inputCount int) (Run, error) {
	run := Run{
		ID:         uuid.NewString(),
		OutputPath: outputPath,
		InputCount: inputCount,
		State:      StateRunning,
		StartedAt:  time.Now().UTC(),
	}
	_, err := s.DB.Exec(
		`INSERT INTO runs (id, output_path, input_count, state, started_at) VALUES (?, ?, ?, ?, ?)`,
		run.ID, run.OutputPath, run.InputCount, run.State, run.StartedAt,
	)
	if err != nil {
		return Run{}, errors.Wrap(err, "insert run")
	}
	return run, nil
}

// LatestUnfinished returns the most recent run for outputPath that did not
// complete, or false when there is none.
func (s *Store) LatestUnfinished(outputPath string) (Run, bool, error) {
	var run Run
	err := s.DB.QueryRow(`
		SELECT id, output_path, input_count, state, started_at, finished_at
		FROM runs
		WHERE output_path = ? AND state != ?
		ORDER BY started_at DESC
		LIMIT 1`,
		outputPath, StateCompleted,
	).Scan(&run.ID, &run.OutputPath, &run.InputCount, &run.State, &run.StartedAt, &run.FinishedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, false, nil
	}
	if err != nil {
		return Run{}, false, errors.Wrap(err, "query unfinished run")
	}
	return run, true, nil
}

// ReopenRun marks an unfinished run as running again.
func (s *Store) ReopenRun(id string, inputCount int) error {
	_, err := s.DB.Exec(
		`UPDATE runs SET state = ?, input_count = ?, finished_at = NULL WHERE id = ?`,
		StateRunning, inputCount, id,
	)
	return errors.Wrapf(err, "reopen run %s", id)
}

// FinishRun records the final state of a run.
func (s *Store) FinishRun(id, state string) error {
	_, err := s.DB.Exec(
		`UPDATE runs SET state = ?, finished_at = ? WHERE id = ?`,
		state, time.Now().UTC(), id,
	)
	return errors.Wrapf(err, "finish run %s", id)
}

// SaveResult stores or replaces the result for one input row of a run.
func (s *Store) SaveResult(runID string, rowIndex int, result models.ScrapeResult) error {
	query := `
	INSERT INTO results (run_id, row_index, product_number, fields, status, error, scraped_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(run_id, row_index) DO UPDATE SET
		product_number=excluded.product_number,
		fields=excluded.fields,
		status=excluded.status,
		error=excluded.error,
		scraped_at=excluded.scraped_at;
	`
	_, err := s.DB.Exec(query,
		runID, rowIndex, result.Number, result.Fields, string(result.Status), result.Error, time.Now().UTC(),
	)
	return errors.Wrapf(err, "save result %s of run %s", result.Number, runID)
}

// Results returns the stored results of a run keyed by row index.
func (s *Store) Results(runID string) (map[int]models.ScrapeResult, error) {
	rows, err := s.DB.Query(
		`SELECT row_index, product_number, fields, status, error FROM results WHERE run_id = ?`,
		runID,
	)
	if err != nil {
		return nil, errors.Wrapf(err, "query results of run %s", runID)
	}
	defer rows.Close()

	results := make(map[int]models.ScrapeResult)
	for rows.Next() {
		var (
			idx    int
			r      models.ScrapeResult
			status string
			errMsg sql.NullString
		)
		if err := rows.Scan(&idx, &r.Number, &r.Fields, &status, &errMsg); err != nil {
			return nil, errors.Wrap(err, "scan result row")
		}
		r.Status = models.Status(status)
		r.Error = errMsg.String
		results[idx] = r
	}
	return results, errors.Wrap(rows.Err(), "iterate results")
}
