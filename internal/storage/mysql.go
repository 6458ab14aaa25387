package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"spikesim/internal/model"

	_ "github.com/go-sql-driver/mysql"
)

// MySQLStore persists the same records as the SQLite backend in a shared
// results database. DSN format: user:pass@tcp(host:port)/dbname.
type MySQLStore struct {
	dsn string

	mu sync.RWMutex
	db *sql.DB
}

func NewMySQLStore(dsn string) *MySQLStore {
	return &MySQLStore{dsn: dsn}
}

func (s *MySQLStore) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.dsn == "" {
		return errors.New("mysql dsn is required")
	}
	if s.db != nil {
		return nil
	}

	db, err := sql.Open("mysql", s.dsn)
	if err != nil {
		return err
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return err
	}

	if err := createMySQLTables(ctx, db); err != nil {
		_ = db.Close()
		return err
	}

	s.db = db
	return nil
}

func (s *MySQLStore) SaveNetwork(ctx context.Context, network model.NetworkDescription) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}

	payload, err := EncodeNetwork(network)
	if err != nil {
		return err
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO networks (name, schema_version, codec_version, payload)
		VALUES (?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			schema_version = VALUES(schema_version),
			codec_version = VALUES(codec_version),
			payload = VALUES(payload)
	`, network.Name, network.SchemaVersion, network.CodecVersion, payload)
	return err
}

func (s *MySQLStore) GetNetwork(ctx context.Context, name string) (model.NetworkDescription, bool, error) {
	db, err := s.getDB()
	if err != nil {
		return model.NetworkDescription{}, false, err
	}

	var payload []byte
	err = db.QueryRowContext(ctx, `SELECT payload FROM networks WHERE name = ?`, name).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.NetworkDescription{}, false, nil
		}
		return model.NetworkDescription{}, false, err
	}

	network, err := DecodeNetwork(payload)
	if err != nil {
		return model.NetworkDescription{}, false, fmt.Errorf("decode network %s: %w", name, err)
	}
	return network, true, nil
}

func (s *MySQLStore) SaveRun(ctx context.Context, run model.RunRecord) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}

	payload, err := EncodeRun(run)
	if err != nil {
		return err
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO runs (run_id, started_at_utc, payload)
		VALUES (?, ?, ?)
		ON DUPLICATE KEY UPDATE
			started_at_utc = VALUES(started_at_utc),
			payload = VALUES(payload)
	`, run.RunID, run.StartedAtUTC, payload)
	return err
}

func (s *MySQLStore) GetRun(ctx context.Context, runID string) (model.RunRecord, bool, error) {
	db, err := s.getDB()
	if err != nil {
		return model.RunRecord{}, false, err
	}

	var payload []byte
	err = db.QueryRowContext(ctx, `SELECT payload FROM runs WHERE run_id = ?`, runID).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.RunRecord{}, false, nil
		}
		return model.RunRecord{}, false, err
	}

	run, err := DecodeRun(payload)
	if err != nil {
		return model.RunRecord{}, false, fmt.Errorf("decode run %s: %w", runID, err)
	}
	return run, true, nil
}

func (s *MySQLStore) ListRuns(ctx context.Context, limit int) ([]model.RunRecord, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, err
	}

	query := `SELECT payload FROM runs ORDER BY started_at_utc DESC, run_id DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []model.RunRecord
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		run, err := DecodeRun(payload)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

func (s *MySQLStore) SaveMetricSummaries(ctx context.Context, runID string, summaries []model.MetricSummary) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}

	payload, err := EncodeMetricSummaries(summaries)
	if err != nil {
		return err
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO metric_summaries (run_id, payload)
		VALUES (?, ?)
		ON DUPLICATE KEY UPDATE
			payload = VALUES(payload)
	`, runID, payload)
	return err
}

func (s *MySQLStore) GetMetricSummaries(ctx context.Context, runID string) ([]model.MetricSummary, bool, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, false, err
	}

	var payload []byte
	err = db.QueryRowContext(ctx, `SELECT payload FROM metric_summaries WHERE run_id = ?`, runID).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, err
	}

	summaries, err := DecodeMetricSummaries(payload)
	if err != nil {
		return nil, false, fmt.Errorf("decode metric summaries %s: %w", runID, err)
	}
	return summaries, true, nil
}

func (s *MySQLStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func (s *MySQLStore) getDB() (*sql.DB, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.db == nil {
		return nil, errors.New("store is not initialized")
	}
	return s.db, nil
}

func createMySQLTables(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS networks (
			name VARCHAR(255) PRIMARY KEY,
			schema_version INT NOT NULL,
			codec_version INT NOT NULL,
			payload MEDIUMBLOB NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS runs (
			run_id VARCHAR(64) PRIMARY KEY,
			started_at_utc VARCHAR(32) NOT NULL,
			payload MEDIUMBLOB NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS metric_summaries (
			run_id VARCHAR(64) PRIMARY KEY,
			payload MEDIUMBLOB NOT NULL
		)`,
	}
	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
