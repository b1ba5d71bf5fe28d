package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/cyderes/check-export-service/internal/config"
	"github.com/cyderes/check-export-service/internal/models"
)

// PostgreSQLStorage implements Storage backed by Postgres; rows are kept as
// jsonb
type PostgreSQLStorage struct {
	db          *sql.DB
	table       string
	statusTable string
}

// NewPostgreSQLStorage connects to Postgres and ensures the schema exists
func NewPostgreSQLStorage(cfg config.StorageConfig) (*PostgreSQLStorage, error) {
	if cfg.PostgresURI == "" {
		return nil, errors.New("POSTGRES_URI is required for postgresql storage")
	}
	db, err := sql.Open("postgres", cfg.PostgresURI)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	return NewPostgreSQLStorageWithDB(db, cfg.TableName)
}

// NewPostgreSQLStorageWithDB reuses an existing *sql.DB
func NewPostgreSQLStorageWithDB(db *sql.DB, tableName string) (*PostgreSQLStorage, error) {
	if db == nil {
		return nil, errors.New("db is required")
	}
	s := &PostgreSQLStorage{
		db:          db,
		table:       pq.QuoteIdentifier(tableName),
		statusTable: pq.QuoteIdentifier(tableName + "_status"),
	}
	if err := s.ensureTables(); err != nil {
		return nil, fmt.Errorf("failed to ensure tables: %w", err)
	}
	return s, nil
}

func (s *PostgreSQLStorage) ensureTables() error {
	ddl := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
  id text PRIMARY KEY,
  team text NOT NULL,
  fetched_at timestamptz NOT NULL,
  row_count integer NOT NULL,
  column_names text[] NOT NULL,
  row_data jsonb NOT NULL
);
CREATE TABLE IF NOT EXISTS %s (
  id text PRIMARY KEY,
  status jsonb NOT NULL,
  updated_at timestamptz NOT NULL DEFAULT now()
);
`, s.table, s.statusTable)
	_, err := s.db.Exec(ddl)
	return err
}

// StoreSnapshot inserts a snapshot
func (s *PostgreSQLStorage) StoreSnapshot(ctx context.Context, snapshot models.Snapshot) error {
	rows, err := json.Marshal(snapshot.Rows)
	if err != nil {
		return fmt.Errorf("failed to encode rows of snapshot %s: %w", snapshot.ID, err)
	}
	query := fmt.Sprintf(`INSERT INTO %s (id, team, fetched_at, row_count, column_names, row_data) VALUES ($1,$2,$3,$4,$5,$6)`, s.table)
	_, err = s.db.ExecContext(ctx, query,
		snapshot.ID, snapshot.Team, snapshot.FetchedAt, snapshot.RowCount, pq.Array(snapshot.Columns), rows)
	if err != nil {
		return fmt.Errorf("failed to store snapshot %s: %w", snapshot.ID, err)
	}
	return nil
}

// GetSnapshots lists snapshots newest first
func (s *PostgreSQLStorage) GetSnapshots(ctx context.Context, limit int, offset int) ([]models.SnapshotInfo, error) {
	query := fmt.Sprintf(`SELECT id, team, fetched_at, row_count, cardinality(column_names) FROM %s ORDER BY fetched_at DESC OFFSET $1`, s.table)
	args := []any{offset}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}
	defer rows.Close()

	infos := []models.SnapshotInfo{}
	for rows.Next() {
		var info models.SnapshotInfo
		if err := rows.Scan(&info.ID, &info.Team, &info.FetchedAt, &info.RowCount, &info.Columns); err != nil {
			return nil, fmt.Errorf("failed to scan snapshot: %w", err)
		}
		infos = append(infos, info)
	}
	return infos, rows.Err()
}

func (s *PostgreSQLStorage) scanSnapshot(row *sql.Row) (*models.Snapshot, error) {
	var snapshot models.Snapshot
	var payload []byte
	err := row.Scan(&snapshot.ID, &snapshot.Team, &snapshot.FetchedAt, &snapshot.RowCount,
		pq.Array(&snapshot.Columns), &payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if err := json.Unmarshal(payload, &snapshot.Rows); err != nil {
		return nil, fmt.Errorf("failed to decode rows: %w", err)
	}
	return &snapshot, nil
}

// GetSnapshotByID retrieves a specific snapshot
func (s *PostgreSQLStorage) GetSnapshotByID(ctx context.Context, id string) (*models.Snapshot, error) {
	query := fmt.Sprintf(`SELECT id, team, fetched_at, row_count, column_names, row_data FROM %s WHERE id=$1`, s.table)
	snapshot, err := s.scanSnapshot(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, fmt.Errorf("failed to get snapshot %s: %w", id, err)
	}
	return snapshot, nil
}

// GetLatestSnapshot retrieves the newest snapshot
func (s *PostgreSQLStorage) GetLatestSnapshot(ctx context.Context) (*models.Snapshot, error) {
	query := fmt.Sprintf(`SELECT id, team, fetched_at, row_count, column_names, row_data FROM %s ORDER BY fetched_at DESC LIMIT 1`, s.table)
	snapshot, err := s.scanSnapshot(s.db.QueryRowContext(ctx, query))
	if err != nil {
		return nil, fmt.Errorf("failed to get latest snapshot: %w", err)
	}
	return snapshot, nil
}

// UpdateIngestionStatus upserts the status record
func (s *PostgreSQLStorage) UpdateIngestionStatus(ctx context.Context, status models.IngestionStatus) error {
	value, err := json.Marshal(status)
	if err != nil {
		return fmt.Errorf("failed to marshal ingestion status: %w", err)
	}
	query := fmt.Sprintf(`INSERT INTO %s (id, status) VALUES ($1,$2)
ON CONFLICT (id) DO UPDATE SET status=EXCLUDED.status, updated_at=now()`, s.statusTable)
	_, err = s.db.ExecContext(ctx, query, statusKey, value)
	return err
}

// GetIngestionStatus retrieves the current ingestion status
func (s *PostgreSQLStorage) GetIngestionStatus(ctx context.Context) (*models.IngestionStatus, error) {
	var value []byte
	query := fmt.Sprintf(`SELECT status FROM %s WHERE id=$1`, s.statusTable)
	err := s.db.QueryRowContext(ctx, query, statusKey).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return neverRun(), nil
		}
		return nil, fmt.Errorf("failed to get ingestion status: %w", err)
	}

	var status models.IngestionStatus
	if err := json.Unmarshal(value, &status); err != nil {
		return nil, fmt.Errorf("failed to unmarshal ingestion status: %w", err)
	}
	return &status, nil
}

// Close closes the connection pool
func (s *PostgreSQLStorage) Close() error {
	return s.db.Close()
}
