package models

import "time"

// Snapshot is one flattened export of a team, as persisted by storage
type Snapshot struct {
	ID        string           `json:"id" bson:"_id"`
	Team      string           `json:"team" bson:"team"`
	FetchedAt time.Time        `json:"fetched_at" bson:"fetched_at"`
	RowCount  int              `json:"row_count" bson:"row_count"`
	Columns   []string         `json:"columns" bson:"columns"`
	Rows      []map[string]any `json:"rows" bson:"rows"`
}

// Info strips the rows off a snapshot for listings
func (s *Snapshot) Info() SnapshotInfo {
	return SnapshotInfo{
		ID:        s.ID,
		Team:      s.Team,
		FetchedAt: s.FetchedAt,
		RowCount:  s.RowCount,
		Columns:   len(s.Columns),
	}
}

// SnapshotInfo describes a snapshot without its rows
type SnapshotInfo struct {
	ID        string    `json:"id"`
	Team      string    `json:"team"`
	FetchedAt time.Time `json:"fetched_at"`
	RowCount  int       `json:"row_count"`
	Columns   int       `json:"columns"`
}

// IngestionStatus tracks the status of ingestion runs
type IngestionStatus struct {
	LastSuccessfulRun time.Time `json:"last_successful_run" bson:"last_successful_run"`
	LastAttempt       time.Time `json:"last_attempt" bson:"last_attempt"`
	Status            string    `json:"status" bson:"status"` // "success", "failure", "running"
	ErrorMessage      string    `json:"error_message,omitempty" bson:"error_message,omitempty"`
	RowsIngested      int       `json:"rows_ingested" bson:"rows_ingested"`
	LastSnapshotID    string    `json:"last_snapshot_id,omitempty" bson:"last_snapshot_id,omitempty"`
}

// Ingestion status values
const (
	StatusSuccess  = "success"
	StatusFailure  = "failure"
	StatusRunning  = "running"
	StatusNeverRun = "never_run"
)
