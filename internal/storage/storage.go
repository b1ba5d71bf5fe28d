package storage

import (
	"context"
	"fmt"

	"github.com/cyderes/check-export-service/internal/config"
	"github.com/cyderes/check-export-service/internal/models"
)

// Storage interface defines the contract for snapshot storage.
// Lookups that find nothing return nil without an error.
type Storage interface {
	StoreSnapshot(ctx context.Context, snapshot models.Snapshot) error
	GetSnapshots(ctx context.Context, limit int, offset int) ([]models.SnapshotInfo, error)
	GetSnapshotByID(ctx context.Context, id string) (*models.Snapshot, error)
	GetLatestSnapshot(ctx context.Context) (*models.Snapshot, error)
	UpdateIngestionStatus(ctx context.Context, status models.IngestionStatus) error
	GetIngestionStatus(ctx context.Context) (*models.IngestionStatus, error)
	Close() error
}

// NewStorage creates a new storage instance based on configuration
func NewStorage(cfg config.StorageConfig) (Storage, error) {
	switch cfg.Type {
	case "memory":
		return NewMemoryStorage(cfg), nil
	case "dynamodb":
		return NewDynamoDBStorage(cfg)
	case "mongodb":
		return NewMongoDBStorage(cfg)
	case "postgresql":
		return NewPostgreSQLStorage(cfg)
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", cfg.Type)
	}
}

// neverRun is reported before the first ingestion completes
func neverRun() *models.IngestionStatus {
	return &models.IngestionStatus{Status: models.StatusNeverRun}
}

// page applies offset/limit to an already ordered slice
func page[T any](items []T, limit, offset int) []T {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(items) {
		return []T{}
	}
	end := len(items)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return items[offset:end]
}
