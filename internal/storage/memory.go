package storage

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/cyderes/check-export-service/internal/config"
	"github.com/cyderes/check-export-service/internal/models"
)

const (
	snapshotKeyPrefix = "snapshot:"
	statusKey         = "ingestion_status"
)

// MemoryStorage keeps snapshots in process memory; they expire after the
// configured TTL
type MemoryStorage struct {
	cache *cache.Cache
}

// NewMemoryStorage creates an in-memory storage
func NewMemoryStorage(cfg config.StorageConfig) *MemoryStorage {
	ttl := cfg.MemoryTTL
	if ttl <= 0 {
		ttl = cache.NoExpiration
	}
	return &MemoryStorage{
		cache: cache.New(ttl, 10*time.Minute),
	}
}

// StoreSnapshot stores a snapshot
func (m *MemoryStorage) StoreSnapshot(ctx context.Context, snapshot models.Snapshot) error {
	m.cache.Set(snapshotKeyPrefix+snapshot.ID, snapshot, cache.DefaultExpiration)
	return nil
}

func (m *MemoryStorage) snapshots() []models.Snapshot {
	var out []models.Snapshot
	for key, item := range m.cache.Items() {
		if !strings.HasPrefix(key, snapshotKeyPrefix) {
			continue
		}
		if s, ok := item.Object.(models.Snapshot); ok {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].FetchedAt.After(out[j].FetchedAt)
	})
	return out
}

// GetSnapshots lists snapshots newest first
func (m *MemoryStorage) GetSnapshots(ctx context.Context, limit int, offset int) ([]models.SnapshotInfo, error) {
	all := page(m.snapshots(), limit, offset)
	infos := make([]models.SnapshotInfo, len(all))
	for i := range all {
		infos[i] = all[i].Info()
	}
	return infos, nil
}

// GetSnapshotByID retrieves a specific snapshot
func (m *MemoryStorage) GetSnapshotByID(ctx context.Context, id string) (*models.Snapshot, error) {
	value, found := m.cache.Get(snapshotKeyPrefix + id)
	if !found {
		return nil, nil
	}
	s := value.(models.Snapshot)
	return &s, nil
}

// GetLatestSnapshot retrieves the newest snapshot
func (m *MemoryStorage) GetLatestSnapshot(ctx context.Context) (*models.Snapshot, error) {
	all := m.snapshots()
	if len(all) == 0 {
		return nil, nil
	}
	return &all[0], nil
}

// UpdateIngestionStatus updates the ingestion status
func (m *MemoryStorage) UpdateIngestionStatus(ctx context.Context, status models.IngestionStatus) error {
	m.cache.Set(statusKey, status, cache.NoExpiration)
	return nil
}

// GetIngestionStatus retrieves the current ingestion status
func (m *MemoryStorage) GetIngestionStatus(ctx context.Context) (*models.IngestionStatus, error) {
	value, found := m.cache.Get(statusKey)
	if !found {
		return neverRun(), nil
	}
	status := value.(models.IngestionStatus)
	return &status, nil
}

// Close drops everything held in memory
func (m *MemoryStorage) Close() error {
	m.cache.Flush()
	return nil
}
