package ingestion

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/cyderes/check-export-service/internal/check"
	"github.com/cyderes/check-export-service/internal/config"
	"github.com/cyderes/check-export-service/internal/flatten"
	"github.com/cyderes/check-export-service/internal/metrics"
	"github.com/cyderes/check-export-service/internal/models"
	"github.com/cyderes/check-export-service/internal/storage"
)

// MockStorage is a mock implementation of the Storage interface
type MockStorage struct {
	mock.Mock
}

func (m *MockStorage) StoreSnapshot(ctx context.Context, snapshot models.Snapshot) error {
	args := m.Called(ctx, snapshot)
	return args.Error(0)
}

func (m *MockStorage) GetSnapshots(ctx context.Context, limit int, offset int) ([]models.SnapshotInfo, error) {
	args := m.Called(ctx, limit, offset)
	return args.Get(0).([]models.SnapshotInfo), args.Error(1)
}

func (m *MockStorage) GetSnapshotByID(ctx context.Context, id string) (*models.Snapshot, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(*models.Snapshot), args.Error(1)
}

func (m *MockStorage) GetLatestSnapshot(ctx context.Context) (*models.Snapshot, error) {
	args := m.Called(ctx)
	return args.Get(0).(*models.Snapshot), args.Error(1)
}

func (m *MockStorage) UpdateIngestionStatus(ctx context.Context, status models.IngestionStatus) error {
	args := m.Called(ctx, status)
	return args.Error(0)
}

func (m *MockStorage) GetIngestionStatus(ctx context.Context) (*models.IngestionStatus, error) {
	args := m.Called(ctx)
	return args.Get(0).(*models.IngestionStatus), args.Error(1)
}

func (m *MockStorage) Close() error {
	args := m.Called()
	return args.Error(0)
}

func fixtureHandler(t *testing.T) http.HandlerFunc {
	body, err := os.ReadFile("../flatten/testdata/team.json")
	require.NoError(t, err)
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write(body)
	}
}

func newTestService(t *testing.T, url string, store storage.Storage) *Service {
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	cfg := config.IngestionConfig{
		Interval:   time.Hour,
		Timeout:    5 * time.Second,
		RetryCount: 1,
	}
	checkCfg := config.CheckConfig{Team: "my-team", APIKey: "secret", Host: url}

	client := check.NewClient(cfg, logger)
	return NewService(cfg, checkCfg, client, store, metrics.New(prometheus.NewRegistry()), logger)
}

func TestService_IngestData(t *testing.T) {
	server := httptest.NewServer(fixtureHandler(t))
	defer server.Close()

	store := storage.NewMemoryStorage(config.StorageConfig{})
	service := newTestService(t, server.URL, store)

	ctx := context.Background()
	status, err := service.IngestData(ctx)

	require.NoError(t, err)
	assert.Equal(t, models.StatusSuccess, status.Status)
	assert.Equal(t, 3, status.RowsIngested)
	assert.NotEmpty(t, status.LastSnapshotID)
	assert.Equal(t, status.LastAttempt, status.LastSuccessfulRun)

	latest, err := store.GetLatestSnapshot(ctx)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, status.LastSnapshotID, latest.ID)
	assert.Equal(t, "my-team", latest.Team)
	assert.Equal(t, 3, latest.RowCount)
	assert.Contains(t, latest.Columns, "added_by_anon")
	assert.Equal(t, "Investigations", latest.Rows[0]["project"])
	assert.Equal(t, "2020-01-15T10:30:00Z", latest.Rows[0]["date_added"])
	assert.Equal(t, int64(3600), latest.Rows[0]["time_to_first_status"])

	saved, err := store.GetIngestionStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, status, *saved)
}

func TestService_IngestData_FetchErrorIsRecorded(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"errors":[{"message":"rate limited"}]}`))
	}))
	defer server.Close()

	store := storage.NewMemoryStorage(config.StorageConfig{})
	service := newTestService(t, server.URL, store)

	ctx := context.Background()
	status, err := service.IngestData(ctx)

	assert.NoError(t, err)
	assert.Equal(t, models.StatusFailure, status.Status)
	assert.Contains(t, status.ErrorMessage, "QueryError")
	assert.Contains(t, status.ErrorMessage, "rate limited")
	assert.True(t, status.LastSuccessfulRun.IsZero())

	latest, err := store.GetLatestSnapshot(ctx)
	assert.NoError(t, err)
	assert.Nil(t, latest)
}

func TestService_IngestData_KeepsLastSuccessfulRun(t *testing.T) {
	fail := false
	ok := fixtureHandler(t)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if fail {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		ok(w, r)
	}))
	defer server.Close()

	store := storage.NewMemoryStorage(config.StorageConfig{})
	service := newTestService(t, server.URL, store)
	ctx := context.Background()

	first, err := service.IngestData(ctx)
	require.NoError(t, err)

	fail = true
	second, err := service.IngestData(ctx)
	require.NoError(t, err)

	assert.Equal(t, models.StatusFailure, second.Status)
	assert.Equal(t, "AuthError: API returned status 401", second.ErrorMessage)
	assert.Equal(t, first.LastSuccessfulRun, second.LastSuccessfulRun)
	assert.Equal(t, first.LastSnapshotID, second.LastSnapshotID)
}

func TestService_IngestData_StorageError(t *testing.T) {
	server := httptest.NewServer(fixtureHandler(t))
	defer server.Close()

	mockStorage := new(MockStorage)
	mockStorage.On("GetIngestionStatus", mock.Anything).Return(&models.IngestionStatus{Status: models.StatusNeverRun}, nil)
	mockStorage.On("UpdateIngestionStatus", mock.Anything, mock.AnythingOfType("models.IngestionStatus")).Return(nil)
	mockStorage.On("StoreSnapshot", mock.Anything, mock.AnythingOfType("models.Snapshot")).Return(assert.AnError)

	service := newTestService(t, server.URL, mockStorage)

	status, err := service.IngestData(context.Background())

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to store snapshot")
	assert.Equal(t, models.StatusFailure, status.Status)
	mockStorage.AssertExpectations(t)
	mockStorage.AssertCalled(t, "UpdateIngestionStatus", mock.Anything, mock.MatchedBy(func(s models.IngestionStatus) bool {
		return s.Status == models.StatusFailure
	}))
}

func TestService_IngestData_MalformedDocument(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":{"team":{"projects":{"edges":[{"node":{"title":"P","project_medias":{"edges":[{"node":{"created_at":1,"metadata":null}}]}}}]}}}}`))
	}))
	defer server.Close()

	mockStorage := new(MockStorage)
	mockStorage.On("GetIngestionStatus", mock.Anything).Return(&models.IngestionStatus{}, nil)
	mockStorage.On("UpdateIngestionStatus", mock.Anything, mock.Anything).Return(nil)

	service := newTestService(t, server.URL, mockStorage)

	status, err := service.IngestData(context.Background())

	assert.ErrorIs(t, err, flatten.ErrMalformedDocument)
	assert.Equal(t, models.StatusFailure, status.Status)
	mockStorage.AssertNotCalled(t, "StoreSnapshot", mock.Anything, mock.Anything)
}

func TestService_Start_StopsOnCancel(t *testing.T) {
	server := httptest.NewServer(fixtureHandler(t))
	defer server.Close()

	store := storage.NewMemoryStorage(config.StorageConfig{})
	service := newTestService(t, server.URL, store)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- service.Start(ctx) }()

	assert.Eventually(t, func() bool {
		s, _ := store.GetLatestSnapshot(context.Background())
		return s != nil
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Start did not return after cancel")
	}
}

func TestNewSnapshot(t *testing.T) {
	doc := &models.Document{}
	tbl, err := flatten.Build(doc, flatten.Options{})
	require.NoError(t, err)

	at := time.Date(2020, 1, 15, 0, 0, 0, 0, time.UTC)
	s := NewSnapshot("my-team", tbl, at)

	assert.NotEmpty(t, s.ID)
	assert.Equal(t, 0, s.RowCount)
	assert.Equal(t, at, s.FetchedAt)
	assert.Empty(t, s.Rows)
}
