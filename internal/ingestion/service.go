package ingestion

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/cyderes/check-export-service/internal/check"
	"github.com/cyderes/check-export-service/internal/config"
	"github.com/cyderes/check-export-service/internal/flatten"
	"github.com/cyderes/check-export-service/internal/metrics"
	"github.com/cyderes/check-export-service/internal/models"
	"github.com/cyderes/check-export-service/internal/storage"
	"github.com/cyderes/check-export-service/internal/table"
)

// Service periodically exports a team from Check and stores the flattened
// table as a snapshot
type Service struct {
	config  config.IngestionConfig
	params  check.Params
	options flatten.Options
	client  check.Querier
	storage storage.Storage
	metrics *metrics.Metrics
	logger  *logrus.Logger
	now     func() time.Time
}

// NewService creates a new ingestion service
func NewService(cfg config.IngestionConfig, checkCfg config.CheckConfig, client check.Querier, store storage.Storage, m *metrics.Metrics, logger *logrus.Logger) *Service {
	return &Service{
		config:  cfg,
		params:  check.ParamsFromConfig(checkCfg),
		options: flatten.Options{AnswerDateFromResponse: checkCfg.AnswerDateFromResponse},
		client:  client,
		storage: store,
		metrics: m,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Start runs an ingestion immediately and then on every interval until ctx
// is done
func (s *Service) Start(ctx context.Context) error {
	if _, err := s.IngestData(ctx); err != nil {
		s.logger.WithError(err).Error("Initial ingestion failed")
	}

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := s.IngestData(ctx); err != nil {
				// Log error but don't stop the service
				s.logger.WithError(err).Error("Ingestion failed")
			}
		}
	}
}

// IngestData fetches the team, flattens it and stores a snapshot. A Check
// fetch error is recorded as a failed run and is not returned; flattening and
// storage failures are.
func (s *Service) IngestData(ctx context.Context) (models.IngestionStatus, error) {
	start := s.now()
	status := s.previousStatus(ctx)
	status.LastAttempt = start
	status.Status = models.StatusRunning
	status.ErrorMessage = ""
	s.saveStatus(ctx, status)

	defer func() {
		s.metrics.IngestionDuration.Observe(time.Since(start).Seconds())
	}()

	log := s.logger.WithField("team", s.params.Team)

	result, err := check.Fetch(ctx, s.client, s.params, s.options)
	if err != nil {
		err = fmt.Errorf("failed to build table: %w", err)
		return s.fail(ctx, status, "failure", err.Error()), err
	}

	if result.IsError() {
		kind, _, _ := strings.Cut(result.Error, ":")
		s.metrics.FetchErrors.WithLabelValues(kind).Inc()
		log.WithField("error", result.Error).Warn("Check fetch failed")
		return s.fail(ctx, status, "fetch_error", result.Error), nil
	}

	snapshot := NewSnapshot(s.params.Team, result.Table, start)
	if err := s.storage.StoreSnapshot(ctx, snapshot); err != nil {
		err = fmt.Errorf("failed to store snapshot: %w", err)
		return s.fail(ctx, status, "failure", err.Error()), err
	}

	status.Status = models.StatusSuccess
	status.LastSuccessfulRun = start
	status.RowsIngested = snapshot.RowCount
	status.LastSnapshotID = snapshot.ID
	s.saveStatus(ctx, status)

	s.metrics.IngestionRuns.WithLabelValues("success").Inc()
	s.metrics.RowsIngested.Set(float64(snapshot.RowCount))
	log.WithFields(logrus.Fields{
		"snapshot": snapshot.ID,
		"rows":     snapshot.RowCount,
		"columns":  len(snapshot.Columns),
	}).Info("Successfully ingested snapshot")

	return status, nil
}

// NewSnapshot captures a table for storage
func NewSnapshot(team string, t *table.Table, fetchedAt time.Time) models.Snapshot {
	return models.Snapshot{
		ID:        uuid.NewString(),
		Team:      team,
		FetchedAt: fetchedAt,
		RowCount:  t.Len(),
		Columns:   t.Columns,
		Rows:      t.Records(),
	}
}

func (s *Service) fail(ctx context.Context, status models.IngestionStatus, outcome, message string) models.IngestionStatus {
	status.Status = models.StatusFailure
	status.ErrorMessage = message
	s.saveStatus(ctx, status)
	s.metrics.IngestionRuns.WithLabelValues(outcome).Inc()
	return status
}

func (s *Service) previousStatus(ctx context.Context) models.IngestionStatus {
	prev, err := s.storage.GetIngestionStatus(ctx)
	if err != nil || prev == nil {
		if err != nil {
			s.logger.WithError(err).Warn("Failed to read ingestion status")
		}
		return models.IngestionStatus{}
	}
	return *prev
}

func (s *Service) saveStatus(ctx context.Context, status models.IngestionStatus) {
	if err := s.storage.UpdateIngestionStatus(ctx, status); err != nil {
		s.logger.WithError(err).Warn("Failed to update ingestion status")
	}
}
