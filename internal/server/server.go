package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/cyderes/check-export-service/internal/config"
	"github.com/cyderes/check-export-service/internal/export"
	"github.com/cyderes/check-export-service/internal/metrics"
	"github.com/cyderes/check-export-service/internal/models"
	"github.com/cyderes/check-export-service/internal/storage"
	"github.com/cyderes/check-export-service/internal/table"
)

// Server handles HTTP requests
type Server struct {
	config  config.ServerConfig
	storage storage.Storage
	metrics *metrics.Metrics
	logger  *logrus.Logger
	exports *cache.Cache
	server  *http.Server
}

// NewServer creates a new HTTP server
func NewServer(cfg config.ServerConfig, store storage.Storage, m *metrics.Metrics, logger *logrus.Logger) *Server {
	ttl := cfg.CacheTTL
	if ttl <= 0 {
		ttl = time.Minute
	}
	s := &Server{
		config:  cfg,
		storage: store,
		metrics: m,
		logger:  logger,
		exports: cache.New(ttl, 2*ttl),
	}

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
	}

	return s
}

// Handler returns the request router
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/snapshots", s.handleSnapshots)
	mux.HandleFunc("/snapshots/", s.handleSnapshotByID)
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

// Start starts the HTTP server
func (s *Server) Start() error {
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// handleHealth handles health check requests
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]string{
		"status": "healthy",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

// handleSnapshots lists stored snapshots
func (s *Server) handleSnapshots(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	limit := queryInt(r, "limit", 10, 1)
	offset := queryInt(r, "offset", 0, 0)

	snapshots, err := s.storage.GetSnapshots(r.Context(), limit, offset)
	if err != nil {
		s.logger.WithError(err).Error("Failed to list snapshots")
		http.Error(w, fmt.Sprintf("Failed to retrieve snapshots: %v", err), http.StatusInternalServerError)
		return
	}

	writeJSON(w, map[string]interface{}{
		"snapshots": snapshots,
		"count":     len(snapshots),
		"limit":     limit,
		"offset":    offset,
	})
}

// exportRequest is a parsed /snapshots/{id} request
type exportRequest struct {
	id        string
	format    export.Format
	anonymize bool
	limit     int
	offset    int
}

func (e exportRequest) cacheKey(id string) string {
	return fmt.Sprintf("%s|%s|%t|%d|%d", id, e.format, e.anonymize, e.offset, e.limit)
}

// handleSnapshotByID renders one snapshot; "latest" selects the newest
func (s *Server) handleSnapshotByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	req, err := s.parseExportRequest(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if req.id != "latest" {
		if body, found := s.exports.Get(req.cacheKey(req.id)); found {
			s.writeExport(w, req, body.([]byte))
			return
		}
	}

	var snapshot *models.Snapshot
	if req.id == "latest" {
		snapshot, err = s.storage.GetLatestSnapshot(r.Context())
	} else {
		snapshot, err = s.storage.GetSnapshotByID(r.Context(), req.id)
	}
	if err != nil {
		s.logger.WithError(err).WithField("snapshot", req.id).Error("Failed to load snapshot")
		http.Error(w, fmt.Sprintf("Failed to retrieve snapshot: %v", err), http.StatusInternalServerError)
		return
	}
	if snapshot == nil {
		http.Error(w, "Snapshot not found", http.StatusNotFound)
		return
	}

	key := req.cacheKey(snapshot.ID)
	if body, found := s.exports.Get(key); found {
		s.writeExport(w, req, body.([]byte))
		return
	}

	rendered := table.Render(table.OK(table.New(snapshot.Columns, snapshot.Rows)), req.anonymize)
	t := rendered.Table.Page(req.offset, req.limit)

	var buf bytes.Buffer
	if err := export.Write(&buf, t, req.format); err != nil {
		s.logger.WithError(err).WithField("snapshot", snapshot.ID).Error("Failed to encode export")
		http.Error(w, fmt.Sprintf("Failed to encode snapshot: %v", err), http.StatusInternalServerError)
		return
	}

	s.exports.Set(key, buf.Bytes(), cache.DefaultExpiration)
	s.writeExport(w, req, buf.Bytes())
}

func (s *Server) parseExportRequest(r *http.Request) (exportRequest, error) {
	id := strings.TrimPrefix(r.URL.Path, "/snapshots/")
	if id == "" || strings.Contains(id, "/") {
		return exportRequest{}, fmt.Errorf("invalid snapshot ID")
	}

	format, err := export.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		return exportRequest{}, err
	}

	anonymize := s.config.Anonymize
	if v := r.URL.Query().Get("anonymize"); v != "" {
		parsed, err := strconv.ParseBool(v)
		if err != nil {
			return exportRequest{}, fmt.Errorf("invalid anonymize value: %s", v)
		}
		anonymize = parsed
	}

	return exportRequest{
		id:        id,
		format:    format,
		anonymize: anonymize,
		limit:     queryInt(r, "limit", 0, 1),
		offset:    queryInt(r, "offset", 0, 0),
	}, nil
}

func (s *Server) writeExport(w http.ResponseWriter, req exportRequest, body []byte) {
	s.metrics.Exports.WithLabelValues(string(req.format)).Inc()
	w.Header().Set("Content-Type", req.format.ContentType())
	if req.format != export.FormatJSON {
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "check-export."+string(req.format)))
	}
	w.Write(body)
}

// handleStatus handles GET requests for ingestion status
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	status, err := s.storage.GetIngestionStatus(r.Context())
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to retrieve status: %v", err), http.StatusInternalServerError)
		return
	}

	writeJSON(w, status)
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

// queryInt reads an integer query parameter, keeping def when it is missing,
// malformed or below floor
func queryInt(r *http.Request, name string, def, floor int) int {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < floor {
		return def
	}
	return n
}
