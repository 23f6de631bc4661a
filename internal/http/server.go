package http

import (
	"context"
	"encoding/json"
	"log"
	nethttp "net/http"
	"time"

	"go-ds-analysis-report-ui/internal/config"
	"go-ds-analysis-report-ui/internal/connectors/jobstore"
	mysqlstore "go-ds-analysis-report-ui/internal/connectors/mysql"
	"go-ds-analysis-report-ui/internal/scan"
)

// Server wraps an HTTP server and route handlers.
type Server struct {
	httpServer *nethttp.Server
	jobStore   *jobstore.Store
	mysqlStore *mysqlstore.Store
	scans      *scan.Service
}

// chartOptions carries the histogram and image settings shared by handlers.
type chartOptions struct {
	granularity float64
	maxSamples  int
	width       int
	height      int
}

// NewServer creates a configured HTTP server with v1 endpoints.
func NewServer(cfg config.Config) (*Server, error) {
	var jobs *jobstore.Store
	if cfg.StoreSQLitePath != "" {
		created, err := jobstore.NewSQLiteStore(cfg.StoreSQLitePath)
		if err != nil {
			return nil, err
		}
		jobs = created
	}
	var scannerDB *mysqlstore.Store
	if cfg.DBEnabled {
		created, err := mysqlstore.NewStore(cfg)
		if err != nil {
			_ = jobs.Close()
			return nil, err
		}
		scannerDB = created
	}

	var scans *scan.Service
	if jobs != nil {
		runner, err := scan.NewRunner(scan.Options{Excludes: cfg.ScanExcludes, FollowSymlinks: cfg.ScanFollowSymlinks})
		if err != nil {
			_ = jobs.Close()
			_ = scannerDB.Close()
			return nil, err
		}
		scans = scan.NewService(runner, jobs, cfg.ScanTimeout)
	}

	opts := chartOptions{
		granularity: cfg.HistGranularity,
		maxSamples:  cfg.HistMaxSamples,
		width:       cfg.ChartWidth,
		height:      cfg.ChartHeight,
	}

	s := &Server{jobStore: jobs, mysqlStore: scannerDB, scans: scans}
	s.httpServer = &nethttp.Server{
		Addr:         cfg.ListenAddr,
		Handler:      loggingMiddleware(observabilityMiddleware(newMux(cfg.DefaultJobLimit, opts, jobs, scans, scannerDB))),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	return s, nil
}

func newMux(defaultLimit int, opts chartOptions, jobs *jobstore.Store, scans *scan.Service, scannerDB *mysqlstore.Store) *nethttp.ServeMux {
	mux := nethttp.NewServeMux()
	mux.HandleFunc("/", dashboardHandler)
	mux.HandleFunc("/favicon.ico", faviconHandler)
	mux.Handle("/metrics", metricsHandler())
	mux.HandleFunc("/health", healthHandler)
	mux.HandleFunc("/ready", readyHandler(jobs, scannerDB))
	mux.HandleFunc("/api/v1/histogram", histogramHandler(opts))
	mux.HandleFunc("/api/v1/analysis/jobs", analysisJobsHandler(defaultLimit, jobs, scans))
	mux.HandleFunc("/api/v1/analysis/jobs/", analysisJobRouter(opts, jobs))
	mux.HandleFunc("/api/v1/analysis/latest", latestAnalysisHandler(opts, jobs))
	mux.HandleFunc("/api/v1/scanners/", scannerChartsRouter(opts, scannerDB))
	return mux
}

// ListenAndServe starts the HTTP server.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Shutdown stops accepting requests, cancels running analysis jobs and
// closes the stores.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.httpServer.Shutdown(ctx)
	if s.scans != nil {
		s.scans.Close()
	}
	if s.jobStore != nil {
		_ = s.jobStore.Close()
	}
	if s.mysqlStore != nil {
		_ = s.mysqlStore.Close()
	}
	return err
}

func healthHandler(w nethttp.ResponseWriter, _ *nethttp.Request) {
	writeJSON(w, nethttp.StatusOK, map[string]any{
		"status": "ok",
		"time":   time.Now().UTC(),
	})
}

func readyHandler(jobs *jobstore.Store, scannerDB *mysqlstore.Store) nethttp.HandlerFunc {
	return func(w nethttp.ResponseWriter, r *nethttp.Request) {
		integrations := map[string]string{
			"analysis_store": "disabled",
			"scanner_db":     "disabled",
		}
		if jobs != nil {
			integrations["analysis_store"] = "ok"
		}
		if scannerDB != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			start := time.Now()
			err := scannerDB.Ping(ctx)
			recordDBQuery("mysql", "Ping", time.Since(start).Seconds(), err)
			if err != nil {
				integrations["scanner_db"] = "unreachable"
				writeJSON(w, nethttp.StatusServiceUnavailable, map[string]any{"status": "not_ready", "integrations": integrations})
				return
			}
			integrations["scanner_db"] = "ok"
		}
		writeJSON(w, nethttp.StatusOK, map[string]any{"status": "ready", "integrations": integrations})
	}
}

func loggingMiddleware(next nethttp.Handler) nethttp.Handler {
	return nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: nethttp.StatusOK}
		next.ServeHTTP(rec, r)
		log.Printf("%s %s %d %s", r.Method, r.URL.Path, rec.status, time.Since(start))
	})
}

func writeJSON(w nethttp.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w nethttp.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]any{"error": msg})
}
