package http

import (
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go-ds-analysis-report-ui/internal/histogram"
)

var (
	appStartedAtUnix = time.Now().Unix()
	inFlightRequests int64
	metricsMu        sync.Mutex
	httpSeries       = map[httpMetricKey]*durationSeries{}
	dbQuerySeries    = map[dbMetricKey]*durationSeries{}
	histogramSeries  = map[string]uint64{}
)

type httpMetricKey struct {
	Method string
	Path   string
	Status string
}

type dbMetricKey struct {
	Connector string
	Operation string
}

type durationSeries struct {
	Count              uint64
	Errors             uint64
	DurationSecondsSum float64
}

func metricsHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")

		metricsMu.Lock()
		httpKeys := make([]httpMetricKey, 0, len(httpSeries))
		for k := range httpSeries {
			httpKeys = append(httpKeys, k)
		}
		sort.Slice(httpKeys, func(i, j int) bool {
			a, b := httpKeys[i], httpKeys[j]
			if a.Method != b.Method {
				return a.Method < b.Method
			}
			if a.Path != b.Path {
				return a.Path < b.Path
			}
			return a.Status < b.Status
		})
		httpSnap := make([]durationSeries, len(httpKeys))
		for i, k := range httpKeys {
			httpSnap[i] = *httpSeries[k]
		}

		dbKeys := make([]dbMetricKey, 0, len(dbQuerySeries))
		for k := range dbQuerySeries {
			dbKeys = append(dbKeys, k)
		}
		sort.Slice(dbKeys, func(i, j int) bool {
			if dbKeys[i].Connector != dbKeys[j].Connector {
				return dbKeys[i].Connector < dbKeys[j].Connector
			}
			return dbKeys[i].Operation < dbKeys[j].Operation
		})
		dbSnap := make([]durationSeries, len(dbKeys))
		for i, k := range dbKeys {
			dbSnap[i] = *dbQuerySeries[k]
		}

		outcomes := make([]string, 0, len(histogramSeries))
		for k := range histogramSeries {
			outcomes = append(outcomes, k)
		}
		sort.Strings(outcomes)
		histSnap := make([]uint64, len(outcomes))
		for i, k := range outcomes {
			histSnap[i] = histogramSeries[k]
		}
		metricsMu.Unlock()

		writeHelp(w, "ds_analysis_http_requests_total", "counter", "Total HTTP requests handled by this app.")
		for i, k := range httpKeys {
			_, _ = fmt.Fprintf(w, "ds_analysis_http_requests_total{method=%q,path=%q,status=%q} %d\n",
				k.Method, k.Path, k.Status, httpSnap[i].Count)
		}
		writeHelp(w, "ds_analysis_http_request_duration_seconds_sum", "counter", "Total duration in seconds for observed requests.")
		for i, k := range httpKeys {
			_, _ = fmt.Fprintf(w, "ds_analysis_http_request_duration_seconds_sum{method=%q,path=%q,status=%q} %.9f\n",
				k.Method, k.Path, k.Status, httpSnap[i].DurationSecondsSum)
		}
		writeHelp(w, "ds_analysis_http_in_flight_requests", "gauge", "In-flight HTTP requests currently served by this app.")
		_, _ = fmt.Fprintf(w, "ds_analysis_http_in_flight_requests %d\n", atomic.LoadInt64(&inFlightRequests))

		writeHelp(w, "ds_analysis_db_queries_total", "counter", "Store queries by connector and operation.")
		for i, k := range dbKeys {
			_, _ = fmt.Fprintf(w, "ds_analysis_db_queries_total{connector=%q,operation=%q} %d\n",
				k.Connector, k.Operation, dbSnap[i].Count)
		}
		writeHelp(w, "ds_analysis_db_query_errors_total", "counter", "Failed store queries by connector and operation.")
		for i, k := range dbKeys {
			_, _ = fmt.Fprintf(w, "ds_analysis_db_query_errors_total{connector=%q,operation=%q} %d\n",
				k.Connector, k.Operation, dbSnap[i].Errors)
		}
		writeHelp(w, "ds_analysis_db_query_duration_seconds_sum", "counter", "Total store query time in seconds.")
		for i, k := range dbKeys {
			_, _ = fmt.Fprintf(w, "ds_analysis_db_query_duration_seconds_sum{connector=%q,operation=%q} %.9f\n",
				k.Connector, k.Operation, dbSnap[i].DurationSecondsSum)
		}

		writeHelp(w, "ds_analysis_histograms_total", "counter", "Histogram computations by outcome.")
		for i, k := range outcomes {
			_, _ = fmt.Fprintf(w, "ds_analysis_histograms_total{outcome=%q} %d\n", k, histSnap[i])
		}

		writeHelp(w, "ds_analysis_process_start_time_seconds", "gauge", "Start time of the process since unix epoch in seconds.")
		_, _ = fmt.Fprintf(w, "ds_analysis_process_start_time_seconds %d\n", appStartedAtUnix)
	})
}

func writeHelp(w http.ResponseWriter, name, kind, help string) {
	_, _ = fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s %s\n", name, help, name, kind)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func observabilityMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		atomic.AddInt64(&inFlightRequests, 1)
		defer atomic.AddInt64(&inFlightRequests, -1)

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		recordHTTPMetric(r.Method, normalizeMetricPath(r.URL.Path), rec.status, time.Since(start).Seconds())
	})
}

// normalizeMetricPath folds ids out of routed paths to keep label
// cardinality bounded.
func normalizeMetricPath(path string) string {
	switch {
	case strings.HasPrefix(path, "/api/v1/analysis/jobs/"):
		rest := strings.Trim(strings.TrimPrefix(path, "/api/v1/analysis/jobs/"), "/")
		parts := strings.Split(rest, "/")
		switch {
		case len(parts) == 1:
			return "/api/v1/analysis/jobs/{id}"
		case len(parts) == 2 && parts[1] == "charts":
			return "/api/v1/analysis/jobs/{id}/charts"
		case len(parts) == 3 && parts[1] == "bars":
			return "/api/v1/analysis/jobs/{id}/bars/{n}.png"
		}
		return "/api/v1/analysis/jobs/other"
	case strings.HasPrefix(path, "/api/v1/scanners/"):
		if strings.HasSuffix(path, "/charts") {
			return "/api/v1/scanners/{id}/charts"
		}
		return "/api/v1/scanners/other"
	default:
		return path
	}
}

func recordHTTPMetric(method, path string, status int, durationSeconds float64) {
	key := httpMetricKey{Method: method, Path: path, Status: strconv.Itoa(status)}
	metricsMu.Lock()
	defer metricsMu.Unlock()
	row, ok := httpSeries[key]
	if !ok {
		row = &durationSeries{}
		httpSeries[key] = row
	}
	row.Count++
	row.DurationSecondsSum += durationSeconds
}

func recordDBQuery(connector, operation string, durationSeconds float64, err error) {
	if connector == "" || operation == "" {
		return
	}
	key := dbMetricKey{Connector: connector, Operation: operation}
	metricsMu.Lock()
	defer metricsMu.Unlock()
	row, ok := dbQuerySeries[key]
	if !ok {
		row = &durationSeries{}
		dbQuerySeries[key] = row
	}
	row.Count++
	row.DurationSecondsSum += durationSeconds
	if err != nil {
		row.Errors++
	}
}

func recordHistogram(err error) {
	outcome := "ok"
	switch {
	case err == nil:
	case errors.Is(err, histogram.ErrNoSamples):
		outcome = "no_samples"
	case errors.Is(err, histogram.ErrInvalidSample), errors.Is(err, histogram.ErrInvalidGranularity):
		outcome = "invalid_input"
	case errors.Is(err, histogram.ErrTooManyBins):
		outcome = "too_many_bins"
	default:
		outcome = "error"
	}
	metricsMu.Lock()
	histogramSeries[outcome]++
	metricsMu.Unlock()
}
