package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	nethttp "net/http"
	"strconv"
	"strings"
	"time"

	"go-ds-analysis-report-ui/internal/analysis"
	"go-ds-analysis-report-ui/internal/connectors/jobstore"
	mysqlstore "go-ds-analysis-report-ui/internal/connectors/mysql"
	"go-ds-analysis-report-ui/internal/histogram"
	"go-ds-analysis-report-ui/internal/render"
	"go-ds-analysis-report-ui/internal/scan"
)

const maxBodyBytes = 32 << 20

var errGranularityRange = errors.New("granularity must be a percent in [0.1, 100]")

const (
	storeDisabledMsg = "analysis store disabled (set APP_STORE_SQLITE_PATH)"
	dbDisabledMsg    = "scanner database integration disabled (set APP_DB_ENABLED=true)"
)

type histogramRequest struct {
	Sizes       []float64 `json:"sizes"`
	Granularity float64   `json:"granularity"`
}

type histogramPoint struct {
	X     float64    `json:"x"`
	Y     int        `json:"y"`
	Range [2]float64 `json:"range"`
}

func histogramHandler(opts chartOptions) nethttp.HandlerFunc {
	return func(w nethttp.ResponseWriter, r *nethttp.Request) {
		if r.Method != nethttp.MethodPost {
			w.Header().Set("Allow", nethttp.MethodPost)
			writeError(w, nethttp.StatusMethodNotAllowed, "method not allowed")
			return
		}

		var req histogramRequest
		if err := json.NewDecoder(nethttp.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
			writeError(w, nethttp.StatusBadRequest, "invalid JSON body")
			return
		}
		if opts.maxSamples > 0 && len(req.Sizes) > opts.maxSamples {
			writeError(w, nethttp.StatusRequestEntityTooLarge, "too many samples (max "+strconv.Itoa(opts.maxSamples)+")")
			return
		}
		granularity := req.Granularity
		if granularity == 0 {
			granularity = opts.defaultGranularity()
		}
		if granularity < histogram.MinGranularity || granularity > 100 {
			writeError(w, nethttp.StatusBadRequest, errGranularityRange.Error())
			return
		}

		res, err := histogram.Compute(req.Sizes, granularity)
		recordHistogram(err)
		if err != nil {
			writeError(w, nethttp.StatusBadRequest, err.Error())
			return
		}

		points := make([]histogramPoint, len(res.Points))
		for i, p := range res.Points {
			lo, hi := res.Range(i)
			points[i] = histogramPoint{X: p.X, Y: p.Y, Range: [2]float64{lo, hi}}
		}
		writeJSON(w, nethttp.StatusOK, map[string]any{
			"meta": map[string]any{
				"bin_size":    res.BinSize,
				"bins":        len(points),
				"count":       res.Total(),
				"granularity": granularity,
			},
			"data": points,
		})
	}
}

func analysisJobsHandler(defaultLimit int, jobs *jobstore.Store, scans *scan.Service) nethttp.HandlerFunc {
	return func(w nethttp.ResponseWriter, r *nethttp.Request) {
		if jobs == nil || scans == nil {
			writeError(w, nethttp.StatusServiceUnavailable, storeDisabledMsg)
			return
		}

		switch r.Method {
		case nethttp.MethodGet:
			limit := parseLimit(r.URL.Query().Get("limit"), defaultLimit)
			start := time.Now()
			items, err := jobs.ListJobs(r.Context(), limit)
			recordDBQuery("sqlite", "ListJobs", time.Since(start).Seconds(), err)
			if err != nil {
				writeError(w, nethttp.StatusInternalServerError, "failed to list analysis jobs")
				return
			}
			writeJSON(w, nethttp.StatusOK, map[string]any{
				"meta": map[string]any{"limit": limit, "count": len(items)},
				"data": items,
			})
		case nethttp.MethodPost:
			var req struct {
				Source string `json:"source"`
			}
			if err := json.NewDecoder(nethttp.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
				writeError(w, nethttp.StatusBadRequest, "invalid JSON body")
				return
			}
			if strings.TrimSpace(req.Source) == "" {
				writeError(w, nethttp.StatusBadRequest, "source is required")
				return
			}
			id, err := scans.Start(r.Context(), req.Source)
			if errors.Is(err, jobstore.ErrJobRunning) {
				writeError(w, nethttp.StatusConflict, err.Error())
				return
			}
			if err != nil {
				writeError(w, nethttp.StatusInternalServerError, "failed to start analysis job")
				return
			}
			writeJSON(w, nethttp.StatusAccepted, map[string]any{
				"data": map[string]any{
					"id":     id,
					"source": scan.NormalizeSource(req.Source),
					"state":  jobstore.StateRunning,
				},
			})
		default:
			w.Header().Set("Allow", "GET, POST")
			writeError(w, nethttp.StatusMethodNotAllowed, "method not allowed")
		}
	}
}

// analysisJobRouter serves /api/v1/analysis/jobs/{id}, .../{id}/charts and
// .../{id}/bars/{n}.png where n counts from 1.
func analysisJobRouter(opts chartOptions, jobs *jobstore.Store) nethttp.HandlerFunc {
	return func(w nethttp.ResponseWriter, r *nethttp.Request) {
		if jobs == nil {
			writeError(w, nethttp.StatusServiceUnavailable, storeDisabledMsg)
			return
		}
		if r.Method != nethttp.MethodGet {
			writeError(w, nethttp.StatusMethodNotAllowed, "method not allowed")
			return
		}

		rest := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/v1/analysis/jobs/"), "/")
		parts := strings.Split(rest, "/")
		if rest == "" {
			nethttp.NotFound(w, r)
			return
		}

		job, err := loadJob(r.Context(), jobs, parts[0])
		if errors.Is(err, jobstore.ErrNotFound) {
			writeError(w, nethttp.StatusNotFound, "analysis job not found")
			return
		}
		if err != nil {
			writeError(w, nethttp.StatusInternalServerError, "failed to load analysis job")
			return
		}

		switch {
		case len(parts) == 1:
			writeJSON(w, nethttp.StatusOK, map[string]any{"data": job})
		case len(parts) == 2 && parts[1] == "charts":
			report, granularity, ok := jobReport(w, r, opts, jobs, job)
			if !ok {
				return
			}
			writeJSON(w, nethttp.StatusOK, map[string]any{
				"meta": map[string]any{"job": job, "granularity": granularity},
				"data": report,
			})
		case len(parts) == 3 && parts[1] == "bars" && strings.HasSuffix(parts[2], ".png"):
			n, err := strconv.Atoi(strings.TrimSuffix(parts[2], ".png"))
			if err != nil {
				nethttp.NotFound(w, r)
				return
			}
			report, _, ok := jobReport(w, r, opts, jobs, job)
			if !ok {
				return
			}
			writeBarPNG(w, r, opts, report, n)
		default:
			nethttp.NotFound(w, r)
		}
	}
}

func latestAnalysisHandler(opts chartOptions, jobs *jobstore.Store) nethttp.HandlerFunc {
	return func(w nethttp.ResponseWriter, r *nethttp.Request) {
		if jobs == nil {
			writeError(w, nethttp.StatusServiceUnavailable, storeDisabledMsg)
			return
		}
		source := strings.TrimSpace(r.URL.Query().Get("source"))
		if source == "" {
			writeError(w, nethttp.StatusBadRequest, "source is required")
			return
		}

		start := time.Now()
		job, err := jobs.LatestFinished(r.Context(), scan.NormalizeSource(source))
		recordDBQuery("sqlite", "LatestFinished", time.Since(start).Seconds(), ignoreNotFound(err))
		if errors.Is(err, jobstore.ErrNotFound) {
			writeError(w, nethttp.StatusNotFound, "no finished analysis for source")
			return
		}
		if err != nil {
			writeError(w, nethttp.StatusInternalServerError, "failed to load analysis job")
			return
		}

		report, granularity, ok := jobReport(w, r, opts, jobs, job)
		if !ok {
			return
		}
		writeJSON(w, nethttp.StatusOK, map[string]any{
			"meta": map[string]any{"job": job, "granularity": granularity},
			"data": report,
		})
	}
}

// scannerChartsRouter serves /api/v1/scanners/{id}/charts from the scanner
// admin database.
func scannerChartsRouter(opts chartOptions, scannerDB *mysqlstore.Store) nethttp.HandlerFunc {
	return func(w nethttp.ResponseWriter, r *nethttp.Request) {
		if scannerDB == nil {
			writeError(w, nethttp.StatusServiceUnavailable, dbDisabledMsg)
			return
		}
		parts := strings.Split(strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/v1/scanners/"), "/"), "/")
		if len(parts) != 2 || parts[1] != "charts" {
			nethttp.NotFound(w, r)
			return
		}
		scannerID, err := strconv.ParseInt(parts[0], 10, 64)
		if err != nil || scannerID <= 0 {
			writeError(w, nethttp.StatusBadRequest, "invalid scanner id")
			return
		}
		granularity, err := granularityFromRequest(r, opts.defaultGranularity())
		if err != nil {
			writeError(w, nethttp.StatusBadRequest, err.Error())
			return
		}

		start := time.Now()
		jobID, stats, err := scannerDB.LatestFinishedTypeStats(r.Context(), scannerID)
		recordDBQuery("mysql", "LatestFinishedTypeStats", time.Since(start).Seconds(), ignoreNotFound(err))
		if errors.Is(err, mysqlstore.ErrNoFinishedJob) {
			writeError(w, nethttp.StatusNotFound, err.Error())
			return
		}
		if err != nil {
			writeError(w, nethttp.StatusInternalServerError, "failed to load analysis results")
			return
		}

		report, err := analysis.Build(stats, granularity)
		recordHistogram(err)
		if err != nil {
			writeError(w, buildErrorStatus(err), err.Error())
			return
		}
		writeJSON(w, nethttp.StatusOK, map[string]any{
			"meta": map[string]any{"scanner_id": scannerID, "analysis_job_id": jobID, "granularity": granularity},
			"data": report,
		})
	}
}

func loadJob(ctx context.Context, jobs *jobstore.Store, id string) (jobstore.Job, error) {
	start := time.Now()
	job, err := jobs.GetJob(ctx, id)
	recordDBQuery("sqlite", "GetJob", time.Since(start).Seconds(), ignoreNotFound(err))
	return job, err
}

// jobReport builds the charts of a finished job, writing the error response
// itself when that is not possible.
func jobReport(w nethttp.ResponseWriter, r *nethttp.Request, opts chartOptions, jobs *jobstore.Store, job jobstore.Job) (analysis.Report, float64, bool) {
	if job.State != jobstore.StateFinished {
		writeError(w, nethttp.StatusConflict, "analysis job is "+job.State)
		return analysis.Report{}, 0, false
	}
	granularity, err := granularityFromRequest(r, opts.defaultGranularity())
	if err != nil {
		writeError(w, nethttp.StatusBadRequest, err.Error())
		return analysis.Report{}, 0, false
	}

	start := time.Now()
	stats, err := jobs.TypeStats(r.Context(), job.ID)
	recordDBQuery("sqlite", "TypeStats", time.Since(start).Seconds(), err)
	if err != nil {
		writeError(w, nethttp.StatusInternalServerError, "failed to load type statistics")
		return analysis.Report{}, 0, false
	}

	report, err := analysis.Build(stats, granularity)
	recordHistogram(err)
	if err != nil {
		writeError(w, buildErrorStatus(err), err.Error())
		return analysis.Report{}, 0, false
	}
	return report, granularity, true
}

func writeBarPNG(w nethttp.ResponseWriter, r *nethttp.Request, opts chartOptions, report analysis.Report, n int) {
	if n < 1 || n > len(report.Bars) {
		writeError(w, nethttp.StatusNotFound, "bar chart not found")
		return
	}
	width := clampDimension(r.URL.Query().Get("width"), opts.width)
	height := clampDimension(r.URL.Query().Get("height"), opts.height)

	var buf bytes.Buffer
	if err := render.BarPNG(&buf, report.Bars[n-1], width, height); err != nil {
		writeError(w, nethttp.StatusInternalServerError, "failed to render chart")
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(nethttp.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

func (o chartOptions) defaultGranularity() float64 {
	if o.granularity >= histogram.MinGranularity && o.granularity <= 100 {
		return o.granularity
	}
	return histogram.DefaultGranularity
}

// buildErrorStatus maps a chart build failure to a response code. Too many
// bins is caused by the requested granularity; anything else by stored data.
func buildErrorStatus(err error) int {
	if errors.Is(err, histogram.ErrTooManyBins) {
		return nethttp.StatusBadRequest
	}
	return nethttp.StatusUnprocessableEntity
}

func granularityFromRequest(r *nethttp.Request, def float64) (float64, error) {
	raw := strings.TrimSpace(r.URL.Query().Get("granularity"))
	if raw == "" {
		return def, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || v < histogram.MinGranularity || v > 100 {
		return 0, errGranularityRange
	}
	return v, nil
}

func parseLimit(raw string, def int) int {
	limit, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || limit <= 0 {
		limit = def
	}
	if limit > 500 {
		limit = 500
	}
	return limit
}

func clampDimension(raw string, def int) int {
	v, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		v = def
	}
	if v < 100 {
		v = 100
	}
	if v > 4000 {
		v = 4000
	}
	return v
}

func ignoreNotFound(err error) error {
	if errors.Is(err, jobstore.ErrNotFound) || errors.Is(err, mysqlstore.ErrNoFinishedJob) {
		return nil
	}
	return err
}
