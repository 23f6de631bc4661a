package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go-ds-analysis-report-ui/internal/connectors/jobstore"
	"go-ds-analysis-report-ui/internal/histogram"
	"go-ds-analysis-report-ui/internal/scan"
)

var testChartOptions = chartOptions{granularity: 5, maxSamples: 100, width: 400, height: 240}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var payload map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	return payload
}

func TestHistogramHandler_SingleSample(t *testing.T) {
	h := histogramHandler(testChartOptions)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/histogram", strings.NewReader(`{"sizes":[2048]}`))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d: %s", http.StatusOK, rr.Code, rr.Body.String())
	}
	payload := decodeBody(t, rr)
	meta := payload["meta"].(map[string]any)
	if meta["bin_size"].(float64) != 1 || meta["count"].(float64) != 1 {
		t.Fatalf("unexpected meta: %v", meta)
	}
	data := payload["data"].([]any)
	point := data[0].(map[string]any)
	if point["x"].(float64) != 2048 || point["y"].(float64) != 1 {
		t.Fatalf("unexpected point: %v", point)
	}
}

func TestHistogramHandler_RejectsBadInput(t *testing.T) {
	h := histogramHandler(testChartOptions)

	cases := []struct {
		body string
		code int
	}{
		{`{"sizes":[]}`, http.StatusBadRequest},
		{`{"sizes":[1,-5]}`, http.StatusBadRequest},
		{`{"sizes":[1,2],"granularity":-1}`, http.StatusBadRequest},
		{`not json`, http.StatusBadRequest},
		{`{"sizes":[` + strings.Repeat("1,", 100) + `1]}`, http.StatusRequestEntityTooLarge},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/histogram", strings.NewReader(tc.body))
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		if rr.Code != tc.code {
			t.Fatalf("body %.40q: expected status %d, got %d", tc.body, tc.code, rr.Code)
		}
		if decodeBody(t, rr)["error"] == nil {
			t.Fatalf("expected error field in response")
		}
	}
}

func TestHistogramHandler_BinCountIsBounded(t *testing.T) {
	h := histogramHandler(testChartOptions)
	sizes := strings.Repeat("1024,", 16) + "1e12"

	req := httptest.NewRequest(http.MethodPost, "/api/v1/histogram", strings.NewReader(`{"sizes":[`+sizes+`],"granularity":0.00001}`))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status %d, got %d (%d bytes)", http.StatusBadRequest, rr.Code, rr.Body.Len())
	}

	req = httptest.NewRequest(http.MethodPost, "/api/v1/histogram", strings.NewReader(`{"sizes":[`+sizes+`],"granularity":0.1}`))
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d: %s", http.StatusOK, rr.Code, rr.Body.String())
	}
	meta := decodeBody(t, rr)["meta"].(map[string]any)
	if bins := meta["bins"].(float64); bins > histogram.MaxBins {
		t.Fatalf("expected at most %d bins, got %v", histogram.MaxBins, bins)
	}
}

func TestHistogramHandler_MethodNotAllowed(t *testing.T) {
	h := histogramHandler(testChartOptions)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/histogram", nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected status %d, got %d", http.StatusMethodNotAllowed, rr.Code)
	}
}

func TestAnalysisHandlers_StoreDisabled(t *testing.T) {
	mux := newMux(50, testChartOptions, nil, nil, nil)

	for _, path := range []string{
		"/api/v1/analysis/jobs",
		"/api/v1/analysis/jobs/abc/charts",
		"/api/v1/analysis/latest?source=/tmp",
		"/api/v1/scanners/3/charts",
	} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rr := httptest.NewRecorder()
		mux.ServeHTTP(rr, req)
		if rr.Code != http.StatusServiceUnavailable {
			t.Fatalf("%s: expected status %d, got %d", path, http.StatusServiceUnavailable, rr.Code)
		}
	}
}

func newAnalysisFixture(t *testing.T) (*http.ServeMux, *jobstore.Store, *scan.Service) {
	t.Helper()
	store, err := jobstore.NewSQLiteStore(filepath.Join(t.TempDir(), "jobs.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	runner, err := scan.NewRunner(scan.Options{})
	if err != nil {
		t.Fatalf("runner: %v", err)
	}
	svc := scan.NewService(runner, store, time.Minute)
	t.Cleanup(func() {
		svc.Close()
		_ = store.Close()
	})
	return newMux(50, testChartOptions, store, svc, nil), store, svc
}

func TestAnalysisFlow(t *testing.T) {
	mux, _, svc := newAnalysisFixture(t)

	root := t.TempDir()
	for name, size := range map[string]int{"a.pdf": 4096, "b.pdf": 20480, "c.png": 300} {
		if err := os.WriteFile(filepath.Join(root, name), make([]byte, size), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
	}

	body, _ := json.Marshal(map[string]string{"source": root})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/analysis/jobs", bytes.NewReader(body))
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)
	if rr.Code != http.StatusAccepted {
		t.Fatalf("expected status %d, got %d: %s", http.StatusAccepted, rr.Code, rr.Body.String())
	}
	id := decodeBody(t, rr)["data"].(map[string]any)["id"].(string)
	svc.Wait()

	req = httptest.NewRequest(http.MethodGet, "/api/v1/analysis/jobs/"+id+"/charts", nil)
	rr = httptest.NewRecorder()
	mux.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d: %s", http.StatusOK, rr.Code, rr.Body.String())
	}
	report := decodeBody(t, rr)["data"].(map[string]any)
	if bars := report["bars"].([]any); len(bars) != 2 {
		t.Fatalf("expected 2 bar charts, got %d", len(bars))
	}
	if pies := report["pies"].([]any); len(pies) != 2 {
		t.Fatalf("expected 2 pies, got %d", len(pies))
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/analysis/jobs/"+id+"/bars/1.png", nil)
	rr = httptest.NewRecorder()
	mux.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK || rr.Header().Get("Content-Type") != "image/png" {
		t.Fatalf("expected png, got status %d type %q", rr.Code, rr.Header().Get("Content-Type"))
	}

	for _, path := range []string{
		"/api/v1/analysis/jobs/" + id + "/charts?granularity=0.00001",
		"/api/v1/analysis/jobs/" + id + "/bars/1.png?granularity=1e-8",
		"/api/v1/analysis/latest?source=" + root + "&granularity=0.05",
	} {
		req = httptest.NewRequest(http.MethodGet, path, nil)
		rr = httptest.NewRecorder()
		mux.ServeHTTP(rr, req)
		if rr.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected status %d, got %d", path, http.StatusBadRequest, rr.Code)
		}
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/analysis/jobs/"+id+"/bars/9.png", nil)
	rr = httptest.NewRecorder()
	mux.ServeHTTP(rr, req)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected status %d, got %d", http.StatusNotFound, rr.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/analysis/latest?source="+root+"/", nil)
	rr = httptest.NewRecorder()
	mux.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected latest status %d, got %d: %s", http.StatusOK, rr.Code, rr.Body.String())
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/analysis/jobs?limit=5", nil)
	rr = httptest.NewRecorder()
	mux.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rr.Code)
	}
	if n := len(decodeBody(t, rr)["data"].([]any)); n != 1 {
		t.Fatalf("expected 1 job, got %d", n)
	}
}

func TestAnalysisJobRouter_RunningJobHasNoCharts(t *testing.T) {
	mux, store, _ := newAnalysisFixture(t)
	if err := store.CreateJob(context.Background(), "job-running", "/data"); err != nil {
		t.Fatalf("create: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/analysis/jobs/job-running/charts", nil)
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)
	if rr.Code != http.StatusConflict {
		t.Fatalf("expected status %d, got %d", http.StatusConflict, rr.Code)
	}

	body := strings.NewReader(`{"source":"/data"}`)
	req = httptest.NewRequest(http.MethodPost, "/api/v1/analysis/jobs", body)
	rr = httptest.NewRecorder()
	mux.ServeHTTP(rr, req)
	if rr.Code != http.StatusConflict {
		t.Fatalf("expected status %d for second job, got %d", http.StatusConflict, rr.Code)
	}
}

func TestAnalysisJobRouter_NotFound(t *testing.T) {
	mux, _, _ := newAnalysisFixture(t)

	for _, path := range []string{
		"/api/v1/analysis/jobs/missing",
		"/api/v1/analysis/jobs/missing/charts",
		"/api/v1/analysis/jobs/",
	} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rr := httptest.NewRecorder()
		mux.ServeHTTP(rr, req)
		if rr.Code != http.StatusNotFound {
			t.Fatalf("%s: expected status %d, got %d", path, http.StatusNotFound, rr.Code)
		}
	}
}

func TestNormalizeMetricPath(t *testing.T) {
	cases := map[string]string{
		"/api/v1/analysis/jobs/abc":            "/api/v1/analysis/jobs/{id}",
		"/api/v1/analysis/jobs/abc/charts":     "/api/v1/analysis/jobs/{id}/charts",
		"/api/v1/analysis/jobs/abc/bars/2.png": "/api/v1/analysis/jobs/{id}/bars/{n}.png",
		"/api/v1/scanners/12/charts":           "/api/v1/scanners/{id}/charts",
		"/api/v1/histogram":                    "/api/v1/histogram",
	}
	for in, want := range cases {
		if got := normalizeMetricPath(in); got != want {
			t.Fatalf("%s: expected %s, got %s", in, want, got)
		}
	}
}
