package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shelfarr/shelfbrowse/internal/catalog"
	"github.com/shelfarr/shelfbrowse/internal/config"
	"github.com/shelfarr/shelfbrowse/internal/db"
	"github.com/shelfarr/shelfbrowse/internal/metrics"
	"github.com/shelfarr/shelfbrowse/internal/openlibrary"
	"github.com/shelfarr/shelfbrowse/internal/scheduler"
	"github.com/sirupsen/logrus"
)

type stubSearcher struct {
	numFound int
}

func (s *stubSearcher) SearchBooks(ctx context.Context, query string, limit, offset int) (*openlibrary.SearchResponse, error) {
	cover := 99
	docs := []openlibrary.SearchDoc{
		{Key: "/works/" + query, Title: strings.ToUpper(query), AuthorName: []string{"Ada"}, CoverI: &cover},
		{Key: "/works/broken", Title: "No cover", AuthorName: []string{"Bob"}},
	}
	if s.numFound == 0 {
		docs = nil
	}
	return &openlibrary.SearchResponse{NumFound: s.numFound, Docs: docs}, nil
}

type fakeActivity struct {
	cycles []db.FetchCycle
	err    error
	limit  int
}

func (f *fakeActivity) Recent(ctx context.Context, limit int) ([]db.FetchCycle, error) {
	f.limit = limit
	return f.cycles, f.err
}

func newTestServer(t *testing.T, numFound int, deps Deps) (*Server, *catalog.Controller) {
	t.Helper()
	ctrl, err := catalog.New(&stubSearcher{numFound: numFound}, []catalog.Topic{"science", "history"})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(ctrl.Close)

	quiet := logrus.New()
	quiet.SetOutput(io.Discard)

	deps.Catalog = ctrl
	deps.Logger = quiet
	cfg := &config.Config{
		RequestTimeout: 2 * time.Second,
		DatabasePath:   t.TempDir() + "/none.db",
		OpenLibraryURL: "http://openlibrary.test",
	}
	return NewServer(cfg, deps), ctrl
}

func do(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = bytes.NewBufferString(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeView(t *testing.T, rec *httptest.ResponseRecorder) catalog.View {
	t.Helper()
	var v catalog.View
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode view: %v (%s)", err, rec.Body.String())
	}
	return v
}

func TestHealthCheck(t *testing.T) {
	s, _ := newTestServer(t, 1, Deps{Probe: func(ctx context.Context) error { return errors.New("unreachable") }})

	if rec := do(t, s, http.MethodGet, "/health", ""); rec.Code != http.StatusOK {
		t.Errorf("shallow health = %d", rec.Code)
	}
	rec := do(t, s, http.MethodGet, "/health?deep=1", "")
	if rec.Code != http.StatusServiceUnavailable || !strings.Contains(rec.Body.String(), "unreachable") {
		t.Errorf("deep health = %d %s", rec.Code, rec.Body.String())
	}
}

func TestGetCatalog_Wait(t *testing.T) {
	s, _ := newTestServer(t, 15, Deps{})

	rec := do(t, s, http.MethodGet, "/api/v1/catalog?wait=1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	v := decodeView(t, rec)
	if v.Status != "ready" || v.Topic != "science" || len(v.Books) != 1 {
		t.Fatalf("unexpected view %+v", v)
	}
	if v.Pagination.TotalPages != 2 || !v.Pagination.HasNext || v.Pagination.HasPrev {
		t.Errorf("pagination = %+v", v.Pagination)
	}
	b := v.Books[0]
	if b.ID != "science" || b.CoverURL != "https://covers.openlibrary.org/b/id/99-M.jpg" || b.Blurb != "A book by Ada." || b.URL != "https://openlibrary.org/works/science" {
		t.Errorf("book view = %+v", b)
	}
}

func TestGetCatalog_SoftEmptyKeepsTopics(t *testing.T) {
	s, _ := newTestServer(t, 0, Deps{})

	v := decodeView(t, do(t, s, http.MethodGet, "/api/v1/catalog?wait=1", ""))
	if v.Status != "empty" || v.Error != catalog.NoBooksMessage || len(v.Topics) != 2 {
		t.Fatalf("unexpected view %+v", v)
	}
}

func TestSetTopicAndPage(t *testing.T) {
	s, ctrl := newTestServer(t, 40, Deps{})
	waitCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	ctrl.Wait(waitCtx)

	rec := do(t, s, http.MethodPut, "/api/v1/catalog/page", `{"page":3}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("setPage = %d %s", rec.Code, rec.Body.String())
	}
	if v := decodeView(t, rec); v.Pagination.Page != 3 {
		t.Errorf("page = %d", v.Pagination.Page)
	}

	rec = do(t, s, http.MethodPut, "/api/v1/catalog/topic", `{"topic":"history"}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("setTopic = %d %s", rec.Code, rec.Body.String())
	}
	if v := decodeView(t, rec); v.Topic != "history" || v.Pagination.Page != 1 {
		t.Errorf("unexpected view after topic change %+v", v)
	}

	snap, err := ctrl.Wait(waitCtx)
	if err != nil {
		t.Fatal(err)
	}
	if snap.Topic != "history" || snap.Page != 1 || snap.Items[0].Key != "/works/history" {
		t.Errorf("unexpected snapshot %+v", snap)
	}
}

func TestSetTopicAndPage_Rejected(t *testing.T) {
	s, _ := newTestServer(t, 5, Deps{})

	tests := []struct {
		path, body string
		want       int
	}{
		{"/api/v1/catalog/topic", `{"topic":"cooking"}`, http.StatusBadRequest},
		{"/api/v1/catalog/page", `{"page":0}`, http.StatusBadRequest},
		{"/api/v1/catalog/page", `{"page":"two"}`, http.StatusBadRequest},
		{"/api/v1/catalog/page", `{"page":9223372036854775807}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		if rec := do(t, s, http.MethodPut, tt.path, tt.body); rec.Code != tt.want {
			t.Errorf("PUT %s %s = %d, want %d", tt.path, tt.body, rec.Code, tt.want)
		}
	}
}

func TestGetTopics(t *testing.T) {
	s, _ := newTestServer(t, 5, Deps{})

	var topics []catalog.TopicView
	rec := do(t, s, http.MethodGet, "/api/v1/topics", "")
	if err := json.Unmarshal(rec.Body.Bytes(), &topics); err != nil {
		t.Fatal(err)
	}
	if len(topics) != 2 || !topics[0].Active || topics[0].Label != "Science" || topics[1].Active {
		t.Errorf("unexpected topics %+v", topics)
	}
}

func TestGetActivity(t *testing.T) {
	act := &fakeActivity{cycles: []db.FetchCycle{{Seq: 4, Topic: "science", Outcome: "ready"}}}
	s, _ := newTestServer(t, 5, Deps{Activity: act})

	rec := do(t, s, http.MethodGet, "/api/v1/activity?limit=500", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"outcome":"ready"`) {
		t.Fatalf("activity = %d %s", rec.Code, rec.Body.String())
	}
	if act.limit != 50 {
		t.Errorf("out-of-range limit should fall back to 50, got %d", act.limit)
	}

	act.err = errors.New("locked")
	if rec := do(t, s, http.MethodGet, "/api/v1/activity", ""); rec.Code != http.StatusInternalServerError {
		t.Errorf("failing store = %d", rec.Code)
	}
}

func TestSystemTasks(t *testing.T) {
	sched := scheduler.NewScheduler(logrus.New())
	ran := false
	sched.AddTask("activity_prune", time.Hour, func(ctx context.Context) error {
		ran = true
		return nil
	})
	s, _ := newTestServer(t, 5, Deps{Tasks: sched})

	rec := do(t, s, http.MethodGet, "/api/v1/system/tasks", "")
	if !strings.Contains(rec.Body.String(), `"name":"activity_prune"`) || !strings.Contains(rec.Body.String(), `"interval":"1h0m0s"`) {
		t.Errorf("tasks = %s", rec.Body.String())
	}

	if rec := do(t, s, http.MethodPost, "/api/v1/system/tasks/activity_prune/run", ""); rec.Code != http.StatusOK || !ran {
		t.Errorf("run task = %d, ran = %v", rec.Code, ran)
	}
	if rec := do(t, s, http.MethodPost, "/api/v1/system/tasks/nope/run", ""); rec.Code != http.StatusNotFound {
		t.Errorf("unknown task = %d", rec.Code)
	}

	if rec := do(t, s, http.MethodPut, "/api/v1/system/tasks/activity_prune/enabled", `{"enabled":false}`); rec.Code != http.StatusOK {
		t.Errorf("disable task = %d %s", rec.Code, rec.Body.String())
	}
	if tasks := sched.GetTasks(); tasks[0].Enabled {
		t.Error("task still enabled")
	}
	if rec := do(t, s, http.MethodPut, "/api/v1/system/tasks/nope/enabled", `{"enabled":true}`); rec.Code != http.StatusNotFound {
		t.Errorf("toggle unknown task = %d", rec.Code)
	}
}

func TestSystemStatus(t *testing.T) {
	s, _ := newTestServer(t, 5, Deps{})

	var status SystemStatus
	rec := do(t, s, http.MethodGet, "/api/v1/system/status", "")
	if err := json.Unmarshal(rec.Body.Bytes(), &status); err != nil {
		t.Fatal(err)
	}
	if status.Catalog.Topic != "science" || status.Catalog.Upstream != "http://openlibrary.test" || status.Database.Status != "disabled" {
		t.Errorf("unexpected status %+v", status)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	s, _ := newTestServer(t, 5, Deps{Metrics: metrics.NewRecorder()})

	do(t, s, http.MethodGet, "/api/v1/topics", "")
	rec := do(t, s, http.MethodGet, "/metrics", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `shelfbrowse_http_requests_total{method="GET",path="/api/v1/topics",status="200"} 1`) {
		t.Errorf("metrics = %d\n%s", rec.Code, rec.Body.String())
	}
}

func TestHandleCommand(t *testing.T) {
	s, ctrl := newTestServer(t, 30, Deps{})

	if err := s.handleCommand("setPage", json.RawMessage(`{"page":2}`)); err != nil {
		t.Fatalf("setPage: %v", err)
	}
	if got := ctrl.Snapshot().Page; got != 2 {
		t.Errorf("page = %d", got)
	}
	if err := s.handleCommand("setTopic", json.RawMessage(`{"topic":"history"}`)); err != nil {
		t.Fatalf("setTopic: %v", err)
	}
	if err := s.handleCommand("setTopic", json.RawMessage(`{"topic":"cooking"}`)); !errors.Is(err, catalog.ErrUnknownTopic) {
		t.Errorf("unknown topic = %v", err)
	}
	for _, cmd := range []string{"dance", "subscribe", "unsubscribe"} {
		if err := s.handleCommand(cmd, nil); err == nil {
			t.Errorf("unknown command %q accepted", cmd)
		}
	}
}
