package webd

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rovermap/insd/engine"
	"github.com/rovermap/insd/params"
)

func newTestDaemon(t *testing.T) (*WebDaemon, *engine.Engine) {
	t.Helper()
	filters, err := engine.NewFilters([]string{"geokf"},
		params.DefaultFilterConfig(), params.DefaultGateConfig())
	if err != nil {
		t.Fatal(err)
	}
	eng, err := engine.New(params.DefaultEngineConfig(), filters...)
	if err != nil {
		t.Fatal(err)
	}
	return NewWebDaemon(nil, eng), eng
}

func TestPing(t *testing.T) {
	d, _ := newTestDaemon(t)
	router := d.NewRouter(context.Background())

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status: %d", w.Code)
	}
	if w.Body.String() != "pong" {
		t.Errorf("body: %q", w.Body.String())
	}
}

func TestStateAllEmptyBeforePublish(t *testing.T) {
	d, _ := newTestDaemon(t)
	router := d.NewRouter(context.Background())

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/state", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status: %d", w.Code)
	}
	var got []json.RawMessage
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Errorf("poses before any publish: %d", len(got))
	}
}

func TestStateUnknownFilter404(t *testing.T) {
	d, _ := newTestDaemon(t)
	router := d.NewRouter(context.Background())

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/state/nope", nil))
	if w.Code != http.StatusNotFound {
		t.Errorf("status: %d", w.Code)
	}
}

func TestNISUnknownFilter404(t *testing.T) {
	d, _ := newTestDaemon(t)
	router := d.NewRouter(context.Background())

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/nis/nope", nil))
	if w.Code != http.StatusNotFound {
		t.Errorf("status: %d", w.Code)
	}
}

func TestRoadNoMatch404(t *testing.T) {
	d, _ := newTestDaemon(t)
	router := d.NewRouter(context.Background())

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/road", nil))
	if w.Code != http.StatusNotFound {
		t.Errorf("status: %d", w.Code)
	}
}

func TestStatusReport(t *testing.T) {
	d, _ := newTestDaemon(t)
	router := d.NewRouter(context.Background())
	d.started = time.Now()

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/status", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status: %d", w.Code)
	}
	var st webDaemonStatus
	if err := json.Unmarshal(w.Body.Bytes(), &st); err != nil {
		t.Fatal(err)
	}
	if len(st.Variants) != 1 || st.Variants[0] != "geokf" {
		t.Errorf("variants: %v", st.Variants)
	}
}

func TestPopulateNDJSON(t *testing.T) {
	d, _ := newTestDaemon(t)
	router := d.NewRouter(context.Background())

	body := strings.Join([]string{
		`{"type":"gps","unix":1717243200,"lat":45.5,"lon":-122.7,"alt":10,"accuracy":5}`,
		``, // blank lines are tolerated
		`{"type":"accel","unix":1717243201,"values":[0,0,9.81]}`,
		`{"type":"gps","unix":1717243202,"lat":95,"lon":0,"accuracy":5}`, // invalid
		`this is not json`,
	}, "\n")

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/populate", strings.NewReader(body))
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status: %d body: %s", w.Code, w.Body.String())
	}
	var counts map[string]int
	if err := json.Unmarshal(w.Body.Bytes(), &counts); err != nil {
		t.Fatal(err)
	}
	if counts["accepted"] != 2 {
		t.Errorf("accepted: got %d want 2", counts["accepted"])
	}
	if counts["rejected"] != 2 {
		t.Errorf("rejected: got %d want 2", counts["rejected"])
	}
}

func TestPopulateTokenAuth(t *testing.T) {
	t.Setenv("INSD_API_TOKEN", "sesame")
	d, _ := newTestDaemon(t)
	router := d.NewRouter(context.Background())

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/populate", strings.NewReader(""))
	router.ServeHTTP(w, req)
	if w.Code != http.StatusForbidden {
		t.Errorf("no token: status %d", w.Code)
	}

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/populate", strings.NewReader(""))
	req.Header.Set("X-Api-Token", "sesame")
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("valid token: status %d", w.Code)
	}
}
