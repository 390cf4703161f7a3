package metrics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserveBatchCountsOpsAndErrors(t *testing.T) {
	before := testutil.ToFloat64(DiffOps.WithLabelValues("test_stream"))
	beforeErr := testutil.ToFloat64(DiffErrors.WithLabelValues("test_stream"))

	ObserveBatch("test_stream", 3, nil)
	ObserveBatch("test_stream", 2, errors.New("bad op"))

	if got := testutil.ToFloat64(DiffOps.WithLabelValues("test_stream")) - before; got != 5 {
		t.Fatalf("expected 5 ops recorded, got %v", got)
	}
	if got := testutil.ToFloat64(DiffErrors.WithLabelValues("test_stream")) - beforeErr; got != 1 {
		t.Fatalf("expected 1 error recorded, got %v", got)
	}
}

func TestRouterServesRoomSnapshot(t *testing.T) {
	srv := httptest.NewServer(Router(func() interface{} {
		return map[string]string{"!a:example.org": "Alpha"}
	}))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/debug/rooms")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), `"!a:example.org":"Alpha"`) {
		t.Fatalf("unexpected body %s", body)
	}
}

func TestRouterServesMetrics(t *testing.T) {
	Timelines.Set(2)
	srv := httptest.NewServer(Router(nil))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "multiverse_timeline_registered 2") {
		t.Fatalf("expected timeline gauge in output")
	}
}
