package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func serveMux(reg *Registry) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/backtests/jobs/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(r.PathValue("id")))
	})
	mux.HandleFunc("POST /api/v1/backtests", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	})
	return HTTPMiddleware(reg)(mux)
}

func TestHTTPMiddleware_LabelsByPattern(t *testing.T) {
	reg := NewRegistry()
	h := serveMux(reg)

	for _, id := range []string{"a", "b", "c"} {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest("GET", "/api/v1/backtests/jobs/"+id, nil))
		require.Equal(t, http.StatusOK, w.Code)
	}

	assert.Equal(t, 3.0, testutil.ToFloat64(
		reg.httpRequestsTotal.WithLabelValues("GET", "/api/v1/backtests/jobs/{id}", "2xx")))
	assert.Equal(t, 1, testutil.CollectAndCount(reg.httpRequestsTotal))
	assert.Equal(t, 1, testutil.CollectAndCount(reg.httpRequestDuration))
}

func TestHTTPMiddleware_CapturesStatusCode(t *testing.T) {
	reg := NewRegistry()
	h := serveMux(reg)

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest("POST", "/api/v1/backtests", nil))
	assert.Equal(t, http.StatusAccepted, w.Code)

	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest("GET", "/nowhere", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)

	assert.Equal(t, 1.0, testutil.ToFloat64(
		reg.httpRequestsTotal.WithLabelValues("POST", "/api/v1/backtests", "2xx")))
	assert.Equal(t, 1.0, testutil.ToFloat64(
		reg.httpRequestsTotal.WithLabelValues("GET", "unmatched", "4xx")))
}

func TestHTTPMiddleware_TracksInFlight(t *testing.T) {
	reg := NewRegistry()

	during := -1.0
	h := HTTPMiddleware(reg)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		during = testutil.ToFloat64(reg.httpRequestsInFlight)
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/", nil))

	assert.Equal(t, 1.0, during)
	assert.Equal(t, 0.0, testutil.ToFloat64(reg.httpRequestsInFlight))
}

func TestStatusRecorder_FirstWriteWins(t *testing.T) {
	rec := newStatusRecorder(httptest.NewRecorder())

	rec.Write([]byte("body"))
	rec.WriteHeader(http.StatusInternalServerError)

	assert.Equal(t, http.StatusOK, rec.status)
}
