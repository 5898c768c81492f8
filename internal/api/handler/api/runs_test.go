package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/newthinker/quantbench/internal/app"
	"github.com/stretchr/testify/assert"
)

func TestRunsHandler_List_InvalidLimit(t *testing.T) {
	h := NewRunsHandler(app.New(nil, nil))

	for _, limit := range []string{"0", "-1", "abc", "501"} {
		req := httptest.NewRequest("GET", "/api/v1/backtests?limit="+limit, nil)
		w := httptest.NewRecorder()
		h.List(w, req)
		assert.Equal(t, http.StatusBadRequest, w.Code, limit)
	}
}

func TestRunsHandler_HistoryDisabled(t *testing.T) {
	h := NewRunsHandler(app.New(nil, nil))

	req := httptest.NewRequest("GET", "/api/v1/backtests", nil)
	w := httptest.NewRecorder()
	h.List(w, req)

	assert.Equal(t, http.StatusNotImplemented, w.Code)
}
