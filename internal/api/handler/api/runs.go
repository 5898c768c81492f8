package api

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/newthinker/quantbench/internal/api/response"
	"github.com/newthinker/quantbench/internal/app"
	"github.com/newthinker/quantbench/internal/core"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 500
)

// RunsHandler serves the recorded run history.
type RunsHandler struct {
	app *app.App
}

// NewRunsHandler creates a new runs handler.
func NewRunsHandler(a *app.App) *RunsHandler {
	return &RunsHandler{app: a}
}

// List returns recent runs. ?limit= bounds the count.
func (h *RunsHandler) List(w http.ResponseWriter, r *http.Request) {
	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxHistoryLimit {
			response.Error(w, http.StatusBadRequest,
				core.WrapError(core.ErrInvalidInput, fmt.Errorf("limit must be between 1 and %d", maxHistoryLimit)))
			return
		}
		limit = n
	}

	records, err := h.app.History(r.Context(), limit)
	if err != nil {
		response.Fail(w, err)
		return
	}
	response.JSON(w, http.StatusOK, records)
}

// Get returns one run with its archived result.
func (h *RunsHandler) Get(w http.ResponseWriter, r *http.Request) {
	detail, err := h.app.Run(r.Context(), r.PathValue("id"))
	if err != nil {
		response.Fail(w, err)
		return
	}
	response.JSON(w, http.StatusOK, detail)
}
