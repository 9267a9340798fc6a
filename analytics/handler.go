package analytics

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/jonwraymond/realmgate/observe"
)

// Handler serves GET /analytics/top-regions.
type Handler struct {
	service     *Service
	defaultTopN int
	logger      observe.Logger
}

// NewHandler creates the HTTP handler. defaultTopN applies when the request
// omits top_n.
func NewHandler(service *Service, defaultTopN int, logger observe.Logger) *Handler {
	if logger == nil {
		logger = observe.NopLogger()
	}
	return &Handler{
		service:     service,
		defaultTopN: defaultTopN,
		logger:      logger.With(observe.F("component", "analytics")),
	}
}

// ServeHTTP validates the query and writes the aggregation as JSON.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	q, err := ParseQuery(r.URL.Query(), h.defaultTopN)
	if err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, errorBody{Detail: detail(err)})
		return
	}

	resp, hit, err := h.service.TopRegions(r.Context(), q)
	if err != nil {
		h.logger.Error(r.Context(), "top regions query failed", observe.F("error", err))
		writeJSON(w, http.StatusInternalServerError, errorBody{Detail: "Query failed"})
		return
	}

	if hit {
		w.Header().Set("X-Cache", "HIT")
	} else {
		w.Header().Set("X-Cache", "MISS")
	}
	writeJSON(w, http.StatusOK, resp)
}

type errorBody struct {
	Detail string `json:"detail"`
}

// detail strips the package prefix from validation errors.
func detail(err error) string {
	msg := err.Error()
	prefix := ErrInvalidQuery.Error() + ": "
	if errors.Is(err, ErrInvalidQuery) && len(msg) > len(prefix) {
		return msg[len(prefix):]
	}
	return msg
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
