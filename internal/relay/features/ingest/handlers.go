package ingest

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/leapstack-labs/leapflow-posthog/internal/relay"
	"github.com/leapstack-labs/leapflow-posthog/internal/relay/features/common"
	phclient "github.com/leapstack-labs/leapflow-posthog/pkg/posthog"
)

// Handlers provides the event intake endpoints.
type Handlers struct {
	service *relay.Service
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(svc *relay.Service) *Handlers {
	return &Handlers{service: svc}
}

type captureResponse struct {
	Status string `json:"status"`
}

type batchResponse struct {
	Accepted int    `json:"accepted"`
	Dropped  int    `json:"dropped"`
	Error    string `json:"error,omitempty"`
}

// Capture ingests a single posthog shaped event.
func (h *Handlers) Capture(w http.ResponseWriter, r *http.Request) {
	var raw map[string]any
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		common.Error(w, http.StatusBadRequest, fmt.Errorf("invalid event payload: %w", err))
		return
	}

	accepted, err := h.service.Ingest(r.Context(), raw)
	if err != nil {
		common.Error(w, ingestStatus(err), err)
		return
	}
	if !accepted {
		common.JSON(w, http.StatusOK, captureResponse{Status: "dropped"})
		return
	}
	common.JSON(w, http.StatusOK, captureResponse{Status: "queued"})
}

// Batch ingests a {"batch": [...]} payload in order.
func (h *Handlers) Batch(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Batch []map[string]any `json:"batch"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		common.Error(w, http.StatusBadRequest, fmt.Errorf("invalid batch payload: %w", err))
		return
	}
	if len(body.Batch) == 0 {
		common.Error(w, http.StatusBadRequest, errors.New("batch must not be empty"))
		return
	}

	accepted, dropped, err := h.service.IngestBatch(r.Context(), body.Batch)
	if err != nil {
		common.JSON(w, ingestStatus(err), batchResponse{
			Accepted: accepted,
			Dropped:  dropped,
			Error:    err.Error(),
		})
		return
	}
	common.JSON(w, http.StatusOK, batchResponse{Accepted: accepted, Dropped: dropped})
}

// Flush pushes the delivery queue out to PostHog and waits for it.
func (h *Handlers) Flush(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Flush(r.Context()); err != nil {
		common.Error(w, http.StatusServiceUnavailable, err)
		return
	}
	common.JSON(w, http.StatusOK, captureResponse{Status: "flushed"})
}

// ingestStatus maps an ingest error to its response status. Malformed
// events are the caller's fault, everything else is ours.
func ingestStatus(err error) int {
	var fieldErr *phclient.FieldError
	if errors.As(err, &fieldErr) {
		return http.StatusBadRequest
	}
	var parseErr *time.ParseError
	if errors.As(err, &parseErr) {
		return http.StatusBadRequest
	}
	if errors.Is(err, phclient.ErrClosed) {
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}
