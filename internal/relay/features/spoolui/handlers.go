package spoolui

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/leapstack-labs/leapflow-posthog/internal/relay"
	"github.com/leapstack-labs/leapflow-posthog/internal/relay/features/common"
	"github.com/leapstack-labs/leapflow-posthog/internal/spool"
)

// defaultPurgeAge keeps resolved batches around for a day by default.
const defaultPurgeAge = 24 * time.Hour

// Handlers provides the spool inspection and maintenance endpoints.
type Handlers struct {
	service *relay.Service
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(svc *relay.Service) *Handlers {
	return &Handlers{service: svc}
}

type listResponse struct {
	Batches []*spool.Batch `json:"batches"`
}

// List returns spooled batches, pending only unless ?all=1.
func (h *Handlers) List(w http.ResponseWriter, r *http.Request) {
	store := h.service.Spool()
	if store == nil {
		common.JSON(w, http.StatusOK, listResponse{Batches: []*spool.Batch{}})
		return
	}

	var (
		batches []*spool.Batch
		err     error
	)
	if r.URL.Query().Get("all") != "" {
		batches, err = store.ListAll(r.Context())
	} else {
		limit := 0
		if v := r.URL.Query().Get("limit"); v != "" {
			limit, err = strconv.Atoi(v)
			if err != nil {
				common.Error(w, http.StatusBadRequest, fmt.Errorf("invalid limit: %w", err))
				return
			}
		}
		batches, err = store.ListPending(r.Context(), limit)
	}
	if err != nil {
		common.Error(w, http.StatusInternalServerError, err)
		return
	}
	if batches == nil {
		batches = []*spool.Batch{}
	}
	common.JSON(w, http.StatusOK, listResponse{Batches: batches})
}

// Replay drains pending batches back through a delivery client.
func (h *Handlers) Replay(w http.ResponseWriter, r *http.Request) {
	opts := spool.ReplayOptions{}
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			common.Error(w, http.StatusBadRequest, fmt.Errorf("invalid limit: %w", err))
			return
		}
		opts.Limit = n
	}

	result, err := h.service.ReplaySpool(r.Context(), opts)
	if err != nil {
		common.Error(w, http.StatusInternalServerError, err)
		return
	}
	common.JSON(w, http.StatusOK, result)
}

// Purge deletes resolved batches older than ?older_than (a Go duration).
func (h *Handlers) Purge(w http.ResponseWriter, r *http.Request) {
	age := defaultPurgeAge
	if v := r.URL.Query().Get("older_than"); v != "" {
		parsed, err := time.ParseDuration(v)
		if err != nil {
			common.Error(w, http.StatusBadRequest, fmt.Errorf("invalid older_than: %w", err))
			return
		}
		age = parsed
	}

	store := h.service.Spool()
	if store == nil {
		common.JSON(w, http.StatusOK, map[string]int{"purged": 0})
		return
	}
	n, err := store.Purge(r.Context(), age)
	if err != nil {
		common.Error(w, http.StatusInternalServerError, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]int{"purged": n})
}
