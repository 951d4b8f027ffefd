package overview

import (
	"bytes"
	"context"
	"net/http"

	"github.com/starfederation/datastar-go/datastar"

	"github.com/leapstack-labs/leapflow-posthog/internal/relay"
	"github.com/leapstack-labs/leapflow-posthog/internal/relay/features/common"
	"github.com/leapstack-labs/leapflow-posthog/internal/relay/notifier"
	"github.com/leapstack-labs/leapflow-posthog/internal/spool"
)

// Handlers provides the dashboard and status endpoints.
type Handlers struct {
	service  *relay.Service
	notifier *notifier.Notifier
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(svc *relay.Service) *Handlers {
	return &Handlers{service: svc, notifier: svc.Notifier()}
}

type dashboardData struct {
	ConnID      string
	Transforms  int
	Inflight    int
	Stats       relay.StatsSnapshot
	Spool       *spool.Stats
	DatastarSrc string
}

type statsResponse struct {
	ConnID   string              `json:"conn_id"`
	Relay    relay.StatsSnapshot `json:"relay"`
	Spool    *spool.Stats        `json:"spool"`
	Inflight int                 `json:"inflight"`
}

// Dashboard renders the relay overview page.
func (h *Handlers) Dashboard(w http.ResponseWriter, r *http.Request) {
	data, err := h.dashboardData(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if err := pageTmpl.Execute(w, data); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// Updates is the long-lived SSE endpoint behind the dashboard. It
// subscribes to relay changes and patches the dashboard section on each
// one; the initial state comes from Dashboard.
func (h *Handlers) Updates(w http.ResponseWriter, r *http.Request) {
	sse := datastar.NewSSE(w, r)

	updates := h.notifier.Subscribe()
	defer h.notifier.Unsubscribe(updates)

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-updates:
			if err := h.sendDashboard(ctx, sse); err != nil {
				_ = sse.ConsoleError(err)
			}
		}
	}
}

// Healthz reports liveness.
func (h *Handlers) Healthz(w http.ResponseWriter, _ *http.Request) {
	common.JSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"conn_id": h.service.ConnID(),
	})
}

// StatsJSON returns the relay and spool counters.
func (h *Handlers) StatsJSON(w http.ResponseWriter, r *http.Request) {
	spoolStats, err := h.service.SpoolStats(r.Context())
	if err != nil {
		common.Error(w, http.StatusInternalServerError, err)
		return
	}
	common.JSON(w, http.StatusOK, statsResponse{
		ConnID:   h.service.ConnID(),
		Relay:    h.service.Stats(),
		Spool:    spoolStats,
		Inflight: h.service.InflightCount(),
	})
}

func (h *Handlers) sendDashboard(ctx context.Context, sse *datastar.ServerSentEventGenerator) error {
	data, err := h.dashboardData(ctx)
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := pageTmpl.ExecuteTemplate(&buf, "dashboard", data); err != nil {
		return err
	}
	return sse.PatchElements(buf.String())
}

func (h *Handlers) dashboardData(ctx context.Context) (dashboardData, error) {
	spoolStats, err := h.service.SpoolStats(ctx)
	if err != nil {
		return dashboardData{}, err
	}
	return dashboardData{
		ConnID:      h.service.ConnID(),
		Transforms:  h.service.TransformCount(),
		Inflight:    h.service.InflightCount(),
		Stats:       h.service.Stats(),
		Spool:       spoolStats,
		DatastarSrc: datastarSrc,
	}, nil
}
