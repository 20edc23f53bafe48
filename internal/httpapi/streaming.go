package httpapi

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Kocoro-lab/brandcast/go/orchestrator/internal/auth"
	"github.com/Kocoro-lab/brandcast/go/orchestrator/internal/streaming"
)

// StreamingHandler serves campaign progress events over SSE and websocket.
type StreamingHandler struct {
	mgr    *streaming.Manager
	store  CampaignReader
	logger *zap.Logger
}

// NewStreamingHandler creates a new handler. store may be nil, which skips
// the tenant check.
func NewStreamingHandler(mgr *streaming.Manager, store CampaignReader, logger *zap.Logger) *StreamingHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StreamingHandler{mgr: mgr, store: store, logger: logger}
}

// RegisterRoutes registers SSE and websocket routes on the provided mux.
func (h *StreamingHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /campaigns/{id}/events", h.handleSSE)
	h.RegisterWebSocket(mux)
}

// streamParams holds the options shared by both transports.
type streamParams struct {
	campaignID string
	types      map[string]struct{}
	lastID     uint64
}

func (p streamParams) wants(evt streaming.Event) bool {
	if len(p.types) == 0 {
		return true
	}
	_, ok := p.types[evt.Type]
	return ok
}

// params authorizes the caller for the campaign and parses the filters.
func (h *StreamingHandler) params(w http.ResponseWriter, r *http.Request) (streamParams, bool) {
	u := caller(w, r, auth.ScopeCampaignsRead)
	if u == nil {
		return streamParams{}, false
	}
	p := streamParams{campaignID: r.PathValue("id"), types: map[string]struct{}{}}
	if h.store != nil {
		camp, err := h.store.GetCampaign(r.Context(), p.campaignID)
		if err != nil || !u.CanAccessTenant(camp.Tenant) {
			writeError(w, http.StatusNotFound, "campaign not found")
			return streamParams{}, false
		}
	}

	if s := r.URL.Query().Get("types"); s != "" {
		for _, t := range strings.Split(s, ",") {
			t = strings.TrimSpace(t)
			if t != "" {
				p.types[t] = struct{}{}
			}
		}
	}
	if lei := r.Header.Get("Last-Event-ID"); lei != "" {
		if n, err := strconv.ParseUint(lei, 10, 64); err == nil {
			p.lastID = n
		}
	}
	if q := r.URL.Query().Get("last_event_id"); q != "" && p.lastID == 0 {
		if n, err := strconv.ParseUint(q, 10, 64); err == nil {
			p.lastID = n
		}
	}
	return p, true
}

// handleSSE streams events for a campaign via Server-Sent Events.
// GET /campaigns/{id}/events
func (h *StreamingHandler) handleSSE(w http.ResponseWriter, r *http.Request) {
	p, ok := h.params(w, r)
	if !ok {
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	ch := h.mgr.Subscribe(p.campaignID, 256)
	defer h.mgr.Unsubscribe(p.campaignID, ch)

	fmt.Fprintf(w, ": connected to campaign %s\n\n", p.campaignID)
	if p.lastID > 0 {
		for _, ev := range h.mgr.ReplaySince(p.campaignID, p.lastID) {
			if p.wants(ev) {
				writeSSE(w, ev)
			}
		}
	}
	flusher.Flush()

	hb := time.NewTicker(15 * time.Second)
	defer hb.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			h.logger.Debug("SSE client disconnected", zap.String("campaign_id", p.campaignID))
			return
		case evt, open := <-ch:
			if !open {
				return
			}
			if !p.wants(evt) {
				continue
			}
			writeSSE(w, evt)
			flusher.Flush()
		case <-hb.C:
			fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		}
	}
}

func writeSSE(w http.ResponseWriter, evt streaming.Event) {
	if evt.Seq > 0 {
		fmt.Fprintf(w, "id: %d\n", evt.Seq)
	}
	if evt.Type != "" {
		fmt.Fprintf(w, "event: %s\n", evt.Type)
	}
	fmt.Fprintf(w, "data: %s\n\n", evt.Marshal())
}
