package httpapi

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/Kocoro-lab/brandcast/go/orchestrator/internal/auth"
	"github.com/Kocoro-lab/brandcast/go/orchestrator/internal/constants"
	"github.com/Kocoro-lab/brandcast/go/orchestrator/internal/db"
	"github.com/Kocoro-lab/brandcast/go/orchestrator/internal/workflows"
)

// ApprovalHandler handles campaign approval decisions via HTTP and forwards them to Temporal as signals.
type ApprovalHandler struct {
	temporal WorkflowClient
	store    CampaignReader
	logger   *zap.Logger
}

// NewApprovalHandler creates a new handler.
func NewApprovalHandler(t WorkflowClient, store CampaignReader, logger *zap.Logger) *ApprovalHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ApprovalHandler{temporal: t, store: store, logger: logger}
}

// RegisterRoutes registers approval routes on the provided mux.
func (h *ApprovalHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /approvals/decision", h.handleDecision)
}

// approvalDecisionRequest is the expected payload for approval decisions.
type approvalDecisionRequest struct {
	CampaignID string `json:"campaign_id"`
	Approved   bool   `json:"approved"`
	Day        int    `json:"day,omitempty"`
	Feedback   string `json:"feedback,omitempty"`
}

func (h *ApprovalHandler) handleDecision(w http.ResponseWriter, r *http.Request) {
	u := caller(w, r, auth.ScopeCampaignsApprove)
	if u == nil {
		return
	}
	if h.temporal == nil || h.store == nil {
		writeError(w, http.StatusServiceUnavailable, "approvals are not available")
		return
	}

	var req approvalDecisionRequest
	if err := decodeJSON(r, &req); err != nil {
		h.logger.Warn("approval decode error", zap.Error(err))
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.CampaignID == "" {
		writeError(w, http.StatusBadRequest, "campaign_id is required")
		return
	}
	if req.Day < 0 {
		writeError(w, http.StatusBadRequest, "day must not be negative")
		return
	}

	camp, err := h.store.GetCampaign(r.Context(), req.CampaignID)
	if err != nil || !u.CanAccessTenant(camp.Tenant) {
		writeError(w, http.StatusNotFound, "campaign not found")
		return
	}
	if camp.Status != db.StatusCompleted {
		writeError(w, http.StatusConflict, "campaign is "+string(camp.Status)+", not awaiting approval")
		return
	}
	workflowID := "campaign-" + camp.ID
	if camp.WorkflowID != nil && *camp.WorkflowID != "" {
		workflowID = *camp.WorkflowID
	}

	payload := workflows.ApprovalDecision{
		Approved:  req.Approved,
		Day:       req.Day,
		Feedback:  req.Feedback,
		DecidedBy: u.Subject,
	}

	// Send signal with timeout
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()
	if err := h.temporal.SignalWorkflow(ctx, workflowID, "", constants.CampaignApprovalSignal, payload); err != nil {
		h.logger.Error("failed to signal workflow",
			zap.String("campaign_id", camp.ID),
			zap.String("workflow_id", workflowID),
			zap.Error(err),
		)
		writeError(w, http.StatusBadGateway, "failed to signal workflow")
		return
	}

	h.logger.Info("Approval decision sent",
		zap.String("campaign_id", camp.ID),
		zap.Bool("approved", req.Approved),
		zap.String("decided_by", u.Subject),
	)
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "sent",
		"campaign_id": camp.ID,
		"workflow_id": workflowID,
		"approved":    req.Approved,
	})
}
