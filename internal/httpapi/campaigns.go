package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	enumspb "go.temporal.io/api/enums/v1"
	"go.temporal.io/sdk/client"
	"go.uber.org/zap"

	"github.com/Kocoro-lab/brandcast/go/orchestrator/internal/activities"
	"github.com/Kocoro-lab/brandcast/go/orchestrator/internal/auth"
	"github.com/Kocoro-lab/brandcast/go/orchestrator/internal/calendar"
	"github.com/Kocoro-lab/brandcast/go/orchestrator/internal/constants"
	"github.com/Kocoro-lab/brandcast/go/orchestrator/internal/db"
	"github.com/Kocoro-lab/brandcast/go/orchestrator/internal/pipeline"
	"github.com/Kocoro-lab/brandcast/go/orchestrator/internal/workflows"
)

// WorkflowClient is the slice of the Temporal client the API uses.
type WorkflowClient interface {
	ExecuteWorkflow(ctx context.Context, options client.StartWorkflowOptions, workflow interface{}, args ...interface{}) (client.WorkflowRun, error)
	SignalWorkflow(ctx context.Context, workflowID string, runID string, signalName string, arg interface{}) error
}

// CampaignReader loads stored campaigns. *db.Client implements it.
type CampaignReader interface {
	GetCampaign(ctx context.Context, id string) (*db.Campaign, error)
	ListCampaigns(ctx context.Context, tenant string, limit int) ([]db.Campaign, error)
}

// CampaignDeps wires a CampaignHandler. Temporal and Store may be nil, which
// disables the endpoints that need them.
type CampaignDeps struct {
	Temporal      WorkflowClient
	Analyzer      activities.Analyzer
	Calendars     activities.CalendarGenerator
	Store         CampaignReader
	TemplateTypes []string
	TaskQueue     string

	// AnalysisTimeout and CalendarTimeout are passed to each campaign
	// workflow as its generation activity timeouts.
	AnalysisTimeout time.Duration
	CalendarTimeout time.Duration
}

// CampaignHandler serves the campaign endpoints.
type CampaignHandler struct {
	deps   CampaignDeps
	logger *zap.Logger
}

// NewCampaignHandler creates a new handler.
func NewCampaignHandler(deps CampaignDeps, logger *zap.Logger) *CampaignHandler {
	if deps.TaskQueue == "" {
		deps.TaskQueue = constants.CampaignTaskQueue
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CampaignHandler{deps: deps, logger: logger}
}

// RegisterRoutes registers campaign routes on the provided mux.
func (h *CampaignHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /campaigns", h.handleStart)
	mux.HandleFunc("POST /campaigns/analysis", h.handleAnalysis)
	mux.HandleFunc("POST /campaigns/calendar", h.handleCalendar)
	mux.HandleFunc("GET /campaigns", h.handleList)
	mux.HandleFunc("GET /campaigns/{id}", h.handleGet)
}

// campaignRequest is the payload shared by the campaign endpoints.
type campaignRequest struct {
	Company         string   `json:"company"`
	Product         string   `json:"product"`
	ICP             string   `json:"icp"`
	Tone            string   `json:"tone"`
	Description     string   `json:"description"`
	TemplateType    string   `json:"template_type"`
	ContentTypes    []string `json:"content_types"`
	PublishDay      int      `json:"publish_day,omitempty"`
	AutoApprove     bool     `json:"auto_approve,omitempty"`
	ApprovalTimeout int      `json:"approval_timeout,omitempty"`
}

const defaultTemplateType = "educational"

var errForbiddenTenant = errors.New("not allowed to act for this tenant")

// normalize resolves the tenant and validates template and content types.
func (h *CampaignHandler) normalize(u *auth.UserContext, req *campaignRequest) error {
	tenant, ok := tenantFor(u, strings.TrimSpace(req.Company))
	if !ok {
		if tenant == "" {
			return errors.New("company is required")
		}
		return errForbiddenTenant
	}
	req.Company = tenant

	if req.TemplateType == "" {
		req.TemplateType = defaultTemplateType
	}
	if len(h.deps.TemplateTypes) > 0 && !contains(h.deps.TemplateTypes, req.TemplateType) {
		return errors.New("unknown template_type " + req.TemplateType + "; expected one of " + strings.Join(h.deps.TemplateTypes, ", "))
	}

	if len(req.ContentTypes) == 0 {
		req.ContentTypes = []string{string(calendar.CanonicalPost)}
	}
	types, err := calendar.ParseContentTypes(req.ContentTypes)
	if err != nil {
		return err
	}
	req.ContentTypes = req.ContentTypes[:0]
	for _, ct := range types {
		req.ContentTypes = append(req.ContentTypes, string(ct))
	}
	if req.PublishDay < 0 || req.ApprovalTimeout < 0 {
		return errors.New("publish_day and approval_timeout must not be negative")
	}
	return nil
}

func (h *CampaignHandler) readRequest(w http.ResponseWriter, r *http.Request, scope string) (*campaignRequest, bool) {
	u := caller(w, r, scope)
	if u == nil {
		return nil, false
	}
	var req campaignRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return nil, false
	}
	if err := h.normalize(u, &req); err != nil {
		code := http.StatusBadRequest
		if errors.Is(err, errForbiddenTenant) {
			code = http.StatusForbidden
		}
		writeError(w, code, err.Error())
		return nil, false
	}
	return &req, true
}

// handleStart starts CampaignWorkflow.
// POST /campaigns
func (h *CampaignHandler) handleStart(w http.ResponseWriter, r *http.Request) {
	if h.deps.Temporal == nil {
		writeError(w, http.StatusServiceUnavailable, "workflow engine is not connected")
		return
	}
	req, ok := h.readRequest(w, r, auth.ScopeCampaignsWrite)
	if !ok {
		return
	}

	campaignID := uuid.NewString()
	workflowID := "campaign-" + campaignID
	input := workflows.CampaignInput{
		CampaignID:      campaignID,
		Tenant:          req.Company,
		Product:         req.Product,
		ICP:             req.ICP,
		Tone:            req.Tone,
		Description:     req.Description,
		TemplateType:    req.TemplateType,
		ContentTypes:    req.ContentTypes,
		PublishDay:      req.PublishDay,
		AutoApprove:     req.AutoApprove,
		ApprovalTimeout: req.ApprovalTimeout,
		AnalysisTimeout: seconds(h.deps.AnalysisTimeout),
		CalendarTimeout: seconds(h.deps.CalendarTimeout),
	}
	run, err := h.deps.Temporal.ExecuteWorkflow(r.Context(), client.StartWorkflowOptions{
		ID:                    workflowID,
		TaskQueue:             h.deps.TaskQueue,
		WorkflowIDReusePolicy: enumspb.WORKFLOW_ID_REUSE_POLICY_REJECT_DUPLICATE,
		Memo:                  map[string]interface{}{"tenant": req.Company, "template_type": req.TemplateType},
	}, workflows.CampaignWorkflow, input)
	if err != nil {
		h.logger.Error("Failed to start campaign workflow", zap.String("campaign_id", campaignID), zap.Error(err))
		writeError(w, http.StatusBadGateway, "failed to start campaign")
		return
	}

	h.logger.Info("Campaign workflow started",
		zap.String("campaign_id", campaignID),
		zap.String("tenant", req.Company),
		zap.String("workflow_id", run.GetID()),
	)
	writeJSON(w, http.StatusAccepted, map[string]string{
		"campaign_id": campaignID,
		"workflow_id": run.GetID(),
		"run_id":      run.GetRunID(),
	})
}

// handleAnalysis runs the analysis pipeline synchronously.
// POST /campaigns/analysis
func (h *CampaignHandler) handleAnalysis(w http.ResponseWriter, r *http.Request) {
	if h.deps.Analyzer == nil {
		writeError(w, http.StatusServiceUnavailable, "analysis is not configured")
		return
	}
	req, ok := h.readRequest(w, r, auth.ScopeCampaignsWrite)
	if !ok {
		return
	}

	res, err := h.deps.Analyzer.Run(r.Context(), pipeline.CampaignInput{
		CampaignID:  uuid.NewString(),
		Company:     req.Company,
		Product:     req.Product,
		ICP:         req.ICP,
		Tone:        req.Tone,
		Description: req.Description,
	})
	if err != nil {
		h.logger.Warn("Analysis interrupted", zap.String("tenant", req.Company), zap.Error(err))
		writeError(w, http.StatusGatewayTimeout, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"campaign_id":    res.CampaignID,
		"analysis":       res.Record,
		"failed_stages":  res.Failed(),
		"context_failed": res.ContextFailed,
	})
}

// handleCalendar runs the calendar coordinator synchronously.
// POST /campaigns/calendar
func (h *CampaignHandler) handleCalendar(w http.ResponseWriter, r *http.Request) {
	if h.deps.Calendars == nil {
		writeError(w, http.StatusServiceUnavailable, "calendar generation is not configured")
		return
	}
	req, ok := h.readRequest(w, r, auth.ScopeCampaignsWrite)
	if !ok {
		return
	}

	cal, err := h.deps.Calendars.Generate(r.Context(), calendar.Request{
		CampaignID:   uuid.NewString(),
		Company:      req.Company,
		ICP:          req.ICP,
		Tone:         req.Tone,
		Description:  req.Description,
		ContentTypes: req.ContentTypes,
		TemplateType: req.TemplateType,
	})
	if err != nil {
		if errors.Is(err, calendar.ErrUnknownTemplate) || errors.Is(err, calendar.ErrUnknownContentType) || errors.Is(err, calendar.ErrNoContentTypes) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.logger.Warn("Calendar generation interrupted", zap.String("tenant", req.Company), zap.Error(err))
		writeError(w, http.StatusGatewayTimeout, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, cal)
}

// handleGet returns one stored campaign.
// GET /campaigns/{id}
func (h *CampaignHandler) handleGet(w http.ResponseWriter, r *http.Request) {
	u := caller(w, r, auth.ScopeCampaignsRead)
	if u == nil {
		return
	}
	camp, ok := h.load(w, r, u, r.PathValue("id"))
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, camp)
}

// handleList returns the caller's newest campaigns.
// GET /campaigns?tenant=<name>&limit=<n>
func (h *CampaignHandler) handleList(w http.ResponseWriter, r *http.Request) {
	u := caller(w, r, auth.ScopeCampaignsRead)
	if u == nil {
		return
	}
	if h.deps.Store == nil {
		writeError(w, http.StatusServiceUnavailable, "campaign store is not configured")
		return
	}
	tenant, ok := tenantFor(u, r.URL.Query().Get("tenant"))
	if !ok {
		if tenant == "" {
			writeError(w, http.StatusBadRequest, "tenant is required")
		} else {
			writeError(w, http.StatusForbidden, errForbiddenTenant.Error())
		}
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	list, err := h.deps.Store.ListCampaigns(r.Context(), tenant, limit)
	if err != nil {
		h.logger.Error("Failed to list campaigns", zap.String("tenant", tenant), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list campaigns")
		return
	}
	if list == nil {
		list = []db.Campaign{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"campaigns": list})
}

// load fetches a campaign the caller may see, writing the error response
// when it cannot.
func (h *CampaignHandler) load(w http.ResponseWriter, r *http.Request, u *auth.UserContext, id string) (*db.Campaign, bool) {
	if h.deps.Store == nil {
		writeError(w, http.StatusServiceUnavailable, "campaign store is not configured")
		return nil, false
	}
	camp, err := h.deps.Store.GetCampaign(r.Context(), id)
	if errors.Is(err, db.ErrNotFound) {
		writeError(w, http.StatusNotFound, "campaign not found")
		return nil, false
	}
	if err != nil {
		h.logger.Error("Failed to load campaign", zap.String("campaign_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load campaign")
		return nil, false
	}
	if !u.CanAccessTenant(camp.Tenant) {
		// Other tenants' campaigns are indistinguishable from missing ones.
		writeError(w, http.StatusNotFound, "campaign not found")
		return nil, false
	}
	return camp, true
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// seconds rounds d up to whole seconds for workflow input.
func seconds(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int((d + time.Second - 1) / time.Second)
}
