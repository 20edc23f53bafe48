package workflows

import (
	"time"

	"github.com/Kocoro-lab/brandcast/go/orchestrator/internal/calendar"
	"github.com/Kocoro-lab/brandcast/go/orchestrator/internal/db"
	"github.com/Kocoro-lab/brandcast/go/orchestrator/internal/pipeline"
	"github.com/Kocoro-lab/brandcast/go/orchestrator/internal/publish"
)

// Defaults applied to CampaignInput.
const (
	DefaultApprovalTimeout = 24 * time.Hour
	DefaultPublishDay      = 1
)

// CampaignInput starts a full campaign run.
type CampaignInput struct {
	CampaignID   string   `json:"campaign_id"`
	Tenant       string   `json:"tenant"`
	Product      string   `json:"product"`
	ICP          string   `json:"icp"`
	Tone         string   `json:"tone"`
	Description  string   `json:"description"`
	TemplateType string   `json:"template_type"`
	ContentTypes []string `json:"content_types"`

	// PublishDay is sent when an approval does not name a day.
	PublishDay int `json:"publish_day,omitempty"`

	// ApprovalTimeout in seconds; zero means DefaultApprovalTimeout.
	ApprovalTimeout int `json:"approval_timeout,omitempty"`

	// AutoApprove skips the approval wait.
	AutoApprove bool `json:"auto_approve,omitempty"`

	// AnalysisTimeout and CalendarTimeout bound the generation activities,
	// in seconds. Zero means opts.DefaultGenerationTimeout.
	AnalysisTimeout int `json:"analysis_timeout,omitempty"`
	CalendarTimeout int `json:"calendar_timeout,omitempty"`
}

func (in CampaignInput) analysisInput(campaignID string) pipeline.CampaignInput {
	return pipeline.CampaignInput{
		CampaignID:  campaignID,
		Company:     in.Tenant,
		Product:     in.Product,
		ICP:         in.ICP,
		Tone:        in.Tone,
		Description: in.Description,
	}
}

func (in CampaignInput) calendarRequest(campaignID string) calendar.Request {
	return calendar.Request{
		CampaignID:   campaignID,
		Company:      in.Tenant,
		ICP:          in.ICP,
		Tone:         in.Tone,
		Description:  in.Description,
		ContentTypes: in.ContentTypes,
		TemplateType: in.TemplateType,
	}
}

func (in CampaignInput) approvalTimeout() time.Duration {
	if in.ApprovalTimeout > 0 {
		return time.Duration(in.ApprovalTimeout) * time.Second
	}
	return DefaultApprovalTimeout
}

func (in CampaignInput) analysisTimeout() time.Duration {
	return time.Duration(in.AnalysisTimeout) * time.Second
}

func (in CampaignInput) calendarTimeout() time.Duration {
	return time.Duration(in.CalendarTimeout) * time.Second
}

// ApprovalDecision is the payload of the campaign-approval signal.
type ApprovalDecision struct {
	Approved  bool   `json:"approved"`
	Day       int    `json:"day,omitempty"`
	Feedback  string `json:"feedback,omitempty"`
	DecidedBy string `json:"decided_by,omitempty"`
}

// CampaignState is returned by the campaign-state query.
type CampaignState struct {
	CampaignID       string    `json:"campaign_id"`
	Phase            string    `json:"phase"`
	Status           db.Status `json:"status"`
	AwaitingApproval bool      `json:"awaiting_approval"`
	ErrorDays        int       `json:"error_days"`
	FailedStages     int       `json:"failed_stages"`
}

// Workflow phases reported by CampaignState.
const (
	PhaseCreating   = "creating"
	PhaseAnalysis   = "analysis"
	PhaseCalendar   = "calendar"
	PhaseApproval   = "awaiting_approval"
	PhasePublishing = "publishing"
	PhaseDone       = "done"
)

// CampaignResult is the outcome of CampaignWorkflow.
type CampaignResult struct {
	CampaignID   string             `json:"campaign_id"`
	Status       db.Status          `json:"status"`
	Analysis     map[string]any     `json:"analysis"`
	Calendar     *calendar.Calendar `json:"calendar"`
	Approval     *ApprovalDecision  `json:"approval,omitempty"`
	Receipt      *publish.Receipt   `json:"receipt,omitempty"`
	PublishError string             `json:"publish_error,omitempty"`
}
