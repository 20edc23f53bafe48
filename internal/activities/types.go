package activities

import (
	"github.com/Kocoro-lab/brandcast/go/orchestrator/internal/calendar"
	"github.com/Kocoro-lab/brandcast/go/orchestrator/internal/db"
)

// Application error types attached to non-retryable activity failures.
const (
	ErrTypeInvalidRequest    = "InvalidRequest"
	ErrTypeNotConfigured     = "NotConfigured"
	ErrTypeNotFound          = "NotFound"
	ErrTypeInvalidTransition = "InvalidTransition"
	ErrTypePublishDenied     = "PublishDenied"
	ErrTypeTelegramRejected  = "TelegramRejected"
)

// CreateCampaignInput describes a new campaign row.
type CreateCampaignInput struct {
	CampaignID   string   `json:"campaign_id"`
	WorkflowID   string   `json:"workflow_id"`
	Tenant       string   `json:"tenant"`
	Product      string   `json:"product"`
	ICP          string   `json:"icp"`
	Tone         string   `json:"tone"`
	Description  string   `json:"description"`
	TemplateType string   `json:"template_type"`
	ContentTypes []string `json:"content_types"`
}

// SaveAnalysisInput stores a merged analysis record.
type SaveAnalysisInput struct {
	CampaignID string         `json:"campaign_id"`
	Record     map[string]any `json:"record"`
}

// SaveCalendarInput stores a generated calendar.
type SaveCalendarInput struct {
	CampaignID string             `json:"campaign_id"`
	Calendar   *calendar.Calendar `json:"calendar"`
}

// UpdateStatusInput moves a campaign through its lifecycle.
type UpdateStatusInput struct {
	CampaignID string    `json:"campaign_id"`
	Status     db.Status `json:"status"`
	Error      string    `json:"error,omitempty"`
}

// PublishDayInput selects the stored calendar day to send.
type PublishDayInput struct {
	CampaignID string `json:"campaign_id"`
	Tenant     string `json:"tenant"`
	Day        int    `json:"day"`
}

// CampaignEventInput is a progress event raised by a workflow.
type CampaignEventInput struct {
	CampaignID string `json:"campaign_id"`
	Type       string `json:"type"`
	Message    string `json:"message,omitempty"`
}
