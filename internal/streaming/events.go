package streaming

import (
	"encoding/json"
	"time"
)

// Event types emitted while a campaign is produced.
const (
	EventStageStarted      = "stage_started"
	EventStageCompleted    = "stage_completed"
	EventStageFailed       = "stage_failed"
	EventWindowCompleted   = "window_completed"
	EventWindowFailed      = "window_failed"
	EventCampaignCompleted = "campaign_completed"
	EventCampaignFailed    = "campaign_failed"
	EventApprovalRequested = "approval_requested"
	EventApprovalDecision  = "approval_decision"
	EventCampaignPublished = "campaign_published"
)

// Event is a campaign progress event used by the websocket stream and logs.
type Event struct {
	CampaignID string    `json:"campaign_id"`
	Type       string    `json:"type"`
	Stage      string    `json:"stage,omitempty"`
	Window     int       `json:"window,omitempty"`
	DayStart   int       `json:"day_start,omitempty"`
	DayEnd     int       `json:"day_end,omitempty"`
	Message    string    `json:"message,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
	Seq        uint64    `json:"seq"`
}

// Marshal returns JSON for event payloads in websocket frames or logs.
func (e Event) Marshal() []byte {
	b, _ := json.Marshal(e)
	return b
}

// Sink receives progress events. Implementations must not block.
type Sink interface {
	Publish(campaignID string, evt Event)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(campaignID string, evt Event)

func (f SinkFunc) Publish(campaignID string, evt Event) { f(campaignID, evt) }

// Discard drops every event.
var Discard Sink = SinkFunc(func(string, Event) {})
