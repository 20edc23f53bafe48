package activities

import (
	"context"

	"github.com/Kocoro-lab/brandcast/go/orchestrator/internal/streaming"
)

// EmitCampaignEvent forwards a workflow-level progress event to the stream.
func (a *Activities) EmitCampaignEvent(_ context.Context, in CampaignEventInput) error {
	a.events.Publish(in.CampaignID, streaming.Event{Type: in.Type, Message: in.Message})
	return nil
}
