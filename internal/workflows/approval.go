package workflows

import (
	"time"

	"go.temporal.io/sdk/workflow"

	"github.com/Kocoro-lab/brandcast/go/orchestrator/internal/constants"
	"github.com/Kocoro-lab/brandcast/go/orchestrator/internal/streaming"
)

// waitForApproval blocks until a campaign-approval signal arrives or the
// timeout fires. A timeout yields a rejection.
func waitForApproval(ctx workflow.Context, campaignID string, timeout time.Duration) (ApprovalDecision, bool) {
	logger := workflow.GetLogger(ctx)

	emitEvent(ctx, campaignID, streaming.EventApprovalRequested, "waiting for approval")
	logger.Info("Waiting for campaign approval", "campaign_id", campaignID, "timeout", timeout)

	ch := workflow.GetSignalChannel(ctx, constants.CampaignApprovalSignal)
	timerCtx, cancelTimer := workflow.WithCancel(ctx)
	timer := workflow.NewTimer(timerCtx, timeout)

	var decision ApprovalDecision
	var timedOut bool

	sel := workflow.NewSelector(ctx)
	sel.AddReceive(ch, func(c workflow.ReceiveChannel, more bool) {
		c.Receive(ctx, &decision)
	})
	sel.AddFuture(timer, func(f workflow.Future) {
		timedOut = true
		decision = ApprovalDecision{Approved: false, Feedback: "approval timeout"}
	})
	sel.Select(ctx)
	cancelTimer()

	if timedOut {
		logger.Warn("Campaign approval timed out", "campaign_id", campaignID)
	}

	verdict := "rejected"
	if decision.Approved {
		verdict = "approved"
	}
	msg := verdict
	if decision.Feedback != "" {
		msg += ": " + decision.Feedback
	}
	emitEvent(ctx, campaignID, streaming.EventApprovalDecision, msg)
	return decision, timedOut
}
