package workflows

import (
	"fmt"

	"github.com/google/uuid"
	"go.temporal.io/sdk/workflow"

	"github.com/Kocoro-lab/brandcast/go/orchestrator/internal/activities"
	"github.com/Kocoro-lab/brandcast/go/orchestrator/internal/calendar"
	"github.com/Kocoro-lab/brandcast/go/orchestrator/internal/constants"
	"github.com/Kocoro-lab/brandcast/go/orchestrator/internal/db"
	"github.com/Kocoro-lab/brandcast/go/orchestrator/internal/pipeline"
	"github.com/Kocoro-lab/brandcast/go/orchestrator/internal/publish"
	"github.com/Kocoro-lab/brandcast/go/orchestrator/internal/streaming"
	"github.com/Kocoro-lab/brandcast/go/orchestrator/internal/workflows/opts"
)

// CampaignWorkflow produces and optionally publishes a campaign:
// create, analyse, build the calendar, persist, mark completed, wait for
// approval, then send one day to Telegram and mark published.
//
// Rejection, approval timeout and publish failures leave the campaign
// completed. Only infrastructure failures before completion mark it failed.
func CampaignWorkflow(ctx workflow.Context, in CampaignInput) (*CampaignResult, error) {
	logger := workflow.GetLogger(ctx)
	info := workflow.GetInfo(ctx)

	campaignID := in.CampaignID
	if campaignID == "" {
		var id string
		_ = workflow.SideEffect(ctx, func(workflow.Context) interface{} {
			return uuid.NewString()
		}).Get(&id)
		campaignID = id
	}

	state := &CampaignState{CampaignID: campaignID, Phase: PhaseCreating, Status: db.StatusGenerating}
	if err := workflow.SetQueryHandler(ctx, constants.CampaignStateQuery, func() (CampaignState, error) {
		return *state, nil
	}); err != nil {
		return nil, fmt.Errorf("register state query: %w", err)
	}

	logger.Info("CampaignWorkflow started",
		"campaign_id", campaignID,
		"tenant", in.Tenant,
		"template_type", in.TemplateType,
	)

	storeCtx := opts.WithStoreOptions(ctx)
	analysisCtx := opts.WithGenerationOptions(ctx, in.analysisTimeout())
	calendarCtx := opts.WithGenerationOptions(ctx, in.calendarTimeout())

	err := workflow.ExecuteActivity(storeCtx, constants.CreateCampaignActivity, activities.CreateCampaignInput{
		CampaignID:   campaignID,
		WorkflowID:   info.WorkflowExecution.ID,
		Tenant:       in.Tenant,
		Product:      in.Product,
		ICP:          in.ICP,
		Tone:         in.Tone,
		Description:  in.Description,
		TemplateType: in.TemplateType,
		ContentTypes: in.ContentTypes,
	}).Get(ctx, &campaignID)
	if err != nil {
		logger.Error("Failed to create campaign", "error", err)
		return nil, err
	}
	state.CampaignID = campaignID

	state.Phase = PhaseAnalysis
	var analysis pipeline.Result
	if err := workflow.ExecuteActivity(analysisCtx, constants.RunAnalysisActivity, in.analysisInput(campaignID)).Get(ctx, &analysis); err != nil {
		return nil, failCampaign(ctx, state, "analysis", err)
	}
	state.FailedStages = analysis.Failed()
	if err := workflow.ExecuteActivity(storeCtx, constants.SaveAnalysisActivity, activities.SaveAnalysisInput{
		CampaignID: campaignID,
		Record:     analysis.Record,
	}).Get(ctx, nil); err != nil {
		return nil, failCampaign(ctx, state, "save analysis", err)
	}

	state.Phase = PhaseCalendar
	var cal calendar.Calendar
	if err := workflow.ExecuteActivity(calendarCtx, constants.GenerateCalendarActivity, in.calendarRequest(campaignID)).Get(ctx, &cal); err != nil {
		return nil, failCampaign(ctx, state, "calendar", err)
	}
	state.ErrorDays = cal.ErrorCount()
	if err := workflow.ExecuteActivity(storeCtx, constants.SaveCalendarActivity, activities.SaveCalendarInput{
		CampaignID: campaignID,
		Calendar:   &cal,
	}).Get(ctx, nil); err != nil {
		return nil, failCampaign(ctx, state, "save calendar", err)
	}

	if err := updateStatus(ctx, campaignID, db.StatusCompleted, ""); err != nil {
		return nil, failCampaign(ctx, state, "complete", err)
	}
	state.Status = db.StatusCompleted
	emitEvent(ctx, campaignID, streaming.EventCampaignCompleted,
		fmt.Sprintf("%d days, %d error days, %d defaulted stages", cal.TotalDays, state.ErrorDays, state.FailedStages))

	result := &CampaignResult{
		CampaignID: campaignID,
		Status:     db.StatusCompleted,
		Analysis:   analysis.Record,
		Calendar:   &cal,
	}

	decision := ApprovalDecision{Approved: true, DecidedBy: "auto"}
	if !in.AutoApprove {
		state.Phase = PhaseApproval
		state.AwaitingApproval = true
		decision, _ = waitForApproval(ctx, campaignID, in.approvalTimeout())
		state.AwaitingApproval = false
	}
	result.Approval = &decision

	if !decision.Approved {
		state.Phase = PhaseDone
		logger.Info("Campaign not approved for publishing", "campaign_id", campaignID, "feedback", decision.Feedback)
		return result, nil
	}

	day := decision.Day
	if day <= 0 {
		day = in.PublishDay
	}
	if day <= 0 {
		day = DefaultPublishDay
	}

	state.Phase = PhasePublishing
	var receipt publish.Receipt
	err = workflow.ExecuteActivity(opts.WithPublishOptions(ctx), constants.PublishDayActivity, activities.PublishDayInput{
		CampaignID: campaignID,
		Tenant:     in.Tenant,
		Day:        day,
	}).Get(ctx, &receipt)
	if err != nil {
		state.Phase = PhaseDone
		logger.Warn("Publishing failed; campaign stays completed", "campaign_id", campaignID, "day", day, "error", err)
		result.PublishError = err.Error()
		return result, nil
	}
	result.Receipt = &receipt

	if err := updateStatus(ctx, campaignID, db.StatusPublished, ""); err != nil {
		logger.Error("Failed to mark campaign published", "campaign_id", campaignID, "error", err)
		return nil, err
	}
	state.Status = db.StatusPublished
	state.Phase = PhaseDone
	result.Status = db.StatusPublished

	logger.Info("CampaignWorkflow completed", "campaign_id", campaignID, "published_day", receipt.Day)
	return result, nil
}

func updateStatus(ctx workflow.Context, campaignID string, to db.Status, msg string) error {
	return workflow.ExecuteActivity(opts.WithStoreOptions(ctx), constants.UpdateCampaignStatusActivity, activities.UpdateStatusInput{
		CampaignID: campaignID,
		Status:     to,
		Error:      msg,
	}).Get(ctx, nil)
}

// failCampaign marks the campaign failed on a best-effort basis and returns
// the wrapped cause.
func failCampaign(ctx workflow.Context, state *CampaignState, step string, cause error) error {
	logger := workflow.GetLogger(ctx)
	logger.Error("Campaign step failed", "campaign_id", state.CampaignID, "step", step, "error", cause)

	msg := fmt.Sprintf("%s: %v", step, cause)
	if err := updateStatus(ctx, state.CampaignID, db.StatusFailed, msg); err != nil {
		logger.Warn("Failed to mark campaign failed", "campaign_id", state.CampaignID, "error", err)
	} else {
		state.Status = db.StatusFailed
	}
	state.Phase = PhaseDone
	emitEvent(ctx, state.CampaignID, streaming.EventCampaignFailed, msg)
	return fmt.Errorf("campaign %s %s: %w", state.CampaignID, step, cause)
}

// emitEvent is best-effort; a failed emit never fails the workflow.
func emitEvent(ctx workflow.Context, campaignID, eventType, message string) {
	_ = workflow.ExecuteActivity(opts.WithEventOptions(ctx), constants.EmitCampaignEventActivity, activities.CampaignEventInput{
		CampaignID: campaignID,
		Type:       eventType,
		Message:    message,
	}).Get(ctx, nil)
}
