package workflows

import (
	"go.temporal.io/sdk/workflow"

	"github.com/Kocoro-lab/brandcast/go/orchestrator/internal/calendar"
	"github.com/Kocoro-lab/brandcast/go/orchestrator/internal/constants"
	"github.com/Kocoro-lab/brandcast/go/orchestrator/internal/pipeline"
	"github.com/Kocoro-lab/brandcast/go/orchestrator/internal/workflows/opts"
)

// AnalysisWorkflow runs the analysis pipeline once without touching the store.
func AnalysisWorkflow(ctx workflow.Context, in pipeline.CampaignInput) (*pipeline.Result, error) {
	logger := workflow.GetLogger(ctx)
	if in.CampaignID == "" {
		in.CampaignID = workflow.GetInfo(ctx).WorkflowExecution.ID
	}
	logger.Info("AnalysisWorkflow started", "campaign_id", in.CampaignID, "tenant", in.Company)

	var res pipeline.Result
	actx := opts.WithGenerationOptions(ctx, 0)
	if err := workflow.ExecuteActivity(actx, constants.RunAnalysisActivity, in).Get(ctx, &res); err != nil {
		logger.Error("Analysis failed", "error", err)
		return nil, err
	}
	logger.Info("AnalysisWorkflow completed", "failed_stages", res.Failed())
	return &res, nil
}

// CalendarWorkflow generates one calendar without touching the store.
func CalendarWorkflow(ctx workflow.Context, req calendar.Request) (*calendar.Calendar, error) {
	logger := workflow.GetLogger(ctx)
	if req.CampaignID == "" {
		req.CampaignID = workflow.GetInfo(ctx).WorkflowExecution.ID
	}
	logger.Info("CalendarWorkflow started", "campaign_id", req.CampaignID, "template_type", req.TemplateType)

	var cal calendar.Calendar
	actx := opts.WithGenerationOptions(ctx, 0)
	if err := workflow.ExecuteActivity(actx, constants.GenerateCalendarActivity, req).Get(ctx, &cal); err != nil {
		logger.Error("Calendar generation failed", "error", err)
		return nil, err
	}
	logger.Info("CalendarWorkflow completed", "total_days", cal.TotalDays, "error_days", cal.ErrorCount())
	return &cal, nil
}
