package activities

import (
	"context"
	"errors"

	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/temporal"
	"go.uber.org/zap"

	"github.com/Kocoro-lab/brandcast/go/orchestrator/internal/calendar"
	"github.com/Kocoro-lab/brandcast/go/orchestrator/internal/pipeline"
)

// RunAnalysis runs the five analysis stages. Stage failures are absorbed by
// the pipeline; only an interrupted run fails the activity.
func (a *Activities) RunAnalysis(ctx context.Context, in pipeline.CampaignInput) (*pipeline.Result, error) {
	if a.analyzer == nil {
		return nil, temporal.NewNonRetryableApplicationError("analysis pipeline is not configured", ErrTypeNotConfigured, nil)
	}
	logger := activity.GetLogger(ctx)
	logger.Info("Running campaign analysis", "campaign_id", in.CampaignID, "tenant", in.Company)

	res, err := a.analyzer.Run(ctx, in)
	if err != nil {
		return nil, err
	}
	if n := res.Failed(); n > 0 {
		a.logger.Warn("Analysis finished with defaulted stages",
			zap.String("campaign_id", in.CampaignID),
			zap.Int("failed_stages", n),
		)
	}
	return res, nil
}

// GenerateCalendar produces the full calendar. Bad template or content types
// fail without retrying; failed windows come back as error days.
func (a *Activities) GenerateCalendar(ctx context.Context, req calendar.Request) (*calendar.Calendar, error) {
	if a.calendars == nil {
		return nil, temporal.NewNonRetryableApplicationError("calendar coordinator is not configured", ErrTypeNotConfigured, nil)
	}
	logger := activity.GetLogger(ctx)
	logger.Info("Generating content calendar", "campaign_id", req.CampaignID, "template_type", req.TemplateType)

	cal, err := a.calendars.Generate(ctx, req)
	if err != nil {
		if isInvalidCalendarRequest(err) {
			return nil, temporal.NewNonRetryableApplicationError(err.Error(), ErrTypeInvalidRequest, err)
		}
		return nil, err
	}
	if n := cal.ErrorCount(); n > 0 {
		a.logger.Warn("Calendar has error days",
			zap.String("campaign_id", req.CampaignID),
			zap.Int("error_days", n),
			zap.Int("total_days", cal.TotalDays),
		)
	}
	return cal, nil
}

func isInvalidCalendarRequest(err error) bool {
	return errors.Is(err, calendar.ErrUnknownTemplate) ||
		errors.Is(err, calendar.ErrUnknownContentType) ||
		errors.Is(err, calendar.ErrNoContentTypes)
}
