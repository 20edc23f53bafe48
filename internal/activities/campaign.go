package activities

import (
	"context"
	"errors"
	"fmt"

	"go.temporal.io/sdk/temporal"
	"go.uber.org/zap"

	"github.com/Kocoro-lab/brandcast/go/orchestrator/internal/db"
)

// CreateCampaign inserts the campaign row and returns its id. Retries are
// safe: a row that already exists under the requested id is reused.
func (a *Activities) CreateCampaign(ctx context.Context, in CreateCampaignInput) (string, error) {
	if a.store == nil {
		return "", temporal.NewNonRetryableApplicationError("campaign store is not configured", ErrTypeNotConfigured, nil)
	}
	if in.Tenant == "" {
		return "", temporal.NewNonRetryableApplicationError("tenant is required", ErrTypeInvalidRequest, nil)
	}

	if in.CampaignID != "" {
		existing, err := a.store.GetCampaign(ctx, in.CampaignID)
		if err == nil {
			return existing.ID, nil
		}
		if !errors.Is(err, db.ErrNotFound) {
			return "", fmt.Errorf("lookup campaign: %w", err)
		}
	}

	camp := &db.Campaign{
		ID:           in.CampaignID,
		Tenant:       in.Tenant,
		Product:      in.Product,
		ICP:          in.ICP,
		Tone:         in.Tone,
		Description:  in.Description,
		TemplateType: in.TemplateType,
	}
	camp.SetContentTypes(in.ContentTypes)
	if in.WorkflowID != "" {
		wf := in.WorkflowID
		camp.WorkflowID = &wf
	}
	if err := a.store.CreateCampaign(ctx, camp); err != nil {
		return "", err
	}

	a.logger.Info("Campaign created",
		zap.String("campaign_id", camp.ID),
		zap.String("tenant", camp.Tenant),
		zap.String("template_type", camp.TemplateType),
	)
	return camp.ID, nil
}

// SaveAnalysis stores the merged analysis record on the campaign.
func (a *Activities) SaveAnalysis(ctx context.Context, in SaveAnalysisInput) error {
	if a.store == nil {
		return temporal.NewNonRetryableApplicationError("campaign store is not configured", ErrTypeNotConfigured, nil)
	}
	return storeError(a.store.SaveAnalysis(ctx, in.CampaignID, in.Record))
}

// SaveCalendar stores the merged calendar on the campaign.
func (a *Activities) SaveCalendar(ctx context.Context, in SaveCalendarInput) error {
	if a.store == nil {
		return temporal.NewNonRetryableApplicationError("campaign store is not configured", ErrTypeNotConfigured, nil)
	}
	if in.Calendar == nil {
		return temporal.NewNonRetryableApplicationError("calendar is required", ErrTypeInvalidRequest, nil)
	}
	return storeError(a.store.SaveCalendar(ctx, in.CampaignID, in.Calendar))
}

// UpdateCampaignStatus applies a lifecycle transition.
func (a *Activities) UpdateCampaignStatus(ctx context.Context, in UpdateStatusInput) error {
	if a.store == nil {
		return temporal.NewNonRetryableApplicationError("campaign store is not configured", ErrTypeNotConfigured, nil)
	}
	if err := storeError(a.store.UpdateStatus(ctx, in.CampaignID, in.Status, in.Error)); err != nil {
		return err
	}
	a.logger.Info("Campaign status updated",
		zap.String("campaign_id", in.CampaignID),
		zap.String("status", string(in.Status)),
	)
	return nil
}

// storeError marks store errors that a retry cannot fix.
func storeError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, db.ErrNotFound):
		return temporal.NewNonRetryableApplicationError(err.Error(), ErrTypeNotFound, err)
	case errors.Is(err, db.ErrInvalidTransition):
		return temporal.NewNonRetryableApplicationError(err.Error(), ErrTypeInvalidTransition, err)
	default:
		return err
	}
}
