package activities

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"go.temporal.io/sdk/temporal"
	"go.uber.org/zap"

	"github.com/Kocoro-lab/brandcast/go/orchestrator/internal/calendar"
	"github.com/Kocoro-lab/brandcast/go/orchestrator/internal/publish"
	"github.com/Kocoro-lab/brandcast/go/orchestrator/internal/streaming"
)

// PublishDay sends one day of the stored calendar to Telegram. Policy
// denials and client-side Telegram errors are not retried.
func (a *Activities) PublishDay(ctx context.Context, in PublishDayInput) (*publish.Receipt, error) {
	if a.publisher == nil {
		return nil, temporal.NewNonRetryableApplicationError("publisher is not configured", ErrTypeNotConfigured, publish.ErrNotConfigured)
	}
	if a.store == nil {
		return nil, temporal.NewNonRetryableApplicationError("campaign store is not configured", ErrTypeNotConfigured, nil)
	}

	camp, err := a.store.GetCampaign(ctx, in.CampaignID)
	if err != nil {
		return nil, storeError(err)
	}
	var cal calendar.Calendar
	if len(camp.Calendar) == 0 {
		return nil, temporal.NewNonRetryableApplicationError("campaign has no calendar", ErrTypeInvalidRequest, nil)
	}
	if err := camp.Calendar.Decode(&cal); err != nil {
		return nil, temporal.NewNonRetryableApplicationError(fmt.Sprintf("decode stored calendar: %v", err), ErrTypeInvalidRequest, err)
	}

	tenant := in.Tenant
	if tenant == "" {
		tenant = camp.Tenant
	}
	rec, err := a.publisher.Publish(ctx, publish.Request{
		CampaignID: in.CampaignID,
		Tenant:     tenant,
		Calendar:   &cal,
		Day:        in.Day,
	})
	if err != nil {
		return nil, publishError(err)
	}

	a.events.Publish(in.CampaignID, streaming.Event{
		Type:    streaming.EventCampaignPublished,
		Message: fmt.Sprintf("day %d sent via %s", rec.Day, rec.Method),
	})
	a.logger.Info("Campaign day published",
		zap.String("campaign_id", in.CampaignID),
		zap.Int("day", rec.Day),
		zap.String("method", rec.Method),
	)
	return rec, nil
}

func publishError(err error) error {
	var denied *publish.DeniedError
	if errors.As(err, &denied) {
		return temporal.NewNonRetryableApplicationError(err.Error(), ErrTypePublishDenied, err, denied.Reasons)
	}
	if errors.Is(err, publish.ErrNotConfigured) {
		return temporal.NewNonRetryableApplicationError(err.Error(), ErrTypeNotConfigured, err)
	}
	var apiErr *publish.APIError
	if errors.As(err, &apiErr) && apiErr.Code >= 400 && apiErr.Code < 500 && apiErr.Code != http.StatusTooManyRequests {
		return temporal.NewNonRetryableApplicationError(err.Error(), ErrTypeTelegramRejected, err)
	}
	return err
}
