package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

const campaignColumns = `id, tenant, product, icp, tone, description, template_type, content_types,
        status, workflow_id, analysis, calendar, error_message, created_at, updated_at, published_at`

// CreateCampaign inserts c in the generating state, assigning an id when
// none is set.
func (c *Client) CreateCampaign(ctx context.Context, camp *Campaign) error {
	if camp.ID == "" {
		camp.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	camp.Status = StatusGenerating
	camp.CreatedAt = now
	camp.UpdatedAt = now

	_, err := c.db.NamedExecContext(ctx, `
        INSERT INTO campaigns (`+campaignColumns+`)
        VALUES (:id, :tenant, :product, :icp, :tone, :description, :template_type, :content_types,
        :status, :workflow_id, :analysis, :calendar, :error_message, :created_at, :updated_at, :published_at)
    `, camp)
	if err != nil {
		return fmt.Errorf("create campaign: %w", err)
	}
	return nil
}

// GetCampaign loads one campaign.
func (c *Client) GetCampaign(ctx context.Context, id string) (*Campaign, error) {
	var camp Campaign
	err := c.db.GetContext(ctx, &camp, c.db.Rebind(`SELECT `+campaignColumns+` FROM campaigns WHERE id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get campaign %s: %w", id, err)
	}
	return &camp, nil
}

// ListCampaigns returns a tenant's newest campaigns first.
func (c *Client) ListCampaigns(ctx context.Context, tenant string, limit int) ([]Campaign, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	var out []Campaign
	err := c.db.SelectContext(ctx, &out, c.db.Rebind(`
        SELECT `+campaignColumns+` FROM campaigns
        WHERE tenant = ?
        ORDER BY created_at DESC
        LIMIT ?
    `), tenant, limit)
	if err != nil {
		return nil, fmt.Errorf("list campaigns: %w", err)
	}
	return out, nil
}

// SetWorkflowID records the workflow driving the campaign.
func (c *Client) SetWorkflowID(ctx context.Context, id, workflowID string) error {
	return c.update(ctx, id, `UPDATE campaigns SET workflow_id = ?, updated_at = ? WHERE id = ?`,
		workflowID, time.Now().UTC(), id)
}

// SaveAnalysis stores the merged analysis record.
func (c *Client) SaveAnalysis(ctx context.Context, id string, record map[string]any) error {
	doc, err := ToJSONB(record)
	if err != nil {
		return fmt.Errorf("encode analysis: %w", err)
	}
	return c.update(ctx, id, `UPDATE campaigns SET analysis = ?, updated_at = ? WHERE id = ?`,
		doc, time.Now().UTC(), id)
}

// SaveCalendar stores the generated calendar document.
func (c *Client) SaveCalendar(ctx context.Context, id string, cal any) error {
	doc, err := ToJSONB(cal)
	if err != nil {
		return fmt.Errorf("encode calendar: %w", err)
	}
	return c.update(ctx, id, `UPDATE campaigns SET calendar = ?, updated_at = ? WHERE id = ?`,
		doc, time.Now().UTC(), id)
}

// UpdateStatus moves a campaign to status to. The change only applies from
// the states the lifecycle allows; errMsg is recorded for StatusFailed.
func (c *Client) UpdateStatus(ctx context.Context, id string, to Status, errMsg string) error {
	from := allowedFrom[to]
	if len(from) == 0 {
		return fmt.Errorf("%w: nothing transitions to %s", ErrInvalidTransition, to)
	}
	now := time.Now().UTC()
	var published *time.Time
	if to == StatusPublished {
		published = &now
	}

	query, args, err := sqlx.In(`
        UPDATE campaigns
        SET status = ?, error_message = ?, updated_at = ?, published_at = COALESCE(?, published_at)
        WHERE id = ? AND status IN (?)
    `, to, nullIfEmpty(errMsg), now, published, id, from)
	if err != nil {
		return err
	}
	res, err := c.db.ExecContext(ctx, c.db.Rebind(query), args...)
	if err != nil {
		return fmt.Errorf("update campaign %s status: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}

	current, err := c.GetCampaign(ctx, id)
	if err != nil {
		return err
	}
	if current.Status == to {
		return nil
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current.Status, to)
}

func (c *Client) update(ctx context.Context, id, query string, args ...interface{}) error {
	res, err := c.db.ExecContext(ctx, c.db.Rebind(query), args...)
	if err != nil {
		return fmt.Errorf("update campaign %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
