package db

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/Kocoro-lab/brandcast/go/orchestrator/internal/streaming"
)

// EventLog represents a persisted progress event row.
type EventLog struct {
	ID         string    `db:"id" json:"id"`
	CampaignID string    `db:"campaign_id" json:"campaign_id"`
	Type       string    `db:"type" json:"type"`
	Stage      string    `db:"stage" json:"stage,omitempty"`
	Message    string    `db:"message" json:"message,omitempty"`
	Payload    JSONB     `db:"payload" json:"payload,omitempty"`
	Seq        int64     `db:"seq" json:"seq"`
	Timestamp  time.Time `db:"timestamp" json:"timestamp"`
}

// SaveEventLog inserts a new campaign_events row; a repeated
// (campaign_id, seq) is ignored.
func (c *Client) SaveEventLog(ctx context.Context, e *EventLog) error {
	if e == nil {
		return nil
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}

	_, err := c.db.ExecContext(ctx, c.db.Rebind(`
        INSERT INTO campaign_events (
            id, campaign_id, type, stage, message, payload, seq, timestamp
        ) VALUES (?,?,?,?,?,?,?,?)
        ON CONFLICT (campaign_id, seq) DO NOTHING
    `), e.ID, e.CampaignID, e.Type, nullIfEmpty(e.Stage), e.Message, e.Payload, e.Seq, e.Timestamp)
	return err
}

// ListEvents returns a campaign's events with seq greater than since.
func (c *Client) ListEvents(ctx context.Context, campaignID string, since int64) ([]EventLog, error) {
	var out []EventLog
	err := c.db.SelectContext(ctx, &out, c.db.Rebind(`
        SELECT id, campaign_id, type, COALESCE(stage, '') AS stage, message, payload, seq, timestamp
        FROM campaign_events
        WHERE campaign_id = ? AND seq > ?
        ORDER BY seq
    `), campaignID, since)
	return out, err
}

// EventSink persists progress events through the async queue.
func (c *Client) EventSink() streaming.Sink {
	return streaming.SinkFunc(func(campaignID string, evt streaming.Event) {
		payload := JSONB{}
		if evt.Window > 0 {
			payload["window"] = evt.Window
			payload["day_start"] = evt.DayStart
			payload["day_end"] = evt.DayEnd
		}
		c.QueueEvent(&EventLog{
			CampaignID: campaignID,
			Type:       evt.Type,
			Stage:      evt.Stage,
			Message:    evt.Message,
			Payload:    payload,
			Seq:        int64(evt.Seq),
			Timestamp:  evt.Timestamp,
		})
	})
}

func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
