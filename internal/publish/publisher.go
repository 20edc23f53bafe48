package publish

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/Kocoro-lab/brandcast/go/orchestrator/internal/calendar"
	"github.com/Kocoro-lab/brandcast/go/orchestrator/internal/metrics"
	"github.com/Kocoro-lab/brandcast/go/orchestrator/internal/policy"
)

// Channel is the only delivery channel.
const Channel = "telegram"

// ErrDenied wraps a policy denial.
var ErrDenied = errors.New("publish denied by policy")

// DeniedError carries the policy's deny reasons.
type DeniedError struct {
	Day     int
	Reasons []string
}

func (e *DeniedError) Error() string {
	return fmt.Sprintf("publish of day %d denied: %s", e.Day, strings.Join(e.Reasons, "; "))
}

func (e *DeniedError) Unwrap() error { return ErrDenied }

// Request selects one day of a calendar.
type Request struct {
	CampaignID string
	Tenant     string
	Calendar   *calendar.Calendar
	Day        int
}

// Receipt records what was sent.
type Receipt struct {
	Day         int                  `json:"day"`
	ContentType calendar.ContentType `json:"content_type"`
	Method      string               `json:"method"`
	MessageIDs  []int64              `json:"message_ids"`
}

// Publisher formats a day, asks the policy gate, then sends it.
type Publisher struct {
	sender Sender
	gate   policy.Engine
	logger *zap.Logger
}

// NewPublisher builds a Publisher. gate may be nil, which allows everything.
func NewPublisher(sender Sender, gate policy.Engine, logger *zap.Logger) *Publisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Publisher{sender: sender, gate: gate, logger: logger}
}

// Publish sends day req.Day of req.Calendar.
func (p *Publisher) Publish(ctx context.Context, req Request) (*Receipt, error) {
	if req.Calendar == nil {
		return nil, fmt.Errorf("no calendar to publish")
	}
	day, ok := req.Calendar.DayNumber(req.Day)
	if !ok {
		// Let the policy report the out-of-range day.
		day = calendar.Day{Day: req.Day, ContentType: calendar.ErrorDay}
	}
	logger := p.logger.With(
		zap.String("campaign_id", req.CampaignID),
		zap.Int("day", req.Day),
		zap.String("content_type", string(day.ContentType)),
	)

	msg, err := Format(day)
	if err != nil {
		p.record(day, "error")
		return nil, err
	}

	if p.gate != nil {
		decision, err := p.gate.Evaluate(ctx, &policy.PublishInput{
			CampaignID:  req.CampaignID,
			Tenant:      req.Tenant,
			Channel:     Channel,
			Day:         req.Day,
			TotalDays:   req.Calendar.TotalDays,
			ContentType: string(day.ContentType),
			Body:        msg.Text,
			Tags:        day.Tags,
		})
		if err != nil {
			p.record(day, "error")
			return nil, fmt.Errorf("evaluate publish policy: %w", err)
		}
		if !decision.Allow {
			p.record(day, "denied")
			logger.Warn("Publish denied by policy", zap.Strings("reasons", decision.Reasons))
			return nil, &DeniedError{Day: req.Day, Reasons: decision.Reasons}
		}
	}

	rec := &Receipt{Day: day.Day, ContentType: day.ContentType}
	switch {
	case len(msg.Images) > 1:
		rec.Method = "sendMediaGroup"
		rec.MessageIDs, err = p.sender.SendMediaGroup(ctx, msg.Images, msg.Text)
	case len(msg.Images) == 1:
		rec.Method = "sendPhoto"
		rec.MessageIDs, err = p.sender.SendPhoto(ctx, msg.Images[0], msg.Text)
	default:
		rec.Method = "sendMessage"
		rec.MessageIDs, err = p.sender.SendMessage(ctx, msg.Text)
	}
	if err != nil {
		p.record(day, "error")
		logger.Error("Telegram delivery failed", zap.String("method", rec.Method), zap.Error(err))
		return nil, err
	}

	p.record(day, "sent")
	logger.Info("Published calendar day", zap.String("method", rec.Method), zap.Int("messages", len(rec.MessageIDs)))
	return rec, nil
}

func (p *Publisher) record(day calendar.Day, status string) {
	metrics.PublishAttempts.WithLabelValues(Channel, string(day.ContentType), status).Inc()
}
