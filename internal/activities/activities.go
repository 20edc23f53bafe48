// Package activities exposes the campaign building blocks to Temporal: the
// analysis pipeline, the calendar coordinator, the campaign store, the
// Telegram publisher and the progress stream.
package activities

import (
	"context"

	"go.uber.org/zap"

	"github.com/Kocoro-lab/brandcast/go/orchestrator/internal/calendar"
	"github.com/Kocoro-lab/brandcast/go/orchestrator/internal/db"
	"github.com/Kocoro-lab/brandcast/go/orchestrator/internal/pipeline"
	"github.com/Kocoro-lab/brandcast/go/orchestrator/internal/publish"
	"github.com/Kocoro-lab/brandcast/go/orchestrator/internal/streaming"
)

// Analyzer runs the stage pipeline. *pipeline.Coordinator implements it.
type Analyzer interface {
	Run(ctx context.Context, in pipeline.CampaignInput) (*pipeline.Result, error)
}

// CalendarGenerator produces content calendars. *calendar.Coordinator implements it.
type CalendarGenerator interface {
	Generate(ctx context.Context, req calendar.Request) (*calendar.Calendar, error)
}

// CampaignStore is the slice of *db.Client the activities need.
type CampaignStore interface {
	CreateCampaign(ctx context.Context, camp *db.Campaign) error
	GetCampaign(ctx context.Context, id string) (*db.Campaign, error)
	SetWorkflowID(ctx context.Context, id, workflowID string) error
	SaveAnalysis(ctx context.Context, id string, record map[string]any) error
	SaveCalendar(ctx context.Context, id string, cal any) error
	UpdateStatus(ctx context.Context, id string, to db.Status, errMsg string) error
}

// DayPublisher sends one calendar day. *publish.Publisher implements it.
type DayPublisher interface {
	Publish(ctx context.Context, req publish.Request) (*publish.Receipt, error)
}

// Dependencies wires an Activities instance. Store, Publisher and Events may be nil;
// the activities that need a missing dependency fail without retrying.
type Dependencies struct {
	Analyzer  Analyzer
	Calendars CalendarGenerator
	Store     CampaignStore
	Publisher DayPublisher
	Events    streaming.Sink
}

// Activities struct holds dependencies for activities
type Activities struct {
	analyzer  Analyzer
	calendars CalendarGenerator
	store     CampaignStore
	publisher DayPublisher
	events    streaming.Sink
	logger    *zap.Logger
}

// NewActivities creates a new activities instance with dependencies
func NewActivities(deps Dependencies, logger *zap.Logger) *Activities {
	if logger == nil {
		logger = zap.NewNop()
	}
	events := deps.Events
	if events == nil {
		events = streaming.Discard
	}
	return &Activities{
		analyzer:  deps.Analyzer,
		calendars: deps.Calendars,
		store:     deps.Store,
		publisher: deps.Publisher,
		events:    events,
		logger:    logger,
	}
}
