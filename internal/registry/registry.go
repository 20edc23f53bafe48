package registry

import (
	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/worker"
	"go.uber.org/zap"

	"github.com/Kocoro-lab/brandcast/go/orchestrator/internal/activities"
	"github.com/Kocoro-lab/brandcast/go/orchestrator/internal/constants"
	"github.com/Kocoro-lab/brandcast/go/orchestrator/internal/workflows"
)

// CampaignRegistry implements the Registry interface
type CampaignRegistry struct {
	config *RegistryConfig
	acts   *activities.Activities
	logger *zap.Logger
}

// NewCampaignRegistry creates a new registry instance
func NewCampaignRegistry(config *RegistryConfig, acts *activities.Activities, logger *zap.Logger) *CampaignRegistry {
	if config == nil {
		config = &RegistryConfig{}
	}
	return &CampaignRegistry{config: config, acts: acts, logger: logger}
}

// RegisterWorkflows registers all campaign workflows
func (r *CampaignRegistry) RegisterWorkflows(w worker.Registry) error {
	w.RegisterWorkflow(workflows.CampaignWorkflow)
	r.logger.Info("Registered campaign workflow")

	if r.config.EnableStandaloneWorkflows {
		w.RegisterWorkflow(workflows.AnalysisWorkflow)
		w.RegisterWorkflow(workflows.CalendarWorkflow)
		r.logger.Info("Registered standalone analysis and calendar workflows")
	}
	return nil
}

// RegisterActivities registers all campaign activities
func (r *CampaignRegistry) RegisterActivities(w worker.Registry) error {
	a := r.acts

	w.RegisterActivityWithOptions(a.CreateCampaign, activity.RegisterOptions{Name: constants.CreateCampaignActivity})
	w.RegisterActivityWithOptions(a.SaveAnalysis, activity.RegisterOptions{Name: constants.SaveAnalysisActivity})
	w.RegisterActivityWithOptions(a.SaveCalendar, activity.RegisterOptions{Name: constants.SaveCalendarActivity})
	w.RegisterActivityWithOptions(a.UpdateCampaignStatus, activity.RegisterOptions{Name: constants.UpdateCampaignStatusActivity})

	w.RegisterActivityWithOptions(a.RunAnalysis, activity.RegisterOptions{Name: constants.RunAnalysisActivity})
	w.RegisterActivityWithOptions(a.GenerateCalendar, activity.RegisterOptions{Name: constants.GenerateCalendarActivity})

	w.RegisterActivityWithOptions(a.PublishDay, activity.RegisterOptions{Name: constants.PublishDayActivity})
	w.RegisterActivityWithOptions(a.EmitCampaignEvent, activity.RegisterOptions{Name: constants.EmitCampaignEventActivity})

	r.logger.Info("Registered campaign activities")
	return nil
}
