package constants

// Activity names used for workflow registration and execution.
const (
	// Campaign store
	CreateCampaignActivity       = "CreateCampaign"
	SaveAnalysisActivity         = "SaveAnalysis"
	SaveCalendarActivity         = "SaveCalendar"
	UpdateCampaignStatusActivity = "UpdateCampaignStatus"

	// Generation
	RunAnalysisActivity      = "RunAnalysis"
	GenerateCalendarActivity = "GenerateCalendar"

	// Publishing
	PublishDayActivity = "PublishDay"

	// Progress events
	EmitCampaignEventActivity = "EmitCampaignEvent"
)

// Signals and queries understood by CampaignWorkflow.
const (
	CampaignApprovalSignal = "campaign-approval"
	CampaignStateQuery     = "campaign-state"
)

// Task queue shared by the worker and the API.
const CampaignTaskQueue = "brandcast-campaigns"
