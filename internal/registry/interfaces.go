package registry

import (
	"go.temporal.io/sdk/worker"
)

// WorkflowRegistrar defines the interface for registering workflows
type WorkflowRegistrar interface {
	RegisterWorkflows(w worker.Registry) error
}

// ActivityRegistrar defines the interface for registering activities
type ActivityRegistrar interface {
	RegisterActivities(w worker.Registry) error
}

// Registry combines both workflow and activity registration
type Registry interface {
	WorkflowRegistrar
	ActivityRegistrar
}

// RegistryConfig holds configuration for the registry
type RegistryConfig struct {
	// EnableStandaloneWorkflows registers AnalysisWorkflow and CalendarWorkflow
	EnableStandaloneWorkflows bool
}
