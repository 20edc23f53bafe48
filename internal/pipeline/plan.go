package pipeline

import (
	"fmt"

	"github.com/Kocoro-lab/brandcast/go/orchestrator/internal/agents"
	"github.com/Kocoro-lab/brandcast/go/orchestrator/internal/validation"
)

// Campaign fields a stage can bind besides prior stage outputs.
const (
	FieldCompany        = "company"
	FieldProduct        = "product"
	FieldDescription    = "description"
	FieldICP            = "icp"
	FieldTone           = "tone"
	FieldScrapedContext = "scraped_context"
)

// StageSpec declares one stage: the earlier stages whose serialized output
// it receives and the campaign fields bound into its prompt.
type StageSpec struct {
	Stage    agents.Stage
	Requires []agents.Stage
	Fields   []string
}

var baseFields = []string{FieldCompany, FieldProduct, FieldDescription}

func fields(extra ...string) []string {
	return append(append([]string{}, baseFields...), extra...)
}

// DefaultPlan is the campaign analysis order.
func DefaultPlan() []StageSpec {
	return []StageSpec{
		{Stage: agents.StageCompetition, Fields: fields(FieldScrapedContext)},
		{Stage: agents.StageUsecase, Requires: []agents.Stage{agents.StageCompetition}, Fields: fields(FieldScrapedContext)},
		{Stage: agents.StageObjectives, Requires: []agents.Stage{agents.StageCompetition, agents.StageUsecase}, Fields: fields()},
		{Stage: agents.StageAudience, Requires: []agents.Stage{agents.StageCompetition, agents.StageUsecase}, Fields: fields(FieldICP)},
		{Stage: agents.StagePositioning, Requires: []agents.Stage{agents.StageCompetition, agents.StageUsecase, agents.StageAudience}, Fields: fields(FieldTone)},
	}
}

var knownFields = map[string]bool{
	FieldCompany: true, FieldProduct: true, FieldDescription: true,
	FieldICP: true, FieldTone: true, FieldScrapedContext: true,
}

// ValidatePlan checks that every stage is known, fields exist, and each
// stage only depends on stages listed before it.
func ValidatePlan(plan []StageSpec) error {
	if len(plan) == 0 {
		return fmt.Errorf("empty stage plan")
	}
	nodes := make([]validation.Node, 0, len(plan))
	for _, step := range plan {
		if !agents.Known(step.Stage) {
			return fmt.Errorf("unknown stage %q", step.Stage)
		}
		for _, f := range step.Fields {
			if !knownFields[f] {
				return fmt.Errorf("stage %s binds unknown field %q", step.Stage, f)
			}
		}
		node := validation.Node{Name: string(step.Stage)}
		for _, r := range step.Requires {
			node.Requires = append(node.Requires, string(r))
		}
		nodes = append(nodes, node)
	}
	return validation.ValidatePlan(nodes)
}
