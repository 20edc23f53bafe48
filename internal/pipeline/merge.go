package pipeline

import "github.com/Kocoro-lab/brandcast/go/orchestrator/internal/agents"

type mergeField struct {
	stage agents.Stage
	key   string
}

// mergedFields lists the record keys and the stage each is taken from.
var mergedFields = []mergeField{
	{agents.StageCompetition, "competitors"},
	{agents.StageCompetition, "alternative_product"},
	{agents.StageCompetition, "advantages"},
	{agents.StageUsecase, "use_cases"},
	{agents.StageObjectives, "objectives"},
	{agents.StageAudience, "target_users"},
	{agents.StagePositioning, "positioning"},
}

// RecordKeys returns the keys of a merged analysis record.
func RecordKeys() []string {
	keys := make([]string, len(mergedFields))
	for i, f := range mergedFields {
		keys[i] = f.key
	}
	return keys
}

// Merge flattens stage outputs into the analysis record. Stages that did not
// run contribute their defaults, so every key is always present.
func Merge(stages []StageResult) map[string]any {
	outputs := make(map[agents.Stage]agents.StageOutput, len(stages))
	for _, s := range stages {
		outputs[s.Stage] = s.Output
	}
	record := make(map[string]any, len(mergedFields))
	for _, f := range mergedFields {
		out, ok := outputs[f.stage]
		if !ok {
			out = agents.Defaults(f.stage)
		}
		v, ok := out[f.key]
		if !ok {
			v = agents.Defaults(f.stage)[f.key]
		}
		record[f.key] = v
	}
	return record
}
