// Package agents holds the campaign analysis sub-agents. Each stage wraps one
// generation call behind a fixed prompt template and a fixed output schema,
// and never returns an error: failures degrade to the schema's empty defaults.
package agents

import (
	"encoding/json"
	"fmt"
)

// Stage names one analysis step. The value doubles as the prompt template
// name and as the binding name under which later stages see its output.
type Stage string

const (
	StageCompetition Stage = "competition"
	StageUsecase     Stage = "usecase"
	StageObjectives  Stage = "objectives"
	StageAudience    Stage = "audience"
	StagePositioning Stage = "positioning"
)

// AllStages lists the stages in pipeline order.
var AllStages = []Stage{StageCompetition, StageUsecase, StageObjectives, StageAudience, StagePositioning}

// StageOutput is a stage result keyed by schema field.
type StageOutput map[string]any

// String serializes the output as compact JSON for prompt threading.
func (o StageOutput) String() string {
	b, err := json.Marshal(o)
	if err != nil {
		return fmt.Sprintf("%v", map[string]any(o))
	}
	return string(b)
}

// Clone returns a shallow copy.
func (o StageOutput) Clone() StageOutput {
	out := make(StageOutput, len(o))
	for k, v := range o {
		out[k] = v
	}
	return out
}

type field struct {
	key     string
	zero    func() any
	matches func(any) bool
}

func stringField(key string) field {
	return field{
		key:  key,
		zero: func() any { return "" },
		matches: func(v any) bool {
			_, ok := v.(string)
			return ok
		},
	}
}

func listField(key string) field {
	return field{
		key:  key,
		zero: func() any { return []any{} },
		matches: func(v any) bool {
			_, ok := v.([]any)
			return ok
		},
	}
}

func objectField(key string) field {
	return field{
		key:  key,
		zero: func() any { return map[string]any{} },
		matches: func(v any) bool {
			_, ok := v.(map[string]any)
			return ok
		},
	}
}

var schemas = map[Stage][]field{
	StageCompetition: {listField("competitors"), stringField("alternative_product"), stringField("advantages")},
	StageUsecase:     {listField("use_cases")},
	StageObjectives:  {listField("objectives")},
	StageAudience:    {objectField("target_users")},
	StagePositioning: {objectField("positioning")},
}

// Known reports whether s is one of the five analysis stages.
func Known(s Stage) bool {
	_, ok := schemas[s]
	return ok
}

// RequiredKeys lists the keys every output of stage carries.
func RequiredKeys(stage Stage) []string {
	fields := schemas[stage]
	keys := make([]string, len(fields))
	for i, f := range fields {
		keys[i] = f.key
	}
	return keys
}

// Defaults returns a fresh default-empty output for stage.
func Defaults(stage Stage) StageOutput {
	out := StageOutput{}
	for _, f := range schemas[stage] {
		out[f.key] = f.zero()
	}
	return out
}

// Conform fills every required key that is missing or has the wrong JSON
// type with its default. Extra keys are kept.
func Conform(stage Stage, record map[string]any) (StageOutput, []string) {
	out := StageOutput{}
	for k, v := range record {
		out[k] = v
	}
	var replaced []string
	for _, f := range schemas[stage] {
		if v, ok := out[f.key]; !ok || !f.matches(v) {
			out[f.key] = f.zero()
			replaced = append(replaced, f.key)
		}
	}
	return out, replaced
}
