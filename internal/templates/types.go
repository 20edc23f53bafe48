package templates

// Kind enumerates supported prompt template kinds.
type Kind string

const (
	// KindStage templates drive one campaign analysis sub-agent.
	KindStage Kind = "stage"
	// KindCalendar templates drive one calendar window call.
	KindCalendar Kind = "calendar"
)

// Template is a prompt definition loaded from YAML.
type Template struct {
	Name        string `yaml:"name"`
	Kind        Kind   `yaml:"kind"`
	Version     string `yaml:"version"`
	Description string `yaml:"description"`
	// Role is the system prompt; Prompt the user prompt. Both use
	// text/template syntax over string bindings.
	Role   string `yaml:"role"`
	Prompt string `yaml:"prompt"`
	// Schema is the JSON shape the model must return. Calendar templates
	// leave it empty; their schema is built per window.
	Schema string `yaml:"schema"`
	// Strategies maps template types (educational, ...) to the strategy line
	// injected into calendar prompts.
	Strategies map[string]string `yaml:"strategies"`
	Metadata   map[string]any    `yaml:"metadata"`
}

// Strategy returns the strategy line for a template type.
func (t *Template) Strategy(templateType string) (string, bool) {
	s, ok := t.Strategies[templateType]
	return s, ok
}
