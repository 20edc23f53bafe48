package generation

import (
	"bytes"
	"errors"
	"fmt"
	"maps"
	"strings"
	"text/template"
)

var (
	// ErrTimeout marks a call abandoned after its deadline elapsed.
	ErrTimeout = errors.New("generation timed out")
	// ErrEmptyResponse marks a provider reply with no text.
	ErrEmptyResponse = errors.New("empty model response")
	// ErrMissingAPIKey is returned by provider constructors without credentials.
	ErrMissingAPIKey = errors.New("missing API key")
)

// Request is one prompt for one generation call. Build it with NewRequest;
// it is not modified after construction.
type Request struct {
	// Name identifies the prompt in logs and spans (stage or window name).
	Name string
	// RoleInstructions is the system prompt template.
	RoleInstructions string
	// Prompt is the user prompt template.
	Prompt string
	// SchemaHint describes the expected JSON shape.
	SchemaHint string

	variables map[string]string
}

// NewRequest copies variables so later mutation by the caller has no effect.
func NewRequest(name, roleInstructions, prompt, schemaHint string, variables map[string]string) Request {
	return Request{
		Name:             name,
		RoleInstructions: roleInstructions,
		Prompt:           prompt,
		SchemaHint:       schemaHint,
		variables:        maps.Clone(variables),
	}
}

// Variable returns the binding for name.
func (r Request) Variable(name string) string {
	return r.variables[name]
}

// Variables returns a copy of all bindings.
func (r Request) Variables() map[string]string {
	return maps.Clone(r.variables)
}

// Messages is a rendered request.
type Messages struct {
	System string
	User   string
	// JSON asks the provider for its JSON response mode.
	JSON bool
}

// Render interpolates the bindings into both templates. Templates use
// text/template syntax ({{.company}}); unknown keys render empty.
func (r Request) Render() (Messages, error) {
	system, err := render(r.Name+"/system", r.RoleInstructions, r.variables)
	if err != nil {
		return Messages{}, err
	}
	user, err := render(r.Name+"/user", r.Prompt, r.variables)
	if err != nil {
		return Messages{}, err
	}
	if hint := strings.TrimSpace(r.SchemaHint); hint != "" {
		system = strings.TrimSpace(system) +
			"\n\nRespond ONLY with valid JSON. No markdown, no explanation. Use exactly this structure:\n" + hint
	}
	return Messages{System: system, User: user}, nil
}

func render(name, text string, vars map[string]string) (string, error) {
	tpl, err := template.New(name).Option("missingkey=zero").Parse(text)
	if err != nil {
		return "", fmt.Errorf("parse prompt %s: %w", name, err)
	}
	var buf bytes.Buffer
	data := vars
	if data == nil {
		data = map[string]string{}
	}
	if err := tpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render prompt %s: %w", name, err)
	}
	return buf.String(), nil
}

// Kind tags a Result.
type Kind int

const (
	KindStructured Kind = iota
	KindRawText
	KindFailed
)

func (k Kind) String() string {
	switch k {
	case KindStructured:
		return "structured"
	case KindRawText:
		return "raw_text"
	case KindFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Result is the outcome of one generation call: a record parsed at the
// transport layer, raw text the caller may still recover, or a failure.
type Result struct {
	Kind   Kind
	Record map[string]any
	Text   string
	Err    error
}

// Structured builds a structured result.
func Structured(record map[string]any) Result { return Result{Kind: KindStructured, Record: record} }

// RawText builds a raw-text result.
func RawText(text string) Result { return Result{Kind: KindRawText, Text: text} }

// Failed builds a failed result.
func Failed(err error) Result { return Result{Kind: KindFailed, Err: err} }

// TimedOut reports whether the result failed on the deadline.
func (r Result) TimedOut() bool {
	return r.Kind == KindFailed && errors.Is(r.Err, ErrTimeout)
}

// Reason is a short human-readable failure description.
func (r Result) Reason() string {
	switch {
	case r.Kind != KindFailed:
		return ""
	case r.TimedOut():
		return "timeout"
	case r.Err != nil:
		return r.Err.Error()
	default:
		return "unknown failure"
	}
}
