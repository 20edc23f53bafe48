package templates

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"text/template"
)

// ValidationIssue captures a single validation failure with a stable code for metrics.
type ValidationIssue struct {
	Code    string
	Message string
}

// ValidationError aggregates template validation failures.
type ValidationError struct {
	Issues []ValidationIssue
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if len(e.Issues) == 0 {
		return "template validation failed"
	}
	if len(e.Issues) == 1 {
		return e.Issues[0].Message
	}
	msgs := make([]string, len(e.Issues))
	for i, issue := range e.Issues {
		msgs[i] = issue.Message
	}
	return fmt.Sprintf("%d validation errors: %s", len(e.Issues), strings.Join(msgs, "; "))
}

// HasIssues reports whether any validation problems were captured.
func (e *ValidationError) HasIssues() bool {
	return e != nil && len(e.Issues) > 0
}

// ValidateTemplate checks structure, template syntax and schema JSON.
func ValidateTemplate(tpl *Template) error {
	if tpl == nil {
		return &ValidationError{Issues: []ValidationIssue{{Code: "nil_template", Message: "template is nil"}}}
	}
	var issues []ValidationIssue
	add := func(code, format string, args ...any) {
		issues = append(issues, ValidationIssue{Code: code, Message: fmt.Sprintf(format, args...)})
	}

	if strings.TrimSpace(tpl.Name) == "" {
		add("missing_name", "template name is required")
	}
	switch tpl.Kind {
	case KindStage:
		if strings.TrimSpace(tpl.Schema) == "" {
			add("missing_schema", "stage template %q requires a schema", tpl.Name)
		} else if !json.Valid([]byte(tpl.Schema)) {
			add("invalid_schema", "stage template %q schema is not valid JSON", tpl.Name)
		}
	case KindCalendar:
		if len(tpl.Strategies) == 0 {
			add("missing_strategies", "calendar template %q requires at least one strategy", tpl.Name)
		}
		keys := make([]string, 0, len(tpl.Strategies))
		for k := range tpl.Strategies {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if strings.TrimSpace(tpl.Strategies[k]) == "" {
				add("empty_strategy", "calendar template %q strategy %q is empty", tpl.Name, k)
			}
		}
	default:
		add("invalid_kind", "template %q has unsupported kind %q", tpl.Name, tpl.Kind)
	}

	if strings.TrimSpace(tpl.Role) == "" {
		add("missing_role", "template %q requires a role", tpl.Name)
	}
	if strings.TrimSpace(tpl.Prompt) == "" {
		add("missing_prompt", "template %q requires a prompt", tpl.Name)
	}
	for part, text := range map[string]string{"role": tpl.Role, "prompt": tpl.Prompt} {
		if _, err := template.New(part).Parse(text); err != nil {
			add("invalid_syntax", "template %q %s does not parse: %v", tpl.Name, part, err)
		}
	}

	if len(issues) > 0 {
		sort.SliceStable(issues, func(i, j int) bool { return issues[i].Code < issues[j].Code })
		return &ValidationError{Issues: issues}
	}
	return nil
}
