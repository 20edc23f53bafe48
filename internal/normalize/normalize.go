// Package normalize turns raw model text into structured values.
//
// Models routinely wrap valid JSON in code fences or explanatory prose, so
// parsing runs in two passes: a strict parse of the text (as given, then with
// an enclosing fence removed), then a best-effort parse of the outermost {...}
// span. Fences inside string values are never touched.
package normalize

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/Kocoro-lab/brandcast/go/orchestrator/internal/metrics"
)

// SnippetLimit bounds the raw text carried by an Error.
const SnippetLimit = 500

var (
	openFenceRe  = regexp.MustCompile("^```(?i:json)?")
	closeFenceRe = regexp.MustCompile("```$")
	objectRe     = regexp.MustCompile(`(?s)\{.*\}`)
)

// Error reports that neither pass produced a structured value.
type Error struct {
	Snippet string
	Err     error
}

func (e *Error) Error() string {
	return fmt.Sprintf("could not extract JSON from model output: %v (raw: %q)", e.Err, e.Snippet)
}

func (e *Error) Unwrap() error { return e.Err }

// Clean trims whitespace and removes one code fence wrapping the whole text.
func Clean(raw string) string {
	cleaned := strings.TrimSpace(raw)
	cleaned = openFenceRe.ReplaceAllString(cleaned, "")
	cleaned = closeFenceRe.ReplaceAllString(cleaned, "")
	return strings.TrimSpace(cleaned)
}

// Parse returns the structured value encoded in raw. The result is either a
// map[string]any or a []any.
func Parse(raw string) (any, error) {
	cleaned := Clean(raw)

	var err error
	for _, candidate := range []string{strings.TrimSpace(raw), cleaned} {
		var v any
		if err = json.Unmarshal([]byte(candidate), &v); err != nil {
			continue
		}
		if isContainer(v) {
			metrics.RecordNormalizerPass("direct")
			return v, nil
		}
		err = fmt.Errorf("top-level value is %T, not an object or array", v)
	}

	if m := objectRe.FindString(cleaned); m != "" {
		var obj map[string]any
		err2 := json.Unmarshal([]byte(m), &obj)
		if err2 == nil {
			metrics.RecordNormalizerPass("extracted")
			return obj, nil
		}
		err = err2
	}

	metrics.RecordNormalizerPass("failed")
	return nil, &Error{Snippet: snippet(raw), Err: err}
}

// ParseRecord is Parse restricted to JSON objects.
func ParseRecord(raw string) (map[string]any, error) {
	v, err := Parse(raw)
	if err != nil {
		return nil, err
	}
	rec, ok := v.(map[string]any)
	if !ok {
		return nil, &Error{Snippet: snippet(raw), Err: fmt.Errorf("expected a JSON object, got %T", v)}
	}
	return rec, nil
}

func isContainer(v any) bool {
	switch v.(type) {
	case map[string]any, []any:
		return true
	}
	return false
}

func snippet(raw string) string {
	r := []rune(raw)
	if len(r) > SnippetLimit {
		return string(r[:SnippetLimit])
	}
	return raw
}
