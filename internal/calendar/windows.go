package calendar

import (
	"errors"
	"fmt"
	"strings"
)

// Assignment pins one day to a content type.
type Assignment struct {
	Day         int
	ContentType ContentType
}

// Window is a contiguous range of days produced by one generation call.
type Window struct {
	Index       int
	Start       int
	End         int
	Assignments []Assignment
}

// Len returns the number of days in the window.
func (w Window) Len() int { return w.End - w.Start + 1 }

// Contains reports whether day falls in the window.
func (w Window) Contains(day int) bool { return day >= w.Start && day <= w.End }

// Assigned returns the content type for day.
func (w Window) Assigned(day int) ContentType {
	return w.Assignments[day-w.Start].ContentType
}

// ContentTypeFor cycles through types by day number (1-based).
func ContentTypeFor(day int, types []ContentType) ContentType {
	return types[(day-1)%len(types)]
}

// PlanWindows splits 1..total into ceil(total/batch) windows.
func PlanWindows(total, batch int, types []ContentType) []Window {
	if total <= 0 || batch <= 0 || len(types) == 0 {
		return nil
	}
	windows := make([]Window, 0, (total+batch-1)/batch)
	for start := 1; start <= total; start += batch {
		end := start + batch - 1
		if end > total {
			end = total
		}
		w := Window{Index: len(windows), Start: start, End: end}
		for day := start; day <= end; day++ {
			w.Assignments = append(w.Assignments, Assignment{Day: day, ContentType: ContentTypeFor(day, types)})
		}
		windows = append(windows, w)
	}
	return windows
}

var payloadShapes = map[ContentType]string{
	CanonicalPost: `"text": "150-200 word post, markdown allowed", "image_prompt": "optional image description"`,
	Carousel:      `"title": "...", "slides": [{"slide_number": 1, "title": "...", "body": "...", "image_prompt": "..."}], "cta_slide": {"title": "...", "body": "..."}`,
	VideoScript:   `"hook": "...", "body": "...", "cta": "...", "caption": "..."`,
}

// SchemaFor describes the JSON object expected for w, one entry per day.
func SchemaFor(w Window) string {
	var b strings.Builder
	b.WriteString("{\"days\": [\n")
	for i, a := range w.Assignments {
		fmt.Fprintf(&b, "  {\"day\": %d, \"content_type\": %q, %s, \"tags\": [\"tag1\", \"tag2\", \"tag3\"]}",
			a.Day, a.ContentType, payloadShapes[a.ContentType])
		if i < len(w.Assignments)-1 {
			b.WriteString(",")
		}
		b.WriteString("\n")
	}
	b.WriteString("]}")
	return b.String()
}

// AssignmentList renders the per-day assignments for the prompt.
func AssignmentList(w Window) string {
	lines := make([]string, 0, len(w.Assignments))
	for _, a := range w.Assignments {
		lines = append(lines, fmt.Sprintf("- Day %d: %s", a.Day, a.ContentType))
	}
	return strings.Join(lines, "\n")
}

var errNoDays = errors.New("no day list in model output")

// ExtractDays accepts either {"days": [...]} or a bare list.
func ExtractDays(v any) ([]map[string]any, error) {
	var items []any
	switch t := v.(type) {
	case map[string]any:
		list, ok := t["days"].([]any)
		if !ok {
			return nil, errNoDays
		}
		items = list
	case []any:
		items = t
	default:
		return nil, errNoDays
	}
	out := make([]map[string]any, 0, len(items))
	for _, it := range items {
		if m, ok := it.(map[string]any); ok {
			out = append(out, m)
		}
	}
	if len(out) == 0 {
		return nil, errNoDays
	}
	return out, nil
}

// MissingReason is the error text for days the model skipped.
const MissingReason = "missing from model output"

// Resolve turns the model's entries into exactly one Day per window day.
func Resolve(w Window, entries []map[string]any) (days []Day, missing int) {
	byDay := make(map[int]Day, w.Len())
	for _, e := range entries {
		n, ok := dayNumber(e["day"])
		if !ok || !w.Contains(n) {
			continue
		}
		if _, dup := byDay[n]; dup {
			continue
		}
		payload := make(map[string]any, len(e))
		for k, v := range e {
			if !reservedKeys[k] {
				payload[k] = v
			}
		}
		byDay[n] = Day{
			Day:         n,
			ContentType: w.Assigned(n),
			Payload:     payload,
			Tags:        stringList(e["tags"]),
		}
	}
	days = make([]Day, 0, w.Len())
	for _, a := range w.Assignments {
		d, ok := byDay[a.Day]
		if !ok {
			d = errorDay(a.Day, MissingReason)
			missing++
		}
		days = append(days, d)
	}
	return days, missing
}

// ErrorDays fills every day of w with a placeholder carrying reason.
func ErrorDays(w Window, reason string) []Day {
	days := make([]Day, 0, w.Len())
	for day := w.Start; day <= w.End; day++ {
		days = append(days, errorDay(day, reason))
	}
	return days
}

func errorDay(day int, reason string) Day {
	return Day{
		Day:         day,
		ContentType: ErrorDay,
		Payload:     map[string]any{},
		Tags:        []string{},
		Error:       reason,
	}
}

// Merge assembles window results into exactly total days sorted by day
// number. Days outside 1..total and duplicates are dropped; gaps become error
// days.
func Merge(total int, windows ...[]Day) []Day {
	byDay := make(map[int]Day, total)
	for _, w := range windows {
		for _, d := range w {
			if d.Day < 1 || d.Day > total {
				continue
			}
			if _, dup := byDay[d.Day]; !dup {
				byDay[d.Day] = d
			}
		}
	}
	out := make([]Day, 0, total)
	for day := 1; day <= total; day++ {
		d, ok := byDay[day]
		if !ok {
			d = errorDay(day, MissingReason)
		}
		out = append(out, d)
	}
	return out
}
