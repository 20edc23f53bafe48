// Package calendar produces a dense day-by-day content calendar by splitting
// the period into windows, generating each window with one model call, and
// filling any window that cannot be resolved with error days.
package calendar

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ContentType is the format of one calendar day.
type ContentType string

const (
	CanonicalPost ContentType = "canonical_post"
	Carousel      ContentType = "carousel"
	VideoScript   ContentType = "video_script"
	// ErrorDay marks a day whose window could not be generated.
	ErrorDay ContentType = "error"
)

var (
	ErrUnknownTemplate    = errors.New("unknown template type")
	ErrUnknownContentType = errors.New("unknown content type")
	ErrNoContentTypes     = errors.New("at least one content type is required")
)

var contentTypeAliases = map[string]ContentType{
	"canonical_post": CanonicalPost,
	"canonical":      CanonicalPost,
	"post":           CanonicalPost,
	"text":           CanonicalPost,
	"image":          CanonicalPost,
	"carousel":       Carousel,
	"video_script":   VideoScript,
	"video":          VideoScript,
	"reel":           VideoScript,
}

// ParseContentType maps a requested content type, including the aliases the
// intake form uses ("image", "video"), to a ContentType.
func ParseContentType(s string) (ContentType, error) {
	key := strings.ToLower(strings.TrimSpace(s))
	key = strings.ReplaceAll(key, "-", "_")
	if ct, ok := contentTypeAliases[key]; ok {
		return ct, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownContentType, s)
}

// ParseContentTypes parses a requested list, preserving order.
func ParseContentTypes(in []string) ([]ContentType, error) {
	if len(in) == 0 {
		return nil, ErrNoContentTypes
	}
	out := make([]ContentType, 0, len(in))
	for _, s := range in {
		ct, err := ParseContentType(s)
		if err != nil {
			return nil, err
		}
		out = append(out, ct)
	}
	return out, nil
}

// Day is one calendar entry. Payload fields are flattened next to day,
// content_type and tags when encoded.
type Day struct {
	Day         int
	ContentType ContentType
	Payload     map[string]any
	Tags        []string
	Error       string
}

// IsError reports whether d is a placeholder for a failed window.
func (d Day) IsError() bool { return d.ContentType == ErrorDay }

// Text returns the string payload field key, or "".
func (d Day) Text(key string) string {
	s, _ := d.Payload[key].(string)
	return s
}

var reservedKeys = map[string]bool{"day": true, "content_type": true, "tags": true, "error": true}

func (d Day) MarshalJSON() ([]byte, error) {
	m := make(map[string]any, len(d.Payload)+4)
	for k, v := range d.Payload {
		if !reservedKeys[k] {
			m[k] = v
		}
	}
	m["day"] = d.Day
	m["content_type"] = d.ContentType
	tags := d.Tags
	if tags == nil {
		tags = []string{}
	}
	m["tags"] = tags
	if d.Error != "" {
		m["error"] = d.Error
	}
	return json.Marshal(m)
}

func (d *Day) UnmarshalJSON(b []byte) error {
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return err
	}
	n, ok := dayNumber(m["day"])
	if !ok {
		return fmt.Errorf("calendar day without a valid day number")
	}
	ct, _ := m["content_type"].(string)
	errText, _ := m["error"].(string)
	*d = Day{
		Day:         n,
		ContentType: ContentType(ct),
		Tags:        stringList(m["tags"]),
		Error:       errText,
		Payload:     map[string]any{},
	}
	for k, v := range m {
		if !reservedKeys[k] {
			d.Payload[k] = v
		}
	}
	return nil
}

// Calendar is the assembled output.
type Calendar struct {
	TemplateType string `json:"template_type"`
	TotalDays    int    `json:"total_days"`
	Days         []Day  `json:"days"`
}

// ErrorCount returns the number of placeholder days.
func (c *Calendar) ErrorCount() int {
	n := 0
	for _, d := range c.Days {
		if d.IsError() {
			n++
		}
	}
	return n
}

// DayNumber returns the entry for day n.
func (c *Calendar) DayNumber(n int) (Day, bool) {
	i := sort.Search(len(c.Days), func(i int) bool { return c.Days[i].Day >= n })
	if i < len(c.Days) && c.Days[i].Day == n {
		return c.Days[i], true
	}
	return Day{}, false
}

// dayNumber accepts the number shapes models produce: 3, 3.0, "3".
func dayNumber(v any) (int, bool) {
	switch n := v.(type) {
	case float64:
		if n != float64(int(n)) {
			return 0, false
		}
		return int(n), true
	case int:
		return n, true
	case json.Number:
		i, err := n.Int64()
		return int(i), err == nil
	case string:
		var i int
		if _, err := fmt.Sscanf(strings.TrimSpace(n), "%d", &i); err != nil {
			return 0, false
		}
		return i, true
	}
	return 0, false
}

func stringList(v any) []string {
	items, ok := v.([]any)
	if !ok {
		return []string{}
	}
	out := make([]string, 0, len(items))
	for _, it := range items {
		if s, ok := it.(string); ok && strings.TrimSpace(s) != "" {
			out = append(out, strings.TrimPrefix(strings.TrimSpace(s), "#"))
		}
	}
	return out
}
