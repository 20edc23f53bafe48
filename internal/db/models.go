package db

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNotFound is returned when a campaign does not exist.
	ErrNotFound = errors.New("campaign not found")
	// ErrInvalidTransition is returned for a status change the lifecycle forbids.
	ErrInvalidTransition = errors.New("invalid campaign status transition")
)

// JSONB represents a jsonb column (TEXT under sqlite)
type JSONB map[string]interface{}

// Value implements the driver.Valuer interface
func (j JSONB) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	b, err := json.Marshal(j)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements the sql.Scanner interface
func (j *JSONB) Scan(value interface{}) error {
	var data []byte
	switch v := value.(type) {
	case nil:
		*j = nil
		return nil
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("cannot scan %T into JSONB", value)
	}
	return json.Unmarshal(data, j)
}

// ToJSONB converts any JSON-encodable value into a JSONB document.
func ToJSONB(v any) (JSONB, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out JSONB
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Decode unmarshals the document into v.
func (j JSONB) Decode(v any) error {
	b, err := json.Marshal(j)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, v)
}

// Status is a campaign lifecycle state.
type Status string

const (
	StatusGenerating Status = "generating"
	StatusCompleted  Status = "completed"
	StatusPublished  Status = "published"
	StatusFailed     Status = "failed"
)

// allowedFrom lists the states each status may be entered from.
var allowedFrom = map[Status][]Status{
	StatusCompleted: {StatusGenerating},
	StatusPublished: {StatusCompleted},
	StatusFailed:    {StatusGenerating, StatusCompleted},
}

// CanTransition reports whether from -> to is a legal status change.
func CanTransition(from, to Status) bool {
	for _, s := range allowedFrom[to] {
		if s == from {
			return true
		}
	}
	return false
}

// Campaign is one brand campaign and its generated documents.
type Campaign struct {
	ID           string     `db:"id" json:"id"`
	Tenant       string     `db:"tenant" json:"tenant"`
	Product      string     `db:"product" json:"product"`
	ICP          string     `db:"icp" json:"icp"`
	Tone         string     `db:"tone" json:"tone"`
	Description  string     `db:"description" json:"description"`
	TemplateType string     `db:"template_type" json:"template_type"`
	ContentTypes JSONB      `db:"content_types" json:"content_types"`
	Status       Status     `db:"status" json:"status"`
	WorkflowID   *string    `db:"workflow_id" json:"workflow_id,omitempty"`
	Analysis     JSONB      `db:"analysis" json:"analysis,omitempty"`
	Calendar     JSONB      `db:"calendar" json:"calendar,omitempty"`
	ErrorMessage *string    `db:"error_message" json:"error_message,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updated_at"`
	PublishedAt  *time.Time `db:"published_at" json:"published_at,omitempty"`
}

// ContentTypeList returns the requested content types in order.
func (c *Campaign) ContentTypeList() []string {
	items, _ := c.ContentTypes["items"].([]interface{})
	out := make([]string, 0, len(items))
	for _, it := range items {
		if s, ok := it.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// SetContentTypes stores types as {"items": [...]}.
func (c *Campaign) SetContentTypes(types []string) {
	items := make([]interface{}, 0, len(types))
	for _, t := range types {
		items = append(items, t)
	}
	c.ContentTypes = JSONB{"items": items}
}
