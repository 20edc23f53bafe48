package retrieval

import (
	"fmt"
	"strings"
)

// Placeholders substituted for context when nothing usable was retrieved.
const (
	NoContentPlaceholder = "No past content available for this brand."
	FailurePlaceholder   = "Context retrieval failed — generating without past content."
)

// Snippet is one retrieved text with its provenance.
type Snippet struct {
	Text     string         `json:"text"`
	Platform string         `json:"source_platform"`
	Rank     int            `json:"relevance_rank"`
	Score    float64        `json:"score"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Context is an ordered, possibly empty, retrieval result. When Snippets is
// empty Placeholder explains why, and Err carries the failure, if any.
type Context struct {
	Snippets    []Snippet `json:"snippets"`
	Placeholder string    `json:"placeholder,omitempty"`
	Err         error     `json:"-"`
}

// Failed reports whether retrieval itself failed.
func (c Context) Failed() bool { return c.Err != nil }

// String renders the context as a prompt block.
func (c Context) String() string {
	if len(c.Snippets) == 0 {
		if c.Placeholder != "" {
			return c.Placeholder
		}
		return NoContentPlaceholder
	}
	blocks := make([]string, 0, len(c.Snippets))
	for _, s := range c.Snippets {
		blocks = append(blocks, fmt.Sprintf("[Post %d — %s]\n%s", s.Rank, s.Platform, s.Text))
	}
	return strings.Join(blocks, "\n\n")
}

// CollectionName maps a tenant (brand) to its vector collection.
func CollectionName(tenant string) string {
	name := strings.ToLower(strings.TrimSpace(tenant))
	name = strings.NewReplacer(" ", "_", "-", "_").Replace(name)
	return "company_" + name
}
