// Package textproc cleans scraped social posts and turns them into
// embeddable chunks.
package textproc

import (
	"html"
	"regexp"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
)

// MinPostLength is the shortest cleaned post worth storing.
const MinPostLength = 20

var (
	urlPattern        = regexp.MustCompile(`https?://\S+|www\.\S+`)
	whitespacePattern = regexp.MustCompile(`\s+`)
	hashtagPattern    = regexp.MustCompile(`#\w+`)
	mentionPattern    = regexp.MustCompile(`@\w+`)

	quoteReplacer = strings.NewReplacer("“", `"`, "”", `"`, "‘", "'", "’", "'")
	stripPolicy   = bluemonday.StrictPolicy()
)

// Post is one scraped social media post.
type Post struct {
	Platform  string `json:"platform"`
	Content   string `json:"content,omitempty"`
	Caption   string `json:"caption,omitempty"`
	PostURL   string `json:"post_url,omitempty"`
	PostDate  string `json:"post_date,omitempty"`
	ImageURL  string `json:"image_url,omitempty"`
	MediaType string `json:"media_type,omitempty"`
	Likes     string `json:"likes,omitempty"`
}

// Body returns the post text, preferring Content over Caption.
func (p Post) Body() string {
	if strings.TrimSpace(p.Content) != "" {
		return p.Content
	}
	return p.Caption
}

// Chunk is an embeddable piece of a post with its payload metadata.
type Chunk struct {
	Text     string
	Metadata map[string]string
}

// Clean strips markup and URLs, normalizes quotes and collapses whitespace.
func Clean(text string) string {
	if text == "" {
		return ""
	}
	text = html.UnescapeString(stripPolicy.Sanitize(text))
	text = urlPattern.ReplaceAllString(text, "")
	text = quoteReplacer.Replace(text)
	text = whitespacePattern.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}

// Hashtags returns the #tags in text in order of appearance.
func Hashtags(text string) []string { return hashtagPattern.FindAllString(text, -1) }

// Mentions returns the @handles in text in order of appearance.
func Mentions(text string) []string { return mentionPattern.FindAllString(text, -1) }

// Processor converts posts into chunks.
type Processor struct {
	chunker *Chunker
	now     func() time.Time
}

// NewProcessor creates a processor splitting long posts with cfg.
func NewProcessor(cfg ChunkingConfig) *Processor {
	return &Processor{chunker: NewChunker(cfg), now: time.Now}
}

// Process cleans posts for company and returns the chunks to store plus the
// number of posts skipped for being too short.
func (p *Processor) Process(company string, posts []Post) ([]Chunk, int) {
	var chunks []Chunk
	skipped := 0
	for _, post := range posts {
		raw := post.Body()
		text := Clean(raw)
		if len([]rune(text)) < MinPostLength {
			skipped++
			continue
		}

		meta := p.metadata(company, post, raw)
		pieces := p.chunker.Split(text)
		for i, piece := range pieces {
			m := meta
			if len(pieces) > 1 {
				m = make(map[string]string, len(meta)+2)
				for k, v := range meta {
					m[k] = v
				}
				m["chunk_index"] = itoa(i)
				m["chunk_count"] = itoa(len(pieces))
			}
			chunks = append(chunks, Chunk{Text: piece, Metadata: m})
		}
	}
	return chunks, skipped
}

func (p *Processor) metadata(company string, post Post, raw string) map[string]string {
	platform := strings.ToLower(strings.TrimSpace(post.Platform))
	if platform == "" {
		platform = "unknown"
	}
	date := post.PostDate
	if date == "" {
		date = p.now().UTC().Format(time.RFC3339)
	}
	meta := map[string]string{
		"platform":  platform,
		"company":   company,
		"post_date": date,
		"post_url":  post.PostURL,
		"type":      "post",
	}
	if tags := Hashtags(raw); len(tags) > 0 {
		meta["hashtags"] = strings.Join(tags, ", ")
	}
	if mentions := Mentions(raw); len(mentions) > 0 {
		meta["mentions"] = strings.Join(mentions, ", ")
	}
	switch platform {
	case "instagram":
		if post.Likes != "" {
			meta["likes"] = post.Likes
		}
		if post.ImageURL != "" {
			meta["image_url"] = post.ImageURL
		}
		meta["media_type"] = "post"
		if post.MediaType != "" {
			meta["media_type"] = post.MediaType
		}
	}
	return meta
}
