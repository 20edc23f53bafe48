// Package publish formats calendar days for Telegram and delivers them
// behind the publish policy gate.
package publish

import (
	"bytes"
	"fmt"
	"html"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"

	"github.com/Kocoro-lab/brandcast/go/orchestrator/internal/calendar"
)

// Telegram limits.
const (
	MaxMessageLength = 4096
	MaxCaptionLength = 1024
	maxMediaGroup    = 10
)

// Message is a formatted day ready to send.
type Message struct {
	Text   string
	Images []string
}

// Limit is the length limit for m's text given how it will be sent.
func (m Message) Limit() int {
	if len(m.Images) > 0 {
		return MaxCaptionLength
	}
	return MaxMessageLength
}

var (
	telegramPolicy = func() *bluemonday.Policy {
		p := bluemonday.NewPolicy()
		p.AllowElements("b", "i", "u", "s", "code", "pre", "blockquote")
		p.AllowAttrs("href").OnElements("a")
		p.AllowStandardURLs()
		return p
	}()

	stripPolicy = bluemonday.StrictPolicy()

	paragraphEnd = regexp.MustCompile(`(?i)</p>|<br\s*/?>|</ul>|</ol>`)
	headingStart = regexp.MustCompile(`(?i)<h[1-6][^>]*>`)
	headingEnd   = regexp.MustCompile(`(?i)</h[1-6]>`)
	listItem     = regexp.MustCompile(`(?i)<li[^>]*>`)
	listItemEnd  = regexp.MustCompile(`(?i)</li>\s*`)
	blankRuns    = regexp.MustCompile(`\n{3,}`)

	tagRenames = strings.NewReplacer(
		"<strong>", "<b>", "</strong>", "</b>",
		"<em>", "<i>", "</em>", "</i>",
		"<del>", "<s>", "</del>", "</s>",
	)
)

// MarkdownToHTML converts markdown into the subset of HTML Telegram accepts.
func MarkdownToHTML(md string) (string, error) {
	var buf bytes.Buffer
	if err := goldmark.Convert([]byte(md), &buf); err != nil {
		return "", err
	}
	out := tagRenames.Replace(buf.String())
	out = headingStart.ReplaceAllString(out, "<b>")
	out = headingEnd.ReplaceAllString(out, "</b>\n\n")
	out = listItem.ReplaceAllString(out, "• ")
	out = listItemEnd.ReplaceAllString(out, "\n")
	out = paragraphEnd.ReplaceAllString(out, "\n\n")
	out = telegramPolicy.Sanitize(out)
	out = blankRuns.ReplaceAllString(out, "\n\n")
	return strings.TrimSpace(out), nil
}

// Format renders d for Telegram HTML parse mode.
func Format(d calendar.Day) (Message, error) {
	var body string
	switch d.ContentType {
	case calendar.CanonicalPost:
		text, err := MarkdownToHTML(d.Text("text"))
		if err != nil {
			return Message{}, fmt.Errorf("format day %d: %w", d.Day, err)
		}
		body = text
	case calendar.Carousel:
		body = formatCarousel(d)
	case calendar.VideoScript:
		body = formatVideoScript(d)
	}
	if tags := tagLine(d.Tags); tags != "" && body != "" {
		body += "\n\n" + tags
	}
	m := Message{Text: body, Images: images(d)}
	m.Text = Truncate(m.Text, m.Limit())
	return m, nil
}

func formatCarousel(d calendar.Day) string {
	var b strings.Builder
	if title := d.Text("title"); title != "" {
		fmt.Fprintf(&b, "<b>%s</b>\n\n", esc(title))
	}
	slides, _ := d.Payload["slides"].([]any)
	for _, s := range slides {
		slide, ok := s.(map[string]any)
		if !ok {
			continue
		}
		title, _ := slide["title"].(string)
		text, _ := slide["body"].(string)
		fmt.Fprintf(&b, "• <b>%s</b>: %s\n", esc(title), esc(text))
	}
	if cta, ok := d.Payload["cta_slide"].(map[string]any); ok {
		title, _ := cta["title"].(string)
		text, _ := cta["body"].(string)
		fmt.Fprintf(&b, "\n👉 <b>%s</b>: %s", esc(title), esc(text))
	}
	return strings.TrimSpace(b.String())
}

func formatVideoScript(d calendar.Day) string {
	var (
		b     strings.Builder
		parts int
	)
	b.WriteString("🎬 <b>Video Script</b>\n")
	for _, part := range []struct{ label, key string }{
		{"Hook", "hook"},
		{"Body", "body"},
		{"CTA", "cta"},
		{"Caption", "caption"},
	} {
		if v := d.Text(part.key); v != "" {
			fmt.Fprintf(&b, "\n<b>%s:</b> %s", part.label, esc(v))
			parts++
		}
	}
	if parts == 0 {
		return ""
	}
	return b.String()
}

func tagLine(tags []string) string {
	parts := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.Join(strings.Fields(strings.TrimPrefix(t, "#")), "")
		if t != "" {
			parts = append(parts, "#"+esc(t))
		}
	}
	return strings.Join(parts, " ")
}

// images collects image URLs from image_url, images and slide image_url.
func images(d calendar.Day) []string {
	var out []string
	add := func(v any) {
		if s, ok := v.(string); ok && strings.HasPrefix(s, "http") {
			out = append(out, s)
		}
	}
	add(d.Payload["image_url"])
	if list, ok := d.Payload["images"].([]any); ok {
		for _, v := range list {
			add(v)
		}
	}
	if slides, ok := d.Payload["slides"].([]any); ok {
		for _, s := range slides {
			if slide, ok := s.(map[string]any); ok {
				add(slide["image_url"])
			}
		}
	}
	if len(out) > maxMediaGroup {
		out = out[:maxMediaGroup]
	}
	return out
}

// Truncate shortens text to limit runes. Truncated HTML is reduced to plain
// text first so no tag is left open.
func Truncate(text string, limit int) string {
	if utf8.RuneCountInString(text) <= limit {
		return text
	}
	plain := stripPolicy.Sanitize(text)
	if utf8.RuneCountInString(plain) <= limit {
		return plain
	}
	runes := []rune(plain)
	cut := string(runes[:limit-1])
	// Avoid cutting inside an entity such as &amp;.
	if i := strings.LastIndexByte(cut, '&'); i >= 0 && !strings.Contains(cut[i:], ";") {
		cut = cut[:i]
	}
	return cut + "…"
}

func esc(s string) string {
	return html.EscapeString(strings.TrimSpace(s))
}
