package textproc

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClean(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"urls removed", "Check this https://example.com/x and www.acme.io now", "Check this and now"},
		{"whitespace collapsed", "   Excited   to\n\nshare   ", "Excited to share"},
		{"html stripped", "<p>Hello <b>world</b> &amp; friends</p>", "Hello world & friends"},
		{"quotes normalized", "“quoted” it’s", `"quoted" it's`},
		{"empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Clean(tt.in))
		})
	}
}

func TestHashtagsAndMentions(t *testing.T) {
	text := "New launch! #AI #Innovation with @tech_news and @acme"
	assert.Equal(t, []string{"#AI", "#Innovation"}, Hashtags(text))
	assert.Equal(t, []string{"@tech_news", "@acme"}, Mentions(text))
	assert.Empty(t, Hashtags("plain"))
}

func TestProcessSkipsShortPosts(t *testing.T) {
	p := NewProcessor(DefaultChunkingConfig())
	p.now = func() time.Time { return time.Date(2026, 2, 17, 0, 0, 0, 0, time.UTC) }

	chunks, skipped := p.Process("Acme", []Post{
		{Platform: "Instagram", Content: "Check out our new product! #AI https://example.com @tech_news", Likes: "1234"},
		{Platform: "linkedin", Caption: "too short"},
		{Platform: "twitter", Content: "https://only.a/link"},
	})
	assert.Equal(t, 2, skipped)
	require.Len(t, chunks, 1)

	c := chunks[0]
	assert.Equal(t, "Check out our new product! #AI @tech_news", c.Text)
	assert.Equal(t, "instagram", c.Metadata["platform"])
	assert.Equal(t, "Acme", c.Metadata["company"])
	assert.Equal(t, "#AI", c.Metadata["hashtags"])
	assert.Equal(t, "@tech_news", c.Metadata["mentions"])
	assert.Equal(t, "1234", c.Metadata["likes"])
	assert.Equal(t, "post", c.Metadata["media_type"])
	assert.Equal(t, "2026-02-17T00:00:00Z", c.Metadata["post_date"])
}

func TestProcessChunksLongPosts(t *testing.T) {
	p := NewProcessor(ChunkingConfig{MaxWords: 10, OverlapWords: 2})
	long := strings.TrimSpace(strings.Repeat("word ", 25))

	chunks, skipped := p.Process("Acme", []Post{{Platform: "linkedin", Content: long}})
	assert.Zero(t, skipped)
	require.Len(t, chunks, 3)
	for i, c := range chunks {
		assert.Equal(t, itoa(i), c.Metadata["chunk_index"])
		assert.Equal(t, "3", c.Metadata["chunk_count"])
	}
}

func TestChunkerSplit(t *testing.T) {
	c := NewChunker(ChunkingConfig{MaxWords: 4, OverlapWords: 1})
	assert.Equal(t, []string{"a b"}, c.Split("a b"))
	assert.Equal(t, []string{"a b c d", "d e f g", "g h"}, c.Split("a b c d e f g h"))

	c = NewChunker(ChunkingConfig{MaxWords: 4, OverlapWords: 9})
	assert.Equal(t, 2, c.overlap)
}
