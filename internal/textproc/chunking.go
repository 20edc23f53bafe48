package textproc

import (
	"strconv"
	"strings"
)

// ChunkingConfig controls how long posts are split. Sizes are in words.
type ChunkingConfig struct {
	MaxWords     int `mapstructure:"max_words"`
	OverlapWords int `mapstructure:"overlap_words"`
}

// DefaultChunkingConfig returns sensible defaults
func DefaultChunkingConfig() ChunkingConfig {
	return ChunkingConfig{MaxWords: 300, OverlapWords: 40}
}

// Chunker splits text into overlapping word windows.
type Chunker struct {
	maxWords int
	overlap  int
}

// NewChunker creates a new chunker with the given configuration
func NewChunker(cfg ChunkingConfig) *Chunker {
	def := DefaultChunkingConfig()
	if cfg.MaxWords <= 0 {
		cfg.MaxWords = def.MaxWords
	}
	if cfg.OverlapWords < 0 || cfg.OverlapWords >= cfg.MaxWords {
		cfg.OverlapWords = cfg.MaxWords / 2
	}
	return &Chunker{maxWords: cfg.MaxWords, overlap: cfg.OverlapWords}
}

// Split returns text unchanged as a single chunk when it fits, otherwise
// consecutive windows sharing overlap words.
func (c *Chunker) Split(text string) []string {
	words := strings.Fields(text)
	if len(words) <= c.maxWords {
		return []string{text}
	}

	step := c.maxWords - c.overlap
	var out []string
	for start := 0; start < len(words); start += step {
		end := start + c.maxWords
		if end > len(words) {
			end = len(words)
		}
		out = append(out, strings.Join(words[start:end], " "))
		if end == len(words) {
			break
		}
	}
	return out
}

func itoa(i int) string { return strconv.Itoa(i) }
