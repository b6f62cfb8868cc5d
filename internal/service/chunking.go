package service

import (
	"strings"
	"unicode"
)

// ChunkConfig controls how imported page text is split into chunks.
type ChunkConfig struct {
	MaxChars  int
	MinChars  int
	Overlap   int
	MaxChunks int
}

// DefaultChunkConfig provides sane defaults for chunking.
func DefaultChunkConfig() ChunkConfig {
	return ChunkConfig{
		MaxChars:  1200,
		MinChars:  400,
		Overlap:   200,
		MaxChunks: 40,
	}
}

// chunkText splits text on whitespace near MaxChars, carrying Overlap runes
// into the next chunk.
func chunkText(text string, cfg ChunkConfig) []string {
	clean := strings.TrimSpace(text)
	if clean == "" {
		return nil
	}
	if cfg.MaxChars <= 0 {
		cfg = DefaultChunkConfig()
	}
	runes := []rune(clean)
	if len(runes) <= cfg.MaxChars {
		return []string{clean}
	}

	chunks := make([]string, 0, len(runes)/cfg.MaxChars+1)
	for start := 0; start < len(runes); {
		if cfg.MaxChunks > 0 && len(chunks) >= cfg.MaxChunks {
			break
		}

		end := min(start+cfg.MaxChars, len(runes))
		if end < len(runes) {
			end = breakBefore(runes, start, end, cfg.MinChars)
		}
		if end <= start {
			break
		}

		if chunk := strings.TrimSpace(string(runes[start:end])); chunk != "" {
			chunks = append(chunks, chunk)
		}
		if end >= len(runes) {
			break
		}

		next := end
		if cfg.Overlap > 0 && end-start > cfg.Overlap {
			next = end - cfg.Overlap
		}
		if next <= start {
			next = end
		}
		start = next
	}

	return chunks
}

// breakBefore moves end back to the last whitespace that keeps the chunk at
// least minChars long. Without such whitespace end is returned unchanged.
func breakBefore(runes []rune, start, end, minChars int) int {
	floor := start + minChars
	if floor > end {
		floor = start
	}
	for i := end; i > floor; i-- {
		if unicode.IsSpace(runes[i-1]) {
			return i
		}
	}
	return end
}
