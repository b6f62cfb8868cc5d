package domain

import "time"

// DocumentChunk is a retrievable unit of an ingested document.
type DocumentChunk struct {
	DocumentID      string
	TeamID          string
	ChunkIndex      int
	Title           string
	PageNumber      string
	Content         string
	DocumentVersion string
	Embedding       []float32
	CreatedAt       time.Time
}

// FindingFor builds the finding for model output produced from this chunk.
func (c DocumentChunk) FindingFor(content string) Finding {
	title := c.Title
	if title == "" {
		title = "Untitled Document"
	}
	page := c.PageNumber
	if page == "" {
		page = "N/A"
	}
	return Finding{
		DocumentID:      c.DocumentID,
		DocumentVersion: c.DocumentVersion,
		Title:           title,
		Page:            page,
		PageContent:     c.Content,
		Content:         content,
	}
}
