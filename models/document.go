package models

import "time"

// DocumentRequest ingests raw text into the document index
type DocumentRequest struct {
	Content  string         `json:"content" binding:"required"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

type DocumentResponse struct {
	Message string `json:"message"`
	Source  string `json:"source"`
	Chunks  int    `json:"chunks,omitempty"`
}

// AsyncDocumentResponse is returned when ingestion is handed to the worker
type AsyncDocumentResponse struct {
	TaskID   string    `json:"task_id"`
	Queue    string    `json:"queue"`
	Status   string    `json:"status"`
	Enqueued time.Time `json:"enqueued_at"`
}

// SearchResult is one hit of a similarity search
type SearchResult struct {
	ID       string         `json:"id"`
	Content  string         `json:"content"`
	Metadata map[string]any `json:"metadata"`
	Distance float64        `json:"distance"`
}

type SearchResponse struct {
	Query   string         `json:"query"`
	Results []SearchResult `json:"results"`
	Count   int            `json:"count"`
}

type DocumentStats struct {
	TotalChunks        int `json:"total_chunks"`
	TotalUniqueSources int `json:"total_unique_sources"`
}

// Article is one entry of a bulk JSON or YAML ingest file
type Article struct {
	ArticleNumber string `json:"article_number" yaml:"article_number"`
	Title         string `json:"title,omitempty" yaml:"title,omitempty"`
	Text          string `json:"text,omitempty" yaml:"text,omitempty"`
	Content       string `json:"content,omitempty" yaml:"content,omitempty"`
}

// Body returns the article text, preferring "text" over "content".
func (a Article) Body() string {
	if a.Text != "" {
		return a.Text
	}
	return a.Content
}
