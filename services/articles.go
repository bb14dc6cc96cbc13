package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"legal-ai-assistant/internal/vectorstore"
	"legal-ai-assistant/models"

	"gopkg.in/yaml.v3"
)

// LoadArticles reads a bulk article file. ".yaml" and ".yml" files are
// decoded as YAML, everything else as JSON. Both hold a list of articles.
func LoadArticles(path string) ([]ArticleText, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read articles file: %w", err)
	}

	var entries []models.Article
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &entries)
	default:
		err = json.Unmarshal(data, &entries)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", filepath.Base(path), err)
	}

	articles := make([]ArticleText, 0, len(entries))
	for i, e := range entries {
		number := strings.TrimSpace(e.ArticleNumber)
		if number == "" {
			number = fmt.Sprintf("section_%d", i+1)
		}
		articles = append(articles, ArticleText{Number: number, Title: e.Title, Content: e.Body()})
	}
	return articles, nil
}

// ArticleIngester is the part of DocumentStore that article ingestion
// writes through.
type ArticleIngester interface {
	Ingest(ctx context.Context, content string, metadata map[string]any) (IngestResult, error)
}

type ArticleIngestResult struct {
	Added   int
	Skipped int
	Chunks  int
}

// IngestArticles ingests every article as its own source
// "{fileName}_article_{number}". Articles already indexed are counted as
// skipped, so running the same file twice only adds what is missing. The
// first other failure stops the run; the counts so far are returned with it.
func IngestArticles(ctx context.Context, docs ArticleIngester, fileName string, articles []ArticleText, constitution bool) (ArticleIngestResult, error) {
	var res ArticleIngestResult
	for _, a := range articles {
		meta := ArticleMetadata(a, constitution)
		meta["source"] = fmt.Sprintf("%s_article_%s", fileName, a.Number)
		meta["file_name"] = fileName

		ingested, err := docs.Ingest(ctx, a.Content, meta)
		switch {
		case errors.Is(err, vectorstore.ErrDuplicateID):
			res.Skipped++
		case errors.Is(err, ErrEmptyDocument):
			// blank entries in bulk files are not worth failing the run for
			res.Skipped++
		case err != nil:
			return res, fmt.Errorf("article %s: %w", a.Number, err)
		default:
			res.Added++
			res.Chunks += ingested.Chunks
		}
	}
	return res, nil
}
