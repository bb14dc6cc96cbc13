package services

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestSplitArticles(t *testing.T) {
	text := `THE CONSTITUTION OF INDIA
PREAMBLE
WE, THE PEOPLE OF INDIA

Article 14. Equality before law
The State shall not deny to any person equality before the law.

Art. 15 Prohibition of discrimination
The State shall not discriminate against any citizen.
Article 21A. Right to education
Section 498a Husband or relative of husband subjecting a woman to cruelty
Whoever, being the husband...
Article of faith`

	got := SplitArticles(text)
	want := []ArticleText{
		{Number: "section_1", Content: "THE CONSTITUTION OF INDIA\nPREAMBLE\nWE, THE PEOPLE OF INDIA"},
		{Number: "14", Content: "Article 14. Equality before law\nThe State shall not deny to any person equality before the law."},
		{Number: "15", Content: "Art. 15 Prohibition of discrimination\nThe State shall not discriminate against any citizen."},
		{Number: "21A", Content: "Article 21A. Right to education"},
		{Number: "section_498A", Content: "Section 498a Husband or relative of husband subjecting a woman to cruelty\nWhoever, being the husband..."},
		{Number: "section_6", Content: "Article of faith"},
	}

	if len(got) != len(want) {
		t.Fatalf("got %d articles, want %d: %+v", len(got), len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("article %d = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestSplitArticlesEmpty(t *testing.T) {
	if got := SplitArticles("  \n\n "); len(got) != 0 {
		t.Errorf("got %+v", got)
	}
}

func TestArticleMetadata(t *testing.T) {
	meta := ArticleMetadata(ArticleText{Number: "21", Content: "Protection of life"}, true)
	if meta["title"] != "Article 21" || meta["document_type"] != "constitution" ||
		meta["article_number"] != "21" || meta["length"] != len("Protection of life") {
		t.Errorf("metadata = %v", meta)
	}

	meta = ArticleMetadata(ArticleText{Number: "section_302", Content: "Murder"}, false)
	if meta["title"] != "Section 302" || meta["document_type"] != "legal_document" {
		t.Errorf("metadata = %v", meta)
	}
}

func TestPDFExtractorRejectsBadInput(t *testing.T) {
	e := NewPDFExtractor(64)
	ctx := context.Background()

	if _, err := e.Extract(ctx, []byte("not a pdf")); err == nil {
		t.Error("expected error for non-PDF content")
	}
	if _, err := e.Extract(ctx, make([]byte, 65)); err == nil {
		t.Error("expected error for oversized content")
	}
	if _, err := e.ExtractFile(ctx, filepath.Join(t.TempDir(), "missing.pdf")); err == nil {
		t.Error("expected error for missing file")
	}

	big := filepath.Join(t.TempDir(), "big.pdf")
	if err := os.WriteFile(big, make([]byte, 128), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := e.ExtractFile(ctx, big); err == nil {
		t.Error("expected error for oversized file")
	}
}
