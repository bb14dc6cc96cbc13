package chunker

import (
	"strings"
	"testing"
	"unicode/utf8"
)

const constitutionExcerpt = `Article 14. The State shall not deny to any person equality before the law
or the equal protection of the laws within the territory of India.
Article 19. All citizens shall have the right to freedom of speech and expression,
to assemble peaceably and without arms, to form associations or unions.
Article 21. No person shall be deprived of his life or personal liberty except
according to procedure established by law.`

func TestSplitEmpty(t *testing.T) {
	for _, in := range []string{"", "   ", "\n\t "} {
		chunks := Split("doc", in, 100, 10)
		if chunks == nil || len(chunks) != 0 {
			t.Errorf("Split(%q) = %v, want empty non-nil slice", in, chunks)
		}
	}
}

func TestSplitShortTextSingleChunk(t *testing.T) {
	chunks := Split("doc", "Article 21 protects the right to life.", 1000, 200)
	if len(chunks) != 1 {
		t.Fatalf("got %d chunks, want 1", len(chunks))
	}
	c := chunks[0]
	if c.Text != "Article 21 protects the right to life." || c.SourceID != "doc" || c.Index != 0 || c.TotalInSource != 1 {
		t.Errorf("unexpected chunk %+v", c)
	}
}

func TestSplitRespectsSize(t *testing.T) {
	for _, size := range []int{20, 50, 80, 200} {
		for _, overlap := range []int{0, 5, 15} {
			chunks := Split("doc", constitutionExcerpt, size, overlap)
			for _, c := range chunks {
				if n := utf8.RuneCountInString(c.Text); n > size {
					t.Errorf("size=%d overlap=%d: chunk %d has %d chars", size, overlap, c.Index, n)
				}
			}
		}
	}
}

func TestSplitReconstructsSource(t *testing.T) {
	want := strings.Fields(constitutionExcerpt)
	for _, overlap := range []int{0, 10, 25} {
		chunks := Split("doc", constitutionExcerpt, 60, overlap)

		var got []string
		for _, c := range chunks {
			words := strings.Fields(c.Text)
			got = append(got, words[c.OverlapTokens:]...)
		}
		if strings.Join(got, " ") != strings.Join(want, " ") {
			t.Errorf("overlap=%d: reconstruction mismatch\n got: %s\nwant: %s", overlap, strings.Join(got, " "), strings.Join(want, " "))
		}
	}
}

func TestSplitOverlapComesFromPreviousTail(t *testing.T) {
	chunks := Split("doc", constitutionExcerpt, 60, 20)
	if len(chunks) < 2 {
		t.Fatalf("expected several chunks, got %d", len(chunks))
	}
	if chunks[0].OverlapTokens != 0 {
		t.Errorf("first chunk must not carry overlap")
	}

	sawOverlap := false
	for i := 1; i < len(chunks); i++ {
		n := chunks[i].OverlapTokens
		if n == 0 {
			continue
		}
		sawOverlap = true
		prev := strings.Fields(chunks[i-1].Text)
		cur := strings.Fields(chunks[i].Text)
		head := strings.Join(cur[:n], " ")
		tail := strings.Join(prev[len(prev)-n:], " ")
		if head != tail {
			t.Errorf("chunk %d overlap %q does not match previous tail %q", i, head, tail)
		}
		if utf8.RuneCountInString(head) > 20 {
			t.Errorf("chunk %d overlap %q exceeds budget", i, head)
		}
	}
	if !sawOverlap {
		t.Error("expected at least one chunk with overlap")
	}
}

func TestSplitOversizedToken(t *testing.T) {
	long := strings.Repeat("x", 30)
	chunks := Split("doc", "short words "+long+" tail", 10, 4)

	found := false
	for _, c := range chunks {
		if strings.Contains(c.Text, long) {
			found = true
			if c.Text != long {
				t.Errorf("oversized token shares a chunk: %q", c.Text)
			}
		}
	}
	if !found {
		t.Fatal("oversized token was dropped")
	}
	if last := chunks[len(chunks)-1]; last.Text != "tail" {
		t.Errorf("oversized token leaked into overlap: last chunk %q", last.Text)
	}
}

func TestSplitIndicesDense(t *testing.T) {
	chunks := Split("constitution.json", constitutionExcerpt, 40, 10)
	for i, c := range chunks {
		if c.Index != i {
			t.Errorf("chunk %d has Index %d", i, c.Index)
		}
		if c.TotalInSource != len(chunks) {
			t.Errorf("chunk %d TotalInSource = %d, want %d", i, c.TotalInSource, len(chunks))
		}
		if c.SourceID != "constitution.json" {
			t.Errorf("chunk %d SourceID = %q", i, c.SourceID)
		}
	}
}

func TestSplitCountGrowsAsSizeShrinks(t *testing.T) {
	prev := 0
	for _, size := range []int{400, 200, 120, 80, 40, 20} {
		n := len(Split("doc", constitutionExcerpt, size, 0))
		if n < prev {
			t.Errorf("size %d produced %d chunks, fewer than %d at a larger size", size, n, prev)
		}
		prev = n
	}
}

func TestSplitCountsRunesNotBytes(t *testing.T) {
	// Each word is 4 runes but 12 bytes.
	text := "अनुच अनुच अनुच"
	chunks := Split("doc", text, 14, 0)
	if len(chunks) != 1 {
		t.Errorf("got %d chunks, want 1", len(chunks))
	}
}

func TestSplitDefaultsAndClamps(t *testing.T) {
	chunks := Split("doc", constitutionExcerpt, 0, -5)
	if len(chunks) != 1 {
		t.Errorf("default chunk size should hold the excerpt, got %d chunks", len(chunks))
	}

	// Overlap larger than half the chunk size is clamped.
	chunks = Split("doc", constitutionExcerpt, 30, 1000)
	for _, c := range chunks {
		head := strings.Join(strings.Fields(c.Text)[:c.OverlapTokens], " ")
		if utf8.RuneCountInString(head) > 15 {
			t.Errorf("overlap %q exceeds clamped budget", head)
		}
	}
}
