// Package chunker splits document text into overlapping, size-bounded
// passages for indexing.
package chunker

import (
	"strings"
	"unicode/utf8"
)

const DefaultChunkSize = 1000

// Chunk is one passage of a source document. OverlapTokens counts the
// leading words repeated from the previous chunk.
type Chunk struct {
	Text          string
	SourceID      string
	Index         int
	TotalInSource int
	OverlapTokens int
}

// Split breaks text into chunks of at most chunkSize characters, measured on
// the space-joined words of each chunk. Chunks are filled greedily and each
// one after the first repeats up to chunkOverlap characters of whole words
// from the end of its predecessor. A single word longer than chunkSize
// becomes its own chunk. Empty input yields an empty slice.
func Split(sourceID, text string, chunkSize, chunkOverlap int) []Chunk {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if chunkOverlap < 0 {
		chunkOverlap = 0
	}
	if chunkOverlap > chunkSize/2 {
		chunkOverlap = chunkSize / 2
	}

	tokens := strings.Fields(text)
	chunks := make([]Chunk, 0, len(text)/chunkSize+1)
	if len(tokens) == 0 {
		return chunks
	}

	var (
		cur     []string
		curLen  int
		carried int
	)

	flush := func() {
		chunks = append(chunks, Chunk{
			Text:          strings.Join(cur, " "),
			SourceID:      sourceID,
			Index:         len(chunks),
			OverlapTokens: carried,
		})
	}

	for _, tok := range tokens {
		tokLen := utf8.RuneCountInString(tok)
		if len(cur) > 0 && curLen+1+tokLen > chunkSize {
			flush()
			cur, curLen = overlapTail(cur, chunkOverlap, chunkSize-tokLen-1)
			carried = len(cur)
		}
		if len(cur) > 0 {
			curLen++
		}
		cur = append(cur, tok)
		curLen += tokLen
	}
	flush()

	for i := range chunks {
		chunks[i].TotalInSource = len(chunks)
	}
	return chunks
}

// overlapTail returns the longest run of trailing words whose joined length
// fits both the overlap budget and the room left for the next word.
func overlapTail(words []string, overlap, room int) ([]string, int) {
	budget := overlap
	if room < budget {
		budget = room
	}
	if budget <= 0 {
		return nil, 0
	}

	start := len(words)
	length := 0
	for i := len(words) - 1; i >= 0; i-- {
		l := utf8.RuneCountInString(words[i])
		if length > 0 {
			l++
		}
		if length+l > budget {
			break
		}
		length += l
		start = i
	}

	if start == len(words) {
		return nil, 0
	}
	tail := make([]string, len(words)-start)
	copy(tail, words[start:])
	return tail, length
}
