// Package legalupdates scrapes recent legislative activity (bills,
// constitutional amendments, section amendments) from public sources.
package legalupdates

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"unicode"
)

const (
	KindBill          = "bill"
	KindAmendment     = "amendment"
	KindSectionUpdate = "section_update"
)

// Record is one scraped legal update. Which fields are filled depends on Kind.
type Record struct {
	Kind        string `json:"kind"`
	Title       string `json:"title,omitempty"`
	Number      string `json:"number,omitempty"`
	Description string `json:"description,omitempty"`
	Status      string `json:"status,omitempty"`
	Date        string `json:"date,omitempty"`
	URL         string `json:"url,omitempty"`
	Reference   string `json:"reference,omitempty"`
	Source      string `json:"source"`
}

// Heading is the short human name of the update.
func (r Record) Heading() string {
	switch {
	case r.Title != "":
		return r.Title
	case r.Number != "" && r.Description != "":
		return r.Number + " " + r.Description
	case r.Number != "":
		return r.Number
	case r.Description != "":
		return r.Description
	default:
		return r.Reference
	}
}

// Bullet renders the record as a one-line list item.
func (r Record) Bullet() string {
	label := "Update"
	switch r.Kind {
	case KindBill:
		label = "Bill"
	case KindAmendment:
		label = "Amendment"
	case KindSectionUpdate:
		label = "Section update"
	}

	line := fmt.Sprintf("- %s: %s", label, r.Heading())

	var details []string
	if r.Status != "" {
		details = append(details, r.Status)
	}
	if r.Date != "" {
		details = append(details, r.Date)
	}
	if len(details) > 0 {
		line += " [" + strings.Join(details, ", ") + "]"
	}
	if r.URL != "" {
		line += " (" + r.URL + ")"
	}
	return line
}

// Content is the text indexed for the record.
func (r Record) Content() string {
	var b strings.Builder
	write := func(label, value string) {
		if value != "" {
			fmt.Fprintf(&b, "%s: %s\n", label, value)
		}
	}
	write("Title", r.Heading())
	if r.Title != "" {
		write("Description", r.Description)
	}
	write("Status", r.Status)
	write("Date", r.Date)
	write("Reference", r.Reference)
	write("URL", r.URL)
	return strings.TrimSpace(b.String())
}

// Key is a stable identifier derived from the record's identity fields.
func (r Record) Key() string {
	sum := sha1.Sum([]byte(strings.Join([]string{r.Kind, r.Heading(), r.URL, r.Date}, "|")))
	return hex.EncodeToString(sum[:])[:16]
}

// Metadata is attached to the indexed passage.
func (r Record) Metadata() map[string]any {
	m := map[string]any{
		"source":        "update_" + r.Key(),
		"title":         r.Heading(),
		"document_type": r.Kind,
		"origin":        r.Source,
	}
	if r.URL != "" {
		m["url"] = r.URL
	}
	if r.Date != "" {
		m["date"] = r.Date
	}
	return m
}

var stopWords = map[string]bool{
	"the": true, "and": true, "for": true, "what": true, "are": true, "was": true,
	"any": true, "does": true, "with": true, "about": true, "there": true, "been": true,
	"recent": true, "latest": true, "new": true, "law": true, "laws": true, "india": true,
}

func queryTerms(query string) []string {
	words := strings.FieldsFunc(strings.ToLower(query), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	terms := make([]string, 0, len(words))
	for _, w := range words {
		if len([]rune(w)) < 3 && !isNumber(w) {
			continue
		}
		if stopWords[w] {
			continue
		}
		terms = append(terms, w)
	}
	return terms
}

func isNumber(s string) bool {
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return s != ""
}

// Rank orders records by how many query terms they mention. Records with
// equal scores keep their scraped order. limit <= 0 keeps everything.
func Rank(records []Record, query string, limit int) []Record {
	terms := queryTerms(query)

	type scored struct {
		r     Record
		score int
	}
	ranked := make([]scored, len(records))
	for i, r := range records {
		text := strings.ToLower(strings.Join([]string{r.Title, r.Number, r.Description, r.Status, r.Reference}, " "))
		score := 0
		for _, t := range terms {
			if strings.Contains(text, t) {
				score++
			}
		}
		ranked[i] = scored{r: r, score: score}
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].score > ranked[j].score
	})

	if limit > 0 && len(ranked) > limit {
		ranked = ranked[:limit]
	}
	out := make([]Record, len(ranked))
	for i, s := range ranked {
		out[i] = s.r
	}
	return out
}
