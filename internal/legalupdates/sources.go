package legalupdates

import (
	"context"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Source yields legal update records from one place.
type Source interface {
	Name() string
	Fetch(ctx context.Context) ([]Record, error)
}

// Selectors locate record fields inside each item element. Empty selectors
// are skipped.
type Selectors struct {
	Item        string
	Title       string
	Number      string
	Description string
	Status      string
	Date        string
	Reference   string
	Link        string
}

// SelectorSource scrapes a listing page with CSS selectors.
type SelectorSource struct {
	name      string
	pageURL   string
	kind      string
	selectors Selectors
	fetcher   *Fetcher
}

func NewSelectorSource(name, pageURL, kind string, selectors Selectors, fetcher *Fetcher) *SelectorSource {
	return &SelectorSource{
		name:      name,
		pageURL:   pageURL,
		kind:      kind,
		selectors: selectors,
		fetcher:   fetcher,
	}
}

// NewBillsSource tracks bills on the PRS India bill tracker.
func NewBillsSource(fetcher *Fetcher, pageURL string) *SelectorSource {
	return NewSelectorSource("prsindia", pageURL, KindBill, Selectors{
		Item:   ".bill-item",
		Title:  ".bill-title",
		Status: ".bill-status",
		Date:   ".bill-date",
		Link:   "a[href]",
	}, fetcher)
}

// NewAmendmentsSource lists constitutional amendments from the Legislative
// Department.
func NewAmendmentsSource(fetcher *Fetcher, pageURL string) *SelectorSource {
	return NewSelectorSource("legislative_gov", pageURL, KindAmendment, Selectors{
		Item:        ".amendment-item",
		Number:      ".amendment-number",
		Description: ".amendment-desc",
		Date:        ".amendment-date",
		Link:        "a[href]",
	}, fetcher)
}

// NewSectionSource lists amendments to one section on India Code.
func NewSectionSource(fetcher *Fetcher, baseURL, section string) *SelectorSource {
	pageURL := strings.TrimRight(baseURL, "/") + "/section/" + url.PathEscape(section)
	return NewSelectorSource("india_code", pageURL, KindSectionUpdate, Selectors{
		Item:        ".section-update",
		Description: ".update-desc",
		Date:        ".update-date",
		Reference:   ".update-ref",
	}, fetcher)
}

func (s *SelectorSource) Name() string { return s.name }

func (s *SelectorSource) Fetch(ctx context.Context) ([]Record, error) {
	doc, err := s.fetcher.Document(ctx, s.pageURL)
	if err != nil {
		return nil, err
	}
	return s.extract(doc), nil
}

func (s *SelectorSource) extract(doc *goquery.Document) []Record {
	base, _ := url.Parse(s.pageURL)
	records := []Record{}

	doc.Find(s.selectors.Item).Each(func(_ int, item *goquery.Selection) {
		r := Record{
			Kind:        s.kind,
			Source:      s.name,
			Title:       text(item, s.selectors.Title),
			Number:      text(item, s.selectors.Number),
			Description: text(item, s.selectors.Description),
			Status:      text(item, s.selectors.Status),
			Date:        text(item, s.selectors.Date),
			Reference:   text(item, s.selectors.Reference),
		}
		if s.selectors.Link != "" {
			if href, ok := item.Find(s.selectors.Link).First().Attr("href"); ok {
				r.URL = resolve(base, href)
			}
		}
		if r.Heading() == "" {
			return
		}
		records = append(records, r)
	})

	return records
}

var whitespace = regexp.MustCompile(`\s+`)

func text(item *goquery.Selection, selector string) string {
	if selector == "" {
		return ""
	}
	return strings.TrimSpace(whitespace.ReplaceAllString(item.Find(selector).First().Text(), " "))
}

func resolve(base *url.URL, href string) string {
	href = strings.TrimSpace(href)
	ref, err := url.Parse(href)
	if err != nil || base == nil {
		return href
	}
	return base.ResolveReference(ref).String()
}

var sectionPattern = regexp.MustCompile(`(?i)\bsection\s+(\d+[a-z]?)\b`)

// SectionReference extracts a section number such as "498A" from a query.
func SectionReference(query string) string {
	m := sectionPattern.FindStringSubmatch(query)
	if m == nil {
		return ""
	}
	return strings.ToUpper(m[1])
}
