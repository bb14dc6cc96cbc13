package legalupdates

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/brotli"
	colly "github.com/gocolly/colly/v2"
	"golang.org/x/net/html/charset"
)

const userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36"

// Fetcher downloads a single page and parses it into a goquery document.
type Fetcher struct {
	timeout time.Duration
}

func NewFetcher(timeout time.Duration) *Fetcher {
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &Fetcher{timeout: timeout}
}

// Document fetches pageURL. Non-2xx responses and transport failures are
// returned as errors; a page that simply lacks the expected markup is not.
func (f *Fetcher) Document(ctx context.Context, pageURL string) (*goquery.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	timeout := f.timeout
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < timeout {
			timeout = remaining
		}
	}

	// Fresh collector per fetch so visited-URL state never leaks between calls
	c := colly.NewCollector(colly.AllowURLRevisit())
	c.UserAgent = userAgent
	c.SetRequestTimeout(timeout)

	var (
		doc      *goquery.Document
		parseErr error
		fetchErr error
	)

	c.OnRequest(func(r *colly.Request) {
		if ctx.Err() != nil {
			r.Abort()
			return
		}
		r.Headers.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
		r.Headers.Set("Accept-Language", "en-IN,en;q=0.9")
		r.Headers.Set("Accept-Encoding", "gzip, br")
	})

	c.OnResponse(func(r *colly.Response) {
		body := decodeBody(r.Body, r.Headers.Get("Content-Encoding"), r.Headers.Get("Content-Type"))
		doc, parseErr = goquery.NewDocumentFromReader(bytes.NewReader(body))
	})

	c.OnError(func(r *colly.Response, err error) {
		fetchErr = fmt.Errorf("fetch %s: status %d: %w", pageURL, r.StatusCode, err)
	})

	if err := c.Visit(pageURL); err != nil && fetchErr == nil {
		fetchErr = fmt.Errorf("fetch %s: %w", pageURL, err)
	}
	c.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if fetchErr != nil {
		return nil, fetchErr
	}
	if parseErr != nil {
		return nil, fmt.Errorf("parse %s: %w", pageURL, parseErr)
	}
	if doc == nil {
		return nil, fmt.Errorf("fetch %s: no response", pageURL)
	}
	return doc, nil
}

// decodeBody undoes brotli compression (gzip is handled by colly) and
// converts the page to UTF-8. colly already converts bodies whose
// Content-Type names a charset, so only brotli bodies and pages that declare
// their charset in markup are converted here. Any decoding failure keeps the
// bytes as they are.
func decodeBody(body []byte, contentEncoding, contentType string) []byte {
	convert := !strings.Contains(strings.ToLower(contentType), "charset")
	if strings.Contains(contentEncoding, "br") {
		if decompressed, err := io.ReadAll(brotli.NewReader(bytes.NewReader(body))); err == nil {
			body = decompressed
			convert = true
		}
	}

	if !convert || len(body) == 0 {
		return body
	}
	utf8Reader, err := charset.NewReader(bytes.NewReader(body), contentType)
	if err != nil {
		return body
	}
	decoded, err := io.ReadAll(utf8Reader)
	if err != nil || len(decoded) == 0 {
		return body
	}
	return decoded
}
