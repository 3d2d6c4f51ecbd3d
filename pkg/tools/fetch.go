package tools

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// maxPageTextLen caps fetched page text so one long article cannot drown
// out the rest of a section's findings.
const maxPageTextLen = 8000

// Selectors tried in order for the main content container of a page.
var mainContentSelectors = []string{
	"article",
	"main",
	"div[class*='content']",
	"div[id*='content']",
	"div[class*='main']",
	"div[id*='main']",
	"div[role='main']",
}

// FetchPage downloads a web page and extracts its readable text.
func (w *WebSearcher) FetchPage(ctx context.Context, pageURL string) (string, error) {
	if !strings.HasPrefix(pageURL, "http://") && !strings.HasPrefix(pageURL, "https://") {
		return "", fmt.Errorf("invalid URL %q", pageURL)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", fmt.Errorf("build fetch request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := w.Client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch %s: %w", pageURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetch %s: status %d", pageURL, resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return "", fmt.Errorf("parse %s: %w", pageURL, err)
	}

	text := extractReadableText(doc)
	if text == "" {
		return "", fmt.Errorf("no readable text on %s", pageURL)
	}
	return text, nil
}

// extractReadableText pulls the main textual content out of a parsed page:
// the first matching content container, falling back to paragraph and
// heading text from the body.
func extractReadableText(doc *goquery.Document) string {
	doc.Find("script, style, noscript").Remove()

	for _, selector := range mainContentSelectors {
		if sel := doc.Find(selector).First(); sel.Length() > 0 {
			if text := collapseWhitespace(sel.Text()); text != "" {
				return truncate(text, maxPageTextLen)
			}
		}
	}

	var parts []string
	doc.Find("body").Find("p, h1, h2, h3, h4, li").Each(func(_ int, sel *goquery.Selection) {
		if t := collapseWhitespace(sel.Text()); t != "" {
			parts = append(parts, t)
		}
	})
	if len(parts) == 0 {
		if body := doc.Find("body"); body.Length() > 0 {
			return truncate(collapseWhitespace(body.Text()), maxPageTextLen)
		}
		return ""
	}
	return truncate(strings.Join(parts, " "), maxPageTextLen)
}

func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}
