package tools

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/mikeboe/report-agent/pkg/pipeline"
)

const (
	searchEndpoint = "https://html.duckduckgo.com/html/"
	userAgent      = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36"
)

// WebSearcher performs DuckDuckGo HTML searches and enriches the top hits
// with fetched page content. It satisfies the pipeline's Searcher contract.
type WebSearcher struct {
	Client     *http.Client
	MaxResults int
	// FetchPages bounds how many result pages are fetched for full text
	// per query; the rest keep their search snippet.
	FetchPages int
	Logger     *slog.Logger
}

// NewWebSearcher wires an HTTP client; nil uses a 20s-timeout default.
func NewWebSearcher(client *http.Client) *WebSearcher {
	if client == nil {
		client = &http.Client{Timeout: 20 * time.Second}
	}
	return &WebSearcher{
		Client:     client,
		MaxResults: 3,
		FetchPages: 2,
		Logger:     slog.Default(),
	}
}

// Search runs one query and returns source records, skipping any URL in
// the exclude list.
func (w *WebSearcher) Search(ctx context.Context, query string, exclude []string) ([]pipeline.Source, error) {
	form := url.Values{}
	form.Set("q", query)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, searchEndpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("build search request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", userAgent)

	resp, err := w.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("search returned status %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse search results: %w", err)
	}

	excluded := make(map[string]bool, len(exclude))
	for _, u := range exclude {
		excluded[u] = true
	}

	sources := parseSearchResults(doc)
	kept := sources[:0]
	for _, s := range sources {
		if excluded[s.URL] {
			continue
		}
		kept = append(kept, s)
		if len(kept) >= w.MaxResults {
			break
		}
	}

	for i := range kept {
		if i >= w.FetchPages {
			break
		}
		text, err := w.FetchPage(ctx, kept[i].URL)
		if err != nil {
			w.Logger.Warn("page fetch failed, keeping snippet", "url", kept[i].URL, "error", err)
			continue
		}
		kept[i].Snippet = text
	}
	return kept, nil
}

// parseSearchResults extracts title/url/snippet triples from a DuckDuckGo
// HTML results page.
func parseSearchResults(doc *goquery.Document) []pipeline.Source {
	var sources []pipeline.Source
	doc.Find("div.result").Each(func(_ int, sel *goquery.Selection) {
		link := sel.Find("a.result__a").First()
		href, ok := link.Attr("href")
		if !ok {
			return
		}
		target := resolveRedirect(href)
		if target == "" {
			return
		}
		sources = append(sources, pipeline.Source{
			Title:   strings.TrimSpace(link.Text()),
			URL:     target,
			Snippet: strings.TrimSpace(sel.Find("a.result__snippet").First().Text()),
		})
	})
	return sources
}

// resolveRedirect unwraps DuckDuckGo's /l/?uddg= redirect links into the
// actual destination URL.
func resolveRedirect(href string) string {
	if strings.HasPrefix(href, "//") {
		href = "https:" + href
	}
	u, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if uddg := u.Query().Get("uddg"); uddg != "" {
		return uddg
	}
	if u.Scheme == "http" || u.Scheme == "https" {
		return href
	}
	return ""
}
