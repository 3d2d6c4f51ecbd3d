package tools

import (
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
)

func docFrom(t *testing.T, html string) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		t.Fatal(err)
	}
	return doc
}

func TestExtractReadableTextPrefersArticle(t *testing.T) {
	doc := docFrom(t, `<html><body>
		<nav>Site navigation junk</nav>
		<article>The   actual
		article text.</article>
	</body></html>`)

	got := extractReadableText(doc)
	if got != "The actual article text." {
		t.Errorf("got %q", got)
	}
}

func TestExtractReadableTextStripsScripts(t *testing.T) {
	doc := docFrom(t, `<html><body>
		<main>Visible content.<script>alert("nope")</script></main>
	</body></html>`)

	got := extractReadableText(doc)
	if strings.Contains(got, "alert") {
		t.Errorf("script text leaked: %q", got)
	}
	if !strings.Contains(got, "Visible content.") {
		t.Errorf("content lost: %q", got)
	}
}

func TestExtractReadableTextParagraphFallback(t *testing.T) {
	doc := docFrom(t, `<html><body>
		<div><p>First paragraph.</p><h2>A heading</h2><p>Second paragraph.</p></div>
	</body></html>`)

	got := extractReadableText(doc)
	for _, want := range []string{"First paragraph.", "A heading", "Second paragraph."} {
		if !strings.Contains(got, want) {
			t.Errorf("missing %q in %q", want, got)
		}
	}
}

func TestExtractReadableTextTruncates(t *testing.T) {
	long := strings.Repeat("word ", 4000)
	doc := docFrom(t, "<html><body><article>"+long+"</article></body></html>")

	got := extractReadableText(doc)
	if len([]rune(got)) > maxPageTextLen {
		t.Errorf("text length %d exceeds cap %d", len([]rune(got)), maxPageTextLen)
	}
}

func TestTruncateRuneSafe(t *testing.T) {
	s := strings.Repeat("ä", 10)
	got := truncate(s, 5)
	if got != strings.Repeat("ä", 5) {
		t.Errorf("got %q", got)
	}
}
