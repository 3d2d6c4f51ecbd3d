package archive

import (
	"context"
	"strings"
	"testing"

	"github.com/mikeboe/report-agent/pkg/pipeline"
	"github.com/mikeboe/report-agent/pkg/vectorstore"
)

type fakeEmbedder struct {
	calls int
}

func (f *fakeEmbedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	f.calls++
	return []float32{float32(len(text))}, nil
}

func (f *fakeEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		vec, _ := f.EmbedText(ctx, t)
		out[i] = vec
	}
	return out, nil
}

type fakeSplitter struct{}

func (fakeSplitter) Split(text string) ([]string, error) {
	return strings.Split(text, "\n\n"), nil
}

type fakeStore struct {
	added    []vectorstore.Chunk
	searched []float32
	topK     int
	topic    string
}

func (f *fakeStore) AddChunks(ctx context.Context, chunks []vectorstore.Chunk) error {
	f.added = append(f.added, chunks...)
	return nil
}

func (f *fakeStore) SimilaritySearch(ctx context.Context, queryEmbedding []float32, topK int, topicFilter string) ([]vectorstore.SearchResult, error) {
	f.searched = queryEmbedding
	f.topK = topK
	f.topic = topicFilter
	return nil, nil
}

func (f *fakeStore) GetByTopic(ctx context.Context, topic string) ([]vectorstore.Chunk, error) {
	return []vectorstore.Chunk{{Content: "first"}, {Content: "second"}}, nil
}

func (f *fakeStore) GetByMetadata(ctx context.Context, filter map[string]interface{}) ([]vectorstore.Chunk, error) {
	return nil, nil
}

func runState() *pipeline.State {
	s := pipeline.NewState("solid state batteries", pipeline.DefaultLimits())
	s.Outline = []string{"Introduction", "Chemistry", "Conclusion"}
	s.Sections["Chemistry"] = &pipeline.SectionRecord{
		Title:       "Chemistry",
		Summary:     "Sulfide electrolytes dominate current prototypes.",
		RawFindings: []string{"Source A notes sulfide conductivity.", "Source B covers oxide tradeoffs."},
	}
	s.FinalDocument = "# Research Report: solid state batteries\n\nBody text."
	return s
}

func TestIndexRunChunksSectionsAndDocument(t *testing.T) {
	store := &fakeStore{}
	a := New(store, &fakeEmbedder{}, fakeSplitter{})

	if err := a.IndexRun(context.Background(), runState()); err != nil {
		t.Fatalf("IndexRun: %v", err)
	}

	if len(store.added) == 0 {
		t.Fatal("no chunks stored")
	}

	kinds := map[string]int{}
	for _, c := range store.added {
		if c.Metadata["topic"] != "solid state batteries" {
			t.Errorf("chunk missing topic tag: %v", c.Metadata)
		}
		kind, _ := c.Metadata["kind"].(string)
		kinds[kind]++
		if len(c.Embedding) == 0 {
			t.Errorf("chunk stored without embedding: %q", c.Content)
		}
	}
	for _, want := range []string{"summary", "findings", "document"} {
		if kinds[want] == 0 {
			t.Errorf("no chunks of kind %q stored, got %v", want, kinds)
		}
	}

	for _, c := range store.added {
		if c.Metadata["kind"] == "summary" && c.Metadata["section"] != "Chemistry" {
			t.Errorf("summary chunk tagged with wrong section: %v", c.Metadata)
		}
	}
}

func TestIndexRunEmptyState(t *testing.T) {
	a := New(&fakeStore{}, &fakeEmbedder{}, fakeSplitter{})
	if err := a.IndexRun(context.Background(), &pipeline.State{}); err == nil {
		t.Fatal("expected error for empty run")
	}
}

func TestSearchScopesToTopic(t *testing.T) {
	store := &fakeStore{}
	a := New(store, &fakeEmbedder{}, fakeSplitter{})

	if _, err := a.Search(context.Background(), "electrolyte", 0, "solid state batteries"); err != nil {
		t.Fatalf("Search: %v", err)
	}
	if store.topK != 5 {
		t.Errorf("topK default = %d, want 5", store.topK)
	}
	if store.topic != "solid state batteries" {
		t.Errorf("topic filter = %q", store.topic)
	}
	if len(store.searched) == 0 {
		t.Error("query was not embedded before search")
	}
}

func TestTopicContentJoinsChunks(t *testing.T) {
	a := New(&fakeStore{}, &fakeEmbedder{}, fakeSplitter{})
	got, err := a.TopicContent(context.Background(), "anything")
	if err != nil {
		t.Fatalf("TopicContent: %v", err)
	}
	if got != "first\n\nsecond" {
		t.Errorf("TopicContent = %q", got)
	}
}

func TestFormatResultsEmpty(t *testing.T) {
	if got := FormatResults(nil); !strings.Contains(got, "No matching") {
		t.Errorf("FormatResults(nil) = %q", got)
	}
}

func TestFormatResultsIncludesMetadata(t *testing.T) {
	results := []vectorstore.SearchResult{
		{
			Chunk: vectorstore.Chunk{
				Content:  "chunk body",
				Metadata: map[string]interface{}{"topic": "t", "section": "Funding"},
			},
			Score: 0.91,
		},
	}
	got := FormatResults(results)
	for _, want := range []string{"chunk body", "Funding", "0.910"} {
		if !strings.Contains(got, want) {
			t.Errorf("FormatResults missing %q in %q", want, got)
		}
	}
}
