// Package archive persists the material a completed run produced into a
// pgvector-backed findings archive, so later runs and API clients can
// search earlier reports semantically.
package archive

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mikeboe/report-agent/pkg/pipeline"
	"github.com/mikeboe/report-agent/pkg/vectorstore"
)

// Embedder turns text into vectors. Satisfied by embeddings.GoogleEmbedder.
type Embedder interface {
	EmbedText(ctx context.Context, text string) ([]float32, error)
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

// Splitter chunks long text before embedding.
type Splitter interface {
	Split(text string) ([]string, error)
}

// Store is the persistence surface the archive writes to and reads from.
type Store interface {
	AddChunks(ctx context.Context, chunks []vectorstore.Chunk) error
	SimilaritySearch(ctx context.Context, queryEmbedding []float32, topK int, topicFilter string) ([]vectorstore.SearchResult, error)
	GetByTopic(ctx context.Context, topic string) ([]vectorstore.Chunk, error)
	GetByMetadata(ctx context.Context, filter map[string]interface{}) ([]vectorstore.Chunk, error)
}

// Archive indexes completed runs and answers semantic queries over them.
type Archive struct {
	Store    Store
	Embedder Embedder
	Splitter Splitter
	Logger   *slog.Logger
}

// New wires an archive from its parts.
func New(store Store, embedder Embedder, splitter Splitter) *Archive {
	return &Archive{
		Store:    store,
		Embedder: embedder,
		Splitter: splitter,
		Logger:   slog.Default(),
	}
}

// IndexRun chunks and embeds a finished run: per-section summaries and raw
// findings, plus the compiled document. Sections that produced nothing are
// skipped. The run's topic tags every chunk so searches can scope to it.
func (a *Archive) IndexRun(ctx context.Context, s *pipeline.State) error {
	if s == nil || s.Topic == "" {
		return fmt.Errorf("cannot index an empty run")
	}

	var chunks []vectorstore.Chunk

	for _, title := range s.Outline {
		rec, ok := s.Sections[title]
		if !ok {
			continue
		}

		if rec.Summary != "" {
			sectionChunks, err := a.chunkText(rec.Summary, map[string]interface{}{
				"topic":   s.Topic,
				"section": rec.Title,
				"kind":    "summary",
			})
			if err != nil {
				return fmt.Errorf("chunk summary for %q: %w", rec.Title, err)
			}
			chunks = append(chunks, sectionChunks...)
		}

		if len(rec.RawFindings) > 0 {
			findingChunks, err := a.chunkText(strings.Join(rec.RawFindings, "\n\n"), map[string]interface{}{
				"topic":   s.Topic,
				"section": rec.Title,
				"kind":    "findings",
			})
			if err != nil {
				return fmt.Errorf("chunk findings for %q: %w", rec.Title, err)
			}
			chunks = append(chunks, findingChunks...)
		}
	}

	if s.FinalDocument != "" {
		docChunks, err := a.chunkText(s.FinalDocument, map[string]interface{}{
			"topic": s.Topic,
			"kind":  "document",
		})
		if err != nil {
			return fmt.Errorf("chunk final document: %w", err)
		}
		chunks = append(chunks, docChunks...)
	}

	if len(chunks) == 0 {
		a.Logger.Info("Nothing to archive for run", "topic", s.Topic)
		return nil
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Content
	}

	vectors, err := a.Embedder.EmbedTexts(ctx, texts)
	if err != nil {
		return fmt.Errorf("embed archive chunks: %w", err)
	}
	for i := range chunks {
		chunks[i].Embedding = vectors[i]
	}

	if err := a.Store.AddChunks(ctx, chunks); err != nil {
		return fmt.Errorf("store archive chunks: %w", err)
	}

	a.Logger.Info("Archived run", "topic", s.Topic, "chunks", len(chunks))
	return nil
}

func (a *Archive) chunkText(text string, metadata map[string]interface{}) ([]vectorstore.Chunk, error) {
	pieces, err := a.Splitter.Split(text)
	if err != nil {
		return nil, err
	}

	chunks := make([]vectorstore.Chunk, 0, len(pieces))
	for _, piece := range pieces {
		if strings.TrimSpace(piece) == "" {
			continue
		}
		// Copy the metadata map so later chunks can't mutate earlier ones.
		meta := make(map[string]interface{}, len(metadata))
		for k, v := range metadata {
			meta[k] = v
		}
		chunks = append(chunks, vectorstore.Chunk{
			Content:  piece,
			Metadata: meta,
		})
	}
	return chunks, nil
}

// Search embeds the query and returns the nearest archived chunks,
// optionally scoped to one topic.
func (a *Archive) Search(ctx context.Context, query string, topK int, topic string) ([]vectorstore.SearchResult, error) {
	if topK <= 0 {
		topK = 5
	}

	vec, err := a.Embedder.EmbedText(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	return a.Store.SimilaritySearch(ctx, vec, topK, topic)
}

// TopicContent returns every chunk archived for a topic, concatenated in
// storage order.
func (a *Archive) TopicContent(ctx context.Context, topic string) (string, error) {
	chunks, err := a.Store.GetByTopic(ctx, topic)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	for i, c := range chunks {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString(c.Content)
	}
	return sb.String(), nil
}

// FormatResults renders search results as readable text for tool output.
func FormatResults(results []vectorstore.SearchResult) string {
	if len(results) == 0 {
		return "No matching archive content found."
	}

	var sb strings.Builder
	for i, r := range results {
		if i > 0 {
			sb.WriteString("\n\n---\n\n")
		}
		section, _ := r.Chunk.Metadata["section"].(string)
		topic, _ := r.Chunk.Metadata["topic"].(string)
		fmt.Fprintf(&sb, "[%d] score=%.3f topic=%q", i+1, r.Score, topic)
		if section != "" {
			fmt.Fprintf(&sb, " section=%q", section)
		}
		sb.WriteString("\n")
		sb.WriteString(r.Chunk.Content)
	}
	return sb.String()
}
