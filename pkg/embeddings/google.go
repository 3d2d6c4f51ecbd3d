package embeddings

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

// Dimension is the output dimensionality requested from the embedding
// model. It has to match the vector column width of the archive tables.
const Dimension = 1536

// GoogleEmbedder generates embeddings through the Gemini API.
type GoogleEmbedder struct {
	client *genai.Client
	model  string
}

// NewGoogleEmbedder creates an embedder bound to one model.
func NewGoogleEmbedder(ctx context.Context, model, apiKey string) (*GoogleEmbedder, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey: apiKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini API client: %w", err)
	}

	return &GoogleEmbedder{
		client: client,
		model:  model,
	}, nil
}

// EmbedText generates an embedding for a single text.
func (e *GoogleEmbedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	outputDim := int32(Dimension)
	res, err := e.client.Models.EmbedContent(ctx, e.model, []*genai.Content{
		{
			Parts: []*genai.Part{
				{Text: text},
			},
		},
	}, &genai.EmbedContentConfig{
		OutputDimensionality: &outputDim,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to embed text: %w", err)
	}

	if len(res.Embeddings) == 0 || len(res.Embeddings[0].Values) == 0 {
		return nil, fmt.Errorf("empty embedding returned")
	}

	return res.Embeddings[0].Values, nil
}

// EmbedTexts generates embeddings for multiple texts. Requests run
// sequentially; archive indexing happens after a run completes, so
// latency here is not on any interactive path.
func (e *GoogleEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	result := make([][]float32, 0, len(texts))
	for _, text := range texts {
		vec, err := e.EmbedText(ctx, text)
		if err != nil {
			return nil, err
		}
		result = append(result, vec)
	}
	return result, nil
}
