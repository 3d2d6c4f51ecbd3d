// Package generate implements the pipeline's generation backend on top of
// a langchaingo chat model. Research-stage requests are satisfied by the
// web searcher directly; the remaining stages prompt the model, with JSON
// mode and validation for the stages whose output must be structured.
package generate

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/tmc/langchaingo/llms"

	"github.com/mikeboe/report-agent/pkg/pipeline"
)

const maxRetries = 3

// LLMGenerator drives a chat model plus a web searcher to satisfy the
// pipeline's Generator contract.
type LLMGenerator struct {
	Model    llms.Model
	Searcher pipeline.Searcher
	Logger   *slog.Logger
}

// New wires a generator over a model and a searcher.
func New(model llms.Model, searcher pipeline.Searcher) *LLMGenerator {
	return &LLMGenerator{
		Model:    model,
		Searcher: searcher,
		Logger:   slog.Default(),
	}
}

const planSystemPrompt = `You are a research planner.
Produce an outline of 4-6 main section titles for a research report on the given topic.
Do not include Introduction, Conclusion or References; they are added automatically.`

const planSchema = `Return the JSON object directly without any formatting or additional text:
{
  "type": "object",
  "properties": {
    "sections": {
      "type": "array",
      "items": {"type": "string"},
      "description": "Ordered list of section titles"
    }
  },
  "required": ["sections"]
}`

// GeneratePlan asks the model for a structured outline payload. The raw
// text is returned as-is; the pipeline's normalizer owns decoding and its
// heuristic fallback.
func (g *LLMGenerator) GeneratePlan(ctx context.Context, topic string) (string, error) {
	return g.generateWithRetry(ctx, []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, planSystemPrompt+"\n\n# Response Format:\n"+planSchema),
		llms.TextParts(llms.ChatMessageTypeHuman, "Topic: "+topic),
	}, func(content string) error {
		var resp struct {
			Sections []string `json:"sections"`
		}
		if err := json.Unmarshal([]byte(content), &resp); err != nil {
			return fmt.Errorf("json parse error: %w", err)
		}
		if len(resp.Sections) == 0 {
			return fmt.Errorf("empty section list")
		}
		return nil
	}, true)
}

// GenerateSection produces one stage's artifact for one section.
func (g *LLMGenerator) GenerateSection(ctx context.Context, req pipeline.SectionRequest) (string, error) {
	switch req.Stage {
	case pipeline.StageResearch:
		return g.research(ctx, req)
	case pipeline.StageAnalyze:
		return g.analyze(ctx, req)
	case pipeline.StageWrite:
		return g.write(ctx, req)
	case pipeline.StageReview:
		return g.review(ctx, req)
	case pipeline.StageRevise:
		return g.revise(ctx, req)
	default:
		return "", fmt.Errorf("unknown stage %q", req.Stage)
	}
}

// research runs the requested queries through the searcher and serializes
// the hits into the payload shape the normalizer expects. A query that
// fails degrades to fewer results; only a run with zero usable queries is
// an error.
func (g *LLMGenerator) research(ctx context.Context, req pipeline.SectionRequest) (string, error) {
	if len(req.Queries) == 0 {
		return "", fmt.Errorf("no research queries for section %q", req.Section)
	}

	var result pipeline.ResearchResult
	var failures int
	for _, query := range req.Queries {
		sources, err := g.Searcher.Search(ctx, query, req.ExcludeURLs)
		if err != nil {
			g.Logger.Warn("search failed", "query", query, "error", err)
			failures++
			continue
		}
		result.Sources = append(result.Sources, sources...)
		result.Queries = append(result.Queries, query)
	}
	if failures == len(req.Queries) {
		return "", fmt.Errorf("all %d searches failed for section %q", failures, req.Section)
	}

	out, err := json.Marshal(result)
	if err != nil {
		return "", fmt.Errorf("marshal research payload: %w", err)
	}
	return string(out), nil
}

const analyzeSystemPrompt = `You are a research analyst.
Review the collected findings for one report section. Summarize the key insights,
note gaps or conflicts between sources, cite the sources you relied on, assess
whether the material is sufficient, and list follow-up questions only if more
research is genuinely required.`

const analyzeSchema = `Return the JSON object directly without any formatting or additional text:
{
  "type": "object",
  "properties": {
    "summary": {"type": "string"},
    "gaps_and_conflicts": {"type": "string"},
    "cited_sources": {
      "type": "array",
      "items": {
        "type": "object",
        "properties": {
          "title": {"type": "string"},
          "url": {"type": "string"}
        }
      }
    },
    "sufficiency_assessment": {"type": "string"},
    "follow_up_questions": {"type": "array", "items": {"type": "string"}}
  },
  "required": ["summary"]
}`

func (g *LLMGenerator) analyze(ctx context.Context, req pipeline.SectionRequest) (string, error) {
	input := fmt.Sprintf("Topic: %s\nSection: %s\n\nFindings:\n%s", req.Topic, req.Section, req.Context)
	return g.generateWithRetry(ctx, []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, analyzeSystemPrompt+"\n\n# Response Format:\n"+analyzeSchema),
		llms.TextParts(llms.ChatMessageTypeHuman, input),
	}, func(content string) error {
		var resp struct {
			Summary string `json:"summary"`
		}
		if err := json.Unmarshal([]byte(content), &resp); err != nil {
			return fmt.Errorf("json parse error: %w", err)
		}
		return nil
	}, true)
}

const writeSystemPrompt = `You are a report writer.
Write the body of one report section in Markdown, based only on the analysis
insights provided. Do not repeat the section heading; it is added during
compilation.`

func (g *LLMGenerator) write(ctx context.Context, req pipeline.SectionRequest) (string, error) {
	input := fmt.Sprintf("Topic: %s\nSection: %s\n\nInsights:\n%s", req.Topic, req.Section, req.Context)
	return g.generate(ctx, []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, writeSystemPrompt),
		llms.TextParts(llms.ChatMessageTypeHuman, input),
	})
}

const reviewSystemPrompt = `You are a critical reviewer.
Assess the drafted section for accuracy, clarity and completeness. If the draft
is acceptable without changes, reply with exactly "Approved as is." Otherwise
give concise, actionable feedback.`

func (g *LLMGenerator) review(ctx context.Context, req pipeline.SectionRequest) (string, error) {
	input := fmt.Sprintf("Section: %s\n\nDraft:\n%s", req.Section, req.Context)
	return g.generate(ctx, []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, reviewSystemPrompt),
		llms.TextParts(llms.ChatMessageTypeHuman, input),
	})
}

const reviseSystemPrompt = `You are a report writer revising your own work.
Produce an improved version of the section that addresses the reviewer feedback.
Use Markdown. Return only the revised section body.`

func (g *LLMGenerator) revise(ctx context.Context, req pipeline.SectionRequest) (string, error) {
	input := fmt.Sprintf("Section: %s\n\n%s", req.Section, req.Context)
	return g.generate(ctx, []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, reviseSystemPrompt),
		llms.TextParts(llms.ChatMessageTypeHuman, input),
	})
}

// generate performs a single free-text completion with non-empty output as
// the only requirement.
func (g *LLMGenerator) generate(ctx context.Context, prompts []llms.MessageContent) (string, error) {
	return g.generateWithRetry(ctx, prompts, func(content string) error {
		if strings.TrimSpace(content) == "" {
			return fmt.Errorf("empty completion")
		}
		return nil
	}, false)
}

// generateWithRetry calls the model and validates its output, retrying with
// linear backoff when the model fails or the validator rejects the content.
func (g *LLMGenerator) generateWithRetry(ctx context.Context, prompts []llms.MessageContent, validate func(string) error, jsonMode bool) (string, error) {
	var lastErr error
	for i := 0; i < maxRetries; i++ {
		if i > 0 {
			g.Logger.Warn("retrying generation", "attempt", i+1, "last_error", lastErr)
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(time.Second * time.Duration(i)):
			}
		}

		var opts []llms.CallOption
		if jsonMode {
			opts = append(opts, llms.WithJSONMode())
		}
		resp, err := g.Model.GenerateContent(ctx, prompts, opts...)
		if err != nil {
			lastErr = fmt.Errorf("llm generation failed: %w", err)
			continue
		}
		if len(resp.Choices) == 0 {
			lastErr = fmt.Errorf("llm returned no choices")
			continue
		}

		content := resp.Choices[0].Content
		if err := validate(content); err != nil {
			lastErr = fmt.Errorf("validation failed: %w", err)
			continue
		}
		return content, nil
	}
	return "", fmt.Errorf("generation failed after %d retries: %w", maxRetries, lastErr)
}
