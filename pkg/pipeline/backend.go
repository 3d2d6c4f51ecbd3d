package pipeline

import "context"

// Stage identifies one backend-backed processing step within a section's
// pipeline.
type Stage string

const (
	StageResearch Stage = "research"
	StageAnalyze  Stage = "analyze"
	StageWrite    Stage = "write"
	StageReview   Stage = "review"
	StageRevise   Stage = "revise"
)

// SectionRequest carries everything a backend needs to produce one stage's
// artifact for one section.
type SectionRequest struct {
	Stage   Stage
	Section string
	Topic   string

	// Research only: the queries to run and the URLs already collected
	// in this run, which must not be revisited.
	Queries     []string
	ExcludeURLs []string

	// Context payload for the remaining stages: accumulated findings for
	// analyze, the analysis summary for write, the draft for review, and
	// the combined feedback/summary/draft bundle for revise.
	Context string
}

// Generator is the generation backend the pipeline drives. All calls are
// synchronous and blocking from the controller's perspective.
type Generator interface {
	// GeneratePlan produces the outline payload for a topic.
	GeneratePlan(ctx context.Context, topic string) (string, error)
	// GenerateSection produces the raw artifact for one stage of one
	// section. The pipeline normalizes the result; it never assumes the
	// text is well-formed.
	GenerateSection(ctx context.Context, req SectionRequest) (string, error)
}

// Searcher is the external research collaborator: given a query it returns
// source records, excluding URLs already seen in this run. Production
// implementations live in pkg/tools; the LLM-backed Generator uses one to
// satisfy research-stage requests.
type Searcher interface {
	Search(ctx context.Context, query string, exclude []string) ([]Source, error)
}
