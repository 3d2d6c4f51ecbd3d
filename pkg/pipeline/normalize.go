package pipeline

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// Source is a single research artifact: one search hit or fetched page.
type Source struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}

// ResearchResult is the normalized shape of a research-stage response.
type ResearchResult struct {
	Sources []Source `json:"results"`
	Queries []string `json:"queries"`
}

// AnalysisResult is the normalized shape of an analysis-stage response.
type AnalysisResult struct {
	Summary           string   `json:"summary"`
	GapsAndConflicts  string   `json:"gaps_and_conflicts"`
	CitedSources      []Source `json:"cited_sources"`
	Sufficiency       string   `json:"sufficiency_assessment"`
	FollowUpQuestions []string `json:"follow_up_questions"`
}

// ParseResearch decodes a research-stage response. The backend is expected
// to return a single JSON object with "results" and "queries". On decode
// failure it returns ok=false and the caller keeps the raw string as one
// opaque artifact instead of discarding it.
func ParseResearch(raw string) (ResearchResult, bool) {
	var res ResearchResult
	trimmed := stripCodeFence(raw)
	if err := json.Unmarshal([]byte(trimmed), &res); err == nil {
		return res, true
	}
	// Some backends return a bare array of sources.
	var sources []Source
	if err := json.Unmarshal([]byte(trimmed), &sources); err == nil {
		return ResearchResult{Sources: sources}, true
	}
	return ResearchResult{}, false
}

// ParseAnalysis decodes an analysis-stage response. On decode failure it
// returns ok=false with the raw string carried as the summary; whether that
// escalates the run is the caller's decision (Limits.StrictAnalysis).
func ParseAnalysis(raw string) (AnalysisResult, bool) {
	var res AnalysisResult
	trimmed := stripCodeFence(raw)
	if err := json.Unmarshal([]byte(trimmed), &res); err != nil {
		return AnalysisResult{Summary: raw}, false
	}
	return res, true
}

var sectionLineRe = regexp.MustCompile(`(?i)Section\s*\w*\s*:\s*([^\n]+)`)

// ParseOutline decodes a planning response into section titles. A structured
// payload ({"sections": [...]} or a bare JSON array) is decoded strictly;
// otherwise the heuristic line parser takes over and ok=false reports the
// degraded path.
func ParseOutline(raw string) ([]string, bool) {
	trimmed := stripCodeFence(raw)

	var wrapper struct {
		Sections []string `json:"sections"`
	}
	if err := json.Unmarshal([]byte(trimmed), &wrapper); err == nil && len(wrapper.Sections) > 0 {
		return wrapper.Sections, true
	}
	var titles []string
	if err := json.Unmarshal([]byte(trimmed), &titles); err == nil && len(titles) > 0 {
		return titles, true
	}

	// Heuristic fallback: "Section N: Title" lines first, then any
	// non-bullet line long enough to be a title.
	var sections []string
	if matches := sectionLineRe.FindAllStringSubmatch(raw, -1); len(matches) > 0 {
		for _, m := range matches {
			sections = append(sections, strings.TrimSpace(m[1]))
		}
		return sections, false
	}
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "- ") || strings.HasPrefix(line, "* ") {
			continue
		}
		if len(line) > 3 {
			sections = append(sections, line)
		}
	}
	return sections, false
}

// NormalizeOutline deduplicates titles preserving order and guarantees the
// structural sections: Introduction first, Conclusion and References last.
func NormalizeOutline(titles []string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, t := range titles {
		t = strings.TrimSpace(t)
		if t == "" || seen[strings.ToLower(t)] {
			continue
		}
		seen[strings.ToLower(t)] = true
		out = append(out, t)
	}
	if !seen["introduction"] {
		out = append([]string{"Introduction"}, out...)
	}
	if !seen["conclusion"] {
		out = append(out, "Conclusion")
	}
	if !seen["references"] {
		out = append(out, "References")
	}
	return out
}

// FormatSource serializes a source into the artifact form stored in a
// section's raw findings.
func FormatSource(s Source) string {
	return fmt.Sprintf("Title: %s\nURL: %s\nSnippet: %s", orNA(s.Title), orNA(s.URL), orNA(s.Snippet))
}

// FormatCitation renders a cited source for the global references list.
func FormatCitation(s Source) string {
	return fmt.Sprintf("%s (%s)", orNA(s.Title), orNA(s.URL))
}

func orNA(s string) string {
	if strings.TrimSpace(s) == "" {
		return "N/A"
	}
	return s
}

// stripCodeFence removes a surrounding markdown code fence, which LLMs add
// even when asked for bare JSON.
func stripCodeFence(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
	return strings.TrimSpace(trimmed)
}
