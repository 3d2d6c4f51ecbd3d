package pipeline

import (
	"reflect"
	"strings"
	"testing"
)

func TestParseResearch(t *testing.T) {
	tests := []struct {
		name        string
		raw         string
		wantOK      bool
		wantSources int
		wantQueries int
	}{
		{
			name:        "well-formed object",
			raw:         `{"results": [{"title": "A", "url": "https://a", "snippet": "s"}], "queries": ["q1", "q2"]}`,
			wantOK:      true,
			wantSources: 1,
			wantQueries: 2,
		},
		{
			name:        "bare array of sources",
			raw:         `[{"title": "A", "url": "https://a", "snippet": "s"}]`,
			wantOK:      true,
			wantSources: 1,
		},
		{
			name:        "fenced json",
			raw:         "```json\n{\"results\": [], \"queries\": [\"q\"]}\n```",
			wantOK:      true,
			wantQueries: 1,
		},
		{
			name:   "plain prose",
			raw:    "I found several interesting articles about the topic.",
			wantOK: false,
		},
		{
			name:   "empty",
			raw:    "",
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, ok := ParseResearch(tt.raw)
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if len(res.Sources) != tt.wantSources {
				t.Errorf("sources = %d, want %d", len(res.Sources), tt.wantSources)
			}
			if len(res.Queries) != tt.wantQueries {
				t.Errorf("queries = %d, want %d", len(res.Queries), tt.wantQueries)
			}
		})
	}
}

func TestParseResearchIdempotent(t *testing.T) {
	raw := `{"results": [{"title": "A", "url": "https://a", "snippet": "s"}], "queries": ["q"]}`
	first, ok1 := ParseResearch(raw)
	second, ok2 := ParseResearch(raw)
	if !ok1 || !ok2 {
		t.Fatal("structured payload failed to decode")
	}
	if !reflect.DeepEqual(first, second) {
		t.Errorf("repeated normalization differs: %+v vs %+v", first, second)
	}
}

func TestParseAnalysis(t *testing.T) {
	t.Run("well-formed", func(t *testing.T) {
		raw := `{"summary": "S", "gaps_and_conflicts": "G", "cited_sources": [{"title": "T", "url": "https://t"}], "follow_up_questions": ["why?"]}`
		res, ok := ParseAnalysis(raw)
		if !ok {
			t.Fatal("expected ok")
		}
		if res.Summary != "S" || len(res.CitedSources) != 1 || len(res.FollowUpQuestions) != 1 {
			t.Errorf("unexpected result: %+v", res)
		}
	})

	t.Run("malformed keeps raw as summary", func(t *testing.T) {
		raw := "The analysis shows that..."
		res, ok := ParseAnalysis(raw)
		if ok {
			t.Fatal("expected not ok")
		}
		if res.Summary != raw {
			t.Errorf("summary = %q, want raw text", res.Summary)
		}
		if len(res.CitedSources) != 0 || len(res.FollowUpQuestions) != 0 {
			t.Errorf("fallback must leave sources and questions empty: %+v", res)
		}
	})
}

func TestParseOutline(t *testing.T) {
	tests := []struct {
		name           string
		raw            string
		wantStructured bool
		want           []string
	}{
		{
			name:           "sections wrapper",
			raw:            `{"sections": ["Background", "Methods"]}`,
			wantStructured: true,
			want:           []string{"Background", "Methods"},
		},
		{
			name:           "bare array",
			raw:            `["Background", "Methods"]`,
			wantStructured: true,
			want:           []string{"Background", "Methods"},
		},
		{
			name:           "section prefix lines",
			raw:            "Section 1: Background\nSection 2: Methods\n  - Question 1.1: ignored",
			wantStructured: false,
			want:           []string{"Background", "Methods"},
		},
		{
			name:           "plain lines skip bullets",
			raw:            "Background\n- a question\nMethods\n* another",
			wantStructured: false,
			want:           []string{"Background", "Methods"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, structured := ParseOutline(tt.raw)
			if structured != tt.wantStructured {
				t.Errorf("structured = %v, want %v", structured, tt.wantStructured)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("outline = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNormalizeOutline(t *testing.T) {
	tests := []struct {
		name  string
		input []string
		want  []string
	}{
		{
			name:  "adds structural sections",
			input: []string{"Background"},
			want:  []string{"Introduction", "Background", "Conclusion", "References"},
		},
		{
			name:  "keeps existing structure",
			input: []string{"Introduction", "Background", "Conclusion", "References"},
			want:  []string{"Introduction", "Background", "Conclusion", "References"},
		},
		{
			name:  "dedupes preserving order",
			input: []string{"Background", "Methods", "Background"},
			want:  []string{"Introduction", "Background", "Methods", "Conclusion", "References"},
		},
		{
			name:  "empty plan still yields structure",
			input: nil,
			want:  []string{"Introduction", "Conclusion", "References"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NormalizeOutline(tt.input); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("NormalizeOutline(%v) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestFormatCitation(t *testing.T) {
	got := FormatCitation(Source{Title: "Paper", URL: "https://p"})
	if got != "Paper (https://p)" {
		t.Errorf("citation = %q", got)
	}
	if got := FormatCitation(Source{}); got != "N/A (N/A)" {
		t.Errorf("empty citation = %q", got)
	}
}

func TestFormatSource(t *testing.T) {
	got := FormatSource(Source{Title: "T", URL: "https://u", Snippet: "s"})
	for _, want := range []string{"Title: T", "URL: https://u", "Snippet: s"} {
		if !strings.Contains(got, want) {
			t.Errorf("artifact %q missing %q", got, want)
		}
	}
}
