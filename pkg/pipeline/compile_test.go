package pipeline

import (
	"strings"
	"testing"
)

func compileState() *State {
	s := NewState("Quantum Computing", DefaultLimits())
	s.Outline = []string{"Introduction", "Background", "Conclusion", "References"}
	s.Sections["Introduction"] = &SectionRecord{Title: "Introduction"}
	s.Sections["Background"] = &SectionRecord{Title: "Background", DraftContent: "Qubits explained."}
	s.Sections["Conclusion"] = &SectionRecord{Title: "Conclusion"}
	s.Sections["References"] = &SectionRecord{Title: "References"}
	return s
}

func TestCompileOrdersAndBackfills(t *testing.T) {
	s := compileState()
	s.References = []string{"Paper A (https://a)", "Paper B (https://b)"}

	doc := Compile(s)

	if !strings.HasPrefix(doc, "# Research Report: Quantum Computing") {
		t.Errorf("missing report title, got prefix %q", doc[:50])
	}
	order := []string{"## Introduction", "## Background", "Qubits explained.", "## Conclusion", "## References", "1. Paper A"}
	last := -1
	for _, want := range order {
		idx := strings.Index(doc, want)
		if idx < 0 {
			t.Fatalf("document missing %q", want)
		}
		if idx < last {
			t.Errorf("%q appears out of order", want)
		}
		last = idx
	}
}

func TestCompileEmptyReferences(t *testing.T) {
	doc := Compile(compileState())
	if !strings.Contains(doc, "_No references were compiled for this report._") {
		t.Error("missing references placeholder")
	}
}

func TestCompileBoilerplateForStructuralSections(t *testing.T) {
	doc := Compile(compileState())
	if !strings.Contains(doc, "This report examines Quantum Computing") {
		t.Error("introduction boilerplate missing")
	}
	if !strings.Contains(doc, "automated survey of Quantum Computing") {
		t.Error("conclusion boilerplate missing")
	}
}

func TestCompileAppendsUnlistedSections(t *testing.T) {
	s := compileState()
	s.Sections["Appendix"] = &SectionRecord{Title: "Appendix", DraftContent: "Extra material."}

	doc := Compile(s)

	refIdx := strings.Index(doc, "## References")
	appIdx := strings.Index(doc, "## Appendix")
	if appIdx < 0 {
		t.Fatal("unlisted section dropped")
	}
	if appIdx < refIdx {
		t.Error("unlisted section must be appended after outline sections")
	}
}

func TestCompileIsPure(t *testing.T) {
	s := compileState()
	first := Compile(s)
	second := Compile(s)
	if first != second {
		t.Error("Compile is not deterministic over the same state")
	}
	if s.FinalDocument != "" {
		t.Error("Compile must not mutate the state")
	}
}
