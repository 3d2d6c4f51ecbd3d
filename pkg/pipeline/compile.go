package pipeline

import (
	"fmt"
	"sort"
	"strings"
)

// Compile assembles the final markdown document from the accepted drafts.
// It is a pure function over the state: no backend calls, no mutation,
// failure-free by construction. Missing structural sections are backfilled
// with boilerplate so the document is always complete.
func Compile(s *State) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Research Report: %s\n\n", s.Topic)

	ordered := orderedTitles(s)
	for _, title := range ordered {
		fmt.Fprintf(&b, "## %s\n\n", title)
		b.WriteString(sectionBody(s, title))
		b.WriteString("\n\n")
	}
	return strings.TrimRight(b.String(), "\n") + "\n"
}

// orderedTitles follows the outline order and appends any section present
// in the state but absent from the outline, alphabetically for determinism.
func orderedTitles(s *State) []string {
	seen := make(map[string]bool)
	var titles []string
	for _, t := range s.Outline {
		if _, ok := s.Sections[t]; ok && !seen[t] {
			seen[t] = true
			titles = append(titles, t)
		}
	}
	var extra []string
	for t := range s.Sections {
		if !seen[t] {
			extra = append(extra, t)
		}
	}
	sort.Strings(extra)
	titles = append(titles, extra...)

	// Structural sections always exist in the document even when the
	// outline (or a degraded plan) lost them.
	for _, t := range []string{"Introduction", "Conclusion", "References"} {
		if !containsTitle(titles, t) {
			if strings.EqualFold(t, "Introduction") {
				titles = append([]string{t}, titles...)
			} else {
				titles = append(titles, t)
			}
		}
	}
	return titles
}

func containsTitle(titles []string, want string) bool {
	for _, t := range titles {
		if strings.EqualFold(t, want) {
			return true
		}
	}
	return false
}

func sectionBody(s *State, title string) string {
	if strings.EqualFold(title, "References") {
		return referencesBody(s)
	}
	if rec, ok := s.Sections[title]; ok && strings.TrimSpace(rec.DraftContent) != "" {
		return strings.TrimSpace(rec.DraftContent)
	}
	switch {
	case strings.EqualFold(title, "Introduction"):
		return fmt.Sprintf("This report examines %s. The sections that follow were researched, drafted and reviewed by an automated pipeline.", s.Topic)
	case strings.EqualFold(title, "Conclusion"):
		return fmt.Sprintf("This report presented an automated survey of %s based on the sources gathered during the run.", s.Topic)
	default:
		return fmt.Sprintf("_No content was produced for %q._", title)
	}
}

func referencesBody(s *State) string {
	if rec, ok := s.Sections["References"]; ok && strings.TrimSpace(rec.DraftContent) != "" {
		return strings.TrimSpace(rec.DraftContent)
	}
	if len(s.References) == 0 {
		return "_No references were compiled for this report._"
	}
	var b strings.Builder
	for i, ref := range s.References {
		fmt.Fprintf(&b, "%d. %s\n", i+1, ref)
	}
	return strings.TrimRight(b.String(), "\n")
}
