package pipeline

import (
	"context"
	"fmt"
	"strings"
)

// ApprovalPhrase is the literal reviewer verdict that accepts a draft
// without revision. The match is a case-insensitive substring check against
// free-form reviewer text; a structured accept/reject signal would change
// the backend contract, so the phrase stays load-bearing for now.
const ApprovalPhrase = "approved as is"

const draftPreviewLen = 500

// processSection runs one section through the full
// Research -> Analyze -> {Recurse|Write} -> Review -> {Revise|Accept}
// pipeline. It returns when the section is accepted or when an error that
// is not stage-local has been recorded on the state.
func (e *Engine) processSection(ctx context.Context, title string) {
	s := e.State
	rec, ok := s.Section(title)
	if !ok {
		s.ErrMessage = fmt.Sprintf("section pipeline: current section %q not found in state", title)
		s.Logf("%s", s.ErrMessage)
		return
	}

	// Research/analyze loop, bounded by the per-section recursion cap.
	for {
		e.researchStage(ctx, rec)
		e.analyzeStage(ctx, rec)
		if e.fatal() {
			return
		}

		if len(rec.FollowUpQuestions) > 0 && rec.RecursionDepth < s.Limits.MaxRecursionDepth {
			rec.RecursionDepth++
			s.SetStatus("Recursion %d/%d: deeper research for section %q on %d follow-up questions",
				rec.RecursionDepth, s.Limits.MaxRecursionDepth, rec.Title, len(rec.FollowUpQuestions))
			continue
		}
		if len(rec.FollowUpQuestions) > 0 {
			s.Logf("Max recursion depth (%d) reached for section %q; clearing %d follow-up questions",
				s.Limits.MaxRecursionDepth, rec.Title, len(rec.FollowUpQuestions))
			rec.FollowUpQuestions = nil
		}
		break
	}

	e.writeStage(ctx, rec)
	if !e.reviewStage(ctx, rec) {
		// Nothing to review means nothing to revise; accept as is.
		e.accept(rec)
		return
	}

	for e.needsRevision(rec) {
		e.reviseStage(ctx, rec)
		e.reviewStage(ctx, rec)
	}
	e.accept(rec)
}

func (e *Engine) accept(rec *SectionRecord) {
	e.State.SetStatus("Section %q accepted", rec.Title)
}

// fatal reports whether the recorded error, if any, must halt the run
// rather than degrade a single section.
func (e *Engine) fatal() bool {
	return e.State.Escalated()
}

// Stage-local error tags. Research, write, review and revise failures
// degrade that section's record but never halt the run; anything else
// recorded in ErrMessage escalates.
var localStageTags = []string{
	tagFor(StageResearch),
	tagFor(StageWrite),
	tagFor(StageReview),
	tagFor(StageRevise),
}

func tagFor(stage Stage) string {
	return string(stage) + " stage"
}

func isStageLocal(errMsg string) bool {
	for _, tag := range localStageTags {
		if strings.Contains(errMsg, tag) {
			return true
		}
	}
	return false
}

func (e *Engine) recordStageError(stage Stage, section string, err error) {
	e.State.ErrMessage = fmt.Sprintf("%s: section %q: %v", tagFor(stage), section, err)
	e.State.Logf("%s", e.State.ErrMessage)
}

// researchStage gathers findings for the section. Follow-up questions are
// consumed before the backend call so a crashed call cannot replay stale
// questions on the next pass.
func (e *Engine) researchStage(ctx context.Context, rec *SectionRecord) {
	s := e.State

	var queries []string
	if rec.RecursionDepth > 0 && len(rec.FollowUpQuestions) > 0 {
		queries = append(queries, rec.FollowUpQuestions...)
		rec.FollowUpQuestions = nil
		s.Logf("Consumed %d follow-up questions for section %q (recursion depth %d)",
			len(queries), rec.Title, rec.RecursionDepth)
	} else {
		queries = []string{fmt.Sprintf("Key information about %s related to %s", rec.Title, s.Topic)}
	}
	if len(queries) > s.Limits.MaxSearchesPerSection {
		queries = queries[:s.Limits.MaxSearchesPerSection]
	}
	s.SetStatus("Researching section %q (%d queries)", rec.Title, len(queries))

	raw, err := e.Gen.GenerateSection(ctx, SectionRequest{
		Stage:       StageResearch,
		Section:     rec.Title,
		Topic:       s.Topic,
		Queries:     queries,
		ExcludeURLs: s.ExcludedURLs(),
	})
	if err != nil {
		e.recordStageError(StageResearch, rec.Title, err)
		return
	}

	res, ok := ParseResearch(raw)
	if !ok {
		s.Logf("Warning: research output for %q was not valid JSON; keeping raw output as one artifact", rec.Title)
		if strings.TrimSpace(raw) != "" {
			rec.RawFindings = append(rec.RawFindings, raw)
		}
		return
	}

	newURLs := 0
	for _, src := range res.Sources {
		// Findings are per-section and may legitimately repeat a URL
		// another section already collected; only the global register
		// is deduplicated.
		rec.RawFindings = append(rec.RawFindings, FormatSource(src))
		if s.AddURL(src.URL) {
			newURLs++
		}
	}
	for _, q := range res.Queries {
		s.AddQuery(q)
	}
	s.SetStatus("Research complete for section %q: %d sources, %d new URLs", rec.Title, len(res.Sources), newURLs)
}

// analyzeStage summarizes the accumulated findings and extracts citations
// and follow-up questions. Malformed output here structurally breaks the
// recursion and writing decisions downstream, so with StrictAnalysis it
// escalates instead of degrading.
func (e *Engine) analyzeStage(ctx context.Context, rec *SectionRecord) {
	s := e.State
	s.SetStatus("Analyzing findings for section %q", rec.Title)

	raw, err := e.Gen.GenerateSection(ctx, SectionRequest{
		Stage:   StageAnalyze,
		Section: rec.Title,
		Topic:   s.Topic,
		Context: strings.Join(rec.RawFindings, "\n\n"),
	})
	if err != nil {
		e.recordStageError(StageAnalyze, rec.Title, err)
		return
	}

	res, ok := ParseAnalysis(raw)
	if !ok {
		s.Logf("Analysis output for %q was not valid JSON", rec.Title)
		if s.Limits.StrictAnalysis {
			e.recordStageError(StageAnalyze, rec.Title, fmt.Errorf("malformed analysis output"))
		}
		// The raw text still serves as the summary so partial results
		// survive into the returned state.
	}

	rec.Summary = res.Summary
	rec.FollowUpQuestions = res.FollowUpQuestions

	for _, src := range res.CitedSources {
		s.AddReference(FormatCitation(src))
	}

	status := fmt.Sprintf("Analysis complete for section %q", rec.Title)
	if n := len(res.FollowUpQuestions); n > 0 {
		status += fmt.Sprintf("; %d follow-up questions identified", n)
	}
	s.SetStatus("%s", status)
}

// writeStage drafts the section from its analysis summary. A section is
// never silently dropped: a missing summary produces a placeholder draft
// and the pipeline still proceeds to review.
func (e *Engine) writeStage(ctx context.Context, rec *SectionRecord) {
	s := e.State
	if strings.TrimSpace(rec.Summary) == "" {
		rec.DraftContent = fmt.Sprintf("Content generation for %q was skipped: no analysis summary was available.", rec.Title)
		s.Logf("Skipping drafting for %q: missing summary", rec.Title)
		return
	}

	s.SetStatus("Writing draft for section %q", rec.Title)
	draft, err := e.Gen.GenerateSection(ctx, SectionRequest{
		Stage:   StageWrite,
		Section: rec.Title,
		Topic:   s.Topic,
		Context: rec.Summary,
	})
	if err != nil {
		rec.DraftContent = fmt.Sprintf("Draft generation for %q failed: %v", rec.Title, err)
		e.recordStageError(StageWrite, rec.Title, err)
		return
	}
	if strings.TrimSpace(draft) == "" {
		rec.DraftContent = fmt.Sprintf("Draft generation produced empty content for %q.", rec.Title)
		s.SetStatus("Draft generation failed for section %q", rec.Title)
		return
	}
	rec.DraftContent = draft
	s.SetStatus("Draft complete for section %q", rec.Title)
}

// reviewStage collects reviewer feedback for the current draft. It reports
// whether a review actually happened; with no draft there is nothing to
// revise and the section goes straight to acceptance.
func (e *Engine) reviewStage(ctx context.Context, rec *SectionRecord) bool {
	s := e.State
	if strings.TrimSpace(rec.DraftContent) == "" {
		rec.ReviewFeedback = "No draft content to review."
		s.Logf("Skipping review for %q: missing draft", rec.Title)
		return false
	}

	s.SetStatus("Reviewing section %q", rec.Title)
	feedback, err := e.Gen.GenerateSection(ctx, SectionRequest{
		Stage:   StageReview,
		Section: rec.Title,
		Topic:   s.Topic,
		Context: rec.DraftContent,
	})
	if err != nil {
		rec.ReviewFeedback = fmt.Sprintf("Review failed: %v", err)
		e.recordStageError(StageReview, rec.Title, err)
		return true
	}
	if strings.TrimSpace(feedback) == "" {
		rec.ReviewFeedback = "Reviewer provided no actionable feedback."
		s.SetStatus("Review of section %q returned empty feedback", rec.Title)
		return true
	}
	rec.ReviewFeedback = feedback
	s.SetStatus("Review complete for section %q", rec.Title)
	return true
}

// needsRevision decides the revise-or-accept branch after a review pass.
func (e *Engine) needsRevision(rec *SectionRecord) bool {
	if rec.RevisionAttempts >= e.State.Limits.MaxRevisionCycles {
		if rec.ReviewFeedback != "" && !isApproved(rec.ReviewFeedback) {
			e.State.Logf("Max revisions (%d) reached for section %q; accepting current draft",
				e.State.Limits.MaxRevisionCycles, rec.Title)
		}
		return false
	}
	return rec.ReviewFeedback != "" && !isApproved(rec.ReviewFeedback)
}

func isApproved(feedback string) bool {
	return strings.Contains(strings.ToLower(feedback), ApprovalPhrase)
}

// reviseStage re-drafts the section with the reviewer feedback, the
// original summary and the head of the previous draft as context. Every
// revise pass counts against the cap, even a degraded one, so the
// review/revise loop always terminates.
func (e *Engine) reviseStage(ctx context.Context, rec *SectionRecord) {
	s := e.State
	rec.RevisionAttempts++
	s.SetStatus("Revising section %q (attempt %d/%d)", rec.Title, rec.RevisionAttempts, s.Limits.MaxRevisionCycles)

	preview := rec.DraftContent
	if runes := []rune(preview); len(runes) > draftPreviewLen {
		preview = string(runes[:draftPreviewLen]) + "..."
	}
	payload := fmt.Sprintf("REVISION INSTRUCTIONS:\n%s\n\nORIGINAL INSIGHTS:\n%s\n\nPREVIOUS DRAFT:\n%s",
		rec.ReviewFeedback, rec.Summary, preview)

	revised, err := e.Gen.GenerateSection(ctx, SectionRequest{
		Stage:   StageRevise,
		Section: rec.Title,
		Topic:   s.Topic,
		Context: payload,
	})
	if err != nil {
		// Keep the previous draft; the failed attempt still counts.
		e.recordStageError(StageRevise, rec.Title, err)
		return
	}
	if strings.TrimSpace(revised) == "" {
		s.SetStatus("Revision produced empty content for section %q; keeping previous draft", rec.Title)
		return
	}
	rec.DraftContent = revised
	s.SetStatus("Revision complete for section %q", rec.Title)
}
