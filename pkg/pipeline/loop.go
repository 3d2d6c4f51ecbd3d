package pipeline

import (
	"context"
	"log/slog"
	"strings"
)

// Engine drives one research run: it plans the outline, feeds sections
// through the section pipeline one at a time, and compiles the final
// document. One Engine owns exactly one State; create a fresh Engine per
// run for multi-topic deployments.
type Engine struct {
	State  *State
	Gen    Generator
	Logger *slog.Logger

	// OnStateUpdate, when set, receives a snapshot after planning and
	// after every completed section. Used by embedding hosts to persist
	// or display progress.
	OnStateUpdate func(State)
}

// New creates an engine for a single run.
func New(limits Limits, gen Generator) *Engine {
	return &Engine{
		State:  NewState("", limits),
		Gen:    gen,
		Logger: slog.Default(),
	}
}

// Run executes the full pipeline for a topic. It always returns the state,
// never panics past this point: an escalated run carries partial results
// and a populated ErrMessage instead of a raised error.
func (e *Engine) Run(ctx context.Context, topic string) *State {
	s := e.State
	s.Topic = topic

	if !e.planStage(ctx) {
		return e.escalate()
	}
	e.notify()

	for {
		if e.fatal() {
			return e.escalate()
		}
		if s.MainLoopIterations >= s.Limits.MaxMainLoopIterations {
			s.Logf("Max main-loop iterations (%d) reached; moving to compilation", s.Limits.MaxMainLoopIterations)
			break
		}

		next := e.nextSection()
		if next == "" {
			s.Logf("No unprocessed sections remain; moving to compilation")
			break
		}

		rec := s.Sections[next]
		// Defensive reset: a truly new section starts with a clean
		// recursion slate even if a previous degraded pass left residue.
		rec.FollowUpQuestions = nil
		rec.RecursionDepth = 0

		s.CurrentSection = next
		s.MainLoopIterations++
		s.Logf("Main loop iteration %d: processing section %q", s.MainLoopIterations, next)

		e.processSection(ctx, next)
		e.notify()
	}

	if e.fatal() {
		return e.escalate()
	}

	s.FinalDocument = Compile(s)
	s.CurrentSection = ""
	s.SetStatus("Report compilation complete")
	e.notify()
	return s
}

// planStage asks the backend for an outline and initializes the section
// records. Returns false when planning failed badly enough to halt.
func (e *Engine) planStage(ctx context.Context) bool {
	s := e.State
	s.SetStatus("Planning outline for topic: %s", s.Topic)

	raw, err := e.Gen.GeneratePlan(ctx, s.Topic)
	if err != nil {
		s.ErrMessage = "plan stage: " + err.Error()
		s.Logf("%s", s.ErrMessage)
		return false
	}

	titles, structured := ParseOutline(raw)
	if !structured {
		s.Logf("Warning: planner output was not a structured payload; outline parsed heuristically")
	}
	s.Outline = NormalizeOutline(titles)
	for _, title := range s.Outline {
		s.Sections[title] = &SectionRecord{Title: title, RawFindings: []string{}}
	}
	s.SetStatus("Outline planned: %s", strings.Join(s.Outline, ", "))
	return true
}

// nextSection scans the outline in order for the first content section
// that has no draft yet and is not mid-flight. Reserved structural titles
// are the compiler's job, never the section pipeline's.
func (e *Engine) nextSection() string {
	s := e.State
	for _, title := range s.Outline {
		rec, ok := s.Sections[title]
		if !ok {
			s.Logf("Warning: outline section %q missing from state; skipping", title)
			continue
		}
		if isReservedTitle(title) {
			continue
		}
		if rec.DraftContent == "" && rec.RecursionDepth == 0 {
			return title
		}
	}
	return ""
}

// escalate is the terminal error sink: it records the final status and
// hands the partial state back. No retries happen here; an earlier stage
// already exhausted its local recovery options.
func (e *Engine) escalate() *State {
	s := e.State
	s.SetStatus("Error occurred: %s. Halting run.", s.ErrMessage)
	e.Logger.Error("run escalated", "topic", s.Topic, "error", s.ErrMessage)
	e.notify()
	return s
}

func (e *Engine) notify() {
	if e.OnStateUpdate != nil {
		e.OnStateUpdate(*e.State)
	}
}
