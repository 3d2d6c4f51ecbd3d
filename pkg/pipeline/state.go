package pipeline

import (
	"fmt"
	"strings"
	"time"
)

// Limits bounds the recursion, revision and loop behavior of a run.
// The generation backend decides how many follow-up questions or revision
// requests it produces, so every loop it can drive has a hard cap here.
type Limits struct {
	MaxSearchesPerSection int  `json:"max_searches_per_section" yaml:"maxSearchesPerSection"`
	MaxRevisionCycles     int  `json:"max_revision_cycles" yaml:"maxRevisionCycles"`
	MaxMainLoopIterations int  `json:"max_main_loop_iterations" yaml:"maxMainLoopIterations"`
	MaxRecursionDepth     int  `json:"max_recursion_depth" yaml:"maxRecursionDepth"`
	StrictAnalysis        bool `json:"strict_analysis" yaml:"strictAnalysis"`
}

// DefaultLimits returns the caps used when the caller provides none.
func DefaultLimits() Limits {
	return Limits{
		MaxSearchesPerSection: 5,
		MaxRevisionCycles:     2,
		MaxMainLoopIterations: 10,
		MaxRecursionDepth:     2,
		StrictAnalysis:        true,
	}
}

// SectionRecord holds everything gathered and produced for one titled
// section of the final document.
type SectionRecord struct {
	Title             string   `json:"title"`
	RawFindings       []string `json:"raw_findings"`
	Summary           string   `json:"summary,omitempty"`
	FollowUpQuestions []string `json:"follow_up_questions,omitempty"`
	RecursionDepth    int      `json:"recursion_depth"`
	DraftContent      string   `json:"draft_content,omitempty"`
	ReviewFeedback    string   `json:"review_feedback,omitempty"`
	RevisionAttempts  int      `json:"revision_attempts"`
}

// State is the single mutable record threaded through every stage of a run.
// One run owns exactly one State; nothing here is safe to share across
// concurrent runs.
type State struct {
	Topic   string   `json:"topic"`
	Outline []string `json:"outline,omitempty"`

	Sections       map[string]*SectionRecord `json:"sections"`
	CurrentSection string                    `json:"current_section,omitempty"`

	// Global dedup registers, shared across all sections so research
	// never revisits a URL or repeats a query.
	CollectedURLs    map[string]bool `json:"collected_urls"`
	CollectedQueries map[string]bool `json:"collected_queries"`

	References []string `json:"references,omitempty"`

	MainLoopIterations int    `json:"main_loop_iterations"`
	Limits             Limits `json:"limits"`

	ErrMessage    string   `json:"error_message,omitempty"`
	Status        string   `json:"status"`
	EventLog      []string `json:"event_log"`
	FinalDocument string   `json:"final_document,omitempty"`
}

// NewState creates the state for a single run.
func NewState(topic string, limits Limits) *State {
	if limits.MaxMainLoopIterations <= 0 && limits.MaxSearchesPerSection <= 0 {
		limits = DefaultLimits()
	}
	if limits.MaxSearchesPerSection <= 0 {
		limits.MaxSearchesPerSection = 1
	}
	if limits.MaxMainLoopIterations <= 0 {
		limits.MaxMainLoopIterations = 1
	}
	return &State{
		Topic:            topic,
		Sections:         make(map[string]*SectionRecord),
		CollectedURLs:    make(map[string]bool),
		CollectedQueries: make(map[string]bool),
		Limits:           limits,
		Status:           "Initialized",
	}
}

// Section returns the record for a title, if present.
func (s *State) Section(title string) (*SectionRecord, bool) {
	rec, ok := s.Sections[title]
	return rec, ok
}

// AddURL registers a URL in the global dedup set. Returns true if it was new.
func (s *State) AddURL(url string) bool {
	if url == "" || s.CollectedURLs[url] {
		return false
	}
	s.CollectedURLs[url] = true
	return true
}

// AddQuery registers a search query in the global dedup set. Returns true if
// it was new.
func (s *State) AddQuery(query string) bool {
	if query == "" || s.CollectedQueries[query] {
		return false
	}
	s.CollectedQueries[query] = true
	return true
}

// AddReference appends a citation string unless the exact string is already
// present. Returns true if appended.
func (s *State) AddReference(ref string) bool {
	if ref == "" {
		return false
	}
	for _, existing := range s.References {
		if existing == ref {
			return false
		}
	}
	s.References = append(s.References, ref)
	return true
}

// ExcludedURLs returns the collected URLs as a slice for search exclusion.
func (s *State) ExcludedURLs() []string {
	urls := make([]string, 0, len(s.CollectedURLs))
	for u := range s.CollectedURLs {
		urls = append(urls, u)
	}
	return urls
}

// Logf appends a timestamped entry to the event log. The log is for
// observability only and is never consulted for control decisions.
func (s *State) Logf(format string, args ...any) {
	entry := fmt.Sprintf("%s %s", time.Now().Format(time.RFC3339), fmt.Sprintf(format, args...))
	s.EventLog = append(s.EventLog, entry)
}

// Escalated reports whether the run recorded an error that halts it.
// Stage-local errors stay in ErrMessage for visibility after the run
// absorbed them and kept going; a run with a compiled document and a
// stage-local ErrMessage is degraded, not failed. Callers deciding
// success must use this, never a bare ErrMessage check.
func (s *State) Escalated() bool {
	return s.ErrMessage != "" && !isStageLocal(s.ErrMessage)
}

// SetStatus updates the human-readable status and mirrors it into the log.
func (s *State) SetStatus(format string, args ...any) {
	s.Status = fmt.Sprintf(format, args...)
	s.Logf("%s", s.Status)
}

// Reserved structural titles that the loop controller never dispatches to
// the section pipeline; the compiler backfills them instead.
var reservedTitles = map[string]bool{
	"introduction": true,
	"conclusion":   true,
	"references":   true,
}

func isReservedTitle(title string) bool {
	return reservedTitles[strings.ToLower(strings.TrimSpace(title))]
}
