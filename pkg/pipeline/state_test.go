package pipeline

import "testing"

func TestNewStateDefaults(t *testing.T) {
	s := NewState("topic", Limits{})
	if s.Limits != DefaultLimits() {
		t.Errorf("zero limits not replaced with defaults: %+v", s.Limits)
	}
	if s.Status != "Initialized" {
		t.Errorf("status = %q", s.Status)
	}
}

func TestNewStateKeepsZeroCaps(t *testing.T) {
	// Explicit zero recursion/revision caps are a valid configuration
	// and must not be rewritten to defaults.
	limits := Limits{
		MaxSearchesPerSection: 3,
		MaxRevisionCycles:     0,
		MaxMainLoopIterations: 5,
		MaxRecursionDepth:     0,
	}
	s := NewState("topic", limits)
	if s.Limits.MaxRevisionCycles != 0 || s.Limits.MaxRecursionDepth != 0 {
		t.Errorf("zero caps rewritten: %+v", s.Limits)
	}
}

func TestAddURLDedup(t *testing.T) {
	s := NewState("t", DefaultLimits())
	if !s.AddURL("https://a") {
		t.Error("first add should report new")
	}
	if s.AddURL("https://a") {
		t.Error("second add should report duplicate")
	}
	if s.AddURL("") {
		t.Error("empty URL should be rejected")
	}
	if len(s.CollectedURLs) != 1 {
		t.Errorf("CollectedURLs = %v", s.CollectedURLs)
	}
}

func TestAddReferenceDedup(t *testing.T) {
	s := NewState("t", DefaultLimits())
	s.AddReference("A (https://a)")
	s.AddReference("B (https://b)")
	s.AddReference("A (https://a)")
	if len(s.References) != 2 {
		t.Errorf("References = %v, want 2 unique entries", s.References)
	}
	if s.References[0] != "A (https://a)" {
		t.Error("insertion order not preserved")
	}
}

func TestIsReservedTitle(t *testing.T) {
	for _, title := range []string{"Introduction", "conclusion", " REFERENCES "} {
		if !isReservedTitle(title) {
			t.Errorf("%q should be reserved", title)
		}
	}
	if isReservedTitle("Background") {
		t.Error("Background is not reserved")
	}
}

func TestIsStageLocal(t *testing.T) {
	tests := []struct {
		msg  string
		want bool
	}{
		{"research stage: section \"X\": boom", true},
		{"write stage: section \"X\": boom", true},
		{"review stage: section \"X\": boom", true},
		{"revise stage: section \"X\": boom", true},
		{"analyze stage: section \"X\": malformed analysis output", false},
		{"plan stage: model unavailable", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := isStageLocal(tt.msg); got != tt.want {
			t.Errorf("isStageLocal(%q) = %v, want %v", tt.msg, got, tt.want)
		}
	}
}

func TestEscalated(t *testing.T) {
	tests := []struct {
		msg  string
		want bool
	}{
		{"", false},
		{"research stage: section \"X\": search backend unreachable", false},
		{"revise stage: section \"X\": boom", false},
		{"analyze stage: section \"X\": malformed analysis output", true},
		{"plan stage: model unavailable", true},
	}
	for _, tt := range tests {
		s := NewState("topic", DefaultLimits())
		s.ErrMessage = tt.msg
		if got := s.Escalated(); got != tt.want {
			t.Errorf("Escalated() with %q = %v, want %v", tt.msg, got, tt.want)
		}
	}
}
