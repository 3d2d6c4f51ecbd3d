package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/mikeboe/report-agent/pkg/pipeline"
)

func TestLoadLimitsOverridesBase(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "limits.yaml")
	content := "maxRevisionCycles: 0\nmaxRecursionDepth: 1\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	base := pipeline.DefaultLimits()
	limits, err := LoadLimits(path, base)
	if err != nil {
		t.Fatal(err)
	}
	if limits.MaxRevisionCycles != 0 {
		t.Errorf("MaxRevisionCycles = %d, want 0", limits.MaxRevisionCycles)
	}
	if limits.MaxRecursionDepth != 1 {
		t.Errorf("MaxRecursionDepth = %d, want 1", limits.MaxRecursionDepth)
	}
	// Untouched fields keep the base value.
	if limits.MaxSearchesPerSection != base.MaxSearchesPerSection {
		t.Errorf("MaxSearchesPerSection = %d, want base %d", limits.MaxSearchesPerSection, base.MaxSearchesPerSection)
	}
}

func TestLoadLimitsMissingFile(t *testing.T) {
	base := pipeline.DefaultLimits()
	limits, err := LoadLimits("/nonexistent/limits.yaml", base)
	if err == nil {
		t.Fatal("expected error for missing file")
	}
	if limits != base {
		t.Error("base limits must survive a failed load")
	}
}
