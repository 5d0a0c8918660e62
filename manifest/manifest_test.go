package manifest

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadManifest(t *testing.T) {
	// Create a temporary directory with a warden.toml
	dir := t.TempDir()
	tomlContent := `
[isolate]
yield-every = "1s"
yield-window = "200ms"
check-locks = true

[mutator]
period = "250ms"
step = 7.0
field = "counter"

[server]
listen = ":9900"
handle-ttl = "10m"
sweep-every = "1m"
`
	if err := os.WriteFile(filepath.Join(dir, "warden.toml"), []byte(tomlContent), 0644); err != nil {
		t.Fatal(err)
	}

	m, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if m.Isolate.YieldEvery.Std() != time.Second {
		t.Errorf("yield-every = %v, want 1s", m.Isolate.YieldEvery.Std())
	}
	if m.Isolate.YieldWindow.Std() != 200*time.Millisecond {
		t.Errorf("yield-window = %v, want 200ms", m.Isolate.YieldWindow.Std())
	}
	if !m.Isolate.CheckLocks {
		t.Error("check-locks = false, want true")
	}
	if m.Mutator.Period.Std() != 250*time.Millisecond {
		t.Errorf("mutator period = %v, want 250ms", m.Mutator.Period.Std())
	}
	if m.Mutator.Step != 7 {
		t.Errorf("mutator step = %v, want 7", m.Mutator.Step)
	}
	if m.Mutator.Field != "counter" {
		t.Errorf("mutator field = %q, want counter", m.Mutator.Field)
	}
	if m.Server.Listen != ":9900" {
		t.Errorf("server listen = %q, want :9900", m.Server.Listen)
	}
	if m.Server.HandleTTL.Std() != 10*time.Minute {
		t.Errorf("handle-ttl = %v, want 10m", m.Server.HandleTTL.Std())
	}
}

func TestLoadManifestDefaults(t *testing.T) {
	dir := t.TempDir()
	tomlContent := `
[isolate]
yield-every = "1s"
`
	if err := os.WriteFile(filepath.Join(dir, "warden.toml"), []byte(tomlContent), 0644); err != nil {
		t.Fatal(err)
	}

	m, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if m.Mutator.Period.Std() != 500*time.Millisecond {
		t.Errorf("default period = %v, want 500ms", m.Mutator.Period.Std())
	}
	if m.Mutator.Step != 42 {
		t.Errorf("default step = %v, want 42", m.Mutator.Step)
	}
	if m.Mutator.Field != "x" {
		t.Errorf("default field = %q, want x", m.Mutator.Field)
	}
	if m.Server.Listen != ":4567" {
		t.Errorf("default listen = %q, want :4567", m.Server.Listen)
	}
}

func TestLoadManifestBadDuration(t *testing.T) {
	dir := t.TempDir()
	tomlContent := `
[mutator]
period = "not-a-duration"
`
	if err := os.WriteFile(filepath.Join(dir, "warden.toml"), []byte(tomlContent), 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := Load(dir); err == nil {
		t.Fatal("Load should reject an unparseable duration")
	}
}

func TestFindAndLoad(t *testing.T) {
	// Create nested directory structure
	dir := t.TempDir()
	subDir := filepath.Join(dir, "a", "b", "c")
	if err := os.MkdirAll(subDir, 0755); err != nil {
		t.Fatal(err)
	}

	tomlContent := `[mutator]
field = "found"
`
	if err := os.WriteFile(filepath.Join(dir, "warden.toml"), []byte(tomlContent), 0644); err != nil {
		t.Fatal(err)
	}

	// Should find manifest when starting from a deep subdirectory
	m, err := FindAndLoad(subDir)
	if err != nil {
		t.Fatalf("FindAndLoad failed: %v", err)
	}
	if m == nil {
		t.Fatal("FindAndLoad returned nil")
	}
	if m.Mutator.Field != "found" {
		t.Errorf("mutator field = %q, want found", m.Mutator.Field)
	}
}

func TestFindAndLoadNotFound(t *testing.T) {
	dir := t.TempDir()
	m, err := FindAndLoad(dir)
	if err != nil {
		t.Fatalf("FindAndLoad error: %v", err)
	}
	if m != nil {
		t.Errorf("FindAndLoad = %+v, want nil when no warden.toml exists", m)
	}
}
