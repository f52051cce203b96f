package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadEnvMissingFileIsNoOp(t *testing.T) {
	if err := LoadEnv(filepath.Join(t.TempDir(), "absent.env")); err != nil {
		t.Fatalf("missing file should be ignored: %v", err)
	}
}

func TestLoadEnvParsesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	content := `
# comment
PLAIN=value
QUOTED="with spaces"
export EXPORTED='single'
NOEQUALS
EXISTING=overridden
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}
	t.Setenv("EXISTING", "original")

	for _, key := range []string{"PLAIN", "QUOTED", "EXPORTED"} {
		os.Unsetenv(key)
		t.Cleanup(func() { os.Unsetenv(key) })
	}
	if err := LoadEnv(path); err != nil {
		t.Fatalf("load env: %v", err)
	}
	if got := os.Getenv("PLAIN"); got != "value" {
		t.Fatalf("PLAIN = %q", got)
	}
	if got := os.Getenv("QUOTED"); got != "with spaces" {
		t.Fatalf("QUOTED = %q", got)
	}
	if got := os.Getenv("EXPORTED"); got != "single" {
		t.Fatalf("EXPORTED = %q", got)
	}
	if got := os.Getenv("EXISTING"); got != "original" {
		t.Fatalf("existing variable was clobbered: %q", got)
	}
}
