package dotenv

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoad_MissingFileIsNoop(t *testing.T) {
	t.Parallel()
	n, err := Load(filepath.Join(t.TempDir(), ".env"), true)
	if err != nil || n != 0 {
		t.Fatalf("Load missing file = %d, %v", n, err)
	}
}

func writeEnvFile(t *testing.T) string {
	t.Helper()
	envPath := filepath.Join(t.TempDir(), ".env")
	content := "" +
		"# comment\n" +
		"SANTA_FROM_FILE=loaded\n" +
		"SANTA_QUOTED=\"hello world\"\n" +
		"export SANTA_EXPORTED=ok\n" +
		"SANTA_COMMENTED=value # trailing\n" +
		"SANTA_EXISTING=from_file\n"
	if err := os.WriteFile(envPath, []byte(content), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}
	return envPath
}

func TestLoad_OverrideReplacesExisting(t *testing.T) {
	envPath := writeEnvFile(t)
	t.Setenv("SANTA_EXISTING", "already_set")
	t.Setenv("SANTA_FROM_FILE", "")

	n, err := Load(envPath, true)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if n != 5 {
		t.Fatalf("set=%d, want 5", n)
	}
	if got := os.Getenv("SANTA_EXISTING"); got != "from_file" {
		t.Fatalf("SANTA_EXISTING=%q, want file value", got)
	}
	if got := os.Getenv("SANTA_QUOTED"); got != "hello world" {
		t.Fatalf("SANTA_QUOTED=%q", got)
	}
	if got := os.Getenv("SANTA_EXPORTED"); got != "ok" {
		t.Fatalf("SANTA_EXPORTED=%q", got)
	}
	if got := os.Getenv("SANTA_COMMENTED"); got != "value" {
		t.Fatalf("SANTA_COMMENTED=%q", got)
	}
}

func TestLoad_PreservesExistingWithoutOverride(t *testing.T) {
	envPath := writeEnvFile(t)
	t.Setenv("SANTA_EXISTING", "already_set")
	t.Setenv("SANTA_FROM_FILE", "")
	os.Unsetenv("SANTA_FROM_FILE")

	if _, err := Load(envPath, false); err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if got := os.Getenv("SANTA_EXISTING"); got != "already_set" {
		t.Fatalf("SANTA_EXISTING=%q, want existing value preserved", got)
	}
	if got := os.Getenv("SANTA_FROM_FILE"); got != "loaded" {
		t.Fatalf("SANTA_FROM_FILE=%q", got)
	}
}

func TestParse_SkipsMalformedLines(t *testing.T) {
	vars, err := Parse(strings.NewReader("NOEQUALS\n=novalue\nA='x # y'\n"))
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	if len(vars) != 1 || vars[0] != (Var{Key: "A", Value: "x # y"}) {
		t.Fatalf("vars=%+v", vars)
	}
}
