package main

import (
	"path/filepath"
	"strings"
	"testing"
)

func TestRunExportImportRoundTrip(t *testing.T) {
	source := newCLIHarness(t)
	source.mustRun(t, "user", "add", "--email", "dana@example.com", "--password", "pw", "--name", "Dana")
	as := []string{"--as", "dana@example.com"}
	projectID := extractID(t, source.mustRun(t, append(as, "projects", "create", "Garden")...))
	source.mustRun(t, append(as, "tasks", "create", "Plant", "--project", projectID, "--assign", "dana@example.com")...)
	source.mustRun(t, append(as, "tasks", "create", "Buy seeds")...)

	stdout := source.mustRun(t, "export")
	if !strings.Contains(stdout, `"version": "taskdeck.snapshot.v1"`) || !strings.Contains(stdout, `"password_hash"`) {
		t.Fatalf("unexpected export to stdout\n%s", stdout)
	}

	snapPath := filepath.Join(t.TempDir(), "out", "snapshot.json")
	out := source.mustRun(t, "export", "--out", snapPath)
	if !strings.Contains(out, "exported 1 projects, 2 tasks") {
		t.Fatalf("unexpected export output %q", out)
	}

	target := newCLIHarness(t)
	out = target.mustRun(t, "import", "--in", snapPath)
	if !strings.Contains(out, "imported 1 projects, 2 tasks") {
		t.Fatalf("unexpected import output %q", out)
	}
	if out := target.mustRun(t, "projects", "list"); !strings.Contains(out, "Garden") {
		t.Fatalf("expected imported project\n%s", out)
	}
	out = target.mustRun(t, "--as", "dana@example.com", "tasks", "list", "--tab", "personal")
	if !strings.Contains(out, "Buy seeds") {
		t.Fatalf("expected imported personal task\n%s", out)
	}

	if _, err := target.run(t, "", "import"); err == nil || !strings.Contains(err.Error(), "--in is required") {
		t.Fatalf("expected missing --in error, got %v", err)
	}
}
