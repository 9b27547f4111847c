package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"ferry/internal/store"
	"ferry/internal/testsupport"
)

func TestStatusOverSocket(t *testing.T) {
	env := setupCLITestEnv(t)
	testsupport.NewArchive(t, env.store, "takeout-001.zip", "takeout-001.zip", 1024)

	out, _, err := runCLI(t, []string{"status"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	requireContains(t, out, "discovered")
	requireContains(t, out, "DAEMON")
}

func TestRenderTableAlignsNumericColumns(t *testing.T) {
	out := renderTable([]column{
		{title: "Phase"},
		{title: "Count", numeric: true},
	}, [][]string{
		{"discovered", "3"},
		{"uploaded", "12"},
	})
	lines := strings.Split(out, "\n")
	if len(lines) < 4 {
		t.Fatalf("table too short:\n%s", out)
	}
	requireContains(t, out, "Phase")
	requireContains(t, out, "discovered")
	requireContains(t, out, "12")

	// A short row must pad out to the declared column count.
	padded := renderTable([]column{{title: "A"}, {title: "B"}}, [][]string{{"only"}})
	requireContains(t, padded, "only")
}

func TestRenderStatusLineSkipsColorForPlainWriters(t *testing.T) {
	line := renderStatusLine("daemon", severityOK, "pid 42", false)
	requireContains(t, line, "daemon")
	requireContains(t, line, "ok")
	requireContains(t, line, "pid 42")
	if strings.Contains(line, "\x1b[") {
		t.Fatalf("uncolored line carries escape codes: %q", line)
	}
	colored := renderStatusLine("daemon", severityError, "boom", true)
	if !strings.Contains(colored, ansiRed) {
		t.Fatalf("error line missing color: %q", colored)
	}
}

func TestArchivesListShowsPhase(t *testing.T) {
	env := setupCLITestEnv(t)
	testsupport.NewArchive(t, env.store, "takeout-001.zip", "takeout-001.zip", 4096)

	out, _, err := runCLI(t, []string{"archives", "list"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("archives list: %v", err)
	}
	requireContains(t, out, "takeout-001.zip")
	requireContains(t, out, "discovered")
}

func TestItemsRetryOverSocket(t *testing.T) {
	env := setupCLITestEnv(t)
	ctx := context.Background()

	testsupport.NewArchive(t, env.store, "takeout-001.zip", "takeout-001.zip", 1024)
	item := testsupport.NewItem(t, env.store, "takeout-001.zip", "Takeout/a.jpg", "fp-a")
	if err := env.store.TransitionItem(ctx, item.ID, store.ItemExtracted, store.ItemMerging); err != nil {
		t.Fatalf("claim item: %v", err)
	}
	if err := env.store.MarkItemFailed(ctx, item.ID, store.ItemMerging, "permanent", "boom"); err != nil {
		t.Fatalf("fail item: %v", err)
	}

	out, _, err := runCLI(t, []string{"items", "failed"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("items failed: %v", err)
	}
	requireContains(t, out, "Takeout/a.jpg")

	out, _, err = runCLI(t, []string{"items", "retry"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("items retry: %v", err)
	}
	requireContains(t, out, "Re-admitted 1 item(s)")
}

func TestPauseResume(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"pause", "--reason", "inspecting"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("pause: %v", err)
	}
	requireContains(t, out, "Cleanup paused")

	state, err := env.store.GetRunState(context.Background())
	if err != nil {
		t.Fatalf("GetRunState: %v", err)
	}
	if !state.Paused {
		t.Fatal("store should record pause")
	}

	out, _, err = runCLI(t, []string{"resume"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	requireContains(t, out, "Cleanup resumed")
}

func TestConfigInitAndValidate(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"config", "validate"}, env.socketPath, "")
	if err != nil {
		t.Fatalf("config validate: %v", err)
	}
	requireContains(t, out, "Configuration valid")

	tmp := t.TempDir()
	target := filepath.Join(tmp, "config.toml")
	out, _, err = runCLI(t, []string{"config", "init", "--path", target}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	requireContains(t, out, "Wrote sample configuration")

	if _, err := os.Stat(target); err != nil {
		t.Fatalf("expected config file at %s: %v", target, err)
	}
}

func TestLogsPrintsTrailingLines(t *testing.T) {
	env := setupCLITestEnv(t)
	logPath := filepath.Join(env.cfg.Paths.LogDir, "ferry.log")
	content := "line one\nline two\nline three\n"
	if err := os.WriteFile(logPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write log: %v", err)
	}

	out, _, err := runCLI(t, []string{"logs", "-n", "2"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("logs: %v", err)
	}
	requireContains(t, out, "line two")
	requireContains(t, out, "line three")
	if strings.Contains(out, "line one") {
		t.Fatalf("expected only trailing lines, got %q", out)
	}
}

func TestConfigShowPrintsResolvedValues(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"config", "show"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("config show: %v", err)
	}
	requireContains(t, out, "[uploader]")
	requireContains(t, out, "staging_dir")
	requireContains(t, out, env.cfg.Paths.StagingDir)
}
