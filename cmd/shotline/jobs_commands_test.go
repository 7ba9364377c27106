package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestJobsListShowAndRemove(t *testing.T) {
	env := setupCLITestEnv(t)
	runRescore(t, env, "job-a")

	out, _, err := runCLI(t, []string{"--json", "jobs", "list"}, env.configPath)
	if err != nil {
		t.Fatalf("jobs list: %v", err)
	}
	var jobs []jobOutput
	if err := json.Unmarshal([]byte(out), &jobs); err != nil {
		t.Fatalf("decode: %v\n%s", err, out)
	}
	if len(jobs) != 1 || jobs[0].ID != "job-a" || jobs[0].Status != "succeeded" || jobs[0].Name != "mug" {
		t.Fatalf("unexpected jobs %+v", jobs)
	}

	out, _, err = runCLI(t, []string{"jobs", "list", "--status", "failed"}, env.configPath)
	if err != nil {
		t.Fatalf("jobs list --status: %v", err)
	}
	requireContains(t, out, "No jobs recorded")
	if _, _, err := runCLI(t, []string{"jobs", "list", "--status", "bogus"}, env.configPath); err == nil {
		t.Fatal("expected unknown status to fail")
	}

	out, _, err = runCLI(t, []string{"jobs", "show", "job-a"}, env.configPath)
	if err != nil {
		t.Fatalf("jobs show: %v", err)
	}
	requireContains(t, out, "rescore")
	requireContains(t, out, "score-frames-per-second")

	out, _, err = runCLI(t, []string{"jobs", "logs", "job-a"}, env.configPath)
	if err != nil {
		t.Fatalf("jobs logs: %v", err)
	}
	requireContains(t, out, "job started")
	requireContains(t, out, "event_type=job_start")

	out, _, err = runCLI(t, []string{"jobs", "logs", "job-a", "--raw", "--lines", "1"}, env.configPath)
	if err != nil {
		t.Fatalf("jobs logs --raw: %v", err)
	}
	if lines := strings.Split(strings.TrimSpace(out), "\n"); len(lines) != 1 || !strings.HasPrefix(lines[0], "{") {
		t.Fatalf("expected one raw JSON line, got %q", out)
	}

	out, _, err = runCLI(t, []string{"jobs", "logs", "job-a", "--stage", "extract-frames"}, env.configPath)
	if err != nil {
		t.Fatalf("jobs logs --stage: %v", err)
	}
	if strings.Contains(out, "job started") {
		t.Fatalf("stage filter kept job-level lines: %q", out)
	}
	if _, _, err := runCLI(t, []string{"jobs", "logs", "job-a", "--level", "loud"}, env.configPath); err == nil {
		t.Fatal("expected unknown level to fail")
	}
	if _, _, err := runCLI(t, []string{"jobs", "logs", "missing"}, env.configPath); err == nil {
		t.Fatal("expected missing job log to fail")
	}

	out, _, err = runCLI(t, []string{"jobs", "status"}, env.configPath)
	if err != nil {
		t.Fatalf("jobs status: %v", err)
	}
	requireContains(t, out, "succeeded")

	out, _, err = runCLI(t, []string{"jobs", "remove", "job-a"}, env.configPath)
	if err != nil {
		t.Fatalf("jobs remove: %v", err)
	}
	requireContains(t, out, "Removed job job-a")
	if _, err := os.Stat(filepath.Join(env.cfg.Paths.WorkDir, "job-a")); !os.IsNotExist(err) {
		t.Fatalf("expected workspace removed, stat err=%v", err)
	}
	if _, _, err := runCLI(t, []string{"jobs", "show", "job-a"}, env.configPath); err == nil {
		t.Fatal("expected removed job to be missing")
	}
}

func TestJobsClean(t *testing.T) {
	env := setupCLITestEnv(t)
	stale := filepath.Join(env.cfg.Paths.WorkDir, "old-job")
	if err := os.MkdirAll(stale, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	old := time.Now().Add(-time.Hour)
	if err := os.Chtimes(stale, old, old); err != nil {
		t.Fatalf("chtimes: %v", err)
	}

	out, _, err := runCLI(t, []string{"jobs", "clean", "--older-than", "0s", "--reset-interrupted"}, env.configPath)
	if err != nil {
		t.Fatalf("jobs clean: %v", err)
	}
	requireContains(t, out, "Marked 0 interrupted jobs as failed")
	requireContains(t, out, "Cleaned 1 workspace")
	if _, err := os.Stat(stale); !os.IsNotExist(err) {
		t.Fatalf("expected stale workspace removed, stat err=%v", err)
	}
}
