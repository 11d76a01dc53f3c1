package main

import (
	"bytes"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func setupEnv(t *testing.T) {
	t.Helper()
	t.Setenv("DATA_DIR", t.TempDir())
	t.Setenv("DATA_BACKEND", "file")
	t.Setenv("HISTORY_ENABLED", "false")
	t.Setenv("AMQP_URL", "")
	t.Setenv("LOG_LEVEL", "error")
}

func TestProjectsLifecycle(t *testing.T) {
	setupEnv(t)

	out, err := run(t, "projects", "create", "Summer", "trip")
	if err != nil || strings.TrimSpace(out) != "1" {
		t.Fatalf("create: out=%q err=%v", out, err)
	}
	if _, err := run(t, "projects", "create", "Other"); err != nil {
		t.Fatal(err)
	}
	if _, err := run(t, "projects", "rename", "1", "Winter"); err != nil {
		t.Fatal(err)
	}
	if _, err := run(t, "projects", "delete", "2"); err != nil {
		t.Fatal(err)
	}

	out, err = run(t, "projects", "list")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "Winter") || strings.Contains(out, "Other") {
		t.Errorf("list output:\n%s", out)
	}

	out, err = run(t, "projects", "list", "--all")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "deleted") {
		t.Errorf("list --all should show the deleted project:\n%s", out)
	}

	if _, err := run(t, "projects", "restore", "2"); err != nil {
		t.Fatal(err)
	}
	out, err = run(t, "projects", "list", "--json")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, `"name": "Other"`) {
		t.Errorf("restored project missing from JSON list:\n%s", out)
	}
}

func TestProjectsErrors(t *testing.T) {
	setupEnv(t)

	if _, err := run(t, "projects", "delete", "7"); err == nil {
		t.Error("deleting an unknown project should fail")
	}
	if _, err := run(t, "projects", "rename", "abc", "x"); err == nil {
		t.Error("non-numeric id should fail")
	}
	if _, err := run(t, "projects", "create", " "); err == nil {
		t.Error("blank name should fail")
	}
}

func TestHistoryDisabled(t *testing.T) {
	setupEnv(t)
	if _, err := run(t, "projects", "create", "P"); err != nil {
		t.Fatal(err)
	}
	_, err := run(t, "history", "list", "1")
	if err == nil || !strings.Contains(err.Error(), "history is disabled") {
		t.Errorf("history list error = %v", err)
	}
}

func TestHistoryRestoreRefusedOnSQLite(t *testing.T) {
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git binary not available")
	}
	setupEnv(t)
	dir := t.TempDir()
	t.Setenv("DATA_DIR", dir)
	t.Setenv("DATA_BACKEND", "sqlite")
	t.Setenv("SQLITE_DB_PATH", filepath.Join(dir, "bil.db"))
	t.Setenv("HISTORY_ENABLED", "true")

	if _, err := run(t, "projects", "create", "P"); err != nil {
		t.Fatal(err)
	}
	_, err := run(t, "history", "restore", "1", "abcd")
	if err == nil || !strings.Contains(err.Error(), "requires the file backend") {
		t.Errorf("history restore error = %v", err)
	}
}
