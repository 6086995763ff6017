package main

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestSimulateThenInspect(t *testing.T) {
	db := filepath.Join(t.TempDir(), "profiles.db")

	out, err := execute(t, "simulate", "--db", db, "--player", "p1", "--profile", "smooth", "--seconds", "2")
	if err != nil {
		t.Fatalf("simulate: %v\n%s", err, out)
	}
	if !strings.Contains(out, "Frames:") {
		t.Fatalf("simulate output missing frame count:\n%s", out)
	}
	if !strings.Contains(out, "session_end") {
		t.Fatalf("simulate output missing final epoch:\n%s", out)
	}

	out, err = execute(t, "inspect", "--db", db)
	if err != nil {
		t.Fatalf("inspect players: %v", err)
	}
	if strings.TrimSpace(out) != "p1" {
		t.Fatalf("players = %q, want p1", out)
	}

	out, err = execute(t, "inspect", "--db", db, "--player", "p1")
	if err != nil {
		t.Fatalf("inspect versions: %v", err)
	}
	if !strings.HasPrefix(out, "VERSION") {
		t.Fatalf("inspect output:\n%s", out)
	}
}

func TestRollbackUnknownVersion(t *testing.T) {
	db := filepath.Join(t.TempDir(), "profiles.db")

	_, err := execute(t, "rollback", "--db", db, "--player", "p1", "--version", "missing")
	if err == nil {
		t.Fatal("expected error rolling back to an unknown version")
	}
}

func TestInvalidLogLevelRejected(t *testing.T) {
	_, err := execute(t, "inspect", "--db", filepath.Join(t.TempDir(), "profiles.db"), "--log-level", "loud")
	if err == nil || !strings.Contains(err.Error(), "config") {
		t.Fatalf("err = %v, want config error", err)
	}
	rootFlags.logLevel = ""
}
