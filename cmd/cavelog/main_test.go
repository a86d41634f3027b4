package main

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/cavelog/cavelog/internal/app"
)

func testEnv(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("SECRET_KEY", "test-secret")
	t.Setenv("DATABASE_URL", "file:"+filepath.Join(dir, "cavelog.db"))
	return filepath.Join(dir, "config.yaml")
}

func TestValidatePort(t *testing.T) {
	if err := validatePort(0); err == nil {
		t.Fatalf("expected port 0 to be rejected")
	}
	if err := validatePort(70000); err == nil {
		t.Fatalf("expected port 70000 to be rejected")
	}
	if err := validatePort(8000); err != nil {
		t.Fatalf("expected port 8000 to be accepted, got %v", err)
	}
}

func TestRun_UnknownCommand(t *testing.T) {
	path := testEnv(t)
	var out bytes.Buffer
	err := run(context.Background(), []string{"-config", path, "bogus"}, strings.NewReader(""), &out)
	if err == nil || !strings.Contains(err.Error(), "bogus") {
		t.Fatalf("expected unknown command error, got %v", err)
	}
}

func TestRun_NotifyAllDeclined(t *testing.T) {
	path := testEnv(t)
	var out bytes.Buffer
	err := run(context.Background(), []string{"-config", path, "notify_all_users", "/news/", "New", "feature"}, strings.NewReader("no\n"), &out)
	if !errors.Is(err, app.ErrNotConfirmed) {
		t.Fatalf("expected ErrNotConfirmed, got %v", err)
	}
	if !strings.Contains(out.String(), "Message: New feature") {
		t.Fatalf("expected prompt to echo the message, got %q", out.String())
	}
}

func TestRun_NotifyAllRequiresArguments(t *testing.T) {
	path := testEnv(t)
	var out bytes.Buffer
	if err := run(context.Background(), []string{"-config", path, "notify_all_users", "/news/"}, strings.NewReader(""), &out); err == nil {
		t.Fatalf("expected missing message to be rejected")
	}
}
