package logging

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/charmbracelet/log"
)

func TestGenerateTaskID(t *testing.T) {
	id := GenerateTaskID()
	if len(id) != 8 {
		t.Errorf("GenerateTaskID() length = %d, want 8", len(id))
	}
	if id2 := GenerateTaskID(); id == id2 {
		t.Errorf("GenerateTaskID() generated duplicate IDs: %s", id)
	}
}

func TestTaskIDContext(t *testing.T) {
	ctx := context.Background()
	if got := GetTaskID(ctx); got != "" {
		t.Errorf("GetTaskID(empty context) = %q, want empty string", got)
	}

	ctx = WithTaskID(ctx, "test1234")
	if got := GetTaskID(ctx); got != "test1234" {
		t.Errorf("GetTaskID() = %q, want %q", got, "test1234")
	}
	if got := GetTaskID(EnsureTaskID(ctx)); got != "test1234" {
		t.Errorf("EnsureTaskID replaced existing ID: %q", got)
	}
	if got := GetTaskID(EnsureTaskID(context.Background())); len(got) != 8 {
		t.Errorf("EnsureTaskID() = %q, want generated ID", got)
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]log.Level{
		"debug":  log.DebugLevel,
		" WARN ": log.WarnLevel,
		"error":  log.ErrorLevel,
		"bogus":  log.InfoLevel,
		"":       log.InfoLevel,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestFromContext_TagsTaskID(t *testing.T) {
	prev := log.Default()
	t.Cleanup(func() { log.SetDefault(prev) })

	var buf bytes.Buffer
	Setup("debug", &buf)

	FromContext(WithTaskID(context.Background(), "abcd0001")).Info("sync started", "provider", "google")
	out := buf.String()
	if !strings.Contains(out, "task=abcd0001") || !strings.Contains(out, "provider=google") {
		t.Fatalf("expected task and provider keys in %q", out)
	}

	buf.Reset()
	FromContext(context.Background()).Debug("plain")
	if strings.Contains(buf.String(), "task=") {
		t.Fatalf("unexpected task key in %q", buf.String())
	}
}
