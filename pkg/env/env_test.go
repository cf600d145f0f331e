package env

import (
	"testing"
	"time"
)

func TestGetPrefersPrefixedKey(t *testing.T) {
	t.Setenv("LOG_FORMAT", "json")
	t.Setenv("DUKA_LOG_FORMAT", "console")
	if got := Get("LOG_FORMAT", "text"); got != "console" {
		t.Fatalf("expected prefixed value, got %q", got)
	}
}

func TestGetFallsBackToBareKeyThenDefault(t *testing.T) {
	t.Setenv("DUKA_REGION", "")
	t.Setenv("REGION", " rw ")
	if got := Get("REGION", "ke"); got != "rw" {
		t.Fatalf("expected bare value, got %q", got)
	}
	if got := Get("DUKA_UNSET_FOR_TEST", "fallback"); got != "fallback" {
		t.Fatalf("expected fallback, got %q", got)
	}
}

func TestBoolAndDuration(t *testing.T) {
	t.Setenv("DUKA_FLAG", "true")
	t.Setenv("DUKA_BROKEN", "maybe")
	t.Setenv("DUKA_WAIT", "45s")
	t.Setenv("DUKA_NEGATIVE", "-1s")

	if !Bool("FLAG", false) || Bool("BROKEN", false) {
		t.Fatal("unexpected bool parsing")
	}
	if Duration("WAIT", time.Second) != 45*time.Second {
		t.Fatal("expected 45s")
	}
	if Duration("NEGATIVE", time.Second) != time.Second {
		t.Fatal("negative durations fall back")
	}
}
