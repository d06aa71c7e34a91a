package shared

import (
	"bytes"
	"strings"
	"testing"
)

func TestGenerateID(t *testing.T) {
	seen := map[string]bool{}
	for range 100 {
		id := GenerateID()
		if id == "" {
			t.Fatal("expected non-empty id")
		}
		if seen[id] {
			t.Fatalf("duplicate id generated: %s", id)
		}
		seen[id] = true
	}
}

func TestGenerateState(t *testing.T) {
	t.Run("URL Safe", func(t *testing.T) {
		state, err := GenerateState()
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if state == "" {
			t.Fatal("expected non-empty state")
		}
		if strings.ContainsAny(state, "+/=") {
			t.Errorf("expected URL-safe encoding, got %s", state)
		}
	})

	t.Run("Unique", func(t *testing.T) {
		a, _ := GenerateState()
		b, _ := GenerateState()
		if a == b {
			t.Error("expected distinct state tokens")
		}
	})
}

func TestMarshalJSON(t *testing.T) {
	data := map[string]int{"score": 87}

	t.Run("Compact", func(t *testing.T) {
		out, err := MarshalJSON(data, false)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if string(out) != `{"score":87}` {
			t.Errorf("unexpected output: %s", out)
		}
	})

	t.Run("Pretty", func(t *testing.T) {
		out, err := MarshalJSON(data, true)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if !strings.Contains(string(out), "\n") {
			t.Errorf("expected indented output, got %s", out)
		}
	})
}

func TestNewLogger(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := NewLogger(buf)

	logger.Info("hello", "key", "value")

	out := buf.String()
	if !strings.Contains(out, "hello") {
		t.Errorf("expected log output, got %s", out)
	}
	if !strings.Contains(out, "value") {
		t.Errorf("expected structured field in output, got %s", out)
	}
}

func TestOpenBrowser(t *testing.T) {
	t.Run("Unsupported Platform", func(t *testing.T) {
		original := getRuntime
		getRuntime = func() string { return "plan9" }
		defer func() { getRuntime = original }()

		if err := OpenBrowser("http://localhost"); err == nil {
			t.Error("expected error for unsupported platform")
		}
	})
}
