package utils

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

func TestPromptTrimsAnswer(t *testing.T) {
	var out bytes.Buffer
	r := NewLineReader(strings.NewReader("  Roadmap  \n"), &out)

	got, err := r.Prompt("Board name: ")
	if err != nil {
		t.Fatalf("Prompt failed: %v", err)
	}
	if got != "Roadmap" {
		t.Errorf("Prompt = %q, want Roadmap", got)
	}
	if out.String() != "Board name: " {
		t.Errorf("prompt output = %q", out.String())
	}
}

func TestReadLineKeepsWhitespace(t *testing.T) {
	r := NewLineReader(strings.NewReader("  spaced \n"), nil)
	got, err := r.ReadLine()
	if err != nil {
		t.Fatalf("ReadLine failed: %v", err)
	}
	if got != "  spaced " {
		t.Errorf("ReadLine = %q", got)
	}
}

func TestPromptEndOfInput(t *testing.T) {
	r := NewLineReader(strings.NewReader(""), nil)
	if _, err := r.Prompt("> "); !errors.Is(err, ErrNoInput) {
		t.Errorf("expected ErrNoInput, got %v", err)
	}
}

func TestPromptRequiredRetriesOnEmpty(t *testing.T) {
	var out bytes.Buffer
	r := NewLineReader(strings.NewReader("\n   \nSprint\n"), &out)

	got, err := r.PromptRequired("List name: ")
	if err != nil {
		t.Fatalf("PromptRequired failed: %v", err)
	}
	if got != "Sprint" {
		t.Errorf("PromptRequired = %q", got)
	}
	if n := strings.Count(out.String(), "A value is required."); n != 2 {
		t.Errorf("expected 2 retries, got %d:\n%s", n, out.String())
	}
}

func TestPromptRequiredEndOfInput(t *testing.T) {
	r := NewLineReader(strings.NewReader("\n"), nil)
	if _, err := r.PromptRequired("Name: "); !errors.Is(err, ErrNoInput) {
		t.Errorf("expected ErrNoInput, got %v", err)
	}
}

func TestSharedReaderKeepsBufferedLines(t *testing.T) {
	r := NewLineReader(strings.NewReader("create\nRoadmap\nview\n"), nil)

	for _, want := range []string{"create", "Roadmap", "view"} {
		got, err := r.Prompt("")
		if err != nil {
			t.Fatalf("Prompt failed: %v", err)
		}
		if got != want {
			t.Errorf("got %q, want %q", got, want)
		}
	}
}

func TestPromptYesNo(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"y\n", true},
		{"YES\n", true},
		{"n\n", false},
		{"No\n", false},
		{"maybe\nwhat\ny\n", true},
		{"", false},
	}
	for _, tt := range tests {
		var out bytes.Buffer
		r := NewLineReader(strings.NewReader(tt.input), &out)
		if got := r.PromptYesNo("Delete?"); got != tt.want {
			t.Errorf("PromptYesNo(%q) = %v, want %v", tt.input, got, tt.want)
		}
		if !strings.Contains(out.String(), "Delete? (y/n): ") {
			t.Errorf("missing question in %q", out.String())
		}
	}
}
