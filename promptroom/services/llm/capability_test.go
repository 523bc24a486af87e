package llm

import (
	"math"
	"os"
	"path/filepath"
	"testing"
)

func TestResolveFamily(t *testing.T) {
	caps := DefaultCapabilityTable()
	cases := []struct {
		model string
		want  Family
	}{
		{"gpt-4o-mini", FamilyStandard},
		{"gpt-4.1", FamilyStandard},
		{"o1-preview", FamilyReasoning},
		{"o3-mini", FamilyReasoning},
		{"o4-mini", FamilyReasoning},
		{"gpt-5", FamilyFlagship},
		{"gpt-5-mini", FamilyFlagship},
		{"something-else", FamilyStandard},
	}
	for _, c := range cases {
		if got := caps.Resolve(c.model); got != c.want {
			t.Errorf("Resolve(%q) = %q, want %q", c.model, got, c.want)
		}
	}
}

func TestTemperatureSupport(t *testing.T) {
	caps := DefaultCapabilityTable()
	if caps.SupportsCustomTemperature("o1-preview") {
		t.Errorf("reasoning family must not support custom temperature")
	}
	if caps.SupportsCustomTemperature("gpt-5") {
		t.Errorf("flagship family must not support custom temperature")
	}
	if !caps.SupportsCustomTemperature("gpt-4o-mini") {
		t.Errorf("standard family should support custom temperature")
	}
}

func TestTokenLimitParam(t *testing.T) {
	caps := DefaultCapabilityTable()
	if got := caps.TokenLimitParam("gpt-4o-mini"); got != "max_tokens" {
		t.Errorf("standard family token param = %q", got)
	}
	if got := caps.TokenLimitParam("gpt-5"); got != "max_completion_tokens" {
		t.Errorf("flagship family token param = %q", got)
	}
	if !caps.Profile("o1-preview").OmitTokenLimit {
		t.Errorf("reasoning family should omit the token limit")
	}
}

func TestSanitizeTemperature(t *testing.T) {
	cases := []struct {
		in   float64
		want float64
	}{
		{math.NaN(), 0.7},
		{math.Inf(1), 0.7},
		{5, 2},
		{-1, 0},
		{1.3, 1.3},
		{0, 0},
	}
	for _, c := range cases {
		if got := SanitizeTemperature(c.in); got != c.want {
			t.Errorf("SanitizeTemperature(%v) = %v, want %v", c.in, got, c.want)
		}
	}
}

func TestBuildRequestMessagesReasoningEmptyHistory(t *testing.T) {
	msgs := BuildRequestMessages("P", nil, true)
	if len(msgs) != 1 {
		t.Fatalf("expected 1 turn, got %d", len(msgs))
	}
	if msgs[0].Role != "user" || msgs[0].Content != "P" {
		t.Errorf("unexpected turn: %+v", msgs[0])
	}
}

func TestBuildRequestMessagesStandard(t *testing.T) {
	msgs := BuildRequestMessages("P", []HistoryEntry{{SenderName: "A", Text: "hi"}}, false)
	if len(msgs) != 2 {
		t.Fatalf("expected 2 turns, got %d", len(msgs))
	}
	if msgs[0].Role != "system" || msgs[0].Content != "P" {
		t.Errorf("unexpected system turn: %+v", msgs[0])
	}
	if msgs[1].Role != "user" || msgs[1].Content != "A: hi" {
		t.Errorf("unexpected user turn: %+v", msgs[1])
	}
}

func TestBuildRequestMessagesReasoningPrependsPrompt(t *testing.T) {
	history := []HistoryEntry{
		{SenderName: "A", Text: "hi"},
		{SenderName: "B", Text: "yo"},
	}
	msgs := BuildRequestMessages("P", history, true)
	if len(msgs) != 2 {
		t.Fatalf("expected 2 turns, got %d", len(msgs))
	}
	if msgs[0].Content != "P\n\nA: hi" {
		t.Errorf("prompt not prepended to first turn: %q", msgs[0].Content)
	}
	if msgs[1].Content != "B: yo" {
		t.Errorf("unexpected second turn: %q", msgs[1].Content)
	}
}

func TestBuildRequestMessagesBlankPromptUsesDefault(t *testing.T) {
	msgs := BuildRequestMessages("  ", nil, false)
	if msgs[0].Content != DefaultSystemPrompt {
		t.Errorf("blank prompt should fall back to default, got %q", msgs[0].Content)
	}
}

func TestLoadCapabilityTable(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "models.yaml")
	data := []byte("families:\n  reasoning:\n    prefixes: [\"r1\"]\n  flagship:\n    prefixes: [\"big\"]\n")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	caps, err := LoadCapabilityTable(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if got := caps.Resolve("r1-large"); got != FamilyReasoning {
		t.Errorf("Resolve(r1-large) = %q", got)
	}
	if got := caps.Resolve("big-one"); got != FamilyFlagship {
		t.Errorf("Resolve(big-one) = %q", got)
	}
}

func TestLoadCapabilityTableRejectsUnknownFamily(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "models.yaml")
	data := []byte("families:\n  mystery:\n    prefixes: [\"m\"]\n")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := LoadCapabilityTable(path); err == nil {
		t.Errorf("expected error for unknown family tag")
	}
}
