package textmatch

import (
	"strings"
	"testing"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"lowercases and trims", "  Spring Festival  ", "spring festival"},
		{"collapses punctuation runs", "Call for Proposals — Spring: Festival!!", "call for proposals spring festival"},
		{"folds diacritics", "Zürich Café Société", "zurich cafe societe"},
		{"keeps digits", "Festival 2025", "festival 2025"},
		{"empty", "", ""},
		{"only punctuation", "—:!?", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Normalize(tt.in); got != tt.want {
				t.Fatalf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestSignificantTokens_StripsFiller(t *testing.T) {
	toks := SignificantTokens("Call for Proposals: The Spring Festival")
	got := strings.Join(toks, " ")
	if got != "spring festival" {
		t.Fatalf("unexpected significant tokens: %q", got)
	}
}

func TestTitlePrefix(t *testing.T) {
	if got := TitlePrefix("Call for Proposals: Urban Art Residency Berlin", 3); got != "urban art residency" {
		t.Fatalf("unexpected prefix: %q", got)
	}
	if got := TitlePrefix("Residency", 3); got != "residency" {
		t.Fatalf("short titles keep all tokens, got %q", got)
	}
}
