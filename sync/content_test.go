package sync

import (
	"strings"
	"testing"
	"time"
)

func TestCanonicalize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"empty", "", "\n"},
		{"whitespace only", " \t\n\r\n  \n", "\n"},
		{"adds trailing newline", "hello", "hello\n"},
		{"crlf", "a\r\nb\r\n", "a\nb\n"},
		{"lone cr", "a\rb", "a\nb\n"},
		{"trailing spaces", "a  \nb\t\n", "a\nb\n"},
		{"collapses blank runs", "a\n\n\n\nb", "a\n\nb\n"},
		{"blank lines with spaces collapse", "a\n  \n\t\n\nb", "a\n\nb\n"},
		{"keeps single blank line", "a\n\nb\n", "a\n\nb\n"},
		{"trims document", "\n\n  a\nb\n\n\n", "a\nb\n"},
		{"keeps internal spaces", "a  b\n", "a  b\n"},
		{"keeps indentation after first line", "a\n    code\n", "a\n    code\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Canonicalize(tt.in)
			if got != tt.want {
				t.Fatalf("Canonicalize(%q) = %q, want %q", tt.in, got, tt.want)
			}
			if again := Canonicalize(got); again != got {
				t.Fatalf("not idempotent: %q -> %q", got, again)
			}
		})
	}
}

func TestCanonicalize_LineEndingInvariant(t *testing.T) {
	unix := "# Title\n\nbody line\n- item\n"
	dos := strings.ReplaceAll(unix, "\n", "\r\n")
	mac := strings.ReplaceAll(unix, "\n", "\r")
	if Canonicalize(unix) != Canonicalize(dos) || Canonicalize(unix) != Canonicalize(mac) {
		t.Fatal("canonical form depends on line-ending style")
	}
}

func TestHash_Deterministic(t *testing.T) {
	h1 := Hash("content\n")
	h2 := Hash("content\n")
	if h1 != h2 {
		t.Fatalf("same input produced different hashes: %s vs %s", h1, h2)
	}
	if len(h1) != 64 {
		t.Fatalf("expected 64 hex chars, got %d", len(h1))
	}
	if h1 != strings.ToLower(h1) {
		t.Fatal("hash should be lowercase hex")
	}
}

func TestHash_ByteSensitive(t *testing.T) {
	pairs := [][2]string{
		{"a b\n", "a  b\n"},
		{"a\n", "a \n"},
		{"a\n", "A\n"},
	}
	for _, p := range pairs {
		if Hash(p[0]) == Hash(p[1]) {
			t.Errorf("Hash(%q) == Hash(%q)", p[0], p[1])
		}
	}
}

func TestContentHash_IgnoresFormattingNoise(t *testing.T) {
	if ContentHash("a\r\nb   \r\n\r\n\r\n") != ContentHash("a\nb\n") {
		t.Fatal("ContentHash should ignore line endings and trailing whitespace")
	}
	if ContentHash("") != Hash("\n") {
		t.Fatal("empty document should hash as a single newline")
	}
}

func TestCanonicalize_LargeInput(t *testing.T) {
	var b strings.Builder
	for b.Len() < 4<<20 {
		b.WriteString("line with trailing space   \r\n\r\n\r\n")
	}
	start := time.Now()
	out := Canonicalize(b.String())
	_ = Hash(out)
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("canonicalize+hash of 4MiB took %v", elapsed)
	}
}
