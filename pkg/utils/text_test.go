package utils

import (
	"testing"
)

func TestTruncate(t *testing.T) {
	if Truncate("hello", 10) != "hello" {
		t.Error("short string unchanged")
	}
	if Truncate("hello world", 5) != "hello..." {
		t.Errorf("got %s", Truncate("hello world", 5))
	}
	if Truncate("x", 0) != "x" {
		t.Error("maxLen 0 returns as-is")
	}
}

func TestCollapseWhitespace(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"  Is the sky   blue?\n", "Is the sky blue?"},
		{"a\t\tb\nc", "a b c"},
		{"", ""},
		{"   ", ""},
	}
	for _, tt := range tests {
		if got := CollapseWhitespace(tt.in); got != tt.want {
			t.Errorf("CollapseWhitespace(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
