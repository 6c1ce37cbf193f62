package cmd

import (
	"strings"
	"testing"
)

func TestCommandsRegistered(t *testing.T) {
	want := []string{"serve", "search", "ask", "index", "approve", "rebuild", "version"}
	for _, name := range want {
		found := false
		for _, c := range rootCmd.Commands() {
			if c.Name() == name {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("command %q not registered", name)
		}
	}
}

func TestSnippet(t *testing.T) {
	long := strings.Repeat("word ", 100)
	got := snippet(long, 40)
	if len(got) != 43 || !strings.HasSuffix(got, "...") {
		t.Errorf("snippet = %q (len %d)", got, len(got))
	}

	multiline := "line one\nline  two"
	if got := snippet(multiline, 160); got != "line one line two" {
		t.Errorf("snippet = %q", got)
	}
}
