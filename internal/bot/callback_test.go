package bot

import (
	"strings"
	"testing"
)

func TestCallbackTable(t *testing.T) {
	table := NewCallbackTable(2)

	short := SwitchCallback("demo-1")
	if got := table.Encode(short); got != short {
		t.Errorf("Encode(short) = %q, want unchanged", got)
	}

	long := StatusCallback(strings.Repeat("x", 80))
	token := table.Encode(long)
	if len(token) > MaxCallbackData || !strings.HasPrefix(token, "t:") {
		t.Fatalf("Encode(long) = %q", token)
	}
	if got, ok := table.Decode(token); !ok || got != long {
		t.Errorf("Decode(token) = %q, %v", got, ok)
	}
	if got, ok := table.Decode(short); !ok || got != short {
		t.Errorf("Decode(plain) = %q, %v", got, ok)
	}

	// Capacity 2: the first token is forgotten after two more.
	table.Encode(long + "a")
	table.Encode(long + "b")
	if _, ok := table.Decode(token); ok {
		t.Error("oldest token should be evicted")
	}

	// Payloads that look like tokens are never passed through.
	if got := table.Encode("t:1"); got == "t:1" {
		t.Error("token-shaped payload should be swapped")
	}
}

func TestCallbackTable_Nil(t *testing.T) {
	var table *CallbackTable
	long := strings.Repeat("y", 100)
	if got := table.Encode(long); got != long {
		t.Errorf("nil Encode = %q", got)
	}
	if _, ok := table.Decode("t:1"); ok {
		t.Error("nil Decode of a token should fail")
	}
}

func TestWorktreeCallback(t *testing.T) {
	tests := []struct {
		project, worktree string
	}{
		{"demo", "root"},
		{"a:b", "c:d"},
		{"demo", ""},
	}
	for _, tt := range tests {
		p, w, ok := parseWorktreeCallback(worktreeCallback(tt.project, tt.worktree))
		if !ok || p != tt.project || w != tt.worktree {
			t.Errorf("round trip of (%q, %q) = (%q, %q, %v)", tt.project, tt.worktree, p, w, ok)
		}
	}
	for _, bad := range []string{"w:", "w:x:demo", "w:0:", "w:9:demo"} {
		if _, _, ok := parseWorktreeCallback(bad); ok {
			t.Errorf("parseWorktreeCallback(%q) should fail", bad)
		}
	}
}
