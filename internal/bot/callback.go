package bot

import (
	"strconv"
	"strings"
	"sync"
)

// MaxCallbackData is Telegram's limit on a button's callback data, in bytes.
const MaxCallbackData = 64

// DefaultCallbackCapacity bounds how many long payloads are remembered.
const DefaultCallbackCapacity = 4096

// Callback data prefixes.
const (
	cbProject  = "p:"
	cbWorktree = "w:"
	cbSwitch   = "s:"
	cbStatus   = "i:"
	cbToken    = "t:"
)

// SwitchCallback is the payload of a button that makes a session active.
func SwitchCallback(sessionID string) string { return cbSwitch + sessionID }

// StatusCallback is the payload of a button that shows a session's status.
func StatusCallback(sessionID string) string { return cbStatus + sessionID }

// worktreeCallback length-prefixes the project so neither name needs escaping.
func worktreeCallback(project, worktree string) string {
	return cbWorktree + strconv.Itoa(len(project)) + ":" + project + worktree
}

func parseWorktreeCallback(data string) (project, worktree string, ok bool) {
	n, rest, found := strings.Cut(strings.TrimPrefix(data, cbWorktree), ":")
	if !found {
		return "", "", false
	}
	size, err := strconv.Atoi(n)
	if err != nil || size <= 0 || size > len(rest) {
		return "", "", false
	}
	return rest[:size], rest[size:], true
}

// CallbackTable swaps payloads too long for a button for short tokens.
// Payloads that fit are used as they are. The oldest tokens are forgotten
// once the table is full. A nil table passes payloads through unchanged.
type CallbackTable struct {
	mu       sync.Mutex
	capacity int
	seq      uint64
	payloads map[string]string
	order    []string
}

// NewCallbackTable creates a table. capacity <= 0 uses DefaultCallbackCapacity.
func NewCallbackTable(capacity int) *CallbackTable {
	if capacity <= 0 {
		capacity = DefaultCallbackCapacity
	}
	return &CallbackTable{capacity: capacity, payloads: make(map[string]string)}
}

// Encode returns data for a button carrying payload.
func (t *CallbackTable) Encode(payload string) string {
	if t == nil || (len(payload) <= MaxCallbackData && !strings.HasPrefix(payload, cbToken)) {
		return payload
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	t.seq++
	token := cbToken + strconv.FormatUint(t.seq, 36)
	t.payloads[token] = payload
	t.order = append(t.order, token)
	if len(t.order) > t.capacity {
		delete(t.payloads, t.order[0])
		t.order = t.order[1:]
	}
	return token
}

// Decode maps button data back to its payload. ok is false for a token the
// table no longer knows.
func (t *CallbackTable) Decode(data string) (payload string, ok bool) {
	if !strings.HasPrefix(data, cbToken) {
		return data, true
	}
	if t == nil {
		return "", false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	payload, ok = t.payloads[data]
	return payload, ok
}
