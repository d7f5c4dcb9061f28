package bot

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/superclaude/superclaude/internal/catalog"
	"github.com/superclaude/superclaude/internal/claude"
	pexec "github.com/superclaude/superclaude/internal/exec"
	"github.com/superclaude/superclaude/internal/git"
	"github.com/superclaude/superclaude/internal/session"
)

const (
	alice = int64(100)
	bob   = int64(200)
)

type sentMessage struct {
	chatID int64
	msg    OutboundMessage
}

// fakeMessenger records everything sent. Sends whose index is in failOn fail.
type fakeMessenger struct {
	mu        sync.Mutex
	sent      []sentMessage
	attempts  int
	failOn    map[int]bool
	callbacks []string
}

func (m *fakeMessenger) Send(_ context.Context, chatID int64, msg OutboundMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	idx := m.attempts
	m.attempts++
	if m.failOn[idx] {
		return errors.New("network down")
	}
	m.sent = append(m.sent, sentMessage{chatID: chatID, msg: msg})
	return nil
}

func (m *fakeMessenger) AnswerCallback(_ context.Context, id, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callbacks = append(m.callbacks, id)
	return nil
}

func (m *fakeMessenger) texts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.sent))
	for i, s := range m.sent {
		out[i] = s.msg.Text
	}
	return out
}

func (m *fakeMessenger) last() OutboundMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.sent) == 0 {
		return OutboundMessage{}
	}
	return m.sent[len(m.sent)-1].msg
}

func (m *fakeMessenger) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

type fakeTranscriber struct {
	text string
	err  error
}

func (f *fakeTranscriber) Transcribe(context.Context, string) (string, error) {
	return f.text, f.err
}

type fakeDownloader struct {
	mu        sync.Mutex
	imagePath string
	cleaned   []string
	saved     []string
	err       error
}

func (d *fakeDownloader) FetchImage(context.Context, string) (string, error) {
	return d.imagePath, d.err
}

func (d *fakeDownloader) SaveDocument(_ context.Context, _, workDir, filename string) (string, error) {
	if d.err != nil {
		return "", d.err
	}
	path := filepath.Join(workDir, filepath.Base(filename))
	d.mu.Lock()
	d.saved = append(d.saved, path)
	d.mu.Unlock()
	return path, nil
}

func (d *fakeDownloader) Cleanup(path string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cleaned = append(d.cleaned, path)
}

type harness struct {
	t           *testing.T
	root        string
	router      *Router
	store       *session.Store
	invoker     *claude.Invoker
	exec        *pexec.MockExecutor
	messenger   *fakeMessenger
	transcriber *fakeTranscriber
	downloader  *fakeDownloader
}

// newHarness wires a router over a temp projects dir. Every directory is a
// non-repository unless a test registers a git response.
func newHarness(t *testing.T, projects ...string) *harness {
	t.Helper()
	root := t.TempDir()
	for _, p := range projects {
		if err := os.MkdirAll(filepath.Join(root, p), 0o755); err != nil {
			t.Fatal(err)
		}
	}

	mock := pexec.NewMockExecutor(nil)
	mock.AddPrefixMatch("git", []string{"worktree"}, pexec.MockResponse{
		Stderr: []byte("fatal: not a git repository"),
		Err:    errors.New("exit status 128"),
	})

	cat := catalog.New(root, "", git.NewGitServiceWithExecutor(mock))
	inv := claude.NewInvoker(claude.Config{SkipPermissions: true}, mock)
	store := session.NewStore(cat, inv)
	h := &harness{
		t:           t,
		root:        root,
		store:       store,
		invoker:     inv,
		exec:        mock,
		messenger:   &fakeMessenger{},
		transcriber: &fakeTranscriber{},
		downloader:  &fakeDownloader{},
	}
	h.router = NewRouter(Config{AllowedUsers: []int64{alice, bob}, MaxMessageLen: 4000}, Deps{
		Store:       store,
		Catalog:     cat,
		Invoker:     inv,
		Transcriber: h.transcriber,
		Downloader:  h.downloader,
		Messenger:   h.messenger,
	})
	return h
}

func (h *harness) claudeReplies(resp pexec.MockResponse) {
	h.exec.AddPrefixMatch("claude", nil, resp)
}

func (h *harness) claudeCalls() []pexec.MockCall {
	var out []pexec.MockCall
	for _, c := range h.exec.GetCalls() {
		if c.Name == "claude" {
			out = append(out, c)
		}
	}
	return out
}

func (h *harness) send(user int64, ev Event) {
	ev.UserID = user
	ev.ChatID = user
	h.router.Handle(context.Background(), ev)
}

func (h *harness) text(user int64, text string) {
	h.send(user, Event{Kind: EventText, Text: text})
}

func (h *harness) command(user int64, line string) {
	fields := strings.Fields(strings.TrimPrefix(line, "/"))
	h.send(user, Event{Kind: EventCommand, Command: fields[0], Args: fields[1:]})
}

func (h *harness) callback(user int64, data string) {
	h.send(user, Event{Kind: EventCallback, CallbackID: "cb-" + data, CallbackData: data})
}

func (h *harness) active(user int64) *session.Session {
	h.t.Helper()
	sess, ok := h.store.Active(user)
	if !ok {
		h.t.Fatalf("user %d has no active session", user)
	}
	return sess
}

func (h *harness) waitStatus(user int64, id string, want session.Status) {
	h.t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if s, ok := h.store.Get(user, id); ok && s.Status == want {
			return
		}
		time.Sleep(time.Millisecond)
	}
	h.t.Fatalf("session %s never reached %s", id, want)
}

func lastArg(c pexec.MockCall) string {
	return c.Args[len(c.Args)-1]
}
