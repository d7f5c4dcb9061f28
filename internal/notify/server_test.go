package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/superclaude/superclaude/internal/bot"
	"github.com/superclaude/superclaude/internal/metrics"
	"github.com/superclaude/superclaude/internal/notification"
	"github.com/superclaude/superclaude/internal/session"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type sent struct {
	chatID int64
	msg    bot.OutboundMessage
}

type fakeMessenger struct {
	mu   sync.Mutex
	sent []sent
	err  error
}

func (m *fakeMessenger) Send(ctx context.Context, chatID int64, msg bot.OutboundMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, sent{chatID, msg})
	return nil
}

func (m *fakeMessenger) AnswerCallback(ctx context.Context, id, text string) error { return nil }

type fakeSessions struct {
	sessions map[string]session.Session
	marked   []string
}

func (f *fakeSessions) Lookup(id string) (*session.Session, bool) {
	s, ok := f.sessions[id]
	if !ok {
		return nil, false
	}
	return &s, true
}

func (f *fakeSessions) LookupConversation(conv string) (*session.Session, bool) {
	for _, s := range f.sessions {
		if s.ConversationID == conv {
			return &s, true
		}
	}
	return nil, false
}

func (f *fakeSessions) MarkWaiting(id string) bool {
	s, ok := f.sessions[id]
	if !ok || s.Status != session.StatusWorking {
		return false
	}
	s.Status = session.StatusWaiting
	f.sessions[id] = s
	f.marked = append(f.marked, id)
	return true
}

func (f *fakeSessions) Count() int { return len(f.sessions) }

type fakeProcesses []string

func (p fakeProcesses) Running() []string { return p }

type harness struct {
	srv       *Server
	messenger *fakeMessenger
	sessions  *fakeSessions
	desktop   []string
	callbacks *bot.CallbackTable
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		messenger: &fakeMessenger{},
		sessions: &fakeSessions{sessions: map[string]session.Session{
			"demo-1":  {ID: "demo-1", UserID: 7, Project: "demo", Status: session.StatusWorking, ConversationID: "conv-1"},
			"other-1": {ID: "other-1", UserID: 8, Project: "secret", Status: session.StatusWorking},
		}},
	}
	desktop := notification.NewWithNotifier(func(title, message string, icon any) error {
		h.desktop = append(h.desktop, title+"|"+message)
		return nil
	})
	h.callbacks = bot.NewCallbackTable(0)
	h.srv = NewServer(
		Config{AllowedUsers: []int64{7, 8}, RateLimit: RateLimitConfig{}, Development: true},
		Deps{
			Sessions:  h.sessions,
			Processes: fakeProcesses{"demo-1"},
			Messenger: h.messenger,
			Metrics:   metrics.New(),
			Desktop:   desktop,
			Callbacks: h.callbacks,
		},
	)
	return h
}

func (h *harness) do(method, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	h.srv.Handler().ServeHTTP(w, req)
	return w
}

func TestNotify_Delivers(t *testing.T) {
	h := newHarness(t)

	w := h.do(http.MethodPost, "/notify", `{"userId":7,"sessionId":"demo-1","event":"stop","message":"All done"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"success":true}`, w.Body.String())

	require.Len(t, h.messenger.sent, 1)
	out := h.messenger.sent[0]
	assert.Equal(t, int64(7), out.chatID)
	assert.Equal(t, "✅ stop\nSession: demo-1 (working)\nProject: demo\n\nAll done", out.msg.Text)
	assert.Equal(t, AlertButtons(h.callbacks, "demo-1"), out.msg.Buttons)
	assert.Equal(t, "i:demo-1", out.msg.Buttons[0][0].Data)
	assert.Equal(t, "s:demo-1", out.msg.Buttons[0][1].Data)
	assert.Empty(t, h.sessions.marked)
	assert.Equal(t, []string{"SuperClaude: stop|[demo-1] All done"}, h.desktop)
}

func TestNotify_UnauthorizedSendsNothing(t *testing.T) {
	h := newHarness(t)

	w := h.do(http.MethodPost, "/notify", `{"userId":999,"sessionId":"demo-1","event":"stop","message":"hi"}`)
	assert.Equal(t, http.StatusForbidden, w.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.NotEmpty(t, body["error"])
	assert.Empty(t, h.messenger.sent)
	assert.Empty(t, h.desktop)
	assert.Empty(t, h.sessions.marked)
}

func TestNotify_BadBody(t *testing.T) {
	h := newHarness(t)

	for _, body := range []string{`not json`, `{"sessionId":"x"}`, `{"userId":7}`} {
		w := h.do(http.MethodPost, "/notify", body)
		assert.Equal(t, http.StatusBadRequest, w.Code, body)
	}
	assert.Empty(t, h.messenger.sent)
}

func TestNotify_DeliveryFailure(t *testing.T) {
	h := newHarness(t)
	h.messenger.err = errors.New("telegram down")

	w := h.do(http.MethodPost, "/notify", `{"userId":7,"sessionId":"demo-1","event":"stop","message":"x"}`)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "telegram down")
	assert.Empty(t, h.desktop)
}

func TestNotify_WaitingEventMarksSession(t *testing.T) {
	h := newHarness(t)

	w := h.do(http.MethodPost, "/notify", `{"userId":7,"sessionId":"demo-1","event":"notification","message":"Needs permission"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"demo-1"}, h.sessions.marked)
	assert.Contains(t, h.messenger.sent[0].msg.Text, "Session: demo-1 (waiting)")
	assert.True(t, strings.HasPrefix(h.messenger.sent[0].msg.Text, "🔔 notification"))
}

func TestNotify_ResolvesConversationID(t *testing.T) {
	h := newHarness(t)

	w := h.do(http.MethodPost, "/notify", `{"userId":7,"sessionId":"conv-1","event":"input","message":"Allow Bash?"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"demo-1"}, h.sessions.marked)
	out := h.messenger.sent[0].msg
	assert.Contains(t, out.Text, "Session: demo-1 (waiting)")
	assert.Equal(t, AlertButtons(h.callbacks, "demo-1"), out.Buttons)
}

func TestNewServer_ReleaseModeOutsideDevelopment(t *testing.T) {
	defer gin.SetMode(gin.TestMode)

	deps := Deps{Sessions: &fakeSessions{}, Messenger: &fakeMessenger{}, Metrics: metrics.New()}
	NewServer(Config{Development: true}, deps)
	assert.Equal(t, gin.TestMode, gin.Mode())

	NewServer(Config{}, deps)
	assert.Equal(t, gin.ReleaseMode, gin.Mode())
}

func TestNotify_LongSessionIDButtonsFit(t *testing.T) {
	h := newHarness(t)
	id := strings.Repeat("long-project-name-", 3) + "feature-x-m2k1z9q0"

	w := h.do(http.MethodPost, "/notify", `{"userId":7,"sessionId":"`+id+`","event":"stop"}`)
	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, h.messenger.sent, 1)

	buttons := h.messenger.sent[0].msg.Buttons[0]
	for _, b := range buttons {
		assert.LessOrEqual(t, len(b.Data), bot.MaxCallbackData)
	}
	status, ok := h.callbacks.Decode(buttons[0].Data)
	require.True(t, ok)
	assert.Equal(t, bot.StatusCallback(id), status)
	sw, ok := h.callbacks.Decode(buttons[1].Data)
	require.True(t, ok)
	assert.Equal(t, bot.SwitchCallback(id), sw)
}

func TestNotify_ForeignSessionNotTouched(t *testing.T) {
	h := newHarness(t)

	w := h.do(http.MethodPost, "/notify", `{"userId":7,"sessionId":"other-1","event":"input","message":"?"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, h.sessions.marked)
	text := h.messenger.sent[0].msg.Text
	assert.NotContains(t, text, "secret")
	assert.NotContains(t, text, "working")
}

func TestNotify_DefaultEventAndExplicitProject(t *testing.T) {
	h := newHarness(t)

	w := h.do(http.MethodPost, "/notify", `{"userId":8,"sessionId":"gone","message":"hello","project":"api"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "🔔 notification\nSession: gone\nProject: api\n\nhello", h.messenger.sent[0].msg.Text)
}

func TestNotifySimple(t *testing.T) {
	h := newHarness(t)

	w := h.do(http.MethodPost, "/notify/simple?user_id=7&message=Build+finished&event=done", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, h.messenger.sent, 1)
	assert.Equal(t, "✅ done\nSession: shell\n\nBuild finished", h.messenger.sent[0].msg.Text)

	w = h.do(http.MethodPost, "/notify/simple?user_id=999&message=x", "")
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = h.do(http.MethodPost, "/notify/simple?message=x", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Len(t, h.messenger.sent, 1)
}

func TestHealthAndMetrics(t *testing.T) {
	h := newHarness(t)

	w := h.do(http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok","sessions":2,"running":1}`, w.Body.String())

	h.do(http.MethodPost, "/notify", `{"userId":999,"sessionId":"x","event":"stop"}`)
	w = h.do(http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `superclaude_notifications_total{event="stop",result="rejected"} 1`)
	assert.Contains(t, w.Body.String(), `superclaude_http_requests_total{method="GET",path="/health",status="200"} 1`)
}

func TestGlobalRateLimit(t *testing.T) {
	engine := gin.New()
	engine.Use(GlobalRateLimit(RateLimitConfig{RequestsPerSecond: 1, Burst: 2}))
	engine.GET("/", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
		codes = append(codes, w.Code)
	}
	assert.Equal(t, []int{http.StatusNoContent, http.StatusNoContent, http.StatusTooManyRequests}, codes)
}

func TestRun_ShutsDownOnCancel(t *testing.T) {
	h := newHarness(t)
	h.srv.cfg.Addr = "127.0.0.1:0"

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.srv.Run(ctx) }()
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
