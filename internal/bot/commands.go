package bot

import (
	"context"
	"fmt"
	"strings"

	"github.com/superclaude/superclaude/internal/errors"
	"github.com/superclaude/superclaude/internal/git"
	"github.com/superclaude/superclaude/internal/session"
)

const helpText = `🤖 Claude Code remote control

/projects - list projects
/new [project [worktree]] - start a session (pick interactively without arguments)
/sessions - list your sessions
/switch <id> - make a session active
/status [id] - show session details
/last - show the last response of the active session
/cancel [id] - interrupt a running request
/stop [id] - end a session

Send text, a voice note, a photo or a file to talk to the active session.`

func (r *Router) handleCommand(ctx context.Context, ev Event) {
	// Any command other than /new or /cancel abandons an open picker.
	if ev.Command != "new" && ev.Command != "cancel" {
		r.closePicker(ev.UserID)
	}

	switch ev.Command {
	case "start", "help":
		r.reply(ctx, ev.ChatID, helpText)
	case "projects":
		r.cmdProjects(ctx, ev)
	case "new":
		r.cmdNew(ctx, ev)
	case "sessions":
		r.cmdSessions(ctx, ev)
	case "switch":
		r.cmdSwitch(ctx, ev)
	case "status":
		r.cmdStatus(ctx, ev)
	case "last":
		r.cmdLast(ctx, ev)
	case "stop":
		r.cmdStop(ctx, ev)
	case "cancel":
		r.cmdCancel(ctx, ev)
	default:
		r.reply(ctx, ev.ChatID, fmt.Sprintf("Unknown command /%s. Send /help for the list.", ev.Command))
	}
}

func firstArg(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return args[0]
}

func (r *Router) projectButtons() [][]Button {
	projects := r.catalog.ListProjects()
	rows := make([][]Button, 0, len(projects))
	for _, p := range projects {
		rows = append(rows, []Button{{Text: "📁 " + p.Name, Data: r.callbacks.Encode(cbProject + p.Name)}})
	}
	return rows
}

func (r *Router) cmdProjects(ctx context.Context, ev Event) {
	rows := r.projectButtons()
	if len(rows) == 0 {
		r.reply(ctx, ev.ChatID, "No projects found in the projects directory.")
		return
	}
	r.reply(ctx, ev.ChatID, "📂 Projects (tap one to start a session):", rows...)
}

func (r *Router) cmdNew(ctx context.Context, ev Event) {
	switch len(ev.Args) {
	case 0:
		rows := r.projectButtons()
		if len(rows) == 0 {
			r.closePicker(ev.UserID)
			r.reply(ctx, ev.ChatID, "No projects found in the projects directory.")
			return
		}
		from := r.stateFor(ev.UserID)
		r.openPicker(ev.UserID, "")
		r.transition(ev.UserID, from, InputOpenPicker)
		r.reply(ctx, ev.ChatID, "Choose a project:", rows...)
	case 1:
		r.pickProject(ctx, ev, ev.Args[0])
	default:
		r.createSession(ctx, ev, ev.Args[0], ev.Args[1])
	}
}

// pickProject creates a session straight away when the project has a single
// worktree and otherwise asks which worktree to use.
func (r *Router) pickProject(ctx context.Context, ev Event, project string) {
	worktrees, err := r.catalog.ListWorktrees(ctx, project)
	if err != nil {
		r.closePicker(ev.UserID)
		r.reply(ctx, ev.ChatID, fmt.Sprintf("Project %q not found. Use /projects to see what is available.", project))
		return
	}
	if len(worktrees) == 1 {
		r.createSession(ctx, ev, project, worktrees[0].Name)
		return
	}

	rows := make([][]Button, 0, len(worktrees))
	for _, wt := range worktrees {
		label := "🌿 " + wt.Name
		if wt.Branch != "" && wt.Branch != wt.Name {
			label += " (" + wt.Branch + ")"
		}
		rows = append(rows, []Button{{Text: label, Data: r.callbacks.Encode(worktreeCallback(project, wt.Name))}})
	}
	r.openPicker(ev.UserID, project)
	r.transition(ev.UserID, StateAwaitingSelection, InputOpenPicker)
	r.reply(ctx, ev.ChatID, fmt.Sprintf("Choose a worktree of %s:", project), rows...)
}

func (r *Router) createSession(ctx context.Context, ev Event, project, worktree string) {
	r.closePicker(ev.UserID)
	sess, err := r.store.Create(ev.UserID, project, worktree)
	if err != nil {
		if errors.Is(err, errors.KindNotFound) {
			r.reply(ctx, ev.ChatID, fmt.Sprintf("Project %q not found. Use /projects to see what is available.", project))
			return
		}
		r.reply(ctx, ev.ChatID, "❌ Could not create session: "+errors.Detail(err))
		return
	}
	r.transition(ev.UserID, StateAwaitingSelection, InputSessionCreated)
	r.reply(ctx, ev.ChatID, fmt.Sprintf("✅ Session %s created.\n📂 %s\n\nSend a message to start.", sess.ID, sess.WorkDir))
}

func statusEmoji(s session.Status) string {
	switch s {
	case session.StatusWorking:
		return "⚙️"
	case session.StatusWaiting:
		return "⏳"
	default:
		return "💤"
	}
}

func (r *Router) cmdSessions(ctx context.Context, ev Event) {
	sessions := r.store.List(ev.UserID)
	if len(sessions) == 0 {
		r.reply(ctx, ev.ChatID, "No sessions yet. Use /new to start one.")
		return
	}
	active, _ := r.store.Active(ev.UserID)

	var sb strings.Builder
	sb.WriteString("Your sessions:\n")
	rows := make([][]Button, 0, len(sessions))
	for _, s := range sessions {
		marker := "  "
		if active != nil && active.ID == s.ID {
			marker = "▶️"
		}
		fmt.Fprintf(&sb, "\n%s %s %s (%s)", marker, statusEmoji(s.Status), s.ID, s.Label())
		rows = append(rows, []Button{
			{Text: "🔀 " + s.ID, Data: r.callbacks.Encode(SwitchCallback(s.ID))},
			{Text: "📊", Data: r.callbacks.Encode(StatusCallback(s.ID))},
		})
	}
	r.reply(ctx, ev.ChatID, sb.String(), rows...)
}

func (r *Router) cmdSwitch(ctx context.Context, ev Event) {
	id := firstArg(ev.Args)
	if id == "" {
		r.reply(ctx, ev.ChatID, "Usage: /switch <session id>. Use /sessions to see your sessions.")
		return
	}
	r.switchTo(ctx, ev, id)
}

func (r *Router) switchTo(ctx context.Context, ev Event, id string) {
	if err := r.store.Switch(ev.UserID, id); err != nil {
		r.reply(ctx, ev.ChatID, fmt.Sprintf("Session %s not found. Use /sessions to see your sessions.", id))
		return
	}
	r.reply(ctx, ev.ChatID, fmt.Sprintf("🔀 Switched to %s.", id))
}

// target returns the session named by the first argument, or the active one.
func (r *Router) target(ctx context.Context, ev Event, id string) (*session.Session, bool) {
	if id == "" {
		sess, ok := r.store.Active(ev.UserID)
		if !ok {
			r.reply(ctx, ev.ChatID, "No active session. Use /new to start one.")
		}
		return sess, ok
	}
	sess, ok := r.store.Get(ev.UserID, id)
	if !ok {
		r.reply(ctx, ev.ChatID, fmt.Sprintf("Session %s not found. Use /sessions to see your sessions.", id))
	}
	return sess, ok
}

func (r *Router) cmdStatus(ctx context.Context, ev Event) {
	if sess, ok := r.target(ctx, ev, firstArg(ev.Args)); ok {
		r.reply(ctx, ev.ChatID, statusText(sess))
	}
}

func statusText(s *session.Session) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "📊 Session %s\n", s.ID)
	fmt.Fprintf(&sb, "Project: %s\n", s.Label())
	fmt.Fprintf(&sb, "Directory: %s\n", s.WorkDir)
	fmt.Fprintf(&sb, "Status: %s %s\n", statusEmoji(s.Status), s.Status)
	fmt.Fprintf(&sb, "Last activity: %s", s.LastActivity.Format("2006-01-02 15:04:05"))
	if s.LastMessage != "" {
		fmt.Fprintf(&sb, "\n\nLast response:\n%s", s.LastMessage)
	}
	return sb.String()
}

func (r *Router) cmdLast(ctx context.Context, ev Event) {
	sess, ok := r.target(ctx, ev, "")
	if !ok {
		return
	}
	if sess.LastMessage == "" {
		r.reply(ctx, ev.ChatID, "No response yet in this session.")
		return
	}
	r.reply(ctx, ev.ChatID, sess.LastMessage)
}

func (r *Router) cmdStop(ctx context.Context, ev Event) {
	sess, ok := r.target(ctx, ev, firstArg(ev.Args))
	if !ok {
		return
	}
	r.store.Delete(ev.UserID, sess.ID)

	msg := fmt.Sprintf("🛑 Session %s stopped.", sess.ID)
	if active, ok := r.store.Active(ev.UserID); ok {
		msg += fmt.Sprintf("\nActive session is now %s.", active.ID)
	}
	r.reply(ctx, ev.ChatID, msg)
}

// cmdCancel closes an open picker, or interrupts the running request of the
// named or active session without deleting it.
func (r *Router) cmdCancel(ctx context.Context, ev Event) {
	id := firstArg(ev.Args)
	if id == "" && r.closePicker(ev.UserID) {
		r.reply(ctx, ev.ChatID, "Selection closed.")
		return
	}
	sess, ok := r.target(ctx, ev, id)
	if !ok {
		return
	}
	if !r.invoker.Cancel(sess.ID) {
		r.reply(ctx, ev.ChatID, fmt.Sprintf("Nothing is running in %s.", sess.ID))
		return
	}
	r.reply(ctx, ev.ChatID, fmt.Sprintf("⏹ Cancelling the request in %s…", sess.ID))
}

func (r *Router) handleCallback(ctx context.Context, ev Event) {
	defer func() { _ = r.messenger.AnswerCallback(ctx, ev.CallbackID, "") }()

	data, ok := r.callbacks.Decode(ev.CallbackData)
	if !ok {
		r.reply(ctx, ev.ChatID, "That button has expired. Send the command again.")
		return
	}

	switch {
	case strings.HasPrefix(data, cbProject):
		r.pickProject(ctx, ev, strings.TrimPrefix(data, cbProject))
	case strings.HasPrefix(data, cbWorktree):
		project, worktree, ok := parseWorktreeCallback(data)
		if !ok {
			r.reply(ctx, ev.ChatID, "That selection is no longer valid. Use /new to start again.")
			return
		}
		if worktree == "" {
			worktree = git.RootWorktree
		}
		r.createSession(ctx, ev, project, worktree)
	case strings.HasPrefix(data, cbSwitch):
		r.closePicker(ev.UserID)
		r.switchTo(ctx, ev, strings.TrimPrefix(data, cbSwitch))
	case strings.HasPrefix(data, cbStatus):
		if sess, ok := r.target(ctx, ev, strings.TrimPrefix(data, cbStatus)); ok {
			r.reply(ctx, ev.ChatID, statusText(sess))
		}
	default:
		r.reply(ctx, ev.ChatID, "Unknown action.")
	}
}
