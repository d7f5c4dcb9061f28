package bot

// State is where an identity is in the conversation flow.
type State int

const (
	// StateNoSession: no active session; messages prompt for /new.
	StateNoSession State = iota
	// StateAwaitingSelection: a project or worktree picker is open.
	StateAwaitingSelection
	// StateIdle: an active session ready for a message.
	StateIdle
	// StateWorking: the active session has an invocation outstanding.
	StateWorking
)

func (s State) String() string {
	switch s {
	case StateNoSession:
		return "no-session"
	case StateAwaitingSelection:
		return "awaiting-selection"
	case StateIdle:
		return "idle"
	case StateWorking:
		return "working"
	default:
		return "unknown"
	}
}

// Input is a stimulus that may move an identity between states.
type Input int

const (
	// InputMessage is text, voice, image or document content for the assistant.
	InputMessage Input = iota
	// InputOpenPicker starts or advances the project/worktree picker.
	InputOpenPicker
	// InputSessionCreated is the picker (or /new with arguments) creating a session.
	InputSessionCreated
	// InputInvocationDone is the assistant call returning, successfully or not.
	InputInvocationDone
)

func (i Input) String() string {
	switch i {
	case InputMessage:
		return "message"
	case InputOpenPicker:
		return "open-picker"
	case InputSessionCreated:
		return "session-created"
	case InputInvocationDone:
		return "invocation-done"
	default:
		return "unknown"
	}
}

// next is the transition function. A message only starts work from Idle;
// from every other state it is answered without touching the session, which
// is how a busy session rejects a second request.
func next(s State, in Input) State {
	switch in {
	case InputOpenPicker:
		return StateAwaitingSelection
	case InputSessionCreated:
		return StateIdle
	case InputMessage:
		if s == StateIdle {
			return StateWorking
		}
		return s
	case InputInvocationDone:
		if s == StateWorking {
			return StateIdle
		}
		return s
	}
	return s
}
