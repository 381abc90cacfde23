package assistant

// Run statuses the coordinator reacts to. The assistant service owns the
// vocabulary; anything outside it ends the turn as a failure.
const (
	StatusQueued         = "queued"
	StatusInProgress     = "in_progress"
	StatusRequiresAction = "requires_action"
	StatusCompleted      = "completed"
	StatusFailed         = "failed"
)

// Run is one external assistant job. It lives for a single turn and is
// never persisted; the thread reference is the only state that outlives it.
type Run struct {
	ID               string
	ThreadRef        string
	Status           string
	PendingToolCalls []ToolCall
	LastErrorCode    string
	LastErrorMessage string
}

// ToolCall is one pending tool invocation while a run is paused in
// requires_action.
type ToolCall struct {
	CallID           string
	ToolName         string
	ArgumentsPayload string
}

// ToolOutput pairs a resolved tool call with its result for the batch
// submit. The external protocol accepts exactly one submit per pause.
type ToolOutput struct {
	CallID string
	Output string
}

// Message is one thread message as returned by the assistant service.
type Message struct {
	ID     string
	Role   string
	RunRef string
	Text   string
	IsText bool
}
