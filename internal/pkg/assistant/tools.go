package assistant

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/gofiber/fiber/v2/log"
)

// unknownToolOutput is substituted for tools the dispatcher does not know.
// Returning a deterministic success keeps the run moving instead of failing
// the whole turn over a missing integration.
const unknownToolOutput = `{"success":true}`

// ToolFunc executes one local tool. arguments is the raw JSON payload the
// assistant supplied for the call.
type ToolFunc func(ctx context.Context, arguments string) (string, error)

// Dispatcher resolves tool calls against locally registered capabilities.
type Dispatcher struct {
	mu    sync.RWMutex
	tools map[string]ToolFunc
}

// NewDispatcher creates an empty dispatcher.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{tools: make(map[string]ToolFunc)}
}

// Register adds or replaces a tool by name.
func (d *Dispatcher) Register(name string, fn ToolFunc) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.tools[name] = fn
}

// Dispatch resolves one tool call to its output string. It never fails the
// turn: unknown tools get the placeholder output and a tool error becomes a
// JSON error document, so the batch submit always has one output per call.
func (d *Dispatcher) Dispatch(ctx context.Context, name, arguments string) string {
	d.mu.RLock()
	fn, ok := d.tools[name]
	d.mu.RUnlock()

	if !ok {
		log.Warnf("[Assistant] no tool registered for %q, substituting placeholder output", name)
		return unknownToolOutput
	}

	result, err := fn(ctx, arguments)
	if err != nil {
		log.Errorf("[Assistant] tool %q failed: %v", name, err)
		encoded, _ := json.Marshal(map[string]string{"error": err.Error()})
		return string(encoded)
	}
	return result
}
