// Package assistant drives one conversation turn against the external
// assistant service: append the user message, start a run, poll it through
// its lifecycle (resolving tool calls when it pauses) and extract the reply.
package assistant

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/parleyhq/parley/internal/pkg/apperr"
)

const (
	defaultPollInterval = 1 * time.Second
	defaultTurnDeadline = 2 * time.Minute

	// fallbackReply is returned when a completed run produced no matching
	// assistant text message. A completed run is never failed over this;
	// it may legitimately have produced non-text output.
	fallbackReply = "The assistant finished without a text reply."
)

// Coordinator owns the run lifecycle for conversation turns. One Execute
// call is one turn; turns for different users run fully concurrently and
// share no state.
type Coordinator struct {
	api          API
	tools        *Dispatcher
	pollInterval time.Duration
	turnDeadline time.Duration
}

// Option adjusts coordinator timing; used by tests and by deployments that
// tolerate longer runs.
type Option func(*Coordinator)

// WithPollInterval overrides the run-status poll interval.
func WithPollInterval(d time.Duration) Option {
	return func(c *Coordinator) { c.pollInterval = d }
}

// WithTurnDeadline overrides the per-turn deadline. The external service
// bounds a run's lifetime on its side; this bound keeps a polling task from
// outliving a run the service never terminates.
func WithTurnDeadline(d time.Duration) Option {
	return func(c *Coordinator) { c.turnDeadline = d }
}

// NewCoordinator creates a coordinator over the assistant API and a local
// tool dispatcher.
func NewCoordinator(api API, tools *Dispatcher, opts ...Option) *Coordinator {
	c := &Coordinator{
		api:          api,
		tools:        tools,
		pollInterval: defaultPollInterval,
		turnDeadline: defaultTurnDeadline,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// StartThread creates a fresh conversation context and returns its opaque
// reference. The caller's session owns the reference from then on.
func (c *Coordinator) StartThread(ctx context.Context) (string, error) {
	return c.api.CreateThread(ctx)
}

// Execute runs one turn: messageText is appended to the thread and a run is
// driven to completion. The returned string is the assistant's reply text,
// or a fixed fallback when the completed run produced none.
func (c *Coordinator) Execute(ctx context.Context, threadRef, messageText string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.turnDeadline)
	defer cancel()

	if err := c.api.AppendMessage(ctx, threadRef, messageText); err != nil {
		return "", err
	}

	run, err := c.api.CreateRun(ctx, threadRef)
	if err != nil {
		return "", err
	}

	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		switch run.Status {
		case StatusQueued, StatusInProgress:
			select {
			case <-ctx.Done():
				if errors.Is(ctx.Err(), context.DeadlineExceeded) {
					return "", &apperr.RunTimedOut{RunID: run.ID}
				}
				return "", ctx.Err()
			case <-ticker.C:
			}
			run, err = c.api.GetRun(ctx, threadRef, run.ID)
			if err != nil {
				return "", err
			}

		case StatusRequiresAction:
			outputs, err := c.resolveToolCalls(ctx, run.PendingToolCalls)
			if err != nil {
				return "", err
			}
			if err := c.api.SubmitToolOutputs(ctx, threadRef, run.ID, outputs); err != nil {
				return "", err
			}
			run, err = c.api.GetRun(ctx, threadRef, run.ID)
			if err != nil {
				return "", err
			}

		case StatusCompleted:
			return c.extractReply(ctx, threadRef, run.ID)

		case StatusFailed:
			return "", &apperr.AssistantRunFailed{Code: run.LastErrorCode, Message: run.LastErrorMessage}

		default:
			// cancelled, expired, incomplete: terminal without a reply.
			return "", &apperr.AssistantRunFailed{Code: "unexpected_status", Message: run.Status}
		}
	}
}

// resolveToolCalls gathers one output per pending call. Calls are
// independent, so they resolve in parallel, but the batch submit requires
// all of them: the errgroup is the rendezvous point. Partial submission is
// not supported by the external protocol.
func (c *Coordinator) resolveToolCalls(ctx context.Context, calls []ToolCall) ([]ToolOutput, error) {
	outputs := make([]ToolOutput, len(calls))
	g, gctx := errgroup.WithContext(ctx)
	for i, call := range calls {
		i, call := i, call
		g.Go(func() error {
			outputs[i] = ToolOutput{
				CallID: call.CallID,
				Output: c.tools.Dispatch(gctx, call.ToolName, call.ArgumentsPayload),
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return outputs, nil
}

// extractReply selects the newest assistant text message produced by this
// run. That message is the only valid reply source; when none exists the
// turn still succeeds with the fallback string.
func (c *Coordinator) extractReply(ctx context.Context, threadRef, runID string) (string, error) {
	messages, err := c.api.ListMessages(ctx, threadRef)
	if err != nil {
		return "", err
	}
	for _, msg := range messages {
		if msg.Role == "assistant" && msg.RunRef == runID && msg.IsText {
			return msg.Text, nil
		}
	}
	return fallbackReply, nil
}
