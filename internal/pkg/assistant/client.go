package assistant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/parleyhq/parley/internal/pkg/apperr"
	"github.com/parleyhq/parley/internal/pkg/env"
)

const defaultAssistantAPIBaseURL = "https://api.openai.com/v1"

// API is the slice of the assistant service the coordinator drives. All
// calls are synchronous JSON request/response addressed by opaque
// references from earlier calls.
type API interface {
	CreateThread(ctx context.Context) (string, error)
	AppendMessage(ctx context.Context, threadRef, text string) error
	CreateRun(ctx context.Context, threadRef string) (*Run, error)
	GetRun(ctx context.Context, threadRef, runID string) (*Run, error)
	SubmitToolOutputs(ctx context.Context, threadRef, runID string, outputs []ToolOutput) error
	// ListMessages returns the thread's messages newest first.
	ListMessages(ctx context.Context, threadRef string) ([]Message, error)
}

// Client talks to an OpenAI-compatible assistants endpoint.
type Client struct {
	APIKey      string
	AssistantID string
	APIBaseURL  string

	HTTPClient *http.Client
}

// NewClientFromEnv builds a client from ASSISTANT_* configuration.
func NewClientFromEnv() *Client {
	return &Client{
		APIKey:      strings.TrimSpace(env.GetEnv("ASSISTANT_API_KEY", "")),
		AssistantID: strings.TrimSpace(env.GetEnv("ASSISTANT_ID", "")),
		APIBaseURL:  strings.TrimRight(env.GetEnv("ASSISTANT_API_BASE_URL", defaultAssistantAPIBaseURL), "/"),
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func (c *Client) CreateThread(ctx context.Context) (string, error) {
	var out struct {
		ID string `json:"id"`
	}
	if err := c.do(ctx, http.MethodPost, "/threads", map[string]any{}, &out); err != nil {
		return "", err
	}
	if strings.TrimSpace(out.ID) == "" {
		return "", &apperr.UpstreamUnavailable{Op: "create thread", Detail: "response missing thread id"}
	}
	return out.ID, nil
}

func (c *Client) AppendMessage(ctx context.Context, threadRef, text string) error {
	payload := map[string]any{
		"role":    "user",
		"content": text,
	}
	var out struct {
		ID string `json:"id"`
	}
	return c.do(ctx, http.MethodPost, "/threads/"+threadRef+"/messages", payload, &out)
}

func (c *Client) CreateRun(ctx context.Context, threadRef string) (*Run, error) {
	if strings.TrimSpace(c.AssistantID) == "" {
		return nil, errors.New("ASSISTANT_ID is not configured")
	}
	payload := map[string]any{
		"assistant_id": c.AssistantID,
	}
	var out wireRun
	if err := c.do(ctx, http.MethodPost, "/threads/"+threadRef+"/runs", payload, &out); err != nil {
		return nil, err
	}
	return out.toRun(threadRef), nil
}

func (c *Client) GetRun(ctx context.Context, threadRef, runID string) (*Run, error) {
	var out wireRun
	if err := c.do(ctx, http.MethodGet, "/threads/"+threadRef+"/runs/"+runID, nil, &out); err != nil {
		return nil, err
	}
	return out.toRun(threadRef), nil
}

func (c *Client) SubmitToolOutputs(ctx context.Context, threadRef, runID string, outputs []ToolOutput) error {
	wire := make([]map[string]string, 0, len(outputs))
	for _, o := range outputs {
		wire = append(wire, map[string]string{
			"tool_call_id": o.CallID,
			"output":       o.Output,
		})
	}
	payload := map[string]any{"tool_outputs": wire}
	var out wireRun
	return c.do(ctx, http.MethodPost, "/threads/"+threadRef+"/runs/"+runID+"/submit_tool_outputs", payload, &out)
}

func (c *Client) ListMessages(ctx context.Context, threadRef string) ([]Message, error) {
	var out struct {
		Data []wireMessage `json:"data"`
	}
	// order=desc puts the newest message first.
	if err := c.do(ctx, http.MethodGet, "/threads/"+threadRef+"/messages?order=desc", nil, &out); err != nil {
		return nil, err
	}
	messages := make([]Message, 0, len(out.Data))
	for _, m := range out.Data {
		messages = append(messages, m.toMessage())
	}
	return messages, nil
}

func (c *Client) do(ctx context.Context, method, path string, payload, out any) error {
	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.APIBaseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.APIKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("OpenAI-Beta", "assistants=v2")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return &apperr.UpstreamUnavailable{Op: "assistant " + method + " " + path, Detail: err.Error(), Err: err}
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &apperr.UpstreamUnavailable{
			Op:     "assistant " + method + " " + path,
			Detail: fmt.Sprintf("status=%d message=%s", resp.StatusCode, upstreamErrorMessage(raw)),
		}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return &apperr.UpstreamUnavailable{Op: "assistant " + method + " " + path, Detail: "undecodable response body", Err: err}
	}
	return nil
}

func upstreamErrorMessage(body []byte) string {
	var raw struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &raw); err == nil && raw.Error.Message != "" {
		return raw.Error.Message
	}
	if len(body) > 200 {
		return string(body[:200])
	}
	return string(body)
}

// wireRun is the assistant service's run representation.
type wireRun struct {
	ID             string `json:"id"`
	Status         string `json:"status"`
	RequiredAction *struct {
		SubmitToolOutputs struct {
			ToolCalls []struct {
				ID       string `json:"id"`
				Function struct {
					Name      string `json:"name"`
					Arguments string `json:"arguments"`
				} `json:"function"`
			} `json:"tool_calls"`
		} `json:"submit_tool_outputs"`
	} `json:"required_action"`
	LastError *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"last_error"`
}

func (w *wireRun) toRun(threadRef string) *Run {
	run := &Run{
		ID:        w.ID,
		ThreadRef: threadRef,
		Status:    w.Status,
	}
	if w.RequiredAction != nil {
		for _, tc := range w.RequiredAction.SubmitToolOutputs.ToolCalls {
			run.PendingToolCalls = append(run.PendingToolCalls, ToolCall{
				CallID:           tc.ID,
				ToolName:         tc.Function.Name,
				ArgumentsPayload: tc.Function.Arguments,
			})
		}
	}
	if w.LastError != nil {
		run.LastErrorCode = w.LastError.Code
		run.LastErrorMessage = w.LastError.Message
	}
	return run
}

// wireMessage is the assistant service's message representation; only the
// first text content part is extracted.
type wireMessage struct {
	ID      string `json:"id"`
	Role    string `json:"role"`
	RunID   string `json:"run_id"`
	Content []struct {
		Type string `json:"type"`
		Text struct {
			Value string `json:"value"`
		} `json:"text"`
	} `json:"content"`
}

func (w *wireMessage) toMessage() Message {
	msg := Message{
		ID:     w.ID,
		Role:   w.Role,
		RunRef: w.RunID,
	}
	for _, part := range w.Content {
		if part.Type == "text" {
			msg.Text = part.Text.Value
			msg.IsText = true
			break
		}
	}
	return msg
}
