package assistant

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parleyhq/parley/internal/pkg/apperr"
)

func newTestClient(srv *httptest.Server) *Client {
	return &Client{
		APIKey:      "sk_test",
		AssistantID: "asst_1",
		APIBaseURL:  srv.URL,
		HTTPClient:  srv.Client(),
	}
}

func TestClientCreateThread(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/threads", r.URL.Path)
		assert.Equal(t, "assistants=v2", r.Header.Get("OpenAI-Beta"))
		assert.Equal(t, "Bearer sk_test", r.Header.Get("Authorization"))
		w.Write([]byte(`{"id":"thread_abc","object":"thread"}`))
	}))
	defer srv.Close()

	ref, err := newTestClient(srv).CreateThread(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "thread_abc", ref)
}

func TestClientCreateRunDecodesRequiredAction(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/threads/thread_1/runs", r.URL.Path)

		var payload map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.Equal(t, "asst_1", payload["assistant_id"])

		w.Write([]byte(`{
			"id": "run_1",
			"status": "requires_action",
			"required_action": {
				"submit_tool_outputs": {
					"tool_calls": [
						{"id": "call_1", "function": {"name": "current_time", "arguments": "{\"tz\":\"UTC\"}"}}
					]
				}
			}
		}`))
	}))
	defer srv.Close()

	run, err := newTestClient(srv).CreateRun(context.Background(), "thread_1")
	require.NoError(t, err)
	assert.Equal(t, "run_1", run.ID)
	assert.Equal(t, StatusRequiresAction, run.Status)
	require.Len(t, run.PendingToolCalls, 1)
	assert.Equal(t, "call_1", run.PendingToolCalls[0].CallID)
	assert.Equal(t, "current_time", run.PendingToolCalls[0].ToolName)
	assert.Equal(t, `{"tz":"UTC"}`, run.PendingToolCalls[0].ArgumentsPayload)
}

func TestClientGetRunDecodesLastError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/threads/thread_1/runs/run_1", r.URL.Path)
		w.Write([]byte(`{"id":"run_1","status":"failed","last_error":{"code":"server_error","message":"boom"}}`))
	}))
	defer srv.Close()

	run, err := newTestClient(srv).GetRun(context.Background(), "thread_1", "run_1")
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, run.Status)
	assert.Equal(t, "server_error", run.LastErrorCode)
	assert.Equal(t, "boom", run.LastErrorMessage)
}

func TestClientSubmitToolOutputs(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/threads/thread_1/runs/run_1/submit_tool_outputs", r.URL.Path)

		var payload struct {
			ToolOutputs []map[string]string `json:"tool_outputs"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		require.Len(t, payload.ToolOutputs, 1)
		assert.Equal(t, "call_1", payload.ToolOutputs[0]["tool_call_id"])
		assert.Equal(t, `{"success":true}`, payload.ToolOutputs[0]["output"])

		w.Write([]byte(`{"id":"run_1","status":"queued"}`))
	}))
	defer srv.Close()

	err := newTestClient(srv).SubmitToolOutputs(context.Background(), "thread_1", "run_1",
		[]ToolOutput{{CallID: "call_1", Output: `{"success":true}`}})
	assert.NoError(t, err)
}

func TestClientListMessagesExtractsText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/threads/thread_1/messages", r.URL.Path)
		assert.Equal(t, "desc", r.URL.Query().Get("order"))

		w.Write([]byte(`{
			"data": [
				{"id": "msg_2", "role": "assistant", "run_id": "run_1", "content": [
					{"type": "image_file"},
					{"type": "text", "text": {"value": "The answer."}}
				]},
				{"id": "msg_1", "role": "user", "run_id": "", "content": [
					{"type": "text", "text": {"value": "The question?"}}
				]}
			]
		}`))
	}))
	defer srv.Close()

	messages, err := newTestClient(srv).ListMessages(context.Background(), "thread_1")
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, "assistant", messages[0].Role)
	assert.Equal(t, "run_1", messages[0].RunRef)
	assert.True(t, messages[0].IsText)
	assert.Equal(t, "The answer.", messages[0].Text)
}

func TestClientErrorStatusIsClassified(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`{"error":{"message":"overloaded"}}`))
	}))
	defer srv.Close()

	_, err := newTestClient(srv).CreateThread(context.Background())
	require.Error(t, err)

	var upstream *apperr.UpstreamUnavailable
	require.ErrorAs(t, err, &upstream)
	assert.Contains(t, upstream.Detail, "overloaded")
}

func TestClientCreateRunRequiresAssistantID(t *testing.T) {
	client := &Client{APIKey: "sk_test", APIBaseURL: "http://unused", HTTPClient: http.DefaultClient}
	_, err := client.CreateRun(context.Background(), "thread_1")
	assert.Error(t, err)
}
