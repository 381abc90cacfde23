package assistant

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDispatchRegisteredTool(t *testing.T) {
	d := NewDispatcher()
	d.Register("echo", func(_ context.Context, arguments string) (string, error) {
		return arguments, nil
	})

	out := d.Dispatch(context.Background(), "echo", `{"msg":"hi"}`)
	assert.Equal(t, `{"msg":"hi"}`, out)
}

func TestDispatchUnknownToolReturnsPlaceholder(t *testing.T) {
	d := NewDispatcher()

	out := d.Dispatch(context.Background(), "does_not_exist", `{}`)
	assert.Equal(t, unknownToolOutput, out)
}

func TestDispatchToolErrorBecomesErrorDocument(t *testing.T) {
	d := NewDispatcher()
	d.Register("broken", func(context.Context, string) (string, error) {
		return "", errors.New("backend unreachable")
	})

	out := d.Dispatch(context.Background(), "broken", `{}`)
	assert.JSONEq(t, `{"error":"backend unreachable"}`, out)
}

func TestRegisterReplacesTool(t *testing.T) {
	d := NewDispatcher()
	d.Register("tool", func(context.Context, string) (string, error) { return "v1", nil })
	d.Register("tool", func(context.Context, string) (string, error) { return "v2", nil })

	assert.Equal(t, "v2", d.Dispatch(context.Background(), "tool", `{}`))
}
