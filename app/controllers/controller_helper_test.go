package controllers

import (
	"encoding/json"
	"errors"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parleyhq/parley/internal/pkg/apperr"
)

func TestRespondClassifiedError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantError  string
	}{
		{
			name:       "auth required",
			err:        apperr.ErrAuthRequired,
			wantStatus: fiber.StatusUnauthorized,
			wantError:  "unauthorized",
		},
		{
			name:       "entitlement denied",
			err:        &apperr.EntitlementDenied{Reason: "trial expired"},
			wantStatus: fiber.StatusForbidden,
			wantError:  "entitlement_denied",
		},
		{
			name:       "assistant run failed",
			err:        &apperr.AssistantRunFailed{Code: "server_error", Message: "boom"},
			wantStatus: fiber.StatusInternalServerError,
			wantError:  "assistant_run_failed",
		},
		{
			name:       "run timed out",
			err:        &apperr.RunTimedOut{RunID: "run_1"},
			wantStatus: fiber.StatusInternalServerError,
			wantError:  "run_timed_out",
		},
		{
			name:       "upstream unavailable",
			err:        &apperr.UpstreamUnavailable{Op: "create thread"},
			wantStatus: fiber.StatusInternalServerError,
			wantError:  "upstream_unavailable",
		},
		{
			name:       "unclassified",
			err:        errors.New("boom"),
			wantStatus: fiber.StatusInternalServerError,
			wantError:  "internal_server_error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := fiber.New()
			app.Get("/", func(c *fiber.Ctx) error {
				return respondClassifiedError(c, tt.err)
			})

			resp, err := app.Test(httptest.NewRequest("GET", "/", nil))
			require.NoError(t, err)
			defer resp.Body.Close()

			assert.Equal(t, tt.wantStatus, resp.StatusCode)

			var body map[string]any
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
			assert.Equal(t, tt.wantError, body["error"])
		})
	}
}
