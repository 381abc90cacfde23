package controllers

import (
	"errors"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/parleyhq/parley/internal/pkg/apperr"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New()
	})
	return validate
}

// respondClassifiedError maps the error taxonomy onto the API surface.
// Denials carry an actionable reason; everything else gets a generic
// message plus an internal detail string for operators, never a stack
// trace or raw upstream payload.
func respondClassifiedError(c *fiber.Ctx, err error) error {
	if errors.Is(err, apperr.ErrAuthRequired) {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error":   "unauthorized",
			"message": "login required",
		})
	}

	var denied *apperr.EntitlementDenied
	if errors.As(err, &denied) {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"error":  "entitlement_denied",
			"reason": denied.Reason,
		})
	}

	var runFailed *apperr.AssistantRunFailed
	if errors.As(err, &runFailed) {
		log.Errorf("[Chat] assistant run failed: code=%s message=%s", runFailed.Code, runFailed.Message)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error":  "assistant_run_failed",
			"detail": runFailed.Code,
		})
	}

	var timedOut *apperr.RunTimedOut
	if errors.As(err, &timedOut) {
		log.Errorf("[Chat] %v", timedOut)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "run_timed_out",
		})
	}

	var upstream *apperr.UpstreamUnavailable
	if errors.As(err, &upstream) {
		log.Errorf("[Chat] upstream failure: %v", upstream)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "upstream_unavailable",
		})
	}

	log.Errorf("[Chat] unclassified failure: %v", err)
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"error": "internal_server_error",
	})
}
