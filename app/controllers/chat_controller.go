package controllers

import (
	"context"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/parleyhq/parley/app/repository"
	"github.com/parleyhq/parley/internal/pkg/apperr"
	"github.com/parleyhq/parley/internal/pkg/archive"
	"github.com/parleyhq/parley/internal/pkg/assistant"
	"github.com/parleyhq/parley/internal/pkg/entitlements"
	"github.com/parleyhq/parley/internal/pkg/env"
	"github.com/parleyhq/parley/internal/pkg/usercontext"
)

var (
	coordinator     *assistant.Coordinator
	toolsDispatcher *assistant.Dispatcher
	coordinatorOnce sync.Once
)

// getCoordinator lazily wires the assistant client and tool dispatcher.
func getCoordinator() *assistant.Coordinator {
	coordinatorOnce.Do(func() {
		toolsDispatcher = assistant.NewDispatcher()
		coordinator = assistant.NewCoordinator(assistant.NewClientFromEnv(), toolsDispatcher,
			assistant.WithTurnDeadline(env.GetDuration("CHAT_TURN_DEADLINE", 2*time.Minute)))
	})
	return coordinator
}

// RegisterTool exposes tool registration to the composition root.
func RegisterTool(name string, fn assistant.ToolFunc) {
	getCoordinator()
	toolsDispatcher.Register(name, fn)
}

func getGate() *entitlements.Gate {
	return entitlements.NewGate(repository.GetGlobalFactory().GetEntitlementRepository())
}

// requireEntitlement runs the access gate for the authenticated caller.
// ok is true when the request may proceed; otherwise the denial or failure
// response has been written and its result must be returned.
func requireEntitlement(c *fiber.Ctx) (ok bool, err error) {
	uc := usercontext.GetUserContext(c)
	if !uc.IsAuthenticated {
		return false, respondClassifiedError(c, apperr.ErrAuthRequired)
	}

	decision, gateErr := getGate().Check(c.Context(), uc.Identity, uc.Email, uc.DisplayName)
	if gateErr != nil {
		return false, respondClassifiedError(c, gateErr)
	}
	if !decision.Allowed {
		return false, c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"error":  "entitlement_denied",
			"reason": decision.Reason,
		})
	}
	return true, nil
}

// HandleCreateThread starts a new turn context and returns its reference.
func HandleCreateThread(c *fiber.Ctx) error {
	if ok, err := requireEntitlement(c); !ok {
		return err
	}

	// The turn is deliberately detached from the connection: a caller
	// disconnect does not cancel the external work, the coordinator's own
	// deadline bounds it.
	threadRef, err := getCoordinator().StartThread(context.Background())
	if err != nil {
		return respondClassifiedError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"thread_ref": threadRef})
}

// ChatRequest is the execute-turn payload.
type ChatRequest struct {
	ThreadRef string `json:"thread_ref" validate:"required"`
	Message   string `json:"message" validate:"required"`
}

// HandleChat executes one conversation turn and returns the reply text.
func HandleChat(c *fiber.Ctx) error {
	var req ChatRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "invalid JSON body"})
	}
	if err := getValidator().Struct(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "thread_ref and message are required"})
	}

	if ok, err := requireEntitlement(c); !ok {
		return err
	}

	reply, err := getCoordinator().Execute(context.Background(), req.ThreadRef, req.Message)
	if err != nil {
		return respondClassifiedError(c, err)
	}

	archive.Enqueue(usercontext.GetIdentity(c), req.ThreadRef, req.Message, reply)

	return c.Status(fiber.StatusOK).JSON(fiber.Map{"reply": reply})
}

// HandleGetAccount returns the caller's entitlement snapshot for the UI.
func HandleGetAccount(c *fiber.Ctx) error {
	uc := usercontext.GetUserContext(c)
	if !uc.IsAuthenticated {
		return respondClassifiedError(c, apperr.ErrAuthRequired)
	}

	record, err := repository.GetGlobalFactory().GetEntitlementRepository().GetOrCreate(uc.Identity, uc.Email, uc.DisplayName)
	if err != nil {
		return respondClassifiedError(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"identity":     record.Identity,
		"plan":         record.Plan,
		"trial_expiry": record.TrialExpiry,
		"has_billing":  record.BillingCustomerRef != "",
	})
}
