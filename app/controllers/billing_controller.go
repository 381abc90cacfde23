package controllers

import (
	"context"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/parleyhq/parley/app/models"
	"github.com/parleyhq/parley/app/repository"
	"github.com/parleyhq/parley/internal/pkg/apperr"
	"github.com/parleyhq/parley/internal/pkg/billing"
	"github.com/parleyhq/parley/internal/pkg/database"
	"github.com/parleyhq/parley/internal/pkg/env"
	"github.com/parleyhq/parley/internal/pkg/usercontext"
)

// SubscribeRequest optionally overrides the configured price.
type SubscribeRequest struct {
	PriceRef string `json:"price_ref"`
}

// HandleCreateSubscription starts the payment flow: ensures a billing
// customer exists for the caller, creates the subscription and returns the
// client secret the frontend needs to confirm payment. Plan state is not
// touched here; only the provider's event feed moves it.
func HandleCreateSubscription(c *fiber.Ctx) error {
	uc := usercontext.GetUserContext(c)
	if !uc.IsAuthenticated {
		return respondClassifiedError(c, apperr.ErrAuthRequired)
	}

	var req SubscribeRequest
	// An empty body is fine; the configured price applies.
	_ = c.BodyParser(&req)

	repo := repository.GetGlobalFactory().GetEntitlementRepository()
	record, err := repo.GetOrCreate(uc.Identity, uc.Email, uc.DisplayName)
	if err != nil {
		return respondClassifiedError(c, err)
	}

	client := billing.NewStripeClientFromEnv()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	customerRef := record.BillingCustomerRef
	if customerRef == "" {
		customerRef, err = client.CreateCustomer(ctx, uc.Email, uc.DisplayName, map[string]string{"identity": uc.Identity})
		if err != nil {
			return respondClassifiedError(c, err)
		}
		if _, err := repo.UpdateByIdentity(ctx, uc.Identity, func(r *models.EntitlementRecord) error {
			if r.BillingCustomerRef == "" {
				r.BillingCustomerRef = customerRef
			} else {
				customerRef = r.BillingCustomerRef
			}
			return nil
		}); err != nil {
			return respondClassifiedError(c, err)
		}
	}

	intent, err := client.CreateSubscription(ctx, customerRef, strings.TrimSpace(req.PriceRef))
	if err != nil {
		return respondClassifiedError(c, err)
	}

	if _, err := repo.UpdateByIdentity(ctx, uc.Identity, func(r *models.EntitlementRecord) error {
		r.BillingSubscriptionRef = intent.SubscriptionRef
		return nil
	}); err != nil {
		return respondClassifiedError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"subscription_ref": intent.SubscriptionRef,
		"client_secret":    intent.ClientSecret,
	})
}

// HandleBillingWebhook terminates the provider's event feed. The intake
// verifies the signature before anything is persisted; only verified
// deliveries enter the dedupe ledger.
func HandleBillingWebhook(c *fiber.Ctx) error {
	rawBody := append([]byte(nil), c.BodyRaw()...)

	intake := billing.NewWebhookIntake(
		billing.NewServiceFromDB(database.GetDB()),
		billing.NewReconciler(repository.GetGlobalFactory().GetEntitlementRepository()),
		env.GetEnv("STRIPE_WEBHOOK_SECRET", ""),
	)

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	outcome, err := intake.Process(ctx, rawBody, strings.TrimSpace(c.Get("Stripe-Signature")))
	if err != nil {
		log.Errorf("[Billing] webhook processing failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "webhook_processing_failed"})
	}

	switch outcome {
	case billing.DeliveryRejected:
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid_signature"})
	case billing.DeliveryMalformed:
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_payload"})
	case billing.DeliveryDuplicate:
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true, "duplicate": true})
	case billing.DeliveryIgnored:
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true, "ignored": true})
	default:
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true})
	}
}
