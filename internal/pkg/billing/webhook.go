package billing

import (
	"context"
	"time"

	"github.com/parleyhq/parley/app/models"
)

// DeliveryOutcome classifies one webhook delivery for the HTTP layer.
type DeliveryOutcome int

const (
	// DeliveryAccepted: stored and reconciled.
	DeliveryAccepted DeliveryOutcome = iota
	// DeliveryDuplicate: an already-ledgered delivery, acknowledged again.
	DeliveryDuplicate
	// DeliveryIgnored: authentic, but an event type this system does not consume.
	DeliveryIgnored
	// DeliveryRejected: signature verification failed. Nothing is stored.
	DeliveryRejected
	// DeliveryMalformed: authentic but undecodable payload.
	DeliveryMalformed
)

// WebhookIntake terminates the provider's event feed: verify, ledger,
// reconcile, in that order. Only verified deliveries reach the ledger, so a
// forged or misconfigured delivery can never occupy an event ID and shadow
// the genuine delivery as a duplicate.
type WebhookIntake struct {
	svc        *Service
	reconciler *Reconciler
	secret     string
	now        func() time.Time
}

// NewWebhookIntake wires the intake over the event ledger and reconciler.
func NewWebhookIntake(svc *Service, reconciler *Reconciler, secret string) *WebhookIntake {
	return &WebhookIntake{svc: svc, reconciler: reconciler, secret: secret, now: time.Now}
}

// Process handles one delivery. The outcome is meaningful only when the
// error is nil; a non-nil error means storage or reconciliation failed and
// the provider should redeliver.
func (i *WebhookIntake) Process(ctx context.Context, payload []byte, signatureHeader string) (DeliveryOutcome, error) {
	if !VerifyStripeWebhookSignature(payload, signatureHeader, i.secret, i.now()) {
		return DeliveryRejected, nil
	}

	eventID, eventType, event, parseErr := ParseStripeEvent(payload)

	created, stored, err := i.svc.RecordWebhookEvent(ctx, WebhookEventInput{
		Provider:        models.BillingProviderStripe,
		ProviderEventID: eventID,
		EventType:       eventType,
		PayloadJSON:     string(payload),
		SignatureValid:  true,
	})
	if err != nil {
		return DeliveryAccepted, err
	}
	if !created {
		return DeliveryDuplicate, nil
	}
	if parseErr != nil {
		_ = i.svc.MarkWebhookProcessed(ctx, stored.ID, parseErr)
		return DeliveryMalformed, nil
	}
	if event == nil {
		_ = i.svc.MarkWebhookProcessed(ctx, stored.ID, nil)
		return DeliveryIgnored, nil
	}

	applyErr := i.reconciler.Apply(ctx, *event)
	_ = i.svc.MarkWebhookProcessed(ctx, stored.ID, applyErr)
	return DeliveryAccepted, applyErr
}
