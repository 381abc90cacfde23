package billing

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// EventKind is the normalized, provider-agnostic billing event variant.
type EventKind string

const (
	EventSubscriptionActive   EventKind = "subscription_active"
	EventSubscriptionTrialing EventKind = "subscription_trialing"
	EventSubscriptionExpired  EventKind = "subscription_expired"
	EventSubscriptionDeleted  EventKind = "subscription_deleted"
	EventInvoicePaid          EventKind = "invoice_paid"
	EventInvoicePaymentFailed EventKind = "invoice_payment_failed"
)

// Event is one normalized billing event ready for reconciliation. Every
// event carries the provider's customer reference; subscription events also
// carry the subscription reference, and trialing events the trial end.
type Event struct {
	Kind                   EventKind
	BillingCustomerRef     string
	BillingSubscriptionRef string
	TrialEndsAt            *time.Time
}

// stripeEnvelope is the slice of a Stripe webhook payload this core reads.
// No other field of the upstream payload is interpreted.
type stripeEnvelope struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object struct {
			ID       string `json:"id"`
			Customer string `json:"customer"`
			Status   string `json:"status"`
			TrialEnd int64  `json:"trial_end"`
		} `json:"object"`
	} `json:"data"`
}

// ParseStripeEvent normalizes a raw Stripe webhook payload. The returned
// event is nil (with no error) for event types this system does not
// consume; callers record and acknowledge those without reconciling.
func ParseStripeEvent(payload []byte) (eventID, eventType string, event *Event, err error) {
	var raw stripeEnvelope
	if err := json.Unmarshal(payload, &raw); err != nil {
		return "", "", nil, fmt.Errorf("invalid stripe payload: %w", err)
	}

	customerRef := strings.TrimSpace(raw.Data.Object.Customer)
	subscriptionRef := strings.TrimSpace(raw.Data.Object.ID)

	var kind EventKind
	switch raw.Type {
	case "customer.subscription.created", "customer.subscription.updated":
		switch raw.Data.Object.Status {
		case "trialing":
			kind = EventSubscriptionTrialing
		case "canceled", "unpaid", "incomplete_expired":
			kind = EventSubscriptionExpired
		default:
			// active, past_due and the remaining statuses keep access; the
			// provider follows up with a terminal event when access ends.
			kind = EventSubscriptionActive
		}
	case "customer.subscription.deleted":
		kind = EventSubscriptionDeleted
	case "invoice.paid":
		kind = EventInvoicePaid
		subscriptionRef = "" // object id is the invoice, not a subscription
	case "invoice.payment_failed":
		kind = EventInvoicePaymentFailed
		subscriptionRef = ""
	default:
		return strings.TrimSpace(raw.ID), raw.Type, nil, nil
	}

	if customerRef == "" {
		return strings.TrimSpace(raw.ID), raw.Type, nil, errors.New("stripe event missing customer reference")
	}

	ev := &Event{
		Kind:                   kind,
		BillingCustomerRef:     customerRef,
		BillingSubscriptionRef: subscriptionRef,
	}
	if kind == EventSubscriptionTrialing && raw.Data.Object.TrialEnd > 0 {
		t := time.Unix(raw.Data.Object.TrialEnd, 0).UTC()
		ev.TrialEndsAt = &t
	}
	return strings.TrimSpace(raw.ID), raw.Type, ev, nil
}
