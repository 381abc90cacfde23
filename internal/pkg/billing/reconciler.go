// Package billing applies the billing provider's event feed to entitlement
// records and owns the two outbound provider RPCs the system needs to start
// a payment flow.
package billing

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/parleyhq/parley/app/models"
	"github.com/parleyhq/parley/app/repository"
)

// Reconciler applies normalized billing events to the entitlement store.
// Every mapping writes absolute state, so redelivered events are harmless.
type Reconciler struct {
	repo repository.EntitlementRepository
}

// NewReconciler creates a reconciler over the given record store.
func NewReconciler(repo repository.EntitlementRepository) *Reconciler {
	return &Reconciler{repo: repo}
}

// Apply reconciles one event. An event whose customer reference matches no
// stored record is logged and dropped: the reference may predate linkage or
// belong to another system, so this is not an error.
func (r *Reconciler) Apply(ctx context.Context, event Event) error {
	if event.Kind == EventInvoicePaid {
		// Informational only; subscription-state events are authoritative.
		return nil
	}

	_, err := r.repo.UpdateByBillingCustomerRef(ctx, event.BillingCustomerRef, func(record *models.EntitlementRecord) error {
		next(record, event)
		return nil
	})
	if errors.Is(err, gorm.ErrRecordNotFound) {
		log.Infof("[Billing] dropping %s for unknown customer ref %s", event.Kind, event.BillingCustomerRef)
		return nil
	}
	return err
}

// next computes the full successor state for one event. It sets absolute
// values and never increments, which is what makes Apply idempotent under
// at-least-once delivery.
func next(record *models.EntitlementRecord, event Event) {
	if event.BillingSubscriptionRef != "" && event.Kind != EventSubscriptionDeleted {
		record.BillingSubscriptionRef = event.BillingSubscriptionRef
	}

	switch event.Kind {
	case EventSubscriptionActive:
		record.Plan = models.PlanActive
		record.TrialExpiry = nil
	case EventSubscriptionTrialing:
		// A trialing record always carries its expiry; a trial event with
		// no end date is stored expired instead of open-ended.
		if event.TrialEndsAt == nil {
			record.Plan = models.PlanExpired
			record.TrialExpiry = nil
			break
		}
		record.Plan = models.PlanTrialing
		record.TrialExpiry = event.TrialEndsAt
	case EventSubscriptionExpired, EventInvoicePaymentFailed:
		record.Plan = models.PlanExpired
		record.TrialExpiry = nil
	case EventSubscriptionDeleted:
		record.Plan = models.PlanExpired
		record.TrialExpiry = nil
		record.BillingSubscriptionRef = ""
	}
}
