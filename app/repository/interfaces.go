package repository

import (
	"context"

	"github.com/parleyhq/parley/app/models"
)

// EntitlementRepository is the keyed store for entitlement records. Records
// are keyed by the identity-provider subject; billing webhook processing
// additionally resolves records by their billing customer reference.
type EntitlementRepository interface {
	GetByIdentity(identity string) (*models.EntitlementRecord, error)
	// GetOrCreate returns the existing record for identity or creates the
	// trial default. Claims metadata fills email/display name on creation
	// only; concurrent first-sight calls converge on a single record.
	GetOrCreate(identity, email, displayName string) (*models.EntitlementRecord, error)
	GetByBillingCustomerRef(ref string) (*models.EntitlementRecord, error)
	Save(record *models.EntitlementRecord) error
	// UpdateByIdentity runs fn on the current record under a per-record
	// write lock and persists the full result atomically. fn mutates the
	// loaded record in place; returning an error aborts without writing.
	UpdateByIdentity(ctx context.Context, identity string, fn func(*models.EntitlementRecord) error) (*models.EntitlementRecord, error)
	// UpdateByBillingCustomerRef is UpdateByIdentity keyed by the billing
	// customer reference. Returns gorm.ErrRecordNotFound when no record is
	// linked to ref.
	UpdateByBillingCustomerRef(ctx context.Context, ref string, fn func(*models.EntitlementRecord) error) (*models.EntitlementRecord, error)
}
