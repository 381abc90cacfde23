package repository

import (
	"context"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/parleyhq/parley/app/models"
)

// entitlementRepository implements EntitlementRepository on GORM.
type entitlementRepository struct {
	db *gorm.DB
}

// NewEntitlementRepository creates an entitlement repository instance.
func NewEntitlementRepository(db *gorm.DB) EntitlementRepository {
	return &entitlementRepository{db: db}
}

func (r *entitlementRepository) GetByIdentity(identity string) (*models.EntitlementRecord, error) {
	var record models.EntitlementRecord
	err := r.db.Where("identity = ?", identity).First(&record).Error
	if err != nil {
		return nil, err
	}
	return &record, nil
}

func (r *entitlementRepository) GetOrCreate(identity, email, displayName string) (*models.EntitlementRecord, error) {
	id := strings.TrimSpace(identity)
	if id == "" {
		return nil, gorm.ErrPrimaryKeyRequired
	}

	record := models.NewEntitlementRecord(id, strings.TrimSpace(email), strings.TrimSpace(displayName), time.Now())
	if err := r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "identity"}},
		DoNothing: true,
	}).Create(record).Error; err != nil {
		return nil, err
	}

	// Re-read so a lost insert race still returns the winning row.
	return r.GetByIdentity(id)
}

func (r *entitlementRepository) GetByBillingCustomerRef(ref string) (*models.EntitlementRecord, error) {
	var record models.EntitlementRecord
	err := r.db.Where("billing_customer_ref = ?", ref).First(&record).Error
	if err != nil {
		return nil, err
	}
	return &record, nil
}

func (r *entitlementRepository) Save(record *models.EntitlementRecord) error {
	return r.db.Save(record).Error
}

func (r *entitlementRepository) UpdateByIdentity(ctx context.Context, identity string, fn func(*models.EntitlementRecord) error) (*models.EntitlementRecord, error) {
	return r.updateLocked(ctx, "identity = ?", identity, fn)
}

func (r *entitlementRepository) UpdateByBillingCustomerRef(ctx context.Context, ref string, fn func(*models.EntitlementRecord) error) (*models.EntitlementRecord, error) {
	return r.updateLocked(ctx, "billing_customer_ref = ?", ref, fn)
}

// updateLocked serializes read-modify-write per record: the row is locked
// FOR UPDATE inside a transaction so a trial-expiry check racing a billing
// event for the same identity cannot lose an update.
func (r *entitlementRepository) updateLocked(ctx context.Context, query string, arg any, fn func(*models.EntitlementRecord) error) (*models.EntitlementRecord, error) {
	var record models.EntitlementRecord
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where(query, arg).First(&record).Error; err != nil {
			return err
		}
		if err := fn(&record); err != nil {
			return err
		}
		return tx.Save(&record).Error
	})
	if err != nil {
		return nil, err
	}
	return &record, nil
}
