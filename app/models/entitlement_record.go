package models

import "time"

// Plan values for an entitlement record.
const (
	PlanTrialing = "trialing"
	PlanActive   = "active"
	PlanExpired  = "expired"
)

// TrialDuration is granted once, when an identity is first seen.
const TrialDuration = 7 * 24 * time.Hour

// EntitlementRecord holds the billing/trial state for one identity-provider
// subject. Exactly one record exists per identity; it is created on first
// sight and never deleted by the application.
type EntitlementRecord struct {
	ID                     uint       `gorm:"primaryKey" json:"id"`
	Identity               string     `gorm:"type:varchar(191);not null;uniqueIndex" json:"identity"`
	Plan                   string     `gorm:"type:varchar(20);not null;default:'trialing';index" json:"plan"`
	TrialExpiry            *time.Time `gorm:"type:timestamp;default:null" json:"trial_expiry,omitempty"`
	BillingCustomerRef     string     `gorm:"type:varchar(191);default:'';index" json:"billing_customer_ref"`
	BillingSubscriptionRef string     `gorm:"type:varchar(191);default:''" json:"billing_subscription_ref"`
	Email                  string     `gorm:"type:varchar(200);default:''" json:"email"`
	DisplayName            string     `gorm:"type:varchar(200);default:''" json:"display_name"`
	CreatedAt              time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt              time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// IsTrialExpired reports whether the record is trialing with an expiry in
// the past. A trialing record without an expiry violates the data model and
// is treated as expired rather than granting open-ended access.
func (r *EntitlementRecord) IsTrialExpired(now time.Time) bool {
	if r.Plan != PlanTrialing {
		return false
	}
	if r.TrialExpiry == nil {
		return true
	}
	return !now.Before(*r.TrialExpiry)
}

// NewEntitlementRecord builds the default record for a first-seen identity:
// a trial that runs TrialDuration from now. Claims populate display metadata
// only, never the plan.
func NewEntitlementRecord(identity, email, displayName string, now time.Time) *EntitlementRecord {
	expiry := now.Add(TrialDuration)
	return &EntitlementRecord{
		Identity:    identity,
		Plan:        PlanTrialing,
		TrialExpiry: &expiry,
		Email:       email,
		DisplayName: displayName,
	}
}
