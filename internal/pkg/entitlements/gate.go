// Package entitlements decides, per request, whether an identity may use
// the assistant. The gate is the only request-path writer of entitlement
// records; billing webhooks mutate the same records asynchronously through
// the billing reconciler.
package entitlements

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/parleyhq/parley/app/models"
	"github.com/parleyhq/parley/app/repository"
	"github.com/parleyhq/parley/internal/pkg/apperr"
)

// Deny reasons surfaced to the caller with a 403.
const (
	ReasonTrialExpired = "trial expired"
	ReasonPlanExpired  = "plan expired"
	ReasonUnknownPlan  = "unknown plan state"
)

// Decision is the gate's verdict for one request.
type Decision struct {
	Allowed bool
	Reason  string
	Record  *models.EntitlementRecord
}

// Gate classifies an identity's entitlement into allow/deny and lazily
// expires trials on first sight past their expiry.
type Gate struct {
	repo repository.EntitlementRepository
	now  func() time.Time
}

// NewGate creates a gate over the given record store.
func NewGate(repo repository.EntitlementRepository) *Gate {
	return &Gate{repo: repo, now: time.Now}
}

// Check runs the gate for one protected request. Claims fill display
// metadata when the identity is first seen; they never influence the plan.
// A storage failure is returned as-is; every business outcome is a Decision.
func (g *Gate) Check(ctx context.Context, identity, email, displayName string) (Decision, error) {
	record, err := g.repo.GetOrCreate(identity, email, displayName)
	if err != nil {
		return Decision{}, err
	}

	now := g.now()
	if record.IsTrialExpired(now) {
		record, err = g.expireTrial(ctx, identity, now)
		if err != nil {
			return Decision{}, err
		}
		if record.Plan == models.PlanExpired {
			return Decision{Allowed: false, Reason: ReasonTrialExpired, Record: record}, nil
		}
		// A concurrent billing event replaced the lapsed trial; fall
		// through and classify the fresh state.
	}

	switch record.Plan {
	case models.PlanTrialing, models.PlanActive:
		return Decision{Allowed: true, Record: record}, nil
	case models.PlanExpired:
		return Decision{Allowed: false, Reason: ReasonPlanExpired, Record: record}, nil
	default:
		// No correct writer produces this; deny rather than allow and make
		// sure an operator sees it.
		fault := &apperr.DataIntegrityFault{Detail: "entitlement record " + identity + " has unknown plan " + record.Plan}
		log.Errorf("[Entitlements] %v", fault)
		return Decision{Allowed: false, Reason: ReasonUnknownPlan, Record: record}, nil
	}
}

// expireTrial flips a lapsed trial to expired under the per-record lock.
// Re-running after another request already expired the record is a no-op.
func (g *Gate) expireTrial(ctx context.Context, identity string, now time.Time) (*models.EntitlementRecord, error) {
	return g.repo.UpdateByIdentity(ctx, identity, func(r *models.EntitlementRecord) error {
		if r.Plan == models.PlanTrialing && r.IsTrialExpired(now) {
			r.Plan = models.PlanExpired
			r.TrialExpiry = nil
		}
		return nil
	})
}
