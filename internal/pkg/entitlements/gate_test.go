package entitlements

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/parleyhq/parley/app/models"
)

// fakeRepo is an in-memory EntitlementRepository with the same observable
// semantics as the GORM implementation.
type fakeRepo struct {
	mu      sync.Mutex
	records map[string]*models.EntitlementRecord
	now     func() time.Time
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{records: make(map[string]*models.EntitlementRecord), now: time.Now}
}

func (r *fakeRepo) GetByIdentity(identity string) (*models.EntitlementRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	record, ok := r.records[identity]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	clone := *record
	return &clone, nil
}

func (r *fakeRepo) GetOrCreate(identity, email, displayName string) (*models.EntitlementRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if record, ok := r.records[identity]; ok {
		clone := *record
		return &clone, nil
	}
	record := models.NewEntitlementRecord(identity, email, displayName, r.now())
	r.records[identity] = record
	clone := *record
	return &clone, nil
}

func (r *fakeRepo) GetByBillingCustomerRef(ref string) (*models.EntitlementRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, record := range r.records {
		if record.BillingCustomerRef == ref && ref != "" {
			clone := *record
			return &clone, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *fakeRepo) Save(record *models.EntitlementRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	clone := *record
	r.records[record.Identity] = &clone
	return nil
}

func (r *fakeRepo) UpdateByIdentity(_ context.Context, identity string, fn func(*models.EntitlementRecord) error) (*models.EntitlementRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	record, ok := r.records[identity]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	if err := fn(record); err != nil {
		return nil, err
	}
	clone := *record
	return &clone, nil
}

func (r *fakeRepo) UpdateByBillingCustomerRef(_ context.Context, ref string, fn func(*models.EntitlementRecord) error) (*models.EntitlementRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, record := range r.records {
		if record.BillingCustomerRef == ref && ref != "" {
			if err := fn(record); err != nil {
				return nil, err
			}
			clone := *record
			return &clone, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func TestGateFirstSightCreatesTrial(t *testing.T) {
	repo := newFakeRepo()
	gate := NewGate(repo)

	decision, err := gate.Check(context.Background(), "user-1", "u1@example.com", "User One")
	require.NoError(t, err)
	assert.True(t, decision.Allowed)
	assert.Equal(t, models.PlanTrialing, decision.Record.Plan)
	require.NotNil(t, decision.Record.TrialExpiry)

	// Repeated checks reuse the record instead of re-creating it.
	again, err := gate.Check(context.Background(), "user-1", "", "")
	require.NoError(t, err)
	assert.True(t, again.Allowed)
	assert.Equal(t, decision.Record.TrialExpiry.Unix(), again.Record.TrialExpiry.Unix())
	assert.Equal(t, "u1@example.com", again.Record.Email)
}

func TestGateAllowsActiveTrial(t *testing.T) {
	repo := newFakeRepo()
	future := time.Now().Add(24 * time.Hour)
	repo.Save(&models.EntitlementRecord{Identity: "user-1", Plan: models.PlanTrialing, TrialExpiry: &future})

	gate := NewGate(repo)
	decision, err := gate.Check(context.Background(), "user-1", "", "")
	require.NoError(t, err)
	assert.True(t, decision.Allowed)

	// No mutation on the allow path.
	stored, err := repo.GetByIdentity("user-1")
	require.NoError(t, err)
	assert.Equal(t, models.PlanTrialing, stored.Plan)
	require.NotNil(t, stored.TrialExpiry)
}

func TestGateExpiresLapsedTrial(t *testing.T) {
	repo := newFakeRepo()
	past := time.Now().Add(-time.Minute)
	repo.Save(&models.EntitlementRecord{Identity: "user-1", Plan: models.PlanTrialing, TrialExpiry: &past})

	gate := NewGate(repo)
	decision, err := gate.Check(context.Background(), "user-1", "", "")
	require.NoError(t, err)
	assert.False(t, decision.Allowed)
	assert.Equal(t, ReasonTrialExpired, decision.Reason)

	stored, err := repo.GetByIdentity("user-1")
	require.NoError(t, err)
	assert.Equal(t, models.PlanExpired, stored.Plan)
	assert.Nil(t, stored.TrialExpiry)

	// Re-running the check is a no-op after the first write.
	decision, err = gate.Check(context.Background(), "user-1", "", "")
	require.NoError(t, err)
	assert.False(t, decision.Allowed)
	assert.Equal(t, ReasonPlanExpired, decision.Reason)
}

func TestGateDeniesExpiredPlan(t *testing.T) {
	repo := newFakeRepo()
	repo.Save(&models.EntitlementRecord{Identity: "user-1", Plan: models.PlanExpired})

	gate := NewGate(repo)
	decision, err := gate.Check(context.Background(), "user-1", "", "")
	require.NoError(t, err)
	assert.False(t, decision.Allowed)
	assert.Equal(t, ReasonPlanExpired, decision.Reason)
}

func TestGateAllowsActivePlan(t *testing.T) {
	repo := newFakeRepo()
	repo.Save(&models.EntitlementRecord{Identity: "user-1", Plan: models.PlanActive})

	gate := NewGate(repo)
	decision, err := gate.Check(context.Background(), "user-1", "", "")
	require.NoError(t, err)
	assert.True(t, decision.Allowed)
}

func TestGateDeniesUnknownPlan(t *testing.T) {
	repo := newFakeRepo()
	repo.Save(&models.EntitlementRecord{Identity: "user-1", Plan: "enterprise"})

	gate := NewGate(repo)
	decision, err := gate.Check(context.Background(), "user-1", "", "")
	require.NoError(t, err)
	assert.False(t, decision.Allowed)
	assert.Equal(t, ReasonUnknownPlan, decision.Reason)

	// Deny-by-default must not rewrite the faulty record.
	stored, err := repo.GetByIdentity("user-1")
	require.NoError(t, err)
	assert.Equal(t, "enterprise", stored.Plan)
}
