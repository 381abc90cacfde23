package repository

import (
	"sync"

	"gorm.io/gorm"

	"github.com/parleyhq/parley/internal/pkg/database"
)

// Factory manages repository instances and ensures they are singletons
type Factory struct {
	db    *gorm.DB
	repos *Repositories
	once  sync.Once
}

// Repositories bundles all repository instances.
type Repositories struct {
	Entitlement EntitlementRepository
}

// NewFactory creates a new repository factory
func NewFactory(db *gorm.DB) *Factory {
	return &Factory{db: db}
}

// GetRepositories returns a singleton instance of all repositories
func (f *Factory) GetRepositories() *Repositories {
	f.once.Do(func() {
		f.repos = &Repositories{
			Entitlement: NewEntitlementRepository(f.db),
		}
	})
	return f.repos
}

// GetEntitlementRepository returns the entitlement repository instance
func (f *Factory) GetEntitlementRepository() EntitlementRepository {
	return f.GetRepositories().Entitlement
}

var (
	globalFactory     *Factory
	globalFactoryOnce sync.Once
)

// GetGlobalFactory returns the process-wide factory bound to the default DB.
func GetGlobalFactory() *Factory {
	globalFactoryOnce.Do(func() {
		globalFactory = NewFactory(database.GetDB())
	})
	return globalFactory
}
