package database

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/jmoiron/sqlx"
)

// Tenant bundles one guild's database handle and store.
type Tenant struct {
	GuildID string
	DB      *sqlx.DB
	Store   Store
}

// Registry opens and caches one database per guild. Each guild gets its own
// file derived from a path template, so tenants never share state.
type Registry struct {
	pathTemplate string
	logger       *slog.Logger

	mu      sync.Mutex
	tenants map[string]*Tenant
}

// NewRegistry creates a Registry. pathTemplate must contain a single %s
// placeholder that is replaced with the guild ID.
func NewRegistry(pathTemplate string, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Registry{
		pathTemplate: pathTemplate,
		logger:       logger,
		tenants:      make(map[string]*Tenant),
	}
}

// Get returns the tenant for guildID, opening and migrating its database on
// first use.
func (r *Registry) Get(guildID string) (*Tenant, error) {
	if guildID == "" {
		return nil, errors.New("guild id cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if tenant, ok := r.tenants[guildID]; ok {
		return tenant, nil
	}

	path := fmt.Sprintf(r.pathTemplate, guildID)
	db, err := NewDB(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open tenant database for guild %s: %w", guildID, err)
	}

	tenant := &Tenant{
		GuildID: guildID,
		DB:      db,
		Store:   NewStore(db, r.logger.With("guild_id", guildID)),
	}
	r.tenants[guildID] = tenant

	r.logger.Info("Tenant database opened", "guild_id", guildID, "path", path)
	return tenant, nil
}

// Open returns the cached tenants in no particular order.
func (r *Registry) Open() []*Tenant {
	r.mu.Lock()
	defer r.mu.Unlock()

	tenants := make([]*Tenant, 0, len(r.tenants))
	for _, tenant := range r.tenants {
		tenants = append(tenants, tenant)
	}
	return tenants
}

// CloseAll closes every cached tenant database.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for guildID, tenant := range r.tenants {
		CloseDB(tenant.DB)
		delete(r.tenants, guildID)
	}
}
