package database

import (
	"context"
	"fmt"

	"go.uber.org/fx"
)

// ResolverParams collects every registered provider.
type ResolverParams struct {
	fx.In
	Providers []DBProvider `group:"db_providers"`
	Configs   map[string]DatabaseConfig
}

// ConnectionResolver dispatches a connection name to the provider matching
// the configured database type.
type ConnectionResolver struct {
	providers map[string]DBProvider
	configs   map[string]DatabaseConfig
}

// NewConnectionResolver indexes providers by type.
func NewConnectionResolver(p ResolverParams) *ConnectionResolver {
	r := &ConnectionResolver{
		providers: make(map[string]DBProvider, len(p.Providers)),
		configs:   p.Configs,
	}
	for _, provider := range p.Providers {
		r.providers[provider.Type()] = provider
	}
	return r
}

func (r *ConnectionResolver) ResolveDBConnection(ctx context.Context, name string) (DBConnection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	cfg, ok := r.configs[name]
	if !ok {
		return nil, fmt.Errorf("database connection '%s' is not configured", name)
	}
	provider, ok := r.providers[cfg.Type]
	if !ok {
		return nil, fmt.Errorf("no provider registered for database type '%s' (connection '%s')", cfg.Type, name)
	}
	return provider.GetConnection(name)
}

// CloseAll closes every provider's connections and returns the last error.
func (r *ConnectionResolver) CloseAll() error {
	var lastErr error
	for _, provider := range r.providers {
		if err := provider.CloseAll(); err != nil {
			lastErr = err
		}
	}
	return lastErr
}
