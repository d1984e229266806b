package db

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
)

// TenantSetting is the session variable row level security policies read.
const TenantSetting = "app.tenant_id"

// ErrNoTenant is returned when a tenant-scoped call has no tenant.
var ErrNoTenant = eris.New("db: tenant id is required")

// WithTenant runs fn inside a transaction whose app.tenant_id setting is
// bound to tenantID. The setting is transaction-local so pooled connections
// never leak one tenant's scope into another's.
func WithTenant(ctx context.Context, pool Pool, tenantID string, fn func(tx pgx.Tx) error) error {
	if tenantID == "" {
		return ErrNoTenant
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "db: tenant: begin tx")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, `SELECT set_config('`+TenantSetting+`', $1, true)`, tenantID); err != nil {
		return eris.Wrap(err, "db: tenant: set scope")
	}

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return eris.Wrap(err, "db: tenant: commit tx")
	}
	return nil
}
