package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/tailorreach/internal/db"
	"github.com/sells-group/tailorreach/internal/model"
)

// PostgresStore implements Store on shared tables guarded by row level
// security. Every tenant-scoped call runs in a transaction bound to the
// tenant via db.WithTenant and also filters on tenant_id explicitly.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresSchema = `
CREATE TABLE IF NOT EXISTS users (
	userid       TEXT PRIMARY KEY,
	name         TEXT NOT NULL DEFAULT '',
	userprof     JSONB NOT NULL DEFAULT '{}'::jsonb,
	userstyle    JSONB,
	useronchat   JSONB NOT NULL DEFAULT '{"messages":[]}'::jsonb,
	onboarded_at TIMESTAMPTZ,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS customers (
	id          TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	tenant_id   TEXT NOT NULL,
	name        TEXT NOT NULL,
	email       TEXT,
	phone       TEXT NOT NULL DEFAULT '',
	likes       TEXT NOT NULL DEFAULT '',
	dislikes    TEXT NOT NULL DEFAULT '',
	preferences TEXT NOT NULL DEFAULT 'mail',
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE UNIQUE INDEX IF NOT EXISTS customers_tenant_email_key ON customers(tenant_id, email);
CREATE UNIQUE INDEX IF NOT EXISTS customers_tenant_id_key ON customers(tenant_id, id);
CREATE INDEX IF NOT EXISTS idx_customers_tenant ON customers(tenant_id, created_at DESC);

CREATE TABLE IF NOT EXISTS products (
	id           TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	tenant_id    TEXT NOT NULL,
	name         TEXT NOT NULL,
	price        TEXT NOT NULL DEFAULT '',
	category     TEXT NOT NULL DEFAULT '',
	description  TEXT NOT NULL DEFAULT '',
	keywords     TEXT NOT NULL DEFAULT '',
	likeestimate INTEGER CHECK (likeestimate BETWEEN 0 AND 100),
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_products_tenant ON products(tenant_id, created_at DESC);
CREATE UNIQUE INDEX IF NOT EXISTS products_tenant_id_key ON products(tenant_id, id);

CREATE TABLE IF NOT EXISTS campaigns (
	uid           TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	tenant_id     TEXT NOT NULL,
	name          TEXT NOT NULL,
	description   TEXT NOT NULL DEFAULT '',
	keywords      TEXT NOT NULL DEFAULT '',
	product_id    TEXT,
	campaign_date TEXT,
	likeestimate  INTEGER CHECK (likeestimate BETWEEN 0 AND 100),
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_campaigns_tenant ON campaigns(tenant_id, created_at DESC);

CREATE TABLE IF NOT EXISTS activities (
	id            TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	tenant_id     TEXT NOT NULL,
	customer_id   TEXT NOT NULL,
	customer_name TEXT NOT NULL DEFAULT '',
	type          TEXT NOT NULL,
	product_id    TEXT NOT NULL DEFAULT '',
	product_name  TEXT NOT NULL DEFAULT '',
	campaign_id   TEXT NOT NULL DEFAULT '',
	message       TEXT NOT NULL DEFAULT '',
	status        TEXT NOT NULL DEFAULT 'sent' CHECK (status IN ('sent', 'converting', 'converted')),
	date          TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_activities_tenant_date ON activities(tenant_id, date DESC);
CREATE INDEX IF NOT EXISTS idx_activities_customer ON activities(customer_id);

CREATE TABLE IF NOT EXISTS scoring_runs (
	id          TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	tenant_id   TEXT NOT NULL,
	kind        TEXT NOT NULL,
	artifact_id TEXT NOT NULL,
	status      TEXT NOT NULL,
	customers   INTEGER NOT NULL DEFAULT 0,
	failed      INTEGER NOT NULL DEFAULT 0,
	usage       JSONB NOT NULL DEFAULT '{}'::jsonb,
	started_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	duration_ms BIGINT NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_scoring_runs_tenant ON scoring_runs(tenant_id, started_at DESC);

ALTER TABLE campaigns ALTER COLUMN campaign_date DROP NOT NULL;
ALTER TABLE campaigns DROP CONSTRAINT IF EXISTS campaigns_product_id_fkey;
ALTER TABLE activities DROP CONSTRAINT IF EXISTS activities_customer_id_fkey;
`

// tenantForeignKeys keys cross-table references on (tenant_id, id).
// Foreign key checks ignore row level security. SET NULL (product_id)
// requires Postgres 15.
const tenantForeignKeys = `
DO $$
BEGIN
	IF NOT EXISTS (SELECT 1 FROM pg_constraint WHERE conname = 'campaigns_tenant_product_fkey') THEN
		ALTER TABLE campaigns ADD CONSTRAINT campaigns_tenant_product_fkey
			FOREIGN KEY (tenant_id, product_id) REFERENCES products(tenant_id, id) ON DELETE SET NULL (product_id);
	END IF;
	IF NOT EXISTS (SELECT 1 FROM pg_constraint WHERE conname = 'activities_tenant_customer_fkey') THEN
		ALTER TABLE activities ADD CONSTRAINT activities_tenant_customer_fkey
			FOREIGN KEY (tenant_id, customer_id) REFERENCES customers(tenant_id, id) ON DELETE CASCADE;
	END IF;
END
$$;
`

// rlsPolicies enables and forces row level security on every shared table so
// even the table owner only sees rows for the session's app.tenant_id.
func rlsPolicies() string {
	var b strings.Builder
	scoped := append([]string{"scoring_runs"}, tenantTables...)
	for _, t := range scoped {
		fmt.Fprintf(&b, "ALTER TABLE %s ENABLE ROW LEVEL SECURITY;\n", t)
		fmt.Fprintf(&b, "ALTER TABLE %s FORCE ROW LEVEL SECURITY;\n", t)
		fmt.Fprintf(&b, "DROP POLICY IF EXISTS tenant_isolation ON %s;\n", t)
		fmt.Fprintf(&b,
			"CREATE POLICY tenant_isolation ON %s USING (tenant_id = current_setting('%s', true)) WITH CHECK (tenant_id = current_setting('%s', true));\n",
			t, db.TenantSetting, db.TenantSetting)
	}
	b.WriteString("ALTER TABLE users ENABLE ROW LEVEL SECURITY;\n")
	b.WriteString("ALTER TABLE users FORCE ROW LEVEL SECURITY;\n")
	b.WriteString("DROP POLICY IF EXISTS tenant_isolation ON users;\n")
	fmt.Fprintf(&b,
		"CREATE POLICY tenant_isolation ON users USING (userid = current_setting('%s', true)) WITH CHECK (userid = current_setting('%s', true));\n",
		db.TenantSetting, db.TenantSetting)
	return b.String()
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.pool.Ping(ctx), "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, postgresSchema); err != nil {
		return eris.Wrap(err, "postgres: migrate schema")
	}
	if _, err := s.pool.Exec(ctx, tenantForeignKeys); err != nil {
		return eris.Wrap(err, "postgres: migrate foreign keys")
	}
	_, err := s.pool.Exec(ctx, rlsPolicies())
	return eris.Wrap(err, "postgres: migrate policies")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) scoped(ctx context.Context, tenantID string, fn func(tx pgx.Tx) error) error {
	return db.WithTenant(ctx, s.pool, tenantID, fn)
}

type scannable interface {
	Scan(dest ...any) error
}

func limitClause(limit int) string {
	if limit <= 0 {
		return ""
	}
	return fmt.Sprintf(" LIMIT %d", limit)
}

// --- Customers ---

const pgCustomerCols = `id, tenant_id, name, COALESCE(email, ''), phone, likes, dislikes, preferences, created_at`

func scanCustomer(row scannable) (model.Customer, error) {
	var c model.Customer
	err := row.Scan(&c.ID, &c.TenantID, &c.Name, &c.Email, &c.Phone, &c.Likes, &c.Dislikes, &c.Preferences, &c.CreatedAt)
	return c, err
}

func (s *PostgresStore) ListCustomers(ctx context.Context, tenantID string, limit int) ([]model.Customer, error) {
	var out []model.Customer
	err := s.scoped(ctx, tenantID, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx,
			`SELECT `+pgCustomerCols+` FROM customers WHERE tenant_id = $1 ORDER BY created_at DESC, id`+limitClause(limit),
			tenantID,
		)
		if err != nil {
			return eris.Wrap(err, "postgres: list customers")
		}
		defer rows.Close()

		for rows.Next() {
			c, err := scanCustomer(rows)
			if err != nil {
				return eris.Wrap(err, "postgres: scan customer")
			}
			out = append(out, c)
		}
		return eris.Wrap(rows.Err(), "postgres: list customers iterate")
	})
	return out, err
}

func (s *PostgresStore) GetCustomer(ctx context.Context, tenantID, id string) (*model.Customer, error) {
	var c model.Customer
	err := s.scoped(ctx, tenantID, func(tx pgx.Tx) error {
		var err error
		c, err = scanCustomer(tx.QueryRow(ctx,
			`SELECT `+pgCustomerCols+` FROM customers WHERE tenant_id = $1 AND id = $2`,
			tenantID, id,
		))
		if errors.Is(err, pgx.ErrNoRows) {
			return notFound("customer", id)
		}
		return eris.Wrapf(err, "postgres: get customer %s", id)
	})
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *PostgresStore) CreateCustomer(ctx context.Context, c *model.Customer) error {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	c.CreatedAt = time.Now().UTC()

	return s.scoped(ctx, c.TenantID, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx,
			`INSERT INTO customers (id, tenant_id, name, email, phone, likes, dislikes, preferences, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			c.ID, c.TenantID, c.Name, nullIfEmpty(c.Email), c.Phone, c.Likes, c.Dislikes, string(c.Preferences), c.CreatedAt,
		)
		return eris.Wrap(err, "postgres: insert customer")
	})
}

func (s *PostgresStore) UpdateCustomer(ctx context.Context, c *model.Customer) error {
	return s.scoped(ctx, c.TenantID, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx,
			`UPDATE customers SET name = $3, email = $4, phone = $5, likes = $6, dislikes = $7, preferences = $8
			 WHERE tenant_id = $1 AND id = $2`,
			c.TenantID, c.ID, c.Name, nullIfEmpty(c.Email), c.Phone, c.Likes, c.Dislikes, string(c.Preferences),
		)
		if err != nil {
			return eris.Wrapf(err, "postgres: update customer %s", c.ID)
		}
		if tag.RowsAffected() == 0 {
			return notFound("customer", c.ID)
		}
		return nil
	})
}

func (s *PostgresStore) DeleteCustomer(ctx context.Context, tenantID, id string) error {
	return s.deleteRow(ctx, tenantID, "customers", "id", "customer", id)
}

func (s *PostgresStore) deleteRow(ctx context.Context, tenantID, table, key, entity, id string) error {
	return s.scoped(ctx, tenantID, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx,
			fmt.Sprintf(`DELETE FROM %s WHERE tenant_id = $1 AND %s = $2`, table, key),
			tenantID, id,
		)
		if err != nil {
			return eris.Wrapf(err, "postgres: delete %s %s", entity, id)
		}
		if tag.RowsAffected() == 0 {
			return notFound(entity, id)
		}
		return nil
	})
}

var importColumns = []string{"id", "tenant_id", "name", "email", "phone", "likes", "dislikes", "preferences", "created_at"}

// ImportCustomers upserts customers keyed by (tenant_id, email). Rows without
// an email are always inserted.
func (s *PostgresStore) ImportCustomers(ctx context.Context, tenantID string, customers []model.Customer) (int64, error) {
	customers = dedupeByEmail(customers)
	now := time.Now().UTC()

	rows := make([][]any, 0, len(customers))
	for _, c := range customers {
		rows = append(rows, []any{
			uuid.New().String(), tenantID, c.Name, nullIfEmpty(c.Email), c.Phone,
			c.Likes, c.Dislikes, string(c.Preferences), now,
		})
	}

	var n int64
	err := s.scoped(ctx, tenantID, func(tx pgx.Tx) error {
		var err error
		n, err = db.BulkUpsert(ctx, tx, db.UpsertConfig{
			Table:        "customers",
			Columns:      importColumns,
			ConflictKeys: []string{"tenant_id", "email"},
			UpdateCols:   []string{"name", "phone", "likes", "dislikes", "preferences"},
		}, rows)
		return eris.Wrap(err, "postgres: import customers")
	})
	return n, err
}

// --- Products ---

const pgProductCols = `id, tenant_id, name, price, category, description, keywords, likeestimate, created_at`

func scanProduct(row scannable) (model.Product, error) {
	var p model.Product
	err := row.Scan(&p.ID, &p.TenantID, &p.Name, &p.Price, &p.Category, &p.Description, &p.Keywords, &p.LikeEstimate, &p.CreatedAt)
	return p, err
}

func (s *PostgresStore) ListProducts(ctx context.Context, tenantID string, limit int) ([]model.Product, error) {
	var out []model.Product
	err := s.scoped(ctx, tenantID, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx,
			`SELECT `+pgProductCols+` FROM products WHERE tenant_id = $1 ORDER BY created_at DESC, id`+limitClause(limit),
			tenantID,
		)
		if err != nil {
			return eris.Wrap(err, "postgres: list products")
		}
		defer rows.Close()

		for rows.Next() {
			p, err := scanProduct(rows)
			if err != nil {
				return eris.Wrap(err, "postgres: scan product")
			}
			out = append(out, p)
		}
		return eris.Wrap(rows.Err(), "postgres: list products iterate")
	})
	return out, err
}

func (s *PostgresStore) GetProduct(ctx context.Context, tenantID, id string) (*model.Product, error) {
	var p model.Product
	err := s.scoped(ctx, tenantID, func(tx pgx.Tx) error {
		var err error
		p, err = scanProduct(tx.QueryRow(ctx,
			`SELECT `+pgProductCols+` FROM products WHERE tenant_id = $1 AND id = $2`,
			tenantID, id,
		))
		if errors.Is(err, pgx.ErrNoRows) {
			return notFound("product", id)
		}
		return eris.Wrapf(err, "postgres: get product %s", id)
	})
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *PostgresStore) CreateProduct(ctx context.Context, p *model.Product) error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	p.CreatedAt = time.Now().UTC()

	return s.scoped(ctx, p.TenantID, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx,
			`INSERT INTO products (id, tenant_id, name, price, category, description, keywords, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			p.ID, p.TenantID, p.Name, p.Price, p.Category, p.Description, p.Keywords, p.CreatedAt,
		)
		return eris.Wrap(err, "postgres: insert product")
	})
}

func (s *PostgresStore) UpdateProduct(ctx context.Context, p *model.Product) error {
	return s.scoped(ctx, p.TenantID, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx,
			`UPDATE products SET name = $3, price = $4, category = $5, description = $6, keywords = $7
			 WHERE tenant_id = $1 AND id = $2`,
			p.TenantID, p.ID, p.Name, p.Price, p.Category, p.Description, p.Keywords,
		)
		if err != nil {
			return eris.Wrapf(err, "postgres: update product %s", p.ID)
		}
		if tag.RowsAffected() == 0 {
			return notFound("product", p.ID)
		}
		return nil
	})
}

func (s *PostgresStore) DeleteProduct(ctx context.Context, tenantID, id string) error {
	return s.deleteRow(ctx, tenantID, "products", "id", "product", id)
}

func (s *PostgresStore) UpdateProductEstimate(ctx context.Context, tenantID, id string, estimate int) error {
	return s.updateEstimate(ctx, tenantID, "products", "id", "product", id, estimate)
}

func (s *PostgresStore) updateEstimate(ctx context.Context, tenantID, table, key, entity, id string, estimate int) error {
	return s.scoped(ctx, tenantID, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx,
			fmt.Sprintf(`UPDATE %s SET likeestimate = $3 WHERE tenant_id = $1 AND %s = $2`, table, key),
			tenantID, id, estimate,
		)
		if err != nil {
			return eris.Wrapf(err, "postgres: update %s estimate %s", entity, id)
		}
		if tag.RowsAffected() == 0 {
			return notFound(entity, id)
		}
		return nil
	})
}

// --- Campaigns ---

const pgCampaignCols = `uid, tenant_id, name, description, keywords, COALESCE(product_id, ''), COALESCE(campaign_date, ''), likeestimate, created_at`

func scanCampaign(row scannable) (model.Campaign, error) {
	var c model.Campaign
	err := row.Scan(&c.UID, &c.TenantID, &c.Name, &c.Description, &c.Keywords, &c.ProductID, &c.CampaignDate, &c.LikeEstimate, &c.CreatedAt)
	return c, err
}

func (s *PostgresStore) ListCampaigns(ctx context.Context, tenantID string, limit int) ([]model.Campaign, error) {
	var out []model.Campaign
	err := s.scoped(ctx, tenantID, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx,
			`SELECT `+pgCampaignCols+` FROM campaigns WHERE tenant_id = $1 ORDER BY created_at DESC, uid`+limitClause(limit),
			tenantID,
		)
		if err != nil {
			return eris.Wrap(err, "postgres: list campaigns")
		}
		defer rows.Close()

		for rows.Next() {
			c, err := scanCampaign(rows)
			if err != nil {
				return eris.Wrap(err, "postgres: scan campaign")
			}
			out = append(out, c)
		}
		return eris.Wrap(rows.Err(), "postgres: list campaigns iterate")
	})
	return out, err
}

func (s *PostgresStore) GetCampaign(ctx context.Context, tenantID, uid string) (*model.Campaign, error) {
	var c model.Campaign
	err := s.scoped(ctx, tenantID, func(tx pgx.Tx) error {
		var err error
		c, err = scanCampaign(tx.QueryRow(ctx,
			`SELECT `+pgCampaignCols+` FROM campaigns WHERE tenant_id = $1 AND uid = $2`,
			tenantID, uid,
		))
		if errors.Is(err, pgx.ErrNoRows) {
			return notFound("campaign", uid)
		}
		return eris.Wrapf(err, "postgres: get campaign %s", uid)
	})
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *PostgresStore) CreateCampaign(ctx context.Context, c *model.Campaign) error {
	if c.UID == "" {
		c.UID = uuid.New().String()
	}
	c.CreatedAt = time.Now().UTC()

	return s.scoped(ctx, c.TenantID, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx,
			`INSERT INTO campaigns (uid, tenant_id, name, description, keywords, product_id, campaign_date, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			c.UID, c.TenantID, c.Name, c.Description, c.Keywords, nullIfEmpty(c.ProductID), nullIfEmpty(c.CampaignDate), c.CreatedAt,
		)
		return eris.Wrap(err, "postgres: insert campaign")
	})
}

func (s *PostgresStore) UpdateCampaign(ctx context.Context, c *model.Campaign) error {
	return s.scoped(ctx, c.TenantID, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx,
			`UPDATE campaigns SET name = $3, description = $4, keywords = $5, product_id = $6, campaign_date = $7
			 WHERE tenant_id = $1 AND uid = $2`,
			c.TenantID, c.UID, c.Name, c.Description, c.Keywords, nullIfEmpty(c.ProductID), nullIfEmpty(c.CampaignDate),
		)
		if err != nil {
			return eris.Wrapf(err, "postgres: update campaign %s", c.UID)
		}
		if tag.RowsAffected() == 0 {
			return notFound("campaign", c.UID)
		}
		return nil
	})
}

func (s *PostgresStore) DeleteCampaign(ctx context.Context, tenantID, uid string) error {
	return s.deleteRow(ctx, tenantID, "campaigns", "uid", "campaign", uid)
}

func (s *PostgresStore) UpdateCampaignEstimate(ctx context.Context, tenantID, uid string, estimate int) error {
	return s.updateEstimate(ctx, tenantID, "campaigns", "uid", "campaign", uid, estimate)
}

// --- Activities ---

var activityColumns = []string{"id", "tenant_id", "customer_id", "customer_name", "type", "product_id", "product_name", "campaign_id", "message", "status", "date"}

func (s *PostgresStore) AddActivities(ctx context.Context, tenantID string, acts []model.Activity) error {
	if len(acts) == 0 {
		return nil
	}
	rows := make([][]any, 0, len(acts))
	for i := range acts {
		prepareActivity(&acts[i], tenantID)
		a := acts[i]
		rows = append(rows, []any{
			a.ID, a.TenantID, a.CustomerID, a.CustomerName, a.Type, a.ProductID,
			a.ProductName, a.CampaignID, a.Message, string(a.Status), a.Date,
		})
	}

	return s.scoped(ctx, tenantID, func(tx pgx.Tx) error {
		_, err := db.CopyFrom(ctx, tx, "activities", activityColumns, rows)
		return eris.Wrap(err, "postgres: add activities")
	})
}

// prepareActivity fills identity, tenant, status and timestamp defaults.
func prepareActivity(a *model.Activity, tenantID string) {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	a.TenantID = tenantID
	if a.Status == "" {
		a.Status = model.StatusSent
	}
	if a.Date.IsZero() {
		a.Date = time.Now().UTC()
	}
}

func (s *PostgresStore) ListActivities(ctx context.Context, tenantID string, f model.ActivityFilter) ([]model.Activity, error) {
	query := `SELECT id, tenant_id, customer_id, customer_name, type, product_id, product_name, campaign_id, message, status, date
		FROM activities WHERE tenant_id = $1`
	args := []any{tenantID}
	argIdx := 2

	add := func(clause string, v any) {
		query += fmt.Sprintf(clause, argIdx)
		args = append(args, v)
		argIdx++
	}
	if f.CustomerID != "" {
		add(` AND customer_id = $%d`, f.CustomerID)
	}
	if f.ProductID != "" {
		add(` AND product_id = $%d`, f.ProductID)
	}
	if f.CampaignID != "" {
		add(` AND campaign_id = $%d`, f.CampaignID)
	}
	if f.Status != "" {
		add(` AND status = $%d`, string(f.Status))
	}
	if strings.TrimSpace(f.Query) != "" {
		query += fmt.Sprintf(` AND (customer_name ILIKE $%d OR product_name ILIKE $%d OR message ILIKE $%d)`, argIdx, argIdx, argIdx)
		args = append(args, likePattern(f.Query))
		argIdx++
	}
	query += ` ORDER BY date DESC, id`
	if f.Limit > 0 {
		add(` LIMIT $%d`, f.Limit)
	}

	var out []model.Activity
	err := s.scoped(ctx, tenantID, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, query, args...)
		if err != nil {
			return eris.Wrap(err, "postgres: list activities")
		}
		defer rows.Close()

		for rows.Next() {
			var a model.Activity
			if err := rows.Scan(&a.ID, &a.TenantID, &a.CustomerID, &a.CustomerName, &a.Type, &a.ProductID,
				&a.ProductName, &a.CampaignID, &a.Message, &a.Status, &a.Date); err != nil {
				return eris.Wrap(err, "postgres: scan activity")
			}
			out = append(out, a)
		}
		return eris.Wrap(rows.Err(), "postgres: list activities iterate")
	})
	return out, err
}

func (s *PostgresStore) UpdateActivityStatus(ctx context.Context, tenantID, id string, status model.ActivityStatus) error {
	return s.scoped(ctx, tenantID, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx,
			`UPDATE activities SET status = $3 WHERE tenant_id = $1 AND id = $2`,
			tenantID, id, string(status),
		)
		if err != nil {
			return eris.Wrapf(err, "postgres: update activity status %s", id)
		}
		if tag.RowsAffected() == 0 {
			return notFound("activity", id)
		}
		return nil
	})
}

// --- Scoring runs ---

func (s *PostgresStore) RecordRun(ctx context.Context, run *model.ScoringRun) error {
	usageJSON, err := json.Marshal(run.Usage)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal run usage")
	}

	return s.scoped(ctx, run.TenantID, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx,
			`INSERT INTO scoring_runs (id, tenant_id, kind, artifact_id, status, customers, failed, usage, started_at, duration_ms)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
			uuid.New().String(), run.TenantID, string(run.Kind), run.ArtifactID, string(run.Status),
			run.Customers, run.Failed, usageJSON, run.StartedAt, run.Duration,
		)
		return eris.Wrap(err, "postgres: insert scoring run")
	})
}

func (s *PostgresStore) ListRuns(ctx context.Context, tenantID string, limit int) ([]model.ScoringRun, error) {
	if limit <= 0 {
		limit = 100
	}

	var out []model.ScoringRun
	err := s.scoped(ctx, tenantID, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx,
			`SELECT tenant_id, kind, artifact_id, status, customers, failed, usage, started_at, duration_ms
			 FROM scoring_runs WHERE tenant_id = $1 ORDER BY started_at DESC LIMIT $2`,
			tenantID, limit,
		)
		if err != nil {
			return eris.Wrap(err, "postgres: list runs")
		}
		defer rows.Close()

		for rows.Next() {
			var r model.ScoringRun
			var usageJSON []byte
			if err := rows.Scan(&r.TenantID, &r.Kind, &r.ArtifactID, &r.Status, &r.Customers, &r.Failed,
				&usageJSON, &r.StartedAt, &r.Duration); err != nil {
				return eris.Wrap(err, "postgres: scan run")
			}
			if err := json.Unmarshal(usageJSON, &r.Usage); err != nil {
				return eris.Wrap(err, "postgres: unmarshal run usage")
			}
			out = append(out, r)
		}
		return eris.Wrap(rows.Err(), "postgres: list runs iterate")
	})
	return out, err
}

// --- Profiles ---

func (s *PostgresStore) GetProfile(ctx context.Context, userID string) (*model.UserProfile, error) {
	var p model.UserProfile
	err := s.scoped(ctx, userID, func(tx pgx.Tx) error {
		var profJSON, chatJSON, styleJSON []byte
		err := tx.QueryRow(ctx,
			`SELECT userid, name, userprof, userstyle, useronchat, onboarded_at FROM users WHERE userid = $1`,
			userID,
		).Scan(&p.UserID, &p.Name, &profJSON, &styleJSON, &chatJSON, &p.OnboardedAt)
		if errors.Is(err, pgx.ErrNoRows) {
			return notFound("user", userID)
		}
		if err != nil {
			return eris.Wrapf(err, "postgres: get profile %s", userID)
		}
		return unmarshalProfile(&p, profJSON, styleJSON, chatJSON)
	})
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func unmarshalProfile(p *model.UserProfile, profJSON, styleJSON, chatJSON []byte) error {
	if len(profJSON) > 0 {
		if err := json.Unmarshal(profJSON, &p.Profession); err != nil {
			return eris.Wrap(err, "store: unmarshal userprof")
		}
	}
	if len(chatJSON) > 0 {
		if err := json.Unmarshal(chatJSON, &p.Chat); err != nil {
			return eris.Wrap(err, "store: unmarshal useronchat")
		}
	}
	if len(styleJSON) > 0 {
		p.Style = json.RawMessage(styleJSON)
	}
	return nil
}

func marshalProfile(p *model.UserProfile) (prof, style, chat []byte, err error) {
	if prof, err = json.Marshal(p.Profession); err != nil {
		return nil, nil, nil, eris.Wrap(err, "store: marshal userprof")
	}
	if p.Chat.Messages == nil {
		p.Chat.Messages = []model.ChatMessage{}
	}
	if chat, err = json.Marshal(p.Chat); err != nil {
		return nil, nil, nil, eris.Wrap(err, "store: marshal useronchat")
	}
	if len(p.Style) > 0 {
		if !json.Valid(p.Style) {
			return nil, nil, nil, eris.New("store: userstyle is not valid JSON")
		}
		style = p.Style
	}
	return prof, style, chat, nil
}

// UpsertProfile writes the profile and stamps onboarded_at the first time.
func (s *PostgresStore) UpsertProfile(ctx context.Context, p *model.UserProfile) error {
	prof, style, chat, err := marshalProfile(p)
	if err != nil {
		return err
	}
	now := time.Now().UTC()

	return s.scoped(ctx, p.UserID, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx,
			`INSERT INTO users (userid, name, userprof, userstyle, useronchat, onboarded_at, updated_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $6)
			 ON CONFLICT (userid) DO UPDATE SET
				name = EXCLUDED.name,
				userprof = EXCLUDED.userprof,
				userstyle = EXCLUDED.userstyle,
				useronchat = EXCLUDED.useronchat,
				onboarded_at = COALESCE(users.onboarded_at, EXCLUDED.onboarded_at),
				updated_at = EXCLUDED.updated_at
			 RETURNING onboarded_at`,
			p.UserID, p.Name, prof, style, chat, now,
		).Scan(&p.OnboardedAt)
		return eris.Wrapf(err, "postgres: upsert profile %s", p.UserID)
	})
}

// ProvisionTenant verifies every shared table is reachable under the
// tenant's scope and reports its row count.
func (s *PostgresStore) ProvisionTenant(ctx context.Context, tenantID string) ([]model.TableResult, error) {
	results := make([]model.TableResult, 0, len(tenantTables))
	err := s.scoped(ctx, tenantID, func(tx pgx.Tx) error {
		for _, t := range tenantTables {
			var n int64
			if err := tx.QueryRow(ctx,
				fmt.Sprintf(`SELECT count(*) FROM %s WHERE tenant_id = $1`, t), tenantID,
			).Scan(&n); err != nil {
				return eris.Wrapf(err, "postgres: provision %s", t)
			}
			results = append(results, model.TableResult{Table: t, Status: "ready", Rows: n})
		}
		return nil
	})
	return results, err
}

// --- Dashboard and search ---

func (s *PostgresStore) Counts(ctx context.Context, tenantID string) (model.Counts, error) {
	var c model.Counts
	err := s.scoped(ctx, tenantID, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx,
			`SELECT
				(SELECT count(*) FROM customers WHERE tenant_id = $1),
				(SELECT count(*) FROM products WHERE tenant_id = $1),
				(SELECT count(*) FROM campaigns WHERE tenant_id = $1),
				(SELECT count(*) FROM activities WHERE tenant_id = $1)`,
			tenantID,
		).Scan(&c.Customers, &c.Products, &c.Campaigns, &c.Activities)
		return eris.Wrap(err, "postgres: counts")
	})
	return c, err
}

func (s *PostgresStore) Search(ctx context.Context, tenantID, query string, limit int) (*model.SearchResults, error) {
	res := &model.SearchResults{}
	if strings.TrimSpace(query) == "" {
		return res, nil
	}
	if limit <= 0 {
		limit = 20
	}
	pattern := likePattern(query)

	err := s.scoped(ctx, tenantID, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx,
			`SELECT `+pgCustomerCols+` FROM customers WHERE tenant_id = $1
			 AND (name ILIKE $2 OR email ILIKE $2 OR likes ILIKE $2) ORDER BY name LIMIT $3`,
			tenantID, pattern, limit,
		)
		if err != nil {
			return eris.Wrap(err, "postgres: search customers")
		}
		for rows.Next() {
			c, err := scanCustomer(rows)
			if err != nil {
				rows.Close()
				return eris.Wrap(err, "postgres: scan customer")
			}
			res.Customers = append(res.Customers, c)
		}
		rows.Close()

		rows, err = tx.Query(ctx,
			`SELECT `+pgProductCols+` FROM products WHERE tenant_id = $1
			 AND (name ILIKE $2 OR category ILIKE $2 OR description ILIKE $2) ORDER BY name LIMIT $3`,
			tenantID, pattern, limit,
		)
		if err != nil {
			return eris.Wrap(err, "postgres: search products")
		}
		for rows.Next() {
			p, err := scanProduct(rows)
			if err != nil {
				rows.Close()
				return eris.Wrap(err, "postgres: scan product")
			}
			res.Products = append(res.Products, p)
		}
		rows.Close()

		rows, err = tx.Query(ctx,
			`SELECT `+pgCampaignCols+` FROM campaigns WHERE tenant_id = $1
			 AND (name ILIKE $2 OR description ILIKE $2 OR keywords ILIKE $2) ORDER BY name LIMIT $3`,
			tenantID, pattern, limit,
		)
		if err != nil {
			return eris.Wrap(err, "postgres: search campaigns")
		}
		defer rows.Close()
		for rows.Next() {
			c, err := scanCampaign(rows)
			if err != nil {
				return eris.Wrap(err, "postgres: scan campaign")
			}
			res.Campaigns = append(res.Campaigns, c)
		}
		return eris.Wrap(rows.Err(), "postgres: search iterate")
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}
