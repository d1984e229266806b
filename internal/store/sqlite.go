package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"golang.org/x/text/cases"
	_ "modernc.org/sqlite"

	"github.com/sells-group/tailorreach/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite. SQLite has no row
// level security, so every statement filters on tenant_id.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS users (
	userid       TEXT PRIMARY KEY,
	name         TEXT NOT NULL DEFAULT '',
	userprof     TEXT NOT NULL DEFAULT '{}',
	userstyle    TEXT,
	useronchat   TEXT NOT NULL DEFAULT '{"messages":[]}',
	onboarded_at DATETIME,
	created_at   DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at   DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS customers (
	id          TEXT PRIMARY KEY,
	tenant_id   TEXT NOT NULL,
	name        TEXT NOT NULL,
	email       TEXT,
	phone       TEXT NOT NULL DEFAULT '',
	likes       TEXT NOT NULL DEFAULT '',
	dislikes    TEXT NOT NULL DEFAULT '',
	preferences TEXT NOT NULL DEFAULT 'mail',
	created_at  DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE UNIQUE INDEX IF NOT EXISTS customers_tenant_email_key ON customers(tenant_id, email);
CREATE INDEX IF NOT EXISTS idx_customers_tenant ON customers(tenant_id, created_at);

CREATE TABLE IF NOT EXISTS products (
	id           TEXT PRIMARY KEY,
	tenant_id    TEXT NOT NULL,
	name         TEXT NOT NULL,
	price        TEXT NOT NULL DEFAULT '',
	category     TEXT NOT NULL DEFAULT '',
	description  TEXT NOT NULL DEFAULT '',
	keywords     TEXT NOT NULL DEFAULT '',
	likeestimate INTEGER CHECK (likeestimate BETWEEN 0 AND 100),
	created_at   DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_products_tenant ON products(tenant_id, created_at);

CREATE TABLE IF NOT EXISTS campaigns (
	uid           TEXT PRIMARY KEY,
	tenant_id     TEXT NOT NULL,
	name          TEXT NOT NULL,
	description   TEXT NOT NULL DEFAULT '',
	keywords      TEXT NOT NULL DEFAULT '',
	product_id    TEXT REFERENCES products(id) ON DELETE SET NULL,
	campaign_date TEXT,
	likeestimate  INTEGER CHECK (likeestimate BETWEEN 0 AND 100),
	created_at    DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_campaigns_tenant ON campaigns(tenant_id, created_at);

CREATE TABLE IF NOT EXISTS activities (
	id            TEXT PRIMARY KEY,
	tenant_id     TEXT NOT NULL,
	customer_id   TEXT NOT NULL REFERENCES customers(id) ON DELETE CASCADE,
	customer_name TEXT NOT NULL DEFAULT '',
	type          TEXT NOT NULL,
	product_id    TEXT NOT NULL DEFAULT '',
	product_name  TEXT NOT NULL DEFAULT '',
	campaign_id   TEXT NOT NULL DEFAULT '',
	message       TEXT NOT NULL DEFAULT '',
	status        TEXT NOT NULL DEFAULT 'sent' CHECK (status IN ('sent', 'converting', 'converted')),
	date          DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_activities_tenant_date ON activities(tenant_id, date);

CREATE TABLE IF NOT EXISTS scoring_runs (
	id          TEXT PRIMARY KEY,
	tenant_id   TEXT NOT NULL,
	kind        TEXT NOT NULL,
	artifact_id TEXT NOT NULL,
	status      TEXT NOT NULL,
	customers   INTEGER NOT NULL DEFAULT 0,
	failed      INTEGER NOT NULL DEFAULT 0,
	usage       TEXT NOT NULL DEFAULT '{}',
	started_at  DATETIME NOT NULL DEFAULT (datetime('now')),
	duration_ms INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_scoring_runs_tenant ON scoring_runs(tenant_id, started_at);
`

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func requireTenant(tenantID string) error {
	if tenantID == "" {
		return eris.New("sqlite: tenant id is required")
	}
	return nil
}

// --- Customers ---

const sqliteCustomerCols = `id, tenant_id, name, COALESCE(email, ''), phone, likes, dislikes, preferences, created_at`

func (s *SQLiteStore) ListCustomers(ctx context.Context, tenantID string, limit int) ([]model.Customer, error) {
	if err := requireTenant(tenantID); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sqliteCustomerCols+` FROM customers WHERE tenant_id = ? ORDER BY created_at DESC, id`+limitClause(limit),
		tenantID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list customers")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.Customer
	for rows.Next() {
		c, err := scanCustomer(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan customer")
		}
		out = append(out, c)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list customers iterate")
}

func (s *SQLiteStore) GetCustomer(ctx context.Context, tenantID, id string) (*model.Customer, error) {
	if err := requireTenant(tenantID); err != nil {
		return nil, err
	}
	c, err := scanCustomer(s.db.QueryRowContext(ctx,
		`SELECT `+sqliteCustomerCols+` FROM customers WHERE tenant_id = ? AND id = ?`,
		tenantID, id,
	))
	if err == sql.ErrNoRows {
		return nil, notFound("customer", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get customer %s", id)
	}
	return &c, nil
}

func (s *SQLiteStore) CreateCustomer(ctx context.Context, c *model.Customer) error {
	if err := requireTenant(c.TenantID); err != nil {
		return err
	}
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	c.CreatedAt = time.Now().UTC()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO customers (id, tenant_id, name, email, phone, likes, dislikes, preferences, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.TenantID, c.Name, nullIfEmpty(c.Email), c.Phone, c.Likes, c.Dislikes, string(c.Preferences), c.CreatedAt,
	)
	return eris.Wrap(err, "sqlite: insert customer")
}

func (s *SQLiteStore) UpdateCustomer(ctx context.Context, c *model.Customer) error {
	if err := requireTenant(c.TenantID); err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE customers SET name = ?, email = ?, phone = ?, likes = ?, dislikes = ?, preferences = ?
		 WHERE tenant_id = ? AND id = ?`,
		c.Name, nullIfEmpty(c.Email), c.Phone, c.Likes, c.Dislikes, string(c.Preferences), c.TenantID, c.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update customer %s", c.ID)
	}
	return checkRowsAffected(res, "customer", c.ID)
}

// DeleteCustomer removes the customer and its activity log. Foreign keys are
// off per connection in SQLite, so the cascade is done by hand.
func (s *SQLiteStore) DeleteCustomer(ctx context.Context, tenantID, id string) error {
	if err := s.deleteRow(ctx, tenantID, "customers", "id", "customer", id); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM activities WHERE tenant_id = ? AND customer_id = ?`, tenantID, id)
	return eris.Wrapf(err, "sqlite: delete activities for customer %s", id)
}

func (s *SQLiteStore) deleteRow(ctx context.Context, tenantID, table, key, entity, id string) error {
	if err := requireTenant(tenantID); err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		fmt.Sprintf(`DELETE FROM %s WHERE tenant_id = ? AND %s = ?`, table, key),
		tenantID, id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: delete %s %s", entity, id)
	}
	return checkRowsAffected(res, entity, id)
}

// ImportCustomers upserts customers keyed by (tenant_id, email) in one
// transaction. Rows without an email are always inserted.
func (s *SQLiteStore) ImportCustomers(ctx context.Context, tenantID string, customers []model.Customer) (int64, error) {
	if err := requireTenant(tenantID); err != nil {
		return 0, err
	}
	customers = dedupeByEmail(customers)
	if len(customers) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: import: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO customers (id, tenant_id, name, email, phone, likes, dislikes, preferences, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (tenant_id, email) DO UPDATE SET
			name = excluded.name, phone = excluded.phone, likes = excluded.likes,
			dislikes = excluded.dislikes, preferences = excluded.preferences`)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: import: prepare")
	}
	defer stmt.Close() //nolint:errcheck

	now := time.Now().UTC()
	var n int64
	for _, c := range customers {
		res, err := stmt.ExecContext(ctx,
			uuid.New().String(), tenantID, c.Name, nullIfEmpty(c.Email), c.Phone,
			c.Likes, c.Dislikes, string(c.Preferences), now,
		)
		if err != nil {
			return 0, eris.Wrapf(err, "sqlite: import customer %q", c.Name)
		}
		affected, _ := res.RowsAffected()
		n += affected
	}

	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: import: commit")
	}
	return n, nil
}

// --- Products ---

func scanSQLiteProduct(row scannable) (model.Product, error) {
	var p model.Product
	var est sql.NullInt64
	err := row.Scan(&p.ID, &p.TenantID, &p.Name, &p.Price, &p.Category, &p.Description, &p.Keywords, &est, &p.CreatedAt)
	p.LikeEstimate = intPtr(est)
	return p, err
}

func intPtr(n sql.NullInt64) *int {
	if !n.Valid {
		return nil
	}
	v := int(n.Int64)
	return &v
}

func (s *SQLiteStore) ListProducts(ctx context.Context, tenantID string, limit int) ([]model.Product, error) {
	if err := requireTenant(tenantID); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+pgProductCols+` FROM products WHERE tenant_id = ? ORDER BY created_at DESC, id`+limitClause(limit),
		tenantID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list products")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.Product
	for rows.Next() {
		p, err := scanSQLiteProduct(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan product")
		}
		out = append(out, p)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list products iterate")
}

func (s *SQLiteStore) GetProduct(ctx context.Context, tenantID, id string) (*model.Product, error) {
	if err := requireTenant(tenantID); err != nil {
		return nil, err
	}
	p, err := scanSQLiteProduct(s.db.QueryRowContext(ctx,
		`SELECT `+pgProductCols+` FROM products WHERE tenant_id = ? AND id = ?`,
		tenantID, id,
	))
	if err == sql.ErrNoRows {
		return nil, notFound("product", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get product %s", id)
	}
	return &p, nil
}

func (s *SQLiteStore) CreateProduct(ctx context.Context, p *model.Product) error {
	if err := requireTenant(p.TenantID); err != nil {
		return err
	}
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	p.CreatedAt = time.Now().UTC()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO products (id, tenant_id, name, price, category, description, keywords, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.TenantID, p.Name, p.Price, p.Category, p.Description, p.Keywords, p.CreatedAt,
	)
	return eris.Wrap(err, "sqlite: insert product")
}

func (s *SQLiteStore) UpdateProduct(ctx context.Context, p *model.Product) error {
	if err := requireTenant(p.TenantID); err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE products SET name = ?, price = ?, category = ?, description = ?, keywords = ?
		 WHERE tenant_id = ? AND id = ?`,
		p.Name, p.Price, p.Category, p.Description, p.Keywords, p.TenantID, p.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update product %s", p.ID)
	}
	return checkRowsAffected(res, "product", p.ID)
}

func (s *SQLiteStore) DeleteProduct(ctx context.Context, tenantID, id string) error {
	return s.deleteRow(ctx, tenantID, "products", "id", "product", id)
}

func (s *SQLiteStore) UpdateProductEstimate(ctx context.Context, tenantID, id string, estimate int) error {
	return s.updateEstimate(ctx, tenantID, "products", "id", "product", id, estimate)
}

func (s *SQLiteStore) updateEstimate(ctx context.Context, tenantID, table, key, entity, id string, estimate int) error {
	if err := requireTenant(tenantID); err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		fmt.Sprintf(`UPDATE %s SET likeestimate = ? WHERE tenant_id = ? AND %s = ?`, table, key),
		estimate, tenantID, id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update %s estimate %s", entity, id)
	}
	return checkRowsAffected(res, entity, id)
}

// --- Campaigns ---

func scanSQLiteCampaign(row scannable) (model.Campaign, error) {
	var c model.Campaign
	var est sql.NullInt64
	err := row.Scan(&c.UID, &c.TenantID, &c.Name, &c.Description, &c.Keywords, &c.ProductID, &c.CampaignDate, &est, &c.CreatedAt)
	c.LikeEstimate = intPtr(est)
	return c, err
}

func (s *SQLiteStore) ListCampaigns(ctx context.Context, tenantID string, limit int) ([]model.Campaign, error) {
	if err := requireTenant(tenantID); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+pgCampaignCols+` FROM campaigns WHERE tenant_id = ? ORDER BY created_at DESC, uid`+limitClause(limit),
		tenantID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list campaigns")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.Campaign
	for rows.Next() {
		c, err := scanSQLiteCampaign(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan campaign")
		}
		out = append(out, c)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list campaigns iterate")
}

func (s *SQLiteStore) GetCampaign(ctx context.Context, tenantID, uid string) (*model.Campaign, error) {
	if err := requireTenant(tenantID); err != nil {
		return nil, err
	}
	c, err := scanSQLiteCampaign(s.db.QueryRowContext(ctx,
		`SELECT `+pgCampaignCols+` FROM campaigns WHERE tenant_id = ? AND uid = ?`,
		tenantID, uid,
	))
	if err == sql.ErrNoRows {
		return nil, notFound("campaign", uid)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get campaign %s", uid)
	}
	return &c, nil
}

func (s *SQLiteStore) CreateCampaign(ctx context.Context, c *model.Campaign) error {
	if err := requireTenant(c.TenantID); err != nil {
		return err
	}
	if c.UID == "" {
		c.UID = uuid.New().String()
	}
	c.CreatedAt = time.Now().UTC()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO campaigns (uid, tenant_id, name, description, keywords, product_id, campaign_date, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		c.UID, c.TenantID, c.Name, c.Description, c.Keywords, nullIfEmpty(c.ProductID), nullIfEmpty(c.CampaignDate), c.CreatedAt,
	)
	return eris.Wrap(err, "sqlite: insert campaign")
}

func (s *SQLiteStore) UpdateCampaign(ctx context.Context, c *model.Campaign) error {
	if err := requireTenant(c.TenantID); err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE campaigns SET name = ?, description = ?, keywords = ?, product_id = ?, campaign_date = ?
		 WHERE tenant_id = ? AND uid = ?`,
		c.Name, c.Description, c.Keywords, nullIfEmpty(c.ProductID), nullIfEmpty(c.CampaignDate), c.TenantID, c.UID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update campaign %s", c.UID)
	}
	return checkRowsAffected(res, "campaign", c.UID)
}

func (s *SQLiteStore) DeleteCampaign(ctx context.Context, tenantID, uid string) error {
	return s.deleteRow(ctx, tenantID, "campaigns", "uid", "campaign", uid)
}

func (s *SQLiteStore) UpdateCampaignEstimate(ctx context.Context, tenantID, uid string, estimate int) error {
	return s.updateEstimate(ctx, tenantID, "campaigns", "uid", "campaign", uid, estimate)
}

// --- Activities ---

func (s *SQLiteStore) AddActivities(ctx context.Context, tenantID string, acts []model.Activity) error {
	if err := requireTenant(tenantID); err != nil {
		return err
	}
	if len(acts) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: add activities: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(activityColumns)), ", ")
	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(
		`INSERT INTO activities (%s) VALUES (%s)`, strings.Join(activityColumns, ", "), placeholders))
	if err != nil {
		return eris.Wrap(err, "sqlite: add activities: prepare")
	}
	defer stmt.Close() //nolint:errcheck

	for i := range acts {
		prepareActivity(&acts[i], tenantID)
		a := acts[i]
		if _, err := stmt.ExecContext(ctx,
			a.ID, a.TenantID, a.CustomerID, a.CustomerName, a.Type, a.ProductID,
			a.ProductName, a.CampaignID, a.Message, string(a.Status), a.Date,
		); err != nil {
			return eris.Wrapf(err, "sqlite: insert activity for customer %s", a.CustomerID)
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: add activities: commit")
}

// ListActivities filters by ids in SQL and applies status and free-text
// matching with model.FilterActivities so text matching is case-folded.
func (s *SQLiteStore) ListActivities(ctx context.Context, tenantID string, f model.ActivityFilter) ([]model.Activity, error) {
	if err := requireTenant(tenantID); err != nil {
		return nil, err
	}
	query := `SELECT id, tenant_id, customer_id, customer_name, type, product_id, product_name, campaign_id, message, status, date
		FROM activities WHERE tenant_id = ?`
	args := []any{tenantID}
	if f.CustomerID != "" {
		query += ` AND customer_id = ?`
		args = append(args, f.CustomerID)
	}
	if f.ProductID != "" {
		query += ` AND product_id = ?`
		args = append(args, f.ProductID)
	}
	if f.CampaignID != "" {
		query += ` AND campaign_id = ?`
		args = append(args, f.CampaignID)
	}
	query += ` ORDER BY date DESC, id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list activities")
	}
	defer rows.Close() //nolint:errcheck

	var all []model.Activity
	for rows.Next() {
		var a model.Activity
		if err := rows.Scan(&a.ID, &a.TenantID, &a.CustomerID, &a.CustomerName, &a.Type, &a.ProductID,
			&a.ProductName, &a.CampaignID, &a.Message, &a.Status, &a.Date); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan activity")
		}
		all = append(all, a)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: list activities iterate")
	}

	out := model.FilterActivities(all, f)
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (s *SQLiteStore) UpdateActivityStatus(ctx context.Context, tenantID, id string, status model.ActivityStatus) error {
	if err := requireTenant(tenantID); err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE activities SET status = ? WHERE tenant_id = ? AND id = ?`,
		string(status), tenantID, id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update activity status %s", id)
	}
	return checkRowsAffected(res, "activity", id)
}

// --- Scoring runs ---

func (s *SQLiteStore) RecordRun(ctx context.Context, run *model.ScoringRun) error {
	if err := requireTenant(run.TenantID); err != nil {
		return err
	}
	usageJSON, err := json.Marshal(run.Usage)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal run usage")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO scoring_runs (id, tenant_id, kind, artifact_id, status, customers, failed, usage, started_at, duration_ms)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		uuid.New().String(), run.TenantID, string(run.Kind), run.ArtifactID, string(run.Status),
		run.Customers, run.Failed, string(usageJSON), run.StartedAt, run.Duration,
	)
	return eris.Wrap(err, "sqlite: insert scoring run")
}

func (s *SQLiteStore) ListRuns(ctx context.Context, tenantID string, limit int) ([]model.ScoringRun, error) {
	if err := requireTenant(tenantID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT tenant_id, kind, artifact_id, status, customers, failed, usage, started_at, duration_ms
		 FROM scoring_runs WHERE tenant_id = ? ORDER BY started_at DESC LIMIT ?`,
		tenantID, limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.ScoringRun
	for rows.Next() {
		var r model.ScoringRun
		var usageJSON string
		if err := rows.Scan(&r.TenantID, &r.Kind, &r.ArtifactID, &r.Status, &r.Customers, &r.Failed,
			&usageJSON, &r.StartedAt, &r.Duration); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan run")
		}
		if err := json.Unmarshal([]byte(usageJSON), &r.Usage); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal run usage")
		}
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list runs iterate")
}

// --- Profiles ---

func (s *SQLiteStore) GetProfile(ctx context.Context, userID string) (*model.UserProfile, error) {
	if err := requireTenant(userID); err != nil {
		return nil, err
	}
	var p model.UserProfile
	var prof, chat string
	var style sql.NullString
	var onboarded sql.NullTime
	err := s.db.QueryRowContext(ctx,
		`SELECT userid, name, userprof, userstyle, useronchat, onboarded_at FROM users WHERE userid = ?`,
		userID,
	).Scan(&p.UserID, &p.Name, &prof, &style, &chat, &onboarded)
	if err == sql.ErrNoRows {
		return nil, notFound("user", userID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get profile %s", userID)
	}
	if onboarded.Valid {
		t := onboarded.Time
		p.OnboardedAt = &t
	}
	if err := unmarshalProfile(&p, []byte(prof), []byte(style.String), []byte(chat)); err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *SQLiteStore) UpsertProfile(ctx context.Context, p *model.UserProfile) error {
	if err := requireTenant(p.UserID); err != nil {
		return err
	}
	prof, style, chat, err := marshalProfile(p)
	if err != nil {
		return err
	}
	var styleArg any
	if style != nil {
		styleArg = string(style)
	}
	now := time.Now().UTC()

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO users (userid, name, userprof, userstyle, useronchat, onboarded_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (userid) DO UPDATE SET
			name = excluded.name,
			userprof = excluded.userprof,
			userstyle = excluded.userstyle,
			useronchat = excluded.useronchat,
			onboarded_at = COALESCE(users.onboarded_at, excluded.onboarded_at),
			updated_at = excluded.updated_at`,
		p.UserID, p.Name, string(prof), styleArg, string(chat), now, now,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: upsert profile %s", p.UserID)
	}

	var onboarded sql.NullTime
	if err := s.db.QueryRowContext(ctx,
		`SELECT onboarded_at FROM users WHERE userid = ?`, p.UserID,
	).Scan(&onboarded); err != nil {
		return eris.Wrapf(err, "sqlite: read onboarded_at %s", p.UserID)
	}
	if onboarded.Valid {
		t := onboarded.Time
		p.OnboardedAt = &t
	}
	return nil
}

func (s *SQLiteStore) ProvisionTenant(ctx context.Context, tenantID string) ([]model.TableResult, error) {
	if err := requireTenant(tenantID); err != nil {
		return nil, err
	}
	results := make([]model.TableResult, 0, len(tenantTables))
	for _, t := range tenantTables {
		var n int64
		if err := s.db.QueryRowContext(ctx,
			fmt.Sprintf(`SELECT count(*) FROM %s WHERE tenant_id = ?`, t), tenantID,
		).Scan(&n); err != nil {
			return nil, eris.Wrapf(err, "sqlite: provision %s", t)
		}
		results = append(results, model.TableResult{Table: t, Status: "ready", Rows: n})
	}
	return results, nil
}

// --- Dashboard and search ---

func (s *SQLiteStore) Counts(ctx context.Context, tenantID string) (model.Counts, error) {
	var c model.Counts
	if err := requireTenant(tenantID); err != nil {
		return c, err
	}
	err := s.db.QueryRowContext(ctx,
		`SELECT
			(SELECT count(*) FROM customers WHERE tenant_id = ?1),
			(SELECT count(*) FROM products WHERE tenant_id = ?1),
			(SELECT count(*) FROM campaigns WHERE tenant_id = ?1),
			(SELECT count(*) FROM activities WHERE tenant_id = ?1)`,
		tenantID,
	).Scan(&c.Customers, &c.Products, &c.Campaigns, &c.Activities)
	return c, eris.Wrap(err, "sqlite: counts")
}

// Search matches case-folded substrings in Go, since SQLite's LIKE only
// folds ASCII.
func (s *SQLiteStore) Search(ctx context.Context, tenantID, query string, limit int) (*model.SearchResults, error) {
	res := &model.SearchResults{}
	if strings.TrimSpace(query) == "" {
		return res, nil
	}
	if limit <= 0 {
		limit = 20
	}
	fold := cases.Fold()
	q := fold.String(strings.TrimSpace(query))

	customers, err := s.ListCustomers(ctx, tenantID, 0)
	if err != nil {
		return nil, err
	}
	for _, c := range customers {
		if len(res.Customers) < limit && model.ContainsFolded(fold, q, c.Name, c.Email, c.Likes) {
			res.Customers = append(res.Customers, c)
		}
	}

	products, err := s.ListProducts(ctx, tenantID, 0)
	if err != nil {
		return nil, err
	}
	for _, p := range products {
		if len(res.Products) < limit && model.ContainsFolded(fold, q, p.Name, p.Category, p.Description) {
			res.Products = append(res.Products, p)
		}
	}

	campaigns, err := s.ListCampaigns(ctx, tenantID, 0)
	if err != nil {
		return nil, err
	}
	for _, c := range campaigns {
		if len(res.Campaigns) < limit && model.ContainsFolded(fold, q, c.Name, c.Description, c.Keywords) {
			res.Campaigns = append(res.Campaigns, c)
		}
	}
	return res, nil
}

// helpers

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return notFound(entity, id)
	}
	return nil
}
