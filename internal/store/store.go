// Package store persists tenant-scoped CRM data in Postgres or SQLite.
package store

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/tailorreach/internal/model"
)

// ErrNotFound is returned when a row does not exist within the caller's tenant.
var ErrNotFound = eris.New("store: not found")

// tenantTables are the shared tables every tenant gets rows in.
var tenantTables = []string{"customers", "products", "campaigns", "activities"}

// Store defines the persistence interface for the CRM. Every method that
// takes a tenantID only ever sees that tenant's rows.
type Store interface {
	// Customers
	ListCustomers(ctx context.Context, tenantID string, limit int) ([]model.Customer, error)
	GetCustomer(ctx context.Context, tenantID, id string) (*model.Customer, error)
	CreateCustomer(ctx context.Context, c *model.Customer) error
	UpdateCustomer(ctx context.Context, c *model.Customer) error
	DeleteCustomer(ctx context.Context, tenantID, id string) error
	ImportCustomers(ctx context.Context, tenantID string, customers []model.Customer) (int64, error)

	// Products
	ListProducts(ctx context.Context, tenantID string, limit int) ([]model.Product, error)
	GetProduct(ctx context.Context, tenantID, id string) (*model.Product, error)
	CreateProduct(ctx context.Context, p *model.Product) error
	UpdateProduct(ctx context.Context, p *model.Product) error
	DeleteProduct(ctx context.Context, tenantID, id string) error
	UpdateProductEstimate(ctx context.Context, tenantID, id string, estimate int) error

	// Campaigns
	ListCampaigns(ctx context.Context, tenantID string, limit int) ([]model.Campaign, error)
	GetCampaign(ctx context.Context, tenantID, uid string) (*model.Campaign, error)
	CreateCampaign(ctx context.Context, c *model.Campaign) error
	UpdateCampaign(ctx context.Context, c *model.Campaign) error
	DeleteCampaign(ctx context.Context, tenantID, uid string) error
	UpdateCampaignEstimate(ctx context.Context, tenantID, uid string, estimate int) error

	// Activities
	AddActivities(ctx context.Context, tenantID string, acts []model.Activity) error
	ListActivities(ctx context.Context, tenantID string, filter model.ActivityFilter) ([]model.Activity, error)
	UpdateActivityStatus(ctx context.Context, tenantID, id string, status model.ActivityStatus) error

	// Scoring runs
	RecordRun(ctx context.Context, run *model.ScoringRun) error
	ListRuns(ctx context.Context, tenantID string, limit int) ([]model.ScoringRun, error)

	// Profiles and tenancy
	GetProfile(ctx context.Context, userID string) (*model.UserProfile, error)
	UpsertProfile(ctx context.Context, p *model.UserProfile) error
	ProvisionTenant(ctx context.Context, tenantID string) ([]model.TableResult, error)

	// Dashboard and search
	Counts(ctx context.Context, tenantID string) (model.Counts, error)
	Search(ctx context.Context, tenantID, query string, limit int) (*model.SearchResults, error)

	// Lifecycle
	Ping(ctx context.Context) error
	Migrate(ctx context.Context) error
	Close() error
}

// dedupeByEmail keeps the last row per case-insensitive email so a bulk
// upsert never touches the same row twice. Rows without an email are kept.
func dedupeByEmail(customers []model.Customer) []model.Customer {
	idx := make(map[string]int, len(customers))
	out := make([]model.Customer, 0, len(customers))
	for _, c := range customers {
		key := strings.ToLower(strings.TrimSpace(c.Email))
		if key == "" {
			out = append(out, c)
			continue
		}
		if i, ok := idx[key]; ok {
			out[i] = c
			continue
		}
		idx[key] = len(out)
		out = append(out, c)
	}
	return out
}

func notFound(entity, id string) error {
	return eris.Wrapf(ErrNotFound, "%s %s", entity, id)
}

func nullIfEmpty(s string) any {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return strings.TrimSpace(s)
}

func likePattern(q string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(strings.TrimSpace(q)) + "%"
}
