package model

// DashboardLimit caps each recent-entity list on the dashboard.
const DashboardLimit = 5

// Dashboard is the landing summary for one tenant.
type Dashboard struct {
	Customers  []Customer `json:"customers"`
	Products   []Product  `json:"products"`
	Campaigns  []Campaign `json:"campaigns"`
	Activities []Activity `json:"activities"`
	Counts     Counts     `json:"counts"`
}

// Counts holds per-table totals for a tenant.
type Counts struct {
	Customers  int64 `json:"customers"`
	Products   int64 `json:"products"`
	Campaigns  int64 `json:"campaigns"`
	Activities int64 `json:"activities"`
}

// SearchResults groups entity matches for a free-text query.
type SearchResults struct {
	Customers []Customer `json:"customers"`
	Products  []Product  `json:"products"`
	Campaigns []Campaign `json:"campaigns"`
}
