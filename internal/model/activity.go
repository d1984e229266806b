package model

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/text/cases"
)

// ActivityStatus tracks an outreach through the funnel.
type ActivityStatus string

const (
	StatusSent       ActivityStatus = "sent"
	StatusConverting ActivityStatus = "converting"
	StatusConverted  ActivityStatus = "converted"
)

// ParseActivityStatus validates a status string.
func ParseActivityStatus(s string) (ActivityStatus, error) {
	switch st := ActivityStatus(strings.ToLower(strings.TrimSpace(s))); st {
	case StatusSent, StatusConverting, StatusConverted:
		return st, nil
	default:
		return "", eris.Wrapf(ErrInvalid, "unknown activity status %q", s)
	}
}

// Activity is one outreach event for a customer, optionally tied to a
// product and/or campaign.
type Activity struct {
	ID           string         `json:"id" db:"id"`
	TenantID     string         `json:"-" db:"tenant_id"`
	CustomerID   string         `json:"customerId" db:"customer_id"`
	CustomerName string         `json:"customerName" db:"customer_name"`
	Type         string         `json:"type" db:"type"`
	ProductID    string         `json:"productId,omitempty" db:"product_id"`
	ProductName  string         `json:"productName,omitempty" db:"product_name"`
	CampaignID   string         `json:"campaignId,omitempty" db:"campaign_id"`
	Message      string         `json:"message" db:"message"`
	Status       ActivityStatus `json:"status" db:"status"`
	Date         time.Time      `json:"date" db:"date"`
}

// ActivityFilter narrows an activity listing. Empty fields match all.
type ActivityFilter struct {
	CustomerID string
	ProductID  string
	CampaignID string
	Status     ActivityStatus
	Query      string
	Limit      int
}

// FilterActivities applies the status and free-text parts of f in memory.
// Text matching is case-folded over customer name, product name and message.
func FilterActivities(acts []Activity, f ActivityFilter) []Activity {
	q := strings.TrimSpace(f.Query)
	if q == "" && f.Status == "" {
		return acts
	}

	fold := cases.Fold()
	q = fold.String(q)

	out := make([]Activity, 0, len(acts))
	for _, a := range acts {
		if f.Status != "" && a.Status != f.Status {
			continue
		}
		if q != "" && !ContainsFolded(fold, q, a.CustomerName, a.ProductName, a.Message) {
			continue
		}
		out = append(out, a)
	}
	return out
}

// ContainsFolded reports whether any field contains the already-folded query.
func ContainsFolded(fold cases.Caser, foldedQuery string, fields ...string) bool {
	for _, f := range fields {
		if strings.Contains(fold.String(f), foldedQuery) {
			return true
		}
	}
	return false
}
