package model

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// ArtifactKind distinguishes the two things customers are scored against.
type ArtifactKind string

const (
	ArtifactProduct  ArtifactKind = "product"
	ArtifactCampaign ArtifactKind = "campaign"
)

// Product is a sellable item. LikeEstimate holds the rounded mean
// likelihood of the latest scoring run, nil until one completes.
type Product struct {
	ID           string    `json:"id" db:"id"`
	TenantID     string    `json:"userid" db:"tenant_id"`
	Name         string    `json:"name" db:"name"`
	Price        string    `json:"price,omitempty" db:"price"`
	Category     string    `json:"category,omitempty" db:"category"`
	Description  string    `json:"description,omitempty" db:"description"`
	Keywords     string    `json:"keywords,omitempty" db:"keywords"`
	LikeEstimate *int      `json:"likeestimate,omitempty" db:"likeestimate"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}

// Validate checks the product form fields.
func (p *Product) Validate() error {
	p.Name = strings.TrimSpace(p.Name)
	if p.Name == "" {
		return eris.Wrap(ErrInvalid, "product name is required")
	}
	return nil
}

// Campaign is a marketing push, optionally dated and optionally tied to
// one product.
type Campaign struct {
	UID          string    `json:"uid" db:"uid"`
	TenantID     string    `json:"userid" db:"tenant_id"`
	Name         string    `json:"name" db:"name"`
	Description  string    `json:"description,omitempty" db:"description"`
	Keywords     string    `json:"keywords,omitempty" db:"keywords"`
	ProductID    string    `json:"product_id,omitempty" db:"product_id"`
	CampaignDate string    `json:"campaign_date,omitempty" db:"campaign_date"`
	LikeEstimate *int      `json:"likeestimate,omitempty" db:"likeestimate"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}

// Validate checks the campaign form fields.
func (c *Campaign) Validate() error {
	c.Name = strings.TrimSpace(c.Name)
	if c.Name == "" {
		return eris.Wrap(ErrInvalid, "campaign name is required")
	}
	c.CampaignDate = strings.TrimSpace(c.CampaignDate)
	return nil
}
