// Package model defines the CRM entities shared by the store, scoring,
// drafting and API layers.
package model

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// ErrInvalid marks a field validation failure on any entity.
var ErrInvalid = eris.New("model: invalid")

// Preference is a customer's preferred contact channel.
type Preference string

const (
	PreferenceWhatsApp Preference = "whatsapp"
	PreferenceMail     Preference = "mail"
	PreferenceSMS      Preference = "sms"
)

// ParsePreference normalizes a channel name. "email" is accepted as an
// alias for mail; an empty value defaults to mail.
func ParsePreference(s string) (Preference, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "mail", "email":
		return PreferenceMail, nil
	case "whatsapp":
		return PreferenceWhatsApp, nil
	case "sms":
		return PreferenceSMS, nil
	default:
		return "", eris.Wrapf(ErrInvalid, "unknown contact preference %q", s)
	}
}

// IsMail reports whether messages for this channel carry a subject line.
func (p Preference) IsMail() bool {
	return p == PreferenceMail || p == "email"
}

// Customer is a contact owned by exactly one tenant.
type Customer struct {
	ID          string     `json:"id" db:"id"`
	TenantID    string     `json:"userid" db:"tenant_id"`
	Name        string     `json:"name" db:"name"`
	Email       string     `json:"email,omitempty" db:"email"`
	Phone       string     `json:"phone,omitempty" db:"phone"`
	Likes       string     `json:"likes,omitempty" db:"likes"`
	Dislikes    string     `json:"dislikes,omitempty" db:"dislikes"`
	Preferences Preference `json:"preferences,omitempty" db:"preferences"`
	Activity    []Activity `json:"activity,omitempty" db:"-"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
}

// Validate checks the fields a customer form must carry and normalizes
// the contact preference.
func (c *Customer) Validate() error {
	c.Name = strings.TrimSpace(c.Name)
	if c.Name == "" {
		return eris.Wrap(ErrInvalid, "customer name is required")
	}
	pref, err := ParsePreference(string(c.Preferences))
	if err != nil {
		return err
	}
	c.Preferences = pref
	return nil
}
