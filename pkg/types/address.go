package types

import (
	"database/sql/driver"
	"strings"
)

// Address is the free-form structured address captured on a checkout session.
// It is stored as JSON on sessions and order address records.
type Address struct {
	RecipientName string `json:"recipient_name" validate:"required,max=120"`
	Phone         string `json:"phone,omitempty" validate:"omitempty,max=32"`
	Line1         string `json:"line1" validate:"required,max=200"`
	Line2         string `json:"line2,omitempty" validate:"omitempty,max=200"`
	City          string `json:"city" validate:"required,max=120"`
	Region        string `json:"region,omitempty" validate:"omitempty,max=120"`
	PostalCode    string `json:"postal_code" validate:"required,max=20"`
	Country       string `json:"country" validate:"required,len=2"`
}

// Normalize trims every field and upper-cases the country code.
func (a Address) Normalize() Address {
	return Address{
		RecipientName: strings.TrimSpace(a.RecipientName),
		Phone:         strings.TrimSpace(a.Phone),
		Line1:         strings.TrimSpace(a.Line1),
		Line2:         strings.TrimSpace(a.Line2),
		City:          strings.TrimSpace(a.City),
		Region:        strings.TrimSpace(a.Region),
		PostalCode:    strings.TrimSpace(a.PostalCode),
		Country:       strings.ToUpper(strings.TrimSpace(a.Country)),
	}
}

// Value serializes the address to JSON.
func (a Address) Value() (driver.Value, error) {
	return jsonValue(a)
}

// Scan decodes a JSON column into the address.
func (a *Address) Scan(value interface{}) error {
	if value == nil {
		*a = Address{}
		return nil
	}
	return scanJSON(value, a)
}
