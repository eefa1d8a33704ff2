package types

import "database/sql/driver"

// PaymentHandler is the snapshot of a payment option offered on a session.
type PaymentHandler struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Method string `json:"method"`
}

type PaymentHandlers []PaymentHandler

// Find returns the handler with the given id.
func (p PaymentHandlers) Find(id string) (PaymentHandler, bool) {
	for _, h := range p {
		if h.ID == id {
			return h, true
		}
	}
	return PaymentHandler{}, false
}

// Value serializes the handler list to JSON.
func (p PaymentHandlers) Value() (driver.Value, error) {
	if p == nil {
		return "[]", nil
	}
	return jsonValue([]PaymentHandler(p))
}

// Scan decodes a JSON column into the handler list.
func (p *PaymentHandlers) Scan(value interface{}) error {
	if value == nil {
		*p = nil
		return nil
	}
	var handlers []PaymentHandler
	if err := scanJSON(value, &handlers); err != nil {
		return err
	}
	*p = handlers
	return nil
}

// StringList stores a list of plain strings in a JSON column.
type StringList []string

// Value serializes the list to JSON.
func (s StringList) Value() (driver.Value, error) {
	if s == nil {
		return "[]", nil
	}
	return jsonValue([]string(s))
}

// Scan decodes a JSON column into the list.
func (s *StringList) Scan(value interface{}) error {
	if value == nil {
		*s = nil
		return nil
	}
	var items []string
	if err := scanJSON(value, &items); err != nil {
		return err
	}
	*s = items
	return nil
}
