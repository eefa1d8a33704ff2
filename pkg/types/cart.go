package types

import "database/sql/driver"

// CartLine is one priced line of a checkout session cart. Prices always come
// from the catalog at session creation.
type CartLine struct {
	OfferID        string `json:"offer_id"`
	Title          string `json:"title"`
	Quantity       int    `json:"quantity"`
	UnitPriceCents int64  `json:"unit_price_cents"`
	WeightGrams    int    `json:"weight_grams"`
}

// SubtotalCents returns quantity times unit price.
func (l CartLine) SubtotalCents() int64 {
	return int64(l.Quantity) * l.UnitPriceCents
}

// Cart is the ordered line snapshot persisted on a session.
type Cart []CartLine

// SubtotalCents sums every line.
func (c Cart) SubtotalCents() int64 {
	var total int64
	for _, line := range c {
		total += line.SubtotalCents()
	}
	return total
}

// WeightGrams sums the shipping weight of every unit in the cart.
func (c Cart) WeightGrams() int {
	total := 0
	for _, line := range c {
		total += line.WeightGrams * line.Quantity
	}
	return total
}

// QuantitiesByOffer aggregates quantities per offer so repeated lines count once.
func (c Cart) QuantitiesByOffer() map[string]int {
	out := make(map[string]int, len(c))
	for _, line := range c {
		out[line.OfferID] += line.Quantity
	}
	return out
}

// Value serializes the cart to JSON.
func (c Cart) Value() (driver.Value, error) {
	if c == nil {
		return "[]", nil
	}
	return jsonValue([]CartLine(c))
}

// Scan decodes a JSON column into the cart.
func (c *Cart) Scan(value interface{}) error {
	if value == nil {
		*c = nil
		return nil
	}
	var lines []CartLine
	if err := scanJSON(value, &lines); err != nil {
		return err
	}
	*c = lines
	return nil
}
