package money

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

// Money is the wire shape of an amount: integer minor units plus ISO currency.
type Money struct {
	Value    int64          `json:"value"`
	Currency enums.Currency `json:"currency"`
}

var zeroDecimalCurrencies = map[enums.Currency]bool{
	enums.CurrencyJPY: true,
	enums.CurrencyKRW: true,
}

// Exponent returns the number of minor-unit digits used on the wire for currency.
func Exponent(currency enums.Currency) int32 {
	if zeroDecimalCurrencies[currency] {
		return 0
	}
	return 2
}

// ToMinor converts a decimal amount into minor units, rounding half away from zero.
// 100.50 TWD becomes {10050, TWD}.
func ToMinor(amount decimal.Decimal, currency enums.Currency) (Money, error) {
	if !currency.IsValid() {
		return Money{}, fmt.Errorf("unsupported currency %q", currency)
	}
	minor := amount.Shift(Exponent(currency)).Round(0)
	if !minor.IsInteger() || minor.Abs().GreaterThan(decimal.NewFromInt(1<<53)) {
		return Money{}, fmt.Errorf("amount %s out of range", amount.String())
	}
	return Money{Value: minor.IntPart(), Currency: currency}, nil
}

// ParseToMinor is ToMinor for string input such as "100.50".
func ParseToMinor(amount string, currency enums.Currency) (Money, error) {
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return Money{}, fmt.Errorf("parsing amount %q: %w", amount, err)
	}
	return ToMinor(d, currency)
}

// FromMinor converts minor units back to a decimal amount.
func FromMinor(m Money) decimal.Decimal {
	return decimal.NewFromInt(m.Value).Shift(-Exponent(m.Currency))
}

// New wraps minor units already held in storage.
func New(minor int64, currency enums.Currency) Money {
	return Money{Value: minor, Currency: currency}
}

// NewOptional returns nil when minor is nil.
func NewOptional(minor *int64, currency enums.Currency) *Money {
	if minor == nil {
		return nil
	}
	m := New(*minor, currency)
	return &m
}

// String renders the decimal form with the currency code, e.g. "100.50 TWD".
func (m Money) String() string {
	return FromMinor(m).StringFixed(Exponent(m.Currency)) + " " + m.Currency.String()
}

type wireMoney struct {
	Value    int64          `json:"value"`
	Currency enums.Currency `json:"currency"`
	Amount   string         `json:"amount"`
}

// MarshalJSON writes the decimal amount next to the minor units:
// {"value":10050,"currency":"TWD","amount":"100.50"}.
func (m Money) MarshalJSON() ([]byte, error) {
	return json.Marshal(wireMoney{
		Value:    m.Value,
		Currency: m.Currency,
		Amount:   FromMinor(m).StringFixed(Exponent(m.Currency)),
	})
}

// UnmarshalJSON accepts minor units, a decimal amount, or both when they agree.
func (m *Money) UnmarshalJSON(data []byte) error {
	var raw struct {
		Value    *int64         `json:"value"`
		Currency enums.Currency `json:"currency"`
		Amount   *string        `json:"amount"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch {
	case raw.Amount != nil:
		parsed, err := ParseToMinor(*raw.Amount, raw.Currency)
		if err != nil {
			return err
		}
		if raw.Value != nil && *raw.Value != parsed.Value {
			return fmt.Errorf("amount %s does not match value %d", *raw.Amount, *raw.Value)
		}
		*m = parsed
	case raw.Value != nil:
		*m = Money{Value: *raw.Value, Currency: raw.Currency}
	default:
		return errors.New("money needs a value or an amount")
	}
	return nil
}

// ApplyBasisPoints returns minor * bps / 10000 rounded half away from zero.
func ApplyBasisPoints(minor int64, bps int) int64 {
	if bps == 0 || minor == 0 {
		return 0
	}
	return decimal.NewFromInt(minor).
		Mul(decimal.NewFromInt(int64(bps))).
		Div(decimal.NewFromInt(10000)).
		Round(0).
		IntPart()
}
