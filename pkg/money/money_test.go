package money

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

func TestToMinorAndBack(t *testing.T) {
	m, err := ParseToMinor("100.50", enums.CurrencyTWD)
	require.NoError(t, err)
	assert.Equal(t, Money{Value: 10050, Currency: enums.CurrencyTWD}, m)

	assert.True(t, decimal.RequireFromString("100.5").Equal(FromMinor(m)))
	assert.Equal(t, "100.50 TWD", m.String())
}

func TestToMinorRoundsHalfAwayFromZero(t *testing.T) {
	m, err := ParseToMinor("0.125", enums.CurrencyUSD)
	require.NoError(t, err)
	assert.Equal(t, int64(13), m.Value)

	neg, err := ParseToMinor("-0.125", enums.CurrencyUSD)
	require.NoError(t, err)
	assert.Equal(t, int64(-13), neg.Value)
}

func TestZeroDecimalCurrency(t *testing.T) {
	m, err := ParseToMinor("1500", enums.CurrencyJPY)
	require.NoError(t, err)
	assert.Equal(t, int64(1500), m.Value)
	assert.Equal(t, "1500 JPY", m.String())
}

func TestToMinorRejectsUnknownCurrency(t *testing.T) {
	_, err := ParseToMinor("1.00", enums.Currency("XXX"))
	assert.Error(t, err)

	_, err = ParseToMinor("abc", enums.CurrencyTWD)
	assert.Error(t, err)
}

func TestNewOptional(t *testing.T) {
	assert.Nil(t, NewOptional(nil, enums.CurrencyTWD))
	fee := int64(60)
	assert.Equal(t, &Money{Value: 60, Currency: enums.CurrencyTWD}, NewOptional(&fee, enums.CurrencyTWD))
}

func TestApplyBasisPoints(t *testing.T) {
	assert.Equal(t, int64(50), ApplyBasisPoints(1000, 500))
	assert.Equal(t, int64(0), ApplyBasisPoints(1000, 0))
	assert.Equal(t, int64(1), ApplyBasisPoints(10, 500))
}

func TestMarshalJSONCarriesDecimalAmount(t *testing.T) {
	raw, err := json.Marshal(New(10050, enums.CurrencyTWD))
	require.NoError(t, err)
	assert.JSONEq(t, `{"value":10050,"currency":"TWD","amount":"100.50"}`, string(raw))

	raw, err = json.Marshal(New(1500, enums.CurrencyJPY))
	require.NoError(t, err)
	assert.JSONEq(t, `{"value":1500,"currency":"JPY","amount":"1500"}`, string(raw))
}

func TestUnmarshalJSONAcceptsEitherForm(t *testing.T) {
	var fromAmount Money
	require.NoError(t, json.Unmarshal([]byte(`{"amount":"100.50","currency":"TWD"}`), &fromAmount))
	assert.Equal(t, Money{Value: 10050, Currency: enums.CurrencyTWD}, fromAmount)

	var fromValue Money
	require.NoError(t, json.Unmarshal([]byte(`{"value":10050,"currency":"TWD"}`), &fromValue))
	assert.Equal(t, fromAmount, fromValue)

	var both Money
	require.NoError(t, json.Unmarshal([]byte(`{"value":10050,"currency":"TWD","amount":"100.50"}`), &both))
	assert.Equal(t, fromAmount, both)
}

func TestUnmarshalJSONRejectsConflictingForms(t *testing.T) {
	var m Money
	assert.Error(t, json.Unmarshal([]byte(`{"value":100,"currency":"TWD","amount":"100.50"}`), &m))
	assert.Error(t, json.Unmarshal([]byte(`{"currency":"TWD"}`), &m))
	assert.Error(t, json.Unmarshal([]byte(`{"amount":"1.00","currency":"XXX"}`), &m))
}
