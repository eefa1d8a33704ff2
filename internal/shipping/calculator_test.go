package shipping

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/types"
)

func testMerchant(threshold *int64) *models.Merchant {
	return &models.Merchant{
		Currency:                   enums.CurrencyTWD,
		FreeShippingThresholdCents: threshold,
		DefaultDeliveryType:        enums.DeliveryHome,
		DeliverySettings: types.DeliverySettings{
			{Type: enums.DeliveryHome, Name: "Home delivery", Enabled: true, BaseFeeCents: 80, SurchargePer5KgCents: 40, EstimatedDaysMin: 2, EstimatedDaysMax: 4},
			{Type: enums.DeliveryStorePickup, Name: "Convenience store", Enabled: true, BaseFeeCents: 60, EstimatedDaysMin: 3, EstimatedDaysMax: 5},
			{Type: enums.DeliveryExpress, Name: "Express", Enabled: false, BaseFeeCents: 200},
		},
	}
}

func int64Ptr(v int64) *int64 { return &v }

func TestListDeliveryOptions_FreeShippingThreshold(t *testing.T) {
	calc := NewCalculator()
	merchant := testMerchant(int64Ptr(1000))

	atThreshold := calc.ListDeliveryOptions(merchant, 1000, 0)
	require.Len(t, atThreshold, 2)
	for _, opt := range atThreshold {
		assert.Zero(t, opt.FeeCents, "option %s", opt.Ref)
	}

	below := calc.ListDeliveryOptions(merchant, 999, 0)
	require.Len(t, below, 2)
	assert.Equal(t, int64(80), below[0].FeeCents)
	assert.Equal(t, int64(60), below[1].FeeCents)
}

func TestListDeliveryOptions_SkipsDisabledAndKeepsOrder(t *testing.T) {
	options := NewCalculator().ListDeliveryOptions(testMerchant(nil), 500, 0)
	require.Len(t, options, 2)
	assert.Equal(t, "dlv_home", options[0].Ref)
	assert.Equal(t, "dlv_store_pickup", options[1].Ref)
	assert.Equal(t, 2, options[0].EstimatedDaysMin)
	assert.Equal(t, "Home delivery", options[0].Name)
}

func TestWeightSurcharge(t *testing.T) {
	calc := NewCalculator()
	merchant := testMerchant(nil)

	cases := []struct {
		weight int
		fee    int64
	}{
		{weight: 0, fee: 80},
		{weight: 5000, fee: 80},
		{weight: 5001, fee: 120},
		{weight: 10000, fee: 120},
		{weight: 10001, fee: 160},
	}
	for _, tc := range cases {
		q := calc.QuoteByRef(merchant, "dlv_home", 100, tc.weight)
		require.NotNil(t, q)
		assert.Equal(t, tc.fee, q.FeeCents, "weight %d", tc.weight)
	}
}

func TestQuoteByRef_UnknownOrDisabledReturnsNil(t *testing.T) {
	calc := NewCalculator()
	merchant := testMerchant(int64Ptr(1000))

	assert.Nil(t, calc.QuoteByRef(merchant, "dlv_drone", 100, 0))
	assert.Nil(t, calc.QuoteByRef(merchant, "HOME", 100, 0))
	assert.Nil(t, calc.QuoteByRef(merchant, "dlv_express", 100, 0))

	free := calc.QuoteByRef(merchant, "dlv_store_pickup", 5000, 0)
	require.NotNil(t, free)
	assert.Zero(t, free.FeeCents)
	assert.Equal(t, enums.DeliveryStorePickup, free.Type)
}

func TestDefaultQuote(t *testing.T) {
	calc := NewCalculator()
	merchant := testMerchant(nil)

	q := calc.DefaultQuote(merchant, 100, 0)
	require.NotNil(t, q)
	assert.Equal(t, enums.DeliveryHome, q.Type)

	merchant.DefaultDeliveryType = enums.DeliveryExpress
	q = calc.DefaultQuote(merchant, 100, 0)
	require.NotNil(t, q)
	assert.Equal(t, enums.DeliveryHome, q.Type, "disabled default falls back to first enabled")

	merchant.DeliverySettings = nil
	assert.Nil(t, calc.DefaultQuote(merchant, 100, 0))
}

func TestRefRoundTrip(t *testing.T) {
	for _, dt := range []enums.DeliveryType{enums.DeliveryHome, enums.DeliveryStorePickup, enums.DeliveryExpress} {
		parsed, ok := ParseRef(RefFor(dt))
		require.True(t, ok)
		assert.Equal(t, dt, parsed)
	}
}
