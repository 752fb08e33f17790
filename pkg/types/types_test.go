package types

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestPlanPrice(t *testing.T) {
	cases := []struct {
		plan  Plan
		cycle BillingCycle
		want  string
	}{
		{PlanFree, BillingCycleMonthly, "0"},
		{PlanFree, BillingCycleYearly, "0"},
		{PlanFocused, BillingCycleMonthly, "700"},
		{PlanFocused, BillingCycleYearly, "6000"},
		{PlanPro, BillingCycleMonthly, "1500"},
		{PlanPro, BillingCycleYearly, "12000"},
	}
	for _, tc := range cases {
		got := PlanPrice(tc.plan, tc.cycle)
		require.True(t, decimal.RequireFromString(tc.want).Equal(got), "%s/%s = %s", tc.plan, tc.cycle, got)
		if tc.plan.IsPaid() {
			require.True(t, got.IsPositive())
		}
	}
	require.True(t, PlanPrice("GOLD", BillingCycleMonthly).IsZero())
}

func TestParse(t *testing.T) {
	p, ok := ParsePlan("focused")
	require.True(t, ok)
	require.Equal(t, PlanFocused, p)
	_, ok = ParsePlan("gold")
	require.False(t, ok)

	c, ok := ParseBillingCycle("Yearly")
	require.True(t, ok)
	require.Equal(t, BillingCycleYearly, c)

	prov, ok := ParsePaymentProvider("opay")
	require.True(t, ok)
	require.Equal(t, PaymentProviderOPay, prov)
	_, ok = ParsePaymentProvider("paypal")
	require.False(t, ok)
}

func TestPlanPriority(t *testing.T) {
	require.Greater(t, PlanPro.Priority(), PlanFocused.Priority())
	require.Greater(t, PlanFocused.Priority(), PlanFree.Priority())
	require.Equal(t, "Pro", PlanPro.DisplayName())
}

func TestMinorUnits(t *testing.T) {
	require.Equal(t, int64(70000), ToMinorUnits(decimal.NewFromInt(700)))
	require.Equal(t, int64(1), ToMinorUnits(decimal.RequireFromString("0.01")))
	require.Equal(t, int64(1999), ToMinorUnits(decimal.RequireFromString("19.99")))

	// 0.1 + 0.2 style drift must not leak into minor units
	sum := decimal.RequireFromString("0.10").Add(decimal.RequireFromString("0.20"))
	require.Equal(t, int64(30), ToMinorUnits(sum))

	require.True(t, decimal.RequireFromString("1500.00").Equal(FromMinorUnits(150000)))
	require.True(t, decimal.RequireFromString("19.99").Equal(FromMinorUnits(1999)))
}

func TestFormatAmount(t *testing.T) {
	require.Equal(t, "NGN 1,500.00", FormatAmount("NGN", decimal.NewFromInt(1500)))
	require.Equal(t, "NGN 700.00", FormatAmount("NGN", decimal.NewFromInt(700)))
	require.Equal(t, "NGN 1,234,567.50", FormatAmount("NGN", decimal.RequireFromString("1234567.5")))
	require.Equal(t, "12,000.00", FormatAmount("", decimal.NewFromInt(12000)))
}

func TestPeriodEnd(t *testing.T) {
	start := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	require.Equal(t, time.Date(2026, 1, 31, 10, 0, 0, 0, time.UTC), PeriodEnd(start, BillingCycleMonthly))
	require.Equal(t, time.Date(2027, 1, 1, 10, 0, 0, 0, time.UTC), PeriodEnd(start, BillingCycleYearly))
}

func TestCommonFilterValidate(t *testing.T) {
	allowed := []string{"status", "user_id"}
	require.NoError(t, (&CommonFilter{Field: "status", Operator: CommonFilterOperatorEq, Values: []any{"PENDING"}}).Validate(allowed))
	require.Error(t, (&CommonFilter{Field: "status; drop table x", Operator: CommonFilterOperatorEq, Values: []any{"x"}}).Validate(allowed))
	require.Error(t, (&CommonFilter{Field: "status", Operator: CommonFilterOperatorRange, Values: []any{"x"}}).Validate(allowed))
}
