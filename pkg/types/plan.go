package types

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type Plan string

const (
	PlanFree    Plan = "FREE"
	PlanFocused Plan = "FOCUSED"
	PlanPro     Plan = "PRO"
)

type BillingCycle string

const (
	BillingCycleMonthly BillingCycle = "MONTHLY"
	BillingCycleYearly  BillingCycle = "YEARLY"
)

const DefaultCurrency = "NGN"

// planPriority orders plans for effective-subscription resolution, higher wins.
var planPriority = map[Plan]int{
	PlanFree:    0,
	PlanFocused: 1,
	PlanPro:     2,
}

// pricing is in major currency units.
var pricing = map[Plan]map[BillingCycle]decimal.Decimal{
	PlanFree: {
		BillingCycleMonthly: decimal.Zero,
		BillingCycleYearly:  decimal.Zero,
	},
	PlanFocused: {
		BillingCycleMonthly: decimal.NewFromInt(700),
		BillingCycleYearly:  decimal.NewFromInt(6000),
	},
	PlanPro: {
		BillingCycleMonthly: decimal.NewFromInt(1500),
		BillingCycleYearly:  decimal.NewFromInt(12000),
	},
}

func ParsePlan(s string) (Plan, bool) {
	p := Plan(strings.ToUpper(strings.TrimSpace(s)))
	_, ok := planPriority[p]
	return p, ok
}

func ParseBillingCycle(s string) (BillingCycle, bool) {
	c := BillingCycle(strings.ToUpper(strings.TrimSpace(s)))
	switch c {
	case BillingCycleMonthly, BillingCycleYearly:
		return c, true
	}
	return "", false
}

func (p Plan) Priority() int {
	return planPriority[p]
}

func (p Plan) IsPaid() bool {
	return p != PlanFree && p != ""
}

// DisplayName is used in customer facing notifications ("Pro", "Focused").
func (p Plan) DisplayName() string {
	s := strings.ToLower(string(p))
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func (c BillingCycle) DisplayName() string {
	return strings.ToLower(string(c))
}

// PlanPrice returns the configured price for plan and cycle. Unknown pairs are zero.
func PlanPrice(plan Plan, cycle BillingCycle) decimal.Decimal {
	byCycle, ok := pricing[plan]
	if !ok {
		return decimal.Zero
	}
	price, ok := byCycle[cycle]
	if !ok {
		return decimal.Zero
	}
	return price
}

// PeriodEnd returns the end of a billing period that starts at from.
func PeriodEnd(from time.Time, cycle BillingCycle) time.Time {
	if cycle == BillingCycleYearly {
		return from.AddDate(0, 0, 365)
	}
	return from.AddDate(0, 0, 30)
}
