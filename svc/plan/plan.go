package plan

import (
	"time"

	"github.com/shopspring/decimal"
)

// Type determines how a plan is priced and billed.
type Type string

const (
	// TypeFlatRate bills a fixed amount per interval regardless of usage.
	TypeFlatRate Type = "flat_rate"
	// TypeSeatBased bills per active user in the tenant.
	TypeSeatBased Type = "seat_based"
	// TypeUsageBased bills per reported usage unit.
	TypeUsageBased Type = "usage_based"
)

// BillingInterval represents the billing frequency for a plan.
type BillingInterval string

const (
	BillingIntervalNone    BillingInterval = "none" // local trial plans with no recurring charge
	BillingIntervalMonthly BillingInterval = "monthly"
	BillingIntervalAnnual  BillingInterval = "annual"
)

// Money represents a monetary amount in the smallest currency unit.
// For example, $10.99 USD is Amount: 1099, Currency: "USD".
type Money struct {
	Amount   int64
	Currency string // ISO 4217 code
}

// PriceTier is one step of a tiered price: the per-unit rate applied up to
// UpTo units. UpTo of 0 means the tier is unbounded.
type PriceTier struct {
	UpTo      int64
	UnitPrice decimal.Decimal
}

// Pricing is the full price description of a plan. Subscriptions snapshot
// this struct at creation time and never re-read it from the plan, so
// operator price edits only affect future subscriptions.
type Pricing struct {
	Price         Money
	PricePerUnit  decimal.Decimal // usage-based plans only
	Tiers         []PriceTier     // tiered seat/usage pricing, empty for flat prices
	Interval      BillingInterval
	IntervalCount int
}

// Plan identifies a sellable tier. Plans are reference data: created and
// edited by operators, never deleted while referenced by a subscription.
type Plan struct {
	Slug              string
	Name              string
	Type              Type
	Active            bool
	HasTrial          bool
	TrialDays         int
	MaxUsersPerTenant int // 0 = unlimited
	ProductID         string
	ProviderPriceID   string // payment provider's price identifier
	IsChangeable      bool   // whether subscriptions may migrate off this plan
	Pricing           Pricing
}

// TrialEndsAt calculates when a trial started at the given time ends.
// Returns startedAt unchanged for plans without a trial.
func (p Plan) TrialEndsAt(startedAt time.Time) time.Time {
	if !p.HasTrial || p.TrialDays <= 0 {
		return startedAt
	}
	return startedAt.AddDate(0, 0, p.TrialDays).UTC()
}

// HasSeatLimit reports whether the plan caps users per tenant.
func (p Plan) HasSeatLimit() bool {
	return p.Type == TypeSeatBased && p.MaxUsersPerTenant > 0
}
