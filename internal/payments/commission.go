package payments

import "fmt"

// CommissionRates holds affiliate and agent shares in basis points.
// The platform keeps the remainder, absorbing any rounding, so the shares
// always sum exactly to the payment amount.
type CommissionRates struct {
	AffiliateBps int `yaml:"affiliate_bps"`
	AgentBps     int `yaml:"agent_bps"`
}

// DefaultCommissionRates returns the platform defaults.
func DefaultCommissionRates() CommissionRates {
	return CommissionRates{
		AffiliateBps: 1000, // 10%
		AgentBps:     500,  // 5%
	}
}

// Validate rejects rate sets that would leave the platform with a negative share.
func (r CommissionRates) Validate() error {
	if r.AffiliateBps < 0 || r.AgentBps < 0 {
		return fmt.Errorf("commission rates cannot be negative")
	}
	if r.AffiliateBps+r.AgentBps > 10000 {
		return fmt.Errorf("commission rates exceed 100%%: %d bps", r.AffiliateBps+r.AgentBps)
	}
	return nil
}

// CommissionSplit is the outcome of dividing a payment amount.
type CommissionSplit struct {
	Affiliate int64
	Agent     int64
	Platform  int64
}

// Split divides amount (minor units) by the configured rates. Shares round
// down; the platform share takes the remainder.
func (r CommissionRates) Split(amount int64, hasAffiliate, hasAgent bool) CommissionSplit {
	var split CommissionSplit
	if amount <= 0 {
		return split
	}

	if hasAffiliate {
		split.Affiliate = amount * int64(r.AffiliateBps) / 10000
	}
	if hasAgent {
		split.Agent = amount * int64(r.AgentBps) / 10000
	}
	split.Platform = amount - split.Affiliate - split.Agent
	return split
}
