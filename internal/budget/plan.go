// Package budget turns a period budget target into per-entity daily budgets
// under locked-entity and min/max constraints, and applies the result through
// the governor.
package budget

import (
	"fmt"
	"time"
)

// ScopeType selects which entities and spend a plan covers.
type ScopeType string

const (
	ScopeAccount  ScopeType = "account"
	ScopeCampaign ScopeType = "campaign"
	ScopeBundle   ScopeType = "bundle"
)

// EntityLimit is a per-entity constraint. A locked entity keeps its current
// budget (clamped to its own fences) and does not participate in
// redistribution; Min and Max fence the amount in major currency units.
type EntityLimit struct {
	Locked bool     `json:"locked"`
	Min    *float64 `json:"min,omitempty"`
	Max    *float64 `json:"max,omitempty"`
}

// Plan is the operator-declared redistribution intent. Amounts are in major
// currency units.
type Plan struct {
	ID        string    `json:"id"`
	AccountID string    `json:"account_id"`
	Name      string    `json:"name"`
	ScopeType ScopeType `json:"scope_type"`
	// ScopeID is the campaign for ScopeCampaign; CampaignIDs is the explicit
	// set for ScopeBundle.
	ScopeID     string   `json:"scope_id,omitempty"`
	CampaignIDs []string `json:"campaign_ids,omitempty"`

	PeriodType  PeriodType `json:"period_type"`
	TotalBudget float64    `json:"total_budget"`

	ExcludedEntityIDs []string               `json:"excluded_entity_ids,omitempty"`
	EntityLimits      map[string]EntityLimit `json:"entity_limits,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Validate checks the plan's internal consistency.
func (p *Plan) Validate() error {
	if p.AccountID == "" {
		return fmt.Errorf("plan is missing an account id")
	}
	if p.TotalBudget < 0 {
		return fmt.Errorf("total budget must be non-negative, got %v", p.TotalBudget)
	}
	switch p.ScopeType {
	case ScopeAccount:
	case ScopeCampaign:
		if p.ScopeID == "" {
			return fmt.Errorf("campaign scope requires a scope id")
		}
	case ScopeBundle:
		if len(p.CampaignIDs) == 0 {
			return fmt.Errorf("bundle scope requires at least one campaign id")
		}
	default:
		return fmt.Errorf("unknown scope type %q", p.ScopeType)
	}
	switch p.PeriodType {
	case PeriodDay, PeriodWeek, PeriodMonth:
	default:
		return fmt.Errorf("unknown period type %q", p.PeriodType)
	}
	for id, lim := range p.EntityLimits {
		if lim.Min != nil && lim.Max != nil && *lim.Min > *lim.Max {
			return fmt.Errorf("entity %s has min %v above max %v", id, *lim.Min, *lim.Max)
		}
	}
	return nil
}

// excluded reports whether the entity is excluded from the plan.
func (p *Plan) excluded(entityID string) bool {
	for _, id := range p.ExcludedEntityIDs {
		if id == entityID {
			return true
		}
	}
	return false
}

// scopeCampaigns returns the campaign restriction for entity enumeration,
// nil for account scope.
func (p *Plan) scopeCampaigns() []string {
	switch p.ScopeType {
	case ScopeCampaign:
		return []string{p.ScopeID}
	case ScopeBundle:
		return p.CampaignIDs
	default:
		return nil
	}
}
