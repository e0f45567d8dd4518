package upstream

// InsightRow is one entity's metrics for a requested time window.
type InsightRow struct {
	EntityID         string  `json:"entity_id"`
	Name             string  `json:"name"`
	CampaignID       string  `json:"campaign_id"`
	Spend            float64 `json:"spend"`
	PrimaryResults   int     `json:"primary_results"`
	SecondaryResults int     `json:"secondary_results"`
	TotalResults     int     `json:"total_results"`
}

// Entity is an advertising object (adset-level) with its current budget state.
type Entity struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	CampaignID      string `json:"campaign_id"`
	Status          string `json:"status"`
	EffectiveStatus string `json:"effective_status"`
	// DailyBudget and LifetimeBudget are in the platform's minor currency
	// unit (cents). At most one of them is non-zero.
	DailyBudget    int64 `json:"daily_budget"`
	LifetimeBudget int64 `json:"lifetime_budget"`
}

// Active reports whether the entity is currently delivering.
func (e Entity) Active() bool {
	return e.Status == "ACTIVE" && (e.EffectiveStatus == "" || e.EffectiveStatus == "ACTIVE")
}

// UsesDailyBudget reports whether the entity is budgeted per day rather than
// over its lifetime. Only daily-budgeted entities can be redistributed; a
// zero daily budget still counts as daily-budgeted.
func (e Entity) UsesDailyBudget() bool {
	return e.LifetimeBudget == 0
}
