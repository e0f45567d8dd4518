package budget

import (
	"path/filepath"
	"testing"
)

func TestPlanStoreRoundtrip(t *testing.T) {
	store := NewPlanStore(filepath.Join(t.TempDir(), "plans.json"))

	plan := &Plan{
		ID: "p1", AccountID: "act_1", Name: "September push",
		ScopeType: ScopeBundle, CampaignIDs: []string{"c1", "c2"},
		PeriodType: PeriodMonth, TotalBudget: 300,
	}
	if err := store.Put(plan); err != nil {
		t.Fatal(err)
	}

	got, err := store.Get("p1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Name != "September push" || got.TotalBudget != 300 || len(got.CampaignIDs) != 2 {
		t.Fatalf("roundtrip mismatch: %+v", got)
	}
	if got.CreatedAt.IsZero() {
		t.Fatal("created_at should be stamped")
	}

	if _, err := store.Get("nope"); err != ErrPlanNotFound {
		t.Fatalf("expected ErrPlanNotFound, got %v", err)
	}

	if err := store.Delete("p1"); err != nil {
		t.Fatal(err)
	}
	if plans, err := store.List(); err != nil || len(plans) != 0 {
		t.Fatalf("expected empty store, got %v plans (err %v)", len(plans), err)
	}
}

func TestPlanValidate(t *testing.T) {
	min, max := 10.0, 5.0
	tests := []struct {
		name string
		plan Plan
		ok   bool
	}{
		{"valid account scope", Plan{AccountID: "a", ScopeType: ScopeAccount, PeriodType: PeriodDay}, true},
		{"missing account", Plan{ScopeType: ScopeAccount, PeriodType: PeriodDay}, false},
		{"campaign scope without id", Plan{AccountID: "a", ScopeType: ScopeCampaign, PeriodType: PeriodDay}, false},
		{"bundle without campaigns", Plan{AccountID: "a", ScopeType: ScopeBundle, PeriodType: PeriodDay}, false},
		{"negative budget", Plan{AccountID: "a", ScopeType: ScopeAccount, PeriodType: PeriodDay, TotalBudget: -1}, false},
		{"min above max", Plan{
			AccountID: "a", ScopeType: ScopeAccount, PeriodType: PeriodDay,
			EntityLimits: map[string]EntityLimit{"e": {Min: &min, Max: &max}},
		}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.plan.Validate()
			if tt.ok && err != nil {
				t.Fatalf("expected valid, got %v", err)
			}
			if !tt.ok && err == nil {
				t.Fatal("expected a validation error")
			}
		})
	}
}
