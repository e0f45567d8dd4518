package budget

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/sluicehq/sluice/internal/governor"
	"github.com/sluicehq/sluice/internal/upstream"
)

// maxRounds bounds the clamp-and-redistribute iteration; epsilon is half a
// minor currency unit, below which a residual is considered settled.
const (
	maxRounds = 12
	epsilon   = 0.005
)

// EntityAPI is the slice of the upstream client used by the Engine.
type EntityAPI interface {
	ListEntities(ctx context.Context, accountID string, campaignIDs []string) ([]upstream.Entity, error)
	AccountSpend(ctx context.Context, accountID string, since, until time.Time) (float64, error)
	CampaignSpend(ctx context.Context, accountID string, campaignIDs []string, since, until time.Time) (float64, error)
	UpdateDailyBudget(ctx context.Context, entityID string, minorUnits int64) error
}

// ApplyRecord is one audit entry for an applied (or attempted) budget change.
type ApplyRecord struct {
	RunID     string
	PlanID    string
	AccountID string
	EntityID  string
	OldCents  int64
	NewCents  int64
	Outcome   string
	Error     string
	At        time.Time
}

// ApplyRecorder persists apply records for auditing.
type ApplyRecorder interface {
	RecordApply(ctx context.Context, rec ApplyRecord) error
}

// EngineMetrics is an optional interface for recording engine metrics.
type EngineMetrics interface {
	IncPreview()
	IncApplyLine(outcome string)
}

// PreviewLine is the computed change for one entity. Amounts are in minor
// currency units so the displayed delta is exactly what apply will submit.
type PreviewLine struct {
	EntityID   string `json:"entity_id"`
	Name       string `json:"name"`
	CampaignID string `json:"campaign_id"`
	Locked     bool   `json:"locked"`
	OldCents   int64  `json:"old_cents"`
	NewCents   int64  `json:"new_cents"`
	DeltaCents int64  `json:"delta_cents"`
}

// Preview is a computed-but-unapplied redistribution.
type Preview struct {
	PlanID            string        `json:"plan_id"`
	AccountID         string        `json:"account_id"`
	PeriodType        PeriodType    `json:"period_type"`
	Period            Period        `json:"period"`
	GeneratedAt       time.Time     `json:"generated_at"`
	SpendSoFar        float64       `json:"spend_so_far"`
	Remaining         float64       `json:"remaining"`
	TargetPerDayCents int64         `json:"target_per_day_cents"`
	Lines             []PreviewLine `json:"lines"`
	Warnings          []string      `json:"warnings,omitempty"`
}

// ApplyLine is the per-entity outcome of an apply run.
type ApplyLine struct {
	EntityID string `json:"entity_id"`
	Name     string `json:"name"`
	OldCents int64  `json:"old_cents"`
	NewCents int64  `json:"new_cents"`
	Outcome  string `json:"outcome"` // updated, skipped, failed
	Error    string `json:"error,omitempty"`
}

// ApplyResult is the one-shot outcome of submitting a preview. A partial
// failure does not roll back entities already updated.
type ApplyResult struct {
	RunID      string      `json:"run_id"`
	PlanID     string      `json:"plan_id"`
	AccountID  string      `json:"account_id"`
	StartedAt  time.Time   `json:"started_at"`
	FinishedAt time.Time   `json:"finished_at"`
	Updated    int         `json:"updated"`
	Skipped    int         `json:"skipped"`
	Failed     int         `json:"failed"`
	Lines      []ApplyLine `json:"lines"`
}

// Engine computes and applies budget redistributions. All upstream access
// goes through the governor.
type Engine struct {
	gov      *governor.Governor
	api      EntityAPI
	loc      *time.Location
	recorder ApplyRecorder
	metrics  EngineMetrics
	now      func() time.Time // injectable clock for testing
}

// NewEngine creates an Engine operating in the given timezone.
func NewEngine(gov *governor.Governor, api EntityAPI, loc *time.Location) *Engine {
	if loc == nil {
		loc = time.UTC
	}
	return &Engine{gov: gov, api: api, loc: loc, now: time.Now}
}

// SetRecorder sets the optional apply audit recorder.
func (e *Engine) SetRecorder(r ApplyRecorder) { e.recorder = r }

// SetMetrics sets the optional metrics recorder.
func (e *Engine) SetMetrics(m EngineMetrics) { e.metrics = m }

// resultErr converts a failed governor result into an error for callers that
// do propagate errors.
func resultErr(op string, res governor.Result) error {
	return fmt.Errorf("%s: %s: %s", op, res.Kind, res.Message)
}

// BuildPreview resolves period spend and current entity state through the
// governor and computes the redistribution. Unsatisfiable constraints become
// warnings on the preview, not errors, so an operator can still apply the
// best-effort result.
func (e *Engine) BuildPreview(ctx context.Context, plan *Plan) (*Preview, error) {
	if err := plan.Validate(); err != nil {
		return nil, err
	}

	today := e.now().In(e.loc)
	period, err := PeriodInfo(plan.PeriodType, today)
	if err != nil {
		return nil, err
	}

	spendSoFar, err := e.periodSpend(ctx, plan, period)
	if err != nil {
		return nil, err
	}

	remaining := plan.TotalBudget - spendSoFar
	if remaining < 0 {
		remaining = 0
	}
	targetPerDay := plan.TotalBudget
	if plan.PeriodType != PeriodDay {
		targetPerDay = remaining / float64(period.DaysLeft)
	}

	entities, err := e.eligibleEntities(ctx, plan)
	if err != nil {
		return nil, err
	}

	preview := &Preview{
		PlanID:            plan.ID,
		AccountID:         plan.AccountID,
		PeriodType:        plan.PeriodType,
		Period:            period,
		GeneratedAt:       today,
		SpendSoFar:        spendSoFar,
		Remaining:         remaining,
		TargetPerDayCents: roundCents(targetPerDay),
	}

	// Partition into locked (fixed contribution) and unlocked entities.
	var locked, unlocked []upstream.Entity
	for _, ent := range entities {
		if lim, ok := plan.EntityLimits[ent.ID]; ok && lim.Locked {
			locked = append(locked, ent)
		} else {
			unlocked = append(unlocked, ent)
		}
	}

	var lockedSum float64
	for _, ent := range locked {
		lim := plan.EntityLimits[ent.ID]
		amount := clampf(float64(ent.DailyBudget)/100, lim.Min, lim.Max)
		lockedSum += amount
		preview.Lines = append(preview.Lines, previewLine(ent, true, roundCents(amount)))
	}

	pool := targetPerDay - lockedSum
	if pool < -epsilon {
		preview.Warnings = append(preview.Warnings,
			fmt.Sprintf("locked contributions (%.2f) exceed the daily target (%.2f)", lockedSum, targetPerDay))
		pool = 0
	}

	alloc := make([]allocEntity, len(unlocked))
	for i, ent := range unlocked {
		lim := plan.EntityLimits[ent.ID]
		alloc[i] = allocEntity{current: float64(ent.DailyBudget) / 100, min: lim.Min, max: lim.Max}
	}
	amounts, warnings := redistribute(alloc, pool)
	preview.Warnings = append(preview.Warnings, warnings...)

	for i, ent := range unlocked {
		preview.Lines = append(preview.Lines, previewLine(ent, false, roundCents(amounts[i])))
	}

	if len(preview.Warnings) == 0 {
		e.reconcileRounding(preview, plan, unlocked, alloc)
	}

	if e.metrics != nil {
		e.metrics.IncPreview()
	}
	return preview, nil
}

func previewLine(ent upstream.Entity, locked bool, newCents int64) PreviewLine {
	return PreviewLine{
		EntityID:   ent.ID,
		Name:       ent.Name,
		CampaignID: ent.CampaignID,
		Locked:     locked,
		OldCents:   ent.DailyBudget,
		NewCents:   newCents,
		DeltaCents: newCents - ent.DailyBudget,
	}
}

// periodSpend resolves spend-so-far for the plan's scope via the governor.
func (e *Engine) periodSpend(ctx context.Context, plan *Plan, period Period) (float64, error) {
	res := e.gov.Call(ctx, governor.CallMeta{
		Endpoint: "spend",
		Reason:   "redistribution period spend",
	}, func(ctx context.Context) (any, error) {
		if campaigns := plan.scopeCampaigns(); campaigns != nil {
			return e.api.CampaignSpend(ctx, plan.AccountID, campaigns, period.Since, period.Until)
		}
		return e.api.AccountSpend(ctx, plan.AccountID, period.Since, period.Until)
	})
	if !res.OK() {
		return 0, resultErr("resolving period spend", res)
	}
	return res.Payload.(float64), nil
}

// eligibleEntities enumerates active, daily-budgeted, non-excluded entities
// in the plan's scope via the governor.
func (e *Engine) eligibleEntities(ctx context.Context, plan *Plan) ([]upstream.Entity, error) {
	res := e.gov.Call(ctx, governor.CallMeta{
		Endpoint: "entities",
		Reason:   "redistribution entity state",
	}, func(ctx context.Context) (any, error) {
		return e.api.ListEntities(ctx, plan.AccountID, plan.scopeCampaigns())
	})
	if !res.OK() {
		return nil, resultErr("listing entities", res)
	}

	var eligible []upstream.Entity
	for _, ent := range res.Payload.([]upstream.Entity) {
		if !ent.Active() || !ent.UsesDailyBudget() || plan.excluded(ent.ID) {
			continue
		}
		eligible = append(eligible, ent)
	}
	return eligible, nil
}

// allocEntity is an unlocked entity in the redistribution computation, in
// major currency units.
type allocEntity struct {
	current  float64
	min, max *float64
}

// redistribute allocates target across entities proportionally to their
// current budgets (equal weights when all current budgets are zero),
// clamping each to its fences. Clamping can leave a residual, so the
// remainder is re-spread across entities not yet pinned at a bound, for a
// bounded number of rounds. An unabsorbable residual becomes a warning
// rather than a violated fence.
func redistribute(entities []allocEntity, target float64) ([]float64, []string) {
	n := len(entities)
	assigned := make([]float64, n)
	pinned := make([]bool, n)

	if n == 0 {
		if target > epsilon {
			return assigned, []string{fmt.Sprintf("no unlocked entities can absorb %.2f per day", target)}
		}
		return assigned, nil
	}

	residual := target
	for round := 0; round < maxRounds && math.Abs(residual) > epsilon; round++ {
		var weightSum float64
		open := 0
		for i, ent := range entities {
			if !pinned[i] {
				weightSum += ent.current
				open++
			}
		}
		if open == 0 {
			break
		}

		for i, ent := range entities {
			if pinned[i] {
				continue
			}
			share := residual / float64(open)
			if weightSum > 0 {
				share = residual * ent.current / weightSum
			}
			next := assigned[i] + share
			clamped := clampf(next, ent.min, ent.max)
			if clamped != next {
				pinned[i] = true
			}
			assigned[i] = clamped
		}

		residual = target
		for _, a := range assigned {
			residual -= a
		}
	}

	var warnings []string
	if math.Abs(residual) > epsilon {
		warnings = append(warnings,
			fmt.Sprintf("%.2f per day cannot be absorbed: all entities are at their min/max fences", residual))
	}
	return assigned, warnings
}

// reconcileRounding nudges unlocked lines by one minor unit so the rounded
// line sum equals the rounded daily target exactly.
func (e *Engine) reconcileRounding(preview *Preview, plan *Plan, unlocked []upstream.Entity, alloc []allocEntity) {
	var sum int64
	for _, l := range preview.Lines {
		sum += l.NewCents
	}
	residual := preview.TargetPerDayCents - sum
	if residual == 0 {
		return
	}

	step := int64(1)
	if residual < 0 {
		step = -1
	}
	// Unlocked lines are the tail of preview.Lines, in alloc order.
	base := len(preview.Lines) - len(unlocked)
	for pass := 0; pass < 2 && residual != 0; pass++ {
		for i := range unlocked {
			if residual == 0 {
				break
			}
			line := &preview.Lines[base+i]
			next := float64(line.NewCents+step) / 100
			if clampf(next, alloc[i].min, alloc[i].max) != next {
				continue
			}
			line.NewCents += step
			line.DeltaCents = line.NewCents - line.OldCents
			residual -= step
		}
	}
}

// clampf clamps x to [min, max], flooring at zero; nil fences are open.
func clampf(x float64, min, max *float64) float64 {
	if min != nil && x < *min {
		x = *min
	}
	if max != nil && x > *max {
		x = *max
	}
	if x < 0 {
		x = 0
	}
	return x
}

// roundCents converts major currency units to minor units, rounding half
// away from zero.
func roundCents(x float64) int64 {
	return int64(math.Round(x * 100))
}

// Apply submits every changed line of the preview through the governor. It
// uses at-least-one-attempt semantics: a failure on one entity does not stop
// or roll back the others.
func (e *Engine) Apply(ctx context.Context, preview *Preview) (*ApplyResult, error) {
	result := &ApplyResult{
		RunID:     uuid.NewString(),
		PlanID:    preview.PlanID,
		AccountID: preview.AccountID,
		StartedAt: e.now().In(e.loc),
	}

	for _, line := range preview.Lines {
		al := ApplyLine{
			EntityID: line.EntityID,
			Name:     line.Name,
			OldCents: line.OldCents,
			NewCents: line.NewCents,
		}

		if line.DeltaCents == 0 {
			al.Outcome = "skipped"
			result.Skipped++
		} else {
			res := e.gov.Call(ctx, governor.CallMeta{
				Endpoint: "update_budget",
				Reason:   "budget redistribution apply",
			}, func(ctx context.Context) (any, error) {
				return nil, e.api.UpdateDailyBudget(ctx, line.EntityID, line.NewCents)
			})
			if res.OK() {
				al.Outcome = "updated"
				result.Updated++
			} else {
				al.Outcome = "failed"
				al.Error = res.Message
				result.Failed++
			}
		}

		if e.metrics != nil {
			e.metrics.IncApplyLine(al.Outcome)
		}
		e.record(ctx, result, al)
		result.Lines = append(result.Lines, al)
	}

	result.FinishedAt = e.now().In(e.loc)
	slog.Info("budget apply finished",
		"run_id", result.RunID, "plan_id", result.PlanID,
		"updated", result.Updated, "skipped", result.Skipped, "failed", result.Failed)
	return result, nil
}

// record writes one audit entry, logging rather than failing the apply.
func (e *Engine) record(ctx context.Context, result *ApplyResult, line ApplyLine) {
	if e.recorder == nil {
		return
	}
	err := e.recorder.RecordApply(ctx, ApplyRecord{
		RunID:     result.RunID,
		PlanID:    result.PlanID,
		AccountID: result.AccountID,
		EntityID:  line.EntityID,
		OldCents:  line.OldCents,
		NewCents:  line.NewCents,
		Outcome:   line.Outcome,
		Error:     line.Error,
		At:        e.now(),
	})
	if err != nil {
		slog.Error("failed to record apply audit entry", "entity", line.EntityID, "error", err)
	}
}
