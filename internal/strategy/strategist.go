package strategy

import (
	"fmt"

	"github.com/castora/adops/internal/meta"
)

// RecType is the normalized action a recommendation instructs.
type RecType string

const (
	RecPause        RecType = "pause"
	RecScaleUp      RecType = "scale_up"
	RecScaleDown    RecType = "scale_down"
	RecOptimization RecType = "optimization"
)

// Recommendation is a normalized, actionable instruction derived from the
// heuristics or from a verdict. Budgets are in major currency units; the
// apply step converts to the platform's minor units. A scale_up always
// carries a suggested budget.
type Recommendation struct {
	Type            RecType `json:"type"`
	TargetID        string  `json:"targetId"`
	TargetName      string  `json:"targetName,omitempty"`
	Reason          string  `json:"reason,omitempty"`
	CurrentBudget   float64 `json:"currentBudget"`
	SuggestedBudget float64 `json:"suggestedBudget,omitempty"`
}

// Heuristic thresholds over the trailing window. Spend floors are in major
// currency units.
const (
	scaleROAS       = 4.0
	scaleSpendFloor = 50.0
	scaleFactor     = 1.2

	pauseROAS       = 1.0
	pauseSpendFloor = 100.0
)

// Evaluate derives budget-change recommendations per active ad set from
// trailing-window insights. It runs regardless of AI backend availability
// and is the safety net when the verdict engine's AI call fails for
// strategic signals.
func Evaluate(adSets []meta.AdSet, insights []meta.Insight) []Recommendation {
	type agg struct {
		spend        float64
		roasWeighted float64
	}
	totals := make(map[string]*agg, len(adSets))
	for _, rec := range insights {
		id := rec.TargetID()
		a, ok := totals[id]
		if !ok {
			a = &agg{}
			totals[id] = a
		}
		a.spend += float64(rec.Spend)
		a.roasWeighted += float64(rec.Spend) * rec.ReturnOnSpend()
	}

	var recs []Recommendation
	for _, as := range adSets {
		if as.Status != meta.StatusActive {
			continue
		}
		a, ok := totals[as.ID]
		if !ok || a.spend == 0 {
			continue
		}
		roas := a.roasWeighted / a.spend

		// Minor units on the platform object, major units in recommendations.
		current := float64(as.DailyBudget) / 100
		if current == 0 {
			current = float64(as.LifetimeBudget) / 100
		}

		switch {
		case roas > scaleROAS && a.spend >= scaleSpendFloor:
			recs = append(recs, Recommendation{
				Type:            RecScaleUp,
				TargetID:        as.ID,
				TargetName:      as.Name,
				Reason:          fmt.Sprintf("%.1fx return on %.2f spend over the window", roas, a.spend),
				CurrentBudget:   current,
				SuggestedBudget: current * scaleFactor,
			})
		case a.spend >= pauseSpendFloor && roas < pauseROAS:
			recs = append(recs, Recommendation{
				Type:          RecPause,
				TargetID:      as.ID,
				TargetName:    as.Name,
				Reason:        fmt.Sprintf("%.2f spent at %.1fx return over the window", a.spend, roas),
				CurrentBudget: current,
			})
		}
	}
	return recs
}
