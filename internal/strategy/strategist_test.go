package strategy

import (
	"testing"

	"github.com/castora/adops/internal/meta"
)

func roas(v float64) []meta.Action {
	return []meta.Action{{ActionType: "omni_purchase", Value: meta.Number(v)}}
}

func TestEvaluate_ScaleUpAt20Percent(t *testing.T) {
	adSets := []meta.AdSet{{ID: "as1", Name: "Winners", Status: meta.StatusActive, DailyBudget: 4000}}
	insights := []meta.Insight{{AdSetID: "as1", Spend: 80, PurchaseROAS: roas(5.0)}}

	recs := Evaluate(adSets, insights)
	if len(recs) != 1 {
		t.Fatalf("got %d recommendations, want 1", len(recs))
	}
	r := recs[0]
	if r.Type != RecScaleUp {
		t.Errorf("Type = %s, want scale_up", r.Type)
	}
	if r.CurrentBudget != 40 {
		t.Errorf("CurrentBudget = %v, want 40", r.CurrentBudget)
	}
	if r.SuggestedBudget != 48 {
		t.Errorf("SuggestedBudget = %v, want 48 (1.2 x current)", r.SuggestedBudget)
	}
}

func TestEvaluate_PauseOnBurn(t *testing.T) {
	adSets := []meta.AdSet{{ID: "as2", Status: meta.StatusActive, DailyBudget: 5000}}
	insights := []meta.Insight{{AdSetID: "as2", Spend: 150, PurchaseROAS: roas(0.4)}}

	recs := Evaluate(adSets, insights)
	if len(recs) != 1 {
		t.Fatalf("got %d recommendations, want 1", len(recs))
	}
	if recs[0].Type != RecPause {
		t.Errorf("Type = %s, want pause", recs[0].Type)
	}
	if recs[0].TargetID != "as2" {
		t.Errorf("TargetID = %q", recs[0].TargetID)
	}
}

func TestEvaluate_BelowFloorsNoAction(t *testing.T) {
	adSets := []meta.AdSet{
		{ID: "low-spend-winner", Status: meta.StatusActive, DailyBudget: 1000},
		{ID: "low-spend-loser", Status: meta.StatusActive, DailyBudget: 1000},
	}
	insights := []meta.Insight{
		{AdSetID: "low-spend-winner", Spend: 20, PurchaseROAS: roas(8.0)},
		{AdSetID: "low-spend-loser", Spend: 50, PurchaseROAS: roas(0.2)},
	}

	if recs := Evaluate(adSets, insights); len(recs) != 0 {
		t.Errorf("got %d recommendations below spend floors, want 0: %+v", len(recs), recs)
	}
}

func TestEvaluate_IgnoresPausedAdSets(t *testing.T) {
	adSets := []meta.AdSet{{ID: "as3", Status: meta.StatusPaused, DailyBudget: 4000}}
	insights := []meta.Insight{{AdSetID: "as3", Spend: 200, PurchaseROAS: roas(0.1)}}

	if recs := Evaluate(adSets, insights); len(recs) != 0 {
		t.Errorf("paused ad set produced recommendations: %+v", recs)
	}
}

func TestEvaluate_ScaleUpAlwaysCarriesSuggestedBudget(t *testing.T) {
	adSets := []meta.AdSet{
		{ID: "daily", Status: meta.StatusActive, DailyBudget: 4000},
		{ID: "lifetime", Status: meta.StatusActive, LifetimeBudget: 90000},
	}
	insights := []meta.Insight{
		{AdSetID: "daily", Spend: 60, PurchaseROAS: roas(4.5)},
		{AdSetID: "lifetime", Spend: 60, PurchaseROAS: roas(4.5)},
	}

	recs := Evaluate(adSets, insights)
	if len(recs) != 2 {
		t.Fatalf("got %d recommendations, want 2", len(recs))
	}
	for _, r := range recs {
		if r.Type == RecScaleUp && r.SuggestedBudget == 0 {
			t.Errorf("scale_up for %s has no suggested budget", r.TargetID)
		}
	}
}

func TestEvaluate_MultipleWindowsAggregated(t *testing.T) {
	adSets := []meta.AdSet{{ID: "as4", Status: meta.StatusActive, DailyBudget: 2000}}
	// Two daily records, combined spend 120 at weighted roas 0.5.
	insights := []meta.Insight{
		{AdSetID: "as4", Spend: 60, PurchaseROAS: roas(0.6)},
		{AdSetID: "as4", Spend: 60, PurchaseROAS: roas(0.4)},
	}

	recs := Evaluate(adSets, insights)
	if len(recs) != 1 || recs[0].Type != RecPause {
		t.Fatalf("aggregated window should pause: %+v", recs)
	}
}
