package optimizer

import (
	"context"
	"fmt"
	"math"

	"github.com/castora/adops/internal/meta"
	"github.com/castora/adops/internal/strategy"
)

// Gateway is the slice of the platform client the optimizer mutates through.
type Gateway interface {
	ListAdSets(ctx context.Context) ([]meta.AdSet, error)
	ListCampaigns(ctx context.Context) ([]meta.Campaign, error)
	Insights(ctx context.Context, q meta.InsightsQuery) ([]meta.Insight, error)
	SetStatus(ctx context.Context, targetID, status string) error
	SetBudget(ctx context.Context, targetID string, bt meta.BudgetType, amountMinor int64) error
}

// ApplyRecommendation performs the platform mutation a recommendation
// instructs. Budget amounts convert from major to minor currency units. A
// budget write rejected specifically for targeting the wrong budget-type
// field is retried once against the alternate field; any other failure
// propagates.
func ApplyRecommendation(ctx context.Context, gw Gateway, rec strategy.Recommendation) error {
	switch rec.Type {
	case strategy.RecPause:
		return gw.SetStatus(ctx, rec.TargetID, meta.StatusPaused)

	case strategy.RecScaleUp, strategy.RecScaleDown:
		if rec.SuggestedBudget <= 0 {
			return fmt.Errorf("recommendation for %s has no suggested budget", rec.TargetID)
		}
		minor := int64(math.Round(rec.SuggestedBudget * 100))
		err := gw.SetBudget(ctx, rec.TargetID, meta.BudgetDaily, minor)
		if meta.IsWrongBudgetType(err) {
			return gw.SetBudget(ctx, rec.TargetID, meta.BudgetLifetime, minor)
		}
		return err

	default:
		return fmt.Errorf("recommendation type %q is not directly applicable", rec.Type)
	}
}
