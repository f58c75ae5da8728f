package verdict

import (
	"fmt"
	"strings"

	"github.com/castora/adops/internal/meta"
)

const systemPrompt = `You are a panel of three advertising specialists reviewing a live ad account:
- "auditor": technical health (delivery, tracking, account hygiene)
- "strategist": return on spend and budget allocation
- "creative": creative fatigue and messaging

Grade each perspective and respond with a single JSON object:
{"verdicts":[{"agent":"auditor","status":"OPTIMAL|WARNING|CRITICAL","thought":"...","recommendation":"...","impact":"...","target_id":"optional id"}]}

The contract is strict:
- CRITICAL means the recommendation is to stop or pause the named target.
- WARNING means the recommendation is an optimization or adjustment.
- OPTIMAL means no action is needed.
Include target_id only when a specific campaign or ad set is concerned.`

// Input carries everything an analysis run knows about the account.
type Input struct {
	AccountID string
	Campaigns []meta.Campaign
	AdSets    []meta.AdSet
	Insights  []meta.Insight
	Context   string // optional operator-supplied context, e.g. extracted brief text
}

// buildUserMessage renders the metrics into the single user message of the
// chat request. Aggregates are per target so the backend can name ids in
// its verdicts.
func buildUserMessage(in Input) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Ad account %s, trailing-window performance.\n\n", in.AccountID)

	names := make(map[string]string, len(in.Campaigns)+len(in.AdSets))
	for _, c := range in.Campaigns {
		names[c.ID] = c.Name
	}
	for _, a := range in.AdSets {
		names[a.ID] = a.Name
	}

	type agg struct {
		spend, clicks, impressions, value float64
		roasWeighted                      float64
	}
	totals := make(map[string]*agg)
	var order []string
	for _, rec := range in.Insights {
		id := rec.TargetID()
		a, ok := totals[id]
		if !ok {
			a = &agg{}
			totals[id] = a
			order = append(order, id)
		}
		a.spend += float64(rec.Spend)
		a.clicks += float64(rec.Clicks)
		a.impressions += float64(rec.Impressions)
		a.value += rec.ActionValue("omni_purchase")
		a.roasWeighted += float64(rec.Spend) * rec.ReturnOnSpend()
	}

	for _, id := range order {
		a := totals[id]
		roas := 0.0
		if a.spend > 0 {
			roas = a.roasWeighted / a.spend
		}
		name := names[id]
		if name == "" {
			name = "(unnamed)"
		}
		fmt.Fprintf(&b, "- %s [%s]: spend %.2f, impressions %.0f, clicks %.0f, purchase value %.2f, roas %.2fx\n",
			name, id, a.spend, a.impressions, a.clicks, a.value, roas)
	}
	if len(order) == 0 {
		b.WriteString("No insight records in the window.\n")
	}

	if in.Context != "" {
		fmt.Fprintf(&b, "\nAdditional context:\n%s\n", in.Context)
	}
	return b.String()
}
