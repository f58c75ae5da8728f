package meta

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Object status values accepted by the platform's single status field.
const (
	StatusActive = "ACTIVE"
	StatusPaused = "PAUSED"
)

// BudgetType selects which of the two mutually exclusive budget fields a
// write targets. An ad set carries exactly one of them.
type BudgetType string

const (
	BudgetDaily    BudgetType = "daily_budget"
	BudgetLifetime BudgetType = "lifetime_budget"
)

// Number decodes platform numeric fields that arrive either as JSON numbers
// or as quoted strings (insights endpoints use strings throughout).
type Number float64

func (n *Number) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		*n = 0
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return err
	}
	*n = Number(f)
	return nil
}

type Campaign struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	Objective      string `json:"objective"`
	Status         string `json:"status"`
	DailyBudget    Number `json:"daily_budget"`
	LifetimeBudget Number `json:"lifetime_budget"`
}

type AdSet struct {
	ID               string `json:"id"`
	Name             string `json:"name"`
	CampaignID       string `json:"campaign_id"`
	Status           string `json:"status"`
	DailyBudget      Number `json:"daily_budget"`
	LifetimeBudget   Number `json:"lifetime_budget"`
	OptimizationGoal string `json:"optimization_goal"`
	BillingEvent     string `json:"billing_event"`
}

type Ad struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	AdSetID  string `json:"adset_id"`
	Status   string `json:"status"`
	Creative struct {
		ID string `json:"id"`
	} `json:"creative"`
}

// Creative is the platform's acknowledgement of a created ad creative.
type Creative struct {
	ID string `json:"id"`
}

// Action is one typed entry of an insights actions or action_values list.
type Action struct {
	ActionType string `json:"action_type"`
	Value      Number `json:"value"`
}

// Insight is one flattened insights record. Depending on the query it is
// keyed by campaign, ad set, or ad id, and may carry a breakdown dimension.
type Insight struct {
	CampaignID   string   `json:"campaign_id"`
	AdSetID      string   `json:"adset_id"`
	AdID         string   `json:"ad_id"`
	DateStart    string   `json:"date_start"`
	DateStop     string   `json:"date_stop"`
	Spend        Number   `json:"spend"`
	Impressions  Number   `json:"impressions"`
	Clicks       Number   `json:"clicks"`
	Actions      []Action `json:"actions"`
	ActionValues []Action `json:"action_values"`
	PurchaseROAS []Action `json:"purchase_roas"`
	Gender       string   `json:"gender,omitempty"`
	Age          string   `json:"age,omitempty"`
}

// TargetID returns the id of the object this record belongs to, preferring
// the narrowest level present.
func (i Insight) TargetID() string {
	switch {
	case i.AdID != "":
		return i.AdID
	case i.AdSetID != "":
		return i.AdSetID
	default:
		return i.CampaignID
	}
}

// ReturnOnSpend returns the platform-supplied purchase ROAS for this record,
// or 0 when the platform reported none.
func (i Insight) ReturnOnSpend() float64 {
	for _, a := range i.PurchaseROAS {
		if a.ActionType == "" || strings.Contains(a.ActionType, "purchase") {
			return float64(a.Value)
		}
	}
	return 0
}

// ActionValue returns the monetary value reported for the given action type.
func (i Insight) ActionValue(actionType string) float64 {
	for _, a := range i.ActionValues {
		if a.ActionType == actionType {
			return float64(a.Value)
		}
	}
	return 0
}

// CampaignSpec describes a campaign create request. New campaigns always
// start paused; the platform never sees an ACTIVE create from this system.
type CampaignSpec struct {
	Name                string   `json:"name"`
	Objective           string   `json:"objective"`
	SpecialAdCategories []string `json:"special_ad_categories"`
}

// AdSetSpec describes an ad set create request. Budget is in minor currency
// units. Exactly one of DailyBudget/LifetimeBudget should be set.
type AdSetSpec struct {
	Name             string          `json:"name"`
	CampaignID       string          `json:"campaign_id"`
	DailyBudget      int64           `json:"daily_budget,omitempty"`
	LifetimeBudget   int64           `json:"lifetime_budget,omitempty"`
	OptimizationGoal string          `json:"optimization_goal"`
	BillingEvent     string          `json:"billing_event"`
	Targeting        json.RawMessage `json:"targeting,omitempty"`
	Status           string          `json:"status"`
}

// AdSpec describes an ad create request tying a creative to an ad set.
type AdSpec struct {
	Name       string
	AdSetID    string
	CreativeID string
	Status     string
}

// InsightsQuery selects insights for one or many targets. Exactly one of
// DatePreset or Since/Until should be set; both empty means the platform
// default window.
type InsightsQuery struct {
	TargetIDs  []string
	Level      string // "campaign", "adset", or "ad"
	DatePreset string // e.g. "last_7d"
	Since      string // YYYY-MM-DD
	Until      string // YYYY-MM-DD
	Daily      bool   // request time_increment=1
	Breakdown  string // single dimension, e.g. "gender" or "age"
}
