package api

import (
	"context"
	"encoding/json"
	"math"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/castora/adops/internal/creative"
	"github.com/castora/adops/internal/meta"
)

// Publisher is the slice of the platform client the publish flow drives:
// the create endpoints plus the ad listing. *meta.Client satisfies it.
type Publisher interface {
	creative.Publisher
	CreateCampaign(ctx context.Context, spec meta.CampaignSpec) (*meta.Campaign, error)
	CreateAdSet(ctx context.Context, spec meta.AdSetSpec) (*meta.AdSet, error)
	CreateAd(ctx context.Context, spec meta.AdSpec) (*meta.Ad, error)
	ListAds(ctx context.Context) ([]meta.Ad, error)
}

type publishRequest struct {
	CampaignName     string              `json:"campaignName"`
	Objective        string              `json:"objective"`
	AdSetName        string              `json:"adSetName"`
	DailyBudget      float64             `json:"dailyBudget"`    // major currency units
	LifetimeBudget   float64             `json:"lifetimeBudget"` // major currency units
	OptimizationGoal string              `json:"optimizationGoal"`
	BillingEvent     string              `json:"billingEvent"`
	Targeting        json.RawMessage     `json:"targeting"`
	CreativeName     string              `json:"creativeName"`
	Link             *creative.LinkData  `json:"link"`
	Video            *creative.VideoData `json:"video"`
	AdName           string              `json:"adName"`
}

type publishResponse struct {
	CampaignID       string `json:"campaignId"`
	AdSetID          string `json:"adSetId"`
	CreativeID       string `json:"creativeId"`
	AdID             string `json:"adId"`
	ResolvedVia      string `json:"resolvedVia"`
	LinkedIdentityID string `json:"linkedIdentityId,omitempty"`
}

// handlePublish creates a full paused delivery chain: campaign, ad set,
// creative (through the identity fallback resolver, seeded with the
// integration's page and instagram accounts), then the ad tying them
// together. Everything is created PAUSED; activation is a separate,
// deliberate status write.
func handlePublish(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		accountID := chi.URLParam(r, "accountID")

		var req publishRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if req.CampaignName == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "campaignName is required")
			return
		}
		if req.Link == nil && req.Video == nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "link or video creative data is required")
			return
		}
		if (req.DailyBudget > 0) == (req.LifetimeBudget > 0) {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "exactly one of dailyBudget and lifetimeBudget must be set")
			return
		}

		token, integ, ok := credentialFor(deps, w, accountID)
		if !ok {
			return
		}
		pub := deps.NewPublisher(token, accountID)
		ctx := r.Context()

		campaign, err := pub.CreateCampaign(ctx, meta.CampaignSpec{
			Name:      req.CampaignName,
			Objective: defaultString(req.Objective, "OUTCOME_SALES"),
		})
		if err != nil {
			platformError(w, "creating campaign", err)
			return
		}

		adSetSpec := meta.AdSetSpec{
			Name:             defaultString(req.AdSetName, req.CampaignName+" ad set"),
			CampaignID:       campaign.ID,
			OptimizationGoal: defaultString(req.OptimizationGoal, "OFFSITE_CONVERSIONS"),
			BillingEvent:     defaultString(req.BillingEvent, "IMPRESSIONS"),
			Targeting:        req.Targeting,
			Status:           meta.StatusPaused,
		}
		if req.DailyBudget > 0 {
			adSetSpec.DailyBudget = int64(math.Round(req.DailyBudget * 100))
		} else {
			adSetSpec.LifetimeBudget = int64(math.Round(req.LifetimeBudget * 100))
		}
		adSet, err := pub.CreateAdSet(ctx, adSetSpec)
		if err != nil {
			platformError(w, "creating ad set", err)
			return
		}

		var igIDs []string
		if integ.InstagramIDs != "" {
			_ = json.Unmarshal([]byte(integ.InstagramIDs), &igIDs)
		}
		res, err := creative.NewResolver(pub).Publish(ctx, creative.Request{
			Name:         defaultString(req.CreativeName, req.CampaignName+" creative"),
			PageID:       integ.PageID,
			InstagramIDs: igIDs,
			Link:         req.Link,
			Video:        req.Video,
		})
		if err != nil {
			platformError(w, "publishing creative", err)
			return
		}

		ad, err := pub.CreateAd(ctx, meta.AdSpec{
			Name:       defaultString(req.AdName, req.CampaignName+" ad"),
			AdSetID:    adSet.ID,
			CreativeID: res.Creative.ID,
			Status:     meta.StatusPaused,
		})
		if err != nil {
			platformError(w, "creating ad", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(publishResponse{
			CampaignID:       campaign.ID,
			AdSetID:          adSet.ID,
			CreativeID:       res.Creative.ID,
			AdID:             ad.ID,
			ResolvedVia:      string(res.ResolvedVia),
			LinkedIdentityID: res.LinkedIdentityID,
		})
	}
}

func handleListAds(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		accountID := chi.URLParam(r, "accountID")

		token, _, ok := credentialFor(deps, w, accountID)
		if !ok {
			return
		}

		ads, err := deps.NewPublisher(token, accountID).ListAds(r.Context())
		if err != nil {
			platformError(w, "listing ads", err)
			return
		}
		if ads == nil {
			ads = []meta.Ad{}
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(ads)
	}
}

func defaultString(v, fallback string) string {
	if v != "" {
		return v
	}
	return fallback
}
