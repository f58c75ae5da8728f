package api

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/castora/adops/internal/creative"
	"github.com/castora/adops/internal/meta"
	"github.com/castora/adops/internal/optimizer"
	"github.com/castora/adops/internal/secret"
	"github.com/castora/adops/internal/storage"
)

// fakePublisher records every create call and scripts per-attempt
// creative failures.
type fakePublisher struct {
	creativeErrs []error // indexed by CreateCreative attempt; nil means success
	ads          []meta.Ad

	campaignSpecs []meta.CampaignSpec
	adSetSpecs    []meta.AdSetSpec
	creativeBody  []map[string]any
	adSpecs       []meta.AdSpec
}

func (f *fakePublisher) CreateCampaign(ctx context.Context, spec meta.CampaignSpec) (*meta.Campaign, error) {
	f.campaignSpecs = append(f.campaignSpecs, spec)
	return &meta.Campaign{ID: "c-1", Name: spec.Name, Status: meta.StatusPaused}, nil
}

func (f *fakePublisher) CreateAdSet(ctx context.Context, spec meta.AdSetSpec) (*meta.AdSet, error) {
	f.adSetSpecs = append(f.adSetSpecs, spec)
	return &meta.AdSet{ID: "as-1", Name: spec.Name, CampaignID: spec.CampaignID}, nil
}

func (f *fakePublisher) CreateCreative(ctx context.Context, body map[string]any) (*meta.Creative, error) {
	attempt := len(f.creativeBody)
	f.creativeBody = append(f.creativeBody, body)
	if attempt < len(f.creativeErrs) && f.creativeErrs[attempt] != nil {
		return nil, f.creativeErrs[attempt]
	}
	return &meta.Creative{ID: "cr-1"}, nil
}

func (f *fakePublisher) CreateAd(ctx context.Context, spec meta.AdSpec) (*meta.Ad, error) {
	f.adSpecs = append(f.adSpecs, spec)
	return &meta.Ad{ID: "ad-1", Name: spec.Name, AdSetID: spec.AdSetID}, nil
}

func (f *fakePublisher) ListAds(ctx context.Context) ([]meta.Ad, error) {
	return f.ads, nil
}

func identityRejection() error {
	return &meta.APIError{Message: "Invalid parameter", Code: 100, SubCode: 2446036, HTTPStatus: 400}
}

func newPublishHandler(t *testing.T, pub *fakePublisher) http.Handler {
	t.Helper()

	store, err := storage.Open(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })

	cipher := secret.Passthrough{}
	gw := &fakeGateway{}
	newGateway := func(token, accountID string) optimizer.Gateway { return gw }
	newAnalyzer := func(preferred string) optimizer.Analyzer { return staticAnalyzer{} }

	return NewAppHandler(AppDeps{
		Store:        store,
		Cipher:       cipher,
		Optimizer:    optimizer.New(store, cipher, newGateway, newAnalyzer),
		Token:        testToken,
		NewGateway:   newGateway,
		NewAnalyzer:  newAnalyzer,
		NewPublisher: func(token, accountID string) Publisher { return pub },
	})
}

func TestPublishCreatesFullChain(t *testing.T) {
	// First two identity placements rejected, third accepted.
	pub := &fakePublisher{creativeErrs: []error{identityRejection(), identityRejection(), nil}}
	h := newPublishHandler(t, pub)
	connectAccount(t, h, "act_1")

	w := doJSON(t, h, http.MethodPost, "/integrations/act_1/publish", map[string]any{
		"campaignName": "Summer Launch",
		"dailyBudget":  25,
		"link":         map[string]any{"link": "https://example.com", "message": "Shop now"},
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("publish status = %d, body %s", w.Code, w.Body.String())
	}

	var resp publishResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.CampaignID != "c-1" || resp.AdSetID != "as-1" || resp.CreativeID != "cr-1" || resp.AdID != "ad-1" {
		t.Errorf("response = %+v", resp)
	}
	if resp.ResolvedVia != string(creative.StateSpecUserField) {
		t.Errorf("resolvedVia = %q, want %q", resp.ResolvedVia, creative.StateSpecUserField)
	}
	if resp.LinkedIdentityID != "ig-1" {
		t.Errorf("linkedIdentityId = %q, want ig-1", resp.LinkedIdentityID)
	}

	if len(pub.adSetSpecs) != 1 {
		t.Fatalf("ad set specs = %+v", pub.adSetSpecs)
	}
	as := pub.adSetSpecs[0]
	if as.CampaignID != "c-1" || as.Status != meta.StatusPaused {
		t.Errorf("ad set spec = %+v, want paused under c-1", as)
	}
	// 25.00 major units = 2500 minor units.
	if as.DailyBudget != 2500 || as.LifetimeBudget != 0 {
		t.Errorf("ad set budget = daily %d / lifetime %d, want 2500/0", as.DailyBudget, as.LifetimeBudget)
	}

	if len(pub.creativeBody) != 3 {
		t.Errorf("creative attempts = %d, want 3", len(pub.creativeBody))
	}
	if len(pub.adSpecs) != 1 || pub.adSpecs[0].CreativeID != "cr-1" || pub.adSpecs[0].AdSetID != "as-1" {
		t.Errorf("ad specs = %+v", pub.adSpecs)
	}
	if pub.adSpecs[0].Status != meta.StatusPaused {
		t.Errorf("ad status = %q, want PAUSED", pub.adSpecs[0].Status)
	}
}

func TestPublishValidation(t *testing.T) {
	h := newPublishHandler(t, &fakePublisher{})
	connectAccount(t, h, "act_1")

	cases := []struct {
		name string
		body map[string]any
	}{
		{"missing campaign name", map[string]any{
			"dailyBudget": 25,
			"link":        map[string]any{"link": "https://example.com"},
		}},
		{"missing creative data", map[string]any{
			"campaignName": "C",
			"dailyBudget":  25,
		}},
		{"no budget", map[string]any{
			"campaignName": "C",
			"link":         map[string]any{"link": "https://example.com"},
		}},
		{"both budgets", map[string]any{
			"campaignName":   "C",
			"dailyBudget":    25,
			"lifetimeBudget": 500,
			"link":           map[string]any{"link": "https://example.com"},
		}},
	}
	for _, tc := range cases {
		w := doJSON(t, h, http.MethodPost, "/integrations/act_1/publish", tc.body)
		if w.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", tc.name, w.Code)
		}
	}
}

func TestPublishFormattingErrorPropagates(t *testing.T) {
	pub := &fakePublisher{creativeErrs: []error{
		&meta.APIError{Message: "Image aspect ratio is not supported", Code: 100, HTTPStatus: 400},
	}}
	h := newPublishHandler(t, pub)
	connectAccount(t, h, "act_1")

	w := doJSON(t, h, http.MethodPost, "/integrations/act_1/publish", map[string]any{
		"campaignName": "Summer Launch",
		"dailyBudget":  25,
		"link":         map[string]any{"link": "https://example.com", "image_hash": "bad"},
	})
	if w.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", w.Code)
	}
	if len(pub.creativeBody) != 1 {
		t.Errorf("creative attempts = %d, want 1 (no identity fallback)", len(pub.creativeBody))
	}
	if len(pub.adSpecs) != 0 {
		t.Errorf("ad created after creative failure: %+v", pub.adSpecs)
	}
}

func TestPublishRequiresActiveIntegration(t *testing.T) {
	h := newPublishHandler(t, &fakePublisher{})
	connectAccount(t, h, "act_1")

	w := doJSON(t, h, http.MethodDelete, "/integrations/act_1", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("disconnect status = %d", w.Code)
	}

	w = doJSON(t, h, http.MethodPost, "/integrations/act_1/publish", map[string]any{
		"campaignName": "C",
		"dailyBudget":  25,
		"link":         map[string]any{"link": "https://example.com"},
	})
	if w.Code != http.StatusConflict {
		t.Errorf("publish on disconnected status = %d, want 409", w.Code)
	}
}

func TestListAds(t *testing.T) {
	pub := &fakePublisher{ads: []meta.Ad{{ID: "ad-1", Name: "Summer ad", AdSetID: "as-1"}}}
	h := newPublishHandler(t, pub)
	connectAccount(t, h, "act_1")

	w := doJSON(t, h, http.MethodGet, "/integrations/act_1/ads", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list ads status = %d, body %s", w.Code, w.Body.String())
	}

	var ads []meta.Ad
	if err := json.Unmarshal(w.Body.Bytes(), &ads); err != nil {
		t.Fatal(err)
	}
	if len(ads) != 1 || ads[0].ID != "ad-1" {
		t.Errorf("ads = %+v", ads)
	}
}
