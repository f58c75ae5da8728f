package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	adcopy "github.com/castora/adops/internal/copy"
	"github.com/castora/adops/internal/meta"
	"github.com/castora/adops/internal/optimizer"
	"github.com/castora/adops/internal/secret"
	"github.com/castora/adops/internal/storage"
	"github.com/castora/adops/internal/verdict"
)

const testToken = "test-token"

// fakeGateway is a scripted platform client.
type fakeGateway struct {
	campaigns []meta.Campaign
	adSets    []meta.AdSet
	insights  []meta.Insight
	listErr   error

	pauses      []string
	budgetCalls []string
}

func (f *fakeGateway) ListAdSets(ctx context.Context) ([]meta.AdSet, error) {
	return f.adSets, f.listErr
}

func (f *fakeGateway) ListCampaigns(ctx context.Context) ([]meta.Campaign, error) {
	return f.campaigns, f.listErr
}

func (f *fakeGateway) Insights(ctx context.Context, q meta.InsightsQuery) ([]meta.Insight, error) {
	return f.insights, f.listErr
}

func (f *fakeGateway) SetStatus(ctx context.Context, targetID, status string) error {
	f.pauses = append(f.pauses, targetID+":"+status)
	return nil
}

func (f *fakeGateway) SetBudget(ctx context.Context, targetID string, bt meta.BudgetType, amountMinor int64) error {
	f.budgetCalls = append(f.budgetCalls, fmt.Sprintf("%s:%s:%d", targetID, bt, amountMinor))
	return nil
}

// staticAnalyzer returns a fixed verdict set.
type staticAnalyzer struct {
	verdicts []verdict.Verdict
}

func (a staticAnalyzer) Analyze(ctx context.Context, in verdict.Input) []verdict.Verdict {
	return a.verdicts
}

type fakeCopy struct {
	variants []adcopy.Variant
	err      error
}

func (f fakeCopy) Generate(ctx context.Context, req adcopy.Request) ([]adcopy.Variant, error) {
	return f.variants, f.err
}

func newTestHandler(t *testing.T, gw *fakeGateway, analyzer optimizer.Analyzer) (http.Handler, *storage.Store) {
	t.Helper()

	store, err := storage.Open(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })

	cipher := secret.Passthrough{}
	newGateway := func(token, accountID string) optimizer.Gateway { return gw }
	newAnalyzer := func(preferred string) optimizer.Analyzer {
		if analyzer != nil {
			return analyzer
		}
		return staticAnalyzer{}
	}

	deps := AppDeps{
		Store:       store,
		Cipher:      cipher,
		Optimizer:   optimizer.New(store, cipher, newGateway, newAnalyzer),
		Copy:        fakeCopy{variants: []adcopy.Variant{{Headline: "h", CallToAction: "SHOP_NOW"}}},
		Token:       testToken,
		NewGateway:  newGateway,
		NewAnalyzer: newAnalyzer,
	}
	return NewAppHandler(deps), store
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Authorization", "Bearer "+testToken)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func connectAccount(t *testing.T, h http.Handler, accountID string) {
	t.Helper()
	w := doJSON(t, h, http.MethodPost, "/integrations", map[string]any{
		"accountId":    accountID,
		"accessToken":  "tok-123",
		"pageId":       "page-1",
		"instagramIds": []string{"ig-1"},
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("connect status = %d, body %s", w.Code, w.Body.String())
	}
}

func TestHealthNoAuth(t *testing.T) {
	h, _ := newTestHandler(t, &fakeGateway{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("health status = %d, want 200", w.Code)
	}
}

func TestBearerAuthRejects(t *testing.T) {
	h, _ := newTestHandler(t, &fakeGateway{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/integrations/act_1", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
}

func TestConnectAndGetIntegration(t *testing.T) {
	h, _ := newTestHandler(t, &fakeGateway{}, nil)
	connectAccount(t, h, "act_1")

	w := doJSON(t, h, http.MethodGet, "/integrations/act_1", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get status = %d", w.Code)
	}

	var resp map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp["accountId"] != "act_1" {
		t.Errorf("accountId = %v", resp["accountId"])
	}
	if resp["status"] != storage.IntegrationActive {
		t.Errorf("status = %v, want active", resp["status"])
	}
	if resp["autonomousEnabled"] != false {
		t.Errorf("autonomousEnabled = %v, want false on connect", resp["autonomousEnabled"])
	}
	if strings.Contains(w.Body.String(), "tok-123") {
		t.Error("integration response leaked the access token")
	}
}

func TestConnectValidation(t *testing.T) {
	h, _ := newTestHandler(t, &fakeGateway{}, nil)

	w := doJSON(t, h, http.MethodPost, "/integrations", map[string]any{"accountId": "act_1"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("missing token status = %d, want 400", w.Code)
	}

	w = doJSON(t, h, http.MethodPost, "/integrations", map[string]any{"accessToken": "t"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("missing account status = %d, want 400", w.Code)
	}
}

func TestPatchIntegration(t *testing.T) {
	h, _ := newTestHandler(t, &fakeGateway{}, nil)
	connectAccount(t, h, "act_1")

	w := doJSON(t, h, http.MethodPatch, "/integrations/act_1", map[string]any{
		"autonomousEnabled": true,
		"preferredBackend":  "gemini",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("patch status = %d, body %s", w.Code, w.Body.String())
	}

	var resp map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp["autonomousEnabled"] != true {
		t.Errorf("autonomousEnabled = %v, want true", resp["autonomousEnabled"])
	}
	if resp["preferredBackend"] != "gemini" {
		t.Errorf("preferredBackend = %v, want gemini", resp["preferredBackend"])
	}
}

func TestPatchIntegrationRejectsUnknownBackend(t *testing.T) {
	h, _ := newTestHandler(t, &fakeGateway{}, nil)
	connectAccount(t, h, "act_1")

	w := doJSON(t, h, http.MethodPatch, "/integrations/act_1", map[string]any{
		"preferredBackend": "claude",
	})
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestDisconnectBlocksAnalysis(t *testing.T) {
	h, _ := newTestHandler(t, &fakeGateway{}, nil)
	connectAccount(t, h, "act_1")

	w := doJSON(t, h, http.MethodDelete, "/integrations/act_1", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("disconnect status = %d", w.Code)
	}

	w = doJSON(t, h, http.MethodPost, "/integrations/act_1/analyze", nil)
	if w.Code != http.StatusConflict {
		t.Errorf("analyze on disconnected status = %d, want 409", w.Code)
	}
}

func TestIntegrationNotFound(t *testing.T) {
	h, _ := newTestHandler(t, &fakeGateway{}, nil)

	w := doJSON(t, h, http.MethodGet, "/integrations/act_missing", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestAnalyze(t *testing.T) {
	gw := &fakeGateway{
		campaigns: []meta.Campaign{{ID: "c1", Name: "Campaign"}},
		adSets: []meta.AdSet{
			{ID: "as1", Name: "Winner", Status: meta.StatusActive, DailyBudget: 4000},
		},
		insights: []meta.Insight{
			{
				AdSetID:      "as1",
				Spend:        80,
				PurchaseROAS: []meta.Action{{ActionType: "omni_purchase", Value: 5}},
			},
		},
	}
	analyzer := staticAnalyzer{verdicts: []verdict.Verdict{
		{Agent: verdict.AgentAuditor, Status: verdict.StatusOptimal, Thought: "fine"},
	}}

	h, _ := newTestHandler(t, gw, analyzer)
	connectAccount(t, h, "act_1")

	w := doJSON(t, h, http.MethodPost, "/integrations/act_1/analyze", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("analyze status = %d, body %s", w.Code, w.Body.String())
	}

	var resp struct {
		Verdicts        []verdict.Verdict `json:"verdicts"`
		Recommendations []struct {
			Type            string  `json:"type"`
			TargetID        string  `json:"targetId"`
			SuggestedBudget float64 `json:"suggestedBudget"`
		} `json:"recommendations"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Verdicts) != 1 || resp.Verdicts[0].Agent != verdict.AgentAuditor {
		t.Errorf("verdicts = %+v", resp.Verdicts)
	}
	if len(resp.Recommendations) != 1 {
		t.Fatalf("recommendations = %+v, want one scale_up", resp.Recommendations)
	}
	if resp.Recommendations[0].Type != "scale_up" || resp.Recommendations[0].SuggestedBudget != 48 {
		t.Errorf("recommendation = %+v", resp.Recommendations[0])
	}
}

func TestAnalyzeUpstreamFailure(t *testing.T) {
	gw := &fakeGateway{listErr: &meta.APIError{Message: "rate limited", Code: 17, HTTPStatus: 400}}
	h, _ := newTestHandler(t, gw, nil)
	connectAccount(t, h, "act_1")

	w := doJSON(t, h, http.MethodPost, "/integrations/act_1/analyze", nil)
	if w.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", w.Code)
	}
	if !strings.Contains(w.Body.String(), "rate limited") {
		t.Errorf("body should carry the platform message: %s", w.Body.String())
	}
}

func TestApplyRecommendation(t *testing.T) {
	gw := &fakeGateway{}
	h, _ := newTestHandler(t, gw, nil)
	connectAccount(t, h, "act_1")

	w := doJSON(t, h, http.MethodPost, "/integrations/act_1/apply", map[string]any{
		"type":            "scale_up",
		"targetId":        "as1",
		"currentBudget":   40,
		"suggestedBudget": 48,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("apply status = %d, body %s", w.Code, w.Body.String())
	}
	if len(gw.budgetCalls) != 1 || gw.budgetCalls[0] != "as1:daily_budget:4800" {
		t.Errorf("budgetCalls = %v", gw.budgetCalls)
	}
}

func TestApplyRequiresTarget(t *testing.T) {
	h, _ := newTestHandler(t, &fakeGateway{}, nil)
	connectAccount(t, h, "act_1")

	w := doJSON(t, h, http.MethodPost, "/integrations/act_1/apply", map[string]any{"type": "pause"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestOptimizeDisabledByDefault(t *testing.T) {
	gw := &fakeGateway{}
	h, _ := newTestHandler(t, gw, nil)
	connectAccount(t, h, "act_1")

	w := doJSON(t, h, http.MethodPost, "/integrations/act_1/optimize", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("optimize status = %d, body %s", w.Code, w.Body.String())
	}

	var resp struct {
		Disabled bool   `json:"disabled"`
		Reason   string `json:"reason"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if !resp.Disabled {
		t.Errorf("disabled = false, want true before opt-in; reason %q", resp.Reason)
	}
	if len(gw.pauses) != 0 || len(gw.budgetCalls) != 0 {
		t.Error("optimize mutated the account while autonomous mode was off")
	}
}

func TestOptimizeAppliesAndRecordsRun(t *testing.T) {
	gw := &fakeGateway{
		adSets: []meta.AdSet{
			{ID: "as1", Name: "Loser", Status: meta.StatusActive, DailyBudget: 2000},
		},
		insights: []meta.Insight{
			{
				AdSetID:      "as1",
				Spend:        150,
				PurchaseROAS: []meta.Action{{ActionType: "omni_purchase", Value: 0.4}},
			},
		},
	}
	h, store := newTestHandler(t, gw, nil)
	connectAccount(t, h, "act_1")

	w := doJSON(t, h, http.MethodPatch, "/integrations/act_1", map[string]any{"autonomousEnabled": true})
	if w.Code != http.StatusOK {
		t.Fatalf("patch status = %d", w.Code)
	}

	w = doJSON(t, h, http.MethodPost, "/integrations/act_1/optimize", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("optimize status = %d, body %s", w.Code, w.Body.String())
	}

	var resp struct {
		RunID          string `json:"runId"`
		ActionsApplied int    `json:"actionsApplied"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.ActionsApplied != 1 {
		t.Errorf("actionsApplied = %d, want 1", resp.ActionsApplied)
	}
	if len(gw.pauses) != 1 || gw.pauses[0] != "as1:PAUSED" {
		t.Errorf("pauses = %v", gw.pauses)
	}

	runs, err := store.ListRuns("act_1", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 1 || runs[0].ID != resp.RunID {
		t.Fatalf("runs = %+v", runs)
	}

	w = doJSON(t, h, http.MethodGet, "/integrations/act_1/runs", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list runs status = %d", w.Code)
	}
	w = doJSON(t, h, http.MethodGet, "/runs/"+resp.RunID+"/actions", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list actions status = %d", w.Code)
	}
	var actions []storage.ActionRecord
	if err := json.Unmarshal(w.Body.Bytes(), &actions); err != nil {
		t.Fatal(err)
	}
	if len(actions) != 1 || actions[0].Type != "pause" {
		t.Errorf("actions = %+v", actions)
	}
}

func TestCopyEndpoint(t *testing.T) {
	h, _ := newTestHandler(t, &fakeGateway{}, nil)

	w := doJSON(t, h, http.MethodPost, "/copy", map[string]any{"notes": "running shoe", "count": 1})
	if w.Code != http.StatusOK {
		t.Fatalf("copy status = %d, body %s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), "SHOP_NOW") {
		t.Errorf("copy body = %s", w.Body.String())
	}
}

func TestCopyUnavailable(t *testing.T) {
	store, err := storage.Open(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })

	h := NewAppHandler(AppDeps{Store: store, Cipher: secret.Passthrough{}, Token: testToken})
	w := doJSON(t, h, http.MethodPost, "/copy", map[string]any{"notes": "x"})
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", w.Code)
	}
}
