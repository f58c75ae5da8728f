package verdict

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/castora/adops/internal/meta"
)

type fakeBackend struct {
	response string
	err      error
	acquired int
	lastUser string
}

func (f *fakeBackend) Acquire(ctx context.Context, fn func(ctx context.Context) error) error {
	f.acquired++
	return fn(ctx)
}

func (f *fakeBackend) Chat(ctx context.Context, system, user string) (string, error) {
	f.lastUser = user
	return f.response, f.err
}

func TestParseVerdicts_VerdictsKey(t *testing.T) {
	got := parseVerdicts(`{"verdicts":[{"agent":"auditor","status":"OPTIMAL","thought":"fine"}]}`)
	if len(got) != 1 {
		t.Fatalf("got %d verdicts", len(got))
	}
	if got[0].Agent != AgentAuditor || got[0].Status != StatusOptimal {
		t.Errorf("verdict = %+v", got[0])
	}
}

func TestParseVerdicts_AgentsKey(t *testing.T) {
	got := parseVerdicts(`{"agents":[{"name":"strategy","status":"critical","action":"pause it","target_id":"as9"}]}`)
	if len(got) != 1 {
		t.Fatalf("got %d verdicts", len(got))
	}
	if got[0].Agent != AgentStrategist {
		t.Errorf("Agent = %s", got[0].Agent)
	}
	if got[0].Status != StatusCritical {
		t.Errorf("Status = %s", got[0].Status)
	}
	if got[0].Recommendation != "pause it" || got[0].TargetID != "as9" {
		t.Errorf("verdict = %+v", got[0])
	}
}

func TestParseVerdicts_FirstArrayValue(t *testing.T) {
	got := parseVerdicts(`{"model_notes":"hi","results":[{"agent":"creative","status":"WARNING","thought":"fatigue"}]}`)
	if len(got) != 1 {
		t.Fatalf("got %d verdicts, want the lone array-valued key used", len(got))
	}
	if got[0].Agent != AgentCreative || got[0].Thought != "fatigue" {
		t.Errorf("verdict = %+v", got[0])
	}
}

func TestParseVerdicts_BareArray(t *testing.T) {
	got := parseVerdicts(`[{"agent":"auditor","status":"WARNING"}]`)
	if len(got) != 1 {
		t.Fatalf("got %d verdicts", len(got))
	}
}

func TestParseVerdicts_UnusableShapes(t *testing.T) {
	for _, raw := range []string{
		"",
		"not json",
		`{"note":"no arrays here"}`,
		`{"n":42}`,
		`"just a string"`,
	} {
		if got := parseVerdicts(raw); got != nil {
			t.Errorf("parseVerdicts(%q) = %+v, want nil", raw, got)
		}
	}
}

func TestAnalyze_BackendErrorFallsBack(t *testing.T) {
	fb := &fakeBackend{err: errors.New("upstream down")}
	got := NewEngine(fb).Analyze(context.Background(), Input{AccountID: "123"})

	if len(got) != 3 {
		t.Fatalf("got %d verdicts, want deterministic 3", len(got))
	}
	agents := map[Agent]bool{}
	for _, v := range got {
		if v.Status != StatusWarning {
			t.Errorf("fallback status = %s, want WARNING", v.Status)
		}
		agents[v.Agent] = true
	}
	if !agents[AgentAuditor] || !agents[AgentStrategist] || !agents[AgentCreative] {
		t.Errorf("fallback must cover all three agents: %v", agents)
	}
}

func TestAnalyze_UnusableResponseFallsBack(t *testing.T) {
	fb := &fakeBackend{response: `{"no":"arrays"}`}
	got := NewEngine(fb).Analyze(context.Background(), Input{AccountID: "123"})
	if len(got) != 3 {
		t.Fatalf("got %d verdicts, want 3", len(got))
	}
}

func TestAnalyze_NilBackendReturnsNothing(t *testing.T) {
	if got := NewEngine(nil).Analyze(context.Background(), Input{}); got != nil {
		t.Errorf("nil backend should produce no verdicts, got %+v", got)
	}
}

func TestAnalyze_GoesThroughAcquire(t *testing.T) {
	fb := &fakeBackend{response: `{"verdicts":[{"agent":"auditor","status":"OPTIMAL"}]}`}
	NewEngine(fb).Analyze(context.Background(), Input{AccountID: "123"})
	if fb.acquired != 1 {
		t.Errorf("Acquire calls = %d, want 1", fb.acquired)
	}
}

func TestBuildUserMessage_AggregatesPerTarget(t *testing.T) {
	in := Input{
		AccountID: "123",
		AdSets:    []meta.AdSet{{ID: "as1", Name: "Prospecting"}},
		Insights: []meta.Insight{
			{AdSetID: "as1", Spend: 40, Clicks: 10, PurchaseROAS: []meta.Action{{ActionType: "omni_purchase", Value: 5}}},
			{AdSetID: "as1", Spend: 40, Clicks: 12, PurchaseROAS: []meta.Action{{ActionType: "omni_purchase", Value: 5}}},
		},
	}
	msg := buildUserMessage(in)
	if !strings.Contains(msg, "Prospecting [as1]") {
		t.Errorf("message missing target line: %s", msg)
	}
	if !strings.Contains(msg, "spend 80.00") {
		t.Errorf("spend not aggregated: %s", msg)
	}
	if !strings.Contains(msg, "roas 5.00x") {
		t.Errorf("roas not weighted: %s", msg)
	}
}
