package optimizer

import (
	"context"
	"log/slog"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/castora/adops/internal/meta"
	"github.com/castora/adops/internal/secret"
	"github.com/castora/adops/internal/storage"
	"github.com/castora/adops/internal/strategy"
	"github.com/castora/adops/internal/verdict"
)

// lookbackPreset is the fixed trailing window every run analyzes.
const lookbackPreset = "last_7d"

// RunStore is the slice of storage the optimizer records into.
type RunStore interface {
	GetIntegration(accountID string) (storage.Integration, error)
	SaveRun(r storage.Run) error
	FinishRun(id, status string, actionsApplied int, errMsg string) error
	SaveAction(a storage.ActionRecord) error
}

// Analyzer produces verdicts for an analysis run.
type Analyzer interface {
	Analyze(ctx context.Context, in verdict.Input) []verdict.Verdict
}

// Result is the non-exceptional outcome of one run. Disabled is a short
// circuit, not an error: autonomous mode off or credentials missing.
type Result struct {
	RunID          string   `json:"runId"`
	Disabled       bool     `json:"disabled"`
	Reason         string   `json:"reason,omitempty"`
	ActionsApplied int      `json:"actionsApplied"`
	Failures       []string `json:"failures,omitempty"`
}

// Optimizer is the unattended process allowed to mutate live spend.
type Optimizer struct {
	store       RunStore
	cipher      secret.Cipher
	newGateway  func(accessToken, accountID string) Gateway
	newAnalyzer func(preferredBackend string) Analyzer
	logger      *slog.Logger
}

// New creates an Optimizer. newGateway builds a platform client per run
// from the integration's decrypted credential; newAnalyzer builds the
// verdict engine for the integration's preferred backend.
func New(
	store RunStore,
	cipher secret.Cipher,
	newGateway func(accessToken, accountID string) Gateway,
	newAnalyzer func(preferredBackend string) Analyzer,
) *Optimizer {
	return &Optimizer{
		store:       store,
		cipher:      cipher,
		newGateway:  newGateway,
		newAnalyzer: newAnalyzer,
		logger:      slog.Default(),
	}
}

// Run executes one optimization pass for an account: load the integration,
// gate on autonomous mode and credentials, fan out to the verdict engine
// and the scaling heuristics, then apply every pause and rebudget action
// concurrently. Individual mutation failures are captured, not raised;
// platform mutations are idempotent at the target-id level so the run
// favors maximal application over atomicity.
func (o *Optimizer) Run(ctx context.Context, accountID, trigger string) (Result, error) {
	integ, err := o.store.GetIntegration(accountID)
	if err != nil {
		return Result{}, err
	}

	if disabled, reason := gate(integ); disabled {
		o.logger.Debug("optimizer run skipped", "account", accountID, "reason", reason)
		return Result{Disabled: true, Reason: reason}, nil
	}

	token, err := o.cipher.Decrypt(integ.TokenCiphertext)
	if err != nil || token == "" {
		return Result{Disabled: true, Reason: "credentials unavailable"}, nil
	}

	runID := uuid.NewString()
	run := storage.Run{
		ID:        runID,
		AccountID: accountID,
		Trigger:   trigger,
		Status:    "running",
		StartedAt: time.Now().UTC(),
	}
	if err := o.store.SaveRun(run); err != nil {
		return Result{}, err
	}

	gw := o.newGateway(token, accountID)
	recs, runErr := o.collect(ctx, gw, integ)
	if runErr != nil {
		if err := o.store.FinishRun(runID, "failed", 0, runErr.Error()); err != nil {
			o.logger.Error("recording run outcome failed", "run", runID, "error", err)
		}
		return Result{RunID: runID}, runErr
	}

	pauses, rebudgets := partition(recs)
	applied, failures := o.apply(ctx, gw, runID, accountID, append(pauses, rebudgets...))

	status := "completed"
	errMsg := ""
	if len(failures) > 0 {
		errMsg = strings.Join(failures, "; ")
	}
	if err := o.store.FinishRun(runID, status, applied, errMsg); err != nil {
		o.logger.Error("recording run outcome failed", "run", runID, "error", err)
	}

	o.logger.Info("optimizer run finished",
		"account", accountID,
		"run", runID,
		"pauses", len(pauses),
		"rebudgets", len(rebudgets),
		"applied", applied,
		"failed", len(failures),
	)
	return Result{RunID: runID, ActionsApplied: applied, Failures: failures}, nil
}

// gate is the hard precondition: no mutation without the per-account
// opt-in and an active connection.
func gate(integ storage.Integration) (disabled bool, reason string) {
	switch {
	case integ.Status != storage.IntegrationActive:
		return true, "integration disconnected"
	case !integ.AutonomousEnabled:
		return true, "autonomous mode disabled"
	case integ.TokenCiphertext == "":
		return true, "credentials unavailable"
	default:
		return false, ""
	}
}

// collect fans out to the verdict engine and the scaling heuristics in
// parallel over the fixed lookback window and merges their
// recommendations.
func (o *Optimizer) collect(ctx context.Context, gw Gateway, integ storage.Integration) ([]strategy.Recommendation, error) {
	var (
		verdicts  []verdict.Verdict
		adSets    []meta.AdSet
		campaigns []meta.Campaign
		insights  []meta.Insight
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		adSets, err = gw.ListAdSets(gctx)
		if err != nil {
			return err
		}
		ids := make([]string, len(adSets))
		for i, as := range adSets {
			ids[i] = as.ID
		}
		insights, err = gw.Insights(gctx, meta.InsightsQuery{
			TargetIDs:  ids,
			Level:      "adset",
			DatePreset: lookbackPreset,
		})
		return err
	})
	g.Go(func() error {
		var err error
		campaigns, err = gw.ListCampaigns(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	analyzer := o.newAnalyzer(integ.PreferredBackend)
	verdicts = analyzer.Analyze(ctx, verdict.Input{
		AccountID: integ.AccountID,
		Campaigns: campaigns,
		AdSets:    adSets,
		Insights:  insights,
	})

	recs := strategy.Evaluate(adSets, insights)
	recs = append(recs, verdictRecommendations(verdicts, adSets)...)
	return dedupe(recs), nil
}

// verdictRecommendations converts targeted CRITICAL verdicts into pause
// actions. Verdicts without a target id stay advisory.
func verdictRecommendations(verdicts []verdict.Verdict, adSets []meta.AdSet) []strategy.Recommendation {
	budgets := make(map[string]float64, len(adSets))
	for _, as := range adSets {
		budgets[as.ID] = float64(as.DailyBudget) / 100
	}

	var recs []strategy.Recommendation
	for _, v := range verdicts {
		if v.Status != verdict.StatusCritical || v.TargetID == "" {
			continue
		}
		recs = append(recs, strategy.Recommendation{
			Type:          strategy.RecPause,
			TargetID:      v.TargetID,
			Reason:        v.Recommendation,
			CurrentBudget: budgets[v.TargetID],
		})
	}
	return recs
}

// partition splits actionable recommendations into pauses and rebudgets.
func partition(recs []strategy.Recommendation) (pauses, rebudgets []strategy.Recommendation) {
	for _, r := range recs {
		switch r.Type {
		case strategy.RecPause:
			pauses = append(pauses, r)
		case strategy.RecScaleUp:
			rebudgets = append(rebudgets, r)
		}
	}
	return pauses, rebudgets
}

// dedupe keeps the first recommendation per (target, type): the heuristic
// and a verdict may both flag the same ad set.
func dedupe(recs []strategy.Recommendation) []strategy.Recommendation {
	seen := make(map[string]bool, len(recs))
	var out []strategy.Recommendation
	for _, r := range recs {
		key := string(r.Type) + "|" + r.TargetID
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, r)
	}
	return out
}

// apply issues every mutation concurrently. There is no dependency
// ordering between targets, and one failure never blocks the rest.
func (o *Optimizer) apply(ctx context.Context, gw Gateway, runID, accountID string, recs []strategy.Recommendation) (applied int, failures []string) {
	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)

	for _, rec := range recs {
		wg.Add(1)
		go func(rec strategy.Recommendation) {
			defer wg.Done()

			err := ApplyRecommendation(ctx, gw, rec)

			record := storage.ActionRecord{
				ID:        uuid.NewString(),
				RunID:     runID,
				AccountID: accountID,
				TargetID:  rec.TargetID,
				Type:      string(rec.Type),
				OldBudget: int64(math.Round(rec.CurrentBudget * 100)),
				NewBudget: int64(math.Round(rec.SuggestedBudget * 100)),
				Status:    "applied",
			}

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				record.Status = "failed"
				record.Error = err.Error()
				failures = append(failures, rec.TargetID+": "+err.Error())
				o.logger.Warn("mutation failed", "run", runID, "target", rec.TargetID, "type", rec.Type, "error", err)
			} else {
				applied++
			}
			if saveErr := o.store.SaveAction(record); saveErr != nil {
				o.logger.Error("recording action failed", "run", runID, "target", rec.TargetID, "error", saveErr)
			}
		}(rec)
	}
	wg.Wait()
	return applied, failures
}
