package api

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/errgroup"

	"github.com/castora/adops/internal/backend"
	adcopy "github.com/castora/adops/internal/copy"
	"github.com/castora/adops/internal/meta"
	"github.com/castora/adops/internal/optimizer"
	"github.com/castora/adops/internal/secret"
	"github.com/castora/adops/internal/storage"
	"github.com/castora/adops/internal/strategy"
	"github.com/castora/adops/internal/verdict"
)

const maxRequestBodySize = 1 << 20 // 1MB
const maxCopyBodySize = 10 << 20   // 10MB, briefs arrive base64-encoded

// lookbackPreset is the trailing window analysis endpoints read.
const lookbackPreset = "last_7d"

// CopyGenerator abstracts ad copy generation for the API layer.
type CopyGenerator interface {
	Generate(ctx context.Context, req adcopy.Request) ([]adcopy.Variant, error)
}

type AppDeps struct {
	Store       *storage.Store
	Cipher      secret.Cipher
	Coordinator *backend.Coordinator
	Optimizer   *optimizer.Optimizer
	Copy        CopyGenerator // optional; if nil, copy generation is unavailable
	Token       string

	// NewGateway builds a platform client from an integration's decrypted
	// credential. Tests point it at a local server.
	NewGateway func(accessToken, accountID string) optimizer.Gateway

	// NewAnalyzer builds the verdict engine for a preferred backend.
	// Defaults to selecting through Coordinator.
	NewAnalyzer func(preferredBackend string) optimizer.Analyzer

	// NewPublisher builds a platform client for the publish flow, which
	// needs the create endpoints the optimizer never touches.
	NewPublisher func(accessToken, accountID string) Publisher
}

func (deps AppDeps) withDefaults() AppDeps {
	if deps.NewGateway == nil {
		deps.NewGateway = func(accessToken, accountID string) optimizer.Gateway {
			return meta.New(accessToken, accountID)
		}
	}
	if deps.NewAnalyzer == nil {
		coordinator := deps.Coordinator
		deps.NewAnalyzer = func(preferredBackend string) optimizer.Analyzer {
			return NewAnalyzer(coordinator, preferredBackend)
		}
	}
	if deps.NewPublisher == nil {
		deps.NewPublisher = func(accessToken, accountID string) Publisher {
			return meta.New(accessToken, accountID)
		}
	}
	return deps
}

func NewAppHandler(deps AppDeps) http.Handler {
	deps = deps.withDefaults()

	r := chi.NewRouter()
	r.Get("/health", handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(deps.Token))

		r.Post("/integrations", handleConnect(deps))
		r.Get("/integrations/{accountID}", handleGetIntegration(deps))
		r.Patch("/integrations/{accountID}", handlePatchIntegration(deps))
		r.Delete("/integrations/{accountID}", handleDisconnect(deps))
		r.Post("/integrations/{accountID}/analyze", handleAnalyze(deps))
		r.Post("/integrations/{accountID}/publish", handlePublish(deps))
		r.Get("/integrations/{accountID}/ads", handleListAds(deps))
		r.Post("/integrations/{accountID}/apply", handleApply(deps))
		r.Post("/integrations/{accountID}/optimize", handleOptimize(deps))
		r.Get("/integrations/{accountID}/runs", handleListRuns(deps))
		r.Get("/runs/{runID}/actions", handleListActions(deps))
		r.Post("/copy", handleCopy(deps))
	})

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

// NewAnalyzer builds a verdict engine over the coordinator's selection for
// the given preference. A nil handle must become a nil engine backend, not
// a typed-nil interface, so the engine's no-credentials path still works.
func NewAnalyzer(c *backend.Coordinator, preferredBackend string) *verdict.Engine {
	if c == nil {
		return verdict.NewEngine(nil)
	}
	handle := c.Select(backend.Kind(preferredBackend))
	if handle == nil {
		return verdict.NewEngine(nil)
	}
	return verdict.NewEngine(handle)
}

type connectRequest struct {
	AccountID        string   `json:"accountId"`
	AccessToken      string   `json:"accessToken"`
	PageID           string   `json:"pageId"`
	InstagramIDs     []string `json:"instagramIds"`
	PreferredBackend string   `json:"preferredBackend"`
}

type integrationResponse struct {
	AccountID         string    `json:"accountId"`
	PageID            string    `json:"pageId,omitempty"`
	InstagramIDs      []string  `json:"instagramIds"`
	PreferredBackend  string    `json:"preferredBackend,omitempty"`
	AutonomousEnabled bool      `json:"autonomousEnabled"`
	Status            string    `json:"status"`
	CreatedAt         time.Time `json:"createdAt"`
	UpdatedAt         time.Time `json:"updatedAt"`
}

func toIntegrationResponse(i storage.Integration) integrationResponse {
	ids := []string{}
	if i.InstagramIDs != "" {
		_ = json.Unmarshal([]byte(i.InstagramIDs), &ids)
	}
	return integrationResponse{
		AccountID:         i.AccountID,
		PageID:            i.PageID,
		InstagramIDs:      ids,
		PreferredBackend:  i.PreferredBackend,
		AutonomousEnabled: i.AutonomousEnabled,
		Status:            i.Status,
		CreatedAt:         i.CreatedAt,
		UpdatedAt:         i.UpdatedAt,
	}
}

func handleConnect(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req connectRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if req.AccountID == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "accountId is required")
			return
		}
		if req.AccessToken == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "accessToken is required")
			return
		}

		ciphertext, err := deps.Cipher.Encrypt(req.AccessToken)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to protect credential: %v", err)
			return
		}

		idsJSON := "[]"
		if req.InstagramIDs != nil {
			b, err := json.Marshal(req.InstagramIDs)
			if err != nil {
				httpError(w, http.StatusInternalServerError, "api_error", "failed to marshal instagram ids: %v", err)
				return
			}
			idsJSON = string(b)
		}

		now := time.Now().UTC()
		integ := storage.Integration{
			AccountID:        req.AccountID,
			TokenCiphertext:  ciphertext,
			PageID:           req.PageID,
			InstagramIDs:     idsJSON,
			PreferredBackend: req.PreferredBackend,
			Status:           storage.IntegrationActive,
			CreatedAt:        now,
			UpdatedAt:        now,
		}
		if err := deps.Store.SaveIntegration(integ); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to save integration: %v", err)
			return
		}

		saved, err := deps.Store.GetIntegration(req.AccountID)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to load integration: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(toIntegrationResponse(saved))
	}
}

func handleGetIntegration(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		integ, err := deps.Store.GetIntegration(chi.URLParam(r, "accountID"))
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "integration not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get integration: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(toIntegrationResponse(integ))
	}
}

type patchIntegrationRequest struct {
	AutonomousEnabled *bool   `json:"autonomousEnabled"`
	PreferredBackend  *string `json:"preferredBackend"`
}

func handlePatchIntegration(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		accountID := chi.URLParam(r, "accountID")

		var req patchIntegrationRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if req.PreferredBackend != nil {
			switch *req.PreferredBackend {
			case "", string(backend.KindOpenAI), string(backend.KindGemini):
			default:
				httpError(w, http.StatusBadRequest, "invalid_request_error", "preferredBackend must be %q or %q", backend.KindOpenAI, backend.KindGemini)
				return
			}
		}

		err := deps.Store.UpdateIntegrationSettings(accountID, req.AutonomousEnabled, req.PreferredBackend)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "integration not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to update integration: %v", err)
			return
		}

		integ, err := deps.Store.GetIntegration(accountID)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to load integration: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(toIntegrationResponse(integ))
	}
}

func handleDisconnect(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		err := deps.Store.SetIntegrationStatus(chi.URLParam(r, "accountID"), storage.IntegrationDisconnected)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "integration not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to disconnect integration: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": storage.IntegrationDisconnected})
	}
}

type analyzeResponse struct {
	Verdicts        []verdict.Verdict         `json:"verdicts"`
	Recommendations []strategy.Recommendation `json:"recommendations"`
}

func handleAnalyze(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		accountID := chi.URLParam(r, "accountID")

		gw, integ, ok := gatewayFor(deps, w, accountID)
		if !ok {
			return
		}

		var (
			campaigns []meta.Campaign
			adSets    []meta.AdSet
			insights  []meta.Insight
		)
		g, gctx := errgroup.WithContext(r.Context())
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
			platformError(w, "fetching account data", err)
			return
		}

		analyzer := deps.NewAnalyzer(integ.PreferredBackend)
		verdicts := analyzer.Analyze(r.Context(), verdict.Input{
			AccountID: accountID,
			Campaigns: campaigns,
			AdSets:    adSets,
			Insights:  insights,
		})
		if verdicts == nil {
			verdicts = []verdict.Verdict{}
		}

		recs := strategy.Evaluate(adSets, insights)
		if recs == nil {
			recs = []strategy.Recommendation{}
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(analyzeResponse{Verdicts: verdicts, Recommendations: recs})
	}
}

func handleApply(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		accountID := chi.URLParam(r, "accountID")

		var rec strategy.Recommendation
		if err := json.NewDecoder(r.Body).Decode(&rec); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if rec.TargetID == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "targetId is required")
			return
		}

		gw, _, ok := gatewayFor(deps, w, accountID)
		if !ok {
			return
		}

		if err := optimizer.ApplyRecommendation(r.Context(), gw, rec); err != nil {
			platformError(w, "applying recommendation", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "applied", "targetId": rec.TargetID})
	}
}

func handleOptimize(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		accountID := chi.URLParam(r, "accountID")

		result, err := deps.Optimizer.Run(r.Context(), accountID, "manual")
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "integration not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "optimization run failed: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(result)
	}
}

func handleListRuns(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := parseIntParam(r, "limit", 20, 100)

		runs, err := deps.Store.ListRuns(chi.URLParam(r, "accountID"), limit)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list runs: %v", err)
			return
		}
		if runs == nil {
			runs = []storage.Run{}
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(runs)
	}
}

func handleListActions(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actions, err := deps.Store.ListActions(chi.URLParam(r, "runID"))
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list actions: %v", err)
			return
		}
		if actions == nil {
			actions = []storage.ActionRecord{}
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(actions)
	}
}

type copyRequest struct {
	ProductURL string `json:"productUrl"`
	Brief      string `json:"brief"` // base64-encoded PDF
	Notes      string `json:"notes"`
	Count      int    `json:"count"`
}

func handleCopy(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if deps.Copy == nil {
			httpError(w, http.StatusServiceUnavailable, "api_error", "copy generation is not configured")
			return
		}

		r.Body = http.MaxBytesReader(w, r.Body, maxCopyBodySize)
		defer r.Body.Close()

		var req copyRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}

		var brief []byte
		if req.Brief != "" {
			decoded, err := base64.StdEncoding.DecodeString(req.Brief)
			if err != nil {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid base64 brief")
				return
			}
			brief = decoded
		}

		variants, err := deps.Copy.Generate(r.Context(), adcopy.Request{
			ProductURL: req.ProductURL,
			BriefPDF:   brief,
			Notes:      req.Notes,
			Count:      req.Count,
		})
		if err != nil {
			httpError(w, http.StatusBadGateway, "api_error", "copy generation failed: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"variants": variants})
	}
}

// gatewayFor builds a platform client for the read and mutation endpoints
// the optimizer shares.
func gatewayFor(deps AppDeps, w http.ResponseWriter, accountID string) (optimizer.Gateway, storage.Integration, bool) {
	token, integ, ok := credentialFor(deps, w, accountID)
	if !ok {
		return nil, storage.Integration{}, false
	}
	return deps.NewGateway(token, accountID), integ, true
}

// credentialFor loads an integration, rejects disconnected ones, and
// decrypts its access token. On failure the response is already written.
func credentialFor(deps AppDeps, w http.ResponseWriter, accountID string) (string, storage.Integration, bool) {
	integ, err := deps.Store.GetIntegration(accountID)
	if errors.Is(err, storage.ErrNotFound) {
		httpError(w, http.StatusNotFound, "not_found", "integration not found")
		return "", storage.Integration{}, false
	}
	if err != nil {
		httpError(w, http.StatusInternalServerError, "api_error", "failed to get integration: %v", err)
		return "", storage.Integration{}, false
	}
	if integ.Status != storage.IntegrationActive {
		httpError(w, http.StatusConflict, "invalid_request_error", "integration is disconnected")
		return "", storage.Integration{}, false
	}

	token, err := deps.Cipher.Decrypt(integ.TokenCiphertext)
	if err != nil || token == "" {
		httpError(w, http.StatusConflict, "invalid_request_error", "integration credential is unavailable")
		return "", storage.Integration{}, false
	}
	return token, integ, true
}

// platformError maps an upstream ad platform failure to a readable API
// error, surfacing the platform's own message when one exists.
func platformError(w http.ResponseWriter, action string, err error) {
	if apiErr, ok := meta.AsAPIError(err); ok {
		httpError(w, http.StatusBadGateway, "platform_error", "%s: %s (code %d)", action, apiErr.Message, apiErr.Code)
		return
	}
	httpError(w, http.StatusBadGateway, "api_error", "%s: %v", action, err)
}

func parseIntParam(r *http.Request, key string, defaultVal, maxVal int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return defaultVal
	}
	if maxVal > 0 && v > maxVal {
		return maxVal
	}
	return v
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}
