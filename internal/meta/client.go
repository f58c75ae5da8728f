package meta

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	defaultBaseURL = "https://graph.facebook.com/v19.0"
	defaultTimeout = 30 * time.Second

	campaignFields = "id,name,objective,status,daily_budget,lifetime_budget"
	adSetFields    = "id,name,campaign_id,status,daily_budget,lifetime_budget,optimization_goal,billing_event"
	adFields       = "id,name,adset_id,status,creative"
	insightFields  = "campaign_id,adset_id,ad_id,date_start,date_stop,spend,impressions,clicks,actions,action_values,purchase_roas"
)

// Client issues typed calls against the ad platform for one ad account.
// It performs no retries; retry policy belongs to callers.
type Client struct {
	accessToken string
	accountID   string
	baseURL     string
	httpClient  *http.Client
}

// New creates a gateway client for the given account. The bearer credential
// is sent on every call; no session state is kept between calls.
func New(accessToken, accountID string) *Client {
	return &Client{
		accessToken: accessToken,
		accountID:   accountID,
		baseURL:     defaultBaseURL,
		httpClient:  &http.Client{Timeout: defaultTimeout},
	}
}

// NewWithBaseURL creates a client pointing at a custom base URL (for testing).
func NewWithBaseURL(accessToken, accountID, baseURL string) *Client {
	c := New(accessToken, accountID)
	c.baseURL = strings.TrimRight(baseURL, "/")
	return c
}

// AccountID returns the target ad account id this client is bound to.
func (c *Client) AccountID() string { return c.accountID }

// listPage mirrors the platform's paged list envelope.
type listPage[T any] struct {
	Data   []T `json:"data"`
	Paging struct {
		Next string `json:"next"`
	} `json:"paging"`
}

func (c *Client) get(ctx context.Context, path string, params url.Values, out any) error {
	u := c.baseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	return c.do(ctx, http.MethodGet, u, nil, out)
}

func (c *Client) post(ctx context.Context, path string, body any, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshaling request: %w", err)
	}
	return c.do(ctx, http.MethodPost, c.baseURL+path, data, out)
}

func (c *Client) do(ctx context.Context, method, rawURL string, body []byte, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, rawURL, reader)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.accessToken)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(resp.StatusCode, respBody)
	}

	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}
	}
	return nil
}

// list fetches every page of a paged collection endpoint.
func list[T any](ctx context.Context, c *Client, path string, params url.Values) ([]T, error) {
	var all []T
	next := ""
	for {
		var page listPage[T]
		if next == "" {
			if err := c.get(ctx, path, params, &page); err != nil {
				return nil, err
			}
		} else {
			// paging.next is a fully qualified URL issued by the platform.
			if err := c.do(ctx, http.MethodGet, next, nil, &page); err != nil {
				return nil, err
			}
		}
		all = append(all, page.Data...)
		if page.Paging.Next == "" {
			return all, nil
		}
		next = page.Paging.Next
	}
}

// --- Reads ---

func (c *Client) ListCampaigns(ctx context.Context) ([]Campaign, error) {
	params := url.Values{"fields": {campaignFields}}
	return list[Campaign](ctx, c, "/act_"+c.accountID+"/campaigns", params)
}

func (c *Client) ListAdSets(ctx context.Context) ([]AdSet, error) {
	params := url.Values{"fields": {adSetFields}}
	return list[AdSet](ctx, c, "/act_"+c.accountID+"/adsets", params)
}

func (c *Client) ListAds(ctx context.Context) ([]Ad, error) {
	params := url.Values{"fields": {adFields}}
	return list[Ad](ctx, c, "/act_"+c.accountID+"/ads", params)
}

// Insights fetches insights for every target in the query and flattens the
// records into one slice, in target order. A query with no target ids reads
// the account-level insights edge.
func (c *Client) Insights(ctx context.Context, q InsightsQuery) ([]Insight, error) {
	params := url.Values{"fields": {insightFields}}
	if q.Level != "" {
		params.Set("level", q.Level)
	}
	switch {
	case q.DatePreset != "":
		params.Set("date_preset", q.DatePreset)
	case q.Since != "" || q.Until != "":
		params.Set("time_range", fmt.Sprintf(`{"since":"%s","until":"%s"}`, q.Since, q.Until))
	}
	if q.Daily {
		params.Set("time_increment", "1")
	}
	if q.Breakdown != "" {
		params.Set("breakdowns", q.Breakdown)
	}

	targets := q.TargetIDs
	if len(targets) == 0 {
		targets = []string{"act_" + c.accountID}
	}

	var all []Insight
	for _, id := range targets {
		records, err := list[Insight](ctx, c, "/"+id+"/insights", params)
		if err != nil {
			return nil, err
		}
		all = append(all, records...)
	}
	return all, nil
}

// --- Writes ---

func (c *Client) CreateCampaign(ctx context.Context, spec CampaignSpec) (*Campaign, error) {
	body := map[string]any{
		"name":                  spec.Name,
		"objective":             spec.Objective,
		"special_ad_categories": spec.SpecialAdCategories,
		// New campaigns never start live.
		"status": StatusPaused,
	}
	if spec.SpecialAdCategories == nil {
		body["special_ad_categories"] = []string{}
	}
	var out Campaign
	if err := c.post(ctx, "/act_"+c.accountID+"/campaigns", body, &out); err != nil {
		return nil, err
	}
	out.Name = spec.Name
	return &out, nil
}

func (c *Client) CreateAdSet(ctx context.Context, spec AdSetSpec) (*AdSet, error) {
	body := map[string]any{
		"name":              spec.Name,
		"campaign_id":       spec.CampaignID,
		"optimization_goal": spec.OptimizationGoal,
		"billing_event":     spec.BillingEvent,
		"status":            spec.Status,
	}
	if spec.DailyBudget > 0 {
		body["daily_budget"] = spec.DailyBudget
	}
	if spec.LifetimeBudget > 0 {
		body["lifetime_budget"] = spec.LifetimeBudget
	}
	if len(spec.Targeting) > 0 {
		body["targeting"] = json.RawMessage(spec.Targeting)
	}
	var out AdSet
	if err := c.post(ctx, "/act_"+c.accountID+"/adsets", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateCreative publishes an ad creative. The body is taken as-is because
// identity field placement varies by account; the resolver owns that layout.
func (c *Client) CreateCreative(ctx context.Context, body map[string]any) (*Creative, error) {
	var out Creative
	if err := c.post(ctx, "/act_"+c.accountID+"/adcreatives", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) CreateAd(ctx context.Context, spec AdSpec) (*Ad, error) {
	body := map[string]any{
		"name":     spec.Name,
		"adset_id": spec.AdSetID,
		"creative": map[string]string{"creative_id": spec.CreativeID},
		"status":   spec.Status,
	}
	var out Ad
	if err := c.post(ctx, "/act_"+c.accountID+"/ads", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SetStatus pauses or activates any campaign, ad set, or ad by id.
func (c *Client) SetStatus(ctx context.Context, targetID, status string) error {
	return c.post(ctx, "/"+targetID, map[string]string{"status": status}, nil)
}

// SetBudget writes the given budget field in minor currency units. The
// platform rejects the write if the target uses the other budget type;
// see IsWrongBudgetType.
func (c *Client) SetBudget(ctx context.Context, targetID string, bt BudgetType, amountMinor int64) error {
	body := map[string]string{string(bt): strconv.FormatInt(amountMinor, 10)}
	return c.post(ctx, "/"+targetID, body, nil)
}
