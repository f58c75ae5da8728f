package api

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"golang.org/x/sync/errgroup"

	"github.com/castora/adops/internal/meta"
	"github.com/castora/adops/internal/storage"
	"github.com/castora/adops/internal/strategy"
	"github.com/castora/adops/internal/verdict"
)

// NewMCPServer creates an MCP server exposing the account audit and
// optimization tools to agent hosts.
func NewMCPServer(deps AppDeps) *server.MCPServer {
	deps = deps.withDefaults()

	s := server.NewMCPServer(
		"adops",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("adops — ad account analysis and autonomous optimization for connected ad platforms."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("audit_account",
			mcp.WithDescription("Run the multi-agent analysis over a connected ad account and return per-agent verdicts."),
			mcp.WithString("account_id", mcp.Description("Connected ad account id"), mcp.Required()),
		),
		mcpAuditAccount(deps),
	)

	s.AddTool(
		mcp.NewTool("list_recommendations",
			mcp.WithDescription("Return the rule-based scaling and pause recommendations for a connected ad account."),
			mcp.WithString("account_id", mcp.Description("Connected ad account id"), mcp.Required()),
		),
		mcpListRecommendations(deps),
	)

	s.AddTool(
		mcp.NewTool("run_optimizer",
			mcp.WithDescription("Execute one optimization pass for an account. Mutates live spend only when the account has autonomous mode enabled."),
			mcp.WithString("account_id", mcp.Description("Connected ad account id"), mcp.Required()),
		),
		mcpRunOptimizer(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"adops://runs",
			"Recent Optimization Runs",
			mcp.WithResourceDescription("Recent optimization runs across all connected accounts"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceRuns(deps),
	)

	return s
}

// anyGateway is the read-only slice of the platform client the MCP tools
// share.
type anyGateway interface {
	ListAdSets(ctx context.Context) ([]meta.AdSet, error)
	ListCampaigns(ctx context.Context) ([]meta.Campaign, error)
	Insights(ctx context.Context, q meta.InsightsQuery) ([]meta.Insight, error)
}

// mcpAccountData fetches the account snapshot the analysis tools share.
func mcpAccountData(ctx context.Context, gw anyGateway) (campaigns []meta.Campaign, adSets []meta.AdSet, insights []meta.Insight, err error) {
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
	err = g.Wait()
	return campaigns, adSets, insights, err
}

// mcpGateway is the MCP analogue of gatewayFor without an http.ResponseWriter.
func mcpGateway(deps AppDeps, accountID string) (gw anyGateway, integ storage.Integration, errMsg string) {
	integ, err := deps.Store.GetIntegration(accountID)
	if err != nil {
		return nil, storage.Integration{}, fmt.Sprintf("integration not found: %v", err)
	}
	if integ.Status != storage.IntegrationActive {
		return nil, storage.Integration{}, "integration is disconnected"
	}
	token, err := deps.Cipher.Decrypt(integ.TokenCiphertext)
	if err != nil || token == "" {
		return nil, storage.Integration{}, "integration credential is unavailable"
	}
	return deps.NewGateway(token, accountID), integ, ""
}

func mcpAuditAccount(deps AppDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		accountID, err := req.RequireString("account_id")
		if err != nil {
			return mcpError("account_id is required"), nil
		}

		gw, integ, errMsg := mcpGateway(deps, accountID)
		if errMsg != "" {
			return mcpError(errMsg), nil
		}

		campaigns, adSets, insights, err := mcpAccountData(ctx, gw)
		if err != nil {
			return mcpError(fmt.Sprintf("fetching account data: %v", err)), nil
		}

		analyzer := deps.NewAnalyzer(integ.PreferredBackend)
		verdicts := analyzer.Analyze(ctx, verdict.Input{
			AccountID: accountID,
			Campaigns: campaigns,
			AdSets:    adSets,
			Insights:  insights,
		})
		if verdicts == nil {
			verdicts = []verdict.Verdict{}
		}

		b, err := json.Marshal(verdicts)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal verdicts: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpListRecommendations(deps AppDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		accountID, err := req.RequireString("account_id")
		if err != nil {
			return mcpError("account_id is required"), nil
		}

		gw, _, errMsg := mcpGateway(deps, accountID)
		if errMsg != "" {
			return mcpError(errMsg), nil
		}

		_, adSets, insights, err := mcpAccountData(ctx, gw)
		if err != nil {
			return mcpError(fmt.Sprintf("fetching account data: %v", err)), nil
		}

		recs := strategy.Evaluate(adSets, insights)
		if recs == nil {
			recs = []strategy.Recommendation{}
		}

		b, err := json.Marshal(recs)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal recommendations: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpRunOptimizer(deps AppDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		accountID, err := req.RequireString("account_id")
		if err != nil {
			return mcpError("account_id is required"), nil
		}

		result, err := deps.Optimizer.Run(ctx, accountID, "mcp")
		if err != nil {
			return mcpError(fmt.Sprintf("optimization run failed: %v", err)), nil
		}

		b, err := json.Marshal(result)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal result: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpResourceRuns(deps AppDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		integrations, err := deps.Store.ListAutonomousIntegrations()
		if err != nil {
			return nil, fmt.Errorf("listing integrations: %w", err)
		}

		var runs []storage.Run
		for _, integ := range integrations {
			rs, err := deps.Store.ListRuns(integ.AccountID, 10)
			if err != nil {
				return nil, fmt.Errorf("listing runs for %s: %w", integ.AccountID, err)
			}
			runs = append(runs, rs...)
		}
		if runs == nil {
			runs = []storage.Run{}
		}

		b, err := json.Marshal(runs)
		if err != nil {
			return nil, fmt.Errorf("marshaling runs: %w", err)
		}
		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
