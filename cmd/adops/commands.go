package main

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/castora/adops/internal/config"
)

// --- integration ---

var integrationCmd = &cobra.Command{
	Use:   "integration",
	Short: "Manage connected ad accounts",
}

var integrationAddCmd = &cobra.Command{
	Use:   "add <account-id>",
	Short: "Connect an ad account",
	Long: `Connect an ad account.

Examples:
  adops integration add act_123 --token EAAB... --page 456
  adops integration add act_123 --token EAAB... --page 456 --instagram 789,790 --backend gemini`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		token, _ := cmd.Flags().GetString("token")
		page, _ := cmd.Flags().GetString("page")
		instagram, _ := cmd.Flags().GetString("instagram")
		preferred, _ := cmd.Flags().GetString("backend")

		if token == "" {
			return fmt.Errorf("--token is required")
		}

		req := map[string]any{
			"accountId":   args[0],
			"accessToken": token,
		}
		if page != "" {
			req["pageId"] = page
		}
		if instagram != "" {
			ids := strings.Split(instagram, ",")
			for i := range ids {
				ids[i] = strings.TrimSpace(ids[i])
			}
			req["instagramIds"] = ids
		}
		if preferred != "" {
			req["preferredBackend"] = preferred
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/integrations", req)
		if err != nil {
			return err
		}

		var result map[string]any
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Connected %s", args[0])
		return nil
	},
}

var integrationShowCmd = &cobra.Command{
	Use:   "show <account-id>",
	Short: "Show an integration as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/integrations/"+args[0])
		if err != nil {
			return err
		}

		var integ any
		if err := decodeJSON(resp, &integ); err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(integ)
	},
}

var integrationSetCmd = &cobra.Command{
	Use:   "set <account-id>",
	Short: "Update integration settings",
	Long: `Update integration settings.

Examples:
  adops integration set act_123 --autonomous=true
  adops integration set act_123 --backend openai`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		req := map[string]any{}
		if cmd.Flags().Changed("autonomous") {
			autonomous, _ := cmd.Flags().GetBool("autonomous")
			req["autonomousEnabled"] = autonomous
		}
		if cmd.Flags().Changed("backend") {
			preferred, _ := cmd.Flags().GetString("backend")
			req["preferredBackend"] = preferred
		}
		if len(req) == 0 {
			return fmt.Errorf("nothing to update: pass --autonomous or --backend")
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.patch(cmd.Context(), "/integrations/"+args[0], req)
		if err != nil {
			return err
		}

		var result map[string]any
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Updated %s", args[0])
		return nil
	},
}

var integrationDisconnectCmd = &cobra.Command{
	Use:   "disconnect <account-id>",
	Short: "Disconnect an ad account",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.delete(cmd.Context(), "/integrations/"+args[0])
		if err != nil {
			return err
		}

		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Disconnected %s", args[0])
		return nil
	},
}

func init() {
	integrationAddCmd.Flags().String("token", "", "ad platform access token")
	integrationAddCmd.Flags().String("page", "", "page id for creative publishing")
	integrationAddCmd.Flags().String("instagram", "", "comma-separated instagram identity ids")
	integrationAddCmd.Flags().String("backend", "", "preferred AI backend (openai or gemini)")

	integrationSetCmd.Flags().Bool("autonomous", false, "enable or disable autonomous optimization")
	integrationSetCmd.Flags().String("backend", "", "preferred AI backend (openai or gemini)")

	integrationCmd.AddCommand(integrationAddCmd)
	integrationCmd.AddCommand(integrationShowCmd)
	integrationCmd.AddCommand(integrationSetCmd)
	integrationCmd.AddCommand(integrationDisconnectCmd)
}

// --- audit ---

var auditCmd = &cobra.Command{
	Use:   "audit <account-id>",
	Short: "Run the multi-agent analysis over an account",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/integrations/"+args[0]+"/analyze", nil)
		if err != nil {
			return err
		}

		var result struct {
			Verdicts []struct {
				Agent          string `json:"agent"`
				Status         string `json:"status"`
				Thought        string `json:"thought"`
				Recommendation string `json:"recommendation"`
				Impact         string `json:"impact"`
				TargetID       string `json:"target_id"`
			} `json:"verdicts"`
			Recommendations []struct {
				Type            string  `json:"type"`
				TargetID        string  `json:"targetId"`
				TargetName      string  `json:"targetName"`
				Reason          string  `json:"reason"`
				CurrentBudget   float64 `json:"currentBudget"`
				SuggestedBudget float64 `json:"suggestedBudget"`
			} `json:"recommendations"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		for _, v := range result.Verdicts {
			label := v.Status
			switch v.Status {
			case "CRITICAL":
				label = colorize(colorRed, v.Status)
			case "WARNING":
				label = colorize(colorYellow, v.Status)
			case "OPTIMAL":
				label = colorize(colorGreen, v.Status)
			}
			fmt.Printf("\n%s [%s]\n", colorize(colorBold, v.Agent), label)
			fmt.Printf("  %s\n", v.Thought)
			if v.Recommendation != "" {
				fmt.Printf("  → %s\n", v.Recommendation)
			}
			if v.TargetID != "" {
				fmt.Printf("  target: %s\n", v.TargetID)
			}
		}

		if len(result.Recommendations) == 0 {
			fmt.Println("\nNo actionable recommendations.")
			return nil
		}

		fmt.Printf("\n%s\n", colorize(colorBold, "Recommendations"))
		for _, r := range result.Recommendations {
			name := r.TargetName
			if name == "" {
				name = r.TargetID
			}
			switch r.Type {
			case "scale_up", "scale_down":
				fmt.Printf("  %s %s: %.2f → %.2f (%s)\n", r.Type, name, r.CurrentBudget, r.SuggestedBudget, r.Reason)
			default:
				fmt.Printf("  %s %s (%s)\n", r.Type, name, r.Reason)
			}
		}
		return nil
	},
}

// --- apply ---

var applyCmd = &cobra.Command{
	Use:   "apply <account-id>",
	Short: "Apply a single recommendation to the live account",
	Long: `Apply a single recommendation to the live account.

Examples:
  adops apply act_123 --type pause --target 2384728
  adops apply act_123 --type scale_up --target 2384728 --budget 48`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		recType, _ := cmd.Flags().GetString("type")
		target, _ := cmd.Flags().GetString("target")
		budget, _ := cmd.Flags().GetFloat64("budget")

		if recType == "" || target == "" {
			return fmt.Errorf("--type and --target are required")
		}

		req := map[string]any{
			"type":     recType,
			"targetId": target,
		}
		if budget > 0 {
			req["suggestedBudget"] = budget
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/integrations/"+args[0]+"/apply", req)
		if err != nil {
			return err
		}

		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Applied %s to %s", recType, target)
		return nil
	},
}

func init() {
	applyCmd.Flags().String("type", "", "recommendation type (pause, scale_up, scale_down)")
	applyCmd.Flags().String("target", "", "target object id")
	applyCmd.Flags().Float64("budget", 0, "suggested budget in major currency units")
}

// --- publish ---

var publishCmd = &cobra.Command{
	Use:   "publish <account-id>",
	Short: "Create a paused campaign, ad set, creative, and ad",
	Long: `Create a paused campaign, ad set, creative, and ad in one pass.

The creative is attributed to one of the account's instagram identities
when the platform accepts a placement for it, falling back to page-only
attribution. Everything is created PAUSED; activate from the platform
once reviewed.

Examples:
  adops publish act_123 --campaign "Summer Launch" --daily-budget 25 --link https://example.com --message "Shop now"
  adops publish act_123 --campaign "Retarget" --lifetime-budget 500 --video-id 998877`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		campaign, _ := cmd.Flags().GetString("campaign")
		daily, _ := cmd.Flags().GetFloat64("daily-budget")
		lifetime, _ := cmd.Flags().GetFloat64("lifetime-budget")
		link, _ := cmd.Flags().GetString("link")
		message, _ := cmd.Flags().GetString("message")
		imageHash, _ := cmd.Flags().GetString("image-hash")
		videoID, _ := cmd.Flags().GetString("video-id")

		if campaign == "" {
			return fmt.Errorf("--campaign is required")
		}
		if link == "" && videoID == "" {
			return fmt.Errorf("--link or --video-id is required")
		}

		req := map[string]any{"campaignName": campaign}
		if daily > 0 {
			req["dailyBudget"] = daily
		}
		if lifetime > 0 {
			req["lifetimeBudget"] = lifetime
		}
		if link != "" {
			linkData := map[string]any{"link": link}
			if message != "" {
				linkData["message"] = message
			}
			if imageHash != "" {
				linkData["image_hash"] = imageHash
			}
			req["link"] = linkData
		} else {
			videoData := map[string]any{"video_id": videoID}
			if message != "" {
				videoData["message"] = message
			}
			req["video"] = videoData
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/integrations/"+args[0]+"/publish", req)
		if err != nil {
			return err
		}

		var result struct {
			CampaignID       string `json:"campaignId"`
			AdSetID          string `json:"adSetId"`
			CreativeID       string `json:"creativeId"`
			AdID             string `json:"adId"`
			ResolvedVia      string `json:"resolvedVia"`
			LinkedIdentityID string `json:"linkedIdentityId"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Published %q", campaign)
		printStatus("campaign", "%s", result.CampaignID)
		printStatus("ad set", "%s", result.AdSetID)
		printStatus("ad", "%s", result.AdID)
		if result.LinkedIdentityID != "" {
			printStatus("identity", "instagram %s via %s", result.LinkedIdentityID, result.ResolvedVia)
		} else {
			printStatus("identity", "page only (%s)", result.ResolvedVia)
		}
		return nil
	},
}

func init() {
	publishCmd.Flags().String("campaign", "", "campaign name")
	publishCmd.Flags().Float64("daily-budget", 0, "ad set daily budget in major currency units")
	publishCmd.Flags().Float64("lifetime-budget", 0, "ad set lifetime budget in major currency units")
	publishCmd.Flags().String("link", "", "landing page URL for a link creative")
	publishCmd.Flags().String("message", "", "creative primary text")
	publishCmd.Flags().String("image-hash", "", "uploaded image hash for a link creative")
	publishCmd.Flags().String("video-id", "", "uploaded video id for a video creative")
}

// --- optimize ---

var optimizeCmd = &cobra.Command{
	Use:   "optimize <account-id>",
	Short: "Run one optimization pass now",
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) != 1 {
			return fmt.Errorf("account id is required")
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/integrations/"+args[0]+"/optimize", nil)
		if err != nil {
			return err
		}

		var result struct {
			RunID          string   `json:"runId"`
			Disabled       bool     `json:"disabled"`
			Reason         string   `json:"reason"`
			ActionsApplied int      `json:"actionsApplied"`
			Failures       []string `json:"failures"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		if result.Disabled {
			printWarning("Run skipped: %s", result.Reason)
			return nil
		}

		printSuccess("Run %s applied %d action(s)", result.RunID, result.ActionsApplied)
		for _, f := range result.Failures {
			printError("%s", f)
		}
		return nil
	},
}

// --- runs ---

var runsCmd = &cobra.Command{
	Use:   "runs <account-id>",
	Short: "List recent optimization runs",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), fmt.Sprintf("/integrations/%s/runs?limit=%d", args[0], limit))
		if err != nil {
			return err
		}

		var runs []struct {
			ID             string `json:"ID"`
			Trigger        string `json:"Trigger"`
			Status         string `json:"Status"`
			ActionsApplied int    `json:"ActionsApplied"`
			Error          string `json:"Error"`
			StartedAt      string `json:"StartedAt"`
		}
		if err := decodeJSON(resp, &runs); err != nil {
			return err
		}

		if len(runs) == 0 {
			fmt.Println("No runs yet.")
			return nil
		}

		for _, r := range runs {
			fmt.Printf("%s  %-9s %-9s actions=%d  %s\n", r.StartedAt, r.Trigger, r.Status, r.ActionsApplied, r.ID)
			if r.Error != "" {
				fmt.Printf("  %s\n", colorize(colorRed, r.Error))
			}
		}
		return nil
	},
}

func init() {
	runsCmd.Flags().Int("limit", 20, "maximum number of runs")
}

// --- copy ---

var copyCmd = &cobra.Command{
	Use:   "copy",
	Short: "Generate ad copy variants from product context",
	Long: `Generate ad copy variants from product context.

Examples:
  adops copy --url https://example.com/product
  adops copy --brief ./brief.pdf --notes "summer sale, 20% off"`,
	RunE: func(cmd *cobra.Command, args []string) error {
		url, _ := cmd.Flags().GetString("url")
		brief, _ := cmd.Flags().GetString("brief")
		notes, _ := cmd.Flags().GetString("notes")
		count, _ := cmd.Flags().GetInt("count")

		if url == "" && brief == "" && notes == "" {
			return fmt.Errorf("one of --url, --brief, or --notes is required")
		}

		req := map[string]any{"count": count}
		if url != "" {
			req["productUrl"] = url
		}
		if notes != "" {
			req["notes"] = notes
		}
		if brief != "" {
			data, err := os.ReadFile(brief)
			if err != nil {
				return fmt.Errorf("reading brief: %w", err)
			}
			req["brief"] = base64.StdEncoding.EncodeToString(data)
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/copy", req)
		if err != nil {
			return err
		}

		var result struct {
			Variants []struct {
				Headline     string `json:"headline"`
				PrimaryText  string `json:"primary_text"`
				Description  string `json:"description"`
				CallToAction string `json:"call_to_action"`
			} `json:"variants"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		for i, v := range result.Variants {
			fmt.Printf("\n%s\n", colorize(colorBold, fmt.Sprintf("Variant %d", i+1)))
			fmt.Printf("  Headline: %s\n", v.Headline)
			fmt.Printf("  Text:     %s\n", v.PrimaryText)
			if v.Description != "" {
				fmt.Printf("  Desc:     %s\n", v.Description)
			}
			fmt.Printf("  CTA:      %s\n", v.CallToAction)
		}
		return nil
	},
}

func init() {
	copyCmd.Flags().String("url", "", "product landing page URL")
	copyCmd.Flags().String("brief", "", "path to a product brief PDF")
	copyCmd.Flags().String("notes", "", "free-form product notes")
	copyCmd.Flags().Int("count", 3, "number of variants")
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage adops configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		for _, info := range config.ShowAll(cfg) {
			fmt.Printf("%-28s %-34s %s\n", info.Key, info.Value, info.EnvVar)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration key",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.SetKey(args[0], args[1]); err != nil {
			fmt.Fprintf(os.Stderr, "valid keys: %s\n", strings.Join(config.ValidKeys(), ", "))
			return err
		}
		printSuccess("Set %s = %s", args[0], args[1])
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}
