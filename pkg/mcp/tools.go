package mcp

import (
	"context"
	"encoding/json"

	"github.com/tandemhq/aigate/pkg/models"
)

// Tool argument structs.

type providerArgs struct {
	Provider string `json:"provider"`
}

type recentArgs struct {
	Limit int `json:"limit"`
}

// toolHandler is a function that handles a tool call.
type toolHandler func(ctx context.Context, s *Server, args json.RawMessage) ToolCallResult

// toolHandlers maps tool names to their handlers.
var toolHandlers = map[string]toolHandler{
	"aigate_usage_status":    handleUsageStatus,
	"aigate_monthly_report":  handleMonthlyReport,
	"aigate_recent_requests": handleRecentRequests,
	"aigate_keys":            handleKeys,
}

// allTools is the list of tool definitions exposed via tools/list.
var allTools = []ToolDefinition{
	{
		Name:        "aigate_usage_status",
		Description: "Show the current rate-limit window counts and monthly spend vs budget for a provider.",
		InputSchema: map[string]any{
			"type":     "object",
			"required": []string{"provider"},
			"properties": map[string]any{
				"provider": map[string]any{
					"type":        "string",
					"description": "Provider to inspect: openai or anthropic",
				},
			},
		},
	},
	{
		Name:        "aigate_monthly_report",
		Description: "Show per-month request, token, cost, and failure totals from the usage ledger.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"provider": map[string]any{
					"type":        "string",
					"description": "Filter by provider (optional, omit for all providers)",
				},
			},
		},
	},
	{
		Name:        "aigate_recent_requests",
		Description: "List the most recent AI call attempts, successes and failures alike.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"limit": map[string]any{
					"type":        "integer",
					"description": "Max records to return (optional, default 20)",
				},
			},
		},
	},
	{
		Name:        "aigate_keys",
		Description: "List active API credentials with their monthly budgets. Secrets are never shown.",
		InputSchema: map[string]any{
			"type":       "object",
			"properties": map[string]any{},
		},
	},
}

func textResult(text string) ToolCallResult {
	return ToolCallResult{
		Content: []ContentBlock{{Type: "text", Text: text}},
	}
}

func errorResult(text string) ToolCallResult {
	return ToolCallResult{
		Content: []ContentBlock{{Type: "text", Text: text}},
		IsError: true,
	}
}

func handleUsageStatus(ctx context.Context, s *Server, rawArgs json.RawMessage) ToolCallResult {
	var args providerArgs
	if len(rawArgs) > 0 {
		_ = json.Unmarshal(rawArgs, &args)
	}
	p := models.Provider(args.Provider)
	if !p.Known() {
		return errorResult("provider must be one of: openai, anthropic")
	}

	status, err := s.status.GetUsageStatus(ctx, p)
	if err != nil {
		return errorResult("Error fetching usage status: " + err.Error())
	}
	return textResult(formatUsageStatus(p, status))
}

func handleMonthlyReport(ctx context.Context, s *Server, rawArgs json.RawMessage) ToolCallResult {
	var args providerArgs
	if len(rawArgs) > 0 {
		_ = json.Unmarshal(rawArgs, &args)
	}
	p := models.Provider(args.Provider)
	if args.Provider != "" && !p.Known() {
		return errorResult("provider must be one of: openai, anthropic")
	}

	stats, err := s.ledger.AggregateByMonth(ctx, p)
	if err != nil {
		return errorResult("Error fetching monthly report: " + err.Error())
	}
	return textResult(formatMonthlyStats(stats))
}

func handleRecentRequests(ctx context.Context, s *Server, rawArgs json.RawMessage) ToolCallResult {
	var args recentArgs
	if len(rawArgs) > 0 {
		_ = json.Unmarshal(rawArgs, &args)
	}
	limit := args.Limit
	if limit <= 0 {
		limit = 20
	}

	records, err := s.ledger.QueryRecent(ctx, limit)
	if err != nil {
		return errorResult("Error fetching recent requests: " + err.Error())
	}
	return textResult(formatRecords(records))
}

func handleKeys(ctx context.Context, s *Server, _ json.RawMessage) ToolCallResult {
	creds, err := s.keys.List(ctx)
	if err != nil {
		return errorResult("Error fetching credentials: " + err.Error())
	}
	return textResult(formatCredentials(creds))
}
