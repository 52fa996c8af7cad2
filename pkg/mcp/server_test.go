package mcp

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/tandemhq/aigate/pkg/models"
)

type fakeLedger struct {
	records []models.UsageRecord
	stats   []models.MonthlyStats
}

func (f *fakeLedger) Append(ctx context.Context, rec models.UsageRecord) error { return nil }
func (f *fakeLedger) QueryRecent(ctx context.Context, limit int) ([]models.UsageRecord, error) {
	if limit < len(f.records) {
		return f.records[:limit], nil
	}
	return f.records, nil
}
func (f *fakeLedger) CountSince(ctx context.Context, p models.Provider, since time.Time) (int, error) {
	return len(f.records), nil
}
func (f *fakeLedger) TokensSince(ctx context.Context, p models.Provider, since time.Time) (int64, error) {
	return 0, nil
}
func (f *fakeLedger) AggregateByMonth(ctx context.Context, p models.Provider) ([]models.MonthlyStats, error) {
	return f.stats, nil
}
func (f *fakeLedger) CurrentMonthCost(ctx context.Context, p models.Provider) (float64, error) {
	return 0, nil
}
func (f *fakeLedger) Trim(ctx context.Context, maxRecords int) (int64, error) { return 0, nil }
func (f *fakeLedger) Close() error                                            { return nil }

type fakeKeys struct {
	creds []models.Credential
}

func (f *fakeKeys) Save(ctx context.Context, p models.Provider, secret, name string, budget float64) (models.Credential, error) {
	return models.Credential{}, nil
}
func (f *fakeKeys) GetActive(ctx context.Context, p models.Provider) (string, error) {
	return "", nil
}
func (f *fakeKeys) Active(ctx context.Context, p models.Provider) (models.Credential, error) {
	return models.Credential{}, nil
}
func (f *fakeKeys) List(ctx context.Context) ([]models.Credential, error) { return f.creds, nil }
func (f *fakeKeys) Deactivate(ctx context.Context, id string) error       { return nil }
func (f *fakeKeys) MarkUsed(ctx context.Context, id string) error         { return nil }
func (f *fakeKeys) Close() error                                          { return nil }

type fakeStatus struct {
	status models.UsageStatus
}

func (f *fakeStatus) GetUsageStatus(ctx context.Context, p models.Provider) (models.UsageStatus, error) {
	return f.status, nil
}

func newTestMCP() *Server {
	ledger := &fakeLedger{
		records: []models.UsageRecord{
			{Provider: models.ProviderOpenAI, Model: "gpt-4o", Feature: "meeting_summary",
				TotalTokens: 150, Cost: 0.01, Success: true, CreatedAt: time.Now().UTC()},
		},
		stats: []models.MonthlyStats{
			{Month: "2026-09", Provider: models.ProviderOpenAI, TotalRequests: 10,
				FailedRequests: 1, TotalTokens: 5000, TotalCost: 0.25},
		},
	}
	keys := &fakeKeys{creds: []models.Credential{
		{ID: "abc", Provider: models.ProviderOpenAI, Name: "team key", Active: true, MonthlyBudget: 5},
	}}
	status := &fakeStatus{status: models.UsageStatus{
		RateLimits:   models.RateLimitStatus{Allowed: true, HourlyCount: 2, HourlyLimit: 50, DailyCount: 7, DailyLimit: 500},
		MonthlyUsage: 0.25, MonthlyLimit: 5, RecentRequestCount: 7,
	}}
	return New(ledger, keys, status, "test", nil)
}

// runSession feeds newline-delimited requests through the server and decodes
// one response per non-notification request.
func runSession(t *testing.T, srv *Server, lines ...string) []Response {
	t.Helper()
	var out bytes.Buffer
	input := strings.Join(lines, "\n") + "\n"

	if err := srv.Run(context.Background(), strings.NewReader(input), &out); err != nil {
		t.Fatal(err)
	}

	var responses []Response
	scanner := bufio.NewScanner(&out)
	for scanner.Scan() {
		var resp Response
		if err := json.Unmarshal(scanner.Bytes(), &resp); err != nil {
			t.Fatalf("bad response line %q: %v", scanner.Text(), err)
		}
		responses = append(responses, resp)
	}
	return responses
}

func toolText(t *testing.T, resp Response) (string, bool) {
	t.Helper()
	raw, err := json.Marshal(resp.Result)
	if err != nil {
		t.Fatal(err)
	}
	var result ToolCallResult
	if err := json.Unmarshal(raw, &result); err != nil {
		t.Fatal(err)
	}
	if len(result.Content) == 0 {
		t.Fatal("empty tool result")
	}
	return result.Content[0].Text, result.IsError
}

func TestInitializeAndToolsList(t *testing.T) {
	responses := runSession(t, newTestMCP(),
		`{"jsonrpc":"2.0","id":1,"method":"initialize"}`,
		`{"jsonrpc":"2.0","method":"notifications/initialized"}`,
		`{"jsonrpc":"2.0","id":2,"method":"tools/list"}`,
	)
	if len(responses) != 2 {
		t.Fatalf("expected 2 responses (notification is silent), got %d", len(responses))
	}

	raw, _ := json.Marshal(responses[0].Result)
	var init InitializeResult
	if err := json.Unmarshal(raw, &init); err != nil {
		t.Fatal(err)
	}
	if init.ServerInfo.Name != "aigate" || init.ServerInfo.Version != "test" {
		t.Errorf("unexpected server info: %+v", init.ServerInfo)
	}

	raw, _ = json.Marshal(responses[1].Result)
	var list ToolsListResult
	if err := json.Unmarshal(raw, &list); err != nil {
		t.Fatal(err)
	}
	if len(list.Tools) != 4 {
		t.Fatalf("expected 4 tools, got %d", len(list.Tools))
	}
}

func TestUsageStatusTool(t *testing.T) {
	responses := runSession(t, newTestMCP(),
		`{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"aigate_usage_status","arguments":{"provider":"openai"}}}`,
	)
	text, isErr := toolText(t, responses[0])
	if isErr {
		t.Fatalf("unexpected tool error: %s", text)
	}
	if !strings.Contains(text, "2 / 50") || !strings.Contains(text, "$0.2500 / $5.00") {
		t.Errorf("unexpected status text:\n%s", text)
	}
}

func TestUsageStatusToolBadProvider(t *testing.T) {
	responses := runSession(t, newTestMCP(),
		`{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"aigate_usage_status","arguments":{"provider":"bogus"}}}`,
	)
	if _, isErr := toolText(t, responses[0]); !isErr {
		t.Error("expected tool error for unknown provider")
	}
}

func TestMonthlyReportTool(t *testing.T) {
	responses := runSession(t, newTestMCP(),
		`{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"aigate_monthly_report"}}`,
	)
	text, isErr := toolText(t, responses[0])
	if isErr {
		t.Fatalf("unexpected tool error: %s", text)
	}
	if !strings.Contains(text, "2026-09") || !strings.Contains(text, "openai") {
		t.Errorf("unexpected report text:\n%s", text)
	}
}

func TestRecentRequestsTool(t *testing.T) {
	responses := runSession(t, newTestMCP(),
		`{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"aigate_recent_requests","arguments":{"limit":5}}}`,
	)
	text, isErr := toolText(t, responses[0])
	if isErr {
		t.Fatalf("unexpected tool error: %s", text)
	}
	if !strings.Contains(text, "gpt-4o") || !strings.Contains(text, "meeting_summary") {
		t.Errorf("unexpected recent text:\n%s", text)
	}
}

func TestKeysTool(t *testing.T) {
	responses := runSession(t, newTestMCP(),
		`{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"aigate_keys"}}`,
	)
	text, isErr := toolText(t, responses[0])
	if isErr {
		t.Fatalf("unexpected tool error: %s", text)
	}
	if !strings.Contains(text, "team key") || !strings.Contains(text, "$5.00/month") {
		t.Errorf("unexpected keys text:\n%s", text)
	}
}

func TestUnknownToolAndMethod(t *testing.T) {
	responses := runSession(t, newTestMCP(),
		`{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"nope"}}`,
		`{"jsonrpc":"2.0","id":2,"method":"bogus/method"}`,
		`not json at all`,
	)
	if len(responses) != 3 {
		t.Fatalf("expected 3 responses, got %d", len(responses))
	}
	if _, isErr := toolText(t, responses[0]); !isErr {
		t.Error("expected tool error for unknown tool")
	}
	if responses[1].Error == nil || responses[1].Error.Code != CodeMethodNotFound {
		t.Errorf("expected method-not-found, got %+v", responses[1].Error)
	}
	if responses[2].Error == nil || responses[2].Error.Code != CodeParseError {
		t.Errorf("expected parse error, got %+v", responses[2].Error)
	}
}
