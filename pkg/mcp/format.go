package mcp

import (
	"fmt"
	"strings"

	"github.com/tandemhq/aigate/pkg/models"
)

func formatUsageStatus(p models.Provider, status models.UsageStatus) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Usage status for %s\n\n", p)
	if status.RateLimits.Allowed {
		b.WriteString("Requests: allowed\n")
	} else {
		fmt.Fprintf(&b, "Requests: BLOCKED (%s)\n", status.RateLimits.Reason)
	}
	fmt.Fprintf(&b, "Hourly requests: %s\n", formatWindow(status.RateLimits.HourlyCount, status.RateLimits.HourlyLimit))
	fmt.Fprintf(&b, "Daily requests:  %s\n", formatWindow(status.RateLimits.DailyCount, status.RateLimits.DailyLimit))
	if status.MonthlyLimit > 0 {
		fmt.Fprintf(&b, "Monthly spend:   $%.4f / $%.2f\n", status.MonthlyUsage, status.MonthlyLimit)
	} else {
		fmt.Fprintf(&b, "Monthly spend:   $%.4f (no budget set)\n", status.MonthlyUsage)
	}
	fmt.Fprintf(&b, "Requests today:  %d\n", status.RecentRequestCount)

	return b.String()
}

func formatWindow(count, limit int) string {
	if limit <= 0 {
		return fmt.Sprintf("%d (unlimited)", count)
	}
	return fmt.Sprintf("%d / %d", count, limit)
}

func formatMonthlyStats(stats []models.MonthlyStats) string {
	if len(stats) == 0 {
		return "No usage recorded yet."
	}

	var b strings.Builder
	b.WriteString("Monthly usage report\n\n")
	fmt.Fprintf(&b, "%-8s  %-10s  %8s  %6s  %10s  %10s\n", "MONTH", "PROVIDER", "REQUESTS", "FAILED", "TOKENS", "COST")
	for _, s := range stats {
		fmt.Fprintf(&b, "%-8s  %-10s  %8d  %6d  %10d  $%9.4f\n",
			s.Month, s.Provider, s.TotalRequests, s.FailedRequests, s.TotalTokens, s.TotalCost)
	}
	return b.String()
}

func formatRecords(records []models.UsageRecord) string {
	if len(records) == 0 {
		return "No requests recorded yet."
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Last %d requests\n\n", len(records))
	for _, r := range records {
		outcome := "ok"
		if !r.Success {
			outcome = "FAILED"
		}
		fmt.Fprintf(&b, "%s  %-10s  %-24s  %-16s  %6d tok  $%.4f  %s\n",
			r.CreatedAt.Format("2006-01-02 15:04"), r.Provider, r.Model, r.Feature,
			r.TotalTokens, r.Cost, outcome)
		if !r.Success && r.ErrorMessage != "" {
			fmt.Fprintf(&b, "    error: %s\n", r.ErrorMessage)
		}
	}
	return b.String()
}

func formatCredentials(creds []models.Credential) string {
	if len(creds) == 0 {
		return "No active credentials. Add one with the aigate keys add command."
	}

	var b strings.Builder
	b.WriteString("Active credentials\n\n")
	for _, c := range creds {
		budget := "no budget"
		if c.MonthlyBudget > 0 {
			budget = fmt.Sprintf("$%.2f/month", c.MonthlyBudget)
		}
		lastUsed := "never used"
		if !c.LastUsedAt.IsZero() {
			lastUsed = "last used " + c.LastUsedAt.Format("2006-01-02 15:04")
		}
		fmt.Fprintf(&b, "%s  %-10s  %-20s  %s  %s\n", c.ID, c.Provider, c.Name, budget, lastUsed)
	}
	return b.String()
}
