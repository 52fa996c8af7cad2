package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tandemhq/aigate/pkg/keystore"
	"github.com/tandemhq/aigate/pkg/ledger"
	"github.com/tandemhq/aigate/pkg/models"
)

// Reason strings surfaced to callers. These are part of the limiter's
// contract: status indicators branch on them.
const (
	ReasonHourlyRequests = "Hourly request limit exceeded"
	ReasonDailyRequests  = "Daily request limit exceeded"
	ReasonHourlyTokens   = "Hourly token limit exceeded"
	ReasonDailyTokens    = "Daily token limit exceeded"
	ReasonMonthlyUsage   = "Monthly usage limit exceeded"
	ReasonNoKey          = "No active API key found"
)

// Limiter checks request traffic against the fixed rate-limit policy and the
// active credential's monthly budget.
//
// Counts are sliding windows derived from the ledger, not fixed buckets: a
// record ages out of the hourly count exactly 60 minutes after it was
// written. The O(records-in-window) scan is acceptable at expected per-user
// volume.
type Limiter struct {
	policy models.RateLimitPolicy
	ledger ledger.Ledger
	keys   keystore.Store
}

// New creates a Limiter over the given ledger and keystore.
func New(policy models.RateLimitPolicy, l ledger.Ledger, keys keystore.Store) *Limiter {
	return &Limiter{policy: policy, ledger: l, keys: keys}
}

// Check evaluates the ceilings for a provider in fixed priority order:
// hourly requests, daily requests, hourly tokens, daily tokens, then the
// monthly budget. The first tripped ceiling wins; conditions below it are not
// reported. A zero ceiling in the policy means unlimited.
func (lm *Limiter) Check(ctx context.Context, provider models.Provider) (models.RateLimitStatus, error) {
	now := time.Now().UTC()

	hourly, err := lm.ledger.CountSince(ctx, provider, now.Add(-time.Hour))
	if err != nil {
		return models.RateLimitStatus{}, fmt.Errorf("rate limit check: %w", err)
	}
	daily, err := lm.ledger.CountSince(ctx, provider, now.Add(-24*time.Hour))
	if err != nil {
		return models.RateLimitStatus{}, fmt.Errorf("rate limit check: %w", err)
	}

	status := models.RateLimitStatus{
		Allowed:     true,
		HourlyCount: hourly,
		HourlyLimit: lm.policy.HourlyRequests,
		DailyCount:  daily,
		DailyLimit:  lm.policy.DailyRequests,
	}

	if lm.policy.HourlyRequests > 0 && hourly >= lm.policy.HourlyRequests {
		status.Allowed = false
		status.Reason = ReasonHourlyRequests
		return status, nil
	}
	if lm.policy.DailyRequests > 0 && daily >= lm.policy.DailyRequests {
		status.Allowed = false
		status.Reason = ReasonDailyRequests
		return status, nil
	}

	if lm.policy.HourlyTokens > 0 {
		tokens, err := lm.ledger.TokensSince(ctx, provider, now.Add(-time.Hour))
		if err != nil {
			return models.RateLimitStatus{}, fmt.Errorf("rate limit check: %w", err)
		}
		if tokens >= lm.policy.HourlyTokens {
			status.Allowed = false
			status.Reason = ReasonHourlyTokens
			return status, nil
		}
	}
	if lm.policy.DailyTokens > 0 {
		tokens, err := lm.ledger.TokensSince(ctx, provider, now.Add(-24*time.Hour))
		if err != nil {
			return models.RateLimitStatus{}, fmt.Errorf("rate limit check: %w", err)
		}
		if tokens >= lm.policy.DailyTokens {
			status.Allowed = false
			status.Reason = ReasonDailyTokens
			return status, nil
		}
	}

	cred, err := lm.keys.Active(ctx, provider)
	if errors.Is(err, keystore.ErrNotFound) {
		status.Allowed = false
		status.Reason = ReasonNoKey
		return status, nil
	}
	if err != nil {
		return models.RateLimitStatus{}, fmt.Errorf("rate limit check: %w", err)
	}

	cost, err := lm.ledger.CurrentMonthCost(ctx, provider)
	if err != nil {
		return models.RateLimitStatus{}, fmt.Errorf("rate limit check: %w", err)
	}
	status.MonthlyCost = cost

	if cred.MonthlyBudget > 0 && cost >= cred.MonthlyBudget {
		status.Allowed = false
		status.Reason = ReasonMonthlyUsage
		return status, nil
	}

	return status, nil
}
