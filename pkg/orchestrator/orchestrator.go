package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/tandemhq/aigate/pkg/keystore"
	"github.com/tandemhq/aigate/pkg/ledger"
	"github.com/tandemhq/aigate/pkg/models"
	"github.com/tandemhq/aigate/pkg/pricing"
	"github.com/tandemhq/aigate/pkg/provider"
	"github.com/tandemhq/aigate/pkg/ratelimit"
)

// Clients resolves provider adapters. Satisfied by *provider.Registry.
type Clients interface {
	Client(p models.Provider) (provider.Client, error)
}

// Orchestrator is the single entry point feature code uses to perform AI
// calls. It composes the limiter, keystore, estimator, and ledger around a
// provider call: pre-flight checks, the call itself, and the usage record.
type Orchestrator struct {
	keys      keystore.Store
	ledger    ledger.Ledger
	limiter   *ratelimit.Limiter
	estimator *pricing.Estimator
	clients   Clients
	timeout   time.Duration
	logger    *slog.Logger

	// One mutex per provider serializes check-then-act-then-append so two
	// concurrent requests cannot both pass a limit that, summed, they
	// violate. Cross-provider traffic proceeds in parallel.
	mu map[models.Provider]*sync.Mutex
}

// New creates an Orchestrator. All dependencies are explicit so tests can
// substitute an in-memory ledger or a fake provider registry.
func New(keys keystore.Store, l ledger.Ledger, limiter *ratelimit.Limiter,
	estimator *pricing.Estimator, clients Clients, timeout time.Duration, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Orchestrator{
		keys:      keys,
		ledger:    l,
		limiter:   limiter,
		estimator: estimator,
		clients:   clients,
		timeout:   timeout,
		logger:    logger,
		mu: map[models.Provider]*sync.Mutex{
			models.ProviderOpenAI:    {},
			models.ProviderAnthropic: {},
		},
	}
}

// Execute runs one governed provider call.
//
// Steps 1-3 (rate limit, credential, pre-flight budget) are pure checks with
// no side effects; any violation is terminal. From the provider call onward,
// a usage record is always appended: a failed attempt is a real, loggable
// attempt that counts toward the request ceilings.
func (o *Orchestrator) Execute(ctx context.Context, req models.CompletionRequest) (*models.CompletionResponse, error) {
	if err := validateRequest(req); err != nil {
		return nil, aiErr(KindUnknown, "invalid request", err)
	}

	lock := o.mu[req.Provider]
	lock.Lock()
	defer lock.Unlock()

	// Step 1: sliding-window ceilings and monthly budget.
	status, err := o.limiter.Check(ctx, req.Provider)
	if err != nil {
		return nil, aiErr(KindUnknown, "rate limit check failed", err)
	}
	if !status.Allowed {
		return nil, blockedError(status.Reason)
	}

	// Step 2: active credential.
	cred, err := o.keys.Active(ctx, req.Provider)
	if errors.Is(err, keystore.ErrNotFound) {
		return nil, aiErr(KindNoKey, ratelimit.ReasonNoKey, nil)
	}
	if err != nil {
		return nil, aiErr(KindUnknown, "credential lookup failed", err)
	}
	secret, err := o.keys.GetActive(ctx, req.Provider)
	if err != nil {
		return nil, aiErr(KindUnknown, "credential lookup failed", err)
	}

	// Step 3: pre-flight budget projection from the input side only. Output
	// tokens are unknown until the call returns, so a single call can
	// overrun the budget by at most max_tokens times the output price; the
	// next call is then blocked.
	estTokens := o.estimator.EstimateTokens(serializeMessages(req.Messages))
	estCost := o.estimator.Cost(req.Model, estTokens, 0)
	if cred.MonthlyBudget > 0 && status.MonthlyCost+estCost > cred.MonthlyBudget {
		return nil, aiErr(KindUsageLimitExceeded, ratelimit.ReasonMonthlyUsage, nil)
	}

	client, err := o.clients.Client(req.Provider)
	if err != nil {
		return nil, aiErr(KindUnknown, "provider unavailable", err)
	}

	// Step 4: the provider call. Detached from caller cancellation: an
	// abandoned request must still complete and be logged, or a retry could
	// slip past the budget. The configured timeout still bounds it.
	callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.timeout)
	defer cancel()

	result, callErr := client.Complete(callCtx, secret, req)
	if callErr != nil {
		o.appendRecord(models.UsageRecord{
			Provider:     req.Provider,
			Model:        req.Model,
			Feature:      req.Feature,
			Success:      false,
			ErrorMessage: callErr.Error(),
		})
		return nil, classifyCallError(callErr)
	}

	// Step 5: actual cost from provider-reported usage, heuristic fallback.
	inputTokens := result.InputTokens
	outputTokens := result.OutputTokens
	totalTokens := result.TotalTokens
	if !result.HasUsage {
		inputTokens = estTokens
		outputTokens = o.estimator.EstimateTokens(result.Content)
		totalTokens = inputTokens + outputTokens
	}
	cost := o.estimator.Cost(req.Model, inputTokens, outputTokens)

	// Step 6: the ledger write.
	o.appendRecord(models.UsageRecord{
		Provider:     req.Provider,
		Model:        req.Model,
		Feature:      req.Feature,
		InputTokens:  inputTokens,
		OutputTokens: outputTokens,
		TotalTokens:  totalTokens,
		Cost:         cost,
		Success:      true,
	})
	if err := o.keys.MarkUsed(ctx, cred.ID); err != nil {
		o.logger.Warn("mark credential used failed", "credential_id", cred.ID, "error", err)
	}

	return &models.CompletionResponse{
		Content:       result.Content,
		TokensUsed:    totalTokens,
		EstimatedCost: cost,
		ModelUsed:     result.Model,
	}, nil
}

// GetUsageStatus returns a read-only snapshot for status indicators.
func (o *Orchestrator) GetUsageStatus(ctx context.Context, p models.Provider) (models.UsageStatus, error) {
	status, err := o.limiter.Check(ctx, p)
	if err != nil {
		return models.UsageStatus{}, fmt.Errorf("usage status: %w", err)
	}

	// Check stops at the first tripped ceiling and may never reach the
	// monthly-cost read; the snapshot must report real spend either way.
	cost, err := o.ledger.CurrentMonthCost(ctx, p)
	if err != nil {
		return models.UsageStatus{}, fmt.Errorf("usage status: %w", err)
	}
	status.MonthlyCost = cost

	var limit float64
	cred, err := o.keys.Active(ctx, p)
	if err == nil {
		limit = cred.MonthlyBudget
	} else if !errors.Is(err, keystore.ErrNotFound) {
		return models.UsageStatus{}, fmt.Errorf("usage status: %w", err)
	}

	return models.UsageStatus{
		RateLimits:         status,
		MonthlyUsage:       cost,
		MonthlyLimit:       limit,
		RecentRequestCount: status.DailyCount,
	}, nil
}

// appendRecord writes to the ledger. Persistence errors here are logged and
// never surfaced: the ledger write must not fail the caller's business flow.
func (o *Orchestrator) appendRecord(rec models.UsageRecord) {
	if err := o.ledger.Append(context.Background(), rec); err != nil {
		o.logger.Error("usage record append failed",
			"provider", string(rec.Provider), "model", rec.Model, "error", err)
	}
}

// blockedError maps a limiter reason to the error kind callers branch on.
func blockedError(reason string) *AIError {
	switch reason {
	case ratelimit.ReasonNoKey:
		return aiErr(KindNoKey, reason, nil)
	case ratelimit.ReasonMonthlyUsage:
		return aiErr(KindUsageLimitExceeded, reason, nil)
	default:
		return aiErr(KindRateLimited, reason, nil)
	}
}

// classifyCallError maps provider-call failures to the error taxonomy:
// 401/403 means the key is invalid, 429 is a provider-side rate limit,
// anything else (5xx, transport, timeout) is a network error.
func classifyCallError(err error) *AIError {
	var apiErr *provider.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case http.StatusUnauthorized, http.StatusForbidden:
			return aiErr(KindNoKey, "provider rejected API key", err)
		case http.StatusTooManyRequests:
			return aiErr(KindRateLimited, "provider rate limit exceeded", err)
		default:
			return aiErr(KindNetworkError, "provider request failed", err)
		}
	}
	return aiErr(KindNetworkError, "provider request failed", err)
}

func validateRequest(req models.CompletionRequest) error {
	if !req.Provider.Known() {
		return fmt.Errorf("unknown provider: %q", req.Provider)
	}
	if req.Model == "" {
		return fmt.Errorf("model is required")
	}
	if len(req.Messages) == 0 {
		return fmt.Errorf("messages are required")
	}
	return nil
}

func serializeMessages(messages []models.ChatMessage) string {
	var b strings.Builder
	for _, m := range messages {
		b.WriteString(m.Role)
		b.WriteString(": ")
		b.WriteString(m.Content)
		b.WriteString("\n")
	}
	return b.String()
}
