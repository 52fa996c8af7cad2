package keystore

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/tandemhq/aigate/pkg/models"
)

const (
	testOpenAIKey    = "sk-test-0123456789abcdef0123"
	testAnthropicKey = "sk-ant-REDACTED"
)

type fakeValidator struct {
	err    error
	called int
}

func (f *fakeValidator) Validate(ctx context.Context, provider models.Provider, secret string) error {
	f.called++
	return f.err
}

func newTestStore(t *testing.T, v Validator) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := New(dbPath, v)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSaveAndGetActive(t *testing.T) {
	v := &fakeValidator{}
	s := newTestStore(t, v)
	ctx := context.Background()

	cred, err := s.Save(ctx, models.ProviderOpenAI, testOpenAIKey, "team key", 5.0)
	if err != nil {
		t.Fatal(err)
	}
	if cred.ID == "" {
		t.Error("expected assigned ID")
	}
	if !cred.Active {
		t.Error("expected new credential to be active")
	}
	if v.called != 1 {
		t.Errorf("expected 1 validation call, got %d", v.called)
	}

	secret, err := s.GetActive(ctx, models.ProviderOpenAI)
	if err != nil {
		t.Fatal(err)
	}
	if secret != testOpenAIKey {
		t.Errorf("expected round-tripped secret, got %q", secret)
	}
}

func TestSaveRejectsBadFormat(t *testing.T) {
	s := newTestStore(t, nil)
	ctx := context.Background()

	cases := []struct {
		provider models.Provider
		secret   string
	}{
		{models.ProviderOpenAI, "not-a-key"},
		{models.ProviderOpenAI, "sk-short"},
		{models.ProviderAnthropic, testOpenAIKey}, // missing sk-ant- prefix
		{models.ProviderAnthropic, "sk-ant-x"},
		{models.Provider("mystery"), testOpenAIKey},
	}
	for _, tc := range cases {
		_, err := s.Save(ctx, tc.provider, tc.secret, "", 0)
		if !errors.Is(err, ErrInvalidFormat) {
			t.Errorf("%s/%q: expected ErrInvalidFormat, got %v", tc.provider, tc.secret, err)
		}
	}

	// Anthropic keys share the sk- prefix but need the longer one.
	if _, err := s.Save(ctx, models.ProviderAnthropic, testAnthropicKey, "", 0); err != nil {
		t.Errorf("valid anthropic key rejected: %v", err)
	}
}

func TestSaveValidationFailure(t *testing.T) {
	v := &fakeValidator{err: fmt.Errorf("401 from provider")}
	s := newTestStore(t, v)
	ctx := context.Background()

	_, err := s.Save(ctx, models.ProviderOpenAI, testOpenAIKey, "", 0)
	if !errors.Is(err, ErrValidationFailed) {
		t.Fatalf("expected ErrValidationFailed, got %v", err)
	}

	// Nothing persisted.
	if _, err := s.GetActive(ctx, models.ProviderOpenAI); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after failed save, got %v", err)
	}
}

func TestSecretStoredEncoded(t *testing.T) {
	s := newTestStore(t, nil)
	ctx := context.Background()

	if _, err := s.Save(ctx, models.ProviderOpenAI, testOpenAIKey, "", 0); err != nil {
		t.Fatal(err)
	}

	var stored string
	err := s.db.QueryRow(`SELECT secret_encoded FROM credentials LIMIT 1`).Scan(&stored)
	if err != nil {
		t.Fatal(err)
	}
	if stored == testOpenAIKey || strings.Contains(stored, testOpenAIKey) {
		t.Error("secret stored in plaintext")
	}
}

func TestGetActivePicksNewest(t *testing.T) {
	s := newTestStore(t, nil)
	ctx := context.Background()

	old := "sk-old-0123456789abcdef012"
	oldCred, err := s.Save(ctx, models.ProviderOpenAI, old, "old", 0)
	if err != nil {
		t.Fatal(err)
	}
	// Backdate the first credential so ordering does not depend on sub-second
	// timestamp resolution.
	if _, err := s.db.Exec(`UPDATE credentials SET created_at = ? WHERE id = ?`,
		time.Now().UTC().Add(-time.Hour), oldCred.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Save(ctx, models.ProviderOpenAI, testOpenAIKey, "new", 0); err != nil {
		t.Fatal(err)
	}

	secret, err := s.GetActive(ctx, models.ProviderOpenAI)
	if err != nil {
		t.Fatal(err)
	}
	if secret != testOpenAIKey {
		t.Errorf("expected newest secret, got %q", secret)
	}
}

func TestDeactivate(t *testing.T) {
	s := newTestStore(t, nil)
	ctx := context.Background()

	cred, err := s.Save(ctx, models.ProviderOpenAI, testOpenAIKey, "", 0)
	if err != nil {
		t.Fatal(err)
	}

	if err := s.Deactivate(ctx, cred.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := s.GetActive(ctx, models.ProviderOpenAI); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after deactivation, got %v", err)
	}

	creds, err := s.List(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(creds) != 0 {
		t.Errorf("expected no active credentials listed, got %d", len(creds))
	}

	// Row remains for attribution.
	var count int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM credentials`).Scan(&count); err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Errorf("expected soft delete to keep the row, got %d rows", count)
	}

	if err := s.Deactivate(ctx, "no-such-id"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for unknown ID, got %v", err)
	}
}

func TestMarkUsed(t *testing.T) {
	s := newTestStore(t, nil)
	ctx := context.Background()

	cred, err := s.Save(ctx, models.ProviderOpenAI, testOpenAIKey, "", 0)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.MarkUsed(ctx, cred.ID); err != nil {
		t.Fatal(err)
	}

	got, err := s.Active(ctx, models.ProviderOpenAI)
	if err != nil {
		t.Fatal(err)
	}
	if got.LastUsedAt.IsZero() {
		t.Error("expected LastUsedAt to be set")
	}
}
