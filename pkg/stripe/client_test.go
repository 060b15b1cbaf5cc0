package stripe

import (
	"context"
	"strings"
	"testing"

	"github.com/angelmondragon/preorder-backend/pkg/config"
)

func TestNewClientValidatesKeysAgainstEnvironment(t *testing.T) {
	cases := []struct {
		name    string
		cfg     config.StripeConfig
		wantErr bool
	}{
		{name: "test keys", cfg: config.StripeConfig{APIKey: "sk_test_123", PublishableKey: "pk_test_123", SigningSecret: "whsec_1", Env: "test"}},
		{name: "live keys", cfg: config.StripeConfig{APIKey: "sk_live_123", PublishableKey: "pk_live_123", SigningSecret: "whsec_1", Env: "LIVE"}},
		{name: "live key in test", cfg: config.StripeConfig{APIKey: "sk_live_123", PublishableKey: "pk_test_123", SigningSecret: "whsec_1", Env: "test"}, wantErr: true},
		{name: "publishable mismatch", cfg: config.StripeConfig{APIKey: "sk_test_123", PublishableKey: "pk_live_123", SigningSecret: "whsec_1"}, wantErr: true},
		{name: "missing secret", cfg: config.StripeConfig{APIKey: "sk_test_123", PublishableKey: "pk_test_123"}, wantErr: true},
		{name: "missing publishable", cfg: config.StripeConfig{APIKey: "sk_test_123", SigningSecret: "whsec_1"}, wantErr: true},
		{name: "unknown env", cfg: config.StripeConfig{APIKey: "sk_test_123", PublishableKey: "pk_test_123", SigningSecret: "whsec_1", Env: "staging"}, wantErr: true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			client, err := NewClient(context.Background(), tc.cfg, nil)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if client.SigningSecret() != "whsec_1" {
				t.Fatalf("unexpected signing secret %q", client.SigningSecret())
			}
			if client.PublishableKey() != tc.cfg.PublishableKey {
				t.Fatalf("unexpected publishable key %q", client.PublishableKey())
			}
		})
	}
}

func TestNilClientAccessors(t *testing.T) {
	var c *Client
	if c.SigningSecret() != "" || c.PublishableKey() != "" || c.Environment() != "" || c.Livemode() {
		t.Fatal("nil client accessors should return zero values")
	}
}

func TestNewClientReportsEveryProblem(t *testing.T) {
	_, err := NewClient(context.Background(), config.StripeConfig{APIKey: "sk_live_1", Env: "test"}, nil)
	if err == nil {
		t.Fatal("expected error")
	}
	for _, want := range []string{"secret key", "publishable key is required", "webhook secret is required"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("expected %q in %v", want, err)
		}
	}
}

func TestLivemode(t *testing.T) {
	client, err := NewClient(context.Background(), config.StripeConfig{
		APIKey: "rk_live_1", PublishableKey: "pk_live_1", SigningSecret: "whsec_1", Env: "live",
	}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !client.Livemode() {
		t.Fatal("expected livemode")
	}
}
