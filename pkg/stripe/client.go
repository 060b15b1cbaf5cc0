// Package stripe validates and installs the Stripe credentials for one
// environment. The resource packages (paymentintent, refund, webhook) read the
// secret key that NewClient installs.
package stripe

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v84"

	"github.com/angelmondragon/preorder-backend/pkg/config"
	"github.com/angelmondragon/preorder-backend/pkg/logger"
)

type keyRules struct {
	secret      []string
	publishable string
}

var rulesByEnv = map[string]keyRules{
	"test": {secret: []string{"sk_test_", "rk_test_"}, publishable: "pk_test_"},
	"live": {secret: []string{"sk_live_", "rk_live_"}, publishable: "pk_live_"},
}

// Client carries the environment metadata handed to the gateway and the
// webhook ingest. Only the webhook ingest reads SigningSecret.
type Client struct {
	environment    string
	signingSecret  string
	publishableKey string
}

// NewClient checks that every key belongs to the configured environment, so a
// live key can never be used against a test deployment or the reverse.
func NewClient(ctx context.Context, cfg config.StripeConfig, logg *logger.Logger) (*Client, error) {
	env := cfg.Environment()
	rules, ok := rulesByEnv[env]
	if !ok {
		return nil, fmt.Errorf("stripe environment %q must be test or live", env)
	}

	apiKey := strings.TrimSpace(cfg.APIKey)
	signingSecret := strings.TrimSpace(cfg.SigningSecret)
	publishableKey := strings.TrimSpace(cfg.PublishableKey)

	var errs []error
	switch {
	case apiKey == "":
		errs = append(errs, errors.New("stripe api key is required"))
	case !hasAnyPrefix(apiKey, rules.secret...):
		errs = append(errs, fmt.Errorf("stripe %s environment requires a %s secret key", env, strings.Join(rules.secret, "/")))
	}
	switch {
	case publishableKey == "":
		errs = append(errs, errors.New("stripe publishable key is required"))
	case !strings.HasPrefix(publishableKey, rules.publishable):
		errs = append(errs, fmt.Errorf("stripe %s environment requires a %s publishable key", env, rules.publishable))
	}
	if signingSecret == "" {
		errs = append(errs, errors.New("stripe webhook secret is required"))
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}

	stripe.Key = apiKey
	if logg != nil {
		logg.Info(logg.WithField(ctx, "stripe_env", env), "stripe.initialized")
	}
	return &Client{
		environment:    env,
		signingSecret:  signingSecret,
		publishableKey: publishableKey,
	}, nil
}

func hasAnyPrefix(s string, prefixes ...string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}

func (c *Client) Environment() string {
	if c == nil {
		return ""
	}
	return c.environment
}

// Livemode reports whether events signed for this client should carry
// livemode=true.
func (c *Client) Livemode() bool {
	return c.Environment() == "live"
}

func (c *Client) SigningSecret() string {
	if c == nil {
		return ""
	}
	return c.signingSecret
}

// PublishableKey is the client-safe key used to initialize the payment widget.
func (c *Client) PublishableKey() string {
	if c == nil {
		return ""
	}
	return c.publishableKey
}
