package subscription_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clipmetrics/billing/svc/plan"
	"github.com/clipmetrics/billing/svc/subscription"
)

func TestNewPaddleProvider(t *testing.T) {
	t.Parallel()

	valid := subscription.PaddleConfig{
		APIKey:        "test-api-key",
		WebhookSecret: "test-webhook-secret",
		Environment:   "sandbox",
	}

	provider, err := subscription.NewPaddleProvider(valid)
	require.NoError(t, err)
	assert.Equal(t, "paddle", provider.Name())
	assert.Equal(t, subscription.CheckoutModeOverlay, provider.CheckoutMode())
	assert.Contains(t, provider.SupportedPlanTypes(), plan.TypeSeatBased)

	tests := []struct {
		name   string
		mutate func(*subscription.PaddleConfig)
	}{
		{"missing api key", func(c *subscription.PaddleConfig) { c.APIKey = "" }},
		{"missing webhook secret", func(c *subscription.PaddleConfig) { c.WebhookSecret = "" }},
		{"unknown environment", func(c *subscription.PaddleConfig) { c.Environment = "staging" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := valid
			tt.mutate(&cfg)
			_, err := subscription.NewPaddleProvider(cfg)
			assert.Error(t, err)
		})
	}
}

func TestPaddleProviderVerifyWebhook(t *testing.T) {
	t.Parallel()

	provider, err := subscription.NewPaddleProvider(subscription.PaddleConfig{
		APIKey:        "test-api-key",
		WebhookSecret: "test-webhook-secret",
		Environment:   "sandbox",
	})
	require.NoError(t, err)

	payload := []byte(`{"event_type":"subscription.updated","data":{"id":"sub_123"}}`)

	// A signature computed with a different secret never authenticates.
	err = provider.VerifyWebhook(context.Background(), payload,
		"ts=1718000000;h1=deadbeefdeadbeefdeadbeefdeadbeefdeadbeefdeadbeefdeadbeefdeadbeef")
	assert.Error(t, err)

	err = provider.VerifyWebhook(context.Background(), payload, "")
	assert.Error(t, err)
}
