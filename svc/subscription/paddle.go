package subscription

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	paddle "github.com/PaddleHQ/paddle-go-sdk/v4"

	"github.com/clipmetrics/billing/svc/plan"
)

// PaddleConfig holds configuration for the Paddle billing provider.
type PaddleConfig struct {
	APIKey        string `env:"PADDLE_API_KEY,required"`
	WebhookSecret string `env:"PADDLE_WEBHOOK_SECRET,required"`
	Environment   string `env:"PADDLE_ENVIRONMENT" envDefault:"production"`
}

// PaddleProvider implements PaymentProvider for Paddle.
type PaddleProvider struct {
	client   *paddle.SDK
	verifier *paddle.WebhookVerifier
}

// NewPaddleProvider creates a Paddle billing provider.
func NewPaddleProvider(config PaddleConfig) (*PaddleProvider, error) {
	if config.APIKey == "" {
		return nil, errors.New("paddle API key is required")
	}
	if config.WebhookSecret == "" {
		return nil, errors.New("paddle webhook secret is required")
	}

	var client *paddle.SDK
	var err error

	switch strings.ToLower(config.Environment) {
	case "sandbox":
		client, err = paddle.NewSandbox(config.APIKey)
	case "production", "":
		client, err = paddle.New(config.APIKey)
	default:
		return nil, fmt.Errorf("invalid paddle environment: %s", config.Environment)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create paddle client: %w", err)
	}

	return &PaddleProvider{
		client:   client,
		verifier: paddle.NewWebhookVerifier(config.WebhookSecret),
	}, nil
}

// VerifyWebhook authenticates a raw webhook payload against its
// Paddle-Signature header value. Callers must verify before feeding the
// event into Update or MarkPastDue; an unauthenticated payload could
// otherwise drive arbitrary status transitions.
func (p *PaddleProvider) VerifyWebhook(ctx context.Context, payload []byte, signature string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, "/webhook", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build verification request: %w", err)
	}
	req.Header.Set("Paddle-Signature", signature)

	valid, err := p.verifier.Verify(req)
	if err != nil {
		return fmt.Errorf("webhook verification error: %w", err)
	}
	if !valid {
		return errors.New("webhook signature verification failed")
	}
	return nil
}

func (p *PaddleProvider) Name() string { return "paddle" }

// CheckoutMode reports overlay: Paddle renders checkout via Paddle.js on
// the merchant's page using a transaction id.
func (p *PaddleProvider) CheckoutMode() CheckoutMode { return CheckoutModeOverlay }

// InitSubscriptionCheckout creates a Paddle transaction for the plan's
// catalog price. The transaction id doubles as the Paddle.js client token.
func (p *PaddleProvider) InitSubscriptionCheckout(ctx context.Context, params CheckoutParams) (*CheckoutSession, error) {
	if params.Plan.ProviderPriceID == "" {
		return nil, errors.New("plan has no paddle price id")
	}
	quantity := params.Quantity
	if quantity < 1 {
		quantity = 1
	}

	item := paddle.NewCreateTransactionItemsTransactionItemFromCatalog(&paddle.TransactionItemFromCatalog{
		PriceID:  params.Plan.ProviderPriceID,
		Quantity: quantity,
	})

	req := &paddle.CreateTransactionRequest{
		Items: []paddle.CreateTransactionItems{*item},
		CustomData: paddle.CustomData{
			"user_id": params.UserID.String(),
		},
	}
	if params.UserEmail != "" {
		req.CustomData["email"] = params.UserEmail
	}
	if params.DiscountCode != "" {
		req.CustomData["discount_code"] = params.DiscountCode
	}
	if params.SuccessURL != "" {
		req.Checkout = &paddle.TransactionCheckout{
			URL: paddle.PtrTo(params.SuccessURL),
		}
	}

	txn, err := p.client.TransactionsClient.CreateTransaction(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("failed to create paddle transaction: %w", err)
	}

	session := &CheckoutSession{
		SessionID:   txn.ID,
		ClientToken: txn.ID,
		// Paddle checkout transactions are valid for 24 hours
		ExpiresAt: time.Now().Add(24 * time.Hour),
	}
	if txn.Checkout != nil && txn.Checkout.URL != nil {
		session.URL = *txn.Checkout.URL
	}

	return session, nil
}

// ChangePlan swaps the subscription's items for the new plan's catalog price.
func (p *PaddleProvider) ChangePlan(ctx context.Context, sub *Subscription, newPlan plan.Plan, prorated bool) error {
	if sub.ProviderSubscriptionID == "" {
		return errors.New("subscription has no paddle subscription id")
	}
	if newPlan.ProviderPriceID == "" {
		return errors.New("plan has no paddle price id")
	}

	item := paddle.NewUpdateSubscriptionItemsSubscriptionUpdateItemFromCatalog(&paddle.SubscriptionUpdateItemFromCatalog{
		PriceID:  newPlan.ProviderPriceID,
		Quantity: sub.Quantity,
	})

	_, err := p.client.SubscriptionsClient.UpdateSubscription(ctx, &paddle.UpdateSubscriptionRequest{
		SubscriptionID:       sub.ProviderSubscriptionID,
		Items:                paddle.NewPatchField([]paddle.UpdateSubscriptionItems{*item}),
		ProrationBillingMode: paddle.NewPatchField(prorationMode(prorated)),
	})
	if err != nil {
		return fmt.Errorf("failed to change paddle plan: %w", err)
	}
	return nil
}

// CancelSubscription schedules cancellation for the end of the billing cycle.
func (p *PaddleProvider) CancelSubscription(ctx context.Context, sub *Subscription) error {
	if sub.ProviderSubscriptionID == "" {
		return errors.New("subscription has no paddle subscription id")
	}

	_, err := p.client.SubscriptionsClient.CancelSubscription(ctx, &paddle.CancelSubscriptionRequest{
		SubscriptionID: sub.ProviderSubscriptionID,
		EffectiveFrom:  paddle.PtrTo(paddle.EffectiveFromNextBillingPeriod),
	})
	if err != nil {
		return fmt.Errorf("failed to cancel paddle subscription: %w", err)
	}
	return nil
}

// DiscardSubscriptionCancellation removes the scheduled cancellation by
// updating the subscription, which clears its pending scheduled change.
func (p *PaddleProvider) DiscardSubscriptionCancellation(ctx context.Context, sub *Subscription) error {
	if sub.ProviderSubscriptionID == "" {
		return errors.New("subscription has no paddle subscription id")
	}

	// An update with no scheduled change payload clears the pending
	// cancellation on the Paddle side.
	_, err := p.client.SubscriptionsClient.UpdateSubscription(ctx, &paddle.UpdateSubscriptionRequest{
		SubscriptionID: sub.ProviderSubscriptionID,
	})
	if err != nil {
		return fmt.Errorf("failed to discard paddle cancellation: %w", err)
	}
	return nil
}

// UpdateSubscriptionQuantity re-submits the current price item with the new
// seat count.
func (p *PaddleProvider) UpdateSubscriptionQuantity(ctx context.Context, sub *Subscription, quantity int, prorated bool) error {
	if sub.ProviderSubscriptionID == "" {
		return errors.New("subscription has no paddle subscription id")
	}
	if quantity < 1 {
		return ErrInvalidQuantity
	}

	item := paddle.NewUpdateSubscriptionItemsSubscriptionUpdateItemFromCatalog(&paddle.SubscriptionUpdateItemFromCatalog{
		PriceID:  sub.ProviderPriceID,
		Quantity: quantity,
	})

	_, err := p.client.SubscriptionsClient.UpdateSubscription(ctx, &paddle.UpdateSubscriptionRequest{
		SubscriptionID:       sub.ProviderSubscriptionID,
		Items:                paddle.NewPatchField([]paddle.UpdateSubscriptionItems{*item}),
		ProrationBillingMode: paddle.NewPatchField(prorationMode(prorated)),
	})
	if err != nil {
		return fmt.Errorf("failed to update paddle quantity: %w", err)
	}
	return nil
}

// ReportUsage submits consumed units as a subscription charge.
func (p *PaddleProvider) ReportUsage(ctx context.Context, sub *Subscription, units int64) error {
	if sub.ProviderSubscriptionID == "" {
		return errors.New("subscription has no paddle subscription id")
	}
	if units <= 0 {
		return errors.New("usage units must be positive")
	}

	item := paddle.NewCreateSubscriptionChargeItemsSubscriptionChargeItemFromCatalog(&paddle.SubscriptionChargeItemFromCatalog{
		PriceID:  sub.ProviderPriceID,
		Quantity: int(units),
	})

	_, err := p.client.SubscriptionsClient.CreateSubscriptionCharge(ctx, &paddle.CreateSubscriptionChargeRequest{
		SubscriptionID: sub.ProviderSubscriptionID,
		Items:          []paddle.CreateSubscriptionChargeItems{*item},
		EffectiveFrom:  paddle.EffectiveFromNextBillingPeriod,
	})
	if err != nil {
		return fmt.Errorf("failed to report paddle usage: %w", err)
	}
	return nil
}

func (p *PaddleProvider) SupportedPlanTypes() []plan.Type {
	return []plan.Type{plan.TypeFlatRate, plan.TypeSeatBased, plan.TypeUsageBased}
}

func (p *PaddleProvider) SupportsSkippingTrial() bool { return true }

func prorationMode(prorated bool) paddle.ProrationBillingMode {
	if prorated {
		return paddle.ProrationBillingModeProratedImmediately
	}
	return paddle.ProrationBillingModeFullNextBillingPeriod
}
