package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/parleyhq/parley/internal/pkg/apperr"
	"github.com/parleyhq/parley/internal/pkg/env"
)

const defaultStripeAPIBaseURL = "https://api.stripe.com/v1"

// StripeClient issues the two outbound billing RPCs this system needs:
// customer creation and subscription creation. Everything else about the
// payment flow (payment-method collection, invoicing) stays with the
// provider.
type StripeClient struct {
	SecretKey  string
	PriceRef   string
	APIBaseURL string

	HTTPClient *http.Client
}

// SubscriptionIntent is the result of starting a subscription: the
// provider's subscription reference plus the client secret the frontend
// needs to confirm payment.
type SubscriptionIntent struct {
	SubscriptionRef string
	ClientSecret    string
}

// NewStripeClientFromEnv builds a client from STRIPE_* configuration.
func NewStripeClientFromEnv() *StripeClient {
	return &StripeClient{
		SecretKey:  strings.TrimSpace(env.GetEnv("STRIPE_SECRET_KEY", "")),
		PriceRef:   strings.TrimSpace(env.GetEnv("STRIPE_PRICE_ID", "")),
		APIBaseURL: strings.TrimRight(env.GetEnv("STRIPE_API_BASE_URL", defaultStripeAPIBaseURL), "/"),
		HTTPClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// CreateCustomer registers the identity with the billing provider and
// returns the opaque customer reference to link into the entitlement
// record.
func (c *StripeClient) CreateCustomer(ctx context.Context, email, name string, metadata map[string]string) (string, error) {
	if strings.TrimSpace(c.SecretKey) == "" {
		return "", errors.New("STRIPE_SECRET_KEY is not configured")
	}

	form := url.Values{}
	if e := strings.TrimSpace(email); e != "" {
		form.Set("email", e)
	}
	if n := strings.TrimSpace(name); n != "" {
		form.Set("name", n)
	}
	for k, v := range metadata {
		form.Set(fmt.Sprintf("metadata[%s]", k), v)
	}

	var out struct {
		ID string `json:"id"`
	}
	if err := c.post(ctx, "/customers", form, &out); err != nil {
		return "", err
	}
	if strings.TrimSpace(out.ID) == "" {
		return "", &apperr.UpstreamUnavailable{Op: "create customer", Detail: "response missing customer id"}
	}
	return out.ID, nil
}

// CreateSubscription starts a subscription for an existing customer and
// returns the payment client secret for the frontend to complete.
func (c *StripeClient) CreateSubscription(ctx context.Context, customerRef, priceRef string) (*SubscriptionIntent, error) {
	if strings.TrimSpace(c.SecretKey) == "" {
		return nil, errors.New("STRIPE_SECRET_KEY is not configured")
	}
	if strings.TrimSpace(customerRef) == "" {
		return nil, errors.New("customer reference is required")
	}
	price := strings.TrimSpace(priceRef)
	if price == "" {
		price = c.PriceRef
	}
	if price == "" {
		return nil, errors.New("STRIPE_PRICE_ID is not configured")
	}

	form := url.Values{}
	form.Set("customer", strings.TrimSpace(customerRef))
	form.Set("items[0][price]", price)
	form.Set("payment_behavior", "default_incomplete")
	form.Set("expand[0]", "latest_invoice.payment_intent")

	var out struct {
		ID            string `json:"id"`
		LatestInvoice struct {
			PaymentIntent struct {
				ClientSecret string `json:"client_secret"`
			} `json:"payment_intent"`
		} `json:"latest_invoice"`
	}
	if err := c.post(ctx, "/subscriptions", form, &out); err != nil {
		return nil, err
	}
	if strings.TrimSpace(out.ID) == "" {
		return nil, &apperr.UpstreamUnavailable{Op: "create subscription", Detail: "response missing subscription id"}
	}
	return &SubscriptionIntent{
		SubscriptionRef: out.ID,
		ClientSecret:    out.LatestInvoice.PaymentIntent.ClientSecret,
	}, nil
}

func (c *StripeClient) post(ctx context.Context, path string, form url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.APIBaseURL+path, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.SecretKey)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return &apperr.UpstreamUnavailable{Op: "stripe " + path, Detail: err.Error(), Err: err}
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &apperr.UpstreamUnavailable{
			Op:     "stripe " + path,
			Detail: fmt.Sprintf("status=%d body=%s", resp.StatusCode, upstreamMessage(body)),
		}
	}
	return json.Unmarshal(body, out)
}

// upstreamMessage extracts only the provider's message string; raw payloads
// are never interpreted further or surfaced whole.
func upstreamMessage(body []byte) string {
	var raw struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &raw); err == nil && raw.Error.Message != "" {
		return raw.Error.Message
	}
	if len(body) > 200 {
		return string(body[:200])
	}
	return string(body)
}
