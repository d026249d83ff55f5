package stripe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/proshotai/proshot/internal/pkg/env"
)

const defaultAPIBaseURL = "https://api.stripe.com/v1"

// Client is a minimal Stripe REST client covering customers, subscriptions,
// products, checkout and the hosted billing portal.
type Client struct {
	SecretKey  string
	APIBaseURL string

	HTTPClient *http.Client
}

// NewClientFromEnv builds a client from STRIPE_SECRET_KEY. The base URL can
// be overridden for tests via STRIPE_API_BASE_URL.
func NewClientFromEnv() *Client {
	return &Client{
		SecretKey:  strings.TrimSpace(env.GetEnv("STRIPE_SECRET_KEY", "")),
		APIBaseURL: strings.TrimRight(env.GetEnv("STRIPE_API_BASE_URL", defaultAPIBaseURL), "/"),
		HTTPClient: &http.Client{
			Timeout: 20 * time.Second,
		},
	}
}

// CreateCustomer registers a billing identity and returns its ID. The local
// user ID is stored in the customer metadata for reverse lookup.
func (c *Client) CreateCustomer(ctx context.Context, name, email string, userID uint) (string, error) {
	form := url.Values{}
	form.Set("name", name)
	form.Set("email", email)
	form.Set("metadata[user_id]", strconv.FormatUint(uint64(userID), 10))

	var customer Customer
	if err := c.do(ctx, http.MethodPost, "/customers", form, &customer); err != nil {
		return "", err
	}
	return customer.ID, nil
}

// DeleteCustomer removes a billing identity.
func (c *Client) DeleteCustomer(ctx context.Context, customerID string) error {
	if strings.TrimSpace(customerID) == "" {
		return errors.New("customer id is required")
	}
	return c.do(ctx, http.MethodDelete, "/customers/"+url.PathEscape(customerID), nil, nil)
}

// ListSubscriptions returns all subscriptions of a customer. Status may be
// "all", "active" or empty (Stripe default: non-canceled).
func (c *Client) ListSubscriptions(ctx context.Context, customerID, status string) ([]Subscription, error) {
	if strings.TrimSpace(customerID) == "" {
		return nil, errors.New("customer id is required")
	}
	q := url.Values{}
	q.Set("customer", customerID)
	q.Set("limit", "100")
	if status != "" {
		q.Set("status", status)
	}

	var out struct {
		Data []Subscription `json:"data"`
	}
	if err := c.do(ctx, http.MethodGet, "/subscriptions?"+q.Encode(), nil, &out); err != nil {
		return nil, err
	}
	return out.Data, nil
}

// RetrieveSubscription fetches a single subscription by ID.
func (c *Client) RetrieveSubscription(ctx context.Context, subscriptionID string) (*Subscription, error) {
	if strings.TrimSpace(subscriptionID) == "" {
		return nil, errors.New("subscription id is required")
	}
	var sub Subscription
	if err := c.do(ctx, http.MethodGet, "/subscriptions/"+url.PathEscape(subscriptionID), nil, &sub); err != nil {
		return nil, err
	}
	return &sub, nil
}

// CancelSubscription cancels a subscription immediately.
func (c *Client) CancelSubscription(ctx context.Context, subscriptionID string) error {
	if strings.TrimSpace(subscriptionID) == "" {
		return errors.New("subscription id is required")
	}
	return c.do(ctx, http.MethodDelete, "/subscriptions/"+url.PathEscape(subscriptionID), nil, nil)
}

// CancelSubscriptionAtPeriodEnd flags a subscription to end with the current
// billing period instead of cancelling it outright.
func (c *Client) CancelSubscriptionAtPeriodEnd(ctx context.Context, subscriptionID string) error {
	if strings.TrimSpace(subscriptionID) == "" {
		return errors.New("subscription id is required")
	}
	form := url.Values{}
	form.Set("cancel_at_period_end", "true")
	return c.do(ctx, http.MethodPost, "/subscriptions/"+url.PathEscape(subscriptionID), form, nil)
}

// RetrieveProduct fetches a product; plan credit allotments live in its
// metadata under "credits".
func (c *Client) RetrieveProduct(ctx context.Context, productID string) (*Product, error) {
	if strings.TrimSpace(productID) == "" {
		return nil, errors.New("product id is required")
	}
	var product Product
	if err := c.do(ctx, http.MethodGet, "/products/"+url.PathEscape(productID), nil, &product); err != nil {
		return nil, err
	}
	return &product, nil
}

// CreateSubscriptionCheckout starts a hosted checkout session for a
// recurring price and returns its URL.
func (c *Client) CreateSubscriptionCheckout(ctx context.Context, customerID, priceID, successURL, cancelURL string) (string, error) {
	if strings.TrimSpace(customerID) == "" || strings.TrimSpace(priceID) == "" {
		return "", errors.New("customer id and price id are required")
	}
	form := url.Values{}
	form.Set("customer", customerID)
	form.Set("mode", "subscription")
	form.Set("line_items[0][price]", priceID)
	form.Set("line_items[0][quantity]", "1")
	form.Set("success_url", successURL)
	form.Set("cancel_url", cancelURL)

	var session CheckoutSession
	if err := c.do(ctx, http.MethodPost, "/checkout/sessions", form, &session); err != nil {
		return "", err
	}
	if session.URL == "" {
		return "", errors.New("checkout session has no url")
	}
	return session.URL, nil
}

// CreditCheckoutInput describes a one-time credit pack purchase.
type CreditCheckoutInput struct {
	CustomerID  string
	UserID      uint
	PackageName string
	Credits     int
	PriceCents  int
	SuccessURL  string
	CancelURL   string
}

// CreateCreditCheckout starts a one-time payment checkout for a credit pack.
// The credit amount travels in the session metadata so the webhook can grant
// it after payment.
func (c *Client) CreateCreditCheckout(ctx context.Context, in CreditCheckoutInput) (string, error) {
	if strings.TrimSpace(in.CustomerID) == "" {
		return "", errors.New("customer id is required")
	}
	if in.Credits <= 0 || in.PriceCents <= 0 {
		return "", errors.New("credits and price must be positive")
	}

	form := url.Values{}
	form.Set("customer", in.CustomerID)
	form.Set("mode", "payment")
	form.Set("line_items[0][price_data][currency]", "eur")
	form.Set("line_items[0][price_data][product_data][name]", fmt.Sprintf("%s Credit-Paket", in.PackageName))
	form.Set("line_items[0][price_data][product_data][description]", fmt.Sprintf("%d Bildgenerierungs-Credits", in.Credits))
	form.Set("line_items[0][price_data][unit_amount]", strconv.Itoa(in.PriceCents))
	form.Set("line_items[0][quantity]", "1")
	form.Set("success_url", in.SuccessURL)
	form.Set("cancel_url", in.CancelURL)
	form.Set("metadata[user_id]", strconv.FormatUint(uint64(in.UserID), 10))
	form.Set("metadata[credits]", strconv.Itoa(in.Credits))
	form.Set("metadata[package_name]", in.PackageName)

	var session CheckoutSession
	if err := c.do(ctx, http.MethodPost, "/checkout/sessions", form, &session); err != nil {
		return "", err
	}
	if session.URL == "" {
		return "", errors.New("checkout session has no url")
	}
	return session.URL, nil
}

// CreatePortalSession creates a hosted billing portal session. For the
// cancel/update flows a subscription ID is required.
func (c *Client) CreatePortalSession(ctx context.Context, customerID, flow, subscriptionID, returnURL string) (string, error) {
	if strings.TrimSpace(customerID) == "" {
		return "", errors.New("customer id is required")
	}
	form := url.Values{}
	form.Set("customer", customerID)
	form.Set("return_url", returnURL)

	switch flow {
	case PortalFlowStandard:
		// plain portal, no flow data
	case PortalFlowSubCancel, PortalFlowSubUpdate:
		if strings.TrimSpace(subscriptionID) == "" {
			return "", errors.New("subscription id is required for this portal flow")
		}
		form.Set("flow_data[type]", flow)
		key := "flow_data[subscription_cancel][subscription]"
		if flow == PortalFlowSubUpdate {
			key = "flow_data[subscription_update][subscription]"
		}
		form.Set(key, subscriptionID)
		form.Set("flow_data[after_completion][type]", "redirect")
		form.Set("flow_data[after_completion][redirect][return_url]", returnURL)
	default:
		return "", fmt.Errorf("unsupported portal flow %q", flow)
	}

	var session PortalSession
	if err := c.do(ctx, http.MethodPost, "/billing_portal/sessions", form, &session); err != nil {
		return "", err
	}
	return session.URL, nil
}

func (c *Client) do(ctx context.Context, method, path string, form url.Values, out any) error {
	if strings.TrimSpace(c.SecretKey) == "" {
		return errors.New("STRIPE_SECRET_KEY is not configured")
	}

	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}

	req, err := http.NewRequestWithContext(ctx, method, c.APIBaseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.SecretKey)
	req.Header.Set("Accept", "application/json")
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("stripe request %s %s failed: status=%d body=%s", method, path, resp.StatusCode, string(raw))
	}

	if out == nil {
		return nil
	}
	return json.Unmarshal(raw, out)
}
