package gate

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

const stripeBaseURL = "https://api.stripe.com"

// Stripe checks subscriptions through the Stripe REST API.
type Stripe struct {
	http *resty.Client
}

// NewStripe creates a Stripe billing client. baseURL may be empty.
func NewStripe(secretKey, baseURL string) *Stripe {
	if baseURL == "" {
		baseURL = stripeBaseURL
	}
	client := resty.New()
	client.SetBaseURL(baseURL)
	client.SetBasicAuth(secretKey, "")
	client.SetTimeout(15 * time.Second)
	return &Stripe{http: client}
}

type stripeList[T any] struct {
	Data []T `json:"data"`
}

type stripeCustomer struct {
	ID string `json:"id"`
}

type stripeSubscription struct {
	Status string `json:"status"`
}

// IsEntitled looks up the customer by email and reports whether any of its
// recent subscriptions is active or trialing.
func (s *Stripe) IsEntitled(ctx context.Context, email string) (bool, error) {
	var customers stripeList[stripeCustomer]
	resp, err := s.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{"email": email, "limit": "1"}).
		SetResult(&customers).
		Get("/v1/customers")
	if err != nil {
		return false, fmt.Errorf("list stripe customers: %w", err)
	}
	if resp.IsError() {
		return false, fmt.Errorf("list stripe customers: status %d", resp.StatusCode())
	}
	if len(customers.Data) == 0 {
		return false, nil
	}

	var subs stripeList[stripeSubscription]
	resp, err = s.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"customer": customers.Data[0].ID,
			"status":   "all",
			"limit":    "5",
		}).
		SetResult(&subs).
		Get("/v1/subscriptions")
	if err != nil {
		return false, fmt.Errorf("list stripe subscriptions: %w", err)
	}
	if resp.IsError() {
		return false, fmt.Errorf("list stripe subscriptions: status %d", resp.StatusCode())
	}

	for _, sub := range subs.Data {
		if sub.Status == "active" || sub.Status == "trialing" {
			return true, nil
		}
	}
	return false, nil
}
