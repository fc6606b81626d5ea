// Package notify delivers order-confirmation emails through the Resend API.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// DefaultEndpoint is the Resend send-email endpoint.
const DefaultEndpoint = "https://api.resend.com/emails"

// Item is one line of the confirmation email.
type Item struct {
	Name     string
	Price    int64
	Quantity int
}

// OrderSummary carries everything the confirmation email needs.
type OrderSummary struct {
	OrderID       string
	OrderToken    string
	Name          string
	Email         string
	Phone         string
	Address       string
	PaymentMethod string // cash | online
	Items         []Item
	TotalAmount   int64
}

// Client posts confirmation emails to Resend.
type Client struct {
	httpClient *http.Client
	endpoint   string
	apiKey     string
	from       string
}

// NewClient returns a Client. endpoint falls back to DefaultEndpoint when
// empty. from is the sender header, e.g. "Komugi by Narumi <orders@komugi.com>".
func NewClient(httpClient *http.Client, endpoint, apiKey, from string) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	return &Client{
		httpClient: httpClient,
		endpoint:   endpoint,
		apiKey:     apiKey,
		from:       from,
	}
}

type sendRequest struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	HTML    string   `json:"html"`
}

// SendOrderConfirmation renders and sends the confirmation email. Any
// non-2xx response is an error; callers decide whether to retry.
func (c *Client) SendOrderConfirmation(ctx context.Context, summary OrderSummary) error {
	html, err := renderEmail(summary)
	if err != nil {
		return fmt.Errorf("render email: %w", err)
	}

	payload := sendRequest{
		From:    c.from,
		To:      []string{summary.Email},
		Subject: fmt.Sprintf("Order Confirmation - %s", summary.OrderToken),
		HTML:    html,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("resend API returned %d: %s", resp.StatusCode, string(detail))
	}
	return nil
}
