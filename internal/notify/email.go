// Package notify sends customer notifications. Sending is best-effort and
// explicitly decoupled from the financial transaction: a failed email never
// fails a checkout or a webhook response.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"html"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// OrderConfirmation carries the data rendered into a confirmation email.
type OrderConfirmation struct {
	OrderID       string
	CustomerName  string
	CustomerEmail string
	Total         decimal.Decimal
	Items         []ConfirmationItem
}

// ConfirmationItem is one line of the confirmation email.
type ConfirmationItem struct {
	Name     string
	Quantity int
	Price    decimal.Decimal
}

// Sender delivers order confirmations.
type Sender interface {
	SendOrderConfirmation(ctx context.Context, c OrderConfirmation) error
}

// NopSender discards notifications, used when no email provider is configured.
type NopSender struct{}

// SendOrderConfirmation does nothing.
func (NopSender) SendOrderConfirmation(context.Context, OrderConfirmation) error {
	return nil
}

// ResendSender delivers emails through the Resend HTTP API.
type ResendSender struct {
	apiKey  string
	from    string
	baseURL string
	http    *http.Client
}

// NewResendSender creates a sender authenticated with the given API key.
func NewResendSender(apiKey, from string) *ResendSender {
	return &ResendSender{
		apiKey:  apiKey,
		from:    from,
		baseURL: "https://api.resend.com",
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

type resendRequest struct {
	From    string `json:"from"`
	To      string `json:"to"`
	Subject string `json:"subject"`
	HTML    string `json:"html"`
}

// SendOrderConfirmation renders and posts the confirmation email.
func (s *ResendSender) SendOrderConfirmation(ctx context.Context, c OrderConfirmation) error {
	if c.CustomerEmail == "" {
		return errors.New("no recipient email")
	}

	body, err := json.Marshal(resendRequest{
		From:    s.from,
		To:      c.CustomerEmail,
		Subject: fmt.Sprintf("Conferma Ordine #%s", c.OrderID),
		HTML:    renderConfirmation(c),
	})
	if err != nil {
		return errors.Wrap(err, "marshal email")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/emails", bytes.NewReader(body))
	if err != nil {
		return errors.Wrap(err, "build email request")
	}
	req.Header.Set("Authorization", "Bearer "+s.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.http.Do(req)
	if err != nil {
		return errors.Wrap(err, "send email")
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return errors.Errorf("email provider returned status %d", resp.StatusCode)
	}
	return nil
}

func renderConfirmation(c OrderConfirmation) string {
	var b bytes.Buffer
	name := c.CustomerName
	if name == "" {
		name = "cliente"
	}
	fmt.Fprintf(&b, "<h1>Grazie per il tuo ordine, %s!</h1>", html.EscapeString(name))
	fmt.Fprintf(&b, "<p>Ordine <strong>#%s</strong> confermato.</p><ul>", html.EscapeString(c.OrderID))
	for _, item := range c.Items {
		// Product names are admin-entered free text, never trusted as markup.
		fmt.Fprintf(&b, "<li>%s &times; %d &mdash; &euro;%s</li>", html.EscapeString(item.Name), item.Quantity, item.Price.StringFixed(2))
	}
	fmt.Fprintf(&b, "</ul><p>Totale: <strong>&euro;%s</strong></p>", c.Total.StringFixed(2))
	return b.String()
}
