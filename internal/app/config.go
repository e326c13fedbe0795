package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
)

// Config holds the complete application configuration, loadable from
// environment variables (SHOP_ prefix), flags, or YAML config files.
type Config struct {
	Addr        string `default:"0.0.0.0:8080" usage:"API server listen address"`
	DatabaseURL string `usage:"PostgreSQL connection URL (SHOP_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	RedisAddr   string `default:"" usage:"Redis address for the shared idempotency/rate-limit ledger; empty uses in-process memory" flag:"redis-addr"`
	TokenPepper string `usage:"HMAC pepper for API token hashing (SHOP_TOKEN_PEPPER)" flag:"token-pepper"`

	Stripe   StripeConfig
	Email    EmailConfig
	Checkout CheckoutConfig
	Webhook  WebhookConfig
	CORS     CORSConfig
	Graceful GracefulConfig
}

// StripeConfig holds payment processor credentials.
type StripeConfig struct {
	SecretKey     string `usage:"Stripe secret key (SHOP_STRIPE_SECRET_KEY)" flag:"stripe-secret-key"`
	WebhookSecret string `usage:"Stripe webhook endpoint secret (SHOP_STRIPE_WEBHOOK_SECRET)" flag:"stripe-webhook-secret"`
	BaseURL       string `default:"" usage:"Override Stripe API base URL (tests only)" flag:"stripe-base-url"`
}

// EmailConfig holds the transactional email provider settings. An empty API
// key disables sending.
type EmailConfig struct {
	ResendAPIKey string `default:"" usage:"Resend API key; empty disables email" flag:"resend-api-key"`
	From         string `default:"ordini@mieledautore.it" usage:"Confirmation email sender address" flag:"email-from"`
}

// CheckoutConfig holds pricing parameters and checkout limits. Monetary
// values are decimal strings to avoid float parsing.
type CheckoutConfig struct {
	FreeShippingThreshold string        `default:"50.00" usage:"Subtotal at which shipping becomes free" flag:"free-shipping-threshold"`
	FlatShippingFee       string        `default:"5.99" usage:"Flat shipping fee below the threshold" flag:"flat-shipping-fee"`
	MaxTotal              string        `default:"999999.99" usage:"Upper bound on a single order total" flag:"max-total"`
	Currency              string        `default:"eur" usage:"Checkout currency"`
	SuccessURL            string        `default:"https://mieledautore.it/ordine/successo" usage:"Redirect after successful payment" flag:"success-url"`
	CancelURL             string        `default:"https://mieledautore.it/carrello" usage:"Redirect after cancelled payment" flag:"cancel-url"`
	RateLimit             int           `default:"10" usage:"Checkout attempts allowed per user per window" flag:"checkout-rate-limit"`
	RateWindow            time.Duration `default:"1m" usage:"Checkout rate limit window" flag:"checkout-rate-window"`
}

// WebhookConfig controls webhook verification and reconciliation.
type WebhookConfig struct {
	SignatureTolerance time.Duration `default:"5m" usage:"Max age of a signed webhook timestamp" flag:"signature-tolerance"`
	LowStockThreshold  int           `default:"5" usage:"Remaining stock at which an alert is logged" flag:"low-stock-threshold"`
	EventRetention     time.Duration `default:"24h" usage:"How long processed event ids are kept" flag:"event-retention"`
	PruneInterval      time.Duration `default:"1h" usage:"How often old event ids are pruned" flag:"prune-interval"`
}

// CORSConfig controls cross-origin access.
type CORSConfig struct {
	Origins []string `default:"*" usage:"Allowed CORS origins"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// LoadConfig loads configuration from environment variables, YAML config
// files, and applies platform-specific defaults.
func LoadConfig() (*Config, error) {
	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "SHOP",
		Files:     []string{"config.yaml", "/etc/shop/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if cfg.DatabaseURL == "" {
		return nil, errors.New("database URL is required: set SHOP_DATABASE_URL or DATABASE_URL")
	}
	if cfg.Stripe.SecretKey == "" {
		return nil, errors.New("SHOP_STRIPE_SECRET_KEY is required")
	}
	if cfg.Stripe.WebhookSecret == "" {
		return nil, errors.New("SHOP_STRIPE_WEBHOOK_SECRET is required")
	}

	return &cfg, nil
}

// applyPlatformDefaults maps platform-provided environment variables
// (Railway, Render, etc.) that use standard names like DATABASE_URL and PORT
// to the application's SHOP_-prefixed configuration.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		if v := os.Getenv("DATABASE_URL"); v != "" {
			c.DatabaseURL = v
		}
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == "0.0.0.0:8080" {
		c.Addr = "0.0.0.0:" + port
	}
}
