// Command seed-db loads the catalog, a starter coupon set, and an API token
// into the database. It is idempotent: reruns upsert.
package main

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"os/signal"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/mieledautore/shop-backend/internal/repository"
)

type productJSON struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Stock       int             `json:"stock"`
	ImageURL    string          `json:"image_url"`
}

const upsertProductSQL = `INSERT INTO products (id, name, description, price, stock, is_active, image_url)
	VALUES ($1, $2, $3, $4, $5, TRUE, $6)
	ON CONFLICT (id) DO UPDATE SET
		name = EXCLUDED.name,
		description = EXCLUDED.description,
		price = EXCLUDED.price,
		stock = EXCLUDED.stock,
		is_active = TRUE,
		image_url = EXCLUDED.image_url,
		updated_at = now()`

const upsertCouponSQL = `INSERT INTO coupons (code, type, value, minimum_amount, description, is_active)
	VALUES ($1, $2, $3, $4, $5, TRUE)
	ON CONFLICT (code) DO UPDATE SET
		type = EXCLUDED.type,
		value = EXCLUDED.value,
		minimum_amount = EXCLUDED.minimum_amount,
		description = EXCLUDED.description,
		is_active = TRUE`

const insertTokenSQL = `INSERT INTO api_tokens (token_hash, user_id, name)
	VALUES ($1, $2, $3)
	ON CONFLICT (token_hash) DO NOTHING`

func main() {
	var (
		databaseURL  string
		productsFile string
		apiToken     string
		tokenPepper  string
		tokenUserID  string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&productsFile, "products-file", "db/seed/products.json", "path to products JSON file")
	flag.StringVar(&apiToken, "api-token", "", "API token to seed (or SHOP_SEED_API_TOKEN env)")
	flag.StringVar(&tokenPepper, "token-pepper", "", "HMAC pepper for token hashing (or SHOP_TOKEN_PEPPER env)")
	flag.StringVar(&tokenUserID, "token-user-id", "8e8c5e16-92e6-4b87-9a6c-0d1b1a4f9e10", "user id to attach to the seeded token")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	if apiToken == "" {
		apiToken = os.Getenv("SHOP_SEED_API_TOKEN")
	}
	if apiToken == "" {
		slog.Error("API token is required: set --api-token or SHOP_SEED_API_TOKEN")
		os.Exit(1)
	}
	if tokenPepper == "" {
		tokenPepper = os.Getenv("SHOP_TOKEN_PEPPER")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, productsFile, apiToken, tokenPepper, tokenUserID); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, databaseURL, productsFile, apiToken, pepper, userID string) error {
	slog.Info("connecting to database")

	pool, err := repository.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")

	if err := repository.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	if err := seedProducts(ctx, pool, productsFile); err != nil {
		return errors.Wrap(err, "seed products")
	}
	if err := seedCoupons(ctx, pool); err != nil {
		return errors.Wrap(err, "seed coupons")
	}
	if err := seedToken(ctx, pool, apiToken, pepper, userID); err != nil {
		return errors.Wrap(err, "seed api token")
	}

	return nil
}

func seedProducts(ctx context.Context, pool *pgxpool.Pool, productsFile string) error {
	slog.Info("reading products file", slog.String("path", productsFile))

	data, err := os.ReadFile(productsFile)
	if err != nil {
		return errors.Wrap(err, "read products file")
	}

	var products []productJSON
	if err := json.Unmarshal(data, &products); err != nil {
		return errors.Wrap(err, "parse products JSON")
	}

	slog.Info("upserting products", slog.Int("count", len(products)))

	for _, p := range products {
		_, err := pool.Exec(ctx, upsertProductSQL,
			p.ID, p.Name, p.Description, p.Price, p.Stock, p.ImageURL,
		)
		if err != nil {
			return errors.Wrapf(err, "upsert product %s", p.ID)
		}
		slog.Info("upserted product", slog.String("id", p.ID), slog.String("name", p.Name))
	}

	return nil
}

func seedCoupons(ctx context.Context, pool *pgxpool.Pool) error {
	slog.Info("seeding starter coupons")

	coupons := []struct {
		code        string
		couponType  string
		value       string
		minimum     string
		description string
	}{
		{"BENVENUTO10", "percentage", "10", "0", "Benvenuto: 10% di sconto"},
		{"MIELE5", "fixed_amount", "5.00", "30.00", "5€ di sconto sopra i 30€"},
		{"SPEDIZIONEGRATIS", "free_shipping", "0", "0", "Spedizione gratuita"},
	}

	for _, c := range coupons {
		_, err := pool.Exec(ctx, upsertCouponSQL,
			c.code, c.couponType,
			decimal.RequireFromString(c.value),
			decimal.RequireFromString(c.minimum),
			c.description,
		)
		if err != nil {
			return errors.Wrapf(err, "upsert coupon %s", c.code)
		}
		slog.Info("upserted coupon", slog.String("code", c.code))
	}

	return nil
}

func seedToken(ctx context.Context, pool *pgxpool.Pool, token, pepper, userID string) error {
	slog.Info("seeding api token")

	mac := hmac.New(sha256.New, []byte(pepper))
	mac.Write([]byte(token))
	hash := hex.EncodeToString(mac.Sum(nil))

	_, err := pool.Exec(ctx, insertTokenSQL, hash, userID, "seeded frontend token")
	if err != nil {
		return errors.Wrap(err, "insert token")
	}
	return nil
}
