// Command seed-db loads the demo catalog, the standard discount codes, and
// development API keys into the database. Safe to run repeatedly: every
// insert is an upsert keyed on the natural identifier.
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
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/ministore/api/internal/storage/postgres"
)

type productJSON struct {
	ID       string          `json:"id"`
	Name     string          `json:"name"`
	Price    decimal.Decimal `json:"price"`
	Category string          `json:"category"`
	ImageURL string          `json:"imageUrl"`
	Stock    int             `json:"stock"`
}

func main() {
	var (
		databaseURL  string
		productsFile string
		apiKey       string
		adminKey     string
		pepper       string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&productsFile, "products-file", "db/seed/products.json", "path to products JSON file")
	flag.StringVar(&apiKey, "api-key", "", "customer API key to seed (or MINISTORE_SEED_API_KEY env)")
	flag.StringVar(&adminKey, "admin-key", "", "admin API key to seed (or MINISTORE_SEED_ADMIN_KEY env)")
	flag.StringVar(&pepper, "api-key-pepper", "", "HMAC pepper for API key hashing (or MINISTORE_API_KEY_PEPPER env)")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	if apiKey == "" {
		apiKey = os.Getenv("MINISTORE_SEED_API_KEY")
	}
	if adminKey == "" {
		adminKey = os.Getenv("MINISTORE_SEED_ADMIN_KEY")
	}
	if apiKey == "" && adminKey == "" {
		slog.Error("at least one API key is required: set --api-key or --admin-key")
		os.Exit(1)
	}
	if pepper == "" {
		pepper = os.Getenv("MINISTORE_API_KEY_PEPPER")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, productsFile, apiKey, adminKey, pepper); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, databaseURL, productsFile, apiKey, adminKey, pepper string) error {
	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	if err := seedProducts(ctx, pool, productsFile); err != nil {
		return errors.Wrap(err, "seed products")
	}
	if err := seedDiscountCodes(ctx, pool); err != nil {
		return errors.Wrap(err, "seed discount codes")
	}
	if apiKey != "" {
		if err := seedAPIKey(ctx, pool, apiKey, pepper, "demo-customer", "customer", nil); err != nil {
			return errors.Wrap(err, "seed customer key")
		}
	}
	if adminKey != "" {
		if err := seedAPIKey(ctx, pool, adminKey, pepper, "demo-admin", "admin", []string{"admin"}); err != nil {
			return errors.Wrap(err, "seed admin key")
		}
	}

	return nil
}

const upsertProductSQL = `INSERT INTO products (id, name, price, category, image_url, stock)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (id) DO UPDATE SET
	name = EXCLUDED.name, price = EXCLUDED.price, category = EXCLUDED.category,
	image_url = EXCLUDED.image_url, stock = EXCLUDED.stock`

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

	for _, p := range products {
		if _, err := pool.Exec(ctx, upsertProductSQL,
			p.ID, p.Name, p.Price, p.Category, p.ImageURL, p.Stock,
		); err != nil {
			return errors.Wrapf(err, "upsert product %s", p.ID)
		}
	}

	slog.Info("seeded products", slog.Int("count", len(products)))
	return nil
}

type seedCode struct {
	code        string
	kind        string
	value       int64
	minOrder    int64
	maxDiscount int64
	usageLimit  int
}

const upsertCodeSQL = `INSERT INTO discount_codes
	(id, code, discount_type, discount_value, min_order_amount, max_discount_amount,
	 start_date, end_date, usage_limit)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
ON CONFLICT (code) DO UPDATE SET
	discount_type = EXCLUDED.discount_type, discount_value = EXCLUDED.discount_value,
	min_order_amount = EXCLUDED.min_order_amount,
	max_discount_amount = EXCLUDED.max_discount_amount,
	start_date = EXCLUDED.start_date, end_date = EXCLUDED.end_date,
	usage_limit = EXCLUDED.usage_limit, updated_at = now()`

func seedDiscountCodes(ctx context.Context, pool *pgxpool.Pool) error {
	codes := []seedCode{
		{code: "WELCOME10", kind: "PERCENTAGE", value: 10, minOrder: 100000, maxDiscount: 50000, usageLimit: 100},
		{code: "SAVE50K", kind: "FIXED_AMOUNT", value: 50000, minOrder: 500000, usageLimit: 50},
		{code: "SUMMER20", kind: "PERCENTAGE", value: 20, minOrder: 200000, maxDiscount: 100000},
		{code: "SAVE30K", kind: "FIXED_AMOUNT", value: 30000, minOrder: 300000, usageLimit: 200},
	}

	start := time.Now().Add(-24 * time.Hour)
	end := time.Now().Add(90 * 24 * time.Hour)

	for _, c := range codes {
		if _, err := pool.Exec(ctx, upsertCodeSQL,
			uuid.New().String(), c.code, c.kind,
			decimal.NewFromInt(c.value), decimal.NewFromInt(c.minOrder),
			decimal.NewFromInt(c.maxDiscount), start, end, c.usageLimit,
		); err != nil {
			return errors.Wrapf(err, "upsert code %s", c.code)
		}
	}

	slog.Info("seeded discount codes", slog.Int("count", len(codes)))
	return nil
}

const upsertAPIKeySQL = `INSERT INTO api_keys (id, key_hash, user_id, name, scopes)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (key_hash) DO UPDATE SET
	user_id = EXCLUDED.user_id, name = EXCLUDED.name,
	scopes = EXCLUDED.scopes, active = TRUE`

func seedAPIKey(ctx context.Context, pool *pgxpool.Pool, key, pepper, name, userID string, scopes []string) error {
	mac := hmac.New(sha256.New, []byte(pepper))
	mac.Write([]byte(key))
	hash := hex.EncodeToString(mac.Sum(nil))

	if scopes == nil {
		scopes = []string{}
	}
	if _, err := pool.Exec(ctx, upsertAPIKeySQL,
		uuid.New().String(), hash, userID, name, scopes,
	); err != nil {
		return errors.Wrap(err, "upsert api key")
	}

	slog.Info("seeded api key", slog.String("name", name), slog.String("user", userID))
	return nil
}
