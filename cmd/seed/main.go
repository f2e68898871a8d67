// Package main seeds a demo table through a tracking session: it inserts a
// batch of products in one transaction, then reprices one and removes another
// in a second transaction.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"

	"trackdb/internal/core/entity"
	"trackdb/internal/dbo"
	"trackdb/internal/infrastructure/storage/postgres"
	"trackdb/internal/session"
	"trackdb/pkg/logger"
)

// Product is the demo payload.
type Product struct {
	entity.BaseEntity
	SKU   string          `db:"sku"`
	Name  string          `db:"name"`
	Price decimal.Decimal `db:"price"`
}

const productsDDL = `
CREATE TABLE IF NOT EXISTS demo_products (
	id      uuid PRIMARY KEY,
	version integer NOT NULL,
	sku     text NOT NULL UNIQUE,
	name    text NOT NULL,
	price   numeric(12,2) NOT NULL
)`

func main() {
	log, err := logger.New(logger.Config{
		Level:       getEnv("LOG_LEVEL", "info"),
		Development: getEnv("APP_ENV", "development") == "development",
	})
	if err != nil {
		fmt.Printf("failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	ctx := logger.WithLogger(context.Background(), log)

	pool, err := postgres.NewPool(ctx, postgres.DefaultPoolConfig(mustEnv("DATABASE_URL")))
	if err != nil {
		logger.Fatal(ctx, "failed to connect to database", "error", err)
	}
	defer pool.Close()

	if _, err := pool.Exec(ctx, productsDDL); err != nil {
		logger.Fatal(ctx, "failed to create demo table", "error", err)
	}

	txOpts := postgres.DefaultTxOptions()
	txOpts.StatementTimeout = getEnvDuration("DB_STATEMENT_TIMEOUT", txOpts.StatementTimeout)
	txm := postgres.NewTxManager(pool, txOpts)

	sess := session.New(txm, session.Config{Name: "seed", Logger: log})
	defer sess.Close()
	session.Register[Product](sess, session.NewTableMapper[Product]("demo_products"))

	products, err := seedProducts(ctx, sess, getEnvInt("SEED_PRODUCTS", 5))
	if err != nil {
		logger.Fatal(ctx, "failed to seed products", "error", err)
	}
	defer func() {
		for _, p := range products {
			p.Release()
		}
	}()
	logger.Info(ctx, "products inserted", "count", len(products), "flush", sess.LastFlush())

	if err := reviseProducts(ctx, sess, products); err != nil {
		logger.Fatal(ctx, "failed to revise products", "error", err)
	}
	logger.Info(ctx, "products revised", "flush", sess.LastFlush())

	pool.LogStats(ctx)
}

func seedProducts(ctx context.Context, sess *session.Session, n int) ([]*dbo.Ptr[Product], error) {
	batch := time.Now().UTC().Format("20060102150405")
	var products []*dbo.Ptr[Product]

	err := sess.RunInTransaction(ctx, func(ctx context.Context) error {
		for i := 1; i <= n; i++ {
			p, err := session.Add(sess, &Product{
				SKU:   fmt.Sprintf("SKU-%s-%03d", batch, i),
				Name:  fmt.Sprintf("Demo product %d", i),
				Price: decimal.New(int64(i)*250, -2),
			})
			if err != nil {
				return fmt.Errorf("add product %d: %w", i, err)
			}
			products = append(products, p)
		}
		return nil
	})
	if err != nil {
		for _, p := range products {
			p.Release()
		}
		return nil, err
	}
	return products, nil
}

// reviseProducts raises the first product's price by 10% and removes the last one.
func reviseProducts(ctx context.Context, sess *session.Session, products []*dbo.Ptr[Product]) error {
	if len(products) < 2 {
		return nil
	}
	return sess.RunInTransaction(ctx, func(ctx context.Context) error {
		first, err := session.Load[Product](ctx, sess, products[0].ID())
		if err != nil {
			return err
		}
		defer first.Release()

		v, err := first.Modify()
		if err != nil {
			return err
		}
		v.Price = v.Price.Mul(decimal.RequireFromString("1.10")).Round(2)

		return products[len(products)-1].Remove()
	})
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func mustEnv(key string) string {
	value := os.Getenv(key)
	if value == "" {
		fmt.Printf("required environment variable %s not set\n", key)
		os.Exit(1)
	}
	return value
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var result int
		if _, err := fmt.Sscanf(value, "%d", &result); err == nil {
			return result
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
