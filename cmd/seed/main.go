package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/rand/v2"
	"os"
	"strings"

	_ "github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/rl1809/store-inventory/internal/adapter/storage"
	"github.com/rl1809/store-inventory/internal/config"
	"github.com/rl1809/store-inventory/internal/core/domain"
	"github.com/rl1809/store-inventory/internal/core/service"
	"github.com/rl1809/store-inventory/internal/platform/observability"
)

type sampleProduct struct {
	name        string
	description string
	price       string
}

var catalog = map[string][]sampleProduct{
	"Dogs": {
		{"Premium Dog Food", "High-quality dry food for adult dogs", "29.99"},
		{"Dog Collar", "Adjustable nylon collar with buckle", "12.99"},
		{"Dog Leash", "Durable 6-foot leather leash", "19.99"},
		{"Dog Bed", "Comfortable memory foam bed for medium-sized dogs", "49.99"},
		{"Dog Toys Bundle", "Set of 5 durable chew toys", "24.99"},
	},
	"Cats": {
		{"Premium Cat Food", "Grain-free dry food for indoor cats", "27.99"},
		{"Cat Litter Box", "Large covered litter box with filter", "34.99"},
		{"Cat Tree", "Multi-level cat tree with scratching posts", "89.99"},
		{"Cat Toys Set", "Interactive toys with catnip", "15.99"},
		{"Cat Grooming Kit", "Complete grooming set for cats", "22.99"},
	},
}

// Category order is fixed so SKUs are stable across runs.
var categories = []string{"Dogs", "Cats"}

var stores = []string{"store-1", "store-2", "store-3"}

type seeder struct {
	repo      service.Repository
	products  *service.ProductService
	inventory *service.InventoryService
	rng       *rand.Rand
}

type seedResult struct {
	products  int
	positions int
}

// run fills the catalog and gives every product a position in every store.
// Rows that already exist are left as they are, so reruns are safe.
func (s *seeder) run(ctx context.Context) (seedResult, error) {
	var result seedResult
	for _, category := range categories {
		for i, item := range catalog[category] {
			product, created, err := s.ensureProduct(ctx, category, i+1, item)
			if err != nil {
				return result, err
			}
			if created {
				result.products++
			}

			for _, storeID := range stores {
				_, err := s.inventory.InitializeStock(ctx, service.InitializeStockCommand{
					StoreID:   storeID,
					ProductID: product.ID,
					Quantity:  10 + s.rng.IntN(91),
					MinStock:  5 + s.rng.IntN(16),
				})
				switch {
				case err == nil:
					result.positions++
				case errors.Is(err, domain.ErrConflict):
				default:
					return result, fmt.Errorf("initialize %s in %s: %w", product.SKU, storeID, err)
				}
			}
		}
	}
	return result, nil
}

func (s *seeder) ensureProduct(ctx context.Context, category string, index int, item sampleProduct) (*domain.Product, bool, error) {
	sku := fmt.Sprintf("%s-%04d", strings.ToUpper(category[:3]), index)

	existing, err := s.repo.GetProductBySKU(ctx, sku)
	if err != nil {
		return nil, false, fmt.Errorf("lookup %s: %w", sku, err)
	}
	if existing != nil {
		return existing, false, nil
	}

	price := decimal.RequireFromString(item.price)
	product, err := s.products.Create(ctx, service.CreateProductCommand{
		Name:        item.name,
		Description: item.description,
		Category:    category,
		Price:       &price,
		SKU:         sku,
	})
	if err != nil {
		return nil, false, fmt.Errorf("create %s: %w", sku, err)
	}
	return product, true, nil
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	logger, err := observability.NewLogger(cfg.LogLevel, cfg.Development())
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger error: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	ctx := context.Background()
	repo, closeRepo, err := openRepository(ctx, cfg)
	if err != nil {
		logger.Fatal("failed to open database", zap.String("driver", cfg.DBDriver), zap.Error(err))
	}
	defer closeRepo()

	s := &seeder{
		repo:      repo,
		products:  service.NewProductService(repo, service.WithLogger(logger)),
		inventory: service.NewInventoryService(repo, storage.NewMemoryCache(), service.WithLogger(logger)),
		rng:       rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
	}
	result, err := s.run(ctx)
	if err != nil {
		logger.Fatal("seed failed", zap.Error(err))
	}

	logger.Info("seed complete",
		zap.Int("products_created", result.products),
		zap.Int("positions_created", result.positions),
		zap.Strings("stores", stores),
	)
}

func openRepository(ctx context.Context, cfg *config.Config) (service.Repository, func(), error) {
	switch cfg.DBDriver {
	case config.DriverMySQL:
		db, err := sql.Open("mysql", cfg.MySQLDSN)
		if err != nil {
			return nil, nil, err
		}
		if err := db.PingContext(ctx); err != nil {
			db.Close()
			return nil, nil, err
		}
		adapter := storage.NewMySQLAdapter(db)
		if err := adapter.Migrate(ctx); err != nil {
			adapter.Close()
			return nil, nil, err
		}
		return adapter, func() { adapter.Close() }, nil

	case config.DriverPostgres:
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, nil, err
		}
		adapter := storage.NewPostgresAdapter(pool)
		if err := adapter.Migrate(ctx); err != nil {
			adapter.Close()
			return nil, nil, err
		}
		return adapter, func() { adapter.Close() }, nil
	}
	return nil, nil, fmt.Errorf("seeding needs a persistent driver, got %q", cfg.DBDriver)
}
