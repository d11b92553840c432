package main

import (
	"fmt"
	"log"
	"os"
	"time"

	"marketplace-service/internal/auth"
	"marketplace-service/internal/config"
	"marketplace-service/internal/infra/database"
	"marketplace-service/internal/infra/gateway"
	"marketplace-service/internal/infra/rabbitmq"
	"marketplace-service/internal/realtime"
	"marketplace-service/internal/repository/gormstore"
	"marketplace-service/internal/services"

	"github.com/go-redis/redis/v8"
	goredis "github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

func main() {
	root := &cobra.Command{
		Use:   "marketplace",
		Short: "Marketplace API with gateway payment reconciliation",
		// Running the binary without a subcommand starts the API.
		RunE: runServe,
	}

	root.AddCommand(serveCmd())
	root.AddCommand(migrateCmd())
	root.AddCommand(createAdminCmd())
	root.AddCommand(paymentStatusCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// openDB is swapped in tests.
var openDB = database.Open

// app holds everything the subcommands share.
type app struct {
	cfg *config.Config
	db  *gorm.DB

	tokens        *auth.Tokens
	notifications *services.NotificationService
	payments      *services.PaymentService
	orders        *services.OrderService
	products      *services.ProductService
	users         *services.UserService

	hub   *realtime.Hub
	relay *realtime.RedisRelay

	closers []func()
}

func newApp(cfg *config.Config, migrate bool) (*app, error) {
	db, err := openDB(cfg)
	if err != nil {
		return nil, fmt.Errorf("db: connect: %w", err)
	}

	a := &app{cfg: cfg, db: db, hub: realtime.NewHub()}
	// closers run in reverse, so the pool is released last
	if sqlDB, err := db.DB(); err == nil {
		a.closers = append(a.closers, func() { sqlDB.Close() })
	}

	if migrate {
		if err := database.Migrate(db); err != nil {
			a.Close()
			return nil, fmt.Errorf("db: migrate: %w", err)
		}
	}

	if cfg.RedisHost != "" {
		rdb := goredis.NewClient(&goredis.Options{Addr: cfg.RedisHost + ":6379"})
		a.relay = realtime.NewRedisRelay(a.hub, rdb, cfg.NotifyChannel)
		a.closers = append(a.closers, func() { rdb.Close() })
	}

	var publisher rabbitmq.PublisherInterface = rabbitmq.Discard{}
	if cfg.RabbitMQURL != "" {
		p, err := rabbitmq.NewPublisher(cfg.RabbitMQURL, cfg.Exchange)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to init publisher: %w", err)
		}
		publisher = p
		a.closers = append(a.closers, func() { p.Close() })
	} else {
		log.Println("RABBITMQ_URL not set, domain events are not published")
	}

	orderRepo := gormstore.NewOrderRepository(db)
	userRepo := gormstore.NewUserRepository(db)

	a.tokens = auth.NewTokens(cfg.JWTSecret, cfg.JWTTTL)
	a.notifications = services.NewNotificationService(gormstore.NewNotificationRepository(db), a.registry())
	a.users = services.NewUserService(userRepo, a.tokens, a.notifications)
	a.payments = services.NewPaymentService(
		gormstore.NewPaymentRepository(db),
		orderRepo,
		userRepo,
		gateway.NewClient(cfg.CinetPay),
		a.notifications,
		publisher,
		cfg.CinetPay.Currency,
	)
	productRepo := gormstore.NewProductRepository(db)
	a.orders = services.NewOrderService(orderRepo, productRepo, a.notifications, publisher, cfg.ShippingFee)
	a.products = services.NewProductService(productRepo)

	if cfg.RedisHost != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr:         cfg.RedisHost + ":6379",
			DB:           0,
			PoolSize:     200,
			MinIdleConns: 20,
			DialTimeout:  2 * time.Second,
			ReadTimeout:  500 * time.Millisecond,
			WriteTimeout: 500 * time.Millisecond,
		})
		a.orders.SetRedisClient(redisClient)
		a.products.SetRedisClient(redisClient)
		a.closers = append(a.closers, func() { redisClient.Close() })
	}

	return a, nil
}

// registry is the relay when Redis is configured so pushes reach users connected to other
// instances.
func (a *app) registry() realtime.Registry {
	if a.relay != nil {
		return a.relay
	}
	return a.hub
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}
