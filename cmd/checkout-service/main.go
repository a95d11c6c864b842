// cmd/checkout-service/main.go
package main

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"vertex/internal/pkg/bootstrap"
	"vertex/internal/pkg/httpclient"
	"vertex/internal/pkg/logger"
	"vertex/internal/pkg/mq"
	pkgredis "vertex/internal/pkg/redis"
	"vertex/internal/pkg/zookeeper"
	"vertex/internal/service/checkout/application"
	"vertex/internal/service/checkout/infrastructure"
	"vertex/internal/service/checkout/interfaces"
)

const serviceName = "checkout-service"

func main() {
	if err := bootstrap.Init(); err != nil {
		logger.Logger.Fatal().Err(err).Msg("failed to load configuration")
	}
	cfg := bootstrap.GetCurrentConfig()
	tracer := otel.Tracer(serviceName)

	// MySQL
	db, err := gorm.Open(mysql.Open(cfg.Infra.Mysql.DSN), &gorm.Config{})
	if err != nil {
		logger.Logger.Fatal().Err(err).Msg("failed to connect to mysql")
	}
	if err := db.AutoMigrate(
		&infrastructure.ProductModel{},
		&infrastructure.PromotionModel{},
		&infrastructure.PromotionUsageModel{},
		&infrastructure.OrderModel{},
		&infrastructure.OrderItemModel{},
	); err != nil {
		logger.Logger.Fatal().Err(err).Msg("failed to migrate schema")
	}

	// Redis
	redisClient, err := pkgredis.NewClient(cfg.Infra.Redis.Addrs)
	if err != nil {
		logger.Logger.Fatal().Err(err).Msg("failed to connect to redis")
	}
	reservations, err := infrastructure.NewRedisReservationStore(redisClient)
	if err != nil {
		logger.Logger.Fatal().Err(err).Msg("failed to register reservation scripts")
	}
	limiter, err := infrastructure.NewRedisRateLimiter(redisClient)
	if err != nil {
		logger.Logger.Fatal().Err(err).Msg("failed to register rate limit script")
	}

	// Kafka
	notifyWriter := mq.NewKafkaWriter(cfg.Infra.Kafka.Brokers, cfg.Infra.Kafka.NotificationTopic)
	auditWriter := mq.NewKafkaWriter(cfg.Infra.Kafka.Brokers, cfg.Infra.Kafka.AuditTopic)
	notifier := infrastructure.NewKafkaNotificationProducer(notifyWriter)
	audit := infrastructure.NewKafkaAuditSink(auditWriter)

	// ZooKeeper 领导者锁（可选）：多实例部署时只有持锁者执行清扫
	var sweepLock application.LeaderLock
	var zkConn *zookeeper.Conn
	if cfg.Infra.Zookeeper.Enabled {
		zkConn, err = zookeeper.Connect(cfg.Infra.Zookeeper.Servers, 5*time.Second)
		if err != nil {
			logger.Logger.Fatal().Err(err).Msg("failed to connect to zookeeper")
		}
		lock, err := zookeeper.NewLeaderLock(zkConn, "reservation-sweeper")
		if err != nil {
			logger.Logger.Fatal().Err(err).Msg("failed to initialize sweeper leader lock")
		}
		sweepLock = lock
	}

	rules, err := infrastructure.NewCelRuleEngine()
	if err != nil {
		logger.Logger.Fatal().Err(err).Msg("failed to initialize rule engine")
	}

	gateway := infrastructure.NewHTTPPaymentGateway(
		httpclient.NewClient(tracer),
		cfg.Checkout.Gateway.BaseURL,
		time.Duration(cfg.Checkout.Gateway.TimeoutMS)*time.Millisecond,
	)

	guard := application.NewRateGuard(limiter, audit, application.GuardConfig{
		OrdersPerWindow:  cfg.Checkout.RateLimit.OrdersPerWindow,
		OrdersWindow:     time.Duration(cfg.Checkout.RateLimit.OrdersWindowMinutes) * time.Minute,
		IntentsPerWindow: cfg.Checkout.RateLimit.IntentsPerWindow,
		IntentsWindow:    time.Duration(cfg.Checkout.RateLimit.IntentsWindowMinutes) * time.Minute,
	})

	service := application.NewCheckoutService(application.Deps{
		Catalog:      infrastructure.NewGormCatalogRepository(db),
		Promotions:   infrastructure.NewGormPromotionRepository(db),
		Orders:       infrastructure.NewGormOrderRepository(db),
		Reservations: reservations,
		Gateway:      gateway,
		Notifier:     notifier,
		Audit:        audit,
		Rules:        rules,
		Pricing:      infrastructure.ConfigPricingSource{},
		Guard:        guard,
		Tracer:       tracer,

		CallbackSecret: cfg.Checkout.Gateway.CallbackSecret,
		Currency:       cfg.Checkout.Gateway.Currency,
		ReservationTTL: time.Duration(cfg.Checkout.ReservationTTLMinutes) * time.Minute,
	})

	sweeper := application.NewSweeper(reservations, sweepLock, tracer,
		time.Duration(cfg.Checkout.Sweep.IntervalSeconds)*time.Second,
		cfg.Checkout.Sweep.Batch)

	handler := interfaces.NewCheckoutHandler(service, audit)

	bootstrap.StartService(bootstrap.AppInfo{
		ServiceName: serviceName,
		Port:        cfg.Server.Port,
		RegisterHandlers: func(appCtx bootstrap.AppCtx) {
			handler.RegisterRoutes(appCtx.Mux)
		},
		Background: sweeper.Run,
		OnShutdown: func(ctx context.Context) {
			if err := notifyWriter.Close(); err != nil {
				logger.Logger.Warn().Err(err).Msg("error closing notification writer")
			}
			if err := auditWriter.Close(); err != nil {
				logger.Logger.Warn().Err(err).Msg("error closing audit writer")
			}
			if err := redisClient.Close(); err != nil {
				logger.Logger.Warn().Err(err).Msg("error closing redis client")
			}
			if zkConn != nil {
				zkConn.Close()
			}
			if sqlDB, err := db.DB(); err == nil {
				_ = sqlDB.Close()
			}
		},
	})
}
