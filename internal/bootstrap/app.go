package bootstrap

import (
	"context"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"cortex/internal/cache"
	"cortex/internal/config"
	"cortex/internal/model"
	mysqlClient "cortex/internal/platform/mysql"
	rabbitmqClient "cortex/internal/platform/rabbitmq"
	redisClient "cortex/internal/platform/redis"
	"cortex/internal/repository"
	"cortex/internal/worker"
)

type App struct {
	Config        *config.Config
	MySQL         *gorm.DB
	Redis         *redis.Client
	MQConn        *amqp.Connection
	HistoryCache  *cache.HistoryCache
	PersistWorker *worker.PersistWorker

	StartedAt time.Time
}

func New(ctx context.Context) (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config failed: %w", err)
	}

	mysqlDB, err := mysqlClient.New(ctx, cfg.MySQLDSN(),
		&model.User{},
		&model.Conversation{},
		&model.Message{},
		&model.Document{},
		&model.AuditLog{},
	)
	if err != nil {
		return nil, err
	}

	redisCli, err := redisClient.New(ctx, cfg.Redis)
	if err != nil {
		return nil, err
	}
	historyCache := cache.NewHistoryCache(
		redisCli,
		time.Duration(cfg.Redis.HistoryTTLSeconds)*time.Second,
		time.Duration(cfg.Redis.HistoryDirtyTTLSeconds)*time.Second,
	)

	mqConn, err := rabbitmqClient.New(ctx, cfg.RabbitMQ.URL)
	if err != nil {
		_ = redisCli.Close()
		return nil, err
	}

	persistWorker := worker.NewPersistWorker(
		mqConn,
		repository.NewMessageRepository(mysqlDB),
		repository.NewAuditLogRepository(mysqlDB),
		historyCache,
		cfg.RabbitMQ.PersistQueue,
	)
	if err := persistWorker.Start(ctx); err != nil {
		_ = mqConn.Close()
		_ = redisCli.Close()
		return nil, fmt.Errorf("start persist worker failed: %w", err)
	}

	return &App{
		Config:        cfg,
		MySQL:         mysqlDB,
		Redis:         redisCli,
		MQConn:        mqConn,
		HistoryCache:  historyCache,
		PersistWorker: persistWorker,
		StartedAt:     time.Now(),
	}, nil
}

func (a *App) Close() error {
	var closeErr error
	if a.PersistWorker != nil {
		a.PersistWorker.Close()
	}
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			closeErr = err
		}
	}
	if a.MQConn != nil {
		if err := a.MQConn.Close(); err != nil {
			closeErr = err
		}
	}
	if a.MySQL != nil {
		sqlDB, err := a.MySQL.DB()
		if err == nil {
			if err := sqlDB.Close(); err != nil {
				closeErr = err
			}
		}
	}
	return closeErr
}
