package gateway

import (
	"github.com/jvcardoso/proteamcare-billing/internal/config"
	gatewaydomain "github.com/jvcardoso/proteamcare-billing/internal/gateway/domain"
	"github.com/jvcardoso/proteamcare-billing/internal/gateway/pagbank"
	redis "github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("gateway",
	fx.Provide(
		newRedisClient,
		newSessionStore,
		fx.Annotate(
			newPagBankClient,
			fx.As(new(gatewaydomain.Client)),
		),
	),
)

func newPagBankClient(cfg config.Config, log *zap.Logger) (*pagbank.Client, error) {
	return pagbank.NewClient(cfg.PagBank, log)
}

func newRedisClient(cfg config.Config) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
}

func newSessionStore(client *redis.Client, cfg config.Config) *SessionStore {
	return NewSessionStore(client, cfg.Billing.SessionTTL)
}
