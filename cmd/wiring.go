package main

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/tailorreach/internal/config"
	"github.com/sells-group/tailorreach/internal/drafting"
	"github.com/sells-group/tailorreach/internal/events"
	"github.com/sells-group/tailorreach/internal/llm"
	"github.com/sells-group/tailorreach/internal/onboarding"
	"github.com/sells-group/tailorreach/internal/runlock"
	"github.com/sells-group/tailorreach/internal/scoring"
	"github.com/sells-group/tailorreach/internal/store"
	"github.com/sells-group/tailorreach/pkg/anthropic"
)

func initStore(ctx context.Context, c *config.Config) (store.Store, error) {
	switch c.Store.Driver {
	case "sqlite":
		dsn := c.Store.DatabaseURL
		if dsn == "" {
			dsn = "tailorreach.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, c.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: c.Store.MaxConns,
			MinConns: c.Store.MinConns,
		})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", c.Store.Driver)
	}
}

// initLocker returns a Redis-backed run lock when redis.addr is set and an
// in-process one otherwise.
func initLocker(ctx context.Context, c *config.Config) (runlock.Locker, func() error, error) {
	if c.Redis.Addr == "" {
		return runlock.NewMemory(), func() error { return nil }, nil
	}
	r := runlock.NewRedis(redis.NewClient(&redis.Options{
		Addr:     c.Redis.Addr,
		Password: c.Redis.Password,
		DB:       c.Redis.DB,
	}))
	if err := r.Ping(ctx); err != nil {
		_ = r.Close()
		return nil, nil, err
	}
	return r, r.Close, nil
}

// env holds the wired services shared by serve and score.
type env struct {
	Store      store.Store
	Gateway    *llm.Gateway
	Scoring    *scoring.Service
	Drafter    *drafting.Drafter
	Onboarding *onboarding.Service
	Publisher  events.Publisher

	closers []func() error
}

func initEnv(ctx context.Context, c *config.Config) (*env, error) {
	st, err := initStore(ctx, c)
	if err != nil {
		return nil, eris.Wrap(err, "init store")
	}
	e := &env{Store: st, closers: []func() error{st.Close}}

	locker, closeLocker, err := initLocker(ctx, c)
	if err != nil {
		e.Close()
		return nil, eris.Wrap(err, "init run lock")
	}
	e.closers = append(e.closers, closeLocker)

	e.Publisher = events.New(c.Kafka.Brokers, c.Kafka.Topic)
	e.closers = append(e.closers, e.Publisher.Close)

	scorerCfg, err := scoring.ScorerConfigFromConfig(c)
	if err != nil {
		e.Close()
		return nil, err
	}

	e.Gateway = llm.New(anthropic.NewClient(c.Anthropic.Key, c.Anthropic.BaseURL), llm.OptionsFromConfig(c))
	e.Scoring = scoring.NewService(st, scoring.NewScorer(e.Gateway, scorerCfg), locker,
		time.Duration(c.Redis.LockTTLSecs)*time.Second, e.Publisher)
	e.Drafter = drafting.New(st, e.Gateway, drafting.ConfigFromConfig(c), e.Publisher)
	e.Onboarding = onboarding.New(st, e.Gateway, onboarding.ConfigFromConfig(c))

	zap.L().Debug("services initialized",
		zap.String("store", c.Store.Driver),
		zap.Bool("redis_lock", c.Redis.Addr != ""),
		zap.Int("kafka_brokers", len(c.Kafka.Brokers)),
	)
	return e, nil
}

// Close releases resources in reverse order of acquisition.
func (e *env) Close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		if err := e.closers[i](); err != nil {
			zap.L().Warn("close failed", zap.Error(err))
		}
	}
}
