// Package app wires configuration, storage and the form controller together
// for the command line and the HTTP server.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"crm-clients/config"
	"crm-clients/events"
	"crm-clients/form"
	"crm-clients/logger"
	"crm-clients/models"
	"crm-clients/notify"
	"crm-clients/registry"
	"crm-clients/utils"
)

type App struct {
	Config   config.Config
	Store    *models.GormRepository
	Registry *registry.Registry
	Form     *form.Controller

	closers []func() error
}

// Open opens the record store and loads the registry. A store that cannot be
// opened is reported once through notifier and returned as an error.
func Open(ctx context.Context, cfg config.Config, notifier notify.Notifier) (*App, error) {
	log := logger.From(ctx)

	store, err := models.Open(ctx, models.Options{
		Driver: cfg.Storage.Driver,
		Path:   cfg.Storage.Path,
		DSN:    cfg.Storage.DSN,
	})
	if err != nil {
		log.Error("failed to open record store", zap.String("driver", cfg.Storage.Driver), zap.Error(err))
		utils.CaptureError(err, map[string]interface{}{"op": "open", "driver": cfg.Storage.Driver})
		notifier.Notify(form.MsgStorageUnavailable, notify.Error)
		return nil, err
	}

	a := &App{
		Config:   cfg,
		Store:    store,
		Registry: registry.New(),
	}
	a.closers = append(a.closers, store.Close)

	publisher := a.publisher(log)
	a.Form = form.New(store, a.Registry, notifier, form.WithPublisher(publisher))

	// load failures are already notified; the form still works against an empty list
	_ = a.Form.Reload(ctx)
	log.Info("record store ready", zap.String("driver", cfg.Storage.Driver), zap.Int("clients", a.Registry.Len()))
	return a, nil
}

func (a *App) publisher(log *zap.Logger) events.Publisher {
	if a.Config.Kafka.Broker == "" {
		return events.Nop{}
	}
	producer, err := utils.NewKafkaProducer(a.Config.Kafka.Broker)
	if err != nil {
		log.Warn("kafka unavailable, client events disabled", zap.Error(err))
		return events.Nop{}
	}
	pub := events.NewKafkaPublisher(producer, a.Config.Kafka.Topic)
	// runs before the store closes, since closers run in reverse
	a.closers = append(a.closers, pub.Close)
	return pub
}

// Close releases everything Open acquired, last acquired first.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// NewFeed builds the listable notification backend the HTTP UI reads from.
// The returned func closes any connection the feed holds.
func NewFeed(ctx context.Context, cfg config.Config) (notify.Feed, func() error, error) {
	switch cfg.Notify.Backend {
	case "redis":
		client, err := connectRedis(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		return notify.NewRedis(client, cfg.Notify.TTL), client.Close, nil
	default:
		return notify.NewMemory(cfg.Notify.TTL), func() error { return nil }, nil
	}
}

func connectRedis(ctx context.Context, cfg config.Config) (utils.RedisClient, error) {
	const (
		maxRetries = 5
		retryDelay = 3 * time.Second
	)

	var lastErr error
	for i := 0; i < maxRetries; i++ {
		client, err := utils.NewRedisClient(cfg.Redis.Host, cfg.Redis.Password)
		if err == nil {
			return client, nil
		}
		lastErr = err
		logger.From(ctx).Warn("failed to connect to redis", zap.Int("attempt", i+1), zap.Error(err))
		if i == maxRetries-1 {
			break
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(retryDelay):
		}
	}
	return nil, fmt.Errorf("redis unavailable after %d attempts: %w", maxRetries, lastErr)
}

// feedNotifier logs and counts every notification and keeps it in feed.
type feedNotifier struct {
	notify.Notifier
	notify.Feed
}

func (f feedNotifier) Notify(message string, severity notify.Severity) {
	f.Notifier.Notify(message, severity)
}

// withLogging decorates feed without losing its Active method.
func withLogging(feed notify.Feed) notify.Feed {
	return feedNotifier{Notifier: notify.WithLogging(feed), Feed: feed}
}
