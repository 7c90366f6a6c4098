// Package consumer mirrors client mutation events into the search index.
package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"crm-clients/logger"
	"crm-clients/models"
	"crm-clients/utils"
)

// MessageReader is the part of *kafka.Reader the consumer uses.
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Options struct {
	Broker string
	Topic  string
	Group  string
	Index  string
}

type ClientConsumer struct {
	reader     MessageReader
	es         utils.ElasticsearchClient
	index      string
	retryDelay time.Duration
}

func NewClientConsumer(opts Options, es utils.ElasticsearchClient) *ClientConsumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers: []string{opts.Broker},
		Topic:   opts.Topic,
		GroupID: opts.Group,
		MaxWait: 10 * time.Second,
	})
	return newClientConsumer(reader, es, opts.Index)
}

func newClientConsumer(reader MessageReader, es utils.ElasticsearchClient, index string) *ClientConsumer {
	if index == "" {
		index = "clients"
	}
	return &ClientConsumer{
		reader:     reader,
		es:         es,
		index:      index,
		retryDelay: 5 * time.Second,
	}
}

// Run consumes until ctx is cancelled. Offsets are committed only after the
// event was applied to the index.
func (c *ClientConsumer) Run(ctx context.Context) error {
	log := logger.From(ctx)
	log.Info("starting client event consumer", zap.String("index", c.index))

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			log.Warn("kafka read error, will retry", zap.Error(err))
			if !sleep(ctx, c.retryDelay) {
				return nil
			}
			continue
		}

		if !c.apply(ctx, msg) {
			return nil
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			log.Warn("failed to commit offset", zap.Error(err))
		}
	}
}

// apply retries msg until it is applied or ctx ends. It reports false when ctx ended first.
func (c *ClientConsumer) apply(ctx context.Context, msg kafka.Message) bool {
	for {
		err := c.process(ctx, msg)
		if err == nil {
			return true
		}
		logger.From(ctx).Error("failed to apply client event",
			logger.Topic(msg.Topic), zap.Int64("offset", msg.Offset), zap.Error(err))
		utils.CaptureError(err, map[string]interface{}{"topic": msg.Topic, "offset": msg.Offset})
		if !sleep(ctx, c.retryDelay) {
			return false
		}
	}
}

func (c *ClientConsumer) Close() error {
	return c.reader.Close()
}

var errUnknownEvent = errors.New("unknown event type")

// process decodes msg and applies it. Undecodable messages and unknown event
// types are logged and skipped so they do not block the partition.
func (c *ClientConsumer) process(ctx context.Context, msg kafka.Message) error {
	var event models.ClientEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		logger.From(ctx).Warn("skipping undecodable message", zap.Int64("offset", msg.Offset), zap.Error(err))
		return nil
	}

	err := c.handle(ctx, event)
	if errors.Is(err, errUnknownEvent) {
		logger.From(ctx).Warn("skipping unknown event", logger.Event(event.Event))
		return nil
	}
	return err
}

func (c *ClientConsumer) handle(ctx context.Context, event models.ClientEvent) error {
	id := strconv.FormatUint(uint64(event.Data.ID), 10)
	log := logger.From(ctx).With(logger.Event(event.Event), logger.ClientID(event.Data.ID))

	switch event.Event {
	case models.EventClientCreated, models.EventClientUpdated:
		if err := c.es.IndexClient(ctx, c.index, id, event.Data); err != nil {
			return fmt.Errorf("index client %s: %w", id, err)
		}
	case models.EventClientDeleted:
		if err := c.es.DeleteClient(ctx, c.index, id); err != nil {
			return fmt.Errorf("delete client %s: %w", id, err)
		}
	default:
		return errUnknownEvent
	}

	log.Info("client event applied")
	return nil
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
