// Package events announces client mutations to other systems.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"crm-clients/logger"
	"crm-clients/models"
	"crm-clients/utils"
)

const DefaultTopic = "client_events"

type Publisher interface {
	Publish(ctx context.Context, event models.ClientEvent)
}

// Nop drops every event.
type Nop struct{}

func (Nop) Publish(context.Context, models.ClientEvent) {}

const queueSize = 256

// KafkaPublisher sends events one at a time from a single worker, so events
// for the same client reach the topic in the order they were published.
type KafkaPublisher struct {
	producer utils.KafkaProducer
	topic    string
	timeout  time.Duration

	mu     sync.RWMutex
	closed bool
	queue  chan models.ClientEvent
	done   chan struct{}
}

func NewKafkaPublisher(producer utils.KafkaProducer, topic string) *KafkaPublisher {
	if topic == "" {
		topic = DefaultTopic
	}
	p := &KafkaPublisher{
		producer: producer,
		topic:    topic,
		timeout:  5 * time.Second,
		queue:    make(chan models.ClientEvent, queueSize),
		done:     make(chan struct{}),
	}
	go p.run()
	return p
}

// Publish queues event for the worker; delivery failures are only logged.
// Events published after Close are dropped.
func (p *KafkaPublisher) Publish(_ context.Context, event models.ClientEvent) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		logger.L().Warn("publisher closed, client event dropped",
			logger.Event(event.Event), logger.ClientID(event.Data.ID))
		return
	}
	p.queue <- event
}

// Close drains the queue, then closes the producer.
func (p *KafkaPublisher) Close() error {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.queue)
	}
	p.mu.Unlock()

	<-p.done
	return p.producer.Close()
}

func (p *KafkaPublisher) run() {
	defer close(p.done)
	for event := range p.queue {
		p.send(event)
	}
}

func (p *KafkaPublisher) send(event models.ClientEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()

	payload, err := json.Marshal(event)
	if err != nil {
		logger.L().Error("failed to marshal client event", zap.Error(err))
		return
	}

	key := []byte(fmt.Sprintf("%d", event.Data.ID))
	if err := p.producer.SendMessage(ctx, p.topic, key, payload); err != nil {
		logger.L().Warn("failed to send client event",
			logger.Topic(p.topic), logger.Event(event.Event), logger.ClientID(event.Data.ID), zap.Error(err))
	}
}
