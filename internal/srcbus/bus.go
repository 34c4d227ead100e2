// Package srcbus carries the System Risk Controller's state-change
// announcements on a Watermill-backed publish/subscribe bus, so a component
// can follow SystemState transitions by subscribing instead of holding a
// reference to the controller.
package srcbus

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-nats/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	natsgo "github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/abdoElHodaky/tradsys-control-plane/internal/srcstate"
)

const topicStateTransition = "state_transition"

// StateChangeHandler is notified of every committed StateTransition.
type StateChangeHandler func(srcstate.StateTransition)

// Config selects the transport backing the bus.
type Config struct {
	Driver      string // "gochannel" or "nats"
	NatsURL     string
	TopicPrefix string
}

// Bus publishes StateTransitions and fans them out to subscribers. The
// transport is swappable: an in-process gochannel for single-binary
// deployments, or NATS when the control plane's components run as
// separate processes sharing a broker.
type Bus struct {
	publisher  message.Publisher
	subscriber message.Subscriber
	router     *message.Router
	prefix     string
	logger     *zap.Logger

	mu       sync.RWMutex
	handlers []StateChangeHandler
}

// New builds a Bus per cfg.Driver. A NATS connection failure at
// construction time is returned rather than silently falling back, since a
// misconfigured broker for a safety-critical bus should fail loud at
// bootstrap.
func New(cfg Config, logger *zap.Logger) (*Bus, error) {
	wmLogger := watermill.NewStdLogger(false, false)

	var pub message.Publisher
	var sub message.Subscriber

	switch cfg.Driver {
	case "nats":
		pubConf := nats.PublisherConfig{URL: cfg.NatsURL, Marshaler: nats.GobMarshaler{}}
		publisher, err := nats.NewPublisher(pubConf, wmLogger)
		if err != nil {
			return nil, err
		}
		subConf := nats.SubscriberConfig{
			URL:         cfg.NatsURL,
			Unmarshaler: nats.GobMarshaler{},
			QueueGroup:  "controlplane-src",
			NatsOptions: []natsgo.Option{natsgo.Name("controlplane-src-bus")},
		}
		subscriber, err := nats.NewSubscriber(subConf, wmLogger)
		if err != nil {
			return nil, err
		}
		pub, sub = publisher, subscriber
	default:
		gc := gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 256, Persistent: false}, wmLogger)
		pub, sub = gc, gc
	}

	router, err := message.NewRouter(message.RouterConfig{}, wmLogger)
	if err != nil {
		return nil, err
	}

	prefix := cfg.TopicPrefix
	if prefix == "" {
		prefix = "controlplane."
	}

	return &Bus{publisher: pub, subscriber: sub, router: router, prefix: prefix, logger: logger}, nil
}

// Start wires the router's handler and begins consuming. Safe to call once.
func (b *Bus) Start(ctx context.Context) error {
	b.router.AddNoPublisherHandler(
		"src-state-transition-fanout",
		b.prefix+topicStateTransition,
		b.subscriber,
		b.handleMessage,
	)

	go func() {
		if err := b.router.Run(ctx); err != nil {
			b.logger.Error("srcbus router stopped with error", zap.Error(err))
		}
	}()

	select {
	case <-b.router.Running():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop closes the router and underlying transport.
func (b *Bus) Stop() error {
	return b.router.Close()
}

// PublishStateTransition announces a committed transition to every
// subscriber. Publish errors are returned to the caller (the SRC
// Controller), which decides whether a publish failure should itself
// escalate severity.
func (b *Bus) PublishStateTransition(t srcstate.StateTransition) error {
	payload, err := json.Marshal(t)
	if err != nil {
		return err
	}
	msg := message.NewMessage(t.ID, payload)
	return b.publisher.Publish(b.prefix+topicStateTransition, msg)
}

// Subscribe registers a handler invoked for every StateTransition received
// over the bus, including ones this process itself published.
func (b *Bus) Subscribe(handler StateChangeHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = append(b.handlers, handler)
}

func (b *Bus) handleMessage(msg *message.Message) error {
	var t srcstate.StateTransition
	if err := json.Unmarshal(msg.Payload, &t); err != nil {
		b.logger.Error("srcbus: failed to decode state transition", zap.Error(err))
		return nil // ack and drop: a malformed message must not wedge the router
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, h := range b.handlers {
		h(t)
	}
	return nil
}
