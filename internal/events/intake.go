// Package events consumes inbound chat messages from a NATS JetStream
// stream and resolves each one through the processing pipeline.
//
// Delivery semantics are at-least-once: a message is acknowledged only
// after the pipeline reaches a terminal state. Fatal pipeline errors
// leave the message unacknowledged for redelivery; payloads that cannot
// be decoded at all are terminated so they never loop.
package events

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/remindd/internal/config"
	"github.com/fyrsmithlabs/remindd/internal/conversation"
	"github.com/fyrsmithlabs/remindd/internal/logging"
	"github.com/fyrsmithlabs/remindd/internal/pipeline"
)

const (
	fetchBatchSize = 16
	fetchMaxWait   = 2 * time.Second
	ackWait        = 30 * time.Second

	// maxDeliver bounds redelivery of a persistently failing message so
	// an outage cannot pin the consumer forever.
	maxDeliver = 5

	defaultRedeliveryDelay = 5 * time.Second
)

// Processor resolves one inbound message to a terminal state.
type Processor interface {
	Process(ctx context.Context, msg *conversation.InboundMessage) (*pipeline.Outcome, error)
}

// Intake is a durable JetStream consumer feeding the pipeline.
type Intake struct {
	conn      *nats.Conn
	sub       *nats.Subscription
	processor Processor
	logger    *logging.Logger
	cfg       config.EventsConfig

	redeliveryDelay time.Duration
}

// NewIntake connects to NATS, provisions the stream if it does not
// exist, and binds the durable consumer.
func NewIntake(cfg config.EventsConfig, proc Processor, logger *logging.Logger) (*Intake, error) {
	if logger == nil {
		logger = logging.NewNop()
	}

	nc, err := nats.Connect(cfg.URL,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(5),
		nats.ReconnectWait(1*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS at %s: %w", cfg.URL, err)
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	if err := ensureStream(js, cfg); err != nil {
		nc.Close()
		return nil, err
	}

	sub, err := js.PullSubscribe(cfg.Subject, cfg.Durable,
		nats.BindStream(cfg.Stream),
		nats.AckWait(ackWait),
		nats.MaxDeliver(maxDeliver),
	)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to bind durable consumer %s: %w", cfg.Durable, err)
	}

	return &Intake{
		conn:            nc,
		sub:             sub,
		processor:       proc,
		logger:          logger,
		cfg:             cfg,
		redeliveryDelay: defaultRedeliveryDelay,
	}, nil
}

func ensureStream(js nats.JetStreamContext, cfg config.EventsConfig) error {
	_, err := js.StreamInfo(cfg.Stream)
	if err == nil {
		return nil
	}
	if !errors.Is(err, nats.ErrStreamNotFound) {
		return fmt.Errorf("failed to look up stream %s: %w", cfg.Stream, err)
	}

	_, err = js.AddStream(&nats.StreamConfig{
		Name:     cfg.Stream,
		Subjects: []string{cfg.Subject},
		Storage:  nats.FileStorage,
	})
	if err != nil {
		return fmt.Errorf("failed to create stream %s: %w", cfg.Stream, err)
	}
	return nil
}

// Run fetches and processes messages until the context is canceled.
// It always returns nil on an orderly shutdown.
func (i *Intake) Run(ctx context.Context) error {
	i.logger.Info(ctx, "event intake started",
		zap.String("stream", i.cfg.Stream),
		zap.String("subject", i.cfg.Subject),
		zap.String("durable", i.cfg.Durable),
	)

	for {
		if ctx.Err() != nil {
			i.logger.Info(context.Background(), "event intake stopped")
			return nil
		}

		msgs, err := i.sub.Fetch(fetchBatchSize, nats.MaxWait(fetchMaxWait))
		if err != nil {
			if errors.Is(err, nats.ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
				continue
			}
			if errors.Is(err, context.Canceled) || errors.Is(err, nats.ErrConnectionClosed) {
				i.logger.Info(context.Background(), "event intake stopped")
				return nil
			}
			i.logger.Warn(ctx, "fetch failed", zap.Error(err))
			select {
			case <-time.After(time.Second):
			case <-ctx.Done():
			}
			continue
		}

		for _, msg := range msgs {
			i.handle(ctx, msg)
		}
	}
}

// handle resolves one delivery. Acknowledgement policy:
//
//	undecodable payload  Term  (poison, never redelivered)
//	fatal pipeline error Nak   (redelivered after a delay)
//	terminal state       Ack
func (i *Intake) handle(ctx context.Context, msg *nats.Msg) {
	inbound, err := conversation.DecodeMessage(msg.Data)
	if err != nil {
		i.logger.Warn(ctx, "dropping undecodable message",
			zap.String("subject", msg.Subject),
			zap.Error(err),
		)
		if terr := msg.Term(); terr != nil {
			i.logger.Warn(ctx, "failed to terminate poison message", zap.Error(terr))
		}
		return
	}

	out, err := i.processor.Process(ctx, inbound)
	if err != nil {
		i.logger.Error(ctx, "message processing failed, leaving for redelivery",
			zap.String("message_id", inbound.ID),
			zap.Error(err),
		)
		if nerr := msg.NakWithDelay(i.redeliveryDelay); nerr != nil {
			i.logger.Warn(ctx, "failed to nak message", zap.Error(nerr))
		}
		return
	}

	i.logger.Debug(ctx, "message processed",
		zap.String("message_id", inbound.ID),
		zap.String("state", string(out.State)),
	)
	if aerr := msg.Ack(); aerr != nil {
		i.logger.Warn(ctx, "failed to ack message", zap.Error(aerr))
	}
}

// Close closes the NATS connection. The durable consumer is left in
// place on the server so redelivery state survives restarts.
func (i *Intake) Close() {
	i.conn.Close()
}
