// Package kafka carries protocol messages over Kafka topics: requests are consumed
// from one topic, handed to the dispatcher, and replies are produced to another.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/gcbaptista/patient-search/config"
	"github.com/gcbaptista/patient-search/internal/logger"
	"github.com/gcbaptista/patient-search/internal/protocol"
)

// MessageReader is the consumer side of a kafka-go Reader.
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafkago.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// MessageWriter is the producer side of a kafka-go Writer.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Runner serves a stream of request envelopes. *protocol.Dispatcher implements it.
type Runner interface {
	Run(ctx context.Context, in <-chan protocol.Message, out chan<- protocol.Message) error
}

const (
	headerMessageType = "message-type"
	defaultBuffer     = 64
	defaultBackoff    = 500 * time.Millisecond
)

// Bridge pumps messages between Kafka and a Runner.
type Bridge struct {
	reader  MessageReader
	writer  MessageWriter
	runner  Runner
	backoff time.Duration
	logger  *zap.Logger
}

// NewReader builds the request consumer for cfg.
func NewReader(cfg config.KafkaConfig) *kafkago.Reader {
	return kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:  cfg.Brokers,
		Topic:    cfg.RequestTopic,
		GroupID:  cfg.GroupID,
		MinBytes: 1,
		MaxBytes: 10e6, // 10MB
		MaxWait:  250 * time.Millisecond,
	})
}

// NewWriter builds the reply producer for cfg.
func NewWriter(cfg config.KafkaConfig) *kafkago.Writer {
	return &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.Brokers...),
		Topic:        cfg.ResponseTopic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
		BatchSize:    1,
		BatchTimeout: 10 * time.Millisecond,
	}
}

// NewBridge creates a Bridge. Replies are keyed by correlation ID so that
// all replies for one ID land on the same partition.
func NewBridge(reader MessageReader, writer MessageWriter, runner Runner, log *zap.Logger) *Bridge {
	return &Bridge{
		reader:  reader,
		writer:  writer,
		runner:  runner,
		backoff: defaultBackoff,
		logger:  logger.OrNop(log).Named("kafka"),
	}
}

// Run consumes until ctx is cancelled. A message is committed once it has been
// handed to the runner, so a crash before the reply is produced loses that reply.
// Envelopes that fail to decode are answered with an ERROR reply when their id
// can be read, and dropped otherwise.
func (b *Bridge) Run(ctx context.Context) error {
	in := make(chan protocol.Message, defaultBuffer)
	out := make(chan protocol.Message, defaultBuffer)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer close(in)
		return b.consume(gctx, in)
	})
	g.Go(func() error {
		defer close(out)
		return b.runner.Run(gctx, in, out)
	})
	g.Go(func() error {
		return b.produce(gctx, out)
	})

	err := g.Wait()
	if errors.Is(err, context.Canceled) && ctx.Err() != nil {
		return nil
	}
	return err
}

// Close releases the reader and the writer.
func (b *Bridge) Close() error {
	return errors.Join(b.reader.Close(), b.writer.Close())
}

func (b *Bridge) consume(ctx context.Context, in chan<- protocol.Message) error {
	for {
		record, err := b.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			b.logger.Error("failed to fetch message", zap.Error(err))
			if !sleep(ctx, b.backoff) {
				return ctx.Err()
			}
			continue
		}

		msg, err := protocol.DecodeMessage(record.Value)
		if err != nil {
			if msg.ID == "" {
				b.logger.Error("dropping undecodable message",
					zap.Error(err),
					zap.Int("partition", record.Partition),
					zap.Int64("offset", record.Offset))
			} else if err := b.publish(ctx, protocol.ErrorReply(msg.ID, err)); err != nil && ctx.Err() != nil {
				return ctx.Err()
			}
			b.commit(ctx, record)
			continue
		}

		select {
		case in <- msg:
		case <-ctx.Done():
			return ctx.Err()
		}
		b.commit(ctx, record)
	}
}

func (b *Bridge) commit(ctx context.Context, record kafkago.Message) {
	if err := b.reader.CommitMessages(ctx, record); err != nil {
		b.logger.Error("failed to commit message", zap.Error(err), zap.Int64("offset", record.Offset))
	}
}

func (b *Bridge) produce(ctx context.Context, out <-chan protocol.Message) error {
	for reply := range out {
		if err := b.publish(ctx, reply); err != nil && ctx.Err() != nil {
			return ctx.Err()
		}
	}
	return nil
}

// publish writes one reply. Failures are logged; the error is returned so
// callers can tell a cancelled context from a broker failure.
func (b *Bridge) publish(ctx context.Context, reply protocol.Message) error {
	value, err := json.Marshal(reply)
	if err != nil {
		b.logger.Error("failed to encode reply", zap.Error(err), zap.String("id", reply.ID))
		return err
	}
	record := kafkago.Message{
		Key:     []byte(reply.ID),
		Value:   value,
		Headers: []kafkago.Header{{Key: headerMessageType, Value: []byte(reply.Type)}},
	}
	if err := b.writer.WriteMessages(ctx, record); err != nil {
		if ctx.Err() == nil {
			b.logger.Error("failed to publish reply",
				zap.Error(err),
				zap.String("id", reply.ID),
				zap.String("type", reply.Type))
		}
		return err
	}
	b.logger.Debug("reply published", zap.String("id", reply.ID), zap.String("type", reply.Type))
	return nil
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
