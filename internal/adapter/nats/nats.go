// Package nats implements the message queue port using NATS JetStream.
package nats

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/deckhand-ai/deckhand/internal/logger"
	"github.com/deckhand-ai/deckhand/internal/port/messagequeue"
)

const (
	streamName = "DECKHAND"

	headerRequestID  = "Request-Id"
	headerRetryCount = "Retry-Count"

	// maxRetries is how many times a message is redelivered after handler
	// failure before it moves to the <subject>.dlq mirror.
	maxRetries = 3
)

// Queue implements messagequeue.Queue using NATS JetStream.
type Queue struct {
	nc *nats.Conn
	js jetstream.JetStream
}

// Connect establishes a connection to NATS and ensures the JetStream stream
// capturing all deckhand subjects exists.
func Connect(ctx context.Context, url string) (*Queue, error) {
	nc, err := nats.Connect(url, nats.Name("deckhand"))
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream init: %w", err)
	}

	_, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:     streamName,
		Subjects: []string{"deckhand.>"},
	})
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream stream create: %w", err)
	}

	slog.Info("nats connected", "url", url, "stream", streamName)
	return &Queue{nc: nc, js: js}, nil
}

// Publish sends a message to the given subject. A request ID present in ctx
// travels with the message as a header so consumers log under the same ID.
func (q *Queue) Publish(ctx context.Context, subject string, data []byte) error {
	msg := &nats.Msg{
		Subject: subject,
		Data:    data,
		Header:  nats.Header{},
	}
	if rid := logger.RequestID(ctx); rid != "" {
		msg.Header.Set(headerRequestID, rid)
	}
	if _, err := q.js.PublishMsg(ctx, msg); err != nil {
		return fmt.Errorf("nats publish %s: %w", subject, err)
	}
	return nil
}

// Subscribe registers a handler for messages on the given subject. Payloads
// are validated against the subject schema before the handler runs; messages
// that fail validation or exhaust their retries go to <subject>.dlq.
func (q *Queue) Subscribe(ctx context.Context, subject string, handler messagequeue.Handler) (func(), error) {
	consumer, err := q.js.CreateOrUpdateConsumer(ctx, streamName, jetstream.ConsumerConfig{
		FilterSubject: subject,
		AckPolicy:     jetstream.AckExplicitPolicy,
	})
	if err != nil {
		return nil, fmt.Errorf("nats consumer create: %w", err)
	}

	cons, err := consumer.Consume(func(msg jetstream.Msg) {
		hdrs := msg.Headers()

		mctx := context.Background()
		if rid := hdrs.Get(headerRequestID); rid != "" {
			mctx = logger.WithRequestID(mctx, rid)
		}

		if err := messagequeue.Validate(msg.Subject(), msg.Data()); err != nil {
			slog.Warn("message failed validation", "subject", msg.Subject(), "error", err)
			q.moveToDLQ(msg)
			return
		}

		if err := handler(mctx, msg.Subject(), msg.Data()); err != nil {
			slog.Error("message handler failed", "subject", msg.Subject(), "error", err)
			if retryCount(hdrs) >= maxRetries {
				q.moveToDLQ(msg)
				return
			}
			q.retry(msg)
			return
		}
		if ackErr := msg.Ack(); ackErr != nil {
			slog.Error("nats ack failed", "error", ackErr)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("nats consume: %w", err)
	}

	return cons.Stop, nil
}

// retry republishes the message with an incremented retry count and acks the
// original, so delivery attempts are counted across consumer restarts.
func (q *Queue) retry(msg jetstream.Msg) {
	clone := &nats.Msg{
		Subject: msg.Subject(),
		Data:    msg.Data(),
		Header:  cloneHeader(msg.Headers()),
	}
	clone.Header.Set(headerRetryCount, strconv.Itoa(retryCount(msg.Headers())+1))

	if _, err := q.js.PublishMsg(context.Background(), clone); err != nil {
		slog.Error("nats retry publish failed", "subject", msg.Subject(), "error", err)
		if nakErr := msg.Nak(); nakErr != nil {
			slog.Error("nats nak failed", "error", nakErr)
		}
		return
	}
	if err := msg.Ack(); err != nil {
		slog.Error("nats ack failed", "error", err)
	}
}

// moveToDLQ mirrors the message onto <subject>.dlq and acks the original.
func (q *Queue) moveToDLQ(msg jetstream.Msg) {
	dlq := &nats.Msg{
		Subject: msg.Subject() + ".dlq",
		Data:    msg.Data(),
		Header:  cloneHeader(msg.Headers()),
	}
	if _, err := q.js.PublishMsg(context.Background(), dlq); err != nil {
		slog.Error("nats dlq publish failed", "subject", dlq.Subject, "error", err)
		if nakErr := msg.Nak(); nakErr != nil {
			slog.Error("nats nak failed", "error", nakErr)
		}
		return
	}
	slog.Warn("message moved to dlq", "subject", dlq.Subject)
	if err := msg.Ack(); err != nil {
		slog.Error("nats ack failed", "error", err)
	}
}

// KeyValue creates or binds the named KV bucket with the given per-entry TTL.
// Deckhand uses buckets for idempotency replay and the remote cache level.
func (q *Queue) KeyValue(ctx context.Context, bucket string, ttl time.Duration) (jetstream.KeyValue, error) {
	kv, err := q.js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket: bucket,
		TTL:    ttl,
	})
	if err != nil {
		return nil, fmt.Errorf("nats kv bucket %s: %w", bucket, err)
	}
	return kv, nil
}

// Drain processes pending messages on all subscriptions, then closes.
func (q *Queue) Drain() error {
	if err := q.nc.Drain(); err != nil {
		return fmt.Errorf("nats drain: %w", err)
	}
	return nil
}

// Close shuts down the NATS connection immediately.
func (q *Queue) Close() error {
	q.nc.Close()
	return nil
}

// IsConnected reports whether the underlying connection is up.
func (q *Queue) IsConnected() bool {
	return q.nc.IsConnected()
}

func retryCount(h nats.Header) int {
	n, err := strconv.Atoi(h.Get(headerRetryCount))
	if err != nil {
		return 0
	}
	return n
}

func cloneHeader(h nats.Header) nats.Header {
	clone := nats.Header{}
	for k, vals := range h {
		for _, v := range vals {
			clone.Add(k, v)
		}
	}
	return clone
}
