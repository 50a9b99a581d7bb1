package nats

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/deckhand-ai/deckhand/internal/logger"
	"github.com/deckhand-ai/deckhand/internal/port/messagequeue"
)

// liveQueue connects to the NATS named by NATS_URL, skipping the test when
// the variable is unset so the suite stays green without infrastructure.
func liveQueue(t *testing.T) *Queue {
	t.Helper()

	url := os.Getenv("NATS_URL")
	if url == "" {
		t.Skip("requires NATS_URL")
	}

	q, err := Connect(context.Background(), url)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	t.Cleanup(func() {
		if err := q.Close(); err != nil {
			t.Errorf("Close: %v", err)
		}
	})
	return q
}

// testSubject derives a per-test subject under deckhand.test.* so parallel
// runs do not cross-deliver. The DECKHAND stream captures deckhand.> and
// the validator passes unknown subjects through.
func testSubject(t *testing.T) string {
	t.Helper()
	return "deckhand.test." + t.Name()
}

// await fails the test when ch does not close within the deadline.
func await(t *testing.T, ch <-chan struct{}, deadline time.Duration, what string) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(deadline):
		t.Fatalf("timed out waiting for %s", what)
	}
}

// watchDLQ consumes <subject>.dlq through a raw JetStream consumer, so the
// dead letter is not pushed back through the validator. DeliverNewPolicy
// hides leftovers from earlier runs. The first payload arrives on the
// returned channel.
func watchDLQ(t *testing.T, q *Queue, subject string) <-chan []byte {
	t.Helper()
	ctx := context.Background()

	consumer, err := q.js.CreateOrUpdateConsumer(ctx, streamName, jetstream.ConsumerConfig{
		FilterSubject: subject + ".dlq",
		AckPolicy:     jetstream.AckExplicitPolicy,
		DeliverPolicy: jetstream.DeliverNewPolicy,
	})
	if err != nil {
		t.Fatalf("create dlq consumer: %v", err)
	}

	var once sync.Once
	out := make(chan []byte, 1)
	sub, err := consumer.Consume(func(msg jetstream.Msg) {
		once.Do(func() { out <- msg.Data() })
		_ = msg.Ack()
	})
	if err != nil {
		t.Fatalf("consume dlq: %v", err)
	}
	t.Cleanup(sub.Stop)
	return out
}

func TestPublishDeliversToSubscriber(t *testing.T) {
	q := liveQueue(t)
	subject := testSubject(t)

	type note struct {
		Text string `json:"text"`
	}
	data, err := json.Marshal(note{Text: "ahoy"})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var (
		mu   sync.Mutex
		got  note
		once sync.Once
		done = make(chan struct{})
	)
	stop, err := q.Subscribe(context.Background(), subject, func(_ context.Context, _ string, d []byte) error {
		var n note
		if err := json.Unmarshal(d, &n); err != nil {
			return err
		}
		mu.Lock()
		got = n
		mu.Unlock()
		once.Do(func() { close(done) })
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer stop()

	if err := q.Publish(context.Background(), subject, data); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	await(t, done, 5*time.Second, "delivery")

	mu.Lock()
	defer mu.Unlock()
	if got.Text != "ahoy" {
		t.Errorf("handler saw %q, want %q", got.Text, "ahoy")
	}
}

func TestPublishCarriesRequestID(t *testing.T) {
	q := liveQueue(t)
	subject := testSubject(t)
	const reqID = "req-42-stream"

	var (
		mu   sync.Mutex
		seen string
		once sync.Once
		done = make(chan struct{})
	)
	stop, err := q.Subscribe(context.Background(), subject, func(ctx context.Context, _ string, _ []byte) error {
		mu.Lock()
		seen = logger.RequestID(ctx)
		mu.Unlock()
		once.Do(func() { close(done) })
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer stop()

	ctx := logger.WithRequestID(context.Background(), reqID)
	if err := q.Publish(ctx, subject, []byte(`{"ok":true}`)); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	await(t, done, 5*time.Second, "delivery")

	mu.Lock()
	defer mu.Unlock()
	if seen != reqID {
		t.Errorf("consumer context carried %q, want %q", seen, reqID)
	}
}

func TestInvalidPayloadLandsInDLQ(t *testing.T) {
	q := liveQueue(t)
	ctx := context.Background()

	// messages.created has a registered schema, so a body that is not JSON
	// at all fails validation before any handler runs.
	subject := messagequeue.SubjectMessageCreated
	dlq := watchDLQ(t, q, subject)

	// A subscription must exist for the consumer loop to process the
	// message. Stray messages from earlier runs may also arrive; ack them
	// all, the assertion below only cares about the DLQ copy.
	stop, err := q.Subscribe(ctx, subject, func(_ context.Context, _ string, _ []byte) error {
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer stop()

	if err := q.Publish(ctx, subject, []byte("not-json")); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	select {
	case data := <-dlq:
		if string(data) != "not-json" {
			t.Errorf("dead letter = %q, want the rejected payload", data)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("timed out waiting for dead letter")
	}
}

func TestExhaustedRetriesLandInDLQ(t *testing.T) {
	q := liveQueue(t)
	ctx := context.Background()
	subject := testSubject(t)
	dlq := watchDLQ(t, q, subject)

	errHandler := errors.New("handler rejects everything")
	stop, err := q.Subscribe(ctx, subject, func(_ context.Context, _ string, _ []byte) error {
		return errHandler
	})
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer stop()

	// Seed the retry counter at the limit by publishing through raw
	// JetStream. The failing handler then sends the message straight to
	// the DLQ instead of requeueing it a fourth time.
	msg := &nats.Msg{
		Subject: subject,
		Data:    []byte(`{"attempt":"last"}`),
		Header:  nats.Header{},
	}
	msg.Header.Set(headerRetryCount, strconv.Itoa(maxRetries))
	if _, err := q.js.PublishMsg(ctx, msg); err != nil {
		t.Fatalf("PublishMsg: %v", err)
	}

	select {
	case data := <-dlq:
		if string(data) != `{"attempt":"last"}` {
			t.Errorf("dead letter = %q, want the exhausted payload", data)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("timed out waiting for dead letter after exhaustion")
	}
}

func TestKeyValueBucketRoundTrip(t *testing.T) {
	q := liveQueue(t)
	ctx := context.Background()

	kv, err := q.KeyValue(ctx, "test-kv-"+t.Name(), 30*time.Second)
	if err != nil {
		t.Fatalf("KeyValue: %v", err)
	}

	if _, err := kv.Put(ctx, "flag", []byte("up")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	entry, err := kv.Get(ctx, "flag")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(entry.Value()) != "up" {
		t.Errorf("value = %q, want %q", entry.Value(), "up")
	}

	if _, err := kv.Put(ctx, "flag", []byte("down")); err != nil {
		t.Fatalf("Put update: %v", err)
	}
	entry, err = kv.Get(ctx, "flag")
	if err != nil {
		t.Fatalf("Get after update: %v", err)
	}
	if string(entry.Value()) != "down" {
		t.Errorf("value after update = %q, want %q", entry.Value(), "down")
	}

	if err := kv.Delete(ctx, "flag"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := kv.Get(ctx, "flag"); err == nil {
		t.Error("Get after Delete succeeded, want key-not-found")
	}
}

func TestIsConnectedAfterConnect(t *testing.T) {
	q := liveQueue(t)
	if !q.IsConnected() {
		t.Error("IsConnected() = false right after Connect")
	}
}
