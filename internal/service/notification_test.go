package service

import (
	"context"
	"errors"
	"testing"

	"github.com/deckhand-ai/deckhand/internal/port/notifier"
)

type fakeProvider struct {
	name    string
	sent    []notifier.Notification
	sendErr error
}

func (f *fakeProvider) Name() string                        { return f.name }
func (f *fakeProvider) Capabilities() notifier.Capabilities { return notifier.Capabilities{} }
func (f *fakeProvider) Send(_ context.Context, n notifier.Notification) error {
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, n)
	return nil
}

func TestNotifyReachesEveryProvider(t *testing.T) {
	slack := &fakeProvider{name: "slack"}
	nats := &fakeProvider{name: "nats"}
	svc := NewNotificationService([]notifier.Notifier{slack, nats}, nil)

	svc.Notify(context.Background(), notifier.Notification{
		Title:     "Agent finished",
		Message:   "Response completed while nobody was attached",
		Level:     notifier.LevelInfo,
		Source:    "session.finished",
		SessionID: "ses_1",
	})

	for _, p := range []*fakeProvider{slack, nats} {
		if len(p.sent) != 1 {
			t.Errorf("provider %s received %d notifications, want 1", p.name, len(p.sent))
		}
	}
}

func TestNotifyHonorsSourceAllowlist(t *testing.T) {
	p := &fakeProvider{name: "slack"}
	svc := NewNotificationService([]notifier.Notifier{p}, []string{"stream.error"})

	svc.Notify(context.Background(), notifier.Notification{Title: "done", Source: "session.finished"})
	if len(p.sent) != 0 {
		t.Fatalf("filtered source reached the provider %d times", len(p.sent))
	}

	svc.Notify(context.Background(), notifier.Notification{Title: "lost", Source: "stream.error"})
	if len(p.sent) != 1 {
		t.Fatalf("allowed source delivered %d times, want 1", len(p.sent))
	}
}

func TestNotifyDefaultsLevel(t *testing.T) {
	p := &fakeProvider{name: "slack"}
	svc := NewNotificationService([]notifier.Notifier{p}, nil)

	svc.Notify(context.Background(), notifier.Notification{Title: "bare", Source: "session.finished"})
	if len(p.sent) != 1 {
		t.Fatal("notification not delivered")
	}
	if p.sent[0].Level != notifier.LevelInfo {
		t.Errorf("level = %q, want %q", p.sent[0].Level, notifier.LevelInfo)
	}
}

func TestNotifyContinuesPastFailingProvider(t *testing.T) {
	broken := &fakeProvider{name: "broken", sendErr: errors.New("connection refused")}
	healthy := &fakeProvider{name: "healthy"}
	svc := NewNotificationService([]notifier.Notifier{broken, healthy}, nil)

	svc.Notify(context.Background(), notifier.Notification{Title: "done", Source: "session.finished"})

	if len(healthy.sent) != 1 {
		t.Fatalf("healthy provider received %d notifications, want 1", len(healthy.sent))
	}
}

func TestNotifierCount(t *testing.T) {
	svc := NewNotificationService([]notifier.Notifier{
		&fakeProvider{name: "a"},
		&fakeProvider{name: "b"},
	}, nil)
	if svc.NotifierCount() != 2 {
		t.Fatalf("NotifierCount = %d, want 2", svc.NotifierCount())
	}
}
