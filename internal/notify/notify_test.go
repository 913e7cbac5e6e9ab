package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/streadway/amqp"

	"github.com/glebk/skillswap/internal/domain"
)

func sampleEvent() domain.Event {
	return domain.Event{
		ID:         "evt-1",
		Type:       domain.EventSessionCompleted,
		SessionID:  "s-1",
		TeacherID:  "teacher",
		StudentID:  "student",
		From:       domain.SessionStatusInProgress,
		To:         domain.SessionStatusCompleted,
		Amount:     domain.NewCredits(2),
		OccurredAt: time.Date(2026, 3, 10, 16, 0, 0, 0, time.UTC),
	}
}

type funcNotifier func(context.Context, domain.Event) error

func (f funcNotifier) Notify(ctx context.Context, event domain.Event) error { return f(ctx, event) }

func TestFanoutDeliversToEverySink(t *testing.T) {
	var mu sync.Mutex
	var delivered []string
	record := func(name string, err error) domain.Notifier {
		return funcNotifier(func(context.Context, domain.Event) error {
			mu.Lock()
			defer mu.Unlock()
			delivered = append(delivered, name)
			return err
		})
	}

	fanout := NewFanout()
	fanout.Add("first", record("first", nil))
	fanout.Add("broken", record("broken", errors.New("down")))
	fanout.Add("last", record("last", nil))
	fanout.Add("nil", nil)

	err := fanout.Notify(context.Background(), sampleEvent())
	if err == nil || !strings.Contains(err.Error(), "broken: down") {
		t.Fatalf("expected broken sink error, got %v", err)
	}
	if strings.Join(delivered, ",") != "first,broken,last" {
		t.Fatalf("delivered to %v", delivered)
	}
	if fanout.Len() != 3 {
		t.Fatalf("len = %d", fanout.Len())
	}
}

func TestLogNotifier(t *testing.T) {
	var buf bytes.Buffer
	log := logrus.New()
	log.SetOutput(&buf)
	log.SetFormatter(&logrus.JSONFormatter{})

	if err := NewLog(log).Notify(context.Background(), sampleEvent()); err != nil {
		t.Fatalf("notify: %v", err)
	}
	if !strings.Contains(buf.String(), `"event":"session.completed"`) {
		t.Fatalf("unexpected log line %s", buf.String())
	}
}

type fakeChannel struct {
	declared  []string
	published []amqp.Publishing
	keys      []string
	err       error
}

func (c *fakeChannel) ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error {
	c.declared = append(c.declared, name+"/"+kind)
	return c.err
}

func (c *fakeChannel) Publish(exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error {
	c.keys = append(c.keys, exchange+"/"+key)
	c.published = append(c.published, msg)
	return nil
}

func (c *fakeChannel) Close() error { return nil }

func TestAMQPPublisher(t *testing.T) {
	ch := &fakeChannel{}
	publisher, err := newAMQPPublisher(ch, "skillswap.events")
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if len(ch.declared) != 1 || ch.declared[0] != "skillswap.events/fanout" {
		t.Fatalf("declared %v", ch.declared)
	}

	if err := publisher.Notify(context.Background(), sampleEvent()); err != nil {
		t.Fatalf("notify: %v", err)
	}
	if len(ch.published) != 1 {
		t.Fatalf("published %d messages", len(ch.published))
	}
	msg := ch.published[0]
	if ch.keys[0] != "skillswap.events/session.completed" || msg.MessageId != "evt-1" || msg.DeliveryMode != amqp.Persistent {
		t.Fatalf("unexpected publishing %v %+v", ch.keys, msg)
	}
	var decoded map[string]any
	if err := json.Unmarshal(msg.Body, &decoded); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if decoded["session_id"] != "s-1" || decoded["amount"] != 2.0 {
		t.Fatalf("unexpected body %v", decoded)
	}
}

func TestAMQPPublisherDeclareFailure(t *testing.T) {
	if _, err := newAMQPPublisher(&fakeChannel{err: errors.New("access refused")}, "x"); err == nil {
		t.Fatal("expected declare error")
	}
}

func TestAMQPPublisherHonoursCancelledContext(t *testing.T) {
	ch := &fakeChannel{}
	publisher, _ := newAMQPPublisher(ch, "x")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := publisher.Notify(ctx, sampleEvent()); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if len(ch.published) != 0 {
		t.Fatal("published after cancel")
	}
}

type fakeRedis struct {
	channels []string
	failOn   string
}

func (r *fakeRedis) Publish(_ context.Context, channel string, _ interface{}) *redis.IntCmd {
	r.channels = append(r.channels, channel)
	if channel == r.failOn {
		return redis.NewIntResult(0, errors.New("connection reset"))
	}
	return redis.NewIntResult(1, nil)
}

func TestRedisPublisherChannels(t *testing.T) {
	client := &fakeRedis{}
	publisher := NewRedisPublisher(client, "swap:")

	if err := publisher.Notify(context.Background(), sampleEvent()); err != nil {
		t.Fatalf("notify: %v", err)
	}
	want := "swap:session:s-1,swap:user:teacher,swap:user:student"
	if got := strings.Join(client.channels, ","); got != want {
		t.Fatalf("channels %s, want %s", got, want)
	}
}

func TestRedisPublisherReportsFailures(t *testing.T) {
	client := &fakeRedis{failOn: "skillswap:user:teacher"}
	publisher := NewRedisPublisher(client, "")

	err := publisher.Notify(context.Background(), sampleEvent())
	if err == nil || !strings.Contains(err.Error(), "skillswap:user:teacher") {
		t.Fatalf("expected failure for teacher channel, got %v", err)
	}
	if len(client.channels) != 3 {
		t.Fatalf("expected all channels attempted, got %v", client.channels)
	}
}

type funcAlerter func(context.Context, string) error

func (f funcAlerter) Alert(ctx context.Context, message string) error { return f(ctx, message) }

func TestRelay(t *testing.T) {
	var relay Relay
	if err := relay.Alert(context.Background(), "dropped"); err != nil {
		t.Fatalf("expected detached relay to drop alerts, got %v", err)
	}

	var got []string
	relay.Attach(funcAlerter(func(_ context.Context, message string) error {
		got = append(got, message)
		return errors.New("chat unavailable")
	}))
	if err := relay.Alert(context.Background(), "escrow missing"); err == nil {
		t.Fatal("expected alerter error to propagate")
	}
	if len(got) != 1 || got[0] != "escrow missing" {
		t.Fatalf("unexpected alerts: %v", got)
	}
}
