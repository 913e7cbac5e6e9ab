package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/glebk/skillswap/internal/domain"
)

// RedisClient is the part of *redis.Client the publisher needs
type RedisClient interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// RedisPublisher pushes events over Redis pub/sub so clients can subscribe
// instead of polling. Each event goes to the session channel and to both
// participants' channels.
type RedisPublisher struct {
	client RedisClient
	prefix string
}

// NewRedisPublisher creates a RedisPublisher. prefix namespaces the channels.
func NewRedisPublisher(client RedisClient, prefix string) *RedisPublisher {
	prefix = strings.TrimSuffix(strings.TrimSpace(prefix), ":")
	if prefix == "" {
		prefix = "skillswap"
	}
	return &RedisPublisher{client: client, prefix: prefix}
}

// SessionChannel is the channel carrying every event of one session
func (p *RedisPublisher) SessionChannel(sessionID string) string {
	return p.prefix + ":session:" + sessionID
}

// UserChannel is the channel carrying events of every session a user takes part in
func (p *RedisPublisher) UserChannel(userID string) string {
	return p.prefix + ":user:" + userID
}

func (p *RedisPublisher) Notify(ctx context.Context, event domain.Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}

	channels := []string{
		p.SessionChannel(event.SessionID),
		p.UserChannel(event.TeacherID),
		p.UserChannel(event.StudentID),
	}
	var errs []error
	for _, channel := range channels {
		if err := p.client.Publish(ctx, channel, body).Err(); err != nil {
			errs = append(errs, fmt.Errorf("publish %s: %w", channel, err))
		}
	}
	return errors.Join(errs...)
}
