package notification

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	OutboxKey     = "notifications:outbox"
	outboxMaxSize = 1000
)

// RedisOutbox pushes messages onto a redis list drained by the SMS/email relay.
// The list is capped so an absent relay cannot grow it without bound.
type RedisOutbox struct {
	client *redis.Client
	key    string
}

func NewRedisOutbox(client *redis.Client) *RedisOutbox {
	return &RedisOutbox{client: client, key: OutboxKey}
}

func (o *RedisOutbox) Deliver(ctx context.Context, msg Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	pipe := o.client.TxPipeline()
	pipe.LPush(ctx, o.key, data)
	pipe.LTrim(ctx, o.key, 0, outboxMaxSize-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("push to outbox: %w", err)
	}
	return nil
}

// Pending returns up to n queued messages, newest first.
func (o *RedisOutbox) Pending(ctx context.Context, n int64) ([]Message, error) {
	raw, err := o.client.LRange(ctx, o.key, 0, n-1).Result()
	if err != nil {
		return nil, fmt.Errorf("read outbox: %w", err)
	}
	out := make([]Message, 0, len(raw))
	for _, r := range raw {
		var msg Message
		if err := json.Unmarshal([]byte(r), &msg); err != nil {
			return nil, fmt.Errorf("decode outbox entry: %w", err)
		}
		out = append(out, msg)
	}
	return out, nil
}

// LogSender writes messages to the log instead of delivering them. Used when
// no outbox is configured.
type LogSender struct {
	logger zerolog.Logger
}

func NewLogSender(logger zerolog.Logger) *LogSender {
	return &LogSender{logger: logger}
}

func (s *LogSender) Deliver(_ context.Context, msg Message) error {
	s.logger.Info().
		Str("message_id", msg.ID).
		Str("channel", string(msg.Channel)).
		Str("address", msg.Address).
		Str("subject", msg.Subject).
		Msg("notification")
	return nil
}

// MockSender records deliveries. Set ShouldFail to make every call fail.
type MockSender struct {
	mu         sync.Mutex
	calls      []Message
	ShouldFail bool
	FailError  string
}

func (m *MockSender) Deliver(_ context.Context, msg Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, msg)
	if m.ShouldFail {
		return errors.New(m.FailError)
	}
	return nil
}

func (m *MockSender) SetFail(fail bool) {
	m.mu.Lock()
	m.ShouldFail = fail
	m.mu.Unlock()
}

func (m *MockSender) Calls() []Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Message, len(m.calls))
	copy(out, m.calls)
	return out
}
