package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultKey is the Redis list holding activity events.
const DefaultKey = "makesta:activity"

// Event types published by the API.
const (
	UserRegistered     = "user.registered"
	MaterialUploaded   = "material.uploaded"
	MaterialDownloaded = "material.downloaded"
	SessionClosed      = "session.closed"
	CertificateIssued  = "certificate.issued"
	InstructorCreated  = "instructor.created"
)

// Message is one queued unit of work.
type Message struct {
	Type string
	Body []byte
}

// Activity is the JSON body of an activity message.
type Activity struct {
	ActorID    *uint     `json:"actorId,omitempty"`
	SubjectID  *uint     `json:"subjectId,omitempty"`
	Detail     string    `json:"detail,omitempty"`
	OccurredAt time.Time `json:"occurredAt"`
}

// NewMessage encodes an activity under the given type.
func NewMessage(typ string, a Activity) (Message, error) {
	if typ == "" {
		return Message{}, errors.New("queue: message type required")
	}
	if a.OccurredAt.IsZero() {
		a.OccurredAt = time.Now().UTC()
	}
	body, err := json.Marshal(a)
	if err != nil {
		return Message{}, fmt.Errorf("queue: encode activity: %w", err)
	}
	return Message{Type: typ, Body: body}, nil
}

// Activity decodes the message body.
func (m Message) Activity() (Activity, error) {
	var a Activity
	if err := json.Unmarshal(m.Body, &a); err != nil {
		return Activity{}, fmt.Errorf("queue: decode %s: %w", m.Type, err)
	}
	return a, nil
}

// Queue is the abstraction over different backends.
type Queue interface {
	Publish(ctx context.Context, msg Message) error
	Consume(ctx context.Context) (<-chan Message, error)
}

// InMemory is a channel-backed queue for single-process deployments and tests.
type InMemory struct {
	ch chan Message
}

// NewInMemory creates a bounded in-memory queue.
func NewInMemory(size int) *InMemory {
	if size <= 0 {
		size = 64
	}
	return &InMemory{ch: make(chan Message, size)}
}

// Publish enqueues a message, blocking while the buffer is full.
func (q *InMemory) Publish(ctx context.Context, msg Message) error {
	select {
	case q.ch <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Consume returns a channel that closes when ctx ends.
func (q *InMemory) Consume(ctx context.Context) (<-chan Message, error) {
	out := make(chan Message)
	go func() {
		defer close(out)
		for {
			select {
			case msg := <-q.ch:
				select {
				case out <- msg:
				case <-ctx.Done():
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// RedisQueue is a Redis list used with LPUSH/BRPOP.
type RedisQueue struct {
	client *redis.Client
	key    string
	block  time.Duration
}

// NewRedisQueue builds a queue on the given list key.
func NewRedisQueue(client *redis.Client, key string) *RedisQueue {
	if key == "" {
		key = DefaultKey
	}
	return &RedisQueue{client: client, key: key, block: 5 * time.Second}
}

// Publish enqueues a message.
func (q *RedisQueue) Publish(ctx context.Context, msg Message) error {
	return q.client.LPush(ctx, q.key, serialize(msg)).Err()
}

// Consume streams messages using BRPOP until ctx ends.
func (q *RedisQueue) Consume(ctx context.Context) (<-chan Message, error) {
	out := make(chan Message)
	go func() {
		defer close(out)
		for {
			res, err := q.client.BRPop(ctx, q.block, q.key).Result()
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				if !errors.Is(err, redis.Nil) {
					time.Sleep(time.Second)
				}
				continue
			}
			if len(res) != 2 {
				continue
			}
			msg, err := deserialize(res[1])
			if err != nil {
				continue
			}
			select {
			case out <- msg:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// serialize stores messages as Type|Body.
func serialize(msg Message) string {
	return msg.Type + "|" + string(msg.Body)
}

func deserialize(s string) (Message, error) {
	typ, body, ok := strings.Cut(s, "|")
	if !ok || typ == "" {
		return Message{}, fmt.Errorf("queue: malformed message %q", s)
	}
	return Message{Type: typ, Body: []byte(body)}, nil
}
