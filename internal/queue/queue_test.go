package queue

import (
	"context"
	"testing"
	"time"
)

func TestSerializeRoundTrip(t *testing.T) {
	id := uint(7)
	msg, err := NewMessage(MaterialDownloaded, Activity{ActorID: &id, Detail: "a|b"})
	if err != nil {
		t.Fatalf("new message: %v", err)
	}
	got, err := deserialize(serialize(msg))
	if err != nil {
		t.Fatalf("deserialize: %v", err)
	}
	if got.Type != MaterialDownloaded {
		t.Fatalf("expected type %q, got %q", MaterialDownloaded, got.Type)
	}
	a, err := got.Activity()
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if a.ActorID == nil || *a.ActorID != 7 || a.Detail != "a|b" {
		t.Fatalf("unexpected activity %+v", a)
	}
	if a.OccurredAt.IsZero() {
		t.Fatalf("expected occurredAt to be stamped")
	}
}

func TestDeserializeRejectsUntyped(t *testing.T) {
	if _, err := deserialize("no separator"); err == nil {
		t.Fatalf("expected error for message without type")
	}
	if _, err := deserialize("|{}"); err == nil {
		t.Fatalf("expected error for empty type")
	}
}

func TestNewMessageRequiresType(t *testing.T) {
	if _, err := NewMessage("", Activity{}); err == nil {
		t.Fatalf("expected error")
	}
}

func TestInMemoryDeliversInOrder(t *testing.T) {
	q := NewInMemory(4)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	for _, typ := range []string{UserRegistered, SessionClosed} {
		if err := q.Publish(ctx, Message{Type: typ}); err != nil {
			t.Fatalf("publish: %v", err)
		}
	}
	ch, err := q.Consume(ctx)
	if err != nil {
		t.Fatalf("consume: %v", err)
	}
	for _, want := range []string{UserRegistered, SessionClosed} {
		select {
		case msg := <-ch:
			if msg.Type != want {
				t.Fatalf("expected %q, got %q", want, msg.Type)
			}
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for %q", want)
		}
	}
}

func TestInMemoryConsumeClosesOnCancel(t *testing.T) {
	q := NewInMemory(1)
	ctx, cancel := context.WithCancel(context.Background())
	ch, _ := q.Consume(ctx)
	cancel()
	select {
	case _, ok := <-ch:
		if ok {
			t.Fatalf("expected closed channel")
		}
	case <-time.After(time.Second):
		t.Fatalf("channel not closed after cancel")
	}
}

func TestInMemoryPublishHonoursContext(t *testing.T) {
	q := NewInMemory(1)
	if err := q.Publish(context.Background(), Message{Type: UserRegistered}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := q.Publish(ctx, Message{Type: UserRegistered}); err == nil {
		t.Fatalf("expected context error on full queue")
	}
}
