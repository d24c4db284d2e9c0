package activity

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"makesta/internal/program"
	"makesta/internal/queue"
)

type memorySink struct {
	mu      sync.Mutex
	entries []program.ActivityLog
	fail    bool
}

func (m *memorySink) RecordActivity(_ context.Context, a *program.ActivityLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return errors.New("db down")
	}
	m.entries = append(m.entries, *a)
	return nil
}

func (m *memorySink) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRecorderPersistsEvents(t *testing.T) {
	q := queue.NewInMemory(8)
	sink := &memorySink{}
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- NewRecorder(q, sink, quietLogger()).Run(ctx) }()

	actor := uint(3)
	msg, err := queue.NewMessage(queue.SessionClosed, queue.Activity{ActorID: &actor, Detail: "Week1"})
	if err != nil {
		t.Fatalf("new message: %v", err)
	}
	if err := q.Publish(ctx, msg); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if err := q.Publish(ctx, queue.Message{Type: "broken", Body: []byte("not json")}); err != nil {
		t.Fatalf("publish: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for sink.count() < 1 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("run: %v", err)
	}

	if sink.count() != 1 {
		t.Fatalf("expected 1 entry, got %d", sink.count())
	}
	got := sink.entries[0]
	if got.Type != queue.SessionClosed || got.Detail != "Week1" || got.ActorID == nil || *got.ActorID != 3 {
		t.Fatalf("unexpected entry %+v", got)
	}
}

func TestRecorderHandleSurfacesSinkErrors(t *testing.T) {
	r := NewRecorder(queue.NewInMemory(1), &memorySink{fail: true}, quietLogger())
	msg, _ := queue.NewMessage(queue.UserRegistered, queue.Activity{})
	if err := r.handle(context.Background(), msg); err == nil {
		t.Fatalf("expected sink error")
	}
}
