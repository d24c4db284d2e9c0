// Package activity turns queued events into the organizer activity feed.
package activity

import (
	"context"
	"log/slog"

	"makesta/internal/metrics"
	"makesta/internal/program"
	"makesta/internal/queue"
)

// Sink persists activity entries.
type Sink interface {
	RecordActivity(ctx context.Context, a *program.ActivityLog) error
}

// Recorder drains a queue into a Sink.
type Recorder struct {
	q      queue.Queue
	sink   Sink
	logger *slog.Logger
}

// NewRecorder creates a recorder.
func NewRecorder(q queue.Queue, sink Sink, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{q: q, sink: sink, logger: logger}
}

// Run consumes until ctx is cancelled or the queue closes.
// A bad message is logged and skipped.
func (r *Recorder) Run(ctx context.Context) error {
	messages, err := r.q.Consume(ctx)
	if err != nil {
		return err
	}
	r.logger.Info("activity recorder started")
	for msg := range messages {
		if err := r.handle(ctx, msg); err != nil {
			r.logger.Error("record activity", "type", msg.Type, "err", err)
		}
	}
	r.logger.Info("activity recorder stopped")
	return nil
}

func (r *Recorder) handle(ctx context.Context, msg queue.Message) error {
	a, err := msg.Activity()
	if err != nil {
		return err
	}
	entry := &program.ActivityLog{
		Type:       msg.Type,
		ActorID:    a.ActorID,
		SubjectID:  a.SubjectID,
		Detail:     a.Detail,
		OccurredAt: a.OccurredAt,
	}
	// Write with a context that outlives shutdown so a received message is not lost.
	if err := r.sink.RecordActivity(context.WithoutCancel(ctx), entry); err != nil {
		return err
	}
	metrics.ActivityRecorded.WithLabelValues(msg.Type).Inc()
	r.logger.Debug("activity recorded", "type", msg.Type, "id", entry.ID)
	return nil
}
