package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/scorehub/scorehub-api/pkg/jobs"
)

// Notifier is the outbound notification sink. Dispatch is fire-and-forget
// from the ledger's perspective; delivery failures never surface to callers.
type Notifier interface {
	Notify(ctx context.Context, eventKind string, payload interface{}, recipientUserIDs []string) error
}

// Notification event kinds.
const (
	EventRevisionApproved = "revision.approved"
	EventRevisionRejected = "revision.rejected"
	EventSourceDeleted    = "source.deleted"
)

// LogNotifier records notifications to the structured log. It stands in for
// a real delivery channel while keeping the dispatch path exercised.
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier constructs a log-backed sink.
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogNotifier{logger: logger}
}

// Notify logs the event.
func (n *LogNotifier) Notify(_ context.Context, eventKind string, payload interface{}, recipientUserIDs []string) error {
	n.logger.Sugar().Infow("notification dispatched",
		"event", eventKind,
		"recipients", recipientUserIDs,
		"payload", payload,
	)
	return nil
}

type notificationJob struct {
	EventKind  string
	Payload    interface{}
	Recipients []string
}

// AsyncNotifier moves dispatch onto the jobs queue so slow sinks never sit
// on the approval path.
type AsyncNotifier struct {
	queue  *jobs.Queue
	logger *zap.Logger
}

// NewAsyncNotifier wraps a sink behind the given queue. The returned queue
// handler must be registered by the caller via NotificationHandler.
func NewAsyncNotifier(queue *jobs.Queue, logger *zap.Logger) *AsyncNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AsyncNotifier{queue: queue, logger: logger}
}

// Notify enqueues the notification.
func (n *AsyncNotifier) Notify(_ context.Context, eventKind string, payload interface{}, recipientUserIDs []string) error {
	return n.queue.Enqueue(jobs.Job{
		Type: eventKind,
		Payload: notificationJob{
			EventKind:  eventKind,
			Payload:    payload,
			Recipients: recipientUserIDs,
		},
	})
}

// NotificationHandler adapts a sink into a queue handler.
func NotificationHandler(sink Notifier) jobs.Handler {
	return func(ctx context.Context, job jobs.Job) error {
		n, ok := job.Payload.(notificationJob)
		if !ok {
			return nil
		}
		return sink.Notify(ctx, n.EventKind, n.Payload, n.Recipients)
	}
}
