package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

// Event is a domain event as carried through the task queue.
type Event struct {
	ID          string          `json:"id"`
	Topic       string          `json:"topic"`
	BranchID    string          `json:"branchId"`
	AggregateID string          `json:"aggregateId"`
	Payload     json.RawMessage `json:"payload"`
	OccurredAt  time.Time       `json:"occurredAt"`
}

// Enqueuer is the subset of *asynq.Client used by the bus.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Notifier reacts to emitted events in-process (e.g. metrics).
type Notifier interface {
	Notify(ctx context.Context, event Event) error
}

// Publisher is what services depend on to emit events.
type Publisher interface {
	Emit(ctx context.Context, topic, branchID, aggregateID string, payload any) (Event, error)
}

// Bus enqueues domain events onto asynq and fans them out to local notifiers.
type Bus struct {
	Queue     Enqueuer
	QueueName string
	MaxRetry  int
	Notifiers []Notifier
	Now       func() time.Time
}

// Emit records the event on the queue and dispatches it to all configured notifiers.
func (b *Bus) Emit(ctx context.Context, topic, branchID, aggregateID string, payload any) (Event, error) {
	if b == nil {
		return Event{}, errors.New("events: bus not configured")
	}
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return Event{}, errors.New("events: topic is required")
	}
	if strings.TrimSpace(aggregateID) == "" {
		return Event{}, errors.New("events: aggregate id is required")
	}
	encoded, err := encodePayload(payload)
	if err != nil {
		return Event{}, fmt.Errorf("events: encode payload: %w", err)
	}
	now := time.Now
	if b.Now != nil {
		now = b.Now
	}
	ev := Event{
		ID:          uuid.NewString(),
		Topic:       topic,
		BranchID:    branchID,
		AggregateID: aggregateID,
		Payload:     encoded,
		OccurredAt:  now().UTC(),
	}

	var joined error
	if b.Queue != nil {
		body, err := json.Marshal(ev)
		if err != nil {
			return Event{}, fmt.Errorf("events: encode event: %w", err)
		}
		opts := []asynq.Option{asynq.TaskID(ev.ID)}
		if b.QueueName != "" {
			opts = append(opts, asynq.Queue(b.QueueName))
		}
		if b.MaxRetry > 0 {
			opts = append(opts, asynq.MaxRetry(b.MaxRetry))
		}
		if _, err := b.Queue.EnqueueContext(ctx, asynq.NewTask(topic, body), opts...); err != nil {
			joined = errors.Join(joined, fmt.Errorf("events: enqueue: %w", err))
		}
	}
	for _, notifier := range b.Notifiers {
		if notifier == nil {
			continue
		}
		if notifyErr := notifier.Notify(ctx, ev); notifyErr != nil {
			joined = errors.Join(joined, fmt.Errorf("events: notifier: %w", notifyErr))
		}
	}
	return ev, joined
}

// Decode rebuilds an Event from a queued task.
func Decode(task *asynq.Task) (Event, error) {
	var ev Event
	if task == nil {
		return ev, errors.New("events: nil task")
	}
	if err := json.Unmarshal(task.Payload(), &ev); err != nil {
		return ev, fmt.Errorf("events: decode %s: %w", task.Type(), err)
	}
	if ev.Topic == "" {
		ev.Topic = task.Type()
	}
	return ev, nil
}

func encodePayload(payload any) ([]byte, error) {
	if payload == nil {
		return []byte("{}"), nil
	}
	switch v := payload.(type) {
	case []byte:
		if len(v) == 0 {
			return []byte("{}"), nil
		}
		if !json.Valid(v) {
			return nil, errors.New("payload is not valid json")
		}
		return append([]byte(nil), v...), nil
	case json.RawMessage:
		if len(v) == 0 {
			return []byte("{}"), nil
		}
		if !json.Valid(v) {
			return nil, errors.New("payload is not valid json")
		}
		return append([]byte(nil), v...), nil
	default:
		return json.Marshal(v)
	}
}
