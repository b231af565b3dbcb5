package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-sekolah/internal/obs"
)

// Kind is the severity of a user-facing notification.
type Kind string

const (
	KindInfo    Kind = "info"
	KindSuccess Kind = "success"
	KindWarning Kind = "warning"
	KindError   Kind = "error"
)

// ParseKind normalises raw into a Kind, defaulting to info.
func ParseKind(raw string) Kind {
	switch k := Kind(strings.ToLower(strings.TrimSpace(raw))); k {
	case KindSuccess, KindWarning, KindError:
		return k
	default:
		return KindInfo
	}
}

// Sink delivers a short message to the counter staff.
type Sink interface {
	Notify(ctx context.Context, kind Kind, message string) error
}

// LogSink writes notifications to the structured log.
type LogSink struct {
	Logger zerolog.Logger
}

// Notify implements Sink.
func (s LogSink) Notify(_ context.Context, kind Kind, message string) error {
	var ev *zerolog.Event
	switch kind {
	case KindError:
		ev = s.Logger.Error()
	case KindWarning:
		ev = s.Logger.Warn()
	default:
		ev = s.Logger.Info()
	}
	ev.Str("kind", string(kind)).Msg(message)
	obs.RecordNotification("log", string(kind), "ok")
	return nil
}

// MultiSink fans a notification out to every sink. All sinks are tried
// even when one fails.
type MultiSink []Sink

// Notify implements Sink.
func (m MultiSink) Notify(ctx context.Context, kind Kind, message string) error {
	var joined error
	for i, s := range m {
		if s == nil {
			continue
		}
		if err := s.Notify(ctx, kind, message); err != nil {
			joined = errors.Join(joined, fmt.Errorf("sink %d: %w", i, err))
		}
	}
	return joined
}
