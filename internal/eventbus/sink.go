package eventbus

import (
	"context"

	"github.com/llmwebagent/agent/internal/model"
	"github.com/rs/zerolog"
)

// LogSink drains a Subscription and renders each Event as a structured
// zerolog line, for CLI observers that want log lines rather than a
// programmatic feed.
type LogSink struct {
	logger zerolog.Logger
}

// NewLogSink wraps an existing zerolog.Logger as an event observer.
func NewLogSink(logger zerolog.Logger) *LogSink {
	return &LogSink{logger: logger}
}

// Run drains sub until ctx is cancelled or the subscription's channel
// closes, logging one line per event.
func (s *LogSink) Run(ctx context.Context, sub *Subscription) {
	for {
		select {
		case evt, ok := <-sub.Events:
			if !ok {
				return
			}
			s.logEvent(evt)
		case <-ctx.Done():
			return
		}
	}
}

func (s *LogSink) logEvent(evt model.Event) {
	ev := s.logger.Info().
		Str("kind", string(evt.Kind)).
		Uint64("sequence", evt.Sequence)
	for k, v := range evt.Payload {
		ev = ev.Interface(k, v)
	}
	ev.Msg("webagent event")
}
