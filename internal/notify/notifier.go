// Package notify mirrors session errors to desktop notifications so they are
// visible while the overlay is hidden.
package notify

import (
	"github.com/gen2brain/beeep"
	"github.com/rs/zerolog"

	"vochat/internal/domain"
	"vochat/internal/ports"
)

const title = "vochat"

type notifyFunc func(title, message string) error

// Sink wraps an EventSink and raises a desktop notification per session error.
type Sink struct {
	next   ports.EventSink
	notify notifyFunc
	logger zerolog.Logger
}

var _ ports.EventSink = (*Sink)(nil)

func Wrap(next ports.EventSink, logger zerolog.Logger) *Sink {
	return &Sink{next: next, notify: desktopNotify, logger: logger}
}

func (s *Sink) SessionStateChanged(state domain.SessionState, reason domain.SessionStateReason, message string) {
	if s.next != nil {
		s.next.SessionStateChanged(state, reason, message)
	}
	if message == "" {
		return
	}
	if state == domain.SessionStateError || reason == domain.SessionReasonQuotaFallback {
		s.raise(message)
	}
}

func (s *Sink) PartialTranscript(text string) {
	if s.next != nil {
		s.next.PartialTranscript(text)
	}
}

func (s *Sink) FinalTranscript(result domain.StopResult) {
	if s.next != nil {
		s.next.FinalTranscript(result)
	}
}

func (s *Sink) SessionError(code domain.ErrorCode, detail string) {
	if s.next != nil {
		s.next.SessionError(code, detail)
	}
	if code == domain.ErrorCodeStartup {
		s.raise("Startup failed: " + detail)
	}
}

func (s *Sink) raise(message string) {
	if err := s.notify(title, message); err != nil {
		s.logger.Debug().Err(err).Msg("desktop notification failed")
	}
}

func desktopNotify(title, message string) error {
	return beeep.Notify(title, message, "")
}
