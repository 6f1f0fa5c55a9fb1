package notify

import (
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"vochat/internal/domain"
)

func TestSinkRaisesOnErrorState(t *testing.T) {
	t.Parallel()

	next := &countingSink{}
	sink, sent := newTestSink(next, nil)

	sink.SessionStateChanged(domain.SessionStateRecording, domain.SessionReasonRecordingStarted, "Listening...")
	sink.SessionStateChanged(domain.SessionStateError, domain.SessionReasonNoTranscript, "No speech detected")

	if next.states != 2 {
		t.Fatalf("expected both transitions forwarded, got %d", next.states)
	}
	if len(*sent) != 1 || (*sent)[0] != "No speech detected" {
		t.Fatalf("unexpected notifications: %v", *sent)
	}
}

func TestSinkRaisesOnQuotaFallback(t *testing.T) {
	t.Parallel()

	sink, sent := newTestSink(nil, nil)
	sink.SessionStateChanged(domain.SessionStateProcessing, domain.SessionReasonQuotaFallback, "weekly limit reached (2000/2000 words)")

	if len(*sent) != 1 {
		t.Fatalf("expected quota notification, got %v", *sent)
	}
}

func TestSinkRaisesOnStartupError(t *testing.T) {
	t.Parallel()

	next := &countingSink{}
	sink, sent := newTestSink(next, errors.New("no notification daemon"))

	sink.SessionError(domain.ErrorCodeTranscription, "Transcription failed")
	sink.SessionError(domain.ErrorCodeStartup, "invalid rules")
	sink.PartialTranscript("hi")
	sink.FinalTranscript(domain.StopResult{})

	if next.errors != 2 || next.partials != 1 || next.finals != 1 {
		t.Fatalf("expected all events forwarded: %+v", next)
	}
	if len(*sent) != 1 || (*sent)[0] != "Startup failed: invalid rules" {
		t.Fatalf("unexpected notifications: %v", *sent)
	}
}

func newTestSink(next *countingSink, err error) (*Sink, *[]string) {
	sent := &[]string{}
	var sink *Sink
	if next == nil {
		sink = Wrap(nil, zerolog.Nop())
	} else {
		sink = Wrap(next, zerolog.Nop())
	}
	sink.notify = func(_, message string) error {
		*sent = append(*sent, message)
		return err
	}
	return sink, sent
}

type countingSink struct {
	states   int
	partials int
	finals   int
	errors   int
}

func (c *countingSink) SessionStateChanged(domain.SessionState, domain.SessionStateReason, string) {
	c.states++
}
func (c *countingSink) PartialTranscript(string)             { c.partials++ }
func (c *countingSink) FinalTranscript(domain.StopResult)    { c.finals++ }
func (c *countingSink) SessionError(domain.ErrorCode, string) { c.errors++ }
