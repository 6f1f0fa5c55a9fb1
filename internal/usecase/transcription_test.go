package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"vochat/internal/domain"
)

type eventRecorder struct {
	mu     sync.Mutex
	events []domain.TranscriptEvent
	errs   []error
}

func (r *eventRecorder) onEvent(event domain.TranscriptEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *eventRecorder) onError(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errs = append(r.errs, err)
}

func (r *eventRecorder) snapshot() ([]domain.TranscriptEvent, []error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.TranscriptEvent(nil), r.events...), append([]error(nil), r.errs...)
}

func newTestSession(provider *fakeProvider, capture *fakeAudioCapture, rec *eventRecorder) *TranscriptionSession {
	return NewTranscriptionSession(provider, capture, TranscriptionConfig{}, rec.onEvent, rec.onError, zerolog.Nop())
}

func TestTranscriptionSessionForwardsEventsAndDrains(t *testing.T) {
	t.Parallel()

	stream := newFakeStream(
		domain.TranscriptEvent{Text: "hel", Seq: 1},
		domain.TranscriptEvent{Text: "hello", IsFinal: true, Seq: 2},
	)
	audio := newFakeAudioSession(make([]byte, 3200), make([]byte, 3200))
	provider := &fakeProvider{streams: []*fakeStream{stream}}
	rec := &eventRecorder{}

	session := newTestSession(provider, &fakeAudioCapture{sessions: []*fakeAudioSession{audio}}, rec)
	if err := session.Start(context.Background(), domain.StyleHint{ProfileID: "p1", Language: "en"}); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if provider.lastCfg.Style.ProfileID != "p1" || !provider.lastCfg.InterimResults {
		t.Fatalf("unexpected streaming config: %+v", provider.lastCfg)
	}

	waitFor(t, "audio chunks", func() bool { return len(stream.sentChunks()) == 2 })

	session.Stop()
	if err := session.WaitForClose(time.Second); err != nil {
		t.Fatalf("wait failed: %v", err)
	}

	events, errs := rec.snapshot()
	if len(events) != 2 || events[1].Text != "hello" {
		t.Fatalf("unexpected events: %+v", events)
	}
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	if !stream.closeSendCalled() {
		t.Fatalf("expected CloseSend on stop")
	}
}

func TestTranscriptionSessionWaitForCloseIsBoundedWithoutAck(t *testing.T) {
	t.Parallel()

	stream := newFakeStream()
	stream.ackClose = false
	provider := &fakeProvider{streams: []*fakeStream{stream}}
	rec := &eventRecorder{}

	session := newTestSession(provider, &fakeAudioCapture{}, rec)
	if err := session.Start(context.Background(), domain.StyleHint{}); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	session.Stop()
	started := time.Now()
	err := session.WaitForClose(50 * time.Millisecond)
	elapsed := time.Since(started)

	if err != nil {
		t.Fatalf("timeout must be recovered, got %v", err)
	}
	if elapsed > time.Second {
		t.Fatalf("wait exceeded bound: %s", elapsed)
	}
	if stream.closeCount() == 0 {
		t.Fatalf("expected forced close after timeout")
	}
}

func TestTranscriptionSessionReturnsTransportErrorOnClose(t *testing.T) {
	t.Parallel()

	stream := newFakeStream()
	stream.ackClose = false
	provider := &fakeProvider{streams: []*fakeStream{stream}}
	rec := &eventRecorder{}

	session := newTestSession(provider, &fakeAudioCapture{}, rec)
	if err := session.Start(context.Background(), domain.StyleHint{}); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	session.Stop()
	go stream.finish(errBoom)

	err := session.WaitForClose(time.Second)
	if !errors.Is(err, domain.ErrTransport) || !errors.Is(err, errBoom) {
		t.Fatalf("expected transport error, got %v", err)
	}

	_, errs := rec.snapshot()
	if len(errs) != 0 {
		t.Fatalf("failures after stop must not use the error callback: %v", errs)
	}
}

func TestTranscriptionSessionReportsMidStreamFailureOnce(t *testing.T) {
	t.Parallel()

	stream := newFakeStream()
	stream.sendErr = errBoom
	audio := newFakeAudioSession(make([]byte, 3200))
	provider := &fakeProvider{streams: []*fakeStream{stream}}
	rec := &eventRecorder{}

	session := newTestSession(provider, &fakeAudioCapture{sessions: []*fakeAudioSession{audio}}, rec)
	if err := session.Start(context.Background(), domain.StyleHint{}); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	waitFor(t, "error callback", func() bool {
		_, errs := rec.snapshot()
		return len(errs) > 0
	})
	stream.finish(errBoom)
	time.Sleep(20 * time.Millisecond)

	_, errs := rec.snapshot()
	if len(errs) != 1 || !errors.Is(errs[0], domain.ErrTransport) {
		t.Fatalf("expected exactly one transport error, got %v", errs)
	}

	session.Stop()
	_ = session.WaitForClose(time.Second)
}

func TestTranscriptionSessionStartFailuresAreConnectErrors(t *testing.T) {
	t.Parallel()

	rec := &eventRecorder{}
	session := newTestSession(&fakeProvider{err: errBoom}, &fakeAudioCapture{}, rec)
	err := session.Start(context.Background(), domain.StyleHint{})
	if !errors.Is(err, domain.ErrConnect) {
		t.Fatalf("expected connect error, got %v", err)
	}
	if !errors.Is(session.StartErr(), domain.ErrConnect) {
		t.Fatalf("expected StartErr to be recorded")
	}
	if err := session.WaitForClose(time.Second); err != nil {
		t.Fatalf("wait after failed start should be nil, got %v", err)
	}

	stream := newFakeStream()
	session = newTestSession(&fakeProvider{streams: []*fakeStream{stream}}, &fakeAudioCapture{err: errBoom}, rec)
	if err := session.Start(context.Background(), domain.StyleHint{}); !errors.Is(err, domain.ErrConnect) {
		t.Fatalf("expected connect error for microphone failure, got %v", err)
	}
	if stream.closeCount() == 0 {
		t.Fatalf("stream must be released when the microphone fails")
	}
}

func TestTranscriptionSessionStopBeforeStartReleasesResources(t *testing.T) {
	t.Parallel()

	stream := newFakeStream()
	capture := &fakeAudioCapture{}
	rec := &eventRecorder{}
	session := newTestSession(&fakeProvider{streams: []*fakeStream{stream}}, capture, rec)

	session.Stop()
	if err := session.Start(context.Background(), domain.StyleHint{}); err != nil {
		t.Fatalf("start after stop should be a no-op, got %v", err)
	}
	if stream.closeCount() == 0 {
		t.Fatalf("expected stream to be closed")
	}
	if err := session.WaitForClose(time.Second); err != nil {
		t.Fatalf("unexpected wait error: %v", err)
	}
}
