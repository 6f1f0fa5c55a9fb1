package usecase

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"vochat/internal/domain"
	"vochat/internal/ports"
)

type fakeAudioCapture struct {
	mu       sync.Mutex
	sessions []*fakeAudioSession
	err      error
	calls    int
}

func (f *fakeAudioCapture) Start(_ context.Context, _ ports.AudioConfig) (ports.AudioSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if len(f.sessions) == 0 {
		return newFakeAudioSession(), nil
	}
	session := f.sessions[0]
	f.sessions = f.sessions[1:]
	return session, nil
}

// fakeAudioSession serves chunks and then blocks like a live microphone
// until Stop is called.
type fakeAudioSession struct {
	mu        sync.Mutex
	chunks    [][]byte
	pending   []byte
	stopCalls int
	stopped   chan struct{}
	stopErr   error
}

func newFakeAudioSession(chunks ...[]byte) *fakeAudioSession {
	return &fakeAudioSession{chunks: chunks, stopped: make(chan struct{})}
}

func (f *fakeAudioSession) Read(p []byte) (int, error) {
	f.mu.Lock()
	if len(f.pending) == 0 && len(f.chunks) > 0 {
		f.pending = f.chunks[0]
		f.chunks = f.chunks[1:]
	}
	if len(f.pending) > 0 {
		n := copy(p, f.pending)
		f.pending = f.pending[n:]
		f.mu.Unlock()
		return n, nil
	}
	stopped := f.stopped
	f.mu.Unlock()

	if stopped != nil {
		<-stopped
	}
	return 0, io.EOF
}

func (f *fakeAudioSession) Close() error { return f.Stop() }

func (f *fakeAudioSession) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopCalls++
	if f.stopCalls == 1 && f.stopped != nil {
		close(f.stopped)
	}
	return f.stopErr
}

type fakeProvider struct {
	mu       sync.Mutex
	streams  []*fakeStream
	err      error
	calls    int
	lastCfg  ports.StreamingConfig
	delay    time.Duration
	returned []*fakeStream
}

func (f *fakeProvider) StartStreaming(_ context.Context, cfg ports.StreamingConfig) (ports.StreamingSession, error) {
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.lastCfg = cfg
	if f.err != nil {
		return nil, f.err
	}
	stream := newFakeStream()
	if len(f.streams) > 0 {
		stream = f.streams[0]
		f.streams = f.streams[1:]
	}
	f.returned = append(f.returned, stream)
	return stream, nil
}

func (f *fakeProvider) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// fakeStream acknowledges CloseSend by closing, unless ackClose is false.
type fakeStream struct {
	mu         sync.Mutex
	sent       [][]byte
	sendErr    error
	closeSends int
	closeCalls int
	ackClose   bool
	finished   bool
	err        error

	events chan domain.TranscriptEvent
	done   chan struct{}
}

func newFakeStream(events ...domain.TranscriptEvent) *fakeStream {
	f := &fakeStream{
		ackClose: true,
		events:   make(chan domain.TranscriptEvent, 16),
		done:     make(chan struct{}),
	}
	for _, event := range events {
		f.events <- event
	}
	return f
}

func (f *fakeStream) SendAudio(chunk []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, append([]byte(nil), chunk...))
	return nil
}

func (f *fakeStream) CloseSend() error {
	f.mu.Lock()
	f.closeSends++
	ack := f.ackClose
	f.mu.Unlock()
	if ack {
		f.finish(nil)
	}
	return nil
}

func (f *fakeStream) Events() <-chan domain.TranscriptEvent { return f.events }
func (f *fakeStream) Done() <-chan struct{}                 { return f.done }

func (f *fakeStream) Err() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.err
}

func (f *fakeStream) Close() error {
	f.mu.Lock()
	f.closeCalls++
	f.mu.Unlock()
	f.finish(nil)
	return nil
}

func (f *fakeStream) finish(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.finished {
		return
	}
	f.finished = true
	f.err = err
	close(f.events)
	close(f.done)
}

func (f *fakeStream) sentChunks() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([][]byte, len(f.sent))
	copy(out, f.sent)
	return out
}

func (f *fakeStream) closeSendCalled() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closeSends > 0
}

func (f *fakeStream) closeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closeCalls
}

type upperNormalizer struct {
	err error
}

func (n upperNormalizer) Normalize(text string) (string, error) {
	if n.err != nil {
		return "", n.err
	}
	return strings.ToUpper(text), nil
}

type fakeRefiner struct {
	mu       sync.Mutex
	requests []ports.RefineRequest
	errs     []error
	text     string
}

func (f *fakeRefiner) Refine(_ context.Context, req ports.RefineRequest) (ports.RefineResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if len(f.errs) > 0 {
		err := f.errs[0]
		if len(f.errs) > 1 {
			f.errs = f.errs[1:]
		}
		if err != nil {
			return ports.RefineResult{}, err
		}
	}
	return ports.RefineResult{RefinedText: f.text, WordCount: len(strings.Fields(f.text))}, nil
}

func (f *fakeRefiner) snapshot() []ports.RefineRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]ports.RefineRequest, len(f.requests))
	copy(out, f.requests)
	return out
}

type fakeInserter struct {
	mu        sync.Mutex
	clipboard string
	pastes    int
	writeErr  error
	pasteErr  error
}

func (f *fakeInserter) WriteClipboard(_ context.Context, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.writeErr != nil {
		return f.writeErr
	}
	f.clipboard = text
	return nil
}

func (f *fakeInserter) SimulatePaste(_ context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pasteErr != nil {
		return f.pasteErr
	}
	f.pastes++
	return nil
}

func (f *fakeInserter) snapshot() (string, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.clipboard, f.pastes
}

type fakeAuth bool

func (f fakeAuth) Authenticated() bool { return bool(f) }

type fakeEventSink struct {
	mu sync.Mutex

	states   []stateEvent
	finals   []domain.StopResult
	partials []string
	errors   []errEvent
}

type stateEvent struct {
	state   domain.SessionState
	reason  domain.SessionStateReason
	message string
}

type errEvent struct {
	code   domain.ErrorCode
	detail string
}

func (f *fakeEventSink) SessionStateChanged(state domain.SessionState, reason domain.SessionStateReason, message string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.states = append(f.states, stateEvent{state: state, reason: reason, message: message})
}

func (f *fakeEventSink) PartialTranscript(text string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.partials = append(f.partials, text)
}

func (f *fakeEventSink) FinalTranscript(result domain.StopResult) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.finals = append(f.finals, result)
}

func (f *fakeEventSink) SessionError(code domain.ErrorCode, detail string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errors = append(f.errors, errEvent{code: code, detail: detail})
}

func (f *fakeEventSink) snapshotStates() []stateEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]stateEvent, len(f.states))
	copy(out, f.states)
	return out
}

func (f *fakeEventSink) snapshotErrors() []errEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]errEvent, len(f.errors))
	copy(out, f.errors)
	return out
}

func (f *fakeEventSink) snapshotFinals() []domain.StopResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.StopResult, len(f.finals))
	copy(out, f.finals)
	return out
}

func (f *fakeEventSink) snapshotPartials() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.partials))
	copy(out, f.partials)
	return out
}

func (f *fakeEventSink) sawReason(reason domain.SessionStateReason) bool {
	for _, state := range f.snapshotStates() {
		if state.reason == reason {
			return true
		}
	}
	return false
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

var errBoom = errors.New("boom")
