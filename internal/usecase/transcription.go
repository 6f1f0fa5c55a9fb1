package usecase

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"vochat/internal/domain"
	"vochat/internal/ports"
)

// DefaultCloseTimeout bounds how long WaitForClose waits for the provider.
const DefaultCloseTimeout = 5 * time.Second

// TranscriptionConfig describes one streaming transcription session.
type TranscriptionConfig struct {
	Audio     ports.AudioConfig
	Streaming ports.StreamingConfig
}

// TranscriptionSession owns one provider connection and the microphone
// capture feeding it. Events and mid-stream failures are delivered through
// the callbacks passed to NewTranscriptionSession; the error callback fires
// at most once.
type TranscriptionSession struct {
	provider ports.TranscriptionProvider
	capture  ports.AudioCapture
	cfg      TranscriptionConfig
	onEvent  func(domain.TranscriptEvent)
	onError  func(error)
	logger   zerolog.Logger

	startDone chan struct{}
	errOnce   sync.Once

	mu         sync.Mutex
	stopped    bool
	startErr   error
	cancel     context.CancelFunc
	stream     ports.StreamingSession
	audio      ports.AudioSession
	pumpDone   chan struct{}
	eventsDone chan struct{}
}

func NewTranscriptionSession(
	provider ports.TranscriptionProvider,
	capture ports.AudioCapture,
	cfg TranscriptionConfig,
	onEvent func(domain.TranscriptEvent),
	onError func(error),
	logger zerolog.Logger,
) *TranscriptionSession {
	if onEvent == nil {
		onEvent = func(domain.TranscriptEvent) {}
	}
	if onError == nil {
		onError = func(error) {}
	}
	return &TranscriptionSession{
		provider:  provider,
		capture:   capture,
		cfg:       cfg,
		onEvent:   onEvent,
		onError:   onError,
		logger:    logger,
		startDone: make(chan struct{}),
	}
}

// Start connects to the provider and begins capturing. It fails with a
// connect error when the token, handshake or microphone cannot be obtained.
// A Stop that arrives while Start runs makes Start release what it acquired.
// Start must be called exactly once.
func (s *TranscriptionSession) Start(ctx context.Context, style domain.StyleHint) (err error) {
	defer func() {
		s.mu.Lock()
		s.startErr = err
		s.mu.Unlock()
		close(s.startDone)
	}()

	sessionCtx, cancel := context.WithCancel(ctx)

	streamCfg := s.cfg.Streaming
	streamCfg.Style = style
	streamCfg.InterimResults = true

	stream, err := s.provider.StartStreaming(sessionCtx, streamCfg)
	if err != nil {
		cancel()
		return asConnectError("failed to open transcription stream", err)
	}

	if s.isStopped() {
		_ = stream.Close()
		cancel()
		return nil
	}

	audio, err := s.capture.Start(sessionCtx, s.cfg.Audio)
	if err != nil {
		_ = stream.Close()
		cancel()
		return asConnectError("failed to start microphone", err)
	}

	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		_ = audio.Stop()
		_ = stream.Close()
		cancel()
		return nil
	}
	s.cancel = cancel
	s.stream = stream
	s.audio = audio
	s.pumpDone = make(chan struct{})
	s.eventsDone = make(chan struct{})
	s.mu.Unlock()

	go s.forwardEvents(stream, s.eventsDone)
	go pumpAudioChunks(audio, stream, chunkSizeFor(s.cfg.Audio), s.reportError, s.pumpDone)
	go s.watchTransport(stream)

	s.logger.Debug().Int("chunkBytes", chunkSizeFor(s.cfg.Audio)).Msg("transcription session started")
	return nil
}

// Stop ends capture. The pump then flushes the last chunk and asks the
// provider to close. Safe to call before, during or after Start.
func (s *TranscriptionSession) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	audio := s.audio
	s.mu.Unlock()

	if audio == nil {
		return
	}
	if err := audio.Stop(); err != nil {
		s.logger.Warn().Err(err).Msg("audio capture did not stop cleanly")
	}
}

// WaitForClose blocks until the provider closes the stream or timeout
// elapses, whichever comes first. On timeout the connection is closed
// locally and nil is returned. A transport failure seen before closure is
// returned as a transport error. Resources are released in every case.
func (s *TranscriptionSession) WaitForClose(timeout time.Duration) error {
	if timeout <= 0 {
		timeout = DefaultCloseTimeout
	}
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	select {
	case <-s.startDone:
	case <-deadline.C:
		s.logger.Warn().Dur("timeout", timeout).Msg("transcription start did not finish before close timeout")
		s.Stop()
		go func() {
			<-s.startDone
			s.forceClose()
		}()
		return nil
	}

	s.mu.Lock()
	stream := s.stream
	cancel := s.cancel
	pumpDone := s.pumpDone
	eventsDone := s.eventsDone
	s.mu.Unlock()

	if stream == nil {
		return nil
	}
	defer cancel()

	timedOut := false
	select {
	case <-stream.Done():
	case <-deadline.C:
		timedOut = true
		s.logger.Warn().Dur("timeout", timeout).Msg("provider did not close stream in time; forcing close")
	}

	_ = stream.Close()
	<-eventsDone
	<-pumpDone

	if timedOut {
		return nil
	}
	if err := stream.Err(); err != nil {
		return asTransportError(err)
	}
	return nil
}

func (s *TranscriptionSession) forceClose() {
	s.mu.Lock()
	stream := s.stream
	cancel := s.cancel
	s.mu.Unlock()

	if stream != nil {
		_ = stream.Close()
		cancel()
	}
}

// StartErr returns the error Start finished with, if it has finished.
func (s *TranscriptionSession) StartErr() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.startErr
}

func (s *TranscriptionSession) isStopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

func (s *TranscriptionSession) forwardEvents(stream ports.StreamingSession, done chan struct{}) {
	defer close(done)
	for event := range stream.Events() {
		s.onEvent(event)
	}
}

// watchTransport reports a transport failure that happens while audio is
// still flowing. Failures after Stop are returned by WaitForClose instead.
func (s *TranscriptionSession) watchTransport(stream ports.StreamingSession) {
	<-stream.Done()
	if s.isStopped() {
		return
	}
	if err := stream.Err(); err != nil {
		s.reportError(asTransportError(err))
	}
}

func (s *TranscriptionSession) reportError(err error) {
	if err == nil {
		return
	}
	s.errOnce.Do(func() {
		s.logger.Error().Err(err).Msg("transcription stream failed")
		s.onError(err)
	})
}

func asConnectError(message string, err error) error {
	if domain.KindOf(err) != "" {
		return err
	}
	return domain.NewError(domain.KindConnect, message, err)
}

func asTransportError(err error) error {
	if errors.Is(err, domain.ErrTransport) {
		return err
	}
	return domain.NewError(domain.KindTransport, "transcription stream failed", err)
}
