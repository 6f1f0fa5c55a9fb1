package usecase

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"vochat/internal/domain"
	"vochat/internal/observability/logging"
	"vochat/internal/ports"
	"vochat/internal/transcript"
)

// ErrControllerStopped is returned by hotkey calls once Run has exited.
var ErrControllerStopped = errors.New("recording controller is not running")

const (
	// DefaultHoldThreshold is how long the hotkey must be held before
	// recording starts. Shorter presses are ignored as taps.
	DefaultHoldThreshold = 200 * time.Millisecond
	// DefaultDisplayHold is how long a result stays visible before idle.
	DefaultDisplayHold = 2 * time.Second
	// DefaultErrorHold is how long an error stays visible before idle.
	DefaultErrorHold = 3 * time.Second
)

// Config controls hold-to-talk recording behavior.
type Config struct {
	HoldThreshold time.Duration
	DisplayHold   time.Duration
	ErrorHold     time.Duration
	CloseTimeout  time.Duration
	Style         domain.StyleHint
	Transcription TranscriptionConfig
	Delivery      DeliveryConfig
}

func (c Config) withDefaults() Config {
	if c.HoldThreshold <= 0 {
		c.HoldThreshold = DefaultHoldThreshold
	}
	if c.DisplayHold <= 0 {
		c.DisplayHold = DefaultDisplayHold
	}
	if c.ErrorHold <= 0 {
		c.ErrorHold = DefaultErrorHold
	}
	if c.CloseTimeout <= 0 {
		c.CloseTimeout = DefaultCloseTimeout
	}
	return c
}

// Dependencies are the collaborators a RecordingController drives.
type Dependencies struct {
	Audio      ports.AudioCapture
	Provider   ports.TranscriptionProvider
	Refiner    ports.Refiner
	Normalizer ports.Normalizer
	Inserter   ports.Inserter
	Auth       ports.Authenticator
	Events     ports.EventSink
}

// RecordingController turns hotkey press/release into recordings.
//
// All state lives on the goroutine running Run. Hotkeys, timers and I/O
// results arrive as messages on one inbox, so a hold-timer fire and a
// release are always handled one after the other, never concurrently.
type RecordingController struct {
	deps      Dependencies
	cfg       Config
	finalizer transcriptFinalizer
	logger    zerolog.Logger
	newID     func() string

	inbox   chan loopMsg
	stopped chan struct{}
	running sync.Once

	// loop-owned
	ctx     context.Context
	state   domain.SessionState
	current *recording
	hold    *loopTimer
	reset   *loopTimer

	statusMu       sync.RWMutex
	status         domain.Status
	lastTranscript string
}

type recording struct {
	id          string
	session     *TranscriptionSession
	accumulator *transcript.Accumulator
}

type loopMsg interface{}

type (
	hotkeyPressedMsg  struct{}
	hotkeyReleasedMsg struct{}
	holdFiredMsg      struct{ gen uint64 }
	resetFiredMsg     struct{ gen uint64 }
	sessionStartedMsg struct {
		id  string
		err error
	}
	transcriptMsg struct {
		id    string
		event domain.TranscriptEvent
	}
	sessionFailedMsg struct {
		id  string
		err error
	}
	drainedMsg struct {
		id       string
		drainErr error
		startErr error
	}
	deliveredMsg struct {
		id      string
		outcome deliveryOutcome
	}
)

func NewRecordingController(deps Dependencies, cfg Config) *RecordingController {
	cfg = cfg.withDefaults()
	logger := logging.WithComponent("recording")

	c := &RecordingController{
		deps:      deps,
		cfg:       cfg,
		finalizer: newTranscriptFinalizer(cfg.Delivery, deps.Refiner, deps.Normalizer, deps.Inserter, logger),
		logger:    logger,
		newID:     func() string { return uuid.NewString() },
		inbox:     make(chan loopMsg, 64),
		stopped:   make(chan struct{}),
		state:     domain.SessionStateIdle,
		status:    domain.Status{State: domain.SessionStateIdle},
	}
	c.hold = newLoopTimer(func(gen uint64) { c.post(holdFiredMsg{gen: gen}) })
	c.reset = newLoopTimer(func(gen uint64) { c.post(resetFiredMsg{gen: gen}) })
	return c
}

// Run processes events until ctx is cancelled. Cancelling ctx disposes the
// controller: timers are cancelled and any active recording is torn down.
func (c *RecordingController) Run(ctx context.Context) error {
	started := false
	c.running.Do(func() { started = true })
	if !started {
		return errors.New("recording controller already running")
	}

	c.ctx = ctx
	defer close(c.stopped)
	defer c.dispose()

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg := <-c.inbox:
			c.handle(msg)
		}
	}
}

// HotkeyPressed reports a hotkey press.
func (c *RecordingController) HotkeyPressed() error {
	return c.post(hotkeyPressedMsg{})
}

// HotkeyReleased reports a hotkey release.
func (c *RecordingController) HotkeyReleased() error {
	return c.post(hotkeyReleasedMsg{})
}

// Status returns the latest published status.
func (c *RecordingController) Status() domain.Status {
	c.statusMu.RLock()
	defer c.statusMu.RUnlock()
	return c.status
}

// LastTranscript returns the most recent delivered text, inserted or not.
func (c *RecordingController) LastTranscript() string {
	c.statusMu.RLock()
	defer c.statusMu.RUnlock()
	return c.lastTranscript
}

func (c *RecordingController) post(msg loopMsg) error {
	select {
	case <-c.stopped:
		return ErrControllerStopped
	default:
	}
	select {
	case c.inbox <- msg:
		return nil
	case <-c.stopped:
		return ErrControllerStopped
	}
}

func (c *RecordingController) handle(msg loopMsg) {
	switch m := msg.(type) {
	case hotkeyPressedMsg:
		c.onPressed()
	case hotkeyReleasedMsg:
		c.onReleased()
	case holdFiredMsg:
		if c.hold.Accept(m.gen) {
			c.onHoldFired()
		}
	case resetFiredMsg:
		if c.reset.Accept(m.gen) {
			c.current = nil
			c.transition(domain.SessionStateIdle, domain.SessionReasonReady, "")
		}
	case sessionStartedMsg:
		c.onSessionStarted(m)
	case transcriptMsg:
		c.onTranscript(m)
	case sessionFailedMsg:
		c.onSessionFailed(m)
	case drainedMsg:
		c.onDrained(m)
	case deliveredMsg:
		c.onDelivered(m)
	}
}

func (c *RecordingController) onPressed() {
	if c.state != domain.SessionStateIdle {
		return
	}
	c.hold.Arm(c.cfg.HoldThreshold)
	c.transition(domain.SessionStateArmed, domain.SessionReasonHoldArmed, "")
}

func (c *RecordingController) onReleased() {
	switch c.state {
	case domain.SessionStateArmed:
		c.hold.Cancel()
		c.transition(domain.SessionStateIdle, domain.SessionReasonTapIgnored, "")
	case domain.SessionStateRecording:
		c.beginProcessing()
	}
}

func (c *RecordingController) onHoldFired() {
	if c.state != domain.SessionStateArmed {
		return
	}
	if c.deps.Auth != nil && !c.deps.Auth.Authenticated() {
		c.fail(domain.ErrorCodeAuth, domain.SessionReasonNotAuthenticated, "Please sign in first")
		return
	}

	id := c.newID()
	rec := &recording{id: id, accumulator: transcript.New()}
	rec.session = NewTranscriptionSession(
		c.deps.Provider,
		c.deps.Audio,
		c.cfg.Transcription,
		func(event domain.TranscriptEvent) { _ = c.post(transcriptMsg{id: id, event: event}) },
		func(err error) { _ = c.post(sessionFailedMsg{id: id, err: err}) },
		logging.WithSession(c.logger, id),
	)
	c.current = rec
	c.transition(domain.SessionStateRecording, domain.SessionReasonRecordingStarted, "Listening...")

	ctx := c.ctx
	style := c.cfg.Style
	go func() {
		err := rec.session.Start(ctx, style)
		_ = c.post(sessionStartedMsg{id: id, err: err})
	}()
}

func (c *RecordingController) onSessionStarted(m sessionStartedMsg) {
	if m.err == nil || !c.isCurrent(m.id) || c.state != domain.SessionStateRecording {
		return
	}
	c.logger.Error().Err(m.err).Str("clientSessionId", m.id).Msg("failed to start transcription")
	c.failWithError(m.err)
}

func (c *RecordingController) onTranscript(m transcriptMsg) {
	if !c.isCurrent(m.id) {
		return
	}
	if c.state != domain.SessionStateRecording && c.state != domain.SessionStateProcessing {
		return
	}
	state := c.current.accumulator.OnEvent(m.event)
	if c.deps.Events != nil {
		c.deps.Events.PartialTranscript(state.Display())
	}
}

func (c *RecordingController) onSessionFailed(m sessionFailedMsg) {
	// While draining, WaitForClose reports the failure instead.
	if !c.isCurrent(m.id) || c.state != domain.SessionStateRecording {
		return
	}
	c.fail(domain.ErrorCodeTranscription, domain.SessionReasonTranscriptionFailed, "Transcription failed")
}

func (c *RecordingController) beginProcessing() {
	rec := c.current
	c.transition(domain.SessionStateProcessing, domain.SessionReasonTranscribing, "Processing...")

	timeout := c.cfg.CloseTimeout
	go func() {
		rec.session.Stop()
		drainErr := rec.session.WaitForClose(timeout)
		_ = c.post(drainedMsg{id: rec.id, drainErr: drainErr, startErr: rec.session.StartErr()})
	}()
}

func (c *RecordingController) onDrained(m drainedMsg) {
	if !c.isCurrent(m.id) || c.state != domain.SessionStateProcessing {
		return
	}

	raw := c.current.accumulator.Finalize()
	if raw == "" {
		switch {
		case m.startErr != nil:
			c.failWithError(m.startErr)
		case m.drainErr != nil:
			c.logger.Error().Err(m.drainErr).Msg("transcription failed")
			c.fail(domain.ErrorCodeTranscription, domain.SessionReasonTranscriptionFailed, "Transcription failed")
		default:
			c.fail(domain.ErrorCodeTranscription, domain.SessionReasonNoTranscript, "No speech detected")
		}
		return
	}
	if m.drainErr != nil {
		c.logger.Warn().Err(m.drainErr).Msg("stream ended with an error; delivering what was transcribed")
	}

	if c.cfg.Delivery.Mode == domain.DeliveryRefineThenInsert && c.deps.Refiner != nil {
		c.transition(domain.SessionStateProcessing, domain.SessionReasonRefining, "Refining...")
	}

	ctx := c.ctx
	id := m.id
	go func() {
		outcome := c.finalizer.Finalize(ctx, id, raw)
		_ = c.post(deliveredMsg{id: id, outcome: outcome})
	}()
}

func (c *RecordingController) onDelivered(m deliveredMsg) {
	if !c.isCurrent(m.id) || c.state != domain.SessionStateProcessing {
		return
	}

	outcome := m.outcome
	c.statusMu.Lock()
	c.lastTranscript = outcome.result.FinalTranscript
	c.statusMu.Unlock()

	if c.deps.Events != nil {
		c.deps.Events.FinalTranscript(outcome.result)
	}

	if outcome.err != nil {
		c.logger.Error().Err(outcome.err).Str("clientSessionId", m.id).Msg("text insertion failed")
		c.fail(domain.ErrorCodeInsertion, outcome.reason, outcome.message)
		return
	}

	c.logger.Info().
		Str("clientSessionId", m.id).
		Bool("refined", outcome.result.Refined).
		Int("chars", len(outcome.result.FinalTranscript)).
		Msg("transcript delivered")
	c.transition(domain.SessionStateProcessing, outcome.reason, outcome.message)
	c.reset.Arm(c.cfg.DisplayHold)
}

func (c *RecordingController) failWithError(err error) {
	var quota *domain.QuotaExceededError
	switch {
	case errors.As(err, &quota):
		c.fail(domain.ErrorCodeQuota, domain.SessionReasonConnectFailed, quota.Error())
	case errors.Is(err, domain.ErrUnauthorized):
		c.fail(domain.ErrorCodeAuth, domain.SessionReasonNotAuthenticated, "Please sign in first")
	default:
		c.fail(domain.ErrorCodeConnect, domain.SessionReasonConnectFailed, "Could not connect to transcription service")
	}
}

// fail moves to Error, releases the active recording and schedules the
// return to Idle.
func (c *RecordingController) fail(code domain.ErrorCode, reason domain.SessionStateReason, message string) {
	c.hold.Cancel()
	c.teardown()
	if c.deps.Events != nil {
		c.deps.Events.SessionError(code, message)
	}
	c.transition(domain.SessionStateError, reason, message)
	c.reset.Arm(c.cfg.ErrorHold)
}

func (c *RecordingController) teardown() {
	rec := c.current
	c.current = nil
	if rec == nil {
		return
	}
	go func() {
		rec.session.Stop()
		_ = rec.session.WaitForClose(time.Millisecond)
	}()
}

func (c *RecordingController) dispose() {
	c.hold.Cancel()
	c.reset.Cancel()
	c.teardown()
}

func (c *RecordingController) isCurrent(id string) bool {
	return c.current != nil && c.current.id == id
}

func (c *RecordingController) transition(state domain.SessionState, reason domain.SessionStateReason, message string) {
	c.state = state

	c.statusMu.Lock()
	c.status = domain.Status{
		State:   state,
		Active:  state == domain.SessionStateRecording || state == domain.SessionStateProcessing,
		Message: message,
	}
	c.statusMu.Unlock()

	c.logger.Debug().Str("state", string(state)).Str("reason", string(reason)).Msg("state changed")
	if c.deps.Events != nil {
		c.deps.Events.SessionStateChanged(state, reason, message)
	}
}
