package ports

import (
	"context"
	"io"
	"time"

	"vochat/internal/domain"
)

// AudioConfig describes how the microphone should be captured.
type AudioConfig struct {
	SampleRate  int
	Channels    int
	InputFormat string
	InputDevice string
}

// AudioSession is a live capture session.
type AudioSession interface {
	io.ReadCloser
	Stop() error
}

// AudioCapture creates microphone capture sessions.
type AudioCapture interface {
	Start(ctx context.Context, cfg AudioConfig) (AudioSession, error)
}

// StreamingConfig describes provider-agnostic streaming settings.
type StreamingConfig struct {
	SampleRate     int
	Channels       int
	Encoding       string
	InterimResults bool
	Style          domain.StyleHint
}

// StreamingSession is an active provider websocket session.
type StreamingSession interface {
	SendAudio(chunk []byte) error
	// CloseSend flushes queued audio and requests a graceful end of stream.
	CloseSend() error
	Events() <-chan domain.TranscriptEvent
	// Done is closed once the transport has shut down.
	Done() <-chan struct{}
	Err() error
	Close() error
}

// TranscriptionProvider starts streaming transcription sessions.
type TranscriptionProvider interface {
	StartStreaming(ctx context.Context, cfg StreamingConfig) (StreamingSession, error)
}

// STTToken is a short-lived credential for the transcription service.
type STTToken struct {
	Token     string
	ExpiresAt time.Time
	Remaining int
	IsPro     bool
}

// TokenSource issues transcription credentials.
type TokenSource interface {
	STTToken(ctx context.Context, provider string, profileID string) (STTToken, error)
}

// RefineRequest is one refinement call keyed by ClientSessionID.
type RefineRequest struct {
	ClientSessionID string
	ProfileID       string
	RawText         string
	Mode            string
}

// RefineResult is the server response to a refinement call.
type RefineResult struct {
	RefinedText string
	WordCount   int
	Cached      bool
}

// Refiner polishes a raw transcript remotely.
type Refiner interface {
	Refine(ctx context.Context, req RefineRequest) (RefineResult, error)
}

// Normalizer transforms transcripts using deterministic rules.
type Normalizer interface {
	Normalize(text string) (string, error)
}

// Inserter delivers text at the user's cursor.
type Inserter interface {
	WriteClipboard(ctx context.Context, text string) error
	SimulatePaste(ctx context.Context) error
}

// Authenticator reports whether the local user has a usable API session.
type Authenticator interface {
	Authenticated() bool
}

// EventSink emits backend state/events to the UI.
type EventSink interface {
	SessionStateChanged(state domain.SessionState, reason domain.SessionStateReason, message string)
	PartialTranscript(text string)
	FinalTranscript(result domain.StopResult)
	SessionError(code domain.ErrorCode, detail string)
}
