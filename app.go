package main

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/wailsapp/wails/v2/pkg/runtime"

	"vochat/internal/bootstrap"
	"vochat/internal/domain"
	"vochat/internal/insert"
	"vochat/internal/observability/logging"
	"vochat/internal/usecase"
)

const (
	eventSession = "vochat:session"
	eventPartial = "vochat:partial"
	eventFinal   = "vochat:final"
	eventError   = "vochat:error"
)

// App is the Wails application root.
type App struct {
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	emit   func(ctx context.Context, name string, data ...interface{})

	controller *usecase.RecordingController
	desktop    bootstrap.Desktop
	bootErr    error
}

func NewApp() *App {
	return &App{emit: runtime.EventsEmit}
}

func (a *App) startup(ctx context.Context) {
	a.ctx = ctx

	desktop, err := bootstrap.BuildDesktop(a, insert.WailsClipboard{})
	if err != nil {
		a.bootErr = err
		a.SessionError(domain.ErrorCodeStartup, err.Error())
		return
	}
	a.desktop = desktop
	a.controller = desktop.Controller

	runCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel
	logger := logging.WithComponent("app")

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		if err := a.controller.Run(runCtx); err != nil {
			logger.Error().Err(err).Msg("recording controller stopped")
		}
	}()

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		if err := desktop.Hotkey.Run(runCtx, a.controller); err != nil {
			logger.Warn().Err(err).Msg("global hotkey unavailable; use the overlay button instead")
			a.SessionError(domain.ErrorCodeStartup, err.Error())
		}
	}()

	if desktop.Paster != nil {
		go func() {
			if err := desktop.Paster.Warmup(); err != nil {
				logger.Warn().Err(err).Msg("virtual keyboard unavailable; text will only be copied")
			}
		}()
	}

	a.SessionStateChanged(domain.SessionStateIdle, domain.SessionReasonReady, "")
}

func (a *App) shutdown(_ context.Context) {
	if a.cancel != nil {
		a.cancel()
	}
	a.wg.Wait()
}

// PressHotkey mirrors a hotkey press from the overlay.
func (a *App) PressHotkey() error {
	if err := a.requireReady(); err != nil {
		return err
	}
	return a.controller.HotkeyPressed()
}

// ReleaseHotkey mirrors a hotkey release from the overlay.
func (a *App) ReleaseHotkey() error {
	if err := a.requireReady(); err != nil {
		return err
	}
	return a.controller.HotkeyReleased()
}

// GetStatus returns the current session status.
func (a *App) GetStatus() domain.Status {
	if a.controller == nil {
		if a.bootErr != nil {
			return domain.Status{State: domain.SessionStateError, Active: false, Message: a.bootErr.Error()}
		}
		return domain.Status{State: domain.SessionStateIdle, Active: false}
	}
	return a.controller.Status()
}

// GetLastTranscript returns the most recently delivered text.
func (a *App) GetLastTranscript() string {
	if a.controller == nil {
		return ""
	}
	return a.controller.LastTranscript()
}

// CopyLastTranscript puts the last delivered text back on the clipboard.
func (a *App) CopyLastTranscript() error {
	if err := a.requireReady(); err != nil {
		return err
	}
	text := a.controller.LastTranscript()
	if text == "" {
		return errors.New("no transcript yet")
	}
	return insert.WailsClipboard{}.SetText(a.ctx, text)
}

// GetRuntimeInfo returns non-sensitive config for the UI.
func (a *App) GetRuntimeInfo() map[string]string {
	if a.bootErr != nil {
		return map[string]string{"error": a.bootErr.Error()}
	}

	cfg := a.desktop.Config
	return map[string]string{
		"provider":         "Deepgram",
		"backend":          a.desktop.Backend,
		"mode":             string(cfg.Session.Mode),
		"hotkey":           cfg.Hotkey.Combo,
		"model":            cfg.Deepgram.Model,
		"language":         cfg.Deepgram.Language,
		"rulesFile":        cfg.Rules.Path,
		"audioInput":       cfg.Audio.InputDevice,
		"audioInputFormat": cfg.Audio.InputFormat,
	}
}

func (a *App) requireReady() error {
	if a.bootErr != nil {
		return a.bootErr
	}
	if a.controller == nil {
		return fmt.Errorf("application is not initialized")
	}
	return nil
}

// SessionStateChanged emits session lifecycle updates to the frontend.
func (a *App) SessionStateChanged(state domain.SessionState, reason domain.SessionStateReason, message string) {
	if a.ctx == nil {
		return
	}
	if message == "" {
		message = sessionReasonMessage(reason)
	}
	a.emit(a.ctx, eventSession, map[string]string{
		"state":   string(state),
		"reason":  string(reason),
		"message": message,
	})
}

// PartialTranscript emits live transcript text.
func (a *App) PartialTranscript(text string) {
	if a.ctx == nil {
		return
	}
	a.emit(a.ctx, eventPartial, map[string]string{"text": text})
}

// FinalTranscript emits the delivered transcript.
func (a *App) FinalTranscript(result domain.StopResult) {
	if a.ctx == nil {
		return
	}
	a.emit(a.ctx, eventFinal, result)
}

// SessionError emits backend errors to the UI.
func (a *App) SessionError(code domain.ErrorCode, detail string) {
	if a.ctx == nil {
		return
	}
	a.emit(a.ctx, eventError, map[string]string{
		"code":    string(code),
		"message": errorMessage(code, detail),
		"detail":  detail,
	})
}

func sessionReasonMessage(reason domain.SessionStateReason) string {
	switch reason {
	case domain.SessionReasonReady:
		return "Ready"
	case domain.SessionReasonHoldArmed:
		return "Hold to talk"
	case domain.SessionReasonRecordingStarted:
		return "Listening..."
	case domain.SessionReasonTranscribing:
		return "Processing..."
	case domain.SessionReasonRefining:
		return "Refining..."
	case domain.SessionReasonTextInserted:
		return "Text inserted"
	case domain.SessionReasonQuotaFallback:
		return "Weekly limit reached, inserted unrefined text"
	case domain.SessionReasonNoTranscript:
		return "No speech detected"
	case domain.SessionReasonNotAuthenticated:
		return "Please sign in first"
	case domain.SessionReasonConnectFailed:
		return "Could not connect to transcription service"
	case domain.SessionReasonTranscriptionFailed:
		return "Transcription failed"
	case domain.SessionReasonInsertionFailed:
		return "Could not insert text"
	default:
		return ""
	}
}

func errorMessage(code domain.ErrorCode, detail string) string {
	switch code {
	case domain.ErrorCodeStartup:
		return "Startup failed"
	case domain.ErrorCodeAuth:
		return "Not signed in"
	case domain.ErrorCodeConnect:
		return "Connection failed"
	case domain.ErrorCodeAudioStop:
		return "Audio stop issue"
	case domain.ErrorCodeAudioStream:
		return "Audio streaming issue"
	case domain.ErrorCodeTranscription:
		return "Transcription error"
	case domain.ErrorCodeRefinement:
		return "Refinement unavailable"
	case domain.ErrorCodeQuota:
		return "Weekly limit reached"
	case domain.ErrorCodeInsertion:
		return "Text insertion failed"
	default:
		if detail == "" {
			return "Unknown error"
		}
		return detail
	}
}
