// Package insert delivers text at the user's cursor: the clipboard is loaded
// first, then a paste chord is sent to the focused window.
package insert

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/atotto/clipboard"
	"github.com/rs/zerolog"
	"github.com/wailsapp/wails/v2/pkg/runtime"
)

// DefaultSettle is how long the clipboard gets before the paste chord is sent.
const DefaultSettle = 80 * time.Millisecond

var ErrClipboardUnsupported = errors.New("no clipboard utility available")

// Clipboard writes text to the system clipboard.
type Clipboard interface {
	SetText(ctx context.Context, text string) error
}

// Paster sends the platform paste chord to the focused window.
type Paster interface {
	Paste() error
}

// Sink implements ports.Inserter.
type Sink struct {
	clipboard Clipboard
	paster    Paster
	settle    time.Duration
	logger    zerolog.Logger
}

func New(clip Clipboard, paster Paster, settle time.Duration, logger zerolog.Logger) *Sink {
	if clip == nil {
		clip = SystemClipboard{}
	}
	if settle < 0 {
		settle = 0
	}
	return &Sink{clipboard: clip, paster: paster, settle: settle, logger: logger}
}

func (s *Sink) WriteClipboard(ctx context.Context, text string) error {
	if err := s.clipboard.SetText(ctx, text); err != nil {
		return fmt.Errorf("failed to write clipboard: %w", err)
	}
	return nil
}

// SimulatePaste waits for the clipboard to settle and sends the paste chord.
// Without a paster the text stays on the clipboard for a manual paste.
func (s *Sink) SimulatePaste(ctx context.Context) error {
	if s.paster == nil {
		s.logger.Debug().Msg("paste simulation disabled; text left on clipboard")
		return nil
	}

	if s.settle > 0 {
		timer := time.NewTimer(s.settle)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}

	if err := s.paster.Paste(); err != nil {
		return fmt.Errorf("failed to send paste keystroke: %w", err)
	}
	return nil
}

// WailsClipboard writes through the Wails runtime. ctx must descend from the
// context Wails passed to OnStartup.
type WailsClipboard struct{}

func (WailsClipboard) SetText(ctx context.Context, text string) error {
	return runtime.ClipboardSetText(ctx, text)
}

// SystemClipboard writes through the platform clipboard utilities and works
// without a Wails window.
type SystemClipboard struct{}

func (SystemClipboard) SetText(_ context.Context, text string) error {
	if clipboard.Unsupported {
		return ErrClipboardUnsupported
	}
	return clipboard.WriteAll(text)
}
