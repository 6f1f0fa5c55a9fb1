package hotkey

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"golang.design/x/hotkey"
)

// Target receives press and release notifications.
type Target interface {
	HotkeyPressed() error
	HotkeyReleased() error
}

// source is the registered hotkey. *hotkey.Hotkey satisfies it.
type source interface {
	Keydown() <-chan hotkey.Event
	Keyup() <-chan hotkey.Event
	Unregister() error
}

type registerFunc func(Combo) (source, error)

// Listener forwards a global hotkey to a Target until its context ends.
type Listener struct {
	combo    Combo
	register registerFunc
	logger   zerolog.Logger
}

func NewListener(combo string, logger zerolog.Logger) (*Listener, error) {
	parsed, err := ParseCombo(combo)
	if err != nil {
		return nil, err
	}
	return &Listener{combo: parsed, register: registerGlobal, logger: logger}, nil
}

func (l *Listener) Combo() Combo { return l.combo }

// Run registers the hotkey and forwards events until ctx is cancelled or the
// target stops accepting them.
func (l *Listener) Run(ctx context.Context, target Target) error {
	hk, err := l.register(l.combo)
	if err != nil {
		return fmt.Errorf("failed to register hotkey %s: %w", l.combo, err)
	}
	defer func() {
		if err := hk.Unregister(); err != nil {
			l.logger.Warn().Err(err).Str("combo", l.combo.Text).Msg("failed to unregister hotkey")
		}
	}()

	l.logger.Info().Str("combo", l.combo.Text).Msg("hotkey registered")

	keydown := hk.Keydown()
	keyup := hk.Keyup()
	for {
		select {
		case <-ctx.Done():
			return nil
		case _, ok := <-keydown:
			if !ok {
				return errors.New("hotkey keydown channel closed")
			}
			if err := target.HotkeyPressed(); err != nil {
				return l.forwardErr(err)
			}
		case _, ok := <-keyup:
			if !ok {
				return errors.New("hotkey keyup channel closed")
			}
			if err := target.HotkeyReleased(); err != nil {
				return l.forwardErr(err)
			}
		}
	}
}

func (l *Listener) forwardErr(err error) error {
	l.logger.Debug().Err(err).Msg("hotkey target stopped")
	return nil
}

func registerGlobal(combo Combo) (source, error) {
	hk := hotkey.New(combo.Mods, combo.Key)
	if err := hk.Register(); err != nil {
		return nil, err
	}
	return hk, nil
}
