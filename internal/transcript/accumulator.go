// Package transcript merges streaming recognition events into one transcript.
package transcript

import (
	"strings"

	"vochat/internal/domain"
)

// Accumulator folds ordered TranscriptEvents into a TranscriptState.
// Finals are appended; the latest partial replaces the previous one.
// Events are taken in arrival order and never re-sorted by Seq.
//
// An Accumulator is not safe for concurrent use.
type Accumulator struct {
	state domain.TranscriptState
}

// New returns an empty accumulator.
func New() *Accumulator {
	return &Accumulator{}
}

// OnEvent applies one event and returns the resulting state.
func (a *Accumulator) OnEvent(event domain.TranscriptEvent) domain.TranscriptState {
	text := strings.TrimSpace(event.Text)
	if text == "" {
		return a.state
	}

	if !event.IsFinal {
		a.state.Pending = text
		return a.state
	}

	if a.state.Committed == "" {
		a.state.Committed = text
	} else {
		a.state.Committed += " " + text
	}
	a.state.Pending = ""
	return a.state
}

// State returns the current state.
func (a *Accumulator) State() domain.TranscriptState {
	return a.state
}

// Finalize returns the effective transcript, recovering a trailing partial
// that never received its final.
func (a *Accumulator) Finalize() string {
	return a.state.Display()
}
