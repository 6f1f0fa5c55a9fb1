package transcript

import (
	"math/rand"
	"strings"
	"testing"

	"vochat/internal/domain"
)

func TestFinalizeRecoversSolePartial(t *testing.T) {
	t.Parallel()

	acc := New()
	acc.OnEvent(domain.TranscriptEvent{Text: "hallo", IsFinal: false})

	if got := acc.Finalize(); got != "hallo" {
		t.Fatalf("expected hallo, got %q", got)
	}
}

func TestFinalsAreSpaceJoined(t *testing.T) {
	t.Parallel()

	acc := New()
	acc.OnEvent(domain.TranscriptEvent{Text: "hello", IsFinal: true})
	acc.OnEvent(domain.TranscriptEvent{Text: "world", IsFinal: true})

	if got := acc.Finalize(); got != "hello world" {
		t.Fatalf("expected %q, got %q", "hello world", got)
	}
}

func TestPartialReplacesPendingAndFinalClearsIt(t *testing.T) {
	t.Parallel()

	acc := New()
	state := acc.OnEvent(domain.TranscriptEvent{Text: "hel", Seq: 1})
	if state.Pending != "hel" || state.Committed != "" {
		t.Fatalf("unexpected state: %+v", state)
	}

	state = acc.OnEvent(domain.TranscriptEvent{Text: "hello wor", Seq: 2})
	if state.Pending != "hello wor" {
		t.Fatalf("partial did not replace pending: %+v", state)
	}

	state = acc.OnEvent(domain.TranscriptEvent{Text: "hello world", IsFinal: true, Seq: 3})
	if state.Committed != "hello world" || state.Pending != "" {
		t.Fatalf("unexpected state after final: %+v", state)
	}

	state = acc.OnEvent(domain.TranscriptEvent{Text: "again", Seq: 4})
	if got := state.Display(); got != "hello world again" {
		t.Fatalf("unexpected display: %q", got)
	}
	if got := acc.Finalize(); got != "hello world again" {
		t.Fatalf("unexpected finalize: %q", got)
	}
}

func TestBlankEventsAreIgnored(t *testing.T) {
	t.Parallel()

	acc := New()
	acc.OnEvent(domain.TranscriptEvent{Text: "keep me"})
	acc.OnEvent(domain.TranscriptEvent{Text: "   ", IsFinal: true})
	acc.OnEvent(domain.TranscriptEvent{Text: "\t"})

	state := acc.State()
	if state.Pending != "keep me" || state.Committed != "" {
		t.Fatalf("blank events changed state: %+v", state)
	}

	if got := New().Finalize(); got != "" {
		t.Fatalf("expected empty transcript from a fresh accumulator, got %q", got)
	}
}

func TestPartialsNeverDestroyFinals(t *testing.T) {
	t.Parallel()

	words := []string{"alpha", "beta", "gamma", "delta", "", "  ", "epsilon"}
	rng := rand.New(rand.NewSource(7))

	for run := 0; run < 200; run++ {
		acc := New()
		var finals []string
		for seq := 0; seq < 1+rng.Intn(12); seq++ {
			event := domain.TranscriptEvent{
				Text:    words[rng.Intn(len(words))],
				IsFinal: rng.Intn(2) == 0,
				Seq:     seq,
			}
			acc.OnEvent(event)
			if event.IsFinal && strings.TrimSpace(event.Text) != "" {
				finals = append(finals, strings.TrimSpace(event.Text))
			}
		}

		joined := strings.Join(finals, " ")
		got := acc.Finalize()
		if !strings.HasPrefix(got, joined) {
			t.Fatalf("run %d: finalize %q lost finals %q", run, got, joined)
		}
	}
}
