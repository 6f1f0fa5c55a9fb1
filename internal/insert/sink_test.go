package insert

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestSinkWritesClipboard(t *testing.T) {
	t.Parallel()

	clip := &fakeClipboard{}
	sink := New(clip, nil, 0, zerolog.Nop())

	if err := sink.WriteClipboard(context.Background(), "hello"); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	if clip.text != "hello" {
		t.Fatalf("unexpected clipboard text: %q", clip.text)
	}
}

func TestSinkWrapsClipboardError(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	sink := New(&fakeClipboard{err: boom}, nil, 0, zerolog.Nop())

	err := sink.WriteClipboard(context.Background(), "hello")
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped clipboard error, got %v", err)
	}
}

func TestSinkPastesAfterSettle(t *testing.T) {
	t.Parallel()

	paster := &fakePaster{}
	sink := New(&fakeClipboard{}, paster, 20*time.Millisecond, zerolog.Nop())

	started := time.Now()
	if err := sink.SimulatePaste(context.Background()); err != nil {
		t.Fatalf("paste failed: %v", err)
	}
	if paster.calls != 1 {
		t.Fatalf("expected one paste, got %d", paster.calls)
	}
	if elapsed := time.Since(started); elapsed < 20*time.Millisecond {
		t.Fatalf("paste sent before settle delay: %s", elapsed)
	}
}

func TestSinkPasteHonoursCancellation(t *testing.T) {
	t.Parallel()

	paster := &fakePaster{}
	sink := New(&fakeClipboard{}, paster, time.Minute, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := sink.SimulatePaste(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation, got %v", err)
	}
	if paster.calls != 0 {
		t.Fatalf("paste must not be sent after cancellation")
	}
}

func TestSinkWrapsPasteError(t *testing.T) {
	t.Parallel()

	boom := errors.New("no uinput")
	sink := New(&fakeClipboard{}, &fakePaster{err: boom}, 0, zerolog.Nop())

	if err := sink.SimulatePaste(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("expected wrapped paste error, got %v", err)
	}
}

func TestSinkWithoutPasterLeavesClipboard(t *testing.T) {
	t.Parallel()

	sink := New(&fakeClipboard{}, nil, time.Minute, zerolog.Nop())
	if err := sink.SimulatePaste(context.Background()); err != nil {
		t.Fatalf("expected nil without paster, got %v", err)
	}
}

func TestUsesCommandKey(t *testing.T) {
	t.Parallel()

	if !usesCommandKey("darwin") {
		t.Fatalf("expected command key on darwin")
	}
	if usesCommandKey("linux") || usesCommandKey("windows") {
		t.Fatalf("expected ctrl on linux and windows")
	}
}

type fakeClipboard struct {
	text string
	err  error
}

func (c *fakeClipboard) SetText(_ context.Context, text string) error {
	if c.err != nil {
		return c.err
	}
	c.text = text
	return nil
}

type fakePaster struct {
	calls int
	err   error
}

func (p *fakePaster) Paste() error {
	p.calls++
	return p.err
}
