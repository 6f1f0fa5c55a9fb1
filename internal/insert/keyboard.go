package insert

import (
	"runtime"
	"sync"
	"time"

	"github.com/micmonay/keybd_event"
)

// uinput needs a moment before the virtual keyboard accepts events.
const linuxDeviceDelay = 2 * time.Second

// KeyboardPaster sends Ctrl+V (Cmd+V on macOS) through a virtual keyboard.
// The device is created once and reused.
type KeyboardPaster struct {
	goos string

	once sync.Once
	mu   sync.Mutex
	kb   keybd_event.KeyBonding
	err  error
}

func NewKeyboardPaster() *KeyboardPaster {
	return &KeyboardPaster{goos: runtime.GOOS}
}

// Warmup creates the virtual keyboard ahead of the first paste.
func (p *KeyboardPaster) Warmup() error {
	p.once.Do(p.open)
	return p.err
}

func (p *KeyboardPaster) open() {
	kb, err := keybd_event.NewKeyBonding()
	if err != nil {
		p.err = err
		return
	}
	if p.goos == "linux" {
		time.Sleep(linuxDeviceDelay)
	}
	p.kb = kb
}

func (p *KeyboardPaster) Paste() error {
	if err := p.Warmup(); err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.kb.Clear()
	if usesCommandKey(p.goos) {
		p.kb.HasSuper(true)
	} else {
		p.kb.HasCTRL(true)
	}
	p.kb.SetKeys(keybd_event.VK_V)
	return p.kb.Launching()
}

func usesCommandKey(goos string) bool {
	return goos == "darwin"
}
