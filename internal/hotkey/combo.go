// Package hotkey turns a global key combination into press and release calls.
package hotkey

import (
	"fmt"
	"strconv"
	"strings"

	"golang.design/x/hotkey"
)

const DefaultCombo = "ctrl+shift+d"

// Combo is a parsed key combination such as "ctrl+shift+d".
type Combo struct {
	Mods []hotkey.Modifier
	Key  hotkey.Key
	Text string
}

func (c Combo) String() string { return c.Text }

// ParseCombo reads a "+"-separated combination. Modifier names are
// case-insensitive; exactly one non-modifier key is required.
func ParseCombo(text string) (Combo, error) {
	text = strings.ToLower(strings.TrimSpace(text))
	if text == "" {
		return Combo{}, fmt.Errorf("hotkey combo is empty")
	}

	combo := Combo{Text: text}
	seen := map[hotkey.Modifier]bool{}
	haveKey := false

	for _, part := range strings.Split(text, "+") {
		part = strings.TrimSpace(part)
		if part == "" {
			return Combo{}, fmt.Errorf("hotkey combo %q has an empty part", text)
		}
		if mod, ok := modifierNamed(part); ok {
			if !seen[mod] {
				seen[mod] = true
				combo.Mods = append(combo.Mods, mod)
			}
			continue
		}
		key, ok := keyNamed(part)
		if !ok {
			return Combo{}, fmt.Errorf("hotkey combo %q: unknown key %q", text, part)
		}
		if haveKey {
			return Combo{}, fmt.Errorf("hotkey combo %q has more than one key", text)
		}
		combo.Key = key
		haveKey = true
	}

	if !haveKey {
		return Combo{}, fmt.Errorf("hotkey combo %q has no key", text)
	}
	return combo, nil
}

func modifierNamed(name string) (hotkey.Modifier, bool) {
	switch name {
	case "ctrl", "control":
		return hotkey.ModCtrl, true
	case "shift":
		return hotkey.ModShift, true
	case "alt", "option", "opt":
		return modAlt, true
	case "super", "cmd", "command", "win", "meta":
		return modSuper, true
	}
	return 0, false
}

var letterKeys = [...]hotkey.Key{
	hotkey.KeyA, hotkey.KeyB, hotkey.KeyC, hotkey.KeyD, hotkey.KeyE, hotkey.KeyF,
	hotkey.KeyG, hotkey.KeyH, hotkey.KeyI, hotkey.KeyJ, hotkey.KeyK, hotkey.KeyL,
	hotkey.KeyM, hotkey.KeyN, hotkey.KeyO, hotkey.KeyP, hotkey.KeyQ, hotkey.KeyR,
	hotkey.KeyS, hotkey.KeyT, hotkey.KeyU, hotkey.KeyV, hotkey.KeyW, hotkey.KeyX,
	hotkey.KeyY, hotkey.KeyZ,
}

var digitKeys = [...]hotkey.Key{
	hotkey.Key0, hotkey.Key1, hotkey.Key2, hotkey.Key3, hotkey.Key4,
	hotkey.Key5, hotkey.Key6, hotkey.Key7, hotkey.Key8, hotkey.Key9,
}

var functionKeys = [...]hotkey.Key{
	hotkey.KeyF1, hotkey.KeyF2, hotkey.KeyF3, hotkey.KeyF4, hotkey.KeyF5, hotkey.KeyF6,
	hotkey.KeyF7, hotkey.KeyF8, hotkey.KeyF9, hotkey.KeyF10, hotkey.KeyF11, hotkey.KeyF12,
}

var namedKeys = map[string]hotkey.Key{
	"space":  hotkey.KeySpace,
	"enter":  hotkey.KeyReturn,
	"return": hotkey.KeyReturn,
	"esc":    hotkey.KeyEscape,
	"escape": hotkey.KeyEscape,
	"tab":    hotkey.KeyTab,
}

func keyNamed(name string) (hotkey.Key, bool) {
	if len(name) == 1 {
		switch c := name[0]; {
		case c >= 'a' && c <= 'z':
			return letterKeys[c-'a'], true
		case c >= '0' && c <= '9':
			return digitKeys[c-'0'], true
		}
	}
	if strings.HasPrefix(name, "f") {
		if n, err := strconv.Atoi(name[1:]); err == nil && n >= 1 && n <= len(functionKeys) {
			return functionKeys[n-1], true
		}
	}
	key, ok := namedKeys[name]
	return key, ok
}
