package desktop

import (
	"errors"
	"fmt"
	"regexp"
)

const (
	inputKeyboard    = 1
	keyeventfKeyUp   = 0x0002
	keyeventfUnicode = 0x0004
)

// virtualKeys maps named keys to Win32 virtual-key codes.
var virtualKeys = map[string]uint16{
	"F1": 0x70, "F2": 0x71, "F3": 0x72, "F4": 0x73, "F5": 0x74, "F6": 0x75,
	"F7": 0x76, "F8": 0x77, "F9": 0x78, "F10": 0x79, "F11": 0x7A, "F12": 0x7B,
	"ENTER": 0x0D, "ESC": 0x1B, "TAB": 0x09, "SPACE": 0x20, "BACKSPACE": 0x08,
}

type keybdInput struct {
	vk        uint16
	scan      uint16
	flags     uint32
	time      uint32
	extraInfo uintptr
}

// keyboardInput mirrors INPUT; the trailing pad sizes the union like MOUSEINPUT.
type keyboardInput struct {
	typ uint32
	ki  keybdInput
	_   [8]byte
}

// keyboardInputs expands keys into SendInput key-down/key-up pairs. Named keys use
// their virtual-key code, characters are sent as Unicode.
func keyboardInputs(keys []Key) ([]keyboardInput, error) {
	inputs := make([]keyboardInput, 0, 2*len(keys))
	for _, k := range keys {
		down := keybdInput{}
		if k.Name != "" {
			vk, ok := virtualKeys[k.Name]
			if !ok {
				return nil, fmt.Errorf("no virtual key for {%s}", k.Name)
			}
			down.vk = vk
		} else {
			if k.Char > 0xFFFF {
				return nil, fmt.Errorf("character %q is outside the basic multilingual plane", k.Char)
			}
			down.scan = uint16(k.Char)
			down.flags = keyeventfUnicode
		}
		up := down
		up.flags |= keyeventfKeyUp
		inputs = append(inputs,
			keyboardInput{typ: inputKeyboard, ki: down},
			keyboardInput{typ: inputKeyboard, ki: up},
		)
	}
	return inputs, nil
}

// candidate is a top-level window seen during a readiness poll.
type candidate interface {
	Title() string
	ready() bool
}

// selectWindow returns the first candidate whose title matches pattern and that is
// ready. Matches that are not ready are skipped and reported as the error when
// nothing qualifies.
func selectWindow[W candidate](found []W, pattern *regexp.Regexp) (W, bool, error) {
	var zero W
	var notReady []error
	for _, w := range found {
		if !pattern.MatchString(w.Title()) {
			continue
		}
		if !w.ready() {
			notReady = append(notReady, fmt.Errorf("window %q is not ready", w.Title()))
			continue
		}
		return w, true, nil
	}
	return zero, false, errors.Join(notReady...)
}
