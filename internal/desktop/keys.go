package desktop

import (
	"fmt"
	"strings"
)

// Key is one keystroke: a named key such as "F5" or a single printable character.
type Key struct {
	Name string
	Char rune
}

func (k Key) String() string {
	if k.Name != "" {
		return "{" + k.Name + "}"
	}
	return string(k.Char)
}

var namedKeys = map[string]bool{
	"F1": true, "F2": true, "F3": true, "F4": true, "F5": true, "F6": true,
	"F7": true, "F8": true, "F9": true, "F10": true, "F11": true, "F12": true,
	"ENTER": true, "ESC": true, "TAB": true, "SPACE": true, "BACKSPACE": true,
}

// ParseKeys parses brace notation: "{F5}" is the F5 key, "ab{ENTER}" is a, b, Enter.
// Named keys are case-insensitive.
func ParseKeys(s string) ([]Key, error) {
	var keys []Key
	for i := 0; i < len(s); {
		if s[i] != '{' {
			r := []rune(s[i:])[0]
			keys = append(keys, Key{Char: r})
			i += len(string(r))
			continue
		}
		end := strings.IndexByte(s[i:], '}')
		if end < 0 {
			return nil, fmt.Errorf("unterminated key name in %q", s)
		}
		name := strings.ToUpper(s[i+1 : i+end])
		if !namedKeys[name] {
			return nil, fmt.Errorf("unsupported key {%s}", name)
		}
		keys = append(keys, Key{Name: name})
		i += end + 1
	}
	if len(keys) == 0 {
		return nil, fmt.Errorf("no keys in %q", s)
	}
	return keys, nil
}
