// internal/locator/action/keys.go
package action

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/chromedp/kb"
)

// KeyStroke is a parsed key description such as "Control+Shift+ArrowLeft".
type KeyStroke struct {
	Key       string
	Code      string
	KeyCode   int64
	Text      string
	Modifiers input.Modifier
}

// Printable reports whether the stroke inserts text into an editable target.
func (k KeyStroke) Printable() bool {
	r, _ := utf8.DecodeRuneInString(k.Text)
	return k.Text != "" && !unicode.IsControl(r) &&
		k.Modifiers&(input.ModifierCtrl|input.ModifierMeta|input.ModifierAlt) == 0
}

var namedKeys = map[string]string{
	"Backspace":  kb.Backspace,
	"Tab":        kb.Tab,
	"Enter":      kb.Enter,
	"Escape":     kb.Escape,
	"Delete":     kb.Delete,
	"ArrowLeft":  kb.ArrowLeft,
	"ArrowUp":    kb.ArrowUp,
	"ArrowRight": kb.ArrowRight,
	"ArrowDown":  kb.ArrowDown,
	"Home":       kb.Home,
	"End":        kb.End,
	"PageUp":     kb.PageUp,
	"PageDown":   kb.PageDown,
	"Space":      " ",
}

var modifierNames = map[string]input.Modifier{
	"Alt":           input.ModifierAlt,
	"Control":       input.ModifierCtrl,
	"Ctrl":          input.ModifierCtrl,
	"ControlOrMeta": input.ModifierCtrl,
	"Meta":          input.ModifierMeta,
	"Command":       input.ModifierMeta,
	"Shift":         input.ModifierShift,
}

// ParseKey parses a key description: zero or more modifiers joined with '+'
// followed by a key name or a single character.
func ParseKey(desc string) (KeyStroke, error) {
	if desc == "" {
		return KeyStroke{}, fmt.Errorf("empty key description")
	}
	parts := strings.Split(desc, "+")
	// A trailing "+" names the plus key itself.
	if strings.HasSuffix(desc, "++") || desc == "+" {
		parts = append(parts[:len(parts)-2], "+")
	}
	var mods input.Modifier
	for _, p := range parts[:len(parts)-1] {
		m, ok := modifierNames[p]
		if !ok {
			return KeyStroke{}, fmt.Errorf("unknown modifier %q in %q", p, desc)
		}
		mods |= m
	}
	stroke, err := keyStroke(parts[len(parts)-1])
	if err != nil {
		return KeyStroke{}, err
	}
	stroke.Modifiers = mods
	if mods&input.ModifierShift != 0 && utf8.RuneCountInString(stroke.Text) == 1 {
		stroke.Text = strings.ToUpper(stroke.Text)
	}
	return stroke, nil
}

func keyStroke(name string) (KeyStroke, error) {
	if seq, ok := namedKeys[name]; ok {
		r, _ := utf8.DecodeRuneInString(seq)
		return fromRune(r, name), nil
	}
	if utf8.RuneCountInString(name) != 1 {
		return KeyStroke{}, fmt.Errorf("unknown key %q", name)
	}
	r, _ := utf8.DecodeRuneInString(name)
	return fromRune(r, name), nil
}

// fromRune describes r with the key table. Characters outside the table are
// sent as unidentified keys carrying their text.
func fromRune(r rune, name string) KeyStroke {
	k, ok := kb.Keys[r]
	if !ok {
		return KeyStroke{Key: string(r), Text: string(r)}
	}
	stroke := KeyStroke{Key: k.Key, Code: k.Code, KeyCode: k.Windows}
	if k.Print {
		stroke.Text = k.Text
	}
	if name == "Space" {
		stroke.Key, stroke.Text = " ", " "
	}
	return stroke
}
