package script

import (
	"fmt"
	"strings"
)

type EffectKind int

const (
	TypingText EffectKind = iota + 1
	KeyboardSound
	BlackScreen
	Strikethrough
)

func (k EffectKind) String() string {
	switch k {
	case TypingText:
		return "typing-text"
	case KeyboardSound:
		return "keyboard-sound"
	case BlackScreen:
		return "black-screen"
	case Strikethrough:
		return "strikethrough"
	default:
		return fmt.Sprintf("effect(%d)", int(k))
	}
}

// Effect is a tagged variant; From and To are set only for Strikethrough.
type Effect struct {
	Kind EffectKind
	From string
	To   string
}

// String renders the wire form used by the desktop app, e.g. "strikethrough:budget:revenue".
func (e Effect) String() string {
	if e.Kind == Strikethrough {
		return fmt.Sprintf("%s:%s:%s", e.Kind, e.From, e.To)
	}
	return e.Kind.String()
}

func (e Effect) MarshalText() ([]byte, error) {
	if e.Kind < TypingText || e.Kind > Strikethrough {
		return nil, fmt.Errorf("marshal effect: unknown kind %d", int(e.Kind))
	}
	return []byte(e.String()), nil
}

func (e *Effect) UnmarshalText(text []byte) error {
	parsed, err := ParseEffect(string(text))
	if err != nil {
		return err
	}
	*e = parsed
	return nil
}

// ParseEffect is the inverse of Effect.String.
func ParseEffect(value string) (Effect, error) {
	value = strings.TrimSpace(value)
	switch value {
	case "typing-text":
		return Effect{Kind: TypingText}, nil
	case "keyboard-sound":
		return Effect{Kind: KeyboardSound}, nil
	case "black-screen":
		return Effect{Kind: BlackScreen}, nil
	}
	if rest, ok := strings.CutPrefix(value, "strikethrough:"); ok {
		from, to, found := strings.Cut(rest, ":")
		if found && from != "" && to != "" {
			return Effect{Kind: Strikethrough, From: from, To: to}, nil
		}
	}
	return Effect{}, fmt.Errorf("unknown effect %q", value)
}
