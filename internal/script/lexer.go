package script

import (
	"regexp"
	"strings"
	"unicode"
)

const (
	typingTextLiteral    = "TAMBAH TEKS DIATAS"
	keyboardSoundLiteral = "TAMBAH SUARA KEYBOARD"
	blackScreenLiteral   = "PAKAI FOOTAGE HITAM"
)

var strikethroughPattern = regexp.MustCompile(`CORET\s+(\w+)\s+JADI\s+(\w+)`)

// Token is one directive found in a line of script text.
type Token struct {
	Effect  Effect
	Literal string
}

type matcher struct {
	kind  EffectKind
	match func(text string) (start, end int, effect Effect, ok bool)
}

// The vocabulary is closed and matched case-sensitively as plain substrings, so a
// directive phrase inside ordinary narration is still taken as a directive.
var vocabulary = []matcher{
	{kind: TypingText, match: literal(typingTextLiteral, TypingText)},
	{kind: KeyboardSound, match: literal(keyboardSoundLiteral, KeyboardSound)},
	{kind: BlackScreen, match: literal(blackScreenLiteral, BlackScreen)},
	{kind: Strikethrough, match: strikethrough},
}

func literal(phrase string, kind EffectKind) func(string) (int, int, Effect, bool) {
	return func(text string) (int, int, Effect, bool) {
		idx := strings.Index(text, phrase)
		if idx < 0 {
			return 0, 0, Effect{}, false
		}
		return idx, idx + len(phrase), Effect{Kind: kind}, true
	}
}

func strikethrough(text string) (int, int, Effect, bool) {
	loc := strikethroughPattern.FindStringSubmatchIndex(text)
	if loc == nil {
		return 0, 0, Effect{}, false
	}
	return loc[0], loc[1], Effect{
		Kind: Strikethrough,
		From: text[loc[2]:loc[3]],
		To:   text[loc[4]:loc[5]],
	}, true
}

// Lex strips directives from one line in detection order and returns the tokens
// together with the remaining narration. Each pass tries every directive once; passes
// repeat until the remainder holds no directive, which keeps stripping idempotent when a
// removal joins two halves into a new directive phrase.
func Lex(line string) ([]Token, string) {
	text := strings.TrimSpace(line)
	var tokens []Token

	for {
		found := false
		for _, m := range vocabulary {
			start, end, effect, ok := m.match(text)
			if !ok {
				continue
			}
			tokens = append(tokens, Token{Effect: effect, Literal: text[start:end]})
			text = splice(text[:start], text[end:])
			found = true
		}
		if !found {
			return tokens, text
		}
	}
}

// splice joins the text around a removed directive with a single space.
func splice(before, after string) string {
	before = strings.TrimRightFunc(before, unicode.IsSpace)
	after = strings.TrimLeftFunc(after, unicode.IsSpace)
	if before == "" || after == "" {
		return strings.TrimSpace(before + after)
	}
	return before + " " + after
}
