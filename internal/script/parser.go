// Package script turns narration scripts with embedded directives into scene instructions.
package script

import (
	"sort"
	"strings"
)

// Instruction is one scene of narration. SceneNumber is the 1-based position of the
// source line among all non-empty lines, so numbers may skip lines that held only
// directives.
type Instruction struct {
	SceneNumber int      `yaml:"scene_number" json:"sceneNumber"`
	Text        string   `yaml:"text" json:"text"`
	Effects     []Effect `yaml:"effects,omitempty" json:"effects"`
}

func (in Instruction) Has(kind EffectKind) bool {
	for _, e := range in.Effects {
		if e.Kind == kind {
			return true
		}
	}
	return false
}

// Parse never fails: lines without directives become plain narration.
func Parse(text string) []Instruction {
	var instructions []Instruction
	lineNumber := 0

	for _, line := range strings.Split(text, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		lineNumber++

		tokens, narration := Lex(line)
		if narration == "" {
			continue
		}

		instructions = append(instructions, Instruction{
			SceneNumber: lineNumber,
			Text:        narration,
			Effects:     effectsOf(tokens),
		})
	}
	return instructions
}

// effectsOf builds the ordered effect set: one entry per simple kind, one per distinct
// strikethrough pair, in vocabulary order.
func effectsOf(tokens []Token) []Effect {
	if len(tokens) == 0 {
		return nil
	}
	effects := make([]Effect, 0, len(tokens))
	for _, tok := range tokens {
		if !containsEffect(effects, tok.Effect) {
			effects = append(effects, tok.Effect)
		}
	}
	sort.SliceStable(effects, func(i, j int) bool {
		return effects[i].Kind < effects[j].Kind
	})
	return effects
}

func containsEffect(effects []Effect, e Effect) bool {
	for _, existing := range effects {
		if existing == e {
			return true
		}
	}
	return false
}
