// Package plan zips the sorted image list with parsed script instructions into an
// ordered list of fixed-length scenes.
package plan

import (
	"time"

	"github.com/ivlev/scriptvideo/internal/config"
	"github.com/ivlev/scriptvideo/internal/script"
)

// SceneDuration is the on-screen time of every scene.
const SceneDuration = 3500 * time.Millisecond

const Version = "1.0"

type Plan struct {
	Version   string                `yaml:"version"`
	AudioPath string                `yaml:"audio"`
	Settings  config.EncodeSettings `yaml:"settings"`
	Scenes    []Entry               `yaml:"scenes"`
}

// Entry is one scene. An empty ImagePath means the scene has no image of its own.
type Entry struct {
	Index       int             `yaml:"index"`
	SceneNumber int             `yaml:"scene_number,omitempty"`
	ImagePath   string          `yaml:"image,omitempty"`
	Text        string          `yaml:"text,omitempty"`
	Effects     []script.Effect `yaml:"effects,omitempty"`
	Duration    float64         `yaml:"duration"` // seconds
}

func (e Entry) Has(kind script.EffectKind) bool {
	for _, eff := range e.Effects {
		if eff.Kind == kind {
			return true
		}
	}
	return false
}

// Renderable reports whether the scene contributes a frame to the video track.
func (e Entry) Renderable() bool {
	return e.ImagePath != "" || e.Has(script.BlackScreen)
}

// Build pairs images and instructions by position. The plan is as long as the longer
// of the two lists; a BlackScreen instruction drops the image at its position.
func Build(images []string, instructions []script.Instruction, audioPath string, settings config.EncodeSettings) *Plan {
	count := max(len(images), len(instructions))

	p := &Plan{
		Version:   Version,
		AudioPath: audioPath,
		Settings:  settings,
		Scenes:    make([]Entry, 0, count),
	}

	for i := 0; i < count; i++ {
		entry := Entry{
			Index:    i,
			Duration: SceneDuration.Seconds(),
		}
		if i < len(instructions) {
			in := instructions[i]
			entry.SceneNumber = in.SceneNumber
			entry.Text = in.Text
			entry.Effects = append([]script.Effect(nil), in.Effects...)
		}
		if i < len(images) && !entry.Has(script.BlackScreen) {
			entry.ImagePath = images[i]
		}
		p.Scenes = append(p.Scenes, entry)
	}

	return p
}

// Duration is the length of the video track before it is cut to the audio.
func (p *Plan) Duration() time.Duration {
	return time.Duration(len(p.Scenes)) * SceneDuration
}

func (p *Plan) Renderable() []Entry {
	var out []Entry
	for _, e := range p.Scenes {
		if e.Renderable() {
			out = append(out, e)
		}
	}
	return out
}

// Images counts scenes that carry an image.
func (p *Plan) Images() int {
	n := 0
	for _, e := range p.Scenes {
		if e.ImagePath != "" {
			n++
		}
	}
	return n
}
