package plan

import (
	"fmt"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/ivlev/scriptvideo/internal/config"
	"github.com/ivlev/scriptvideo/internal/script"
)

func images(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("/img/slide %d.png", i+1)
	}
	return out
}

func instructions(n int) []script.Instruction {
	out := make([]script.Instruction, n)
	for i := range out {
		out[i] = script.Instruction{SceneNumber: i + 1, Text: fmt.Sprintf("line %d", i+1)}
	}
	return out
}

func TestBuildMoreInstructionsThanImages(t *testing.T) {
	p := Build(images(5), instructions(7), "/audio/voice.mp3", config.DefaultEncodeSettings())

	if len(p.Scenes) != 7 {
		t.Fatalf("expected 7 scenes, got %d", len(p.Scenes))
	}
	for i := 0; i < 5; i++ {
		if p.Scenes[i].ImagePath == "" {
			t.Errorf("scene %d: expected an image", i)
		}
	}
	for i := 5; i < 7; i++ {
		if p.Scenes[i].ImagePath != "" {
			t.Errorf("scene %d: expected no image, got %s", i, p.Scenes[i].ImagePath)
		}
		if p.Scenes[i].Renderable() {
			t.Errorf("scene %d: should not be renderable", i)
		}
	}
	if got := p.Duration(); got != 7*3500*time.Millisecond {
		t.Errorf("duration = %v, want 24.5s", got)
	}
}

func TestBuildMoreImagesThanInstructions(t *testing.T) {
	p := Build(images(4), instructions(2), "a.mp3", config.DefaultEncodeSettings())

	if len(p.Scenes) != 4 {
		t.Fatalf("expected 4 scenes, got %d", len(p.Scenes))
	}
	last := p.Scenes[3]
	if last.Text != "" || last.SceneNumber != 0 || len(last.Effects) != 0 {
		t.Errorf("scene past the script should be empty, got %+v", last)
	}
	if last.ImagePath != "/img/slide 4.png" {
		t.Errorf("unexpected image %s", last.ImagePath)
	}
}

func TestBuildBlackScreenDropsImage(t *testing.T) {
	ins := instructions(3)
	ins[1].Effects = []script.Effect{{Kind: script.BlackScreen}}

	p := Build(images(3), ins, "a.mp3", config.DefaultEncodeSettings())

	if p.Scenes[1].ImagePath != "" {
		t.Errorf("black screen scene kept image %s", p.Scenes[1].ImagePath)
	}
	if !p.Scenes[1].Renderable() {
		t.Error("black screen scene should be renderable")
	}
	if p.Scenes[2].ImagePath != "/img/slide 3.png" {
		t.Errorf("positional pairing broken: %s", p.Scenes[2].ImagePath)
	}
	if got := len(p.Renderable()); got != 3 {
		t.Errorf("expected 3 renderable scenes, got %d", got)
	}
	if got := p.Images(); got != 2 {
		t.Errorf("expected 2 images, got %d", got)
	}
}

func TestBuildEmpty(t *testing.T) {
	p := Build(nil, nil, "", config.DefaultEncodeSettings())
	if len(p.Scenes) != 0 || p.Duration() != 0 {
		t.Errorf("expected empty plan, got %+v", p)
	}
}

func TestBuildCopiesEffects(t *testing.T) {
	ins := []script.Instruction{{SceneNumber: 1, Text: "x", Effects: []script.Effect{{Kind: script.TypingText}}}}
	p := Build(nil, ins, "", config.DefaultEncodeSettings())
	ins[0].Effects[0].Kind = script.KeyboardSound
	if p.Scenes[0].Effects[0].Kind != script.TypingText {
		t.Error("plan shares effect storage with the instructions")
	}
}

func TestPlanWriteRead(t *testing.T) {
	ins := instructions(2)
	ins[0].Effects = []script.Effect{
		{Kind: script.TypingText},
		{Kind: script.Strikethrough, From: "budget", To: "revenue"},
	}
	want := Build(images(2), ins, "/audio/voice.mp3", config.DefaultEncodeSettings())

	path := filepath.Join(t.TempDir(), "plan.yaml")
	if err := WriteFile(want, path); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	got, err := ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("round trip mismatch:\n got %+v\nwant %+v", got, want)
	}
}

func TestReadFileRejectsUnknownVersion(t *testing.T) {
	p := Build(images(1), nil, "", config.DefaultEncodeSettings())
	p.Version = "9"
	path := filepath.Join(t.TempDir(), "plan.yaml")
	if err := WriteFile(p, path); err != nil {
		t.Fatal(err)
	}
	if _, err := ReadFile(path); err == nil {
		t.Error("expected version error")
	}
}
