// Package video turns a scene plan into a ready-to-run ffmpeg invocation: a concat
// manifest in a job-owned work directory plus the argument vector.
package video

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ivlev/scriptvideo/internal/config"
	"github.com/ivlev/scriptvideo/internal/plan"
	"github.com/ivlev/scriptvideo/internal/system"
)

var (
	ErrPlanValidation     = errors.New("plan validation failed")
	ErrNoRenderableScenes = fmt.Errorf("%w: no scene has an image or a black screen", ErrPlanValidation)
	ErrAudioMissing       = fmt.Errorf("%w: audio file missing", ErrPlanValidation)
)

const (
	ManifestName   = "images.txt"
	BlackFrameName = "black.png"
)

// DurationProber reports the length of an audio file.
type DurationProber interface {
	AudioDuration(ctx context.Context, path string) (time.Duration, error)
}

type Options struct {
	OutputPath string
	FFmpegPath string
	// TempDir is the parent of the job work directory; empty uses os.TempDir.
	TempDir string
	// Prober is optional; without it the expected duration is the video length.
	Prober DurationProber
	// DetectEncoder resolves config.VideoCodecAuto. Defaults to system.GetBestH264Encoder.
	DetectEncoder func(ctx context.Context, ffmpeg string) string
	// Env is appended to the encoder environment.
	Env []string
}

// Job is a fully prepared encode. The runner owns it once started.
type Job struct {
	ID               string
	Binary           string
	Args             []string
	WorkDir          string
	ManifestPath     string
	OutputPath       string
	ExpectedDuration time.Duration
	Env              []string
	Settings         config.EncodeSettings
	Scenes           int
}

// Discard removes the work directory of a job that will never run.
func (j *Job) Discard() error {
	if j == nil || j.WorkDir == "" {
		return nil
	}
	return os.RemoveAll(j.WorkDir)
}

// CommandLine renders the invocation for display; it is not shell-safe.
func (j *Job) CommandLine() string {
	parts := make([]string, 0, len(j.Args)+1)
	parts = append(parts, j.Binary)
	for _, a := range j.Args {
		if strings.ContainsAny(a, " '\"()") {
			a = strconv.Quote(a)
		}
		parts = append(parts, a)
	}
	return strings.Join(parts, " ")
}

// BuildJob validates the plan, writes the manifest and assembles the arguments.
// Nothing is written to disk when validation fails.
func BuildJob(ctx context.Context, p *plan.Plan, opts Options) (*Job, error) {
	if p == nil {
		return nil, fmt.Errorf("%w: nil plan", ErrPlanValidation)
	}
	settings := p.Settings
	settings.Normalize()
	if err := settings.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPlanValidation, err)
	}

	scenes := p.Renderable()
	if len(scenes) == 0 {
		return nil, ErrNoRenderableScenes
	}
	if err := checkAudio(p.AudioPath); err != nil {
		return nil, err
	}
	if strings.TrimSpace(opts.OutputPath) == "" {
		return nil, fmt.Errorf("%w: output path is required", ErrPlanValidation)
	}

	ffmpeg := opts.FFmpegPath
	if ffmpeg == "" {
		ffmpeg = "ffmpeg"
	}
	if settings.VideoCodec == config.VideoCodecAuto {
		detect := opts.DetectEncoder
		if detect == nil {
			detect = system.GetBestH264Encoder
		}
		settings.VideoCodec = detect(ctx, ffmpeg)
	}

	output, err := filepath.Abs(opts.OutputPath)
	if err != nil {
		return nil, fmt.Errorf("resolve output path: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(output), 0o755); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}

	workDir, err := os.MkdirTemp(opts.TempDir, "scriptvideo_")
	if err != nil {
		return nil, fmt.Errorf("create work directory: %w", err)
	}

	job := &Job{
		ID:           uuid.NewString(),
		Binary:       ffmpeg,
		Env:          append([]string(nil), opts.Env...),
		WorkDir:      workDir,
		ManifestPath: filepath.Join(workDir, ManifestName),
		OutputPath:   output,
		Settings:     settings,
		Scenes:       len(scenes),
	}

	if err := writeManifest(job, scenes, settings); err != nil {
		job.Discard()
		return nil, err
	}

	job.Args = buildArgs(job.ManifestPath, p.AudioPath, output, settings)
	job.ExpectedDuration = expectedDuration(ctx, len(scenes), p.AudioPath, opts.Prober)
	return job, nil
}

func checkAudio(path string) error {
	if strings.TrimSpace(path) == "" {
		return ErrAudioMissing
	}
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrAudioMissing, path)
	}
	if info.IsDir() {
		return fmt.Errorf("%w: %s is a directory", ErrAudioMissing, path)
	}
	return nil
}

func expectedDuration(ctx context.Context, scenes int, audio string, prober DurationProber) time.Duration {
	video := time.Duration(scenes) * plan.SceneDuration
	if prober == nil {
		return video
	}
	d, err := prober.AudioDuration(ctx, audio)
	if err != nil || d <= 0 {
		return video
	}
	return min(video, d)
}

func buildArgs(manifest, audio, output string, s config.EncodeSettings) []string {
	filter := fmt.Sprintf("scale=%d:%d:force_original_aspect_ratio=decrease,pad=%d:%d:(ow-iw)/2:(oh-ih)/2,setsar=1",
		s.Width, s.Height, s.Width, s.Height)

	args := []string{
		"-hide_banner", "-nostdin", "-y",
		"-progress", "pipe:1", "-nostats",
		"-loglevel", "error",
		"-f", "concat", "-safe", "0",
		"-r", sceneRate(),
		"-i", manifest,
		"-i", audio,
		"-vf", filter,
		"-map", "0:v", "-map", "1:a",
		"-c:v", s.VideoCodec,
	}
	args = append(args, qualityArgs(s)...)
	args = append(args,
		"-pix_fmt", "yuv420p",
		"-r", strconv.Itoa(s.FrameRate),
		"-c:a", s.AudioCodec,
		"-b:a", s.AudioBitrate,
		"-shortest",
	)
	switch s.Container {
	case config.ContainerMP4, config.ContainerMOV:
		args = append(args, "-movflags", "+faststart")
	}
	return append(args, output)
}

// sceneRate is the concat input rate that shows each frame for one scene.
func sceneRate() string {
	return "1/" + strconv.FormatFloat(plan.SceneDuration.Seconds(), 'f', -1, 64)
}

func qualityArgs(s config.EncodeSettings) []string {
	switch s.VideoCodec {
	case "h264_videotoolbox":
		// VideoToolbox ignores -crf; use an average bitrate instead
		return []string{"-b:v", videotoolboxBitrate(s.Quality)}
	case "h264_nvenc":
		return []string{"-cq", strconv.Itoa(s.CRF())}
	case "libx264", "libx265":
		return []string{"-crf", strconv.Itoa(s.CRF()), "-preset", "medium"}
	default:
		return nil
	}
}

func videotoolboxBitrate(quality string) string {
	switch quality {
	case config.QualityLow:
		return "2500k"
	case config.QualityMedium:
		return "5000k"
	default:
		return "8000k"
	}
}
