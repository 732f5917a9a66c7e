package system

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

var audioExtensions = []string{".mp3", ".wav", ".m4a", ".ogg", ".aac", ".flac"}

// hardware H.264 encoders in order of preference
var hardwareEncoders = []string{"h264_videotoolbox", "h264_nvenc"}

func IsAudio(name string) bool {
	lower := strings.ToLower(name)
	for _, ext := range audioExtensions {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}

// FindLatestAudio returns the most recently modified audio file in dir.
func FindLatestAudio(dir string) (string, error) {
	files, err := os.ReadDir(dir)
	if err != nil {
		return "", err
	}

	var latestFile string
	var latestTime time.Time

	for _, f := range files {
		if f.IsDir() || !IsAudio(f.Name()) {
			continue
		}
		info, err := f.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(latestTime) {
			latestTime = info.ModTime()
			latestFile = filepath.Join(dir, f.Name())
		}
	}

	if latestFile == "" {
		return "", fmt.Errorf("no audio files found in %s", dir)
	}

	return latestFile, nil
}

// Prober reads media durations with ffprobe.
type Prober struct {
	Binary string
}

func (p Prober) AudioDuration(ctx context.Context, path string) (time.Duration, error) {
	binary := p.Binary
	if binary == "" {
		binary = "ffprobe"
	}
	cmd := exec.CommandContext(ctx, binary, "-v", "error", "-show_entries", "format=duration", "-of", "default=noprint_wrappers=1:nokey=1", path)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return 0, fmt.Errorf("ffprobe %s: %w: %s", path, err, strings.TrimSpace(string(out)))
	}
	return ParseSeconds(string(out))
}

// ParseSeconds converts ffprobe's decimal seconds output.
func ParseSeconds(value string) (time.Duration, error) {
	seconds, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return 0, fmt.Errorf("parse duration %q: %w", strings.TrimSpace(value), err)
	}
	if seconds < 0 {
		return 0, fmt.Errorf("negative duration %q", strings.TrimSpace(value))
	}
	return time.Duration(seconds * float64(time.Second)), nil
}

// GetBestH264Encoder returns the first hardware encoder ffmpeg reports, or libx264.
func GetBestH264Encoder(ctx context.Context, ffmpeg string) string {
	out, err := exec.CommandContext(ctx, ffmpeg, "-hide_banner", "-encoders").CombinedOutput()
	if err != nil {
		return "libx264"
	}
	return pickEncoder(out)
}

func pickEncoder(listing []byte) string {
	available := map[string]bool{}
	scanner := bufio.NewScanner(bytes.NewReader(listing))
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) >= 2 {
			available[fields[1]] = true
		}
	}
	for _, name := range hardwareEncoders {
		if available[name] {
			return name
		}
	}
	return "libx264"
}

type Dependency struct {
	Name    string
	Path    string
	Version string
	Err     error
}

func (d Dependency) OK() bool { return d.Err == nil }

// CheckDeps resolves the encoder binaries and reads their version banners.
func CheckDeps(ctx context.Context, ffmpeg, ffprobe string) []Dependency {
	deps := []Dependency{{Name: "ffmpeg", Path: ffmpeg}, {Name: "ffprobe", Path: ffprobe}}
	for i := range deps {
		resolved, err := exec.LookPath(deps[i].Path)
		if err != nil {
			deps[i].Err = err
			continue
		}
		deps[i].Path = resolved
		out, err := exec.CommandContext(ctx, resolved, "-hide_banner", "-version").Output()
		if err != nil {
			deps[i].Err = fmt.Errorf("%s -version: %w", deps[i].Name, err)
			continue
		}
		deps[i].Version = firstLine(out)
	}
	return deps
}

func firstLine(out []byte) string {
	line, _, _ := strings.Cut(string(out), "\n")
	return strings.TrimSpace(line)
}
