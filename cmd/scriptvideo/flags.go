package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ivlev/scriptvideo/internal/config"
	"github.com/ivlev/scriptvideo/internal/service"
	"github.com/ivlev/scriptvideo/internal/system"
)

// inputFlags are shared by render and plan.
type inputFlags struct {
	images  string
	scripts []string
	audio   string
}

func (f *inputFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.images, "images", "input/images", "Folder with scene images")
	cmd.Flags().StringSliceVar(&f.scripts, "script", nil, "Script file (repeatable, sorted by name)")
	cmd.Flags().StringVar(&f.audio, "audio", "", "Audio track (default: newest file in input/audio/)")
}

func (f *inputFlags) folderRequest(settings config.EncodeSettings, output string) (service.FolderRequest, error) {
	audio := strings.TrimSpace(f.audio)
	if audio == "" {
		latest, err := system.FindLatestAudio("input/audio")
		if err != nil {
			return service.FolderRequest{}, fmt.Errorf("%w; pass --audio or put a file in input/audio/", err)
		}
		audio = latest
	}
	return service.FolderRequest{
		ImageDir:   f.images,
		Scripts:    f.scripts,
		AudioPath:  audio,
		OutputPath: output,
		Settings:   settings,
	}, nil
}

// encodeFlags override the encode section of the config when set.
type encodeFlags struct {
	resolution string
	width      int
	height     int
	fps        int
	quality    string
	format     string
	codec      string
}

func (f *encodeFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.resolution, "resolution", "", "Output size as WIDTHxHEIGHT")
	cmd.Flags().IntVar(&f.width, "width", 0, "Output width")
	cmd.Flags().IntVar(&f.height, "height", 0, "Output height")
	cmd.Flags().IntVar(&f.fps, "fps", 0, "Output frame rate")
	cmd.Flags().StringVar(&f.quality, "quality", "", "Quality: high, medium, low")
	cmd.Flags().StringVar(&f.format, "format", "", "Container: mp4, mov, avi")
	cmd.Flags().StringVar(&f.codec, "codec", "", "Video codec, or auto for hardware H.264")
}

func (f *encodeFlags) apply(cmd *cobra.Command, s config.EncodeSettings) (config.EncodeSettings, error) {
	changed := cmd.Flags().Changed
	if changed("resolution") {
		w, h, err := config.ParseResolution(f.resolution)
		if err != nil {
			return s, err
		}
		s.Width, s.Height = w, h
	}
	if changed("width") {
		s.Width = f.width
	}
	if changed("height") {
		s.Height = f.height
	}
	if changed("fps") {
		s.FrameRate = f.fps
	}
	if changed("quality") {
		s.Quality = f.quality
	}
	if changed("format") {
		s.Container = f.format
	}
	if changed("codec") {
		s.VideoCodec = f.codec
	}
	s.Normalize()
	return s, s.Validate()
}
