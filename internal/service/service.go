// Package service is the transport-independent front of the pipeline: it accepts
// composition requests, starts jobs and fans their events out to subscribers.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/ivlev/scriptvideo/internal/config"
	"github.com/ivlev/scriptvideo/internal/engine"
	"github.com/ivlev/scriptvideo/internal/logging"
	"github.com/ivlev/scriptvideo/internal/plan"
	"github.com/ivlev/scriptvideo/internal/script"
	"github.com/ivlev/scriptvideo/internal/source"
	"github.com/ivlev/scriptvideo/internal/video"
)

var (
	ErrUnknownJob = errors.New("unknown job")
	ErrClosed     = errors.New("service closed")
)

const defaultOutputName = "cinematic-video"

// Request describes one composition. Images must already be in scene order.
type Request struct {
	Images       []string              `json:"images"`
	Instructions []script.Instruction  `json:"instructions"`
	AudioPath    string                `json:"audio_path"`
	OutputPath   string                `json:"output_path,omitempty"`
	Settings     config.EncodeSettings `json:"settings"`
}

// FolderRequest is the desktop flow: an image folder plus script files.
type FolderRequest struct {
	ImageDir   string                `json:"image_dir"`
	Scripts    []string              `json:"scripts"`
	AudioPath  string                `json:"audio_path"`
	OutputPath string                `json:"output_path,omitempty"`
	Settings   config.EncodeSettings `json:"settings"`
}

type Options struct {
	OutputDir     string
	FFmpegPath    string
	TempDir       string
	Prober        video.DurationProber
	DetectEncoder func(ctx context.Context, ffmpeg string) string
	Env           []string
}

type Service struct {
	runner *engine.Runner
	opts   Options
	logger *slog.Logger
	now    func() time.Time

	mu      sync.Mutex
	jobs    map[string]*engine.JobHandle
	events  *broadcaster
	closed  bool
	pending sync.WaitGroup
}

func New(runner *engine.Runner, opts Options, logger *slog.Logger) *Service {
	return &Service{
		runner: runner,
		opts:   opts,
		logger: logging.NewComponentLogger(logger, "service"),
		now:    time.Now,
		jobs:   make(map[string]*engine.JobHandle),
		events: newBroadcaster(),
	}
}

// CreateVideo builds the plan and job and starts the encoder. Validation and spawn
// errors are returned here; everything later arrives as events.
func (s *Service) CreateVideo(ctx context.Context, req Request) (*engine.JobHandle, error) {
	settings := req.Settings
	settings.Normalize()
	p := plan.Build(req.Images, req.Instructions, req.AudioPath, settings)
	return s.CreateFromPlan(ctx, p, req.OutputPath)
}

// CreateFromPlan starts a job for an existing plan, e.g. one read from a plan file.
func (s *Service) CreateFromPlan(ctx context.Context, p *plan.Plan, output string) (*engine.JobHandle, error) {
	// pending is taken before any work so Close waits for this create to settle
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrClosed
	}
	s.pending.Add(1)
	s.mu.Unlock()
	registered := false
	defer func() {
		if !registered {
			s.pending.Done()
		}
	}()

	if strings.TrimSpace(output) == "" && p != nil {
		output = DefaultOutputPath(s.opts.OutputDir, p.AudioPath, p.Settings.Container, s.now())
	}

	job, err := video.BuildJob(ctx, p, video.Options{
		OutputPath:    output,
		FFmpegPath:    s.opts.FFmpegPath,
		TempDir:       s.opts.TempDir,
		Prober:        s.opts.Prober,
		DetectEncoder: s.opts.DetectEncoder,
		Env:           s.opts.Env,
	})
	if err != nil {
		return nil, err
	}

	// jobs outlive the request that created them; Cancel and Close stop them
	handle, err := s.runner.Start(context.WithoutCancel(ctx), job)
	if err != nil {
		if discardErr := job.Discard(); discardErr != nil {
			s.logger.Warn("discard job", logging.JobID(job.ID), logging.Error(discardErr))
		}
		return nil, err
	}

	s.mu.Lock()
	s.jobs[handle.ID] = handle
	closed := s.closed
	s.mu.Unlock()
	registered = true
	if closed {
		// Close ran while the job was starting and could not see it
		handle.Cancel()
	}

	s.logger.Info("job started",
		logging.JobID(handle.ID),
		logging.Int("scenes", job.Scenes),
		logging.String("output", job.OutputPath),
	)
	go s.forward(handle)
	return handle, nil
}

// CreateFromFolder lists the images, parses the scripts and starts the job.
func (s *Service) CreateFromFolder(ctx context.Context, req FolderRequest) (*engine.JobHandle, error) {
	p, err := PlanFromFolder(req)
	if err != nil {
		return nil, err
	}
	return s.CreateFromPlan(ctx, p, req.OutputPath)
}

// PlanFromFolder builds a plan without starting anything.
func PlanFromFolder(req FolderRequest) (*plan.Plan, error) {
	images, err := source.ListImages(req.ImageDir)
	if err != nil {
		return nil, err
	}
	instructions, err := script.ParseFiles(req.Scripts)
	if err != nil {
		return nil, err
	}
	settings := req.Settings
	settings.Normalize()
	return plan.Build(images, instructions, req.AudioPath, settings), nil
}

// Subscribe registers an event listener. Events for every job are delivered until
// Unsubscribe is called.
func (s *Service) Subscribe() (int, <-chan Event) {
	return s.events.subscribe()
}

func (s *Service) Unsubscribe(id int) {
	s.events.unsubscribe(id)
}

// Job returns a running job by id.
func (s *Service) Job(id string) (*engine.JobHandle, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.jobs[id]
	return h, ok
}

func (s *Service) Cancel(id string) error {
	h, ok := s.Job(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownJob, id)
	}
	h.Cancel()
	return nil
}

// Close cancels running jobs and waits until their terminal events were published.
func (s *Service) Close() {
	s.mu.Lock()
	s.closed = true
	for _, h := range s.jobs {
		h.Cancel()
	}
	s.mu.Unlock()
	s.pending.Wait()
	s.events.close()
}

func (s *Service) forward(h *engine.JobHandle) {
	defer s.pending.Done()
	for ev := range h.Progress() {
		s.events.publish(Event{JobID: h.ID, Progress: &ev})
	}
	res := h.Result()

	s.mu.Lock()
	delete(s.jobs, h.ID)
	s.mu.Unlock()

	s.events.publish(Event{JobID: h.ID, Result: &res})
}

// DefaultOutputPath names the output after the audio file and the start time.
func DefaultOutputPath(dir, audio, container string, now time.Time) string {
	if dir == "" {
		dir = "output"
	}
	if container == "" {
		container = config.ContainerMP4
	}
	name := strings.TrimSuffix(filepath.Base(audio), filepath.Ext(audio))
	if audio == "" || name == "" || name == "." {
		return filepath.Join(dir, defaultOutputName+"."+container)
	}
	return filepath.Join(dir, fmt.Sprintf("%s_%s.%s", name, now.Format("2006-01-02_15-04-05"), container))
}
