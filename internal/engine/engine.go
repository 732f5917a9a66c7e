// Package engine runs one prepared ffmpeg job at a time and reports its progress.
package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"golang.org/x/sync/errgroup"

	"github.com/ivlev/scriptvideo/internal/logging"
	"github.com/ivlev/scriptvideo/internal/system"
	"github.com/ivlev/scriptvideo/internal/video"
)

const (
	defaultSampleInterval = 500 * time.Millisecond
	defaultKillGrace      = 5 * time.Second
	stderrTailLines       = 20
)

// Runner is single-flight: it owns at most one encoder process.
type Runner struct {
	// SampleInterval spaces RSS/CPU samples of the encoder.
	SampleInterval time.Duration
	// KillGrace is how long a cancelled encoder may take to exit after SIGTERM.
	KillGrace time.Duration

	logger *slog.Logger

	mu      sync.Mutex
	state   State
	current *JobHandle
}

func NewRunner(logger *slog.Logger) *Runner {
	return &Runner{
		SampleInterval: defaultSampleInterval,
		KillGrace:      defaultKillGrace,
		logger:         logging.NewComponentLogger(logger, "runner"),
	}
}

// State is Running while a job is in flight and Idle otherwise.
func (r *Runner) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Current returns the in-flight job, if any.
func (r *Runner) Current() *JobHandle {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current
}

// Start spawns the encoder for job and returns immediately. ErrBusy leaves the job
// with the caller; any other outcome hands it to the runner, which removes its work
// directory on every path. A lock that cannot be created at all is an I/O error, not
// ErrBusy.
func (r *Runner) Start(ctx context.Context, job *video.Job) (*JobHandle, error) {
	r.mu.Lock()
	if r.state == Running {
		r.mu.Unlock()
		return nil, ErrBusy
	}
	r.state = Running
	r.mu.Unlock()

	logger := r.logger.With(logging.JobID(job.ID))

	lock := flock.New(job.OutputPath + ".lock")
	locked, err := lock.TryLock()
	if err != nil {
		if discardErr := job.Discard(); discardErr != nil {
			logger.Warn("remove work directory", logging.String("path", job.WorkDir), logging.Error(discardErr))
		}
		r.setIdle(nil)
		return nil, fmt.Errorf("lock output %s: %w", job.OutputPath, err)
	}
	if !locked {
		r.setIdle(nil)
		return nil, fmt.Errorf("%w: %s is being written by another process", ErrBusy, job.OutputPath)
	}

	jobCtx, cancel := context.WithCancel(ctx)
	cmd := exec.CommandContext(jobCtx, job.Binary, job.Args...)
	if len(job.Env) > 0 {
		cmd.Env = append(os.Environ(), job.Env...)
	}
	cmd.Cancel = func() error {
		return system.TerminateProcessTree(context.Background(), cmd.Process.Pid, false)
	}
	cmd.WaitDelay = r.KillGrace
	// a terminal Ctrl-C must reach the runner, not the encoder directly
	system.DetachProcessGroup(cmd)

	stdout, err := cmd.StdoutPipe()
	if err == nil {
		var stderr io.ReadCloser
		stderr, err = cmd.StderrPipe()
		if err == nil {
			err = cmd.Start()
		}
		if err == nil {
			handle := newHandle(job.ID, cancel)
			r.mu.Lock()
			r.current = handle
			r.mu.Unlock()

			logger.Info("encoder started",
				logging.Int("pid", cmd.Process.Pid),
				logging.String("output", job.OutputPath),
				logging.Duration("expected", job.ExpectedDuration),
			)
			go r.supervise(jobCtx, cmd, stdout, stderr, job, handle, lock, logger)
			return handle, nil
		}
	}

	cancel()
	r.cleanup(job, false, lock, logger)
	r.setIdle(nil)
	logger.Error("encoder failed to start", logging.String("binary", job.Binary), logging.Error(err))
	return nil, &SpawnError{Binary: job.Binary, Err: err}
}

func (r *Runner) supervise(ctx context.Context, cmd *exec.Cmd, stdout, stderr io.Reader, job *video.Job, handle *JobHandle, lock *flock.Flock, logger *slog.Logger) {
	started := time.Now()
	tail := newTail(stderrTailLines)
	dropped := 0

	var pipes errgroup.Group
	pipes.Go(func() error {
		return parseProgress(stdout, job.ExpectedDuration, func(ev ProgressEvent) {
			if !handle.emit(ev) {
				dropped++
			}
		})
	})
	pipes.Go(func() error {
		return tail.collect(stderr)
	})

	exited := make(chan struct{})
	var stats Stats
	var monitor errgroup.Group
	monitor.Go(func() error {
		stats = r.sample(ctx, cmd.Process.Pid, exited)
		return nil
	})

	pipeErr := pipes.Wait()
	waitErr := cmd.Wait()
	close(exited)
	_ = monitor.Wait()
	stats.Elapsed = time.Since(started)

	if pipeErr != nil {
		logger.Debug("encoder pipe read", logging.Error(pipeErr))
	}
	if dropped > 0 {
		logger.Debug("progress events dropped", logging.Int("count", dropped))
	}

	res := Result{JobID: job.ID, Stats: stats}
	if cmd.ProcessState != nil {
		res.ExitCode = cmd.ProcessState.ExitCode()
	}

	switch {
	case waitErr == nil:
		res.State = Completed
		res.OutputPath = job.OutputPath
	case ctx.Err() != nil && !(cmd.ProcessState != nil && cmd.ProcessState.Success()):
		res.State = Cancelled
		res.Reason = "cancelled"
	case cmd.ProcessState != nil && cmd.ProcessState.Success():
		// exit 0 but Wait still reported an error (late cancel, I/O copy)
		res.State = Completed
		res.OutputPath = job.OutputPath
	default:
		res.State = Failed
		res.Reason = tail.String()
		if res.Reason == "" {
			res.Reason = waitErr.Error()
		}
	}

	r.cleanup(job, res.State != Completed, lock, logger)
	handle.cancel()
	r.setIdle(handle)

	switch res.State {
	case Completed:
		logger.Info("encode completed",
			logging.String("output", res.OutputPath),
			logging.Duration("elapsed", stats.Elapsed),
			logging.Uint64("peak_rss", stats.PeakRSS),
			logging.Float64("cpu_percent", stats.CPUPercent),
		)
	case Cancelled:
		logger.Info("encode cancelled", logging.Duration("elapsed", stats.Elapsed))
	default:
		logger.Error("encode failed", logging.Int("exit_code", res.ExitCode), logging.String("reason", res.Reason))
	}
	handle.finish(res)
}

// sample polls the encoder until exited closes and keeps the peak RSS and the last CPU share.
func (r *Runner) sample(ctx context.Context, pid int, exited <-chan struct{}) Stats {
	interval := r.SampleInterval
	if interval <= 0 {
		interval = defaultSampleInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var stats Stats
	take := func() {
		usage, err := system.SampleProcess(ctx, pid)
		if err != nil {
			return
		}
		stats.Samples++
		stats.PeakRSS = max(stats.PeakRSS, usage.RSS)
		stats.CPUPercent = usage.CPUPercent
	}

	take()
	for {
		select {
		case <-exited:
			return stats
		case <-ticker.C:
			take()
		}
	}
}

// cleanup removes the work directory and, for unsuccessful runs, the partial output.
// Failures here are logged and never change the job outcome.
func (r *Runner) cleanup(job *video.Job, removeOutput bool, lock *flock.Flock, logger *slog.Logger) {
	if err := job.Discard(); err != nil {
		logger.Warn("remove work directory", logging.String("path", job.WorkDir), logging.Error(err))
	}
	if removeOutput {
		if err := os.Remove(job.OutputPath); err != nil && !errors.Is(err, os.ErrNotExist) {
			logger.Warn("remove partial output", logging.String("path", job.OutputPath), logging.Error(err))
		}
	}
	if err := lock.Unlock(); err != nil {
		logger.Warn("release output lock", logging.Error(err))
	}
	if err := os.Remove(lock.Path()); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.Debug("remove lock file", logging.Error(err))
	}
}

func (r *Runner) setIdle(finished *JobHandle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state = Idle
	if finished != nil && r.current == finished {
		r.current = nil
	}
}
