package system

import (
	"context"
	"errors"

	"github.com/shirou/gopsutil/v3/process"
)

// Usage is a point sample of a running process.
type Usage struct {
	RSS        uint64
	CPUPercent float64
}

// SampleProcess reads the resident set size and CPU share of pid.
func SampleProcess(ctx context.Context, pid int) (Usage, error) {
	p, err := process.NewProcessWithContext(ctx, int32(pid))
	if err != nil {
		return Usage{}, err
	}
	var usage Usage
	mem, err := p.MemoryInfoWithContext(ctx)
	if err != nil {
		return Usage{}, err
	}
	usage.RSS = mem.RSS
	if cpu, err := p.CPUPercentWithContext(ctx); err == nil {
		usage.CPUPercent = cpu
	}
	return usage, nil
}

// TerminateProcessTree signals pid and every descendant, children first.
// With force it sends SIGKILL instead of SIGTERM.
func TerminateProcessTree(ctx context.Context, pid int, force bool) error {
	root, err := process.NewProcessWithContext(ctx, int32(pid))
	if err != nil {
		if errors.Is(err, process.ErrorProcessNotRunning) {
			return nil
		}
		return err
	}
	return signalTree(ctx, root, force)
}

func signalTree(ctx context.Context, p *process.Process, force bool) error {
	var errs []error
	children, _ := p.ChildrenWithContext(ctx)
	for _, child := range children {
		if err := signalTree(ctx, child, force); err != nil {
			errs = append(errs, err)
		}
	}
	var err error
	if force {
		err = p.KillWithContext(ctx)
	} else {
		err = p.TerminateWithContext(ctx)
	}
	if err != nil && !isGone(ctx, p) {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func isGone(ctx context.Context, p *process.Process) bool {
	running, err := p.IsRunningWithContext(ctx)
	return err != nil || !running
}
