package engine

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"
)

// Report is the performance summary printed when show_stats is enabled.
type Report struct {
	Build  string
	Input  string
	Scenes int
	Result Result
}

func (r Report) Write(w io.Writer) {
	s := r.Result.Stats
	fps := 0.0
	if s.Elapsed > 0 {
		fps = float64(r.Scenes) / s.Elapsed.Seconds()
	}
	fmt.Fprintf(w,
		"--- [PERFORMANCE REPORT] ---\n"+
			"Build: %s\n"+
			"State: %s\n"+
			"Total Time: %.2fs\n"+
			"Peak RSS: %.1f MiB\n"+
			"Encoder CPU: %.1f%%\n"+
			"Scenes/s: %.2f\n"+
			"----------------------------\n",
		r.Build, r.Result.State, s.Elapsed.Seconds(), float64(s.PeakRSS)/(1<<20), s.CPUPercent, fps,
	)
}

// AppendBenchmark adds a one-line entry to the benchmark log at path.
func (r Report) AppendBenchmark(path string) error {
	s := r.Result.Stats
	entry := fmt.Sprintf("[%s] Build: %s | Input: %s | Scenes: %d | State: %s | Total: %.2fs | PeakRSS: %d\n",
		time.Now().Format("2006-01-02 15:04:05"),
		r.Build,
		filepath.Base(r.Input),
		r.Scenes,
		r.Result.State,
		s.Elapsed.Seconds(),
		s.PeakRSS,
	)

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	if _, err := f.WriteString(entry); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
