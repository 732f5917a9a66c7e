package engine

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
)

// ProgressEvent is emitted once per ffmpeg -progress block.
type ProgressEvent struct {
	Percent   float64 `json:"percent"`
	Timestamp string  `json:"timestamp"`
}

// parseProgress reads key=value blocks terminated by a progress= line. Blocks without
// a usable out_time are skipped.
func parseProgress(r io.Reader, expected time.Duration, emit func(ProgressEvent)) error {
	scanner := bufio.NewScanner(r)
	block := map[string]string{}
	for scanner.Scan() {
		key, value, ok := strings.Cut(strings.TrimSpace(scanner.Text()), "=")
		if !ok {
			continue
		}
		key, value = strings.TrimSpace(key), strings.TrimSpace(value)
		if key != "progress" {
			block[key] = value
			continue
		}
		if pos, ok := outTime(block); ok {
			emit(ProgressEvent{
				Percent:   percentOf(pos, expected, value == "end"),
				Timestamp: FormatTimestamp(pos),
			})
		}
		clear(block)
	}
	return scanner.Err()
}

func outTime(block map[string]string) (time.Duration, bool) {
	// out_time_ms carries microseconds as well
	for _, key := range []string{"out_time_us", "out_time_ms"} {
		if v, ok := block[key]; ok {
			if us, err := strconv.ParseInt(v, 10, 64); err == nil && us >= 0 {
				return time.Duration(us) * time.Microsecond, true
			}
		}
	}
	if v, ok := block["out_time"]; ok {
		if d, err := parseClock(v); err == nil {
			return d, true
		}
	}
	return 0, false
}

// parseClock reads HH:MM:SS.ffffff.
func parseClock(value string) (time.Duration, error) {
	parts := strings.Split(value, ":")
	if len(parts) != 3 {
		return 0, fmt.Errorf("clock %q: want HH:MM:SS", value)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, err
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, err
	}
	s, err := strconv.ParseFloat(parts[2], 64)
	if err != nil {
		return 0, err
	}
	if h < 0 || m < 0 || s < 0 {
		return 0, fmt.Errorf("clock %q: negative", value)
	}
	return time.Duration(h)*time.Hour + time.Duration(m)*time.Minute + time.Duration(s*float64(time.Second)), nil
}

func percentOf(pos, expected time.Duration, end bool) float64 {
	if end {
		return 100
	}
	if expected <= 0 {
		return 0
	}
	return clamp(float64(pos)*100/float64(expected), 0, 100)
}

func clamp(v, lo, hi float64) float64 {
	return max(lo, min(hi, v))
}

// FormatTimestamp renders d as HH:MM:SS.mmm.
func FormatTimestamp(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	ms := d.Milliseconds()
	return fmt.Sprintf("%02d:%02d:%02d.%03d", ms/3_600_000, ms/60_000%60, ms/1000%60, ms%1000)
}
