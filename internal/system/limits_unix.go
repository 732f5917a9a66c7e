//go:build unix

package system

import (
	"log/slog"

	"golang.org/x/sys/unix"

	"github.com/ivlev/scriptvideo/internal/logging"
)

const wantOpenFiles = 2048

// InitResourceLimits raises the soft open-file limit for the encoder and its pipes.
func InitResourceLimits(logger *slog.Logger) {
	logger = logging.NewComponentLogger(logger, "system")

	var rLimit unix.Rlimit
	if err := unix.Getrlimit(unix.RLIMIT_NOFILE, &rLimit); err != nil {
		logger.Warn("read open file limit", logging.Error(err))
		return
	}
	if rLimit.Cur >= wantOpenFiles {
		return
	}

	rLimit.Cur = wantOpenFiles
	if rLimit.Cur > rLimit.Max {
		rLimit.Cur = rLimit.Max
	}

	if err := unix.Setrlimit(unix.RLIMIT_NOFILE, &rLimit); err != nil {
		logger.Warn("raise open file limit", logging.Error(err))
		return
	}
	logger.Debug("open file limit raised", logging.Uint64("limit", uint64(rLimit.Cur)))
}
