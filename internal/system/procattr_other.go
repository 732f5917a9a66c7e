//go:build !unix

package system

import "os/exec"

func DetachProcessGroup(*exec.Cmd) {}
