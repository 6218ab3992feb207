//go:build !unix

package rsync

import "os/exec"

func detach(cmd *exec.Cmd) {}
