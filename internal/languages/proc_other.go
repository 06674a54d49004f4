//go:build !unix

package languages

import "os/exec"

func killProcessGroup(cmd *exec.Cmd) {
	cmd.WaitDelay = waitDelay
}
