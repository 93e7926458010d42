//go:build windows

package procexec

import (
	"os"
	"os/exec"
)

func configureProcessGroup(*exec.Cmd) {}

// Windows cannot deliver an interrupt to another console process group, so
// any termination request becomes a kill.
func signalProcess(p *os.Process, _ os.Signal) error {
	return p.Kill()
}

func killProcess(p *os.Process) error {
	return p.Kill()
}

func signalNumber(*os.ProcessState) (int, bool) {
	return 0, false
}
