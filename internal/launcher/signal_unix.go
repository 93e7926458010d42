//go:build !windows

package launcher

import "syscall"

var interruptSignal = syscall.SIGINT
