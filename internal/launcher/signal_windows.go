//go:build windows

package launcher

import "os"

var interruptSignal = os.Interrupt
