package readiness

import (
	"errors"
	"fmt"
	"net"
	"strconv"
)

// ErrPortInUse means another process already listens on the launch port.
var ErrPortInUse = errors.New("port already in use")

// CheckPortFree reports ErrPortInUse when port cannot be bound on all
// interfaces. The listener is closed again right away.
func CheckPortFree(port int) error {
	ln, err := net.Listen("tcp", net.JoinHostPort("", strconv.Itoa(port)))
	if err != nil {
		return fmt.Errorf("%w: %d: %v", ErrPortInUse, port, err)
	}
	return ln.Close()
}
