package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

const (
	RuntimeContainer   = "container"
	RuntimeInterpreter = "interpreter"

	MinPort = 1
	MaxPort = 65535
)

var ErrInvalidArgument = errors.New("invalid argument")

// LaunchConfig is resolved once from the command line and never mutated.
type LaunchConfig struct {
	Port           int
	Directory      string
	Debug          bool
	ForceProvision bool
	Runtime        string
	OpenBrowser    bool
	// Image overrides the configured container image. Empty keeps it.
	Image string
}

// URL is the address the external application is reachable at once ready.
func (c LaunchConfig) URL() string {
	return fmt.Sprintf("http://localhost:%d", c.Port)
}

func InvalidArgumentf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, fmt.Sprintf(format, args...))
}

// ParsePort accepts decimal port numbers in [MinPort, MaxPort].
func ParsePort(raw string) (int, error) {
	v := strings.TrimSpace(raw)
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, InvalidArgumentf("port %q is not a number", raw)
	}
	if err := ValidatePort(n); err != nil {
		return 0, err
	}
	return n, nil
}

func ValidatePort(port int) error {
	if port < MinPort || port > MaxPort {
		return InvalidArgumentf("port %d out of range, must be between %d and %d", port, MinPort, MaxPort)
	}
	return nil
}

// NormalizeRuntime maps user spellings onto a runtime id. Empty input yields "".
func NormalizeRuntime(raw string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "":
		return "", nil
	case RuntimeContainer, "docker":
		return RuntimeContainer, nil
	case RuntimeInterpreter, "python", "python3":
		return RuntimeInterpreter, nil
	default:
		return "", InvalidArgumentf("unknown runtime %q (want %s or %s)", raw, RuntimeContainer, RuntimeInterpreter)
	}
}

// ResolveDirectory returns the absolute, cleaned form of path and requires it
// to be an existing directory. An empty path resolves to the working directory
// and a leading ~ to the home directory.
func ResolveDirectory(path string) (string, error) {
	p := expandHome(strings.TrimSpace(path))
	if p == "" {
		wd, err := os.Getwd()
		if err != nil {
			return "", err
		}
		p = wd
	}
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", InvalidArgumentf("directory %q: %v", path, err)
	}
	st, err := os.Stat(abs)
	if err != nil {
		return "", InvalidArgumentf("directory %q: %v", path, err)
	}
	if !st.IsDir() {
		return "", InvalidArgumentf("%q is not a directory", path)
	}
	return filepath.Clean(abs), nil
}

func expandHome(p string) string {
	if p != "~" && !strings.HasPrefix(p, "~/") && !strings.HasPrefix(p, "~"+string(filepath.Separator)) {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil || strings.TrimSpace(home) == "" {
		return p
	}
	return filepath.Join(home, p[1:])
}
