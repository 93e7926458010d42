// Package desktop talks to the user's desktop session: a native folder
// chooser for the served directory and the default browser for the URL.
package desktop

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strings"

	"prompter/cli/internal/procexec"
)

var ErrUnsupported = errors.New("not supported on this platform")

type Desktop struct {
	exec procexec.Exec
	goos string
}

func New(exec procexec.Exec) *Desktop {
	if exec == nil {
		exec = &procexec.RealExec{}
	}
	return &Desktop{exec: exec, goos: runtime.GOOS}
}

func buildPickCommand(goos string) (string, []string) {
	switch goos {
	case "darwin":
		return "osascript", []string{"-e", `POSIX path of (choose folder with prompt "Select the directory to serve")`}
	case "linux":
		return "zenity", []string{"--file-selection", "--directory", "--title=Select the directory to serve"}
	case "windows":
		return "powershell", []string{
			"-NoProfile",
			"-Command",
			"Add-Type -AssemblyName System.Windows.Forms; $d=New-Object System.Windows.Forms.FolderBrowserDialog; if($d.ShowDialog() -eq 'OK'){Write-Output $d.SelectedPath}",
		}
	default:
		return "", nil
	}
}

func buildOpenCommand(goos, url string) (string, []string) {
	switch goos {
	case "darwin":
		return "open", []string{url}
	case "linux", "freebsd", "openbsd", "netbsd":
		return "xdg-open", []string{url}
	case "windows":
		return "rundll32", []string{"url.dll,FileProtocolHandler", url}
	default:
		return "", nil
	}
}

// PickDirectory shows a folder chooser and returns the selected path.
func (d *Desktop) PickDirectory(ctx context.Context) (string, error) {
	cmd, args := buildPickCommand(d.goos)
	if cmd == "" {
		return "", fmt.Errorf("directory picker: %w", ErrUnsupported)
	}
	out, err := d.exec.Output(ctx, procexec.Spec{Name: cmd, Args: args})
	if err != nil {
		return "", err
	}
	path := strings.TrimSpace(string(out))
	if path == "" {
		return "", errors.New("empty directory selection")
	}
	return path, nil
}

func (d *Desktop) OpenURL(ctx context.Context, url string) error {
	cmd, args := buildOpenCommand(d.goos, url)
	if cmd == "" {
		return ErrUnsupported
	}
	return d.exec.Run(ctx, procexec.Spec{Name: cmd, Args: args})
}
