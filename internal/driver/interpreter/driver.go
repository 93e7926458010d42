package interpreter

import (
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"prompter/cli/internal/config"
	"prompter/cli/internal/driver"
	"prompter/cli/internal/global"
	"prompter/cli/internal/procexec"
)

const (
	ID = config.RuntimeInterpreter

	// ReadyMarker is printed by the application once its server listens.
	ReadyMarker = "Access in browser"
)

var _ driver.Driver = (*Driver)(nil)

type Options struct {
	Exec     procexec.Exec
	Settings global.InterpreterSettings
	// StampDir records which requirement sets were installed. Empty disables
	// the record so every launch installs.
	StampDir string
	Reporter driver.Reporter
	Logger   *slog.Logger
	// Stdout receives pip output in debug mode.
	Stdout io.Writer
}

type Driver struct {
	exec     procexec.Exec
	s        global.InterpreterSettings
	appDir   string
	stampDir string
	report   driver.Reporter
	logger   *slog.Logger
	stdout   io.Writer
}

func New(opts Options) *Driver {
	d := &Driver{
		exec:     opts.Exec,
		s:        opts.Settings,
		appDir:   opts.Settings.AppDir,
		stampDir: strings.TrimSpace(opts.StampDir),
		report:   opts.Reporter,
		logger:   opts.Logger,
		stdout:   opts.Stdout,
	}
	if d.appDir == "" {
		d.appDir = defaultAppDir()
	}
	if d.exec == nil {
		d.exec = &procexec.RealExec{Logger: opts.Logger}
	}
	if d.logger == nil {
		d.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if d.stdout == nil {
		d.stdout = os.Stdout
	}
	return d
}

func defaultAppDir() string {
	execPath, err := os.Executable()
	if err != nil || execPath == "" {
		return filepath.Clean("src/file_prompter")
	}
	return filepath.Clean(filepath.Join(filepath.Dir(execPath), "..", "src", "file_prompter"))
}

func (d *Driver) ID() string              { return ID }
func (d *Driver) DisplayName() string     { return "Python" }
func (d *Driver) DefaultPort() int        { return d.s.DefaultPort }
func (d *Driver) ProvisionRequired() bool { return d.s.RequireDependencies }
func (d *Driver) AppDir() string          { return d.appDir }

func (d *Driver) CheckAvailable(ctx context.Context) (string, error) {
	out, err := d.exec.Output(ctx, procexec.Spec{Name: d.s.Binary, Args: []string{"--version"}})
	if err != nil {
		return "", &driver.UnavailableError{
			Runtime: "Python",
			Remediation: strings.Join([]string{
				"Python not found. Please install Python 3.7+ and try again.",
				"Download from: https://www.python.org/downloads/",
				"",
				"Or set [interpreter] binary in the prompter config file.",
			}, "\n"),
			Err: err,
		}
	}
	return strings.TrimSpace(string(out)), nil
}

func (d *Driver) requirementsPath() string {
	if filepath.IsAbs(d.s.Requirements) {
		return d.s.Requirements
	}
	return filepath.Join(d.appDir, d.s.Requirements)
}

// Provision installs the application's requirements with pip. A stamp keyed
// by interpreter and file content marks a set as installed.
func (d *Driver) Provision(ctx context.Context, cfg config.LaunchConfig, policy driver.Policy) error {
	reqPath := d.requirementsPath()
	content, err := os.ReadFile(reqPath)
	if os.IsNotExist(err) {
		d.report.Success("No additional Python dependencies needed")
		return nil
	}
	if err != nil {
		return d.fail(policy, reqPath, err)
	}

	stamp := d.stampPath(content)
	if !policy.Force && stamp != "" {
		if _, err := os.Stat(stamp); err == nil {
			d.report.Success("Python dependencies already installed")
			return nil
		}
	}

	d.report.Info("Installing Python dependencies...")
	var captured bytes.Buffer
	spec := procexec.Spec{
		Name:   d.s.Binary,
		Args:   []string{"-m", "pip", "install", "-r", reqPath},
		Stdout: &captured,
		Stderr: &captured,
	}
	if cfg.Debug {
		spec.Stdout = d.stdout
		spec.Stderr = d.stdout
	}
	if err := d.exec.Run(ctx, spec); err != nil {
		if captured.Len() > 0 {
			d.logger.Debug("pip install output", "output", strings.TrimSpace(captured.String()))
		}
		return d.fail(policy, reqPath, err)
	}
	if stamp != "" {
		if err := writeStamp(stamp); err != nil {
			d.logger.Warn("write provision stamp", "path", stamp, "err", err)
		}
	}
	d.report.Success("Python dependencies installed successfully")
	return nil
}

func (d *Driver) fail(policy driver.Policy, reqPath string, err error) error {
	if policy.Required {
		d.report.Error("Failed to install Python dependencies")
		return &driver.ProvisionError{Step: "pip install", Err: err}
	}
	d.report.Warn("Failed to install dependencies automatically")
	d.report.Hint(fmt.Sprintf("You may need to run: %s -m pip install -r %s", d.s.Binary, reqPath))
	d.logger.Warn("dependency install failed, continuing", "err", err)
	return nil
}

func (d *Driver) stampPath(content []byte) string {
	if d.stampDir == "" {
		return ""
	}
	h := sha1.New()
	_, _ = io.WriteString(h, d.s.Binary)
	_, _ = h.Write([]byte{0})
	_, _ = h.Write(content)
	return filepath.Join(d.stampDir, hex.EncodeToString(h.Sum(nil)))
}

func writeStamp(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, nil, 0o644)
}

func (d *Driver) Start(ctx context.Context, cfg config.LaunchConfig) (*driver.Handle, error) {
	script := filepath.Join(d.appDir, d.s.Script)
	if _, err := os.Stat(script); err != nil {
		return nil, fmt.Errorf("application script: %w", err)
	}

	d.report.Info("Starting Flask server...")
	proc, err := d.exec.Start(ctx, procexec.Spec{
		Name: d.s.Binary,
		Args: []string{"-u", d.s.Script},
		Dir:  d.appDir,
		Env: map[string]string{
			"WORKSPACE_DIR":    cfg.Directory,
			"FLASK_PORT":       strconv.Itoa(cfg.Port),
			"FLASK_DEBUG":      debugFlag(cfg.Debug),
			"PYTHONUNBUFFERED": "1",
		},
	})
	if err != nil {
		return nil, err
	}
	return &driver.Handle{
		Process:     proc,
		ReadyMarker: ReadyMarker,
		ReadyURL:    fmt.Sprintf("http://127.0.0.1:%d/", cfg.Port),
		RelayStderr: cfg.Debug,
	}, nil
}

func (d *Driver) Stop(_ context.Context, h *driver.Handle, sig os.Signal) error {
	if h == nil || h.Process == nil {
		return nil
	}
	if sig == os.Kill {
		return h.Process.Kill()
	}
	return h.Process.Signal(sig)
}

func (d *Driver) ExplainExit(int) (string, bool) {
	return "", false
}

func debugFlag(on bool) string {
	if on {
		return "1"
	}
	return "0"
}
