package container

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"prompter/cli/internal/config"
	"prompter/cli/internal/driver"
	"prompter/cli/internal/global"
	"prompter/cli/internal/procexec"
)

const (
	ID = config.RuntimeContainer

	// ImageMissingExitCode is what `docker run` exits with when it could not
	// create the container, most often because the image is not local yet.
	ImageMissingExitCode = 125
)

var _ driver.Driver = (*Driver)(nil)

type Options struct {
	Exec     procexec.Exec
	Settings global.ContainerSettings
	Reporter driver.Reporter
	Logger   *slog.Logger
	// Stdout and Stderr receive `docker build` and `docker pull` output.
	Stdout io.Writer
	Stderr io.Writer
}

type Driver struct {
	exec   procexec.Exec
	s      global.ContainerSettings
	report driver.Reporter
	logger *slog.Logger
	stdout io.Writer
	stderr io.Writer
}

func New(opts Options) *Driver {
	d := &Driver{
		exec:   opts.Exec,
		s:      opts.Settings,
		report: opts.Reporter,
		logger: opts.Logger,
		stdout: opts.Stdout,
		stderr: opts.Stderr,
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
	if d.stderr == nil {
		d.stderr = os.Stderr
	}
	return d
}

func (d *Driver) ID() string              { return ID }
func (d *Driver) DisplayName() string     { return "Docker" }
func (d *Driver) DefaultPort() int        { return d.s.DefaultPort }
func (d *Driver) ProvisionRequired() bool { return true }

func (d *Driver) CheckAvailable(ctx context.Context) (string, error) {
	out, err := d.exec.Output(ctx, procexec.Spec{Name: d.s.Binary, Args: []string{"--version"}})
	if err != nil {
		return "", &driver.UnavailableError{
			Runtime:     "Docker",
			Remediation: d.remediation(),
			Err:         err,
		}
	}
	return strings.TrimSpace(string(out)), nil
}

func (d *Driver) remediation() string {
	return strings.Join([]string{
		"Docker is not installed or not available in PATH.",
		"",
		"To use prompter with Docker:",
		"  1. Visit https://www.docker.com/get-started",
		"  2. Download Docker Desktop for your operating system",
		"  3. Install and start Docker",
		"  4. Try running this command again",
		"",
		"Alternative: run on a local Python interpreter instead:",
		"  prompter --runtime interpreter",
	}, "\n")
}

func (d *Driver) image(cfg config.LaunchConfig) string {
	if img := strings.TrimSpace(cfg.Image); img != "" {
		return img
	}
	return d.s.Image
}

// Provision removes a leftover instance and makes sure the image is present.
// With a build context the image is built when missing or forced; without one
// a forced provision pulls it and a missing image is left for `docker run`.
func (d *Driver) Provision(ctx context.Context, cfg config.LaunchConfig, policy driver.Policy) error {
	d.removeStale(ctx)

	image := d.image(cfg)
	if !policy.Force {
		if d.imageExists(ctx, image) {
			d.report.Success("Docker image found")
			return nil
		}
	}

	if d.s.BuildContext != "" {
		d.report.Info("Building Docker image...")
		err := d.exec.Run(ctx, procexec.Spec{
			Name:   d.s.Binary,
			Args:   []string{"build", "-t", image, d.s.BuildContext},
			Stdout: d.stdout,
			Stderr: d.stderr,
		})
		if err != nil {
			return d.fail(policy, "docker build", err, "Failed to build Docker image")
		}
		d.report.Success("Docker image built successfully")
		return nil
	}

	if !policy.Force {
		d.report.Info(fmt.Sprintf("Image %s is not available locally; Docker will pull it on first run", image))
		return nil
	}

	d.report.Info("Pulling Docker image...")
	err := d.exec.Run(ctx, procexec.Spec{
		Name:   d.s.Binary,
		Args:   []string{"pull", image},
		Stdout: d.stdout,
		Stderr: d.stderr,
	})
	if err != nil {
		return d.fail(policy, "docker pull", err, "Failed to pull Docker image")
	}
	d.report.Success("Docker image pulled successfully")
	return nil
}

// removeStale clears the fixed-name instance a previous launcher may have
// left behind, which would otherwise hold the host port.
func (d *Driver) removeStale(ctx context.Context) {
	for _, args := range [][]string{{"stop", d.s.ContainerName}, {"rm", d.s.ContainerName}} {
		if err := d.exec.Run(ctx, procexec.Spec{Name: d.s.Binary, Args: args}); err != nil {
			d.logger.Debug("stale container cleanup", "args", args, "err", err)
		}
	}
}

func (d *Driver) fail(policy driver.Policy, step string, err error, msg string) error {
	if policy.Required {
		d.report.Error(msg)
		return &driver.ProvisionError{Step: step, Err: err}
	}
	d.report.Warn(msg + ", continuing anyway")
	d.logger.Warn("provisioning failed", "step", step, "err", err)
	return nil
}

func (d *Driver) imageExists(ctx context.Context, image string) bool {
	out, err := d.exec.Output(ctx, procexec.Spec{Name: d.s.Binary, Args: []string{"images", "-q", image}})
	if err != nil {
		d.logger.Debug("image lookup failed", "image", image, "err", err)
		return false
	}
	return strings.TrimSpace(string(out)) != ""
}

func (d *Driver) Start(ctx context.Context, cfg config.LaunchConfig) (*driver.Handle, error) {
	d.report.Info("Starting Docker container...")
	proc, err := d.exec.Start(ctx, procexec.Spec{Name: d.s.Binary, Args: d.runArgs(cfg)})
	if err != nil {
		return nil, err
	}
	return &driver.Handle{
		Process:     proc,
		ReadyURL:    fmt.Sprintf("http://127.0.0.1:%d/", cfg.Port),
		RelayStderr: true,
	}, nil
}

func (d *Driver) runArgs(cfg config.LaunchConfig) []string {
	internal := strconv.Itoa(d.s.InternalPort)
	return []string{
		"run",
		"--name", d.s.ContainerName,
		"--rm",
		"-p", fmt.Sprintf("%d:%s", cfg.Port, internal),
		"-v", cfg.Directory + ":" + d.s.MountPath,
		"-e", "WORKSPACE_DIR=" + d.s.MountPath,
		"-e", "FLASK_PORT=" + internal,
		"-e", "FLASK_DEBUG=" + debugFlag(cfg.Debug),
		d.image(cfg),
	}
}

// Stop stops the container through the engine; the `docker run` client then
// exits on its own. If the engine cannot be reached the client is killed.
func (d *Driver) Stop(ctx context.Context, h *driver.Handle, sig os.Signal) error {
	args := []string{"stop", "--time", strconv.Itoa(d.s.StopTimeout), d.s.ContainerName}
	if sig == os.Kill {
		args = []string{"kill", d.s.ContainerName}
	}
	err := d.exec.Run(ctx, procexec.Spec{Name: d.s.Binary, Args: args})
	if err != nil && h != nil && h.Process != nil {
		d.logger.Warn("container stop failed, killing client", "err", err)
		if kerr := h.Process.Kill(); kerr != nil {
			return kerr
		}
	}
	return err
}

func (d *Driver) ExplainExit(code int) (string, bool) {
	if code != ImageMissingExitCode {
		return "", false
	}
	return strings.Join([]string{
		"It looks like the Docker image is not available locally.",
		"Docker will automatically pull the image. Please wait...",
		"",
		"If the problem persists, try pulling manually:",
		"  " + d.s.Binary + " pull " + d.s.Image,
	}, "\n"), true
}

func debugFlag(on bool) string {
	if on {
		return "1"
	}
	return "0"
}
