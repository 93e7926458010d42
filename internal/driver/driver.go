// Package driver defines how the launcher talks to an external runtime.
//
// A Driver hides the difference between hosting the application in a
// container engine and running it on a local interpreter. The launcher only
// sequences the calls: CheckAvailable, Provision, Start, then Stop on
// interrupt.
package driver

import (
	"context"
	"errors"
	"fmt"
	"os"

	"prompter/cli/internal/config"
	"prompter/cli/internal/procexec"
)

var (
	ErrRuntimeUnavailable = errors.New("runtime unavailable")
	ErrProvision          = errors.New("provisioning failed")
)

// Policy controls one provisioning pass.
type Policy struct {
	// Force re-runs provisioning even when it is already satisfied.
	Force bool
	// Required turns a provisioning failure into an error. When false the
	// failure is reported as a warning and the launch continues.
	Required bool
}

// Reporter receives user-facing progress lines.
type Reporter interface {
	Info(msg string)
	Success(msg string)
	Warn(msg string)
	Error(msg string)
	Hint(msg string)
}

// Handle is a running external application.
type Handle struct {
	Process procexec.Process
	// ReadyMarker is a stdout substring announcing the server is up. Empty
	// means rely on the readiness probe only.
	ReadyMarker string
	// ReadyURL is polled over HTTP until the application answers.
	ReadyURL string
	// RelayStderr forwards stderr lines as they arrive. When false they are
	// kept and shown only if the process fails.
	RelayStderr bool
}

type Driver interface {
	ID() string
	DisplayName() string
	// DefaultPort is used when no port flag is given.
	DefaultPort() int
	// ProvisionRequired reports the default Policy.Required for this runtime.
	ProvisionRequired() bool
	CheckAvailable(ctx context.Context) (string, error)
	Provision(ctx context.Context, cfg config.LaunchConfig, policy Policy) error
	Start(ctx context.Context, cfg config.LaunchConfig) (*Handle, error)
	// Stop forwards a termination request to the running application.
	// os.Kill escalates to an immediate kill. Stop does not wait for the exit.
	Stop(ctx context.Context, h *Handle, sig os.Signal) error
	// ExplainExit returns an informational message for exit codes that are
	// not real failures of the application.
	ExplainExit(code int) (string, bool)
}

// UnavailableError is returned by CheckAvailable when the runtime cannot run.
type UnavailableError struct {
	Runtime     string
	Remediation string
	Err         error
}

func (e *UnavailableError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s not available: %v", e.Runtime, e.Err)
	}
	return fmt.Sprintf("%s not available", e.Runtime)
}

func (e *UnavailableError) Unwrap() []error {
	return []error{ErrRuntimeUnavailable, e.Err}
}

type ProvisionError struct {
	Step string
	Err  error
}

func (e *ProvisionError) Error() string {
	return fmt.Sprintf("%s: %v", e.Step, e.Err)
}

func (e *ProvisionError) Unwrap() []error {
	return []error{ErrProvision, e.Err}
}
