package main

import (
	"context"
	"errors"
	"fmt"

	"prompter/cli/internal/driver"
)

// doctor checks every registered runtime. It fails only when none of them
// can run.
func (a *app) doctor(ctx context.Context) error {
	a.printer.Title("Checking runtimes...")
	available := 0
	for _, drv := range a.registry.List() {
		version, err := drv.CheckAvailable(ctx)
		if err != nil {
			a.printer.Error(fmt.Sprintf("%s (%s) not available", drv.DisplayName(), drv.ID()))
			var ue *driver.UnavailableError
			if errors.As(err, &ue) && ue.Remediation != "" {
				a.printer.Hint(ue.Remediation)
			}
			continue
		}
		available++
		a.printer.Success(fmt.Sprintf("%s (%s): %s, default port %d", drv.DisplayName(), drv.ID(), version, drv.DefaultPort()))
	}
	a.printer.Info("Config file: " + a.store.Path())
	if available == 0 {
		return fmt.Errorf("%w: no runtime is installed", driver.ErrRuntimeUnavailable)
	}
	return nil
}
