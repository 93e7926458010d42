package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"gorm.io/gorm"

	"prompter/cli/internal/command"
	"prompter/cli/internal/config"
	"prompter/cli/internal/console"
	"prompter/cli/internal/db"
	"prompter/cli/internal/desktop"
	"prompter/cli/internal/driver"
	"prompter/cli/internal/driver/container"
	"prompter/cli/internal/driver/interpreter"
	"prompter/cli/internal/global"
	"prompter/cli/internal/historydb"
	"prompter/cli/internal/launcher"
	"prompter/cli/internal/lifecycle"
	"prompter/cli/internal/logging"
	"prompter/cli/internal/procexec"
	"prompter/cli/internal/readiness"
)

var version = "dev"

func main() {
	os.Exit(run(os.Args, os.Stdout, os.Stderr))
}

// app bundles what every subcommand needs.
type app struct {
	env      config.Config
	store    *global.ConfigStore
	settings global.Settings
	// configFound is set once a config file exists, or exists but is broken,
	// so defaults never overwrite it.
	configFound bool
	logger      *slog.Logger
	printer     *console.Printer
	exec        *procexec.RealExec
	registry    *driver.Registry
	desktop     *desktop.Desktop
}

func run(args []string, stdout, stderr io.Writer) int {
	a, err := newApp(stdout, stderr)
	if err != nil {
		logging.NewLogger(logging.Options{Level: "error", Writer: stderr, Component: "prompter"}).Error("prompter failed", "err", err)
		return 1
	}

	cli := command.BuildApp(command.Deps{
		Version:       version,
		LoadConfig:    func() config.Config { return a.env },
		Defaults:      a.defaults(),
		Launch:        a.launch,
		PickDirectory: a.desktop.PickDirectory,
		Doctor:        a.doctor,
		History:       a.history,
		ShowConfig:    a.showConfig,
		Stdout:        stdout,
		Stderr:        stderr,
	})
	err = cli.RunContext(context.Background(), args)
	a.report(err)
	return exitCode(err)
}

func newApp(stdout, stderr io.Writer) (*app, error) {
	env := config.LoadConfig()
	configDir := env.ConfigDir
	if configDir == "" {
		dir, err := global.DefaultConfigDir()
		if err != nil {
			return nil, err
		}
		configDir = dir
	}
	store := global.NewConfigStore(configDir)
	printer := console.New(stdout, stderr, env.NoColor)

	settings, found, loadErr := store.Load()
	if loadErr != nil {
		settings = global.NormalizeSettings(global.Settings{})
		found = true
	}
	logger := logging.NewLogger(logging.Options{
		Level:     env.LogLevelOr(settings.LogLevel),
		Format:    env.LogFormat,
		Writer:    stderr,
		Component: "prompter",
	})
	if loadErr != nil {
		logger.Warn("config file unreadable, using defaults", "path", store.Path(), "err", loadErr)
		printer.Warn("Could not read " + store.Path() + ", using built-in defaults")
	}

	exec := &procexec.RealExec{
		Logger:   logger.With("module", "exec"),
		Trace:    env.TraceExec,
		TraceOut: printer.Stderr(),
	}
	registry, err := driver.NewRegistry(
		container.New(container.Options{
			Exec:     exec,
			Settings: settings.Container,
			Reporter: printer,
			Logger:   logger.With("module", container.ID),
			Stdout:   printer.Stdout(),
			Stderr:   printer.Stderr(),
		}),
		interpreter.New(interpreter.Options{
			Exec:     exec,
			Settings: settings.Interpreter,
			StampDir: filepath.Join(configDir, "stamps"),
			Reporter: printer,
			Logger:   logger.With("module", interpreter.ID),
			Stdout:   printer.Stdout(),
		}),
	)
	if err != nil {
		return nil, err
	}
	return &app{
		env:         env,
		store:       store,
		settings:    settings,
		configFound: found,
		logger:      logger,
		printer:     printer,
		exec:        exec,
		registry:    registry,
		desktop:     desktop.New(exec),
	}, nil
}

// persistDefaults writes the default config file the first time a command
// actually runs, so there is something to edit. Help and argument errors
// never reach it.
func (a *app) persistDefaults() {
	if a.configFound {
		return
	}
	if err := a.store.Save(a.settings); err != nil {
		a.logger.Warn("write default config", "path", a.store.Path(), "err", err)
		return
	}
	a.configFound = true
}

func (a *app) defaults() command.Defaults {
	d := command.Defaults{Runtime: a.settings.Runtime, Ports: map[string]int{}}
	for _, drv := range a.registry.List() {
		d.Ports[drv.ID()] = drv.DefaultPort()
	}
	return d
}

func (a *app) launch(ctx context.Context, cfg config.LaunchConfig) error {
	drv, ok := a.registry.Get(cfg.Runtime)
	if !ok {
		return config.InvalidArgumentf("unknown runtime %q", cfg.Runtime)
	}
	a.persistDefaults()
	logger := a.logger.With("module", "launcher", "runtime", cfg.Runtime)

	var (
		recorder launcher.Recorder
		gdb      *gorm.DB
	)
	if !a.settings.History.Disabled {
		opened, err := db.Open(a.historyPath())
		if err != nil {
			logger.Warn("launch history unavailable", "err", err)
		} else {
			gdb = opened
			store, err := historydb.NewStore(gdb, a.settings.History.Limit)
			if err != nil {
				_ = db.Close(gdb)
				return err
			}
			recorder = store
		}
	}

	l, err := launcher.New(launcher.Options{
		Driver:    drv,
		Console:   a.printer,
		Logger:    logger,
		Prober:    readiness.NewHTTPProbe(),
		PortCheck: readiness.CheckPortFree,
		Recorder:  recorder,
		OpenURL: func(url string) error {
			return a.desktop.OpenURL(context.WithoutCancel(ctx), url)
		},
	})
	if err != nil {
		_ = db.Close(gdb)
		return err
	}

	mgr := lifecycle.NewManager()
	mgr.AddRun("launch", func(runCtx context.Context) error {
		return l.Run(runCtx, cfg)
	})
	mgr.AddShutdown("release-signals", func(context.Context) error {
		return l.Close()
	})
	mgr.AddShutdown("close-history-db", func(context.Context) error {
		return db.Close(gdb)
	})
	return mgr.StartAndWait(ctx)
}

func (a *app) historyPath() string {
	return filepath.Join(a.store.Dir(), db.FileName)
}

// report prints errors that nothing printed yet.
func (a *app) report(err error) {
	if err == nil || errors.Is(err, command.ErrHelp) {
		return
	}
	a.logger.Debug("command finished with error", "err", err)
	var ee *launcher.ExitError
	switch {
	case errors.As(err, &ee),
		errors.Is(err, driver.ErrRuntimeUnavailable),
		errors.Is(err, driver.ErrProvision),
		errors.Is(err, readiness.ErrPortInUse):
		return
	case errors.Is(err, config.ErrInvalidArgument):
		a.printer.Error(err.Error())
		a.printer.Hint("Run prompter --help for usage")
	default:
		a.printer.Error(err.Error())
	}
}

func exitCode(err error) int {
	if err == nil || errors.Is(err, command.ErrHelp) {
		return 0
	}
	var ee *launcher.ExitError
	if errors.As(err, &ee) {
		return ee.Code
	}
	return 1
}
