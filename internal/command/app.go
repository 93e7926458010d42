package command

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/urfave/cli/v2"

	"prompter/cli/internal/config"
	"prompter/cli/internal/global"
)

// ErrHelp is returned by ParseConfig when the arguments asked for help or
// version output instead of a launch.
var ErrHelp = errors.New("help requested")

// Defaults are the values used for launch flags the user did not give.
type Defaults struct {
	// Runtime comes from the config file; PROMPTER_RUNTIME and --runtime win.
	Runtime string
	// Ports maps a runtime id to its default port.
	Ports map[string]int
}

func (d Defaults) port(runtime string) int {
	if p := d.Ports[runtime]; p > 0 {
		return p
	}
	if runtime == config.RuntimeInterpreter {
		return global.DefaultInterpreterPort
	}
	return global.DefaultContainerPort
}

type HistoryOptions struct {
	Limit int
	Clear bool
	// Dirs lists served directories instead of launches.
	Dirs bool
}

type Deps struct {
	Version       string
	LoadConfig    func() config.Config
	Defaults      Defaults
	Launch        func(context.Context, config.LaunchConfig) error
	PickDirectory func(context.Context) (string, error)
	Doctor        func(context.Context) error
	History       func(context.Context, HistoryOptions) error
	ShowConfig    func(context.Context) error
	Stdout        io.Writer
	Stderr        io.Writer
}

func BuildApp(deps Deps) *cli.App {
	stdout, stderr := deps.Stdout, deps.Stderr
	if stdout == nil {
		stdout = os.Stdout
	}
	if stderr == nil {
		stderr = os.Stderr
	}
	return &cli.App{
		Name:            "prompter",
		Usage:           "run the prompter web tool in Docker or on a local Python",
		UsageText:       "prompter [options]\nprompter <command> [options]",
		Version:         deps.Version,
		Writer:          stdout,
		ErrWriter:       stderr,
		HideHelpCommand: true,
		Flags:           launchFlags(),
		OnUsageError: func(_ *cli.Context, err error, _ bool) error {
			return fmt.Errorf("%w: %v", config.ErrInvalidArgument, err)
		},
		// Exit codes are decided by main.
		ExitErrHandler: func(*cli.Context, error) {},
		Action: func(c *cli.Context) error {
			cfg, err := launchConfigFrom(c, deps)
			if err != nil {
				return err
			}
			if deps.Launch == nil {
				return errors.New("launcher is not configured")
			}
			return deps.Launch(c.Context, cfg)
		},
		Commands: []*cli.Command{
			{
				Name:  "doctor",
				Usage: "check every runtime and explain how to fix missing ones",
				Action: func(c *cli.Context) error {
					if deps.Doctor == nil {
						return errors.New("doctor is not configured")
					}
					return deps.Doctor(c.Context)
				},
			},
			{
				Name:  "history",
				Usage: "list recent launches or served directories",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "limit", Aliases: []string{"n"}, Usage: "number of launches to show"},
					&cli.BoolFlag{Name: "clear", Usage: "delete the launch history"},
					&cli.BoolFlag{Name: "dirs", Usage: "list served directories instead of launches"},
				},
				Action: func(c *cli.Context) error {
					if deps.History == nil {
						return errors.New("history is not configured")
					}
					if c.Int("limit") < 0 {
						return config.InvalidArgumentf("limit must not be negative")
					}
					if c.Bool("dirs") && c.Bool("clear") {
						return config.InvalidArgumentf("--dirs and --clear are mutually exclusive")
					}
					return deps.History(c.Context, HistoryOptions{
						Limit: c.Int("limit"),
						Clear: c.Bool("clear"),
						Dirs:  c.Bool("dirs"),
					})
				},
			},
			{
				Name:  "config",
				Usage: "print the config file path and resolved settings",
				Action: func(c *cli.Context) error {
					if deps.ShowConfig == nil {
						return errors.New("config command is not configured")
					}
					return deps.ShowConfig(c.Context)
				},
			},
		},
	}
}

func launchFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "port",
			Aliases: []string{"p"},
			Usage:   fmt.Sprintf("port to serve on (%d-%d, default depends on runtime)", config.MinPort, config.MaxPort),
		},
		&cli.StringFlag{
			Name:    "directory",
			Aliases: []string{"d"},
			Usage:   "directory to serve (default: current directory)",
		},
		&cli.BoolFlag{Name: "debug", Usage: "show the server's error output as it happens"},
		&cli.BoolFlag{Name: "build", Usage: "rebuild the image or reinstall dependencies"},
		&cli.StringFlag{
			Name:    "runtime",
			Aliases: []string{"r"},
			Usage:   "container (Docker) or interpreter (Python)",
		},
		&cli.StringFlag{Name: "image", Usage: "container image to run instead of the configured one"},
		&cli.BoolFlag{Name: "pick", Usage: "choose the directory with a folder dialog"},
		&cli.BoolFlag{Name: "open", Usage: "open the browser once the server is ready"},
	}
}

func launchConfigFrom(c *cli.Context, deps Deps) (config.LaunchConfig, error) {
	if c.Args().Present() {
		return config.LaunchConfig{}, config.InvalidArgumentf("unexpected argument %q", c.Args().First())
	}

	runtime, err := resolveRuntime(c, deps)
	if err != nil {
		return config.LaunchConfig{}, err
	}

	port := deps.Defaults.port(runtime)
	if c.IsSet("port") {
		port, err = config.ParsePort(c.String("port"))
		if err != nil {
			return config.LaunchConfig{}, err
		}
	}

	dir := c.String("directory")
	if c.Bool("pick") {
		if c.IsSet("directory") {
			return config.LaunchConfig{}, config.InvalidArgumentf("--pick and --directory are mutually exclusive")
		}
		if deps.PickDirectory == nil {
			return config.LaunchConfig{}, errors.New("directory picker is not configured")
		}
		dir, err = deps.PickDirectory(c.Context)
		if err != nil {
			return config.LaunchConfig{}, fmt.Errorf("pick directory: %w", err)
		}
	}
	dir, err = config.ResolveDirectory(dir)
	if err != nil {
		return config.LaunchConfig{}, err
	}

	image := strings.TrimSpace(c.String("image"))
	if image != "" && runtime != config.RuntimeContainer {
		return config.LaunchConfig{}, config.InvalidArgumentf("--image only applies to the %s runtime", config.RuntimeContainer)
	}

	return config.LaunchConfig{
		Port:           port,
		Directory:      dir,
		Debug:          c.Bool("debug"),
		ForceProvision: c.Bool("build"),
		Runtime:        runtime,
		OpenBrowser:    c.Bool("open"),
		Image:          image,
	}, nil
}

func resolveRuntime(c *cli.Context, deps Deps) (string, error) {
	candidates := []string{c.String("runtime")}
	if deps.LoadConfig != nil {
		candidates = append(candidates, deps.LoadConfig().Runtime)
	}
	candidates = append(candidates, deps.Defaults.Runtime)
	for _, raw := range candidates {
		rt, err := config.NormalizeRuntime(raw)
		if err != nil {
			return "", err
		}
		if rt != "" {
			return rt, nil
		}
	}
	return config.RuntimeContainer, nil
}

// ParseConfig resolves launch arguments (without the program name) into a
// LaunchConfig without launching anything. Help and version requests return
// ErrHelp; their output is discarded.
func ParseConfig(args []string, defaults Defaults) (config.LaunchConfig, error) {
	var (
		got      config.LaunchConfig
		launched bool
	)
	app := BuildApp(Deps{
		Defaults: defaults,
		Stdout:   io.Discard,
		Stderr:   io.Discard,
		Launch: func(_ context.Context, cfg config.LaunchConfig) error {
			got = cfg
			launched = true
			return nil
		},
	})
	app.Commands = nil
	if err := app.RunContext(context.Background(), append([]string{app.Name}, args...)); err != nil {
		return config.LaunchConfig{}, err
	}
	if !launched {
		return config.LaunchConfig{}, ErrHelp
	}
	return got, nil
}
