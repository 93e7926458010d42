package main

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"prompter/cli/internal/command"
	"prompter/cli/internal/db"
	"prompter/cli/internal/global"
	"prompter/cli/internal/historydb"
)

func (a *app) history(_ context.Context, opts command.HistoryOptions) error {
	gdb, err := db.Open(a.historyPath())
	if err != nil {
		return err
	}
	defer func() { _ = db.Close(gdb) }()
	store, err := historydb.NewStore(gdb, a.settings.History.Limit)
	if err != nil {
		return err
	}

	if opts.Clear {
		if err := store.Clear(); err != nil {
			return err
		}
		a.printer.Success("Launch history cleared")
		return nil
	}
	if a.settings.History.Disabled {
		a.printer.Warn("Launch history is disabled in " + a.store.Path())
	}

	if opts.Dirs {
		dirs, err := store.Directories(opts.Limit)
		if err != nil {
			return err
		}
		if len(dirs) == 0 {
			a.printer.Info("No directories served yet")
			return nil
		}
		_, err = io.WriteString(a.printer.Stdout(), renderDirs(dirs)+"\n")
		return err
	}

	runs, err := store.Runs(opts.Limit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		a.printer.Info("No launches recorded yet")
		return nil
	}
	_, err = io.WriteString(a.printer.Stdout(), renderRuns(runs)+"\n")
	return err
}

func renderRuns(runs []historydb.Run) string {
	rows := make([][]string, 0, len(runs))
	for _, r := range runs {
		exit := "-"
		if !r.EndedAt.IsZero() {
			exit = strconv.Itoa(r.ExitCode)
		}
		rows = append(rows, []string{
			r.StartedAt.Local().Format(time.DateTime),
			r.Runtime,
			strconv.Itoa(r.Port),
			r.Directory,
			exit,
			r.Outcome,
		})
	}
	return table.New().
		Border(lipgloss.NormalBorder()).
		Headers("STARTED", "RUNTIME", "PORT", "DIRECTORY", "EXIT", "OUTCOME").
		Rows(rows...).
		Render()
}

func renderDirs(dirs []historydb.Entry) string {
	rows := make([][]string, 0, len(dirs))
	for _, d := range dirs {
		rows = append(rows, []string{
			d.LastAccessed.Local().Format(time.DateTime),
			strconv.Itoa(d.AccessCount),
			d.Path,
		})
	}
	return table.New().
		Border(lipgloss.NormalBorder()).
		Headers("LAST SERVED", "LAUNCHES", "DIRECTORY").
		Rows(rows...).
		Render()
}

// appDirer is implemented by runtimes that run the application from a local
// checkout.
type appDirer interface {
	AppDir() string
}

func (a *app) showConfig(context.Context) error {
	a.persistDefaults()
	a.printer.Info("Config file: " + a.store.Path())
	for _, drv := range a.registry.List() {
		if d, ok := drv.(appDirer); ok {
			a.printer.Info(fmt.Sprintf("%s application directory: %s", drv.DisplayName(), d.AppDir()))
		}
	}
	b, err := global.Encode(a.settings)
	if err != nil {
		return err
	}
	_, err = a.printer.Stdout().Write(b)
	return err
}
