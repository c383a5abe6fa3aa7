package cli

import (
	"fmt"

	"github.com/openretro/questlog/internal/config"
	"github.com/openretro/questlog/internal/eventlog"
	"github.com/openretro/questlog/internal/lens"
	"github.com/openretro/questlog/internal/maprun"
	"github.com/openretro/questlog/internal/progression"
	"github.com/openretro/questlog/internal/store"
)

// App wires the configured paths into live components for one command
// invocation. Commands open it, use what they need, and Close it.
type App struct {
	Config *config.Config
	Store  *store.Store
	Log    *eventlog.Log
}

func openApp(opts *RootOptions) (*App, error) {
	cfg, err := config.Load(opts.Config)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "load config", err)
	}

	st, err := store.Open(cfg.Paths.StateDB)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, fmt.Sprintf("open state db %s", cfg.Paths.StateDB), err)
	}

	return &App{
		Config: cfg,
		Store:  st,
		Log:    eventlog.Open(cfg.Paths.EventLog),
	}, nil
}

func (a *App) Close() {
	if a.Store != nil {
		_ = a.Store.Close()
	}
}

// Engine builds the progression engine over the app's store and log,
// carrying the configured play options and batch bound.
func (a *App) Engine() (*progression.Engine, error) {
	opts := []progression.Option{
		progression.WithMaxEvents(a.Config.Engine.MaxEvents),
	}
	for id, expr := range a.Config.Engine.PlayOptions {
		opts = append(opts, progression.WithPlayOption(id, expr))
	}
	engine, err := progression.New(a.Store, a.Log, opts...)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "build engine", err)
	}
	return engine, nil
}

// Graph loads the configured place seed.
func (a *App) Graph() (*maprun.Graph, error) {
	graph, err := maprun.Load(a.Config.Paths.SeedFile)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, fmt.Sprintf("load seed %s", a.Config.Paths.SeedFile), err)
	}
	return graph, nil
}

// Runtime builds the map runtime over the loaded graph.
func (a *App) Runtime() (*maprun.Runtime, error) {
	graph, err := a.Graph()
	if err != nil {
		return nil, err
	}
	return maprun.New(graph, a.Store, a.Log), nil
}

// Lens builds the lens service for a configured slice id.
func (a *App) Lens(sliceID string) (*lens.Service, error) {
	slice, ok := a.Config.Lens.Slice(sliceID)
	if !ok {
		return nil, NewExitError(ExitCommandError, fmt.Sprintf("no lens slice %q in config", sliceID))
	}
	graph, err := a.Graph()
	if err != nil {
		return nil, err
	}
	return lens.New(a.Store, graph, slice), nil
}
