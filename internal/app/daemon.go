package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"runtime/debug"
	"sync"
)

// ControllerService is the event-consuming state machine. Its failure is the
// only fatal condition after startup.
type ControllerService interface {
	Run(ctx context.Context) error
}

// WatchService is the network state poller.
type WatchService interface {
	Run(ctx context.Context) error
}

// CommandService is the frontend-facing command intake.
type CommandService interface {
	Run(ctx context.Context) error
}

// Dependencies groups the services the daemon coordinates.
type Dependencies struct {
	Controller ControllerService
	Watchdog   WatchService
	Commands   CommandService
	Logger     *slog.Logger
}

// Daemon coordinates subsystems and event loops.
type Daemon struct {
	controller ControllerService
	watchdog   WatchService
	commands   CommandService
	logger     *slog.Logger
}

// NewDaemon constructs a Daemon with validated dependencies.
func NewDaemon(deps Dependencies) *Daemon {
	if deps.Logger == nil {
		deps.Logger = slog.New(slog.NewJSONHandler(os.Stdout, nil))
	}
	return &Daemon{
		controller: deps.Controller,
		watchdog:   deps.Watchdog,
		commands:   deps.Commands,
		logger:     deps.Logger,
	}
}

// Run starts the controller loop and its producers and blocks until the
// context is cancelled. Watchdog and command-service failures are logged but
// never terminate the daemon; the controller's loop failing does.
func (d *Daemon) Run(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			stack := debug.Stack()
			err = fmt.Errorf("daemon panic: %v", r)
			if d.logger != nil {
				d.logger.Error("daemon panic recovered",
					slog.Any("panic", r),
					slog.String("stack", string(stack)))
			}
		}
	}()

	if ctx == nil {
		return errors.New("context must not be nil")
	}
	if d.controller == nil {
		return errors.New("controller must not be nil")
	}

	var wg sync.WaitGroup
	controllerErrs := make(chan error, 1)

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := d.controller.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			select {
			case controllerErrs <- err:
			default:
			}
		}
	}()

	if d.watchdog != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := d.watchdog.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				d.logger.Error("watchdog stopped", slog.String("error", err.Error()))
			}
		}()
	}

	if d.commands != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := d.commands.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				d.logger.Error("command service stopped", slog.String("error", err.Error()))
			}
		}()
	}

	select {
	case <-ctx.Done():
	case err := <-controllerErrs:
		d.logger.Error("controller loop failed", slog.String("error", err.Error()))
		return err
	}

	wg.Wait()
	return ctx.Err()
}
