// Package netwatch observes network state: the default-route interface, the
// current Wi-Fi association, and the availability of a manually selected
// interface. Observations become events posted to the controller; the
// watchdog itself never mutates shaping state.
package netwatch

import (
	"context"
	"log/slog"
	"time"

	"shaperd/internal/config"
	"shaperd/internal/session"
)

// Target describes what the watchdog should track. In auto mode the default
// route decides; in manual mode a fixed interface name is monitored for
// availability.
type Target struct {
	Auto   bool
	Manual string
}

// Dependencies carries the collaborators of a Watchdog. Nil fields receive
// production defaults.
type Dependencies struct {
	Netlink  NetlinkClient
	Executor CommandExecutor
	// TargetFn returns the tracking target for the next poll. The controller
	// owns the mode; the watchdog only reads it.
	TargetFn func() Target
	Sink     EventSink
}

// Options tunes polling behaviour.
type Options struct {
	Interval       time.Duration
	CommandTimeout time.Duration
}

// Watchdog polls network state on a fixed interval and reports differences
// against the last reported values. Probe failures keep the last-known state;
// only observed changes produce events.
type Watchdog struct {
	logger     *slog.Logger
	nl         NetlinkClient
	exec       CommandExecutor
	target     func() Target
	sink       EventSink
	interval   time.Duration
	cmdTimeout time.Duration

	lastIface     string
	lastSSID      string
	manualMissing bool
}

// New constructs a Watchdog.
func New(logger *slog.Logger, deps Dependencies, opts Options) *Watchdog {
	if deps.Netlink == nil {
		deps.Netlink = defaultNetlinkClient{}
	}
	if deps.Executor == nil {
		deps.Executor = processExecutor{}
	}
	if deps.TargetFn == nil {
		deps.TargetFn = func() Target { return Target{Auto: true} }
	}
	if opts.Interval <= 0 {
		opts.Interval = config.DefaultPollInterval
	}
	if opts.CommandTimeout <= 0 {
		opts.CommandTimeout = config.DefaultCommandTimeout
	}
	return &Watchdog{
		logger:     logger,
		nl:         deps.Netlink,
		exec:       deps.Executor,
		target:     deps.TargetFn,
		sink:       deps.Sink,
		interval:   opts.Interval,
		cmdTimeout: opts.CommandTimeout,
	}
}

// Run polls until ctx is cancelled. The first poll happens immediately so the
// controller learns the starting interface without waiting a full interval.
func (w *Watchdog) Run(ctx context.Context) error {
	w.poll(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			w.poll(ctx)
		}
	}
}

func (w *Watchdog) poll(ctx context.Context) {
	ctxPoll, cancel := context.WithTimeout(ctx, w.cmdTimeout)
	defer cancel()

	target := w.target()
	if target.Auto {
		w.pollAuto(ctxPoll)
		return
	}
	w.pollManual(ctxPoll, target.Manual)
}

func (w *Watchdog) pollAuto(ctx context.Context) {
	w.manualMissing = false

	iface, err := w.detectDefaultInterface(ctx)
	if err != nil {
		if w.logger != nil {
			w.logger.Debug("interface probe failed, keeping last known",
				slog.String("last", w.lastIface),
				slog.String("error", err.Error()))
		}
	} else if iface != w.lastIface {
		old := w.lastIface
		w.lastIface = iface
		w.post(session.InterfaceChanged{Old: old, New: iface})
	}

	ssid := w.detectSSID(ctx)
	if ssid != w.lastSSID {
		old := w.lastSSID
		w.lastSSID = ssid
		w.post(session.SsidChanged{Old: old, New: ssid})
	}
}

func (w *Watchdog) pollManual(ctx context.Context, name string) {
	if name == "" {
		return
	}

	if w.linkAvailable(name) {
		if w.manualMissing || w.lastIface != name {
			old := w.lastIface
			w.lastIface = name
			w.manualMissing = false
			w.post(session.InterfaceChanged{Old: old, New: name})
		}
		return
	}

	if w.manualMissing {
		return
	}
	w.manualMissing = true

	fallback, err := w.detectDefaultInterface(ctx)
	if err != nil || fallback == name {
		fallback = ""
	}
	if w.logger != nil {
		w.logger.Warn("manual interface unavailable",
			slog.String("iface", name),
			slog.String("fallback", fallback))
	}
	w.lastIface = fallback
	w.post(session.InterfaceUnavailable{Name: name, Fallback: fallback})
}

func (w *Watchdog) post(ev session.Event) {
	if w.sink == nil {
		return
	}
	w.sink.Post(ev)
}
