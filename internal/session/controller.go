// Package session owns the shaping session state machine. All transitions run
// on a single consuming loop; watchdog polls, timer expiries and user commands
// arrive as events, and gateway calls execute on a worker that reports back
// through the same queue.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	serr "shaperd/internal/errors"

	"shaperd/internal/config"
	"shaperd/internal/gateway"
	"shaperd/internal/validate"
)

// Gateway is the privileged boundary the controller drives.
type Gateway interface {
	Apply(ctx context.Context, iface string, downMbps, upMbps int) error
	Disable(ctx context.Context, iface string) error
	CheckStatus(ctx context.Context, iface string) (gateway.Status, error)
}

// Notifier renders user-facing notices. A nil Notifier drops them; they are
// still logged and reflected in the status snapshot.
type Notifier interface {
	Notify(summary, body string)
}

// Store persists the configuration snapshot.
type Store interface {
	Load() config.Snapshot
	Save(snap config.Snapshot) error
	Export(path string, snap config.Snapshot) error
	Import(path string) (config.Snapshot, string, error)
	Path() string
}

// Dependencies carries the controller's collaborators.
type Dependencies struct {
	Gateway  Gateway
	Notifier Notifier
	Store    Store

	// NewTimer overrides expiry scheduling; tests trigger expiries manually.
	NewTimer timerFactory
}

// liveState is the mutable session: whether shaping is on, with which preset,
// against which interface, and until when. Touched only on the loop.
type liveState struct {
	enabled   bool
	temporary bool
	deadline  time.Time
	preset    config.Preset
	iface     string
	ssid      string
}

// Controller reconciles user intent, network changes and timer expiry into a
// single consistent shaping configuration.
type Controller struct {
	logger   *slog.Logger
	gateway  Gateway
	notifier Notifier
	store    Store

	events chan Event
	calls  chan callRequest
	timer  *expiryTimer

	// Loop-owned state below; never touched off the loop goroutine.
	cfg          config.Snapshot
	st           liveState
	gen          uint64
	inflight     bool
	pendingCall  *callRequest
	statusSynced bool

	mu          sync.RWMutex
	snapshot    Status
	watchManual string
}

// New constructs a Controller with the persisted configuration loaded.
func New(logger *slog.Logger, deps Dependencies) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Controller{
		logger:   logger,
		gateway:  deps.Gateway,
		notifier: deps.Notifier,
		store:    deps.Store,
		events:   make(chan Event, config.DefaultChannelBuffer),
		calls:    make(chan callRequest, 1),
	}
	c.timer = newExpiryTimer(deps.NewTimer, c.Post)
	c.cfg = deps.Store.Load()
	c.st.preset = c.cfg.Selected()
	c.publish()
	return c
}

// Run consumes events until ctx is cancelled. On shutdown an active temporary
// session gets one best-effort disable; nothing stronger is guaranteed.
func (c *Controller) Run(ctx context.Context) error {
	go c.worker(ctx)

	for {
		select {
		case <-ctx.Done():
			if c.st.enabled && c.st.temporary && c.st.iface != "" {
				c.shutdownDisable(c.st.iface)
			}
			return ctx.Err()
		case ev := <-c.events:
			c.handle(ev)
		}
	}
}

// Post delivers an event to the consuming loop. Safe from any goroutine.
func (c *Controller) Post(ev Event) {
	c.events <- ev
}

// Status returns the current read-only snapshot.
func (c *Controller) Status() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snapshot
}

// WatchTarget reports what the watchdog should track right now.
func (c *Controller) WatchTarget() (auto bool, manual string) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snapshot.AutoInterface, c.watchManual
}

// Commands. Each validates what it can synchronously and hands the rest to
// the loop; cross-state checks (preset existence, current mode) happen there.

// ToggleOn enables shaping with the selected preset.
func (c *Controller) ToggleOn() {
	c.Post(toggleOnEvent{})
}

// ToggleOff disables shaping and cancels any temporary session.
func (c *Controller) ToggleOff() {
	c.Post(toggleOffEvent{})
}

// StartTemporary enables shaping for the given number of minutes.
func (c *Controller) StartTemporary(minutes int) error {
	if err := validate.TemporaryMinutes(minutes); err != nil {
		return err
	}
	c.Post(startTemporaryEvent{minutes: minutes})
	return nil
}

// CancelTemporary drops the deadline of a temporary session, keeping shaping
// enabled.
func (c *Controller) CancelTemporary() {
	c.Post(cancelTemporaryEvent{})
}

// SelectPreset switches the selected preset by name.
func (c *Controller) SelectPreset(name string) error {
	if err := validate.PresetName(name); err != nil {
		return err
	}
	c.Post(selectPresetEvent{name: strings.TrimSpace(name)})
	return nil
}

// SetInterfaceMode switches between auto-detected and pinned interface.
func (c *Controller) SetInterfaceMode(auto bool, iface string) error {
	if !auto && !validate.InterfaceName(iface) {
		return serr.New(
			serr.KindValidation,
			fmt.Errorf("interface name %q fails the allow-list", iface),
			serr.ErrorContext{Operation: "set_interface_mode", Interface: iface},
		)
	}
	c.Post(setInterfaceModeEvent{auto: auto, iface: iface})
	return nil
}

// ImportConfig replaces the configuration from a snapshot file.
func (c *Controller) ImportConfig(path string) error {
	if strings.TrimSpace(path) == "" {
		return serr.Validation(fmt.Errorf("import path must not be empty"), "import_config")
	}
	c.Post(importConfigEvent{path: path})
	return nil
}

// ExportConfig writes the current configuration snapshot to a file.
func (c *Controller) ExportConfig(path string) error {
	if strings.TrimSpace(path) == "" {
		return serr.Validation(fmt.Errorf("export path must not be empty"), "export_config")
	}
	c.Post(exportConfigEvent{path: path})
	return nil
}

// publish refreshes the snapshot readers see. Runs on the loop.
func (c *Controller) publish() {
	snap := Status{
		Enabled:       c.st.enabled,
		Temporary:     c.st.temporary,
		Deadline:      c.st.deadline,
		Preset:        c.st.preset.Name,
		DownMbps:      c.st.preset.DownMbps,
		UpMbps:        c.st.preset.UpMbps,
		Interface:     c.st.iface,
		SSID:          c.st.ssid,
		AutoInterface: c.cfg.InterfaceAuto,
	}

	c.mu.Lock()
	snap.LastNotice = c.snapshot.LastNotice
	c.snapshot = snap
	c.watchManual = c.cfg.Interface
	c.mu.Unlock()
}

// notice records and renders a user-facing notification.
func (c *Controller) notice(summary, body string) {
	c.mu.Lock()
	c.snapshot.LastNotice = summary
	c.mu.Unlock()

	c.logger.Info("notice", slog.String("summary", summary), slog.String("body", body))
	if c.notifier != nil {
		c.notifier.Notify(summary, body)
	}
}

// noticeFailure renders a gateway failure, calling out authorization denial
// explicitly.
func (c *Controller) noticeFailure(operation string, err error) {
	summary := "Shaping " + operation + " failed"
	if serr.IsKind(err, serr.KindAuthorizationDenied) {
		summary = "Authorization denied"
	}
	c.notice(summary, err.Error())
}
