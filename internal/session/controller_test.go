package session

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shaperd/internal/config"
	serr "shaperd/internal/errors"
	"shaperd/internal/gateway"
)

type applyCall struct {
	iface string
	down  int
	up    int
}

type fakeGateway struct {
	applies  []applyCall
	disables []string
	statuses []string

	applyErr      error
	disableErr    error
	statusErr     error
	statusEnabled bool
}

func (g *fakeGateway) Apply(_ context.Context, iface string, down, up int) error {
	g.applies = append(g.applies, applyCall{iface: iface, down: down, up: up})
	return g.applyErr
}

func (g *fakeGateway) Disable(_ context.Context, iface string) error {
	g.disables = append(g.disables, iface)
	return g.disableErr
}

func (g *fakeGateway) CheckStatus(_ context.Context, iface string) (gateway.Status, error) {
	g.statuses = append(g.statuses, iface)
	return gateway.Status{Enabled: g.statusEnabled}, g.statusErr
}

type fakeNotifier struct {
	mu      sync.Mutex
	notices []string
}

func (n *fakeNotifier) Notify(summary, body string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notices = append(n.notices, summary)
}

func (n *fakeNotifier) last() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.notices) == 0 {
		return ""
	}
	return n.notices[len(n.notices)-1]
}

type controllerFixture struct {
	c        *Controller
	gateway  *fakeGateway
	notifier *fakeNotifier
	timers   *timerControl
	store    *config.Store
}

func newFixture(t *testing.T) *controllerFixture {
	t.Helper()
	g := &fakeGateway{}
	n := &fakeNotifier{}
	tc := &timerControl{}
	store := config.NewStore(filepath.Join(t.TempDir(), "config.json"), nil)

	c := New(nil, Dependencies{
		Gateway:  g,
		Notifier: n,
		Store:    store,
		NewTimer: tc.factory,
	})
	return &controllerFixture{c: c, gateway: g, notifier: n, timers: tc, store: store}
}

// pump processes queued events and executes queued gateway calls inline, the
// way the loop and worker would, until both queues are empty.
func (f *controllerFixture) pump() {
	for {
		if f.pumpEvents() || f.pumpOneCall() {
			continue
		}
		return
	}
}

func (f *controllerFixture) pumpEvents() bool {
	progressed := false
	for {
		select {
		case ev := <-f.c.events:
			f.c.handle(ev)
			progressed = true
		default:
			return progressed
		}
	}
}

func (f *controllerFixture) pumpOneCall() bool {
	select {
	case req := <-f.c.calls:
		res := callResult{req: req}
		switch req.op {
		case opApply:
			res.err = f.c.gateway.Apply(context.Background(), req.iface, req.down, req.up)
		case opDisable:
			res.err = f.c.gateway.Disable(context.Background(), req.iface)
		case opStatus:
			status, err := f.c.gateway.CheckStatus(context.Background(), req.iface)
			res.err = err
			res.status = status.Enabled
		}
		f.c.handle(res)
		return true
	default:
		return false
	}
}

// seedInterface delivers the watchdog's first observation so the controller
// has a target interface.
func (f *controllerFixture) seedInterface(name string) {
	f.c.handle(InterfaceChanged{New: name})
	f.pump()
}

func TestToggleOnAppliesSelectedPreset(t *testing.T) {
	f := newFixture(t)
	f.seedInterface("eth0")

	f.c.ToggleOn()
	f.pump()

	require.Len(t, f.gateway.applies, 1)
	assert.Equal(t, applyCall{iface: "eth0", down: 50, up: 10}, f.gateway.applies[0])

	status := f.c.Status()
	assert.True(t, status.Enabled)
	assert.False(t, status.Temporary)
	assert.Equal(t, "Work", status.Preset)
	assert.Equal(t, "eth0", status.Interface)
}

func TestToggleOnIsIdempotent(t *testing.T) {
	f := newFixture(t)
	f.seedInterface("eth0")

	f.c.ToggleOn()
	f.pump()
	f.c.ToggleOn()
	f.pump()

	assert.Len(t, f.gateway.applies, 1)
	assert.True(t, f.c.Status().Enabled)
}

func TestToggleOnFailureLeavesStateDisabled(t *testing.T) {
	f := newFixture(t)
	f.seedInterface("eth0")
	f.gateway.applyErr = serr.Gateway(errors.New("tool exploded"), "apply")

	f.c.ToggleOn()
	f.pump()

	assert.False(t, f.c.Status().Enabled)
	assert.Contains(t, f.notifier.last(), "failed")
}

func TestToggleOnAuthorizationDeniedNotice(t *testing.T) {
	f := newFixture(t)
	f.seedInterface("eth0")
	f.gateway.applyErr = serr.New(serr.KindAuthorizationDenied,
		errors.New("authorization denied (exit 126)"), serr.ErrorContext{})

	f.c.ToggleOn()
	f.pump()

	assert.False(t, f.c.Status().Enabled)
	assert.Equal(t, "Authorization denied", f.notifier.last())
}

func TestToggleOnWithoutInterfaceIsRefused(t *testing.T) {
	f := newFixture(t)

	f.c.ToggleOn()
	f.pump()

	assert.Empty(t, f.gateway.applies)
	assert.False(t, f.c.Status().Enabled)
	assert.Equal(t, "No interface detected", f.notifier.last())
}

func TestToggleOffDisables(t *testing.T) {
	f := newFixture(t)
	f.seedInterface("eth0")
	f.c.ToggleOn()
	f.pump()

	f.c.ToggleOff()
	f.pump()

	require.Len(t, f.gateway.disables, 1)
	assert.Equal(t, "eth0", f.gateway.disables[0])
	assert.False(t, f.c.Status().Enabled)
}

func TestToggleOffWhileDisabledIsNoop(t *testing.T) {
	f := newFixture(t)
	f.seedInterface("eth0")

	f.c.ToggleOff()
	f.pump()

	assert.Empty(t, f.gateway.disables)
}

func TestStartTemporaryRejectsBadDurations(t *testing.T) {
	f := newFixture(t)

	assert.Error(t, f.c.StartTemporary(0))
	assert.Error(t, f.c.StartTemporary(-5))
	assert.NoError(t, f.c.StartTemporary(15))
}

func TestTemporarySessionExpiry(t *testing.T) {
	f := newFixture(t)
	f.seedInterface("eth0")

	require.NoError(t, f.c.StartTemporary(1))
	f.pump()

	require.Len(t, f.gateway.applies, 1)
	status := f.c.Status()
	assert.True(t, status.Enabled)
	assert.True(t, status.Temporary)
	assert.False(t, status.Deadline.IsZero())
	require.Len(t, f.timers.starts, 1)
	assert.Equal(t, time.Minute, f.timers.starts[0])

	f.timers.fireLatest()
	f.pump()

	require.Len(t, f.gateway.disables, 1)
	status = f.c.Status()
	assert.False(t, status.Enabled)
	assert.False(t, status.Temporary)
	assert.True(t, status.Deadline.IsZero())
	assert.Equal(t, "Temporary limit expired", f.notifier.last())

	// A second delivery of the same expiry is stale and changes nothing.
	f.timers.fireLatest()
	f.pump()
	assert.Len(t, f.gateway.disables, 1)
}

func TestCancelTemporaryKeepsShapingOn(t *testing.T) {
	f := newFixture(t)
	f.seedInterface("eth0")
	require.NoError(t, f.c.StartTemporary(30))
	f.pump()

	f.c.CancelTemporary()
	f.pump()

	status := f.c.Status()
	assert.True(t, status.Enabled)
	assert.False(t, status.Temporary)
	assert.True(t, status.Deadline.IsZero())
	assert.True(t, f.timers.stoppers[0].stopped)

	// The cancelled timer firing anyway must not disable anything.
	f.timers.fireLatest()
	f.pump()
	assert.Empty(t, f.gateway.disables)
}

func TestSsidSwitchReappliesMappedPreset(t *testing.T) {
	f := newFixture(t)
	snap := config.DefaultSnapshot()
	snap.SSIDMappings["HomeNet"] = "Gaming"
	require.NoError(t, f.store.Save(snap))
	f.c.cfg = f.c.store.Load()
	f.seedInterface("eth0")

	f.c.ToggleOn()
	f.pump()
	require.Len(t, f.gateway.applies, 1)

	f.c.handle(SsidChanged{New: "HomeNet"})
	f.pump()

	require.Len(t, f.gateway.applies, 2)
	assert.Equal(t, applyCall{iface: "eth0", down: 30, up: 15}, f.gateway.applies[1])
	status := f.c.Status()
	assert.Equal(t, "Gaming", status.Preset)
	assert.Equal(t, "eth0", status.Interface)
	assert.Equal(t, "HomeNet", status.SSID)
}

func TestSsidSwitchPreservesTemporaryDeadline(t *testing.T) {
	f := newFixture(t)
	snap := config.DefaultSnapshot()
	snap.SSIDMappings["HomeNet"] = "Gaming"
	require.NoError(t, f.store.Save(snap))
	f.c.cfg = f.c.store.Load()
	f.seedInterface("eth0")

	require.NoError(t, f.c.StartTemporary(30))
	f.pump()
	deadline := f.c.Status().Deadline
	require.False(t, deadline.IsZero())
	require.Len(t, f.timers.starts, 1)

	f.c.handle(SsidChanged{New: "HomeNet"})
	f.pump()

	status := f.c.Status()
	assert.Equal(t, "Gaming", status.Preset)
	assert.True(t, status.Temporary)
	assert.Equal(t, deadline, status.Deadline)
	// The timer was not restarted by the preset switch.
	assert.Len(t, f.timers.starts, 1)
}

func TestSsidWithoutMappingChangesNothing(t *testing.T) {
	f := newFixture(t)
	f.seedInterface("eth0")
	f.c.ToggleOn()
	f.pump()

	f.c.handle(SsidChanged{New: "Cafe"})
	f.pump()

	assert.Len(t, f.gateway.applies, 1)
	assert.Equal(t, "Work", f.c.Status().Preset)
}

func TestInterfaceChangeReappliesWhileEnabled(t *testing.T) {
	f := newFixture(t)
	f.seedInterface("eth0")
	f.c.ToggleOn()
	f.pump()

	f.c.handle(InterfaceChanged{Old: "eth0", New: "wlan0"})
	f.pump()

	require.Len(t, f.gateway.applies, 2)
	assert.Equal(t, "wlan0", f.gateway.applies[1].iface)
	assert.Equal(t, "wlan0", f.c.Status().Interface)
}

func TestInterfaceChangeWhileDisabledOnlyTracks(t *testing.T) {
	f := newFixture(t)
	f.seedInterface("eth0")

	f.c.handle(InterfaceChanged{Old: "eth0", New: "wlan0"})
	f.pump()

	assert.Empty(t, f.gateway.applies)
	assert.Equal(t, "wlan0", f.c.Status().Interface)
}

func TestInterfaceUnavailableFallsBackAndReverts(t *testing.T) {
	f := newFixture(t)
	f.seedInterface("eth0")
	f.c.ToggleOn()
	f.pump()

	f.c.handle(InterfaceUnavailable{Name: "eth0", Fallback: "wlan0"})
	f.pump()

	require.Len(t, f.gateway.applies, 2)
	assert.Equal(t, "wlan0", f.gateway.applies[1].iface)
	assert.Equal(t, "wlan0", f.c.Status().Interface)
	assert.True(t, f.c.Status().Enabled)

	// eth0 reappears; the watchdog reports it and shaping follows.
	f.c.handle(InterfaceChanged{Old: "wlan0", New: "eth0"})
	f.pump()

	require.Len(t, f.gateway.applies, 3)
	assert.Equal(t, "eth0", f.gateway.applies[2].iface)
	assert.Equal(t, "eth0", f.c.Status().Interface)
}

func TestInterfaceUnavailableWithoutFallbackDefersShaping(t *testing.T) {
	f := newFixture(t)
	f.seedInterface("eth0")
	f.c.ToggleOn()
	f.pump()

	f.c.handle(InterfaceUnavailable{Name: "eth0", Fallback: ""})
	f.pump()

	status := f.c.Status()
	assert.True(t, status.Enabled)
	assert.Equal(t, "", status.Interface)
	assert.Len(t, f.gateway.applies, 1)

	// Shaping re-applies once an interface returns.
	f.c.handle(InterfaceChanged{New: "wlan0"})
	f.pump()

	require.Len(t, f.gateway.applies, 2)
	assert.Equal(t, "wlan0", f.gateway.applies[1].iface)
}

func TestStaleGatewayResultIsDiscarded(t *testing.T) {
	f := newFixture(t)
	f.seedInterface("eth0")
	f.c.ToggleOn()
	f.pump()

	// An interface change queues a re-apply; before its result lands the user
	// toggles off, superseding it.
	f.c.handle(InterfaceChanged{Old: "eth0", New: "wlan0"})
	f.c.handle(toggleOffEvent{})
	f.pump()

	assert.False(t, f.c.Status().Enabled)
	require.Len(t, f.gateway.applies, 2)
	require.Len(t, f.gateway.disables, 1)
	assert.Equal(t, "wlan0", f.gateway.disables[0])
}

func TestSelectPresetPersistsAndReapplies(t *testing.T) {
	f := newFixture(t)
	f.seedInterface("eth0")
	f.c.ToggleOn()
	f.pump()

	require.NoError(t, f.c.SelectPreset("Streaming"))
	f.pump()

	require.Len(t, f.gateway.applies, 2)
	assert.Equal(t, applyCall{iface: "eth0", down: 80, up: 20}, f.gateway.applies[1])
	assert.Equal(t, "Streaming", f.c.Status().Preset)
	assert.Equal(t, "Streaming", f.store.Load().SelectedPreset)
}

func TestSelectPresetWhileDisabledOnlyPersists(t *testing.T) {
	f := newFixture(t)
	f.seedInterface("eth0")

	require.NoError(t, f.c.SelectPreset("Gaming"))
	f.pump()

	assert.Empty(t, f.gateway.applies)
	assert.Equal(t, "Gaming", f.c.Status().Preset)
	assert.Equal(t, "Gaming", f.store.Load().SelectedPreset)
}

func TestSelectUnknownPresetNotifies(t *testing.T) {
	f := newFixture(t)
	f.seedInterface("eth0")

	require.NoError(t, f.c.SelectPreset("Nope"))
	f.pump()

	assert.Equal(t, "Unknown preset", f.notifier.last())
	assert.Equal(t, "Work", f.c.Status().Preset)
}

func TestImportReappliesWhenEnabled(t *testing.T) {
	f := newFixture(t)
	f.seedInterface("eth0")
	f.c.ToggleOn()
	f.pump()

	incoming := config.DefaultSnapshot()
	incoming.Presets = []config.Preset{{Name: "Night", DownMbps: 5, UpMbps: 2}}
	incoming.SelectedPreset = "Night"
	path := filepath.Join(t.TempDir(), "incoming.json")
	require.NoError(t, f.store.Export(path, incoming))

	require.NoError(t, f.c.ImportConfig(path))
	f.pump()

	require.Len(t, f.gateway.applies, 2)
	assert.Equal(t, applyCall{iface: "eth0", down: 5, up: 2}, f.gateway.applies[1])
	assert.Equal(t, "Night", f.c.Status().Preset)
}

func TestImportFailureLeavesLiveStateUntouched(t *testing.T) {
	f := newFixture(t)
	f.seedInterface("eth0")
	f.c.ToggleOn()
	f.pump()

	path := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, writeFile(path, `{"presets": [], "active_preset": "x"}`))

	require.NoError(t, f.c.ImportConfig(path))
	f.pump()

	assert.Equal(t, "Import failed", f.notifier.last())
	status := f.c.Status()
	assert.True(t, status.Enabled)
	assert.Equal(t, "Work", status.Preset)
	assert.Len(t, f.gateway.applies, 1)
}

func TestExportWritesSnapshot(t *testing.T) {
	f := newFixture(t)
	path := filepath.Join(t.TempDir(), "out.json")

	require.NoError(t, f.c.ExportConfig(path))
	f.pump()

	assert.FileExists(t, path)
	assert.Equal(t, "Config exported", f.notifier.last())
}

func TestStartupStatusSyncAdoptsActiveShaping(t *testing.T) {
	f := newFixture(t)
	f.gateway.statusEnabled = true

	f.seedInterface("eth0")

	require.Len(t, f.gateway.statuses, 1)
	status := f.c.Status()
	assert.True(t, status.Enabled)
	assert.Equal(t, "Work", status.Preset)
	assert.Equal(t, "eth0", status.Interface)
}

func TestStartupStatusSyncRunsOnce(t *testing.T) {
	f := newFixture(t)

	f.seedInterface("eth0")
	f.c.handle(InterfaceChanged{Old: "eth0", New: "wlan0"})
	f.pump()

	assert.Len(t, f.gateway.statuses, 1)
}

func TestSetInterfaceModeValidatesManualName(t *testing.T) {
	f := newFixture(t)

	assert.Error(t, f.c.SetInterfaceMode(false, "eth0;rm"))
	require.NoError(t, f.c.SetInterfaceMode(false, "eth1"))
	f.pump()

	auto, manual := f.c.WatchTarget()
	assert.False(t, auto)
	assert.Equal(t, "eth1", manual)
	assert.Equal(t, "eth1", f.store.Load().Interface)

	require.NoError(t, f.c.SetInterfaceMode(true, ""))
	f.pump()
	auto, manual = f.c.WatchTarget()
	assert.True(t, auto)
	assert.Empty(t, manual)
}

func writeFile(path, content string) error {
	return os.WriteFile(path, []byte(content), 0o644)
}
