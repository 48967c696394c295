package session

import (
	"fmt"
	"log/slog"
	"time"

	"shaperd/internal/config"
)

// handle dispatches one event. Runs exclusively on the loop goroutine.
func (c *Controller) handle(ev Event) {
	switch e := ev.(type) {
	case toggleOnEvent:
		c.handleToggleOn()
	case toggleOffEvent:
		c.handleToggleOff()
	case startTemporaryEvent:
		c.handleStartTemporary(e.minutes)
	case cancelTemporaryEvent:
		c.handleCancelTemporary()
	case selectPresetEvent:
		c.handleSelectPreset(e.name)
	case setInterfaceModeEvent:
		c.handleSetInterfaceMode(e.auto, e.iface)
	case importConfigEvent:
		c.handleImport(e.path)
	case exportConfigEvent:
		c.handleExport(e.path)
	case InterfaceChanged:
		c.handleInterfaceChanged(e)
	case SsidChanged:
		c.handleSsidChanged(e)
	case InterfaceUnavailable:
		c.handleInterfaceUnavailable(e)
	case timerExpired:
		c.handleTimerExpired(e)
	case callResult:
		c.handleCallResult(e)
	default:
		c.logger.Warn("unhandled event", slog.String("type", fmt.Sprintf("%T", ev)))
	}
}

func (c *Controller) handleToggleOn() {
	preset := c.cfg.Selected()
	if c.st.enabled && !c.st.temporary && c.st.preset.Name == preset.Name && c.st.iface != "" {
		return
	}

	iface := c.st.iface
	if iface == "" {
		c.notice("No interface detected", "Cannot enable shaping without an active interface")
		return
	}

	c.gen++
	c.submitApply(iface, preset, func() {
		c.timer.Cancel()
		c.st.enabled = true
		c.st.temporary = false
		c.st.deadline = time.Time{}
		c.st.preset = preset
		c.st.iface = iface
		c.publish()
		c.notice("Shaping enabled", describeApply(preset, iface))
	}, func(err error) {
		c.noticeFailure("enable", err)
	})
}

func (c *Controller) handleToggleOff() {
	if !c.st.enabled {
		return
	}

	iface := c.st.iface
	c.gen++

	if iface == "" {
		// Nothing was applied anywhere; flip locally.
		c.timer.Cancel()
		c.clearSession()
		c.notice("Shaping disabled", "")
		return
	}

	c.submitDisable(iface, func() {
		c.timer.Cancel()
		c.clearSession()
		c.notice("Shaping disabled", "Limits removed from "+iface)
	}, func(err error) {
		c.noticeFailure("disable", err)
	})
}

func (c *Controller) handleStartTemporary(minutes int) {
	preset := c.cfg.Selected()
	iface := c.st.iface
	if iface == "" {
		c.notice("No interface detected", "Cannot enable shaping without an active interface")
		return
	}

	// Single active timer per session: a prior one is cancelled right away.
	hadDeadline := c.st.temporary && time.Until(c.st.deadline) > 0
	remaining := time.Until(c.st.deadline)
	c.timer.Cancel()

	d := time.Duration(minutes) * time.Minute
	c.gen++
	c.submitApply(iface, preset, func() {
		c.st.enabled = true
		c.st.temporary = true
		c.st.deadline = time.Now().Add(d)
		c.st.preset = preset
		c.st.iface = iface
		c.timer.Start(d)
		c.publish()
		c.notice("Temporary limit started",
			fmt.Sprintf("%s for %d min on %s", preset.Name, minutes, iface))
	}, func(err error) {
		if hadDeadline {
			// Prior session stays live; re-arm its remaining time.
			c.timer.Start(remaining)
		}
		c.noticeFailure("temporary enable", err)
	})
}

func (c *Controller) handleCancelTemporary() {
	if !c.st.temporary {
		return
	}
	c.timer.Cancel()
	c.st.temporary = false
	c.st.deadline = time.Time{}
	c.publish()
	c.notice("Temporary limit cleared", "Shaping stays enabled with "+c.st.preset.Name)
}

func (c *Controller) handleSelectPreset(name string) {
	preset, ok := c.cfg.Preset(name)
	if !ok {
		c.notice("Unknown preset", name)
		return
	}

	if c.cfg.SelectedPreset != name {
		c.cfg.SelectedPreset = name
		c.saveConfig()
	}

	if !c.st.enabled || c.st.preset.Name == name {
		c.st.preset = preset
		c.publish()
		return
	}

	iface := c.st.iface
	if iface == "" {
		c.st.preset = preset
		c.publish()
		return
	}

	c.gen++
	c.submitApply(iface, preset, func() {
		c.st.preset = preset
		c.publish()
		c.notice("Preset switched", describeApply(preset, iface))
	}, func(err error) {
		c.noticeFailure("preset switch", err)
	})
}

func (c *Controller) handleSetInterfaceMode(auto bool, iface string) {
	if auto {
		c.cfg.InterfaceAuto = true
		c.cfg.Interface = ""
	} else {
		c.cfg.InterfaceAuto = false
		c.cfg.Interface = iface
	}
	c.saveConfig()
	// The watchdog picks the new target up on its next poll and reports the
	// resulting interface as a change event; any re-apply happens there.
	c.publish()
}

func (c *Controller) handleImport(path string) {
	snap, backupPath, err := c.store.Import(path)
	if err != nil {
		c.notice("Import failed", err.Error())
		return
	}

	c.cfg = snap
	body := "Configuration replaced"
	if backupPath != "" {
		body = "Previous config backed up to " + backupPath
	}
	c.notice("Config imported", body)

	preset := c.cfg.Selected()
	if !c.st.enabled {
		c.st.preset = preset
		c.publish()
		return
	}

	iface := c.st.iface
	c.publish()
	if iface == "" {
		return
	}

	c.gen++
	c.submitApply(iface, preset, func() {
		c.st.preset = preset
		c.publish()
	}, func(err error) {
		c.noticeFailure("re-apply after import", err)
	})
}

func (c *Controller) handleExport(path string) {
	if err := c.store.Export(path, c.cfg.Clone()); err != nil {
		c.notice("Export failed", err.Error())
		return
	}
	c.notice("Config exported", path)
}

func (c *Controller) handleInterfaceChanged(ev InterfaceChanged) {
	c.syncStartupStatus(ev.New)

	if ev.New == c.st.iface {
		return
	}
	c.st.iface = ev.New

	if !c.st.enabled {
		c.publish()
		return
	}

	if ev.New == "" {
		c.publish()
		c.notice("Interface lost", "Shaping stays configured and re-applies when an interface returns")
		return
	}

	preset := c.st.preset
	c.gen++
	c.submitApply(ev.New, preset, func() {
		c.publish()
		c.logger.Info("re-applied after interface change",
			slog.String("iface", ev.New),
			slog.String("preset", preset.Name))
	}, func(err error) {
		c.publish()
		c.noticeFailure("re-apply", err)
	})
}

func (c *Controller) handleSsidChanged(ev SsidChanged) {
	c.st.ssid = ev.New
	c.publish()

	if !c.cfg.InterfaceAuto || ev.New == "" {
		return
	}
	mapped, ok := c.cfg.SSIDMappings[ev.New]
	if !ok {
		return
	}
	preset, ok := c.cfg.Preset(mapped)
	if !ok {
		c.logger.Warn("SSID mapping references unknown preset",
			slog.String("ssid", ev.New),
			slog.String("preset", mapped))
		return
	}

	if c.cfg.SelectedPreset != mapped {
		c.cfg.SelectedPreset = mapped
		c.saveConfig()
	}

	if !c.st.enabled {
		c.st.preset = preset
		c.publish()
		c.notice("Network preset", fmt.Sprintf("%q maps to %s", ev.New, mapped))
		return
	}
	if c.st.preset.Name == mapped {
		return
	}

	iface := c.st.iface
	if iface == "" {
		c.st.preset = preset
		c.publish()
		return
	}

	// The temporary deadline, if any, is preserved; the timer keeps running.
	c.gen++
	c.submitApply(iface, preset, func() {
		c.st.preset = preset
		c.publish()
		c.notice("Preset switched", fmt.Sprintf("%s for network %q", mapped, ev.New))
	}, func(err error) {
		c.noticeFailure("preset switch", err)
	})
}

func (c *Controller) handleInterfaceUnavailable(ev InterfaceUnavailable) {
	c.st.iface = ev.Fallback
	c.publish()

	if ev.Fallback == "" {
		c.notice("Interface unavailable",
			ev.Name+" disappeared and no other interface is active")
		return
	}
	c.notice("Interface unavailable",
		fmt.Sprintf("%s disappeared, falling back to %s", ev.Name, ev.Fallback))

	if !c.st.enabled {
		return
	}

	preset := c.st.preset
	c.gen++
	c.submitApply(ev.Fallback, preset, func() {
		c.publish()
	}, func(err error) {
		c.noticeFailure("fallback apply", err)
	})
}

func (c *Controller) handleTimerExpired(ev timerExpired) {
	if !c.st.temporary || !c.timer.Matches(ev.id) {
		c.logger.Debug("discarding stale timer expiry", slog.String("id", ev.id.String()))
		return
	}
	c.timer.Cancel()

	iface := c.st.iface
	c.gen++

	if iface == "" {
		c.clearSession()
		c.notice("Temporary limit expired", "Shaping disabled")
		return
	}

	c.submitDisable(iface, func() {
		c.clearSession()
		c.notice("Temporary limit expired", "Shaping disabled")
	}, func(err error) {
		// Shaping is still in effect; only the deadline is gone.
		c.st.temporary = false
		c.st.deadline = time.Time{}
		c.publish()
		c.noticeFailure("expiry disable", err)
	})
}

// syncStartupStatus adopts an already-active shaping state once, on the first
// interface observation after boot.
func (c *Controller) syncStartupStatus(iface string) {
	if c.statusSynced || iface == "" {
		return
	}
	c.statusSynced = true

	c.submitStatus(iface, func(enabled bool) {
		if !enabled || c.st.enabled {
			return
		}
		c.st.enabled = true
		c.st.preset = c.cfg.Selected()
		c.st.iface = iface
		c.publish()
		c.logger.Info("adopted already-active shaping", slog.String("iface", iface))
	})
}

func (c *Controller) clearSession() {
	c.st.enabled = false
	c.st.temporary = false
	c.st.deadline = time.Time{}
	c.publish()
}

func (c *Controller) saveConfig() {
	if err := c.store.Save(c.cfg.Clone()); err != nil {
		c.logger.Warn("config save failed",
			slog.String("path", c.store.Path()),
			slog.String("error", err.Error()))
	}
}

func describeApply(preset config.Preset, iface string) string {
	return fmt.Sprintf("%s on %s (%d down / %d up Mbps)",
		preset.Name, iface, preset.DownMbps, preset.UpMbps)
}
