// Package ipc exposes the controller's command surface on the session bus.
// The tray frontend is a separate process; this object is its only way in.
package ipc

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/godbus/dbus/v5"

	"shaperd/internal/session"
)

const (
	ServiceName   = "dev.shaperd"
	ObjectPath    = "/dev/shaperd"
	InterfaceName = "dev.shaperd.Controller"
)

// Controller is the command surface the service forwards to.
type Controller interface {
	ToggleOn()
	ToggleOff()
	StartTemporary(minutes int) error
	CancelTemporary()
	SelectPreset(name string) error
	SetInterfaceMode(auto bool, iface string) error
	ImportConfig(path string) error
	ExportConfig(path string) error
	Status() session.Status
}

// InterfaceLister enumerates selectable interfaces for the frontend.
type InterfaceLister interface {
	ListInterfaces() []string
}

// Service owns the bus name and the exported object for its lifetime.
type Service struct {
	logger     *slog.Logger
	controller Controller
	lister     InterfaceLister
}

// New constructs a Service.
func New(logger *slog.Logger, controller Controller, lister InterfaceLister) *Service {
	return &Service{logger: logger, controller: controller, lister: lister}
}

// Run claims the bus name, exports the command object and blocks until ctx is
// cancelled.
func (s *Service) Run(ctx context.Context) error {
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return fmt.Errorf("connect session bus: %w", err)
	}
	defer conn.Close()

	reply, err := conn.RequestName(ServiceName, dbus.NameFlagDoNotQueue)
	if err != nil {
		return fmt.Errorf("request name %s: %w", ServiceName, err)
	}
	if reply != dbus.RequestNameReplyPrimaryOwner {
		return fmt.Errorf("name %s already owned, another instance running?", ServiceName)
	}

	h := &handler{controller: s.controller, lister: s.lister}
	if err := conn.Export(h, dbus.ObjectPath(ObjectPath), InterfaceName); err != nil {
		return fmt.Errorf("export %s: %w", InterfaceName, err)
	}

	if s.logger != nil {
		s.logger.Info("command service listening",
			slog.String("name", ServiceName),
			slog.String("path", ObjectPath))
	}

	<-ctx.Done()
	return ctx.Err()
}

// handler carries the methods visible on the bus. Every method returns
// *dbus.Error per the export convention.
type handler struct {
	controller Controller
	lister     InterfaceLister
}

func (h *handler) ToggleOn() *dbus.Error {
	h.controller.ToggleOn()
	return nil
}

func (h *handler) ToggleOff() *dbus.Error {
	h.controller.ToggleOff()
	return nil
}

func (h *handler) StartTemporary(minutes int32) *dbus.Error {
	if err := h.controller.StartTemporary(int(minutes)); err != nil {
		return dbus.MakeFailedError(err)
	}
	return nil
}

func (h *handler) CancelTemporary() *dbus.Error {
	h.controller.CancelTemporary()
	return nil
}

func (h *handler) SelectPreset(name string) *dbus.Error {
	if err := h.controller.SelectPreset(name); err != nil {
		return dbus.MakeFailedError(err)
	}
	return nil
}

func (h *handler) SetInterfaceMode(auto bool, iface string) *dbus.Error {
	if err := h.controller.SetInterfaceMode(auto, iface); err != nil {
		return dbus.MakeFailedError(err)
	}
	return nil
}

func (h *handler) ImportConfig(path string) *dbus.Error {
	if err := h.controller.ImportConfig(path); err != nil {
		return dbus.MakeFailedError(err)
	}
	return nil
}

func (h *handler) ExportConfig(path string) *dbus.Error {
	if err := h.controller.ExportConfig(path); err != nil {
		return dbus.MakeFailedError(err)
	}
	return nil
}

// Status returns the current snapshot as a JSON document; the frontend decides
// how to render it.
func (h *handler) Status() (string, *dbus.Error) {
	data, err := json.Marshal(h.controller.Status())
	if err != nil {
		return "", dbus.MakeFailedError(err)
	}
	return string(data), nil
}

func (h *handler) ListInterfaces() ([]string, *dbus.Error) {
	if h.lister == nil {
		return nil, nil
	}
	names := h.lister.ListInterfaces()
	if names == nil {
		names = []string{}
	}
	return names, nil
}
