package session

import "github.com/google/uuid"

// Event is a discrete unit of work delivered to the controller's single
// consuming loop. Producers (watchdog, timer, user commands) run on their own
// goroutines; consumption is strictly serialized so no two state transitions
// ever overlap.
type Event interface {
	isEvent()
}

// InterfaceChanged reports that the watchdog's detected interface differs
// from the last reported value. New may be empty when nothing is detected.
type InterfaceChanged struct {
	Old string
	New string
}

// SsidChanged reports a Wi-Fi association change observed in auto mode. An
// empty value means no association.
type SsidChanged struct {
	Old string
	New string
}

// InterfaceUnavailable reports that the manually configured interface has
// disappeared. Fallback carries the interface currently detected as active,
// or empty when none is available.
type InterfaceUnavailable struct {
	Name     string
	Fallback string
}

func (InterfaceChanged) isEvent()     {}
func (SsidChanged) isEvent()          {}
func (InterfaceUnavailable) isEvent() {}

// User commands.

type toggleOnEvent struct{}

type toggleOffEvent struct{}

type startTemporaryEvent struct {
	minutes int
}

type cancelTemporaryEvent struct{}

type selectPresetEvent struct {
	name string
}

type setInterfaceModeEvent struct {
	auto  bool
	iface string
}

type importConfigEvent struct {
	path string
}

type exportConfigEvent struct {
	path string
}

func (toggleOnEvent) isEvent()         {}
func (toggleOffEvent) isEvent()        {}
func (startTemporaryEvent) isEvent()   {}
func (cancelTemporaryEvent) isEvent()  {}
func (selectPresetEvent) isEvent()     {}
func (setInterfaceModeEvent) isEvent() {}
func (importConfigEvent) isEvent()     {}
func (exportConfigEvent) isEvent()     {}

// Internal events.

type timerExpired struct {
	id uuid.UUID
}

func (timerExpired) isEvent() {}

type callResult struct {
	req callRequest
	err error
	// status carries the CheckStatus answer for opStatus calls.
	status bool
}

func (callResult) isEvent() {}
