// Package notify renders user-facing notices through the desktop notification
// service. Without a session bus the notices degrade to log lines.
package notify

import (
	"log/slog"
	"sync"

	"github.com/godbus/dbus/v5"
)

const (
	notifyService   = "org.freedesktop.Notifications"
	notifyPath      = "/org/freedesktop/Notifications"
	notifyMethod    = "org.freedesktop.Notifications.Notify"
	notifyIcon      = "network-transmit-receive"
	notifyTimeoutMs = 5000
)

// Notifier sends desktop notifications over the session bus. Each new notice
// replaces the previous one instead of stacking.
type Notifier struct {
	logger  *slog.Logger
	appName string

	mu     sync.Mutex
	conn   *dbus.Conn
	lastID uint32
}

// New constructs a Notifier. The bus connection is established lazily on the
// first notice.
func New(logger *slog.Logger, appName string) *Notifier {
	if appName == "" {
		appName = "shaperd"
	}
	return &Notifier{logger: logger, appName: appName}
}

// Notify renders one notice. Failures are logged and swallowed; notification
// delivery is never load-bearing.
func (n *Notifier) Notify(summary, body string) {
	n.mu.Lock()
	defer n.mu.Unlock()

	conn, err := n.connection()
	if err != nil {
		if n.logger != nil {
			n.logger.Debug("no session bus, notice logged only",
				slog.String("summary", summary),
				slog.String("error", err.Error()))
		}
		return
	}

	obj := conn.Object(notifyService, dbus.ObjectPath(notifyPath))
	call := obj.Call(notifyMethod, 0,
		n.appName,
		n.lastID,
		notifyIcon,
		summary,
		body,
		[]string{},
		map[string]dbus.Variant{},
		int32(notifyTimeoutMs),
	)
	if call.Err != nil {
		if n.logger != nil {
			n.logger.Debug("notification delivery failed",
				slog.String("summary", summary),
				slog.String("error", call.Err.Error()))
		}
		n.dropConnection()
		return
	}
	if err := call.Store(&n.lastID); err != nil {
		n.lastID = 0
	}
}

// Close releases the bus connection.
func (n *Notifier) Close() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.dropConnection()
}

func (n *Notifier) connection() (*dbus.Conn, error) {
	if n.conn != nil {
		return n.conn, nil
	}
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return nil, err
	}
	n.conn = conn
	return conn, nil
}

func (n *Notifier) dropConnection() {
	if n.conn != nil {
		_ = n.conn.Close()
		n.conn = nil
	}
}
