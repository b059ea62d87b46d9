// Package notify provides desktop notifications via D-Bus.
package notify

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/godbus/dbus/v5"
)

const (
	notifyInterface = "org.freedesktop.Notifications"
	notifyPath      = "/org/freedesktop/Notifications"

	defaultIcon = "x-office-calendar"
)

// Notifier sends desktop notifications via D-Bus.
type Notifier struct {
	conn    *dbus.Conn
	obj     dbus.BusObject
	appName string
}

// New creates a new notifier.
func New(appName string) (*Notifier, error) {
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return nil, fmt.Errorf("connect to session bus: %w", err)
	}

	return &Notifier{
		conn:    conn,
		obj:     conn.Object(notifyInterface, notifyPath),
		appName: appName,
	}, nil
}

// Close closes the D-Bus connection.
func (n *Notifier) Close() error {
	if n.conn == nil {
		return nil
	}
	return n.conn.Close()
}

// Notification represents a desktop notification.
type Notification struct {
	Summary string
	Body    string
	Icon    string
	Timeout time.Duration // 0 = default, -1 = persistent
	Urgency Urgency
}

// Urgency levels for notifications.
type Urgency byte

const (
	UrgencyLow      Urgency = 0
	UrgencyNormal   Urgency = 1
	UrgencyCritical Urgency = 2
)

// expireTimeout converts a timeout to the milliseconds the server expects.
func expireTimeout(d time.Duration) int32 {
	switch {
	case d > 0:
		return int32(d.Milliseconds())
	case d < 0:
		return 0 // Persistent
	default:
		return -1 // Server default
	}
}

// Send sends a notification and returns the notification ID.
func (n *Notifier) Send(notif Notification) (uint32, error) {
	icon := notif.Icon
	if icon == "" {
		icon = defaultIcon
	}

	hints := map[string]dbus.Variant{
		"urgency": dbus.MakeVariant(byte(notif.Urgency)),
	}

	call := n.obj.Call(
		notifyInterface+".Notify",
		0,
		n.appName,                    // app_name
		uint32(0),                    // replaces_id (0 = new notification)
		icon,                         // app_icon
		notif.Summary,                // summary
		notif.Body,                   // body
		[]string{},                   // actions
		hints,                        // hints
		expireTimeout(notif.Timeout), // expire_timeout
	)
	if call.Err != nil {
		return 0, fmt.Errorf("send notification: %w", call.Err)
	}

	var id uint32
	if err := call.Store(&id); err != nil {
		return 0, fmt.Errorf("get notification id: %w", err)
	}

	slog.Debug("sent notification", "id", id, "summary", notif.Summary)
	return id, nil
}
