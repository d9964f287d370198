package notify

import (
	"context"
	"fmt"
	"sync"

	"github.com/godbus/dbus/v5"
)

const (
	notifyDest = "org.freedesktop.Notifications"
	notifyPath = dbus.ObjectPath("/org/freedesktop/Notifications")
)

// Desktop posts to the freedesktop notification daemon. Every Present
// replaces the previous notification so only one is ever on screen.
type Desktop struct {
	conn *dbus.Conn
	obj  dbus.BusObject

	mu sync.Mutex
	id uint32
}

func NewDesktop() (*Desktop, error) {
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return nil, fmt.Errorf("connect session bus: %w", err)
	}
	return &Desktop{conn: conn, obj: conn.Object(notifyDest, notifyPath)}, nil
}

func (d *Desktop) Present(ctx context.Context, remaining string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	hints := map[string]dbus.Variant{
		"urgency":   dbus.MakeVariant(byte(0)),
		"transient": dbus.MakeVariant(true),
		"category":  dbus.MakeVariant("x-slumber.timer"),
	}
	var id uint32
	call := d.obj.CallWithContext(ctx, notifyDest+".Notify", 0,
		AppName, d.id, "", Title, Body(remaining), []string{}, hints, int32(0))
	if err := call.Store(&id); err != nil {
		return fmt.Errorf("notify: %w", err)
	}
	d.id = id
	return nil
}

func (d *Desktop) Dismiss(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.id == 0 {
		return nil
	}
	id := d.id
	d.id = 0
	return d.obj.CallWithContext(ctx, notifyDest+".CloseNotification", 0, id).Err
}

func (d *Desktop) Close() error { return d.conn.Close() }
