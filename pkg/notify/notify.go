// Package notify implements the notify command by forwarding requests
// to the desktop notification daemon over org.freedesktop.Notifications.
package notify

import (
	"encoding/json"
	"fmt"

	"github.com/godbus/dbus/v5"

	"github.com/ecomter/estarter/pkg/apiproto"
	"github.com/ecomter/estarter/pkg/log"
)

const (
	busName    = "org.freedesktop.Notifications"
	objectPath = dbus.ObjectPath("/org/freedesktop/Notifications")
	iface      = "org.freedesktop.Notifications.Notify"
)

// registrar is the subset of *kernel.Kernel notify needs to wire
// itself in, defined consumer-side to avoid an import cycle (same
// pattern as pkg/vfs's registrar).
type registrar interface {
	RegisterHandler(command apiproto.Command, handler func(appID string, req apiproto.Request) apiproto.Response)
}

// Notifier sends desktop notifications on behalf of hosted apps.
type Notifier struct {
	conn *dbus.Conn
}

// Connect opens the session bus used to reach the notification
// daemon. Callers should Close it on shutdown.
func Connect() (*Notifier, error) {
	conn, err := dbus.SessionBus()
	if err != nil {
		return nil, fmt.Errorf("notify: connecting to session bus: %w", err)
	}
	return &Notifier{conn: conn}, nil
}

// Close releases the bus connection.
func (n *Notifier) Close() error {
	if n.conn == nil {
		return nil
	}
	return n.conn.Close()
}

type notifyArgs struct {
	Title        string   `json:"title"`
	Body         string   `json:"body"`
	IconName     string   `json:"iconName,omitempty"`
	TimeoutMs    int32    `json:"timeoutMs,omitempty"`
	Actions      []string `json:"actions,omitempty"`
	ReplacesID   uint32   `json:"replacesId,omitempty"`
	urgencyLevel byte
}

// Notify sends a single desktop notification on behalf of appID and
// returns the daemon-assigned notification ID.
func (n *Notifier) Notify(appID string, args notifyArgs) (uint32, error) {
	obj := n.conn.Object(busName, objectPath)
	hints := map[string]dbus.Variant{
		"urgency": dbus.MakeVariant(args.urgencyLevel),
	}
	call := obj.Call(iface, 0,
		appID,           // app_name
		args.ReplacesID, // replaces_id
		args.IconName,   // app_icon
		args.Title,      // summary
		args.Body,       // body
		args.Actions,    // actions
		hints,           // hints
		int32(args.TimeoutMs), // expire_timeout
	)
	if call.Err != nil {
		return 0, fmt.Errorf("notify: Notify call: %w", call.Err)
	}
	var id uint32
	if err := call.Store(&id); err != nil {
		return 0, fmt.Errorf("notify: decoding notification id: %w", err)
	}
	return id, nil
}

// Register installs the notify command handler on k.
func (n *Notifier) Register(k registrar) {
	k.RegisterHandler(apiproto.CmdNotify, n.handleNotify)
}

func (n *Notifier) handleNotify(appID string, req apiproto.Request) apiproto.Response {
	var args notifyArgs
	if len(req.Data) == 0 {
		return apiproto.Fail(req.RequestID, apiproto.InvalidRequest, "missing notification payload")
	}
	if err := json.Unmarshal(req.Data, &args); err != nil {
		return apiproto.Fail(req.RequestID, apiproto.InvalidRequest, "invalid notification payload: %v", err)
	}
	if args.Title == "" {
		return apiproto.Fail(req.RequestID, apiproto.InvalidRequest, "title is required")
	}

	id, err := n.Notify(appID, args)
	if err != nil {
		log.Warningf("notify: delivering notification for %s: %v", appID, err)
		return apiproto.Fail(req.RequestID, apiproto.Error, "%s", err.Error())
	}
	return apiproto.Ok(req.RequestID, struct {
		NotificationID uint32 `json:"notificationId"`
	}{NotificationID: id})
}
