package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/haivivi/t140cast/pkg/connmgr"
	"github.com/haivivi/t140cast/pkg/device"
)

const adminWriteTimeout = 5 * time.Second

// AdminMessage is sent on /ws/admin.
//
// The first message has type "initial_data" with every device and live
// connection. Each lifecycle change then sends type "connections" with the
// event and a fresh connection snapshot.
type AdminMessage struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

type initialData struct {
	Devices     []*device.Record `json:"devices"`
	Connections []ConnectionView `json:"connections"`
}

type connectionsData struct {
	Event       string           `json:"event"`
	DeviceID    string           `json:"deviceId"`
	Status      device.Status    `json:"status"`
	Connections []ConnectionView `json:"connections"`
}

func (s *Server) admin(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("http: admin upgrade", "err", err)
		return
	}
	defer ws.Close()
	log := s.log.With("remote", r.RemoteAddr)
	log.Info("http: admin console connected")
	defer log.Info("http: admin console disconnected")

	// Lifecycle callbacks must not block, so they only queue.
	events := make(chan connmgr.Event, 64)
	cancel := s.svc.Manager().Subscribe(func(e connmgr.Event) {
		select {
		case events <- e:
		default:
			log.Warn("http: admin console too slow, event dropped", "device_id", e.DeviceID)
		}
	})
	defer cancel()

	ctx, stop := context.WithCancel(r.Context())
	defer stop()
	go func() {
		defer stop()
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}()

	devices, err := s.svc.ListDevices(ctx)
	if err != nil {
		log.Error("http: admin initial data", "err", err)
		return
	}
	if devices == nil {
		devices = []*device.Record{}
	}
	if err := write(ws, AdminMessage{Type: "initial_data", Data: initialData{
		Devices:     devices,
		Connections: viewsOf(s.svc.ListActiveConnections()),
	}}); err != nil {
		log.Warn("http: admin write", "err", err)
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case e := <-events:
			msg := AdminMessage{Type: "connections", Data: connectionsData{
				Event:       e.Type.String(),
				DeviceID:    e.DeviceID,
				Status:      e.Status,
				Connections: viewsOf(s.svc.ListActiveConnections()),
			}}
			if err := write(ws, msg); err != nil {
				log.Warn("http: admin write", "err", err)
				return
			}
		}
	}
}

func write(ws *websocket.Conn, msg AdminMessage) error {
	ws.SetWriteDeadline(time.Now().Add(adminWriteTimeout))
	return ws.WriteJSON(msg)
}
