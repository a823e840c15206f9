package httpapi

import (
	"fmt"
	"net/http"
	"time"

	"github.com/haivivi/t140cast/pkg/connmgr"
	"github.com/haivivi/t140cast/pkg/device"
)

// ConnectionView is the JSON shape of a live connection.
type ConnectionView struct {
	DeviceID       string          `json:"deviceId"`
	DeviceName     string          `json:"deviceName"`
	Status         device.Status   `json:"status"`
	Protocol       device.Protocol `json:"protocol"`
	ConnectedAt    time.Time       `json:"connectedAt"`
	DisconnectedAt *time.Time      `json:"disconnectedAt,omitempty"`
}

func viewOf(c *connmgr.Connection) ConnectionView {
	return ConnectionView{
		DeviceID:       c.DeviceID(),
		DeviceName:     c.Device.Name,
		Status:         c.Status,
		Protocol:       c.Device.Protocol,
		ConnectedAt:    c.ConnectedAt,
		DisconnectedAt: c.DisconnectedAt,
	}
}

func viewsOf(conns []*connmgr.Connection) []ConnectionView {
	out := make([]ConnectionView, len(conns))
	for i, c := range conns {
		out[i] = viewOf(c)
	}
	return out
}

func (s *Server) listDevices(w http.ResponseWriter, r *http.Request) {
	recs, err := s.svc.ListDevices(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if recs == nil {
		recs = []*device.Record{}
	}
	writeJSON(w, http.StatusOK, recs)
}

func (s *Server) getDevice(w http.ResponseWriter, r *http.Request) {
	rec, err := s.svc.GetDevice(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) createDevice(w http.ResponseWriter, r *http.Request) {
	var spec device.Spec
	if err := decode(w, r, createDeviceSchema, &spec); err != nil {
		s.writeError(w, r, err)
		return
	}
	rec, err := s.svc.CreateDevice(r.Context(), spec)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

func (s *Server) updateDevice(w http.ResponseWriter, r *http.Request) {
	var patch device.Patch
	if err := decode(w, r, updateDeviceSchema, &patch); err != nil {
		s.writeError(w, r, err)
		return
	}
	rec, err := s.svc.UpdateDevice(r.Context(), r.PathValue("id"), patch)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) deleteDevice(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.DeleteDevice(r.Context(), r.PathValue("id")); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) connect(w http.ResponseWriter, r *http.Request) {
	conn, err := s.svc.Connect(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message":     fmt.Sprintf("Connected to device: %s", conn.Device.Name),
		"status":      conn.Status,
		"connectedAt": conn.ConnectedAt,
	})
}

func (s *Server) disconnect(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	ok, err := s.svc.Disconnect(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if !ok {
		s.writeError(w, r, device.Errorf(device.ReasonNotConnected, id, "device is not connected"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Disconnected from device successfully"})
}

func (s *Server) activeConnections(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, viewsOf(s.svc.ListActiveConnections()))
}
