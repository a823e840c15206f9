package connmgr_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/haivivi/t140cast/pkg/connmgr"
	"github.com/haivivi/t140cast/pkg/device"
	"github.com/haivivi/t140cast/pkg/t140"
	"github.com/haivivi/t140cast/pkg/t140/t140test"
)

func newManager(t *testing.T, f *t140test.Factory) (*connmgr.Manager, device.Store) {
	t.Helper()
	store := device.NewMemory()
	m := connmgr.New(store, f, connmgr.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	t.Cleanup(func() { m.Shutdown(context.Background()) })
	return m, store
}

func addDevice(t *testing.T, m *connmgr.Manager, protocol string) *device.Record {
	t.Helper()
	r, err := m.Create(context.Background(), device.Spec{
		Name:     "Reader1",
		Type:     "visual",
		Host:     "10.0.0.5",
		Port:     5004,
		Protocol: protocol,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	return r
}

func status(t *testing.T, m *connmgr.Manager, id string) device.Status {
	t.Helper()
	r, err := m.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	return r.Status
}

func TestConnectRTP(t *testing.T) {
	f := &t140test.Factory{}
	m, _ := newManager(t, f)
	r := addDevice(t, m, "rtp")

	conn, err := m.Connect(context.Background(), r.ID)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if conn.Status != device.StatusOnline {
		t.Fatalf("connection status = %v", conn.Status)
	}
	if got := status(t, m, r.ID); got != device.StatusOnline {
		t.Fatalf("record status = %v, want online", got)
	}
	rec, _ := m.Get(context.Background(), r.ID)
	if rec.LastConnected == nil {
		t.Fatal("lastConnected not stamped")
	}
	if n := len(m.ActiveConnections()); n != 1 {
		t.Fatalf("active connections = %d, want 1", n)
	}

	ep, ok := f.Last().Endpoint.(t140.RTPEndpoint)
	if !ok {
		t.Fatalf("endpoint = %T, want RTPEndpoint", f.Last().Endpoint)
	}
	if ep.Host != "10.0.0.5" || ep.Port != 5004 || ep.CharRateLimit != 30 || !ep.ProcessBackspaces {
		t.Fatalf("endpoint = %+v, want defaults applied", ep)
	}
}

func TestEndpointForWebSocket(t *testing.T) {
	r := &device.Record{ID: "d", Protocol: device.ProtocolWebSocket, Address: device.Address{Host: "::1", Port: 8765}}
	ep, err := connmgr.EndpointFor(r, connmgr.DefaultDefaults)
	if err != nil {
		t.Fatalf("EndpointFor: %v", err)
	}
	ws := ep.(t140.WebSocketEndpoint)
	if ws.URL != "ws://[::1]:8765" {
		t.Fatalf("URL = %q", ws.URL)
	}
}

func TestEndpointForDeviceSettings(t *testing.T) {
	off := false
	r := &device.Record{
		ID:       "d",
		Protocol: device.ProtocolRTP,
		Address:  device.Address{Host: "h", Port: 1},
		Settings: device.Settings{CharacterRateLimit: 5, BackspaceProcessing: &off},
	}
	ep, _ := connmgr.EndpointFor(r, connmgr.DefaultDefaults)
	rtp := ep.(t140.RTPEndpoint)
	if rtp.CharRateLimit != 5 || rtp.ProcessBackspaces {
		t.Fatalf("endpoint = %+v, device settings must win", rtp)
	}
}

func TestEndpointForUnsupported(t *testing.T) {
	_, err := connmgr.EndpointFor(&device.Record{ID: "d"}, connmgr.DefaultDefaults)
	if !errors.Is(err, device.ErrUnsupportedProtocol) {
		t.Fatalf("err = %v", err)
	}
}

func TestConnectNotFound(t *testing.T) {
	m, _ := newManager(t, &t140test.Factory{})
	if _, err := m.Connect(context.Background(), "missing"); !errors.Is(err, device.ErrNotFound) {
		t.Fatalf("Connect = %v, want NotFound", err)
	}
}

func TestConnectIdempotent(t *testing.T) {
	f := &t140test.Factory{}
	m, _ := newManager(t, f)
	r := addDevice(t, m, "websocket")

	first, err := m.Connect(context.Background(), r.ID)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	second, err := m.Connect(context.Background(), r.ID)
	if err != nil {
		t.Fatalf("second Connect: %v", err)
	}
	if !first.ConnectedAt.Equal(second.ConnectedAt) {
		t.Fatal("second Connect must return the existing connection")
	}
	if f.Opens() != 1 {
		t.Fatalf("transports opened = %d, want 1", f.Opens())
	}
}

func TestConcurrentConnectSingleTransport(t *testing.T) {
	f := &t140test.Factory{Delay: 20 * time.Millisecond}
	m, _ := newManager(t, f)
	r := addDevice(t, m, "rtp")

	const n = 10
	var wg sync.WaitGroup
	conns := make([]*connmgr.Connection, n)
	errs := make([]error, n)
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			conns[i], errs[i] = m.Connect(context.Background(), r.ID)
		}()
	}
	wg.Wait()

	for i := range n {
		if errs[i] != nil {
			t.Fatalf("caller %d: %v", i, errs[i])
		}
		if !conns[i].ConnectedAt.Equal(conns[0].ConnectedAt) {
			t.Fatalf("caller %d saw a different connection", i)
		}
	}
	if f.Opens() != 1 {
		t.Fatalf("transports opened = %d, want exactly 1", f.Opens())
	}
	if len(m.ActiveConnections()) != 1 {
		t.Fatal("want exactly one live connection")
	}
}

// A slow connect on one device must not hold up another device.
func TestDifferentDevicesDoNotContend(t *testing.T) {
	f := &t140test.Factory{Delay: 300 * time.Millisecond}
	m, _ := newManager(t, f)
	a := addDevice(t, m, "rtp")
	b := addDevice(t, m, "rtp")

	start := time.Now()
	var wg sync.WaitGroup
	for _, id := range []string{a.ID, b.ID} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := m.Connect(context.Background(), id); err != nil {
				t.Errorf("Connect %s: %v", id, err)
			}
		}()
	}
	wg.Wait()
	if elapsed := time.Since(start); elapsed > 550*time.Millisecond {
		t.Fatalf("two connects took %v, they were serialized", elapsed)
	}
}

func TestConnectFailureMarksError(t *testing.T) {
	f := &t140test.Factory{Err: errors.New("connection refused")}
	m, _ := newManager(t, f)
	r := addDevice(t, m, "websocket")

	var events []connmgr.Event
	m.Subscribe(func(e connmgr.Event) { events = append(events, e) })

	_, err := m.Connect(context.Background(), r.ID)
	if !errors.Is(err, device.ErrTransportConstructionFailed) {
		t.Fatalf("Connect = %v, want TransportConstructionFailed", err)
	}
	if got := status(t, m, r.ID); got != device.StatusError {
		t.Fatalf("status = %v, want error", got)
	}
	if _, ok := m.Connection(r.ID); ok {
		t.Fatal("failed connect must not insert a connection")
	}
	if len(events) != 1 || events[0].Type != connmgr.EventFailed {
		t.Fatalf("events = %v", events)
	}

	// Retry from ERROR.
	f.Err = nil
	if _, err := m.Connect(context.Background(), r.ID); err != nil {
		t.Fatalf("retry Connect: %v", err)
	}
	if got := status(t, m, r.ID); got != device.StatusOnline {
		t.Fatalf("status after retry = %v", got)
	}
}

func TestDisconnect(t *testing.T) {
	f := &t140test.Factory{}
	m, _ := newManager(t, f)
	r := addDevice(t, m, "rtp")
	if _, err := m.Connect(context.Background(), r.ID); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	ok, err := m.Disconnect(context.Background(), r.ID)
	if err != nil || !ok {
		t.Fatalf("Disconnect = %v, %v", ok, err)
	}
	if _, live := m.Connection(r.ID); live {
		t.Fatal("connection still live")
	}
	if got := status(t, m, r.ID); got != device.StatusOffline {
		t.Fatalf("status = %v, want offline", got)
	}
	if !f.Last().Closed() {
		t.Fatal("transport not closed")
	}

	ok, err = m.Disconnect(context.Background(), r.ID)
	if ok || err != nil {
		t.Fatalf("Disconnect without connection = %v, %v; want false, nil", ok, err)
	}
}

func TestDisconnectSwallowsCloseError(t *testing.T) {
	f := &t140test.Factory{CloseErr: errors.New("socket refused to close")}
	m, _ := newManager(t, f)
	r := addDevice(t, m, "websocket")
	m.Connect(context.Background(), r.ID)

	ok, err := m.Disconnect(context.Background(), r.ID)
	if !ok || err != nil {
		t.Fatalf("Disconnect = %v, %v", ok, err)
	}
	if _, live := m.Connection(r.ID); live {
		t.Fatal("close failure must not keep the device online")
	}
	if got := status(t, m, r.ID); got != device.StatusOffline {
		t.Fatalf("status = %v", got)
	}
}

func TestDeleteDisconnectsFirst(t *testing.T) {
	f := &t140test.Factory{}
	m, store := newManager(t, f)
	r := addDevice(t, m, "rtp")
	m.Connect(context.Background(), r.ID)

	if err := m.Delete(context.Background(), r.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if !f.Last().Closed() {
		t.Fatal("transport must be closed before the record is removed")
	}
	if _, live := m.Connection(r.ID); live {
		t.Fatal("connection survived delete")
	}
	if _, err := store.Get(context.Background(), r.ID); !errors.Is(err, device.ErrNotFound) {
		t.Fatalf("record still present: %v", err)
	}
	if err := m.Delete(context.Background(), r.ID); !errors.Is(err, device.ErrNotFound) {
		t.Fatalf("second Delete = %v", err)
	}
}

func TestConcurrentConnectAndDelete(t *testing.T) {
	f := &t140test.Factory{Delay: 5 * time.Millisecond}
	m, _ := newManager(t, f)
	r := addDevice(t, m, "rtp")

	var wg sync.WaitGroup
	for range 5 {
		wg.Add(2)
		go func() {
			defer wg.Done()
			m.Connect(context.Background(), r.ID)
		}()
		go func() {
			defer wg.Done()
			m.Delete(context.Background(), r.ID)
		}()
	}
	wg.Wait()

	if _, err := m.Get(context.Background(), r.ID); !errors.Is(err, device.ErrNotFound) {
		t.Fatalf("record should be deleted, got %v", err)
	}
	if _, live := m.Connection(r.ID); live {
		t.Fatal("connection exists for a deleted record")
	}
	for _, tr := range f.Transports() {
		if !tr.Closed() {
			t.Fatal("orphaned transport left open")
		}
	}
}

func TestUpdateRejectsImmutable(t *testing.T) {
	m, _ := newManager(t, &t140test.Factory{})
	r := addDevice(t, m, "rtp")
	other := "other"
	if _, err := m.Update(context.Background(), r.ID, device.Patch{ID: &other}); !errors.Is(err, device.ErrValidationFailed) {
		t.Fatalf("Update = %v", err)
	}
	name := "Renamed"
	got, err := m.Update(context.Background(), r.ID, device.Patch{Name: &name})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if got.Name != name || got.ID != r.ID {
		t.Fatalf("updated = %+v", got)
	}
}

func TestActiveConnectionsIsSnapshot(t *testing.T) {
	m, _ := newManager(t, &t140test.Factory{})
	r := addDevice(t, m, "rtp")
	m.Connect(context.Background(), r.ID)

	snap := m.ActiveConnections()
	snap[0].Device.Name = "mutated"
	snap[0].Status = device.StatusError

	c, _ := m.Connection(r.ID)
	if c.Device.Name == "mutated" || c.Status != device.StatusOnline {
		t.Fatal("snapshot shares state with the live table")
	}
}

func TestDroppedTransportIsRemoved(t *testing.T) {
	f := &t140test.Factory{}
	m, _ := newManager(t, f)
	r := addDevice(t, m, "websocket")
	m.Connect(context.Background(), r.ID)

	events := make(chan connmgr.Event, 4)
	m.Subscribe(func(e connmgr.Event) { events <- e })
	f.Last().Drop()

	select {
	case e := <-events:
		if e.Type != connmgr.EventDropped || e.DeviceID != r.ID {
			t.Fatalf("event = %+v", e)
		}
	case <-time.After(time.Second):
		t.Fatal("no dropped event")
	}
	if _, live := m.Connection(r.ID); live {
		t.Fatal("dropped connection still live")
	}
	if got := status(t, m, r.ID); got != device.StatusOffline {
		t.Fatalf("status = %v", got)
	}
}

func TestRecover(t *testing.T) {
	m, store := newManager(t, &t140test.Factory{})
	ctx := context.Background()
	online := addDevice(t, m, "rtp")
	connecting := addDevice(t, m, "rtp")
	errored := addDevice(t, m, "rtp")
	for id, s := range map[string]device.Status{
		online.ID:     device.StatusOnline,
		connecting.ID: device.StatusConnecting,
		errored.ID:    device.StatusError,
	} {
		store.Update(ctx, id, func(r *device.Record) error {
			r.Status = s
			return nil
		})
	}

	n, err := m.Recover(ctx)
	if err != nil {
		t.Fatalf("Recover: %v", err)
	}
	if n != 2 {
		t.Fatalf("reset %d records, want 2", n)
	}
	if status(t, m, online.ID) != device.StatusOffline || status(t, m, connecting.ID) != device.StatusOffline {
		t.Fatal("stale statuses not reset")
	}
	if status(t, m, errored.ID) != device.StatusError {
		t.Fatal("error status should be kept")
	}
}

func TestShutdownClosesAll(t *testing.T) {
	f := &t140test.Factory{}
	m, _ := newManager(t, f)
	for range 3 {
		r := addDevice(t, m, "rtp")
		if _, err := m.Connect(context.Background(), r.ID); err != nil {
			t.Fatalf("Connect: %v", err)
		}
	}
	if err := m.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if n := len(m.ActiveConnections()); n != 0 {
		t.Fatalf("%d connections left", n)
	}
	for _, tr := range f.Transports() {
		if !tr.Closed() {
			t.Fatal("transport left open")
		}
	}
}
