// Package connmgr owns the live connections to assistive devices.
//
// A Manager keeps the authoritative table of live connections and drives
// each device through OFFLINE, CONNECTING, ONLINE and ERROR. Connect,
// Disconnect and Delete for the same device id are serialized by a per-id
// lock; different devices never contend with each other. The device record
// status is kept in step with the table through the record store's atomic
// read-modify-write.
package connmgr

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/haivivi/t140cast/pkg/device"
	"github.com/haivivi/t140cast/pkg/metrics"
	"github.com/haivivi/t140cast/pkg/t140"
)

// Defaults are used when a device does not set its own preferences.
type Defaults struct {
	CharRateLimit       int
	BackspaceProcessing bool
	HandshakeTimeout    time.Duration
}

// DefaultDefaults mirrors the stock T.140 configuration.
var DefaultDefaults = Defaults{
	CharRateLimit:       30,
	BackspaceProcessing: true,
	HandshakeTimeout:    t140.DefaultHandshakeTimeout,
}

// Manager is the connection manager. Create one per process with New and
// call Shutdown before exit.
type Manager struct {
	store    device.Store
	factory  t140.Factory
	defaults Defaults
	log      *slog.Logger
	metrics  *metrics.Metrics
	now      func() time.Time

	locks keyedMutex

	mu   sync.RWMutex
	live map[string]*Connection

	subMu sync.Mutex
	subID int
	subs  map[int]func(Event)
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.log = l }
}

// WithMetrics records connection metrics.
func WithMetrics(mt *metrics.Metrics) Option {
	return func(m *Manager) { m.metrics = mt }
}

// WithDefaults overrides DefaultDefaults.
func WithDefaults(d Defaults) Option {
	return func(m *Manager) { m.defaults = d }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// New creates a Manager over store that opens transports with factory.
func New(store device.Store, factory t140.Factory, opts ...Option) *Manager {
	m := &Manager{
		store:    store,
		factory:  factory,
		defaults: DefaultDefaults,
		log:      slog.Default(),
		now:      time.Now,
		live:     make(map[string]*Connection),
		subs:     make(map[int]func(Event)),
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Defaults returns the effective defaults.
func (m *Manager) Defaults() Defaults {
	return m.defaults
}

// Store returns the record store.
func (m *Manager) Store() device.Store {
	return m.store
}

// EndpointFor maps a record to the transport endpoint for its protocol.
func EndpointFor(r *device.Record, d Defaults) (t140.Endpoint, error) {
	switch r.Protocol {
	case device.ProtocolWebSocket:
		return t140.WebSocketEndpoint{
			URL:              "ws://" + r.Address.String(),
			HandshakeTimeout: d.HandshakeTimeout,
		}, nil
	case device.ProtocolRTP:
		return t140.RTPEndpoint{
			Host:              r.Host,
			Port:              r.Port,
			CharRateLimit:     r.Settings.RateLimit(d.CharRateLimit),
			ProcessBackspaces: r.Settings.Backspaces(d.BackspaceProcessing),
		}, nil
	default:
		return nil, device.Errorf(device.ReasonUnsupportedProtocol, r.ID, "protocol %v", r.Protocol)
	}
}

// Connect opens a transport to the device and records it as ONLINE.
//
// If the device already has a live connection it is returned unchanged.
// A transport failure leaves the device in ERROR and returns an error
// matching device.ErrTransportConstructionFailed; calling Connect again
// retries.
func (m *Manager) Connect(ctx context.Context, id string) (*Connection, error) {
	unlock := m.locks.lock(id)
	defer unlock()

	if c, ok := m.Connection(id); ok {
		m.metrics.Connected(c.Device.Protocol.String(), "existing")
		return c, nil
	}

	rec, err := m.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	ep, err := EndpointFor(rec, m.defaults)
	if err != nil {
		return nil, err
	}
	log := m.log.With("device_id", id, "protocol", rec.Protocol.String())

	if _, err := m.store.Update(ctx, id, setStatus(device.StatusConnecting)); err != nil {
		return nil, fmt.Errorf("connmgr: mark connecting: %w", err)
	}

	tr, err := m.factory.Open(ctx, ep)
	if err != nil {
		log.Error("connmgr: transport construction failed", "err", err)
		m.metrics.Connected(rec.Protocol.String(), "error")
		if _, uerr := m.store.Update(context.WithoutCancel(ctx), id, setStatus(device.StatusError)); uerr != nil {
			log.Warn("connmgr: mark error", "err", uerr)
		}
		m.publish(Event{Type: EventFailed, DeviceID: id, Status: device.StatusError, Err: err})
		return nil, device.Wrap(device.ReasonTransportConstructionFailed, id, err)
	}

	now := m.now()
	snap := rec.Clone()
	snap.Status = device.StatusOnline
	snap.LastConnected = &now
	conn := &Connection{
		Device:            snap,
		Transport:         tr,
		Status:            device.StatusOnline,
		ProcessBackspaces: rec.Settings.Backspaces(m.defaults.BackspaceProcessing),
		ConnectedAt:       now,
	}
	conn.cancelEvents = tr.Subscribe(func(e t140.Event) {
		if e.Type == t140.EventClose {
			go m.dropped(id, conn)
		}
	})

	m.mu.Lock()
	m.live[id] = conn
	m.mu.Unlock()

	if _, err := m.store.Update(ctx, id, func(r *device.Record) error {
		r.Status = device.StatusOnline
		r.LastConnected = &now
		return nil
	}); err != nil {
		// The record and the table must agree; undo the insert.
		m.mu.Lock()
		delete(m.live, id)
		m.mu.Unlock()
		conn.cancelEvents()
		if cerr := tr.Close(); cerr != nil {
			log.Warn("connmgr: close after failed status write", "err", cerr)
		}
		if _, uerr := m.store.Update(context.WithoutCancel(ctx), id, setStatus(device.StatusError)); uerr != nil {
			log.Warn("connmgr: mark error", "err", uerr)
		}
		m.metrics.Connected(rec.Protocol.String(), "error")
		return nil, fmt.Errorf("connmgr: mark online: %w", err)
	}

	log.Info("connmgr: connected", "name", rec.Name)
	m.metrics.Connected(rec.Protocol.String(), "ok")
	m.publish(Event{Type: EventConnected, DeviceID: id, Status: device.StatusOnline})
	return conn.clone(), nil
}

// Disconnect closes the device's transport and removes its connection.
// It reports false when there was no live connection. Transport close
// errors are logged and never keep the connection in the table.
func (m *Manager) Disconnect(ctx context.Context, id string) (bool, error) {
	unlock := m.locks.lock(id)
	defer unlock()

	conn, ok := m.take(id)
	if !ok {
		m.log.Warn("connmgr: no active connection", "device_id", id)
		return false, nil
	}
	return true, m.finishDisconnect(ctx, conn, EventDisconnected)
}

// dropped handles a transport that closed without Disconnect. It only acts
// if conn is still the live connection for id.
func (m *Manager) dropped(id string, conn *Connection) {
	unlock := m.locks.lock(id)
	defer unlock()

	m.mu.Lock()
	if m.live[id] != conn {
		m.mu.Unlock()
		return
	}
	delete(m.live, id)
	m.mu.Unlock()

	m.log.Warn("connmgr: transport closed by peer", "device_id", id)
	if err := m.finishDisconnect(context.Background(), conn, EventDropped); err != nil {
		m.log.Warn("connmgr: finish dropped connection", "device_id", id, "err", err)
	}
}

// take removes and returns the live connection for id.
func (m *Manager) take(id string) (*Connection, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	conn, ok := m.live[id]
	if ok {
		delete(m.live, id)
	}
	return conn, ok
}

// finishDisconnect closes a connection already removed from the table and
// marks its record OFFLINE. Callers hold the device lock.
func (m *Manager) finishDisconnect(ctx context.Context, conn *Connection, typ EventType) error {
	id := conn.DeviceID()
	if conn.cancelEvents != nil {
		conn.cancelEvents()
	}
	cerr := conn.Transport.Close()
	if cerr != nil {
		m.log.Warn("connmgr: transport close failed", "device_id", id, "err", cerr)
	}
	now := m.now()
	conn.Status = device.StatusOffline
	conn.DisconnectedAt = &now
	m.metrics.Disconnected(cerr)

	_, err := m.store.Update(ctx, id, setStatus(device.StatusOffline))
	if errors.Is(err, device.ErrNotFound) {
		err = nil
	}
	m.log.Info("connmgr: disconnected", "device_id", id, "name", conn.Device.Name)
	m.publish(Event{Type: typ, DeviceID: id, Status: device.StatusOffline})
	if err != nil {
		return fmt.Errorf("connmgr: mark offline: %w", err)
	}
	return nil
}

// Delete disconnects the device if it is live and then removes its record.
func (m *Manager) Delete(ctx context.Context, id string) error {
	unlock := m.locks.lock(id)
	defer unlock()

	if _, err := m.store.Get(ctx, id); err != nil {
		return err
	}
	if conn, ok := m.take(id); ok {
		if err := m.finishDisconnect(ctx, conn, EventDisconnected); err != nil {
			m.log.Warn("connmgr: disconnect before delete", "device_id", id, "err", err)
		}
	}
	if err := m.store.Delete(ctx, id); err != nil {
		return err
	}
	m.log.Info("connmgr: deleted", "device_id", id)
	return nil
}

// Create validates spec and stores a new OFFLINE record.
func (m *Manager) Create(ctx context.Context, spec device.Spec) (*device.Record, error) {
	r, err := device.New(spec, m.now())
	if err != nil {
		return nil, err
	}
	if err := m.store.Create(ctx, r); err != nil {
		return nil, err
	}
	m.log.Info("connmgr: device added", "device_id", r.ID, "name", r.Name)
	return r, nil
}

// Update applies patch to the record. Status, id and createdAt cannot be
// changed this way.
func (m *Manager) Update(ctx context.Context, id string, patch device.Patch) (*device.Record, error) {
	unlock := m.locks.lock(id)
	defer unlock()
	return m.store.Update(ctx, id, patch.Apply)
}

// Get returns the device record.
func (m *Manager) Get(ctx context.Context, id string) (*device.Record, error) {
	return m.store.Get(ctx, id)
}

// List returns all device records.
func (m *Manager) List(ctx context.Context) ([]*device.Record, error) {
	return m.store.List(ctx)
}

// Connection returns a copy of the live connection for id.
func (m *Manager) Connection(id string) (*Connection, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.live[id]
	if !ok {
		return nil, false
	}
	return c.clone(), true
}

// ActiveConnections returns copies of all live connections, oldest first.
func (m *Manager) ActiveConnections() []*Connection {
	m.mu.RLock()
	out := make([]*Connection, 0, len(m.live))
	for _, c := range m.live {
		out = append(out, c.clone())
	}
	m.mu.RUnlock()
	slices.SortFunc(out, func(a, b *Connection) int {
		if c := a.ConnectedAt.Compare(b.ConnectedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.DeviceID(), b.DeviceID())
	})
	return out
}

// Recover resets records left ONLINE or CONNECTING by a previous process.
// Connections do not survive a restart, so those statuses are stale.
func (m *Manager) Recover(ctx context.Context) (int, error) {
	recs, err := m.store.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("connmgr: recover: %w", err)
	}
	n := 0
	for _, r := range recs {
		if !r.Status.Stale() {
			continue
		}
		if _, live := m.Connection(r.ID); live {
			continue
		}
		unlock := m.locks.lock(r.ID)
		_, err := m.store.Update(ctx, r.ID, func(r *device.Record) error {
			if r.Status.Stale() {
				r.Status = device.StatusOffline
			}
			return nil
		})
		unlock()
		if err != nil && !errors.Is(err, device.ErrNotFound) {
			return n, fmt.Errorf("connmgr: recover %s: %w", r.ID, err)
		}
		n++
	}
	if n > 0 {
		m.log.Info("connmgr: reset stale device status", "count", n)
	}
	return n, nil
}

// Shutdown disconnects every live connection concurrently.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.RLock()
	ids := make([]string, 0, len(m.live))
	for id := range m.live {
		ids = append(ids, id)
	}
	m.mu.RUnlock()

	var g errgroup.Group
	for _, id := range ids {
		g.Go(func() error {
			_, err := m.Disconnect(ctx, id)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("connmgr: shutdown: %w", err)
	}
	m.log.Info("connmgr: all connections closed", "count", len(ids))
	return nil
}

// Subscribe registers fn for lifecycle events. fn must not block.
func (m *Manager) Subscribe(fn func(Event)) (cancel func()) {
	m.subMu.Lock()
	defer m.subMu.Unlock()
	id := m.subID
	m.subID++
	m.subs[id] = fn
	return func() {
		m.subMu.Lock()
		delete(m.subs, id)
		m.subMu.Unlock()
	}
}

func (m *Manager) publish(e Event) {
	m.subMu.Lock()
	fns := make([]func(Event), 0, len(m.subs))
	for _, fn := range m.subs {
		fns = append(fns, fn)
	}
	m.subMu.Unlock()
	for _, fn := range fns {
		fn(e)
	}
}

func setStatus(s device.Status) device.UpdateFunc {
	return func(r *device.Record) error {
		r.Status = s
		return nil
	}
}
