package device

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/haivivi/t140cast/pkg/storage"
)

// DefaultDocumentName is the document the device collection is kept in.
const DefaultDocumentName = "devices.json"

// Document is a Store that keeps the whole collection as one JSON document
// in a storage.Store (a local file or an S3 object). The collection is
// loaded once and every mutation writes the document back before returning.
type Document struct {
	blobs storage.Store
	name  string

	mu      sync.Mutex
	records map[string]*Record
}

type document struct {
	Devices []*Record `json:"devices"`
}

// OpenDocument loads the named document from blobs. A missing document is
// treated as an empty collection.
func OpenDocument(ctx context.Context, blobs storage.Store, name string) (*Document, error) {
	if name == "" {
		name = DefaultDocumentName
	}
	d := &Document{blobs: blobs, name: name, records: make(map[string]*Record)}
	data, err := blobs.Get(ctx, name)
	if storage.IsNotExist(err) {
		return d, nil
	}
	if err != nil {
		return nil, fmt.Errorf("device: load %s: %w", name, err)
	}
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("device: parse %s: %w", name, err)
	}
	for _, r := range doc.Devices {
		d.records[r.ID] = r
	}
	return d, nil
}

// flush writes the collection. Callers hold d.mu.
func (d *Document) flush(ctx context.Context) error {
	doc := document{Devices: make([]*Record, 0, len(d.records))}
	for _, r := range d.records {
		doc.Devices = append(doc.Devices, r)
	}
	sortRecords(doc.Devices)
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("device: encode %s: %w", d.name, err)
	}
	if err := d.blobs.Put(ctx, d.name, data); err != nil {
		return fmt.Errorf("device: save %s: %w", d.name, err)
	}
	return nil
}

// Get returns a copy of the record for id.
func (d *Document) Get(_ context.Context, id string) (*Record, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	r, ok := d.records[id]
	if !ok {
		return nil, Wrap(ReasonNotFound, id, nil)
	}
	return r.Clone(), nil
}

// List returns copies of all records ordered by creation time.
func (d *Document) List(_ context.Context) ([]*Record, error) {
	d.mu.Lock()
	out := make([]*Record, 0, len(d.records))
	for _, r := range d.records {
		out = append(out, r.Clone())
	}
	d.mu.Unlock()
	sortRecords(out)
	return out, nil
}

// Create adds r and writes the document. r is dropped again if the
// write fails.
func (d *Document) Create(ctx context.Context, r *Record) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.records[r.ID]; ok {
		return Errorf(ReasonValidationFailed, r.ID, "id already exists")
	}
	d.records[r.ID] = r.Clone()
	if err := d.flush(ctx); err != nil {
		delete(d.records, r.ID)
		return err
	}
	return nil
}

// Update applies fn under the document lock and writes the result through.
func (d *Document) Update(ctx context.Context, id string, fn UpdateFunc) (*Record, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	cur, ok := d.records[id]
	if !ok {
		return nil, Wrap(ReasonNotFound, id, nil)
	}
	next, err := applyUpdate(cur, fn)
	if err != nil {
		return nil, err
	}
	d.records[id] = next
	if err := d.flush(ctx); err != nil {
		d.records[id] = cur
		return nil, err
	}
	return next.Clone(), nil
}

// Delete removes the record and writes the document.
func (d *Document) Delete(ctx context.Context, id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	cur, ok := d.records[id]
	if !ok {
		return Wrap(ReasonNotFound, id, nil)
	}
	delete(d.records, id)
	if err := d.flush(ctx); err != nil {
		d.records[id] = cur
		return err
	}
	return nil
}

// Close is a no-op; every mutation is already written.
func (d *Document) Close() error { return nil }

var _ Store = (*Document)(nil)
