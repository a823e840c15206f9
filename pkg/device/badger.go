package device

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/vmihailenco/msgpack/v5"
)

const badgerPrefix = "device:"

// Badger is a Store backed by BadgerDB. Records are msgpack encoded under
// "device:<id>" keys; Update runs inside a single read-write transaction.
type Badger struct {
	db *badger.DB
}

// BadgerOptions configures the Badger store.
type BadgerOptions struct {
	// Dir is the data directory. Required unless InMemory is set.
	Dir string

	// InMemory runs BadgerDB without disk persistence.
	InMemory bool

	// Logger receives badger warnings and errors. Defaults to slog.Default().
	Logger *slog.Logger
}

// OpenBadger opens (or creates) a Badger-backed Store.
func OpenBadger(opts BadgerOptions) (*Badger, error) {
	if !opts.InMemory && opts.Dir == "" {
		return nil, errors.New("device: BadgerOptions.Dir is required for on-disk mode")
	}
	dbOpts := badger.DefaultOptions(opts.Dir)
	if opts.InMemory {
		dbOpts = dbOpts.WithInMemory(true)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	dbOpts = dbOpts.WithLogger(badgerLogger{logger.With("component", "badger")})
	db, err := badger.Open(dbOpts)
	if err != nil {
		return nil, fmt.Errorf("device: open badger: %w", err)
	}
	return &Badger{db: db}, nil
}

func badgerKey(id string) []byte {
	return []byte(badgerPrefix + id)
}

func getRecord(txn *badger.Txn, id string) (*Record, error) {
	item, err := txn.Get(badgerKey(id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, Wrap(ReasonNotFound, id, nil)
	}
	if err != nil {
		return nil, err
	}
	var r Record
	err = item.Value(func(val []byte) error {
		return msgpack.Unmarshal(val, &r)
	})
	if err != nil {
		return nil, fmt.Errorf("device: decode %s: %w", id, err)
	}
	return &r, nil
}

func setRecord(txn *badger.Txn, r *Record) error {
	val, err := msgpack.Marshal(r)
	if err != nil {
		return fmt.Errorf("device: encode %s: %w", r.ID, err)
	}
	return txn.Set(badgerKey(r.ID), val)
}

// Get decodes the record for id.
func (b *Badger) Get(_ context.Context, id string) (*Record, error) {
	var r *Record
	err := b.db.View(func(txn *badger.Txn) error {
		var err error
		r, err = getRecord(txn, id)
		return err
	})
	return r, err
}

// List decodes all records ordered by creation time.
func (b *Badger) List(_ context.Context) ([]*Record, error) {
	var out []*Record
	err := b.db.View(func(txn *badger.Txn) error {
		prefix := []byte(badgerPrefix)
		iterOpts := badger.DefaultIteratorOptions
		iterOpts.Prefix = prefix
		it := txn.NewIterator(iterOpts)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var r Record
			if err := it.Item().Value(func(val []byte) error {
				return msgpack.Unmarshal(val, &r)
			}); err != nil {
				return fmt.Errorf("device: decode %s: %w", it.Item().Key(), err)
			}
			out = append(out, &r)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sortRecords(out)
	return out, nil
}

// Create writes r unless the id already exists.
func (b *Badger) Create(_ context.Context, r *Record) error {
	return b.db.Update(func(txn *badger.Txn) error {
		_, err := txn.Get(badgerKey(r.ID))
		if err == nil {
			return Errorf(ReasonValidationFailed, r.ID, "id already exists")
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		return setRecord(txn, r)
	})
}

// Update retries on transaction conflicts so that concurrent writers to the
// same record never lose an update.
func (b *Badger) Update(_ context.Context, id string, fn UpdateFunc) (*Record, error) {
	for {
		var next *Record
		err := b.db.Update(func(txn *badger.Txn) error {
			cur, err := getRecord(txn, id)
			if err != nil {
				return err
			}
			next, err = applyUpdate(cur, fn)
			if err != nil {
				return err
			}
			return setRecord(txn, next)
		})
		if errors.Is(err, badger.ErrConflict) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return next, nil
	}
}

// Delete removes the record for id.
func (b *Badger) Delete(_ context.Context, id string) error {
	return b.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(badgerKey(id)); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return Wrap(ReasonNotFound, id, nil)
			}
			return err
		}
		return txn.Delete(badgerKey(id))
	})
}

// Close closes the database.
func (b *Badger) Close() error {
	return b.db.Close()
}

// badgerLogger forwards badger warnings and errors to slog and drops the
// chatty info and debug output.
type badgerLogger struct {
	log *slog.Logger
}

func (l badgerLogger) Errorf(f string, v ...any)   { l.log.Error(fmt.Sprintf(f, v...)) }
func (l badgerLogger) Warningf(f string, v ...any) { l.log.Warn(fmt.Sprintf(f, v...)) }
func (badgerLogger) Infof(string, ...any)          {}
func (badgerLogger) Debugf(string, ...any)         {}

var _ Store = (*Badger)(nil)
