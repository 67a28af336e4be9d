package pos

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.etcd.io/bbolt"
)

var (
	outletsBucket  = []byte("outlets")
	salesBucket    = []byte("sales")
	billsBucket    = []byte("bills")
	requestsBucket = []byte("requests")
)

// ErrNotFound is returned when a record does not exist
var ErrNotFound = errors.New("not found")

// DB defines the interface for database operations.
// Writes honour ctx: a write whose context ends before commit is rolled back.
type DB interface {
	// CreateOutlet stores a new outlet. When requestID was already used for an
	// outlet, the outlet stored by that request is returned instead.
	CreateOutlet(ctx context.Context, requestID string, outlet *Outlet) (*Outlet, error)

	// GetOutlet retrieves an outlet by ID
	GetOutlet(id string) (*Outlet, error)

	// ListOutlets returns all outlets
	ListOutlets() ([]*Outlet, error)

	// CreateSalesEntry stores a new sales entry, idempotent on requestID like CreateOutlet
	CreateSalesEntry(ctx context.Context, requestID string, entry *SalesEntry) (*SalesEntry, error)

	// ListSalesEntries returns the sales entries of an outlet
	ListSalesEntries(outletID string) ([]*SalesEntry, error)

	// SaveBill creates or replaces a bill
	SaveBill(ctx context.Context, bill *Bill) error

	// UpdateBill applies fn to the stored bill and saves the result in one
	// transaction. When fn returns an error nothing is written.
	UpdateBill(ctx context.Context, id string, fn func(*Bill) error) (*Bill, error)

	// GetBill retrieves a bill by ID
	GetBill(id string) (*Bill, error)

	// ListBills returns the bills of an outlet
	ListBills(outletID string) ([]*Bill, error)

	// Close closes the database connection
	Close() error
}

// BoltDB implements the DB interface using BoltDB
type BoltDB struct {
	db *bbolt.DB
}

// NewBoltDB creates a new BoltDB instance
func NewBoltDB(path string) (*BoltDB, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening boltdb: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{outletsBucket, salesBucket, billsBucket, requestsBucket} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating buckets: %w", err)
	}

	return &BoltDB{db: db}, nil
}

// CreateOutlet stores a new outlet
func (b *BoltDB) CreateOutlet(ctx context.Context, requestID string, outlet *Outlet) (*Outlet, error) {
	existing, err := b.createOnce(ctx, outletsBucket, requestID, outlet.ID, outlet)
	if err != nil {
		return nil, fmt.Errorf("creating outlet: %w", err)
	}
	if existing != "" {
		return b.GetOutlet(existing)
	}
	return outlet, nil
}

// GetOutlet retrieves an outlet by ID
func (b *BoltDB) GetOutlet(id string) (*Outlet, error) {
	var outlet Outlet
	if err := b.get(outletsBucket, id, &outlet); err != nil {
		return nil, fmt.Errorf("outlet %s: %w", id, err)
	}
	return &outlet, nil
}

// ListOutlets returns all outlets
func (b *BoltDB) ListOutlets() ([]*Outlet, error) {
	return listRecords[Outlet](b.db, outletsBucket, nil)
}

// CreateSalesEntry stores a new sales entry
func (b *BoltDB) CreateSalesEntry(ctx context.Context, requestID string, entry *SalesEntry) (*SalesEntry, error) {
	existing, err := b.createOnce(ctx, salesBucket, requestID, entry.ID, entry)
	if err != nil {
		return nil, fmt.Errorf("creating sales entry: %w", err)
	}
	if existing == "" {
		return entry, nil
	}
	var stored SalesEntry
	if err := b.get(salesBucket, existing, &stored); err != nil {
		return nil, fmt.Errorf("sales entry %s: %w", existing, err)
	}
	return &stored, nil
}

// ListSalesEntries returns the sales entries of an outlet
func (b *BoltDB) ListSalesEntries(outletID string) ([]*SalesEntry, error) {
	return listRecords(b.db, salesBucket, func(e *SalesEntry) bool {
		return e.OutletID == outletID
	})
}

// SaveBill creates or replaces a bill
func (b *BoltDB) SaveBill(ctx context.Context, bill *Bill) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		data, err := json.Marshal(bill)
		if err != nil {
			return fmt.Errorf("marshaling bill: %w", err)
		}
		if err := tx.Bucket(billsBucket).Put([]byte(bill.ID), data); err != nil {
			return err
		}
		return ctx.Err()
	})
}

// UpdateBill reads, changes and writes a bill inside a single update transaction
func (b *BoltDB) UpdateBill(ctx context.Context, id string, fn func(*Bill) error) (*Bill, error) {
	var bill Bill
	err := b.db.Update(func(tx *bbolt.Tx) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		bucket := tx.Bucket(billsBucket)
		data := bucket.Get([]byte(id))
		if data == nil {
			return fmt.Errorf("bill %s: %w", id, ErrNotFound)
		}
		if err := json.Unmarshal(data, &bill); err != nil {
			return fmt.Errorf("unmarshaling bill %s: %w", id, err)
		}
		if err := fn(&bill); err != nil {
			return err
		}
		data, err := json.Marshal(&bill)
		if err != nil {
			return fmt.Errorf("marshaling bill: %w", err)
		}
		if err := bucket.Put([]byte(id), data); err != nil {
			return err
		}
		return ctx.Err()
	})
	if err != nil {
		return nil, err
	}
	return &bill, nil
}

// GetBill retrieves a bill by ID
func (b *BoltDB) GetBill(id string) (*Bill, error) {
	var bill Bill
	if err := b.get(billsBucket, id, &bill); err != nil {
		return nil, fmt.Errorf("bill %s: %w", id, err)
	}
	return &bill, nil
}

// ListBills returns the bills of an outlet
func (b *BoltDB) ListBills(outletID string) ([]*Bill, error) {
	return listRecords(b.db, billsBucket, func(bill *Bill) bool {
		return bill.OutletID == outletID
	})
}

// Close closes the database connection
func (b *BoltDB) Close() error {
	return b.db.Close()
}

// createOnce puts v under id in bucket and records requestID against it in one
// transaction. If requestID is already recorded, nothing is written and the id
// stored for it is returned. Returning ctx.Err() from the transaction rolls it back.
func (b *BoltDB) createOnce(ctx context.Context, bucket []byte, requestID, id string, v any) (string, error) {
	var existing string
	err := b.db.Update(func(tx *bbolt.Tx) error {
		if err := ctx.Err(); err != nil {
			return err
		}

		requests := tx.Bucket(requestsBucket)
		key := append(append([]byte{}, bucket...), '/')
		key = append(key, requestID...)
		if requestID != "" {
			if prev := requests.Get(key); prev != nil {
				existing = string(prev)
				return nil
			}
		}

		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("marshaling %s record: %w", bucket, err)
		}
		if err := tx.Bucket(bucket).Put([]byte(id), data); err != nil {
			return err
		}
		if requestID != "" {
			if err := requests.Put(key, []byte(id)); err != nil {
				return err
			}
		}
		return ctx.Err()
	})
	if err != nil {
		return "", err
	}
	return existing, nil
}

func (b *BoltDB) get(bucket []byte, id string, v any) error {
	return b.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucket).Get([]byte(id))
		if data == nil {
			return ErrNotFound
		}
		return json.Unmarshal(data, v)
	})
}

// listRecords decodes every record of bucket, keeping those keep accepts (all when keep is nil)
func listRecords[T any](db *bbolt.DB, bucket []byte, keep func(*T) bool) ([]*T, error) {
	records := make([]*T, 0)
	err := db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucket).ForEach(func(k, v []byte) error {
			var record T
			if err := json.Unmarshal(v, &record); err != nil {
				return fmt.Errorf("unmarshaling %s record %s: %w", bucket, k, err)
			}
			if keep == nil || keep(&record) {
				records = append(records, &record)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}
