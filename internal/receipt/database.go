package receipt

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"go.etcd.io/bbolt"
)

const (
	receiptBucketName = "receipts"
	// billIDBucketName maps bill id -> receipt ID for duplicate detection
	billIDBucketName = "bill_ids"
)

// DB defines the interface for database operations
type DB interface {
	// SaveReceipt saves a receipt and indexes its bill id
	SaveReceipt(receipt *Receipt) error

	// GetReceipt retrieves a receipt by ID
	GetReceipt(id string) (*Receipt, error)

	// ListReceipts returns all receipts
	ListReceipts() ([]*Receipt, error)

	// DeleteReceipt removes a receipt and its bill id index entry
	DeleteReceipt(id string) error

	// ReceiptExists reports whether a receipt with this exact bill id is stored
	ReceiptExists(billID string) (bool, error)

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
		for _, name := range []string{receiptBucketName, billIDBucketName} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
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

// OpenBoltDBReadOnly opens an existing database without creating or
// changing anything. A missing file is an error.
func OpenBoltDBReadOnly(path string) (*BoltDB, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("opening boltdb: %w", err)
	}

	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second, ReadOnly: true})
	if err != nil {
		return nil, fmt.Errorf("opening boltdb: %w", err)
	}

	err = db.View(func(tx *bbolt.Tx) error {
		for _, name := range []string{receiptBucketName, billIDBucketName} {
			if tx.Bucket([]byte(name)) == nil {
				return fmt.Errorf("bucket %s not found", name)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("%s is not a receipt database: %w", path, err)
	}

	return &BoltDB{db: db}, nil
}

func getReceipt(tx *bbolt.Tx, id string) (*Receipt, error) {
	data := tx.Bucket([]byte(receiptBucketName)).Get([]byte(id))
	if data == nil {
		return nil, fmt.Errorf("%w: %s", ErrReceiptNotFound, id)
	}
	var receipt Receipt
	if err := json.Unmarshal(data, &receipt); err != nil {
		return nil, fmt.Errorf("unmarshaling receipt: %w", err)
	}
	return &receipt, nil
}

// billIDKey returns the index key for a receipt. bbolt rejects empty keys,
// so receipts without a usable bill id are not indexed.
func billIDKey(receipt *Receipt) ([]byte, bool) {
	billID := receipt.BillID.String()
	if billID == "" {
		return nil, false
	}
	return []byte(billID), true
}

// unindex drops the bill id entry if it still points at receipt
func unindex(tx *bbolt.Tx, receipt *Receipt) error {
	key, ok := billIDKey(receipt)
	if !ok {
		return nil
	}
	index := tx.Bucket([]byte(billIDBucketName))
	if string(index.Get(key)) != receipt.ID {
		return nil
	}
	return index.Delete(key)
}

// SaveReceipt saves a receipt to the database
func (b *BoltDB) SaveReceipt(receipt *Receipt) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		if previous, err := getReceipt(tx, receipt.ID); err == nil {
			if err := unindex(tx, previous); err != nil {
				return fmt.Errorf("removing old bill id: %w", err)
			}
		}

		data, err := json.Marshal(receipt)
		if err != nil {
			return fmt.Errorf("marshaling receipt: %w", err)
		}
		if err := tx.Bucket([]byte(receiptBucketName)).Put([]byte(receipt.ID), data); err != nil {
			return err
		}

		key, ok := billIDKey(receipt)
		if !ok {
			return nil
		}
		return tx.Bucket([]byte(billIDBucketName)).Put(key, []byte(receipt.ID))
	})
}

// GetReceipt retrieves a receipt by ID
func (b *BoltDB) GetReceipt(id string) (*Receipt, error) {
	var receipt *Receipt
	err := b.db.View(func(tx *bbolt.Tx) error {
		var err error
		receipt, err = getReceipt(tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return receipt, nil
}

// ListReceipts returns all receipts
func (b *BoltDB) ListReceipts() ([]*Receipt, error) {
	receipts := make([]*Receipt, 0)
	err := b.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(receiptBucketName))
		return bucket.ForEach(func(k, v []byte) error {
			var receipt Receipt
			if err := json.Unmarshal(v, &receipt); err != nil {
				return fmt.Errorf("unmarshaling receipt: %w", err)
			}
			receipts = append(receipts, &receipt)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return receipts, nil
}

// DeleteReceipt removes a receipt from the database
func (b *BoltDB) DeleteReceipt(id string) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		receipt, err := getReceipt(tx, id)
		if err != nil {
			return err
		}
		if err := unindex(tx, receipt); err != nil {
			return fmt.Errorf("removing bill id: %w", err)
		}
		return tx.Bucket([]byte(receiptBucketName)).Delete([]byte(id))
	})
}

// ReceiptExists reports whether a receipt with billID is stored.
// Safe for concurrent use; bbolt allows many read transactions at once.
func (b *BoltDB) ReceiptExists(billID string) (bool, error) {
	if billID == "" {
		return false, nil
	}
	var exists bool
	err := b.db.View(func(tx *bbolt.Tx) error {
		exists = tx.Bucket([]byte(billIDBucketName)).Get([]byte(billID)) != nil
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("looking up bill id: %w", err)
	}
	return exists, nil
}

// Close closes the database connection
func (b *BoltDB) Close() error {
	return b.db.Close()
}
