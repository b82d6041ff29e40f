package repository

import (
	"errors"
	"fmt"
	"sort"

	"ocw-node/db"
	"ocw-node/indexing"
	"ocw-node/models"
)

var ErrRecordNotFound = errors.New("index record not found")

// IndexRepositoryInterface abstracts the node-local index from the worker and
// the ledger's indexing call. It is advisory: nothing relies on it agreeing
// with ledger state.
type IndexRepositoryInterface interface {
	PutRecord(key []byte, rec models.ReconciliationRecord) error
	GetRecord(key []byte) (*models.ReconciliationRecord, error)
}

// IndexedRecord pairs a record with the height its key was derived from.
type IndexedRecord struct {
	Height models.BlockNumber          `json:"height"`
	Record models.ReconciliationRecord `json:"record"`
}

// IndexRepository implements IndexRepositoryInterface on LevelDB.
type IndexRepository struct {
	db *db.LevelDB
}

// NewIndexRepository creates and returns a new IndexRepository instance
func NewIndexRepository(ldb *db.LevelDB) *IndexRepository {
	return &IndexRepository{db: ldb}
}

// PutRecord creates or overwrites the record stored under key.
func (r *IndexRepository) PutRecord(key []byte, rec models.ReconciliationRecord) error {
	data, err := indexing.EncodeRecord(rec)
	if err != nil {
		return err
	}
	if err := r.db.Put(key, data); err != nil {
		return fmt.Errorf("put index record: %w", err)
	}
	return nil
}

// GetRecord returns the last locally written record for key.
func (r *IndexRepository) GetRecord(key []byte) (*models.ReconciliationRecord, error) {
	data, err := r.db.Get(key)
	if errors.Is(err, db.ErrNotFound) {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get index record: %w", err)
	}
	return indexing.DecodeRecord(data)
}

// ListRecords returns up to limit records, most recent height first. Keys
// carry the height little-endian, so key order says nothing about recency and
// the whole namespace is read before sorting.
func (r *IndexRepository) ListRecords(limit int) ([]IndexedRecord, error) {
	iter := r.db.NewIterator(indexing.KeyPrefix())
	defer iter.Release()

	var records []IndexedRecord
	for iter.Next() {
		height, err := indexing.HeightFromKey(iter.Key())
		if err != nil {
			return nil, err
		}
		rec, err := indexing.DecodeRecord(iter.Value())
		if err != nil {
			return nil, err
		}
		records = append(records, IndexedRecord{Height: height, Record: *rec})
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("list index records: %w", err)
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].Height > records[j].Height
	})
	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}
