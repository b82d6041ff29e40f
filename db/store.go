package db

import "errors"

var (
	ErrClosed   = errors.New("db: database is closed")
	ErrNotFound = errors.New("db: key not found")
)

// KVStore is the byte-oriented key-value access shared by the node-local
// index (LevelDB) and the ledger state (Pebble).
type KVStore interface {
	Get(key []byte) ([]byte, error)
	Put(key, value []byte) error
	Close() error
}
