// Package indexing owns the addressing and value format of the node-local
// index. The ledger's indexing call and the off-chain worker both derive keys
// here so readers and writers agree on where a height's records live.
package indexing

import (
	"bytes"
	"fmt"

	"github.com/ChainSafe/gossamer/pkg/scale"

	"ocw-node/models"
)

// Namespace prefixes the keys the off-chain worker writes, one per height.
const Namespace = "ocw_pricefeed::indexing"

// CallNamespace prefixes the keys written by the ledger's index_number call.
// It is disjoint from Namespace so a block's call record and the worker's
// record for the same height never share a key.
const CallNamespace = "ocw_pricefeed::calls"

const separator = '/'

// heightSize is the length of a SCALE-encoded u32.
const heightSize = 4

// DeriveKey returns Namespace ++ "/" ++ SCALE(height).
func DeriveKey(height models.BlockNumber) []byte {
	return deriveKey(Namespace, height)
}

// DeriveCallKey returns CallNamespace ++ "/" ++ SCALE(height).
func DeriveCallKey(height models.BlockNumber) []byte {
	return deriveKey(CallNamespace, height)
}

func deriveKey(namespace string, height models.BlockNumber) []byte {
	encoded, err := scale.Marshal(uint32(height))
	if err != nil {
		// a fixed-width integer always encodes
		panic(fmt.Sprintf("indexing: encode height %d: %v", height, err))
	}
	key := make([]byte, 0, len(namespace)+1+len(encoded))
	key = append(key, namespace...)
	key = append(key, separator)
	return append(key, encoded...)
}

// HeightFromKey is the inverse of DeriveKey.
func HeightFromKey(key []byte) (models.BlockNumber, error) {
	prefix := KeyPrefix()
	if !bytes.HasPrefix(key, prefix) {
		return 0, fmt.Errorf("indexing: key %x is outside namespace", key)
	}
	suffix := key[len(prefix):]
	if len(suffix) != heightSize {
		return 0, fmt.Errorf("indexing: key %x: want %d height bytes, got %d", key, heightSize, len(suffix))
	}
	var height uint32
	if err := scale.Unmarshal(suffix, &height); err != nil {
		return 0, fmt.Errorf("indexing: decode height: %w", err)
	}
	return models.BlockNumber(height), nil
}

// KeyPrefix is the common prefix of all keys returned by DeriveKey.
func KeyPrefix() []byte {
	return append([]byte(Namespace), separator)
}

// EncodeRecord SCALE-encodes a record: compact-length tag followed by an
// 8-byte little-endian value.
func EncodeRecord(rec models.ReconciliationRecord) ([]byte, error) {
	data, err := scale.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("indexing: encode record: %w", err)
	}
	return data, nil
}

func DecodeRecord(data []byte) (*models.ReconciliationRecord, error) {
	var rec models.ReconciliationRecord
	if err := scale.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("indexing: decode record: %w", err)
	}
	return &rec, nil
}
