// Package keystore holds the node's locally configured signing identities.
package keystore

import (
	"bytes"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strings"

	"ocw-node/models"
)

// KeyType tags the identities eligible to sign price submissions.
const KeyType = "ocwd"

var ErrUnknownIdentity = errors.New("keystore: unknown identity")

// Keystore is read-only once built.
type Keystore struct {
	keys map[models.AccountID]ed25519.PrivateKey
	ids  []models.AccountID
}

// FromSeeds builds a keystore from hex-encoded 32-byte ed25519 seeds.
func FromSeeds(seeds []string) (*Keystore, error) {
	ks := &Keystore{keys: make(map[models.AccountID]ed25519.PrivateKey, len(seeds))}
	for i, s := range seeds {
		raw, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(s), "0x"))
		if err != nil {
			return nil, fmt.Errorf("keystore: seed %d: %w", i, err)
		}
		if len(raw) != ed25519.SeedSize {
			return nil, fmt.Errorf("keystore: seed %d: want %d bytes, got %d", i, ed25519.SeedSize, len(raw))
		}
		ks.add(ed25519.NewKeyFromSeed(raw))
	}
	ks.sortIDs()
	return ks, nil
}

// Generate returns a fresh seed and its account.
func Generate() (seed []byte, id models.AccountID, err error) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, id, err
	}
	copy(id[:], priv.Public().(ed25519.PublicKey))
	return priv.Seed(), id, nil
}

func (k *Keystore) add(priv ed25519.PrivateKey) {
	var id models.AccountID
	copy(id[:], priv.Public().(ed25519.PublicKey))
	if _, ok := k.keys[id]; ok {
		return
	}
	k.keys[id] = priv
	k.ids = append(k.ids, id)
}

func (k *Keystore) sortIDs() {
	sort.Slice(k.ids, func(i, j int) bool {
		return bytes.Compare(k.ids[i][:], k.ids[j][:]) < 0
	})
}

// Identities lists the accounts this node can sign for, in key order.
func (k *Keystore) Identities() []models.AccountID {
	out := make([]models.AccountID, len(k.ids))
	copy(out, k.ids)
	return out
}

func (k *Keystore) Sign(id models.AccountID, msg []byte) ([]byte, error) {
	priv, ok := k.keys[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownIdentity, id)
	}
	return ed25519.Sign(priv, msg), nil
}
