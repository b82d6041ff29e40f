// Package ledger is the deterministic execution layer: it applies the
// envelopes included in a block to consensus-visible state.
package ledger

import (
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/ChainSafe/gossamer/pkg/scale"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"ocw-node/db"
	"ocw-node/extrinsic"
	"ocw-node/indexing"
	"ocw-node/logger"
	"ocw-node/models"
	"ocw-node/repository"
)

// Storage keys of the ledger state.
var (
	keyPrices    = []byte("PriceFeed::Prices")
	keySomething = []byte("PriceFeed::Something")
	keyNumber    = []byte("System::Number")
)

// Event is emitted by a successful call.
type Event struct {
	Name  string           `json:"name"`
	Value uint32           `json:"value"`
	Who   models.AccountID `json:"who"`
}

// ExtrinsicResult is the per-envelope outcome of ApplyBlock.
type ExtrinsicResult struct {
	ID     uuid.UUID        `json:"id"`
	Signer models.AccountID `json:"signer"`
	Call   string           `json:"call"`
	Err    error            `json:"-"`
}

// Ledger owns the state store. ApplyBlock is its only write path.
type Ledger struct {
	mu     sync.RWMutex
	state  db.KVStore
	index  repository.IndexRepositoryInterface
	events []Event
}

// New returns a ledger over state. index receives the records written by the
// indexing call; it may be nil, in which case those writes are dropped.
func New(state db.KVStore, index repository.IndexRepositoryInterface) *Ledger {
	return &Ledger{state: state, index: index}
}

// ApplyBlock executes envs in order as block height. Extrinsic failures are
// reported per envelope and never abort the block.
func (l *Ledger) ApplyBlock(height models.BlockNumber, envs []*extrinsic.Envelope) ([]ExtrinsicResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	head, err := l.getU32(keyNumber)
	if err != nil {
		return nil, err
	}
	if uint32(height) != head+1 {
		return nil, fmt.Errorf("%w: head %d, got %d", ErrStaleHeight, head, height)
	}

	l.events = nil
	results := make([]ExtrinsicResult, 0, len(envs))
	for _, env := range envs {
		res := ExtrinsicResult{ID: env.ID, Signer: env.Signer}
		res.Call, res.Err = l.applyExtrinsic(height, env)
		if res.Err != nil {
			logger.Logger.Info("Extrinsic failed", zap.Uint32("height", uint32(height)),
				zap.String("call", res.Call), zap.Stringer("signer", env.Signer), zap.Error(res.Err))
		}
		results = append(results, res)
	}

	if err := l.putU32(keyNumber, uint32(height)); err != nil {
		return nil, err
	}
	return results, nil
}

func (l *Ledger) applyExtrinsic(height models.BlockNumber, env *extrinsic.Envelope) (string, error) {
	call, err := env.DecodedCall()
	if err != nil {
		return "", err
	}
	// ensure_signed
	if !env.Verify() {
		return call.Name(), ErrBadOrigin
	}
	return call.Name(), l.dispatch(height, env.Signer, call)
}

func (l *Ledger) dispatch(height models.BlockNumber, who models.AccountID, call extrinsic.Call) error {
	switch c := call.(type) {
	case extrinsic.SubmitPrice:
		return l.submitPrice(c.Payload)
	case extrinsic.DoSomething:
		if err := l.putU32(keySomething, c.Value); err != nil {
			return err
		}
		l.events = append(l.events, Event{Name: "SomethingStored", Value: c.Value, Who: who})
		return nil
	case extrinsic.CauseError:
		return l.causeError()
	case extrinsic.IndexNumber:
		l.indexNumber(height, c.Number)
		return nil
	default:
		return fmt.Errorf("%w: %T", extrinsic.ErrMalformedCall, call)
	}
}

// submitPrice overwrites the price cell. The prior value is only read for the
// log line; the write never depends on it.
func (l *Ledger) submitPrice(payload uint32) error {
	cur, _, err := l.lookupU32(keyPrices)
	if err != nil {
		return err
	}
	if err := l.putU32(keyPrices, payload); err != nil {
		return err
	}
	logger.Logger.Info("in submit_price call", zap.Uint32("previous", cur), zap.Uint32("price", payload))
	return nil
}

func (l *Ledger) causeError() error {
	old, ok, err := l.lookupU32(keySomething)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNoneValue
	}
	if old == math.MaxUint32 {
		return ErrStorageOverflow
	}
	return l.putU32(keySomething, old+1)
}

// indexNumber writes to the node-local index. Like any index write it is
// best effort and invisible to consensus.
func (l *Ledger) indexNumber(height models.BlockNumber, number uint64) {
	if l.index == nil {
		return
	}
	rec := models.ReconciliationRecord{Tag: models.TagSubmittedIndex, Value: number}
	if err := l.index.PutRecord(indexing.DeriveCallKey(height), rec); err != nil {
		logger.Logger.Warn("Offchain index write failed", zap.Uint32("height", uint32(height)), zap.Error(err))
	}
}

// Price returns the last accepted price and whether one was ever set.
func (l *Ledger) Price() (uint32, bool, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.lookupU32(keyPrices)
}

// Something returns the value stored by do_something.
func (l *Ledger) Something() (uint32, bool, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.lookupU32(keySomething)
}

// Height returns the last applied block height, 0 before the first block.
func (l *Ledger) Height() (models.BlockNumber, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	h, err := l.getU32(keyNumber)
	return models.BlockNumber(h), err
}

// Events returns the events of the last applied block.
func (l *Ledger) Events() []Event {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Event, len(l.events))
	copy(out, l.events)
	return out
}

func (l *Ledger) lookupU32(key []byte) (uint32, bool, error) {
	raw, err := l.state.Get(key)
	if errors.Is(err, db.ErrNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("read %s: %w", key, err)
	}
	var v uint32
	if err := scale.Unmarshal(raw, &v); err != nil {
		return 0, false, fmt.Errorf("decode %s: %w", key, err)
	}
	return v, true, nil
}

// getU32 reads key, defaulting to 0 when absent.
func (l *Ledger) getU32(key []byte) (uint32, error) {
	v, _, err := l.lookupU32(key)
	return v, err
}

func (l *Ledger) putU32(key []byte, v uint32) error {
	raw, err := scale.Marshal(v)
	if err != nil {
		return err
	}
	if err := l.state.Put(key, raw); err != nil {
		return fmt.Errorf("write %s: %w", key, err)
	}
	return nil
}
