// Package txpool is the node's outbound submission queue. Acceptance here is
// local only; inclusion is decided when the block author drains the pool.
package txpool

import (
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"ocw-node/extrinsic"
	"ocw-node/logger"
	"ocw-node/models"
)

var (
	ErrMalformed = errors.New("txpool: malformed submission")
	ErrRevoked   = errors.New("txpool: identity revoked")
	ErrDuplicate = errors.New("txpool: already pending")
	ErrPoolFull  = errors.New("txpool: pool is full")
)

const DefaultCapacity = 1024

// Pool holds verified envelopes in arrival order.
type Pool struct {
	mu       sync.Mutex
	pending  []*extrinsic.Envelope
	seen     map[[32]byte]struct{}
	revoked  map[models.AccountID]struct{}
	capacity int
}

// New returns an empty pool. Submissions from revoked identities are refused.
func New(capacity int, revoked []models.AccountID) *Pool {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	p := &Pool{
		seen:     make(map[[32]byte]struct{}),
		revoked:  make(map[models.AccountID]struct{}, len(revoked)),
		capacity: capacity,
	}
	for _, id := range revoked {
		p.revoked[id] = struct{}{}
	}
	return p
}

// Dispatch validates env and queues it.
func (p *Pool) Dispatch(env *extrinsic.Envelope) error {
	if env == nil {
		return fmt.Errorf("%w: nil envelope", ErrMalformed)
	}
	if _, err := env.DecodedCall(); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if !env.Verify() {
		return fmt.Errorf("%w: bad signature from %s", ErrMalformed, env.Signer)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.revoked[env.Signer]; ok {
		return fmt.Errorf("%w: %s", ErrRevoked, env.Signer)
	}
	hash := env.Hash()
	if _, ok := p.seen[hash]; ok {
		return ErrDuplicate
	}
	if len(p.pending) >= p.capacity {
		return ErrPoolFull
	}
	p.pending = append(p.pending, env)
	p.seen[hash] = struct{}{}

	logger.Logger.Debug("Submission queued",
		zap.String("id", env.ID.String()), zap.Stringer("signer", env.Signer))
	return nil
}

// Drain removes and returns up to max envelopes, oldest first. max <= 0 drains
// everything.
func (p *Pool) Drain(max int) []*extrinsic.Envelope {
	p.mu.Lock()
	defer p.mu.Unlock()

	n := len(p.pending)
	if max > 0 && max < n {
		n = max
	}
	out := make([]*extrinsic.Envelope, n)
	copy(out, p.pending[:n])
	p.pending = append(p.pending[:0], p.pending[n:]...)
	for _, env := range out {
		delete(p.seen, env.Hash())
	}
	return out
}

// Len reports the number of pending envelopes.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.pending)
}
