// Package signer submits one signed price call per local identity.
package signer

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"ocw-node/extrinsic"
	"ocw-node/logger"
	"ocw-node/models"
)

var ErrNoIdentities = errors.New("no local accounts available, add a seed under keystore.seeds")

// IdentityProvider enumerates signing identities and signs on their behalf.
// Implementations must not change identity state.
type IdentityProvider interface {
	Identities() []models.AccountID
	Sign(id models.AccountID, msg []byte) ([]byte, error)
}

// Dispatcher accepts a signed envelope into the node's outbound queue.
type Dispatcher interface {
	Dispatch(env *extrinsic.Envelope) error
}

// Signer fans a payload out to every identity.
type Signer struct {
	keys IdentityProvider
	pool Dispatcher
}

func New(keys IdentityProvider, pool Dispatcher) *Signer {
	return &Signer{keys: keys, pool: pool}
}

// Submit dispatches SubmitPrice{payload} once per identity and returns the
// local dispatch outcome of each. With no identities it returns
// ErrNoIdentities before touching the pool.
func (s *Signer) Submit(payload uint32) ([]models.SubmissionOutcome, error) {
	ids := s.keys.Identities()
	if len(ids) == 0 {
		return nil, ErrNoIdentities
	}

	call := extrinsic.SubmitPrice{Payload: payload}
	outcomes := make([]models.SubmissionOutcome, 0, len(ids))
	for _, id := range ids {
		_, err := s.SubmitAs(id, call)
		outcomes = append(outcomes, models.SubmissionOutcome{Identity: id, Err: err})
	}
	return outcomes, nil
}

// SubmitAs signs call with one identity and dispatches it.
func (s *Signer) SubmitAs(id models.AccountID, call extrinsic.Call) (*extrinsic.Envelope, error) {
	env, err := extrinsic.New(id, call, func(msg []byte) ([]byte, error) {
		return s.keys.Sign(id, msg)
	})
	if err != nil {
		return nil, fmt.Errorf("sign %s: %w", call.Name(), err)
	}
	if err := s.pool.Dispatch(env); err != nil {
		return nil, err
	}
	logger.Logger.Debug("Signed submission dispatched",
		zap.Stringer("identity", id), zap.String("call", call.Name()), zap.String("id", env.ID.String()))
	return env, nil
}
