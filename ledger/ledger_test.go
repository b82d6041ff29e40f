package ledger_test

import (
	"crypto/ed25519"
	"crypto/rand"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ocw-node/db"
	"ocw-node/extrinsic"
	"ocw-node/indexing"
	"ocw-node/ledger"
	"ocw-node/models"
	"ocw-node/repository"
)

type harness struct {
	ledger *ledger.Ledger
	index  *repository.IndexRepository
	id     models.AccountID
	priv   ed25519.PrivateKey
	height models.BlockNumber
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	state, err := db.NewMemPebbleStore()
	require.NoError(t, err)
	t.Cleanup(func() { state.Close() })

	ldb, err := db.NewMemLevelDB()
	require.NoError(t, err)
	t.Cleanup(func() { ldb.Close() })
	index := repository.NewIndexRepository(ldb)

	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	var id models.AccountID
	copy(id[:], pub)

	return &harness{ledger: ledger.New(state, index), index: index, id: id, priv: priv}
}

func (h *harness) envelope(t *testing.T, call extrinsic.Call) *extrinsic.Envelope {
	t.Helper()
	env, err := extrinsic.New(h.id, call, func(msg []byte) ([]byte, error) {
		return ed25519.Sign(h.priv, msg), nil
	})
	require.NoError(t, err)
	return env
}

func (h *harness) block(t *testing.T, calls ...extrinsic.Call) []ledger.ExtrinsicResult {
	t.Helper()
	envs := make([]*extrinsic.Envelope, len(calls))
	for i, c := range calls {
		envs[i] = h.envelope(t, c)
	}
	h.height++
	results, err := h.ledger.ApplyBlock(h.height, envs)
	require.NoError(t, err)
	return results
}

func (h *harness) price(t *testing.T) (uint32, bool) {
	t.Helper()
	p, ok, err := h.ledger.Price()
	require.NoError(t, err)
	return p, ok
}

func TestSubmitPrice_Overwrites(t *testing.T) {
	h := newHarness(t)

	_, ok := h.price(t)
	assert.False(t, ok)

	results := h.block(t, extrinsic.SubmitPrice{Payload: 725})
	require.NoError(t, results[0].Err)
	p, ok := h.price(t)
	assert.True(t, ok)
	assert.Equal(t, uint32(725), p)

	h.block(t, extrinsic.SubmitPrice{Payload: 3})
	p, _ = h.price(t)
	assert.Equal(t, uint32(3), p, "overwrite, not accumulate")
}

func TestSubmitPrice_Idempotent(t *testing.T) {
	h := newHarness(t)
	h.block(t, extrinsic.SubmitPrice{Payload: 42}, extrinsic.SubmitPrice{Payload: 42})
	h.block(t, extrinsic.SubmitPrice{Payload: 42})

	p, _ := h.price(t)
	assert.Equal(t, uint32(42), p)
}

func TestSubmitPrice_LastWriteWins(t *testing.T) {
	h := newHarness(t)
	h.block(t)

	h.block(t, extrinsic.SubmitPrice{Payload: 10})
	h.block(t, extrinsic.SubmitPrice{Payload: 20})

	p, _ := h.price(t)
	assert.Equal(t, uint32(20), p)
	height, err := h.ledger.Height()
	require.NoError(t, err)
	assert.Equal(t, models.BlockNumber(3), height)
}

func TestApplyBlock_UnsignedRejected(t *testing.T) {
	h := newHarness(t)
	h.block(t, extrinsic.SubmitPrice{Payload: 5})

	env := h.envelope(t, extrinsic.SubmitPrice{Payload: 6})
	env.Signature[0] ^= 0xff
	h.height++
	results, err := h.ledger.ApplyBlock(h.height, []*extrinsic.Envelope{env})
	require.NoError(t, err)
	assert.ErrorIs(t, results[0].Err, ledger.ErrBadOrigin)

	p, _ := h.price(t)
	assert.Equal(t, uint32(5), p, "rejected submission leaves the cell unchanged")
}

func TestApplyBlock_MalformedCallDoesNotAbortBlock(t *testing.T) {
	h := newHarness(t)
	bad := h.envelope(t, extrinsic.SubmitPrice{Payload: 1})
	bad.Call = []byte{0x7f}
	good := h.envelope(t, extrinsic.SubmitPrice{Payload: 2})

	results, err := h.ledger.ApplyBlock(1, []*extrinsic.Envelope{bad, good})
	require.NoError(t, err)
	assert.ErrorIs(t, results[0].Err, extrinsic.ErrMalformedCall)
	assert.NoError(t, results[1].Err)

	p, _ := h.price(t)
	assert.Equal(t, uint32(2), p)
}

func TestApplyBlock_StaleHeight(t *testing.T) {
	h := newHarness(t)
	h.block(t)

	_, err := h.ledger.ApplyBlock(1, nil)
	assert.ErrorIs(t, err, ledger.ErrStaleHeight)
	_, err = h.ledger.ApplyBlock(3, nil)
	assert.ErrorIs(t, err, ledger.ErrStaleHeight)
}

func TestDoSomethingAndCauseError(t *testing.T) {
	h := newHarness(t)

	results := h.block(t, extrinsic.CauseError{})
	assert.ErrorIs(t, results[0].Err, ledger.ErrNoneValue)

	h.block(t, extrinsic.DoSomething{Value: 7})
	events := h.ledger.Events()
	require.Len(t, events, 1)
	assert.Equal(t, ledger.Event{Name: "SomethingStored", Value: 7, Who: h.id}, events[0])

	results = h.block(t, extrinsic.CauseError{})
	require.NoError(t, results[0].Err)
	v, _, err := h.ledger.Something()
	require.NoError(t, err)
	assert.Equal(t, uint32(8), v)

	h.block(t, extrinsic.DoSomething{Value: math.MaxUint32})
	results = h.block(t, extrinsic.CauseError{})
	assert.ErrorIs(t, results[0].Err, ledger.ErrStorageOverflow)
	v, _, _ = h.ledger.Something()
	assert.Equal(t, uint32(math.MaxUint32), v)
}

func TestIndexNumber_WritesCallKey(t *testing.T) {
	h := newHarness(t)
	h.block(t)
	h.block(t, extrinsic.IndexNumber{Number: 99})

	rec, err := h.index.GetRecord(indexing.DeriveCallKey(2))
	require.NoError(t, err)
	assert.Equal(t, models.TagSubmittedIndex, rec.Tag)
	assert.Equal(t, uint64(99), rec.Value)

	_, err = h.index.GetRecord(indexing.DeriveCallKey(1))
	assert.ErrorIs(t, err, repository.ErrRecordNotFound)

	// the worker's key for the same height stays untouched
	_, err = h.index.GetRecord(indexing.DeriveKey(2))
	assert.ErrorIs(t, err, repository.ErrRecordNotFound)
}
