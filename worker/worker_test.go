package worker_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"ocw-node/db"
	"ocw-node/extrinsic"
	"ocw-node/fetcher"
	"ocw-node/indexing"
	"ocw-node/keystore"
	"ocw-node/ledger"
	"ocw-node/logger"
	"ocw-node/models"
	"ocw-node/repository"
	"ocw-node/signer"
	"ocw-node/txpool"
	"ocw-node/worker"
)

type env struct {
	worker *worker.Worker
	pool   *txpool.Pool
	ledger *ledger.Ledger
	index  *repository.IndexRepository
	keys   *keystore.Keystore
	logs   *observer.ObservedLogs
	price  atomic.Int64
	status atomic.Int64
	delay  atomic.Int64
}

func newEnv(t *testing.T, identities int) *env {
	t.Helper()
	core, logs := observer.New(zapcore.DebugLevel)
	logger.Logger = zap.New(core)
	t.Cleanup(func() { logger.Logger = zap.NewNop() })

	e := &env{logs: logs}
	e.status.Store(http.StatusOK)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if d := time.Duration(e.delay.Load()); d > 0 {
			select {
			case <-r.Context().Done():
				return
			case <-time.After(d):
			}
		}
		w.WriteHeader(int(e.status.Load()))
		fmt.Fprintf(w, `{"data":{"price_usd": %d}}`, e.price.Load())
	}))
	t.Cleanup(srv.Close)

	seeds := make([]string, identities)
	for i := range seeds {
		seeds[i] = strings.Repeat(fmt.Sprintf("%02x", i+1), 32)
	}
	ks, err := keystore.FromSeeds(seeds)
	require.NoError(t, err)
	e.keys = ks

	ldb, err := db.NewMemLevelDB()
	require.NoError(t, err)
	t.Cleanup(func() { ldb.Close() })
	e.index = repository.NewIndexRepository(ldb)

	state, err := db.NewMemPebbleStore()
	require.NoError(t, err)
	t.Cleanup(func() { state.Close() })
	e.ledger = ledger.New(state, e.index)

	e.pool = txpool.New(0, nil)
	client := fetcher.NewClient(srv.URL, "test-node", 100*time.Millisecond)
	e.worker = worker.New(client, signer.New(ks, e.pool), e.index)
	return e
}

// include applies everything pending as the next ledger block.
func (e *env) include(t *testing.T) []ledger.ExtrinsicResult {
	t.Helper()
	head, err := e.ledger.Height()
	require.NoError(t, err)
	results, err := e.ledger.ApplyBlock(head+1, e.pool.Drain(0))
	require.NoError(t, err)
	return results
}

func (e *env) ledgerPrice(t *testing.T) (uint32, bool) {
	t.Helper()
	p, ok, err := e.ledger.Price()
	require.NoError(t, err)
	return p, ok
}

func (e *env) record(t *testing.T, h models.BlockNumber) *models.ReconciliationRecord {
	t.Helper()
	rec, err := e.index.GetRecord(indexing.DeriveKey(h))
	require.NoError(t, err)
	return rec
}

func TestOnBlock_FetchSuccess(t *testing.T) {
	e := newEnv(t, 2)
	e.price.Store(725)

	rep := e.worker.OnBlock(context.Background(), 1)

	require.NoError(t, rep.FetchErr)
	assert.Equal(t, []worker.State{
		worker.StateIdle, worker.StateFetching, worker.StateSubmitting, worker.StateIndexing, worker.StateIdle,
	}, rep.States)
	require.Len(t, rep.Outcomes, 2)
	for _, o := range rep.Outcomes {
		assert.True(t, o.OK())
	}

	envs := e.pool.Drain(0)
	require.Len(t, envs, 2, "exactly one submission per identity")
	signers := make(map[models.AccountID]bool)
	for _, env := range envs {
		call, err := env.DecodedCall()
		require.NoError(t, err)
		assert.Equal(t, extrinsic.SubmitPrice{Payload: 725}, call)
		signers[env.Signer] = true
	}
	for _, id := range e.keys.Identities() {
		assert.True(t, signers[id])
	}

	_, err := e.ledger.ApplyBlock(1, envs)
	require.NoError(t, err)
	p, ok := e.ledgerPrice(t)
	assert.True(t, ok)
	assert.Equal(t, uint32(725), p)

	rec := e.record(t, 1)
	assert.Equal(t, models.TagPriceFetched, rec.Tag)
	assert.Equal(t, uint64(725), rec.Value)

	assert.Equal(t, 2, e.logs.FilterMessage("Submitted price").Len())
}

func TestOnBlock_FetchTimeout(t *testing.T) {
	e := newEnv(t, 2)
	e.price.Store(725)
	e.delay.Store(int64(time.Second))

	rep := e.worker.OnBlock(context.Background(), 7)

	kind, ok := fetcher.KindOf(rep.FetchErr)
	require.True(t, ok)
	assert.Equal(t, fetcher.KindTimeout, kind)
	assertSkipped(t, e, rep, 7)
}

func TestOnBlock_BadStatus(t *testing.T) {
	e := newEnv(t, 2)
	e.status.Store(http.StatusServiceUnavailable)

	rep := e.worker.OnBlock(context.Background(), 8)

	kind, ok := fetcher.KindOf(rep.FetchErr)
	require.True(t, ok)
	assert.Equal(t, fetcher.KindHTTPStatus, kind)
	assertSkipped(t, e, rep, 8)
}

func assertSkipped(t *testing.T, e *env, rep *worker.Report, h models.BlockNumber) {
	t.Helper()
	assert.Equal(t, []worker.State{
		worker.StateIdle, worker.StateFetching, worker.StateSkipped, worker.StateIndexing, worker.StateIdle,
	}, rep.States)
	assert.Empty(t, rep.Outcomes)
	assert.Zero(t, e.pool.Len(), "no submission dispatched")

	e.include(t)
	_, ok := e.ledgerPrice(t)
	assert.False(t, ok, "ledger cell unchanged")

	rec := e.record(t, h)
	assert.Equal(t, models.TagFetchFailed, rec.Tag)
	assert.Zero(t, rec.Value)
	assert.Equal(t, 1, e.logs.FilterMessage("Price fetch failed, skipping submission").Len())
}

func TestOnBlock_FetchFailureKeepsPriorPrice(t *testing.T) {
	e := newEnv(t, 1)
	e.price.Store(10)
	e.worker.OnBlock(context.Background(), 1)
	e.include(t)

	e.status.Store(http.StatusServiceUnavailable)
	e.worker.OnBlock(context.Background(), 2)
	e.include(t)

	p, _ := e.ledgerPrice(t)
	assert.Equal(t, uint32(10), p)
}

func TestOnBlock_NoIdentities(t *testing.T) {
	e := newEnv(t, 0)
	e.price.Store(725)

	rep := e.worker.OnBlock(context.Background(), 3)

	require.NoError(t, rep.FetchErr)
	assert.ErrorIs(t, rep.SubmitErr, signer.ErrNoIdentities)
	assert.Empty(t, rep.Outcomes)
	assert.Zero(t, e.pool.Len())
	assert.Contains(t, rep.States, worker.StateIndexing)

	rec := e.record(t, 3)
	assert.Equal(t, models.TagPriceFetched, rec.Tag)
}

func TestOnBlock_ConsecutiveBlocks(t *testing.T) {
	e := newEnv(t, 2)

	e.price.Store(10)
	e.worker.OnBlock(context.Background(), 100)
	e.include(t)

	e.price.Store(20)
	e.worker.OnBlock(context.Background(), 101)
	e.include(t)

	p, _ := e.ledgerPrice(t)
	assert.Equal(t, uint32(20), p, "last write wins")

	assert.Equal(t, uint64(10), e.record(t, 100).Value)
	assert.Equal(t, uint64(20), e.record(t, 101).Value)
	assert.NotEqual(t, indexing.DeriveKey(100), indexing.DeriveKey(101))
}

func TestOnBlock_ReadsPreviousRecord(t *testing.T) {
	e := newEnv(t, 1)
	e.price.Store(5)

	prev := models.ReconciliationRecord{Tag: models.TagFetchFailed}
	require.NoError(t, e.index.PutRecord(indexing.DeriveKey(4), prev))

	rep := e.worker.OnBlock(context.Background(), 4)

	require.NotNil(t, rep.Previous)
	assert.Equal(t, prev.Tag, rep.Previous.Tag)
	assert.Equal(t, prev.Value, rep.Previous.Value)
	assert.Equal(t, 1, e.logs.FilterMessage("Local storage data").Len())

	rep = e.worker.OnBlock(context.Background(), 5)
	assert.Nil(t, rep.Previous)
}

func TestOnBlock_KeepsLedgerIndexedRecord(t *testing.T) {
	e := newEnv(t, 1)
	e.price.Store(725)

	id := e.keys.Identities()[0]
	envl, err := extrinsic.New(id, extrinsic.IndexNumber{Number: 99}, func(msg []byte) ([]byte, error) {
		return e.keys.Sign(id, msg)
	})
	require.NoError(t, err)
	require.NoError(t, e.pool.Dispatch(envl))
	results := e.include(t)
	require.Len(t, results, 1)
	require.NoError(t, results[0].Err)

	rep := e.worker.OnBlock(context.Background(), 1)

	require.NotNil(t, rep.Indexed)
	assert.Equal(t, uint64(99), rep.Indexed.Value)
	assert.Nil(t, rep.Previous)
	assert.Equal(t, 1, e.logs.FilterMessage("Indexed call data").Len())

	indexed, err := e.index.GetRecord(indexing.DeriveCallKey(1))
	require.NoError(t, err)
	assert.Equal(t, models.TagSubmittedIndex, indexed.Tag)
	assert.Equal(t, uint64(99), indexed.Value)

	assert.Equal(t, models.TagPriceFetched, e.record(t, 1).Tag)
	assert.Equal(t, uint64(725), e.record(t, 1).Value)
}

type failingIndex struct{}

func (failingIndex) PutRecord([]byte, models.ReconciliationRecord) error {
	return fmt.Errorf("disk full")
}

func (failingIndex) GetRecord([]byte) (*models.ReconciliationRecord, error) {
	return nil, repository.ErrRecordNotFound
}

type staticFetcher struct{ price uint32 }

func (s staticFetcher) FetchQuote(context.Context) (*models.PriceQuote, error) {
	return &models.PriceQuote{PriceUSD: s.price}, nil
}

type recordingSubmitter struct{ payloads []uint32 }

func (r *recordingSubmitter) Submit(p uint32) ([]models.SubmissionOutcome, error) {
	r.payloads = append(r.payloads, p)
	return []models.SubmissionOutcome{{Identity: models.AccountID{1}}}, nil
}

func TestOnBlock_IndexFailureDoesNotUndoSubmission(t *testing.T) {
	logger.Logger = zap.NewNop()
	sub := &recordingSubmitter{}
	w := worker.New(staticFetcher{price: 9}, sub, failingIndex{})

	rep := w.OnBlock(context.Background(), 1)

	assert.Error(t, rep.IndexErr)
	assert.Equal(t, []uint32{9}, sub.payloads)
	assert.Equal(t, worker.StateIdle, rep.States[len(rep.States)-1])
}
