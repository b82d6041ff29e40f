// Package worker runs the per-block off-chain reconciliation: fetch a price,
// submit it once per local identity, and record the attempt in the node-local
// index.
package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"ocw-node/fetcher"
	"ocw-node/indexing"
	"ocw-node/logger"
	"ocw-node/metrics"
	"ocw-node/models"
	"ocw-node/repository"
)

// State is a step of one invocation.
type State uint8

const (
	StateIdle State = iota
	StateFetching
	StateSubmitting
	StateSkipped
	StateIndexing
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateFetching:
		return "Fetching"
	case StateSubmitting:
		return "Submitting"
	case StateSkipped:
		return "Skipped"
	case StateIndexing:
		return "Indexing"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(s))
	}
}

// QuoteFetcher is the external data source.
type QuoteFetcher interface {
	FetchQuote(ctx context.Context) (*models.PriceQuote, error)
}

// Submitter signs and dispatches a price for every local identity.
type Submitter interface {
	Submit(payload uint32) ([]models.SubmissionOutcome, error)
}

// Report describes one invocation. The host ignores it.
type Report struct {
	Height    models.BlockNumber
	States    []State
	Quote     *models.PriceQuote
	FetchErr  error
	SubmitErr error
	Outcomes  []models.SubmissionOutcome
	// Previous is whatever was already stored at this height's key.
	Previous *models.ReconciliationRecord
	// Indexed is the record an index_number call left for this height, if any.
	Indexed  *models.ReconciliationRecord
	Record   models.ReconciliationRecord
	IndexErr error
}

// Worker holds no state across blocks; everything it remembers lives in the
// index and the ledger.
type Worker struct {
	fetcher QuoteFetcher
	signer  Submitter
	index   repository.IndexRepositoryInterface
}

func New(f QuoteFetcher, s Submitter, index repository.IndexRepositoryInterface) *Worker {
	return &Worker{fetcher: f, signer: s, index: index}
}

// OnBlock runs the pipeline for height. Every failure is logged and ends in
// Indexing; nothing is returned to the host.
func (w *Worker) OnBlock(ctx context.Context, height models.BlockNumber) *Report {
	log := logger.Named("worker").With(zap.Uint32("height", uint32(height)))
	rep := &Report{Height: height}
	rep.enter(log, StateIdle)
	log.Info("Offchain worker started")

	rep.enter(log, StateFetching)
	quote, err := w.fetch(ctx, log)
	if err != nil {
		rep.FetchErr = err
		rep.enter(log, StateSkipped)
	} else {
		rep.Quote = quote
		rep.enter(log, StateSubmitting)
		rep.Outcomes, rep.SubmitErr = w.submit(log, quote.PriceUSD)
	}

	rep.enter(log, StateIndexing)
	rep.Indexed = w.readCallRecord(log, height)
	rep.Previous, rep.Record, rep.IndexErr = w.record(log, height, quote)

	rep.enter(log, StateIdle)
	log.Info("Offchain worker finished")
	return rep
}

func (r *Report) enter(log *zap.Logger, s State) {
	r.States = append(r.States, s)
	log.Debug("Worker state", zap.Stringer("state", s))
}

func (w *Worker) fetch(ctx context.Context, log *zap.Logger) (*models.PriceQuote, error) {
	log.Info("Fetching price")
	start := time.Now()
	quote, err := w.fetcher.FetchQuote(ctx)
	metrics.FetchDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		kind := "unknown"
		if k, ok := fetcher.KindOf(err); ok {
			kind = k.String()
		}
		metrics.FetchTotal.WithLabelValues(kind).Inc()
		log.Warn("Price fetch failed, skipping submission", zap.String("kind", kind), zap.Error(err))
		return nil, err
	}
	metrics.FetchTotal.WithLabelValues("ok").Inc()
	log.Info("Price fetched", zap.Uint32("price_usd", quote.PriceUSD))
	return quote, nil
}

func (w *Worker) submit(log *zap.Logger, price uint32) ([]models.SubmissionOutcome, error) {
	outcomes, err := w.signer.Submit(price)
	if err != nil {
		log.Error("Submission not attempted", zap.Error(err))
		return nil, err
	}
	for _, o := range outcomes {
		metrics.SubmissionsTotal.WithLabelValues(metrics.Result(o.Err)).Inc()
		if o.OK() {
			log.Info("Submitted price", zap.Stringer("identity", o.Identity), zap.Uint32("price_usd", price))
		} else {
			log.Error("Failed to submit transaction", zap.Stringer("identity", o.Identity), zap.Error(o.Err))
		}
	}
	return outcomes, nil
}

// readCallRecord reads what the ledger indexed for height. Diagnostics only.
func (w *Worker) readCallRecord(log *zap.Logger, height models.BlockNumber) *models.ReconciliationRecord {
	rec, err := w.index.GetRecord(indexing.DeriveCallKey(height))
	switch {
	case err == nil:
		log.Info("Indexed call data", zap.ByteString("tag", rec.Tag), zap.Uint64("value", rec.Value))
		return rec
	case errors.Is(err, repository.ErrRecordNotFound):
		return nil
	default:
		log.Warn("Error reading indexed call data", zap.Error(err))
		return nil
	}
}

// record reads the record already stored for height (diagnostics only) and
// writes this invocation's record over it.
func (w *Worker) record(log *zap.Logger, height models.BlockNumber, quote *models.PriceQuote) (*models.ReconciliationRecord, models.ReconciliationRecord, error) {
	key := indexing.DeriveKey(height)

	prev, err := w.index.GetRecord(key)
	switch {
	case err == nil:
		log.Info("Local storage data", zap.ByteString("tag", prev.Tag), zap.Uint64("value", prev.Value))
	case errors.Is(err, repository.ErrRecordNotFound):
		log.Debug("No local storage data for height")
	default:
		log.Warn("Error reading from local storage", zap.Error(err))
	}

	rec := models.ReconciliationRecord{Tag: models.TagFetchFailed}
	if quote != nil {
		rec = models.ReconciliationRecord{Tag: models.TagPriceFetched, Value: uint64(quote.PriceUSD)}
	}
	werr := w.index.PutRecord(key, rec)
	metrics.IndexWritesTotal.WithLabelValues(metrics.Result(werr)).Inc()
	if werr != nil {
		log.Warn("Error writing to local storage", zap.Error(werr))
	} else {
		log.Info("Local storage written", zap.ByteString("tag", rec.Tag), zap.Uint64("value", rec.Value))
	}
	return prev, rec, werr
}
