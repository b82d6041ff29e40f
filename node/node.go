// Package node is a single-node development host. It authors blocks from the
// local pool and triggers the off-chain worker once per block.
package node

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"ocw-node/ledger"
	"ocw-node/logger"
	"ocw-node/metrics"
	"ocw-node/models"
	"ocw-node/txpool"
	"ocw-node/worker"
)

const (
	DefaultBlockTime  = 6 * time.Second
	DefaultQueueDepth = 4
)

// Hook is invoked once per authored block.
type Hook interface {
	OnBlock(ctx context.Context, height models.BlockNumber) *worker.Report
}

type Node struct {
	ledger        *ledger.Ledger
	pool          *txpool.Pool
	hook          Hook
	blockTime     time.Duration
	maxExtrinsics int
	heights       chan models.BlockNumber
}

// Options tune block production. Zero values pick the defaults.
type Options struct {
	BlockTime     time.Duration
	QueueDepth    int
	MaxExtrinsics int
}

func New(l *ledger.Ledger, p *txpool.Pool, hook Hook, opts Options) *Node {
	if opts.BlockTime <= 0 {
		opts.BlockTime = DefaultBlockTime
	}
	if opts.QueueDepth <= 0 {
		opts.QueueDepth = DefaultQueueDepth
	}
	return &Node{
		ledger:        l,
		pool:          p,
		hook:          hook,
		blockTime:     opts.BlockTime,
		maxExtrinsics: opts.MaxExtrinsics,
		heights:       make(chan models.BlockNumber, opts.QueueDepth),
	}
}

// Run authors a block every block time until ctx is done, then waits for the
// worker to finish its current invocation.
func (n *Node) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		n.runWorker(ctx)
	}()
	defer wg.Wait()

	ticker := time.NewTicker(n.blockTime)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := n.ProduceBlock(ctx); err != nil {
				logger.Logger.Error("Block production failed", zap.Error(err))
			}
		}
	}
}

// ProduceBlock applies the pending pool as the next block and schedules the
// worker for it.
func (n *Node) ProduceBlock(ctx context.Context) (models.BlockNumber, error) {
	head, err := n.ledger.Height()
	if err != nil {
		return 0, err
	}
	height := head + 1

	envs := n.pool.Drain(n.maxExtrinsics)
	results, err := n.ledger.ApplyBlock(height, envs)
	if err != nil {
		return 0, err
	}
	for _, r := range results {
		metrics.BlockExtrinsics.WithLabelValues(metrics.Result(r.Err)).Inc()
	}
	metrics.BlockHeight.Set(float64(height))
	logger.Logger.Info("Block imported", zap.Uint32("height", uint32(height)), zap.Int("extrinsics", len(results)))

	n.schedule(height)
	return height, nil
}

// schedule hands height to the worker without blocking block production.
func (n *Node) schedule(height models.BlockNumber) {
	select {
	case n.heights <- height:
	default:
		metrics.WorkerDropped.Inc()
		logger.Logger.Warn("Worker queue full, skipping offchain worker", zap.Uint32("height", uint32(height)))
	}
}

// runWorker is the only caller of the hook, so invocations never overlap.
func (n *Node) runWorker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case h := <-n.heights:
			n.hook.OnBlock(ctx, h)
		}
	}
}
