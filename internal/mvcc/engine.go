package mvcc

import (
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"storyengine/internal/config"
	"storyengine/internal/metrics"
)

// Engine is the single cooperative-execution-model MVCC engine instance
// (spec.md §5: no internal locking, callers serialize their own calls).
// It owns every story ever created, the PSN counters that induce the
// total order over prepared writes, and the set of transactions
// currently frozen in a read view.
type Engine struct {
	cfg     *config.Config
	metrics *metrics.Set
	log     *zap.SugaredLogger

	storyCounter uint64
	stmtCounter  uint64
	psnCounter   uint64

	lastConfirmedPsn uint64

	allStories        list[*Story]
	newStoriesSinceGC int

	readViewTxns []*Transaction // sorted ascending by RvPsn
}

// NewEngine builds an Engine. A nil cfg uses config.Default(); a nil
// registerer skips Prometheus registration entirely.
func NewEngine(cfg *config.Config, reg prometheus.Registerer) *Engine {
	if cfg == nil {
		cfg = config.Default()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		cfg:     cfg,
		metrics: metrics.New(reg, "storyengine"),
		log:     logger.Sugar(),
	}
}

// Begin allocates a new transaction handle (spec.md §3 "Transaction").
func (e *Engine) Begin(isolation IsolationLevel) *Transaction {
	return newTransaction(isolation)
}

// MVCCEnabled reports the engine's single documented configuration knob
// (spec.md §6). Callers that build their own facade around Engine should
// check this before going through Clarify/AddStmt at all, the way
// space.go's checkNotInvalidated gates on DDL state.
func (e *Engine) MVCCEnabled() bool {
	return e.cfg.MVCCEnabled
}

// GCStep runs one batch of garbage collection (spec.md §4.6, gc.go). It
// is exposed here so a caller can drive it on its own schedule — a timer,
// a "every N commits" hook, or a snapshot cleaner (spec.md §6).
func (e *Engine) GCStep() int {
	return e.gcStep(e.cfg.GCStepStories + 2*e.newStoriesSinceGC)
}
