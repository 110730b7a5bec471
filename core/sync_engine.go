// core/sync_engine.go
package core

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/2ndtlmining/fluxrevenue-go/pkg/config"
	"github.com/2ndtlmining/fluxrevenue-go/pkg/utils"
)

// ErrAlreadyRunning is returned by RunCycle when a previous cycle has not
// yet finished; the caller should treat this as an idempotent no-op rather
// than a failure.
var ErrAlreadyRunning = errors.New("sync: cycle already in progress")

const (
	gapFillForwardPlanCap   = 500
	gapFillBackwardPlanCap  = 1000
	senderResolveFanoutCap  = 15
	recentGapWindowDays     = 3
	historicalGapWindowDays = 7
)

// direction distinguishes the two frontier-extending sweep kinds.
type direction int

const (
	directionForward direction = iota
	directionBackward
)

// syncPhase is one ordered leg of a cycle's plan: a contiguous height range
// to fetch, analyze, and commit.
type syncPhase struct {
	dir   direction
	from  uint64 // inclusive
	to    uint64 // inclusive
}

func (p syncPhase) heights() []uint64 {
	if p.from > p.to {
		return nil
	}
	n := int(p.to-p.from) + 1
	out := make([]uint64, n)
	if p.dir == directionForward {
		for i := 0; i < n; i++ {
			out[i] = p.from + uint64(i)
		}
	} else {
		for i := 0; i < n; i++ {
			out[i] = p.to - uint64(i)
		}
	}
	return out
}

// plan is the outcome of the planner: an ordered list of phases plus the
// bookkeeping the executor and completion check need.
type plan struct {
	phases          []syncPhase
	priority        string
	requiresGapFill bool
	blocksToSync    int
}

// SyncEngine is the planner/executor state machine driving the sync
// cycle. At most one cycle runs at a time, guarded by running.
type SyncEngine struct {
	chain   *ChainClient
	store   *Store
	metrics *Metrics
	status  *StatusPublisher
	logger  *logrus.Logger

	watched map[string]struct{}
	cfg     config.Config

	mu      sync.Mutex
	running bool
}

// NewSyncEngine wires a SyncEngine from its dependencies and configuration.
func NewSyncEngine(chain *ChainClient, store *Store, metrics *Metrics, status *StatusPublisher, cfg config.Config, logger *logrus.Logger) *SyncEngine {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &SyncEngine{
		chain:   chain,
		store:   store,
		metrics: metrics,
		status:  status,
		logger:  logger,
		watched: WatchedSet(cfg.Sync.WatchedAddresses),
		cfg:     cfg,
	}
}

// RunCycle executes one sync cycle: read tip, read frontier, plan, execute,
// gap-fill near completion, prune, and publish. If a cycle is already
// running it returns ErrAlreadyRunning immediately without side effects.
func (e *SyncEngine) RunCycle(ctx context.Context) (SyncStatus, error) {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return e.status.Snapshot(), ErrAlreadyRunning
	}
	e.running = true
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		e.running = false
		e.mu.Unlock()
	}()

	running := e.status.Snapshot()
	running.IsRunning = true
	e.status.Publish(running)

	start := time.Now()

	tip, err := e.chain.Tip(ctx)
	if err != nil {
		st := e.status.Snapshot()
		st.IsOnline = false
		st.LastSyncMessage = "failed to read tip: " + err.Error()
		st.LastCycleTS = time.Now().Unix()
		e.status.Publish(st)
		e.metrics.RecordCycle(st, true)
		return st, utils.Wrap(err, "read tip")
	}

	highest, lowest, hasFrontier, err := e.store.MinMaxHeights()
	if err != nil {
		st := e.status.Snapshot()
		st.LastSyncMessage = "failed to read frontier: " + err.Error()
		st.LastCycleTS = time.Now().Unix()
		e.status.Publish(st)
		e.metrics.RecordCycle(st, true)
		return st, utils.Wrap(err, "read frontier")
	}

	derived := e.deriveStatus(tip, highest, lowest, hasFrontier)
	p := e.computePlan(tip, highest, lowest, hasFrontier, derived)

	blocksProcessed, err := e.executePlan(ctx, p)
	if err != nil {
		e.logger.WithError(err).Warn("sync cycle: plan execution reported an error")
	}

	// recentMissing/historicalMissing only carry meaning once runGapFill has
	// actually executed this cycle; completion is a claim about a gap-fill
	// pass having run clean, not merely that no gaps were ever counted.
	gapFillRan := false
	recentMissing, historicalMissing := 0, 0
	if derived.ProgressPct >= e.cfg.Sync.GapFillThreshold || p.requiresGapFill {
		recentMissing, historicalMissing, err = e.runGapFill(ctx, tip, lowest, hasFrontier)
		if err != nil {
			e.logger.WithError(err).Warn("sync cycle: gap-fill reported an error")
		} else {
			gapFillRan = true
		}
	}

	prunedBlocks, prunedPayments := e.runRetention()
	if prunedBlocks > 0 || prunedPayments > 0 {
		e.logger.WithFields(logrus.Fields{"blocks": prunedBlocks, "payments": prunedPayments}).Info("retention sweep removed expired rows")
	}
	e.checkStoreSize()

	highest, lowest, hasFrontier, _ = e.store.MinMaxHeights()
	final := e.deriveStatus(tip, highest, lowest, hasFrontier)
	final.IsRunning = false
	final.IsOnline = true
	final.LastCycleTS = time.Now().Unix()

	elapsed := time.Since(start).Seconds()
	if elapsed > 0 {
		final.SyncRateBlocksPerSec = float64(blocksProcessed) / elapsed
	}
	if final.SyncRateBlocksPerSec > 0 {
		final.EstimatedSecondsRemaining = float64(final.TotalBlocksRemaining) / final.SyncRateBlocksPerSec
	}

	if blocksProcessed == 0 {
		final.LastSyncMessage = "no new blocks"
	} else {
		final.LastSyncMessage = "synced"
	}

	final.IsComplete = gapFillRan && recentMissing == 0 && historicalMissing == 0 && final.NewBlocksRemaining == 0 && hasFrontier
	final.HasCompletedInitialSync = running.HasCompletedInitialSync || final.IsComplete

	e.status.Publish(final)
	e.metrics.RecordCycle(final, false)
	return final, nil
}

// Status computes a fresh SyncStatus on demand from the Chain Client's tip
// and the Store's frontier, without planning or executing a cycle. It is
// the read-only counterpart of RunCycle, used by status callers that only
// want a snapshot, not a side effect.
func (e *SyncEngine) Status(ctx context.Context) (SyncStatus, error) {
	tip, err := e.chain.Tip(ctx)
	if err != nil {
		st := e.status.Snapshot()
		st.IsOnline = false
		return st, utils.Wrap(err, "read tip")
	}
	highest, lowest, hasFrontier, err := e.store.MinMaxHeights()
	if err != nil {
		return e.status.Snapshot(), utils.Wrap(err, "read frontier")
	}

	st := e.deriveStatus(tip, highest, lowest, hasFrontier)
	published := e.status.Snapshot()
	st.IsRunning = published.IsRunning
	st.LastCycleTS = published.LastCycleTS
	st.LastSyncMessage = published.LastSyncMessage
	st.SyncRateBlocksPerSec = published.SyncRateBlocksPerSec
	st.HasCompletedInitialSync = published.HasCompletedInitialSync
	st.IsOnline = true
	return st, nil
}

// deriveStatus computes the Sync Status fields from the frontier and tip.
func (e *SyncEngine) deriveStatus(tip, highest, lowest uint64, hasFrontier bool) SyncStatus {
	blocksPerDay := int64(e.cfg.Retention.BlocksPerDay)
	retentionWindow := blocksPerDay * int64(e.cfg.Retention.RetentionDays)

	targetLowest := int64(tip) - retentionWindow
	if targetLowest < 0 {
		targetLowest = 0
	}
	initialTarget := int64(tip) - blocksPerDay
	if initialTarget < 0 {
		initialTarget = 0
	}

	st := SyncStatus{
		CurrentHeight:     tip,
		HasFrontier:       hasFrontier,
		TargetLowest:      targetLowest,
		InitialSyncTarget: initialTarget,
		IsFirstRun:        !hasFrontier,
	}

	if !hasFrontier {
		st.NewBlocksRemaining = int64(tip) - initialTarget
		st.HistoricalBlocksRemaining = 0
		st.ProgressPct = 0
		return st
	}

	st.HighestSynced = highest
	st.LowestSynced = lowest
	st.NewBlocksRemaining = int64(tip) - int64(highest)
	if st.NewBlocksRemaining < 0 {
		st.NewBlocksRemaining = 0
	}
	st.HistoricalBlocksRemaining = int64(lowest) - targetLowest
	if st.HistoricalBlocksRemaining < 0 {
		st.HistoricalBlocksRemaining = 0
	}

	totalSynced := highest - lowest + 1
	st.TotalBlocksSynced = totalSynced
	st.TotalBlocksRemaining = st.NewBlocksRemaining + st.HistoricalBlocksRemaining

	if retentionWindow > 0 {
		st.ProgressPct = float64(totalSynced) / float64(retentionWindow)
		if st.ProgressPct > 1 {
			st.ProgressPct = 1
		}
	}
	return st
}

// computePlan picks one of three planning procedures: first-run,
// near-completion, or hybrid forward+backward.
func (e *SyncEngine) computePlan(tip, highest, lowest uint64, hasFrontier bool, derived SyncStatus) plan {
	budget := e.cfg.Sync.MaxBlocksPerSync
	if budget <= 0 {
		return plan{}
	}

	if !hasFrontier {
		from := uint64(derived.InitialSyncTarget)
		to := tip
		if to-from+1 > uint64(budget) {
			to = from + uint64(budget) - 1
		}
		if from > to {
			return plan{}
		}
		return plan{
			phases:       []syncPhase{{dir: directionForward, from: from, to: to}},
			priority:     "initial",
			blocksToSync: int(to - from + 1),
		}
	}

	if derived.ProgressPct >= e.cfg.Sync.GapFillThreshold {
		if derived.NewBlocksRemaining > 0 {
			n := minInt64(derived.NewBlocksRemaining, gapFillForwardPlanCap, int64(budget))
			from := highest + 1
			to := highest + uint64(n)
			return plan{
				phases:          []syncPhase{{dir: directionForward, from: from, to: to}},
				priority:        "near_completion",
				requiresGapFill: true,
				blocksToSync:    int(n),
			}
		}
		if derived.HistoricalBlocksRemaining > 0 {
			n := minInt64(derived.HistoricalBlocksRemaining, gapFillBackwardPlanCap, int64(budget))
			to := lowest - 1
			from := lowest - uint64(n)
			return plan{
				phases:          []syncPhase{{dir: directionBackward, from: from, to: to}},
				priority:        "near_completion",
				requiresGapFill: true,
				blocksToSync:    int(n),
			}
		}
		return plan{requiresGapFill: true}
	}

	// Hybrid: forward first, remainder of budget backward.
	var phases []syncPhase
	remaining := int64(budget)

	forwardN := minInt64(derived.NewBlocksRemaining, remaining)
	if forwardN > 0 {
		from := highest + 1
		to := highest + uint64(forwardN)
		phases = append(phases, syncPhase{dir: directionForward, from: from, to: to})
		remaining -= forwardN
	}

	backwardN := minInt64(derived.HistoricalBlocksRemaining, remaining)
	if backwardN > 0 {
		to := lowest - 1
		from := lowest - uint64(backwardN)
		phases = append(phases, syncPhase{dir: directionBackward, from: from, to: to})
	}

	return plan{phases: phases, priority: "hybrid", blocksToSync: int(forwardN + backwardN)}
}

func minInt64(values ...int64) int64 {
	m := values[0]
	for _, v := range values[1:] {
		if v < m {
			m = v
		}
	}
	if m < 0 {
		return 0
	}
	return m
}

// executePlan runs every phase of p in order, batch by batch, and returns
// the number of blocks processed (failed batches included) and the first
// phase error, if any. A phase error does not stop later phases.
func (e *SyncEngine) executePlan(ctx context.Context, p plan) (int, error) {
	processed := 0
	var firstErr error
	for _, ph := range p.phases {
		n, err := e.executePhase(ctx, ph)
		processed += n
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return processed, firstErr
}

func (e *SyncEngine) executePhase(ctx context.Context, ph syncPhase) (int, error) {
	heights := ph.heights()
	batchSize := e.cfg.Sync.BatchSize
	if batchSize <= 0 {
		batchSize = len(heights)
	}

	processed := 0
	var lastErr error
	for i := 0; i < len(heights); i += batchSize {
		end := i + batchSize
		if end > len(heights) {
			end = len(heights)
		}
		batch := heights[i:end]

		if err := e.runBatch(ctx, batch); err != nil {
			e.logger.WithError(err).WithField("batch_size", len(batch)).
				Warn("batch failed; advancing processed count regardless to avoid retry loops this cycle")
			lastErr = err
		}
		// processed advances by the batch size regardless of failure;
		// the planner and gap-fill pass rediscover any missing heights
		// in a later cycle.
		processed += len(batch)

		publishNow := (i/batchSize)%2 == 1 || end == len(heights)
		if publishNow {
			st := e.status.Snapshot()
			st.IsRunning = true
			st.LastSyncMessage = fmt.Sprintf("syncing: %d/%d blocks", processed, len(heights))
			e.status.Publish(st)
			e.logger.WithField("processed", processed).Debug("sync progress")
		}
	}
	return processed, lastErr
}

// runBatch fetches a batch of heights in parallel, analyzes each body,
// resolves provisional senders, and commits the result as one atomic unit.
func (e *SyncEngine) runBatch(ctx context.Context, heights []uint64) error {
	results := e.chain.FetchBlocks(ctx, heights)

	var blocks []Block
	var payments []Payment
	now := time.Now().Unix()

	for _, r := range results {
		if r.Err != nil || r.Body == nil {
			e.logger.WithError(r.Err).WithField("height", r.Height).Warn("block fetch failed")
			continue
		}
		blocks = append(blocks, Block{
			Height:    r.Body.Height,
			Timestamp: r.Body.Time,
			Hash:      r.Body.Hash,
			SyncedAt:  now,
		})
		payments = append(payments, Analyze(r.Body, e.watched)...)
	}

	if err := e.resolveUnresolvedSenders(ctx, payments); err != nil {
		e.logger.WithError(err).Warn("sender resolution reported an error")
	}

	if len(blocks) == 0 && len(payments) == 0 {
		return nil
	}
	return e.store.BatchInsert(blocks, payments)
}

// resolveUnresolvedSenders resolves every SourceUnresolved payment's
// sender via the Chain Client, fanned out bounded by
// min(MaxConcurrent, 15).
func (e *SyncEngine) resolveUnresolvedSenders(ctx context.Context, payments []Payment) error {
	limit := e.cfg.Chain.MaxConcurrent
	if limit <= 0 || limit > senderResolveFanoutCap {
		limit = senderResolveFanoutCap
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	for i := range payments {
		p := &payments[i]
		if p.Source.Kind != SourceUnresolved {
			continue
		}
		g.Go(func() error {
			p.FromAddress = e.chain.ResolveSender(gctx, p.Source.PrevTxHash, p.Source.PrevVout)
			return nil
		})
	}
	return g.Wait()
}

// runGapFill is a narrow re-scan of the last few days near tip and the
// days immediately below lowest, run once progress crosses the
// gap-fill threshold.
func (e *SyncEngine) runGapFill(ctx context.Context, tip, lowest uint64, hasFrontier bool) (recentMissing, historicalMissing int, err error) {
	blocksPerDay := uint64(e.cfg.Retention.BlocksPerDay)

	recentFrom := uint64(0)
	if tip > recentGapWindowDays*blocksPerDay {
		recentFrom = tip - recentGapWindowDays*blocksPerDay
	}
	recentMissingHeights, err := e.missingHeights(recentFrom, tip)
	if err != nil {
		return 0, 0, err
	}

	var historicalMissingHeights []uint64
	if hasFrontier && lowest > 0 {
		histTo := lowest - 1
		histFrom := uint64(0)
		if histTo > historicalGapWindowDays*blocksPerDay {
			histFrom = histTo - historicalGapWindowDays*blocksPerDay
		}
		historicalMissingHeights, err = e.missingHeights(histFrom, histTo)
		if err != nil {
			return len(recentMissingHeights), 0, err
		}
	}

	all := append(append([]uint64{}, recentMissingHeights...), historicalMissingHeights...)
	if len(all) > 0 {
		if err := e.runBatch(ctx, all); err != nil {
			// Only call out the historical range in the error when it actually
			// contributed heights to this batch, since that's the part of a
			// gap-fill pass that can legitimately span days of backfill.
			err = utils.WrapIf(len(historicalMissingHeights) > 0, err, "gap-fill batch spanned the historical backfill range")
			return len(recentMissingHeights), len(historicalMissingHeights), err
		}
	}
	return len(recentMissingHeights), len(historicalMissingHeights), nil
}

func (e *SyncEngine) missingHeights(from, to uint64) ([]uint64, error) {
	if from > to {
		return nil, nil
	}
	var missing []uint64
	for h := from; h <= to; h++ {
		ok, err := e.store.HasHeight(h)
		if err != nil {
			return missing, err
		}
		if !ok {
			missing = append(missing, h)
		}
	}
	return missing, nil
}

// runRetention prunes transactions then blocks older than
// RetentionDays*86400 seconds before the current wall clock, which stands
// in for tip_timestamp since the chain client only reports tip height, not
// its timestamp.
func (e *SyncEngine) runRetention() (blocksRemoved, paymentsRemoved int) {
	cutoff := time.Now().Unix() - int64(e.cfg.Retention.RetentionDays)*86400
	blocksRemoved, paymentsRemoved, err := e.store.PruneBelow(cutoff)
	if err != nil {
		e.logger.WithError(err).Warn("retention sweep failed")
		return 0, 0
	}
	return blocksRemoved, paymentsRemoved
}

// checkStoreSize warns when the database's on-disk footprint exceeds the
// configured MaxSizeGB soft cap. The cap is advisory: nothing is deleted
// beyond what the retention sweep already removes.
func (e *SyncEngine) checkStoreSize() {
	capGB := e.cfg.Storage.MaxSizeGB
	if capGB <= 0 {
		return
	}
	usage, err := e.store.DiskUsage()
	if err != nil {
		return
	}
	capBytes := uint64(capGB * float64(1<<30))
	if usage > capBytes {
		e.logger.WithFields(logrus.Fields{
			"usage_bytes": usage,
			"cap_gb":      capGB,
		}).Warn("store exceeds configured size cap")
	}
}

// BackfillSenders is the out-of-band entry point for sender recovery: it
// selects up to limit unresolved payments, groups them by block height,
// re-fetches and re-analyzes those blocks once, resolves any remaining
// "prev:" references, and writes the results back.
func (e *SyncEngine) BackfillSenders(ctx context.Context, limit int) (int, error) {
	unresolved, err := e.store.UnresolvedPayments(limit)
	if err != nil {
		return 0, utils.Wrap(err, "list unresolved payments")
	}
	if len(unresolved) == 0 {
		return 0, nil
	}

	byHeight := make(map[uint64][]Payment)
	var heights []uint64
	for _, p := range unresolved {
		if _, ok := byHeight[p.BlockHeight]; !ok {
			heights = append(heights, p.BlockHeight)
		}
		byHeight[p.BlockHeight] = append(byHeight[p.BlockHeight], p)
	}

	results := e.chain.FetchBlocks(ctx, heights)
	updated := 0
	for _, r := range results {
		if r.Err != nil || r.Body == nil {
			continue
		}
		recovered := Analyze(r.Body, e.watched)
		byKey := make(map[string]Payment, len(recovered))
		for _, rp := range recovered {
			byKey[paymentIdentity(rp)] = rp
		}

		for _, stale := range byHeight[r.Height] {
			rp, ok := byKey[paymentIdentity(stale)]
			if !ok {
				continue
			}
			from := rp.FromAddress
			if rp.Source.Kind == SourceUnresolved {
				from = e.chain.ResolveSender(ctx, rp.Source.PrevTxHash, rp.Source.PrevVout)
			}
			if from == "" {
				continue
			}
			if err := e.store.BackfillSender(stale.TxHash, stale.BlockHeight, stale.VoutIndex, stale.Address, from); err != nil {
				e.logger.WithError(err).Warn("backfill_sender write failed")
				continue
			}
			updated++
		}
	}
	return updated, nil
}

func paymentIdentity(p Payment) string {
	return strings.Join([]string{p.TxHash, strconv.Itoa(p.VoutIndex), p.Address}, ":")
}
