// core/store.go
package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/pebble"
	"github.com/sirupsen/logrus"

	"github.com/2ndtlmining/fluxrevenue-go/pkg/utils"
)

// ErrStoreClosed is returned by any Store method called after Close.
var ErrStoreClosed = errors.New("store: closed")

// Key layout. pebble gives byte-ordered iteration for free, so every index
// is a manually-encoded key prefix walked with an iterator.
const (
	prefixBlock       = "b:"        // b:<height>                         -> Block
	prefixPayment     = "p:"        // p:<txhash>:<vout>:<address>        -> Payment  (primary row)
	prefixIdxAddrTS   = "ia:"       // ia:<address>:<invTS>:<txhash>:<vout>    -> primary key
	prefixIdxAddrHt   = "ih:"       // ih:<address>:<invHeight>:<txhash>:<vout> -> primary key
	prefixIdxHeight   = "ig:"       // ig:<height>:<txhash>:<vout>:<address>   -> primary key
	prefixNodeStats   = "ns:"       // ns:<timestamp>                     -> NetworkNodeStats
	prefixUtilStats   = "nu:"       // nu:<timestamp>                     -> NetworkUtilizationStats
	keyHighest        = "meta:highest"
	keyLowest         = "meta:lowest"
)

// Store is a WAL-journaled, atomically-batched, indexed store of
// blocks, payments, and network-stats snapshots, backed by
// github.com/cockroachdb/pebble.
type Store struct {
	mu     sync.RWMutex
	db     *pebble.DB
	logger *logrus.Logger
	closed bool
}

// OpenStore opens (or creates) a pebble database at path.
func OpenStore(path string, logger *logrus.Logger) (*Store, error) {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, utils.Wrap(err, "open store")
	}
	logger.WithField("path", path).Info("store opened")
	return &Store{db: db, logger: logger}, nil
}

// Close flushes and releases the underlying database handle. Safe to call
// more than once.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

func (s *Store) checkOpen() error {
	if s.closed {
		return ErrStoreClosed
	}
	return nil
}

// --- key encoding helpers -------------------------------------------------

func heightKey(height uint64) []byte {
	return []byte(fmt.Sprintf("%s%020d", prefixBlock, height))
}

func paymentKey(txHash string, vout int, address string) []byte {
	return []byte(fmt.Sprintf("%s%s:%010d:%s", prefixPayment, txHash, vout, address))
}

// invertedTimestamp orders descending timestamps ascending in byte order.
func invertedTimestamp(ts int64) int64 {
	return math.MaxInt64 - ts
}

func invertedHeight(height uint64) uint64 {
	return math.MaxUint64 - height
}

func addrTSIndexKey(address string, ts int64, txHash string, vout int) []byte {
	return []byte(fmt.Sprintf("%s%s:%020d:%s:%010d", prefixIdxAddrTS, address, invertedTimestamp(ts), txHash, vout))
}

func addrHeightIndexKey(address string, height uint64, txHash string, vout int) []byte {
	return []byte(fmt.Sprintf("%s%s:%020d:%s:%010d", prefixIdxAddrHt, address, invertedHeight(height), txHash, vout))
}

func heightIndexKey(height uint64, txHash string, vout int, address string) []byte {
	return []byte(fmt.Sprintf("%s%020d:%s:%010d:%s", prefixIdxHeight, height, txHash, vout, address))
}

// --- batch insert ----------------------------------------------------------

// BatchInsert durably writes blocks and payments as a single atomic unit:
// either every row in the call lands, or none does. Duplicate rows (same
// block height, or same (tx_hash, vout_index, address) triple) are silently
// ignored: a row whose key is already stored, or staged earlier in the same
// call, is skipped, so existing rows are never overwritten.
func (s *Store) BatchInsert(blocks []Block, payments []Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(); err != nil {
		return err
	}
	if len(blocks) == 0 && len(payments) == 0 {
		return nil
	}

	batch := s.db.NewIndexedBatch()
	defer batch.Close()

	for _, b := range blocks {
		if _, closer, err := batch.Get(heightKey(b.Height)); err == nil {
			closer.Close()
			continue
		} else if !errors.Is(err, pebble.ErrNotFound) {
			return utils.Wrap(err, "check block")
		}
		raw, err := json.Marshal(b)
		if err != nil {
			return utils.Wrap(err, "marshal block")
		}
		if err := batch.Set(heightKey(b.Height), raw, nil); err != nil {
			return utils.Wrap(err, "stage block")
		}
	}

	for _, p := range payments {
		raw, err := json.Marshal(p)
		if err != nil {
			return utils.Wrap(err, "marshal payment")
		}
		pk := paymentKey(p.TxHash, p.VoutIndex, p.Address)
		if _, closer, err := batch.Get(pk); err == nil {
			closer.Close()
			continue
		} else if !errors.Is(err, pebble.ErrNotFound) {
			return utils.Wrap(err, "check payment")
		}
		if err := batch.Set(pk, raw, nil); err != nil {
			return utils.Wrap(err, "stage payment")
		}
		if err := batch.Set(addrTSIndexKey(p.Address, p.Timestamp, p.TxHash, p.VoutIndex), pk, nil); err != nil {
			return utils.Wrap(err, "stage addr/ts index")
		}
		if err := batch.Set(addrHeightIndexKey(p.Address, p.BlockHeight, p.TxHash, p.VoutIndex), pk, nil); err != nil {
			return utils.Wrap(err, "stage addr/height index")
		}
		if err := batch.Set(heightIndexKey(p.BlockHeight, p.TxHash, p.VoutIndex, p.Address), pk, nil); err != nil {
			return utils.Wrap(err, "stage height index")
		}
	}

	if err := s.updateWatermarks(batch, blocks); err != nil {
		return err
	}

	if err := batch.Commit(pebble.Sync); err != nil {
		return utils.Wrap(err, "commit batch")
	}
	return nil
}

func (s *Store) updateWatermarks(batch *pebble.Batch, blocks []Block) error {
	if len(blocks) == 0 {
		return nil
	}
	highest, lowest, hasFrontier, err := s.minMaxHeightsLocked()
	if err != nil {
		return err
	}
	for _, b := range blocks {
		if !hasFrontier || b.Height > highest {
			highest = b.Height
		}
		if !hasFrontier || b.Height < lowest {
			lowest = b.Height
		}
		hasFrontier = true
	}
	if err := batch.Set([]byte(keyHighest), encodeUint64(highest), nil); err != nil {
		return err
	}
	return batch.Set([]byte(keyLowest), encodeUint64(lowest), nil)
}

func encodeUint64(v uint64) []byte {
	return []byte(strconv.FormatUint(v, 10))
}

func decodeUint64(b []byte) (uint64, error) {
	return strconv.ParseUint(string(b), 10, 64)
}

// MinMaxHeights returns the current highest and lowest stored block
// heights. hasFrontier is false until the first block is ever inserted.
func (s *Store) MinMaxHeights() (highest, lowest uint64, hasFrontier bool, err error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkOpen(); err != nil {
		return 0, 0, false, err
	}
	return s.minMaxHeightsLocked()
}

func (s *Store) minMaxHeightsLocked() (highest, lowest uint64, hasFrontier bool, err error) {
	hv, closer, err := s.db.Get([]byte(keyHighest))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return 0, 0, false, nil
		}
		return 0, 0, false, err
	}
	highest, err = decodeUint64(hv)
	closer.Close()
	if err != nil {
		return 0, 0, false, err
	}

	lv, closer, err := s.db.Get([]byte(keyLowest))
	if err != nil {
		return 0, 0, false, err
	}
	lowest, err = decodeUint64(lv)
	closer.Close()
	if err != nil {
		return 0, 0, false, err
	}
	return highest, lowest, true, nil
}

// HasHeight reports whether a block at height is already stored.
func (s *Store) HasHeight(height uint64) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkOpen(); err != nil {
		return false, err
	}
	_, closer, err := s.db.Get(heightKey(height))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	closer.Close()
	return true, nil
}

// ExistsWithin reports whether any block exists whose block timestamp is
// within tolerance seconds of the given timestamp. The network-stats tables
// apply their own tolerance check via snapshotExistsWithinLocked.
func (s *Store) ExistsWithin(timestamp int64, toleranceSec int64) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkOpen(); err != nil {
		return false, err
	}

	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte(prefixBlock),
		UpperBound: prefixUpperBound(prefixBlock),
	})
	if err != nil {
		return false, err
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		var b Block
		if err := json.Unmarshal(iter.Value(), &b); err != nil {
			continue
		}
		if abs64(b.Timestamp-timestamp) <= toleranceSec {
			return true, nil
		}
	}
	return false, nil
}

func abs64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}

func prefixUpperBound(prefix string) []byte {
	b := []byte(prefix)
	upper := make([]byte, len(b))
	copy(upper, b)
	for i := len(upper) - 1; i >= 0; i-- {
		upper[i]++
		if upper[i] != 0 {
			return upper[:i+1]
		}
	}
	return nil // prefix was all 0xff, unbounded
}

// --- retention -------------------------------------------------------------

// PruneBelow deletes transactions then blocks with timestamp < cutoff, in
// that order, since transactions reference blocks only advisorily.
func (s *Store) PruneBelow(cutoff int64) (blocksRemoved, paymentsRemoved int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(); err != nil {
		return 0, 0, err
	}

	batch := s.db.NewBatch()
	defer batch.Close()

	paymentsRemoved, err = s.sweepPayments(batch, cutoff)
	if err != nil {
		return 0, 0, err
	}
	blocksRemoved, keptLowest, keptHighest, anyKept, err := s.sweepBlocks(batch, cutoff)
	if err != nil {
		return 0, 0, err
	}

	// The sweep moves the frontier; restate the watermarks in the same
	// atomic batch so MinMaxHeights never reports a pruned height.
	if blocksRemoved > 0 {
		if anyKept {
			if err := batch.Set([]byte(keyHighest), encodeUint64(keptHighest), nil); err != nil {
				return 0, 0, err
			}
			if err := batch.Set([]byte(keyLowest), encodeUint64(keptLowest), nil); err != nil {
				return 0, 0, err
			}
		} else {
			if err := batch.Delete([]byte(keyHighest), nil); err != nil {
				return 0, 0, err
			}
			if err := batch.Delete([]byte(keyLowest), nil); err != nil {
				return 0, 0, err
			}
		}
	}

	if err := batch.Commit(pebble.Sync); err != nil {
		return 0, 0, utils.Wrap(err, "commit prune")
	}
	return blocksRemoved, paymentsRemoved, nil
}

func (s *Store) sweepPayments(batch *pebble.Batch, cutoff int64) (int, error) {
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte(prefixPayment),
		UpperBound: prefixUpperBound(prefixPayment),
	})
	if err != nil {
		return 0, err
	}
	defer iter.Close()

	removed := 0
	for iter.First(); iter.Valid(); iter.Next() {
		var p Payment
		if err := json.Unmarshal(iter.Value(), &p); err != nil {
			continue
		}
		if p.Timestamp >= cutoff {
			continue
		}
		if err := batch.Delete(append([]byte(nil), iter.Key()...), nil); err != nil {
			return removed, err
		}
		_ = batch.Delete(addrTSIndexKey(p.Address, p.Timestamp, p.TxHash, p.VoutIndex), nil)
		_ = batch.Delete(addrHeightIndexKey(p.Address, p.BlockHeight, p.TxHash, p.VoutIndex), nil)
		_ = batch.Delete(heightIndexKey(p.BlockHeight, p.TxHash, p.VoutIndex, p.Address), nil)
		removed++
	}
	return removed, nil
}

func (s *Store) sweepBlocks(batch *pebble.Batch, cutoff int64) (removed int, keptLowest, keptHighest uint64, anyKept bool, err error) {
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte(prefixBlock),
		UpperBound: prefixUpperBound(prefixBlock),
	})
	if err != nil {
		return 0, 0, 0, false, err
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		var b Block
		if err := json.Unmarshal(iter.Value(), &b); err != nil {
			continue
		}
		if b.Timestamp >= cutoff {
			if !anyKept || b.Height < keptLowest {
				keptLowest = b.Height
			}
			if !anyKept || b.Height > keptHighest {
				keptHighest = b.Height
			}
			anyKept = true
			continue
		}
		if err := batch.Delete(append([]byte(nil), iter.Key()...), nil); err != nil {
			return removed, keptLowest, keptHighest, anyKept, err
		}
		removed++
	}
	return removed, keptLowest, keptHighest, anyKept, nil
}

// --- sender backfill --------------------------------------------------------

// BackfillSender updates the resolved sender address of an already-stored
// payment, identified by its primary key triple.
func (s *Store) BackfillSender(txHash string, height uint64, vout int, address, fromAddress string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(); err != nil {
		return err
	}

	pk := paymentKey(txHash, vout, address)
	val, closer, err := s.db.Get(pk)
	if err != nil {
		return utils.Wrap(err, "read payment for backfill")
	}
	var p Payment
	decodeErr := json.Unmarshal(val, &p)
	closer.Close()
	if decodeErr != nil {
		return utils.Wrap(decodeErr, "decode payment for backfill")
	}

	p.FromAddress = fromAddress
	raw, err := json.Marshal(p)
	if err != nil {
		return utils.Wrap(err, "marshal backfilled payment")
	}
	return s.db.Set(pk, raw, pebble.Sync)
}

// UnresolvedPayments selects up to limit payments with an empty
// FromAddress, for the out-of-band backfill_senders entry point.
func (s *Store) UnresolvedPayments(limit int) ([]Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte(prefixPayment),
		UpperBound: prefixUpperBound(prefixPayment),
	})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var out []Payment
	for iter.First(); iter.Valid() && len(out) < limit; iter.Next() {
		var p Payment
		if err := json.Unmarshal(iter.Value(), &p); err != nil {
			continue
		}
		if p.FromAddress == "" {
			out = append(out, p)
		}
	}
	return out, nil
}

// --- aggregation queries (consumed by Aggregator) ---------------------------

// DailyRevenueRow is one row of daily_revenue's result.
type DailyRevenueRow struct {
	Date  string // YYYY-MM-DD, calendar day derived from Timestamp (UTC)
	Sum   float64
	Count int
}

// DailyRevenue groups an address's payments by calendar day since sinceTS.
func (s *Store) DailyRevenue(address string, sinceTS int64) ([]DailyRevenueRow, error) {
	payments, err := s.paymentsForAddress(address)
	if err != nil {
		return nil, err
	}

	byDate := make(map[string]*DailyRevenueRow)
	var order []string
	for _, p := range payments {
		if p.Timestamp < sinceTS {
			continue
		}
		date := calendarDay(p.Timestamp)
		row, ok := byDate[date]
		if !ok {
			row = &DailyRevenueRow{Date: date}
			byDate[date] = row
			order = append(order, date)
		}
		row.Sum += p.Value
		row.Count++
	}

	sort.Strings(order)
	rows := make([]DailyRevenueRow, 0, len(order))
	for _, date := range order {
		rows = append(rows, *byDate[date])
	}
	return rows, nil
}

// TotalRevenue returns the sum, count, and timestamp bounds of every
// payment to address.
func (s *Store) TotalRevenue(address string) (sum float64, count int, firstTS, lastTS int64, err error) {
	payments, err := s.paymentsForAddress(address)
	if err != nil {
		return 0, 0, 0, 0, err
	}
	firstTS, lastTS = 0, 0
	for i, p := range payments {
		sum += p.Value
		count++
		if i == 0 || p.Timestamp < firstTS {
			firstTS = p.Timestamp
		}
		if i == 0 || p.Timestamp > lastTS {
			lastTS = p.Timestamp
		}
	}
	return sum, count, firstTS, lastTS, nil
}

// RevenueInBlockRange sums payments to address within [startHeight,
// endHeight] inclusive.
func (s *Store) RevenueInBlockRange(address string, startHeight, endHeight uint64) (sum float64, count int, err error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkOpen(); err != nil {
		return 0, 0, err
	}

	lower := []byte(fmt.Sprintf("%s%s:%020d:", prefixIdxAddrHt, address, invertedHeight(endHeight)))
	upper := addrHeightIndexKeyUpper(address, startHeight)
	iter, err := s.db.NewIter(&pebble.IterOptions{LowerBound: lower, UpperBound: upper})
	if err != nil {
		return 0, 0, err
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		p, err := s.decodePaymentAt(iter.Value())
		if err != nil {
			continue
		}
		sum += p.Value
		count++
	}
	return sum, count, nil
}

func addrHeightIndexKeyUpper(address string, startHeight uint64) []byte {
	// Entries are keyed by inverted height, so the lower startHeight bound
	// becomes the larger inverted value; add one to make the bound
	// exclusive-upper over inclusive startHeight.
	inv := invertedHeight(startHeight)
	if inv == math.MaxUint64 {
		return prefixUpperBound(fmt.Sprintf("%s%s:", prefixIdxAddrHt, address))
	}
	return []byte(fmt.Sprintf("%s%s:%020d", prefixIdxAddrHt, address, inv+1))
}

func (s *Store) decodePaymentAt(primaryKeyValue []byte) (Payment, error) {
	val, closer, err := s.db.Get(primaryKeyValue)
	if err != nil {
		return Payment{}, err
	}
	defer closer.Close()
	var p Payment
	if err := json.Unmarshal(val, &p); err != nil {
		return Payment{}, err
	}
	return p, nil
}

func (s *Store) paymentsForAddress(address string) ([]Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	prefix := fmt.Sprintf("%s%s:", prefixIdxAddrTS, address)
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte(prefix),
		UpperBound: prefixUpperBound(prefix),
	})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var out []Payment
	for iter.First(); iter.Valid(); iter.Next() {
		p, err := s.decodePaymentAt(iter.Value())
		if err != nil {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

func calendarDay(ts int64) string {
	return time.Unix(ts, 0).UTC().Format("2006-01-02")
}

// TransactionPage is one page of ListTransactions' result.
type TransactionPage struct {
	Transactions []Payment
	Total        int
}

// ListTransactions returns a page of payments for address (or every
// address if empty), optionally filtered by a substring match against
// tx_hash, from_address, or the stringified value.
func (s *Store) ListTransactions(address string, page, limit int, search string) (TransactionPage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkOpen(); err != nil {
		return TransactionPage{}, err
	}
	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = 50
	}

	var all []Payment
	var err error
	if address != "" {
		all, err = s.paymentsForAddressLocked(address)
	} else {
		all, err = s.allPaymentsLocked()
	}
	if err != nil {
		return TransactionPage{}, err
	}

	if search != "" {
		filtered := all[:0:0]
		needle := strings.ToLower(search)
		for _, p := range all {
			if strings.Contains(strings.ToLower(p.TxHash), needle) ||
				strings.Contains(strings.ToLower(p.FromAddress), needle) ||
				strings.Contains(strings.ToLower(strconv.FormatFloat(p.Value, 'f', -1, 64)), needle) {
				filtered = append(filtered, p)
			}
		}
		all = filtered
	}

	sort.Slice(all, func(i, j int) bool { return all[i].Timestamp > all[j].Timestamp })

	total := len(all)
	start := (page - 1) * limit
	if start > total {
		start = total
	}
	end := start + limit
	if end > total {
		end = total
	}
	return TransactionPage{Transactions: all[start:end], Total: total}, nil
}

func (s *Store) paymentsForAddressLocked(address string) ([]Payment, error) {
	prefix := fmt.Sprintf("%s%s:", prefixIdxAddrTS, address)
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte(prefix),
		UpperBound: prefixUpperBound(prefix),
	})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var out []Payment
	for iter.First(); iter.Valid(); iter.Next() {
		p, err := s.decodePaymentAt(iter.Value())
		if err != nil {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

func (s *Store) allPaymentsLocked() ([]Payment, error) {
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte(prefixPayment),
		UpperBound: prefixUpperBound(prefixPayment),
	})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var out []Payment
	for iter.First(); iter.Valid(); iter.Next() {
		var p Payment
		if err := json.Unmarshal(iter.Value(), &p); err != nil {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

// LatestNodeStats and LatestUtilizationStats serve the externally-written
// network-stats snapshot tables; the core stores and serves them but does
// not produce them.

// snapshotToleranceSec is the uniqueness window for the network-stats
// tables: a snapshot whose timestamp falls within an hour of an existing
// row is dropped as a duplicate.
const snapshotToleranceSec = 3600

func (s *Store) PutNodeStats(row NetworkNodeStats) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(); err != nil {
		return err
	}
	if dup, err := s.snapshotExistsWithinLocked(prefixNodeStats, row.Timestamp, snapshotToleranceSec); err != nil {
		return err
	} else if dup {
		return nil
	}
	raw, err := json.Marshal(row)
	if err != nil {
		return err
	}
	key := []byte(fmt.Sprintf("%s%020d", prefixNodeStats, row.Timestamp))
	return s.db.Set(key, raw, pebble.Sync)
}

func (s *Store) PutUtilizationStats(row NetworkUtilizationStats) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(); err != nil {
		return err
	}
	if dup, err := s.snapshotExistsWithinLocked(prefixUtilStats, row.Timestamp, snapshotToleranceSec); err != nil {
		return err
	} else if dup {
		return nil
	}
	raw, err := json.Marshal(row)
	if err != nil {
		return err
	}
	key := []byte(fmt.Sprintf("%s%020d", prefixUtilStats, row.Timestamp))
	return s.db.Set(key, raw, pebble.Sync)
}

// snapshotExistsWithinLocked scans the snapshot table's timestamp-keyed
// range for a row within toleranceSec of ts. The keys are fixed-width
// decimal timestamps, so the window is a direct range scan.
func (s *Store) snapshotExistsWithinLocked(prefix string, ts, toleranceSec int64) (bool, error) {
	from := ts - toleranceSec
	if from < 0 {
		from = 0
	}
	lower := []byte(fmt.Sprintf("%s%020d", prefix, from))
	upper := []byte(fmt.Sprintf("%s%020d", prefix, ts+toleranceSec+1))

	iter, err := s.db.NewIter(&pebble.IterOptions{LowerBound: lower, UpperBound: upper})
	if err != nil {
		return false, err
	}
	defer iter.Close()
	return iter.First(), nil
}

// DiskUsage reports the database's on-disk footprint in bytes, for the
// MaxSizeGB soft-cap check.
func (s *Store) DiskUsage() (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkOpen(); err != nil {
		return 0, err
	}
	return s.db.Metrics().DiskSpaceUsage(), nil
}

func (s *Store) LatestNodeStats() (NetworkNodeStats, bool, error) {
	return latestRow[NetworkNodeStats](s, prefixNodeStats)
}

func (s *Store) LatestUtilizationStats() (NetworkUtilizationStats, bool, error) {
	return latestRow[NetworkUtilizationStats](s, prefixUtilStats)
}

func latestRow[T any](s *Store, prefix string) (T, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var zero T
	if err := s.checkOpen(); err != nil {
		return zero, false, err
	}

	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte(prefix),
		UpperBound: prefixUpperBound(prefix),
	})
	if err != nil {
		return zero, false, err
	}
	defer iter.Close()

	if !iter.Last() {
		return zero, false, nil
	}
	var row T
	if err := json.Unmarshal(iter.Value(), &row); err != nil {
		return zero, false, err
	}
	return row, true, nil
}
