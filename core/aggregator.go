// core/aggregator.go
package core

import "sort"

// Block-count constants used by the named block-range periods, assuming
// a roughly two-minute block time.
const (
	BlocksPerDay   = 720
	BlocksPerWeek  = 5040
	BlocksPerMonth = 21600
	BlocksPerYear  = 262800
)

// Aggregator is read-only composition over Store queries. It holds no
// state of its own and performs no chain or network I/O.
type Aggregator struct {
	store *Store
}

// NewAggregator wires an Aggregator against an open Store.
func NewAggregator(store *Store) *Aggregator {
	return &Aggregator{store: store}
}

// RevenueSummary is get_revenue's result for a single address.
type RevenueSummary struct {
	Address   string
	Total     float64
	Count     int
	FirstSeen int64
	LastSeen  int64
	Daily     []DailyRevenueRow
}

// Revenue returns a single address's total, count, and daily-grouped
// revenue since sinceTS.
func (a *Aggregator) Revenue(address string, sinceTS int64) (RevenueSummary, error) {
	total, count, first, last, err := a.store.TotalRevenue(address)
	if err != nil {
		return RevenueSummary{}, err
	}
	daily, err := a.store.DailyRevenue(address, sinceTS)
	if err != nil {
		return RevenueSummary{}, err
	}
	return RevenueSummary{
		Address:   address,
		Total:     total,
		Count:     count,
		FirstSeen: first,
		LastSeen:  last,
		Daily:     daily,
	}, nil
}

// CombinedRevenue sums Daily series across multiple addresses into one
// calendar-keyed series, for multi-address dashboards.
func (a *Aggregator) CombinedRevenue(addresses []string, sinceTS int64) ([]DailyRevenueRow, error) {
	byDate := make(map[string]*DailyRevenueRow)
	var order []string

	for _, addr := range addresses {
		rows, err := a.store.DailyRevenue(addr, sinceTS)
		if err != nil {
			return nil, err
		}
		for _, r := range rows {
			row, ok := byDate[r.Date]
			if !ok {
				row = &DailyRevenueRow{Date: r.Date}
				byDate[r.Date] = row
				order = append(order, r.Date)
			}
			row.Sum += r.Sum
			row.Count += r.Count
		}
	}

	sort.Strings(order)
	out := make([]DailyRevenueRow, 0, len(order))
	for _, date := range order {
		out = append(out, *byDate[date])
	}
	return out, nil
}

// Breakdown computes Revenue independently for each address, returning a
// map keyed by address for get_revenue's "breakdown" option.
func (a *Aggregator) Breakdown(addresses []string, sinceTS int64) (map[string]RevenueSummary, error) {
	out := make(map[string]RevenueSummary, len(addresses))
	for _, addr := range addresses {
		summary, err := a.Revenue(addr, sinceTS)
		if err != nil {
			return nil, err
		}
		out[addr] = summary
	}
	return out, nil
}

// BlockPeriodRevenue is get_revenue_by_blocks' result: revenue over the
// last N blocks ending at tipHeight, for one of the named periods.
type BlockPeriodRevenue struct {
	Address     string
	Period      string
	StartHeight uint64
	EndHeight   uint64
	Sum         float64
	Count       int
}

// namedPeriods maps get_revenue_by_blocks' period names to block counts.
var namedPeriods = map[string]uint64{
	"day":   BlocksPerDay,
	"week":  BlocksPerWeek,
	"month": BlocksPerMonth,
	"year":  BlocksPerYear,
}

// RevenueByBlocks sums an address's revenue over the trailing window of
// one of the named periods ("day", "week", "month", "year"), ending at
// tipHeight.
func (a *Aggregator) RevenueByBlocks(address string, period string, tipHeight uint64) (BlockPeriodRevenue, error) {
	span, ok := namedPeriods[period]
	if !ok {
		span = BlocksPerDay
		period = "day"
	}

	start := uint64(0)
	if tipHeight > span {
		start = tipHeight - span + 1
	}

	sum, count, err := a.store.RevenueInBlockRange(address, start, tipHeight)
	if err != nil {
		return BlockPeriodRevenue{}, err
	}
	return BlockPeriodRevenue{
		Address:     address,
		Period:      period,
		StartHeight: start,
		EndHeight:   tipHeight,
		Sum:         sum,
		Count:       count,
	}, nil
}

// Transactions returns a page of an address's transactions (or every
// address's, if address is empty), optionally filtered by search.
func (a *Aggregator) Transactions(address string, page, limit int, search string) (TransactionPage, error) {
	return a.store.ListTransactions(address, page, limit, search)
}

// NetworkSnapshot is the externally-populated network-stats read path:
// the core serves whatever the last externally written snapshot was,
// and does not itself compute fleet statistics.
type NetworkSnapshot struct {
	Nodes       NetworkNodeStats
	HasNodes    bool
	Utilization NetworkUtilizationStats
	HasUtil     bool
}

// LatestNetworkSnapshot returns the most recently stored node and
// utilization snapshots.
func (a *Aggregator) LatestNetworkSnapshot() (NetworkSnapshot, error) {
	nodes, hasNodes, err := a.store.LatestNodeStats()
	if err != nil {
		return NetworkSnapshot{}, err
	}
	util, hasUtil, err := a.store.LatestUtilizationStats()
	if err != nil {
		return NetworkSnapshot{}, err
	}
	return NetworkSnapshot{Nodes: nodes, HasNodes: hasNodes, Utilization: util, HasUtil: hasUtil}, nil
}
