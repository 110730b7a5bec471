// core/types.go
package core

import "fmt"

// Block is a single indexed chain block. Rows are append-only: a height is
// inserted once and never updated, only removed by a retention sweep.
type Block struct {
	Height    uint64 `json:"height"`
	Timestamp int64  `json:"timestamp"`
	Hash      string `json:"hash"`
	SyncedAt  int64  `json:"synced_at"`
}

// SourceKind tags how a payment's sender was (or was not) determined at the
// time the analyzer examined the block: a payment is either carrying an
// inline sender address, waiting on a previous-output lookup, or
// explicitly unknown.
type SourceKind int

const (
	// SourceInline means the transaction's first input carried an address
	// directly; no further lookup is required.
	SourceInline SourceKind = iota
	// SourceUnresolved means the first input referenced a previous
	// output by (txid, vout) and must be resolved via Chain Client
	// before the sender is known.
	SourceUnresolved
	// SourceUnknown means no sender information could be derived from
	// the transaction's first input.
	SourceUnknown
)

// PaymentSource is the tagged sum type described above. Exactly one of the
// three shapes is meaningful at a time, selected by Kind.
type PaymentSource struct {
	Kind SourceKind

	// Address is set when Kind == SourceInline.
	Address string

	// PrevTxHash and PrevVout are set when Kind == SourceUnresolved.
	PrevTxHash string
	PrevVout   int
}

// InlineAddress builds a PaymentSource carrying a directly known sender.
func InlineAddress(address string) PaymentSource {
	return PaymentSource{Kind: SourceInline, Address: address}
}

// UnresolvedSource builds a PaymentSource that still needs a previous-output
// lookup before a sender address is known.
func UnresolvedSource(prevTxHash string, prevVout int) PaymentSource {
	return PaymentSource{Kind: SourceUnresolved, PrevTxHash: prevTxHash, PrevVout: prevVout}
}

// UnknownSource builds a PaymentSource for transactions whose first input
// carries no usable sender information.
func UnknownSource() PaymentSource {
	return PaymentSource{Kind: SourceUnknown}
}

// String renders the PaymentSource for logging; it is not a persisted
// representation.
func (s PaymentSource) String() string {
	switch s.Kind {
	case SourceInline:
		return s.Address
	case SourceUnresolved:
		return fmt.Sprintf("prev:%s:%d", s.PrevTxHash, s.PrevVout)
	default:
		return "Unknown"
	}
}

// Payment is a single payment record emitted by the Block Analyzer and
// persisted by the Store. Uniqueness is enforced on (TxHash, VoutIndex,
// Address).
type Payment struct {
	BlockHeight   uint64
	BlockHash     string
	TxHash        string
	VoutIndex     int
	Address       string
	FromAddress   string // resolved sender, "" if still unresolved
	Source        PaymentSource
	Value         float64
	Timestamp     int64
	Confirmations uint64
}

// NetworkNodeStats is one row of the network_node_stats table, written by
// the external snapshot scheduler and served (not produced) by the core.
type NetworkNodeStats struct {
	Timestamp      int64
	CumulusCount   int
	NimbusCount    int
	StratusCount   int
	TotalNodes     int
	DataSource     string // "api" | "cache" | "partial" | "failed"
	APISuccessRate float64
	Note           string
}

// NetworkUtilizationStats is one row of the network_utilization_stats
// table: fleet-wide resource totals, utilization ratios, and running-app
// counts, again written externally and only served by the core.
type NetworkUtilizationStats struct {
	Timestamp       int64
	TotalCPUCores   float64
	TotalMemoryGB   float64
	TotalStorageGB  float64
	CPUUtilization  float64
	MemUtilization  float64
	RunningAppCount int
	DataSource      string
	APISuccessRate  float64
	Note            string
}

// SyncStatus is the derived, non-persistent snapshot of sync progress.
// It is computed from the Store's frontier and the Chain Client's tip,
// then published by the Sync Engine after every cycle.
type SyncStatus struct {
	CurrentHeight             uint64  `json:"currentHeight"`
	HighestSynced             uint64  `json:"highestSynced"`
	LowestSynced              uint64  `json:"lowestSynced"`
	HasFrontier               bool    `json:"hasFrontier"` // false before the first block is ever stored
	TargetLowest              int64   `json:"targetLowest"`
	InitialSyncTarget         int64   `json:"initialSyncTarget"`
	NewBlocksRemaining        int64   `json:"newBlocksRemaining"`
	HistoricalBlocksRemaining int64   `json:"historicalBlocksRemaining"`
	TotalBlocksSynced         uint64  `json:"totalBlocksSynced"`
	TotalBlocksRemaining      int64   `json:"totalBlocksRemaining"`
	ProgressPct               float64 `json:"syncProgress"`
	IsRunning                 bool    `json:"isRunning"`
	IsOnline                  bool    `json:"isOnline"`
	IsFirstRun                bool    `json:"isFirstRun"`
	HasCompletedInitialSync   bool    `json:"hasCompletedInitialSync"`
	IsComplete                bool    `json:"isComplete"`
	LastCycleTS               int64   `json:"lastCycleTs"`
	LastSyncMessage           string  `json:"lastSyncMessage"`
	SyncRateBlocksPerSec      float64 `json:"syncRate"`
	EstimatedSecondsRemaining float64 `json:"estimatedTimeRemaining"`
}
