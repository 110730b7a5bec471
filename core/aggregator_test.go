package core

import "testing"

func TestAggregatorRevenueAndCombined(t *testing.T) {
	s := openTestStore(t)
	agg := NewAggregator(s)

	blocks := []Block{{Height: 1, Timestamp: 100}, {Height: 2, Timestamp: 200}}
	payments := []Payment{
		{BlockHeight: 1, TxHash: "tx1", VoutIndex: 0, Address: "addrA", Value: 3, Timestamp: 100},
		{BlockHeight: 2, TxHash: "tx2", VoutIndex: 0, Address: "addrB", Value: 4, Timestamp: 200},
	}
	if err := s.BatchInsert(blocks, payments); err != nil {
		t.Fatalf("batch insert: %v", err)
	}

	summary, err := agg.Revenue("addrA", 0)
	if err != nil {
		t.Fatalf("revenue: %v", err)
	}
	if summary.Total != 3 || summary.Count != 1 {
		t.Fatalf("unexpected revenue summary: %+v", summary)
	}

	combined, err := agg.CombinedRevenue([]string{"addrA", "addrB"}, 0)
	if err != nil {
		t.Fatalf("combined revenue: %v", err)
	}
	var total float64
	for _, row := range combined {
		total += row.Sum
	}
	if total != 7 {
		t.Fatalf("expected combined total 7, got %f", total)
	}
}

func TestAggregatorRevenueByBlocksNamedPeriod(t *testing.T) {
	s := openTestStore(t)
	agg := NewAggregator(s)

	var blocks []Block
	var payments []Payment
	for h := uint64(1); h <= uint64(BlocksPerDay)+5; h++ {
		blocks = append(blocks, Block{Height: h, Timestamp: int64(h)})
		payments = append(payments, Payment{BlockHeight: h, TxHash: "tx", VoutIndex: int(h), Address: "addrA", Value: 1, Timestamp: int64(h)})
	}
	if err := s.BatchInsert(blocks, payments); err != nil {
		t.Fatalf("batch insert: %v", err)
	}

	tip := uint64(BlocksPerDay) + 5
	result, err := agg.RevenueByBlocks("addrA", "day", tip)
	if err != nil {
		t.Fatalf("revenue by blocks: %v", err)
	}
	if result.Count != BlocksPerDay {
		t.Fatalf("expected exactly %d blocks counted in the trailing day window, got %d", BlocksPerDay, result.Count)
	}
}

func TestAggregatorTransactionsDelegatesToStore(t *testing.T) {
	s := openTestStore(t)
	agg := NewAggregator(s)

	if err := s.BatchInsert([]Block{{Height: 1, Timestamp: 1}}, []Payment{
		{BlockHeight: 1, TxHash: "tx1", VoutIndex: 0, Address: "addrA", Value: 1, Timestamp: 1},
	}); err != nil {
		t.Fatalf("batch insert: %v", err)
	}

	page, err := agg.Transactions("addrA", 1, 10, "")
	if err != nil {
		t.Fatalf("transactions: %v", err)
	}
	if page.Total != 1 {
		t.Fatalf("expected 1 transaction, got %d", page.Total)
	}
}
