package core

import "testing"

func rawTx(txid string, vin []RawVin, vout []RawVout) RawTx {
	return RawTx{Txid: txid, Vin: vin, Vout: vout}
}

func TestAnalyzeSkipsCoinbase(t *testing.T) {
	watched := WatchedSet([]string{"addrA"})
	block := &RawBlock{
		Height: 10,
		Hash:   "blockhash",
		Time:   1000,
		Tx: []RawTx{
			rawTx("tx1", []RawVin{{Coinbase: "04ffff"}}, []RawVout{{N: 0, Value: 12.5, Addresses: []string{"addrA"}}}),
		},
	}

	got := Analyze(block, watched)
	if len(got) != 0 {
		t.Fatalf("expected coinbase tx to be skipped, got %d payments", len(got))
	}
}

func TestAnalyzeInlineSender(t *testing.T) {
	watched := WatchedSet([]string{"addrA"})
	block := &RawBlock{
		Height: 11,
		Hash:   "blockhash2",
		Time:   2000,
		Tx: []RawTx{
			rawTx("tx2",
				[]RawVin{{Address: "addrSender"}},
				[]RawVout{{N: 0, Value: 1.5, Addresses: []string{"addrA"}}},
			),
		},
	}

	got := Analyze(block, watched)
	if len(got) != 1 {
		t.Fatalf("expected 1 payment, got %d", len(got))
	}
	p := got[0]
	if p.Source.Kind != SourceInline || p.FromAddress != "addrSender" {
		t.Fatalf("expected inline sender addrSender, got kind=%v from=%q", p.Source.Kind, p.FromAddress)
	}
	if p.Address != "addrA" || p.Value != 1.5 || p.BlockHeight != 11 {
		t.Fatalf("unexpected payment fields: %+v", p)
	}
}

func TestAnalyzeUnresolvedSender(t *testing.T) {
	watched := WatchedSet([]string{"addrA"})
	block := &RawBlock{
		Height: 12,
		Tx: []RawTx{
			rawTx("tx3",
				[]RawVin{{Txid: "prevtx", Vout: 2}},
				[]RawVout{{N: 0, Value: 3, Addresses: []string{"addrA"}}},
			),
		},
	}

	got := Analyze(block, watched)
	if len(got) != 1 {
		t.Fatalf("expected 1 payment, got %d", len(got))
	}
	if got[0].Source.Kind != SourceUnresolved {
		t.Fatalf("expected SourceUnresolved, got %v", got[0].Source.Kind)
	}
	if got[0].Source.PrevTxHash != "prevtx" || got[0].Source.PrevVout != 2 {
		t.Fatalf("unexpected source: %+v", got[0].Source)
	}
	if got[0].FromAddress != "" {
		t.Fatalf("expected FromAddress empty until resolved, got %q", got[0].FromAddress)
	}
}

func TestAnalyzeMultipleOutputsSameTx(t *testing.T) {
	watched := WatchedSet([]string{"addrA", "addrB"})
	block := &RawBlock{
		Height: 13,
		Tx: []RawTx{
			rawTx("tx4",
				[]RawVin{{Address: "addrSender"}},
				[]RawVout{
					{N: 0, Value: 1, Addresses: []string{"addrA"}},
					{N: 1, Value: 2, Addresses: []string{"addrB"}},
					{N: 2, Value: 3, Addresses: []string{"addrUnwatched"}},
				},
			),
		},
	}

	got := Analyze(block, watched)
	if len(got) != 2 {
		t.Fatalf("expected 2 matched payments, got %d", len(got))
	}
	for _, p := range got {
		if p.FromAddress != "addrSender" {
			t.Fatalf("expected every matched payment to share the tx's sender, got %q", p.FromAddress)
		}
	}
}

func TestAnalyzeNilBlockOrEmptyWatchlist(t *testing.T) {
	if got := Analyze(nil, WatchedSet([]string{"addrA"})); got != nil {
		t.Fatalf("expected nil for nil block, got %v", got)
	}
	block := &RawBlock{Height: 1, Tx: []RawTx{rawTx("tx", nil, []RawVout{{N: 0, Addresses: []string{"addrA"}}})}}
	if got := Analyze(block, nil); got != nil {
		t.Fatalf("expected nil for empty watchlist, got %v", got)
	}
}
