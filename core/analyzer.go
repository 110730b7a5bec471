// core/analyzer.go
package core

// Analyze is a pure function over a fetched block body and the set of
// watched addresses, producing payment records with provisional senders.
// It performs no I/O and has no side effects; calling it twice with the
// same arguments always yields the same output sequence in the same
// order.
func Analyze(block *RawBlock, watched map[string]struct{}) []Payment {
	if block == nil || len(watched) == 0 {
		return nil
	}

	var payments []Payment
	for _, tx := range block.Tx {
		if isCoinbase(tx) {
			continue
		}

		var matched []Payment
		for _, out := range tx.Vout {
			for _, addr := range out.Addresses {
				if _, ok := watched[addr]; !ok {
					continue
				}
				matched = append(matched, Payment{
					BlockHeight: block.Height,
					BlockHash:   block.Hash,
					TxHash:      tx.Txid,
					VoutIndex:   out.N,
					Address:     addr,
					Value:       out.Value,
					Timestamp:   block.Time,
				})
			}
		}
		if len(matched) == 0 {
			continue
		}

		source := provisionalSender(tx)
		for i := range matched {
			matched[i].Source = source
			if source.Kind == SourceInline {
				matched[i].FromAddress = source.Address
			} else if source.Kind == SourceUnknown {
				matched[i].FromAddress = "Unknown"
			}
			// SourceUnresolved leaves FromAddress empty; the Sync
			// Engine fills it in after a resolve_sender round trip.
		}
		payments = append(payments, matched...)
	}
	return payments
}

// isCoinbase reports whether a transaction's first input is a coinbase
// marker (no prior transaction it spends from).
func isCoinbase(tx RawTx) bool {
	if len(tx.Vin) == 0 {
		return false
	}
	return tx.Vin[0].Coinbase != ""
}

// provisionalSender determines a transaction's sender source from its
// first input, without resolving it. Inline addresses are used as-is;
// previous-output references become SourceUnresolved for the Sync Engine
// to resolve later via the Chain Client; anything else is SourceUnknown.
func provisionalSender(tx RawTx) PaymentSource {
	if len(tx.Vin) == 0 {
		return UnknownSource()
	}
	first := tx.Vin[0]
	if first.Address != "" {
		return InlineAddress(first.Address)
	}
	if first.Txid != "" {
		return UnresolvedSource(first.Txid, first.Vout)
	}
	return UnknownSource()
}

// WatchedSet builds the lookup set Analyze expects from a configured
// address list.
func WatchedSet(addresses []string) map[string]struct{} {
	set := make(map[string]struct{}, len(addresses))
	for _, addr := range addresses {
		set[addr] = struct{}{}
	}
	return set
}
