package core

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/2ndtlmining/fluxrevenue-go/pkg/config"
)

func envelopeJSON(t *testing.T, data any) []byte {
	t.Helper()
	raw, err := json.Marshal(data)
	if err != nil {
		t.Fatalf("marshal envelope data: %v", err)
	}
	out, err := json.Marshal(map[string]json.RawMessage{
		"status": json.RawMessage(`"success"`),
		"data":   raw,
	})
	if err != nil {
		t.Fatalf("marshal envelope: %v", err)
	}
	return out
}

func testChainClient(t *testing.T, handler http.HandlerFunc) *ChainClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg := config.Default()
	cfg.Chain.BaseURL = srv.URL
	cfg.Chain.StatsHost = srv.URL
	cfg.Chain.ConnTimeout = 2 * time.Second
	cfg.Chain.MaxConcurrent = 4
	cfg.Chain.RequestDelay = 0
	// Node stats go stale at once, so each NodeCounts call refetches.
	cfg.Cache.NodeStatsTTL = time.Nanosecond

	client, err := NewChainClient(cfg, logrus.New())
	if err != nil {
		t.Fatalf("new chain client: %v", err)
	}
	return client
}

func TestChainClientTipPrefersGetInfo(t *testing.T) {
	client := testChainClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/daemon/getinfo" {
			w.Write(envelopeJSON(t, map[string]any{"blocks": 1234}))
			return
		}
		http.Error(w, "unexpected path", http.StatusNotFound)
	})

	tip, err := client.Tip(context.Background())
	if err != nil {
		t.Fatalf("tip: %v", err)
	}
	if tip != 1234 {
		t.Fatalf("expected tip 1234, got %d", tip)
	}
}

func TestChainClientTipFallsBackToGetBlockCount(t *testing.T) {
	client := testChainClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/daemon/getinfo":
			http.Error(w, "down", http.StatusInternalServerError)
		case "/daemon/getblockcount":
			w.Write(envelopeJSON(t, 555))
		default:
			http.Error(w, "unexpected path", http.StatusNotFound)
		}
	})

	tip, err := client.Tip(context.Background())
	if err != nil {
		t.Fatalf("tip: %v", err)
	}
	if tip != 555 {
		t.Fatalf("expected fallback tip 555, got %d", tip)
	}
}

func TestChainClientFetchBlocksPreservesOrderAndIsolatesFailures(t *testing.T) {
	client := testChainClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("hashheight") == "13" {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		height := r.URL.Query().Get("hashheight")
		var h uint64
		switch height {
		case "10":
			h = 10
		case "11":
			h = 11
		case "12":
			h = 12
		}
		w.Write(envelopeJSON(t, RawBlock{Height: h, Hash: "h", Time: 1}))
	})

	results := client.FetchBlocks(context.Background(), []uint64{10, 11, 12, 13})
	if len(results) != 4 {
		t.Fatalf("expected 4 results, got %d", len(results))
	}
	for i, want := range []uint64{10, 11, 12, 13} {
		if results[i].Height != want {
			t.Fatalf("expected result %d to be height %d, got %d", i, want, results[i].Height)
		}
	}
	if results[3].Err == nil {
		t.Fatalf("expected height 13 to fail")
	}
	for _, i := range []int{0, 1, 2} {
		if results[i].Err != nil {
			t.Fatalf("expected height %d to succeed, got err %v", results[i].Height, results[i].Err)
		}
	}
}

func TestChainClientNodeCountsStaleOnError(t *testing.T) {
	fail := false
	client := testChainClient(t, func(w http.ResponseWriter, r *http.Request) {
		if fail {
			http.Error(w, "down", http.StatusInternalServerError)
			return
		}
		w.Write(envelopeJSON(t, FleetCounts{Cumulus: 1, Nimbus: 2, Stratus: 3, Total: 6}))
	})

	counts, source, err := client.NodeCounts(context.Background())
	if err != nil {
		t.Fatalf("node counts: %v", err)
	}
	if source != "api" || counts.Total != 6 {
		t.Fatalf("expected fresh api result, got source=%q counts=%+v", source, counts)
	}

	fail = true
	counts, source, err = client.NodeCounts(context.Background())
	if err != nil {
		t.Fatalf("expected stale fallback, not an error: %v", err)
	}
	if source != "cache" || counts.Total != 6 {
		t.Fatalf("expected stale cache result, got source=%q counts=%+v", source, counts)
	}
}

func TestChainClientFetchBlockReturnsErrNotFoundOn404(t *testing.T) {
	client := testChainClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no such block", http.StatusNotFound)
	})

	results := client.FetchBlocks(context.Background(), []uint64{999})
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	if !errors.Is(results[0].Err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", results[0].Err)
	}
}

func TestChainClientResolveSenderUnknownOnFailure(t *testing.T) {
	client := testChainClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusInternalServerError)
	})

	addr := client.ResolveSender(context.Background(), "prevtx", 0)
	if addr != "Unknown" {
		t.Fatalf("expected Unknown on lookup failure, got %q", addr)
	}
}
