// core/chain_client.go
package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/2ndtlmining/fluxrevenue-go/pkg/config"
	"github.com/2ndtlmining/fluxrevenue-go/pkg/utils"
)

// Sentinel errors surfaced by the chain client. Callers check them with
// errors.Is rather than string-matching.
var (
	ErrUpstreamEnvelope = errors.New("upstream response missing success envelope")
	ErrNotFound         = errors.New("upstream resource not found")
)

// envelope is the `{status, data}` JSON wrapper every upstream endpoint
// returns.
type envelope[T any] struct {
	Status string `json:"status"`
	Data   T      `json:"data"`
}

// RawVout is a single transaction output as the daemon reports it.
type RawVout struct {
	Value     float64  `json:"value"`
	N         int      `json:"n"`
	Addresses []string `json:"addresses"`
}

// RawVin is a single transaction input as the daemon reports it.
type RawVin struct {
	Txid     string `json:"txid"`
	Vout     int    `json:"vout"`
	Address  string `json:"address"`
	Coinbase string `json:"coinbase"`
}

// RawTx is a transaction as it appears inside a block body or as the result
// of a transaction-by-id lookup.
type RawTx struct {
	Txid string    `json:"txid"`
	Vin  []RawVin  `json:"vin"`
	Vout []RawVout `json:"vout"`
}

// RawBlock is a block body as returned by getblock.
type RawBlock struct {
	Height uint64  `json:"height"`
	Hash   string  `json:"hash"`
	Time   int64   `json:"time"`
	Tx     []RawTx `json:"tx"`
}

// BlockFetchResult pairs a requested height with either its body or the
// error that prevented fetching it. fetch_blocks never panics or retries
// internally; it reports one of these per requested height, in input order.
type BlockFetchResult struct {
	Height uint64
	Body   *RawBlock
	Err    error
}

// FleetCounts is the node-tier breakdown from getfluxnodecount.
type FleetCounts struct {
	Cumulus int
	Nimbus  int
	Stratus int
	Total   int
}

// FleetResources is the aggregate resource/benchmark view from fluxinfo.
type FleetResources struct {
	TotalCPUCores  float64
	TotalMemoryGB  float64
	TotalStorageGB float64
}

// UtilizationStats is the utilization-ratio view from fluxinfo.
type UtilizationStats struct {
	CPUUtilization float64
	MemUtilization float64
}

type addrCacheKey struct {
	txid string
	vout int
}

// ChainClient is a parallel, rate-limited, cached reader of a single
// chain node's HTTP JSON API. It never mutates chain state and never
// retries internally; batch-level retry policy belongs to the Sync
// Engine.
type ChainClient struct {
	baseURL       string
	statsHost     string
	maxConcurrent int
	httpClient    *http.Client
	limiter       *rate.Limiter
	logger        *logrus.Logger

	addrCache  *TTLCache[addrCacheKey, string]
	blockCache *TTLCache[uint64, *RawBlock]

	nodeCache     *TTLCache[string, FleetCounts]
	arcaneCache   *TTLCache[string, FleetResources]
	utilCache     *TTLCache[string, UtilizationStats]
	combinedCache *TTLCache[string, FleetResources]
	appsCache     *TTLCache[string, int]

	metrics *Metrics
}

// SetMetrics attaches a Metrics sink so cache hit/miss counters are
// recorded; optional, and safe to call once after construction.
func (c *ChainClient) SetMetrics(m *Metrics) {
	c.metrics = m
}

func (c *ChainClient) recordCache(name string, hit bool) {
	if c.metrics == nil {
		return
	}
	if hit {
		c.metrics.RecordCacheHit(name)
	} else {
		c.metrics.RecordCacheMiss(name)
	}
}

// NewChainClient wires a ChainClient from configuration. The caches are
// sized and TTL'd from cfg.
func NewChainClient(cfg config.Config, logger *logrus.Logger) (*ChainClient, error) {
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	addrCache, err := NewTTLCache[addrCacheKey, string](cfg.Cache.AddressCacheSize, 0)
	if err != nil {
		return nil, utils.Wrap(err, "build address cache")
	}
	blockCache, err := NewTTLCache[uint64, *RawBlock](cfg.Cache.BlockCacheSize, 0)
	if err != nil {
		return nil, utils.Wrap(err, "build block cache")
	}
	nodeCache, err := NewTTLCache[string, FleetCounts](1, cfg.Cache.NodeStatsTTL)
	if err != nil {
		return nil, utils.Wrap(err, "build node-stats cache")
	}
	arcaneCache, err := NewTTLCache[string, FleetResources](1, cfg.Cache.ArcaneStatsTTL)
	if err != nil {
		return nil, utils.Wrap(err, "build arcane-stats cache")
	}
	utilCache, err := NewTTLCache[string, UtilizationStats](1, cfg.Cache.UtilizationTTL)
	if err != nil {
		return nil, utils.Wrap(err, "build utilization cache")
	}
	combinedCache, err := NewTTLCache[string, FleetResources](1, cfg.Cache.CombinedTTL)
	if err != nil {
		return nil, utils.Wrap(err, "build combined cache")
	}
	appsCache, err := NewTTLCache[string, int](1, cfg.Cache.RunningAppsTTL)
	if err != nil {
		return nil, utils.Wrap(err, "build running-apps cache")
	}

	requestsPerSecond := rate.Inf
	if cfg.Chain.RequestDelay > 0 {
		requestsPerSecond = rate.Every(cfg.Chain.RequestDelay)
	}

	return &ChainClient{
		baseURL:       cfg.Chain.BaseURL,
		statsHost:     cfg.Chain.StatsHost,
		maxConcurrent: cfg.Chain.MaxConcurrent,
		httpClient:    &http.Client{Timeout: cfg.Chain.ConnTimeout},
		limiter:       rate.NewLimiter(requestsPerSecond, maxInt(cfg.Chain.MaxConcurrent, 1)),
		logger:        logger,
		addrCache:     addrCache,
		blockCache:    blockCache,
		nodeCache:     nodeCache,
		arcaneCache:   arcaneCache,
		utilCache:     utilCache,
		combinedCache: combinedCache,
		appsCache:     appsCache,
	}, nil
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// getJSON performs a rate-limited, context-bounded GET and decodes the
// `{status, data}` envelope into data.
func (c *ChainClient) getJSON(ctx context.Context, url string, data any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return fmt.Errorf("upstream %s: %d: %s", url, resp.StatusCode, string(body))
	}

	var env envelope[json.RawMessage]
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return utils.Wrap(err, "decode envelope")
	}
	if env.Status != "success" {
		return ErrUpstreamEnvelope
	}
	if data == nil {
		return nil
	}
	return json.Unmarshal(env.Data, data)
}

// Tip returns the current chain tip height, preferring getinfo and falling
// back to getblockcount on failure.
func (c *ChainClient) Tip(ctx context.Context) (uint64, error) {
	var info struct {
		Blocks uint64 `json:"blocks"`
	}
	if err := c.getJSON(ctx, c.baseURL+"/daemon/getinfo", &info); err == nil {
		return info.Blocks, nil
	}

	var count uint64
	if err := c.getJSON(ctx, c.baseURL+"/daemon/getblockcount", &count); err != nil {
		return 0, utils.Wrap(err, "fetch tip")
	}
	return count, nil
}

// FetchBlocks fetches heights in input order, fanning out up to
// MaxConcurrent outstanding requests at any instant; additional requests
// queue FIFO behind errgroup.SetLimit. Individual failures do not abort
// sibling fetches.
func (c *ChainClient) FetchBlocks(ctx context.Context, heights []uint64) []BlockFetchResult {
	results := make([]BlockFetchResult, len(heights))

	g, gctx := errgroup.WithContext(ctx)
	limit := c.maxConcurrent
	if limit <= 0 {
		limit = 1
	}
	g.SetLimit(limit)

	for i, height := range heights {
		i, height := i, height
		g.Go(func() error {
			body, err := c.fetchBlock(gctx, height)
			results[i] = BlockFetchResult{Height: height, Body: body, Err: err}
			return nil // per-item errors never abort siblings
		})
	}
	_ = g.Wait()
	return results
}

func (c *ChainClient) fetchBlock(ctx context.Context, height uint64) (*RawBlock, error) {
	if cached, ok := c.blockCache.Get(height); ok {
		c.recordCache("block", true)
		return cached, nil
	}
	c.recordCache("block", false)
	var block RawBlock
	url := fmt.Sprintf("%s/daemon/getblock?hashheight=%d", c.baseURL, height)
	if err := c.getJSON(ctx, url, &block); err != nil {
		return nil, err
	}
	block.Height = height
	c.blockCache.Add(height, &block)
	return &block, nil
}

// ResolveSender looks up the recipient address of a previous output,
// caching the result (including "Unknown" on failure) keyed by
// (prevTxHash, vout).
func (c *ChainClient) ResolveSender(ctx context.Context, prevTxHash string, vout int) string {
	key := addrCacheKey{txid: prevTxHash, vout: vout}
	if cached, ok := c.addrCache.Get(key); ok {
		c.recordCache("address", true)
		return cached
	}
	c.recordCache("address", false)

	addr := c.lookupSender(ctx, prevTxHash, vout)
	c.addrCache.Add(key, addr)
	return addr
}

func (c *ChainClient) lookupSender(ctx context.Context, txid string, vout int) string {
	var tx RawTx
	url := fmt.Sprintf("%s/daemon/getrawtransaction?txid=%s&decrypt=1", c.baseURL, txid)
	if err := c.getJSON(ctx, url, &tx); err != nil {
		c.logger.WithError(err).WithField("txid", txid).Debug("resolve_sender: lookup failed")
		return "Unknown"
	}
	if vout < 0 || vout >= len(tx.Vout) || len(tx.Vout[vout].Addresses) == 0 {
		return "Unknown"
	}
	return tx.Vout[vout].Addresses[0]
}

// Balance returns an address's balance in whole coin units (upstream
// reports base units scaled by 1e8).
func (c *ChainClient) Balance(ctx context.Context, address string) (float64, error) {
	var amount int64
	url := fmt.Sprintf("%s/explorer/balance/%s", c.baseURL, address)
	if err := c.getJSON(ctx, url, &amount); err != nil {
		return 0, utils.Wrap(err, "fetch balance")
	}
	return float64(amount) / 1e8, nil
}

// cachedFetch serves a fresh cached value without calling upstream;
// otherwise it runs fetch, caching its result on success, and on failure
// falls back to a stale cached value if one exists, annotating the data
// source it actually served. Declared as a free function rather than a
// method since Go methods cannot carry their own type parameters.
func cachedFetch[T any](cache *TTLCache[string, T], key string, fetch func() (T, error), logger *logrus.Logger) (T, string, error) {
	if cached, ok := cache.Get(key); ok {
		return cached, "cache", nil
	}
	val, err := fetch()
	if err == nil {
		cache.Add(key, val)
		return val, "api", nil
	}
	if stale, present, _ := cache.GetStale(key); present {
		logger.WithError(err).Warn("network stats refresh failed, serving stale cache")
		return stale, "cache", nil
	}
	var zero T
	return zero, "failed", err
}

const statsCacheKey = "latest"

// NodeCounts returns the fleet tier breakdown (getfluxnodecount), with a
// 5-minute cache and stale-on-error fallback.
func (c *ChainClient) NodeCounts(ctx context.Context) (FleetCounts, string, error) {
	return cachedFetch(c.nodeCache, statsCacheKey, func() (FleetCounts, error) {
		var counts FleetCounts
		if err := c.getJSON(ctx, c.baseURL+"/daemon/getfluxnodecount", &counts); err != nil {
			return FleetCounts{}, err
		}
		return counts, nil
	}, c.logger)
}

// ArcaneStats returns fleet-wide hardware benchmark totals from fluxinfo,
// 10-minute cache.
func (c *ChainClient) ArcaneStats(ctx context.Context) (FleetResources, string, error) {
	return cachedFetch(c.arcaneCache, statsCacheKey, func() (FleetResources, error) {
		var res FleetResources
		url := c.statsHost + "/fluxinfo?projection=benchmark"
		if err := c.getJSON(ctx, url, &res); err != nil {
			return FleetResources{}, err
		}
		return res, nil
	}, c.logger)
}

// Utilization returns fleet-wide CPU/memory utilization ratios, 3-minute
// cache.
func (c *ChainClient) Utilization(ctx context.Context) (UtilizationStats, string, error) {
	return cachedFetch(c.utilCache, statsCacheKey, func() (UtilizationStats, error) {
		var res UtilizationStats
		url := c.statsHost + "/fluxinfo?projection=resources"
		if err := c.getJSON(ctx, url, &res); err != nil {
			return UtilizationStats{}, err
		}
		return res, nil
	}, c.logger)
}

// Combined returns the merged resource/benchmark view, cached separately
// from ArcaneStats since callers may poll it on a different cadence.
func (c *ChainClient) Combined(ctx context.Context) (FleetResources, string, error) {
	return cachedFetch(c.combinedCache, statsCacheKey, func() (FleetResources, error) {
		var res FleetResources
		url := c.statsHost + "/fluxinfo?projection=full"
		if err := c.getJSON(ctx, url, &res); err != nil {
			return FleetResources{}, err
		}
		return res, nil
	}, c.logger)
}

// RunningApps returns the fleet-wide running-application count, 2-minute
// cache.
func (c *ChainClient) RunningApps(ctx context.Context) (int, string, error) {
	return cachedFetch(c.appsCache, statsCacheKey, func() (int, error) {
		var count int
		url := c.statsHost + "/fluxinfo?projection=apps"
		if err := c.getJSON(ctx, url, &count); err != nil {
			return 0, err
		}
		return count, nil
	}, c.logger)
}

