// internal/dex/cpmm/pool_api.go
package cpmm

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	indexRequestTimeout    = 10 * time.Second
	indexRequestsPerSecond = 10
	indexRequestBurst      = 20
	indexPageSize          = 100
)

// IndexClient talks to the pool index service. It is only consulted on
// clusters the index covers; devnet pools are decoded from chain state.
type IndexClient struct {
	client  *http.Client
	limiter *rate.Limiter
	logger  *zap.Logger
	baseURL string
}

// NewIndexClient creates a client for the index service. An empty baseURL
// selects the public endpoint.
func NewIndexClient(baseURL string, logger *zap.Logger) *IndexClient {
	if baseURL == "" {
		baseURL = indexAPIBaseURL
	}
	return &IndexClient{
		client: &http.Client{
			Timeout: indexRequestTimeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxConnsPerHost:     100,
				MaxIdleConnsPerHost: 100,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		limiter: rate.NewLimiter(rate.Limit(indexRequestsPerSecond), indexRequestBurst),
		logger:  logger.Named("pool-index"),
		baseURL: baseURL,
	}
}

type apiEnvelope struct {
	ID      string          `json:"id"`
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
}

type apiMint struct {
	Address   string `json:"address"`
	ProgramID string `json:"programId"`
	Decimals  uint8  `json:"decimals"`
	Symbol    string `json:"symbol,omitempty"`
}

type apiDayStats struct {
	Volume float64 `json:"volume"`
}

type apiPoolConfig struct {
	ID              string `json:"id"`
	Index           uint16 `json:"index"`
	ProtocolFeeRate uint64 `json:"protocolFeeRate"`
	TradeFeeRate    uint64 `json:"tradeFeeRate"`
	FundFeeRate     uint64 `json:"fundFeeRate"`
	CreatePoolFee   string `json:"createPoolFee"`
}

type apiPoolInfo struct {
	Type        string         `json:"type"`
	ProgramID   string         `json:"programId"`
	ID          string         `json:"id"`
	MintA       apiMint        `json:"mintA"`
	MintB       apiMint        `json:"mintB"`
	MintAmountA float64        `json:"mintAmountA"`
	MintAmountB float64        `json:"mintAmountB"`
	FeeRate     float64        `json:"feeRate"`
	OpenTime    string         `json:"openTime"`
	TVL         float64        `json:"tvl"`
	Day         apiDayStats    `json:"day"`
	LpMint      apiMint        `json:"lpMint"`
	LpAmount    float64        `json:"lpAmount"`
	Config      *apiPoolConfig `json:"config"`
}

type apiPoolPage struct {
	Count       int           `json:"count"`
	Data        []apiPoolInfo `json:"data"`
	HasNextPage bool          `json:"hasNextPage"`
}

// FetchPoolByID loads one pool's info. Returns nil when the index does not
// know the id.
func (c *IndexClient) FetchPoolByID(ctx context.Context, poolID string) (*apiPoolInfo, error) {
	path := "/pools/info/ids?ids=" + url.QueryEscape(poolID)
	var pools []*apiPoolInfo
	if err := c.doRequest(ctx, path, &pools); err != nil {
		return nil, err
	}
	if len(pools) == 0 || pools[0] == nil {
		return nil, nil
	}
	return pools[0], nil
}

// FetchPoolsByMints loads the first page of standard pools holding the pair,
// ordered by the sort field descending.
func (c *IndexClient) FetchPoolsByMints(ctx context.Context, mint1, mint2 string, sortBy PoolSortField) ([]apiPoolInfo, error) {
	if sortBy == "" {
		sortBy = SortByLiquidity
	}
	query := url.Values{}
	query.Set("mint1", mint1)
	query.Set("mint2", mint2)
	query.Set("poolType", "standard")
	query.Set("poolSortField", string(sortBy))
	query.Set("sortType", "desc")
	query.Set("pageSize", strconv.Itoa(indexPageSize))
	query.Set("page", "1")

	var page apiPoolPage
	if err := c.doRequest(ctx, "/pools/info/mint?"+query.Encode(), &page); err != nil {
		return nil, err
	}
	return page.Data, nil
}

// FetchFeeConfigs loads the protocol fee tiers.
func (c *IndexClient) FetchFeeConfigs(ctx context.Context) ([]FeeConfig, error) {
	var raw []apiPoolConfig
	if err := c.doRequest(ctx, "/main/cpmm-config", &raw); err != nil {
		return nil, err
	}

	configs := make([]FeeConfig, 0, len(raw))
	for _, cfg := range raw {
		id, err := parseKey("fee config id", cfg.ID)
		if err != nil {
			return nil, err
		}
		createPoolFee := uint64(0)
		if cfg.CreatePoolFee != "" {
			createPoolFee, err = strconv.ParseUint(cfg.CreatePoolFee, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("invalid create pool fee %q: %w", cfg.CreatePoolFee, err)
			}
		}
		configs = append(configs, FeeConfig{
			ID:              id,
			Index:           cfg.Index,
			TradeFeeRate:    cfg.TradeFeeRate,
			ProtocolFeeRate: cfg.ProtocolFeeRate,
			FundFeeRate:     cfg.FundFeeRate,
			CreatePoolFee:   createPoolFee,
		})
	}
	return configs, nil
}

func (c *IndexClient) doRequest(ctx context.Context, path string, out interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	c.logger.Debug("index request completed",
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", time.Since(start)))

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("unexpected status code: %d, body: %s", resp.StatusCode, string(body))
	}

	var envelope apiEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if !envelope.Success {
		return fmt.Errorf("index service returned unsuccessful response for %s", path)
	}
	if err := json.Unmarshal(envelope.Data, out); err != nil {
		return fmt.Errorf("decode response data: %w", err)
	}
	return nil
}
