// Package fetcher talks to the external price API.
package fetcher

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"ocw-node/logger"
	"ocw-node/models"
)

const (
	DefaultDeadline  = 8000 * time.Millisecond
	DefaultUserAgent = "Substrate-Offchain-Worker"

	maxBodyBytes = 1 << 20
)

// Client fetches price quotes. It never retries.
type Client struct {
	http      *http.Client
	endpoint  string
	userAgent string
	deadline  time.Duration
}

// NewClient returns a client for endpoint. A zero deadline means DefaultDeadline
// and an empty userAgent means DefaultUserAgent.
func NewClient(endpoint, userAgent string, deadline time.Duration) *Client {
	if deadline <= 0 {
		deadline = DefaultDeadline
	}
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	return &Client{
		http:      &http.Client{},
		endpoint:  endpoint,
		userAgent: userAgent,
		deadline:  deadline,
	}
}

// assetInfo is the expected response shape: {"data":{"price_usd":<int>}}.
type assetInfo struct {
	Data *struct {
		PriceUSD *uint32 `json:"price_usd"`
	} `json:"data"`
}

// FetchQuote issues one GET and blocks until a response or the deadline,
// measured from this call.
func (c *Client) FetchQuote(ctx context.Context) (*models.PriceQuote, error) {
	ctx, cancel := context.WithTimeout(ctx, c.deadline)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint, nil)
	if err != nil {
		return nil, &FetchError{Kind: KindIo, Err: err}
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, transportError(ctx, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		logger.Logger.Warn("Unexpected status code", zap.Int("status", resp.StatusCode))
		return nil, &FetchError{Kind: KindHTTPStatus, StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, transportError(ctx, err)
	}
	return decodeQuote(body)
}

func decodeQuote(body []byte) (*models.PriceQuote, error) {
	if !utf8.Valid(body) {
		logger.Logger.Warn("No UTF8 body")
		return nil, &FetchError{Kind: KindDecode, Err: errors.New("body is not valid utf-8")}
	}

	var info assetInfo
	if err := json.Unmarshal(body, &info); err != nil {
		return nil, &FetchError{Kind: KindDecode, Err: err}
	}
	if info.Data == nil || info.Data.PriceUSD == nil {
		return nil, &FetchError{Kind: KindDecode, Err: errors.New("missing data.price_usd")}
	}
	return &models.PriceQuote{PriceUSD: *info.Data.PriceUSD}, nil
}

func transportError(ctx context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return &FetchError{Kind: KindTimeout, Err: err}
	}
	return &FetchError{Kind: KindIo, Err: err}
}
