// Package feed publishes market data to a live market data feed.
package feed

import (
	"context"
	"sync/atomic"

	"github.com/coachpo/chronicle/errs"
	"github.com/coachpo/chronicle/internal/domain/marketdata"
)

// Scope names the feed client in error envelopes.
const Scope = "feed"

// ErrClosed is returned by publishes on a client that is not open.
var ErrClosed = errs.New(Scope, errs.CodeUnavailable, errs.WithMessage("feed client not open"))

// Client publishes records to a market data feed. Publishes are safe for concurrent use
// once Open returns.
type Client interface {
	Open(ctx context.Context) error
	Close() error
	PublishBboQuote(ctx context.Context, v marketdata.SecurityBboQuote) error
	PublishBookQuote(ctx context.Context, v marketdata.SecurityBookQuote) error
	PublishTimeAndSale(ctx context.Context, v marketdata.SecurityTimeAndSale) error
	PublishMarketQuote(ctx context.Context, v marketdata.MarketWideMarketQuote) error
}

// NullClient discards every record. It counts publishes for dry runs.
type NullClient struct {
	published atomic.Int64
}

var _ Client = (*NullClient)(nil)

// Published returns the number of records discarded.
func (c *NullClient) Published() int64 { return c.published.Load() }

func (c *NullClient) Open(context.Context) error { return nil }
func (c *NullClient) Close() error                { return nil }

func (c *NullClient) PublishBboQuote(context.Context, marketdata.SecurityBboQuote) error {
	c.published.Add(1)
	return nil
}

func (c *NullClient) PublishBookQuote(context.Context, marketdata.SecurityBookQuote) error {
	c.published.Add(1)
	return nil
}

func (c *NullClient) PublishTimeAndSale(context.Context, marketdata.SecurityTimeAndSale) error {
	c.published.Add(1)
	return nil
}

func (c *NullClient) PublishMarketQuote(context.Context, marketdata.MarketWideMarketQuote) error {
	c.published.Add(1)
	return nil
}
