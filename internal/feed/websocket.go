package feed

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/coder/websocket"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/coachpo/chronicle/errs"
	"github.com/coachpo/chronicle/internal/domain/marketdata"
	"github.com/coachpo/chronicle/internal/observability"
)

const (
	defaultDialTimeout   = 5 * time.Second
	defaultWriteTimeout  = 5 * time.Second
	defaultDialAttempts  = 5
	maxReconnectInterval = 10 * time.Second
)

// Options configures a WebSocketClient.
type Options struct {
	URL string
	// MaxRate bounds publishes per second. Zero disables pacing.
	MaxRate      float64
	DialTimeout  time.Duration
	WriteTimeout time.Duration
	// DialAttempts bounds the dials made by Open.
	DialAttempts int
	Logger       observability.Logger
}

// WebSocketClient publishes JSON frames over one WebSocket connection.
type WebSocketClient struct {
	opts    Options
	session string
	limiter *rate.Limiter
	logger  observability.Logger

	mu     sync.Mutex
	conn   *websocket.Conn
	closed bool
}

var _ Client = (*WebSocketClient)(nil)

// NewWebSocketClient returns a client for opts.URL. Each client carries a fresh
// session id stamped on every frame.
func NewWebSocketClient(opts Options) (*WebSocketClient, error) {
	if strings.TrimSpace(opts.URL) == "" {
		return nil, errs.New(Scope, errs.CodeInvalid, errs.WithMessage("feed url required"))
	}
	if opts.DialTimeout <= 0 {
		opts.DialTimeout = defaultDialTimeout
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = defaultWriteTimeout
	}
	if opts.DialAttempts <= 0 {
		opts.DialAttempts = defaultDialAttempts
	}
	limit := rate.Inf
	if opts.MaxRate > 0 {
		limit = rate.Limit(opts.MaxRate)
	}
	logger := opts.Logger
	if logger == nil {
		logger = observability.Log()
	}
	return &WebSocketClient{
		opts:    opts,
		session: uuid.NewString(),
		limiter: rate.NewLimiter(limit, max(1, int(opts.MaxRate))),
		logger:  logger,
	}, nil
}

// Session returns the session id stamped on frames.
func (c *WebSocketClient) Session() string { return c.session }

// Open dials the feed, retrying with exponential backoff.
func (c *WebSocketClient) Open(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	if c.conn != nil {
		return nil
	}

	backoffCfg := backoff.NewExponentialBackOff()
	backoffCfg.MaxInterval = maxReconnectInterval

	var lastErr error
	for attempt := 1; attempt <= c.opts.DialAttempts; attempt++ {
		dialCtx, cancel := context.WithTimeout(ctx, c.opts.DialTimeout)
		conn, _, err := websocket.Dial(dialCtx, c.opts.URL, nil)
		cancel()
		if err == nil {
			c.conn = conn
			c.logger.Info("feed connected",
				observability.Field{Key: "url", Value: c.opts.URL},
				observability.Field{Key: "session", Value: c.session})
			return nil
		}
		lastErr = err
		c.logger.Error("feed dial failed",
			observability.Field{Key: "url", Value: c.opts.URL},
			observability.Field{Key: "attempt", Value: attempt},
			observability.Err(err))
		if attempt == c.opts.DialAttempts {
			break
		}
		sleep := backoffCfg.NextBackOff()
		if sleep == backoff.Stop {
			sleep = maxReconnectInterval
		}
		select {
		case <-ctx.Done():
			return errs.New(Scope, errs.CodeUnavailable, errs.WithMessage("dial canceled"), errs.WithCause(ctx.Err()))
		case <-time.After(sleep):
		}
	}
	return errs.New(Scope, errs.CodeUnavailable,
		errs.WithMessage(fmt.Sprintf("dial %s", c.opts.URL)), errs.WithCause(lastErr))
}

// Close closes the connection. It is idempotent.
func (c *WebSocketClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close(websocket.StatusNormalClosure, "")
	c.conn = nil
	var closeErr websocket.CloseError
	if errors.As(err, &closeErr) {
		return nil
	}
	return err
}

func (c *WebSocketClient) publish(ctx context.Context, kind marketdata.Kind, index string, value any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	data, err := encodeFrame(kind, c.session, index, value)
	if err != nil {
		return fmt.Errorf("feed: encode %s: %w", kind, err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return ErrClosed
	}
	writeCtx, cancel := context.WithTimeout(ctx, c.opts.WriteTimeout)
	defer cancel()
	if err := c.conn.Write(writeCtx, websocket.MessageText, data); err != nil {
		return errs.New(Scope, errs.CodeUnavailable, errs.WithMessage("write frame"), errs.WithCause(err))
	}
	return nil
}

// PublishBboQuote implements Client.
func (c *WebSocketClient) PublishBboQuote(ctx context.Context, v marketdata.SecurityBboQuote) error {
	return c.publish(ctx, marketdata.KindBboQuote, v.Index.String(), v.Value)
}

// PublishBookQuote implements Client.
func (c *WebSocketClient) PublishBookQuote(ctx context.Context, v marketdata.SecurityBookQuote) error {
	return c.publish(ctx, marketdata.KindBookQuote, v.Index.String(), v.Value)
}

// PublishTimeAndSale implements Client.
func (c *WebSocketClient) PublishTimeAndSale(ctx context.Context, v marketdata.SecurityTimeAndSale) error {
	return c.publish(ctx, marketdata.KindTimeAndSale, v.Index.String(), v.Value)
}

// PublishMarketQuote implements Client.
func (c *WebSocketClient) PublishMarketQuote(ctx context.Context, v marketdata.MarketWideMarketQuote) error {
	return c.publish(ctx, marketdata.KindMarketQuote, string(v.Index), v.Value)
}
