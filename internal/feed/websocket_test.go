package feed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/require"

	"github.com/coachpo/chronicle/errs"
	"github.com/coachpo/chronicle/internal/domain/marketdata"
	"github.com/coachpo/chronicle/internal/domain/region"
	"github.com/coachpo/chronicle/internal/numeric"
)

// frameServer accepts one connection and forwards every text frame it reads.
func frameServer(t *testing.T) (string, <-chan []byte) {
	t.Helper()
	frames := make(chan []byte, 16)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.CloseNow()
		for {
			_, data, err := conn.Read(r.Context())
			if err != nil {
				return
			}
			frames <- data
		}
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http"), frames
}

func receive(t *testing.T, frames <-chan []byte) Frame {
	t.Helper()
	select {
	case data := <-frames:
		f, err := DecodeFrame(data)
		require.NoError(t, err)
		return f
	case <-time.After(5 * time.Second):
		t.Fatal("no frame received")
		return Frame{}
	}
}

func TestWebSocketClientPublishesFrames(t *testing.T) {
	url, frames := frameServer(t)
	client, err := NewWebSocketClient(Options{URL: url})
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, client.Open(ctx))
	defer client.Close()

	ibm := region.Security{Symbol: "IBM", Country: "US", Venue: "XNYS"}
	quote := marketdata.BboQuote{
		Bid:       marketdata.Quote{Price: numeric.MustParseMoney("141.2"), Size: numeric.QuantityFromInt(100), Side: marketdata.SideBid},
		Ask:       marketdata.Quote{Price: numeric.MustParseMoney("141.25"), Size: numeric.QuantityFromInt(300), Side: marketdata.SideAsk},
		Timestamp: time.Date(2024, 3, 1, 14, 30, 0, 0, time.UTC),
	}
	require.NoError(t, client.PublishBboQuote(ctx, marketdata.Indexed(quote, ibm)))

	f := receive(t, frames)
	require.Equal(t, marketdata.KindBboQuote, f.Type)
	require.Equal(t, client.Session(), f.Session)
	require.Equal(t, "IBM.US", f.Security)
	var decoded marketdata.BboQuote
	require.NoError(t, json.Unmarshal(f.Value, &decoded))
	require.Equal(t, quote, decoded)

	mq := marketdata.MarketQuote{Market: "XNYS", Timestamp: quote.Timestamp}
	require.NoError(t, client.PublishMarketQuote(ctx, marketdata.Indexed(mq, region.MarketCode("XNYS"))))
	f = receive(t, frames)
	require.Equal(t, marketdata.KindMarketQuote, f.Type)
	require.Equal(t, "XNYS", f.Security)
}

func TestWebSocketClientCloseIsIdempotent(t *testing.T) {
	url, _ := frameServer(t)
	client, err := NewWebSocketClient(Options{URL: url})
	require.NoError(t, err)
	require.NoError(t, client.Open(context.Background()))
	require.NoError(t, client.Close())
	require.NoError(t, client.Close())

	err = client.PublishTimeAndSale(context.Background(), marketdata.SecurityTimeAndSale{})
	require.ErrorIs(t, err, ErrClosed)
	require.ErrorIs(t, client.Open(context.Background()), ErrClosed)
}

func TestWebSocketClientOpenFailsAfterAttempts(t *testing.T) {
	client, err := NewWebSocketClient(Options{
		URL:          "ws://127.0.0.1:1/feed",
		DialTimeout:  100 * time.Millisecond,
		DialAttempts: 1,
	})
	require.NoError(t, err)
	err = client.Open(context.Background())
	require.Error(t, err)
	require.True(t, errs.HasCode(err, errs.CodeUnavailable))
}

func TestNewWebSocketClientRequiresURL(t *testing.T) {
	_, err := NewWebSocketClient(Options{})
	require.True(t, errs.HasCode(err, errs.CodeInvalid))
}

func TestNullClientCounts(t *testing.T) {
	var c NullClient
	ctx := context.Background()
	require.NoError(t, c.Open(ctx))
	require.NoError(t, c.PublishBboQuote(ctx, marketdata.SecurityBboQuote{}))
	require.NoError(t, c.PublishBookQuote(ctx, marketdata.SecurityBookQuote{}))
	require.EqualValues(t, 2, c.Published())
	require.NoError(t, c.Close())
}
