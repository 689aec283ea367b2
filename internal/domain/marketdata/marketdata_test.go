package marketdata

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSequenceSaturates(t *testing.T) {
	require.Equal(t, Sequence(1), FirstSequence.Increment())
	require.Equal(t, FirstSequence, FirstSequence.Decrement())
	require.Equal(t, LastSequence, LastSequence.Increment())
	require.Equal(t, LastSequence-1, LastSequence.Decrement())
	require.Less(t, uint64(LastSequence), uint64(1)<<63)
}

func TestParseKind(t *testing.T) {
	for k, name := range kindNames {
		parsed, err := ParseKind(name)
		require.NoError(t, err)
		require.Equal(t, k, parsed)
	}
	k, err := ParseKind(" BBO_Quote ")
	require.NoError(t, err)
	require.Equal(t, KindBboQuote, k)

	_, err = ParseKind("level2")
	require.Error(t, err)

	var fromText Kind
	require.NoError(t, fromText.UnmarshalText([]byte("time_and_sale")))
	require.Equal(t, KindTimeAndSale, fromText)
	require.Equal(t, "kind(42)", Kind(42).String())
}

func TestWithTimestampCopies(t *testing.T) {
	original := time.Date(2024, 1, 2, 9, 30, 0, 0, time.UTC)
	live := original.Add(time.Hour)
	q := BboQuote{Timestamp: original}
	stamped := q.WithTimestamp(live)
	require.Equal(t, original, q.GetTimestamp())
	require.Equal(t, live, stamped.GetTimestamp())

	var r Restampable[TimeAndSale] = TimeAndSale{Timestamp: original}
	require.Equal(t, live, r.WithTimestamp(live).Timestamp)
}
