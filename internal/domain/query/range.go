// Package query models the shape of historical data queries: the index addressed, the
// range selected, the snapshot limit, pagination anchors, and filter expressions.
package query

import (
	"fmt"
	"math"
	"time"

	"github.com/coachpo/chronicle/internal/domain/marketdata"
)

// MaxTime is the far-future instant. Its unix nanosecond value is math.MaxInt64.
var MaxTime = time.Unix(0, math.MaxInt64).UTC()

type pointKind uint8

const (
	pointSequence pointKind = iota
	pointTime
)

// Point is one endpoint of a Range: either an instant or a sequence.
type Point struct {
	kind     pointKind
	sequence marketdata.Sequence
	time     time.Time
}

// AtSequence returns a sequence endpoint.
func AtSequence(seq marketdata.Sequence) Point {
	return Point{kind: pointSequence, sequence: seq}
}

// AtTime returns a timestamp endpoint.
func AtTime(t time.Time) Point {
	return Point{kind: pointTime, time: t}
}

// IsSequence reports whether p is a sequence endpoint.
func (p Point) IsSequence() bool { return p.kind == pointSequence }

// Sequence returns the sequence of a sequence endpoint.
func (p Point) Sequence() marketdata.Sequence { return p.sequence }

// Time returns the instant of a timestamp endpoint.
func (p Point) Time() time.Time { return p.time }

func (p Point) String() string {
	if p.IsSequence() {
		return fmt.Sprintf("seq:%d", p.sequence)
	}
	return p.time.UTC().Format(time.RFC3339Nano)
}

// Range selects an inclusive interval of (timestamp, sequence) space.
type Range struct {
	Start Point
	End   Point
}

// NewRange returns the inclusive range [start, end].
func NewRange(start, end Point) Range {
	return Range{Start: start, End: end}
}

// Total spans every stored record.
func Total() Range {
	return Range{Start: AtSequence(marketdata.FirstSequence), End: AtSequence(marketdata.LastSequence)}
}

// RealTime spans from the first record into the far future, used to tail live data after
// catching up on history.
func RealTime() Range {
	return Range{Start: AtSequence(marketdata.FirstSequence), End: AtTime(MaxTime)}
}

// TimeRange is the inclusive range [start, end] over timestamps.
func TimeRange(start, end time.Time) Range {
	return Range{Start: AtTime(start), End: AtTime(end)}
}

// SequenceRange is the inclusive range [start, end] over sequences.
func SequenceRange(start, end marketdata.Sequence) Range {
	return Range{Start: AtSequence(start), End: AtSequence(end)}
}

// IsTotal reports whether r spans every stored record.
func (r Range) IsTotal() bool {
	return r.Start.IsSequence() && r.Start.sequence == marketdata.FirstSequence &&
		r.End.IsSequence() && r.End.sequence == marketdata.LastSequence
}

// Contains reports whether a record at (ts, seq) falls inside r.
func (r Range) Contains(ts time.Time, seq marketdata.Sequence) bool {
	if r.Start.IsSequence() {
		if seq < r.Start.sequence {
			return false
		}
	} else if ts.Before(r.Start.time) {
		return false
	}
	if r.End.IsSequence() {
		return seq <= r.End.sequence
	}
	return !ts.After(r.End.time)
}

func (r Range) String() string {
	return "[" + r.Start.String() + ", " + r.End.String() + "]"
}

// LimitType selects which end of a range a SnapshotLimit counts from.
type LimitType uint8

const (
	// Head counts from the oldest record.
	Head LimitType = iota
	// Tail counts from the newest record.
	Tail
)

// SnapshotLimit bounds the number of records a query returns. A Size of zero or less
// selects nothing.
type SnapshotLimit struct {
	Type LimitType
	Size int
}

// Unlimited returns every record in range.
func Unlimited() SnapshotLimit { return SnapshotLimit{Type: Head, Size: math.MaxInt} }

// None returns no records.
func None() SnapshotLimit { return SnapshotLimit{Type: Head} }

// FromHead returns at most n of the oldest records in range.
func FromHead(n int) SnapshotLimit { return SnapshotLimit{Type: Head, Size: max(n, 0)} }

// FromTail returns at most n of the newest records in range, still in ascending order.
func FromTail(n int) SnapshotLimit { return SnapshotLimit{Type: Tail, Size: max(n, 0)} }

// IsUnlimited reports whether l places no bound on the result.
func (l SnapshotLimit) IsUnlimited() bool { return l.Size == math.MaxInt }

func (l SnapshotLimit) String() string {
	switch {
	case l.IsUnlimited():
		return "unlimited"
	case l.Type == Tail:
		return fmt.Sprintf("tail(%d)", l.Size)
	default:
		return fmt.Sprintf("head(%d)", l.Size)
	}
}

// InterruptionPolicy tells a streaming query what to do when its source is interrupted.
type InterruptionPolicy uint8

const (
	// BreakQuery terminates the query.
	BreakQuery InterruptionPolicy = iota
	// RecoverData resumes and backfills what was missed.
	RecoverData
	// IgnoreContinue resumes without backfilling.
	IgnoreContinue
)

func (p InterruptionPolicy) String() string {
	switch p {
	case RecoverData:
		return "recover_data"
	case IgnoreContinue:
		return "ignore_continue"
	default:
		return "break_query"
	}
}
