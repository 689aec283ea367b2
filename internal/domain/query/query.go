package query

import (
	"github.com/coachpo/chronicle/internal/domain/region"
)

// Basic is the common shape of every index-addressed query.
type Basic[I any] struct {
	Index              I
	Range              Range
	SnapshotLimit      SnapshotLimit
	InterruptionPolicy InterruptionPolicy
	Filter             Expr
}

// SetIndex sets the index queried.
func (q *Basic[I]) SetIndex(index I) { q.Index = index }

// SetRange sets the range selected.
func (q *Basic[I]) SetRange(r Range) { q.Range = r }

// SetSnapshotLimit sets the snapshot limit.
func (q *Basic[I]) SetSnapshotLimit(l SnapshotLimit) { q.SnapshotLimit = l }

// SetInterruptionPolicy sets the interruption policy.
func (q *Basic[I]) SetInterruptionPolicy(p InterruptionPolicy) { q.InterruptionPolicy = p }

// SetFilter sets the filter expression. A nil filter matches every record.
func (q *Basic[I]) SetFilter(e Expr) { q.Filter = e }

type (
	// SecurityMarketDataQuery addresses records indexed by security.
	SecurityMarketDataQuery = Basic[region.Security]
	// MarketWideDataQuery addresses records indexed by market.
	MarketWideDataQuery = Basic[region.MarketCode]
	// AccountQuery addresses records indexed by account.
	AccountQuery = Basic[string]
)

// SecurityInfoQuery selects reference data inside a region, paginated by an anchor in
// (symbol, country) order.
type SecurityInfoQuery struct {
	Basic[region.Region]
	Anchor *region.Security
}

// SetAnchor sets the exclusive pagination cursor.
func (q *SecurityInfoQuery) SetAnchor(sec region.Security) {
	q.Anchor = &sec
}

// ClearAnchor removes the pagination cursor.
func (q *SecurityInfoQuery) ClearAnchor() { q.Anchor = nil }

// NewQuery returns a query over index spanning every record with no limit.
func NewQuery[I any](index I) Basic[I] {
	return Basic[I]{Index: index, Range: Total(), SnapshotLimit: Unlimited()}
}

// BuildRealTimeWithSnapshotQuery returns a query tailing index in real time after a
// snapshot bounded by limit.
func BuildRealTimeWithSnapshotQuery[I any](index I, limit SnapshotLimit) Basic[I] {
	return Basic[I]{Index: index, Range: RealTime(), SnapshotLimit: limit}
}

// BuildCurrentQuery returns a query selecting the most recent record of index.
func BuildCurrentQuery[I any](index I) Basic[I] {
	return Basic[I]{Index: index, Range: RealTime(), SnapshotLimit: FromTail(1)}
}

// NewSecurityInfoQuery returns an unlimited reference data query over r.
func NewSecurityInfoQuery(r region.Region) SecurityInfoQuery {
	return SecurityInfoQuery{Basic: NewQuery(r)}
}
