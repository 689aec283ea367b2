package region

import (
	"testing"

	"github.com/stretchr/testify/require"
)

var (
	nyse  = Market{Code: "XNYS", Country: "US"}
	nasdq = Market{Code: "XNAS", Country: "US"}
	tsx   = Market{Code: "XTSE", Country: "CA"}
	aapl  = Security{Symbol: "AAPL", Venue: "XNAS", Country: "US"}
	ibm   = Security{Symbol: "IBM", Venue: "XNYS", Country: "US"}
	ry    = Security{Symbol: "RY", Venue: "XTSE", Country: "CA"}
)

func TestGlobalEnclosesEverything(t *testing.T) {
	global := Global("Global")
	require.True(t, global.Encloses(FromSecurity(aapl)))
	require.True(t, global.Encloses(FromCountry("CA")))
	require.True(t, global.Encloses(global))
	require.False(t, FromCountry("US").Encloses(global))
}

func TestEnclosureThroughMarketAndCountry(t *testing.T) {
	us := FromCountry("US")
	nys := FromMarket(nyse)

	require.True(t, us.Encloses(nys))
	require.False(t, nys.Encloses(us))
	require.True(t, nys.Encloses(FromSecurity(ibm)))
	require.False(t, nys.Encloses(FromSecurity(aapl)))
	require.True(t, us.Encloses(FromSecurity(aapl)))
	require.False(t, us.Encloses(FromSecurity(ry)))
	require.True(t, FromSecurity(ibm).Encloses(FromSecurity(ibm)))
}

func TestEnclosureRequiresEveryElement(t *testing.T) {
	both := New("pair").WithSecurity(aapl).WithSecurity(ibm)
	require.True(t, both.Encloses(FromSecurity(aapl)))
	require.False(t, FromSecurity(aapl).Encloses(both))

	mixed := New("mixed").WithMarket(nyse).WithSecurity(ry)
	require.True(t, FromCountry("US").Union(FromCountry("CA")).Encloses(mixed))
	require.False(t, FromCountry("US").Encloses(mixed))
}

func TestEmptyRegionIsEnclosedByAll(t *testing.T) {
	empty := New("")
	require.True(t, empty.IsEmpty())
	require.True(t, FromSecurity(aapl).Encloses(empty))
	require.False(t, empty.Encloses(FromSecurity(aapl)))
}

func TestEqualIgnoresNames(t *testing.T) {
	a := New("a").WithMarket(nyse).WithMarket(nasdq)
	b := New("b").WithMarket(nasdq).WithMarket(nyse)
	require.True(t, a.Equal(b))
	require.False(t, a.Equal(FromMarket(nyse)))
	require.True(t, Global("x").Equal(Global("y")))
	require.False(t, Global("x").Equal(New("x")))
	require.False(t, FromMarket(Market{Code: "XNYS", Country: "US"}).Equal(FromMarket(Market{Code: "XNYS", Country: "CA"})))
}

func TestWithMethodsDoNotMutateReceiver(t *testing.T) {
	base := FromCountry("US")
	_ = base.WithCountry("CA").WithMarket(tsx)
	require.Equal(t, []CountryCode{"US"}, base.Countries())
	require.Empty(t, base.Markets())
}

func TestSortedAccessors(t *testing.T) {
	r := New("r").WithSecurity(ibm).WithSecurity(aapl).WithMarket(tsx).WithMarket(nyse)
	require.Equal(t, []Security{aapl, ibm}, r.Securities())
	require.Equal(t, []Market{nyse, tsx}, r.Markets())
	require.Equal(t, "r{XNYS,XTSE,AAPL.US,IBM.US}", r.String())
}

func TestParseSecurity(t *testing.T) {
	sec, err := ParseSecurity("aapl.us.xnas")
	require.NoError(t, err)
	require.Equal(t, aapl, sec)

	sec, err = ParseSecurity("RY.CA")
	require.NoError(t, err)
	require.Equal(t, Security{Symbol: "RY", Country: "CA"}, sec)

	_, err = ParseSecurity("AAPL")
	require.Error(t, err)
	_, err = ParseSecurity(".US")
	require.Error(t, err)
}

func TestSecurityCompare(t *testing.T) {
	require.Negative(t, aapl.Compare(ibm))
	require.Positive(t, Security{Symbol: "AAPL", Country: "US"}.Compare(Security{Symbol: "AAPL", Country: "CA"}))
	require.Zero(t, aapl.Compare(Security{Symbol: "AAPL", Country: "US"}))
}
