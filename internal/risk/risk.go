// Package risk tracks account inventories and resolves the risk limits that apply to
// them per region.
package risk

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/coachpo/chronicle/internal/domain/region"
	"github.com/coachpo/chronicle/internal/domain/regionmap"
	"github.com/coachpo/chronicle/internal/domain/riskstore"
	"github.com/coachpo/chronicle/internal/numeric"
)

// Parameters defines the risk limits of a region.
type Parameters struct {
	// BuyingPower caps the absolute cost basis of a single position. Zero disables the
	// check.
	BuyingPower numeric.Money `yaml:"buying_power"`

	// NetLoss caps the realized loss, net of fees, of a single position. Zero disables
	// the check.
	NetLoss numeric.Money `yaml:"net_loss"`

	// LossFromTop is the percentage of a position's peak net profit that may be given
	// back. Zero disables the check.
	LossFromTop int `yaml:"loss_from_top"`

	// TransitionTime is how long an account stays in CloseOrders before it is disabled.
	TransitionTime time.Duration `yaml:"transition_time"`
}

// NewParameterMap returns a map resolving every region to global.
func NewParameterMap(global Parameters) *regionmap.RegionMap[Parameters] {
	return regionmap.New(global)
}

// Status is the trading state an account is held in.
type Status int

const (
	// StatusActive allows new orders.
	StatusActive Status = iota
	// StatusCloseOrders only allows orders reducing positions.
	StatusCloseOrders
	// StatusDisabled rejects every order.
	StatusDisabled
)

func (s Status) String() string {
	switch s {
	case StatusActive:
		return "active"
	case StatusCloseOrders:
		return "close_orders"
	case StatusDisabled:
		return "disabled"
	default:
		return "unknown"
	}
}

// Reason names the limit a position breached.
type Reason string

const (
	ReasonBuyingPower Reason = "buying_power"
	ReasonNetLoss     Reason = "net_loss"
	ReasonLossFromTop Reason = "loss_from_top"
)

// Breach is one limit exceeded by one position.
type Breach struct {
	Security region.Security
	Currency riskstore.CurrencyCode
	Reason   Reason
}

// Evaluation is the outcome of checking an account against its limits.
type Evaluation struct {
	Status   Status
	Breaches []Breach
}

func netProfit(inv riskstore.Inventory) numeric.Money {
	return inv.GrossProfitAndLoss.Sub(inv.Fees)
}

// check returns the limits inv breaches under p. peak is the highest net profit seen for
// the position. Limits are compared in decimal so large balances cannot overflow.
func check(inv riskstore.Inventory, p Parameters, peak numeric.Money) []Reason {
	var reasons []Reason
	if p.BuyingPower > 0 && inv.CostBasis.Decimal().Abs().GreaterThan(p.BuyingPower.Decimal()) {
		reasons = append(reasons, ReasonBuyingPower)
	}
	net := netProfit(inv).Decimal()
	if p.NetLoss > 0 && net.Neg().GreaterThan(p.NetLoss.Decimal()) {
		reasons = append(reasons, ReasonNetLoss)
	}
	if p.LossFromTop > 0 && peak > 0 {
		top := peak.Decimal()
		allowed := top.Mul(decimal.NewFromInt(int64(p.LossFromTop))).Div(decimal.NewFromInt(100))
		if top.Sub(net).GreaterThan(allowed) {
			reasons = append(reasons, ReasonLossFromTop)
		}
	}
	return reasons
}
