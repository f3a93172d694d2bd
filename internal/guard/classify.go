package guard

import (
	"oco-guard/internal/core"
)

// CloseFill identifies a filled protective close order extracted from an
// order update.
type CloseFill struct {
	Symbol        string
	PositionSide  core.PositionSide
	ClientOrderID string
	Type          core.OrderType
}

var protectiveTypes = map[core.OrderType]struct{}{
	core.Stop:             {},
	core.StopMarket:       {},
	core.TakeProfit:       {},
	core.TakeProfitMarket: {},
}

// Classify reports whether an order update is a qualifying close fill: the
// order carried the close-position flag, is one of the protective
// stop/take-profit families, and fully filled. Partial fills, cancels and
// ordinary orders never qualify. Pure, no I/O.
func Classify(update core.OrderUpdate) (CloseFill, bool) {
	if !update.ClosePosition {
		return CloseFill{}, false
	}
	if _, ok := protectiveTypes[update.Type]; !ok {
		return CloseFill{}, false
	}
	if update.Status != core.OrderFilled {
		return CloseFill{}, false
	}
	return CloseFill{
		Symbol:        update.Symbol,
		PositionSide:  update.PositionSide,
		ClientOrderID: update.ClientOrderID,
		Type:          update.Type,
	}, true
}
