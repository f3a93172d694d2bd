package guard

import (
	"context"
	"errors"
	"log"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"oco-guard/internal/alert"
	"oco-guard/internal/core"
	"oco-guard/internal/exchange"
)

type CancelMode string

const (
	CancelBySymbol CancelMode = "symbol"
	CancelBySide   CancelMode = "side"
	CancelByPrefix CancelMode = "prefix"
)

// Canceler removes the sibling protective orders left behind after a
// qualifying close fill. The target set is always computed against live
// open orders at cancellation time, never from a cached list.
type Canceler struct {
	Exchange exchange.Exchange
	Mode     CancelMode
	Prefix   string
	Alerts   alert.Alerter
}

// CancelSiblings executes one sweep for the triggering fill and returns the
// number of orders targeted. Per-order failures are logged, never escalated;
// a failed cancel most likely means the order already resolved.
func (c *Canceler) CancelSiblings(ctx context.Context, fill CloseFill) (int, error) {
	switch c.Mode {
	case CancelBySymbol:
		return c.cancelBySymbol(ctx, fill)
	case CancelBySide:
		return c.cancelFiltered(ctx, fill, c.sideFilter(fill))
	case CancelByPrefix:
		return c.cancelFiltered(ctx, fill, func(ord core.Order) bool {
			return strings.HasPrefix(ord.ClientID, c.Prefix)
		})
	default:
		return 0, errors.New("unknown cancel mode: " + string(c.Mode))
	}
}

func (c *Canceler) cancelBySymbol(ctx context.Context, fill CloseFill) (int, error) {
	open, err := c.Exchange.OpenOrders(ctx, fill.Symbol)
	if err != nil {
		// The sweep still goes out; only the observability count is lost.
		log.Printf("level=WARN event=open_orders_count_failed symbol=%s err=%q", fill.Symbol, err.Error())
		open = nil
	}
	if err := c.Exchange.CancelAllOrders(ctx, fill.Symbol); err != nil {
		return 0, err
	}
	c.alertSweep(fill, len(open), 0)
	return len(open), nil
}

func (c *Canceler) sideFilter(fill CloseFill) func(core.Order) bool {
	side := fill.PositionSide
	if side == "" || side == core.PositionBoth {
		// One-way account data under side mode: degrade to the whole symbol
		// rather than silently cancelling nothing.
		log.Printf("level=WARN event=position_side_missing symbol=%s action=cancel_whole_symbol", fill.Symbol)
		c.alertImportant("position_side_missing", map[string]string{
			"symbol": fill.Symbol,
			"action": "cancel_whole_symbol",
		})
		return func(core.Order) bool { return true }
	}
	return func(ord core.Order) bool { return ord.PositionSide == side }
}

func (c *Canceler) cancelFiltered(ctx context.Context, fill CloseFill, match func(core.Order) bool) (int, error) {
	open, err := c.Exchange.OpenOrders(ctx, fill.Symbol)
	if err != nil {
		return 0, err
	}
	targets := make([]core.Order, 0, len(open))
	for _, ord := range open {
		if match(ord) {
			targets = append(targets, ord)
		}
	}
	if len(targets) == 0 {
		return 0, nil
	}

	var failed int32
	var wg sync.WaitGroup
	for _, ord := range targets {
		ord := ord
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := c.Exchange.CancelOrder(ctx, fill.Symbol, ord.ID)
			if err == nil {
				return
			}
			if isHarmlessCancelFailure(err) {
				log.Printf("level=INFO event=cancel_order_already_resolved symbol=%s order_id=%s", fill.Symbol, ord.ID)
				return
			}
			atomic.AddInt32(&failed, 1)
			log.Printf("level=WARN event=cancel_order_failed symbol=%s order_id=%s err=%q", fill.Symbol, ord.ID, err.Error())
		}()
	}
	wg.Wait()

	c.alertSweep(fill, len(targets), int(atomic.LoadInt32(&failed)))
	return len(targets), nil
}

func (c *Canceler) alertSweep(fill CloseFill, targeted, failed int) {
	fields := map[string]string{
		"symbol":         fill.Symbol,
		"trigger_type":   string(fill.Type),
		"trigger_client": fill.ClientOrderID,
		"mode":           string(c.Mode),
		"targeted":       strconv.Itoa(targeted),
	}
	if fill.PositionSide != "" {
		fields["position_side"] = string(fill.PositionSide)
	}
	if failed > 0 {
		fields["failed"] = strconv.Itoa(failed)
	}
	c.alertImportant("protective_orders_cancelled", fields)
}

func (c *Canceler) alertImportant(event string, fields map[string]string) {
	if c.Alerts == nil {
		return
	}
	c.Alerts.Important(event, fields)
}

func isHarmlessCancelFailure(err error) bool {
	return errors.Is(err, core.ErrOrderNotFound) ||
		errors.Is(err, core.ErrOrderExpired) ||
		errors.Is(err, core.ErrCancelRejected)
}
